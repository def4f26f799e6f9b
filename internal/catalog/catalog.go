package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xscopehub/capmon/internal/config"
)

// ErrNotFound indicates the datasource is not registered in the catalog.
var ErrNotFound = errors.New("datasource not found in catalog")

// Store looks up datasources from a PostgreSQL registry. It backs the YAML
// catalog so fleet-managed datasources can be added without redeploying.
type Store struct {
	pool        *pgxpool.Pool
	lookupQuery string
}

// New connects to the catalog database. A disabled configuration yields a
// nil store, which is safe to call.
func New(ctx context.Context, cfg config.CatalogConfig) (*Store, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("catalog dsn required")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse catalog dsn: %w", err)
	}
	if cfg.MaxConnections > 0 {
		poolConfig.MaxConns = cfg.MaxConnections
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect catalog db: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping catalog db: %w", err)
	}

	query := strings.TrimSpace(cfg.LookupQuery)
	if query == "" {
		query = "SELECT source, type FROM datasources WHERE name = $1"
	}

	return &Store{pool: pool, lookupQuery: query}, nil
}

// Lookup resolves a datasource by name.
func (s *Store) Lookup(ctx context.Context, name string) (config.Datasource, error) {
	if s == nil {
		return config.Datasource{}, ErrNotFound
	}

	row := s.pool.QueryRow(ctx, s.lookupQuery, name)

	ds := config.Datasource{Name: name}
	if err := row.Scan(&ds.Source, &ds.Kind); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return config.Datasource{}, ErrNotFound
		}
		return config.Datasource{}, err
	}

	return ds, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	if s == nil {
		return
	}
	s.pool.Close()
}
