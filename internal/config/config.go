package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xscopehub/capmon/internal/metrics"
)

// Datasource kinds supported for query dispatch.
const (
	KindPrometheus = "prometheus"
	KindGraphite   = "graphite"
)

// InvalidConfigError indicates malformed or unsupported configuration.
type InvalidConfigError struct {
	Reason string
}

func (e *InvalidConfigError) Error() string { return "invalid config: " + e.Reason }

// Config represents the application configuration loaded from YAML.
type Config struct {
	Server      ServerConfig       `yaml:"server"`
	Auth        AuthConfig         `yaml:"auth"`
	RateLimiter RateLimiterConfig  `yaml:"rate_limiter"`
	Cache       CacheConfig        `yaml:"cache"`
	Audit       AuditConfig        `yaml:"audit"`
	Analysis    AnalysisConfig     `yaml:"analysis"`
	Datasources []DatasourceConfig `yaml:"datasources"`
	Catalog     CatalogConfig      `yaml:"catalog"`
}

// ServerConfig controls HTTP server settings.
type ServerConfig struct {
	Address      string        `yaml:"address"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// AuthConfig configures JWT based authentication.
type AuthConfig struct {
	Enabled     bool          `yaml:"enabled"`
	JWKSURL     string        `yaml:"jwks_url"`
	Audience    []string      `yaml:"audience"`
	Issuer      string        `yaml:"issuer"`
	UserClaim   string        `yaml:"user_claim"`
	CacheTTL    time.Duration `yaml:"cache_ttl"`
	InsecureTLS bool          `yaml:"insecure_tls"`
}

// RateLimiterConfig defines per-caller rate limiting behaviour.
type RateLimiterConfig struct {
	Enabled            bool          `yaml:"enabled"`
	RequestsPerSecond  float64       `yaml:"requests_per_second"`
	Burst              int           `yaml:"burst"`
	Window             time.Duration `yaml:"window"`
	RedisAddr          string        `yaml:"redis_addr"`
	RedisUsername      string        `yaml:"redis_username"`
	RedisPassword      string        `yaml:"redis_password"`
	RedisDB            int           `yaml:"redis_db"`
	RedisTLSCA         string        `yaml:"redis_tls_ca"`
	RedisTLSSkipVerify bool          `yaml:"redis_tls_skip_verify"`
}

// CacheConfig configures report response caching.
type CacheConfig struct {
	Enabled     bool          `yaml:"enabled"`
	NumCounters int64         `yaml:"num_counters"`
	MaxCost     int64         `yaml:"max_cost"`
	BufferItems int64         `yaml:"buffer_items"`
	TTL         time.Duration `yaml:"ttl"`
}

// AuditConfig configures request auditing.
type AuditConfig struct {
	Enabled bool `yaml:"enabled"`
}

// AnalysisConfig carries defaults applied to analyze requests that omit a
// field, plus the backend fetch timeout.
type AnalysisConfig struct {
	DefaultLookbackDays int           `yaml:"default_lookback_days"`
	DefaultForecastDays float64       `yaml:"default_forecast_days"`
	DefaultStep         string        `yaml:"default_step"`
	FetchTimeout        time.Duration `yaml:"fetch_timeout"`
}

// DatasourceConfig declares one monitoring backend in the YAML catalog.
type DatasourceConfig struct {
	Name   string `yaml:"name"`
	Source string `yaml:"source"`
	Type   string `yaml:"type"`
}

// CatalogConfig describes the optional PostgreSQL datasource lookup.
type CatalogConfig struct {
	Enabled         bool          `yaml:"enabled"`
	DSN             string        `yaml:"dsn"`
	MaxConnections  int32         `yaml:"max_connections"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
	LookupQuery     string        `yaml:"lookup_query"`
}

// Datasource is a configured monitoring backend: an address plus a backend
// kind that selects the query adapter.
type Datasource struct {
	Name   string
	Source string
	Kind   string
}

// QueryFor builds the backend-specific Query for this datasource. Dispatch
// is by kind tag.
func (d Datasource) QueryFor(expr string, lookbackDays int, step string, timeout time.Duration) (metrics.Query, error) {
	switch d.Kind {
	case KindPrometheus:
		return metrics.NewPrometheusQuery(expr, d.Source, lookbackDays, step, timeout)
	case KindGraphite:
		return metrics.NewGraphiteQuery(expr, d.Source, lookbackDays, step, timeout)
	default:
		return nil, &InvalidConfigError{Reason: fmt.Sprintf("invalid source type for %s: %s", d.Name, d.Kind)}
	}
}

// Load reads configuration from the supplied path or returns defaults when
// the path is empty or missing. Datasource declarations are validated at
// load time.
func Load(path string) (Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("unmarshal config: %w", err)
		}
	}

	if err := validateDatasources(cfg.Datasources); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func validateDatasources(sources []DatasourceConfig) error {
	seen := make(map[string]struct{}, len(sources))
	for _, ds := range sources {
		if ds.Name == "" {
			return &InvalidConfigError{Reason: "datasource name required"}
		}
		if _, ok := seen[ds.Name]; ok {
			return &InvalidConfigError{Reason: "repeated datasource name: " + ds.Name}
		}
		seen[ds.Name] = struct{}{}
		if ds.Type != KindPrometheus && ds.Type != KindGraphite {
			return &InvalidConfigError{Reason: fmt.Sprintf("invalid source type for %s: %s", ds.Name, ds.Type)}
		}
	}
	return nil
}

// Datasource returns the named datasource from the YAML catalog.
func (c Config) Datasource(name string) (Datasource, bool) {
	for _, ds := range c.Datasources {
		if ds.Name == name {
			return Datasource{Name: ds.Name, Source: ds.Source, Kind: ds.Type}, true
		}
	}
	return Datasource{}, false
}

// SourceOption is one selectable datasource entry.
type SourceOption struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// SourceOptions lists the configured datasources for presentation as
// "name [kind]" labels.
func (c Config) SourceOptions() []SourceOption {
	options := make([]SourceOption, 0, len(c.Datasources))
	for _, ds := range c.Datasources {
		options = append(options, SourceOption{
			Label: fmt.Sprintf("%s [%s]", ds.Name, ds.Type),
			Value: ds.Name,
		})
	}
	return options
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:      ":8050",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 2 * time.Minute,
			IdleTimeout:  60 * time.Second,
		},
		Auth: AuthConfig{
			Enabled:   false,
			UserClaim: "sub",
			CacheTTL:  time.Hour,
		},
		RateLimiter: RateLimiterConfig{
			Enabled:           false,
			RequestsPerSecond: 1,
			Burst:             5,
			Window:            time.Minute,
		},
		Cache: CacheConfig{
			Enabled:     false,
			NumCounters: 1e4,
			MaxCost:     1 << 26,
			BufferItems: 64,
			TTL:         5 * time.Minute,
		},
		Audit: AuditConfig{Enabled: true},
		Analysis: AnalysisConfig{
			DefaultLookbackDays: 7,
			DefaultForecastDays: 7,
			DefaultStep:         "1h",
			FetchTimeout:        30 * time.Second,
		},
	}
}
