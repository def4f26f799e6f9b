package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xscopehub/capmon/internal/audit"
	"github.com/xscopehub/capmon/internal/auth"
	"github.com/xscopehub/capmon/internal/cache"
	"github.com/xscopehub/capmon/internal/catalog"
	"github.com/xscopehub/capmon/internal/config"
	"github.com/xscopehub/capmon/internal/limiter"
	"github.com/xscopehub/capmon/internal/server"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "path to configuration file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}
	if addr := os.Getenv("CAPMON_ADDRESS"); addr != "" {
		cfg.Server.Address = addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	authenticator, err := auth.New(cfg.Auth)
	if err != nil {
		logger.Error("init auth", "error", err)
		os.Exit(1)
	}

	redisClient, err := buildRedisClient(cfg.RateLimiter)
	if err != nil {
		logger.Error("init redis", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	cacheStore, err := cache.New(cache.Config{
		Enabled:     cfg.Cache.Enabled,
		NumCounters: cfg.Cache.NumCounters,
		MaxCost:     cfg.Cache.MaxCost,
		BufferItems: cfg.Cache.BufferItems,
		TTL:         cfg.Cache.TTL,
	})
	if err != nil {
		logger.Error("init cache", "error", err)
		os.Exit(1)
	}
	defer cacheStore.Close()

	limit := limiter.New(limiter.Config{
		Enabled:           cfg.RateLimiter.Enabled,
		RequestsPerSecond: cfg.RateLimiter.RequestsPerSecond,
		Burst:             cfg.RateLimiter.Burst,
		Window:            cfg.RateLimiter.Window,
		Redis:             redisClient,
	})

	catalogStore, err := catalog.New(ctx, cfg.Catalog)
	if err != nil {
		logger.Error("init catalog", "error", err)
		os.Exit(1)
	}
	defer catalogStore.Close()

	auditLogger := audit.New(cfg.Audit.Enabled, os.Stdout)

	srv := server.New(cfg, logger, authenticator, catalogStore, cacheStore, limit, auditLogger, nil)

	logger.Info("starting application",
		"address", cfg.Server.Address,
		"config_path", configPath,
		"datasources", len(cfg.Datasources),
	)
	if err := srv.Run(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func buildRedisClient(cfg config.RateLimiterConfig) (redis.UniversalClient, error) {
	if !cfg.Enabled || cfg.RedisAddr == "" {
		return nil, nil
	}

	options := &redis.Options{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}

	if cfg.RedisTLSSkipVerify || cfg.RedisTLSCA != "" {
		tlsConfig := &tls.Config{InsecureSkipVerify: cfg.RedisTLSSkipVerify} // #nosec G402
		if cfg.RedisTLSCA != "" {
			ca, err := os.ReadFile(cfg.RedisTLSCA)
			if err != nil {
				return nil, err
			}
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(ca) {
				return nil, errors.New("failed to append redis tls ca")
			}
			tlsConfig.RootCAs = pool
		}
		options.TLSConfig = tlsConfig
	}

	client := redis.NewClient(options)
	pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, err
	}
	return client, nil
}
