package cache

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto"
)

// Cache stores rendered report payloads so identical analyze requests within
// the TTL skip the fetch and model fit entirely.
type Cache struct {
	enabled bool
	ttl     time.Duration
	store   *ristretto.Cache
}

// Config captures cache construction parameters.
type Config struct {
	Enabled     bool
	NumCounters int64
	MaxCost     int64
	BufferItems int64
	TTL         time.Duration
}

// New creates a Cache instance according to the configuration. A disabled
// cache is a no-op and safe to call.
func New(cfg Config) (*Cache, error) {
	if !cfg.Enabled {
		return &Cache{enabled: false}, nil
	}

	store, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: int64OrDefault(cfg.NumCounters, 1e4),
		MaxCost:     int64OrDefault(cfg.MaxCost, 1<<26),
		BufferItems: int64OrDefault(cfg.BufferItems, 64),
	})
	if err != nil {
		return nil, err
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return &Cache{enabled: true, ttl: ttl, store: store}, nil
}

// Get returns the cached payload for the key, if available.
func (c *Cache) Get(_ context.Context, key string) ([]byte, bool) {
	if c == nil || !c.enabled {
		return nil, false
	}
	if v, ok := c.store.Get(key); ok {
		if b, ok := v.([]byte); ok {
			return b, true
		}
	}
	return nil, false
}

// Set stores the payload under the key with the configured TTL.
func (c *Cache) Set(_ context.Context, key string, payload []byte) {
	if c == nil || !c.enabled {
		return
	}
	c.store.SetWithTTL(key, payload, int64(len(payload)), c.ttl)
}

// Close releases cache resources.
func (c *Cache) Close() {
	if c == nil || !c.enabled {
		return
	}
	c.store.Close()
}

func int64OrDefault(v, def int64) int64 {
	if v <= 0 {
		return def
	}
	return v
}
