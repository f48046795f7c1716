package cache

import (
	"fmt"
	"time"
)

// Config selects and sizes the cache backend.
type Config struct {
	Backend         string        `yaml:"backend" default:"memory" validate:"oneof=memory redis layered"`
	MemoryMaxSize   int           `yaml:"memory_max_size" default:"1000"`
	MemoryTTL       time.Duration `yaml:"memory_ttl" default:"30s"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" default:"5m"`
}

// New builds the configured backend. The Redis backends need rc.
func New(cfg Config, rc *RedisCache) (Service, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryCache(WithMemoryMaxSize(cfg.MemoryMaxSize), WithMemoryCleanup(cfg.CleanupInterval)), nil
	case "redis":
		if rc == nil {
			return nil, fmt.Errorf("cache: backend %q needs redis", cfg.Backend)
		}
		return rc, nil
	case "layered":
		if rc == nil {
			return nil, fmt.Errorf("cache: backend %q needs redis", cfg.Backend)
		}
		return NewLayeredCache(rc, WithLayeredMemorySize(cfg.MemoryMaxSize), WithLayeredMemoryTTL(cfg.MemoryTTL)), nil
	default:
		return nil, fmt.Errorf("cache: unknown backend %q", cfg.Backend)
	}
}

type RedisOption func(*RedisConfig)

// RedisConfig is the connection section shared by the cache, the snapshot
// lease and the job queue.
type RedisConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Host         string        `yaml:"host" default:"localhost"`
	Port         int           `yaml:"port" default:"6379"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	PoolSize     int           `yaml:"pool_size" default:"10"`
	PoolTimeout  time.Duration `yaml:"pool_timeout" default:"30s"`
	MinIdleConns int           `yaml:"min_idle_conns" default:"2"`
	Prefix       string        `yaml:"prefix" default:"tradedesk"`
}

// WithRedisConfig copies every field.
func WithRedisConfig(c RedisConfig) RedisOption {
	return func(cfg *RedisConfig) { *cfg = c }
}

func WithRedisHost(host string) RedisOption {
	return func(c *RedisConfig) { c.Host = host }
}

func WithRedisPort(port int) RedisOption {
	return func(c *RedisConfig) { c.Port = port }
}

func WithRedisPrefix(prefix string) RedisOption {
	return func(c *RedisConfig) { c.Prefix = prefix }
}

type MemoryOption func(*MemoryConfig)

type MemoryConfig struct {
	MaxSize         int
	MaxTTL          time.Duration
	CleanupInterval time.Duration
}

func WithMemoryMaxSize(size int) MemoryOption {
	return func(c *MemoryConfig) { c.MaxSize = size }
}

// WithMemoryMaxTTL caps every entry's lifetime.
func WithMemoryMaxTTL(ttl time.Duration) MemoryOption {
	return func(c *MemoryConfig) { c.MaxTTL = ttl }
}

func WithMemoryCleanup(interval time.Duration) MemoryOption {
	return func(c *MemoryConfig) { c.CleanupInterval = interval }
}

type LayeredOption func(*LayeredConfig)

type LayeredConfig struct {
	MemoryMaxSize int
	MemoryTTL     time.Duration
}

func WithLayeredMemorySize(size int) LayeredOption {
	return func(c *LayeredConfig) { c.MemoryMaxSize = size }
}

func WithLayeredMemoryTTL(ttl time.Duration) LayeredOption {
	return func(c *LayeredConfig) { c.MemoryTTL = ttl }
}
