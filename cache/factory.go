package cache

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendBadger = "badger"
	BackendTiered = "tiered"
)

// Config selects and tunes the cache.
type Config struct {
	Enabled        bool          `yaml:"enabled" json:"enabled" env:"ENABLED"`
	Backend        string        `yaml:"backend" json:"backend" env:"BACKEND"`
	KeyPrefix      string        `yaml:"key_prefix" json:"key_prefix" env:"KEY_PREFIX"`
	Environment    string        `yaml:"environment" json:"environment" env:"ENVIRONMENT"`
	DefaultTTL     time.Duration `yaml:"default_ttl" json:"default_ttl" env:"DEFAULT_TTL"`
	OpTimeout      time.Duration `yaml:"op_timeout" json:"op_timeout" env:"OP_TIMEOUT"`
	MemoryCapacity int           `yaml:"memory_capacity" json:"memory_capacity" env:"MEMORY_CAPACITY"`
	LocalTTL       time.Duration `yaml:"local_ttl" json:"local_ttl" env:"LOCAL_TTL"`
	Redis          RedisConfig   `yaml:"redis" json:"redis" env:"REDIS"`
	Badger         BadgerConfig  `yaml:"badger" json:"badger" env:"BADGER"`
}

// DefaultConfig returns an enabled in-memory cache with a one hour TTL.
func DefaultConfig() Config {
	return Config{
		Enabled:        true,
		Backend:        BackendMemory,
		KeyPrefix:      "battlecard",
		Environment:    "development",
		DefaultTTL:     time.Hour,
		OpTimeout:      2 * time.Second,
		MemoryCapacity: 1000,
		LocalTTL:       time.Minute,
		Redis:          DefaultRedisConfig(),
		Badger:         DefaultBadgerConfig(),
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.KeyPrefix == "" {
		c.KeyPrefix = def.KeyPrefix
	}
	if c.Environment == "" {
		c.Environment = def.Environment
	}
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = def.DefaultTTL
	}
	if c.MemoryCapacity <= 0 {
		c.MemoryCapacity = def.MemoryCapacity
	}
	return c
}

// ValidBackend reports whether name is a known backend.
func ValidBackend(name string) bool {
	switch name {
	case BackendMemory, BackendRedis, BackendBadger, BackendTiered:
		return true
	}
	return false
}

// Open builds the configured Layer. A disabled config yields a disabled layer.
func Open(cfg Config, logger *zap.Logger) (*Layer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	if !cfg.Enabled {
		logger.Info("cache disabled")
		return NewLayer(nil, cfg, logger), nil
	}

	var (
		store Store
		err   error
	)
	switch cfg.Backend {
	case BackendMemory, "":
		store = NewMemoryStore(cfg.MemoryCapacity)
	case BackendRedis:
		store, err = NewRedisStore(cfg.Redis, logger)
	case BackendBadger:
		store, err = NewBadgerStore(cfg.Badger, logger)
	case BackendTiered:
		var remote *RedisStore
		remote, err = NewRedisStore(cfg.Redis, logger)
		if err == nil {
			store = NewTieredStore(NewMemoryStore(cfg.MemoryCapacity), remote, cfg.LocalTTL, logger)
		}
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s cache: %w", cfg.Backend, err)
	}

	logger.Info("cache opened",
		zap.String("backend", store.Name()),
		zap.Duration("default_ttl", cfg.DefaultTTL),
	)
	return NewLayer(store, cfg, logger), nil
}
