package orchestrator

import (
	"fmt"
	"time"

	"github.com/BaSui01/aiorch/llm/retry"
	"github.com/BaSui01/aiorch/types"
)

// Config bounds concurrency and shapes the resilient execution of agents.
type Config struct {
	MaxConcurrent  int                   `yaml:"max_concurrent" json:"max_concurrent" env:"MAX_CONCURRENT"`
	DefaultTimeout time.Duration         `yaml:"default_timeout" json:"default_timeout" env:"DEFAULT_TIMEOUT"`
	MaxRetries     int                   `yaml:"max_retries" json:"max_retries" env:"MAX_RETRIES"`
	BaseDelay      time.Duration         `yaml:"base_delay" json:"base_delay" env:"BASE_DELAY"`
	MaxDelay       time.Duration         `yaml:"max_delay" json:"max_delay" env:"MAX_DELAY"`
	Jitter         bool                  `yaml:"jitter" json:"jitter" env:"JITTER"`
	DefaultModel   types.ModelPreference `yaml:"default_model" json:"default_model" env:"DEFAULT_MODEL"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent:  10,
		DefaultTimeout: 30 * time.Second,
		MaxRetries:     3,
		BaseDelay:      time.Second,
		MaxDelay:       30 * time.Second,
		DefaultModel:   types.ModelAuto,
	}
}

// Validate rejects configurations the orchestrator cannot start with.
func (c Config) Validate() error {
	if c.MaxConcurrent <= 0 {
		return fmt.Errorf("max_concurrent must be positive, got %d", c.MaxConcurrent)
	}
	if c.DefaultTimeout <= 0 {
		return fmt.Errorf("default_timeout must be positive, got %s", c.DefaultTimeout)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative, got %d", c.MaxRetries)
	}
	if c.BaseDelay <= 0 {
		return fmt.Errorf("base_delay must be positive, got %s", c.BaseDelay)
	}
	if c.MaxDelay > 0 && c.MaxDelay < c.BaseDelay {
		return fmt.Errorf("max_delay %s is below base_delay %s", c.MaxDelay, c.BaseDelay)
	}
	if _, err := types.ParseModelPreference(string(c.DefaultModel)); err != nil {
		return fmt.Errorf("default_model: %w", err)
	}
	return nil
}

// RetryPolicy is the backoff policy applied to transient agent failures.
func (c Config) RetryPolicy() retry.Policy {
	p := retry.DefaultPolicy()
	p.MaxRetries = c.MaxRetries
	p.BaseDelay = c.BaseDelay
	if c.MaxDelay > 0 {
		p.MaxDelay = c.MaxDelay
	}
	p.Jitter = c.Jitter
	return p
}
