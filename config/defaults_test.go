package config

import (
	"testing"
	"time"

	"github.com/BaSui01/aiorch/cache"
	"github.com/BaSui01/aiorch/llm"
	"github.com/BaSui01/aiorch/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- DefaultConfig aggregate ---

func TestDefaultConfig_ContainsAllSubConfigs(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)

	assert.NotEqual(t, ServerConfig{}, cfg.Server)
	assert.NotEqual(t, LLMConfig{}, cfg.LLM)
	assert.NotEqual(t, LogConfig{}, cfg.Log)
	assert.NotEqual(t, TelemetryConfig{}, cfg.Telemetry)
	assert.NotEqual(t, DatabaseConfig{}, cfg.Database)
	assert.Equal(t, AuthConfig{}, cfg.Auth)
	assert.NoError(t, cfg.Validate())
}

func TestDefaultConfig_ProductDefaults(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 10, cfg.Orchestrator.MaxConcurrent)
	assert.Equal(t, 30*time.Second, cfg.Orchestrator.DefaultTimeout)
	assert.Equal(t, 3, cfg.Orchestrator.MaxRetries)
	assert.Equal(t, time.Second, cfg.Orchestrator.BaseDelay)
	assert.Equal(t, 30*time.Second, cfg.Orchestrator.MaxDelay)
	assert.Equal(t, types.ModelAuto, cfg.Orchestrator.DefaultModel)

	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, cache.BackendMemory, cfg.Cache.Backend)
	assert.Equal(t, time.Hour, cfg.Cache.DefaultTTL)
	assert.Equal(t, "battlecard", cfg.Cache.KeyPrefix)
	assert.Equal(t, "development", cfg.Cache.Environment)
	assert.Equal(t, 1000, cfg.Cache.MemoryCapacity)
}

// --- Individual Default*Config functions ---

func TestDefaultServerConfig(t *testing.T) {
	cfg := DefaultServerConfig()
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, 0, cfg.MetricsPort)
	assert.Equal(t, 30*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Greater(t, cfg.WriteTimeout, DefaultConfig().Orchestrator.DefaultTimeout,
		"responses must outlive the agent deadline")
	assert.Positive(t, cfg.MaxConnections)
	assert.Positive(t, cfg.RateLimitRPS)
	assert.Empty(t, cfg.TLSCertFile)
}

func TestDefaultLLMConfig(t *testing.T) {
	cfg := DefaultLLMConfig()

	for name, p := range map[string]llm.ProviderConfig{"anthropic": cfg.Anthropic, "openai": cfg.OpenAI} {
		assert.False(t, p.Enabled(), "%s has no key by default", name)
		assert.NotEmpty(t, p.Models.Fast, name)
		assert.NotEmpty(t, p.Models.Balanced, name)
		assert.NotEmpty(t, p.Models.Quality, name)
		assert.Equal(t, 4096, p.DefaultMaxTokens, name)
	}
	assert.Equal(t, "cl100k_base", cfg.TokenEncoding)
	assert.Positive(t, cfg.PromptBudget)
}

func TestDefaultLogConfig(t *testing.T) {
	cfg := DefaultLogConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, []string{"stdout"}, cfg.OutputPaths)
	assert.True(t, cfg.EnableCaller)
	assert.False(t, cfg.EnableStacktrace)
}

func TestDefaultTelemetryConfig(t *testing.T) {
	cfg := DefaultTelemetryConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "localhost:4317", cfg.OTLPEndpoint)
	assert.Equal(t, "aiorch", cfg.ServiceName)
	assert.Equal(t, 0.1, cfg.SampleRate)
}

func TestDefaultDatabaseConfig(t *testing.T) {
	cfg := DefaultDatabaseConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "postgres", cfg.Driver)
	assert.Equal(t, 5432, cfg.Port)
	assert.Equal(t, 25, cfg.MaxOpenConns)
	assert.Equal(t, 5, cfg.MaxIdleConns)
	assert.Equal(t, 5*time.Minute, cfg.ConnMaxLifetime)
	assert.True(t, cfg.AutoMigrate)
}
