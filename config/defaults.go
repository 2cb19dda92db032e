// =============================================================================
// 📦 aiorch 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import (
	"time"

	"github.com/BaSui01/aiorch/agent/builtin"
	"github.com/BaSui01/aiorch/cache"
	"github.com/BaSui01/aiorch/llm"
	"github.com/BaSui01/aiorch/llm/anthropic"
	"github.com/BaSui01/aiorch/llm/openai"
	"github.com/BaSui01/aiorch/orchestrator"
)

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:       DefaultServerConfig(),
		Orchestrator: orchestrator.DefaultConfig(),
		Cache:        cache.DefaultConfig(),
		LLM:          DefaultLLMConfig(),
		Log:          DefaultLogConfig(),
		Telemetry:    DefaultTelemetryConfig(),
		Database:     DefaultDatabaseConfig(),
		Auth:         AuthConfig{},
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:           8080,
		MetricsPort:        0,
		ReadTimeout:        30 * time.Second,
		WriteTimeout:       2 * time.Minute,
		IdleTimeout:        120 * time.Second,
		ShutdownTimeout:    30 * time.Second,
		MaxConnections:     1000,
		RateLimitRPS:       50,
		RateLimitBurst:     100,
		CORSAllowedOrigins: []string{"*"},
	}
}

// DefaultLLMConfig 返回默认 LLM 配置，API Key 需通过环境变量提供
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Anthropic: llm.ProviderConfig{
			Models:            anthropic.DefaultModels,
			DefaultMaxTokens:  4096,
			Timeout:           2 * time.Minute,
			RequestsPerSecond: 10,
			Burst:             20,
		},
		OpenAI: llm.ProviderConfig{
			Models:            openai.DefaultModels,
			DefaultMaxTokens:  4096,
			Timeout:           2 * time.Minute,
			RequestsPerSecond: 10,
			Burst:             20,
		},
		TokenEncoding: "cl100k_base",
		PromptBudget:  builtin.DefaultPromptBudget,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "aiorch",
		SampleRate:   0.1,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置，结果日志默认关闭
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Enabled:         false,
		Driver:          "postgres",
		Host:            "localhost",
		Port:            5432,
		User:            "aiorch",
		Password:        "",
		Name:            "aiorch",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		AutoMigrate:     true,
	}
}
