package llm

import (
	"context"
	"errors"
	"time"

	"github.com/BaSui01/aiorch/types"
)

// ErrNoProvider is returned when no provider is configured.
var ErrNoProvider = errors.New("no llm provider configured")

// Request is a single completion request.
type Request struct {
	System      string
	Prompt      string
	Preference  types.ModelPreference
	MaxTokens   int
	Temperature *float64
}

// Response is a completed generation.
type Response struct {
	Content      string `json:"content"`
	Model        string `json:"model"`
	Provider     string `json:"provider"`
	InputTokens  int64  `json:"input_tokens"`
	OutputTokens int64  `json:"output_tokens"`
}

// Client performs one completion. Implementations must not retry.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
	Name() string
}

// ModelSet maps model preferences onto concrete model names.
type ModelSet struct {
	Fast     string `yaml:"fast" json:"fast" env:"FAST"`
	Balanced string `yaml:"balanced" json:"balanced" env:"BALANCED"`
	Quality  string `yaml:"quality" json:"quality" env:"QUALITY"`
}

// Resolve returns the model for pref. Auto and unknown preferences use Balanced.
func (m ModelSet) Resolve(pref types.ModelPreference) string {
	switch pref {
	case types.ModelFast:
		if m.Fast != "" {
			return m.Fast
		}
	case types.ModelQuality:
		if m.Quality != "" {
			return m.Quality
		}
	}
	return m.Balanced
}

// ProviderConfig configures one upstream provider.
type ProviderConfig struct {
	APIKey            string        `yaml:"api_key" json:"-" env:"API_KEY"`
	BaseURL           string        `yaml:"base_url" json:"base_url" env:"BASE_URL"`
	Models            ModelSet      `yaml:"models" json:"models" env:"MODELS"`
	DefaultMaxTokens  int           `yaml:"default_max_tokens" json:"default_max_tokens" env:"DEFAULT_MAX_TOKENS"`
	Timeout           time.Duration `yaml:"timeout" json:"timeout" env:"TIMEOUT"`
	RequestsPerSecond float64       `yaml:"requests_per_second" json:"requests_per_second" env:"REQUESTS_PER_SECOND"`
	Burst             int           `yaml:"burst" json:"burst" env:"BURST"`
}

// Enabled reports whether the provider has credentials.
func (c ProviderConfig) Enabled() bool {
	return c.APIKey != ""
}

// MaxTokens returns the request limit or the provider default.
func (c ProviderConfig) MaxTokens(requested int) int64 {
	if requested > 0 {
		return int64(requested)
	}
	if c.DefaultMaxTokens > 0 {
		return int64(c.DefaultMaxTokens)
	}
	return 4096
}
