package types

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

// ModelPreference selects the quality/latency trade-off of the backing model.
type ModelPreference string

const (
	ModelFast     ModelPreference = "fast"
	ModelBalanced ModelPreference = "balanced"
	ModelQuality  ModelPreference = "quality"
	ModelAuto     ModelPreference = "auto"
)

// ParseModelPreference parses a preference, treating empty as auto.
func ParseModelPreference(s string) (ModelPreference, error) {
	switch p := ModelPreference(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return ModelAuto, nil
	case ModelFast, ModelBalanced, ModelQuality, ModelAuto:
		return p, nil
	default:
		return "", fmt.Errorf("unknown model preference %q", s)
	}
}

// ProcessingOptions are the per-request knobs recognised by the orchestrator.
// Durations are expressed in seconds on the wire.
type ProcessingOptions struct {
	ModelPreference ModelPreference `json:"model_preference,omitempty" yaml:"model_preference" validate:"omitempty,oneof=fast balanced quality auto"`
	MaxTokens       int             `json:"max_tokens,omitempty" yaml:"max_tokens" validate:"gte=0,lte=200000"`
	Temperature     *float64        `json:"temperature,omitempty" yaml:"temperature" validate:"omitempty,gte=0,lte=2"`
	TTLOverride     float64         `json:"ttl_override,omitempty" yaml:"ttl_override" validate:"gte=0"`
	TimeoutOverride float64         `json:"timeout_override,omitempty" yaml:"timeout_override" validate:"gte=0"`
	CacheBypass     bool            `json:"cache_bypass,omitempty" yaml:"cache_bypass"`
	// RequestID lets the caller choose the handle id so it can cancel before the result returns.
	RequestID string `json:"request_id,omitempty" yaml:"request_id" validate:"omitempty,max=128,printascii"`
}

// Model returns the effective preference.
func (o ProcessingOptions) Model() ModelPreference {
	if o.ModelPreference == "" {
		return ModelAuto
	}
	return o.ModelPreference
}

// TTL returns the override TTL or def.
func (o ProcessingOptions) TTL(def time.Duration) time.Duration {
	if o.TTLOverride > 0 {
		return secondsToDuration(o.TTLOverride)
	}
	return def
}

// Timeout returns the override deadline or def.
func (o ProcessingOptions) Timeout(def time.Duration) time.Duration {
	if o.TimeoutOverride > 0 {
		return secondsToDuration(o.TimeoutOverride)
	}
	return def
}

// Validate checks the option ranges.
func (o ProcessingOptions) Validate() error {
	if err := Validator().Struct(o); err != nil {
		return NewValidationError(describeValidation(err)).WithCause(err)
	}
	return nil
}

// AgentRequest is a single unit of work. It must not be mutated once submitted.
type AgentRequest struct {
	AgentType string            `json:"agent_type" validate:"required"`
	Input     map[string]any    `json:"input" validate:"required"`
	Options   ProcessingOptions `json:"options"`
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Validator returns the shared validator instance.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

func describeValidation(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return "invalid options: " + strings.Join(parts, "; ")
}
