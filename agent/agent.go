package agent

import (
	"context"

	"github.com/BaSui01/aiorch/types"
)

// Agent is the uniform contract every pluggable processor implements.
type Agent interface {
	// Validate is cheap, synchronous and side-effect free.
	Validate(input map[string]any) bool
	// Execute performs the work. Failures should be marked with Transient or Permanent.
	Execute(ctx context.Context, input map[string]any) (map[string]any, error)
}

// Func adapts plain functions to the Agent contract. A nil ValidateFn accepts every input.
type Func struct {
	ValidateFn func(input map[string]any) bool
	ExecuteFn  func(ctx context.Context, input map[string]any) (map[string]any, error)
}

// Validate implements Agent.
func (f Func) Validate(input map[string]any) bool {
	if f.ValidateFn == nil {
		return true
	}
	return f.ValidateFn(input)
}

// Execute implements Agent.
func (f Func) Execute(ctx context.Context, input map[string]any) (map[string]any, error) {
	if f.ExecuteFn == nil {
		return nil, Permanent(ErrNoExecutor)
	}
	return f.ExecuteFn(ctx, input)
}

// Transient marks err as retry-amenable. Already classified errors are returned unchanged.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := types.AsError(err); ok {
		return err
	}
	return types.NewTransientError(err.Error()).WithCause(err)
}

// Permanent marks err as not retryable. Already classified errors are returned unchanged.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := types.AsError(err); ok {
		return err
	}
	return types.NewPermanentError(err.Error()).WithCause(err)
}

// RequireFields returns a validator that accepts inputs carrying every key with a non-empty value.
func RequireFields(fields ...string) func(map[string]any) bool {
	return func(input map[string]any) bool {
		for _, f := range fields {
			v, ok := input[f]
			if !ok || v == nil {
				return false
			}
			if s, isString := v.(string); isString && s == "" {
				return false
			}
		}
		return true
	}
}
