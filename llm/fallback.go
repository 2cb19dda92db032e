package llm

import (
	"context"

	"go.uber.org/zap"
)

// FallbackClient calls primary first and fallback when primary fails.
type FallbackClient struct {
	primary  Client
	fallback Client
	logger   *zap.Logger
}

// NewFallbackClient chains the given clients, skipping nil ones. It returns nil
// when both are nil.
func NewFallbackClient(primary, fallback Client, logger *zap.Logger) Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch {
	case primary == nil && fallback == nil:
		return nil
	case primary == nil:
		return fallback
	case fallback == nil:
		return primary
	}
	return &FallbackClient{
		primary:  primary,
		fallback: fallback,
		logger:   logger.With(zap.String("component", "llm_fallback")),
	}
}

// Name implements Client.
func (c *FallbackClient) Name() string {
	return c.primary.Name() + ">" + c.fallback.Name()
}

// Complete implements Client. When both fail the primary's error is returned.
func (c *FallbackClient) Complete(ctx context.Context, req Request) (Response, error) {
	resp, err := c.primary.Complete(ctx, req)
	if err == nil {
		return resp, nil
	}
	if ctx.Err() != nil {
		return Response{}, err
	}

	c.logger.Warn("primary provider failed, trying fallback",
		zap.String("primary", c.primary.Name()),
		zap.String("fallback", c.fallback.Name()),
		zap.Error(err),
	)
	resp, fbErr := c.fallback.Complete(ctx, req)
	if fbErr != nil {
		c.logger.Warn("fallback provider failed", zap.Error(fbErr))
		return Response{}, err
	}
	return resp, nil
}
