package llm

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/BaSui01/aiorch/types"
)

// RateLimited caps the outbound request rate of a client. Waiting for a token
// observes ctx.
type RateLimited struct {
	next    Client
	limiter *rate.Limiter
}

// NewRateLimited wraps next; rps <= 0 returns next unchanged.
func NewRateLimited(next Client, rps float64, burst int) Client {
	if rps <= 0 || next == nil {
		return next
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{next: next, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Name implements Client.
func (r *RateLimited) Name() string { return r.next.Name() }

// Complete implements Client.
func (r *RateLimited) Complete(ctx context.Context, req Request) (Response, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		if cause := context.Cause(ctx); cause != nil {
			return Response{}, cause
		}
		// Wait fails immediately when the deadline is shorter than the wait.
		return Response{}, types.NewTransientError("local rate limit").WithCode(types.ErrRateLimited).WithCause(err)
	}
	return r.next.Complete(ctx, req)
}
