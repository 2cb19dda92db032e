package retry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/aiorch/types"
)

func fastPolicy(maxRetries int) Policy {
	return Policy{
		MaxRetries: maxRetries,
		BaseDelay:  5 * time.Millisecond,
		MaxDelay:   time.Second,
		Multiplier: 2.0,
	}
}

func TestBackoffRetryer_Success(t *testing.T) {
	retryer := NewBackoffRetryer(fastPolicy(3), zap.NewNop())

	calls := 0
	attempts, err := retryer.Do(context.Background(), func(context.Context, int) error {
		calls++
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, calls, "应该只调用一次")
	assert.Equal(t, 1, attempts)
}

func TestBackoffRetryer_RetryAndSuccess(t *testing.T) {
	retryer := NewBackoffRetryer(fastPolicy(3), zap.NewNop())

	calls := 0
	attempts, err := retryer.Do(context.Background(), func(context.Context, int) error {
		calls++
		if calls < 3 {
			return types.NewTransientError("rate limited")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls, "应该调用三次")
	assert.Equal(t, 3, attempts)
}

func TestBackoffRetryer_ExhaustsWithIncreasingDelays(t *testing.T) {
	var mu sync.Mutex
	var delays []time.Duration
	policy := fastPolicy(3)
	policy.OnRetry = func(_ int, _ error, d time.Duration) {
		mu.Lock()
		delays = append(delays, d)
		mu.Unlock()
	}
	retryer := NewBackoffRetryer(policy, zap.NewNop())

	calls := 0
	attempts, err := retryer.Do(context.Background(), func(context.Context, int) error {
		calls++
		return types.NewTransientError("still busy")
	})

	require.Error(t, err)
	assert.Equal(t, 4, calls, "maxRetries+1 次调用")
	assert.Equal(t, 4, attempts)
	assert.Equal(t, types.KindTransient, types.KindOf(err))

	require.Len(t, delays, 3)
	for i := 1; i < len(delays); i++ {
		assert.Greater(t, delays[i], delays[i-1])
	}
	assert.Equal(t, []time.Duration{5 * time.Millisecond, 10 * time.Millisecond, 20 * time.Millisecond}, delays)
}

func TestBackoffRetryer_PermanentNotRetried(t *testing.T) {
	retryer := NewBackoffRetryer(fastPolicy(3), zap.NewNop())

	calls := 0
	_, err := retryer.Do(context.Background(), func(context.Context, int) error {
		calls++
		return types.NewPermanentError("bad request")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, types.KindPermanent, types.KindOf(err))
}

func TestBackoffRetryer_UnclassifiedNotRetried(t *testing.T) {
	retryer := NewBackoffRetryer(fastPolicy(3), zap.NewNop())

	calls := 0
	_, err := retryer.Do(context.Background(), func(context.Context, int) error {
		calls++
		return errors.New("boom")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestBackoffRetryer_CancelledDuringWait(t *testing.T) {
	policy := fastPolicy(3)
	policy.BaseDelay = time.Second
	retryer := NewBackoffRetryer(policy, zap.NewNop())

	ctx, cancel := context.WithCancelCause(context.Background())
	stop := errors.New("stopped by caller")

	calls := 0
	start := time.Now()
	_, err := retryer.Do(ctx, func(context.Context, int) error {
		calls++
		go func() {
			time.Sleep(10 * time.Millisecond)
			cancel(stop)
		}()
		return types.NewTransientError("busy")
	})

	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestBackoffRetryer_ContextDoneBeforeFirstAttempt(t *testing.T) {
	retryer := NewBackoffRetryer(fastPolicy(3), zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts, err := retryer.Do(ctx, func(context.Context, int) error {
		t.Fatal("fn must not run")
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, attempts)
}

func TestPolicy_Delay(t *testing.T) {
	p := Policy{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2}

	assert.Equal(t, 100*time.Millisecond, p.Delay(0))
	assert.Equal(t, 200*time.Millisecond, p.Delay(1))
	assert.Equal(t, 400*time.Millisecond, p.Delay(2))
	assert.Equal(t, time.Second, p.Delay(10), "capped at MaxDelay")

	p.Jitter = true
	for i := 0; i < 50; i++ {
		d := p.Delay(2)
		assert.GreaterOrEqual(t, d, 300*time.Millisecond)
		assert.LessOrEqual(t, d, 500*time.Millisecond)
	}
}

func TestDoWithResult(t *testing.T) {
	retryer := NewBackoffRetryer(fastPolicy(2), zap.NewNop())

	val, attempts, err := DoWithResult(retryer, context.Background(), func(_ context.Context, attempt int) (string, error) {
		if attempt == 0 {
			return "", types.NewTransientError("warming up")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", val)
	assert.Equal(t, 2, attempts)
}
