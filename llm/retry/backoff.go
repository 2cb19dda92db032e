package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/aiorch/types"
)

// Policy 定义重试策略配置
type Policy struct {
	MaxRetries  int                                               // 额外重试次数（0 表示不重试）
	BaseDelay   time.Duration                                     // 第一次重试前的等待时间
	MaxDelay    time.Duration                                     // 单次等待上限
	Multiplier  float64                                           // 指数退避倍数
	Jitter      bool                                              // 是否添加 ±25% 随机抖动
	ShouldRetry func(err error) bool                              // 可重试判定（默认仅 Transient）
	OnRetry     func(attempt int, err error, delay time.Duration) // 每次等待前回调
}

// DefaultPolicy 返回默认的重试策略
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		MaxDelay:   30 * time.Second,
		Multiplier: 2.0,
	}
}

// IsTransient 是默认的可重试判定：只有 Transient 类错误会被重试
func IsTransient(err error) bool {
	return types.KindOf(err) == types.KindTransient
}

// Retryer 重试器接口
type Retryer interface {
	// Do 执行 fn，按策略重试；返回实际执行次数与最后一次错误
	Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) (int, error)
}

// backoffRetryer 基于指数退避的重试器实现
type backoffRetryer struct {
	policy Policy
	logger *zap.Logger
}

// NewBackoffRetryer 创建指数退避重试器
func NewBackoffRetryer(policy Policy, logger *zap.Logger) Retryer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = time.Second
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = 30 * time.Second
	}
	if policy.Multiplier < 1.0 {
		policy.Multiplier = 2.0
	}
	if policy.ShouldRetry == nil {
		policy.ShouldRetry = IsTransient
	}
	return &backoffRetryer{
		policy: policy,
		logger: logger.With(zap.String("component", "retry")),
	}
}

// Do 实现 Retryer.Do
// 等待期间监听 ctx，取消或超时后立即返回 ctx 的 cause
func (r *backoffRetryer) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) (int, error) {
	var lastErr error
	attempts := 0

	for attempt := 0; attempt <= r.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := r.policy.Delay(attempt - 1)

			r.logger.Debug("retrying",
				zap.Int("attempt", attempt),
				zap.Int("max_retries", r.policy.MaxRetries),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)

			if r.policy.OnRetry != nil {
				r.policy.OnRetry(attempt, lastErr, delay)
			}

			if err := Sleep(ctx, delay); err != nil {
				return attempts, err
			}
		} else if err := ctx.Err(); err != nil {
			return attempts, context.Cause(ctx)
		}

		attempts++
		lastErr = fn(ctx, attempt)
		if lastErr == nil {
			if attempt > 0 {
				r.logger.Debug("retry succeeded", zap.Int("attempt", attempt))
			}
			return attempts, nil
		}

		if !r.policy.ShouldRetry(lastErr) {
			return attempts, lastErr
		}
	}

	r.logger.Warn("retries exhausted",
		zap.Int("attempts", attempts),
		zap.Error(lastErr),
	)
	return attempts, fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}

// Delay 计算第 n 次重试（从 0 开始）前的等待时间：BaseDelay * Multiplier^n
func (p Policy) Delay(n int) time.Duration {
	delay := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(n))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	if p.Jitter {
		jitter := delay * 0.25
		delay += (rand.Float64()*2 - 1) * jitter
	}
	if delay < float64(p.BaseDelay) {
		delay = float64(p.BaseDelay)
	}
	return time.Duration(delay)
}

// Sleep 挂起 d，期间 ctx 结束则返回 context.Cause(ctx)
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return context.Cause(ctx)
	case <-timer.C:
		return nil
	}
}
