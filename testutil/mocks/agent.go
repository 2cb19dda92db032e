// StubAgent 是 agent.Agent 的测试桩实现。
//
// 记录 Validate / Execute 调用次数与并发峰值，用于验证并发上限、
// 重试次数与缓存命中等行为。
package mocks

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// StubAgent 可配置的 Agent 测试桩
type StubAgent struct {
	valid     atomic.Bool
	delay     time.Duration
	err       error
	failTimes int32
	output    map[string]any
	execFn    func(ctx context.Context, input map[string]any) (map[string]any, error)

	validateCalls atomic.Int32
	executeCalls  atomic.Int32
	inFlight      atomic.Int32
	maxInFlight   atomic.Int32

	mu          sync.Mutex
	attemptedAt []time.Time
	started     chan struct{}
}

// NewStubAgent 创建默认接受所有输入并回显输入的 StubAgent
func NewStubAgent() *StubAgent {
	s := &StubAgent{started: make(chan struct{}, 1024)}
	s.valid.Store(true)
	return s
}

// WithValid 设置 Validate 的返回值
func (s *StubAgent) WithValid(valid bool) *StubAgent {
	s.valid.Store(valid)
	return s
}

// WithDelay 设置 Execute 耗时；等待期间监听 ctx
func (s *StubAgent) WithDelay(d time.Duration) *StubAgent {
	s.delay = d
	return s
}

// WithError 设置 Execute 总是返回的错误
func (s *StubAgent) WithError(err error) *StubAgent {
	s.err = err
	return s
}

// WithFailTimes 设置前 n 次 Execute 返回 err
func (s *StubAgent) WithFailTimes(n int, err error) *StubAgent {
	s.failTimes = int32(n)
	s.err = err
	return s
}

// WithOutput 设置固定输出
func (s *StubAgent) WithOutput(out map[string]any) *StubAgent {
	s.output = out
	return s
}

// WithExecuteFunc 设置自定义执行逻辑（在延迟之后调用）
func (s *StubAgent) WithExecuteFunc(fn func(ctx context.Context, input map[string]any) (map[string]any, error)) *StubAgent {
	s.execFn = fn
	return s
}

// Validate 实现 agent.Agent
func (s *StubAgent) Validate(map[string]any) bool {
	s.validateCalls.Add(1)
	return s.valid.Load()
}

// Execute 实现 agent.Agent
func (s *StubAgent) Execute(ctx context.Context, input map[string]any) (map[string]any, error) {
	n := s.executeCalls.Add(1)
	cur := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		peak := s.maxInFlight.Load()
		if cur <= peak || s.maxInFlight.CompareAndSwap(peak, cur) {
			break
		}
	}

	s.mu.Lock()
	s.attemptedAt = append(s.attemptedAt, time.Now())
	s.mu.Unlock()
	select {
	case s.started <- struct{}{}:
	default:
	}

	if s.delay > 0 {
		timer := time.NewTimer(s.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	if s.err != nil && (s.failTimes == 0 || n <= s.failTimes) {
		return nil, s.err
	}
	if s.execFn != nil {
		return s.execFn(ctx, input)
	}
	if s.output != nil {
		return s.output, nil
	}
	out := make(map[string]any, len(input)+1)
	for k, v := range input {
		out[k] = v
	}
	out["echo"] = true
	return out, nil
}

// Started 每次 Execute 开始时发送一个信号
func (s *StubAgent) Started() <-chan struct{} { return s.started }

// ValidateCalls 返回 Validate 调用次数
func (s *StubAgent) ValidateCalls() int { return int(s.validateCalls.Load()) }

// ExecuteCalls 返回 Execute 调用次数
func (s *StubAgent) ExecuteCalls() int { return int(s.executeCalls.Load()) }

// MaxInFlight 返回观测到的最大并发执行数
func (s *StubAgent) MaxInFlight() int { return int(s.maxInFlight.Load()) }

// InFlight 返回当前并发执行数
func (s *StubAgent) InFlight() int { return int(s.inFlight.Load()) }

// AttemptGaps 返回相邻两次 Execute 开始时间的间隔
func (s *StubAgent) AttemptGaps() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.attemptedAt) < 2 {
		return nil
	}
	gaps := make([]time.Duration, 0, len(s.attemptedAt)-1)
	for i := 1; i < len(s.attemptedAt); i++ {
		gaps = append(gaps, s.attemptedAt[i].Sub(s.attemptedAt[i-1]))
	}
	return gaps
}
