// MockClient 是 llm.Client 的测试模拟实现。
//
// 支持固定响应、错误注入、前 N 次失败与延迟场景。
package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/BaSui01/aiorch/llm"
)

// MockClient 是 llm.Client 的模拟实现
type MockClient struct {
	mu sync.Mutex

	name     string
	response llm.Response
	err      error

	failTimes int
	failErr   error
	delay     time.Duration
	fn        func(ctx context.Context, req llm.Request) (llm.Response, error)

	calls []llm.Request
}

// NewMockClient 创建返回固定内容的 MockClient
func NewMockClient() *MockClient {
	return &MockClient{
		name: "mock",
		response: llm.Response{
			Content:      "Mock response",
			Model:        "mock-model",
			Provider:     "mock",
			InputTokens:  10,
			OutputTokens: 20,
		},
	}
}

// WithName 设置 Provider 名称
func (m *MockClient) WithName(name string) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.name = name
	m.response.Provider = name
	return m
}

// WithResponse 设置固定响应内容
func (m *MockClient) WithResponse(content string) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.response.Content = content
	return m
}

// WithError 设置每次调用都返回的错误
func (m *MockClient) WithError(err error) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithFailTimes 设置前 n 次调用返回 err，之后正常响应
func (m *MockClient) WithFailTimes(n int, err error) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failTimes = n
	m.failErr = err
	return m
}

// WithDelay 设置响应延迟，延迟期间监听 ctx
func (m *MockClient) WithDelay(d time.Duration) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// WithCompleteFunc 设置自定义 Complete 函数
func (m *MockClient) WithCompleteFunc(fn func(ctx context.Context, req llm.Request) (llm.Response, error)) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fn = fn
	return m
}

// Name 实现 llm.Client
func (m *MockClient) Name() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.name
}

// Complete 实现 llm.Client
func (m *MockClient) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	n := len(m.calls)
	delay, fn, err, resp := m.delay, m.fn, m.err, m.response
	if n <= m.failTimes {
		err = m.failErr
	}
	m.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return llm.Response{}, ctx.Err()
		case <-timer.C:
		}
	}
	if err != nil {
		return llm.Response{}, err
	}
	if fn != nil {
		return fn(ctx, req)
	}
	return resp, nil
}

// Calls 返回所有调用请求的副本
func (m *MockClient) Calls() []llm.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]llm.Request, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount 返回调用次数
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// LastRequest 返回最后一次请求
func (m *MockClient) LastRequest() (llm.Request, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return llm.Request{}, false
	}
	return m.calls[len(m.calls)-1], true
}

// Reset 清空调用记录
func (m *MockClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}
