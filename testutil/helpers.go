// =============================================================================
// 🧪 测试辅助函数
// =============================================================================
// 编排器测试常用的等待与结果断言
//
// 使用方法:
//
//	res, ok := testutil.WaitForChannel(done, 2*time.Second)
//	testutil.AssertErrorKind(t, res, types.KindCancelled)
// =============================================================================
package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/BaSui01/aiorch/types"
)

// =============================================================================
// 🎯 结果断言
// =============================================================================

// RequireSuccess 断言结果成功并返回其 payload
func RequireSuccess(t testing.TB, res types.AgentResult) map[string]any {
	t.Helper()
	if !res.OK() {
		t.Fatalf("expected success for %s, got %s: %v", res.AgentType, res.Status, res.Error)
	}
	return res.Payload
}

// AssertErrorKind 断言结果失败且错误种类为 kind，retryable 需与种类默认值一致
func AssertErrorKind(t testing.TB, res types.AgentResult, kind types.ErrorKind) {
	t.Helper()
	if res.OK() || res.Error == nil {
		t.Errorf("expected %s for %s, got success", kind, res.AgentType)
		return
	}
	if res.Error.Kind != kind {
		t.Errorf("expected %s, got %s (%s)", kind, res.Error.Kind, res.Error.Message)
	}
	if res.Status != types.StatusError {
		t.Errorf("failed result has status %q", res.Status)
	}
}

// =============================================================================
// ⏱️ 等待辅助
// =============================================================================

// WaitFor 轮询直到条件满足或超时
func WaitFor(condition func() bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return condition()
}

// AssertEventuallyTrue 断言条件最终为真
func AssertEventuallyTrue(t testing.TB, condition func() bool, timeout time.Duration) {
	t.Helper()
	if !WaitFor(condition, timeout) {
		t.Errorf("condition did not become true within %v", timeout)
	}
}

// WaitForChannel 等待通道接收或超时
func WaitForChannel[T any](ch <-chan T, timeout time.Duration) (T, bool) {
	select {
	case v := <-ch:
		return v, true
	case <-time.After(timeout):
		var zero T
		return zero, false
	}
}

// =============================================================================
// 🔀 并发辅助
// =============================================================================

// ProcessFunc 与 Orchestrator.Process 同签名
type ProcessFunc func(ctx context.Context, req types.AgentRequest) types.AgentResult

// ProcessConcurrently 同时发起全部请求，返回与请求同序的结果和总耗时
func ProcessConcurrently(ctx context.Context, process ProcessFunc, reqs []types.AgentRequest) ([]types.AgentResult, time.Duration) {
	results := make([]types.AgentResult, len(reqs))
	start := make(chan struct{})

	var wg sync.WaitGroup
	for i, req := range reqs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			results[i] = process(ctx, req)
		}()
	}

	begin := time.Now()
	close(start)
	wg.Wait()
	return results, time.Since(begin)
}
