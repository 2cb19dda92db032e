package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/BaSui01/aiorch/agent"
	"github.com/BaSui01/aiorch/cache"
	"github.com/BaSui01/aiorch/testutil"
	"github.com/BaSui01/aiorch/testutil/mocks"
	"github.com/BaSui01/aiorch/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type harness struct {
	orch  *Orchestrator
	reg   *agent.Registry
	store *cache.MemoryStore
}

func newHarness(t *testing.T, maxConcurrent int, agents map[string]agent.Agent) *harness {
	t.Helper()
	reg := agent.NewRegistry(nil)
	for name, a := range agents {
		reg.RegisterAgent(name, a)
	}
	store := cache.NewMemoryStore(100)
	layer := cache.NewLayer(store, cache.DefaultConfig(), zap.NewNop())

	cfg := DefaultConfig()
	cfg.MaxConcurrent = maxConcurrent
	cfg.BaseDelay = 5 * time.Millisecond
	cfg.DefaultTimeout = 5 * time.Second

	o, err := New(cfg, reg, layer, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, o.Close(ctx))
		assert.NoError(t, layer.Close())
	})
	return &harness{orch: o, reg: reg, store: store}
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	for _, n := range []int{0, -1} {
		cfg := DefaultConfig()
		cfg.MaxConcurrent = n
		_, err := New(cfg, agent.NewRegistry(nil), nil, nil)
		assert.Error(t, err, "max_concurrent=%d", n)
	}

	_, err := New(DefaultConfig(), nil, nil, nil)
	assert.Error(t, err)
}

func TestProcess_UnknownAgent(t *testing.T) {
	h := newHarness(t, 2, nil)
	res := h.orch.Process(context.Background(), types.AgentRequest{AgentType: "nope", Input: map[string]any{}})

	require.False(t, res.OK())
	assert.Equal(t, types.KindValidation, res.Error.Kind)
	assert.Equal(t, types.ErrUnknownAgent, res.Error.Code)
}

func TestProcess_InvalidOptions(t *testing.T) {
	stub := mocks.NewStubAgent()
	h := newHarness(t, 2, map[string]agent.Agent{"scorer": stub})

	res := h.orch.Process(context.Background(), types.AgentRequest{
		AgentType: "scorer",
		Input:     map[string]any{},
		Options:   types.ProcessingOptions{ModelPreference: "turbo"},
	})
	assert.Equal(t, types.KindValidation, res.Error.Kind)
	assert.Zero(t, stub.ExecuteCalls())
}

func TestProcess_CacheHitLeavesHealthUntouched(t *testing.T) {
	stub := mocks.NewStubAgent().WithOutput(map[string]any{"score": 0.75, "labels": []any{"a", "b"}})
	h := newHarness(t, 2, map[string]agent.Agent{"scorer": stub})
	ctx := context.Background()

	first := h.orch.Process(ctx, types.AgentRequest{
		AgentType: "scorer",
		Input:     map[string]any{"content": "x", "lang": "en"},
	})
	require.True(t, first.OK())
	assert.False(t, first.Cached)
	before := h.orch.HealthStats("scorer")

	// Same logical input, different construction order.
	in := map[string]any{}
	in["lang"] = "en"
	in["content"] = "x"
	second := h.orch.Process(ctx, types.AgentRequest{AgentType: "scorer", Input: in})

	require.True(t, second.OK())
	assert.True(t, second.Cached)
	assert.Equal(t, 1, stub.ExecuteCalls())
	assert.Equal(t, before, h.orch.HealthStats("scorer"))

	a, err := json.Marshal(first.Payload)
	require.NoError(t, err)
	b, err := json.Marshal(second.Payload)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))

	stats := h.orch.Status(ctx).CacheStats
	assert.EqualValues(t, 1, stats.Hits)
	assert.EqualValues(t, 1, stats.Sets)
}

func TestProcess_ModelPreferenceSeparatesCacheEntries(t *testing.T) {
	stub := mocks.NewStubAgent()
	h := newHarness(t, 2, map[string]agent.Agent{"scorer": stub})
	ctx := context.Background()
	in := map[string]any{"content": "x"}

	h.orch.Process(ctx, types.AgentRequest{AgentType: "scorer", Input: in, Options: types.ProcessingOptions{ModelPreference: types.ModelFast}})
	h.orch.Process(ctx, types.AgentRequest{AgentType: "scorer", Input: in, Options: types.ProcessingOptions{ModelPreference: types.ModelQuality}})
	res := h.orch.Process(ctx, types.AgentRequest{AgentType: "scorer", Input: in, Options: types.ProcessingOptions{ModelPreference: types.ModelFast}})

	assert.True(t, res.Cached)
	assert.Equal(t, 2, stub.ExecuteCalls())
}

func TestProcess_ErrorsAreNotCached(t *testing.T) {
	stub := mocks.NewStubAgent().WithFailTimes(1, agent.Permanent(fmt.Errorf("bad")))
	h := newHarness(t, 2, map[string]agent.Agent{"scorer": stub})
	ctx := context.Background()
	req := types.AgentRequest{AgentType: "scorer", Input: map[string]any{"content": "x"}}

	assert.False(t, h.orch.Process(ctx, req).OK())
	res := h.orch.Process(ctx, req)
	assert.True(t, res.OK())
	assert.False(t, res.Cached)
	assert.Equal(t, 2, stub.ExecuteCalls())
}

func TestProcess_CacheBypass(t *testing.T) {
	stub := mocks.NewStubAgent()
	h := newHarness(t, 2, map[string]agent.Agent{"scorer": stub})
	ctx := context.Background()
	req := types.AgentRequest{
		AgentType: "scorer",
		Input:     map[string]any{"content": "x"},
		Options:   types.ProcessingOptions{CacheBypass: true},
	}

	h.orch.Process(ctx, req)
	res := h.orch.Process(ctx, req)
	assert.False(t, res.Cached)
	assert.Equal(t, 2, stub.ExecuteCalls())
	assert.Zero(t, h.store.Len())
}

func TestProcess_TTLExpiryReinvokes(t *testing.T) {
	stub := mocks.NewStubAgent()
	h := newHarness(t, 2, map[string]agent.Agent{"scorer": stub})
	ctx := context.Background()
	req := types.AgentRequest{
		AgentType: "scorer",
		Input:     map[string]any{"content": "x"},
		Options:   types.ProcessingOptions{TTLOverride: 1},
	}

	require.True(t, h.orch.Process(ctx, req).OK())
	assert.True(t, h.orch.Process(ctx, req).Cached)

	time.Sleep(1100 * time.Millisecond)

	res := h.orch.Process(ctx, req)
	assert.True(t, res.OK())
	assert.False(t, res.Cached)
	assert.Equal(t, 2, stub.ExecuteCalls())
}

func TestProcess_CapacityBoundsConcurrency(t *testing.T) {
	stub := mocks.NewStubAgent().WithDelay(100 * time.Millisecond)
	h := newHarness(t, 2, map[string]agent.Agent{"scorer": stub})

	reqs := make([]types.AgentRequest, 5)
	for i := range reqs {
		reqs[i] = types.AgentRequest{AgentType: "scorer", Input: map[string]any{"n": i}}
	}
	results, elapsed := testutil.ProcessConcurrently(context.Background(), h.orch.Process, reqs)

	for _, r := range results {
		testutil.RequireSuccess(t, r)
	}
	assert.Equal(t, 5, stub.ExecuteCalls())
	assert.Equal(t, 2, stub.MaxInFlight())
	assert.GreaterOrEqual(t, elapsed, 300*time.Millisecond)
	assert.Less(t, elapsed, 600*time.Millisecond)
	assert.Zero(t, h.orch.Status(context.Background()).ActiveRequests)
}

func TestProcess_CapacityIsSharedAcrossAgentTypes(t *testing.T) {
	a := mocks.NewStubAgent().WithDelay(50 * time.Millisecond)
	b := mocks.NewStubAgent().WithDelay(50 * time.Millisecond)
	h := newHarness(t, 1, map[string]agent.Agent{"scorer": a, "summarizer": b})

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		for _, name := range []string{"scorer", "summarizer"} {
			wg.Add(1)
			go func(name string, i int) {
				defer wg.Done()
				h.orch.Process(context.Background(), types.AgentRequest{AgentType: name, Input: map[string]any{"n": i}})
			}(name, i)
		}
	}
	wg.Wait()
	assert.Equal(t, 1, a.MaxInFlight())
	assert.Equal(t, 1, b.MaxInFlight())
}

func TestCancel(t *testing.T) {
	stub := mocks.NewStubAgent().WithDelay(5 * time.Second)
	h := newHarness(t, 2, map[string]agent.Agent{"scorer": stub})

	assert.False(t, h.orch.Cancel("does-not-exist"))

	done := make(chan types.AgentResult, 1)
	go func() {
		done <- h.orch.Process(context.Background(), types.AgentRequest{
			AgentType: "scorer",
			Input:     map[string]any{},
			Options:   types.ProcessingOptions{RequestID: "req-1"},
		})
	}()
	<-stub.Started()

	active := h.orch.ActiveRequests()
	require.Len(t, active, 1)
	assert.Equal(t, "req-1", active[0].ID)

	assert.True(t, h.orch.Cancel("req-1"))

	res, ok := testutil.WaitForChannel(done, 2*time.Second)
	require.True(t, ok)
	testutil.AssertErrorKind(t, res, types.KindCancelled)
	assert.Equal(t, "req-1", res.RequestID)
	assert.Equal(t, 1, stub.ExecuteCalls())

	assert.False(t, h.orch.Cancel("req-1"))
	assert.Empty(t, h.orch.ActiveRequests())
}

func TestCancel_RacingCompletion(t *testing.T) {
	h := newHarness(t, 2, map[string]agent.Agent{"scorer": mocks.NewStubAgent()})

	for i := 0; i < 50; i++ {
		id := fmt.Sprintf("quick-%d", i)
		done := make(chan types.AgentResult, 1)
		go func() {
			done <- h.orch.Process(context.Background(), types.AgentRequest{
				AgentType: "scorer",
				Input:     map[string]any{},
				Options:   types.ProcessingOptions{RequestID: id, CacheBypass: true},
			})
		}()
		cancelled := h.orch.Cancel(id)
		res, ok := testutil.WaitForChannel(done, 2*time.Second)
		require.True(t, ok)
		if res.OK() {
			continue
		}
		assert.True(t, cancelled, "request %s failed without being cancelled", id)
		testutil.AssertErrorKind(t, res, types.KindCancelled)
	}
	assert.False(t, h.orch.Cancel("quick-0"))
	assert.Empty(t, h.orch.ActiveRequests())
}

func TestProcess_PluginPanicsAreInternal(t *testing.T) {
	reg := agent.NewRegistry(nil)
	reg.RegisterAgent("scorer", agent.Func{ValidateFn: func(in map[string]any) bool {
		return len(in)/len(in) == 1
	}})
	reg.Register("broken", func() (agent.Agent, error) {
		panic("factory boom")
	})
	o, err := New(DefaultConfig(), reg, nil, nil)
	require.NoError(t, err)
	defer o.Close(context.Background())

	for _, agentType := range []string{"scorer", "broken"} {
		var res types.AgentResult
		require.NotPanics(t, func() {
			res = o.Process(context.Background(), types.AgentRequest{AgentType: agentType, Input: map[string]any{}})
		}, agentType)
		testutil.AssertErrorKind(t, res, types.KindInternal)
		assert.Equal(t, "internal error", res.Error.Message, agentType)
		assert.NotEmpty(t, res.RequestID, agentType)
		assert.Empty(t, o.ActiveRequests(), agentType)
	}

	assert.EqualValues(t, 1, o.executor.Health().Stats("scorer").ErrorCount)
}

func TestCancel_DuringBackoff(t *testing.T) {
	stub := mocks.NewStubAgent().WithError(types.NewTransientError("busy"))
	reg := agent.NewRegistry(nil)
	reg.RegisterAgent("scorer", stub)
	cfg := DefaultConfig()
	cfg.BaseDelay = time.Second
	o, err := New(cfg, reg, nil, nil)
	require.NoError(t, err)
	defer o.Close(context.Background())

	done := make(chan types.AgentResult, 1)
	go func() {
		done <- o.Process(context.Background(), types.AgentRequest{
			AgentType: "scorer", Input: map[string]any{},
			Options: types.ProcessingOptions{RequestID: "backoff"},
		})
	}()
	<-stub.Started()
	testutil.AssertEventuallyTrue(t, func() bool { return o.Cancel("backoff") }, time.Second)

	res, ok := testutil.WaitForChannel(done, 2*time.Second)
	require.True(t, ok)
	testutil.AssertErrorKind(t, res, types.KindCancelled)
	assert.Equal(t, 1, stub.ExecuteCalls())
}

func TestProcess_DuplicateRequestID(t *testing.T) {
	stub := mocks.NewStubAgent().WithDelay(200 * time.Millisecond)
	h := newHarness(t, 2, map[string]agent.Agent{"scorer": stub})
	opts := types.ProcessingOptions{RequestID: "dup", CacheBypass: true}

	go h.orch.Process(context.Background(), types.AgentRequest{AgentType: "scorer", Input: map[string]any{}, Options: opts})
	<-stub.Started()

	res := h.orch.Process(context.Background(), types.AgentRequest{AgentType: "scorer", Input: map[string]any{}, Options: opts})
	assert.Equal(t, types.KindValidation, res.Error.Kind)
	assert.Equal(t, types.ErrDuplicateRequest, res.Error.Code)
}

func TestProcess_GeneratesUniqueIDs(t *testing.T) {
	stub := mocks.NewStubAgent()
	h := newHarness(t, 4, map[string]agent.Agent{"scorer": stub})

	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		res := h.orch.Process(context.Background(), types.AgentRequest{
			AgentType: "scorer",
			Input:     map[string]any{"i": i},
		})
		require.NotEmpty(t, res.RequestID)
		assert.False(t, seen[res.RequestID])
		seen[res.RequestID] = true
	}
}

func TestProcess_CallerContextCancelledWhileWaitingForSlot(t *testing.T) {
	stub := mocks.NewStubAgent().WithDelay(300 * time.Millisecond)
	h := newHarness(t, 1, map[string]agent.Agent{"scorer": stub})

	go h.orch.Process(context.Background(), types.AgentRequest{AgentType: "scorer", Input: map[string]any{"a": 1}})
	<-stub.Started()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	res := h.orch.Process(ctx, types.AgentRequest{AgentType: "scorer", Input: map[string]any{"b": 2}})

	assert.Equal(t, types.KindTimeout, res.Error.Kind)
	assert.Equal(t, 1, stub.ExecuteCalls())
}

func TestProcessBatch_PreservesOrder(t *testing.T) {
	stub := mocks.NewStubAgent().WithDelay(10 * time.Millisecond)
	h := newHarness(t, 3, map[string]agent.Agent{"scorer": stub})

	reqs := make([]types.AgentRequest, 6)
	for i := range reqs {
		reqs[i] = types.AgentRequest{AgentType: "scorer", Input: map[string]any{"n": i}}
	}
	reqs[4].AgentType = "unknown"

	results := h.orch.ProcessBatch(context.Background(), reqs)
	require.Len(t, results, 6)
	for i, r := range results {
		if i == 4 {
			assert.False(t, r.OK())
			continue
		}
		require.True(t, r.OK())
		assert.Equal(t, i, r.Payload["n"])
	}
	assert.LessOrEqual(t, stub.MaxInFlight(), 3)
}

func TestStatus(t *testing.T) {
	h := newHarness(t, 7, map[string]agent.Agent{
		"scorer":     mocks.NewStubAgent(),
		"summarizer": mocks.NewStubAgent().WithValid(false),
	})
	ctx := context.Background()
	h.orch.Process(ctx, types.AgentRequest{AgentType: "summarizer", Input: map[string]any{}})

	st := h.orch.Status(ctx)
	assert.Equal(t, 7, st.MaxConcurrency)
	assert.Zero(t, st.ActiveRequests)
	assert.Equal(t, []string{"scorer", "summarizer"}, st.AvailableAgentTypes)
	assert.Equal(t, "memory", st.CacheStats.Backend)
	assert.Equal(t, cache.StatusConnected, st.CacheStats.Status)
	assert.Equal(t, HealthHealthy, st.Health["scorer"].Status)
	assert.Equal(t, HealthUnhealthy, st.Health["summarizer"].Status)
	assert.WithinDuration(t, time.Now(), st.Timestamp, time.Second)
}

func TestStatus_WithoutCache(t *testing.T) {
	o, err := New(DefaultConfig(), agent.NewRegistry(nil), nil, nil)
	require.NoError(t, err)
	defer o.Close(context.Background())

	assert.Equal(t, cache.StatusDisabled, o.Status(context.Background()).CacheStats.Status)
}

func TestClose(t *testing.T) {
	stub := mocks.NewStubAgent().WithDelay(5 * time.Second)
	reg := agent.NewRegistry(nil)
	reg.RegisterAgent("scorer", stub)
	o, err := New(DefaultConfig(), reg, nil, nil)
	require.NoError(t, err)

	done := make(chan types.AgentResult, 1)
	go func() {
		done <- o.Process(context.Background(), types.AgentRequest{AgentType: "scorer", Input: map[string]any{}})
	}()
	<-stub.Started()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.False(t, o.Closed())
	require.NoError(t, o.Close(ctx))
	assert.True(t, o.Closed())

	res := <-done
	assert.Equal(t, types.KindCancelled, res.Error.Kind)

	after := o.Process(context.Background(), types.AgentRequest{AgentType: "scorer", Input: map[string]any{}})
	assert.Equal(t, types.KindInternal, after.Error.Kind)
	assert.Equal(t, types.ErrOrchestratorClosed, after.Error.Code)
	assert.NoError(t, o.Close(ctx))
}

type memJournal struct {
	mu      sync.Mutex
	results []types.AgentResult
}

func (j *memJournal) Record(_ context.Context, r types.AgentResult) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.results = append(j.results, r)
	return nil
}

type countingSink struct {
	nopSink
	mu     sync.Mutex
	hits   int
	misses int
	execs  map[string]int
}

func (s *countingSink) RecordCacheHit(string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hits++
}

func (s *countingSink) RecordCacheMiss(string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.misses++
}

func (s *countingSink) RecordAgentExecution(_ string, status, _ string, _ int, _ time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.execs[status]++
}

func TestOptions_JournalAndMetrics(t *testing.T) {
	stub := mocks.NewStubAgent()
	reg := agent.NewRegistry(nil)
	reg.RegisterAgent("scorer", stub)
	j := &memJournal{}
	sink := &countingSink{execs: map[string]int{}}
	layer := cache.NewLayer(cache.NewMemoryStore(10), cache.DefaultConfig(), nil)

	o, err := New(DefaultConfig(), reg, layer, nil, WithJournal(j), WithMetrics(sink))
	require.NoError(t, err)
	defer o.Close(context.Background())

	req := types.AgentRequest{AgentType: "scorer", Input: map[string]any{"c": 1}}
	o.Process(context.Background(), req)
	o.Process(context.Background(), req)

	require.Len(t, j.results, 1, "cache hits are not journaled")
	assert.Equal(t, types.StatusSuccess, j.results[0].Status)
	assert.Equal(t, 1, sink.hits)
	assert.Equal(t, 1, sink.misses)
	assert.Equal(t, 1, sink.execs["success"])
}
