package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/BaSui01/aiorch/agent"
	"github.com/BaSui01/aiorch/cache"
	"github.com/BaSui01/aiorch/types"
)

// Journal records terminal results of executed requests.
type Journal interface {
	Record(ctx context.Context, result types.AgentResult) error
}

// RequestInfo describes an in-flight request.
type RequestInfo struct {
	ID        string    `json:"id"`
	AgentType string    `json:"agent_type"`
	StartedAt time.Time `json:"started_at"`
}

type requestHandle struct {
	RequestInfo
	cancel context.CancelCauseFunc
}

// Status is a point-in-time view of the orchestrator.
type Status struct {
	ActiveRequests      int                    `json:"active_requests"`
	MaxConcurrency      int                    `json:"max_concurrency"`
	AvailableAgentTypes []string               `json:"available_agent_types"`
	CacheStats          cache.Stats            `json:"cache_stats"`
	Health              map[string]AgentHealth `json:"health"`
	Timestamp           time.Time              `json:"timestamp"`
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMetrics sets the metrics sink.
func WithMetrics(m MetricsSink) Option {
	return func(o *Orchestrator) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithJournal records every executed result.
func WithJournal(j Journal) Option {
	return func(o *Orchestrator) { o.journal = j }
}

// Orchestrator bounds concurrent agent work, tracks cancellable requests and
// composes the cache layer with the resilient executor.
type Orchestrator struct {
	cfg      Config
	registry *agent.Registry
	cache    *cache.Layer
	executor *Executor
	sem      *semaphore.Weighted
	metrics  MetricsSink
	journal  Journal
	tracer   trace.Tracer
	logger   *zap.Logger

	mu     sync.Mutex
	active map[string]*requestHandle
	wg     sync.WaitGroup
	closed atomic.Bool
}

// New validates cfg and creates an orchestrator. A nil cache layer disables caching.
func New(cfg Config, registry *agent.Registry, layer *cache.Layer, logger *zap.Logger, opts ...Option) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid orchestrator config: %w", err)
	}
	if registry == nil {
		return nil, fmt.Errorf("agent registry is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = types.ModelAuto
	}

	o := &Orchestrator{
		cfg:      cfg,
		registry: registry,
		cache:    layer,
		sem:      semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		metrics:  nopSink{},
		tracer:   otel.Tracer(tracerName),
		logger:   logger.With(zap.String("component", "orchestrator")),
		active:   make(map[string]*requestHandle),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.executor = NewExecutor(cfg.RetryPolicy(), cfg.DefaultTimeout, NewHealthTracker(), o.metrics, logger)
	return o, nil
}

// Registry returns the agent registry.
func (o *Orchestrator) Registry() *agent.Registry { return o.registry }

// Cache returns the cache layer, which may be nil.
func (o *Orchestrator) Cache() *cache.Layer { return o.cache }

// Closed reports whether Close has been called.
func (o *Orchestrator) Closed() bool { return o.closed.Load() }

// Health returns the health of one agent type.
func (o *Orchestrator) Health(agentType string) AgentHealth {
	return o.executor.Health().Health(agentType)
}

// HealthStats returns the raw counters of one agent type.
func (o *Orchestrator) HealthStats(agentType string) HealthStats {
	return o.executor.Health().Stats(agentType)
}

// Process runs one request and always returns a classified result.
func (o *Orchestrator) Process(ctx context.Context, req types.AgentRequest) types.AgentResult {
	start := time.Now()
	opts := req.Options
	if opts.ModelPreference == "" {
		opts.ModelPreference = o.cfg.DefaultModel
	}

	ctx, span := o.tracer.Start(ctx, "orchestrator.process",
		trace.WithAttributes(attribute.String("agent.type", req.AgentType)))
	res := o.process(ctx, req.AgentType, req.Input, opts, start)
	span.SetAttributes(
		attribute.String("request.id", res.RequestID),
		attribute.Bool("cached", res.Cached),
		attribute.Int("attempts", res.Metrics.AttemptCount),
	)
	if res.Error != nil {
		span.SetStatus(codes.Error, res.Error.Message)
	}
	span.End()
	return res
}

func (o *Orchestrator) process(ctx context.Context, agentType string, input map[string]any, opts types.ProcessingOptions, start time.Time) types.AgentResult {
	reject := func(err error) types.AgentResult {
		r := types.Failure(agentType, err, types.ResultMetrics{TotalLatency: time.Since(start)})
		r.RequestID = opts.RequestID
		return r
	}

	if o.closed.Load() {
		return reject(errClosed())
	}
	if err := opts.Validate(); err != nil {
		return reject(err)
	}
	if !o.registry.IsRegistered(agentType) {
		return reject(types.NewValidationError(fmt.Sprintf("unknown agent type %q", agentType)).
			WithCode(types.ErrUnknownAgent))
	}

	key, useCache := o.cacheKey(agentType, input, opts)
	if useCache {
		if payload, ok := o.lookup(ctx, key); ok {
			o.metrics.RecordCacheHit(o.cache.Backend())
			r := types.Success(agentType, payload, types.ResultMetrics{TotalLatency: time.Since(start)})
			r.Cached = true
			r.RequestID = opts.RequestID
			return r
		}
		o.metrics.RecordCacheMiss(o.cache.Backend())
	}

	if err := o.sem.Acquire(ctx, 1); err != nil {
		return reject(context.Cause(ctx))
	}
	defer o.sem.Release(1)

	h, rctx, err := o.register(ctx, agentType, opts.RequestID)
	if err != nil {
		return reject(err)
	}
	defer o.unregister(h)

	a, err := o.create(agentType)
	if err != nil {
		o.logger.Error("agent factory failed", zap.String("agent_type", agentType), zap.Error(err))
		r := reject(types.NewInternalError("internal error").WithCause(err))
		r.RequestID = h.ID
		return r
	}

	res := o.executor.Execute(types.WithRequestID(rctx, h.ID), agentType, a, input, opts)
	res.RequestID = h.ID

	if res.OK() && useCache {
		o.store(ctx, key, res.Payload, opts.TTL(o.cache.DefaultTTL()))
	}
	o.record(ctx, res)
	return res
}

func (o *Orchestrator) create(agentType string) (a agent.Agent, err error) {
	defer recoverPlugin(o.logger, agentType, "factory", &err)
	return o.registry.Create(agentType)
}

func (o *Orchestrator) cacheKey(agentType string, input map[string]any, opts types.ProcessingOptions) (string, bool) {
	if opts.CacheBypass || !o.cache.Enabled() {
		return "", false
	}
	key, err := cache.KeyFor(agentType, opts.Model(), input)
	if err != nil {
		o.logger.Warn("input not cacheable", zap.String("agent_type", agentType), zap.Error(err))
		return "", false
	}
	return key, true
}

func (o *Orchestrator) lookup(ctx context.Context, key string) (map[string]any, bool) {
	raw, ok := o.cache.Get(ctx, cache.NamespaceAIResponses, key)
	if !ok {
		return nil, false
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil || payload == nil {
		o.logger.Warn("cached payload is not an object", zap.Error(err))
		return nil, false
	}
	return payload, true
}

func (o *Orchestrator) store(ctx context.Context, key string, payload map[string]any, ttl time.Duration) {
	data, err := json.Marshal(payload)
	if err != nil {
		o.logger.Warn("payload not cacheable", zap.Error(err))
		return
	}
	o.cache.Set(ctx, cache.NamespaceAIResponses, key, data, ttl)
}

func (o *Orchestrator) record(ctx context.Context, res types.AgentResult) {
	if o.journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := o.journal.Record(ctx, res); err != nil {
		o.logger.Warn("journal write failed", zap.String("request_id", res.RequestID), zap.Error(err))
	}
}

func (o *Orchestrator) register(ctx context.Context, agentType, id string) (*requestHandle, context.Context, error) {
	if id == "" {
		id = uuid.NewString()
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed.Load() {
		return nil, nil, errClosed()
	}
	if _, exists := o.active[id]; exists {
		return nil, nil, types.NewValidationError(fmt.Sprintf("request id %q is already active", id)).
			WithCode(types.ErrDuplicateRequest)
	}

	rctx, cancel := context.WithCancelCause(ctx)
	h := &requestHandle{
		RequestInfo: RequestInfo{ID: id, AgentType: agentType, StartedAt: time.Now()},
		cancel:      cancel,
	}
	o.active[id] = h
	o.wg.Add(1)
	o.metrics.SetActiveRequests(len(o.active))
	return h, rctx, nil
}

func (o *Orchestrator) unregister(h *requestHandle) {
	o.mu.Lock()
	if cur, ok := o.active[h.ID]; ok && cur == h {
		delete(o.active, h.ID)
	}
	n := len(o.active)
	o.mu.Unlock()

	h.cancel(nil)
	o.metrics.SetActiveRequests(n)
	o.wg.Done()
}

// Cancel signals the request with id. It returns false for unknown or finished ids.
func (o *Orchestrator) Cancel(id string) bool {
	o.mu.Lock()
	h, ok := o.active[id]
	if ok {
		// 与 unregister 同锁，返回 true 时请求必然仍处于活跃状态
		h.cancel(types.NewCancelledError("request cancelled"))
	}
	o.mu.Unlock()
	if !ok {
		return false
	}
	o.logger.Info("request cancelled", zap.String("request_id", id), zap.String("agent_type", h.AgentType))
	return true
}

// ActiveRequests lists in-flight requests.
func (o *Orchestrator) ActiveRequests() []RequestInfo {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]RequestInfo, 0, len(o.active))
	for _, h := range o.active {
		out = append(out, h.RequestInfo)
	}
	return out
}

// Status reports load, registered agents, cache statistics and per-agent health.
func (o *Orchestrator) Status(ctx context.Context) Status {
	o.mu.Lock()
	active := len(o.active)
	o.mu.Unlock()

	health := o.executor.Health().Snapshot()
	names := o.registry.ListTypes()
	for _, t := range names {
		if _, ok := health[t]; !ok {
			health[t] = HealthStats{}.Report()
		}
	}

	return Status{
		ActiveRequests:      active,
		MaxConcurrency:      o.cfg.MaxConcurrent,
		AvailableAgentTypes: names,
		CacheStats:          o.cache.Stats(ctx),
		Health:              health,
		Timestamp:           time.Now().UTC(),
	}
}

// ProcessBatch runs every request concurrently and returns results in request order.
func (o *Orchestrator) ProcessBatch(ctx context.Context, reqs []types.AgentRequest) []types.AgentResult {
	results := make([]types.AgentResult, len(reqs))
	var g errgroup.Group
	g.SetLimit(o.cfg.MaxConcurrent)
	for i := range reqs {
		g.Go(func() error {
			results[i] = o.Process(ctx, reqs[i])
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Close rejects new work, cancels in-flight requests and waits for them to
// unwind or for ctx to end.
func (o *Orchestrator) Close(ctx context.Context) error {
	o.mu.Lock()
	if !o.closed.CompareAndSwap(false, true) {
		o.mu.Unlock()
		return nil
	}
	for _, h := range o.active {
		h.cancel(types.NewCancelledError("orchestrator shutting down"))
	}
	pending := len(o.active)
	o.mu.Unlock()

	o.logger.Info("orchestrator closing", zap.Int("in_flight", pending))

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("orchestrator close: %w", ctx.Err())
	}
}

func errClosed() error {
	return types.NewInternalError("orchestrator closed").WithCode(types.ErrOrchestratorClosed)
}
