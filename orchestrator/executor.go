package orchestrator

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/aiorch/agent"
	"github.com/BaSui01/aiorch/llm/retry"
	"github.com/BaSui01/aiorch/types"
)

const tracerName = "github.com/BaSui01/aiorch/orchestrator"

// Executor is the resilient execution wrapper around one agent invocation:
// validation, a deadline spanning every attempt, backoff retries of transient
// failures and health accounting.
type Executor struct {
	policy         retry.Policy
	defaultTimeout time.Duration
	health         *HealthTracker
	metrics        MetricsSink
	tracer         trace.Tracer
	logger         *zap.Logger
}

// NewExecutor creates an executor. A nil health tracker gets a fresh one.
func NewExecutor(policy retry.Policy, defaultTimeout time.Duration, health *HealthTracker, metrics MetricsSink, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if health == nil {
		health = NewHealthTracker()
	}
	if metrics == nil {
		metrics = nopSink{}
	}
	if defaultTimeout <= 0 {
		defaultTimeout = 30 * time.Second
	}
	return &Executor{
		policy:         policy,
		defaultTimeout: defaultTimeout,
		health:         health,
		metrics:        metrics,
		tracer:         otel.Tracer(tracerName),
		logger:         logger.With(zap.String("component", "executor")),
	}
}

// Health returns the tracker the executor reports to.
func (e *Executor) Health() *HealthTracker { return e.health }

// Execute runs a against input. It never returns an unclassified failure.
func (e *Executor) Execute(ctx context.Context, agentType string, a agent.Agent, input map[string]any, opts types.ProcessingOptions) types.AgentResult {
	start := time.Now()

	valid, err := e.validate(agentType, a, input)
	if err != nil {
		return e.finish(ctx, agentType, nil, 0, err, start)
	}
	if !valid {
		err := types.NewValidationError(fmt.Sprintf("invalid input for agent %s", agentType)).
			WithCode(types.ErrInvalidInput)
		return e.finish(ctx, agentType, nil, 0, err, start)
	}

	timeout := opts.Timeout(e.defaultTimeout)
	ctx, cancel := context.WithTimeoutCause(ctx, timeout,
		types.NewTimeoutError(fmt.Sprintf("deadline of %s exceeded", timeout)))
	defer cancel()
	ctx = types.WithOptions(ctx, opts)

	policy := e.policy
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		e.metrics.RecordAgentRetry(agentType)
		e.logger.Info("retrying agent",
			zap.String("agent_type", agentType),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
	}
	retryer := retry.NewBackoffRetryer(policy, e.logger)

	out, attempts, err := retry.DoWithResult(retryer, ctx, func(ctx context.Context, attempt int) (map[string]any, error) {
		return e.attempt(ctx, agentType, a, input, attempt)
	})
	if err == nil && ctx.Err() != nil {
		// Late success after cancellation or deadline is discarded.
		err = context.Cause(ctx)
		out = nil
	}
	return e.finish(ctx, agentType, out, attempts, err, start)
}

func (e *Executor) validate(agentType string, a agent.Agent, input map[string]any) (valid bool, err error) {
	defer recoverPlugin(e.logger, agentType, "validate", &err)
	return a.Validate(input), nil
}

// recoverPlugin 将插件代码（Validate、Execute、工厂函数）中的 panic 转为 InternalError
func recoverPlugin(logger *zap.Logger, agentType, stage string, err *error) {
	r := recover()
	if r == nil {
		return
	}
	logger.Error("agent panicked",
		zap.String("agent_type", agentType),
		zap.String("stage", stage),
		zap.Any("panic", r),
		zap.ByteString("stack", debug.Stack()),
	)
	*err = types.NewInternalError("internal error").WithCause(fmt.Errorf("%s panic: %v", stage, r))
}

func (e *Executor) attempt(ctx context.Context, agentType string, a agent.Agent, input map[string]any, attempt int) (out map[string]any, err error) {
	ctx, span := e.tracer.Start(ctx, "executor.attempt", trace.WithAttributes(
		attribute.String("agent.type", agentType),
		attribute.Int("attempt", attempt+1),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
	defer recoverPlugin(e.logger, agentType, "execute", &err)

	out, err = a.Execute(ctx, input)
	if ctx.Err() != nil {
		// The agent may ignore ctx; its result no longer matters.
		return nil, context.Cause(ctx)
	}
	return out, err
}

func (e *Executor) finish(ctx context.Context, agentType string, out map[string]any, attempts int, err error, start time.Time) types.AgentResult {
	latency := time.Since(start)
	metrics := types.ResultMetrics{AttemptCount: attempts, TotalLatency: latency}

	if err == nil {
		if out == nil {
			out = map[string]any{}
		}
		e.health.RecordSuccess(agentType, latency)
		e.metrics.RecordAgentExecution(agentType, string(types.StatusSuccess), "", attempts, latency)
		return types.Success(agentType, out, metrics)
	}

	e.health.RecordFailure(agentType)
	res := types.Failure(agentType, err, metrics)
	e.metrics.RecordAgentExecution(agentType, string(types.StatusError), string(res.Error.Kind), attempts, latency)

	fields := []zap.Field{
		zap.String("agent_type", agentType),
		zap.String("kind", string(res.Error.Kind)),
		zap.Int("attempts", attempts),
		zap.Duration("latency", latency),
		zap.Error(err),
	}
	if id, ok := types.RequestID(ctx); ok {
		fields = append(fields, zap.String("request_id", id))
	}
	if res.Error.Kind == types.KindInternal {
		e.logger.Error("agent failed with internal error", fields...)
	} else {
		e.logger.Warn("agent failed", fields...)
	}
	return res
}
