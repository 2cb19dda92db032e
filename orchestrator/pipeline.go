package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/aiorch/types"
)

// Processor runs a single agent request.
type Processor interface {
	Process(ctx context.Context, req types.AgentRequest) types.AgentResult
}

// Step is one stage of a Pipeline.
type Step struct {
	// Name labels the step in the trail; it defaults to AgentType.
	Name      string
	AgentType string
	// Input builds the step input from the previous step's payload. Nil passes
	// the payload through unchanged.
	Input func(prev map[string]any) (map[string]any, error)
}

func (s Step) label() string {
	if s.Name != "" {
		return s.Name
	}
	return s.AgentType
}

// StepRecord is the diagnostic trail entry of one executed step.
type StepRecord struct {
	Name      string              `json:"name"`
	AgentType string              `json:"agent_type"`
	RequestID string              `json:"request_id,omitempty"`
	Status    types.ResultStatus  `json:"status"`
	Cached    bool                `json:"cached"`
	Metrics   types.ResultMetrics `json:"metrics"`
	Error     *types.Error        `json:"error,omitempty"`
}

// PipelineResult is the outcome of a pipeline run.
type PipelineResult struct {
	Pipeline   string             `json:"pipeline"`
	Status     types.ResultStatus `json:"status"`
	Output     map[string]any     `json:"output,omitempty"`
	Steps      []StepRecord       `json:"steps"`
	FailedStep string             `json:"failed_step,omitempty"`
	Skipped    []string           `json:"skipped,omitempty"`
	Error      *types.Error       `json:"error,omitempty"`
	// Payloads holds the payload of every completed step, keyed by step name.
	Payloads     map[string]map[string]any `json:"-"`
	TotalLatency time.Duration             `json:"-"`
}

// OK reports whether every step succeeded.
func (r PipelineResult) OK() bool { return r.Status == types.StatusSuccess }

// Pipeline chains process calls: each step's output feeds the next step, and the
// first failing step stops the run.
type Pipeline struct {
	name  string
	steps []Step
	// finish shapes the final output from the completed run.
	finish func(res PipelineResult) map[string]any
}

// NewPipeline creates a pipeline.
func NewPipeline(name string, steps ...Step) *Pipeline {
	return &Pipeline{name: name, steps: steps}
}

// Name returns the pipeline name.
func (p *Pipeline) Name() string { return p.name }

// Steps returns the configured steps.
func (p *Pipeline) Steps() []Step { return p.steps }

// WithFinish sets the function building the final output of a successful run.
func (p *Pipeline) WithFinish(fn func(res PipelineResult) map[string]any) *Pipeline {
	p.finish = fn
	return p
}

// Run executes the steps in order with the same options. A caller-supplied
// RequestID is the run's correlation id: step n runs as "<id>:<step name>", so
// each step stays individually cancellable and journaled.
func (p *Pipeline) Run(ctx context.Context, proc Processor, input map[string]any, opts types.ProcessingOptions) PipelineResult {
	start := time.Now()
	res := PipelineResult{
		Pipeline: p.name,
		Status:   types.StatusSuccess,
		Steps:    make([]StepRecord, 0, len(p.steps)),
		Payloads: make(map[string]map[string]any, len(p.steps)),
	}
	if len(p.steps) == 0 {
		res.Output = input
		return res
	}

	ctx = types.WithPipeline(ctx, p.name)
	current := input
	for i, step := range p.steps {
		rec := StepRecord{Name: step.label(), AgentType: step.AgentType}

		stepInput, err := p.stepInput(ctx, step, current)
		if err != nil {
			rec.Status = types.StatusError
			rec.Error = types.Translate(err)
			res.fail(rec, p.steps[i+1:])
			break
		}

		r := proc.Process(ctx, types.AgentRequest{AgentType: step.AgentType, Input: stepInput, Options: stepOptions(opts, step)})
		rec.RequestID = r.RequestID
		rec.Status = r.Status
		rec.Cached = r.Cached
		rec.Metrics = r.Metrics
		rec.Error = r.Error
		if !r.OK() {
			res.fail(rec, p.steps[i+1:])
			break
		}

		res.Steps = append(res.Steps, rec)
		res.Payloads[rec.Name] = r.Payload
		current = r.Payload
	}

	if res.OK() {
		res.Output = current
		if p.finish != nil {
			res.Output = p.finish(res)
		}
	}
	res.TotalLatency = time.Since(start)
	return res
}

func stepOptions(opts types.ProcessingOptions, step Step) types.ProcessingOptions {
	if opts.RequestID != "" {
		opts.RequestID = opts.RequestID + ":" + step.label()
	}
	return opts
}

func (p *Pipeline) stepInput(ctx context.Context, step Step, prev map[string]any) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, context.Cause(ctx)
	}
	if step.Input == nil {
		return prev, nil
	}
	in, err := step.Input(prev)
	if err != nil {
		return nil, types.NewValidationError(fmt.Sprintf("build input for step %s: %v", step.label(), err))
	}
	return in, nil
}

func (r *PipelineResult) fail(rec StepRecord, rest []Step) {
	r.Status = types.StatusError
	r.Steps = append(r.Steps, rec)
	r.FailedStep = rec.Name
	r.Error = rec.Error
	for _, s := range rest {
		r.Skipped = append(r.Skipped, s.label())
	}
}

// RunPipeline runs p against the orchestrator.
func (o *Orchestrator) RunPipeline(ctx context.Context, p *Pipeline, input map[string]any, opts types.ProcessingOptions) PipelineResult {
	res := p.Run(ctx, o, input, opts)
	if res.OK() {
		o.logger.Info("pipeline completed",
			zap.String("pipeline", p.Name()),
			zap.Duration("latency", res.TotalLatency))
	} else {
		o.logger.Warn("pipeline failed",
			zap.String("pipeline", p.Name()),
			zap.String("failed_step", res.FailedStep),
			zap.String("kind", string(res.Error.Kind)))
	}
	return res
}
