package types

import "context"

type contextKey string

const (
	keyRequestID contextKey = "request_id"
	keyTraceID   contextKey = "trace_id"
)

// WithRequestID adds the orchestrator request id to ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keyRequestID, id)
}

// RequestID extracts the orchestrator request id.
func RequestID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyRequestID).(string)
	return v, ok && v != ""
}

// WithTraceID adds the inbound HTTP request id to ctx.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, keyTraceID, traceID)
}

// TraceID extracts the inbound HTTP request id.
func TraceID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyTraceID).(string)
	return v, ok && v != ""
}

const keyOptions contextKey = "processing_options"

// WithOptions attaches the processing options of the current request so agents
// can honour model preference, token and temperature settings.
func WithOptions(ctx context.Context, opts ProcessingOptions) context.Context {
	return context.WithValue(ctx, keyOptions, opts)
}

// OptionsFrom returns the processing options attached to ctx.
func OptionsFrom(ctx context.Context) (ProcessingOptions, bool) {
	v, ok := ctx.Value(keyOptions).(ProcessingOptions)
	return v, ok
}

const keyPipeline contextKey = "pipeline"

// WithPipeline marks ctx as belonging to a run of the named pipeline.
func WithPipeline(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, keyPipeline, name)
}

// PipelineFrom returns the pipeline name set by WithPipeline.
func PipelineFrom(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyPipeline).(string)
	return v, ok && v != ""
}
