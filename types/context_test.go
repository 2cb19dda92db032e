package types

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextValues(t *testing.T) {
	ctx := context.Background()

	_, ok := RequestID(ctx)
	assert.False(t, ok)
	_, ok = PipelineFrom(WithPipeline(ctx, ""))
	assert.False(t, ok, "empty names are absent")

	ctx = WithRequestID(ctx, "req-1")
	ctx = WithTraceID(ctx, "trace-1")
	ctx = WithPipeline(ctx, "battlecard")
	ctx = WithOptions(ctx, ProcessingOptions{ModelPreference: ModelFast})

	id, ok := RequestID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "req-1", id)

	trace, ok := TraceID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "trace-1", trace)

	name, ok := PipelineFrom(ctx)
	assert.True(t, ok)
	assert.Equal(t, "battlecard", name)

	opts, ok := OptionsFrom(ctx)
	assert.True(t, ok)
	assert.Equal(t, ModelFast, opts.ModelPreference)
}
