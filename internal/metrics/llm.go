package metrics

import (
	"context"
	"time"

	"github.com/BaSui01/aiorch/llm"
	"github.com/BaSui01/aiorch/types"
)

// InstrumentedClient records every completion of the wrapped provider.
type InstrumentedClient struct {
	next      llm.Client
	collector *Collector
}

// InstrumentLLM wraps next. A nil collector returns next unchanged.
func InstrumentLLM(next llm.Client, collector *Collector) llm.Client {
	if next == nil || collector == nil {
		return next
	}
	return &InstrumentedClient{next: next, collector: collector}
}

// Name implements llm.Client.
func (c *InstrumentedClient) Name() string { return c.next.Name() }

// Complete implements llm.Client.
func (c *InstrumentedClient) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	start := time.Now()
	resp, err := c.next.Complete(ctx, req)

	provider := resp.Provider
	if provider == "" {
		provider = c.next.Name()
	}
	model := resp.Model
	if model == "" {
		model = "unknown"
	}
	status := "success"
	if err != nil {
		status = string(types.KindOf(err))
	}
	c.collector.RecordLLMRequest(provider, model, status, time.Since(start), resp.InputTokens, resp.OutputTokens)
	return resp, err
}
