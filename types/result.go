package types

import (
	"encoding/json"
	"time"
)

// ResultStatus is the terminal status of a request.
type ResultStatus string

const (
	StatusSuccess ResultStatus = "success"
	StatusError   ResultStatus = "error"
)

// ResultMetrics describe how a result was produced.
type ResultMetrics struct {
	AttemptCount int           `json:"attempt_count"`
	TotalLatency time.Duration `json:"-"`
}

// MarshalJSON reports latency in milliseconds.
func (m ResultMetrics) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		AttemptCount   int     `json:"attempt_count"`
		TotalLatencyMs float64 `json:"total_latency_ms"`
	}{
		AttemptCount:   m.AttemptCount,
		TotalLatencyMs: float64(m.TotalLatency) / float64(time.Millisecond),
	})
}

// AgentResult is the only value that crosses the orchestrator boundary.
type AgentResult struct {
	RequestID string         `json:"request_id,omitempty"`
	AgentType string         `json:"agent_type"`
	Status    ResultStatus   `json:"status"`
	Payload   map[string]any `json:"payload,omitempty"`
	Metrics   ResultMetrics  `json:"metrics"`
	Error     *Error         `json:"error,omitempty"`
	Cached    bool           `json:"cached"`
}

// OK reports whether the result is a success.
func (r AgentResult) OK() bool {
	return r.Status == StatusSuccess
}

// Success builds a successful result.
func Success(agentType string, payload map[string]any, metrics ResultMetrics) AgentResult {
	return AgentResult{
		AgentType: agentType,
		Status:    StatusSuccess,
		Payload:   payload,
		Metrics:   metrics,
	}
}

// Failure builds an error result; err is translated into exactly one kind.
func Failure(agentType string, err error, metrics ResultMetrics) AgentResult {
	return AgentResult{
		AgentType: agentType,
		Status:    StatusError,
		Metrics:   metrics,
		Error:     Translate(err),
	}
}
