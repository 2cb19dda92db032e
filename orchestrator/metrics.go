package orchestrator

import "time"

// MetricsSink receives orchestrator measurements. internal/metrics.Collector
// implements it for Prometheus.
type MetricsSink interface {
	RecordAgentExecution(agentType, status, errorKind string, attempts int, duration time.Duration)
	RecordAgentRetry(agentType string)
	RecordCacheHit(cacheType string)
	RecordCacheMiss(cacheType string)
	SetActiveRequests(n int)
}

type nopSink struct{}

func (nopSink) RecordAgentExecution(string, string, string, int, time.Duration) {}
func (nopSink) RecordAgentRetry(string)                                          {}
func (nopSink) RecordCacheHit(string)                                            {}
func (nopSink) RecordCacheMiss(string)                                           {}
func (nopSink) SetActiveRequests(int)                                            {}
