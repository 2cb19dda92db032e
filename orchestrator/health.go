package orchestrator

import (
	"sort"
	"sync"
	"time"
)

// HealthStatus classifies an agent type by its error rate.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
)

// HealthStats are the raw per agent type counters.
type HealthStats struct {
	RequestCount        int64
	ErrorCount          int64
	TotalProcessingTime time.Duration
}

// AgentHealth is the reported health of one agent type.
type AgentHealth struct {
	Status        HealthStatus `json:"status"`
	ErrorRate     float64      `json:"error_rate"`
	AvgLatencyMs  float64      `json:"avg_latency_ms"`
	TotalRequests int64        `json:"total_requests"`
	TotalErrors   int64        `json:"total_errors"`
}

// ClassifyHealth maps counters onto a status: below 10% errors is healthy, above 50%
// is unhealthy, anything in between (10% included) is degraded. Integer arithmetic
// keeps the boundaries exact.
func ClassifyHealth(requests, errors int64) HealthStatus {
	switch {
	case requests <= 0 || errors*10 < requests:
		return HealthHealthy
	case errors*2 > requests:
		return HealthUnhealthy
	default:
		return HealthDegraded
	}
}

// Report derives the reported health from the counters. Latency is averaged over
// successful requests, the only ones that accumulate processing time.
func (s HealthStats) Report() AgentHealth {
	h := AgentHealth{
		Status:        ClassifyHealth(s.RequestCount, s.ErrorCount),
		TotalRequests: s.RequestCount,
		TotalErrors:   s.ErrorCount,
	}
	if s.RequestCount > 0 {
		h.ErrorRate = float64(s.ErrorCount) / float64(s.RequestCount)
	}
	if ok := s.RequestCount - s.ErrorCount; ok > 0 {
		h.AvgLatencyMs = float64(s.TotalProcessingTime) / float64(time.Millisecond) / float64(ok)
	}
	return h
}

// HealthTracker holds HealthStats per agent type for the process lifetime.
type HealthTracker struct {
	mu    sync.Mutex
	stats map[string]*HealthStats
}

// NewHealthTracker creates an empty tracker.
func NewHealthTracker() *HealthTracker {
	return &HealthTracker{stats: make(map[string]*HealthStats)}
}

// RecordSuccess counts a successful terminal outcome.
func (t *HealthTracker) RecordSuccess(agentType string, latency time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.get(agentType)
	s.RequestCount++
	s.TotalProcessingTime += latency
}

// RecordFailure counts a failed terminal outcome.
func (t *HealthTracker) RecordFailure(agentType string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.get(agentType)
	s.RequestCount++
	s.ErrorCount++
}

func (t *HealthTracker) get(agentType string) *HealthStats {
	s, ok := t.stats[agentType]
	if !ok {
		s = &HealthStats{}
		t.stats[agentType] = s
	}
	return s
}

// Stats returns a copy of the counters of agentType.
func (t *HealthTracker) Stats(agentType string) HealthStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.stats[agentType]; ok {
		return *s
	}
	return HealthStats{}
}

// Health reports the health of agentType; unseen types are healthy.
func (t *HealthTracker) Health(agentType string) AgentHealth {
	return t.Stats(agentType).Report()
}

// Snapshot reports every agent type seen so far.
func (t *HealthTracker) Snapshot() map[string]AgentHealth {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]AgentHealth, len(t.stats))
	for name, s := range t.stats {
		out[name] = s.Report()
	}
	return out
}

// Types lists the agent types with recorded outcomes.
func (t *HealthTracker) Types() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	names := make([]string, 0, len(t.stats))
	for name := range t.stats {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
