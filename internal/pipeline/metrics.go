package pipeline

import (
	"sync"
	"time"
)

// Pipeline stages tracked by Metrics
const (
	StageTrends  = "trends"
	StageIdeas   = "ideas"
	StagePosts   = "posts"
	StageRefresh = "refresh"
)

// StageMetrics holds counters for one pipeline stage
type StageMetrics struct {
	Calls           int       `json:"calls"`
	Errors          int       `json:"errors"`
	CacheHits       int       `json:"cache_hits"`
	LastRun         time.Time `json:"last_run"`
	LastRunDuration string    `json:"last_run_duration"`
	LastError       string    `json:"last_error,omitempty"`
}

// Metrics aggregates per-stage counters. It is safe for concurrent use.
type Metrics struct {
	mu     sync.RWMutex
	stages map[string]*StageMetrics
}

// NewMetrics creates an empty metrics registry
func NewMetrics() *Metrics {
	return &Metrics{stages: make(map[string]*StageMetrics)}
}

func (m *Metrics) stage(name string) *StageMetrics {
	s, ok := m.stages[name]
	if !ok {
		s = &StageMetrics{}
		m.stages[name] = s
	}
	return s
}

// Record counts one completed call of a stage
func (m *Metrics) Record(name string, duration time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.stage(name)
	s.Calls++
	s.LastRun = time.Now()
	s.LastRunDuration = duration.String()
	if err != nil {
		s.Errors++
		s.LastError = err.Error()
	}
}

// RecordCacheHit counts a call answered from the cache
func (m *Metrics) RecordCacheHit(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stage(name).CacheHits++
}

// Snapshot returns a copy of the current counters
func (m *Metrics) Snapshot() map[string]StageMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]StageMetrics, len(m.stages))
	for name, s := range m.stages {
		out[name] = *s
	}
	return out
}
