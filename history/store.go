// Package history keeps the append-only metric and audit logs of a session.
package history

import (
	"fmt"
	"sync"

	"go.aimuz.me/ergowatch/internal/types"
)

// Backend names accepted by New.
const (
	BackendMemory = "memory"
	BackendBadger = "badger"
)

// Store holds the ordered metric and wellness histories of one session.
// Appends keep arrival order; Reset clears both logs together.
type Store interface {
	AppendMetric(m types.WorkspaceMetric) error
	AppendAudit(a types.WellnessAudit) error
	Metrics() ([]types.WorkspaceMetric, error)
	Audits() ([]types.WellnessAudit, error)
	// FirstMetric returns the oldest metric, if any.
	FirstMetric() (types.WorkspaceMetric, bool, error)
	Counts() (metrics, audits int)
	Reset() error
	Close() error
}

// New creates a store for the named backend. An empty name selects memory.
func New(backend string) (Store, error) {
	switch backend {
	case "", BackendMemory:
		return NewMemory(), nil
	case BackendBadger:
		return NewBadger()
	}
	return nil, fmt.Errorf("unknown history backend: %s", backend)
}

// Memory is a slice-backed Store.
type Memory struct {
	mu      sync.RWMutex
	metrics []types.WorkspaceMetric
	audits  []types.WellnessAudit
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

func (s *Memory) AppendMetric(m types.WorkspaceMetric) error {
	s.mu.Lock()
	s.metrics = append(s.metrics, m)
	s.mu.Unlock()
	return nil
}

func (s *Memory) AppendAudit(a types.WellnessAudit) error {
	s.mu.Lock()
	s.audits = append(s.audits, a)
	s.mu.Unlock()
	return nil
}

// Metrics returns a copy of the metric log.
func (s *Memory) Metrics() ([]types.WorkspaceMetric, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.WorkspaceMetric, len(s.metrics))
	copy(out, s.metrics)
	return out, nil
}

// Audits returns a copy of the wellness log.
func (s *Memory) Audits() ([]types.WellnessAudit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.WellnessAudit, len(s.audits))
	copy(out, s.audits)
	return out, nil
}

func (s *Memory) FirstMetric() (types.WorkspaceMetric, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.metrics) == 0 {
		return types.WorkspaceMetric{}, false, nil
	}
	return s.metrics[0], true, nil
}

func (s *Memory) Counts() (int, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.metrics), len(s.audits)
}

func (s *Memory) Reset() error {
	s.mu.Lock()
	s.metrics = nil
	s.audits = nil
	s.mu.Unlock()
	return nil
}

func (s *Memory) Close() error {
	return s.Reset()
}
