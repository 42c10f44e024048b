package metrics

import (
	"context"
	"sync"

	"voice-scheduler/internal/calls"
)

// MemoryRecorder keeps metrics in process. Used by tests and when Redis is unavailable.
type MemoryRecorder struct {
	mu       sync.Mutex
	status   map[string]int64
	failures map[string]int64
	duration map[string]int64
}

func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{
		status:   map[string]int64{},
		failures: map[string]int64{},
		duration: map[string]int64{},
	}
}

func (m *MemoryRecorder) IncCallStatus(_ context.Context, status calls.CallStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status[string(status)]++
}

func (m *MemoryRecorder) ObserveCallDuration(_ context.Context, seconds int) {
	if seconds < 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.duration[bucketField(seconds)]++
	m.duration["count"]++
	m.duration["sum"] += int64(seconds)
}

func (m *MemoryRecorder) IncProviderFailure(_ context.Context, code string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[providerCode(code)]++
}

func (m *MemoryRecorder) Snapshot(_ context.Context) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Snapshot{
		CallStatus:       make(map[string]int64, len(m.status)),
		ProviderFailures: make(map[string]int64, len(m.failures)),
		Duration:         histogramFromFields(m.duration),
	}
	for k, v := range m.status {
		s.CallStatus[k] = v
	}
	for k, v := range m.failures {
		s.ProviderFailures[k] = v
	}
	return s, nil
}
