package metrics

import (
	"maps"
	"sync"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	Registrations             map[string]uint64
	Logins                    map[string]uint64
	Predictions               map[string]uint64
	PredictionDurationCount   uint64
	PredictionDurationTotalNs int64
	HTTPRequests              uint64
}

// InMemoryRecorder stores metrics in memory for tests.
type InMemoryRecorder struct {
	mu                        sync.Mutex
	registrations             map[string]uint64
	logins                    map[string]uint64
	predictions               map[string]uint64
	predictionDurationCount   uint64
	predictionDurationTotalNs int64
	httpRequests              uint64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{
		registrations: make(map[string]uint64),
		logins:        make(map[string]uint64),
		predictions:   make(map[string]uint64),
	}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Snapshot{
		Registrations:             maps.Clone(m.registrations),
		Logins:                    maps.Clone(m.logins),
		Predictions:               maps.Clone(m.predictions),
		PredictionDurationCount:   m.predictionDurationCount,
		PredictionDurationTotalNs: m.predictionDurationTotalNs,
		HTTPRequests:              m.httpRequests,
	}
}

// IncRegistration counts a registration attempt by outcome.
func (m *InMemoryRecorder) IncRegistration(outcome string) {
	m.mu.Lock()
	m.registrations[outcome]++
	m.mu.Unlock()
}

// IncLogin counts a login attempt by outcome.
func (m *InMemoryRecorder) IncLogin(outcome string) {
	m.mu.Lock()
	m.logins[outcome]++
	m.mu.Unlock()
}

// IncPrediction counts a prediction request by outcome.
func (m *InMemoryRecorder) IncPrediction(outcome string) {
	m.mu.Lock()
	m.predictions[outcome]++
	m.mu.Unlock()
}

// ObservePredictionDuration records prediction duration.
func (m *InMemoryRecorder) ObservePredictionDuration(duration time.Duration) {
	m.mu.Lock()
	m.predictionDurationCount++
	m.predictionDurationTotalNs += duration.Nanoseconds()
	m.mu.Unlock()
}

// ObserveHTTPRequest counts a served request.
func (m *InMemoryRecorder) ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	m.mu.Lock()
	m.httpRequests++
	m.mu.Unlock()
}

var _ Recorder = (*InMemoryRecorder)(nil)
