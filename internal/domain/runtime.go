package domain

import (
	"sync"
	"sync/atomic"
	"time"
)

// RuntimeSnapshot is a point-in-time view of the process counters shown in
// the dashboard status bar.
type RuntimeSnapshot struct {
	Dispatched        int64
	Evaluated         int64
	RequestsPerSecond float64
	ActiveWorkers     int
	MemoryUsageMB     float64
	Uptime            time.Duration
	StartTime         time.Time
}

// RuntimeMetrics tracks process-level throughput. Engine statistics live in
// GatewayStats; these counters also include banned requests and replay
// traffic that never reached the engine.
type RuntimeMetrics struct {
	dispatched atomic.Int64
	evaluated  atomic.Int64

	mu            sync.RWMutex
	rps           float64
	activeWorkers int
	memoryMB      float64
	startTime     time.Time
}

func NewRuntimeMetrics(start time.Time) *RuntimeMetrics {
	return &RuntimeMetrics{startTime: start}
}

func (m *RuntimeMetrics) IncrementDispatched() {
	m.dispatched.Add(1)
}

func (m *RuntimeMetrics) IncrementEvaluated() {
	m.evaluated.Add(1)
}

func (m *RuntimeMetrics) Evaluated() int64 {
	return m.evaluated.Load()
}

func (m *RuntimeMetrics) SetRPS(rps float64) {
	m.mu.Lock()
	m.rps = rps
	m.mu.Unlock()
}

func (m *RuntimeMetrics) SetActiveWorkers(count int) {
	m.mu.Lock()
	m.activeWorkers = count
	m.mu.Unlock()
}

func (m *RuntimeMetrics) SetMemoryUsage(mb float64) {
	m.mu.Lock()
	m.memoryMB = mb
	m.mu.Unlock()
}

// Snapshot computes uptime relative to now.
func (m *RuntimeMetrics) Snapshot(now time.Time) RuntimeSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return RuntimeSnapshot{
		Dispatched:        m.dispatched.Load(),
		Evaluated:         m.evaluated.Load(),
		RequestsPerSecond: m.rps,
		ActiveWorkers:     m.activeWorkers,
		MemoryUsageMB:     m.memoryMB,
		Uptime:            now.Sub(m.startTime),
		StartTime:         m.startTime,
	}
}
