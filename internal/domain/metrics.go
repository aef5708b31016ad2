package domain

import (
	"sync"
	"sync/atomic"
	"time"
)

type MetricsSnapshot struct {
	LinesRead       int64
	EventsPublished int64
	ThreatsMatched  int64
	Reconnects      int64
	Subscribers     int
	Uptime          time.Duration
	StartTime       time.Time
}

type PipelineMetrics struct {
	linesRead       atomic.Int64
	eventsPublished atomic.Int64
	threatsMatched  atomic.Int64
	reconnects      atomic.Int64

	subscribers int
	startTime   time.Time
	mu          sync.RWMutex
}

func NewPipelineMetrics() *PipelineMetrics {
	return &PipelineMetrics{startTime: time.Now()}
}

func (m *PipelineMetrics) IncrementLines()      { m.linesRead.Add(1) }
func (m *PipelineMetrics) IncrementPublished()  { m.eventsPublished.Add(1) }
func (m *PipelineMetrics) IncrementThreats()    { m.threatsMatched.Add(1) }
func (m *PipelineMetrics) IncrementReconnects() { m.reconnects.Add(1) }

func (m *PipelineMetrics) LinesRead() int64       { return m.linesRead.Load() }
func (m *PipelineMetrics) EventsPublished() int64 { return m.eventsPublished.Load() }
func (m *PipelineMetrics) ThreatsMatched() int64  { return m.threatsMatched.Load() }
func (m *PipelineMetrics) Reconnects() int64      { return m.reconnects.Load() }

func (m *PipelineMetrics) SetSubscribers(n int) {
	m.mu.Lock()
	m.subscribers = n
	m.mu.Unlock()
}

func (m *PipelineMetrics) GetSnapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return MetricsSnapshot{
		LinesRead:       m.linesRead.Load(),
		EventsPublished: m.eventsPublished.Load(),
		ThreatsMatched:  m.threatsMatched.Load(),
		Reconnects:      m.reconnects.Load(),
		Subscribers:     m.subscribers,
		Uptime:          time.Since(m.startTime),
		StartTime:       m.startTime,
	}
}
