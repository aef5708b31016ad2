package app

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authtail/authtail/internal/domain"
)

type fakeSource struct {
	lineChan chan domain.RawLine
	errChan  chan error
	stopped  bool
	mu       sync.Mutex
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		lineChan: make(chan domain.RawLine, 64),
		errChan:  make(chan error, 8),
	}
}

func (f *fakeSource) Start(_ context.Context) (<-chan domain.RawLine, <-chan error) {
	return f.lineChan, f.errChan
}

func (f *fakeSource) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.stopped {
		f.stopped = true
		close(f.lineChan)
	}
	return nil
}

type fakeMatcher struct{}

func (fakeMatcher) Match(line string) domain.Classification {
	if line == "threat" {
		return domain.Classification{
			Matched:    true,
			ThreatType: domain.ThreatTypeBruteForce,
			Severity:   domain.SeverityHigh,
			SourceIP:   "10.0.0.1",
		}
	}
	return domain.NoMatch(domain.UnknownIP, "")
}

func (fakeMatcher) RuleCount() int { return 1 }

type collectSink struct {
	mu     sync.Mutex
	events []*domain.Event
}

func (c *collectSink) Publish(event *domain.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *collectSink) all() []*domain.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*domain.Event(nil), c.events...)
}

func TestPipeline_EndToEnd(t *testing.T) {
	source := newFakeSource()
	sink := &collectSink{}
	metrics := domain.NewPipelineMetrics()

	p := NewPipeline(source, fakeMatcher{}, "test-origin", metrics, sink)
	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()

	source.lineChan <- domain.RawLine{Text: "threat", ReceivedAt: time.Now()}
	source.lineChan <- domain.RawLine{Text: "benign line", ReceivedAt: time.Now()}

	require.Eventually(t, func() bool {
		return len(sink.all()) == 2
	}, 2*time.Second, 10*time.Millisecond)

	events := sink.all()
	assert.Equal(t, domain.ThreatTypeBruteForce, events[0].Threat)
	assert.Equal(t, "test-origin", events[0].Source)
	assert.Equal(t, "10.0.0.1", events[0].IP)
	assert.Empty(t, events[1].Threat)
	assert.Equal(t, domain.SeverityInfo, events[1].Severity)

	snap := p.Metrics()
	assert.Equal(t, int64(2), snap.LinesRead)
	assert.Equal(t, int64(2), snap.EventsPublished)
	assert.Equal(t, int64(1), snap.ThreatsMatched)
}

func TestPipeline_SourceErrorsCountReconnects(t *testing.T) {
	source := newFakeSource()
	metrics := domain.NewPipelineMetrics()

	p := NewPipeline(source, fakeMatcher{}, "test-origin", metrics, &collectSink{})
	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()

	source.errChan <- fmt.Errorf("connection reset")
	source.errChan <- fmt.Errorf("connection reset")

	require.Eventually(t, func() bool {
		return p.Metrics().Reconnects == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPipeline_FanOutToMultipleSinks(t *testing.T) {
	source := newFakeSource()
	a, b := &collectSink{}, &collectSink{}

	p := NewPipeline(source, fakeMatcher{}, "origin", nil, a, b)
	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()

	source.lineChan <- domain.RawLine{Text: "threat", ReceivedAt: time.Now()}

	require.Eventually(t, func() bool {
		return len(a.all()) == 1 && len(b.all()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// Same event instance reaches every sink.
	assert.Same(t, a.all()[0], b.all()[0])
}

func TestPipeline_StartStopIdempotent(t *testing.T) {
	source := newFakeSource()
	p := NewPipeline(source, fakeMatcher{}, "origin", nil, &collectSink{})

	require.NoError(t, p.Start(context.Background()))
	require.NoError(t, p.Start(context.Background()))

	p.Stop()
	p.Stop()
}
