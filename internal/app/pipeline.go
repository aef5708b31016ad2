package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/authtail/authtail/internal/domain"
	"github.com/authtail/authtail/internal/ports"
)

// Pipeline wires one line source through the matcher into the sinks:
// source -> match -> normalize -> publish. Every accepted raw line becomes
// exactly one classified event; there is no filtering or rate limiting
// between the stages.
type Pipeline struct {
	source  ports.LineSource
	matcher ports.RuleMatcher
	sinks   []ports.EventSink
	origin  string
	metrics *domain.PipelineMetrics

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

func NewPipeline(source ports.LineSource, matcher ports.RuleMatcher, origin string, metrics *domain.PipelineMetrics, sinks ...ports.EventSink) *Pipeline {
	if metrics == nil {
		metrics = domain.NewPipelineMetrics()
	}
	return &Pipeline{
		source:  source,
		matcher: matcher,
		sinks:   sinks,
		origin:  origin,
		metrics: metrics,
	}
}

func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = true
	p.mu.Unlock()

	p.ctx, p.cancel = context.WithCancel(ctx)

	lineChan, errChan := p.source.Start(p.ctx)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.processLines(lineChan, errChan)
	}()

	log.Info().Str("origin", p.origin).Int("rules", p.matcher.RuleCount()).Msg("Pipeline started")
	return nil
}

func (p *Pipeline) processLines(lineChan <-chan domain.RawLine, errChan <-chan error) {
	for {
		select {
		case <-p.ctx.Done():
			return
		case err, ok := <-errChan:
			if !ok {
				errChan = nil
				continue
			}
			// Transport fault: the source already retries on its own,
			// this is bookkeeping only.
			p.metrics.IncrementReconnects()
			log.Warn().Err(err).Str("origin", p.origin).Msg("Line source error")
		case line, ok := <-lineChan:
			if !ok {
				log.Info().Str("origin", p.origin).Msg("Line channel closed")
				return
			}
			p.handleLine(line)
		}
	}
}

func (p *Pipeline) handleLine(line domain.RawLine) {
	p.metrics.IncrementLines()

	c := p.matcher.Match(line.Text)
	if c.Matched && c.Severity != domain.SeverityInfo {
		p.metrics.IncrementThreats()
	}

	event := domain.NewEvent(line.Text, p.origin, c)
	for _, sink := range p.sinks {
		sink.Publish(event)
	}
	p.metrics.IncrementPublished()
}

func (p *Pipeline) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	if p.cancel != nil {
		p.cancel()
	}
	if err := p.source.Stop(); err != nil {
		log.Error().Err(err).Msg("Error stopping line source")
	}
	p.wg.Wait()

	log.Info().Str("origin", p.origin).Msg("Pipeline stopped")
}

func (p *Pipeline) Metrics() domain.MetricsSnapshot {
	return p.metrics.GetSnapshot()
}
