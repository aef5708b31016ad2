// Package output provides event output adapters: Prometheus collectors
// and a buffered JSON event sink for console mode.
package output

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/authtail/authtail/internal/app"
	"github.com/authtail/authtail/internal/domain"
)

// PrometheusMetrics exposes pipeline and hub counters for scraping.
// It doubles as an EventSink so classified events increment the
// per-severity and per-threat counters on the way past.
type PrometheusMetrics struct {
	eventsBySeverity *prometheus.CounterVec
	eventsByThreat   *prometheus.CounterVec
	linesRead        prometheus.CounterFunc
	reconnects       prometheus.CounterFunc
	subscribers      prometheus.GaugeFunc
	evictedSubs      prometheus.CounterFunc
}

func NewPrometheusMetrics(namespace string, metrics *domain.PipelineMetrics, hub *app.Hub) *PrometheusMetrics {
	if namespace == "" {
		namespace = "authtail"
	}

	m := &PrometheusMetrics{}

	m.eventsBySeverity = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_by_severity_total",
		Help:      "Classified events by severity",
	}, []string{"severity"})

	m.eventsByThreat = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_by_threat_total",
		Help:      "Classified events by threat type",
	}, []string{"threat"})

	m.linesRead = promauto.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "lines_read_total",
		Help:      "Raw log lines read from the line source",
	}, func() float64 {
		if metrics != nil {
			return float64(metrics.LinesRead())
		}
		return 0
	})

	m.reconnects = promauto.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "source_reconnects_total",
		Help:      "Line source transport errors triggering reconnect",
	}, func() float64 {
		if metrics != nil {
			return float64(metrics.Reconnects())
		}
		return 0
	})

	m.subscribers = promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "subscribers",
		Help:      "Currently registered hub subscribers",
	}, func() float64 {
		if hub != nil {
			return float64(hub.SubscriberCount())
		}
		return 0
	})

	m.evictedSubs = promauto.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "subscribers_evicted_total",
		Help:      "Subscribers dropped for falling behind",
	}, func() float64 {
		if hub != nil {
			return float64(hub.Evicted())
		}
		return 0
	})

	return m
}

func (m *PrometheusMetrics) Publish(event *domain.Event) {
	if event == nil {
		return
	}
	if event.Severity != "" {
		m.eventsBySeverity.WithLabelValues(string(event.Severity)).Inc()
	}
	if event.Threat != "" {
		m.eventsByThreat.WithLabelValues(string(event.Threat)).Inc()
	}
}
