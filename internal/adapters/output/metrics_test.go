package output

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/authtail/authtail/internal/app"
	"github.com/authtail/authtail/internal/domain"
)

func TestPrometheusMetrics_CountsBySeverityAndThreat(t *testing.T) {
	// Collectors register globally, so this test owns its namespace.
	metrics := domain.NewPipelineMetrics()
	hub := app.NewHub(16)
	defer hub.Close()

	m := NewPrometheusMetrics("authtail_test", metrics, hub)

	brute := domain.Classification{
		Matched:    true,
		ThreatType: domain.ThreatTypeBruteForce,
		Severity:   domain.SeverityHigh,
	}
	m.Publish(domain.NewEvent("Failed password", "test", brute))
	m.Publish(domain.NewEvent("Failed password again", "test", brute))
	m.Publish(domain.NewEvent("plain line", "test", domain.NoMatch("", "")))
	m.Publish(nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.eventsBySeverity.WithLabelValues("HIGH")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.eventsByThreat.WithLabelValues("BRUTE_FORCE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.eventsBySeverity.WithLabelValues("INFO")))

	metrics.IncrementLines()
	metrics.IncrementLines()
	assert.Equal(t, 2.0, testutil.ToFloat64(m.linesRead))

	hub.Subscribe()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.subscribers))
}
