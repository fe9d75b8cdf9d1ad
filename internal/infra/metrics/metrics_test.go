package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncAudit("full", "ok")
		m.ObserveStage("fetch", time.Second)
		m.IncRegistryAttempt("error")
		m.IncRegistryCache("hit")
		m.IncAIBackend("openai", "ok")
		m.StartRequest("GET")(200)
	})
}

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.IncAudit("express", "ok")
	m.IncAudit("express", "ok")
	m.IncRegistryAttempt("error")
	done := m.StartRequest("POST")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPInFlight))
	done(503)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.AuditsTotal.WithLabelValues("express", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RegistryAttempts.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("POST", "5xx")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.HTTPInFlight))
}
