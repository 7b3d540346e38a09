package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
)

func TestHTTPMetricsRecordsRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)

	route := "/api/v1/beats/{beatId}"
	m.Observe("GET", route, 200, 15*time.Millisecond)
	m.Observe("GET", route, 404, 5*time.Millisecond)
	m.Observe("GET", "", 404, time.Millisecond)

	notFound := series(t, reg, "beatstore_http_requests_total", map[string]string{"route": route, "status": "404"})
	assert.Equal(t, float64(1), notFound.GetCounter().GetValue())

	unknown := series(t, reg, "beatstore_http_requests_total", map[string]string{"route": "unknown"})
	assert.Equal(t, float64(1), unknown.GetCounter().GetValue())

	latency := series(t, reg, "beatstore_http_request_duration_seconds", map[string]string{"route": route})
	assert.Equal(t, uint64(2), latency.GetHistogram().GetSampleCount())
	assert.InDelta(t, 0.02, latency.GetHistogram().GetSampleSum(), 0.0001)
}

func TestHTTPMetricsNilSafe(t *testing.T) {
	var m *HTTPMetrics
	m.Observe("GET", "/", 200, time.Millisecond)
	NewHTTPMetrics(nil).Observe("GET", "/", 200, time.Millisecond)
}
