package middleware

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/cfpminer/internal/infrastructure/monitoring/prometheus"
)

func TestMetrics_RecordsRouteTemplate(t *testing.T) {
	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{Namespace: "t"}, nil)
	require.NoError(t, err)
	r := newEngine(Metrics(prometheus.NewMiningMetrics(collector)))

	get(r, "/ok")
	get(r, "/ok")
	get(r, "/fail")
	get(r, "/nowhere/123")

	w := httptest.NewRecorder()
	collector.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(w.Body)
	require.NoError(t, err)
	text := string(body)

	assert.Contains(t, text, `t_http_requests_total{method="GET",route="/ok",status_code="200"} 2`)
	assert.Contains(t, text, `t_http_requests_total{method="GET",route="/fail",status_code="500"} 1`)
	assert.Contains(t, text, `t_http_requests_total{method="GET",route="unmatched",status_code="404"} 1`)
	assert.NotContains(t, text, "/nowhere/123")
}

func TestMetrics_NilIsPassThrough(t *testing.T) {
	r := newEngine(Metrics(nil))
	assert.Equal(t, 200, get(r, "/ok").Code)
}
