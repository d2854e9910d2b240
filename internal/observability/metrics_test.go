package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_IsolatedRegistries(t *testing.T) {
	// two instances on separate registries must not panic on duplicate registration
	a := NewMetrics("t", prometheus.NewRegistry())
	b := NewMetrics("t", nil)

	a.RecordSignal("BUY")
	a.RecordSignal("BUY")
	b.RecordSignal("BUY")

	assert.Equal(t, 2.0, testutil.ToFloat64(a.Signals.WithLabelValues("BUY")))
	assert.Equal(t, 1.0, testutil.ToFloat64(b.Signals.WithLabelValues("BUY")))
}

func TestMetrics_RecordExecution(t *testing.T) {
	m := NewMetrics("t", nil)

	m.RecordExecution("FAILED", "", 1, time.Second)
	m.RecordExecution("CONFIRMED", "", 2, 3*time.Second)
	m.RecordExecution("FAILED", "BROADCAST_REJECTED", 3, time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Executions.WithLabelValues("FAILED", "none")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Executions.WithLabelValues("CONFIRMED", "none")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Executions.WithLabelValues("FAILED", "BROADCAST_REJECTED")))
	assert.Greater(t, testutil.ToFloat64(m.LastExecutedUnixTS), 0.0)
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics("t", nil)
	m.RecordDecision("COOLDOWN")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `t_gate_decisions_total{reason="COOLDOWN"} 1`)
}
