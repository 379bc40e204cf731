package observability

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_NilIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveAppend("stored")
		m.ObserveStoreError("recency", "push")
		m.ObserveDegraded("timeout")
		m.ObserveClear("ok")
		m.ObserveAssemble(time.Millisecond, 0.5, 2)
		m.ObserveEmpty("no_history")
	})
}

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics("convmem")
	m.ObserveAppend("stored")
	m.ObserveAppend("stored")
	m.ObserveDegraded("semantic_unavailable")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Appends.WithLabelValues("stored")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Degraded.WithLabelValues("semantic_unavailable")))

	// a second instance must not collide with the first
	other := NewMetrics("convmem")
	assert.Equal(t, 0.0, testutil.ToFloat64(other.Appends.WithLabelValues("stored")))
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics("convmem")
	m.ObserveAssemble(12*time.Millisecond, 0.7, 3)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "convmem_assemble_latency_ms_bucket")
	assert.Contains(t, string(body), "convmem_selected_turns_count 1")
}
