package observability

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_IndependentRegistries(t *testing.T) {
	// Two instances must not collide on registration.
	a := NewMetrics("")
	b := NewMetrics("")

	a.RecordSignalStored("WHALE_SWAP")
	assert.Equal(t, 1.0, testutil.ToFloat64(a.SignalsStored.WithLabelValues("WHALE_SWAP")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.SignalsStored.WithLabelValues("WHALE_SWAP")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordBatch(1, 0, time.Millisecond, true)
	m.RecordFiltered()
	m.RecordDedupeHit()
	m.RecordCycle("FAILED", "QUOTING")
	m.RecordTick("no_signal")
}

func TestRecordBatch(t *testing.T) {
	m := NewMetrics("test")
	m.RecordBatch(3, 1, 10*time.Millisecond, true)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.BatchesReceived))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.EventsReceived))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsMalformed))
	assert.Greater(t, testutil.ToFloat64(m.LastSuccessfulIngestion), 0.0)
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := NewMetrics("test")
	m.RecordCycle("SUCCEEDED", "")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `test_execution_cycles_total{stage="",state="SUCCEEDED"} 1`))
	assert.True(t, strings.Contains(string(body), "go_goroutines"))
}
