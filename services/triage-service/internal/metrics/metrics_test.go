package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.Notification("processed")
	m.Notification("processed")
	m.Notification("duplicate")
	m.Classification("finance-fees")
	m.RedactionFailure()
	m.TaggingFailure()
	m.Renewal(true)
	m.Renewal(false)
	m.ObserveProcessing(time.Now())

	assert.Equal(t, 2.0, testutil.ToFloat64(m.notifications.WithLabelValues("processed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notifications.WithLabelValues("duplicate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.classifications.WithLabelValues("finance-fees")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.redactionFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.renewals.WithLabelValues("failed")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Notification("processed")
		m.Classification("general")
		m.RedactionFailure()
		m.TaggingFailure()
		m.Renewal(true)
		m.ObserveProcessing(time.Now())
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.Notification("processed")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `triage_notifications_total{outcome="processed"} 1`)
}
