package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordCapture(t *testing.T) {
	m := New()
	m.RecordCapture("primary", "done", 3, 20*time.Millisecond)
	m.RecordCapture("fallback", "done", 1, time.Millisecond)
	m.RecordCapture("primary", "done", 2, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.capturesTotal.WithLabelValues("primary", "done")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.capturesTotal.WithLabelValues("fallback", "done")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.captureDuration))
}

func TestRecordQueryAndCommand(t *testing.T) {
	m := New()
	m.RecordQuery("find_by_title", "not_found")
	m.RecordQuery("find_by_title", "not_found")
	m.RecordCommand("get_windows", true)
	m.RecordCommand("bogus", false)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.queriesTotal.WithLabelValues("find_by_title", "not_found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.commandsTotal.WithLabelValues("get_windows", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.commandsTotal.WithLabelValues("bogus", "false")))
}

func TestTrackInflight(t *testing.T) {
	m := New()
	done := m.TrackInflight()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.inflight))
	done()
	assert.Equal(t, 0.0, testutil.ToFloat64(m.inflight))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordCapture("primary", "done", 1, time.Second)
		m.RecordQuery("list", "ok")
		m.RecordCommand("x", true)
		m.TrackInflight()()
	})
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.RecordQuery("list", "ok")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `deskctl_queries_total{operation="list",outcome="ok"} 1`)
}
