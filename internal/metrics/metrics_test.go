package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RegistersWithoutConflict(t *testing.T) {
	reg := NewRegistry()

	require.NotPanics(t, func() {
		New(reg)
		NewHTTPMetrics(reg)
	})
}

func TestMetrics_Counters(t *testing.T) {
	m := New(NewRegistry())

	m.UserRegistered()
	m.UserRegistered()
	m.UserRemoved()
	m.SessionStarted()
	m.SessionsEndedBy(EndReasonLogout, 1)
	m.SessionsEndedBy(EndReasonShutdown, 3)
	m.SessionsEndedBy(EndReasonShutdown, 0)
	m.Purged(4)
	m.PurgeFailed()
	m.SetPurgesPending(2)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.UsersRegistered))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UsersRemoved))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsStarted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsEnded.WithLabelValues(EndReasonLogout)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.SessionsEnded.WithLabelValues(EndReasonShutdown)))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.SessionsPurged))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PurgeFailures))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.PurgesPending))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	var h *HTTPMetrics

	assert.NotPanics(t, func() {
		m.UserRegistered()
		m.UserRemoved()
		m.SessionStarted()
		m.SessionsEndedBy(EndReasonLogout, 1)
		m.Purged(1)
		m.PurgeFailed()
		m.SetPurgesPending(1)
		m.ObserveRegistry(func() int { return 0 }, func() int { return 0 })
		h.Begin()
		h.Observe("GET", "/api/system/info", "200", time.Millisecond)
		h.End()
	})
}

func TestHandler_ExposesRegistryGauges(t *testing.T) {
	reg := NewRegistry()
	m := New(reg)
	m.ObserveRegistry(func() int { return 3 }, func() int { return 5 })

	h := NewHTTPMetrics(reg)
	h.Observe("POST", "POST /api/sessions/login", "200", 10*time.Millisecond)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "accessmon_registry_users 3"), "missing size gauge")
	assert.True(t, strings.Contains(body, "accessmon_registry_capacity 5"), "missing capacity gauge")
	assert.Contains(t, body, `accessmon_http_requests_total{method="POST",route="POST /api/sessions/login",status_code="200"} 1`)
	assert.Contains(t, body, "go_goroutines")
}
