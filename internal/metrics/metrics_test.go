package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	t.Parallel()

	m := New()
	m.AuthEvent("login", "success")
	m.AuthEvent("login", "success")
	m.GuardRejected("stale_password_change")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.authEvents.WithLabelValues("login", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.guardRejections.WithLabelValues("stale_password_change")))
}

func TestMetrics_InstrumentUsesRoutePattern(t *testing.T) {
	t.Parallel()

	m := New()
	r := chi.NewRouter()
	r.Use(m.Instrument)
	r.Patch("/resetPassword/{token}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})
	r.Handle("/metrics", m.Handler())

	req := httptest.NewRequest(http.MethodPatch, "/resetPassword/secret-token-value", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `route="/resetPassword/{token}"`))
	assert.True(t, strings.Contains(body, `status="400"`))
	assert.False(t, strings.Contains(body, "secret-token-value"))
}
