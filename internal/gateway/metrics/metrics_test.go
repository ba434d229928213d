package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aussiebroadwan/gatekeeper/internal/gateway/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *metrics.Metrics
	m.Login(metrics.ResultOK)
	m.Rotation(metrics.ResultRejected)
	m.OTPCheck("verify", metrics.ResultOK)
	m.ActionToken("email_verify", "issue", metrics.ResultOK)

	h := m.Instrument("/x", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestCountersAndHandler(t *testing.T) {
	m := metrics.New()
	m.Login(metrics.ResultOK)
	m.Login(metrics.ResultOK)
	m.Login(metrics.ResultRejected)

	h := m.Instrument("POST /v1/auth/login", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/auth/login", nil))

	expected := `
# HELP gatekeeper_logins_total Password login attempts by outcome.
# TYPE gatekeeper_logins_total counter
gatekeeper_logins_total{result="ok"} 2
gatekeeper_logins_total{result="rejected"} 1
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "gatekeeper_logins_total"))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `gatekeeper_http_requests_total{code="401",method="POST",route="POST /v1/auth/login"} 1`)
}
