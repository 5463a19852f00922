package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gotrs-io/gotrs-mailpipe/internal/email/inbound/postmaster"
)

type stubPinger struct{ err error }

func (p stubPinger) PingContext(context.Context) error { return p.err }

type stubReports struct {
	report postmaster.RunReport
	ok     bool
}

func (s stubReports) LastReport() (postmaster.RunReport, bool) { return s.report, s.ok }

func newTestRouter(db Pinger, reports ReportSource, gatherer prometheus.Gatherer) http.Handler {
	gin.SetMode(gin.TestMode)
	r := NewRouter(db, reports, gatherer, "1.2.3")
	r.SetupRoutes()
	return r.Handler()
}

func serve(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	h.ServeHTTP(w, req)
	return w
}

func TestHealthCheck(t *testing.T) {
	w := serve(t, newTestRouter(stubPinger{}, nil, nil), "/health")
	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "1.2.3", body["version"])

	w = serve(t, newTestRouter(stubPinger{err: errors.New("refused")}, nil, nil), "/health")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "unhealthy")
}

func TestStatusReturnsLastReport(t *testing.T) {
	w := serve(t, newTestRouter(nil, stubReports{}, nil), "/status")
	assert.Equal(t, http.StatusNotFound, w.Code)

	report := postmaster.RunReport{
		RunID:    "run-9",
		State:    postmaster.StateConnectFailed,
		Error:    "attempt 3: connection refused",
		Seen:     0,
		Ingested: 0,
	}
	w = serve(t, newTestRouter(nil, stubReports{report: report, ok: true}, nil), "/status")
	require.Equal(t, http.StatusOK, w.Code)

	var got map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "run-9", got["run_id"])
	assert.Equal(t, "connect_failed", got["state"])
	assert.Equal(t, "attempt 3: connection refused", got["error"])
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "mailpipe_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Add(2)

	w := serve(t, newTestRouter(nil, nil, reg), "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "mailpipe_test_total 2")
}
