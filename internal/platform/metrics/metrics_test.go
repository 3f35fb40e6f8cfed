package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/edc/edc/internal/platform/store"
)

func TestObserveStoreCall(t *testing.T) {
	m := New()
	m.ObserveStoreCall(store.KindTrial, "query", store.ErrorKindNone, 10*time.Millisecond)
	m.ObserveStoreCall(store.KindTrial, "query", store.ErrorKindRemoteFailure, time.Millisecond)
	m.ObserveStoreCall(store.KindTrial, "query", store.ErrorKindNone, time.Millisecond)

	if got := testutil.ToFloat64(m.storeCalls.WithLabelValues("trial", "query", "ok")); got != 2 {
		t.Errorf("expected 2 ok calls, got %v", got)
	}
	if got := testutil.ToFloat64(m.storeCalls.WithLabelValues("trial", "query", "remote_failure")); got != 1 {
		t.Errorf("expected 1 failed call, got %v", got)
	}
}

func TestMiddlewareAndHandler(t *testing.T) {
	m := New()
	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/api/v1/trials/:id", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "trial not found")
	})
	e.GET("/metrics", m.Handler())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/trials/abc", nil)
	e.ServeHTTP(httptest.NewRecorder(), req)

	if got := testutil.ToFloat64(m.httpRequests.WithLabelValues("/api/v1/trials/:id", "GET", "404")); got != 1 {
		t.Errorf("expected one 404 on route, got %v", got)
	}

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "edc_http_requests_total") {
		t.Error("expected http counter in exposition")
	}
}

func TestSetSessions(t *testing.T) {
	m := New()
	m.SetSessions(3)
	if got := testutil.ToFloat64(m.sessions); got != 3 {
		t.Errorf("expected 3, got %v", got)
	}
}

func TestObservePanic(t *testing.T) {
	m := New()
	m.ObservePanic("/api/v1/trials")
	m.ObservePanic("/api/v1/trials")
	if got := testutil.ToFloat64(m.panics.WithLabelValues("/api/v1/trials")); got != 2 {
		t.Errorf("expected 2 panics, got %v", got)
	}
}
