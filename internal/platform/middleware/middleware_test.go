package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/edc/edc/internal/platform/auth"
)

func ok(c echo.Context) error { return c.String(http.StatusOK, "ok") }

func TestRequestID_GeneratesNew(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	var seen string
	err := RequestID()(func(c echo.Context) error {
		seen = c.Get("request_id").(string)
		return ok(c)
	})(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seen == "" || rec.Header().Get(RequestIDHeader) != seen {
		t.Errorf("expected generated id echoed, got %q / %q", seen, rec.Header().Get(RequestIDHeader))
	}
}

func TestRequestID_PreservesExisting(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "my-custom-id")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	_ = RequestID()(ok)(c)
	if rec.Header().Get(RequestIDHeader) != "my-custom-id" {
		t.Errorf("expected my-custom-id, got %s", rec.Header().Get(RequestIDHeader))
	}
}

func TestLogger_LevelByStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	e := echo.New()

	tests := []struct {
		handler echo.HandlerFunc
		level   string
		status  float64
	}{
		{ok, "info", 200},
		{func(echo.Context) error { return echo.NewHTTPError(http.StatusNotFound, "nope") }, "warn", 404},
		{func(echo.Context) error { return echo.NewHTTPError(http.StatusBadGateway, "store down") }, "error", 502},
	}
	for _, tt := range tests {
		buf.Reset()
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/trials", nil), httptest.NewRecorder())
		_ = Logger(logger)(tt.handler)(c)

		var line map[string]any
		if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
			t.Fatalf("decode log line %q: %v", buf.String(), err)
		}
		if line["level"] != tt.level || line["status"] != tt.status || line["path"] != "/api/v1/trials" {
			t.Errorf("unexpected log line %v", line)
		}
	}
}

type panicCounter map[string]int

func (p panicCounter) ObservePanic(route string) { p[route]++ }

func TestRecovery(t *testing.T) {
	e := echo.New()
	counts := panicCounter{}
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/panic", nil), rec)
	c.SetPath("/panic")
	c.Set("request_id", "req-42")
	if err := Recovery(zerolog.Nop(), counts)(func(echo.Context) error { panic("boom") })(c); err != nil {
		t.Fatalf("expected the panic to be answered, got %v", err)
	}
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["request_id"] != "req-42" || body["error"] == "" {
		t.Errorf("unexpected body %v", body)
	}
	if counts["/panic"] != 1 {
		t.Errorf("expected one observed panic, got %v", counts)
	}

	rec = httptest.NewRecorder()
	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/half", nil), rec)
	half := func(c echo.Context) error {
		_ = c.String(http.StatusOK, "partial")
		panic("late")
	}
	if err := Recovery(zerolog.Nop())(half)(c); err != nil {
		t.Errorf("a started response must not be rewritten, got %v", err)
	}
	if rec.Body.String() != "partial" {
		t.Errorf("unexpected body %q", rec.Body.String())
	}

	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/ok", nil), httptest.NewRecorder())
	if err := Recovery(zerolog.Nop())(ok)(c); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRequestTimeout(t *testing.T) {
	slow := func(c echo.Context) error {
		select {
		case <-time.After(5 * time.Second):
			return ok(c)
		case <-c.Request().Context().Done():
			return c.Request().Context().Err()
		}
	}
	e := echo.New()

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/trials", nil), rec)
	if err := RequestTimeout(50*time.Millisecond)(slow)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusGatewayTimeout {
		t.Errorf("expected 504, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/trials", nil), rec)
	if err := RequestTimeout(time.Second)(ok)(c); err != nil || rec.Code != http.StatusOK {
		t.Errorf("fast handler: %v %d", err, rec.Code)
	}

	var deadline bool
	rec = httptest.NewRecorder()
	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/exports/abc", nil), rec)
	_ = RequestTimeout(time.Millisecond, "/api/v1/exports/")(func(c echo.Context) error {
		_, deadline = c.Request().Context().Deadline()
		return ok(c)
	})(c)
	if deadline {
		t.Error("skipped paths must run without a deadline")
	}
}

func TestSecurityHeaders(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	_ = SecurityHeaders()(ok)(e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec))
	for h, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Cache-Control":          "no-store",
		"Referrer-Policy":        "no-referrer",
	} {
		if got := rec.Header().Get(h); got != want {
			t.Errorf("%s = %q, want %q", h, got, want)
		}
	}
}

func TestRateLimit_PerUser(t *testing.T) {
	e := echo.New()
	h := RateLimit(RateLimitConfig{RequestsPerSecond: 0.001, BurstSize: 2})(ok)

	call := func(user string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(context.WithValue(req.Context(), auth.UserIDKey, user))
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		if err := h(c); err != nil {
			e.HTTPErrorHandler(err, c)
		}
		return rec
	}

	for i := 0; i < 2; i++ {
		if rec := call("alice"); rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rec.Code)
		}
	}
	rec := call("alice")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" || rec.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Error("expected Retry-After and X-RateLimit-Remaining headers")
	}
	if rec := call("bob"); rec.Code != http.StatusOK {
		t.Errorf("other users keep their own budget, got %d", rec.Code)
	}
}

func TestTokenBucket_Refills(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	b := newTokenBucket(1, 1, start)
	if allowed, _ := b.take(start); !allowed {
		t.Fatal("first token must be available")
	}
	if allowed, retry := b.take(start); allowed || retry != 2 {
		t.Errorf("expected refusal with retry 2, got %v %d", allowed, retry)
	}
	if allowed, _ := b.take(start.Add(1500 * time.Millisecond)); !allowed {
		t.Error("expected refill after 1.5s")
	}
}

func TestParseLimit(t *testing.T) {
	tests := []struct {
		input string
		want  int64
	}{
		{"1M", 1 << 20},
		{"10MB", 10 << 20},
		{"512K", 512 << 10},
		{"1G", 1 << 30},
		{"1024", 1024},
		{"", 1 << 20},
		{"invalid", 1 << 20},
		{"-5K", 1 << 20},
	}
	for _, tt := range tests {
		if got := parseLimit(tt.input); got != tt.want {
			t.Errorf("parseLimit(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

func TestBodyLimit(t *testing.T) {
	e := echo.New()
	readAll := func(c echo.Context) error {
		if _, err := io.ReadAll(c.Request().Body); err != nil {
			return err
		}
		return c.NoContent(http.StatusCreated)
	}

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x"}`)), rec)
	if err := BodyLimit("1K")(readAll)(c); err != nil || rec.Code != http.StatusCreated {
		t.Errorf("small body: %v %d", err, rec.Code)
	}

	rec = httptest.NewRecorder()
	c = e.NewContext(httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(bytes.Repeat([]byte("x"), 2048))), rec)
	if err := BodyLimit("1K")(readAll)(c); err != nil || rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("content length check: %v %d", err, rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/", io.NopCloser(bytes.NewReader(bytes.Repeat([]byte("x"), 2048))))
	req.ContentLength = -1
	c = e.NewContext(req, httptest.NewRecorder())
	err := BodyLimit("1K")(readAll)(c)
	if he, isHTTP := err.(*echo.HTTPError); !isHTTP || he.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("streamed body: expected 413 error, got %v", err)
	}
}

func TestAudit(t *testing.T) {
	e := echo.New()
	id := uuid.New()
	var got []AuditEntry
	rec := AuditRecorderFunc(func(entry AuditEntry) error {
		got = append(got, entry)
		return nil
	})

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/crfs/"+id.String(), nil)
	req = req.WithContext(context.WithValue(req.Context(), auth.UserIDKey, "dm-1"))
	c := e.NewContext(req, httptest.NewRecorder())
	c.Set("request_id", "req-1")
	_ = Audit(zerolog.Nop(), rec)(func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })(c)

	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/health", nil), httptest.NewRecorder())
	_ = Audit(zerolog.Nop(), rec)(ok)(c)

	if len(got) != 1 {
		t.Fatalf("expected only the API call audited, got %d", len(got))
	}
	entry := got[0]
	if entry.Entity != "crfs" || entry.EntityID != id.String() || entry.Action != "delete" ||
		entry.UserID != "dm-1" || entry.RequestID != "req-1" || entry.StatusCode != http.StatusNoContent {
		t.Errorf("unexpected entry %+v", entry)
	}
}

func TestEntityFromPath(t *testing.T) {
	id := uuid.NewString()
	tests := []struct {
		path, entity, id string
	}{
		{"/api/v1/trials", "trials", ""},
		{"/api/v1/crfs/" + id + "/items", "crfs", id},
		{"/api/v1/pages/sessions/abc", "pages", ""},
		{"/api/v1/", "unknown", ""},
	}
	for _, tt := range tests {
		entity, got := entityFromPath(tt.path)
		if entity != tt.entity || got != tt.id {
			t.Errorf("%s: got %s %q", tt.path, entity, got)
		}
	}
}
