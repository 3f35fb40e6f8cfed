package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/edc/edc/internal/config"
	"github.com/edc/edc/internal/platform/auth"
	"github.com/edc/edc/internal/platform/blobstore"
	"github.com/edc/edc/internal/platform/metrics"
	"github.com/edc/edc/internal/platform/storeconn"
)

func testConfig() *config.Config {
	return &config.Config{
		Port:                  "0",
		Env:                   "development",
		StoreURL:              "memory://",
		StoreTimeout:          5 * time.Second,
		DefaultTenant:         "default",
		CORSOrigins:           []string{"http://localhost:3000"},
		RequestTimeout:        5 * time.Second,
		RateLimitRPS:          1000,
		RateLimitBurst:        1000,
		BodyLimit:             "1M",
		IntegrityCheckParents: true,
		IntegrityDeletePolicy: "allow",
		SessionIdleTimeout:    time.Minute,
		ExportDriver:          "memory",
	}
}

func newTestServer(t *testing.T, cfg *config.Config) *echo.Echo {
	t.Helper()
	m := metrics.New()
	conn, err := storeconn.Open(context.Background(), storeconn.Options{URL: cfg.StoreURL, Timeout: cfg.StoreTimeout, Observer: m}, zerolog.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(conn.Close)

	e, _, err := newServer(cfg, conn, blobstore.NewInMemoryBlobStore(), m, zerolog.Nop())
	if err != nil {
		t.Fatalf("newServer: %v", err)
	}
	return e
}

func call(e *echo.Echo, method, path, body string, header ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestServer_Health(t *testing.T) {
	e := newTestServer(t, testConfig())

	rec := call(e, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"store":"memory"`) {
		t.Errorf("health: %d %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected a request id on every response")
	}

	rec = call(e, http.MethodGet, "/health/store", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "healthy") {
		t.Errorf("store health: %d %s", rec.Code, rec.Body.String())
	}
}

func TestServer_TrialsAndMetrics(t *testing.T) {
	e := newTestServer(t, testConfig())

	rec := call(e, http.MethodPost, "/api/v1/trials", `{"name":"Cardio"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rec.Code, rec.Body.String())
	}
	rec = call(e, http.MethodGet, "/api/v1/trials", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Cardio") {
		t.Fatalf("list: %d %s", rec.Code, rec.Body.String())
	}

	rec = call(e, http.MethodPost, "/api/v1/subjects", `{"subject_code":"S-1","trial_id":"`+"00000000-0000-0000-0000-000000000001"+`"}`)
	if rec.Code != http.StatusBadRequest && rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("subject under a missing trial: expected rejection, got %d %s", rec.Code, rec.Body.String())
	}

	rec = call(e, http.MethodGet, "/metrics", "")
	body := rec.Body.String()
	if rec.Code != http.StatusOK || !strings.Contains(body, "edc_http_requests_total") || !strings.Contains(body, "edc_store_calls_total") {
		t.Errorf("metrics missing series: %d", rec.Code)
	}
}

func TestServer_ExportAndDownload(t *testing.T) {
	e := newTestServer(t, testConfig())

	rec := call(e, http.MethodPost, "/api/v1/trials", `{"name":"Onco"}`)
	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil || created.ID == "" {
		t.Fatalf("create trial: %v %s", err, rec.Body.String())
	}

	rec = call(e, http.MethodPost, "/api/v1/trials/"+created.ID+"/export?format=csv", "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("export: %d %s", rec.Code, rec.Body.String())
	}
	var meta blobstore.Metadata
	if err := json.Unmarshal(rec.Body.Bytes(), &meta); err != nil {
		t.Fatalf("decode metadata: %v", err)
	}
	if meta.TrialID != created.ID || meta.Format != "csv" {
		t.Errorf("unexpected metadata %+v", meta)
	}

	rec = call(e, http.MethodGet, "/api/v1/exports/"+meta.Key, "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Onco") {
		t.Errorf("download: %d %s", rec.Code, rec.Body.String())
	}
}

func TestServer_PageSession(t *testing.T) {
	e := newTestServer(t, testConfig())
	call(e, http.MethodPost, "/api/v1/trials", `{"name":"Neuro"}`)

	rec := call(e, http.MethodPost, "/api/v1/pages/trials", "")
	if rec.Code != http.StatusCreated || !strings.Contains(rec.Body.String(), "Neuro") {
		t.Fatalf("open page: %d %s", rec.Code, rec.Body.String())
	}
	var opened struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &opened); err != nil {
		t.Fatalf("decode: %v", err)
	}
	rec = call(e, http.MethodDelete, "/api/v1/pages/sessions/"+opened.SessionID, "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("close: %d", rec.Code)
	}
}

func TestServer_DataEndpoint(t *testing.T) {
	e := newTestServer(t, testConfig())

	rec := call(e, http.MethodPost, "/data/v1/trial", `{"fields":{"name":"Wire"}}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("wire create: %d %s", rec.Code, rec.Body.String())
	}
	rec = call(e, http.MethodGet, "/api/v1/trials", "")
	if !strings.Contains(rec.Body.String(), "Wire") {
		t.Errorf("record written on the wire endpoint not visible: %s", rec.Body.String())
	}
	if rec := call(e, http.MethodGet, "/data/v1/nope/abc", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown kind: expected 404, got %d", rec.Code)
	}
}

func signedToken(t *testing.T, key []byte, subject string, roles ...string) string {
	t.Helper()
	claims := auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Roles: roles,
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

func TestServer_JWTRoles(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")
	cfg := testConfig()
	cfg.Env = "production"
	cfg.AuthSigningKey = hex.EncodeToString(key)
	e := newTestServer(t, cfg)

	if rec := call(e, http.MethodGet, "/health", ""); rec.Code != http.StatusOK {
		t.Errorf("health must not need a token, got %d", rec.Code)
	}
	if rec := call(e, http.MethodGet, "/api/v1/trials", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("missing token: expected 401, got %d", rec.Code)
	}

	monitor := "Bearer " + signedToken(t, key, "mon-1", auth.RoleMonitor)
	if rec := call(e, http.MethodGet, "/api/v1/trials", "", "Authorization", monitor); rec.Code != http.StatusOK {
		t.Errorf("monitor read: expected 200, got %d", rec.Code)
	}
	if rec := call(e, http.MethodPost, "/api/v1/trials", `{"name":"X"}`, "Authorization", monitor); rec.Code != http.StatusForbidden {
		t.Errorf("monitor write: expected 403, got %d", rec.Code)
	}

	query := `{"columns":["name"]}`
	if rec := call(e, http.MethodPost, "/data/v1/trial/query", query, "Authorization", monitor); rec.Code != http.StatusOK {
		t.Errorf("monitor store query: expected 200, got %d", rec.Code)
	}
	if rec := call(e, http.MethodPost, "/data/v1/trial", `{"fields":{"name":"X"}}`, "Authorization", monitor); rec.Code != http.StatusForbidden {
		t.Errorf("monitor store write: expected 403, got %d", rec.Code)
	}

	manager := "Bearer " + signedToken(t, key, "dm-1", auth.RoleDataManager)
	if rec := call(e, http.MethodPost, "/api/v1/trials", `{"name":"X"}`, "Authorization", manager); rec.Code != http.StatusCreated {
		t.Errorf("data manager write: expected 201, got %d", rec.Code)
	}
}

func TestServer_BodyLimit(t *testing.T) {
	cfg := testConfig()
	cfg.BodyLimit = "1K"
	e := newTestServer(t, cfg)

	big := `{"name":"` + strings.Repeat("x", 2048) + `"}`
	if rec := call(e, http.MethodPost, "/api/v1/trials", big); rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %d", rec.Code)
	}
}

func TestServer_BadPolicy(t *testing.T) {
	cfg := testConfig()
	cfg.IntegrityDeletePolicy = "sometimes"
	conn, err := storeconn.Open(context.Background(), storeconn.Options{URL: "memory://"}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	if _, _, err := newServer(cfg, conn, blobstore.NewInMemoryBlobStore(), metrics.New(), zerolog.Nop()); err == nil {
		t.Error("expected an unknown delete policy to be rejected")
	}
}

func TestResolveSigningKey(t *testing.T) {
	if key, err := resolveSigningKey(""); err != nil || key != nil {
		t.Errorf("empty: %v %v", key, err)
	}
	if key, err := resolveSigningKey("6b6579"); err != nil || string(key) != "key" {
		t.Errorf("hex: %q %v", key, err)
	}
	if _, err := resolveSigningKey("not-hex"); err == nil {
		t.Error("expected an error for invalid hex")
	}
}

func TestCommands_Validation(t *testing.T) {
	t.Setenv("STORE_URL", "memory://")

	tests := []struct {
		args []string
		want string
	}{
		{[]string{"export", "--trial", "nope"}, "--trial must be a trial id"},
		{[]string{"export", "--trial", "00000000-0000-0000-0000-000000000001", "--format", "xml"}, "format"},
		{[]string{"migrate", "up"}, "postgres"},
		{[]string{"tenant", "create"}, "--name is required"},
	}
	for _, tt := range tests {
		root := newRootCmd()
		var out bytes.Buffer
		root.SetOut(&out)
		root.SetErr(&out)
		root.SetArgs(tt.args)
		err := root.Execute()
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("%v: expected error containing %q, got %v", tt.args, tt.want, err)
		}
	}
}

func TestCommands_ExportMissingTrial(t *testing.T) {
	t.Setenv("STORE_URL", "memory://")
	t.Setenv("EXPORT_DRIVER", "memory")

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"export", "--trial", "00000000-0000-0000-0000-000000000001"})
	if err := root.Execute(); err == nil {
		t.Error("expected exporting an unknown trial to fail")
	}
}

func TestCommands_ServeRejectsBadConfig(t *testing.T) {
	t.Setenv("STORE_URL", "ftp://nowhere")

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"serve"})
	err := root.Execute()
	if err == nil || !strings.Contains(err.Error(), "STORE_URL scheme") {
		t.Errorf("expected serve to fail on the store scheme, got %v", err)
	}
}
