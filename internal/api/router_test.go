package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/orgspace/orgspace/internal/audit"
	"github.com/orgspace/orgspace/internal/auth"
	"github.com/orgspace/orgspace/internal/config"
	"github.com/orgspace/orgspace/internal/credential"
	"github.com/orgspace/orgspace/internal/docstore/memory"
	"github.com/orgspace/orgspace/internal/registry"
	"github.com/orgspace/orgspace/internal/tenant"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// ---------------------------------------------------------------------------
// healthCheckHandler / readinessHandler
// ---------------------------------------------------------------------------

func TestHealthCheckHandler_Healthy(t *testing.T) {
	r := gin.New()
	r.GET("/health", healthCheckHandler(func(context.Context) error { return nil }))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	body := decode(t, w)
	if body["status"] != "healthy" {
		t.Errorf("status field = %v, want healthy", body["status"])
	}
}

func TestHealthCheckHandler_Unhealthy(t *testing.T) {
	r := gin.New()
	r.GET("/health", healthCheckHandler(func(context.Context) error { return errors.New("down") }))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
	if body := decode(t, w); body["status"] != "unhealthy" {
		t.Errorf("status field = %v, want unhealthy", body["status"])
	}
}

func TestReadinessHandler_Ready(t *testing.T) {
	checks := []ReadinessCheck{
		{Name: "docstore", Check: func(context.Context) error { return nil }},
		{Name: "archive", Check: func(context.Context) error { return nil }},
	}
	r := gin.New()
	r.GET("/ready", readinessHandler(checks))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	body := decode(t, w)
	if body["ready"] != true {
		t.Errorf("ready = %v, want true", body["ready"])
	}
	results, _ := body["checks"].(map[string]interface{})
	if results["docstore"] != "healthy" || results["archive"] != "healthy" {
		t.Errorf("checks = %v", results)
	}
}

func TestReadinessHandler_NotReady(t *testing.T) {
	called := false
	checks := []ReadinessCheck{
		{Name: "docstore", Check: func(context.Context) error { return errors.New("timeout") }},
		{Name: "archive", Check: func(context.Context) error { called = true; return nil }},
	}
	r := gin.New()
	r.GET("/ready", readinessHandler(checks))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
	if body := decode(t, w); body["error"] != "docstore not ready" {
		t.Errorf("error = %v", body["error"])
	}
	if called {
		t.Error("checks after the first failure should not run")
	}
}

func TestVersionHandler(t *testing.T) {
	r := gin.New()
	r.GET("/version", versionHandler())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/version", nil))

	body := decode(t, w)
	if body["version"] != Version {
		t.Errorf("version = %v, want %s", body["version"], Version)
	}
	if body["api_version"] != "v1" {
		t.Errorf("api_version = %v, want v1", body["api_version"])
	}
}

// ---------------------------------------------------------------------------
// LoggerMiddleware
// ---------------------------------------------------------------------------

func TestLoggerMiddleware(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	r := gin.New()
	r.Use(LoggerMiddleware())
	r.GET("/missing", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))

	var rec map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("log record is not JSON: %v (%q)", err, buf.String())
	}
	if rec["level"] != "WARN" {
		t.Errorf("level = %v, want WARN for 404", rec["level"])
	}
	if rec["path"] != "/missing" || rec["method"] != "GET" {
		t.Errorf("record = %v", rec)
	}
	if rec["status"] != float64(http.StatusNotFound) {
		t.Errorf("status = %v", rec["status"])
	}
}

// ---------------------------------------------------------------------------
// CORSMiddleware
// ---------------------------------------------------------------------------

func corsRouter(origins ...string) *gin.Engine {
	cfg := &config.Config{}
	cfg.Security.CORS.AllowedOrigins = origins
	r := gin.New()
	r.Use(CORSMiddleware(cfg))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestCORSMiddleware_AllowedOrigin(t *testing.T) {
	r := corsRouter("https://app.example.com")
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("Allow-Origin = %q", got)
	}
	if got := w.Header().Get("Vary"); got != "Origin" {
		t.Errorf("Vary = %q, want Origin", got)
	}
}

func TestCORSMiddleware_Wildcard(t *testing.T) {
	r := corsRouter("*")
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://anything.example")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Allow-Origin = %q, want *", got)
	}
}

func TestCORSMiddleware_DisallowedOrigin(t *testing.T) {
	r := corsRouter("https://app.example.com")
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://evil.example")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Allow-Origin = %q, want empty", got)
	}
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestCORSMiddleware_PreflightOptions(t *testing.T) {
	r := corsRouter("*")
	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", w.Code)
	}
	if !strings.Contains(w.Header().Get("Access-Control-Allow-Methods"), "PUT") {
		t.Errorf("Allow-Methods = %q", w.Header().Get("Access-Control-Allow-Methods"))
	}
}

// ---------------------------------------------------------------------------
// NewRouter end to end
// ---------------------------------------------------------------------------

type testServer struct {
	router *gin.Engine
	store  *memory.Store
}

func newTestServer(t *testing.T, mutate ...func(*config.Config)) *testServer {
	t.Helper()
	return newAuditedTestServer(t, nil, mutate...)
}

func newAuditedTestServer(t *testing.T, shipper audit.Shipper, mutate ...func(*config.Config)) *testServer {
	t.Helper()
	store := memory.New()
	catalog := registry.NewDocRegistry(store, "")
	if err := catalog.EnsureIndexes(context.Background()); err != nil {
		t.Fatalf("EnsureIndexes: %v", err)
	}
	tokens, err := auth.NewTokenService("router-test-secret", "HS256")
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mgr := tenant.NewManager(store, catalog, credential.NewBcrypt(4), tokens, tenant.WithLogger(logger))

	cfg := &config.Config{}
	for _, m := range mutate {
		m(cfg)
	}
	router, bg := NewRouter(cfg, Dependencies{
		Tenants:  mgr,
		Tokens:   tokens,
		Authz:    mgr,
		Liveness: mgr.Ping,
		Readiness: []ReadinessCheck{
			{Name: "docstore", Check: store.Ping},
		},
		Audit: shipper,
	})
	t.Cleanup(bg.Shutdown)
	return &testServer{router: router, store: store}
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) createAndLogin(t *testing.T, org, email string) string {
	t.Helper()
	w := s.do(t, http.MethodPost, "/org/create", "", map[string]string{
		"organization_name": org,
		"admin_email":       email,
		"admin_password":    "secret123",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("create %s: status = %d body = %s", org, w.Code, w.Body.String())
	}
	w = s.do(t, http.MethodPost, "/admin/login", "", map[string]string{"email": email, "password": "secret123"})
	if w.Code != http.StatusOK {
		t.Fatalf("login %s: status = %d body = %s", email, w.Code, w.Body.String())
	}
	token, _ := decode(t, w)["access_token"].(string)
	if token == "" {
		t.Fatal("login returned no access_token")
	}
	return token
}

func TestRouter_RootAndSystem(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/", "", nil)
	if w.Code != http.StatusOK || decode(t, w)["msg"] == nil {
		t.Errorf("GET / = %d %s", w.Code, w.Body.String())
	}
	if w := s.do(t, http.MethodGet, "/health", "", nil); w.Code != http.StatusOK {
		t.Errorf("GET /health = %d", w.Code)
	}
	if w := s.do(t, http.MethodGet, "/ready", "", nil); w.Code != http.StatusOK {
		t.Errorf("GET /ready = %d", w.Code)
	}
	if got := w.Header().Get("X-Request-ID"); got == "" {
		t.Error("missing X-Request-ID header")
	}
}

func TestRouter_OrganizationLifecycle(t *testing.T) {
	s := newTestServer(t)
	token := s.createAndLogin(t, "Acme", "admin@acme.io")

	w := s.do(t, http.MethodGet, "/org/get/ACME", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get: %d %s", w.Code, w.Body.String())
	}
	if body := decode(t, w); body["collection_name"] != "org_acme" {
		t.Errorf("collection_name = %v", body["collection_name"])
	}

	w = s.do(t, http.MethodPost, "/data/widgets", token, map[string]interface{}{"name": "sprocket"})
	if w.Code != http.StatusCreated {
		t.Fatalf("insert: %d %s", w.Code, w.Body.String())
	}

	w = s.do(t, http.MethodPut, "/org/update?new_org_name=Globex", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("rename: %d %s", w.Code, w.Body.String())
	}
	if body := decode(t, w); body["collection_name"] != "org_globex" {
		t.Errorf("renamed collection_name = %v", body["collection_name"])
	}
	if s.store.HasNamespace("org_acme") {
		t.Error("old namespace still present after rename")
	}

	// The token names the old organization and no longer resolves.
	if w := s.do(t, http.MethodGet, "/data", token, nil); w.Code != http.StatusUnauthorized {
		t.Errorf("stale token: status = %d, want 401", w.Code)
	}

	w = s.do(t, http.MethodPost, "/admin/login", "", map[string]string{"email": "admin@acme.io", "password": "secret123"})
	token, _ = decode(t, w)["access_token"].(string)

	w = s.do(t, http.MethodGet, "/data/widgets", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list docs: %d %s", w.Code, w.Body.String())
	}
	if body := decode(t, w); body["count"] != float64(1) {
		t.Errorf("migrated documents = %v, want 1", body["count"])
	}

	if w := s.do(t, http.MethodDelete, "/org/delete", token, nil); w.Code != http.StatusOK {
		t.Fatalf("delete: %d %s", w.Code, w.Body.String())
	}
	if w := s.do(t, http.MethodGet, "/org/get/globex", "", nil); w.Code != http.StatusNotFound {
		t.Errorf("get after delete: %d, want 404", w.Code)
	}
	if s.store.HasNamespace("org_globex") {
		t.Error("namespace still present after delete")
	}
}

func TestRouter_ErrorMapping(t *testing.T) {
	s := newTestServer(t)
	token := s.createAndLogin(t, "Acme", "admin@acme.io")
	s.createAndLogin(t, "Globex", "admin@globex.io")

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   interface{}
		want   int
		errMsg string
	}{
		{
			name: "duplicate org", method: http.MethodPost, path: "/org/create",
			body: map[string]string{"organization_name": "acme", "admin_email": "x@y.io", "admin_password": "secret123"},
			want: http.StatusBadRequest, errMsg: "Organization name already exists",
		},
		{
			name: "invalid org name", method: http.MethodPost, path: "/org/create",
			body: map[string]string{"organization_name": "!!", "admin_email": "x@y.io", "admin_password": "secret123"},
			want: http.StatusBadRequest,
		},
		{
			name: "unknown org", method: http.MethodGet, path: "/org/get/initech",
			want: http.StatusNotFound, errMsg: "Organization not found",
		},
		{
			name: "bad password", method: http.MethodPost, path: "/admin/login",
			body: map[string]string{"email": "admin@acme.io", "password": "wrong-password"},
			want: http.StatusUnauthorized, errMsg: "Invalid credentials",
		},
		{
			name: "missing token", method: http.MethodGet, path: "/org/list",
			want: http.StatusUnauthorized,
		},
		{
			name: "garbage token", method: http.MethodGet, path: "/org/list", token: "not-a-jwt",
			want: http.StatusUnauthorized, errMsg: "Invalid or expired token",
		},
		{
			name: "rename to same name", method: http.MethodPut, path: "/org/update?new_org_name=ACME", token: token,
			want: http.StatusBadRequest, errMsg: "New name is same as old name",
		},
		{
			name: "rename to taken name", method: http.MethodPut, path: "/org/update?new_org_name=globex", token: token,
			want: http.StatusBadRequest, errMsg: "Organization name already exists",
		},
		{
			name: "rename without name", method: http.MethodPut, path: "/org/update", token: token,
			want: http.StatusBadRequest,
		},
		{
			name: "unknown document", method: http.MethodGet, path: "/data/widgets/nope", token: token,
			want: http.StatusNotFound, errMsg: "Document not found",
		},
		{
			name: "limit out of range", method: http.MethodGet, path: "/data/widgets?limit=0", token: token,
			want: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, tt.method, tt.path, tt.token, tt.body)
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body.String())
			}
			if tt.errMsg != "" {
				if got := decode(t, w)["error"]; got != tt.errMsg {
					t.Errorf("error = %v, want %q", got, tt.errMsg)
				}
			}
		})
	}
}

func TestRouter_ListOrganizations(t *testing.T) {
	s := newTestServer(t)
	token := s.createAndLogin(t, "Acme", "admin@acme.io")
	s.createAndLogin(t, "Globex", "admin@globex.io")

	w := s.do(t, http.MethodGet, "/org/list", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list: %d %s", w.Code, w.Body.String())
	}
	if body := decode(t, w); body["total"] != float64(2) {
		t.Errorf("total = %v, want 2", body["total"])
	}
}

func TestRouter_LoginRateLimited(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) {
		cfg.Security.RateLimiting.Enabled = true
		cfg.Security.RateLimiting.Backend = "memory"
		cfg.Security.RateLimiting.LoginPerMinute = 1
	})

	var last *httptest.ResponseRecorder
	for i := 0; i < 10; i++ {
		last = s.do(t, http.MethodPost, "/admin/login", "", map[string]string{"email": "a@b.io", "password": "wrong-password"})
		if last.Code == http.StatusTooManyRequests {
			break
		}
	}
	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429 after repeated logins", last.Code)
	}
	if last.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}
}

// capturingShipper collects shipped audit events.
type capturingShipper struct {
	mu     sync.Mutex
	events []*audit.Event
}

func (c *capturingShipper) Ship(_ context.Context, e *audit.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil
}

func (c *capturingShipper) Close() error { return nil }

// waitFor returns the first event with action and status, polling while
// shipping goroutines finish.
func (c *capturingShipper) waitFor(t *testing.T, action string, status int) *audit.Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		c.mu.Lock()
		for _, e := range c.events {
			if e.Action == action && e.Status == status {
				c.mu.Unlock()
				return e
			}
		}
		c.mu.Unlock()
		if time.Now().After(deadline) {
			t.Fatalf("no audit event %q with status %d", action, status)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRouter_AuditTrail(t *testing.T) {
	shipper := &capturingShipper{}
	s := newAuditedTestServer(t, shipper)
	token := s.createAndLogin(t, "Acme", "admin@acme.test")

	login := shipper.waitFor(t, "POST /admin/login", http.StatusOK)
	if login.AdminID == "" || login.OrgName != "Acme" {
		t.Errorf("login event subject = %q/%q, want admin id and Acme", login.AdminID, login.OrgName)
	}

	forged := "eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiJ4In0.forged"
	rejected := []struct {
		method, path, action string
	}{
		{http.MethodDelete, "/org/delete", "DELETE /org/delete"},
		{http.MethodPut, "/org/update?new_org_name=Evil", "PUT /org/update"},
		{http.MethodDelete, "/data/widgets/w1", "DELETE /data/:collection/:id"},
	}
	for _, tc := range rejected {
		if w := s.do(t, tc.method, tc.path, forged, nil); w.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s with forged token: status = %d, want 401", tc.method, tc.path, w.Code)
		}
		e := shipper.waitFor(t, tc.action, http.StatusUnauthorized)
		if e.Outcome != "failure" || e.AdminID != "" {
			t.Errorf("%s event = %+v, want anonymous failure", tc.action, e)
		}
	}

	if w := s.do(t, http.MethodPut, "/org/update?new_org_name=Globex", token, nil); w.Code != http.StatusOK {
		t.Fatalf("rename: status = %d body = %s", w.Code, w.Body.String())
	}
	rename := shipper.waitFor(t, "PUT /org/update", http.StatusOK)
	if rename.OrgName != "Globex" || rename.AdminID != login.AdminID {
		t.Errorf("rename event subject = %q/%q, want %q/Globex", rename.AdminID, rename.OrgName, login.AdminID)
	}
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
	return body
}
