package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"hrbpms/internal/domain/auth"
	"hrbpms/internal/domain/session"
	"hrbpms/internal/platform/config"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	frontend := filepath.Join(dir, "dist")
	if err := os.MkdirAll(filepath.Join(frontend, "assets"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(frontend, "index.html"), []byte("<div id=\"root\"></div>"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(frontend, "assets", "app.js"), []byte("console.log(1)"), 0o644); err != nil {
		t.Fatal(err)
	}
	return config.Config{
		Addr:              ":0",
		Environment:       "test",
		FrontendDir:       frontend,
		RecordStoreDriver: config.StoreDriverMemory,
		LocalStorePath:    filepath.Join(dir, "local.db"),
		BootstrapTimeout:  time.Second,
		RequestTimeout:    time.Second,
		MaxBodyBytes:      1 << 20,
		AuthRatePerMinute: 100,
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestApp(t *testing.T) *App {
	t.Helper()
	app, err := New(context.Background(), testConfig(t), quietLogger())
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	t.Cleanup(app.Close)
	if err := app.Sessions.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	return app
}

func send(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAdminScenario(t *testing.T) {
	app := newTestApp(t)
	router := app.Router

	if app.Sessions.Mode() != session.ModeLocalFallback {
		t.Fatalf("expected local fallback without a hosted backend, got %s", app.Sessions.Mode())
	}

	rec := send(t, router, http.MethodGet, "/dashboard", "")
	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/login" {
		t.Fatalf("expected redirect to login, got %d %q", rec.Code, rec.Header().Get("Location"))
	}

	rec = send(t, router, http.MethodPost, "/api/v1/auth/login", `{"email":"admin@hrbpms.com","password":"admin123"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("login: %d %s", rec.Code, rec.Body.String())
	}
	snap := app.Sessions.Snapshot()
	if snap.State != session.StateAuthenticated || snap.User.Role != auth.RoleAdmin {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	rec = send(t, router, http.MethodGet, "/api/v1/navigation?path=/dashboard", "")
	var nav struct {
		Data struct {
			Items []struct {
				Path   string `json:"path"`
				Active bool   `json:"active"`
			} `json:"items"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &nav); err != nil {
		t.Fatalf("decode navigation: %v", err)
	}
	if len(nav.Data.Items) != 12 || !nav.Data.Items[0].Active {
		t.Fatalf("expected all 12 items with dashboard active, got %+v", nav.Data.Items)
	}

	rec = send(t, router, http.MethodGet, "/dashboard", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "root") {
		t.Fatalf("expected index page, got %d %q", rec.Code, rec.Body.String())
	}

	rec = send(t, router, http.MethodGet, "/api/v1/records/profiles", "")
	var profiles struct {
		Data []map[string]any `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &profiles); err != nil || len(profiles.Data) != 4 {
		t.Fatalf("expected 4 seeded profiles, got %d (%v)", len(profiles.Data), err)
	}

	rec = send(t, router, http.MethodPost, "/api/v1/auth/logout", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("logout: %d", rec.Code)
	}
	rec = send(t, router, http.MethodGet, "/dashboard", "")
	if rec.Code != http.StatusFound {
		t.Fatalf("expected redirect after logout, got %d", rec.Code)
	}
}

func TestWrongPasswordScenario(t *testing.T) {
	app := newTestApp(t)
	rec := send(t, app.Router, http.MethodPost, "/api/v1/auth/login", `{"email":"employee@hrbpms.com","password":"wrongpassword"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if snap := app.Sessions.Snapshot(); snap.State != session.StateUnauthenticated || snap.Loading {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestSessionSurvivesRestart(t *testing.T) {
	cfg := testConfig(t)
	first, err := New(context.Background(), cfg, quietLogger())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	_ = first.Sessions.Start(context.Background())
	if rec := send(t, first.Router, http.MethodPost, "/api/v1/auth/login", `{"email":"hr@hrbpms.com","password":"hr123"}`); rec.Code != http.StatusOK {
		t.Fatalf("login: %d", rec.Code)
	}
	first.Close()

	second, err := New(context.Background(), cfg, quietLogger())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()
	_ = second.Sessions.Start(context.Background())
	if snap := second.Sessions.Snapshot(); snap.User == nil || snap.User.Role != auth.RoleHR {
		t.Fatalf("expected restored HR session, got %+v", snap)
	}
}

func TestPublicRoutes(t *testing.T) {
	router := newTestApp(t).Router
	tests := []struct {
		path     string
		status   int
		location string
	}{
		{path: "/", status: http.StatusFound, location: "/dashboard"},
		{path: "/no-such-page", status: http.StatusFound, location: "/dashboard"},
		{path: "/login", status: http.StatusOK},
		{path: "/register", status: http.StatusOK},
		{path: "/assets/app.js", status: http.StatusOK},
		{path: "/healthz", status: http.StatusOK},
		{path: "/readyz", status: http.StatusOK},
	}
	for _, tc := range tests {
		rec := send(t, router, http.MethodGet, tc.path, "")
		if rec.Code != tc.status {
			t.Fatalf("%s: expected %d, got %d", tc.path, tc.status, rec.Code)
		}
		if tc.location != "" && rec.Header().Get("Location") != tc.location {
			t.Fatalf("%s: expected redirect to %s, got %q", tc.path, tc.location, rec.Header().Get("Location"))
		}
	}

	rec := send(t, router, http.MethodGet, "/api/v1/nope", "")
	if rec.Code != http.StatusNotFound || !strings.Contains(rec.Body.String(), `"not_found"`) {
		t.Fatalf("expected JSON 404, got %d %s", rec.Code, rec.Body.String())
	}
}

type bootingSessions struct{}

func (bootingSessions) Snapshot() session.Snapshot {
	return session.Snapshot{State: session.StateInitializing, Mode: session.ModeExternal, Loading: true}
}
func (bootingSessions) Login(context.Context, auth.LoginCredentials) error { return nil }
func (bootingSessions) Register(context.Context, auth.Registration) error { return nil }
func (bootingSessions) Logout(context.Context) error { return nil }
func (bootingSessions) RefreshUser(context.Context) error { return nil }
func (bootingSessions) AddEmployee(context.Context, auth.EmployeeCredentials) error { return nil }

func TestLoadingWhileBootstrapping(t *testing.T) {
	cfg := testConfig(t)
	router := NewRouter(Deps{Config: cfg, Sessions: bootingSessions{}, Logger: quietLogger()})

	rec := send(t, router, http.MethodGet, "/dashboard", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Preparing workspace...") {
		t.Fatalf("expected loading page, got %d %q", rec.Code, rec.Body.String())
	}
	if rec := send(t, router, http.MethodGet, "/readyz", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected readyz 503, got %d", rec.Code)
	}
	if rec := send(t, router, http.MethodGet, "/api/v1/records/tasks", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 while bootstrapping, got %d", rec.Code)
	}
}
