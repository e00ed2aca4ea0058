package middleware

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"hrbpms/internal/domain/auth"
	"hrbpms/internal/domain/session"
	"hrbpms/internal/platform/localstore"
	"hrbpms/internal/transport/http/api"
)

type fixedSessions struct {
	snap session.Snapshot
}

func (f fixedSessions) Snapshot() session.Snapshot { return f.snap }

func signedIn(role auth.Role) fixedSessions {
	return fixedSessions{snap: session.Snapshot{
		State: session.StateAuthenticated,
		Mode:  session.ModeLocalFallback,
		User:  &auth.User{ID: "u-" + string(role), Role: role},
	}}
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) api.Envelope {
	t.Helper()
	var env api.Envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (%s)", err, rec.Body.String())
	}
	return env
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
})

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if seen == "" || rec.Header().Get("X-Request-ID") != seen {
		t.Fatalf("expected generated id in context and header, got %q / %q", seen, rec.Header().Get("X-Request-ID"))
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "client-id")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "client-id" {
		t.Fatalf("expected client id to be kept, got %q", seen)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", strings.Repeat("x", 200))
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if len(seen) > maxRequestIDLength {
		t.Fatalf("expected oversized id to be replaced, got %d chars", len(seen))
	}
}

func TestRequireSession(t *testing.T) {
	tests := []struct {
		name   string
		snap   session.Snapshot
		status int
		code   string
	}{
		{name: "initializing", snap: session.Snapshot{State: session.StateInitializing, Loading: true}, status: http.StatusServiceUnavailable, code: "session_initializing"},
		{name: "signed out", snap: session.Snapshot{State: session.StateUnauthenticated}, status: http.StatusUnauthorized, code: "unauthorized"},
		{name: "login in flight", snap: session.Snapshot{State: session.StateUnauthenticated, Loading: true}, status: http.StatusServiceUnavailable, code: "session_initializing"},
		{name: "signed in", snap: signedIn(auth.RoleEmployee).snap, status: http.StatusNoContent},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			handler := RequireSession(fixedSessions{snap: tc.snap})(okHandler)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/session", nil))
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rec.Code)
			}
			if tc.code != "" {
				env := decodeEnvelope(t, rec)
				if env.Success || env.Error == nil || env.Error.Code != tc.code {
					t.Fatalf("unexpected envelope %+v", env)
				}
			}
		})
	}
}

func TestRequireSessionStoresSnapshot(t *testing.T) {
	var got session.Snapshot
	handler := RequireSession(signedIn(auth.RoleHR))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = SnapshotFrom(r.Context())
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if got.User == nil || got.User.Role != auth.RoleHR {
		t.Fatalf("expected snapshot in context, got %+v", got)
	}
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		role   auth.Role
		status int
	}{
		{auth.RoleAdmin, http.StatusNoContent},
		{auth.RoleHR, http.StatusNoContent},
		{auth.RoleTeamManager, http.StatusForbidden},
		{auth.RoleEmployee, http.StatusForbidden},
	}
	for _, tc := range tests {
		handler := RequireSession(signedIn(tc.role))(RequireRole(auth.RoleAdmin, auth.RoleHR)(okHandler))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/employees", nil))
		if rec.Code != tc.status {
			t.Fatalf("%s: expected %d, got %d", tc.role, tc.status, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	RequireRole(auth.RoleAdmin)(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without snapshot, got %d", rec.Code)
	}
}

func TestPageGate(t *testing.T) {
	loading := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("Preparing workspace..."))
	})
	page := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("page"))
	})

	rec := httptest.NewRecorder()
	PageGate(fixedSessions{snap: session.Snapshot{State: session.StateInitializing, Loading: true}}, loading)(page).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "Preparing workspace..." {
		t.Fatalf("expected loading page, got %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	PageGate(fixedSessions{snap: session.Snapshot{State: session.StateUnauthenticated}}, loading)(page).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/login" {
		t.Fatalf("expected redirect to login, got %d %q", rec.Code, rec.Header().Get("Location"))
	}

	rec = httptest.NewRecorder()
	PageGate(signedIn(auth.RoleEmployee), loading)(page).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "page" {
		t.Fatalf("expected page, got %d %q", rec.Code, rec.Body.String())
	}
}

func TestRateLimiterByEmail(t *testing.T) {
	limiter := NewRateLimiter(2, AuthEmailOrIPKey("email"))
	handler := limiter.Middleware(okHandler)

	send := func(email string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"email":"`+email+`","password":"x"}`))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 2; i++ {
		if rec := send("admin@hrbpms.com"); rec.Code != http.StatusNoContent {
			t.Fatalf("request %d: expected pass, got %d", i, rec.Code)
		}
	}
	rec := send("ADMIN@hrbpms.com")
	if rec.Code != http.StatusTooManyRequests || rec.Header().Get("Retry-After") == "" {
		t.Fatalf("expected 429 with Retry-After, got %d", rec.Code)
	}
	if rec := send("hr@hrbpms.com"); rec.Code != http.StatusNoContent {
		t.Fatalf("other email must have its own bucket, got %d", rec.Code)
	}
}

func TestExtractJSONFieldRestoresBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":" a@b.c "}`))
	req.Header.Set("Content-Type", "application/json")
	if got := extractJSONField(req, "email"); got != "a@b.c" {
		t.Fatalf("unexpected field %q", got)
	}
	var body map[string]string
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body["email"] != " a@b.c " {
		t.Fatalf("body not restored: %v %v", body, err)
	}
}

func TestExtractJSONFieldKeepsLargeBody(t *testing.T) {
	body := `{"email":"a@b.c","notes":"` + strings.Repeat("x", 2*maxKeyBodyBytes) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if got := extractJSONField(req, "email"); got != "" {
		t.Fatalf("oversized body must not yield a key, got %q", got)
	}
	rest, err := io.ReadAll(req.Body)
	if err != nil || string(rest) != body {
		t.Fatalf("body truncated: read %d of %d bytes (%v)", len(rest), len(body), err)
	}
}

func TestClientIPKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	if got := clientIPKey(req); got != "10.0.0.1" {
		t.Fatalf("unexpected key %q", got)
	}
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if got := clientIPKey(req); got != "203.0.113.9" {
		t.Fatalf("unexpected forwarded key %q", got)
	}
}

func TestBodyLimit(t *testing.T) {
	handler := BodyLimit(16)(okHandler)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("a", 32))))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("GET must pass, got %d", rec.Code)
	}
}

func TestRecoverer(t *testing.T) {
	handler := RequestID(Recoverer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if env.Error == nil || env.Error.Code != "internal_error" || env.RequestID == "" {
		t.Fatalf("unexpected envelope %+v", env)
	}
}

func TestSecureHeaders(t *testing.T) {
	handler := SecureHeaders(SecurityOptions{Production: true, ImageSources: []string{"https://cdn.example.com"}})(okHandler)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/session", nil))
	if rec.Header().Get("Cache-Control") != "no-store" {
		t.Fatal("expected no-store on api routes")
	}
	if rec.Header().Get("Strict-Transport-Security") == "" {
		t.Fatal("expected HSTS in production")
	}
	if !strings.Contains(rec.Header().Get("Content-Security-Policy"), "https://cdn.example.com") {
		t.Fatalf("expected image source in CSP, got %q", rec.Header().Get("Content-Security-Policy"))
	}
}

func TestLoggerKeepsStatus(t *testing.T) {
	handler := Logger(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusTeapot {
		t.Fatalf("expected status passthrough, got %d", rec.Code)
	}
}

func TestRequestHashDeterministic(t *testing.T) {
	hash1 := RequestHash([]byte("payload"))
	hash2 := RequestHash([]byte("payload"))
	hash3 := RequestHash([]byte("other"))

	if hash1 != hash2 {
		t.Fatal("expected deterministic hash")
	}
	if hash1 == hash3 {
		t.Fatal("expected different hash for different payload")
	}
}

func TestIdempotentReplaysAndRejectsConflicts(t *testing.T) {
	calls := 0
	handler := RequireSession(signedIn(auth.RoleHR))(Idempotent(NewIdempotencyStore(localstore.NewMemory(), 0))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			api.Created(w, map[string]int{"call": calls}, "")
		}),
	))

	send := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/employees", strings.NewReader(body))
		req.Header.Set("Idempotency-Key", "k1")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	first := send(`{"email":"a@b.c"}`)
	second := send(`{"email":"a@b.c"}`)
	if calls != 1 {
		t.Fatalf("expected one execution, got %d", calls)
	}
	if second.Code != http.StatusCreated || second.Header().Get("Idempotent-Replayed") != "true" {
		t.Fatalf("expected replayed 201, got %d", second.Code)
	}
	if first.Body.String() != second.Body.String() {
		t.Fatalf("replayed body differs: %q vs %q", first.Body.String(), second.Body.String())
	}

	conflict := send(`{"email":"other@b.c"}`)
	if conflict.Code != http.StatusConflict {
		t.Fatalf("expected 409 for reused key, got %d", conflict.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/employees", strings.NewReader(`{}`))
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if calls != 2 {
		t.Fatalf("requests without a key must always run, got %d calls", calls)
	}
}

func TestIdempotencyEntriesExpire(t *testing.T) {
	storage := localstore.NewMemory()
	store := NewIdempotencyStore(storage, time.Hour)
	now := time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	if err := store.Save(ctx, "u1", "POST /api/v1/employees", "k1", "h1", http.StatusCreated, []byte(`{}`)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Save(ctx, "u1", "POST /api/v1/employees", "k2", "h2", http.StatusCreated, []byte(`{}`)); err != nil {
		t.Fatalf("save: %v", err)
	}
	_ = storage.Set(ctx, "idempotency:u1:broken", "not json")
	_ = storage.Set(ctx, "hrbpms_demo_user", `{"id":"1"}`)

	now = now.Add(30 * time.Minute)
	if stored, err := store.Check(ctx, "u1", "POST /api/v1/employees", "k1", "h1"); err != nil || stored == nil {
		t.Fatalf("fresh entry must replay, got %v %v", stored, err)
	}

	now = now.Add(time.Hour)
	if stored, err := store.Check(ctx, "u1", "POST /api/v1/employees", "k1", "other"); err != nil || stored != nil {
		t.Fatalf("expired entry must be ignored, got %v %v", stored, err)
	}
	if _, ok, _ := storage.Get(ctx, idempotencyKey("u1", "POST /api/v1/employees", "k1")); ok {
		t.Fatal("expired entry must be removed on lookup")
	}

	removed, err := store.Prune(ctx)
	if err != nil || removed != 2 {
		t.Fatalf("expected k2 and the unreadable entry pruned, got %d (%v)", removed, err)
	}
	if _, ok, _ := storage.Get(ctx, "hrbpms_demo_user"); !ok {
		t.Fatal("prune must only touch idempotency entries")
	}
}
