package middleware

import (
	"context"
	"net/http"

	"hrbpms/internal/domain/access"
	"hrbpms/internal/domain/auth"
	"hrbpms/internal/domain/session"
	"hrbpms/internal/transport/http/api"
)

// SessionSource is the read side of the session manager.
type SessionSource interface {
	Snapshot() session.Snapshot
}

type ctxKey string

const ctxKeySnapshot ctxKey = "session_snapshot"

// SnapshotFrom returns the snapshot captured by RequireSession or PageGate.
func SnapshotFrom(ctx context.Context) (session.Snapshot, bool) {
	snap, ok := ctx.Value(ctxKeySnapshot).(session.Snapshot)
	return snap, ok
}

func withSnapshot(r *http.Request, snap session.Snapshot) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), ctxKeySnapshot, snap))
}

// RequireSession lets authenticated requests through. A session that is
// still resolving answers 503 rather than 401.
func RequireSession(sessions SessionSource) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			snap := sessions.Snapshot()
			switch access.Decide(snap).Verdict {
			case access.Loading:
				w.Header().Set("Retry-After", "1")
				api.Fail(w, http.StatusServiceUnavailable, "session_initializing", "session is still loading", GetRequestID(r.Context()))
			case access.Redirect:
				api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", GetRequestID(r.Context()))
			default:
				next.ServeHTTP(w, withSnapshot(r, snap))
			}
		})
	}
}

// RequireRole must run after RequireSession.
func RequireRole(roles ...auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			snap, ok := SnapshotFrom(r.Context())
			if !ok || snap.User == nil {
				api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", GetRequestID(r.Context()))
				return
			}
			if !snap.HasRole(roles...) {
				api.Fail(w, http.StatusForbidden, "forbidden", "insufficient role", GetRequestID(r.Context()))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// PageGate protects client page routes: a loading page while the session
// resolves, a redirect to the login page without a user, the page otherwise.
func PageGate(sessions SessionSource, loading http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			snap := sessions.Snapshot()
			decision := access.Decide(snap)
			switch decision.Verdict {
			case access.Loading:
				loading.ServeHTTP(w, r)
			case access.Redirect:
				http.Redirect(w, r, decision.Target, http.StatusFound)
			default:
				next.ServeHTTP(w, withSnapshot(r, snap))
			}
		})
	}
}
