package session

import (
	"context"

	"hrbpms/internal/domain/auth"
)

type EventKind string

const (
	EventInitialSession EventKind = "INITIAL_SESSION"
	EventSignedIn       EventKind = "SIGNED_IN"
	EventSignedOut      EventKind = "SIGNED_OUT"
	EventTokenRefreshed EventKind = "TOKEN_REFRESHED"
)

// Event is an auth-state change reported by a backend. UserID is empty for
// EventSignedOut.
type Event struct {
	Kind   EventKind
	UserID string
}

// Outcome of a credential operation. Either User is set and applies at
// once, or PendingUserID names the user that will arrive as an event. Both
// empty means no session was started (e.g. email confirmation pending).
type Outcome struct {
	User          *auth.User
	PendingUserID string
}

// Backend is the authentication strategy, chosen once at startup.
type Backend interface {
	Mode() Mode
	// Restore returns the user of a persisted session, or nil.
	Restore(ctx context.Context) (*auth.User, error)
	SignIn(ctx context.Context, creds auth.LoginCredentials) (Outcome, error)
	Register(ctx context.Context, details auth.Registration) (Outcome, error)
	// AddEmployee creates an account in caller's organization without
	// touching the caller's session.
	AddEmployee(ctx context.Context, caller auth.User, details auth.EmployeeCredentials) error
	SignOut(ctx context.Context) error
	Profile(ctx context.Context, userID string) (*auth.User, error)
	// Subscribe returns a nil channel when the backend has no event stream.
	Subscribe() (<-chan Event, func())
}
