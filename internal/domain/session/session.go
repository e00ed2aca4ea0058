// Package session owns the single current-user session of the process: its
// bootstrap, its credential operations, and its reaction to auth events.
package session

import (
	"errors"
	"fmt"

	"hrbpms/internal/domain/auth"
)

type Mode string

const (
	ModeExternal      Mode = "EXTERNAL"
	ModeLocalFallback Mode = "LOCAL_FALLBACK"
)

type State string

const (
	StateInitializing    State = "INITIALIZING"
	StateAuthenticated   State = "AUTHENTICATED"
	StateUnauthenticated State = "UNAUTHENTICATED"
)

// Snapshot is a point-in-time copy of the session. User is nil unless State
// is StateAuthenticated.
type Snapshot struct {
	State   State      `json:"state"`
	Mode    Mode       `json:"mode"`
	Loading bool       `json:"loading"`
	User    *auth.User `json:"user"`
}

func (s Snapshot) Authenticated() bool {
	return s.State == StateAuthenticated && s.User != nil
}

func (s Snapshot) HasRole(roles ...auth.Role) bool {
	return s.User.HasRole(roles...)
}

var ErrTimeout = errors.New("session bootstrap timed out")

// RegistrationError reports a registration whose organization was created
// but whose user sign-up failed. The organization is left in place.
type RegistrationError struct {
	OrganizationID string
	Err            error
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("organization %s created but sign-up failed: %v", e.OrganizationID, e.Err)
}

func (e *RegistrationError) Unwrap() error {
	return e.Err
}
