package access

import "hrbpms/internal/domain/session"

// LoginPath is where unauthenticated visitors are sent.
const LoginPath = "/login"

type Verdict int

const (
	Allow Verdict = iota
	Loading
	Redirect
)

func (v Verdict) String() string {
	switch v {
	case Allow:
		return "allow"
	case Loading:
		return "loading"
	case Redirect:
		return "redirect"
	}
	return "unknown"
}

// Decision of the route gate. Target is set for Redirect.
type Decision struct {
	Verdict Verdict
	Target  string
}

// Decide never redirects while the session is still resolving.
func Decide(snap session.Snapshot) Decision {
	if snap.State == session.StateInitializing || snap.Loading {
		return Decision{Verdict: Loading}
	}
	if !snap.Authenticated() {
		return Decision{Verdict: Redirect, Target: LoginPath}
	}
	return Decision{Verdict: Allow}
}
