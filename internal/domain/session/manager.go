package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"hrbpms/internal/domain/auth"
	"hrbpms/internal/platform/metrics"
)

var errAlreadyStarted = errors.New("session manager already started")

type Options struct {
	BootstrapTimeout time.Duration
	// ProfileTimeout bounds each profile lookup triggered by an auth event.
	ProfileTimeout time.Duration
	Logger         *slog.Logger
}

// Manager is the only writer of the session. Readers take snapshots.
type Manager struct {
	backend          Backend
	logger           *slog.Logger
	bootstrapTimeout time.Duration
	profileTimeout   time.Duration

	mu      sync.RWMutex
	state   State
	loading bool
	user    *auth.User
	changed chan struct{}
	// failed records the last user whose sign-in event could not be resolved.
	failed struct {
		userID string
		err    error
	}

	refresh   singleflight.Group
	startOnce sync.Once
	closeOnce sync.Once
	cancel    context.CancelFunc
	unsub     func()
	wg        sync.WaitGroup
}

func NewManager(backend Backend, opts Options) *Manager {
	if opts.BootstrapTimeout <= 0 {
		opts.BootstrapTimeout = 2 * time.Second
	}
	if opts.ProfileTimeout <= 0 {
		opts.ProfileTimeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Manager{
		backend:          backend,
		logger:           opts.Logger.With("mode", string(backend.Mode())),
		bootstrapTimeout: opts.BootstrapTimeout,
		profileTimeout:   opts.ProfileTimeout,
		state:            StateInitializing,
		loading:          true,
		changed:          make(chan struct{}),
	}
}

func (m *Manager) Mode() Mode {
	return m.backend.Mode()
}

func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap := Snapshot{State: m.state, Mode: m.backend.Mode(), Loading: m.loading}
	if m.user != nil {
		u := *m.user
		snap.User = &u
	}
	return snap
}

// Changed returns a channel that is closed at the next mutation.
func (m *Manager) Changed() <-chan struct{} {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.changed
}

func (m *Manager) HasRole(roles ...auth.Role) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.user.HasRole(roles...)
}

// Start bootstraps the session once. Any failure leaves the session
// UNAUTHENTICATED and is returned for logging.
func (m *Manager) Start(ctx context.Context) error {
	err := errAlreadyStarted
	m.startOnce.Do(func() {
		err = m.bootstrap(ctx)
	})
	return err
}

// Close stops the event listener. It is safe to call more than once.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		cancel, unsub := m.cancel, m.unsub
		m.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		if unsub != nil {
			unsub()
		}
		m.wg.Wait()
	})
}

func (m *Manager) bootstrap(ctx context.Context) error {
	listenCtx, cancel := context.WithCancel(context.Background())
	events, unsub := m.backend.Subscribe()
	m.mu.Lock()
	m.cancel, m.unsub = cancel, unsub
	m.mu.Unlock()
	if events != nil {
		m.wg.Add(1)
		go m.listen(listenCtx, events)
	}

	restoreCtx, stop := context.WithTimeout(ctx, m.bootstrapTimeout)
	defer stop()

	type result struct {
		user *auth.User
		err  error
	}
	results := make(chan result, 1)
	go func() {
		user, err := m.backend.Restore(restoreCtx)
		results <- result{user: user, err: err}
	}()

	select {
	case r := <-results:
		if r.err != nil {
			m.logger.Warn("session restore failed", "err", r.err)
			m.finishBootstrap(nil)
			return r.err
		}
		m.finishBootstrap(r.user)
		if r.user != nil {
			m.logger.Info("session restored", "user_id", r.user.ID, "role", r.user.Role)
		}
		return nil
	case <-restoreCtx.Done():
		m.finishBootstrap(nil)
		go func() {
			r := <-results
			m.logger.Info("discarded late bootstrap result", "has_user", r.user != nil, "err", r.err)
		}()
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fmt.Errorf("%w after %s", ErrTimeout, m.bootstrapTimeout)
		m.logger.Warn("session bootstrap timed out", "timeout", m.bootstrapTimeout)
		return err
	}
}

func (m *Manager) finishBootstrap(user *auth.User) {
	m.mutate(func() {
		m.setUserLocked(user)
		m.loading = false
	})
}

func (m *Manager) Login(ctx context.Context, creds auth.LoginCredentials) (err error) {
	defer func() { metrics.RecordAuth(string(m.Mode()), "login", err) }()
	m.beginCredentialOp()
	defer m.setLoading(false)

	out, err := m.backend.SignIn(ctx, creds)
	if err != nil {
		m.logger.Info("login failed", "err", err)
		return err
	}
	if err := m.settle(ctx, out); err != nil {
		return err
	}
	if user := m.Snapshot().User; user != nil {
		m.logger.Info("login succeeded", "user_id", user.ID, "role", user.Role)
	}
	return nil
}

// Register creates the organization and its first ADMIN user. A
// *RegistrationError means the organization exists without a user.
func (m *Manager) Register(ctx context.Context, details auth.Registration) (err error) {
	defer func() { metrics.RecordAuth(string(m.Mode()), "register", err) }()
	m.beginCredentialOp()
	defer m.setLoading(false)

	out, err := m.backend.Register(ctx, details)
	if err != nil {
		var regErr *RegistrationError
		if errors.As(err, &regErr) {
			m.logger.Warn("orphaned organization after failed sign-up",
				"organization_id", regErr.OrganizationID, "err", regErr.Err)
		}
		return err
	}
	if out.User == nil && out.PendingUserID == "" {
		m.logger.Info("registration awaiting email confirmation", "email", details.Email)
		return nil
	}
	return m.settle(ctx, out)
}

func (m *Manager) AddEmployee(ctx context.Context, details auth.EmployeeCredentials) (err error) {
	defer func() { metrics.RecordAuth(string(m.Mode()), "add_employee", err) }()
	caller := m.Snapshot().User
	if caller == nil {
		return auth.ErrNoUser
	}
	if !auth.CanManageEmployees(caller.Role) {
		return auth.ErrForbidden
	}
	if !details.Role.Valid() {
		return fmt.Errorf("unknown role %q", details.Role)
	}
	if err := m.backend.AddEmployee(ctx, *caller, details); err != nil {
		return err
	}
	m.logger.Info("employee account created", "by", caller.ID, "email", details.Email, "role", details.Role)
	return nil
}

// Logout clears the user even when the backend sign-out fails.
func (m *Manager) Logout(ctx context.Context) error {
	err := m.backend.SignOut(ctx)
	metrics.RecordAuth(string(m.Mode()), "logout", err)
	if err != nil {
		m.logger.Warn("remote sign-out failed, clearing session locally", "err", err)
	}
	m.mutate(func() { m.setUserLocked(nil) })
	return nil
}

// RefreshUser re-reads the current user's profile. Failures keep the cached
// user. Concurrent calls share one lookup.
func (m *Manager) RefreshUser(ctx context.Context) error {
	if m.Mode() == ModeLocalFallback {
		return nil
	}
	current := m.Snapshot().User
	if current == nil {
		return nil
	}
	_, err, _ := m.refresh.Do(current.ID, func() (any, error) {
		user, err := m.backend.Profile(ctx, current.ID)
		if err != nil {
			return nil, err
		}
		m.mutate(func() {
			if m.user != nil && m.user.ID == user.ID {
				m.setUserLocked(user)
			}
		})
		return user, nil
	})
	metrics.RecordAuth(string(m.Mode()), "refresh", err)
	if err != nil {
		m.logger.Warn("profile refresh failed, keeping cached user", "user_id", current.ID, "err", err)
	}
	return err
}

// settle applies an outcome, waiting for event-delivered users.
func (m *Manager) settle(ctx context.Context, out Outcome) error {
	if out.User != nil {
		m.mutate(func() { m.setUserLocked(out.User) })
		return nil
	}
	if out.PendingUserID == "" {
		return nil
	}
	for {
		m.mu.RLock()
		user, failed, changed := m.user, m.failed, m.changed
		m.mu.RUnlock()
		if user != nil && user.ID == out.PendingUserID {
			return nil
		}
		if failed.userID == out.PendingUserID && failed.err != nil {
			return failed.err
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (m *Manager) listen(ctx context.Context, events <-chan Event) {
	defer m.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			m.handleEvent(ctx, ev)
		}
	}
}

func (m *Manager) handleEvent(ctx context.Context, ev Event) {
	m.logger.Debug("auth event", "event", ev.Kind, "user_id", ev.UserID)
	if ev.Kind == EventInitialSession {
		// Bootstrap applies the restored session.
		return
	}
	if ev.Kind == EventSignedOut || ev.UserID == "" {
		m.mutate(func() { m.setUserLocked(nil) })
		return
	}

	profileCtx, cancel := context.WithTimeout(ctx, m.profileTimeout)
	defer cancel()
	user, err := m.backend.Profile(profileCtx, ev.UserID)
	if err != nil {
		m.logger.Warn("profile lookup failed", "event", ev.Kind, "user_id", ev.UserID, "err", err)
		if ev.Kind == EventSignedIn {
			m.mutate(func() {
				m.setUserLocked(nil)
				m.failed.userID, m.failed.err = ev.UserID, err
			})
		}
		return
	}
	m.mutate(func() {
		if ev.Kind == EventSignedIn || (m.user != nil && m.user.ID == user.ID) {
			m.setUserLocked(user)
		}
	})
}

func (m *Manager) beginCredentialOp() {
	m.mutate(func() {
		m.loading = true
		m.failed.userID, m.failed.err = "", nil
	})
}

func (m *Manager) setLoading(loading bool) {
	m.mutate(func() { m.loading = loading })
}

// setUserLocked must run inside mutate.
func (m *Manager) setUserLocked(user *auth.User) {
	m.user = user
	if user != nil {
		m.state = StateAuthenticated
	} else {
		m.state = StateUnauthenticated
	}
}

func (m *Manager) mutate(fn func()) {
	m.mu.Lock()
	prev := m.state
	fn()
	next := m.state
	close(m.changed)
	m.changed = make(chan struct{})
	m.mu.Unlock()

	if next != prev {
		metrics.RecordTransition(string(m.backend.Mode()), string(next))
	}
}
