package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"hrbpms/internal/domain/auth"
	"hrbpms/internal/platform/localstore"
)

// SessionStorageKey is where the token pair is persisted between runs.
const SessionStorageKey = "hrbpms-auth-token"

type AuthUser struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata"`
	CreatedAt    time.Time      `json:"created_at"`
}

type Session struct {
	AccessToken  string   `json:"access_token"`
	TokenType    string   `json:"token_type"`
	ExpiresIn    int      `json:"expires_in"`
	ExpiresAt    int64    `json:"expires_at"`
	RefreshToken string   `json:"refresh_token"`
	User         AuthUser `json:"user"`
}

// ExpiresWithin reports whether the access token expires before now+margin.
func (s *Session) ExpiresWithin(now time.Time, margin time.Duration) bool {
	if s.ExpiresAt == 0 {
		return false
	}
	return time.Unix(s.ExpiresAt, 0).Before(now.Add(margin))
}

type SignUpRequest struct {
	Email    string         `json:"email"`
	Password string         `json:"password"`
	Data     map[string]any `json:"data,omitempty"`
}

// AuthError is a GoTrue error response, returned to callers unchanged.
type AuthError struct {
	Status  int
	Code    string
	Message string
}

func (e *AuthError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("auth: %s (%d %s)", e.Message, e.Status, e.Code)
	}
	return fmt.Sprintf("auth: %s (%d)", e.Message, e.Status)
}

// Is lets callers match bad logins with errors.Is(err, auth.ErrInvalidCredentials).
func (e *AuthError) Is(target error) bool {
	if target != auth.ErrInvalidCredentials {
		return false
	}
	switch e.Code {
	case "invalid_grant", "invalid_credentials":
		return true
	}
	return e.Status == http.StatusBadRequest && strings.Contains(strings.ToLower(e.Message), "invalid login credentials")
}

type authErrorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
}

func authFailure(status int, body []byte) error {
	var parsed authErrorBody
	_ = json.Unmarshal(body, &parsed)
	code := parsed.ErrorCode
	if code == "" {
		code = parsed.Error
	}
	msg := parsed.ErrorDescription
	for _, candidate := range []string{parsed.Msg, parsed.Message} {
		if msg == "" {
			msg = candidate
		}
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &AuthError{Status: status, Code: code, Message: msg}
}

// AuthClient holds the one signed-in session of this process, persists it in
// storage, and publishes auth events to subscribers.
type AuthClient struct {
	base      baseClient
	jwtSecret string
	storage   localstore.Store
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.RWMutex
	session *Session
	loaded  bool

	// announced is set once INITIAL_SESSION has been published.
	announced bool

	hub *eventHub
}

func NewAuthClient(cfg Config, storage localstore.Store, httpClient *http.Client, logger *slog.Logger) *AuthClient {
	if logger == nil {
		logger = slog.Default()
	}
	if storage == nil {
		storage = localstore.NewMemory()
	}
	return &AuthClient{
		base:      newBaseClient(cfg, httpClient),
		jwtSecret: cfg.JWTSecret,
		storage:   storage,
		logger:    logger,
		now:       time.Now,
		hub:       newEventHub(logger),
	}
}

// AccessToken implements TokenSource.
func (c *AuthClient) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil {
		return ""
	}
	return c.session.AccessToken
}

func (c *AuthClient) Subscribe() (<-chan AuthEvent, func()) {
	return c.hub.subscribe()
}

// GetSession returns the current session, loading it from storage on first use
// and refreshing it when the access token is expired. A nil session with a nil
// error means nobody is signed in.
func (c *AuthClient) GetSession(ctx context.Context) (*Session, error) {
	current, err := c.restore(ctx)
	if err != nil {
		return nil, err
	}
	c.announce(current)
	return current, nil
}

// announce publishes INITIAL_SESSION after the first successful GetSession.
func (c *AuthClient) announce(current *Session) {
	c.mu.Lock()
	if c.announced {
		c.mu.Unlock()
		return
	}
	c.announced = true
	c.mu.Unlock()

	event := AuthEvent{Type: EventInitialSession}
	if current != nil {
		copied := *current
		event.Session = &copied
	}
	c.hub.publish(event)
}

func (c *AuthClient) restore(ctx context.Context) (*Session, error) {
	current, err := c.currentOrStored(ctx)
	if err != nil || current == nil {
		return nil, err
	}

	claims, err := ParseAccessToken(c.jwtSecret, current.AccessToken)
	if err != nil {
		c.clear(ctx)
		return nil, fmt.Errorf("stored access token rejected: %w", err)
	}
	if claims.Subject != "" && claims.Subject != current.User.ID {
		c.clear(ctx)
		return nil, errors.New("stored access token does not match its user")
	}
	if current.ExpiresAt == 0 && claims.ExpiresAt != nil {
		current.ExpiresAt = claims.ExpiresAt.Unix()
	}

	if current.ExpiresWithin(c.now(), 0) {
		refreshed, err := c.RefreshSession(ctx)
		if err != nil {
			c.clear(ctx)
			return nil, err
		}
		return refreshed, nil
	}
	out := *current
	return &out, nil
}

func (c *AuthClient) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	status, body, err := c.base.send(ctx, request{
		method: http.MethodPost,
		url:    c.base.baseURL + "/auth/v1/token?grant_type=password",
		body:   map[string]string{"email": email, "password": password},
	})
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, authFailure(status, body)
	}
	session, err := c.decodeSession(body)
	if err != nil {
		return nil, err
	}
	c.adopt(ctx, session, EventSignedIn)
	return session, nil
}

// SignUp creates an account. The session is nil when the backend requires
// email confirmation; otherwise it replaces the current one only when adopt is
// true.
func (c *AuthClient) SignUp(ctx context.Context, req SignUpRequest, adopt bool) (*AuthUser, *Session, error) {
	status, body, err := c.base.send(ctx, request{
		method: http.MethodPost,
		url:    c.base.baseURL + "/auth/v1/signup",
		body:   req,
	})
	if err != nil {
		return nil, nil, err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return nil, nil, authFailure(status, body)
	}

	var peek struct {
		AccessToken string `json:"access_token"`
	}
	_ = json.Unmarshal(body, &peek)
	if peek.AccessToken != "" {
		session, err := c.decodeSession(body)
		if err != nil {
			return nil, nil, err
		}
		if adopt {
			c.adopt(ctx, session, EventSignedIn)
		}
		user := session.User
		return &user, session, nil
	}

	var user AuthUser
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, nil, fmt.Errorf("decode signup user: %w", err)
	}
	return &user, nil, nil
}

// SignOut always drops the local session; the remote error, if any, is returned.
func (c *AuthClient) SignOut(ctx context.Context) error {
	token := c.AccessToken()
	var remoteErr error
	if token != "" {
		status, body, err := c.base.send(ctx, request{
			method: http.MethodPost,
			url:    c.base.baseURL + "/auth/v1/logout",
			bearer: token,
		})
		switch {
		case err != nil:
			remoteErr = err
		case status != http.StatusNoContent && status != http.StatusOK && status != http.StatusUnauthorized:
			remoteErr = authFailure(status, body)
		}
	}
	c.clear(ctx)
	c.hub.publish(AuthEvent{Type: EventSignedOut})
	return remoteErr
}

func (c *AuthClient) RefreshSession(ctx context.Context) (*Session, error) {
	c.mu.RLock()
	current := c.session
	c.mu.RUnlock()
	if current == nil || current.RefreshToken == "" {
		return nil, errors.New("no refresh token")
	}

	status, body, err := c.base.send(ctx, request{
		method: http.MethodPost,
		url:    c.base.baseURL + "/auth/v1/token?grant_type=refresh_token",
		body:   map[string]string{"refresh_token": current.RefreshToken},
	})
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, authFailure(status, body)
	}
	session, err := c.decodeSession(body)
	if err != nil {
		return nil, err
	}
	c.adopt(ctx, session, EventTokenRefreshed)
	return session, nil
}

// AutoRefresh refreshes the access token margin before it expires until ctx
// is cancelled.
func (c *AuthClient) AutoRefresh(ctx context.Context, interval, margin time.Duration) error {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		c.mu.RLock()
		current := c.session
		c.mu.RUnlock()
		if current == nil || !current.ExpiresWithin(c.now(), margin) {
			continue
		}
		if _, err := c.RefreshSession(ctx); err != nil {
			c.logger.Warn("token refresh failed", "err", err)
			var aerr *AuthError
			if errors.As(err, &aerr) && aerr.Status >= 400 && aerr.Status < 500 {
				c.clear(ctx)
				c.hub.publish(AuthEvent{Type: EventSignedOut})
			}
		}
	}
}

func (c *AuthClient) currentOrStored(ctx context.Context) (*Session, error) {
	c.mu.RLock()
	current, loaded := c.session, c.loaded
	c.mu.RUnlock()
	if current != nil || loaded {
		return current, nil
	}

	raw, ok, err := c.storage.Get(ctx, SessionStorageKey)
	if err != nil {
		return nil, fmt.Errorf("read stored session: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loaded = true
	if !ok {
		return nil, nil
	}
	var stored Session
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		c.logger.Warn("discarding unreadable stored session", "err", err)
		return nil, nil
	}
	c.session = &stored
	return &stored, nil
}

func (c *AuthClient) decodeSession(body []byte) (*Session, error) {
	var session Session
	if err := json.Unmarshal(body, &session); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if session.AccessToken == "" {
		return nil, errors.New("session without access token")
	}
	if session.ExpiresAt == 0 && session.ExpiresIn > 0 {
		session.ExpiresAt = c.now().Add(time.Duration(session.ExpiresIn) * time.Second).Unix()
	}
	return &session, nil
}

func (c *AuthClient) adopt(ctx context.Context, session *Session, event EventType) {
	c.mu.Lock()
	c.session = session
	c.loaded = true
	c.mu.Unlock()

	if raw, err := json.Marshal(session); err == nil {
		if err := c.storage.Set(ctx, SessionStorageKey, string(raw)); err != nil {
			c.logger.Warn("persist session failed", "err", err)
		}
	}
	copied := *session
	c.hub.publish(AuthEvent{Type: event, Session: &copied})
}

func (c *AuthClient) clear(ctx context.Context) {
	c.mu.Lock()
	c.session = nil
	c.loaded = true
	c.mu.Unlock()
	if err := c.storage.Remove(ctx, SessionStorageKey); err != nil {
		c.logger.Warn("remove stored session failed", "err", err)
	}
}
