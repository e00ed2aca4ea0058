package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"hrbpms/internal/domain/auth"
	"hrbpms/internal/domain/records"
	"hrbpms/internal/platform/supabase"
)

// AuthProvider is the subset of the hosted auth client the session needs.
type AuthProvider interface {
	GetSession(ctx context.Context) (*supabase.Session, error)
	SignInWithPassword(ctx context.Context, email, password string) (*supabase.Session, error)
	SignUp(ctx context.Context, req supabase.SignUpRequest, adopt bool) (*supabase.AuthUser, *supabase.Session, error)
	SignOut(ctx context.Context) error
	Subscribe() (<-chan supabase.AuthEvent, func())
}

// External authenticates against the hosted backend and reads profiles from
// the record store.
type External struct {
	auth   AuthProvider
	store  records.Store
	logger *slog.Logger
}

func NewExternal(provider AuthProvider, store records.Store, logger *slog.Logger) *External {
	if logger == nil {
		logger = slog.Default()
	}
	return &External{auth: provider, store: store, logger: logger}
}

func (b *External) Mode() Mode { return ModeExternal }

func (b *External) Restore(ctx context.Context) (*auth.User, error) {
	current, err := b.auth.GetSession(ctx)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, nil
	}
	return b.Profile(ctx, current.User.ID)
}

func (b *External) SignIn(ctx context.Context, creds auth.LoginCredentials) (Outcome, error) {
	current, err := b.auth.SignInWithPassword(ctx, creds.Email, creds.Password)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{PendingUserID: current.User.ID}, nil
}

// Register inserts the organization first; sign-up is never attempted when
// that insert fails.
func (b *External) Register(ctx context.Context, details auth.Registration) (Outcome, error) {
	org, err := records.InsertAs[records.Organization](ctx, b.store, records.CollectionOrganizations, records.Organization{
		Name:    details.OrganizationName,
		Email:   optional(details.OrganizationEmail),
		Phone:   optional(details.OrganizationPhone),
		Address: optional(details.OrganizationAddress),
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("create organization: %w", err)
	}
	orgID := org.ID

	user, started, err := b.auth.SignUp(ctx, supabase.SignUpRequest{
		Email:    details.Email,
		Password: details.Password,
		Data: map[string]any{
			"first_name":      details.FirstName,
			"last_name":       details.LastName,
			"phone":           details.Phone,
			"position":        details.Position,
			"role":            string(auth.RoleAdmin),
			"organization_id": orgID,
		},
	}, true)
	if err != nil {
		return Outcome{}, &RegistrationError{OrganizationID: orgID, Err: err}
	}
	if started == nil {
		return Outcome{}, nil
	}
	return Outcome{PendingUserID: user.ID}, nil
}

func (b *External) AddEmployee(ctx context.Context, caller auth.User, details auth.EmployeeCredentials) error {
	data := map[string]any{
		"first_name":      details.FirstName,
		"last_name":       details.LastName,
		"role":            string(details.Role),
		"organization_id": caller.Organization(),
		"position":        details.Position,
		"base_salary":     details.BaseSalary,
	}
	if details.DepartmentID != nil {
		data["department_id"] = *details.DepartmentID
	}
	_, _, err := b.auth.SignUp(ctx, supabase.SignUpRequest{
		Email:    details.Email,
		Password: details.Password,
		Data:     data,
	}, false)
	return err
}

func (b *External) SignOut(ctx context.Context) error {
	return b.auth.SignOut(ctx)
}

func (b *External) Profile(ctx context.Context, userID string) (*auth.User, error) {
	user, err := records.FetchOneAs[auth.User](ctx, b.store, records.CollectionProfiles, userID)
	if err != nil {
		return nil, fmt.Errorf("load profile %s: %w", userID, err)
	}
	return &user, nil
}

// Subscribe relays hosted auth events as session events until cancelled.
func (b *External) Subscribe() (<-chan Event, func()) {
	src, cancelSrc := b.auth.Subscribe()
	out := make(chan Event, 16)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-done:
				return
			case ev := <-src:
				next := Event{Kind: EventKind(ev.Type)}
				if ev.Session != nil {
					next.UserID = ev.Session.User.ID
				}
				select {
				case out <- next:
				case <-done:
					return
				}
			}
		}
	}()

	var once sync.Once
	return out, func() {
		once.Do(func() {
			cancelSrc()
			close(done)
		})
	}
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
