package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"hrbpms/internal/domain/auth"
	"hrbpms/internal/domain/records"
	"hrbpms/internal/platform/localstore"
)

// LocalStorageKey is the persisted entry of the signed-in demo user.
const LocalStorageKey = "hrbpms_demo_user"

type LocalOptions struct {
	LoginDelay       time.Duration
	RegisterDelay    time.Duration
	AddEmployeeDelay time.Duration
	Logger           *slog.Logger
	Now              func() time.Time
}

// Local serves the seeded demo identities without any network access.
type Local struct {
	storage localstore.Store
	opts    LocalOptions
}

func NewLocal(storage localstore.Store, opts LocalOptions) *Local {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Local{storage: storage, opts: opts}
}

func (b *Local) Mode() Mode { return ModeLocalFallback }

func (b *Local) Restore(ctx context.Context) (*auth.User, error) {
	return b.persisted(ctx)
}

func (b *Local) SignIn(ctx context.Context, creds auth.LoginCredentials) (Outcome, error) {
	if err := sleep(ctx, b.opts.LoginDelay); err != nil {
		return Outcome{}, err
	}
	identities, err := seededIdentities()
	if err != nil {
		return Outcome{}, err
	}
	for _, identity := range identities {
		if identity.user.Email != creds.Email {
			continue
		}
		if err := auth.CheckPassword(identity.passwordHash, creds.Password); err != nil {
			return Outcome{}, err
		}
		user := identity.user
		if err := b.persist(ctx, &user); err != nil {
			return Outcome{}, err
		}
		return Outcome{User: &user}, nil
	}
	return Outcome{}, auth.ErrInvalidCredentials
}

func (b *Local) Register(ctx context.Context, details auth.Registration) (Outcome, error) {
	if err := sleep(ctx, b.opts.RegisterDelay); err != nil {
		return Outcome{}, err
	}
	org := RegisteredOrganizationID
	position := details.Position
	if position == "" {
		position = "Administrator"
	}
	user := auth.User{
		ID:             uuid.NewString(),
		Email:          details.Email,
		FirstName:      details.FirstName,
		LastName:       details.LastName,
		Role:           auth.RoleAdmin,
		OrganizationID: &org,
		Position:       &position,
		IsActive:       true,
		CreatedAt:      b.opts.Now().UTC(),
	}
	if details.Phone != "" {
		phone := details.Phone
		user.Phone = &phone
	}
	if err := b.persist(ctx, &user); err != nil {
		return Outcome{}, err
	}
	return Outcome{User: &user}, nil
}

// AddEmployee only simulates the latency of the hosted sign-up.
func (b *Local) AddEmployee(ctx context.Context, caller auth.User, details auth.EmployeeCredentials) error {
	if err := sleep(ctx, b.opts.AddEmployeeDelay); err != nil {
		return err
	}
	b.opts.Logger.Info("simulated employee creation", "organization_id", caller.Organization(), "email", details.Email)
	return nil
}

func (b *Local) SignOut(ctx context.Context) error {
	return b.storage.Remove(ctx, LocalStorageKey)
}

func (b *Local) Profile(ctx context.Context, userID string) (*auth.User, error) {
	user, err := b.persisted(ctx)
	if err != nil {
		return nil, err
	}
	if user == nil || user.ID != userID {
		return nil, records.ErrNotFound
	}
	return user, nil
}

func (b *Local) Subscribe() (<-chan Event, func()) {
	return nil, func() {}
}

func (b *Local) persisted(ctx context.Context) (*auth.User, error) {
	raw, ok, err := b.storage.Get(ctx, LocalStorageKey)
	if err != nil || !ok {
		return nil, err
	}
	var user auth.User
	if err := json.Unmarshal([]byte(raw), &user); err != nil || user.ID == "" {
		b.opts.Logger.Warn("discarding unreadable local session", "err", err)
		if rmErr := b.storage.Remove(ctx, LocalStorageKey); rmErr != nil {
			return nil, errors.Join(err, rmErr)
		}
		return nil, nil
	}
	return &user, nil
}

func (b *Local) persist(ctx context.Context, user *auth.User) error {
	raw, err := json.Marshal(user)
	if err != nil {
		return err
	}
	return b.storage.Set(ctx, LocalStorageKey, string(raw))
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// SeedStore inserts DemoData into store, skipping rows that already exist.
func SeedStore(ctx context.Context, store records.Store) error {
	for _, set := range DemoData() {
		for _, row := range set.Rows {
			if _, err := store.FetchOne(ctx, set.Collection, row.ID(), "id"); err == nil {
				continue
			} else if !errors.Is(err, records.ErrNotFound) {
				return err
			}
			if _, err := store.Insert(ctx, set.Collection, row); err != nil {
				return err
			}
		}
	}
	return nil
}
