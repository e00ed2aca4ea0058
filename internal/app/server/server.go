package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"hrbpms/internal/domain/records"
	"hrbpms/internal/domain/session"
	"hrbpms/internal/platform/config"
	"hrbpms/internal/platform/db"
	"hrbpms/internal/platform/localstore"
	"hrbpms/internal/platform/metrics"
	"hrbpms/internal/platform/supabase"
	"hrbpms/internal/transport/http/middleware"
)

type App struct {
	Config   config.Config
	Sessions *session.Manager
	Store    records.Store
	Router   http.Handler

	logger      *slog.Logger
	authClient  *supabase.AuthClient
	pool        *pgxpool.Pool
	local       *localstore.SQLite
	idempotency *middleware.IdempotencyStore
}

// Run loads configuration and serves until ctx is cancelled.
func Run(ctx context.Context) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("could not read .env", "err", err)
	}
	cfg := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	app, err := New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()
	return app.Serve(ctx)
}

// New opens every backing store and builds the router. The session is not
// bootstrapped until Serve.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	app := &App{Config: cfg, logger: logger}

	sqlite, err := localstore.OpenSQLite(cfg.LocalStorePath)
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}
	app.local = sqlite
	local, err := localstore.NewEncrypted(sqlite, cfg.LocalStoreKey)
	if err != nil {
		app.Close()
		return nil, err
	}

	external := cfg.ExternalConfigured()
	supabaseCfg := supabase.Config{
		URL:       cfg.SupabaseURL,
		AnonKey:   cfg.SupabaseAnonKey,
		JWTSecret: cfg.SupabaseJWTSecret,
		Timeout:   cfg.RequestTimeout,
	}
	if external {
		app.authClient = supabase.NewAuthClient(supabaseCfg, local, nil, logger)
	} else {
		logger.Warn("hosted backend not configured, using demo identities", "mode", session.ModeLocalFallback)
	}

	store, err := app.openStore(ctx, supabaseCfg, external)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Store = metrics.InstrumentStore(store)

	var backend session.Backend
	if external {
		backend = session.NewExternal(app.authClient, app.Store, logger)
	} else {
		backend = session.NewLocal(local, session.LocalOptions{
			LoginDelay:       cfg.DemoLoginDelay,
			RegisterDelay:    cfg.DemoRegisterDelay,
			AddEmployeeDelay: cfg.DemoLoginDelay,
			Logger:           logger,
		})
	}
	app.Sessions = session.NewManager(backend, session.Options{
		BootstrapTimeout: cfg.BootstrapTimeout,
		ProfileTimeout:   cfg.RequestTimeout,
		Logger:           logger,
	})

	app.idempotency = middleware.NewIdempotencyStore(local, cfg.IdempotencyTTL)

	deps := Deps{Config: cfg, Sessions: app.Sessions, Store: app.Store, Local: local, Idempotency: app.idempotency, Logger: logger}
	if app.pool != nil {
		deps.Ready = app.pool.Ping
	}
	app.Router = NewRouter(deps)
	return app, nil
}

func (a *App) openStore(ctx context.Context, supabaseCfg supabase.Config, external bool) (records.Store, error) {
	driver := a.Config.StoreDriver()
	a.logger.Info("record store selected", "driver", driver)
	switch driver {
	case config.StoreDriverREST:
		if a.authClient == nil {
			return nil, errors.New("rest record store requires the hosted backend")
		}
		return supabase.NewRestClient(supabaseCfg, a.authClient, nil), nil
	case config.StoreDriverPostgres:
		pool, err := db.Connect(ctx, a.Config.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("db connect: %w", err)
		}
		a.pool = pool
		if a.Config.RunMigrations {
			if err := db.Migrate(ctx, pool); err != nil {
				return nil, fmt.Errorf("migrations: %w", err)
			}
		}
		if !external {
			for _, set := range session.DemoData() {
				if err := db.Seed(ctx, pool, set.Collection, set.Rows); err != nil {
					return nil, fmt.Errorf("seed %s: %w", set.Collection, err)
				}
			}
		}
		return db.NewRecordStore(pool), nil
	case config.StoreDriverMemory:
		store := records.NewMemoryStore()
		if !external {
			if err := session.SeedStore(ctx, store); err != nil {
				return nil, fmt.Errorf("seed memory store: %w", err)
			}
		}
		return store, nil
	}
	return nil, fmt.Errorf("unknown record store driver %q", driver)
}

// Serve bootstraps the session, keeps tokens fresh and serves HTTP until ctx
// is cancelled or the listener fails.
func (a *App) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.Config.Addr,
		Handler:           a.Router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.Sessions.Start(gctx); err != nil {
			a.logger.Warn("session bootstrap finished without a user", "err", err)
		}
		return nil
	})
	if a.authClient != nil {
		g.Go(func() error {
			return a.authClient.AutoRefresh(gctx, 0, a.Config.TokenRefreshMargin)
		})
	}
	if a.idempotency != nil {
		g.Go(func() error {
			return a.idempotency.RunPruner(gctx, time.Hour, a.logger)
		})
	}
	g.Go(func() error {
		a.logger.Info("HR BPMS server listening", "addr", a.Config.Addr, "mode", a.Sessions.Mode())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (a *App) Close() {
	if a.Sessions != nil {
		a.Sessions.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.local != nil {
		if err := a.local.Close(); err != nil {
			a.logger.Warn("close local store", "err", err)
		}
	}
}
