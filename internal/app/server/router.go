package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"hrbpms/internal/domain/access"
	"hrbpms/internal/domain/records"
	"hrbpms/internal/domain/session"
	"hrbpms/internal/platform/config"
	"hrbpms/internal/platform/localstore"
	"hrbpms/internal/platform/metrics"
	"hrbpms/internal/platform/validate"
	"hrbpms/internal/requestctx"
	"hrbpms/internal/transport/http/api"
	authhandler "hrbpms/internal/transport/http/handlers/auth"
	navigationhandler "hrbpms/internal/transport/http/handlers/navigation"
	recordshandler "hrbpms/internal/transport/http/handlers/records"
	"hrbpms/internal/transport/http/middleware"
)

type Deps struct {
	Config   config.Config
	Sessions authhandler.Sessions
	Store    records.Store
	Local    localstore.Store
	// Idempotency replays POST /employees retries. Built over Local when nil.
	Idempotency *middleware.IdempotencyStore
	// Ready reports whether backing services answer. Optional.
	Ready  func(ctx context.Context) error
	Logger *slog.Logger
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.SecureHeaders(middleware.SecurityOptions{
		Production:   cfg.Environment == "production",
		ImageSources: imageSources(cfg),
	}))
	router.Use(middleware.BodyLimit(cfg.MaxBodyBytes))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if deps.Sessions.Snapshot().State == session.StateInitializing {
			http.Error(w, "session bootstrapping", http.StatusServiceUnavailable)
			return
		}
		if deps.Ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := deps.Ready(ctx); err != nil {
				http.Error(w, "backend not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	if cfg.MetricsEnabled {
		router.Handle("/metrics", metrics.Handler())
	}

	router.Route("/api/v1", func(r chi.Router) {
		authHandler := authhandler.NewHandler(deps.Sessions, validate.New(), cfg.RequestTimeout)
		routes := authhandler.Routes{}
		if cfg.AuthRatePerMinute > 0 {
			routes.Limiter = middleware.NewRateLimiter(cfg.AuthRatePerMinute, middleware.AuthEmailOrIPKey("email")).Middleware
		}
		idempotency := deps.Idempotency
		if idempotency == nil && deps.Local != nil {
			idempotency = middleware.NewIdempotencyStore(deps.Local, cfg.IdempotencyTTL)
		}
		if idempotency != nil {
			routes.Idempotent = middleware.Idempotent(idempotency)
		}
		authHandler.RegisterRoutes(r, routes)

		navigationHandler := navigationhandler.NewHandler(deps.Sessions)
		navigationHandler.RegisterRoutes(r)

		recordsHandler := recordshandler.NewHandler(deps.Store, deps.Sessions)
		recordsHandler.RegisterRoutes(r)

		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			api.Fail(w, http.StatusNotFound, "not_found", "no such endpoint", requestctx.GetRequestID(r.Context()))
		})
	})

	spa := spaHandler{staticPath: cfg.FrontendDir, indexPath: "index.html"}
	router.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, access.LandingPath, http.StatusFound)
	})
	router.Get("/login", spa.serveIndex)
	router.Get("/register", spa.serveIndex)
	router.Group(func(r chi.Router) {
		r.Use(middleware.PageGate(deps.Sessions, http.HandlerFunc(serveLoading)))
		for _, page := range access.ProtectedPages() {
			r.Get(page, spa.serveIndex)
			r.Get(page+"/*", spa.serveIndex)
		}
	})
	router.NotFound(spa.ServeHTTP)

	return router
}

// imageSources lets avatar URLs served by the hosted storage load.
func imageSources(cfg config.Config) []string {
	if !cfg.ExternalConfigured() {
		return nil
	}
	return []string{cfg.SupabaseURL}
}
