package authhandler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"hrbpms/internal/domain/auth"
	"hrbpms/internal/domain/session"
	"hrbpms/internal/platform/validate"
	"hrbpms/internal/requestctx"
	"hrbpms/internal/transport/http/api"
	"hrbpms/internal/transport/http/middleware"
	"hrbpms/internal/transport/http/shared"
)

// Sessions is the session manager as seen by the HTTP layer.
type Sessions interface {
	Snapshot() session.Snapshot
	Login(ctx context.Context, creds auth.LoginCredentials) error
	Register(ctx context.Context, details auth.Registration) error
	Logout(ctx context.Context) error
	RefreshUser(ctx context.Context) error
	AddEmployee(ctx context.Context, details auth.EmployeeCredentials) error
}

type Handler struct {
	Sessions  Sessions
	Validator *validate.Validator
	// Timeout bounds each credential operation. Zero leaves only the request context.
	Timeout time.Duration
}

func NewHandler(sessions Sessions, validator *validate.Validator, timeout time.Duration) *Handler {
	if validator == nil {
		validator = validate.New()
	}
	return &Handler{Sessions: sessions, Validator: validator, Timeout: timeout}
}

// Routes carries the optional middleware of the credential and employee
// endpoints.
type Routes struct {
	Limiter    func(http.Handler) http.Handler
	Idempotent func(http.Handler) http.Handler
}

func (h *Handler) RegisterRoutes(r chi.Router, opts Routes) {
	r.Get("/session", h.HandleSession)
	r.Group(func(r chi.Router) {
		if opts.Limiter != nil {
			r.Use(opts.Limiter)
		}
		r.Post("/auth/login", h.HandleLogin)
		r.Post("/auth/register", h.HandleRegister)
	})
	r.Post("/auth/logout", h.HandleLogout)
	r.With(middleware.RequireSession(h.Sessions)).Post("/auth/refresh", h.HandleRefresh)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireSession(h.Sessions))
		r.Use(middleware.RequireRole(auth.RoleAdmin, auth.RoleHR))
		if opts.Idempotent != nil {
			r.Use(opts.Idempotent)
		}
		r.Post("/employees", h.HandleAddEmployee)
	})
}

func (h *Handler) context(r *http.Request) (context.Context, context.CancelFunc) {
	if h.Timeout > 0 {
		return context.WithTimeout(r.Context(), h.Timeout)
	}
	return context.WithCancel(r.Context())
}

func (h *Handler) HandleSession(w http.ResponseWriter, r *http.Request) {
	api.Success(w, h.Sessions.Snapshot(), requestctx.GetRequestID(r.Context()))
}

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var payload auth.LoginCredentials
	if !shared.DecodeJSON(w, r, &payload) {
		return
	}
	if err := h.Validator.Struct(payload); err != nil {
		api.FromError(w, err, requestctx.GetRequestID(r.Context()))
		return
	}

	ctx, cancel := h.context(r)
	defer cancel()
	if err := h.Sessions.Login(ctx, payload); err != nil {
		api.FromError(w, err, requestctx.GetRequestID(r.Context()))
		return
	}
	api.Success(w, h.Sessions.Snapshot(), requestctx.GetRequestID(r.Context()))
}

type registerResponse struct {
	Session              session.Snapshot `json:"session"`
	ConfirmationRequired bool             `json:"confirmationRequired"`
}

func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var payload auth.Registration
	if !shared.DecodeJSON(w, r, &payload) {
		return
	}
	if err := h.Validator.Struct(payload); err != nil {
		api.FromError(w, err, requestctx.GetRequestID(r.Context()))
		return
	}

	ctx, cancel := h.context(r)
	defer cancel()
	if err := h.Sessions.Register(ctx, payload); err != nil {
		api.FromError(w, err, requestctx.GetRequestID(r.Context()))
		return
	}
	snap := h.Sessions.Snapshot()
	api.Created(w, registerResponse{Session: snap, ConfirmationRequired: snap.User == nil}, requestctx.GetRequestID(r.Context()))
}

func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.context(r)
	defer cancel()
	if err := h.Sessions.Logout(ctx); err != nil {
		api.FromError(w, err, requestctx.GetRequestID(r.Context()))
		return
	}
	api.Success(w, h.Sessions.Snapshot(), requestctx.GetRequestID(r.Context()))
}

func (h *Handler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.context(r)
	defer cancel()
	if err := h.Sessions.RefreshUser(ctx); err != nil {
		api.FromError(w, err, requestctx.GetRequestID(r.Context()))
		return
	}
	api.Success(w, h.Sessions.Snapshot(), requestctx.GetRequestID(r.Context()))
}

func (h *Handler) HandleAddEmployee(w http.ResponseWriter, r *http.Request) {
	var payload auth.EmployeeCredentials
	if !shared.DecodeJSON(w, r, &payload) {
		return
	}
	if err := h.Validator.Struct(payload); err != nil {
		api.FromError(w, err, requestctx.GetRequestID(r.Context()))
		return
	}

	ctx, cancel := h.context(r)
	defer cancel()
	if err := h.Sessions.AddEmployee(ctx, payload); err != nil {
		api.FromError(w, err, requestctx.GetRequestID(r.Context()))
		return
	}
	api.Created(w, map[string]any{
		"email":         payload.Email,
		"role":          payload.Role,
		"department_id": payload.DepartmentID,
	}, requestctx.GetRequestID(r.Context()))
}
