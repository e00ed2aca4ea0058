package recordshandler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"hrbpms/internal/domain/access"
	"hrbpms/internal/domain/records"
	"hrbpms/internal/requestctx"
	"hrbpms/internal/transport/http/api"
	"hrbpms/internal/transport/http/middleware"
	"hrbpms/internal/transport/http/shared"
)

const maxListLimit = 500

// Handler exposes the record store to feature views of the signed-in user.
type Handler struct {
	Store    records.Store
	Sessions middleware.SessionSource
}

func NewHandler(store records.Store, sessions middleware.SessionSource) *Handler {
	return &Handler{Store: store, Sessions: sessions}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/records/{collection}", func(r chi.Router) {
		r.Use(middleware.RequireSession(h.Sessions))
		r.Use(knownCollection)
		r.Get("/", h.HandleList)
		r.Post("/", h.HandleCreate)
		r.Get("/{id}", h.HandleGet)
		r.Patch("/{id}", h.HandleUpdate)
		r.Delete("/{id}", h.HandleDelete)
	})
}

func knownCollection(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		collection := chi.URLParam(r, "collection")
		if !records.Known(collection) {
			api.Fail(w, http.StatusNotFound, "unknown_collection", "unknown collection "+collection, requestctx.GetRequestID(r.Context()))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// allowWrite answers 403 when the signed-in user may not change the row.
func allowWrite(w http.ResponseWriter, r *http.Request, id string, fields records.Record) bool {
	snap, _ := middleware.SnapshotFrom(r.Context())
	if !access.CanWrite(snap.User, chi.URLParam(r, "collection"), id, fields) {
		api.Fail(w, http.StatusForbidden, "forbidden", "insufficient role", requestctx.GetRequestID(r.Context()))
		return false
	}
	return true
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Store.FetchAll(r.Context(), chi.URLParam(r, "collection"), shared.ParseRecordQuery(r, maxListLimit))
	if err != nil {
		api.FromError(w, err, requestctx.GetRequestID(r.Context()))
		return
	}
	api.Success(w, rows, requestctx.GetRequestID(r.Context()))
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	row, err := h.Store.FetchOne(r.Context(), chi.URLParam(r, "collection"), chi.URLParam(r, "id"), r.URL.Query().Get("select"))
	if err != nil {
		api.FromError(w, err, requestctx.GetRequestID(r.Context()))
		return
	}
	api.Success(w, row, requestctx.GetRequestID(r.Context()))
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var payload records.Record
	if !shared.DecodeJSON(w, r, &payload) {
		return
	}
	if !allowWrite(w, r, "", payload) {
		return
	}
	row, err := h.Store.Insert(r.Context(), chi.URLParam(r, "collection"), payload)
	if err != nil {
		api.FromError(w, err, requestctx.GetRequestID(r.Context()))
		return
	}
	api.Created(w, row, requestctx.GetRequestID(r.Context()))
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var payload records.Record
	if !shared.DecodeJSON(w, r, &payload) {
		return
	}
	if !allowWrite(w, r, chi.URLParam(r, "id"), payload) {
		return
	}
	row, err := h.Store.Update(r.Context(), chi.URLParam(r, "collection"), chi.URLParam(r, "id"), payload)
	if err != nil {
		api.FromError(w, err, requestctx.GetRequestID(r.Context()))
		return
	}
	api.Success(w, row, requestctx.GetRequestID(r.Context()))
}

// HandleDelete succeeds for ids that do not exist.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if !allowWrite(w, r, chi.URLParam(r, "id"), nil) {
		return
	}
	if err := h.Store.Remove(r.Context(), chi.URLParam(r, "collection"), chi.URLParam(r, "id")); err != nil {
		api.FromError(w, err, requestctx.GetRequestID(r.Context()))
		return
	}
	api.NoContent(w)
}
