package navigationhandler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"hrbpms/internal/domain/access"
	"hrbpms/internal/requestctx"
	"hrbpms/internal/transport/http/api"
	"hrbpms/internal/transport/http/middleware"
)

type Handler struct {
	Sessions middleware.SessionSource
}

func NewHandler(sessions middleware.SessionSource) *Handler {
	return &Handler{Sessions: sessions}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.With(middleware.RequireSession(h.Sessions)).Get("/navigation", h.HandleNavigation)
}

type navigationEntry struct {
	access.NavigationItem
	Active bool `json:"active"`
}

type navigationResponse struct {
	Landing string            `json:"landing"`
	Items   []navigationEntry `json:"items"`
}

// HandleNavigation lists the entries visible to the signed-in role, marking
// the ones matching ?path=.
func (h *Handler) HandleNavigation(w http.ResponseWriter, r *http.Request) {
	snap, ok := middleware.SnapshotFrom(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestctx.GetRequestID(r.Context()))
		return
	}
	path := r.URL.Query().Get("path")
	visible := access.VisibleTo(snap.User)
	items := make([]navigationEntry, 0, len(visible))
	for _, item := range visible {
		items = append(items, navigationEntry{NavigationItem: item, Active: path != "" && access.IsActive(item, path)})
	}
	api.Success(w, navigationResponse{Landing: access.LandingPath, Items: items}, requestctx.GetRequestID(r.Context()))
}
