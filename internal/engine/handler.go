package engine

import (
	"net/http"
	"strconv"

	"github.com/OwonaMedia/support-engine/internal/drift"
	"github.com/OwonaMedia/support-engine/internal/pkg/httputil"
	"github.com/OwonaMedia/support-engine/internal/tickets"
	"github.com/go-chi/chi/v5"
)

// Pagination constants.
const (
	DefaultChangesLimit = 50
	MaxChangesLimit     = 200
)

// Handler handles HTTP requests for the resolution engine.
type Handler struct {
	engine *Engine
	drift  drift.Repository
}

// NewHandler creates a new engine handler.
func NewHandler(engine *Engine, driftRepo drift.Repository) *Handler {
	return &Handler{engine: engine, drift: driftRepo}
}

// RegisterRoutes registers all HTTP routes for the engine.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/tickets/{id}/resolve", h.ResolveTicket)
	r.Get("/drift/changes", h.ListDriftChanges)
}

// ResolveTicket triggers one resolution pass for a ticket.
func (h *Handler) ResolveTicket(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		httputil.Error(w, http.StatusBadRequest, "ticket id is required")
		return
	}

	result, err := h.engine.ProcessTicket(r.Context(), id)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, []httputil.ErrorMapping{
			{Error: tickets.ErrTicketNotFound, Status: http.StatusNotFound},
		})
		return
	}

	httputil.Success(w, http.StatusOK, result)
}

// ListDriftChanges returns recently detected external API changes.
func (h *Handler) ListDriftChanges(w http.ResponseWriter, r *http.Request) {
	limit := DefaultChangesLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			httputil.Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	if limit > MaxChangesLimit {
		limit = MaxChangesLimit
	}

	changes, err := h.drift.ListRecent(r.Context(), limit)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, nil)
		return
	}

	httputil.Success(w, http.StatusOK, changes)
}
