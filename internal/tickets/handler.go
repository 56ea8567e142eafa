package tickets

import (
	"net/http"
	"strings"

	"github.com/OwonaMedia/support-engine/internal/domain"
	"github.com/OwonaMedia/support-engine/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Handler handles HTTP requests for the tickets module. The intake endpoint
// is how the surrounding product hands tickets to the engine; resolution
// itself runs through the engine poller and resolve endpoint.
type Handler struct {
	repo      Repository
	validator *validator.Validate
}

// NewHandler creates a new tickets handler.
func NewHandler(repo Repository) *Handler {
	return &Handler{repo: repo, validator: validator.New()}
}

// RegisterRoutes registers all HTTP routes for the tickets module.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/tickets", func(r chi.Router) {
		r.Post("/", h.CreateTicket)
		r.Get("/", h.ListTickets)
		r.Get("/{id}", h.GetTicket)
		r.Get("/{id}/messages", h.ListTicketMessages)
	})
}

// CreateTicketRequest represents the request body for ticket intake.
type CreateTicketRequest struct {
	ID          string         `json:"id" validate:"omitempty,max=255"`
	Title       string         `json:"title" validate:"required,min=1,max=500"`
	Description string         `json:"description" validate:"required,min=1"`
	Category    *string        `json:"category" validate:"omitempty,max=255"`
	Priority    string         `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	Metadata    map[string]any `json:"metadata"`
}

// ToDomain converts the request to a domain model. New tickets always enter
// the pipeline in status new.
func (r *CreateTicketRequest) ToDomain() *domain.Ticket {
	id := r.ID
	if id == "" {
		id = uuid.NewString()
	}
	priority := domain.TicketPriority(r.Priority)
	if priority == "" {
		priority = domain.TicketPriorityMedium
	}
	metadata := r.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	return &domain.Ticket{
		ID:          id,
		Title:       r.Title,
		Description: r.Description,
		Category:    r.Category,
		Priority:    priority,
		Status:      domain.TicketStatusNew,
		Metadata:    metadata,
	}
}

// CreateTicket handles POST /tickets request.
func (h *Handler) CreateTicket(w http.ResponseWriter, r *http.Request) {
	var req CreateTicketRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	ticket := req.ToDomain()
	if err := h.repo.Create(r.Context(), ticket); err != nil {
		httputil.HandleError(r.Context(), w, err, nil)
		return
	}

	httputil.Success(w, http.StatusCreated, ticket)
}

// GetTicket handles GET /tickets/{id} request.
func (h *Handler) GetTicket(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ticket, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		h.handleRepoError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusOK, ticket)
}

// ListTickets handles GET /tickets request. The status query parameter takes
// a comma-separated list; absent, it defaults to the non-terminal statuses
// the poller works on.
func (h *Handler) ListTickets(w http.ResponseWriter, r *http.Request) {
	statuses := []domain.TicketStatus{domain.TicketStatusNew, domain.TicketStatusInProgress}

	if raw := r.URL.Query().Get("status"); raw != "" {
		statuses = statuses[:0]
		for _, s := range strings.Split(raw, ",") {
			status := domain.TicketStatus(strings.TrimSpace(s))
			if !status.IsValid() {
				httputil.Error(w, http.StatusBadRequest, "invalid status: "+string(status))
				return
			}
			statuses = append(statuses, status)
		}
	}

	list, err := h.repo.ListByStatus(r.Context(), statuses...)
	if err != nil {
		h.handleRepoError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusOK, list)
}

// ListTicketMessages handles GET /tickets/{id}/messages request.
func (h *Handler) ListTicketMessages(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := h.repo.GetByID(r.Context(), id); err != nil {
		h.handleRepoError(w, r, err)
		return
	}

	messages, err := h.repo.ListMessages(r.Context(), id)
	if err != nil {
		h.handleRepoError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusOK, messages)
}

func (h *Handler) handleRepoError(w http.ResponseWriter, r *http.Request, err error) {
	httputil.HandleError(r.Context(), w, err, []httputil.ErrorMapping{
		{Error: ErrTicketNotFound, Status: http.StatusNotFound},
	})
}
