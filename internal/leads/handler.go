package leads

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/agentdesk/internal/http/httpjson"
	"github.com/wolfman30/agentdesk/internal/tenancy"
	"github.com/wolfman30/agentdesk/pkg/logging"
)

// Handler handles HTTP requests for leads
type Handler struct {
	service *Service
	logger  *logging.Logger
}

func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

// ListLeadsResponse is the response for listing leads
type ListLeadsResponse struct {
	Leads  []*Lead `json:"leads"`
	Count  int     `json:"count"`
	Offset int     `json:"offset"`
	Limit  int     `json:"limit"`
}

// List handles GET /api/leads.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	orgID, ok := tenancy.OrgIDFromContext(r.Context())
	if !ok {
		httpjson.Error(w, http.StatusUnauthorized, "missing org context")
		return
	}

	q := r.URL.Query()
	filter := ListFilter{
		ConversationID: q.Get("conversationId"),
		Status:         Status(q.Get("status")),
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}
	filter = filter.normalized()

	leads, err := h.service.List(r.Context(), orgID, filter)
	if err != nil {
		if errors.Is(err, ErrInvalidStatus) {
			httpjson.Error(w, http.StatusBadRequest, "invalid status filter")
			return
		}
		h.logger.Error("failed to list leads", "error", err, "org_id", orgID)
		httpjson.Error(w, http.StatusInternalServerError, "failed to list leads")
		return
	}
	httpjson.Write(w, http.StatusOK, ListLeadsResponse{
		Leads:  leads,
		Count:  len(leads),
		Offset: filter.Offset,
		Limit:  filter.Limit,
	})
}

// Get handles GET /api/leads/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	orgID, ok := tenancy.OrgIDFromContext(r.Context())
	if !ok {
		httpjson.Error(w, http.StatusUnauthorized, "missing org context")
		return
	}
	lead, err := h.service.Get(r.Context(), orgID, chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, ErrLeadNotFound) {
			httpjson.Error(w, http.StatusNotFound, "lead not found")
			return
		}
		h.logger.Error("failed to load lead", "error", err)
		httpjson.Error(w, http.StatusInternalServerError, "failed to load lead")
		return
	}
	httpjson.Write(w, http.StatusOK, lead)
}
