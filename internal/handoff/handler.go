package handoff

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/agentdesk/internal/conversation"
	"github.com/wolfman30/agentdesk/internal/http/httpjson"
	"github.com/wolfman30/agentdesk/internal/tenancy"
	"github.com/wolfman30/agentdesk/pkg/logging"
)

// Handler exposes the handoff transitions over HTTP.
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

type requestBody struct {
	Reason string `json:"reason"`
}

type transitionResponse struct {
	ConversationID string            `json:"conversationId"`
	Mode           conversation.Mode `json:"mode"`
	Handoff        *Handoff          `json:"handoff,omitempty"`
}

// RequestHandoff handles POST /api/conversations/{id}/request-handoff.
func (h *Handler) RequestHandoff(w http.ResponseWriter, r *http.Request) {
	p, ok := tenancy.PrincipalFromContext(r.Context())
	if !ok {
		httpjson.Error(w, http.StatusUnauthorized, "missing principal")
		return
	}
	var body requestBody
	if err := httpjson.Decode(r, &body); err != nil && !errors.Is(err, httpjson.ErrEmptyBody) {
		httpjson.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	convID := chi.URLParam(r, "id")
	handoff, err := h.service.Request(r.Context(), p.OrgID, convID, p.UserID, body.Reason)
	if err != nil {
		h.writeError(w, err, "failed to request handoff")
		return
	}
	httpjson.Write(w, http.StatusOK, transitionResponse{ConversationID: convID, Mode: conversation.ModePendingHuman, Handoff: handoff})
}

// AcceptHandoff handles POST /api/conversations/{id}/accept-handoff.
func (h *Handler) AcceptHandoff(w http.ResponseWriter, r *http.Request) {
	p, ok := tenancy.PrincipalFromContext(r.Context())
	if !ok {
		httpjson.Error(w, http.StatusUnauthorized, "missing principal")
		return
	}
	convID := chi.URLParam(r, "id")
	handoff, err := h.service.Accept(r.Context(), p.OrgID, convID, p.UserID)
	if err != nil {
		h.writeError(w, err, "failed to accept handoff")
		return
	}
	httpjson.Write(w, http.StatusOK, transitionResponse{ConversationID: convID, Mode: conversation.ModeHuman, Handoff: handoff})
}

// TransferToAI handles POST /api/conversations/{id}/transfer-to-ai.
func (h *Handler) TransferToAI(w http.ResponseWriter, r *http.Request) {
	p, ok := tenancy.PrincipalFromContext(r.Context())
	if !ok {
		httpjson.Error(w, http.StatusUnauthorized, "missing principal")
		return
	}
	convID := chi.URLParam(r, "id")
	handoff, err := h.service.TransferToAI(r.Context(), p.OrgID, convID, p.UserID)
	if err != nil {
		h.writeError(w, err, "failed to transfer to ai")
		return
	}
	httpjson.Write(w, http.StatusOK, transitionResponse{ConversationID: convID, Mode: conversation.ModeAI, Handoff: handoff})
}

// List handles GET /api/handoffs.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	orgID, ok := tenancy.OrgIDFromContext(r.Context())
	if !ok {
		httpjson.Error(w, http.StatusUnauthorized, "missing org context")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	handoffs, err := h.service.List(r.Context(), orgID, Status(r.URL.Query().Get("status")), limit)
	if err != nil {
		h.writeError(w, err, "failed to list handoffs")
		return
	}
	httpjson.Write(w, http.StatusOK, map[string]any{"handoffs": handoffs, "count": len(handoffs)})
}

func (h *Handler) writeError(w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, ErrInvalidStatus):
		httpjson.Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, conversation.ErrNotFound), errors.Is(err, ErrNotFound):
		httpjson.Error(w, http.StatusNotFound, "conversation not found")
	case errors.Is(err, ErrAlreadyActive), errors.Is(err, ErrNotActive), errors.Is(err, ErrNotPending):
		httpjson.Error(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error(msg, "error", err)
		httpjson.Error(w, http.StatusInternalServerError, msg)
	}
}
