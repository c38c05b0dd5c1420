package conversation

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/agentdesk/internal/http/httpjson"
	"github.com/wolfman30/agentdesk/internal/tenancy"
	"github.com/wolfman30/agentdesk/pkg/logging"
)

const defaultMessageLimit = 200

// Handler wires HTTP requests to the conversation service.
type Handler struct {
	service *Service
	jobs    JobRecorder
	logger  *logging.Logger
}

// NewHandler creates a conversation handler. jobs may be nil when
// qualification runs inline.
func NewHandler(service *Service, jobs JobRecorder, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, jobs: jobs, logger: logger}
}

// Chat handles POST /api/chat.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	orgID, ok := tenancy.OrgIDFromContext(r.Context())
	if !ok {
		httpjson.Error(w, http.StatusUnauthorized, "missing org context")
		return
	}
	var req ChatRequest
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	resp, err := h.service.Chat(r.Context(), orgID, req)
	if err != nil {
		h.writeError(w, err, "chat failed")
		return
	}
	httpjson.Write(w, http.StatusOK, resp)
}

type listResponse struct {
	Conversations []*Conversation `json:"conversations"`
	Count         int             `json:"count"`
}

// List handles GET /api/conversations.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	orgID, ok := tenancy.OrgIDFromContext(r.Context())
	if !ok {
		httpjson.Error(w, http.StatusUnauthorized, "missing org context")
		return
	}
	q := r.URL.Query()
	filter := ListFilter{Mode: Mode(q.Get("mode")), AgentID: q.Get("agentId")}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil {
		filter.Limit = v
	}
	if v, err := strconv.Atoi(q.Get("offset")); err == nil {
		filter.Offset = v
	}
	convs, err := h.service.List(r.Context(), orgID, filter)
	if err != nil {
		h.writeError(w, err, "failed to list conversations")
		return
	}
	httpjson.Write(w, http.StatusOK, listResponse{Conversations: convs, Count: len(convs)})
}

type detailResponse struct {
	Conversation *Conversation `json:"conversation"`
	Messages     []Message     `json:"messages"`
}

// Get handles GET /api/conversations/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	orgID, ok := tenancy.OrgIDFromContext(r.Context())
	if !ok {
		httpjson.Error(w, http.StatusUnauthorized, "missing org context")
		return
	}
	limit := defaultMessageLimit
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		limit = v
	}
	conv, msgs, err := h.service.Get(r.Context(), orgID, chi.URLParam(r, "id"), limit)
	if err != nil {
		h.writeError(w, err, "failed to load conversation")
		return
	}
	httpjson.Write(w, http.StatusOK, detailResponse{Conversation: conv, Messages: msgs})
}

type operatorMessageRequest struct {
	Content string `json:"content"`
}

// PostMessage handles POST /api/conversations/{id}/messages.
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	p, ok := tenancy.PrincipalFromContext(r.Context())
	if !ok {
		httpjson.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req operatorMessageRequest
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	msg, err := h.service.OperatorReply(r.Context(), p.OrgID, chi.URLParam(r, "id"), p.UserID, req.Content)
	if err != nil {
		h.writeError(w, err, "failed to post message")
		return
	}
	httpjson.Write(w, http.StatusCreated, msg)
}

// GetJob handles GET /api/qualification/jobs/{id}.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	orgID, ok := tenancy.OrgIDFromContext(r.Context())
	if !ok {
		httpjson.Error(w, http.StatusUnauthorized, "missing org context")
		return
	}
	if h.jobs == nil {
		httpjson.Error(w, http.StatusNotFound, "job not found")
		return
	}
	job, err := h.jobs.GetJob(r.Context(), chi.URLParam(r, "id"))
	if err == nil && job.OrgID != orgID {
		err = ErrJobNotFound
	}
	if err != nil {
		h.writeError(w, err, "failed to load job")
		return
	}
	httpjson.Write(w, http.StatusOK, job)
}

func (h *Handler) writeError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		httpjson.Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		httpjson.Error(w, http.StatusNotFound, "conversation not found")
	case errors.Is(err, ErrUnknownAgent):
		httpjson.Error(w, http.StatusNotFound, "agent not found")
	case errors.Is(err, ErrJobNotFound):
		httpjson.Error(w, http.StatusNotFound, "job not found")
	case errors.Is(err, ErrAgentMismatch):
		httpjson.Error(w, http.StatusConflict, "conversation belongs to a different agent")
	case errors.Is(err, ErrNotHumanMode):
		httpjson.Error(w, http.StatusConflict, "conversation is not in human mode")
	case errors.Is(err, ErrModeConflict):
		httpjson.Error(w, http.StatusConflict, "conversation mode changed")
	case errors.Is(err, ErrReplyFailed):
		h.logger.Error(fallback, "error", err)
		httpjson.Error(w, http.StatusBadGateway, "the assistant is unavailable")
	default:
		h.logger.Error(fallback, "error", err)
		httpjson.Error(w, http.StatusInternalServerError, fallback)
	}
}
