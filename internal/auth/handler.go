package auth

import (
	"errors"
	"net/http"

	"github.com/wolfman30/agentdesk/internal/http/httpjson"
	"github.com/wolfman30/agentdesk/internal/tenancy"
	"github.com/wolfman30/agentdesk/pkg/logging"
)

// Handler serves the auth endpoints.
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

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login handles POST /api/auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		httpjson.Error(w, http.StatusBadRequest, "email and password are required")
		return
	}
	result, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			httpjson.Error(w, http.StatusUnauthorized, "invalid email or password")
			return
		}
		h.logger.Error("login failed", "error", err)
		httpjson.Error(w, http.StatusInternalServerError, "login failed")
		return
	}
	httpjson.Write(w, http.StatusOK, result)
}

// Me handles GET /api/auth/me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	p, ok := tenancy.PrincipalFromContext(r.Context())
	if !ok {
		httpjson.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	user, err := h.service.GetUser(r.Context(), p.OrgID, p.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			httpjson.Error(w, http.StatusNotFound, "user not found")
			return
		}
		h.logger.Error("load current user failed", "error", err, "user_id", p.UserID)
		httpjson.Error(w, http.StatusInternalServerError, "failed to load user")
		return
	}
	httpjson.Write(w, http.StatusOK, user)
}
