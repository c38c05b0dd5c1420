package agents

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/agentdesk/internal/http/httpjson"
	"github.com/wolfman30/agentdesk/internal/tenancy"
	"github.com/wolfman30/agentdesk/pkg/logging"
)

const (
	maxUploadFiles     = 10
	maxMultipartBytes  = maxUploadFiles*MaxKnowledgeFileBytes + 1<<20
	multipartMemoryCap = 32 << 20
)

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

type listResponse struct {
	Agents []*Agent `json:"agents"`
}

// List handles GET /api/agents.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	p, ok := tenancy.PrincipalFromContext(r.Context())
	if !ok {
		httpjson.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	agents, err := h.service.List(r.Context(), p.OrgID)
	if err != nil {
		h.logger.Error("list agents failed", "error", err, "org_id", p.OrgID)
		httpjson.Error(w, http.StatusInternalServerError, "failed to list agents")
		return
	}
	httpjson.Write(w, http.StatusOK, listResponse{Agents: agents})
}

// Get handles GET /api/agents/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	p, ok := tenancy.PrincipalFromContext(r.Context())
	if !ok {
		httpjson.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	agent, err := h.service.Get(r.Context(), p.OrgID, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, agent)
}

// Create handles POST /api/agents with a JSON body.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	p, ok := tenancy.PrincipalFromContext(r.Context())
	if !ok {
		httpjson.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var in CreateInput
	if err := httpjson.Decode(r, &in); err != nil {
		httpjson.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	agent, err := h.service.Create(r.Context(), p.OrgID, p.UserID, in, nil)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpjson.Write(w, http.StatusCreated, agent)
}

// CreateMultipart handles POST /api/agents/create with form fields and
// repeated "files" parts.
func (h *Handler) CreateMultipart(w http.ResponseWriter, r *http.Request) {
	p, ok := tenancy.PrincipalFromContext(r.Context())
	if !ok {
		httpjson.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxMultipartBytes)
	if err := r.ParseMultipartForm(multipartMemoryCap); err != nil {
		httpjson.Error(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	in, err := formInput(r)
	if err != nil {
		httpjson.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	headers := r.MultipartForm.File["files"]
	if len(headers) > maxUploadFiles {
		httpjson.Error(w, http.StatusBadRequest, fmt.Sprintf("at most %d files are allowed", maxUploadFiles))
		return
	}
	uploads := make([]Upload, 0, len(headers))
	for _, fh := range headers {
		if fh.Size > MaxKnowledgeFileBytes {
			httpjson.Error(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("%s exceeds the 10 MiB limit", fh.Filename))
			return
		}
		f, err := fh.Open()
		if err != nil {
			httpjson.Error(w, http.StatusBadRequest, "failed to read upload")
			return
		}
		data, err := io.ReadAll(io.LimitReader(f, MaxKnowledgeFileBytes+1))
		f.Close()
		if err != nil {
			httpjson.Error(w, http.StatusBadRequest, "failed to read upload")
			return
		}
		uploads = append(uploads, Upload{Name: fh.Filename, ContentType: fh.Header.Get("Content-Type"), Data: data})
	}

	agent, err := h.service.Create(r.Context(), p.OrgID, p.UserID, in, uploads)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpjson.Write(w, http.StatusCreated, agent)
}

func formInput(r *http.Request) (CreateInput, error) {
	in := CreateInput{
		Name:         r.FormValue("name"),
		Description:  r.FormValue("description"),
		SystemPrompt: r.FormValue("systemPrompt"),
		Greeting:     r.FormValue("greeting"),
		Model:        r.FormValue("model"),
	}
	if v := strings.TrimSpace(r.FormValue("temperature")); v != "" {
		f, err := strconv.ParseFloat(v, 32)
		if err != nil {
			return in, errors.New("temperature must be a number")
		}
		t := float32(f)
		in.Temperature = &t
	}
	for field, dst := range map[string]**bool{
		"qualificationEnabled": &in.QualificationEnabled,
		"handoffEnabled":       &in.HandoffEnabled,
	} {
		if v := strings.TrimSpace(r.FormValue(field)); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return in, fmt.Errorf("%s must be a boolean", field)
			}
			*dst = &b
		}
	}
	return in, nil
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpjson.Error(w, http.StatusNotFound, "agent not found")
	case errors.Is(err, ErrFileTooLarge):
		httpjson.Error(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrUnsupportedFile):
		httpjson.Error(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("agent request failed", "error", err)
		httpjson.Error(w, http.StatusInternalServerError, "internal error")
	}
}
