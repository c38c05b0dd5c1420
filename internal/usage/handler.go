package usage

import (
	"net/http"
	"strconv"
	"time"

	"github.com/wolfman30/agentdesk/internal/http/httpjson"
	"github.com/wolfman30/agentdesk/internal/tenancy"
	"github.com/wolfman30/agentdesk/pkg/logging"
)

const (
	defaultSummaryDays = 30
	maxSummaryDays     = 365
)

// Handler serves token usage summaries.
type Handler struct {
	recorder Recorder
	logger   *logging.Logger
	now      func() time.Time
}

func NewHandler(recorder Recorder, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{recorder: recorder, logger: logger, now: time.Now}
}

// Summary handles GET /api/admin/usage?days=.
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	orgID, ok := tenancy.OrgIDFromContext(r.Context())
	if !ok {
		httpjson.Error(w, http.StatusUnauthorized, "missing org context")
		return
	}
	days := defaultSummaryDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 || v > maxSummaryDays {
			httpjson.Error(w, http.StatusBadRequest, "days must be between 1 and 365")
			return
		}
		days = v
	}
	since := h.now().UTC().AddDate(0, 0, -days)
	sum, err := h.recorder.Summarize(r.Context(), orgID, since)
	if err != nil {
		h.logger.Error("usage summary failed", "org_id", orgID, "error", err)
		httpjson.Error(w, http.StatusInternalServerError, "failed to summarize usage")
		return
	}
	httpjson.Write(w, http.StatusOK, sum)
}
