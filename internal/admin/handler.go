// Package admin serves org-level reporting for owners and admins.
package admin

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/lib/pq"

	"github.com/wolfman30/agentdesk/internal/auth"
	"github.com/wolfman30/agentdesk/internal/http/httpjson"
	"github.com/wolfman30/agentdesk/internal/tenancy"
	"github.com/wolfman30/agentdesk/pkg/logging"
)

const defaultStatsWindow = 30 * 24 * time.Hour

// Handler answers the admin endpoints straight from SQL.
type Handler struct {
	db     *sql.DB
	logger *logging.Logger
	now    func() time.Time
}

// NewHandler creates an admin handler. db may be nil, in which case every
// endpoint answers 503.
func NewHandler(db *sql.DB, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{db: db, logger: logger, now: time.Now}
}

// UserSummary is a user without credentials.
type UserSummary struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

// TeamMember is a user who can take handoffs.
type TeamMember struct {
	UserSummary
	ActiveHandoffs int `json:"activeHandoffs"`
}

type usersResponse struct {
	Users []UserSummary `json:"users"`
	Total int           `json:"total"`
}

type teamResponse struct {
	Members []TeamMember `json:"members"`
	Total   int          `json:"total"`
}

// StatsResponse summarizes org activity since a point in time.
type StatsResponse struct {
	Since         time.Time   `json:"since"`
	Conversations Breakdown   `json:"conversations"`
	Leads         Breakdown   `json:"leads"`
	Handoffs      Breakdown   `json:"handoffs"`
	Messages      int         `json:"messages"`
	Tokens        TokenTotals `json:"tokens"`
}

// Breakdown counts rows by one column.
type Breakdown struct {
	Total int            `json:"total"`
	By    map[string]int `json:"by"`
}

type TokenTotals struct {
	Input  int64 `json:"input"`
	Output int64 `json:"output"`
	Total  int64 `json:"total"`
}

func (h *Handler) ready(w http.ResponseWriter) bool {
	if h.db == nil {
		httpjson.Error(w, http.StatusServiceUnavailable, "database not configured")
		return false
	}
	return true
}

// ListUsers handles GET /api/admin/users.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	orgID, ok := tenancy.OrgIDFromContext(r.Context())
	if !ok {
		httpjson.Error(w, http.StatusUnauthorized, "missing org context")
		return
	}
	rows, err := h.db.QueryContext(r.Context(), `
		SELECT id, email, name, role, created_at
		FROM users
		WHERE org_id = $1
		ORDER BY created_at ASC
	`, orgID)
	if err != nil {
		h.fail(w, "list users", err)
		return
	}
	defer rows.Close()

	users := []UserSummary{}
	for rows.Next() {
		var u UserSummary
		if err := rows.Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.CreatedAt); err != nil {
			h.fail(w, "scan user", err)
			return
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		h.fail(w, "list users", err)
		return
	}
	httpjson.Write(w, http.StatusOK, usersResponse{Users: users, Total: len(users)})
}

// ListTeamMembers handles GET /api/admin/team/members.
func (h *Handler) ListTeamMembers(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	orgID, ok := tenancy.OrgIDFromContext(r.Context())
	if !ok {
		httpjson.Error(w, http.StatusUnauthorized, "missing org context")
		return
	}
	roles := make([]string, 0, len(auth.TeamRoles))
	for _, role := range auth.TeamRoles {
		roles = append(roles, string(role))
	}
	rows, err := h.db.QueryContext(r.Context(), `
		SELECT u.id, u.email, u.name, u.role, u.created_at, COUNT(ho.id) AS active_handoffs
		FROM users u
		LEFT JOIN handoffs ho ON ho.org_id = u.org_id AND ho.accepted_by = u.id AND ho.status = 'accepted'
		WHERE u.org_id = $1 AND u.role = ANY($2)
		GROUP BY u.id, u.email, u.name, u.role, u.created_at
		ORDER BY u.name ASC
	`, orgID, pq.Array(roles))
	if err != nil {
		h.fail(w, "list team members", err)
		return
	}
	defer rows.Close()

	members := []TeamMember{}
	for rows.Next() {
		var m TeamMember
		if err := rows.Scan(&m.ID, &m.Email, &m.Name, &m.Role, &m.CreatedAt, &m.ActiveHandoffs); err != nil {
			h.fail(w, "scan team member", err)
			return
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		h.fail(w, "list team members", err)
		return
	}
	httpjson.Write(w, http.StatusOK, teamResponse{Members: members, Total: len(members)})
}

// Stats handles GET /api/admin/stats?since=. since accepts RFC 3339 or a
// Go duration such as 168h; the default window is 30 days.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	orgID, ok := tenancy.OrgIDFromContext(r.Context())
	if !ok {
		httpjson.Error(w, http.StatusUnauthorized, "missing org context")
		return
	}
	since, err := parseSince(r.URL.Query().Get("since"), h.now())
	if err != nil {
		httpjson.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx := r.Context()
	resp := StatsResponse{Since: since}

	if resp.Conversations, err = h.breakdown(ctx,
		`SELECT mode, COUNT(*) FROM conversations WHERE org_id = $1 AND created_at >= $2 GROUP BY mode`,
		orgID, since); err != nil {
		h.fail(w, "conversation stats", err)
		return
	}
	if resp.Leads, err = h.breakdown(ctx,
		`SELECT status, COUNT(*) FROM leads WHERE org_id = $1 AND created_at >= $2 GROUP BY status`,
		orgID, since); err != nil {
		h.fail(w, "lead stats", err)
		return
	}
	if resp.Handoffs, err = h.breakdown(ctx,
		`SELECT status, COUNT(*) FROM handoffs WHERE org_id = $1 AND requested_at >= $2 GROUP BY status`,
		orgID, since); err != nil {
		h.fail(w, "handoff stats", err)
		return
	}
	if err := h.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE org_id = $1 AND created_at >= $2`,
		orgID, since).Scan(&resp.Messages); err != nil {
		h.fail(w, "message stats", err)
		return
	}
	if err := h.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(input_tokens), 0), COALESCE(SUM(output_tokens), 0), COALESCE(SUM(total_tokens), 0)
		FROM usage_records WHERE org_id = $1 AND created_at >= $2
	`, orgID, since).Scan(&resp.Tokens.Input, &resp.Tokens.Output, &resp.Tokens.Total); err != nil {
		h.fail(w, "token stats", err)
		return
	}
	httpjson.Write(w, http.StatusOK, resp)
}

func (h *Handler) breakdown(ctx context.Context, query string, args ...any) (Breakdown, error) {
	out := Breakdown{By: map[string]int{}}
	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return out, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			key   string
			count int
		)
		if err := rows.Scan(&key, &count); err != nil {
			return out, err
		}
		out.By[key] = count
		out.Total += count
	}
	return out, rows.Err()
}

func (h *Handler) fail(w http.ResponseWriter, action string, err error) {
	h.logger.Error("admin query failed", "action", action, "error", err)
	httpjson.Error(w, http.StatusInternalServerError, "failed to load "+action)
}

func parseSince(raw string, now time.Time) (time.Time, error) {
	if raw == "" {
		return now.Add(-defaultStatsWindow).UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return now.Add(-d).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("invalid since %q: use RFC 3339 or a duration like 168h", raw)
}
