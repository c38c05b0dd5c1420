package notify

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/wolfman30/agentdesk/internal/http/httpjson"
	"github.com/wolfman30/agentdesk/internal/tenancy"
	"github.com/wolfman30/agentdesk/pkg/logging"
)

const (
	defaultHeartbeat = 25 * time.Second
	wsWriteTimeout   = 10 * time.Second
)

// Handler serves the notification endpoints, including the SSE and websocket
// streams.
type Handler struct {
	service   *Service
	hub       *Hub
	logger    *logging.Logger
	heartbeat time.Duration
	upgrader  websocket.Upgrader
}

func NewHandler(service *Service, hub *Hub, allowedOrigins []string, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	h := &Handler{
		service:   service,
		hub:       hub,
		logger:    logger,
		heartbeat: defaultHeartbeat,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[strings.TrimRight(strings.TrimSpace(o), "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if _, ok := set["*"]; ok {
			return true
		}
		_, ok := set[strings.TrimRight(origin, "/")]
		return ok
	}
}

type listResponse struct {
	Notifications []Notification `json:"notifications"`
	Unread        int            `json:"unread"`
}

// List handles GET /api/notifications.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	p, ok := tenancy.PrincipalFromContext(r.Context())
	if !ok {
		httpjson.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	opts := ListOptions{}
	if v := r.URL.Query().Get("unread"); v != "" {
		opts.UnreadOnly, _ = strconv.ParseBool(v)
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		opts.Limit, _ = strconv.Atoi(v)
	}
	items, unread, err := h.service.List(r.Context(), p.OrgID, p.UserID, opts)
	if err != nil {
		h.logger.Error("list notifications failed", "error", err, "user_id", p.UserID)
		httpjson.Error(w, http.StatusInternalServerError, "failed to list notifications")
		return
	}
	httpjson.Write(w, http.StatusOK, listResponse{Notifications: items, Unread: unread})
}

// MarkRead handles POST /api/notifications/{id}/read.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	p, ok := tenancy.PrincipalFromContext(r.Context())
	if !ok {
		httpjson.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	err := h.service.MarkRead(r.Context(), p.OrgID, p.UserID, chi.URLParam(r, "id"))
	if errors.Is(err, ErrNotFound) {
		httpjson.Error(w, http.StatusNotFound, "notification not found")
		return
	}
	if err != nil {
		h.logger.Error("mark read failed", "error", err)
		httpjson.Error(w, http.StatusInternalServerError, "failed to update notification")
		return
	}
	httpjson.Write(w, http.StatusOK, map[string]bool{"ok": true})
}

// MarkAllRead handles POST /api/notifications/read-all.
func (h *Handler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	p, ok := tenancy.PrincipalFromContext(r.Context())
	if !ok {
		httpjson.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	n, err := h.service.MarkAllRead(r.Context(), p.OrgID, p.UserID)
	if err != nil {
		h.logger.Error("mark all read failed", "error", err)
		httpjson.Error(w, http.StatusInternalServerError, "failed to update notifications")
		return
	}
	httpjson.Write(w, http.StatusOK, map[string]int{"updated": n})
}

// GetPreferences handles GET /api/notifications/preferences.
func (h *Handler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	p, ok := tenancy.PrincipalFromContext(r.Context())
	if !ok {
		httpjson.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	prefs, err := h.service.Preferences(r.Context(), p.UserID)
	if err != nil {
		h.logger.Error("load preferences failed", "error", err)
		httpjson.Error(w, http.StatusInternalServerError, "failed to load preferences")
		return
	}
	httpjson.Write(w, http.StatusOK, prefs)
}

type preferencesUpdate struct {
	InApp         *bool `json:"inApp"`
	Email         *bool `json:"email"`
	HandoffAlerts *bool `json:"handoffAlerts"`
	LeadAlerts    *bool `json:"leadAlerts"`
	MessageAlerts *bool `json:"messageAlerts"`
}

func (u preferencesUpdate) apply(p Preferences) Preferences {
	set := func(dst *bool, src *bool) {
		if src != nil {
			*dst = *src
		}
	}
	set(&p.InApp, u.InApp)
	set(&p.Email, u.Email)
	set(&p.HandoffAlerts, u.HandoffAlerts)
	set(&p.LeadAlerts, u.LeadAlerts)
	set(&p.MessageAlerts, u.MessageAlerts)
	return p
}

// UpdatePreferences handles PUT /api/notifications/preferences. Omitted
// fields keep their current value.
func (h *Handler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	p, ok := tenancy.PrincipalFromContext(r.Context())
	if !ok {
		httpjson.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var upd preferencesUpdate
	if err := httpjson.Decode(r, &upd); err != nil {
		httpjson.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	current, err := h.service.Preferences(r.Context(), p.UserID)
	if err != nil {
		h.logger.Error("load preferences failed", "error", err)
		httpjson.Error(w, http.StatusInternalServerError, "failed to load preferences")
		return
	}
	saved, err := h.service.UpdatePreferences(r.Context(), upd.apply(current))
	if err != nil {
		h.logger.Error("save preferences failed", "error", err)
		httpjson.Error(w, http.StatusInternalServerError, "failed to save preferences")
		return
	}
	httpjson.Write(w, http.StatusOK, saved)
}

// SendTest handles POST /api/notifications/test.
func (h *Handler) SendTest(w http.ResponseWriter, r *http.Request) {
	p, ok := tenancy.PrincipalFromContext(r.Context())
	if !ok {
		httpjson.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	n, err := h.service.SendTest(r.Context(), p.OrgID, p.UserID)
	if err != nil {
		h.logger.Error("test notification failed", "error", err)
		httpjson.Error(w, http.StatusInternalServerError, "failed to send test notification")
		return
	}
	httpjson.Write(w, http.StatusCreated, n)
}

// Stream handles GET /api/notifications/stream as server-sent events.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	p, ok := tenancy.PrincipalFromContext(r.Context())
	if !ok {
		httpjson.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		httpjson.Error(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ch, unsubscribe := h.hub.Subscribe(p.UserID)
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if err := writeSSE(w, "ready", "", map[string]string{"userId": p.UserID}); err != nil {
		return
	}
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case n, ok := <-ch:
			if !ok {
				return
			}
			if err := writeSSE(w, "notification", n.ID, n); err != nil {
				h.logger.Debug("sse write failed", "error", err, "user_id", p.UserID)
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, event, id string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	var b strings.Builder
	b.WriteString("event: " + event + "\n")
	if id != "" {
		b.WriteString("id: " + id + "\n")
	}
	b.WriteString("data: ")
	b.Write(data)
	b.WriteString("\n\n")
	_, err = fmt.Fprint(w, b.String())
	return err
}

type wsFrame struct {
	Type         string        `json:"type"`
	Notification *Notification `json:"notification,omitempty"`
}

// WebSocket handles GET /api/notifications/ws.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	p, ok := tenancy.PrincipalFromContext(r.Context())
	if !ok {
		httpjson.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ch, unsubscribe := h.hub.Subscribe(p.UserID)
	defer unsubscribe()

	// Reader loop only detects the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	write := func(frame wsFrame) error {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		return conn.WriteJSON(frame)
	}
	if err := write(wsFrame{Type: "ready"}); err != nil {
		return
	}

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case n, ok := <-ch:
			if !ok {
				return
			}
			if err := write(wsFrame{Type: "notification", Notification: &n}); err != nil {
				return
			}
		}
	}
}
