package notify

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/agentdesk/internal/tenancy"
	"github.com/wolfman30/agentdesk/pkg/logging"
)

func withTestPrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := tenancy.WithPrincipal(r.Context(), tenancy.Principal{UserID: "u-1", OrgID: "org-1", Role: "agent"})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func newTestRouter(t *testing.T) (http.Handler, *Service, *Hub) {
	t.Helper()
	hub := NewHub()
	svc := NewService(NewMemoryStore(), hub, nil, nil, "", logging.Discard())
	h := NewHandler(svc, hub, []string{"http://localhost:3000"}, logging.Discard())
	r := chi.NewRouter()
	r.Use(withTestPrincipal)
	r.Get("/api/notifications", h.List)
	r.Post("/api/notifications/{id}/read", h.MarkRead)
	r.Post("/api/notifications/read-all", h.MarkAllRead)
	r.Get("/api/notifications/preferences", h.GetPreferences)
	r.Put("/api/notifications/preferences", h.UpdatePreferences)
	r.Post("/api/notifications/test", h.SendTest)
	r.Get("/api/notifications/stream", h.Stream)
	r.Get("/api/notifications/ws", h.WebSocket)
	return r, svc, hub
}

func TestPreferencesPartialUpdate(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/api/notifications/preferences", strings.NewReader(`{"messageAlerts":true,"email":false}`)))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/notifications/preferences", nil))
	var prefs Preferences
	require.NoError(t, json.NewDecoder(w.Body).Decode(&prefs))
	assert.True(t, prefs.MessageAlerts)
	assert.False(t, prefs.Email)
	assert.True(t, prefs.InApp)
	assert.True(t, prefs.HandoffAlerts)
}

func TestTestNotificationListAndRead(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/notifications/test", nil))
	require.Equal(t, http.StatusCreated, w.Code)
	var created Notification
	require.NoError(t, json.NewDecoder(w.Body).Decode(&created))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/notifications?unread=true", nil))
	var list listResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&list))
	assert.Equal(t, 1, list.Unread)
	require.Len(t, list.Notifications, 1)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/notifications/"+created.ID+"/read", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/notifications/nope/read", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/notifications/read-all", nil))
	assert.JSONEq(t, `{"updated":0}`, w.Body.String())
}

func TestStreamSendsReadyAndNotifications(t *testing.T) {
	router, svc, hub := newTestRouter(t)
	srv := httptest.NewServer(router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/notifications/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	readEvent := func() (string, string) {
		var event, data string
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			line = strings.TrimRight(line, "\n")
			switch {
			case line == "":
				return event, data
			case strings.HasPrefix(line, "event: "):
				event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				data = strings.TrimPrefix(line, "data: ")
			}
		}
	}

	event, _ := readEvent()
	require.Equal(t, "ready", event)
	require.Eventually(t, func() bool { return hub.Subscribers("u-1") == 1 }, time.Second, 10*time.Millisecond)

	sent, err := svc.SendTest(context.Background(), "org-1", "u-1")
	require.NoError(t, err)

	event, data := readEvent()
	assert.Equal(t, "notification", event)
	var got Notification
	require.NoError(t, json.Unmarshal([]byte(data), &got))
	assert.Equal(t, sent.ID, got.ID)
}

func TestWebSocketPushesNotifications(t *testing.T) {
	router, svc, hub := newTestRouter(t)
	srv := httptest.NewServer(router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/notifications/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": []string{"http://localhost:3000"}})
	require.NoError(t, err)
	defer conn.Close()

	var frame wsFrame
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, "ready", frame.Type)
	require.Eventually(t, func() bool { return hub.Subscribers("u-1") == 1 }, time.Second, 10*time.Millisecond)

	_, err = svc.SendTest(context.Background(), "org-1", "u-1")
	require.NoError(t, err)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, "notification", frame.Type)
	require.NotNil(t, frame.Notification)
	assert.Equal(t, TypeTest, frame.Notification.Type)
}

func TestWebSocketRejectsForeignOrigin(t *testing.T) {
	router, _, _ := newTestRouter(t)
	srv := httptest.NewServer(router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/notifications/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": []string{"https://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
