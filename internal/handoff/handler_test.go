package handoff

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/agentdesk/internal/conversation"
	"github.com/wolfman30/agentdesk/internal/tenancy"
	"github.com/wolfman30/agentdesk/pkg/logging"
)

func newTestRouter(t *testing.T) (http.Handler, *harness) {
	t.Helper()
	h := newHarness(t)
	handler := NewHandler(h.svc, logging.Discard())

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := tenancy.WithPrincipal(req.Context(), tenancy.Principal{UserID: "op-1", OrgID: testOrg, Role: "agent"})
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	r.Post("/api/conversations/{id}/request-handoff", handler.RequestHandoff)
	r.Post("/api/conversations/{id}/accept-handoff", handler.AcceptHandoff)
	r.Post("/api/conversations/{id}/transfer-to-ai", handler.TransferToAI)
	r.Get("/api/handoffs", handler.List)
	return r, h
}

func post(router http.Handler, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(http.MethodPost, path, nil)
	} else {
		req = httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandoffEndpointsLifecycle(t *testing.T) {
	router, h := newTestRouter(t)
	conv := h.newConversation(t)
	base := "/api/conversations/" + conv.ID

	w := post(router, base+"/request-handoff", `{"reason":"wants a demo"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("request: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp transitionResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Mode != conversation.ModePendingHuman || resp.Handoff == nil || resp.Handoff.Reason != "wants a demo" {
		t.Fatalf("unexpected response %#v", resp)
	}

	if w := post(router, base+"/request-handoff", ""); w.Code != http.StatusConflict {
		t.Fatalf("repeat request: expected 409, got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/handoffs?status=requested", nil)
	lw := httptest.NewRecorder()
	router.ServeHTTP(lw, req)
	var list struct {
		Handoffs []Handoff `json:"handoffs"`
		Count    int       `json:"count"`
	}
	if err := json.NewDecoder(lw.Body).Decode(&list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if list.Count != 1 {
		t.Fatalf("expected 1 requested handoff, got %d", list.Count)
	}

	if w := post(router, base+"/accept-handoff", ""); w.Code != http.StatusOK {
		t.Fatalf("accept: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if w := post(router, base+"/accept-handoff", ""); w.Code != http.StatusConflict {
		t.Fatalf("repeat accept: expected 409, got %d", w.Code)
	}
	if w := post(router, base+"/transfer-to-ai", ""); w.Code != http.StatusOK {
		t.Fatalf("transfer: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if w := post(router, base+"/transfer-to-ai", ""); w.Code != http.StatusConflict {
		t.Fatalf("repeat transfer: expected 409, got %d", w.Code)
	}
}

func TestHandoffEndpointsErrors(t *testing.T) {
	router, _ := newTestRouter(t)

	if w := post(router, "/api/conversations/missing/request-handoff", ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if w := post(router, "/api/conversations/missing/request-handoff", "{"); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/handoffs?status=bogus", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad status, got %d", w.Code)
	}
}
