package leads

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/agentdesk/internal/bant"
	"github.com/wolfman30/agentdesk/internal/tenancy"
	"github.com/wolfman30/agentdesk/pkg/logging"
)

func newTestHandler(t *testing.T) (*Handler, *Service) {
	t.Helper()
	svc := NewService(NewInMemoryRepository(), 3, logging.Discard())
	return NewHandler(svc, logging.Discard()), svc
}

func TestListLeadsFiltersByConversation(t *testing.T) {
	handler, svc := newTestHandler(t)
	ctx := context.Background()
	for _, conv := range []string{"c-1", "c-2"} {
		if _, _, err := svc.SyncFromConversation(ctx, SyncInput{OrgID: "org-1", ConversationID: conv, Memory: bant.Memory{Budget: strPtr("$5k")}}); err != nil {
			t.Fatalf("sync: %v", err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/leads?conversationId=c-2", nil)
	req = req.WithContext(tenancy.WithOrgID(req.Context(), "org-1"))
	w := httptest.NewRecorder()
	handler.List(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp ListLeadsResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Leads) != 1 || resp.Leads[0].ConversationID != "c-2" {
		t.Fatalf("unexpected leads: %#v", resp.Leads)
	}
	if resp.Leads[0].Budget == nil || *resp.Leads[0].Budget != "$5k" {
		t.Errorf("expected budget to round trip, got %v", resp.Leads[0].Budget)
	}
}

func TestListLeadsBadStatus(t *testing.T) {
	handler, _ := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/api/leads?status=nope", nil)
	req = req.WithContext(tenancy.WithOrgID(req.Context(), "org-1"))
	w := httptest.NewRecorder()
	handler.List(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestGetLeadNotFound(t *testing.T) {
	handler, _ := newTestHandler(t)
	r := chi.NewRouter()
	r.Get("/api/leads/{id}", handler.Get)

	req := httptest.NewRequest(http.MethodGet, "/api/leads/missing", nil)
	req = req.WithContext(tenancy.WithOrgID(req.Context(), "org-1"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestListLeadsRequiresOrg(t *testing.T) {
	handler, _ := newTestHandler(t)
	w := httptest.NewRecorder()
	handler.List(w, httptest.NewRequest(http.MethodGet, "/api/leads", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}
