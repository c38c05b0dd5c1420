package agents

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/agentdesk/internal/tenancy"
	"github.com/wolfman30/agentdesk/pkg/logging"
)

func withPrincipal(r *http.Request) *http.Request {
	return r.WithContext(tenancy.WithPrincipal(r.Context(), tenancy.Principal{UserID: "u-1", OrgID: "org-1", Role: "admin"}))
}

func newRouter(store KnowledgeStore) http.Handler {
	h := NewHandler(NewService(NewMemoryRepository(), store, "default-model", logging.Discard()), logging.Discard())
	r := chi.NewRouter()
	r.Get("/api/agents", h.List)
	r.Post("/api/agents", h.Create)
	r.Post("/api/agents/create", h.CreateMultipart)
	r.Get("/api/agents/{id}", h.Get)
	return r
}

func TestCreateAgentJSONAndGet(t *testing.T) {
	router := newRouter(nil)

	req := withPrincipal(httptest.NewRequest(http.MethodPost, "/api/agents", strings.NewReader(`{"name":"Sales","temperature":0.2}`)))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var created Agent
	if err := json.NewDecoder(w.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.Temperature != 0.2 {
		t.Errorf("expected temperature 0.2, got %v", created.Temperature)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, withPrincipal(httptest.NewRequest(http.MethodGet, "/api/agents/"+created.ID, nil)))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, withPrincipal(httptest.NewRequest(http.MethodGet, "/api/agents", nil)))
	var list listResponse
	if err := json.NewDecoder(w.Body).Decode(&list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Agents) != 1 {
		t.Errorf("expected 1 agent, got %d", len(list.Agents))
	}
}

func TestCreateAgentJSONMissingName(t *testing.T) {
	router := newRouter(nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, withPrincipal(httptest.NewRequest(http.MethodPost, "/api/agents", strings.NewReader(`{"name":" "}`))))
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestCreateAgentMultipart(t *testing.T) {
	store := NewMemoryKnowledgeStore()
	router := newRouter(store)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	_ = mw.WriteField("name", "Docs Bot")
	_ = mw.WriteField("handoffEnabled", "false")
	part, err := mw.CreateFormFile("files", "notes.txt")
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	_, _ = part.Write([]byte("Office hours are 9 to 5."))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/agents/create", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, withPrincipal(req))
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var agent Agent
	if err := json.NewDecoder(w.Body).Decode(&agent); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if agent.HandoffEnabled {
		t.Errorf("expected handoff disabled")
	}
	if len(agent.KnowledgeFiles) != 1 || agent.KnowledgeFiles[0].Excerpt != "Office hours are 9 to 5." {
		t.Fatalf("unexpected knowledge files: %#v", agent.KnowledgeFiles)
	}
	if _, ok := store.Object(agent.KnowledgeFiles[0].Key); !ok {
		t.Errorf("expected file stored at %s", agent.KnowledgeFiles[0].Key)
	}
}

func TestCreateAgentMultipartRejectsBadTemperature(t *testing.T) {
	router := newRouter(nil)
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	_ = mw.WriteField("name", "x")
	_ = mw.WriteField("temperature", "hot")
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/agents/create", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, withPrincipal(req))
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestAgentsRequirePrincipal(t *testing.T) {
	router := newRouter(nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/agents", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}
