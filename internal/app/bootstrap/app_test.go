package bootstrap

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"

	appconfig "github.com/wolfman30/agentdesk/internal/config"
	"github.com/wolfman30/agentdesk/pkg/logging"
)

func memoryConfig() *appconfig.Config {
	return &appconfig.Config{
		Env:                    "test",
		JWTSecret:              "test-secret",
		JWTTTL:                 time.Hour,
		RateLimitRPS:           1000,
		RateLimitBurst:         1000,
		UseMemoryQueue:         true,
		WorkerCount:            1,
		BANTQualifiedThreshold: 3,
		LLMMaxTokens:           256,
		HandoffSLA:             5 * time.Minute,
		HandoffSweepSchedule:   "@every 1m",
		SeedAdminEmail:         "owner@example.com",
		SeedAdminPassword:      "correct-horse",
		SeedOrgName:            "Acme",
	}
}

func newTestApp(t *testing.T) *App {
	t.Helper()
	app, err := Build(context.Background(), memoryConfig(), aws.Config{}, logging.Discard())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(app.Close)
	return app
}

func call(t *testing.T, h http.Handler, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	out := map[string]any{}
	if rr.Body.Len() > 0 {
		_ = json.Unmarshal(rr.Body.Bytes(), &out)
	}
	return rr.Code, out
}

func TestBuildMemoryModeDefaults(t *testing.T) {
	app := newTestApp(t)
	if app.Pool != nil || app.SQLDB != nil || app.Redis != nil {
		t.Fatalf("expected no external connections in memory mode")
	}
	if !app.UsesMemoryQueue() {
		t.Fatalf("expected memory queue")
	}
	if app.Processor == nil || app.Sweeper == nil {
		t.Fatalf("expected processor and sweeper to be wired")
	}
}

func TestBuildRequiresSecretInProduction(t *testing.T) {
	cfg := memoryConfig()
	cfg.Env = "production"
	cfg.JWTSecret = ""
	if _, err := Build(context.Background(), cfg, aws.Config{}, logging.Discard()); err == nil {
		t.Fatalf("expected error without JWT secret in production")
	}
}

func TestBuildGeneratesDevSecret(t *testing.T) {
	cfg := memoryConfig()
	cfg.JWTSecret = ""
	app, err := Build(context.Background(), cfg, aws.Config{}, logging.Discard())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer app.Close()
	if app.Auth.Tokens() == nil {
		t.Fatalf("expected token issuer")
	}
}

func TestChatHandoffFlow(t *testing.T) {
	app := newTestApp(t)
	h := app.Router()

	code, body := call(t, h, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "owner@example.com", "password": "correct-horse",
	})
	if code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d", code)
	}
	token, _ := body["token"].(string)
	if token == "" {
		t.Fatalf("login returned no token: %v", body)
	}

	code, body = call(t, h, http.MethodPost, "/api/agents", token, map[string]any{
		"name":         "Sales",
		"systemPrompt": "You qualify inbound leads.",
	})
	if code != http.StatusCreated {
		t.Fatalf("create agent: expected 201, got %d (%v)", code, body)
	}
	agentID, _ := body["id"].(string)

	code, body = call(t, h, http.MethodPost, "/api/chat", token, map[string]any{
		"agentId": agentID,
		"message": "Hi, we have a budget of $50k and need this by next quarter.",
	})
	if code != http.StatusOK {
		t.Fatalf("chat: expected 200, got %d (%v)", code, body)
	}
	convID, _ := body["conversationId"].(string)
	if convID == "" || body["mode"] != "ai" {
		t.Fatalf("unexpected chat response: %v", body)
	}

	code, body = call(t, h, http.MethodPost, "/api/chat", token, map[string]any{
		"agentId":        agentID,
		"conversationId": convID,
		"message":        "Can I talk to a human please?",
	})
	if code != http.StatusOK {
		t.Fatalf("chat handoff: expected 200, got %d (%v)", code, body)
	}
	if body["mode"] != "pending_human" {
		t.Fatalf("expected pending_human, got %v", body["mode"])
	}

	code, _ = call(t, h, http.MethodPost, "/api/conversations/"+convID+"/request-handoff", token, nil)
	if code != http.StatusConflict {
		t.Fatalf("second request: expected 409, got %d", code)
	}

	code, body = call(t, h, http.MethodPost, "/api/conversations/"+convID+"/accept-handoff", token, nil)
	if code != http.StatusOK || body["mode"] != "human" {
		t.Fatalf("accept: got %d %v", code, body)
	}

	code, body = call(t, h, http.MethodPost, "/api/conversations/"+convID+"/transfer-to-ai", token, nil)
	if code != http.StatusOK || body["mode"] != "ai" {
		t.Fatalf("transfer: got %d %v", code, body)
	}

	code, body = call(t, h, http.MethodGet, "/api/handoffs?status=resolved", token, nil)
	if code != http.StatusOK {
		t.Fatalf("list handoffs: got %d", code)
	}
	if count, _ := body["count"].(float64); count != 1 {
		t.Fatalf("expected one resolved handoff, got %v", body["count"])
	}
}

func TestBackgroundStartsAndStops(t *testing.T) {
	app := newTestApp(t)
	app.StartBackground(context.Background(), app.UsesMemoryQueue())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	app.Shutdown(ctx)
	if ctx.Err() != nil {
		t.Fatalf("shutdown did not finish before the deadline")
	}
}
