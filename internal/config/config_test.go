package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("BEDROCK_MODEL_ID", "")
	t.Setenv("HANDOFF_SLA", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "")
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.BedrockModelID != "" {
		t.Fatalf("expected default bedrock model empty, got %s", cfg.BedrockModelID)
	}
	if cfg.HandoffSLA != 5*time.Minute {
		t.Fatalf("expected default handoff sla, got %s", cfg.HandoffSLA)
	}
	if cfg.BANTQualifiedThreshold != 3 {
		t.Fatalf("expected default threshold 3, got %d", cfg.BANTQualifiedThreshold)
	}
	if len(cfg.CORSAllowedOrigins) != 1 || cfg.CORSAllowedOrigins[0] != "http://localhost:3000" {
		t.Fatalf("unexpected default origins %v", cfg.CORSAllowedOrigins)
	}
	if cfg.IsProduction() {
		t.Fatalf("development env should not be production")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("DATABASE_URL", "postgres://user@host/db")
	t.Setenv("HANDOFF_SLA", "90s")
	t.Setenv("LLM_PRIMARY", " Gemini ")
	t.Setenv("LLM_TEMPERATURE", "0.9")
	t.Setenv("USE_MEMORY_QUEUE", "false")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("BANT_QUALIFIED_THRESHOLD", "4")
	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected override port, got %s", cfg.Port)
	}
	if !cfg.IsProduction() {
		t.Fatalf("expected production env")
	}
	if cfg.DatabaseURL != "postgres://user@host/db" {
		t.Fatalf("expected db override, got %s", cfg.DatabaseURL)
	}
	if cfg.HandoffSLA != 90*time.Second {
		t.Fatalf("expected sla override, got %s", cfg.HandoffSLA)
	}
	if cfg.LLMPrimary != "gemini" {
		t.Fatalf("expected normalized llm primary, got %q", cfg.LLMPrimary)
	}
	if cfg.LLMTemperature != 0.9 {
		t.Fatalf("expected temperature override, got %v", cfg.LLMTemperature)
	}
	if cfg.UseMemoryQueue {
		t.Fatalf("expected memory queue disabled")
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected origins %v", cfg.CORSAllowedOrigins)
	}
	if cfg.BANTQualifiedThreshold != 4 {
		t.Fatalf("expected threshold override, got %d", cfg.BANTQualifiedThreshold)
	}
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("WORKER_COUNT", "lots")
	t.Setenv("JWT_TTL", "forever")
	t.Setenv("RATE_LIMIT_RPS", "fast")
	cfg := Load()
	if cfg.WorkerCount != 2 {
		t.Fatalf("expected default worker count, got %d", cfg.WorkerCount)
	}
	if cfg.JWTTTL != 12*time.Hour {
		t.Fatalf("expected default jwt ttl, got %s", cfg.JWTTTL)
	}
	if cfg.RateLimitRPS != 10 {
		t.Fatalf("expected default rps, got %v", cfg.RateLimitRPS)
	}
}
