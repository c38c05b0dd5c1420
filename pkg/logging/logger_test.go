package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" DEBUG ": slog.LevelDebug,
		"warn":    slog.LevelWarn,
		"WARNING": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestNewWriterFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriter(&buf, "warn", "json")
	logger.Info("dropped")
	logger.Warn("kept", "org_id", "org-1")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %d: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("expected json output: %v", err)
	}
	if entry["msg"] != "kept" || entry["org_id"] != "org-1" || entry["level"] != "WARN" {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func TestTextFormatAndWith(t *testing.T) {
	var buf bytes.Buffer
	NewWriter(&buf, "info", " Text ").With("component", "chat").Info("hello")
	if !strings.Contains(buf.String(), "component=chat") || !strings.Contains(buf.String(), "msg=hello") {
		t.Fatalf("expected text output, got %q", buf.String())
	}
}

func TestDiscardDropsErrors(t *testing.T) {
	if Discard().Enabled(context.Background(), slog.LevelError) {
		t.Fatal("discard logger should not enable any level")
	}
}

func TestContextLogger(t *testing.T) {
	logger := Discard()
	if FromContext(WithContext(context.Background(), logger)) != logger {
		t.Fatal("expected stored logger")
	}
	fallback := FromContext(context.Background())
	if fallback == nil || fallback.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("expected info-level default logger")
	}
}
