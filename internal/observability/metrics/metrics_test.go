package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Collector) float64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 1)
	c.Collect(ch)
	var m dto.Metric
	if err := (<-ch).Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestChatMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewChatMetrics(reg)
	m.ObserveMessage("user", "ai")
	m.ObserveLLM("chat", 0.5, nil)
	m.ObserveLLM("chat", 1.5, errors.New("boom"))
	m.ObserveTokens("chat", 10, 0)
	m.ObserveBANTSignal("budget", "heuristic")
	m.ObserveBANTSignal("budget", "heuristic")
	m.ObserveHandoff("requested")
	m.ObserveQualifiedLead()

	if got := counterValue(t, m.bantSignals.WithLabelValues("budget", "heuristic")); got != 2 {
		t.Fatalf("expected 2 budget signals, got %v", got)
	}
	if got := counterValue(t, m.llmTokens.WithLabelValues("chat", "input")); got != 10 {
		t.Fatalf("expected 10 input tokens, got %v", got)
	}
	if got := counterValue(t, m.qualifiedLeads); got != 1 {
		t.Fatalf("expected 1 qualified lead, got %v", got)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) != 6 {
		t.Fatalf("expected 6 metric families, got %d", len(families))
	}
}

func TestChatMetricsNilSafe(t *testing.T) {
	var m *ChatMetrics
	m.ObserveMessage("user", "ai")
	m.ObserveLLM("chat", 0.1, nil)
	m.ObserveTokens("chat", 1, 1)
	m.ObserveBANTSignal("need", "llm")
	m.ObserveHandoff("accepted")
	m.ObserveQualifiedLead()
}
