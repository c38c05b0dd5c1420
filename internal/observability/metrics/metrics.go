package metrics

import "github.com/prometheus/client_golang/prometheus"

// ChatMetrics exposes counters/histograms for chat, qualification and handoff flows.
type ChatMetrics struct {
	messagesTotal  *prometheus.CounterVec
	llmLatency     *prometheus.HistogramVec
	llmTokens      *prometheus.CounterVec
	bantSignals    *prometheus.CounterVec
	handoffTotal   *prometheus.CounterVec
	qualifiedLeads prometheus.Counter
}

func NewChatMetrics(reg prometheus.Registerer) *ChatMetrics {
	m := &ChatMetrics{
		messagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentdesk",
			Subsystem: "chat",
			Name:      "messages_total",
			Help:      "Chat messages by role and conversation mode",
		}, []string{"role", "mode"}),
		llmLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "agentdesk",
			Subsystem: "llm",
			Name:      "latency_seconds",
			Help:      "Latency of LLM completions",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 16, 32},
		}, []string{"purpose", "status"}),
		llmTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentdesk",
			Subsystem: "llm",
			Name:      "tokens_total",
			Help:      "LLM tokens by purpose and direction",
		}, []string{"purpose", "direction"}),
		bantSignals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentdesk",
			Subsystem: "bant",
			Name:      "signals_total",
			Help:      "BANT signals merged into conversation memory",
		}, []string{"dimension", "source"}),
		handoffTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentdesk",
			Subsystem: "handoff",
			Name:      "transitions_total",
			Help:      "Handoff state transitions",
		}, []string{"transition"}),
		qualifiedLeads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "agentdesk",
			Subsystem: "leads",
			Name:      "qualified_total",
			Help:      "Leads that reached qualified status",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.messagesTotal, m.llmLatency, m.llmTokens, m.bantSignals, m.handoffTotal, m.qualifiedLeads)
	return m
}

func (m *ChatMetrics) ObserveMessage(role, mode string) {
	if m == nil {
		return
	}
	m.messagesTotal.WithLabelValues(role, mode).Inc()
}

func (m *ChatMetrics) ObserveLLM(purpose string, seconds float64, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.llmLatency.WithLabelValues(purpose, status).Observe(seconds)
}

func (m *ChatMetrics) ObserveTokens(purpose string, input, output int32) {
	if m == nil {
		return
	}
	if input > 0 {
		m.llmTokens.WithLabelValues(purpose, "input").Add(float64(input))
	}
	if output > 0 {
		m.llmTokens.WithLabelValues(purpose, "output").Add(float64(output))
	}
}

func (m *ChatMetrics) ObserveBANTSignal(dimension, source string) {
	if m == nil {
		return
	}
	m.bantSignals.WithLabelValues(dimension, source).Inc()
}

func (m *ChatMetrics) ObserveHandoff(transition string) {
	if m == nil {
		return
	}
	m.handoffTotal.WithLabelValues(transition).Inc()
}

func (m *ChatMetrics) ObserveQualifiedLead() {
	if m == nil {
		return
	}
	m.qualifiedLeads.Inc()
}
