package bant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/wolfman30/agentdesk/internal/llm"
	"github.com/wolfman30/agentdesk/pkg/logging"
)

// ErrUnparseable is returned when the model reply holds no usable JSON object.
var ErrUnparseable = errors.New("bant: unparseable extraction response")

const (
	defaultLLMConfidence = 0.7
	maxTranscriptTurns   = 30
	extractionMaxTokens  = 300
)

const extractionPrompt = `You extract sales qualification data (BANT) from a chat between a visitor and an assistant.
Return a single JSON object and nothing else, with this shape:
{"budget": string|null, "authority": string|null, "need": string|null, "timeline": string|null,
 "confidence": {"budget": number, "authority": number, "need": number, "timeline": number}}
Rules:
- Use only what the VISITOR said. Never infer from the assistant's questions.
- Keep each value short (under 20 words), in the visitor's terms.
- Use null when a field was not stated.
- confidence is between 0 and 1 for each non-null field.`

// Extractor asks a language model for BANT values over a whole transcript.
type Extractor struct {
	client llm.Client
	model  string
	logger *logging.Logger
}

func NewExtractor(client llm.Client, model string, logger *logging.Logger) *Extractor {
	if client == nil {
		panic("bant: llm client required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Extractor{client: client, model: model, logger: logger}
}

// Extract sends the transcript and parses the model's JSON reply into signals.
func (e *Extractor) Extract(ctx context.Context, transcript []llm.Message, known Memory) ([]Signal, llm.Usage, error) {
	body := formatTranscript(transcript)
	if body == "" {
		return nil, llm.Usage{}, nil
	}

	var prompt strings.Builder
	if !known.IsEmpty() {
		prompt.WriteString("Currently recorded values (may be refined):\n")
		for _, d := range Dimensions {
			if v := known.Get(d); v != nil {
				fmt.Fprintf(&prompt, "%s: %s\n", d, *v)
			}
		}
		prompt.WriteString("\n")
	}
	prompt.WriteString("Transcript:\n")
	prompt.WriteString(body)

	resp, err := e.client.Complete(ctx, llm.Request{
		Model:       e.model,
		System:      []string{extractionPrompt},
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: prompt.String()}},
		MaxTokens:   extractionMaxTokens,
		Temperature: 0,
	})
	if err != nil {
		return nil, llm.Usage{}, fmt.Errorf("bant: extraction call: %w", err)
	}

	signals, err := ParseExtraction(resp.Text)
	if err != nil {
		e.logger.Warn("bant extraction reply was not json", "error", err, "reply_len", len(resp.Text))
		return nil, resp.Usage, err
	}
	e.logger.Info("bant extraction complete", "signals", len(signals), "model", resp.Model)
	return signals, resp.Usage, nil
}

type extractionReply struct {
	Budget     json.RawMessage `json:"budget"`
	Authority  json.RawMessage `json:"authority"`
	Need       json.RawMessage `json:"need"`
	Timeline   json.RawMessage `json:"timeline"`
	Confidence json.RawMessage `json:"confidence"`
}

// confidences reads the per-dimension confidence object. Anything that is not
// an object of numbers is ignored so the default applies.
func confidences(raw json.RawMessage) map[string]float64 {
	var fields map[string]json.RawMessage
	if len(raw) == 0 || json.Unmarshal(raw, &fields) != nil {
		return nil
	}
	out := make(map[string]float64, len(fields))
	for k, v := range fields {
		var c float64
		if json.Unmarshal(v, &c) == nil {
			out[strings.ToLower(k)] = c
		}
	}
	return out
}

// ParseExtraction reads the first JSON object in text. Code fences and prose
// around the object are tolerated.
func ParseExtraction(text string) ([]Signal, error) {
	raw := firstJSONObject(text)
	if raw == "" {
		return nil, ErrUnparseable
	}
	var reply extractionReply
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}

	fields := map[Dimension]json.RawMessage{
		Budget:    reply.Budget,
		Authority: reply.Authority,
		Need:      reply.Need,
		Timeline:  reply.Timeline,
	}
	scores := confidences(reply.Confidence)
	var signals []Signal
	for _, d := range Dimensions {
		value, ok := rawString(fields[d])
		if !ok {
			continue
		}
		confidence := defaultLLMConfidence
		if c, ok := scores[string(d)]; ok {
			confidence = clamp01(c)
		}
		signals = append(signals, Signal{
			Dimension:  d,
			Value:      normalizeValue(value),
			Confidence: confidence,
			Source:     SourceLLM,
		})
	}
	return signals, nil
}

// rawString accepts JSON strings and numbers; null-like values are rejected.
func rawString(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return "", false
		}
		s = n.String()
	}
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "null", "none", "unknown", "n/a", "not mentioned", "not stated":
		return "", false
	}
	return s, true
}

// firstJSONObject returns the first balanced {...} in text, honoring strings.
func firstJSONObject(text string) string {
	start := strings.Index(text, "{")
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

func formatTranscript(messages []llm.Message) string {
	if len(messages) > maxTranscriptTurns {
		messages = messages[len(messages)-maxTranscriptTurns:]
	}
	var b strings.Builder
	for _, m := range messages {
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		speaker := "Assistant"
		switch m.Role {
		case llm.RoleUser:
			speaker = "Visitor"
		case llm.RoleSystem:
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", speaker, content)
	}
	return b.String()
}
