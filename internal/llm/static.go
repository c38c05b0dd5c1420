package llm

import (
	"context"
	"strings"
)

// StaticModel is reported by StaticClient responses.
const StaticModel = "static"

// StaticClient answers without calling a provider. It backs local development
// and the smoke suite when no model credentials are configured.
type StaticClient struct {
	respond func(Request) string
}

// NewStaticClient returns a client with canned replies. Prompts that ask for
// JSON receive an empty object.
func NewStaticClient() *StaticClient {
	return &StaticClient{respond: defaultStaticReply}
}

// NewScriptedClient replies with the result of fn. Used by tests.
func NewScriptedClient(fn func(Request) string) *StaticClient {
	return &StaticClient{respond: fn}
}

func (c *StaticClient) Complete(ctx context.Context, req Request) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	text := c.respond(req)
	if strings.TrimSpace(text) == "" {
		return Response{}, ErrEmptyResponse
	}

	var prompt int
	for _, s := range req.System {
		prompt += estimateTokens(s)
	}
	for _, m := range req.Messages {
		prompt += estimateTokens(m.Content)
	}
	completion := estimateTokens(text)
	return Response{
		Text:       text,
		Model:      StaticModel,
		StopReason: "end_turn",
		Usage: Usage{
			InputTokens:  int32(prompt),
			OutputTokens: int32(completion),
			TotalTokens:  int32(prompt + completion),
		},
	}, nil
}

func defaultStaticReply(req Request) string {
	for _, s := range req.System {
		if strings.Contains(s, "JSON") {
			return "{}"
		}
	}
	return "Thanks for reaching out! Could you tell me a bit more about what you're looking for?"
}

// estimateTokens approximates 4 characters per token.
func estimateTokens(s string) int {
	n := len(strings.TrimSpace(s))
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}
