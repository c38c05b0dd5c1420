package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/agentdesk/pkg/logging"
)

type stubClient struct {
	resp  Response
	err   error
	calls int
}

func (s *stubClient) Complete(context.Context, Request) (Response, error) {
	s.calls++
	return s.resp, s.err
}

func TestFallbackClient(t *testing.T) {
	primary := &stubClient{err: errors.New("primary down")}
	fallback := &stubClient{resp: Response{Text: "from fallback"}}
	client := NewFallbackClient(primary, fallback, logging.Discard())

	resp, err := client.Complete(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "from fallback", resp.Text)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, fallback.calls)

	primary.err = nil
	primary.resp = Response{Text: "primary"}
	resp, err = client.Complete(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "primary", resp.Text)
	assert.Equal(t, 1, fallback.calls)
}

func TestFallbackClientWithoutFallback(t *testing.T) {
	boom := errors.New("boom")
	client := NewFallbackClient(&stubClient{err: boom}, nil, logging.Discard())
	_, err := client.Complete(context.Background(), Request{})
	assert.ErrorIs(t, err, boom)
}

func TestStaticClient(t *testing.T) {
	client := NewStaticClient()
	resp, err := client.Complete(context.Background(), Request{
		System:   []string{"Reply in JSON only."},
		Messages: []Message{{Role: RoleUser, Content: "budget is 5k"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "{}", resp.Text)
	assert.Equal(t, StaticModel, resp.Model)
	assert.Positive(t, resp.Usage.TotalTokens)

	resp, err = client.Complete(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "hello"}}})
	require.NoError(t, err)
	assert.Contains(t, resp.Text, "Thanks")

	scripted := NewScriptedClient(func(Request) string { return "" })
	_, err = scripted.Complete(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestGeminiContents(t *testing.T) {
	system, history, last, err := geminiContents(Request{
		System: []string{"base"},
		Messages: []Message{
			{Role: RoleSystem, Content: "extra"},
			{Role: RoleUser, Content: "hi"},
			{Role: RoleAssistant, Content: "hello"},
			{Role: RoleUser, Content: "budget 10k"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "base\n\nextra", system)
	require.Len(t, history, 2)
	assert.Equal(t, "model", history[1].Role)
	assert.Equal(t, "budget 10k", last)

	_, _, _, err = geminiContents(Request{Messages: []Message{{Role: RoleSystem, Content: "only"}}})
	assert.Error(t, err)
}

func TestUsageAdd(t *testing.T) {
	u := Usage{InputTokens: 1, OutputTokens: 2, TotalTokens: 3}
	u.Add(Usage{InputTokens: 10, OutputTokens: 20, TotalTokens: 30})
	assert.Equal(t, Usage{InputTokens: 11, OutputTokens: 22, TotalTokens: 33}, u)
}
