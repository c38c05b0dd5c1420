package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConverse struct {
	input *bedrockruntime.ConverseInput
	out   *bedrockruntime.ConverseOutput
	err   error
}

func (f *fakeConverse) Converse(_ context.Context, in *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	f.input = in
	return f.out, f.err
}

func textOutput(text string) *bedrockruntime.ConverseOutput {
	return &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{Value: brtypes.Message{
			Role:    brtypes.ConversationRoleAssistant,
			Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: text}},
		}},
		StopReason: brtypes.StopReasonEndTurn,
		Usage: &brtypes.TokenUsage{
			InputTokens:  aws.Int32(12),
			OutputTokens: aws.Int32(5),
			TotalTokens:  aws.Int32(17),
		},
	}
}

func TestBedrockCompleteBuildsConverseInput(t *testing.T) {
	api := &fakeConverse{out: textOutput("  Happy to help!  ")}
	client := NewBedrockClient(api, "default-model")

	resp, err := client.Complete(context.Background(), Request{
		System: []string{"You are a sales assistant.", " "},
		Messages: []Message{
			{Role: RoleSystem, Content: "Known budget: 5k"},
			{Role: RoleUser, Content: "hi"},
			{Role: RoleUser, Content: "are you there?"},
			{Role: RoleAssistant, Content: "Yes!"},
			{Role: RoleUser, Content: "great"},
		},
		MaxTokens:   200,
		Temperature: 0.2,
	})
	require.NoError(t, err)
	assert.Equal(t, "Happy to help!", resp.Text)
	assert.Equal(t, "default-model", resp.Model)
	assert.Equal(t, int32(17), resp.Usage.TotalTokens)
	assert.Equal(t, "end_turn", resp.StopReason)

	require.NotNil(t, api.input)
	assert.Equal(t, "default-model", aws.ToString(api.input.ModelId))
	assert.Len(t, api.input.System, 2)
	require.Len(t, api.input.Messages, 3)
	assert.Len(t, api.input.Messages[0].Content, 2)
	assert.Equal(t, int32(200), aws.ToInt32(api.input.InferenceConfig.MaxTokens))
}

func TestBedrockCompleteErrors(t *testing.T) {
	_, err := NewBedrockClient(&fakeConverse{}, "").Complete(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	assert.Error(t, err)

	_, err = NewBedrockClient(&fakeConverse{}, "m").Complete(context.Background(), Request{Messages: []Message{{Role: "tool", Content: "x"}}})
	assert.Error(t, err)

	boom := errors.New("throttled")
	_, err = NewBedrockClient(&fakeConverse{err: boom}, "m").Complete(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	assert.ErrorIs(t, err, boom)

	_, err = NewBedrockClient(&fakeConverse{out: textOutput("   ")}, "m").Complete(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}
