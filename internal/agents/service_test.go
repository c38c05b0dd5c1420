package agents

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/agentdesk/pkg/logging"
)

type mockS3Client struct {
	bucket string
	keys   []string
	bodies map[string]string
}

func (m *mockS3Client) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, _ := io.ReadAll(in.Body)
	if m.bodies == nil {
		m.bodies = map[string]string{}
	}
	m.bucket = *in.Bucket
	m.keys = append(m.keys, *in.Key)
	m.bodies[*in.Key] = string(body)
	return &s3.PutObjectOutput{}, nil
}

func TestCreateAppliesDefaults(t *testing.T) {
	svc := NewService(NewMemoryRepository(), nil, "anthropic.claude-3-haiku", logging.Discard())
	agent, err := svc.Create(context.Background(), "org-1", "u-1", CreateInput{Name: "  Sales Bot "}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Sales Bot", agent.Name)
	assert.Equal(t, "anthropic.claude-3-haiku", agent.Model)
	assert.Equal(t, defaultTemperature, agent.Temperature)
	assert.True(t, agent.QualificationEnabled)
	assert.True(t, agent.HandoffEnabled)
	assert.Equal(t, "u-1", agent.CreatedBy)
}

func TestCreateValidation(t *testing.T) {
	svc := NewService(NewMemoryRepository(), nil, "m", logging.Discard())
	_, err := svc.Create(context.Background(), "org-1", "u-1", CreateInput{}, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	hot := float32(2.5)
	_, err = svc.Create(context.Background(), "org-1", "u-1", CreateInput{Name: "x", Temperature: &hot}, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Create(context.Background(), "org-1", "u-1", CreateInput{Name: "x"}, []Upload{{Name: "payload.exe", Data: []byte("MZ")}})
	assert.ErrorIs(t, err, ErrUnsupportedFile)
}

func TestCreateStoresKnowledgeInS3(t *testing.T) {
	mock := &mockS3Client{}
	svc := NewService(NewMemoryRepository(), NewS3KnowledgeStore(mock, "kb-bucket"), "m", logging.Discard())

	page := `<html><head><title>x</title><style>p{}</style></head><body><h1>Pricing</h1><script>alert(1)</script><p>Plans start at $99.</p></body></html>`
	agent, err := svc.Create(context.Background(), "org-1", "u-1", CreateInput{Name: "Support"}, []Upload{
		{Name: "pricing.html", Data: []byte(page)},
		{Name: "../faq.md", Data: []byte("# FAQ\n\n\nWe   ship worldwide.")},
	})
	require.NoError(t, err)
	require.Len(t, agent.KnowledgeFiles, 2)

	assert.Equal(t, "kb-bucket", mock.bucket)
	assert.Equal(t, "agents/org-1/"+agent.ID+"/pricing.html", agent.KnowledgeFiles[0].Key)
	assert.Equal(t, "Pricing Plans start at $99.", agent.KnowledgeFiles[0].Excerpt)
	assert.Equal(t, "text/html", agent.KnowledgeFiles[0].ContentType)
	assert.Equal(t, "agents/org-1/"+agent.ID+"/faq.md", agent.KnowledgeFiles[1].Key)
	assert.Equal(t, "# FAQ\nWe ship worldwide.", agent.KnowledgeFiles[1].Excerpt)
	assert.Equal(t, page, mock.bodies[agent.KnowledgeFiles[0].Key])

	prompt := agent.KnowledgePrompt()
	assert.Contains(t, prompt, "--- pricing.html ---")
	assert.Contains(t, prompt, "We ship worldwide.")
}

func TestExcerptTruncatesRunes(t *testing.T) {
	long := strings.Repeat("é", maxExcerptRunes+50)
	assert.Len(t, []rune(excerpt(long)), maxExcerptRunes)
}

func TestGetIsOrgScoped(t *testing.T) {
	svc := NewService(NewMemoryRepository(), nil, "m", logging.Discard())
	agent, err := svc.Create(context.Background(), "org-1", "u-1", CreateInput{Name: "A"}, nil)
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), "org-2", agent.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	got, err := svc.Get(context.Background(), "org-1", agent.ID)
	require.NoError(t, err)
	assert.Equal(t, "A", got.Name)
}
