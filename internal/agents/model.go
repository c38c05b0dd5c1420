package agents

import (
	"fmt"
	"strings"
	"time"
)

// Agent is a configured AI assistant owned by an organization.
type Agent struct {
	ID                   string          `json:"id"`
	OrgID                string          `json:"orgId"`
	Name                 string          `json:"name"`
	Description          string          `json:"description,omitempty"`
	SystemPrompt         string          `json:"systemPrompt,omitempty"`
	Greeting             string          `json:"greeting,omitempty"`
	Model                string          `json:"model"`
	Temperature          float32         `json:"temperature"`
	QualificationEnabled bool            `json:"qualificationEnabled"`
	HandoffEnabled       bool            `json:"handoffEnabled"`
	KnowledgeFiles       []KnowledgeFile `json:"knowledgeFiles"`
	CreatedBy            string          `json:"createdBy,omitempty"`
	CreatedAt            time.Time       `json:"createdAt"`
	UpdatedAt            time.Time       `json:"updatedAt"`
}

// KnowledgeFile is an uploaded document attached to an agent.
type KnowledgeFile struct {
	Name        string `json:"name"`
	Key         string `json:"key"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
	Excerpt     string `json:"excerpt,omitempty"`
}

// KnowledgePrompt renders the knowledge excerpts as a system prompt block.
// It returns "" when the agent has no knowledge.
func (a *Agent) KnowledgePrompt() string {
	var b strings.Builder
	for _, f := range a.KnowledgeFiles {
		if strings.TrimSpace(f.Excerpt) == "" {
			continue
		}
		if b.Len() == 0 {
			b.WriteString("Reference knowledge for answering questions:\n")
		}
		fmt.Fprintf(&b, "\n--- %s ---\n%s\n", f.Name, f.Excerpt)
	}
	return b.String()
}

// CreateInput is the payload for creating an agent.
type CreateInput struct {
	Name                 string   `json:"name"`
	Description          string   `json:"description"`
	SystemPrompt         string   `json:"systemPrompt"`
	Greeting             string   `json:"greeting"`
	Model                string   `json:"model"`
	Temperature          *float32 `json:"temperature"`
	QualificationEnabled *bool    `json:"qualificationEnabled"`
	HandoffEnabled       *bool    `json:"handoffEnabled"`
}

const (
	maxNameLength      = 120
	defaultTemperature = float32(0.4)
)

// Validate checks the create payload.
func (in CreateInput) Validate() error {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if len([]rune(name)) > maxNameLength {
		return fmt.Errorf("%w: name is too long", ErrInvalidInput)
	}
	if in.Temperature != nil && (*in.Temperature < 0 || *in.Temperature > 2) {
		return fmt.Errorf("%w: temperature must be between 0 and 2", ErrInvalidInput)
	}
	return nil
}

// Upload is a knowledge file received with a create request.
type Upload struct {
	Name        string
	ContentType string
	Data        []byte
}
