package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/wolfman30/agentdesk/pkg/logging"
)

// Service manages agents and their knowledge files.
type Service struct {
	repo         Repository
	knowledge    KnowledgeStore
	defaultModel string
	logger       *logging.Logger
}

func NewService(repo Repository, knowledge KnowledgeStore, defaultModel string, logger *logging.Logger) *Service {
	if repo == nil {
		panic("agents: repository required")
	}
	if knowledge == nil {
		knowledge = NewMemoryKnowledgeStore()
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{repo: repo, knowledge: knowledge, defaultModel: defaultModel, logger: logger}
}

func (s *Service) List(ctx context.Context, orgID string) ([]*Agent, error) {
	return s.repo.List(ctx, orgID)
}

// Get returns the agent when it belongs to orgID.
func (s *Service) Get(ctx context.Context, orgID, id string) (*Agent, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrNotFound
	}
	return s.repo.Get(ctx, orgID, id)
}

// Create validates the input, stores the uploads and persists the agent.
func (s *Service) Create(ctx context.Context, orgID, createdBy string, in CreateInput, uploads []Upload) (*Agent, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	agent := &Agent{
		ID:                   uuid.NewString(),
		OrgID:                orgID,
		Name:                 strings.TrimSpace(in.Name),
		Description:          strings.TrimSpace(in.Description),
		SystemPrompt:         strings.TrimSpace(in.SystemPrompt),
		Greeting:             strings.TrimSpace(in.Greeting),
		Model:                strings.TrimSpace(in.Model),
		Temperature:          defaultTemperature,
		QualificationEnabled: true,
		HandoffEnabled:       true,
		KnowledgeFiles:       []KnowledgeFile{},
		CreatedBy:            createdBy,
	}
	if agent.Model == "" {
		agent.Model = s.defaultModel
	}
	if in.Temperature != nil {
		agent.Temperature = *in.Temperature
	}
	if in.QualificationEnabled != nil {
		agent.QualificationEnabled = *in.QualificationEnabled
	}
	if in.HandoffEnabled != nil {
		agent.HandoffEnabled = *in.HandoffEnabled
	}

	for _, up := range uploads {
		file, err := s.storeUpload(ctx, agent, up)
		if err != nil {
			return nil, err
		}
		agent.KnowledgeFiles = append(agent.KnowledgeFiles, file)
	}

	if err := s.repo.Create(ctx, agent); err != nil {
		return nil, err
	}
	s.logger.Info("agent created", "agent_id", agent.ID, "org_id", orgID, "knowledge_files", len(agent.KnowledgeFiles))
	return agent, nil
}

func (s *Service) storeUpload(ctx context.Context, agent *Agent, up Upload) (KnowledgeFile, error) {
	contentType, err := contentTypeFor(up.Name)
	if err != nil {
		return KnowledgeFile{}, err
	}
	if len(up.Data) > MaxKnowledgeFileBytes {
		return KnowledgeFile{}, fmt.Errorf("%w: %s", ErrFileTooLarge, up.Name)
	}
	text, err := ExtractText(contentType, up.Data)
	if err != nil {
		return KnowledgeFile{}, fmt.Errorf("agents: extract %s: %w", up.Name, err)
	}
	key := knowledgeKey(agent.OrgID, agent.ID, up.Name)
	if err := s.knowledge.Put(ctx, key, contentType, up.Data); err != nil {
		return KnowledgeFile{}, err
	}
	return KnowledgeFile{
		Name:        up.Name,
		Key:         key,
		ContentType: contentType,
		Size:        int64(len(up.Data)),
		Excerpt:     excerpt(text),
	}, nil
}
