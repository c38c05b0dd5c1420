package leads

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wolfman30/agentdesk/internal/bant"
	"github.com/wolfman30/agentdesk/pkg/logging"
)

// SyncInput is the conversation state a lead is derived from.
type SyncInput struct {
	OrgID          string
	ConversationID string
	AgentID        string
	Memory         bant.Memory
	Contact        Contact
}

// Service keeps leads in step with conversation BANT state.
type Service struct {
	repo      Repository
	threshold int
	logger    *logging.Logger
	now       func() time.Time
}

func NewService(repo Repository, threshold int, logger *logging.Logger) *Service {
	if repo == nil {
		panic("leads: repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if threshold <= 0 {
		threshold = bant.DefaultQualifiedThreshold
	}
	return &Service{
		repo:      repo,
		threshold: threshold,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SyncFromConversation upserts the lead for a conversation. It returns a nil
// lead when there is nothing to record yet. becameQualified is true only on
// the first transition to qualified.
func (s *Service) SyncFromConversation(ctx context.Context, in SyncInput) (*Lead, bool, error) {
	if in.OrgID == "" || in.ConversationID == "" {
		return nil, false, ErrMissingKeys
	}

	lead, err := s.repo.GetByConversation(ctx, in.OrgID, in.ConversationID)
	switch {
	case errors.Is(err, ErrLeadNotFound):
		if in.Memory.IsEmpty() && in.Contact.IsEmpty() {
			return nil, false, nil
		}
		lead = &Lead{
			OrgID:          in.OrgID,
			ConversationID: in.ConversationID,
			AgentID:        in.AgentID,
			Status:         StatusNew,
		}
	case err != nil:
		return nil, false, fmt.Errorf("leads: load for sync: %w", err)
	}

	lead.applyMemory(in.Memory, s.threshold)
	lead.fillContact(in.Contact)

	if err := s.repo.Upsert(ctx, lead); err != nil {
		return nil, false, err
	}
	if lead.QualifiedAt != nil || in.Memory.Status(s.threshold) != bant.StatusQualified {
		return lead, false, nil
	}

	now := s.now()
	becameQualified, err := s.repo.MarkQualified(ctx, lead.OrgID, lead.ID, now)
	if err != nil {
		return nil, false, err
	}
	if !becameQualified {
		// Another sync got there first.
		return lead, false, nil
	}
	lead.QualifiedAt = &now
	s.logger.Info("lead qualified", "lead_id", lead.ID, "org_id", lead.OrgID, "conversation_id", lead.ConversationID, "score", lead.Score)
	return lead, true, nil
}

// MarkHandedOff flags the conversation's lead as handed to a human. A missing
// lead is not an error.
func (s *Service) MarkHandedOff(ctx context.Context, orgID, conversationID string) error {
	lead, err := s.repo.GetByConversation(ctx, orgID, conversationID)
	if errors.Is(err, ErrLeadNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("leads: load for handoff: %w", err)
	}
	if lead.Status == StatusHandedOff {
		return nil
	}
	lead.Status = StatusHandedOff
	return s.repo.Upsert(ctx, lead)
}

func (s *Service) Get(ctx context.Context, orgID, id string) (*Lead, error) {
	return s.repo.GetByID(ctx, orgID, id)
}

func (s *Service) List(ctx context.Context, orgID string, filter ListFilter) ([]*Lead, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, ErrInvalidStatus
	}
	return s.repo.List(ctx, orgID, filter)
}
