package leads

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository persists leads. Upsert is keyed by (org, conversation). It never
// clears a stored BANT field or qualified_at.
type Repository interface {
	Upsert(ctx context.Context, lead *Lead) error
	// MarkQualified sets qualified_at when it is still unset and reports
	// whether this call set it.
	MarkQualified(ctx context.Context, orgID, id string, at time.Time) (bool, error)
	GetByID(ctx context.Context, orgID, id string) (*Lead, error)
	GetByConversation(ctx context.Context, orgID, conversationID string) (*Lead, error)
	List(ctx context.Context, orgID string, filter ListFilter) ([]*Lead, error)
}

// InMemoryRepository keeps leads in a map. Used for local development and tests.
type InMemoryRepository struct {
	mu    sync.RWMutex
	leads map[string]*Lead
	now   func() time.Time
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		leads: make(map[string]*Lead),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (r *InMemoryRepository) Upsert(_ context.Context, lead *Lead) error {
	if lead.OrgID == "" || lead.ConversationID == "" {
		return ErrMissingKeys
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for _, existing := range r.leads {
		if existing.OrgID == lead.OrgID && existing.ConversationID == lead.ConversationID {
			lead.ID = existing.ID
			lead.CreatedAt = existing.CreatedAt
			lead.Budget = keep(lead.Budget, existing.Budget)
			lead.Authority = keep(lead.Authority, existing.Authority)
			lead.Need = keep(lead.Need, existing.Need)
			lead.Timeline = keep(lead.Timeline, existing.Timeline)
			if existing.QualifiedAt != nil {
				lead.QualifiedAt = existing.QualifiedAt
			}
			lead.UpdatedAt = now
			stored := *lead
			r.leads[lead.ID] = &stored
			return nil
		}
	}
	if lead.ID == "" {
		lead.ID = uuid.NewString()
	}
	lead.CreatedAt = now
	lead.UpdatedAt = now
	stored := *lead
	r.leads[lead.ID] = &stored
	return nil
}

func keep(next, prev *string) *string {
	if next == nil {
		return prev
	}
	return next
}

func (r *InMemoryRepository) MarkQualified(_ context.Context, orgID, id string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lead, ok := r.leads[id]
	if !ok || lead.OrgID != orgID {
		return false, ErrLeadNotFound
	}
	if lead.QualifiedAt != nil {
		return false, nil
	}
	ts := at
	lead.QualifiedAt = &ts
	lead.UpdatedAt = r.now()
	return true, nil
}

func (r *InMemoryRepository) GetByID(_ context.Context, orgID, id string) (*Lead, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	lead, ok := r.leads[id]
	if !ok || lead.OrgID != orgID {
		return nil, ErrLeadNotFound
	}
	out := *lead
	return &out, nil
}

func (r *InMemoryRepository) GetByConversation(_ context.Context, orgID, conversationID string) (*Lead, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, lead := range r.leads {
		if lead.OrgID == orgID && lead.ConversationID == conversationID {
			out := *lead
			return &out, nil
		}
	}
	return nil, ErrLeadNotFound
}

func (r *InMemoryRepository) List(_ context.Context, orgID string, filter ListFilter) ([]*Lead, error) {
	filter = filter.normalized()
	r.mu.RLock()
	var matched []*Lead
	for _, lead := range r.leads {
		if lead.OrgID != orgID {
			continue
		}
		if filter.ConversationID != "" && lead.ConversationID != filter.ConversationID {
			continue
		}
		if filter.Status != "" && lead.Status != filter.Status {
			continue
		}
		out := *lead
		matched = append(matched, &out)
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].UpdatedAt.After(matched[j].UpdatedAt)
	})
	if filter.Offset >= len(matched) {
		return []*Lead{}, nil
	}
	matched = matched[filter.Offset:]
	if len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}
