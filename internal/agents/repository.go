package agents

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository persists agents.
type Repository interface {
	Create(ctx context.Context, agent *Agent) error
	Get(ctx context.Context, orgID, id string) (*Agent, error)
	List(ctx context.Context, orgID string) ([]*Agent, error)
}

// MemoryRepository is an in-process Repository.
type MemoryRepository struct {
	mu     sync.RWMutex
	agents map[string]*Agent
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{agents: make(map[string]*Agent)}
}

func (r *MemoryRepository) Create(_ context.Context, agent *Agent) error {
	if agent.ID == "" {
		agent.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	agent.CreatedAt = now
	agent.UpdatedAt = now
	stored := *agent
	stored.KnowledgeFiles = append([]KnowledgeFile(nil), agent.KnowledgeFiles...)

	r.mu.Lock()
	r.agents[agent.ID] = &stored
	r.mu.Unlock()
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, orgID, id string) (*Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	agent, ok := r.agents[id]
	if !ok || agent.OrgID != orgID {
		return nil, ErrNotFound
	}
	out := *agent
	return &out, nil
}

func (r *MemoryRepository) List(_ context.Context, orgID string) ([]*Agent, error) {
	r.mu.RLock()
	out := []*Agent{}
	for _, agent := range r.agents {
		if agent.OrgID == orgID {
			a := *agent
			out = append(out, &a)
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
