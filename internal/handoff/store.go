package handoff

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store persists handoff records. At most one handoff per conversation is
// unresolved at a time.
type Store interface {
	Create(ctx context.Context, h *Handoff) error
	// Active returns the unresolved handoff of a conversation.
	Active(ctx context.Context, orgID, conversationID string) (*Handoff, error)
	Save(ctx context.Context, h *Handoff) error
	List(ctx context.Context, orgID string, status Status, limit int) ([]*Handoff, error)
	// Overdue lists requested, never escalated handoffs older than before,
	// across all orgs.
	Overdue(ctx context.Context, before time.Time) ([]*Handoff, error)
	// MarkEscalated stamps EscalatedAt once. It reports false when another
	// sweep already did.
	MarkEscalated(ctx context.Context, id string, at time.Time) (bool, error)
}

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultListLimit
	case limit > maxListLimit:
		return maxListLimit
	}
	return limit
}

// MemoryStore keeps handoffs in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	handoffs map[string]*Handoff
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{handoffs: make(map[string]*Handoff)}
}

func (s *MemoryStore) Create(_ context.Context, h *Handoff) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	cp := *h
	s.handoffs[h.ID] = &cp
	return nil
}

func (s *MemoryStore) Active(_ context.Context, orgID, conversationID string) (*Handoff, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *Handoff
	for _, h := range s.handoffs {
		if h.OrgID != orgID || h.ConversationID != conversationID || h.Status == StatusResolved {
			continue
		}
		if latest == nil || h.RequestedAt.After(latest.RequestedAt) {
			latest = h
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (s *MemoryStore) Save(_ context.Context, h *Handoff) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.handoffs[h.ID]
	if !ok || existing.OrgID != h.OrgID {
		return ErrNotFound
	}
	cp := *h
	s.handoffs[h.ID] = &cp
	return nil
}

func (s *MemoryStore) List(_ context.Context, orgID string, status Status, limit int) ([]*Handoff, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*Handoff{}
	for _, h := range s.handoffs {
		if h.OrgID != orgID || (status != "" && h.Status != status) {
			continue
		}
		cp := *h
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.After(out[j].RequestedAt) })
	if limit = clampLimit(limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) Overdue(_ context.Context, before time.Time) ([]*Handoff, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Handoff
	for _, h := range s.handoffs {
		if h.Status == StatusRequested && h.EscalatedAt == nil && h.RequestedAt.Before(before) {
			cp := *h
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.Before(out[j].RequestedAt) })
	return out, nil
}

func (s *MemoryStore) MarkEscalated(_ context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.handoffs[id]
	if !ok {
		return false, ErrNotFound
	}
	if h.EscalatedAt != nil || h.Status != StatusRequested {
		return false, nil
	}
	stamp := at
	h.EscalatedAt = &stamp
	return true, nil
}

var _ Store = (*MemoryStore)(nil)
