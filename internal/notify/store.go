package notify

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ListOptions narrows a user's notification list.
type ListOptions struct {
	UnreadOnly bool
	Limit      int
}

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

func (o ListOptions) limit() int {
	switch {
	case o.Limit <= 0:
		return defaultListLimit
	case o.Limit > maxListLimit:
		return maxListLimit
	}
	return o.Limit
}

// Store persists notifications and preferences.
type Store interface {
	Insert(ctx context.Context, n *Notification) error
	List(ctx context.Context, orgID, userID string, opts ListOptions) ([]Notification, error)
	CountUnread(ctx context.Context, orgID, userID string) (int, error)
	MarkRead(ctx context.Context, orgID, userID, id string) error
	MarkAllRead(ctx context.Context, orgID, userID string) (int, error)
	GetPreferences(ctx context.Context, userID string) (Preferences, error)
	SavePreferences(ctx context.Context, prefs Preferences) (Preferences, error)
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu     sync.RWMutex
	items  []*Notification
	prefs  map[string]Preferences
	nowFun func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		prefs:  make(map[string]Preferences),
		nowFun: func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Insert(_ context.Context, n *Notification) error {
	if n.OrgID == "" || n.UserID == "" {
		return ErrMissingOwner
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.nowFun()
	}
	stored := *n
	s.mu.Lock()
	s.items = append(s.items, &stored)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) List(_ context.Context, orgID, userID string, opts ListOptions) ([]Notification, error) {
	s.mu.RLock()
	out := []Notification{}
	for _, n := range s.items {
		if n.OrgID != orgID || n.UserID != userID {
			continue
		}
		if opts.UnreadOnly && n.ReadAt != nil {
			continue
		}
		out = append(out, *n)
	}
	s.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > opts.limit() {
		out = out[:opts.limit()]
	}
	return out, nil
}

func (s *MemoryStore) CountUnread(_ context.Context, orgID, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, n := range s.items {
		if n.OrgID == orgID && n.UserID == userID && n.ReadAt == nil {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) MarkRead(_ context.Context, orgID, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.items {
		if n.ID == id && n.OrgID == orgID && n.UserID == userID {
			if n.ReadAt == nil {
				now := s.nowFun()
				n.ReadAt = &now
			}
			return nil
		}
	}
	return ErrNotFound
}

func (s *MemoryStore) MarkAllRead(_ context.Context, orgID, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.nowFun()
	count := 0
	for _, n := range s.items {
		if n.OrgID == orgID && n.UserID == userID && n.ReadAt == nil {
			t := now
			n.ReadAt = &t
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) GetPreferences(_ context.Context, userID string) (Preferences, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.prefs[userID]; ok {
		return p, nil
	}
	return DefaultPreferences(userID), nil
}

func (s *MemoryStore) SavePreferences(_ context.Context, prefs Preferences) (Preferences, error) {
	prefs.UpdatedAt = s.nowFun()
	s.mu.Lock()
	s.prefs[prefs.UserID] = prefs
	s.mu.Unlock()
	return prefs, nil
}
