package auth

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository persists organizations and users.
type Repository interface {
	CreateOrganization(ctx context.Context, name string) (*Organization, error)
	CreateUser(ctx context.Context, user *User) error
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByID(ctx context.Context, orgID, id string) (*User, error)
	ListUsers(ctx context.Context, orgID string, roles []Role) ([]*User, error)
}

// MemoryRepository keeps users in process. Used for local runs and tests.
type MemoryRepository struct {
	mu    sync.RWMutex
	orgs  map[string]*Organization
	users map[string]*User
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		orgs:  make(map[string]*Organization),
		users: make(map[string]*User),
	}
}

func (r *MemoryRepository) CreateOrganization(_ context.Context, name string) (*Organization, error) {
	org := &Organization{ID: uuid.NewString(), Name: name, CreatedAt: time.Now().UTC()}
	r.mu.Lock()
	r.orgs[org.ID] = org
	r.mu.Unlock()
	return org, nil
}

func (r *MemoryRepository) CreateUser(_ context.Context, user *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orgs[user.OrgID]; !ok {
		return ErrOrgNotFound
	}
	for _, existing := range r.users {
		if existing.Email == user.Email {
			return ErrEmailTaken
		}
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	clone := *user
	r.users[user.ID] = &clone
	return nil
}

func (r *MemoryRepository) GetUserByEmail(_ context.Context, email string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if u.Email == email {
			clone := *u
			return &clone, nil
		}
	}
	return nil, ErrUserNotFound
}

func (r *MemoryRepository) GetUserByID(_ context.Context, orgID, id string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok || u.OrgID != orgID {
		return nil, ErrUserNotFound
	}
	clone := *u
	return &clone, nil
}

func (r *MemoryRepository) ListUsers(_ context.Context, orgID string, roles []Role) ([]*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*User
	for _, u := range r.users {
		if u.OrgID != orgID {
			continue
		}
		if len(roles) > 0 && !slices.Contains(roles, u.Role) {
			continue
		}
		clone := *u
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
