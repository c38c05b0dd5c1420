package conversation

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/agentdesk/internal/bant"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

func (f ListFilter) normalized() ListFilter {
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// Store persists conversations and their messages. Every lookup is scoped to
// an org; a conversation in another org is reported as ErrNotFound.
type Store interface {
	Create(ctx context.Context, conv *Conversation) error
	Get(ctx context.Context, orgID, id string) (*Conversation, error)
	List(ctx context.Context, orgID string, filter ListFilter) ([]*Conversation, error)
	AppendMessage(ctx context.Context, orgID string, msg *Message) error
	// Messages returns the most recent limit messages in chronological order.
	// A limit of zero returns all of them.
	Messages(ctx context.Context, orgID, conversationID string, limit int) ([]Message, error)
	// MergeBANT applies signals to the stored memory as one atomic step and
	// returns the merged memory with the dimensions that changed.
	MergeBANT(ctx context.Context, orgID, id string, signals []bant.Signal, now time.Time) (bant.Memory, []bant.Dimension, error)
	// SetMode moves the conversation to `to` only when its current mode is one
	// of from. Otherwise it returns ErrModeConflict. A nil assignee leaves the
	// assignment unchanged; an empty one clears it.
	SetMode(ctx context.Context, orgID, id string, from []Mode, to Mode, assignee *string) (*Conversation, error)
}

func modeIn(m Mode, set []Mode) bool {
	for _, candidate := range set {
		if m == candidate {
			return true
		}
	}
	return false
}

// MemoryStore keeps conversations in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	convs    map[string]*Conversation
	messages map[string][]Message
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		convs:    make(map[string]*Conversation),
		messages: make(map[string][]Message),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Create(_ context.Context, conv *Conversation) error {
	if conv == nil || conv.OrgID == "" || conv.AgentID == "" {
		return invalid("conversation requires org and agent")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	if conv.Mode == "" {
		conv.Mode = ModeAI
	}
	now := s.now()
	conv.CreatedAt = now
	conv.UpdatedAt = now
	stored := *conv
	stored.BANT = conv.BANT.Clone()
	s.convs[conv.ID] = &stored
	return nil
}

func (s *MemoryStore) lookup(orgID, id string) (*Conversation, error) {
	conv, ok := s.convs[id]
	if !ok || conv.OrgID != orgID {
		return nil, ErrNotFound
	}
	return conv, nil
}

func copyConversation(c *Conversation) *Conversation {
	out := *c
	out.BANT = c.BANT.Clone()
	if c.LastMessageAt != nil {
		t := *c.LastMessageAt
		out.LastMessageAt = &t
	}
	return &out
}

func (s *MemoryStore) Get(_ context.Context, orgID, id string) (*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, err := s.lookup(orgID, id)
	if err != nil {
		return nil, err
	}
	return copyConversation(conv), nil
}

func (s *MemoryStore) List(_ context.Context, orgID string, filter ListFilter) ([]*Conversation, error) {
	filter = filter.normalized()
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Conversation
	for _, conv := range s.convs {
		if conv.OrgID != orgID {
			continue
		}
		if filter.Mode != "" && conv.Mode != filter.Mode {
			continue
		}
		if filter.AgentID != "" && conv.AgentID != filter.AgentID {
			continue
		}
		out = append(out, copyConversation(conv))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if filter.Offset >= len(out) {
		return []*Conversation{}, nil
	}
	out = out[filter.Offset:]
	if len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *MemoryStore) AppendMessage(_ context.Context, orgID string, msg *Message) error {
	if msg == nil || msg.ConversationID == "" {
		return invalid("message requires a conversation")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, err := s.lookup(orgID, msg.ConversationID)
	if err != nil {
		return err
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	now := s.now()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now
	}
	s.messages[msg.ConversationID] = append(s.messages[msg.ConversationID], *msg)
	conv.MessageCount++
	last := msg.CreatedAt
	conv.LastMessageAt = &last
	conv.UpdatedAt = now
	return nil
}

func (s *MemoryStore) Messages(_ context.Context, orgID, conversationID string, limit int) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, err := s.lookup(orgID, conversationID); err != nil {
		return nil, err
	}
	all := s.messages[conversationID]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]Message, len(all))
	copy(out, all)
	return out, nil
}

func (s *MemoryStore) MergeBANT(_ context.Context, orgID, id string, signals []bant.Signal, now time.Time) (bant.Memory, []bant.Dimension, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, err := s.lookup(orgID, id)
	if err != nil {
		return bant.Memory{}, nil, err
	}
	memory, changed := bant.Merge(conv.BANT, signals, now)
	if len(changed) > 0 {
		conv.BANT = memory.Clone()
		conv.UpdatedAt = s.now()
	}
	return memory, changed, nil
}

func (s *MemoryStore) SetMode(_ context.Context, orgID, id string, from []Mode, to Mode, assignee *string) (*Conversation, error) {
	if !to.Valid() {
		return nil, invalid("unknown mode")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, err := s.lookup(orgID, id)
	if err != nil {
		return nil, err
	}
	if !modeIn(conv.Mode, from) {
		return nil, ErrModeConflict
	}
	conv.Mode = to
	if assignee != nil {
		conv.AssignedTo = *assignee
	}
	conv.UpdatedAt = s.now()
	return copyConversation(conv), nil
}

var _ Store = (*MemoryStore)(nil)
