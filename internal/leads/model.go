package leads

import (
	"strings"
	"time"

	"github.com/wolfman30/agentdesk/internal/bant"
)

// Status is the lifecycle state of a lead.
type Status string

const (
	StatusNew       Status = "new"
	StatusPartial   Status = "partial"
	StatusQualified Status = "qualified"
	StatusHandedOff Status = "handed_off"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusPartial, StatusQualified, StatusHandedOff:
		return true
	}
	return false
}

func statusFromBANT(s bant.Status) Status {
	switch s {
	case bant.StatusQualified:
		return StatusQualified
	case bant.StatusPartial:
		return StatusPartial
	default:
		return StatusNew
	}
}

// Lead is the sales record derived from a conversation.
type Lead struct {
	ID             string     `json:"id"`
	OrgID          string     `json:"orgId"`
	ConversationID string     `json:"conversationId"`
	AgentID        string     `json:"agentId"`
	Name           string     `json:"name,omitempty"`
	Email          string     `json:"email,omitempty"`
	Phone          string     `json:"phone,omitempty"`
	Budget         *string    `json:"budget"`
	Authority      *string    `json:"authority"`
	Need           *string    `json:"need"`
	Timeline       *string    `json:"timeline"`
	Score          int        `json:"score"`
	Status         Status     `json:"status"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
	QualifiedAt    *time.Time `json:"qualifiedAt,omitempty"`
}

// Contact holds visitor details pulled out of chat text.
type Contact struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// IsEmpty reports whether no contact field is set.
func (c Contact) IsEmpty() bool {
	return strings.TrimSpace(c.Name) == "" && strings.TrimSpace(c.Email) == "" && strings.TrimSpace(c.Phone) == ""
}

// ListFilter narrows List results.
type ListFilter struct {
	ConversationID string
	Status         Status
	Limit          int
	Offset         int
}

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

// applyMemory copies BANT fields onto the lead.
func (l *Lead) applyMemory(m bant.Memory, threshold int) {
	c := m.Clone()
	l.Budget = c.Budget
	l.Authority = c.Authority
	l.Need = c.Need
	l.Timeline = c.Timeline
	l.Score = m.Score()
	if l.Status != StatusHandedOff {
		l.Status = statusFromBANT(m.Status(threshold))
	}
}

// fillContact sets contact fields that are still empty.
func (l *Lead) fillContact(c Contact) {
	if l.Name == "" {
		l.Name = strings.TrimSpace(c.Name)
	}
	if l.Email == "" {
		l.Email = strings.TrimSpace(c.Email)
	}
	if l.Phone == "" {
		l.Phone = strings.TrimSpace(c.Phone)
	}
}
