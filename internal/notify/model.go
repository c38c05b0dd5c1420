package notify

import (
	"encoding/json"
	"time"
)

// Type classifies a notification.
type Type string

const (
	TypeHandoffRequested Type = "handoff_requested"
	TypeHandoffAccepted  Type = "handoff_accepted"
	TypeHandoffEscalated Type = "handoff_escalated"
	TypeLeadQualified    Type = "lead_qualified"
	TypeNewMessage       Type = "new_message"
	TypeTest             Type = "test"
)

// Notification is an in-app alert for one user.
type Notification struct {
	ID        string          `json:"id"`
	OrgID     string          `json:"orgId"`
	UserID    string          `json:"userId"`
	Type      Type            `json:"type"`
	Title     string          `json:"title"`
	Body      string          `json:"body,omitempty"`
	Link      string          `json:"link,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	ReadAt    *time.Time      `json:"readAt,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Preferences controls which notifications a user receives and how.
type Preferences struct {
	UserID        string    `json:"userId"`
	InApp         bool      `json:"inApp"`
	Email         bool      `json:"email"`
	HandoffAlerts bool      `json:"handoffAlerts"`
	LeadAlerts    bool      `json:"leadAlerts"`
	MessageAlerts bool      `json:"messageAlerts"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// DefaultPreferences enables everything except per-message alerts.
func DefaultPreferences(userID string) Preferences {
	return Preferences{
		UserID:        userID,
		InApp:         true,
		Email:         true,
		HandoffAlerts: true,
		LeadAlerts:    true,
		MessageAlerts: false,
	}
}

// Allows reports whether the user wants notifications of type t.
func (p Preferences) Allows(t Type) bool {
	switch t {
	case TypeHandoffRequested, TypeHandoffAccepted, TypeHandoffEscalated:
		return p.HandoffAlerts
	case TypeLeadQualified:
		return p.LeadAlerts
	case TypeNewMessage:
		return p.MessageAlerts
	default:
		return true
	}
}

// Template is a notification addressed to a set of users.
type Template struct {
	Type          Type
	Title         string
	Body          string
	Link          string
	Data          any
	ExcludeUserID string
}

func (t Template) build(orgID, userID string) (Notification, error) {
	n := Notification{
		OrgID:  orgID,
		UserID: userID,
		Type:   t.Type,
		Title:  t.Title,
		Body:   t.Body,
		Link:   t.Link,
	}
	if t.Data != nil {
		data, err := json.Marshal(t.Data)
		if err != nil {
			return Notification{}, err
		}
		n.Data = data
	}
	return n, nil
}
