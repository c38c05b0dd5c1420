package events

import (
	"context"
	"time"
)

// Event type names. The suffix is the payload schema version.
const (
	TypeLeadQualified    = "lead.qualified.v1"
	TypeHandoffRequested = "handoff.requested.v1"
	TypeHandoffAccepted  = "handoff.accepted.v1"
	TypeHandoffResolved  = "handoff.resolved.v1"
)

// Emitter records a domain event for delivery.
type Emitter interface {
	Emit(ctx context.Context, orgID, eventType string, payload any) error
}

// LeadQualifiedV1 is emitted the first time a lead reaches qualified status.
type LeadQualifiedV1 struct {
	LeadID         string            `json:"leadId"`
	OrgID          string            `json:"orgId"`
	ConversationID string            `json:"conversationId"`
	AgentID        string            `json:"agentId"`
	Score          int               `json:"score"`
	BANT           map[string]string `json:"bant"`
	QualifiedAt    time.Time         `json:"qualifiedAt"`
}

// HandoffRequestedV1 is emitted when a conversation moves to pending_human.
type HandoffRequestedV1 struct {
	HandoffID      string    `json:"handoffId"`
	OrgID          string    `json:"orgId"`
	ConversationID string    `json:"conversationId"`
	Reason         string    `json:"reason,omitempty"`
	RequestedBy    string    `json:"requestedBy"`
	RequestedAt    time.Time `json:"requestedAt"`
}

// HandoffAcceptedV1 is emitted when an operator takes over.
type HandoffAcceptedV1 struct {
	HandoffID      string    `json:"handoffId"`
	OrgID          string    `json:"orgId"`
	ConversationID string    `json:"conversationId"`
	AcceptedBy     string    `json:"acceptedBy"`
	AcceptedAt     time.Time `json:"acceptedAt"`
}

// HandoffResolvedV1 is emitted when the conversation returns to the AI.
type HandoffResolvedV1 struct {
	HandoffID      string    `json:"handoffId"`
	OrgID          string    `json:"orgId"`
	ConversationID string    `json:"conversationId"`
	ResolvedBy     string    `json:"resolvedBy"`
	ResolvedAt     time.Time `json:"resolvedAt"`
}
