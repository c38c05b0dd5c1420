// Package handoff moves conversations between the AI agent and human
// operators and keeps a record of each transfer.
package handoff

import (
	"errors"
	"time"
)

// Status is the lifecycle of one handoff.
type Status string

const (
	StatusRequested Status = "requested"
	StatusAccepted  Status = "accepted"
	StatusResolved  Status = "resolved"
)

func (s Status) Valid() bool {
	return s == StatusRequested || s == StatusAccepted || s == StatusResolved
}

// RequestedByVisitor marks handoffs the visitor asked for in chat.
const RequestedByVisitor = "visitor"

// Handoff is one transfer of a conversation to a human.
type Handoff struct {
	ID             string     `json:"id"`
	OrgID          string     `json:"orgId"`
	ConversationID string     `json:"conversationId"`
	Reason         string     `json:"reason,omitempty"`
	Status         Status     `json:"status"`
	RequestedBy    string     `json:"requestedBy"`
	AcceptedBy     string     `json:"acceptedBy,omitempty"`
	RequestedAt    time.Time  `json:"requestedAt"`
	AcceptedAt     *time.Time `json:"acceptedAt,omitempty"`
	ResolvedAt     *time.Time `json:"resolvedAt,omitempty"`
	EscalatedAt    *time.Time `json:"escalatedAt,omitempty"`
}

var (
	ErrNotFound      = errors.New("handoff: not found")
	ErrAlreadyActive = errors.New("handoff: conversation already handed off")
	ErrNotActive     = errors.New("handoff: conversation is not handed off")
	ErrNotPending    = errors.New("handoff: no pending handoff to accept")
	ErrInvalidStatus = errors.New("handoff: invalid status")
)

const maxReasonLength = 500
