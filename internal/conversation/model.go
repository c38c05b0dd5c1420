package conversation

import (
	"strings"
	"time"

	"github.com/wolfman30/agentdesk/internal/bant"
)

// Mode says who is answering the visitor.
type Mode string

const (
	ModeAI           Mode = "ai"
	ModePendingHuman Mode = "pending_human"
	ModeHuman        Mode = "human"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeAI || m == ModePendingHuman || m == ModeHuman
}

// HumanActive is true while a handoff is requested or accepted. The AI stays
// silent in both states.
func (m Mode) HumanActive() bool {
	return m == ModePendingHuman || m == ModeHuman
}

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleOperator  Role = "operator"
	RoleSystem    Role = "system"
)

// Conversation is one visitor thread with an agent.
type Conversation struct {
	ID            string      `json:"id"`
	OrgID         string      `json:"orgId"`
	AgentID       string      `json:"agentId"`
	UserID        string      `json:"userId,omitempty"`
	VisitorName   string      `json:"visitorName,omitempty"`
	Mode          Mode        `json:"mode"`
	AssignedTo    string      `json:"assignedTo,omitempty"`
	BANT          bant.Memory `json:"bant"`
	MessageCount  int         `json:"messageCount"`
	LastMessageAt *time.Time  `json:"lastMessageAt,omitempty"`
	CreatedAt     time.Time   `json:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt"`
}

// Message is a persisted turn.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	SenderID       string    `json:"senderId,omitempty"`
	InputTokens    int32     `json:"inputTokens,omitempty"`
	OutputTokens   int32     `json:"outputTokens,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// ListFilter narrows conversation listings.
type ListFilter struct {
	Mode    Mode
	AgentID string
	Limit   int
	Offset  int
}

// HistoryTurn is a client-supplied prior turn.
type HistoryTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// MaxMessageLength caps a single visitor message.
const MaxMessageLength = 4000

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	AgentID        string        `json:"agentId"`
	Message        string        `json:"message"`
	History        []HistoryTurn `json:"history,omitempty"`
	UserID         string        `json:"userId,omitempty"`
	ConversationID string        `json:"conversationId,omitempty"`
	VisitorName    string        `json:"visitorName,omitempty"`
}

// Validate checks required fields.
func (r ChatRequest) Validate() error {
	if strings.TrimSpace(r.AgentID) == "" {
		return invalid("agentId is required")
	}
	msg := strings.TrimSpace(r.Message)
	if msg == "" {
		return invalid("message is required")
	}
	if len([]rune(msg)) > MaxMessageLength {
		return invalid("message is too long")
	}
	return nil
}

// ChatResponse is returned by Service.Chat.
type ChatResponse struct {
	Response       string        `json:"response"`
	ConversationID string        `json:"conversationId"`
	Mode           Mode          `json:"mode"`
	HandoffActive  bool          `json:"handoffActive"`
	BANT           bant.Memory   `json:"bant"`
	Signals        []bant.Signal `json:"signals,omitempty"`
	LeadID         string        `json:"leadId,omitempty"`
	LeadStatus     string        `json:"leadStatus,omitempty"`
}
