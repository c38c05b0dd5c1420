package handoff

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/agentdesk/internal/auth"
	"github.com/wolfman30/agentdesk/internal/conversation"
	"github.com/wolfman30/agentdesk/internal/events"
	"github.com/wolfman30/agentdesk/internal/notify"
	"github.com/wolfman30/agentdesk/internal/observability/metrics"
	"github.com/wolfman30/agentdesk/pkg/logging"
)

// Notifier delivers operator notifications.
type Notifier interface {
	NotifyUser(ctx context.Context, orgID, userID string, tmpl notify.Template) error
	NotifyUsers(ctx context.Context, orgID string, roles []auth.Role, tmpl notify.Template) (int, error)
}

// LeadMarker flags a conversation's lead once a human is involved.
type LeadMarker interface {
	MarkHandedOff(ctx context.Context, orgID, conversationID string) error
}

const revertTimeout = 5 * time.Second

var (
	requestAudience  = []auth.Role{auth.RoleAdmin, auth.RoleAgent}
	escalateAudience = []auth.Role{auth.RoleOwner, auth.RoleAdmin}
)

// Deps wires the handoff service.
type Deps struct {
	Conversations conversation.Store
	Store         Store
	Notifier      Notifier
	Events        events.Emitter
	Leads         LeadMarker
	Metrics       *metrics.ChatMetrics
	Intent        *IntentDetector
}

// Service runs the handoff state machine over conversation modes. Mode
// changes are compare-and-set on the conversation row, so two operators
// racing to accept the same handoff cannot both win.
type Service struct {
	Deps
	logger *logging.Logger
	now    func() time.Time
}

func NewService(deps Deps, logger *logging.Logger) *Service {
	if deps.Conversations == nil || deps.Store == nil {
		panic("handoff: conversation store and handoff store are required")
	}
	if deps.Intent == nil {
		deps.Intent = NewIntentDetector()
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		Deps:   deps,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WantsHuman reports whether a visitor message asks for a person.
func (s *Service) WantsHuman(text string) bool {
	return s.Intent.Detect(text)
}

// RequestFromChat hands a conversation off on the visitor's behalf.
func (s *Service) RequestFromChat(ctx context.Context, orgID, conversationID, reason string) error {
	_, err := s.Request(ctx, orgID, conversationID, RequestedByVisitor, reason)
	return err
}

// revertRequest puts a conversation back in ai mode when its handoff row could
// not be written. It runs detached from ctx so a cancelled request still
// reverts.
func (s *Service) revertRequest(ctx context.Context, orgID, conversationID string) {
	revertCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), revertTimeout)
	defer cancel()
	_, err := s.Conversations.SetMode(revertCtx, orgID, conversationID,
		[]conversation.Mode{conversation.ModePendingHuman}, conversation.ModeAI, nil)
	if err != nil {
		s.logger.Error("failed to revert handoff request", "error", err, "org_id", orgID, "conversation_id", conversationID)
	}
}

// Request moves a conversation from ai to pending_human.
func (s *Service) Request(ctx context.Context, orgID, conversationID, requestedBy, reason string) (*Handoff, error) {
	reason = strings.TrimSpace(reason)
	if len(reason) > maxReasonLength {
		reason = reason[:maxReasonLength]
	}
	unassigned := ""
	conv, err := s.Conversations.SetMode(ctx, orgID, conversationID,
		[]conversation.Mode{conversation.ModeAI}, conversation.ModePendingHuman, &unassigned)
	if errors.Is(err, conversation.ErrModeConflict) {
		return nil, ErrAlreadyActive
	}
	if err != nil {
		return nil, err
	}

	now := s.now()
	h := &Handoff{
		OrgID:          orgID,
		ConversationID: conv.ID,
		Reason:         reason,
		Status:         StatusRequested,
		RequestedBy:    requestedBy,
		RequestedAt:    now,
	}
	if err := s.Store.Create(ctx, h); err != nil {
		s.revertRequest(ctx, orgID, conv.ID)
		return nil, fmt.Errorf("handoff: record request: %w", err)
	}
	logger := s.logger.With("org_id", orgID, "conversation_id", conv.ID, "handoff_id", h.ID)

	note := "Conversation handed off to a human operator."
	if reason != "" {
		note = fmt.Sprintf("Conversation handed off to a human operator: %s", reason)
	}
	s.systemMessage(ctx, logger, orgID, conv.ID, note)

	if s.Leads != nil {
		if err := s.Leads.MarkHandedOff(ctx, orgID, conv.ID); err != nil {
			logger.Warn("mark lead handed off failed", "error", err)
		}
	}
	s.emit(ctx, logger, orgID, events.TypeHandoffRequested, events.HandoffRequestedV1{
		HandoffID:      h.ID,
		OrgID:          orgID,
		ConversationID: conv.ID,
		Reason:         reason,
		RequestedBy:    requestedBy,
		RequestedAt:    now,
	})
	if s.Notifier != nil {
		body := "A visitor is waiting for a human operator."
		if reason != "" {
			body = "A visitor is waiting for a human operator: " + reason
		}
		tmpl := notify.Template{
			Type:          notify.TypeHandoffRequested,
			Title:         "Handoff requested",
			Body:          body,
			Link:          "/conversations/" + conv.ID,
			Data:          map[string]string{"conversationId": conv.ID, "handoffId": h.ID},
			ExcludeUserID: requestedBy,
		}
		if _, err := s.Notifier.NotifyUsers(ctx, orgID, requestAudience, tmpl); err != nil {
			logger.Warn("handoff request notification failed", "error", err)
		}
	}
	s.Metrics.ObserveHandoff("requested")
	logger.Info("handoff requested", "requested_by", requestedBy)
	return h, nil
}

// Accept assigns a pending conversation to operatorID.
func (s *Service) Accept(ctx context.Context, orgID, conversationID, operatorID string) (*Handoff, error) {
	conv, err := s.Conversations.SetMode(ctx, orgID, conversationID,
		[]conversation.Mode{conversation.ModePendingHuman}, conversation.ModeHuman, &operatorID)
	if errors.Is(err, conversation.ErrModeConflict) {
		return nil, ErrNotPending
	}
	if err != nil {
		return nil, err
	}

	now := s.now()
	h, err := s.Store.Active(ctx, orgID, conv.ID)
	switch {
	case errors.Is(err, ErrNotFound):
		h = &Handoff{
			OrgID:          orgID,
			ConversationID: conv.ID,
			RequestedBy:    operatorID,
			RequestedAt:    now,
		}
		err = s.Store.Create(ctx, h)
	case err != nil:
		return nil, fmt.Errorf("handoff: load active: %w", err)
	}
	if err != nil {
		return nil, fmt.Errorf("handoff: record accept: %w", err)
	}
	h.Status = StatusAccepted
	h.AcceptedBy = operatorID
	h.AcceptedAt = &now
	if err := s.Store.Save(ctx, h); err != nil {
		return nil, fmt.Errorf("handoff: record accept: %w", err)
	}
	logger := s.logger.With("org_id", orgID, "conversation_id", conv.ID, "handoff_id", h.ID)

	s.systemMessage(ctx, logger, orgID, conv.ID, "A human operator joined the conversation.")
	s.emit(ctx, logger, orgID, events.TypeHandoffAccepted, events.HandoffAcceptedV1{
		HandoffID:      h.ID,
		OrgID:          orgID,
		ConversationID: conv.ID,
		AcceptedBy:     operatorID,
		AcceptedAt:     now,
	})
	if s.Notifier != nil && h.RequestedBy != "" && h.RequestedBy != RequestedByVisitor && h.RequestedBy != operatorID {
		tmpl := notify.Template{
			Type:  notify.TypeHandoffAccepted,
			Title: "Handoff accepted",
			Body:  "An operator took over the conversation you handed off.",
			Link:  "/conversations/" + conv.ID,
			Data:  map[string]string{"conversationId": conv.ID, "handoffId": h.ID, "acceptedBy": operatorID},
		}
		if err := s.Notifier.NotifyUser(ctx, orgID, h.RequestedBy, tmpl); err != nil {
			logger.Warn("handoff accepted notification failed", "error", err)
		}
	}
	s.Metrics.ObserveHandoff("accepted")
	logger.Info("handoff accepted", "operator_id", operatorID)
	return h, nil
}

// TransferToAI returns a pending or human conversation to the agent.
func (s *Service) TransferToAI(ctx context.Context, orgID, conversationID, actorID string) (*Handoff, error) {
	unassigned := ""
	conv, err := s.Conversations.SetMode(ctx, orgID, conversationID,
		[]conversation.Mode{conversation.ModePendingHuman, conversation.ModeHuman}, conversation.ModeAI, &unassigned)
	if errors.Is(err, conversation.ErrModeConflict) {
		return nil, ErrNotActive
	}
	if err != nil {
		return nil, err
	}
	logger := s.logger.With("org_id", orgID, "conversation_id", conv.ID)

	now := s.now()
	h, err := s.Store.Active(ctx, orgID, conv.ID)
	switch {
	case errors.Is(err, ErrNotFound):
		logger.Warn("transfer to ai without an open handoff record")
		h = nil
	case err != nil:
		return nil, fmt.Errorf("handoff: load active: %w", err)
	default:
		h.Status = StatusResolved
		h.ResolvedAt = &now
		if err := s.Store.Save(ctx, h); err != nil {
			return nil, fmt.Errorf("handoff: record resolve: %w", err)
		}
		logger = logger.With("handoff_id", h.ID)
	}

	s.systemMessage(ctx, logger, orgID, conv.ID, "Conversation returned to the AI agent.")
	payload := events.HandoffResolvedV1{
		OrgID:          orgID,
		ConversationID: conv.ID,
		ResolvedBy:     actorID,
		ResolvedAt:     now,
	}
	if h != nil {
		payload.HandoffID = h.ID
	}
	s.emit(ctx, logger, orgID, events.TypeHandoffResolved, payload)
	s.Metrics.ObserveHandoff("resolved")
	logger.Info("conversation transferred to ai", "actor_id", actorID)
	return h, nil
}

// List returns the org's handoffs, newest first. An empty status lists all.
func (s *Service) List(ctx context.Context, orgID string, status Status, limit int) ([]*Handoff, error) {
	if status != "" && !status.Valid() {
		return nil, ErrInvalidStatus
	}
	return s.Store.List(ctx, orgID, status, limit)
}

// EscalateOverdue notifies owners and admins about handoffs still waiting
// after sla. Each handoff is escalated at most once. It returns how many
// were escalated.
func (s *Service) EscalateOverdue(ctx context.Context, sla time.Duration) (int, error) {
	now := s.now()
	overdue, err := s.Store.Overdue(ctx, now.Add(-sla))
	if err != nil {
		return 0, err
	}
	escalated := 0
	for _, h := range overdue {
		ok, err := s.Store.MarkEscalated(ctx, h.ID, now)
		if err != nil {
			return escalated, err
		}
		if !ok {
			continue
		}
		escalated++
		logger := s.logger.With("org_id", h.OrgID, "conversation_id", h.ConversationID, "handoff_id", h.ID)
		wait := now.Sub(h.RequestedAt).Round(time.Second)
		if s.Notifier != nil {
			tmpl := notify.Template{
				Type:  notify.TypeHandoffEscalated,
				Title: "Handoff waiting",
				Body:  fmt.Sprintf("A visitor has been waiting %s for a human operator.", wait),
				Link:  "/conversations/" + h.ConversationID,
				Data:  map[string]string{"conversationId": h.ConversationID, "handoffId": h.ID},
			}
			if _, err := s.Notifier.NotifyUsers(ctx, h.OrgID, escalateAudience, tmpl); err != nil {
				logger.Warn("handoff escalation notification failed", "error", err)
			}
		}
		s.Metrics.ObserveHandoff("escalated")
		logger.Warn("handoff escalated", "waiting", wait.String())
	}
	return escalated, nil
}

func (s *Service) systemMessage(ctx context.Context, logger *logging.Logger, orgID, conversationID, text string) {
	msg := &conversation.Message{
		ConversationID: conversationID,
		Role:           conversation.RoleSystem,
		Content:        text,
	}
	if err := s.Conversations.AppendMessage(ctx, orgID, msg); err != nil {
		logger.Warn("append handoff system message failed", "error", err)
	}
}

func (s *Service) emit(ctx context.Context, logger *logging.Logger, orgID, eventType string, payload any) {
	if s.Events == nil {
		return
	}
	if err := s.Events.Emit(ctx, orgID, eventType, payload); err != nil {
		logger.Warn("emit handoff event failed", "event_type", eventType, "error", err)
	}
}

var _ conversation.Handoffs = (*Service)(nil)
