package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/agentdesk/internal/agents"
	"github.com/wolfman30/agentdesk/internal/auth"
	"github.com/wolfman30/agentdesk/internal/bant"
	"github.com/wolfman30/agentdesk/internal/events"
	"github.com/wolfman30/agentdesk/internal/leads"
	"github.com/wolfman30/agentdesk/internal/llm"
	"github.com/wolfman30/agentdesk/internal/notify"
	"github.com/wolfman30/agentdesk/internal/observability/metrics"
	"github.com/wolfman30/agentdesk/internal/usage"
	"github.com/wolfman30/agentdesk/pkg/logging"
)

const (
	maxHistoryTurns    = 20
	defaultMaxTokens   = 1024
	visitorHandoffNote = "visitor asked for a human"
	transcriptLimit    = 60
)

// AgentSource resolves the agent a chat is addressed to.
type AgentSource interface {
	Get(ctx context.Context, orgID, id string) (*agents.Agent, error)
}

// Handoffs is the handoff state machine as seen from chat.
type Handoffs interface {
	// WantsHuman reports whether a visitor message asks for a person.
	WantsHuman(text string) bool
	RequestFromChat(ctx context.Context, orgID, conversationID, reason string) error
}

// Notifier delivers in-app and email notifications.
type Notifier interface {
	NotifyUser(ctx context.Context, orgID, userID string, tmpl notify.Template) error
	NotifyUsers(ctx context.Context, orgID string, roles []auth.Role, tmpl notify.Template) (int, error)
}

// QualificationQueue schedules LLM extraction jobs.
type QualificationQueue interface {
	EnqueueQualification(ctx context.Context, job QualificationJob) (string, error)
}

// Deps wires the collaborators of Service. Store, Agents, LLM and Leads are
// required; everything else is optional.
type Deps struct {
	Store     Store
	Agents    AgentSource
	LLM       llm.Client
	Detector  *bant.Detector
	Extractor *bant.Extractor
	Leads     *leads.Service
	History   HistoryCache
	Usage     usage.Recorder
	Events    events.Emitter
	Notifier  Notifier
	Handoffs  Handoffs
	Queue     QualificationQueue
	Metrics   *metrics.ChatMetrics

	// InlineQualification runs extraction during the chat request instead of
	// enqueueing it.
	InlineQualification bool
	MaxTokens           int32
}

// Service runs the chat pipeline: persistence, BANT detection, reply
// generation and lead sync.
type Service struct {
	Deps
	logger *logging.Logger
	now    func() time.Time
}

func NewService(deps Deps, logger *logging.Logger) *Service {
	if deps.Store == nil || deps.Agents == nil || deps.LLM == nil || deps.Leads == nil {
		panic("conversation: store, agents, llm and leads are required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if deps.Detector == nil {
		deps.Detector = bant.NewDetector(logger)
	}
	if deps.MaxTokens <= 0 {
		deps.MaxTokens = defaultMaxTokens
	}
	return &Service{
		Deps:   deps,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Chat handles one visitor message end to end.
func (s *Service) Chat(ctx context.Context, orgID string, req ChatRequest) (*ChatResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	text := strings.TrimSpace(req.Message)

	agent, err := s.Agents.Get(ctx, orgID, req.AgentID)
	if errors.Is(err, agents.ErrNotFound) {
		return nil, ErrUnknownAgent
	}
	if err != nil {
		return nil, fmt.Errorf("conversation: load agent: %w", err)
	}

	conv, isNew, err := s.loadOrCreate(ctx, orgID, req)
	if err != nil {
		return nil, err
	}
	logger := s.logger.With("org_id", orgID, "conversation_id", conv.ID, "agent_id", agent.ID)

	history, cached := s.promptHistory(ctx, conv, req.History, isNew)
	lastAssistant := lastAssistantTurn(history)

	userMsg := &Message{ConversationID: conv.ID, Role: RoleUser, Content: text, SenderID: req.UserID}
	if err := s.Store.AppendMessage(ctx, orgID, userMsg); err != nil {
		return nil, fmt.Errorf("conversation: store message: %w", err)
	}
	s.Metrics.ObserveMessage(string(RoleUser), string(conv.Mode))

	signals := s.Detector.Analyze(ctx, lastAssistant, text)
	memory, _ := s.mergeSignals(ctx, logger, conv, signals)

	contact := extractContact(text)
	if contact.Name == "" {
		contact.Name = strings.TrimSpace(req.VisitorName)
	}

	requested := false
	if agent.HandoffEnabled && conv.Mode == ModeAI && s.Handoffs != nil && s.Handoffs.WantsHuman(text) {
		if err := s.Handoffs.RequestFromChat(ctx, orgID, conv.ID, visitorHandoffNote); err != nil {
			logger.Warn("handoff request from chat failed", "error", err)
		} else {
			conv.Mode = ModePendingHuman
			requested = true
		}
	}

	resp := &ChatResponse{ConversationID: conv.ID, Mode: conv.Mode}

	if conv.Mode.HumanActive() {
		resp.HandoffActive = true
		if !requested {
			s.alertOperators(ctx, logger, conv, text)
		}
	} else {
		reply, err := s.reply(ctx, agent, conv, memory, history, text)
		if err != nil {
			logger.Error("chat reply failed", "error", err)
			return nil, err
		}
		resp.Response = reply.Text
		turns := []llm.Message{{Role: llm.RoleUser, Content: text}, {Role: llm.RoleAssistant, Content: reply.Text}}
		if !cached {
			turns = append(append([]llm.Message{}, history...), turns...)
		}
		s.cacheTurns(ctx, logger, conv.ID, turns)
	}

	if lead := s.syncLead(ctx, logger, conv, agent, memory, contact); lead != nil {
		resp.LeadID = lead.ID
		resp.LeadStatus = string(lead.Status)
	}

	if agent.QualificationEnabled {
		if updated := s.scheduleQualification(ctx, logger, QualificationJob{OrgID: orgID, ConversationID: conv.ID, AgentID: agent.ID}); updated != nil {
			memory = updated.BANT
			if updated.LeadID != "" {
				resp.LeadID = updated.LeadID
				resp.LeadStatus = updated.LeadStatus
			}
		}
	}

	resp.BANT = memory
	resp.Signals = signals
	return resp, nil
}

func (s *Service) loadOrCreate(ctx context.Context, orgID string, req ChatRequest) (*Conversation, bool, error) {
	if id := strings.TrimSpace(req.ConversationID); id != "" {
		conv, err := s.Store.Get(ctx, orgID, id)
		if err != nil {
			return nil, false, err
		}
		if conv.AgentID != req.AgentID {
			return nil, false, ErrAgentMismatch
		}
		return conv, false, nil
	}
	conv := &Conversation{
		OrgID:       orgID,
		AgentID:     req.AgentID,
		UserID:      strings.TrimSpace(req.UserID),
		VisitorName: strings.TrimSpace(req.VisitorName),
		Mode:        ModeAI,
	}
	if err := s.Store.Create(ctx, conv); err != nil {
		return nil, false, fmt.Errorf("conversation: create: %w", err)
	}
	return conv, true, nil
}

// promptHistory returns prior turns from the cache, the client-supplied
// history or the store, in that order. cached is true when the turns came
// from the cache.
func (s *Service) promptHistory(ctx context.Context, conv *Conversation, supplied []HistoryTurn, isNew bool) ([]llm.Message, bool) {
	if s.History != nil && !isNew {
		turns, ok, err := s.History.Load(ctx, conv.ID)
		if err != nil {
			s.logger.Warn("history cache load failed", "error", err, "conversation_id", conv.ID)
		} else if ok {
			return tail(turns, maxHistoryTurns), true
		}
	}
	if len(supplied) > 0 {
		turns := make([]llm.Message, 0, len(supplied))
		for _, t := range supplied {
			role := strings.ToLower(strings.TrimSpace(t.Role))
			content := strings.TrimSpace(t.Content)
			if content == "" || (role != llm.RoleUser && role != llm.RoleAssistant) {
				continue
			}
			turns = append(turns, llm.Message{Role: role, Content: content})
		}
		return tail(turns, maxHistoryTurns), false
	}
	if isNew {
		return nil, false
	}
	msgs, err := s.Store.Messages(ctx, conv.OrgID, conv.ID, maxHistoryTurns)
	if err != nil {
		s.logger.Warn("history load failed", "error", err, "conversation_id", conv.ID)
		return nil, false
	}
	return promptTurns(msgs), false
}

// promptTurns maps stored messages onto model roles. Operator replies read as
// assistant turns; system notes are dropped.
func promptTurns(msgs []Message) []llm.Message {
	out := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case RoleUser:
			out = append(out, llm.Message{Role: llm.RoleUser, Content: m.Content})
		case RoleAssistant, RoleOperator:
			out = append(out, llm.Message{Role: llm.RoleAssistant, Content: m.Content})
		}
	}
	return out
}

func tail(turns []llm.Message, n int) []llm.Message {
	if len(turns) > n {
		return turns[len(turns)-n:]
	}
	return turns
}

func lastAssistantTurn(turns []llm.Message) string {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == llm.RoleAssistant {
			return turns[i].Content
		}
	}
	return ""
}

// mergeSignals merges in the store so that overlapping chat turns and
// qualification jobs never overwrite each other. It always refreshes
// conv.BANT from the stored memory.
func (s *Service) mergeSignals(ctx context.Context, logger *logging.Logger, conv *Conversation, signals []bant.Signal) (bant.Memory, []bant.Dimension) {
	memory, changed, err := s.Store.MergeBANT(ctx, conv.OrgID, conv.ID, signals, s.now())
	if err != nil {
		logger.Error("failed to merge bant memory", "error", err)
		return conv.BANT, nil
	}
	conv.BANT = memory
	if len(changed) == 0 {
		return memory, nil
	}
	for _, sig := range signals {
		for _, d := range changed {
			if sig.Dimension == d {
				s.Metrics.ObserveBANTSignal(string(sig.Dimension), string(sig.Source))
			}
		}
	}
	logger.Debug("bant memory updated", "changed", changed)
	return memory, changed
}

func (s *Service) reply(ctx context.Context, agent *agents.Agent, conv *Conversation, memory bant.Memory, history []llm.Message, text string) (llm.Response, error) {
	system := make([]string, 0, 3)
	for _, part := range []string{agent.SystemPrompt, agent.KnowledgePrompt()} {
		if strings.TrimSpace(part) != "" {
			system = append(system, part)
		}
	}
	if agent.QualificationEnabled {
		if guidance := bant.GuidancePrompt(memory); guidance != "" {
			system = append(system, guidance)
		}
	}
	messages := append(append([]llm.Message{}, history...), llm.Message{Role: llm.RoleUser, Content: text})

	start := time.Now()
	resp, err := s.LLM.Complete(ctx, llm.Request{
		Model:       agent.Model,
		System:      system,
		Messages:    messages,
		MaxTokens:   s.MaxTokens,
		Temperature: agent.Temperature,
	})
	s.Metrics.ObserveLLM(string(usage.PurposeChat), time.Since(start).Seconds(), err)
	if err != nil {
		return llm.Response{}, fmt.Errorf("%w: %v", ErrReplyFailed, err)
	}
	s.Metrics.ObserveTokens(string(usage.PurposeChat), resp.Usage.InputTokens, resp.Usage.OutputTokens)

	msg := &Message{
		ConversationID: conv.ID,
		Role:           RoleAssistant,
		Content:        resp.Text,
		InputTokens:    resp.Usage.InputTokens,
		OutputTokens:   resp.Usage.OutputTokens,
	}
	if err := s.Store.AppendMessage(ctx, conv.OrgID, msg); err != nil {
		return llm.Response{}, fmt.Errorf("conversation: store reply: %w", err)
	}
	s.Metrics.ObserveMessage(string(RoleAssistant), string(conv.Mode))
	s.recordUsage(ctx, usage.FromResponse(conv.OrgID, agent.ID, conv.ID, usage.PurposeChat, modelName(resp, agent.Model), resp.Usage))
	return resp, nil
}

func modelName(resp llm.Response, fallback string) string {
	if resp.Model != "" {
		return resp.Model
	}
	return fallback
}

func (s *Service) recordUsage(ctx context.Context, rec usage.Record) {
	if s.Usage == nil {
		return
	}
	if err := s.Usage.Record(ctx, rec); err != nil {
		s.logger.Warn("failed to record token usage", "error", err, "org_id", rec.OrgID, "purpose", rec.Purpose)
	}
}

func (s *Service) cacheTurns(ctx context.Context, logger *logging.Logger, conversationID string, turns []llm.Message) {
	if s.History == nil {
		return
	}
	if err := s.History.Append(ctx, conversationID, turns...); err != nil {
		logger.Warn("history cache update failed", "error", err)
	}
}

// alertOperators tells the assigned operator, or the whole team while the
// handoff is unclaimed, that the visitor wrote again.
func (s *Service) alertOperators(ctx context.Context, logger *logging.Logger, conv *Conversation, text string) {
	if s.Notifier == nil {
		return
	}
	tmpl := notify.Template{
		Type:  notify.TypeNewMessage,
		Title: "New visitor message",
		Body:  truncate(text, 160),
		Link:  "/conversations/" + conv.ID,
		Data:  map[string]string{"conversationId": conv.ID},
	}
	if conv.AssignedTo != "" {
		if err := s.Notifier.NotifyUser(ctx, conv.OrgID, conv.AssignedTo, tmpl); err != nil {
			logger.Warn("operator message alert failed", "error", err)
		}
		return
	}
	if _, err := s.Notifier.NotifyUsers(ctx, conv.OrgID, auth.TeamRoles, tmpl); err != nil {
		logger.Warn("team message alert failed", "error", err)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func (s *Service) syncLead(ctx context.Context, logger *logging.Logger, conv *Conversation, agent *agents.Agent, memory bant.Memory, contact leads.Contact) *leads.Lead {
	lead, qualified, err := s.Leads.SyncFromConversation(ctx, leads.SyncInput{
		OrgID:          conv.OrgID,
		ConversationID: conv.ID,
		AgentID:        agent.ID,
		Memory:         memory,
		Contact:        contact,
	})
	if err != nil {
		logger.Error("lead sync failed", "error", err)
		return nil
	}
	if lead != nil && qualified {
		s.announceQualified(ctx, logger, lead, agent)
	}
	return lead
}

func (s *Service) announceQualified(ctx context.Context, logger *logging.Logger, lead *leads.Lead, agent *agents.Agent) {
	s.Metrics.ObserveQualifiedLead()
	qualifiedAt := s.now()
	if lead.QualifiedAt != nil {
		qualifiedAt = *lead.QualifiedAt
	}
	if s.Events != nil {
		payload := events.LeadQualifiedV1{
			LeadID:         lead.ID,
			OrgID:          lead.OrgID,
			ConversationID: lead.ConversationID,
			AgentID:        lead.AgentID,
			Score:          lead.Score,
			BANT:           leadBANT(lead),
			QualifiedAt:    qualifiedAt,
		}
		if err := s.Events.Emit(ctx, lead.OrgID, events.TypeLeadQualified, payload); err != nil {
			logger.Error("failed to emit lead qualified event", "error", err, "lead_id", lead.ID)
		}
	}
	if s.Notifier != nil {
		name := lead.Name
		if name == "" {
			name = "A visitor"
		}
		tmpl := notify.Template{
			Type:  notify.TypeLeadQualified,
			Title: "Lead qualified",
			Body:  fmt.Sprintf("%s qualified with score %d via %s.", name, lead.Score, agent.Name),
			Link:  "/leads/" + lead.ID,
			Data:  map[string]string{"leadId": lead.ID, "conversationId": lead.ConversationID},
		}
		if _, err := s.Notifier.NotifyUsers(ctx, lead.OrgID, auth.TeamRoles, tmpl); err != nil {
			logger.Warn("lead qualified notification failed", "error", err)
		}
	}
	logger.Info("lead qualified", "lead_id", lead.ID, "score", lead.Score)
}

func leadBANT(l *leads.Lead) map[string]string {
	out := map[string]string{}
	for d, v := range map[bant.Dimension]*string{
		bant.Budget:    l.Budget,
		bant.Authority: l.Authority,
		bant.Need:      l.Need,
		bant.Timeline:  l.Timeline,
	} {
		if v != nil {
			out[string(d)] = *v
		}
	}
	return out
}

// scheduleQualification enqueues an extraction job, or runs it immediately
// when configured inline. Only the inline path returns a result.
func (s *Service) scheduleQualification(ctx context.Context, logger *logging.Logger, job QualificationJob) *QualificationResult {
	if s.Extractor == nil {
		return nil
	}
	if s.InlineQualification {
		result, err := s.RunQualification(ctx, job)
		if err != nil {
			logger.Warn("inline qualification failed", "error", err)
			return nil
		}
		return result
	}
	if s.Queue == nil {
		return nil
	}
	jobID, err := s.Queue.EnqueueQualification(ctx, job)
	if err != nil {
		logger.Warn("failed to enqueue qualification", "error", err)
		return nil
	}
	logger.Debug("qualification scheduled", "job_id", jobID)
	return nil
}

// RunQualification asks the model for BANT values over the transcript and
// merges them into the conversation.
func (s *Service) RunQualification(ctx context.Context, job QualificationJob) (*QualificationResult, error) {
	if s.Extractor == nil {
		return nil, errors.New("conversation: extractor not configured")
	}
	if job.OrgID == "" || job.ConversationID == "" {
		return nil, invalid("job requires org and conversation")
	}
	conv, err := s.Store.Get(ctx, job.OrgID, job.ConversationID)
	if err != nil {
		return nil, err
	}
	logger := s.logger.With("org_id", conv.OrgID, "conversation_id", conv.ID, "job_id", job.JobID)

	msgs, err := s.Store.Messages(ctx, conv.OrgID, conv.ID, transcriptLimit)
	if err != nil {
		return nil, fmt.Errorf("conversation: load transcript: %w", err)
	}
	transcript := promptTurns(msgs)

	start := time.Now()
	signals, used, err := s.Extractor.Extract(ctx, transcript, conv.BANT)
	s.Metrics.ObserveLLM(string(usage.PurposeBANTExtraction), time.Since(start).Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("conversation: bant extraction: %w", err)
	}
	s.Metrics.ObserveTokens(string(usage.PurposeBANTExtraction), used.InputTokens, used.OutputTokens)
	if used.InputTokens > 0 || used.OutputTokens > 0 {
		s.recordUsage(ctx, usage.FromResponse(conv.OrgID, conv.AgentID, conv.ID, usage.PurposeBANTExtraction, "", used))
	}

	memory, changed := s.mergeSignals(ctx, logger, conv, signals)

	result := &QualificationResult{
		Changed:      changed,
		BANT:         memory,
		InputTokens:  used.InputTokens,
		OutputTokens: used.OutputTokens,
	}

	agent, err := s.Agents.Get(ctx, conv.OrgID, conv.AgentID)
	if err != nil {
		logger.Warn("qualification could not load agent", "error", err)
		agent = &agents.Agent{ID: conv.AgentID}
	}
	if lead := s.syncLead(ctx, logger, conv, agent, memory, leads.Contact{}); lead != nil {
		result.LeadID = lead.ID
		result.LeadStatus = string(lead.Status)
	}
	logger.Info("qualification completed", "signals", len(signals), "bant_score", memory.Score())
	return result, nil
}

// OperatorReply posts a human operator's message. The conversation must be
// in human mode.
func (s *Service) OperatorReply(ctx context.Context, orgID, conversationID, operatorID, text string) (*Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, invalid("content is required")
	}
	if len([]rune(text)) > MaxMessageLength {
		return nil, invalid("content is too long")
	}
	conv, err := s.Store.Get(ctx, orgID, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.Mode != ModeHuman {
		return nil, ErrNotHumanMode
	}
	msg := &Message{ConversationID: conv.ID, Role: RoleOperator, Content: text, SenderID: operatorID}
	if err := s.Store.AppendMessage(ctx, orgID, msg); err != nil {
		return nil, fmt.Errorf("conversation: store operator reply: %w", err)
	}
	s.Metrics.ObserveMessage(string(RoleOperator), string(conv.Mode))
	s.cacheTurns(ctx, s.logger, conv.ID, []llm.Message{{Role: llm.RoleAssistant, Content: text}})
	return msg, nil
}

// Get returns a conversation with its messages.
func (s *Service) Get(ctx context.Context, orgID, id string, limit int) (*Conversation, []Message, error) {
	conv, err := s.Store.Get(ctx, orgID, id)
	if err != nil {
		return nil, nil, err
	}
	msgs, err := s.Store.Messages(ctx, orgID, id, limit)
	if err != nil {
		return nil, nil, err
	}
	return conv, msgs, nil
}

func (s *Service) List(ctx context.Context, orgID string, filter ListFilter) ([]*Conversation, error) {
	if filter.Mode != "" && !filter.Mode.Valid() {
		return nil, invalid("unknown mode")
	}
	return s.Store.List(ctx, orgID, filter)
}
