package smoke

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/wolfman30/agentdesk/internal/agents"
	"github.com/wolfman30/agentdesk/internal/bant"
	"github.com/wolfman30/agentdesk/internal/conversation"
	"github.com/wolfman30/agentdesk/internal/leads"
	"github.com/wolfman30/agentdesk/internal/notify"
)

// Scenarios returns the built-in scenarios in run order.
func Scenarios() []Scenario {
	return []Scenario{
		{Name: "health", Description: "health endpoint reports ok", Run: runHealth},
		{Name: "login", Description: "sign in and load the current user", Run: runLogin},
		{Name: "agents", Description: "list agents, create one from JSON and one with a knowledge file", Run: runAgents},
		{Name: "chat", Description: "two chat turns share a conversation", Run: runChat},
		{Name: "bant", Description: "qualification signals reach the lead record", Run: runBANT},
		{Name: "handoff", Description: "handoff suppresses the agent until transfer back", Run: runHandoff},
		{Name: "notifications", Description: "preferences, test notification and live stream", Run: runNotifications},
		{Name: "admin", Description: "users and team members", Run: runAdmin},
	}
}

// Select returns the named scenarios in run order. An empty list selects all.
func Select(names []string) ([]Scenario, error) {
	all := Scenarios()
	if len(names) == 0 {
		return all, nil
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[strings.ToLower(strings.TrimSpace(n))] = true
	}
	var out []Scenario
	for _, sc := range all {
		if want[sc.Name] {
			out = append(out, sc)
			delete(want, sc.Name)
		}
	}
	if len(want) > 0 {
		unknown := make([]string, 0, len(want))
		for n := range want {
			unknown = append(unknown, n)
		}
		return nil, fmt.Errorf("unknown scenario(s): %s", strings.Join(unknown, ", "))
	}
	return out, nil
}

func runHealth(ctx context.Context, env *Env) error {
	h, err := env.Client.Health(ctx)
	if err != nil {
		return err
	}
	if h.Status != "ok" {
		return fmt.Errorf("health status %q: %v", h.Status, h.Checks)
	}
	return nil
}

// ensureLogin lets scenarios run on their own.
func ensureLogin(ctx context.Context, env *Env) error {
	if env.Client.Token() != "" {
		return nil
	}
	if env.Email == "" || env.Password == "" {
		return Skip("no credentials configured")
	}
	res, err := env.Client.Login(ctx, env.Email, env.Password)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if res.User != nil {
		env.State.UserID = res.User.ID
	}
	return nil
}

func runLogin(ctx context.Context, env *Env) error {
	env.Client.SetToken("")
	if err := ensureLogin(ctx, env); err != nil {
		return err
	}
	me, err := env.Client.Me(ctx)
	if err != nil {
		return fmt.Errorf("me: %w", err)
	}
	if !strings.EqualFold(me.Email, env.Email) {
		return fmt.Errorf("me returned %q, want %q", me.Email, env.Email)
	}
	env.State.UserID = me.ID
	return nil
}

// ensureAgent reuses the run's agent or creates one.
func ensureAgent(ctx context.Context, env *Env) (string, error) {
	if err := ensureLogin(ctx, env); err != nil {
		return "", err
	}
	if env.State.AgentID != "" {
		return env.State.AgentID, nil
	}
	agent, err := env.Client.CreateAgent(ctx, smokeAgentInput())
	if err != nil {
		return "", fmt.Errorf("create agent: %w", err)
	}
	env.State.AgentID = agent.ID
	return agent.ID, nil
}

func smokeAgentInput() agents.CreateInput {
	return agents.CreateInput{
		Name:         fmt.Sprintf("Smoke agent %d", time.Now().Unix()),
		Description:  "Created by the smoke suite",
		SystemPrompt: "You are a friendly sales assistant. Ask about budget, authority, need and timeline.",
		Greeting:     "Hi! How can I help?",
	}
}

func runAgents(ctx context.Context, env *Env) error {
	if err := ensureLogin(ctx, env); err != nil {
		return err
	}
	before, err := env.Client.ListAgents(ctx)
	if err != nil {
		return fmt.Errorf("list agents: %w", err)
	}

	created, err := env.Client.CreateAgent(ctx, smokeAgentInput())
	if err != nil {
		return fmt.Errorf("create agent: %w", err)
	}
	if created.ID == "" || !created.HandoffEnabled {
		return fmt.Errorf("unexpected agent: %+v", created)
	}
	env.State.AgentID = created.ID

	withFile, err := env.Client.CreateAgentWithFiles(ctx, map[string]string{
		"name":         "Smoke agent with knowledge",
		"systemPrompt": "Answer from the attached FAQ.",
	}, []File{{Name: "faq.md", Content: []byte("# FAQ\n\nWe ship worldwide.\n")}})
	if err != nil {
		return fmt.Errorf("create agent with files: %w", err)
	}
	if len(withFile.KnowledgeFiles) != 1 {
		return fmt.Errorf("expected 1 knowledge file, got %d", len(withFile.KnowledgeFiles))
	}

	after, err := env.Client.ListAgents(ctx)
	if err != nil {
		return fmt.Errorf("list agents: %w", err)
	}
	if len(after) < len(before)+2 {
		return fmt.Errorf("expected at least %d agents, got %d", len(before)+2, len(after))
	}
	return nil
}

func runChat(ctx context.Context, env *Env) error {
	agentID, err := ensureAgent(ctx, env)
	if err != nil {
		return err
	}
	first, err := env.Client.Chat(ctx, conversation.ChatRequest{AgentID: agentID, Message: "Hello, what can you do?"})
	if err != nil {
		return fmt.Errorf("first turn: %w", err)
	}
	if first.ConversationID == "" || strings.TrimSpace(first.Response) == "" {
		return fmt.Errorf("first turn returned no reply: %+v", first)
	}
	second, err := env.Client.Chat(ctx, conversation.ChatRequest{
		AgentID:        agentID,
		ConversationID: first.ConversationID,
		Message:        "Tell me more about pricing.",
	})
	if err != nil {
		return fmt.Errorf("second turn: %w", err)
	}
	if second.ConversationID != first.ConversationID {
		return fmt.Errorf("conversation changed from %s to %s", first.ConversationID, second.ConversationID)
	}
	env.State.ConversationID = first.ConversationID

	_, msgs, err := env.Client.GetConversation(ctx, first.ConversationID)
	if err != nil {
		return fmt.Errorf("load conversation: %w", err)
	}
	if len(msgs) < 4 {
		return fmt.Errorf("expected at least 4 stored messages, got %d", len(msgs))
	}
	return nil
}

// remoteBANTCases are single-message cases that do not depend on a prior
// assistant question.
func remoteBANTCases() []bant.Case {
	var out []bant.Case
	for _, c := range bant.Cases() {
		if c.LastAssistant == "" && len(c.Expect) > 0 {
			out = append(out, c)
		}
	}
	return out
}

func runBANT(ctx context.Context, env *Env) error {
	agentID, err := ensureAgent(ctx, env)
	if err != nil {
		return err
	}
	var failures []string
	for _, c := range remoteBANTCases() {
		resp, err := env.Client.Chat(ctx, conversation.ChatRequest{AgentID: agentID, Message: c.Message})
		if err != nil {
			return fmt.Errorf("%s: chat: %w", c.Name, err)
		}
		found, err := env.Client.ListLeads(ctx, resp.ConversationID)
		if err != nil {
			return fmt.Errorf("%s: list leads: %w", c.Name, err)
		}
		if len(found) == 0 {
			failures = append(failures, c.Name+": no lead created")
			continue
		}
		for dim := range c.Expect {
			if resp.BANT.Get(dim) == nil {
				failures = append(failures, fmt.Sprintf("%s: %s not detected", c.Name, dim))
			}
			if leadValue(found[0], dim) == nil {
				failures = append(failures, fmt.Sprintf("%s: lead %s empty", c.Name, dim))
			}
		}
	}
	if len(failures) > 0 {
		return errors.New(strings.Join(failures, "; "))
	}
	return nil
}

func leadValue(l *leads.Lead, d bant.Dimension) *string {
	switch d {
	case bant.Budget:
		return l.Budget
	case bant.Authority:
		return l.Authority
	case bant.Need:
		return l.Need
	case bant.Timeline:
		return l.Timeline
	}
	return nil
}

func runHandoff(ctx context.Context, env *Env) error {
	agentID, err := ensureAgent(ctx, env)
	if err != nil {
		return err
	}
	start, err := env.Client.Chat(ctx, conversation.ChatRequest{AgentID: agentID, Message: "Hi there"})
	if err != nil {
		return fmt.Errorf("start conversation: %w", err)
	}
	convID := start.ConversationID

	tr, err := env.Client.RequestHandoff(ctx, convID, "smoke test")
	if err != nil {
		return fmt.Errorf("request handoff: %w", err)
	}
	if tr.Mode != conversation.ModePendingHuman {
		return fmt.Errorf("after request mode is %s", tr.Mode)
	}
	if _, err := env.Client.RequestHandoff(ctx, convID, "again"); !IsStatus(err, http.StatusConflict) {
		return fmt.Errorf("duplicate request: expected 409, got %v", err)
	}

	held, err := env.Client.Chat(ctx, conversation.ChatRequest{AgentID: agentID, ConversationID: convID, Message: "Anyone there?"})
	if err != nil {
		return fmt.Errorf("chat during handoff: %w", err)
	}
	if held.Response != "" || !held.HandoffActive {
		return fmt.Errorf("agent answered during handoff: %q", held.Response)
	}

	tr, err = env.Client.TransferToAI(ctx, convID)
	if err != nil {
		return fmt.Errorf("transfer to ai: %w", err)
	}
	if tr.Mode != conversation.ModeAI {
		return fmt.Errorf("after transfer mode is %s", tr.Mode)
	}

	back, err := env.Client.Chat(ctx, conversation.ChatRequest{AgentID: agentID, ConversationID: convID, Message: "Thanks, back to you."})
	if err != nil {
		return fmt.Errorf("chat after transfer: %w", err)
	}
	if strings.TrimSpace(back.Response) == "" {
		return errors.New("agent did not answer after transfer")
	}
	return nil
}

func runNotifications(ctx context.Context, env *Env) error {
	if err := ensureLogin(ctx, env); err != nil {
		return err
	}
	prefs, err := env.Client.Preferences(ctx)
	if err != nil {
		return fmt.Errorf("get preferences: %w", err)
	}
	update := *prefs
	update.InApp = true
	if _, err := env.Client.UpdatePreferences(ctx, update); err != nil {
		return fmt.Errorf("update preferences: %w", err)
	}

	streamCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	ready := make(chan struct{})
	received := make(chan notify.Notification, 1)
	streamErr := make(chan error, 1)
	go func() {
		streamErr <- env.Client.Stream(streamCtx, func(evt Event) bool {
			switch evt.Name {
			case "ready":
				close(ready)
			case "notification":
				var n notify.Notification
				if err := json.Unmarshal(evt.Data, &n); err == nil {
					received <- n
					return false
				}
			}
			return true
		})
	}()

	select {
	case <-ready:
	case err := <-streamErr:
		return fmt.Errorf("stream closed before ready: %v", err)
	case <-streamCtx.Done():
		return errors.New("stream never became ready")
	}

	sent, err := env.Client.SendTestNotification(ctx)
	if err != nil {
		return fmt.Errorf("send test: %w", err)
	}

	select {
	case n := <-received:
		if n.ID != sent.ID {
			return fmt.Errorf("stream delivered %s, want %s", n.ID, sent.ID)
		}
	case <-streamCtx.Done():
		return errors.New("test notification not streamed")
	}

	list, _, err := env.Client.ListNotifications(ctx)
	if err != nil {
		return fmt.Errorf("list notifications: %w", err)
	}
	for _, n := range list {
		if n.ID == sent.ID {
			return nil
		}
	}
	return fmt.Errorf("notification %s missing from list", sent.ID)
}

func runAdmin(ctx context.Context, env *Env) error {
	if err := ensureLogin(ctx, env); err != nil {
		return err
	}
	users, err := env.Client.ListUsers(ctx)
	if IsStatus(err, http.StatusServiceUnavailable) {
		return Skip("admin endpoints need a database")
	}
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}
	found := false
	for _, u := range users {
		if strings.EqualFold(u.Email, env.Email) {
			found = true
		}
	}
	if !found {
		return fmt.Errorf("%s not in user list", env.Email)
	}
	if _, err := env.Client.ListTeamMembers(ctx); err != nil {
		return fmt.Errorf("list team members: %w", err)
	}
	if _, err := env.Client.Stats(ctx); err != nil {
		return fmt.Errorf("stats: %w", err)
	}
	return nil
}
