// Package smoke drives a running API end to end: a typed client, a scenario
// runner and the built-in scenarios used by cmd/smoketest.
package smoke

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wolfman30/agentdesk/internal/admin"
	"github.com/wolfman30/agentdesk/internal/agents"
	"github.com/wolfman30/agentdesk/internal/auth"
	"github.com/wolfman30/agentdesk/internal/conversation"
	"github.com/wolfman30/agentdesk/internal/handoff"
	"github.com/wolfman30/agentdesk/internal/leads"
	"github.com/wolfman30/agentdesk/internal/notify"
)

// APIError is a non-2xx response.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, strings.TrimSpace(e.Body))
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// Client calls the API with a bearer token once logged in.
type Client struct {
	baseURL string
	http    *http.Client
	token   string
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) Token() string { return c.token }

func (c *Client) SetToken(token string) { c.token = token }

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("smoke: encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(data)
	}
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("smoke: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("smoke: read %s: %w", req.URL.Path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Status: resp.StatusCode, Body: string(data)}
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("smoke: decode %s: %w", req.URL.Path, err)
	}
	return nil
}

// HealthStatus is the /health payload.
type HealthStatus struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	var out HealthStatus
	err := c.doJSON(ctx, http.MethodGet, "/health", nil, &out)
	return &out, err
}

// Login stores the returned token on the client.
func (c *Client) Login(ctx context.Context, email, password string) (*auth.LoginResult, error) {
	var out auth.LoginResult
	in := map[string]string{"email": email, "password": password}
	if err := c.doJSON(ctx, http.MethodPost, "/api/auth/login", in, &out); err != nil {
		return nil, err
	}
	c.token = out.Token
	return &out, nil
}

func (c *Client) Me(ctx context.Context) (*auth.User, error) {
	var out auth.User
	if err := c.doJSON(ctx, http.MethodGet, "/api/auth/me", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListAgents(ctx context.Context) ([]*agents.Agent, error) {
	var out struct {
		Agents []*agents.Agent `json:"agents"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/agents", nil, &out); err != nil {
		return nil, err
	}
	return out.Agents, nil
}

func (c *Client) CreateAgent(ctx context.Context, in agents.CreateInput) (*agents.Agent, error) {
	var out agents.Agent
	if err := c.doJSON(ctx, http.MethodPost, "/api/agents", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// File is a knowledge upload for CreateAgentWithFiles.
type File struct {
	Name    string
	Content []byte
}

// CreateAgentWithFiles posts the multipart form variant of agent creation.
func (c *Client) CreateAgentWithFiles(ctx context.Context, fields map[string]string, files []File) (*agents.Agent, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, err
		}
	}
	for _, f := range files {
		part, err := mw.CreateFormFile("files", f.Name)
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(f.Content); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/agents/create", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	var out agents.Agent
	if err := c.send(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Chat(ctx context.Context, in conversation.ChatRequest) (*conversation.ChatResponse, error) {
	var out conversation.ChatResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/chat", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetConversation(ctx context.Context, id string) (*conversation.Conversation, []conversation.Message, error) {
	var out struct {
		Conversation *conversation.Conversation `json:"conversation"`
		Messages     []conversation.Message     `json:"messages"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/conversations/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, nil, err
	}
	return out.Conversation, out.Messages, nil
}

// Transition is the response of the handoff endpoints.
type Transition struct {
	ConversationID string            `json:"conversationId"`
	Mode           conversation.Mode `json:"mode"`
	Handoff        *handoff.Handoff  `json:"handoff,omitempty"`
}

func (c *Client) transition(ctx context.Context, id, action string, in any) (*Transition, error) {
	var out Transition
	path := "/api/conversations/" + url.PathEscape(id) + "/" + action
	if err := c.doJSON(ctx, http.MethodPost, path, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) RequestHandoff(ctx context.Context, conversationID, reason string) (*Transition, error) {
	return c.transition(ctx, conversationID, "request-handoff", map[string]string{"reason": reason})
}

func (c *Client) AcceptHandoff(ctx context.Context, conversationID string) (*Transition, error) {
	return c.transition(ctx, conversationID, "accept-handoff", nil)
}

func (c *Client) TransferToAI(ctx context.Context, conversationID string) (*Transition, error) {
	return c.transition(ctx, conversationID, "transfer-to-ai", nil)
}

func (c *Client) ListLeads(ctx context.Context, conversationID string) ([]*leads.Lead, error) {
	path := "/api/leads"
	if conversationID != "" {
		path += "?conversationId=" + url.QueryEscape(conversationID)
	}
	var out leads.ListLeadsResponse
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Leads, nil
}

func (c *Client) Preferences(ctx context.Context) (*notify.Preferences, error) {
	var out notify.Preferences
	if err := c.doJSON(ctx, http.MethodGet, "/api/notifications/preferences", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdatePreferences(ctx context.Context, prefs notify.Preferences) (*notify.Preferences, error) {
	var out notify.Preferences
	if err := c.doJSON(ctx, http.MethodPut, "/api/notifications/preferences", prefs, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SendTestNotification(ctx context.Context) (*notify.Notification, error) {
	var out notify.Notification
	if err := c.doJSON(ctx, http.MethodPost, "/api/notifications/test", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListNotifications(ctx context.Context) ([]notify.Notification, int, error) {
	var out struct {
		Notifications []notify.Notification `json:"notifications"`
		Unread        int                   `json:"unread"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/notifications", nil, &out); err != nil {
		return nil, 0, err
	}
	return out.Notifications, out.Unread, nil
}

// Event is one server-sent event.
type Event struct {
	Name string
	ID   string
	Data []byte
}

// Stream reads /api/notifications/stream and calls fn for each event until fn
// returns false, the stream ends or ctx is done.
func (c *Client) Stream(ctx context.Context, fn func(Event) bool) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/notifications/stream", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	// The shared client's timeout would cut the stream; ctx bounds it instead.
	stream := &http.Client{Transport: c.http.Transport}
	resp, err := stream.Do(req)
	if err != nil {
		return fmt.Errorf("smoke: open stream: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return &APIError{Status: resp.StatusCode, Body: string(data)}
	}

	scanner := bufio.NewScanner(resp.Body)
	var evt Event
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if evt.Name != "" || len(evt.Data) > 0 {
				if !fn(evt) {
					return nil
				}
			}
			evt = Event{}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			evt.Name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "id:"):
			evt.ID = strings.TrimSpace(strings.TrimPrefix(line, "id:"))
		case strings.HasPrefix(line, "data:"):
			evt.Data = append(evt.Data, strings.TrimSpace(strings.TrimPrefix(line, "data:"))...)
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("smoke: read stream: %w", err)
	}
	return ctx.Err()
}

func (c *Client) ListUsers(ctx context.Context) ([]admin.UserSummary, error) {
	var out struct {
		Users []admin.UserSummary `json:"users"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/admin/users", nil, &out); err != nil {
		return nil, err
	}
	return out.Users, nil
}

func (c *Client) ListTeamMembers(ctx context.Context) ([]admin.TeamMember, error) {
	var out struct {
		Members []admin.TeamMember `json:"members"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/admin/team/members", nil, &out); err != nil {
		return nil, err
	}
	return out.Members, nil
}

func (c *Client) Stats(ctx context.Context) (*admin.StatsResponse, error) {
	var out admin.StatsResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/admin/stats", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
