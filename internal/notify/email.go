package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"strings"

	"github.com/wolfman30/agentdesk/pkg/logging"
)

const defaultFromName = "AgentDesk"

// EmailSender delivers one email.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// Address is a mailbox with an optional display name.
type Address struct {
	Name  string
	Email string
}

func (a Address) String() string {
	if a.Name == "" {
		return a.Email
	}
	return fmt.Sprintf("%q <%s>", a.Name, a.Email)
}

// EmailMessage is provider neutral. Tags end up as SendGrid custom args or
// SES message tags.
type EmailMessage struct {
	To      Address
	Subject string
	Text    string
	HTML    string
	Tags    map[string]string
}

// ChainSender tries each sender in order until one succeeds.
type ChainSender struct {
	senders []EmailSender
	logger  *logging.Logger
}

func NewChainSender(logger *logging.Logger, senders ...EmailSender) *ChainSender {
	if logger == nil {
		logger = logging.Default()
	}
	c := &ChainSender{logger: logger}
	for _, s := range senders {
		if s != nil {
			c.senders = append(c.senders, s)
		}
	}
	return c
}

// Len reports how many senders are configured.
func (c *ChainSender) Len() int { return len(c.senders) }

func (c *ChainSender) Send(ctx context.Context, msg EmailMessage) error {
	if len(c.senders) == 0 {
		return errors.New("notify: no email sender configured")
	}
	var errs []error
	for i, s := range c.senders {
		err := s.Send(ctx, msg)
		if err == nil {
			return nil
		}
		errs = append(errs, err)
		if i < len(c.senders)-1 {
			c.logger.Warn("email sender failed, trying next", "error", err, "sender", fmt.Sprintf("%T", s))
		}
	}
	return errors.Join(errs...)
}

// LogSender writes emails to the log. It stands in when no provider is set up.
type LogSender struct {
	logger *logging.Logger
}

func NewLogSender(logger *logging.Logger) *LogSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, msg EmailMessage) error {
	s.logger.Info("email not sent, no provider configured", "to", msg.To.Email, "subject", msg.Subject)
	return nil
}

var notificationHTML = template.Must(template.New("notification").Parse(`<!doctype html>
<html><body style="font-family:sans-serif;color:#1f2933">
<h2 style="margin:0 0 12px">{{.Title}}</h2>
{{range .Paragraphs}}<p>{{.}}</p>
{{end}}{{if .Link}}<p><a href="{{.Link}}" style="display:inline-block;padding:8px 16px;background:#2563eb;color:#fff;text-decoration:none;border-radius:4px">Open in AgentDesk</a></p>
{{end}}<p style="color:#7b8794;font-size:12px">Change which emails you receive under notification preferences.</p>
</body></html>`))

// notificationEmail renders n for email. link is absolute or empty.
func notificationEmail(n Notification, to Address, link string) (EmailMessage, error) {
	text := strings.TrimSpace(n.Body)
	if link != "" {
		text = strings.TrimSpace(text + "\n\n" + link)
	}
	var html bytes.Buffer
	err := notificationHTML.Execute(&html, struct {
		Title      string
		Paragraphs []string
		Link       string
	}{
		Title:      n.Title,
		Paragraphs: strings.Split(strings.TrimSpace(n.Body), "\n\n"),
		Link:       link,
	})
	if err != nil {
		return EmailMessage{}, fmt.Errorf("notify: render email: %w", err)
	}
	return EmailMessage{
		To:      to,
		Subject: n.Title,
		Text:    text,
		HTML:    html.String(),
		Tags: map[string]string{
			"notification_id":   n.ID,
			"notification_type": string(n.Type),
		},
	}, nil
}
