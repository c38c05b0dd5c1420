package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/wolfman30/agentdesk/internal/auth"
	"github.com/wolfman30/agentdesk/pkg/logging"
)

// Directory resolves notification recipients.
type Directory interface {
	GetUser(ctx context.Context, orgID, id string) (*auth.User, error)
	ListUsers(ctx context.Context, orgID string, roles ...auth.Role) ([]*auth.User, error)
}

// Service stores notifications, pushes them live and emails them according to
// each recipient's preferences.
type Service struct {
	store       Store
	broadcaster Broadcaster
	email       EmailSender
	directory   Directory
	baseURL     string
	logger      *logging.Logger
}

func NewService(store Store, broadcaster Broadcaster, email EmailSender, directory Directory, baseURL string, logger *logging.Logger) *Service {
	if store == nil {
		panic("notify: store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		store:       store,
		broadcaster: broadcaster,
		email:       email,
		directory:   directory,
		baseURL:     strings.TrimRight(baseURL, "/"),
		logger:      logger,
	}
}

// Notify delivers n to its user. It reports false when the user's
// preferences filtered it out.
func (s *Service) Notify(ctx context.Context, n *Notification) (bool, error) {
	if n.OrgID == "" || n.UserID == "" {
		return false, ErrMissingOwner
	}
	prefs, err := s.store.GetPreferences(ctx, n.UserID)
	if err != nil {
		return false, err
	}
	if !prefs.Allows(n.Type) {
		return false, nil
	}
	if prefs.InApp {
		if err := s.deliverInApp(ctx, n); err != nil {
			return false, err
		}
	}
	if prefs.Email {
		s.sendEmail(ctx, *n)
	}
	return prefs.InApp || prefs.Email, nil
}

// NotifyUser builds the template for one user and delivers it.
func (s *Service) NotifyUser(ctx context.Context, orgID, userID string, tmpl Template) error {
	n, err := tmpl.build(orgID, userID)
	if err != nil {
		return fmt.Errorf("notify: build notification: %w", err)
	}
	_, err = s.Notify(ctx, &n)
	return err
}

// NotifyUsers sends the template to every org user holding one of roles and
// returns how many accepted it. Per-user failures are logged.
func (s *Service) NotifyUsers(ctx context.Context, orgID string, roles []auth.Role, tmpl Template) (int, error) {
	if s.directory == nil {
		return 0, nil
	}
	users, err := s.directory.ListUsers(ctx, orgID, roles...)
	if err != nil {
		return 0, fmt.Errorf("notify: resolve recipients: %w", err)
	}
	sent := 0
	for _, u := range users {
		if u.ID == tmpl.ExcludeUserID {
			continue
		}
		n, err := tmpl.build(orgID, u.ID)
		if err != nil {
			return sent, fmt.Errorf("notify: build notification: %w", err)
		}
		ok, err := s.Notify(ctx, &n)
		if err != nil {
			s.logger.Warn("notification failed", "error", err, "user_id", u.ID, "type", tmpl.Type)
			continue
		}
		if ok {
			sent++
		}
	}
	return sent, nil
}

// SendTest stores and pushes a test notification regardless of preferences.
func (s *Service) SendTest(ctx context.Context, orgID, userID string) (*Notification, error) {
	n := &Notification{
		OrgID:  orgID,
		UserID: userID,
		Type:   TypeTest,
		Title:  "Test notification",
		Body:   "Notifications are working.",
	}
	if err := s.deliverInApp(ctx, n); err != nil {
		return nil, err
	}
	return n, nil
}

func (s *Service) List(ctx context.Context, orgID, userID string, opts ListOptions) ([]Notification, int, error) {
	items, err := s.store.List(ctx, orgID, userID, opts)
	if err != nil {
		return nil, 0, err
	}
	unread, err := s.store.CountUnread(ctx, orgID, userID)
	if err != nil {
		return nil, 0, err
	}
	return items, unread, nil
}

func (s *Service) MarkRead(ctx context.Context, orgID, userID, id string) error {
	return s.store.MarkRead(ctx, orgID, userID, id)
}

func (s *Service) MarkAllRead(ctx context.Context, orgID, userID string) (int, error) {
	return s.store.MarkAllRead(ctx, orgID, userID)
}

func (s *Service) Preferences(ctx context.Context, userID string) (Preferences, error) {
	return s.store.GetPreferences(ctx, userID)
}

func (s *Service) UpdatePreferences(ctx context.Context, prefs Preferences) (Preferences, error) {
	return s.store.SavePreferences(ctx, prefs)
}

func (s *Service) deliverInApp(ctx context.Context, n *Notification) error {
	if err := s.store.Insert(ctx, n); err != nil {
		return err
	}
	if s.broadcaster == nil {
		return nil
	}
	if err := s.broadcaster.Publish(ctx, *n); err != nil {
		s.logger.Warn("live notification push failed", "error", err, "notification_id", n.ID, "user_id", n.UserID)
	}
	return nil
}

func (s *Service) sendEmail(ctx context.Context, n Notification) {
	if s.email == nil || s.directory == nil {
		return
	}
	user, err := s.directory.GetUser(ctx, n.OrgID, n.UserID)
	if err != nil {
		s.logger.Warn("email recipient lookup failed", "error", err, "user_id", n.UserID)
		return
	}
	link := ""
	if n.Link != "" && s.baseURL != "" {
		link = s.baseURL + n.Link
	}
	msg, err := notificationEmail(n, Address{Name: user.Name, Email: user.Email}, link)
	if err != nil {
		s.logger.Error("notification email not rendered", "error", err, "notification_id", n.ID)
		return
	}
	if err := s.email.Send(ctx, msg); err != nil {
		s.logger.Warn("notification email failed", "error", err, "user_id", n.UserID, "type", n.Type)
	}
}
