package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/wolfman30/agentdesk/pkg/logging"
)

// Service handles login, registration and seeding.
type Service struct {
	repo   Repository
	hasher *Hasher
	tokens *TokenIssuer
	logger *logging.Logger
}

func NewService(repo Repository, hasher *Hasher, tokens *TokenIssuer, logger *logging.Logger) *Service {
	if repo == nil {
		panic("auth: repository required")
	}
	if tokens == nil {
		panic("auth: token issuer required")
	}
	if hasher == nil {
		hasher = NewHasher(0)
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{repo: repo, hasher: hasher, tokens: tokens, logger: logger}
}

// Tokens exposes the issuer for the auth middleware.
func (s *Service) Tokens() *TokenIssuer {
	return s.tokens
}

// Login checks the credentials and issues a session token.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	user, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		s.logger.Info("login rejected", "user_id", user.ID)
		return nil, ErrInvalidCredentials
	}
	token, expires, err := s.tokens.Issue(user)
	if err != nil {
		return nil, err
	}
	s.logger.Info("user logged in", "user_id", user.ID, "org_id", user.OrgID)
	return &LoginResult{Token: token, ExpiresAt: expires, User: user}, nil
}

// Register creates a user with a hashed password.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, error) {
	email := NormalizeEmail(in.Email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: email is invalid", ErrInvalidInput)
	}
	if len(in.Password) < MinPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, MinPasswordLength)
	}
	if in.OrgID == "" {
		return nil, fmt.Errorf("%w: org id required", ErrInvalidInput)
	}
	role := in.Role
	if role == "" {
		role = RoleMember
	}
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("auth: hash password: %w", err)
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = email
	}
	user := &User{
		OrgID:        in.OrgID,
		Email:        email,
		Name:         name,
		Role:         role,
		PasswordHash: hash,
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// EnsureSeedAdmin creates an organization and owner account unless the email
// already exists.
func (s *Service) EnsureSeedAdmin(ctx context.Context, orgName, email, password string) (*User, error) {
	existing, err := s.repo.GetUserByEmail(ctx, NormalizeEmail(email))
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}
	org, err := s.repo.CreateOrganization(ctx, orgName)
	if err != nil {
		return nil, err
	}
	user, err := s.Register(ctx, RegisterInput{
		OrgID:    org.ID,
		Email:    email,
		Name:     "Admin",
		Password: password,
		Role:     RoleOwner,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("seeded admin account", "org_id", org.ID, "user_id", user.ID)
	return user, nil
}

// GetUser loads a user inside an org.
func (s *Service) GetUser(ctx context.Context, orgID, id string) (*User, error) {
	return s.repo.GetUserByID(ctx, orgID, id)
}

// ListUsers returns org users, optionally filtered by role.
func (s *Service) ListUsers(ctx context.Context, orgID string, roles ...Role) ([]*User, error) {
	return s.repo.ListUsers(ctx, orgID, roles)
}
