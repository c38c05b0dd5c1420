package auth

import (
	"strings"
	"time"
)

// Role controls what a user may do inside an organization.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleAgent  Role = "agent"
	RoleMember Role = "member"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleAgent, RoleMember:
		return true
	}
	return false
}

// CanManage reports whether the role may use admin endpoints.
func (r Role) CanManage() bool {
	return r == RoleOwner || r == RoleAdmin
}

// TeamRoles are the roles that handle conversations.
var TeamRoles = []Role{RoleOwner, RoleAdmin, RoleAgent}

// Organization groups users, agents and their conversations.
type Organization struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// User is an account that can sign in.
type User struct {
	ID           string    `json:"id"`
	OrgID        string    `json:"orgId"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Role         Role      `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// RegisterInput creates a user in an existing organization.
type RegisterInput struct {
	OrgID    string
	Email    string
	Name     string
	Password string
	Role     Role
}

// LoginResult is returned on successful login.
type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      *User     `json:"user"`
}

// NormalizeEmail lowercases and trims an address for lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
