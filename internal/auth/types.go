// Package auth implements identity: registration, password/OTP login,
// lockout, password expiration and the revoked-token blocklist (C1).
package auth

import (
	"context"
	"encoding/json"
	"time"
)

// Role is one of the fixed system roles a user may hold. Roles form an
// ordered set on User — order only matters for display, not authority.
type Role string

const (
	RoleSuperadmin Role = "superadmin"
	RoleAdmin      Role = "admin"
	RoleCreator    Role = "creator"
	RoleEditor     Role = "editor"
	RolePublisher  Role = "publisher"
	RoleManager    Role = "manager"
	RoleDEO        Role = "deo"
	RoleUser       Role = "user"
	RoleGeneral    Role = "general"
)

var validRoles = map[Role]bool{
	RoleSuperadmin: true, RoleAdmin: true, RoleCreator: true,
	RoleEditor: true, RolePublisher: true, RoleManager: true, RoleDEO: true,
	RoleUser: true, RoleGeneral: true,
}

// IsValidRole reports whether r is one of the fixed system roles.
func IsValidRole(r Role) bool {
	return validRoles[r]
}

// UserType distinguishes employees (password or OTP login) from general
// public users (OTP login only, no password).
type UserType string

const (
	UserTypeEmployee UserType = "employee"
	UserTypeGeneral  UserType = "general"
)

// User is a stable identity. At least one of {Username, Email, EmployeeID,
// Mobile} must be set to register, and each is independently unique when
// present (unique-sparse).
type User struct {
	ID                  string
	Username            string
	Email               string
	EmployeeID          string
	Mobile              string
	UserType            UserType
	PasswordHash        string
	PasswordExpiration  time.Time
	Roles               []Role
	FailedLoginAttempts int
	OTPResendCount      int
	LockUntil           *time.Time
	OTP                 string
	OTPExpiration       *time.Time
	LastLogin           *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// HasRole reports whether the user holds the given role.
func (u *User) HasRole(r Role) bool {
	for _, role := range u.Roles {
		if role == r {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the user bypasses per-form ACL checks (§4.6).
func (u *User) IsAdmin() bool {
	return u.HasRole(RoleSuperadmin) || u.HasRole(RoleAdmin)
}

// IsLocked reports whether the account is currently locked out.
func (u *User) IsLocked(now time.Time) bool {
	return u.LockUntil != nil && now.Before(*u.LockUntil)
}

// RegisterInput contains the data needed to register a new user.
type RegisterInput struct {
	Username   string
	Email      string
	EmployeeID string
	Mobile     string
	Password   string // empty for UserTypeGeneral
	UserType   UserType
	Roles      []Role
}

// LoginInput contains the data needed to log in. Identifier matches any
// of {email, username, employee_id}; Mobile is used for OTP login instead.
type LoginInput struct {
	Identifier string
	Mobile     string
	Password   string
	OTP        string
}

// TokenPair contains both access and refresh tokens.
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	TokenType    string    `json:"token_type"`
}

// Claims represents the JWT claims carried by an access token.
type Claims struct {
	UserID string `json:"sub"`
	JTI    string `json:"jti"`
	Roles  []Role `json:"roles,omitempty"`
}

// SMSGateway sends one-time-password codes to a mobile number. The spec
// treats this as an external collaborator with a narrow interface;
// Formwright never talks to a carrier directly.
type SMSGateway interface {
	SendOTP(ctx context.Context, mobile, code string) error
}

// contextKey avoids collisions with other packages' context values.
type contextKey string

const (
	userContextKey   contextKey = "auth_user"
	claimsContextKey contextKey = "auth_claims"
)

// UserFromContext retrieves the authenticated user from the context.
func UserFromContext(ctx context.Context) *User {
	if user, ok := ctx.Value(userContextKey).(*User); ok {
		return user
	}
	return nil
}

// ClaimsFromContext retrieves the JWT claims from the context.
func ClaimsFromContext(ctx context.Context) *Claims {
	if claims, ok := ctx.Value(claimsContextKey).(*Claims); ok {
		return claims
	}
	return nil
}

// ContextWithUser returns a new context with the user attached.
func ContextWithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// ContextWithClaims returns a new context with the claims attached.
func ContextWithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey, claims)
}

// IsAuthenticated returns true if the context has an authenticated user.
func IsAuthenticated(ctx context.Context) bool {
	return UserFromContext(ctx) != nil || ClaimsFromContext(ctx) != nil
}

// rolesToJSON serializes roles for the _ff_users.roles column.
func rolesToJSON(roles []Role) string {
	if len(roles) == 0 {
		return "[]"
	}
	b, err := json.Marshal(roles)
	if err != nil {
		return "[]"
	}
	return string(b)
}

// rolesFromJSON deserializes the _ff_users.roles column, ignoring
// malformed data rather than failing a user lookup over it.
func rolesFromJSON(s string) []Role {
	if s == "" {
		return nil
	}
	var roles []Role
	if err := json.Unmarshal([]byte(s), &roles); err != nil {
		return nil
	}
	return roles
}

func rolesToStrings(roles []Role) []string {
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = string(r)
	}
	return out
}
