package auth

// Package auth contains domain-level types for the browser session lifecycle.
// It is pure and free of framework/adapter concerns.

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Status is the authentication status of one browser session.
type Status string

const (
	StatusUninitialized   Status = "uninitialized"
	StatusInitializing    Status = "initializing"
	StatusAuthenticated   Status = "authenticated"
	StatusUnauthenticated Status = "unauthenticated"
	StatusError           Status = "error"
)

// Collapse maps StatusError onto StatusUnauthenticated. Consumers never see
// StatusError directly; a failed initialization is treated as signed out.
func (s Status) Collapse() Status {
	if s == StatusError {
		return StatusUnauthenticated
	}
	return s
}

// Role represents an application's authorization role.
type Role string

const (
	RoleAdmin Role = "ADMIN"
	RoleUser  Role = "USER"
)

// Identity is an immutable snapshot of the claims of the current principal.
// Adapters project provider-specific claims into this shape.
type Identity struct {
	Subject       string
	Name          string
	Username      string
	GivenName     string
	FamilyName    string
	Email         string
	EmailVerified bool
	Roles         []Role // sorted, unique
}

// HasRole reports whether the identity was granted role r.
func (i Identity) HasRole(r Role) bool {
	return slices.Contains(i.Roles, r)
}

// IsAdmin reports whether the identity carries the admin role.
func (i Identity) IsAdmin() bool { return i.HasRole(RoleAdmin) }

// DisplayName returns the best human readable name available.
func (i Identity) DisplayName() string {
	switch {
	case i.Name != "":
		return i.Name
	case i.Username != "":
		return i.Username
	default:
		return i.Email
	}
}

// Equal reports whether two identities carry the same claims.
func (i Identity) Equal(o Identity) bool {
	return i.Subject == o.Subject &&
		i.Name == o.Name &&
		i.Username == o.Username &&
		i.GivenName == o.GivenName &&
		i.FamilyName == o.FamilyName &&
		i.Email == o.Email &&
		i.EmailVerified == o.EmailVerified &&
		slices.Equal(i.Roles, o.Roles)
}

// NormalizeRoles returns a sorted copy of roles without duplicates or blanks.
func NormalizeRoles(roles []Role) []Role {
	out := make([]Role, 0, len(roles))
	for _, r := range roles {
		if strings.TrimSpace(string(r)) == "" {
			continue
		}
		out = append(out, r)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Token is a bearer credential with its absolute expiry.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// ValidFor reports whether the token stays valid for at least d after now.
func (t Token) ValidFor(now time.Time, d time.Duration) bool {
	if t.Value == "" {
		return false
	}
	return t.ExpiresAt.After(now.Add(d))
}

// ErrorCause is the coarse tag of a SessionError.
type ErrorCause string

const (
	CauseInitFailed    ErrorCause = "init_failed"
	CauseRefreshFailed ErrorCause = "refresh_failed"
	CauseLoginFailed   ErrorCause = "login_failed"
	CauseLogoutFailed  ErrorCause = "logout_failed"
)

// User-facing messages for each cause.
const (
	MsgInitFailed    = "Authentication failed. Please try again."
	MsgRefreshFailed = "Session expired. Please log in again."
	MsgLoginFailed   = "Login failed. Please try again."
	MsgLogoutFailed  = "Logout failed. Please try again."
)

// SessionError is the single live, user-facing session error.
type SessionError struct {
	Cause   ErrorCause
	Message string
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Cause, e.Message)
}

// NewSessionError builds a SessionError carrying the default message for cause.
func NewSessionError(cause ErrorCause) *SessionError {
	msg := ""
	switch cause {
	case CauseInitFailed:
		msg = MsgInitFailed
	case CauseRefreshFailed:
		msg = MsgRefreshFailed
	case CauseLoginFailed:
		msg = MsgLoginFailed
	case CauseLogoutFailed:
		msg = MsgLogoutFailed
	}
	return &SessionError{Cause: cause, Message: msg}
}

// LoginPolicy decides what happens to visitors without a restorable session.
type LoginPolicy string

const (
	// LoginRequired redirects unauthenticated visitors to the provider on load.
	LoginRequired LoginPolicy = "required"
	// LoginOptional renders a landing view with a manual login action.
	LoginOptional LoginPolicy = "optional"
)

// UnmarshalText implements encoding.TextUnmarshaler for LoginPolicy.
func (p *LoginPolicy) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch LoginPolicy(v) {
	case LoginRequired, LoginOptional:
		*p = LoginPolicy(v)
		return nil
	default:
		return fmt.Errorf("invalid LoginPolicy: %q (valid options: required, optional)", v)
	}
}
