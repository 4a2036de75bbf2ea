package ports

// Package ports defines interfaces (hexagonal ports) for auth-related behavior.
// Implementations live in internal/adapters; orchestration in internal/session.

import (
	"context"
	"net/url"
	"time"

	domainauth "github.com/target/members-console/internal/domain/auth"
)

// InitOptions carries inputs for initializing an identity client.
type InitOptions struct {
	Policy domainauth.LoginPolicy
	// ReturnTarget is where the provider sends the browser back to (the current origin).
	ReturnTarget string
	// Resume is the location to continue at once authentication completes.
	Resume string
}

// InitResult is the outcome of Initialize.
type InitResult struct {
	Authenticated bool
	// Redirect is set when the client started the login challenge and the
	// browser must navigate away.
	Redirect string
}

// CallbackResult is the outcome of completing the callback leg.
type CallbackResult struct {
	// Resume is the location the browser asked for before the login redirect.
	Resume string
}

// TokenExpired is emitted by an IdentityClient when its token reaches expiry.
type TokenExpired struct {
	Generation uint64
	ExpiresAt  time.Time
}

// IdentityClient wraps the identity-provider SDK for one browser session.
// It owns the raw token; it never mutates session state itself.
type IdentityClient interface {
	// Initialize silently restores an existing session. With LoginRequired and
	// nothing restorable it starts the login challenge and returns its Redirect.
	Initialize(ctx context.Context, opts InitOptions) (InitResult, error)

	// HandleCallback completes a redirect already in flight using the
	// authorization response carried by nav.
	HandleCallback(ctx context.Context, nav *url.URL) (CallbackResult, error)

	// Login starts the redirect-based login and returns the provider URL.
	Login(ctx context.Context, returnTarget, resume string) (string, error)

	// Logout drops the local token and returns the end-session URL.
	Logout(ctx context.Context, returnTarget string) (string, error)

	// CurrentToken returns a non-expired token, refreshing first when needed.
	// ok is false when no valid token can be produced in time.
	CurrentToken(ctx context.Context) (tok domainauth.Token, ok bool)

	// ForceRefresh refreshes when the token expires within minValidity.
	// A negative minValidity always refreshes.
	ForceRefresh(ctx context.Context, minValidity time.Duration) (bool, error)

	// Identity returns the claims projected from the current token.
	Identity() (domainauth.Identity, bool)

	// OnTokenExpired registers fn and returns a function removing it.
	OnTokenExpired(fn func(TokenExpired)) (unsubscribe func())

	// Close stops timers and releases resources held for the session.
	Close()
}

// PendingAuthorization is the state kept across the login redirect.
type PendingAuthorization struct {
	State       string    `json:"state"`
	Nonce       string    `json:"nonce"`
	Verifier    string    `json:"verifier"`
	RedirectURI string    `json:"redirect_uri"`
	Resume      string    `json:"resume"`
	SessionID   string    `json:"session_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// PendingStore persists PendingAuthorization records keyed by state.
type PendingStore interface {
	Save(ctx context.Context, p PendingAuthorization, ttl time.Duration) error
	// Take returns and removes the record for state.
	Take(ctx context.Context, state string) (PendingAuthorization, error)
}

// VaultEntry is the refresh material kept for silent session restoration.
type VaultEntry struct {
	RefreshToken string    `json:"refresh_token"`
	IDToken      string    `json:"id_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"` // refresh token expiry; zero when unknown
}

// TokenVault stores refresh material per browser session.
type TokenVault interface {
	Save(ctx context.Context, sessionID string, e VaultEntry) error
	Load(ctx context.Context, sessionID string) (VaultEntry, error)
	Delete(ctx context.Context, sessionID string) error
}

// RoleMapper maps provider roles to application roles.
type RoleMapper interface {
	Map(roles []string) []domainauth.Role
}
