// Package oidc provides the OIDC/OAuth2 identity client for browser sessions.
package oidc

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	jmespath "github.com/jmespath-community/go-jmespath"
	"github.com/target/members-console/internal/ports"
	"golang.org/x/oauth2"
)

const (
	// DefaultRolesClaim is where Keycloak puts realm roles.
	DefaultRolesClaim = "realm_access.roles"
	defaultScope      = "openid profile email"
	defaultPendingTTL = 10 * time.Minute
	defaultMinValid   = 30 * time.Second
)

// Client holds the provider metadata shared by every browser session.
// Use ForSession to obtain the per-session IdentityClient.
type Client struct {
	oauth          *oauth2.Config
	provider       *gooidc.Provider
	verifier       *gooidc.IDTokenVerifier
	accessVerifier *gooidc.IDTokenVerifier
	endSession     string
	httpClient     *http.Client

	rolesClaim  string
	minValidity time.Duration
	pendingTTL  time.Duration

	pending ports.PendingStore
	vault   ports.TokenVault
	roles   ports.RoleMapper
	logger  *slog.Logger
}

// ClientConfig holds configuration for the OIDC client.
type ClientConfig struct {
	ClientID     string
	ClientSecret string // empty for public clients
	// IssuerURL is the realm issuer, e.g. https://sso.example.com/realms/members.
	IssuerURL string
	Scope     string
	// RolesClaim is a JMESPath expression selecting role names from the claims.
	RolesClaim string
	// MinValidity is how long a token must stay valid before it is handed out.
	MinValidity time.Duration
	PendingTTL  time.Duration
	HTTPClient  *http.Client // Optional, defaults to a client with a 30s timeout

	Pending ports.PendingStore
	Vault   ports.TokenVault
	Roles   ports.RoleMapper
	Logger  *slog.Logger
}

// DiscoveryDocument represents the OIDC discovery document.
type DiscoveryDocument struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	UserinfoEndpoint      string `json:"userinfo_endpoint"`
	JwksURI               string `json:"jwks_uri"`
	EndSessionEndpoint    string `json:"end_session_endpoint,omitempty"`
}

// NewClient discovers the provider and builds the shared client.
func NewClient(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if cfg.ClientID == "" {
		return nil, errors.New("client ID is required")
	}
	if cfg.IssuerURL == "" {
		return nil, errors.New("issuer URL is required")
	}
	if cfg.Pending == nil || cfg.Vault == nil {
		return nil, errors.New("pending store and token vault are required")
	}
	if cfg.Roles == nil {
		return nil, errors.New("role mapper is required")
	}

	rolesClaim := strings.TrimSpace(cfg.RolesClaim)
	if rolesClaim == "" {
		rolesClaim = DefaultRolesClaim
	}
	if _, err := jmespath.Compile(rolesClaim); err != nil {
		return nil, fmt.Errorf("compile roles claim %q: %w", rolesClaim, err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	issuer := strings.TrimSuffix(cfg.IssuerURL, "/")
	issuer = strings.TrimSuffix(issuer, "/.well-known/openid-configuration")
	op, err := gooidc.NewProvider(gooidc.ClientContext(ctx, httpClient), issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc new provider: %w", err)
	}

	var meta DiscoveryDocument
	if err := op.Claims(&meta); err != nil {
		return nil, fmt.Errorf("decode discovery document: %w", err)
	}

	scope := cfg.Scope
	if strings.TrimSpace(scope) == "" {
		scope = defaultScope
	}

	c := &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Scopes:       strings.Fields(scope),
			Endpoint:     op.Endpoint(),
		},
		provider: op,
		verifier: op.Verifier(&gooidc.Config{ClientID: cfg.ClientID}),
		// Access tokens carry the API audience, not the client id.
		accessVerifier: op.Verifier(&gooidc.Config{SkipClientIDCheck: true}),
		endSession:     meta.EndSessionEndpoint,
		httpClient:     httpClient,
		rolesClaim:     rolesClaim,
		minValidity:    durationOr(cfg.MinValidity, defaultMinValid),
		pendingTTL:     durationOr(cfg.PendingTTL, defaultPendingTTL),
		pending:        cfg.Pending,
		vault:          cfg.Vault,
		roles:          cfg.Roles,
		logger:         logger,
	}
	if !c.hasOpenIDScope() {
		return nil, errors.New("scope must include openid")
	}
	return c, nil
}

// ForSession returns the IdentityClient bound to one browser session.
func (c *Client) ForSession(sessionID string) *Adapter {
	return &Adapter{
		c:        c,
		sid:      sessionID,
		handlers: make(map[int]func(ports.TokenExpired)),
		logger:   c.logger.With("component", "oidc", "session_id", shortID(sessionID)),
	}
}

// httpContext attaches the configured HTTP client for oauth2 and go-oidc.
func (c *Client) httpContext(ctx context.Context) context.Context {
	return gooidc.ClientContext(ctx, c.httpClient)
}

// hasOpenIDScope reports whether the configured scopes include "openid".
func (c *Client) hasOpenIDScope() bool {
	for _, sc := range c.oauth.Scopes {
		if sc == gooidc.ScopeOpenID {
			return true
		}
	}
	return false
}

// getIDTokenFromToken extracts the id_token from oauth2.Token.
func getIDTokenFromToken(tok *oauth2.Token) (string, error) {
	if tok == nil {
		return "", errors.New("nil token")
	}
	raw := tok.Extra("id_token")
	s, ok := raw.(string)
	if !ok || s == "" {
		return "", errors.New("missing id_token in token response")
	}
	return s, nil
}

// generateRandomString generates a cryptographically secure URL-safe random string of exact length.
func generateRandomString(length int) (string, error) {
	if length <= 0 {
		return "", nil
	}
	nBytes := (length*3 + 3) / 4
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	s := base64.RawURLEncoding.EncodeToString(b)
	return s[:length], nil
}

func durationOr(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

func shortID(sid string) string {
	if len(sid) > 8 {
		return sid[:8]
	}
	return sid
}
