// Package oidctest runs an in-process OpenID provider for tests. It issues
// RS256-signed tokens, enforces PKCE and supports refresh and end-session.
package oidctest

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
)

const keyID = "test-key"

// User is the principal the provider signs in.
type User struct {
	Subject       string
	Username      string
	Name          string
	GivenName     string
	FamilyName    string
	Email         string
	EmailVerified bool
	Roles         []string
}

type grant struct {
	nonce       string
	challenge   string
	redirectURI string
	clientID    string
}

// Provider is a fake OpenID provider backed by httptest.Server.
type Provider struct {
	Server   *httptest.Server
	ClientID string

	key    *rsa.PrivateKey
	signer jose.Signer

	mu            sync.Mutex
	user          User
	tokenTTL      time.Duration
	codes         map[string]grant
	refresh       map[string]string // refresh token -> nonce
	access        map[string]bool
	failRefresh   bool
	tokenRequests int
	refreshCount  int
	omitIDRoles   bool
}

// New starts a provider and registers its shutdown with t.
func New(t testing.TB, clientID string, user User) *Provider {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.RS256, Key: jose.JSONWebKey{Key: key, KeyID: keyID, Algorithm: string(jose.RS256)}},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	p := &Provider{
		ClientID: clientID,
		key:      key,
		signer:   signer,
		user:     user,
		tokenTTL: 5 * time.Minute,
		codes:    map[string]grant{},
		refresh:  map[string]string{},
		access:   map[string]bool{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /.well-known/openid-configuration", p.discovery)
	mux.HandleFunc("GET /jwks", p.jwks)
	mux.HandleFunc("POST /token", p.token)
	mux.HandleFunc("GET /userinfo", p.userinfo)
	p.Server = httptest.NewServer(mux)
	t.Cleanup(p.Server.Close)
	return p
}

// Issuer returns the issuer URL.
func (p *Provider) Issuer() string { return p.Server.URL }

// SetUser replaces the principal for subsequently issued tokens.
func (p *Provider) SetUser(u User) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.user = u
}

// SetTokenTTL changes the lifetime of subsequently issued access tokens.
func (p *Provider) SetTokenTTL(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokenTTL = d
}

// FailRefresh makes refresh grants fail with invalid_grant.
func (p *Provider) FailRefresh(fail bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failRefresh = fail
}

// OmitIDTokenRoles keeps roles out of the ID token so they must be read
// from the access token.
func (p *Provider) OmitIDTokenRoles(omit bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.omitIDRoles = omit
}

// RefreshCount returns the number of successful refresh grants.
func (p *Provider) RefreshCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.refreshCount
}

// TokenRequests returns the number of calls to the token endpoint.
func (p *Provider) TokenRequests() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tokenRequests
}

// Authorize plays the user signing in at authURL and returns the callback
// location the browser would be sent to.
func (p *Provider) Authorize(authURL string) (*url.URL, error) {
	u, err := url.Parse(authURL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	if q.Get("code_challenge_method") != "S256" || q.Get("code_challenge") == "" {
		return nil, fmt.Errorf("missing PKCE challenge")
	}
	if q.Get("response_type") != "code" {
		return nil, fmt.Errorf("unsupported response_type %q", q.Get("response_type"))
	}
	code := randomString()
	p.mu.Lock()
	p.codes[code] = grant{
		nonce:       q.Get("nonce"),
		challenge:   q.Get("code_challenge"),
		redirectURI: q.Get("redirect_uri"),
		clientID:    q.Get("client_id"),
	}
	p.mu.Unlock()

	cb, err := url.Parse(q.Get("redirect_uri"))
	if err != nil {
		return nil, err
	}
	if cb.Path == "" {
		cb.Path = "/"
	}
	cq := cb.Query()
	cq.Set("code", code)
	cq.Set("state", q.Get("state"))
	cq.Set("session_state", "test-session")
	cb.RawQuery = cq.Encode()
	return cb, nil
}

func (p *Provider) discovery(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"issuer":                                p.Issuer(),
		"authorization_endpoint":                p.Issuer() + "/auth",
		"token_endpoint":                        p.Issuer() + "/token",
		"userinfo_endpoint":                     p.Issuer() + "/userinfo",
		"jwks_uri":                              p.Issuer() + "/jwks",
		"end_session_endpoint":                  p.Issuer() + "/logout",
		"id_token_signing_alg_values_supported": []string{"RS256"},
		"code_challenge_methods_supported":      []string{"S256"},
	})
}

func (p *Provider) jwks(w http.ResponseWriter, _ *http.Request) {
	set := jose.JSONWebKeySet{Keys: []jose.JSONWebKey{{
		Key:       &p.key.PublicKey,
		KeyID:     keyID,
		Algorithm: string(jose.RS256),
		Use:       "sig",
	}}}
	writeJSON(w, http.StatusOK, set)
}

func (p *Provider) token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		oauthError(w, "invalid_request")
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokenRequests++

	switch r.PostForm.Get("grant_type") {
	case "authorization_code":
		g, ok := p.codes[r.PostForm.Get("code")]
		delete(p.codes, r.PostForm.Get("code"))
		if !ok || g.redirectURI != r.PostForm.Get("redirect_uri") || !pkceMatches(g.challenge, r.PostForm.Get("code_verifier")) {
			oauthError(w, "invalid_grant")
			return
		}
		p.issueLocked(w, g.nonce)
	case "refresh_token":
		nonce, ok := p.refresh[r.PostForm.Get("refresh_token")]
		if !ok || p.failRefresh {
			oauthError(w, "invalid_grant")
			return
		}
		delete(p.refresh, r.PostForm.Get("refresh_token"))
		p.refreshCount++
		p.issueLocked(w, nonce)
	default:
		oauthError(w, "unsupported_grant_type")
	}
}

func (p *Provider) issueLocked(w http.ResponseWriter, nonce string) {
	now := time.Now()
	// expires_in is whole seconds and zero means "no expiry" to clients.
	expiresIn := int(math.Ceil(p.tokenTTL.Seconds()))
	if expiresIn < 1 {
		expiresIn = 1
	}
	// One extra second keeps the JWT exp ahead of second truncation.
	exp := now.Add(time.Duration(expiresIn+1) * time.Second)
	u := p.user

	access, err := p.sign(map[string]any{
		"iss":                p.Issuer(),
		"sub":                u.Subject,
		"aud":                "account",
		"azp":                p.ClientID,
		"exp":                exp.Unix(),
		"iat":                now.Unix(),
		"jti":                randomString(),
		"realm_access":       map[string]any{"roles": u.Roles},
		"preferred_username": u.Username,
	})
	if err != nil {
		oauthError(w, "server_error")
		return
	}
	idClaims := map[string]any{
		"iss":                p.Issuer(),
		"sub":                u.Subject,
		"aud":                p.ClientID,
		"exp":                exp.Unix(),
		"iat":                now.Unix(),
		"nonce":              nonce,
		"name":               u.Name,
		"preferred_username": u.Username,
		"given_name":         u.GivenName,
		"family_name":        u.FamilyName,
		"email":              u.Email,
		"email_verified":     u.EmailVerified,
	}
	if !p.omitIDRoles {
		idClaims["realm_access"] = map[string]any{"roles": u.Roles}
	}
	id, err := p.sign(idClaims)
	if err != nil {
		oauthError(w, "server_error")
		return
	}
	refresh := randomString()
	p.refresh[refresh] = nonce
	p.access[access] = true

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":       access,
		"token_type":         "Bearer",
		"expires_in":         expiresIn,
		"refresh_token":      refresh,
		"refresh_expires_in": 1800,
		"id_token":           id,
		"scope":              "openid profile email",
	})
}

func (p *Provider) userinfo(w http.ResponseWriter, r *http.Request) {
	tok := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	p.mu.Lock()
	ok := p.access[tok]
	u := p.user
	p.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sub":                u.Subject,
		"email":              u.Email,
		"email_verified":     u.EmailVerified,
		"preferred_username": u.Username,
		"name":               u.Name,
	})
}

func (p *Provider) sign(claims map[string]any) (string, error) {
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	jws, err := p.signer.Sign(payload)
	if err != nil {
		return "", err
	}
	return jws.CompactSerialize()
}

func pkceMatches(challenge, verifier string) bool {
	sum := sha256.Sum256([]byte(verifier))
	return verifier != "" && base64.RawURLEncoding.EncodeToString(sum[:]) == challenge
}

func oauthError(w http.ResponseWriter, code string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func randomString() string {
	b := make([]byte, 24)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
