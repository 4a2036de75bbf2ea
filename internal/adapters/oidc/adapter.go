package oidc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	domainauth "github.com/target/members-console/internal/domain/auth"
	apperrors "github.com/target/members-console/internal/errors"
	"github.com/target/members-console/internal/ports"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// ErrNoSession is returned when an operation needs a token and none is held.
var ErrNoSession = errors.New("no active session")

// Adapter is the IdentityClient of one browser session. It owns the raw
// token and reports expiry through OnTokenExpired; it never touches session
// state.
type Adapter struct {
	c      *Client
	sid    string
	logger *slog.Logger
	group  singleflight.Group

	// vaultMu orders vault writes so a logout cannot be undone by a refresh
	// that persists after it.
	vaultMu sync.Mutex

	mu          sync.Mutex
	token       *oauth2.Token
	idTokenRaw  string
	identity    *domainauth.Identity
	generation  uint64
	timer       *time.Timer
	handlers    map[int]func(ports.TokenExpired)
	nextHandler int
	closed      bool
}

var _ ports.IdentityClient = (*Adapter)(nil)

// Initialize restores the session from the token vault. Without restorable
// material it starts the login challenge when opts.Policy requires it.
func (a *Adapter) Initialize(ctx context.Context, opts ports.InitOptions) (ports.InitResult, error) {
	restored, err := a.restore(ctx)
	if err != nil {
		return ports.InitResult{}, err
	}
	if restored {
		return ports.InitResult{Authenticated: true}, nil
	}
	if opts.Policy != domainauth.LoginRequired {
		return ports.InitResult{}, nil
	}
	target, err := a.Login(ctx, opts.ReturnTarget, opts.Resume)
	if err != nil {
		return ports.InitResult{}, err
	}
	return ports.InitResult{Redirect: target}, nil
}

func (a *Adapter) restore(ctx context.Context) (bool, error) {
	entry, err := a.c.vault.Load(ctx, a.sid)
	if apperrors.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load token vault: %w", err)
	}
	if entry.RefreshToken == "" || (!entry.ExpiresAt.IsZero() && time.Now().After(entry.ExpiresAt)) {
		a.forget(ctx)
		return false, nil
	}

	tok, err := a.c.oauth.TokenSource(a.c.httpContext(ctx), &oauth2.Token{RefreshToken: entry.RefreshToken}).Token()
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) {
			a.logger.Info("stored session no longer valid", "error_code", rerr.ErrorCode)
			a.forget(ctx)
			return false, nil
		}
		return false, fmt.Errorf("restore session: %w", err)
	}
	if err := a.accept(ctx, tok, "", nil); err != nil {
		return false, err
	}
	a.logger.Debug("session restored from vault")
	return true, nil
}

// HandleCallback completes the authorization code flow for nav.
func (a *Adapter) HandleCallback(ctx context.Context, nav *url.URL) (ports.CallbackResult, error) {
	if nav == nil {
		return ports.CallbackResult{}, errors.New("missing callback location")
	}
	q := nav.Query()
	state := q.Get("state")
	if state == "" {
		// Fragment responses belong to the implicit flow, which is not enabled.
		return ports.CallbackResult{}, errors.New("unsupported authorization response")
	}

	p, err := a.c.pending.Take(ctx, state)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return ports.CallbackResult{}, errors.New("unknown or expired state")
		}
		return ports.CallbackResult{}, fmt.Errorf("load pending authorization: %w", err)
	}
	if p.SessionID != a.sid {
		return ports.CallbackResult{}, errors.New("state was issued to a different session")
	}
	if e := q.Get("error"); e != "" {
		return ports.CallbackResult{}, fmt.Errorf("authorization failed: %s: %s", e, q.Get("error_description"))
	}
	code := q.Get("code")
	if code == "" {
		return ports.CallbackResult{}, errors.New("authorization code is required")
	}

	tok, err := a.c.oauth.Exchange(a.c.httpContext(ctx), code,
		oauth2.VerifierOption(p.Verifier),
		oauth2.SetAuthURLParam("redirect_uri", p.RedirectURI),
	)
	if err != nil {
		return ports.CallbackResult{}, fmt.Errorf("exchange code for token: %w", err)
	}
	if err := a.accept(ctx, tok, p.Nonce, nil); err != nil {
		return ports.CallbackResult{}, err
	}
	return ports.CallbackResult{Resume: p.Resume}, nil
}

// Login records a pending authorization and returns the provider URL.
func (a *Adapter) Login(ctx context.Context, returnTarget, resume string) (string, error) {
	if returnTarget == "" {
		return "", errors.New("return target is required")
	}
	state, err := generateRandomString(32)
	if err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	nonce, err := generateRandomString(32)
	if err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	verifier := oauth2.GenerateVerifier()

	p := ports.PendingAuthorization{
		State:       state,
		Nonce:       nonce,
		Verifier:    verifier,
		RedirectURI: returnTarget,
		Resume:      resume,
		SessionID:   a.sid,
		CreatedAt:   time.Now().UTC(),
	}
	if err := a.c.pending.Save(ctx, p, a.c.pendingTTL); err != nil {
		return "", fmt.Errorf("save pending authorization: %w", err)
	}

	return a.c.oauth.AuthCodeURL(state,
		oauth2.S256ChallengeOption(verifier),
		oauth2.SetAuthURLParam("nonce", nonce),
		oauth2.SetAuthURLParam("redirect_uri", returnTarget),
	), nil
}

// Logout drops the local token, then the vault entry, and returns the
// provider end-session URL. Without one the browser returns to returnTarget.
func (a *Adapter) Logout(ctx context.Context, returnTarget string) (string, error) {
	a.mu.Lock()
	idHint := a.idTokenRaw
	a.clearLocked()
	a.mu.Unlock()

	a.vaultMu.Lock()
	err := a.c.vault.Delete(ctx, a.sid)
	a.vaultMu.Unlock()
	if err != nil {
		return "", fmt.Errorf("delete token vault entry: %w", err)
	}

	if a.c.endSession == "" {
		return returnTarget, nil
	}
	u, err := url.Parse(a.c.endSession)
	if err != nil {
		return "", fmt.Errorf("parse end session endpoint: %w", err)
	}
	q := u.Query()
	q.Set("client_id", a.c.oauth.ClientID)
	if returnTarget != "" {
		q.Set("post_logout_redirect_uri", returnTarget)
	}
	if idHint != "" {
		q.Set("id_token_hint", idHint)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// CurrentToken returns the access token, refreshing it first when it
// expires within the configured minimum validity.
func (a *Adapter) CurrentToken(ctx context.Context) (domainauth.Token, bool) {
	if _, err := a.ForceRefresh(ctx, a.c.minValidity); err != nil {
		a.logger.Debug("no valid token available", "error", err)
		return domainauth.Token{}, false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.token == nil || !a.token.Valid() {
		return domainauth.Token{}, false
	}
	return domainauth.Token{Value: a.token.AccessToken, ExpiresAt: a.token.Expiry}, true
}

// ForceRefresh refreshes when the token expires within minValidity. A
// negative minValidity always refreshes. Concurrent calls share one grant.
func (a *Adapter) ForceRefresh(ctx context.Context, minValidity time.Duration) (bool, error) {
	a.mu.Lock()
	cur := a.token
	a.mu.Unlock()

	if cur == nil || cur.RefreshToken == "" {
		return false, ErrNoSession
	}
	if minValidity >= 0 && cur.AccessToken != "" && time.Until(cur.Expiry) > minValidity {
		return false, nil
	}

	_, err, _ := a.group.Do("refresh", func() (any, error) {
		return nil, a.refresh(ctx, cur)
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (a *Adapter) refresh(ctx context.Context, cur *oauth2.Token) error {
	a.mu.Lock()
	now := a.token
	a.mu.Unlock()
	if now == nil {
		return ErrNoSession
	}
	if now != cur {
		// Another caller already rotated the token.
		return nil
	}

	src := a.c.oauth.TokenSource(a.c.httpContext(ctx), &oauth2.Token{RefreshToken: cur.RefreshToken})
	tok, err := src.Token()
	if err == nil {
		if err = a.accept(ctx, tok, "", cur); err == nil {
			return nil
		}
	}

	a.mu.Lock()
	current := a.token == cur
	if current {
		a.clearLocked()
	}
	a.mu.Unlock()
	var rerr *oauth2.RetrieveError
	if current && errors.As(err, &rerr) {
		a.forget(ctx)
	}
	return fmt.Errorf("refresh token: %w", err)
}

// accept verifies tok, installs it and persists the refresh material. When
// expected is non-nil the token is only installed if it is still current.
func (a *Adapter) accept(ctx context.Context, tok *oauth2.Token, nonce string, expected *oauth2.Token) error {
	id, rawID, err := a.c.project(ctx, tok, nonce)
	if err != nil {
		return err
	}

	a.mu.Lock()
	if a.closed || (expected != nil && a.token != expected) {
		a.mu.Unlock()
		return errors.New("session changed during refresh")
	}
	a.token = tok
	a.idTokenRaw = rawID
	a.identity = &id
	a.generation++
	gen := a.generation
	a.scheduleLocked()
	a.mu.Unlock()

	if tok.RefreshToken == "" {
		return nil
	}
	entry := ports.VaultEntry{RefreshToken: tok.RefreshToken, IDToken: rawID}
	if exp, ok := refreshExpiry(tok); ok {
		entry.ExpiresAt = exp
	}
	a.persist(ctx, gen, entry)
	return nil
}

// persist saves entry unless the token it belongs to was replaced or
// cleared after generation gen was installed.
func (a *Adapter) persist(ctx context.Context, gen uint64, entry ports.VaultEntry) {
	a.vaultMu.Lock()
	defer a.vaultMu.Unlock()

	a.mu.Lock()
	stale := a.generation != gen
	a.mu.Unlock()
	if stale {
		a.logger.Debug("skipping vault write for a replaced token")
		return
	}
	if err := a.c.vault.Save(ctx, a.sid, entry); err != nil {
		a.logger.Warn("failed to persist refresh token", "error", err)
	}
}

// refreshExpiry reads Keycloak's refresh_expires_in extension.
func refreshExpiry(tok *oauth2.Token) (time.Time, bool) {
	switch v := tok.Extra("refresh_expires_in").(type) {
	case float64:
		if v > 0 {
			return time.Now().Add(time.Duration(v) * time.Second), true
		}
	case int64:
		if v > 0 {
			return time.Now().Add(time.Duration(v) * time.Second), true
		}
	}
	return time.Time{}, false
}

func (a *Adapter) scheduleLocked() {
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	if a.token == nil || a.token.Expiry.IsZero() {
		return
	}
	gen, exp := a.generation, a.token.Expiry
	a.timer = time.AfterFunc(time.Until(exp), func() { a.fire(gen, exp) })
}

func (a *Adapter) fire(gen uint64, exp time.Time) {
	a.mu.Lock()
	if a.closed || gen != a.generation {
		a.mu.Unlock()
		return
	}
	handlers := make([]func(ports.TokenExpired), 0, len(a.handlers))
	for _, h := range a.handlers {
		handlers = append(handlers, h)
	}
	a.mu.Unlock()

	ev := ports.TokenExpired{Generation: gen, ExpiresAt: exp}
	for _, h := range handlers {
		h(ev)
	}
}

// clearLocked drops the token and identity. Pending expiry timers become
// stale through the generation bump.
func (a *Adapter) clearLocked() {
	a.token = nil
	a.idTokenRaw = ""
	a.identity = nil
	a.generation++
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
}

func (a *Adapter) forget(ctx context.Context) {
	a.vaultMu.Lock()
	defer a.vaultMu.Unlock()
	if err := a.c.vault.Delete(ctx, a.sid); err != nil {
		a.logger.Warn("failed to delete token vault entry", "error", err)
	}
}

// Identity returns the claims projected from the current token.
func (a *Adapter) Identity() (domainauth.Identity, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.identity == nil {
		return domainauth.Identity{}, false
	}
	id := *a.identity
	id.Roles = append([]domainauth.Role(nil), a.identity.Roles...)
	return id, true
}

// OnTokenExpired registers fn and returns a function removing it.
func (a *Adapter) OnTokenExpired(fn func(ports.TokenExpired)) func() {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := a.nextHandler
	a.nextHandler++
	a.handlers[id] = fn
	var once sync.Once
	return func() {
		once.Do(func() {
			a.mu.Lock()
			defer a.mu.Unlock()
			delete(a.handlers, id)
		})
	}
}

// Close stops the expiry timer. The vault entry is kept so a later page
// load of the same browser session can restore it.
func (a *Adapter) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	clear(a.handlers)
}
