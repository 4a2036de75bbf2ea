package auth

// Package auth contains simple hand-written test doubles for auth ports.
// These are lightweight and suitable for scenario tests without codegen.

import (
	"context"
	"net/url"
	"sync"
	"time"

	domainauth "github.com/target/members-console/internal/domain/auth"
	"github.com/target/members-console/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.IdentityClient = (*FakeIdentityClient)(nil)
	_ ports.RoleMapper     = StaticRoleMapper{}
)

// FakeIdentityClient is a scriptable IdentityClient. Zero-valued funcs fall
// back to deterministic defaults built from User and TokenTTL.
type FakeIdentityClient struct {
	InitializeFunc     func(ctx context.Context, opts ports.InitOptions) (ports.InitResult, error)
	HandleCallbackFunc func(ctx context.Context, nav *url.URL) (ports.CallbackResult, error)
	LoginFunc          func(ctx context.Context, returnTarget, resume string) (string, error)
	LogoutFunc         func(ctx context.Context, returnTarget string) (string, error)
	ForceRefreshFunc   func(ctx context.Context, minValidity time.Duration) (bool, error)

	User     domainauth.Identity
	TokenTTL time.Duration

	mu          sync.Mutex
	signedIn    bool
	token       domainauth.Token
	generation  uint64
	handlers    map[int]func(ports.TokenExpired)
	nextHandler int
	calls       map[string]int
	closed      bool
}

// NewFakeIdentityClient returns a fake that restores a session for user.
func NewFakeIdentityClient(user domainauth.Identity) *FakeIdentityClient {
	return &FakeIdentityClient{User: user, TokenTTL: 5 * time.Minute}
}

func (f *FakeIdentityClient) record(name string) {
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[name]++
}

// Calls returns how often the named method ran.
func (f *FakeIdentityClient) Calls(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *FakeIdentityClient) issueLocked() {
	f.signedIn = true
	f.generation++
	f.token = domainauth.Token{
		Value:     "token-" + time.Now().Format(time.RFC3339Nano),
		ExpiresAt: time.Now().Add(f.TokenTTL),
	}
}

func (f *FakeIdentityClient) Initialize(ctx context.Context, opts ports.InitOptions) (ports.InitResult, error) {
	f.mu.Lock()
	f.record("Initialize")
	fn := f.InitializeFunc
	f.mu.Unlock()

	if fn != nil {
		res, err := fn(ctx, opts)
		if err == nil && res.Authenticated {
			f.mu.Lock()
			f.issueLocked()
			f.mu.Unlock()
		}
		return res, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.issueLocked()
	return ports.InitResult{Authenticated: true}, nil
}

func (f *FakeIdentityClient) HandleCallback(ctx context.Context, nav *url.URL) (ports.CallbackResult, error) {
	f.mu.Lock()
	f.record("HandleCallback")
	fn := f.HandleCallbackFunc
	f.mu.Unlock()

	res := ports.CallbackResult{Resume: "/"}
	if fn != nil {
		var err error
		if res, err = fn(ctx, nav); err != nil {
			return res, err
		}
	}
	f.mu.Lock()
	f.issueLocked()
	f.mu.Unlock()
	return res, nil
}

func (f *FakeIdentityClient) Login(ctx context.Context, returnTarget, resume string) (string, error) {
	f.mu.Lock()
	f.record("Login")
	fn := f.LoginFunc
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, returnTarget, resume)
	}
	return "https://idp.example.com/auth?redirect_uri=" + url.QueryEscape(returnTarget), nil
}

func (f *FakeIdentityClient) Logout(ctx context.Context, returnTarget string) (string, error) {
	f.mu.Lock()
	f.record("Logout")
	fn := f.LogoutFunc
	f.mu.Unlock()
	if fn != nil {
		if target, err := fn(ctx, returnTarget); err != nil {
			return target, err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signedIn = false
	f.token = domainauth.Token{}
	return "https://idp.example.com/logout?post_logout_redirect_uri=" + url.QueryEscape(returnTarget), nil
}

func (f *FakeIdentityClient) CurrentToken(ctx context.Context) (domainauth.Token, bool) {
	f.mu.Lock()
	f.record("CurrentToken")
	valid := f.token.ValidFor(time.Now(), 0)
	tok := f.token
	f.mu.Unlock()
	if valid {
		return tok, true
	}
	if _, err := f.ForceRefresh(ctx, 0); err != nil {
		return domainauth.Token{}, false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token, f.token.Value != ""
}

func (f *FakeIdentityClient) ForceRefresh(ctx context.Context, minValidity time.Duration) (bool, error) {
	f.mu.Lock()
	f.record("ForceRefresh")
	fn := f.ForceRefreshFunc
	f.mu.Unlock()
	if fn != nil {
		refreshed, err := fn(ctx, minValidity)
		f.mu.Lock()
		defer f.mu.Unlock()
		if err != nil {
			// A rejected refresh ends the session, as it does for the OIDC adapter.
			f.token = domainauth.Token{}
			f.signedIn = false
			return false, err
		}
		if refreshed {
			f.issueLocked()
		}
		return refreshed, nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.issueLocked()
	return true, nil
}

func (f *FakeIdentityClient) Identity() (domainauth.Identity, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.signedIn {
		return domainauth.Identity{}, false
	}
	id := f.User
	id.Roles = append([]domainauth.Role(nil), f.User.Roles...)
	return id, true
}

// SetUser replaces the claims returned after the next refresh.
func (f *FakeIdentityClient) SetUser(id domainauth.Identity) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.User = id
}

func (f *FakeIdentityClient) OnTokenExpired(fn func(ports.TokenExpired)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.handlers == nil {
		f.handlers = make(map[int]func(ports.TokenExpired))
	}
	id := f.nextHandler
	f.nextHandler++
	f.handlers[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.handlers, id)
	}
}

// Subscribers returns the number of registered expiry handlers.
func (f *FakeIdentityClient) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handlers)
}

// Expire delivers a token-expired event for the current generation
// synchronously to every handler.
func (f *FakeIdentityClient) Expire() {
	f.mu.Lock()
	ev := ports.TokenExpired{Generation: f.generation, ExpiresAt: f.token.ExpiresAt}
	handlers := make([]func(ports.TokenExpired), 0, len(f.handlers))
	for _, h := range f.handlers {
		handlers = append(handlers, h)
	}
	f.mu.Unlock()
	for _, h := range handlers {
		h(ev)
	}
}

// Closed reports whether Close ran.
func (f *FakeIdentityClient) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *FakeIdentityClient) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.handlers = nil
}

// StaticRoleMapper maps provider role names by exact match.
type StaticRoleMapper struct {
	AdminRole string
	UserRole  string
}

func (m StaticRoleMapper) Map(roles []string) []domainauth.Role {
	var out []domainauth.Role
	for _, r := range roles {
		switch {
		case m.AdminRole != "" && r == m.AdminRole:
			out = append(out, domainauth.RoleAdmin)
		case m.UserRole != "" && r == m.UserRole:
			out = append(out, domainauth.RoleUser)
		}
	}
	return domainauth.NormalizeRoles(out)
}
