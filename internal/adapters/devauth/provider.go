package devauth

// Package devauth provides a simple, config-driven IdentityClient for local development.

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	domainauth "github.com/target/members-console/internal/domain/auth"
	"github.com/target/members-console/internal/ports"
)

// Config controls the dev identity provider behavior.
// Subject and Email are required; Roles may be empty.
type Config struct {
	Subject  string
	Username string
	Email    string
	Roles    []domainauth.Role
	TokenTTL time.Duration // default 5m when zero
}

// Provider short-circuits the redirect flow: login sends the browser straight
// back to the origin with a locally generated code and state. Sign-in state
// is kept per browser session in memory.
type Provider struct {
	identity domainauth.Identity
	tokenTTL time.Duration

	mu       sync.Mutex
	signedIn map[string]bool
	pending  map[string]pendingLogin
}

type pendingLogin struct {
	sid    string
	resume string
}

// NewProvider constructs a dev identity provider from Config.
func NewProvider(cfg Config) (*Provider, error) {
	if cfg.Subject == "" {
		return nil, errors.New("dev auth: Subject is required")
	}
	if cfg.Email == "" {
		return nil, errors.New("dev auth: Email is required")
	}
	ttl := cfg.TokenTTL
	if ttl == 0 {
		ttl = 5 * time.Minute
	}
	username := cfg.Username
	if username == "" {
		username = strings.SplitN(cfg.Email, "@", 2)[0]
	}
	return &Provider{
		identity: domainauth.Identity{
			Subject:       cfg.Subject,
			Username:      username,
			Email:         cfg.Email,
			EmailVerified: true,
			Roles:         domainauth.NormalizeRoles(cfg.Roles),
		},
		tokenTTL: ttl,
		signedIn: make(map[string]bool),
		pending:  make(map[string]pendingLogin),
	}, nil
}

// ForSession returns the IdentityClient for one browser session.
func (p *Provider) ForSession(sid string) *Client {
	return &Client{p: p, sid: sid, handlers: make(map[int]func(ports.TokenExpired))}
}

// Client is the per-session dev IdentityClient.
type Client struct {
	p   *Provider
	sid string

	mu          sync.Mutex
	token       domainauth.Token
	generation  uint64
	timer       *time.Timer
	handlers    map[int]func(ports.TokenExpired)
	nextHandler int
}

var _ ports.IdentityClient = (*Client)(nil)

func (c *Client) Initialize(ctx context.Context, opts ports.InitOptions) (ports.InitResult, error) {
	c.p.mu.Lock()
	ok := c.p.signedIn[c.sid]
	c.p.mu.Unlock()
	if ok {
		c.issue()
		return ports.InitResult{Authenticated: true}, nil
	}
	if opts.Policy != domainauth.LoginRequired {
		return ports.InitResult{}, nil
	}
	target, err := c.Login(ctx, opts.ReturnTarget, opts.Resume)
	if err != nil {
		return ports.InitResult{}, err
	}
	return ports.InitResult{Redirect: target}, nil
}

func (c *Client) HandleCallback(_ context.Context, nav *url.URL) (ports.CallbackResult, error) {
	if nav == nil {
		return ports.CallbackResult{}, errors.New("missing callback location")
	}
	state := nav.Query().Get("state")
	c.p.mu.Lock()
	pl, ok := c.p.pending[state]
	delete(c.p.pending, state)
	if ok && pl.sid == c.sid {
		c.p.signedIn[c.sid] = true
	}
	c.p.mu.Unlock()
	if !ok || pl.sid != c.sid {
		return ports.CallbackResult{}, errors.New("dev auth: unknown state")
	}
	c.issue()
	return ports.CallbackResult{Resume: pl.resume}, nil
}

// Login returns the origin with a dev code and state attached.
func (c *Client) Login(_ context.Context, returnTarget, resume string) (string, error) {
	state, err := randomString(24)
	if err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	c.p.mu.Lock()
	c.p.pending[state] = pendingLogin{sid: c.sid, resume: resume}
	c.p.mu.Unlock()
	return strings.TrimSuffix(returnTarget, "/") + "/?code=dev&state=" + state, nil
}

func (c *Client) Logout(_ context.Context, returnTarget string) (string, error) {
	c.p.mu.Lock()
	delete(c.p.signedIn, c.sid)
	c.p.mu.Unlock()

	c.mu.Lock()
	c.token = domainauth.Token{}
	c.generation++
	c.stopLocked()
	c.mu.Unlock()
	if returnTarget == "" {
		returnTarget = "/"
	}
	return returnTarget, nil
}

func (c *Client) CurrentToken(ctx context.Context) (domainauth.Token, bool) {
	if _, err := c.ForceRefresh(ctx, 0); err != nil {
		return domainauth.Token{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token, c.token.Value != ""
}

func (c *Client) ForceRefresh(_ context.Context, minValidity time.Duration) (bool, error) {
	c.p.mu.Lock()
	ok := c.p.signedIn[c.sid]
	c.p.mu.Unlock()
	if !ok {
		return false, errors.New("dev auth: not signed in")
	}
	c.mu.Lock()
	valid := minValidity >= 0 && c.token.ValidFor(time.Now(), minValidity)
	c.mu.Unlock()
	if valid {
		return false, nil
	}
	c.issue()
	return true, nil
}

func (c *Client) Identity() (domainauth.Identity, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token.Value == "" {
		return domainauth.Identity{}, false
	}
	id := c.p.identity
	id.Roles = append([]domainauth.Role(nil), c.p.identity.Roles...)
	return id, true
}

func (c *Client) OnTokenExpired(fn func(ports.TokenExpired)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextHandler
	c.nextHandler++
	c.handlers[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.handlers, id)
	}
}

func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
	clear(c.handlers)
}

func (c *Client) issue() {
	v, err := randomString(32)
	if err != nil {
		v = fmt.Sprintf("dev-%d", time.Now().UnixNano())
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.token = domainauth.Token{Value: "dev." + v, ExpiresAt: time.Now().Add(c.p.tokenTTL)}
	c.stopLocked()
	gen, exp := c.generation, c.token.ExpiresAt
	c.timer = time.AfterFunc(c.p.tokenTTL, func() { c.fire(gen, exp) })
}

func (c *Client) fire(gen uint64, exp time.Time) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}
	handlers := make([]func(ports.TokenExpired), 0, len(c.handlers))
	for _, h := range c.handlers {
		handlers = append(handlers, h)
	}
	c.mu.Unlock()
	for _, h := range handlers {
		h(ports.TokenExpired{Generation: gen, ExpiresAt: exp})
	}
}

func (c *Client) stopLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func randomString(n int) (string, error) {
	if n <= 0 {
		return "", nil
	}
	bLen := (n*3 + 3) / 4
	b := make([]byte, bLen)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b)[:n], nil
}
