package session

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	domainauth "github.com/target/members-console/internal/domain/auth"
	"github.com/target/members-console/internal/ports"
)

const defaultRefreshTimeout = 10 * time.Second

// Recorder receives lifecycle telemetry. Implementations must be safe for
// concurrent use.
type Recorder interface {
	Transition(from, to domainauth.Status, event string)
	Refresh(outcome string)
}

type noopRecorder struct{}

func (noopRecorder) Transition(domainauth.Status, domainauth.Status, string) {}
func (noopRecorder) Refresh(string)                                          {}

// Refresh outcomes reported to the Recorder.
const (
	RefreshSucceeded = "succeeded"
	RefreshFailed    = "failed"
	RefreshStale     = "stale"
)

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	SessionID string
	Client    ports.IdentityClient
	Policy    domainauth.LoginPolicy
	// Origin is the return target handed to the provider on login and logout.
	Origin         string
	RefreshTimeout time.Duration
	Logger         *slog.Logger
	Recorder       Recorder
}

// Outcome tells the caller what to do after Initialize.
type Outcome struct {
	// Started is true for the single call that ran initialization.
	Started bool
	// Callback is true when the navigation completed a login redirect.
	Callback bool
	// Redirect, when set, is where the browser must go next.
	Redirect string
	// Discard is true when the browser leaves the application; the caller
	// must drop this Manager so the return creates a fresh one.
	Discard bool
}

// Manager is the only writer of a session Store. It drives initialization,
// token expiry handling, login and logout against an IdentityClient.
type Manager struct {
	sid            string
	store          *Store
	client         ports.IdentityClient
	policy         domainauth.LoginPolicy
	origin         string
	refreshTimeout time.Duration
	logger         *slog.Logger
	rec            Recorder

	initialized atomic.Bool

	mu          sync.Mutex
	unsubscribe func()
	lastExpiry  uint64
	closed      bool
	inflight    sync.WaitGroup
}

// NewManager constructs a Manager with a fresh Store.
func NewManager(opts ManagerOptions) *Manager {
	if opts.Policy == "" {
		opts.Policy = domainauth.LoginRequired
	}
	if opts.RefreshTimeout <= 0 {
		opts.RefreshTimeout = defaultRefreshTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Recorder == nil {
		opts.Recorder = noopRecorder{}
	}
	return &Manager{
		sid:            opts.SessionID,
		store:          NewStore(),
		client:         opts.Client,
		policy:         opts.Policy,
		origin:         opts.Origin,
		refreshTimeout: opts.RefreshTimeout,
		logger:         opts.Logger.With("session_id", shortID(opts.SessionID)),
		rec:            opts.Recorder,
	}
}

// Store exposes the read side of the session state.
func (m *Manager) Store() *Store { return m.store }

// Initialize runs initialization once per Manager. Later calls return a zero
// Outcome and leave the client untouched.
func (m *Manager) Initialize(ctx context.Context, nav *url.URL) Outcome {
	if !m.initialized.CompareAndSwap(false, true) {
		return Outcome{}
	}
	m.apply(event{kind: evInitStarted})

	if IsCallback(nav) {
		return m.completeCallback(ctx, nav)
	}

	res, err := m.client.Initialize(ctx, ports.InitOptions{
		Policy:       m.policy,
		ReturnTarget: m.origin,
		Resume:       resumeOf(nav),
	})
	switch {
	case err != nil:
		m.failInit(err)
	case res.Authenticated:
		m.signedIn()
	case res.Redirect != "":
		// Status stays initializing until the browser comes back.
		m.logger.Info("login required, redirecting to provider")
		return Outcome{Started: true, Redirect: res.Redirect, Discard: true}
	default:
		m.apply(event{kind: evUnauthenticated})
	}
	return Outcome{Started: true}
}

func (m *Manager) completeCallback(ctx context.Context, nav *url.URL) Outcome {
	out := Outcome{Started: true, Callback: true, Redirect: StripCallback(nav)}
	res, err := m.client.HandleCallback(ctx, nav)
	if err != nil {
		m.failInit(err)
		return out
	}
	m.signedIn()
	if res.Resume != "" {
		out.Redirect = SafeRedirectPath(res.Resume)
	}
	return out
}

func (m *Manager) signedIn() {
	id, ok := m.client.Identity()
	if !ok {
		m.failInit(errors.New("identity client reported success without an identity"))
		return
	}
	if m.apply(event{kind: evAuthenticated, identity: &id}).applied {
		m.logger.Info("session authenticated", "subject", id.Subject)
	}
	m.subscribeExpiry()
}

func (m *Manager) failInit(err error) {
	m.logger.Error("session initialization failed", "error", err)
	m.apply(event{kind: evInitFailed, err: domainauth.NewSessionError(domainauth.CauseInitFailed)})
}

func (m *Manager) subscribeExpiry() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unsubscribe != nil || m.closed {
		return
	}
	m.unsubscribe = m.client.OnTokenExpired(m.onTokenExpired)
}

func (m *Manager) unsubscribeExpiry() {
	m.mu.Lock()
	unsub := m.unsubscribe
	m.unsubscribe = nil
	m.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

// onTokenExpired refreshes the token and re-projects the identity. Events
// older than the last one handled are ignored.
func (m *Manager) onTokenExpired(ev ports.TokenExpired) {
	m.mu.Lock()
	if m.closed || (m.lastExpiry != 0 && ev.Generation <= m.lastExpiry) {
		m.mu.Unlock()
		return
	}
	m.lastExpiry = ev.Generation
	m.inflight.Add(1)
	m.mu.Unlock()
	defer m.inflight.Done()

	snap := m.store.Snapshot()
	if snap.Status != domainauth.StatusAuthenticated {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.refreshTimeout)
	defer cancel()

	if _, err := m.client.ForceRefresh(ctx, -1); err != nil {
		res := m.apply(event{
			kind:  evRefreshFailed,
			epoch: snap.Epoch,
			err:   domainauth.NewSessionError(domainauth.CauseRefreshFailed),
		})
		if !res.applied {
			m.logger.Debug("dropping stale refresh failure", "epoch", snap.Epoch)
			m.rec.Refresh(RefreshStale)
			return
		}
		m.logger.Warn("token refresh failed, session expired", "error", err)
		m.rec.Refresh(RefreshFailed)
		return
	}

	m.rec.Refresh(RefreshSucceeded)
	id, ok := m.client.Identity()
	if !ok {
		return
	}
	if m.apply(event{kind: evRefreshed, epoch: snap.Epoch, identity: &id}).applied {
		m.logger.Info("identity claims changed after refresh")
	}
}

// Login starts a redirect-based login and returns the provider URL. On
// failure the prior state is restored with a LoginFailed error.
func (m *Manager) Login(ctx context.Context, resume string) (string, bool) {
	res := m.apply(event{kind: evRedirecting})
	target, err := m.client.Login(ctx, m.origin, SafeRedirectPath(resume))
	if err != nil {
		m.logger.Error("login initiation failed", "error", err)
		prior := res.before
		m.apply(event{
			kind:  evRedirectFailed,
			prior: &prior,
			err:   domainauth.NewSessionError(domainauth.CauseLoginFailed),
		})
		return "", false
	}
	return target, true
}

// Logout clears the session optimistically and returns the end-session URL.
// On failure the prior identity is restored with a LogoutFailed error.
func (m *Manager) Logout(ctx context.Context) (string, bool) {
	res := m.apply(event{kind: evLoggedOut})
	target, err := m.client.Logout(ctx, m.origin)
	if err != nil {
		m.logger.Error("logout failed", "error", err)
		prior := res.before
		m.apply(event{
			kind:  evLogoutFailed,
			prior: &prior,
			err:   domainauth.NewSessionError(domainauth.CauseLogoutFailed),
		})
		return "", false
	}
	m.unsubscribeExpiry()
	m.logger.Info("session signed out")
	return target, true
}

// ClearError dismisses the current session error, if any.
func (m *Manager) ClearError() {
	m.apply(event{kind: evErrorCleared})
}

// Token returns a valid access token for outbound calls. It fails closed
// unless the session is authenticated. When the client lost its session
// while renewing the token, the session expires with a RefreshFailed error.
func (m *Manager) Token(ctx context.Context) (domainauth.Token, bool) {
	snap := m.store.Snapshot()
	if snap.Status != domainauth.StatusAuthenticated {
		return domainauth.Token{}, false
	}
	tok, ok := m.client.CurrentToken(ctx)
	if ok {
		return tok, true
	}
	if _, held := m.client.Identity(); held {
		return domainauth.Token{}, false
	}
	res := m.apply(event{
		kind:  evRefreshFailed,
		epoch: snap.Epoch,
		err:   domainauth.NewSessionError(domainauth.CauseRefreshFailed),
	})
	if res.applied {
		m.logger.Warn("token renewal failed, session expired")
		m.rec.Refresh(RefreshFailed)
	}
	return domainauth.Token{}, false
}

// Close unsubscribes from the client, waits for an in-flight refresh and
// releases the client.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()

	m.unsubscribeExpiry()
	m.inflight.Wait()
	m.client.Close()
}

func (m *Manager) apply(ev event) result {
	res := m.store.apply(ev)
	if res.applied && res.before.Status != res.after.Status {
		m.rec.Transition(res.before.Status, res.after.Status, ev.kind.String())
		m.logger.Debug("session transition",
			"event", ev.kind.String(),
			"from", res.before.Status,
			"to", res.after.Status,
			"epoch", res.after.Epoch,
		)
	}
	return res
}

func resumeOf(nav *url.URL) string {
	if nav == nil {
		return "/"
	}
	return SafeRedirectPath(nav.RequestURI())
}

func shortID(sid string) string {
	if len(sid) > 8 {
		return sid[:8]
	}
	return sid
}
