package session

import (
	"context"
	"net/http"

	domainauth "github.com/target/members-console/internal/domain/auth"
)

// Consumer is the read and command surface views use. Status never reports
// StatusError; a failed initialization reads as unauthenticated.
type Consumer interface {
	Status() domainauth.Status
	Error() *domainauth.SessionError
	Identity() *domainauth.Identity
	Snapshot() Snapshot
	Changed() <-chan struct{}

	Login(ctx context.Context, resume string) (redirect string, ok bool)
	Logout(ctx context.Context) (redirect string, ok bool)
	ClearError()
	Token(ctx context.Context) (domainauth.Token, bool)
}

// Status implements Consumer.
func (m *Manager) Status() domainauth.Status {
	return m.store.Snapshot().Status.Collapse()
}

// Error implements Consumer.
func (m *Manager) Error() *domainauth.SessionError {
	return m.store.Snapshot().Err
}

// Identity implements Consumer.
func (m *Manager) Identity() *domainauth.Identity {
	return m.store.Snapshot().Identity
}

// Snapshot implements Consumer. The status is collapsed like Status.
func (m *Manager) Snapshot() Snapshot {
	snap := m.store.Snapshot()
	snap.Status = snap.Status.Collapse()
	return snap
}

// Changed implements Consumer.
func (m *Manager) Changed() <-chan struct{} {
	return m.store.Changed()
}

var _ Consumer = (*Manager)(nil)

type scopeKey struct{}

type scope struct {
	sid      string
	consumer Consumer
	discard  func()
}

// WithConsumer returns a context inside the provisioning scope of c.
func WithConsumer(ctx context.Context, c Consumer) context.Context {
	return context.WithValue(ctx, scopeKey{}, &scope{consumer: c})
}

func withScope(ctx context.Context, s *scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, s)
}

// ConsumerFrom returns the Consumer of the enclosing provisioning scope.
func ConsumerFrom(ctx context.Context) (Consumer, bool) {
	s, ok := ctx.Value(scopeKey{}).(*scope)
	if !ok || s.consumer == nil {
		return nil, false
	}
	return s.consumer, true
}

// MustConsumer returns the Consumer of the enclosing provisioning scope and
// panics when called outside one.
func MustConsumer(ctx context.Context) Consumer {
	c, ok := ConsumerFrom(ctx)
	if !ok {
		panic("session: consumer accessed outside the session provider")
	}
	return c
}

// IDFromContext returns the browser session id of the provisioning scope.
func IDFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(scopeKey{}).(*scope); ok {
		return s.sid
	}
	return ""
}

// Navigate redirects the browser away from the application. The session's
// Manager is discarded so the return trip starts a fresh one.
func Navigate(w http.ResponseWriter, r *http.Request, target string) {
	if s, ok := r.Context().Value(scopeKey{}).(*scope); ok && s.discard != nil {
		s.discard()
	}
	http.Redirect(w, r, target, http.StatusFound)
}
