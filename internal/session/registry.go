package session

import (
	"errors"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Factory builds the Manager for a browser session id.
type Factory func(sessionID string) (*Manager, error)

// ActiveGauge tracks the number of live managers.
type ActiveGauge interface {
	Set(float64)
}

// Registry keeps one Manager per browser session id. Entries expire after
// the idle TTL; every access slides the expiry. Evicted managers are closed.
type Registry struct {
	mu      sync.Mutex
	cache   *expirable.LRU[string, *Manager]
	factory Factory
	gauge   ActiveGauge
}

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	MaxEntries int
	IdleTTL    time.Duration
	Factory    Factory
	Gauge      ActiveGauge
}

// NewRegistry creates a Registry.
func NewRegistry(opts RegistryOptions) (*Registry, error) {
	if opts.Factory == nil {
		return nil, errors.New("session registry requires a factory")
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = 10000
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = 30 * time.Minute
	}
	r := &Registry{factory: opts.Factory, gauge: opts.Gauge}
	r.cache = expirable.NewLRU[string, *Manager](opts.MaxEntries, r.evicted, opts.IdleTTL)
	return r, nil
}

func (r *Registry) evicted(_ string, m *Manager) {
	// Runs under the cache lock. Close may wait on an in-flight refresh.
	go func() {
		m.Close()
		r.report()
	}()
}

// Acquire returns the Manager for sid, creating it on first use.
func (r *Registry) Acquire(sid string) (*Manager, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.cache.Get(sid); ok {
		r.cache.Add(sid, m)
		return m, nil
	}
	m, err := r.factory(sid)
	if err != nil {
		return nil, err
	}
	// An expired entry can linger until its bucket is purged, and Add would
	// overwrite it without eviction. Remove closes it first.
	r.cache.Remove(sid)
	r.cache.Add(sid, m)
	r.report()
	return m, nil
}

// Peek returns the Manager for sid without creating or touching it.
func (r *Registry) Peek(sid string) (*Manager, bool) {
	return r.cache.Peek(sid)
}

// Discard drops and closes the Manager for sid.
func (r *Registry) Discard(sid string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache.Remove(sid)
}

// Len returns the number of live managers.
func (r *Registry) Len() int {
	return r.cache.Len()
}

// Close discards every Manager.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache.Purge()
}

func (r *Registry) report() {
	if r.gauge != nil {
		r.gauge.Set(float64(r.cache.Len()))
	}
}
