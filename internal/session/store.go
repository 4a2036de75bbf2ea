package session

import (
	"sync"

	domainauth "github.com/target/members-console/internal/domain/auth"
)

// Snapshot is a consistent copy of the store. Status, Identity and Err always
// come from the same committed transition.
type Snapshot struct {
	Status   domainauth.Status
	Identity *domainauth.Identity
	Err      *domainauth.SessionError
	// Epoch changes whenever the session principal may have changed (sign in,
	// sign out, redirect). Async results tagged with an older epoch are dropped.
	Epoch   uint64
	Version uint64
}

type eventKind int

const (
	evInitStarted eventKind = iota + 1
	evAuthenticated
	evUnauthenticated
	evInitFailed
	evRedirecting
	evRedirectFailed
	evLoggedOut
	evLogoutFailed
	evRefreshed
	evRefreshFailed
	evErrorCleared
)

var eventNames = map[eventKind]string{
	evInitStarted:     "init_started",
	evAuthenticated:   "authenticated",
	evUnauthenticated: "unauthenticated",
	evInitFailed:      "init_failed",
	evRedirecting:     "redirecting",
	evRedirectFailed:  "redirect_failed",
	evLoggedOut:       "logged_out",
	evLogoutFailed:    "logout_failed",
	evRefreshed:       "refreshed",
	evRefreshFailed:   "refresh_failed",
	evErrorCleared:    "error_cleared",
}

func (k eventKind) String() string { return eventNames[k] }

type event struct {
	kind     eventKind
	identity *domainauth.Identity
	err      *domainauth.SessionError
	// epoch guards evRefreshed and evRefreshFailed.
	epoch uint64
	// prior is the state restored by evRedirectFailed and evLogoutFailed.
	prior *Snapshot
}

type result struct {
	before  Snapshot
	after   Snapshot
	applied bool
}

// Store holds the session state of one browser session. It is mutated only
// through apply, which is reachable from the Manager alone.
type Store struct {
	mu       sync.RWMutex
	status   domainauth.Status
	identity *domainauth.Identity
	err      *domainauth.SessionError
	epoch    uint64
	version  uint64
	changed  chan struct{}
}

// NewStore returns a store in the uninitialized state.
func NewStore() *Store {
	return &Store{
		status:  domainauth.StatusUninitialized,
		changed: make(chan struct{}),
	}
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Changed returns a channel closed by the next committed transition.
func (s *Store) Changed() <-chan struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.changed
}

func (s *Store) snapshotLocked() Snapshot {
	snap := Snapshot{
		Status:  s.status,
		Epoch:   s.epoch,
		Version: s.version,
	}
	if s.identity != nil {
		id := cloneIdentity(*s.identity)
		snap.Identity = &id
	}
	if s.err != nil {
		e := *s.err
		snap.Err = &e
	}
	return snap
}

// apply runs the transition function for ev and commits the result.
func (s *Store) apply(ev event) result {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := result{before: s.snapshotLocked()}
	if !s.transitionLocked(ev) {
		res.after = res.before
		return res
	}
	s.version++
	close(s.changed)
	s.changed = make(chan struct{})
	res.after = s.snapshotLocked()
	res.applied = true
	return res
}

//nolint:gocyclo // one case per event keeps the state machine readable.
func (s *Store) transitionLocked(ev event) bool {
	switch ev.kind {
	case evInitStarted:
		if s.status != domainauth.StatusUninitialized {
			return false
		}
		s.status = domainauth.StatusInitializing

	case evAuthenticated:
		if s.status != domainauth.StatusInitializing || ev.identity == nil {
			return false
		}
		s.setIdentity(ev.identity)
		s.status = domainauth.StatusAuthenticated
		s.err = nil
		s.epoch++

	case evUnauthenticated:
		if s.status != domainauth.StatusInitializing {
			return false
		}
		s.identity = nil
		s.status = domainauth.StatusUnauthenticated

	case evInitFailed:
		if s.status != domainauth.StatusInitializing {
			return false
		}
		s.identity = nil
		s.status = domainauth.StatusError
		s.err = ev.err
		s.epoch++

	case evRedirecting:
		s.identity = nil
		s.status = domainauth.StatusInitializing
		s.err = nil
		s.epoch++

	case evLoggedOut:
		s.identity = nil
		s.status = domainauth.StatusUnauthenticated
		s.err = nil
		s.epoch++

	case evRedirectFailed, evLogoutFailed:
		if ev.prior == nil {
			return false
		}
		s.status = ev.prior.Status
		s.identity = nil
		if ev.prior.Identity != nil {
			s.setIdentity(ev.prior.Identity)
		}
		s.err = ev.err
		s.epoch++

	case evRefreshed:
		if s.status != domainauth.StatusAuthenticated || s.epoch != ev.epoch || ev.identity == nil {
			return false
		}
		if s.identity != nil && s.identity.Equal(*ev.identity) {
			return false
		}
		s.setIdentity(ev.identity)

	case evRefreshFailed:
		if s.status != domainauth.StatusAuthenticated || s.epoch != ev.epoch {
			return false
		}
		s.identity = nil
		s.status = domainauth.StatusUnauthenticated
		s.err = ev.err
		s.epoch++

	case evErrorCleared:
		if s.err == nil {
			return false
		}
		s.err = nil

	default:
		return false
	}
	return true
}

func (s *Store) setIdentity(id *domainauth.Identity) {
	c := cloneIdentity(*id)
	s.identity = &c
}

func cloneIdentity(id domainauth.Identity) domainauth.Identity {
	id.Roles = append([]domainauth.Role(nil), id.Roles...)
	return id
}
