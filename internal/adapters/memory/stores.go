package memory

// Package memory provides in-process adapters for single-instance and
// development deployments.

import (
	"context"
	"errors"
	"sync"
	"time"

	apperrors "github.com/target/members-console/internal/errors"
	"github.com/target/members-console/internal/ports"
)

type pendingItem struct {
	p         ports.PendingAuthorization
	expiresAt time.Time
}

// PendingStore is an in-memory ports.PendingStore.
type PendingStore struct {
	mu    sync.Mutex
	items map[string]pendingItem
	now   func() time.Time
}

var _ ports.PendingStore = (*PendingStore)(nil)

// NewPendingStore creates an empty pending store.
func NewPendingStore() *PendingStore {
	return &PendingStore{items: make(map[string]pendingItem), now: time.Now}
}

func (s *PendingStore) Save(_ context.Context, p ports.PendingAuthorization, ttl time.Duration) error {
	if p.State == "" {
		return errors.New("state cannot be empty")
	}
	if ttl <= 0 {
		return errors.New("ttl must be positive")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for k, it := range s.items {
		if now.After(it.expiresAt) {
			delete(s.items, k)
		}
	}
	s.items[p.State] = pendingItem{p: p, expiresAt: now.Add(ttl)}
	return nil
}

func (s *PendingStore) Take(_ context.Context, state string) (ports.PendingAuthorization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[state]
	delete(s.items, state)
	if !ok || s.now().After(it.expiresAt) {
		return ports.PendingAuthorization{}, apperrors.NotFound("pending authorization not found")
	}
	return it.p, nil
}

// TokenVault is an in-memory ports.TokenVault. Entries do not survive a
// restart.
type TokenVault struct {
	mu      sync.Mutex
	entries map[string]ports.VaultEntry
	now     func() time.Time
}

var _ ports.TokenVault = (*TokenVault)(nil)

// NewTokenVault creates an empty vault.
func NewTokenVault() *TokenVault {
	return &TokenVault{entries: make(map[string]ports.VaultEntry), now: time.Now}
}

func (v *TokenVault) Save(_ context.Context, sessionID string, e ports.VaultEntry) error {
	if sessionID == "" {
		return errors.New("session ID cannot be empty")
	}
	if e.RefreshToken == "" {
		return errors.New("refresh token cannot be empty")
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.entries[sessionID] = e
	return nil
}

func (v *TokenVault) Load(_ context.Context, sessionID string) (ports.VaultEntry, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	e, ok := v.entries[sessionID]
	if !ok {
		return ports.VaultEntry{}, apperrors.NotFound("vault entry not found")
	}
	if !e.ExpiresAt.IsZero() && v.now().After(e.ExpiresAt) {
		delete(v.entries, sessionID)
		return ports.VaultEntry{}, apperrors.NotFound("vault entry not found")
	}
	return e, nil
}

func (v *TokenVault) Delete(_ context.Context, sessionID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.entries, sessionID)
	return nil
}

// Len returns the number of stored entries.
func (v *TokenVault) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.entries)
}
