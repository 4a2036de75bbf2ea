package config

import (
	"fmt"
	"strings"
	"time"
)

// SessionStore selects where pending authorizations and refresh tokens live.
type SessionStore string

const (
	// SessionStoreRedis shares state across replicas.
	SessionStoreRedis SessionStore = "redis"
	// SessionStoreMemory keeps state in process; sessions do not survive restarts.
	SessionStoreMemory SessionStore = "memory"
)

// UnmarshalText implements encoding.TextUnmarshaler for SessionStore.
func (s *SessionStore) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch SessionStore(v) {
	case SessionStoreRedis, SessionStoreMemory:
		*s = SessionStore(v)
		return nil
	default:
		return fmt.Errorf("invalid SessionStore: %q (valid options: redis, memory)", v)
	}
}

// SessionConfig controls the per-browser-session registry and token handling.
type SessionConfig struct {
	Store SessionStore `env:"SESSION_STORE" envDefault:"redis"`

	// IdleTTL evicts session managers that saw no request for this long.
	IdleTTL    time.Duration `env:"SESSION_IDLE_TTL"    envDefault:"30m"`
	MaxEntries int           `env:"SESSION_MAX_ENTRIES" envDefault:"10000"`

	// RefreshTimeout bounds a refresh triggered by token expiry.
	RefreshTimeout time.Duration `env:"SESSION_REFRESH_TIMEOUT" envDefault:"10s"`

	// TokenMinValidity is how long a token must remain valid when handed out.
	TokenMinValidity time.Duration `env:"SESSION_TOKEN_MIN_VALIDITY" envDefault:"30s"`

	// InitWait is how long a guarded request waits on an initializing session
	// before the waiting page is shown.
	InitWait time.Duration `env:"SESSION_INIT_WAIT" envDefault:"2s"`

	// InitTimeout bounds session initialization, including provider calls.
	InitTimeout time.Duration `env:"SESSION_INIT_TIMEOUT" envDefault:"15s"`

	// CookieMaxAge bounds the browser session cookie. Zero makes it a
	// browser-session cookie.
	CookieMaxAge time.Duration `env:"SESSION_COOKIE_MAX_AGE" envDefault:"0s"`
}

// Sanitize clamps durations and sizes to usable values.
func (s *SessionConfig) Sanitize() {
	if s.Store == "" {
		s.Store = SessionStoreRedis
	}
	if s.IdleTTL <= 0 {
		s.IdleTTL = 30 * time.Minute
	}
	if s.MaxEntries <= 0 {
		s.MaxEntries = 10000
	}
	if s.RefreshTimeout <= 0 {
		s.RefreshTimeout = 10 * time.Second
	}
	if s.TokenMinValidity < 0 {
		s.TokenMinValidity = 0
	}
	if s.InitWait < 0 {
		s.InitWait = 0
	}
	if s.InitTimeout <= 0 {
		s.InitTimeout = 15 * time.Second
	}
	if s.CookieMaxAge < 0 {
		s.CookieMaxAge = 0
	}
}
