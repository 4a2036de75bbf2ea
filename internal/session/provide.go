package session

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// DefaultCookieName is the browser session cookie.
const DefaultCookieName = "console_sid"

// ProviderConfig configures the provisioning middleware.
type ProviderConfig struct {
	Registry     *Registry
	CookieName   string
	CookieDomain string
	Secure       bool
	// MaxAge bounds the browser session cookie.
	MaxAge      time.Duration
	InitTimeout time.Duration
	Logger      *slog.Logger
}

// Provide establishes the provisioning scope: it resolves the browser
// session, runs initialization once per Manager and exposes the Consumer to
// downstream handlers via the request context.
func Provide(cfg ProviderConfig) func(http.Handler) http.Handler {
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}
	if cfg.InitTimeout <= 0 {
		cfg.InitTimeout = 15 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sid := sessionID(w, r, cfg)
			m, err := cfg.Registry.Acquire(sid)
			if err != nil {
				cfg.Logger.Error("failed to create session manager", "error", err)
				http.Error(w, "session unavailable", http.StatusServiceUnavailable)
				return
			}

			// Initialization outlives a disconnecting browser.
			ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), cfg.InitTimeout)
			out := m.Initialize(ctx, r.URL)
			cancel()

			if out.Redirect != "" {
				if out.Discard {
					cfg.Registry.Discard(sid)
				}
				http.Redirect(w, r, out.Redirect, http.StatusFound)
				return
			}

			s := &scope{
				sid:      sid,
				consumer: m,
				discard:  func() { cfg.Registry.Discard(sid) },
			}
			next.ServeHTTP(w, r.WithContext(withScope(r.Context(), s)))
		})
	}
}

func sessionID(w http.ResponseWriter, r *http.Request, cfg ProviderConfig) string {
	if c, err := r.Cookie(cfg.CookieName); err == nil {
		if _, perr := uuid.Parse(c.Value); perr == nil {
			return c.Value
		}
	}
	sid := uuid.NewString()
	cookie := &http.Cookie{
		Name:     cfg.CookieName,
		Value:    sid,
		Path:     "/",
		Domain:   cfg.CookieDomain,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	if cfg.MaxAge > 0 {
		cookie.MaxAge = int(cfg.MaxAge.Seconds())
	}
	http.SetCookie(w, cookie)
	return sid
}
