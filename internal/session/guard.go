package session

import (
	"net/http"
	"net/url"
	"time"

	domainauth "github.com/target/members-console/internal/domain/auth"
)

// GuardConfig configures the route guard.
type GuardConfig struct {
	// LoginPath is the login route; the requested location is passed in
	// the redirect_uri query parameter.
	LoginPath string
	// Wait bounds how long a request waits for initialization to settle.
	Wait time.Duration
	// Waiting renders the neutral indicator shown while initializing.
	Waiting http.Handler
}

// Guard gates a view on authentication. While initializing it shows a
// waiting indicator, unauthenticated visitors are sent to the login route,
// and authenticated ones get the wrapped view. It must be mounted inside
// Provide.
func Guard(cfg GuardConfig) func(http.Handler) http.Handler {
	if cfg.LoginPath == "" {
		cfg.LoginPath = "/auth/login"
	}
	if cfg.Waiting == nil {
		cfg.Waiting = http.HandlerFunc(waitingPage)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c := MustConsumer(r.Context())
			status := settle(r, c, cfg.Wait)

			switch status {
			case domainauth.StatusAuthenticated:
				next.ServeHTTP(w, r)
			case domainauth.StatusInitializing, domainauth.StatusUninitialized:
				cfg.Waiting.ServeHTTP(w, r)
			default:
				target := cfg.LoginPath + "?" + url.Values{"redirect_uri": {r.URL.RequestURI()}}.Encode()
				code := http.StatusFound
				if r.Method != http.MethodGet && r.Method != http.MethodHead {
					code = http.StatusSeeOther
				}
				http.Redirect(w, r, target, code)
			}
		})
	}
}

func settle(r *http.Request, c Consumer, wait time.Duration) domainauth.Status {
	status := c.Status()
	if wait <= 0 {
		return status
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	for status == domainauth.StatusInitializing || status == domainauth.StatusUninitialized {
		changed := c.Changed()
		if s := c.Status(); s != status {
			return s
		}
		select {
		case <-changed:
			status = c.Status()
		case <-timer.C:
			return status
		case <-r.Context().Done():
			return status
		}
	}
	return status
}

// waitingPage is the plain fallback for routers that render no template.
func waitingPage(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Refresh", "1")
	w.WriteHeader(http.StatusAccepted)
	_, _ = w.Write([]byte("Signing you in...\n"))
}
