package httpx

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	domainauth "github.com/target/members-console/internal/domain/auth"
	"github.com/target/members-console/internal/session"
)

// AuthHandlers exposes the session consumer commands over HTTP.
type AuthHandlers struct {
	T      *TemplateRenderer
	Logger *slog.Logger
}

func (h *AuthHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// LoginPage renders the landing view with a manual login action.
// GET /auth/login?redirect_uri=<optional_redirect>.
func (h *AuthHandlers) LoginPage(w http.ResponseWriter, r *http.Request) {
	resume := session.SafeRedirectPath(r.URL.Query().Get("redirect_uri"))
	c := session.MustConsumer(r.Context())
	if c.Status() == domainauth.StatusAuthenticated {
		http.Redirect(w, r, resume, http.StatusFound)
		return
	}
	data := newPageData(w, r, "Sign in", struct{ Resume string }{Resume: resume})
	if err := h.T.Render(w, http.StatusOK, pageLogin, data); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// Login starts the redirect-based login.
// POST /auth/login.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	resume := session.SafeRedirectPath(r.PostFormValue("redirect_uri"))
	c := session.MustConsumer(r.Context())
	target, ok := c.Login(r.Context(), resume)
	if !ok {
		back := PathLogin + "?" + url.Values{"redirect_uri": {resume}}.Encode()
		http.Redirect(w, r, back, http.StatusSeeOther)
		return
	}
	session.Navigate(w, r, target)
}

// Logout ends the session and sends the browser to the provider's end-session endpoint.
// POST /auth/logout.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	c := session.MustConsumer(r.Context())
	target, ok := c.Logout(r.Context())
	if !ok {
		back := session.SafeRedirectPath(r.PostFormValue("redirect_uri"))
		if back == "/" {
			back = PathMembers
		}
		http.Redirect(w, r, back, http.StatusSeeOther)
		return
	}
	h.logger().InfoContext(r.Context(), "user signed out", "session_id", shortSID(session.IDFromContext(r.Context())))
	session.Navigate(w, r, target)
}

// ClearError dismisses the current session error.
// POST /auth/error/clear.
func (h *AuthHandlers) ClearError(w http.ResponseWriter, r *http.Request) {
	session.MustConsumer(r.Context()).ClearError()
	if wantsJSON(r) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, session.SafeRedirectPath(r.PostFormValue("redirect_uri")), http.StatusSeeOther)
}

type statusError struct {
	Cause   domainauth.ErrorCause `json:"cause"`
	Message string                `json:"message"`
}

type statusIdentity struct {
	Subject       string   `json:"subject"`
	Name          string   `json:"name,omitempty"`
	Username      string   `json:"username,omitempty"`
	Email         string   `json:"email,omitempty"`
	EmailVerified bool     `json:"emailVerified"`
	Roles         []string `json:"roles"`
}

type statusResponse struct {
	Status   domainauth.Status `json:"status"`
	Error    *statusError      `json:"error,omitempty"`
	Identity *statusIdentity   `json:"identity,omitempty"`
}

// Status returns the session view as JSON.
// GET /auth/status.
func (h *AuthHandlers) Status(w http.ResponseWriter, r *http.Request) {
	snap := session.MustConsumer(r.Context()).Snapshot()
	resp := statusResponse{Status: snap.Status}
	if snap.Err != nil {
		resp.Error = &statusError{Cause: snap.Err.Cause, Message: snap.Err.Message}
	}
	if id := snap.Identity; id != nil {
		roles := make([]string, 0, len(id.Roles))
		for _, role := range id.Roles {
			roles = append(roles, string(role))
		}
		resp.Identity = &statusIdentity{
			Subject:       id.Subject,
			Name:          id.DisplayName(),
			Username:      id.Username,
			Email:         id.Email,
			EmailVerified: id.EmailVerified,
			Roles:         roles,
		}
	}
	WriteJSON(w, http.StatusOK, resp)
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

func shortSID(sid string) string {
	if len(sid) > 8 {
		return sid[:8]
	}
	return sid
}
