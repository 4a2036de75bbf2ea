package httpx

import (
	"net/http"

	domainauth "github.com/target/members-console/internal/domain/auth"
	"github.com/target/members-console/internal/session"
)

// PageData is what every page template receives.
type PageData struct {
	Title        string
	Path         string
	CSRFToken    string
	User         *domainauth.Identity
	Status       domainauth.Status
	SessionError *domainauth.SessionError
	Flash        *Flash
	Data         any
}

// newPageData reads the session view once so status, identity and error come
// from the same snapshot.
func newPageData(w http.ResponseWriter, r *http.Request, title string, data any) PageData {
	pd := PageData{
		Title:     title,
		Path:      session.SafeRedirectPath(r.URL.RequestURI()),
		CSRFToken: GetCSRFToken(r),
		Flash:     popFlash(w, r),
		Data:      data,
	}
	if c, ok := session.ConsumerFrom(r.Context()); ok {
		snap := c.Snapshot()
		pd.Status = snap.Status
		pd.User = snap.Identity
		pd.SessionError = snap.Err
	}
	return pd
}
