package session

import (
	"net/url"
	"strings"
)

// Parameters the provider attaches to the return URL.
const (
	paramCode        = "code"
	paramState       = "state"
	paramError       = "error"
	paramAccessToken = "access_token"
	paramIDToken     = "id_token"
	paramSessionSt   = "session_state"
	paramIssuer      = "iss"
	paramErrorDesc   = "error_description"
)

// IsCallback reports whether nav carries an authorization response, either
// in the query or in the fragment.
func IsCallback(nav *url.URL) bool {
	if nav == nil {
		return false
	}
	if hasCallbackParams(nav.Query()) {
		return true
	}
	if nav.Fragment == "" {
		return false
	}
	frag, err := url.ParseQuery(nav.Fragment)
	if err != nil {
		return false
	}
	return hasCallbackParams(frag)
}

func hasCallbackParams(v url.Values) bool {
	if v.Has(paramAccessToken) || v.Has(paramIDToken) {
		return true
	}
	return v.Has(paramState) && (v.Has(paramCode) || v.Has(paramError))
}

// StripCallback returns the relative location of nav without the
// authorization response parameters, so a reload cannot replay them.
func StripCallback(nav *url.URL) string {
	if nav == nil {
		return "/"
	}
	q := nav.Query()
	for _, k := range []string{paramCode, paramState, paramError, paramErrorDesc, paramSessionSt, paramIssuer, paramAccessToken, paramIDToken} {
		q.Del(k)
	}
	out := url.URL{Path: nav.Path, RawQuery: q.Encode()}
	return SafeRedirectPath(out.String())
}

// SafeRedirectPath returns candidate when it is a same-origin relative path,
// otherwise "/".
func SafeRedirectPath(candidate string) string {
	if candidate == "" {
		return "/"
	}
	if strings.HasPrefix(candidate, "//") || strings.HasPrefix(candidate, "/\\") {
		return "/"
	}
	u, err := url.Parse(candidate)
	if err != nil || u.IsAbs() || u.Host != "" || !strings.HasPrefix(u.Path, "/") {
		return "/"
	}
	return candidate
}
