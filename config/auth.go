package config

import (
	"errors"
	"fmt"
	"strings"

	domainauth "github.com/target/members-console/internal/domain/auth"
)

// AuthMode represents the authentication mode for the application.
type AuthMode string

const (
	// AuthModeOAuth uses OAuth/OIDC for authentication.
	AuthModeOAuth AuthMode = "oauth"
	// AuthModeMock uses mock/dev authentication (for development only).
	AuthModeMock AuthMode = "mock"
)

// UnmarshalText implements encoding.TextUnmarshaler for AuthMode.
func (a *AuthMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(string(text))
	switch v {
	case "oauth", "mock":
		*a = AuthMode(v)
		return nil
	default:
		return fmt.Errorf("invalid AuthMode: %q (valid options: oauth, mock)", v)
	}
}

// OIDCConfig contains the identity provider settings. The issuer is
// <BaseURL>/realms/<Realm> unless IssuerURL overrides it.
type OIDCConfig struct {
	BaseURL      string `env:"BASE_URL"`
	Realm        string `env:"REALM"`
	ClientID     string `env:"CLIENT_ID"     envDefault:"members-console"`
	ClientSecret string `env:"CLIENT_SECRET"` // empty for public clients
	Scope        string `env:"SCOPE"         envDefault:"openid profile email"`
	RolesClaim   string `env:"ROLES_CLAIM"   envDefault:"realm_access.roles"`
	IssuerURL    string `env:"ISSUER_URL"`
}

// Issuer returns the effective issuer URL.
func (c OIDCConfig) Issuer() string {
	if c.IssuerURL != "" {
		return c.IssuerURL
	}
	if c.BaseURL == "" || c.Realm == "" {
		return ""
	}
	return strings.TrimSuffix(c.BaseURL, "/") + "/realms/" + c.Realm
}

// DevAuthConfig controls mock/dev authentication identity.
// Used when AUTH_MODE=mock for development and testing.
type DevAuthConfig struct {
	Subject  string   `env:"SUBJECT"  envDefault:"dev-user"`
	Username string   `env:"USERNAME" envDefault:"dev"`
	Email    string   `env:"EMAIL"    envDefault:"dev@example.com"`
	Roles    []string `env:"ROLES"    envDefault:"ADMIN;USER"      envSeparator:";"`
}

// AuthConfig groups all authentication-related configuration.
type AuthConfig struct {
	// Mode determines which identity client adapter to use.
	Mode AuthMode `env:"AUTH_MODE" envDefault:"oauth"`

	// LoginPolicy decides whether visitors are sent to the provider on load.
	LoginPolicy domainauth.LoginPolicy `env:"LOGIN_POLICY" envDefault:"required"`

	// OIDC configuration (used when Mode=oauth).
	OIDC OIDCConfig `envPrefix:"OIDC_"`

	// DevAuth configuration (used when Mode=mock).
	DevAuth DevAuthConfig `envPrefix:"DEV_AUTH_"`

	// AdminRoles and UserRoles are comma-separated provider role names.
	AdminRoles string `env:"AUTH_ADMIN_ROLES" envDefault:"ADMIN"`
	UserRoles  string `env:"AUTH_USER_ROLES"  envDefault:"USER"`
}

// Sanitize trims provider settings.
func (a *AuthConfig) Sanitize() {
	a.OIDC.BaseURL = strings.TrimSpace(a.OIDC.BaseURL)
	a.OIDC.Realm = strings.TrimSpace(a.OIDC.Realm)
	a.OIDC.IssuerURL = strings.TrimSpace(a.OIDC.IssuerURL)
	a.OIDC.ClientID = strings.TrimSpace(a.OIDC.ClientID)
	if a.LoginPolicy == "" {
		a.LoginPolicy = domainauth.LoginRequired
	}
}

// Validate reports missing provider settings for the selected mode.
func (a *AuthConfig) Validate() error {
	switch a.Mode {
	case AuthModeOAuth:
		if a.OIDC.Issuer() == "" {
			return errors.New("OIDC_ISSUER_URL or OIDC_BASE_URL and OIDC_REALM are required")
		}
		if a.OIDC.ClientID == "" {
			return errors.New("OIDC_CLIENT_ID is required")
		}
	case AuthModeMock:
		if a.DevAuth.Subject == "" || a.DevAuth.Email == "" {
			return errors.New("DEV_AUTH_SUBJECT and DEV_AUTH_EMAIL are required")
		}
	}
	return nil
}

// DevRoles converts the configured dev roles to application roles.
func (d DevAuthConfig) DevRoles() []domainauth.Role {
	roles := make([]domainauth.Role, 0, len(d.Roles))
	for _, r := range d.Roles {
		roles = append(roles, domainauth.Role(strings.ToUpper(strings.TrimSpace(r))))
	}
	return domainauth.NormalizeRoles(roles)
}
