package oidc

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	jmespath "github.com/jmespath-community/go-jmespath"
	domainauth "github.com/target/members-console/internal/domain/auth"
	"golang.org/x/oauth2"
)

// claimSet is a decoded JWT or UserInfo payload. Values are untrusted until
// projected.
type claimSet map[string]any

// str returns the claim as a trimmed string, ignoring non-string values.
func (c claimSet) str(key string) string {
	v, ok := c[key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(v)
}

// boolean accepts JSON booleans and the strings "true"/"false".
func (c claimSet) boolean(key string) bool {
	switch v := c[key].(type) {
	case bool:
		return v
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		return err == nil && b
	default:
		return false
	}
}

// roleNames evaluates expr and keeps the string members of the result.
func (c claimSet) roleNames(expr string) []string {
	if len(c) == 0 {
		return nil
	}
	res, err := jmespath.Search(expr, map[string]any(c))
	if err != nil || res == nil {
		return nil
	}
	switch v := res.(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, r := range v {
			if s, ok := r.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		return strings.Fields(v)
	default:
		return nil
	}
}

// idFields is the projection target before it becomes an Identity.
type idFields struct {
	subject       string
	name          string
	username      string
	givenName     string
	familyName    string
	email         string
	emailVerified bool
	roles         []string
}

// mapClaims projects ID token claims, taking roles from the access token
// when the ID token has none.
func mapClaims(id, access claimSet, rolesExpr string) idFields {
	f := idFields{
		subject:       id.str("sub"),
		name:          id.str("name"),
		username:      id.str("preferred_username"),
		givenName:     id.str("given_name"),
		familyName:    id.str("family_name"),
		email:         id.str("email"),
		emailVerified: id.boolean("email_verified"),
		roles:         id.roleNames(rolesExpr),
	}
	if len(f.roles) == 0 {
		f.roles = access.roleNames(rolesExpr)
	}
	return f
}

// fillFromUserInfoClaims fills missing fields from a UserInfo payload.
func fillFromUserInfoClaims(f *idFields, ui claimSet, rolesExpr string) {
	if f.subject == "" {
		f.subject = ui.str("sub")
	}
	if f.name == "" {
		f.name = ui.str("name")
	}
	if f.username == "" {
		f.username = ui.str("preferred_username")
	}
	if f.givenName == "" {
		f.givenName = ui.str("given_name")
	}
	if f.familyName == "" {
		f.familyName = ui.str("family_name")
	}
	if f.email == "" {
		f.email = ui.str("email")
		f.emailVerified = ui.boolean("email_verified")
	}
	if len(f.roles) == 0 {
		f.roles = ui.roleNames(rolesExpr)
	}
}

func (f idFields) complete() bool {
	return f.subject != "" && f.email != ""
}

// identity validates the projection. A subject is mandatory.
func (c *Client) identity(f idFields) (domainauth.Identity, error) {
	if f.subject == "" {
		return domainauth.Identity{}, errors.New("claims carry no subject")
	}
	return domainauth.Identity{
		Subject:       f.subject,
		Name:          f.name,
		Username:      f.username,
		GivenName:     f.givenName,
		FamilyName:    f.familyName,
		Email:         f.email,
		EmailVerified: f.emailVerified,
		Roles:         domainauth.NormalizeRoles(c.roles.Map(f.roles)),
	}, nil
}

// project verifies the token response and projects it into an Identity.
// expectedNonce is checked when non-empty; refresh responses pass "".
func (c *Client) project(ctx context.Context, tok *oauth2.Token, expectedNonce string) (domainauth.Identity, string, error) {
	ctx = c.httpContext(ctx)

	rawID, err := getIDTokenFromToken(tok)
	if err != nil {
		return domainauth.Identity{}, "", err
	}
	idTok, err := c.verifier.Verify(ctx, rawID)
	if err != nil {
		return domainauth.Identity{}, "", fmt.Errorf("verify id_token: %w", err)
	}
	if expectedNonce != "" && idTok.Nonce != expectedNonce {
		return domainauth.Identity{}, "", errors.New("invalid nonce")
	}
	var idClaims claimSet
	if claimsErr := idTok.Claims(&idClaims); claimsErr != nil {
		return domainauth.Identity{}, "", fmt.Errorf("parse id_token claims: %w", claimsErr)
	}

	// Opaque access tokens carry no claims; roles then come from elsewhere.
	var accessClaims claimSet
	if at, verr := c.accessVerifier.Verify(ctx, tok.AccessToken); verr == nil {
		if claimsErr := at.Claims(&accessClaims); claimsErr != nil {
			c.logger.Debug("ignoring undecodable access token claims", "error", claimsErr)
		}
	}

	f := mapClaims(idClaims, accessClaims, c.rolesClaim)
	if !f.complete() {
		if fillErr := c.fillFromUserInfo(ctx, tok, &f); fillErr != nil {
			c.logger.Warn("userinfo lookup failed", "error", fillErr)
		}
	}

	id, err := c.identity(f)
	if err != nil {
		return domainauth.Identity{}, "", err
	}
	return id, rawID, nil
}

func (c *Client) fillFromUserInfo(ctx context.Context, tok *oauth2.Token, f *idFields) error {
	ui, err := c.provider.UserInfo(ctx, oauth2.StaticTokenSource(tok))
	if err != nil {
		return fmt.Errorf("fetch user info: %w", err)
	}
	var claims claimSet
	if claimsErr := ui.Claims(&claims); claimsErr != nil {
		return fmt.Errorf("decode user info: %w", claimsErr)
	}
	if f.subject != "" && claims.str("sub") != "" && claims.str("sub") != f.subject {
		return errors.New("user info subject does not match id_token")
	}
	fillFromUserInfoClaims(f, claims, c.rolesClaim)
	return nil
}
