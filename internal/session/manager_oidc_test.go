package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/members-console/internal/adapters/authroles"
	"github.com/target/members-console/internal/adapters/memory"
	"github.com/target/members-console/internal/adapters/oidc"
	domainauth "github.com/target/members-console/internal/domain/auth"
	"github.com/target/members-console/internal/testutil/oidctest"
)

const oidcSessionID = "6d0b8a52-3c1e-4f7a-9b2d-8e4f1a0c5d37"

// signedInWithOIDC completes a required-policy login against idp and
// returns the Manager created for the callback leg.
func signedInWithOIDC(t *testing.T, idp *oidctest.Provider) *Manager {
	t.Helper()
	ctx := context.Background()
	client, err := oidc.NewClient(ctx, oidc.ClientConfig{
		ClientID:    "members-console",
		IssuerURL:   idp.Issuer(),
		MinValidity: 30 * time.Second,
		Pending:     memory.NewPendingStore(),
		Vault:       memory.NewTokenVault(),
		Roles:       authroles.NewStaticRoleMapper("ADMIN", "USER"),
	})
	require.NoError(t, err)

	newManager := func() *Manager {
		m := NewManager(ManagerOptions{
			SessionID:      oidcSessionID,
			Client:         client.ForSession(oidcSessionID),
			Policy:         domainauth.LoginRequired,
			Origin:         testOrigin,
			RefreshTimeout: 5 * time.Second,
		})
		t.Cleanup(m.Close)
		return m
	}

	out := newManager().Initialize(ctx, mustURL(t, testOrigin+"/members"))
	require.True(t, out.Discard)
	callback, err := idp.Authorize(out.Redirect)
	require.NoError(t, err)

	m := newManager()
	out = m.Initialize(ctx, callback)
	require.True(t, out.Callback)
	require.Equal(t, "/members", out.Redirect)
	require.Equal(t, domainauth.StatusAuthenticated, m.Status())
	return m
}

func TestManagerOIDC_TokenServesSignedInSession(t *testing.T) {
	idp := oidctest.New(t, "members-console", oidctest.User{Subject: "user-1", Email: "jdoe@example.com", Roles: []string{"USER"}})
	m := signedInWithOIDC(t, idp)

	tok, ok := m.Token(context.Background())
	require.True(t, ok)
	assert.NotEmpty(t, tok.Value)
	assert.Equal(t, 0, idp.RefreshCount())
}

func TestManagerOIDC_FailedRenewalFailsClosed(t *testing.T) {
	idp := oidctest.New(t, "members-console", oidctest.User{Subject: "user-1", Email: "jdoe@example.com", Roles: []string{"USER"}})
	// Shorter than the minimum validity, so every Token call renews first.
	idp.SetTokenTTL(20 * time.Second)
	m := signedInWithOIDC(t, idp)

	idp.FailRefresh(true)
	_, ok := m.Token(context.Background())
	assert.False(t, ok)

	snap := m.Snapshot()
	assert.Equal(t, domainauth.StatusUnauthenticated, snap.Status)
	assert.Nil(t, snap.Identity)
	require.NotNil(t, snap.Err)
	assert.Equal(t, domainauth.CauseRefreshFailed, snap.Err.Cause)

	_, ok = m.Token(context.Background())
	assert.False(t, ok)
}
