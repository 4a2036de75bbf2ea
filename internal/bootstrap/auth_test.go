package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/members-console/config"
	"github.com/target/members-console/internal/testutil/oidctest"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func baseConfig() *config.AppConfig {
	cfg := &config.AppConfig{
		IsDev: true,
		Auth: config.AuthConfig{
			Mode: config.AuthModeMock,
			DevAuth: config.DevAuthConfig{
				Subject: "dev-1",
				Email:   "dev@example.com",
				Roles:   []string{"ADMIN"},
			},
			AdminRoles: "ADMIN",
			UserRoles:  "USER",
		},
		Session:   config.SessionConfig{Store: config.SessionStoreMemory},
		HTTP:      config.HTTPConfig{BaseURL: "http://localhost:8080"},
		MemberAPI: config.MemberAPIConfig{URL: "http://localhost:8081"},
	}
	cfg.Sanitize()
	return cfg
}

func TestBuildSessionRegistry_DevAuth(t *testing.T) {
	reg, err := BuildSessionRegistry(context.Background(), SessionDeps{Config: baseConfig(), Logger: discardLogger()})
	require.NoError(t, err)
	t.Cleanup(reg.Close)

	m, err := reg.Acquire("6a1c2f3e-8b9d-4e0f-a1b2-c3d4e5f60718")
	require.NoError(t, err)
	assert.NotNil(t, m)
	assert.Equal(t, 1, reg.Len())
}

func TestBuildSessionRegistry_OIDCWithMemoryStore(t *testing.T) {
	op := oidctest.New(t, "console", oidctest.User{Subject: "u-1", Email: "u@example.com"})

	cfg := baseConfig()
	cfg.Auth.Mode = config.AuthModeOAuth
	cfg.Auth.OIDC = config.OIDCConfig{
		IssuerURL:  op.Issuer(),
		ClientID:   "console",
		Scope:      "openid profile email",
		RolesClaim: "realm_access.roles",
	}

	reg, err := BuildSessionRegistry(context.Background(), SessionDeps{Config: cfg, Logger: discardLogger()})
	require.NoError(t, err)
	t.Cleanup(reg.Close)

	_, err = reg.Acquire("6a1c2f3e-8b9d-4e0f-a1b2-c3d4e5f60718")
	require.NoError(t, err)
}

func TestBuildSessionRegistry_Errors(t *testing.T) {
	t.Run("redis store without client", func(t *testing.T) {
		cfg := baseConfig()
		cfg.Auth.Mode = config.AuthModeOAuth
		cfg.Auth.OIDC = config.OIDCConfig{IssuerURL: "http://127.0.0.1:1", ClientID: "console"}
		cfg.Session.Store = config.SessionStoreRedis

		_, err := BuildSessionRegistry(context.Background(), SessionDeps{Config: cfg, Logger: discardLogger()})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "redis client")
	})

	t.Run("unreachable issuer", func(t *testing.T) {
		cfg := baseConfig()
		cfg.Auth.Mode = config.AuthModeOAuth
		cfg.Auth.OIDC = config.OIDCConfig{IssuerURL: "http://127.0.0.1:1", ClientID: "console"}

		_, err := BuildSessionRegistry(context.Background(), SessionDeps{Config: cfg, Logger: discardLogger()})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "build oidc client")
	})

	t.Run("missing config", func(t *testing.T) {
		_, err := BuildSessionRegistry(context.Background(), SessionDeps{})
		require.Error(t, err)
	})
}
