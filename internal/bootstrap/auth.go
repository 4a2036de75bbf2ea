package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/target/members-console/config"
	"github.com/target/members-console/internal/adapters/authroles"
	"github.com/target/members-console/internal/adapters/devauth"
	"github.com/target/members-console/internal/adapters/memory"
	"github.com/target/members-console/internal/adapters/oidc"
	redisadapter "github.com/target/members-console/internal/adapters/redis"
	"github.com/target/members-console/internal/ports"
	"github.com/target/members-console/internal/session"
)

// identityFactory builds the identity client bound to one browser session.
type identityFactory func(sessionID string) ports.IdentityClient

// SessionDeps contains what the session registry is built from.
type SessionDeps struct {
	Config      *config.AppConfig
	RedisClient redis.UniversalClient // required when the session store is redis
	Recorder    session.Recorder      // optional
	Gauge       session.ActiveGauge   // optional
	Logger      *slog.Logger
}

// BuildSessionRegistry wires the configured identity client adapter into a
// per-browser-session registry.
func BuildSessionRegistry(ctx context.Context, deps SessionDeps) (*session.Registry, error) {
	if deps.Config == nil {
		return nil, errors.New("session registry requires config")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config

	var newClient identityFactory
	switch cfg.Auth.Mode {
	case config.AuthModeMock:
		f, err := buildDevAuth(cfg.Auth, logger)
		if err != nil {
			return nil, err
		}
		newClient = f
	case config.AuthModeOAuth:
		pending, vault, err := buildStores(cfg.Session, deps.RedisClient)
		if err != nil {
			return nil, err
		}
		f, err := buildOIDC(ctx, cfg, pending, vault, logger)
		if err != nil {
			return nil, err
		}
		newClient = f
	default:
		return nil, fmt.Errorf("unsupported auth mode %q", cfg.Auth.Mode)
	}

	return session.NewRegistry(session.RegistryOptions{
		MaxEntries: cfg.Session.MaxEntries,
		IdleTTL:    cfg.Session.IdleTTL,
		Gauge:      deps.Gauge,
		Factory: func(sid string) (*session.Manager, error) {
			return session.NewManager(session.ManagerOptions{
				SessionID:      sid,
				Client:         newClient(sid),
				Policy:         cfg.Auth.LoginPolicy,
				Origin:         cfg.HTTP.BaseURL,
				RefreshTimeout: cfg.Session.RefreshTimeout,
				Logger:         logger,
				Recorder:       deps.Recorder,
			}), nil
		},
	})
}

// buildStores selects the pending authorization store and token vault.
//
//nolint:ireturn // callers only need the port interfaces.
func buildStores(cfg config.SessionConfig, client redis.UniversalClient) (ports.PendingStore, ports.TokenVault, error) {
	switch cfg.Store {
	case config.SessionStoreMemory:
		return memory.NewPendingStore(), memory.NewTokenVault(), nil
	case config.SessionStoreRedis:
		if client == nil {
			return nil, nil, errors.New("SESSION_STORE=redis requires a redis client")
		}
		return redisadapter.NewPendingStore(client), redisadapter.NewTokenVault(client, cfg.IdleTTL), nil
	default:
		return nil, nil, fmt.Errorf("unsupported session store %q", cfg.Store)
	}
}

func buildOIDC(
	ctx context.Context,
	cfg *config.AppConfig,
	pending ports.PendingStore,
	vault ports.TokenVault,
	logger *slog.Logger,
) (identityFactory, error) {
	oidcCfg := cfg.Auth.OIDC
	client, err := oidc.NewClient(ctx, oidc.ClientConfig{
		ClientID:     oidcCfg.ClientID,
		ClientSecret: oidcCfg.ClientSecret,
		IssuerURL:    oidcCfg.Issuer(),
		Scope:        oidcCfg.Scope,
		RolesClaim:   oidcCfg.RolesClaim,
		MinValidity:  cfg.Session.TokenMinValidity,
		Pending:      pending,
		Vault:        vault,
		Roles:        authroles.NewStaticRoleMapper(cfg.Auth.AdminRoles, cfg.Auth.UserRoles),
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build oidc client: %w", err)
	}
	logger.Info("oidc identity client ready", "issuer", oidcCfg.Issuer(), "client_id", oidcCfg.ClientID)
	return func(sid string) ports.IdentityClient { return client.ForSession(sid) }, nil
}

func buildDevAuth(cfg config.AuthConfig, logger *slog.Logger) (identityFactory, error) {
	prov, err := devauth.NewProvider(devauth.Config{
		Subject:  cfg.DevAuth.Subject,
		Username: cfg.DevAuth.Username,
		Email:    cfg.DevAuth.Email,
		Roles:    cfg.DevAuth.DevRoles(),
	})
	if err != nil {
		return nil, fmt.Errorf("build dev auth provider: %w", err)
	}
	logger.Warn("dev authentication enabled; every login signs in the configured identity",
		"subject", cfg.DevAuth.Subject)
	return func(sid string) ports.IdentityClient { return prov.ForSession(sid) }, nil
}
