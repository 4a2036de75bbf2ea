package bootstrap

import (
	"context"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	console "github.com/target/members-console"
	"github.com/target/members-console/config"
	httpx "github.com/target/members-console/internal/http"
	"github.com/target/members-console/internal/session"
)

// HTTPServerConfig contains configuration for HTTP server.
type HTTPServerConfig struct {
	Config      *config.AppConfig
	Services    *ServiceContainer
	RedisClient redis.UniversalClient // optional; adds a readiness check
	Logger      *slog.Logger
}

// NewHTTPServer builds the HTTP server. The caller starts and stops it.
func NewHTTPServer(cfg *HTTPServerConfig) *http.Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	appCfg := cfg.Config
	if appCfg == nil {
		appCfg = &config.AppConfig{}
	}

	handler := buildHTTPHandler(httpHandlerConfig{
		Logger:   logger,
		Services: routerServices(appCfg, cfg.Services, cfg.RedisClient, logger),
	})

	addr := appCfg.HTTP.Addr
	// Guard against empty addr to avoid listening on Go default
	if addr == "" {
		addr = ":8080"
	}
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

func routerServices(
	appCfg *config.AppConfig,
	svc *ServiceContainer,
	redisClient redis.UniversalClient,
	logger *slog.Logger,
) httpx.RouterServices {
	services := httpx.RouterServices{
		Members:      svc.Members,
		Renderer:     mustRenderer(logger),
		StaticFS:     subFS(console.StaticFS, "web/static", logger),
		GuardWait:    appCfg.Session.InitWait,
		Metrics:      svc.MetricsHandler,
		CookieDomain: appCfg.HTTP.CookieDomain,
		PageSize:     appCfg.MemberAPI.PageSize,
		Logger:       logger,
		Sessions: session.Provide(session.ProviderConfig{
			Registry:     svc.Sessions,
			CookieDomain: appCfg.HTTP.CookieDomain,
			Secure:       appCfg.HTTP.SecureCookies(),
			MaxAge:       appCfg.Session.CookieMaxAge,
			InitTimeout:  appCfg.Session.InitTimeout,
			Logger:       logger,
		}),
	}
	if redisClient != nil {
		services.HealthChecks = append(services.HealthChecks, func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}
	return services
}

type httpHandlerConfig struct {
	Logger   *slog.Logger
	Services httpx.RouterServices
}

func buildHTTPHandler(cfg httpHandlerConfig) http.Handler {
	// Order: Recover -> Logging -> Router
	h := httpx.NewRouter(cfg.Services)
	h = httpx.Logging(cfg.Logger)(h)
	h = httpx.Recover(cfg.Logger)(h)
	return h
}

// mustRenderer parses the embedded templates. They ship with the binary, so
// a parse failure is a build defect.
func mustRenderer(logger *slog.Logger) *httpx.TemplateRenderer {
	r, err := httpx.NewTemplateRenderer(httpx.TemplateRendererConfig{
		TemplateFS: subFS(console.TemplateFS, "web/templates", logger),
		Logger:     logger,
	})
	if err != nil {
		panic(err)
	}
	return r
}

//nolint:ireturn // fs.Sub returns an interface.
func subFS(fsys fs.FS, dir string, logger *slog.Logger) fs.FS {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		logger.Error("failed to create sub-filesystem", "dir", dir, "error", err)
		return nil
	}
	return sub
}

// ShutdownConfig contains dependencies for HTTP server shutdown.
type ShutdownConfig struct {
	Context context.Context
	Server  *http.Server
	Logger  *slog.Logger
}

// ShutdownHTTPServer gracefully shuts down the HTTP server.
func ShutdownHTTPServer(cfg ShutdownConfig) error {
	if cfg.Server == nil {
		return nil
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("shutting down HTTP server")
	}

	ctx := cfg.Context
	if ctx == nil {
		ctx = context.Background()
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownWaitTimeout)
	defer cancel()

	if err := cfg.Server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("HTTP server stopped")
	}

	return nil
}
