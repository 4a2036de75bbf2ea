package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/target/members-console/config"
	"github.com/target/members-console/internal/adapters/memberapi"
	"github.com/target/members-console/internal/observability/metrics"
	"github.com/target/members-console/internal/service"
	"github.com/target/members-console/internal/session"
	"golang.org/x/sync/errgroup"
)

const shutdownWaitTimeout = 10 * time.Second

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Members  *service.MemberService
	Sessions *session.Registry
	Metrics  *metrics.Session
	// MetricsHandler exposes the Prometheus registry.
	MetricsHandler http.Handler
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
	// Registerer defaults to a fresh registry with Go and process collectors.
	Registerer *prometheus.Registry
}

// NewServices builds the session registry, the resource API client and the
// member service on top of it.
func NewServices(ctx context.Context, deps *ServiceDeps) (*ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return nil, errors.New("service deps require config")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	reg := deps.Registerer
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	sessionMetrics, err := metrics.NewSession(reg)
	if err != nil {
		return nil, fmt.Errorf("register session metrics: %w", err)
	}

	registry, err := BuildSessionRegistry(ctx, SessionDeps{
		Config:      deps.Config,
		RedisClient: deps.RedisClient,
		Recorder:    sessionMetrics,
		Gauge:       sessionMetrics,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}

	api, err := memberapi.NewClient(memberapi.Config{
		BaseURL: deps.Config.MemberAPI.URL,
		Timeout: deps.Config.MemberAPI.Timeout,
		Tokens:  sessionTokens,
		Logger:  logger,
	})
	if err != nil {
		registry.Close()
		return nil, fmt.Errorf("build member api client: %w", err)
	}

	return &ServiceContainer{
		Members: service.NewMemberService(service.MemberServiceOptions{
			Members:      api,
			Registration: api,
			Logger:       logger,
		}),
		Sessions:       registry,
		Metrics:        sessionMetrics,
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
	}, nil
}

// sessionTokens hands the resource API client the token of the browser
// session serving the request.
//
//nolint:ireturn // memberapi only needs the TokenSource contract.
func sessionTokens(ctx context.Context) (memberapi.TokenSource, bool) {
	c, ok := session.ConsumerFrom(ctx)
	if !ok {
		return nil, false
	}
	return c, true
}

// ServiceOrchestrationConfig groups what RunServicesWithShutdown needs.
type ServiceOrchestrationConfig struct {
	Config      *config.AppConfig
	Services    *ServiceContainer
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// RunServicesWithShutdown serves HTTP until SIGINT/SIGTERM or a server
// failure, then drains the server and closes every session.
func RunServicesWithShutdown(ctx context.Context, cfg *ServiceOrchestrationConfig) error {
	if cfg == nil || cfg.Config == nil || cfg.Services == nil {
		return errors.New("service orchestration config is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := NewHTTPServer(&HTTPServerConfig{
		Config:      cfg.Config,
		Services:    cfg.Services,
		RedisClient: cfg.RedisClient,
		Logger:      logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting HTTP server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down services...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownWaitTimeout)
		defer cancel()
		err := ShutdownHTTPServer(ShutdownConfig{
			Context: shutdownCtx,
			Server:  server,
			Logger:  logger,
		})
		cfg.Services.Sessions.Close()
		return err
	})

	return g.Wait()
}
