package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/target/pulse/config"
	"github.com/target/pulse/internal/adapters/retention"
	"github.com/target/pulse/internal/adapters/summarizer"
	"github.com/target/pulse/internal/core"
	"github.com/target/pulse/internal/data"
	"github.com/target/pulse/internal/instrument"
	"github.com/target/pulse/internal/observability/statsd"
	"github.com/target/pulse/internal/service"
)

// CacheKeyPrefix namespaces every key pulse writes to Redis.
const CacheKeyPrefix = "pulse:"

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Collector     *service.Collector
	Jobs          *service.JobService
	Cards         *service.CardService
	Summarizer    *summarizer.Runner
	Retention     *retention.Runner
	Repos         *data.Repos
	Observability ObservabilityContainer
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	Notifier      *instrument.Notifier
	MetricsSink   statsd.Sink
	MetricsConfig config.ObservabilityMetricsConfig
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient // Optional: disables the card cache and summary lock when nil
	Logger      *slog.Logger
	// Notifier is optional; a fresh one with the span subscriber attached is built when nil.
	Notifier *instrument.Notifier
	// Routes resolves request route patterns for the collector middleware. Optional.
	Routes service.RouteResolver
}

// NewInstrumentation returns a notifier with the span subscriber attached, so sql, cache and
// outbound HTTP events inside tracked work become spans.
func NewInstrumentation(logger *slog.Logger) (*instrument.Notifier, error) {
	n := instrument.NewNotifier(logger)
	if _, err := instrument.NewSpanSubscriber().Attach(n); err != nil {
		return nil, fmt.Errorf("attach span subscriber: %w", err)
	}
	return n, nil
}

// buildObservability configures the metrics sink.
func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig, n *instrument.Notifier) ObservabilityContainer {
	obs := ObservabilityContainer{Notifier: n, MetricsConfig: cfg.Metrics}
	if !cfg.Metrics.IsEnabled() {
		return obs
	}
	client, err := statsd.NewClient(statsd.Config{
		Enabled: true,
		Address: cfg.Metrics.StatsdAddress,
		Prefix:  cfg.Metrics.Prefix,
		Logger:  logger,
	})
	if err != nil {
		logger.Error("failed to initialise statsd client", "error", err)
		return obs
	}
	obs.MetricsSink = client
	return obs
}

// NewServices wires repositories, the collector, the read side and the background runners.
func NewServices(deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return ServiceContainer{}, errors.New("service config is required")
	}
	if deps.DB == nil {
		return ServiceContainer{}, errors.New("database connection is required")
	}
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	notifier := deps.Notifier
	if notifier == nil {
		n, err := NewInstrumentation(logger)
		if err != nil {
			return ServiceContainer{}, err
		}
		notifier = n
	}
	obs := buildObservability(logger, cfg.Observability, notifier)

	var cache core.CacheRepository
	if deps.RedisClient != nil {
		cache = data.NewRedisCacheRepo(deps.RedisClient, CacheKeyPrefix)
	}

	repos := data.NewRepos(deps.DB, data.RepoConfig{})
	collector, err := newCollector(cfg.Tracking, repos, deps.Routes, logger, obs.MetricsSink)
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("wire collector: %w", err)
	}

	cards, err := service.NewCardService(service.CardServiceOptions{
		Summaries: repos.Summaries,
		Jobs:      repos.Jobs,
		Cache:     service.NewCardCache(cache, cfg.Cache.CardTTL, logger),
		Logger:    logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("wire card service: %w", err)
	}

	jobs, err := service.NewJobService(service.JobServiceOptions{
		Repo:        repos.Jobs,
		Thresholds:  cfg.Tracking.JobThresholds,
		AllowedTags: cfg.Tracking.Tags,
		Logger:      logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("wire job service: %w", err)
	}

	summaries, err := summarizer.NewRunner(summarizer.RunnerOptions{
		Config:  cfg.Summary,
		Logger:  logger,
		Lock:    cache,
		Repo:    repos.Summaries,
		Metrics: obs.MetricsSink,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("wire summarizer: %w", err)
	}

	reaper, err := retention.NewRunner(retention.RunnerOptions{
		Config:  cfg.Retention,
		Logger:  logger,
		Repo:    repos.Retention,
		Metrics: obs.MetricsSink,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("wire retention: %w", err)
	}

	return ServiceContainer{
		Collector:     collector,
		Jobs:          jobs,
		Cards:         cards,
		Summarizer:    summaries,
		Retention:     reaper,
		Repos:         repos,
		Observability: obs,
	}, nil
}

func newCollector(
	cfg config.TrackingConfig,
	repos *data.Repos,
	routes service.RouteResolver,
	logger *slog.Logger,
	sink statsd.Sink,
) (*service.Collector, error) {
	ignore, err := service.NewIgnoreMatcher(cfg)
	if err != nil {
		return nil, err
	}
	args, err := service.NewArgumentCapture(service.ArgumentCaptureOptions{
		Enabled:    cfg.CaptureArguments,
		Expression: cfg.ArgumentsExpression,
		MaxBytes:   cfg.ArgumentsMaxBytes,
	})
	if err != nil {
		return nil, err
	}
	accumulator, err := service.NewAccumulator(repos.Aggregates)
	if err != nil {
		return nil, err
	}
	return service.NewCollector(service.CollectorOptions{
		Repos: service.CollectorRepos{
			Jobs:       repos.Jobs,
			Runs:       repos.Runs,
			Routes:     repos.Routes,
			Requests:   repos.Requests,
			Operations: repos.Operations,
			Queries:    repos.Queries,
		},
		Accumulator: accumulator,
		Classifier:  service.NewStatusClassifier(service.StatusClassifierOptions{FatalKinds: cfg.FatalErrorKinds}),
		Ignore:      ignore,
		Arguments:   args,
		Routes:      routes,
		Parents:     service.NewParentCache(service.DefaultParentCacheConfig()),
		Logger:      logger,
		Metrics:     sink,
	})
}

// ServiceOrchestrationConfig contains configuration for service orchestration.
type ServiceOrchestrationConfig struct {
	Config      *config.AppConfig
	Services    ServiceContainer
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

const (
	// shutdownWaitTimeout is the maximum time to wait for services to stop gracefully.
	shutdownWaitTimeout = 15 * time.Second
)

// serviceStartupDeps groups dependencies for service startup.
type serviceStartupDeps struct {
	ctx             context.Context
	cfg             *ServiceOrchestrationConfig
	logger          *slog.Logger
	enabledServices map[config.ServiceMode]bool
	errCh           chan error
}

// backgroundService describes a startable background component.
type backgroundService struct {
	mode  config.ServiceMode
	name  string
	start func(context.Context) error
}

// backgroundServiceHandle tracks a running background service.
type backgroundServiceHandle struct {
	mode config.ServiceMode
	name string
	done <-chan struct{}
}

// startHTTPServerIfEnabled starts the HTTP server if enabled.
func startHTTPServerIfEnabled(deps *serviceStartupDeps) *http.Server {
	if deps == nil || deps.cfg == nil || !deps.enabledServices[config.ServiceModeHTTP] {
		return nil
	}
	return StartHTTPServer(&HTTPServerConfig{
		Config:   deps.cfg.Config,
		Services: deps.cfg.Services,
		DB:       deps.cfg.DB,
		Redis:    deps.cfg.RedisClient,
		Logger:   deps.logger,
		ErrCh:    deps.errCh,
	})
}

func launchBackground(ctx context.Context, deps *serviceStartupDeps, descriptor backgroundService) <-chan struct{} {
	if deps == nil || !deps.enabledServices[descriptor.mode] {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := descriptor.start(ctx); err != nil {
			errMsg := fmt.Errorf("%s failed: %w", descriptor.name, err)
			select {
			case deps.errCh <- errMsg:
			case <-ctx.Done():
			default:
				deps.logger.WarnContext(ctx, "dropping background service error", "service", descriptor.name, "error", errMsg)
			}
		}
	}()

	deps.logger.InfoContext(ctx, "background service started", "service", descriptor.name, "mode", descriptor.mode)
	return done
}

func startBackgroundServices(deps *serviceStartupDeps, services []backgroundService) []backgroundServiceHandle {
	if deps == nil {
		return nil
	}
	handles := make([]backgroundServiceHandle, 0, len(services))

	for _, svc := range services {
		done := launchBackground(deps.ctx, deps, svc)
		if done == nil {
			continue
		}

		handles = append(handles, backgroundServiceHandle{
			mode: svc.mode,
			name: svc.name,
			done: done,
		})
	}

	return handles
}

func buildBackgroundServices(deps *serviceStartupDeps) []backgroundService {
	if deps == nil || deps.cfg == nil {
		return nil
	}
	var out []backgroundService
	if r := deps.cfg.Services.Summarizer; r != nil {
		out = append(out, backgroundService{mode: config.ServiceModeSummarizer, name: "summarizer", start: r.Run})
	}
	if r := deps.cfg.Services.Retention; r != nil {
		out = append(out, backgroundService{mode: config.ServiceModeRetention, name: "retention", start: r.Run})
	}
	return out
}

// ServiceStartupResult holds the results of starting all services.
type ServiceStartupResult struct {
	HTTPServer *http.Server
	Background []backgroundServiceHandle
}

// startServices starts all enabled services and returns their completion channels.
func startServices(deps *serviceStartupDeps) ServiceStartupResult {
	return ServiceStartupResult{
		HTTPServer: startHTTPServerIfEnabled(deps),
		Background: startBackgroundServices(deps, buildBackgroundServices(deps)),
	}
}

// RunServicesWithShutdown starts all enabled services and manages their lifecycle.
// This function blocks until a shutdown signal is received or a service fails.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}
	serviceCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	enabledServices, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}
	errCh := make(chan error, errorChannelBufferSize(enabledServices))

	result := startServices(&serviceStartupDeps{
		ctx:             serviceCtx,
		cfg:             cfg,
		logger:          logger,
		enabledServices: enabledServices,
		errCh:           errCh,
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	return waitForShutdown(shutdownConfig{
		quit:            quit,
		cancel:          cancel,
		errCh:           errCh,
		httpServer:      result.HTTPServer,
		shutdownTimeout: cfg.Config.HTTP.ShutdownTimeout,
		logger:          logger,
		backgrounds:     result.Background,
	})
}

func errorChannelCapacity(enabled map[config.ServiceMode]bool) int {
	count := 0
	for _, mode := range config.ValidServiceModes() {
		if enabled[mode] {
			count++
		}
	}
	return count
}

func errorChannelBufferSize(enabled map[config.ServiceMode]bool) int {
	return errorChannelCapacity(enabled) + 1
}

// shutdownConfig contains dependencies for graceful shutdown.
type shutdownConfig struct {
	quit            <-chan os.Signal
	cancel          context.CancelFunc
	errCh           <-chan error
	httpServer      *http.Server
	shutdownTimeout time.Duration
	logger          *slog.Logger
	backgrounds     []backgroundServiceHandle
}

// waitForShutdown waits for shutdown signal or service error.
func waitForShutdown(cfg shutdownConfig) error {
	select {
	case <-cfg.quit:
		cfg.logger.Info("shutting down services...")
		cfg.cancel()
		return gracefulStop(cfg)
	case err := <-cfg.errCh:
		cfg.logger.Error("service error", "error", err)
		cfg.cancel()
		if stopErr := gracefulStop(cfg); stopErr != nil {
			cfg.logger.Error("graceful stop failed", "error", stopErr)
		}
		return err
	}
}

// gracefulStop attempts to gracefully stop all services.
func gracefulStop(cfg shutdownConfig) error {
	if cfg.httpServer != nil {
		timeout := cfg.shutdownTimeout
		if timeout <= 0 {
			timeout = shutdownWaitTimeout
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := ShutdownHTTPServer(ShutdownConfig{
			Context: shutdownCtx,
			Server:  cfg.httpServer,
			Logger:  cfg.logger,
		}); err != nil {
			return err
		}
	}

	for _, svc := range cfg.backgrounds {
		waitForService(svc.done, svc.name, cfg.logger)
	}

	return nil
}

// waitForService waits for a service to finish with timeout.
func waitForService(done <-chan struct{}, name string, logger *slog.Logger) {
	if done == nil {
		return
	}
	select {
	case <-done:
		logger.Info(name + " stopped")
	case <-time.After(shutdownWaitTimeout):
		logger.Warn("timeout waiting for " + name + " to stop")
	}
}
