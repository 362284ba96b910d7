// Package server provides the application server and dependency wiring.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/fetch-manifest/internal/api"
	"github.com/JakeFAU/fetch-manifest/internal/config"
	goquerydoc "github.com/JakeFAU/fetch-manifest/internal/document/goquery"
	"github.com/JakeFAU/fetch-manifest/internal/fetcher/blocklist"
	collyfetcher "github.com/JakeFAU/fetch-manifest/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/fetch-manifest/internal/fetcher/headless"
	"github.com/JakeFAU/fetch-manifest/internal/fetcher/hybrid"
	"github.com/JakeFAU/fetch-manifest/internal/fetcher/ratelimit"
	"github.com/JakeFAU/fetch-manifest/internal/id/uuid"
	"github.com/JakeFAU/fetch-manifest/internal/logging"
	"github.com/JakeFAU/fetch-manifest/internal/manifest"
	"github.com/JakeFAU/fetch-manifest/internal/metrics"
	"github.com/JakeFAU/fetch-manifest/internal/resolver"
	"github.com/JakeFAU/fetch-manifest/internal/telemetry"
)

// App contains the application's dependencies.
type App struct {
	cfg       *config.Config
	logger    *zap.Logger
	apiServer *api.Server
	resolver  *resolver.Resolver
	closers   []func()
}

// NewApp creates a new App with the given configuration.
func NewApp(cfg *config.Config, logger *zap.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("creating application",
		zap.String("addr", cfg.Addr()),
		zap.String("fetcher", cfg.Fetcher.Backend),
		zap.Bool("cors", cfg.Server.CORS),
		zap.Bool("probe_well_known", cfg.Resolver.ProbeWellKnown),
		zap.Bool("synthesize", cfg.Resolver.Synthesize),
	)
	return &App{
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Resolver returns the wired resolver.
func (a *App) Resolver() *resolver.Resolver {
	return a.resolver
}

// Handler returns the HTTP handler for the API.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run starts the HTTP server and blocks until the context is canceled or a
// termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              a.cfg.Addr(),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			errCh <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	a.Close()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	default:
		return nil
	}
}

// Close releases fetcher resources, flushes spans and syncs the logger.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
	a.logger.Info("shutdown complete")
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	metrics.Init()

	app, err := NewApp(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("app init failed: %w", err)
	}

	app.logger.Info("building application dependencies")
	shutdown, err := telemetry.InitTracing(ctx, cfg.Telemetry, logger.Named("telemetry"))
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("telemetry init failed: %w", err)
	}
	app.closers = append(app.closers, func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(flushCtx); err != nil {
			app.logger.Error("telemetry shutdown error", zap.Error(err))
		}
	})

	if err := app.setupResolver(); err != nil {
		app.Close()
		return nil, err
	}

	app.apiServer = api.NewServer(
		app.resolver,
		uuid.New(),
		*cfg,
		logger.Named("api"),
	)
	return app, nil
}

func (a *App) setupResolver() error {
	r, closer, err := NewResolver(a.cfg, a.logger)
	if err != nil {
		return err
	}
	if closer != nil {
		a.closers = append(a.closers, closer)
	}
	a.resolver = r
	return nil
}

// NewResolver wires the configured fetcher and document parser into a
// resolver. The returned func, when non-nil, releases fetcher resources.
func NewResolver(cfg *config.Config, logger *zap.Logger) (*resolver.Resolver, func(), error) {
	fetcher, closer, err := setupFetcher(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	settings := cfg.ResolverSettings()
	logger.Info("resolver config",
		zap.Int("max_hops", settings.MaxHops),
		zap.Bool("probe_well_known", settings.ProbeWellKnown),
		zap.Strings("well_known_paths", settings.WellKnownPaths),
		zap.Bool("synthesize", settings.Synthesize),
	)
	return resolver.New(fetcher, goquerydoc.New(), settings, logger.Named("resolver")), closer, nil
}

func setupFetcher(cfg *config.Config, logger *zap.Logger) (manifest.Fetcher, func(), error) {
	fetcher, closer, err := newBackend(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	if cfg.HTTP.RateLimitRPS > 0 {
		logger.Info("rate limiting upstream fetches",
			zap.Float64("rps", cfg.HTTP.RateLimitRPS), zap.Int("burst", cfg.HTTP.RateLimitBurst))
		limiter, err := ratelimit.New(ratelimit.Config{
			DefaultRPS:   cfg.HTTP.RateLimitRPS,
			DefaultBurst: cfg.HTTP.RateLimitBurst,
		})
		if err != nil {
			if closer != nil {
				closer()
			}
			return nil, nil, err
		}
		fetcher = ratelimit.Wrap(fetcher, limiter)
	}
	if matcher := blocklist.New(cfg.HTTP.BlockedHosts); matcher != nil {
		logger.Info("blocking upstream hosts", zap.Strings("hosts", cfg.HTTP.BlockedHosts))
		fetcher = blocklist.Wrap(fetcher, matcher)
	}
	return fetcher, closer, nil
}

func newBackend(cfg *config.Config, logger *zap.Logger) (manifest.Fetcher, func(), error) {
	switch cfg.Fetcher.Backend {
	case config.BackendHeadless:
		f, err := newHeadless(cfg)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using headless fetcher", zap.Int("max_parallel", cfg.Fetcher.Headless.MaxParallel))
		return f, f.Close, nil
	case config.BackendAuto:
		f, err := newHeadless(cfg)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using auto fetcher",
			zap.Int("max_parallel", cfg.Fetcher.Headless.MaxParallel),
			zap.Int("promotion_threshold", cfg.PromotionThreshold()),
		)
		return hybrid.New(newColly(cfg), f, hybrid.NewHeuristic(cfg.PromotionThreshold()), logger.Named("hybrid")), f.Close, nil
	default:
		logger.Info("using colly fetcher", zap.String("user_agent", cfg.HTTP.UserAgent))
		return newColly(cfg), nil, nil
	}
}

func newColly(cfg *config.Config) *collyfetcher.Fetcher {
	return collyfetcher.New(collyfetcher.Config{
		UserAgent:    cfg.HTTP.UserAgent,
		Timeout:      cfg.FetchTimeout(),
		MaxBodyBytes: cfg.HTTP.MaxBodyBytes,
		Traced:       cfg.Telemetry.TracingEnabled,
	})
}

func newHeadless(cfg *config.Config) (*headlessfetcher.Fetcher, error) {
	f, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
		MaxParallel:       cfg.Fetcher.Headless.MaxParallel,
		UserAgent:         cfg.HTTP.UserAgent,
		NavigationTimeout: time.Duration(cfg.Fetcher.Headless.NavTimeoutSec) * time.Second,
		SettleDelay:       time.Duration(cfg.Fetcher.Headless.SettleDelayMs) * time.Millisecond,
		MaxBodyBytes:      cfg.HTTP.MaxBodyBytes,
	})
	if err != nil {
		return nil, fmt.Errorf("headless fetcher init failed: %w", err)
	}
	return f, nil
}
