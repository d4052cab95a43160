// Package auditfront is the public API for embedding the auditfront web
// front end: per-session analysis runs against the compliance backend (or a
// local replay), streamed to the browser.
//
//	app, err := auditfront.New(
//	    auditfront.WithVersion(version),
//	    auditfront.WithLogger(logger),
//	)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
//
// internal/* never imports this package.
package auditfront

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ashita-ai/auditfront/internal/auth"
	"github.com/ashita-ai/auditfront/internal/config"
	"github.com/ashita-ai/auditfront/internal/ratelimit"
	"github.com/ashita-ai/auditfront/internal/runstate"
	"github.com/ashita-ai/auditfront/internal/server"
	"github.com/ashita-ai/auditfront/internal/session"
	"github.com/ashita-ai/auditfront/internal/telemetry"
	"github.com/ashita-ai/auditfront/ui"
)

// shutdownTimeout bounds the HTTP drain on shutdown.
const shutdownTimeout = 10 * time.Second

// App is the auditfront server lifecycle. Construct with New(), run with Run().
type App struct {
	cfg          config.Config
	srv          *server.Server
	sessions     *session.Registry
	limiter      ratelimit.Limiter
	otelShutdown telemetry.Shutdown
	logger       *slog.Logger
	version      string
}

// New loads configuration, wires all subsystems, and returns a ready-to-run
// App. It does NOT start any goroutines or accept HTTP connections; call Run.
func New(opts ...Option) (*App, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.port != 0 {
		cfg.Port = o.port
	}
	if o.backendURL != "" {
		cfg.BackendURL = o.backendURL
		cfg.Simulate = false
	}
	if o.simulate != nil {
		cfg.Simulate = *o.simulate
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	otelShutdown, err := telemetry.Init(context.Background(), telemetry.Config{
		Endpoint:    cfg.OTELEndpoint,
		Insecure:    cfg.OTELInsecure,
		ServiceName: cfg.ServiceName,
		Version:     version,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	exec, err := runstate.NewExecutor(cfg, logger)
	if err != nil {
		_ = otelShutdown(context.Background())
		return nil, err
	}
	if cfg.Simulate {
		logger.Warn("analysis backend not used, runs are simulated", "speed", cfg.SimulateSpeed)
	}

	sessionMgr, err := auth.NewSessionManager(cfg.SessionKeyPath, cfg.SessionTTL)
	if err != nil {
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("session keys: %w", err)
	}

	sessions := session.NewRegistry(func() *runstate.Machine {
		return runstate.New(exec, runstate.WithLogger(logger))
	}, cfg.SessionTTL, logger)

	uiFS, err := ui.DistFS()
	if err != nil {
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("ui: %w", err)
	}

	middlewares := make([]func(http.Handler) http.Handler, 0, len(o.middlewares))
	for _, mw := range o.middlewares {
		middlewares = append(middlewares, mw)
	}

	limiter := ratelimit.New(cfg.RateLimitRPS, cfg.RateLimitBurst)
	srv := server.New(server.ServerConfig{
		Sessions:            sessions,
		SessionMgr:          sessionMgr,
		Executor:            exec.Name(),
		Logger:              logger,
		Limiter:             limiter,
		UIFS:                uiFS,
		Middlewares:         middlewares,
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
	})

	logger.Info("auditfront configured",
		"version", version, "port", cfg.Port, "executor", exec.Name(), "backend_url", cfg.BackendURL)

	return &App{
		cfg:          cfg,
		srv:          srv,
		sessions:     sessions,
		limiter:      limiter,
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      version,
	}, nil
}

// Handler returns the root HTTP handler, for tests and for embedding the
// front end in another server.
func (a *App) Handler() http.Handler {
	return a.srv.Handler()
}

// Run serves HTTP and evicts idle sessions until ctx is cancelled or the
// server fails. On return every session has been closed and telemetry
// flushed.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return a.sessions.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("auditfront shutting down")
		// Closing the sessions ends open event streams so the drain can finish.
		a.sessions.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("http shutdown error", "error", err)
		}
		return nil
	})

	err := g.Wait()
	_ = a.limiter.Close()
	_ = a.otelShutdown(context.Background())
	a.logger.Info("auditfront stopped")
	return err
}
