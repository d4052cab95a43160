package server

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashita-ai/auditfront/internal/auth"
	"github.com/ashita-ai/auditfront/internal/ctxutil"
	"github.com/ashita-ai/auditfront/internal/ratelimit"
	"github.com/ashita-ai/auditfront/internal/session"
)

// Server is the auditfront HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServerConfig holds all dependencies and configuration for creating a Server.
// Limiter, UIFS and Middlewares are optional.
type ServerConfig struct {
	// Required dependencies.
	Sessions   *session.Registry
	SessionMgr *auth.SessionManager
	Executor   string
	Logger     *slog.Logger

	// Optional dependencies (nil = disabled).
	Limiter ratelimit.Limiter
	UIFS    fs.FS

	// Middlewares wrap the whole chain; the first is outermost.
	Middlewares []func(http.Handler) http.Handler

	// HTTP server settings.
	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	h := NewHandlers(HandlersDeps{
		Sessions:            cfg.Sessions,
		Executor:            cfg.Executor,
		Logger:              cfg.Logger,
		Version:             cfg.Version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
	})

	limiter := cfg.Limiter
	if limiter == nil {
		limiter = ratelimit.NoopLimiter{}
	}
	startRL := ratelimit.Middleware(limiter, sessionKeyFunc, requestIDFunc, cfg.Logger)

	mux := http.NewServeMux()

	// Run control for the caller's session. Only starting a run is rate limited.
	mux.Handle("POST /v1/run", startRL(http.HandlerFunc(h.HandleStartRun)))
	mux.HandleFunc("POST /v1/run/skip", h.HandleSkip)
	mux.HandleFunc("POST /v1/run/reset", h.HandleReset)
	mux.HandleFunc("GET /v1/run", h.HandleGetRun)

	// Snapshot stream (long-lived connection).
	mux.HandleFunc("GET /v1/run/events", h.HandleEvents)

	mux.HandleFunc("GET /v1/config", h.HandleConfig)
	mux.HandleFunc("GET /health", h.HandleHealth)

	// SPA: serve the embedded UI at the root path.
	// Registered last so all API routes take priority via the mux's longest-match rule.
	if cfg.UIFS != nil {
		mux.Handle("/", newSPAHandler(cfg.UIFS))
		cfg.Logger.Info("ui enabled, serving SPA at /")
	}

	// Middleware chain (outermost executes first):
	// request ID → security headers → tracing → logging → session → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = sessionMiddleware(cfg.SessionMgr, cfg.Logger, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)
	for i := len(cfg.Middlewares) - 1; i >= 0; i-- {
		handler = cfg.Middlewares[i](handler)
	}

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           handler,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      cfg.WriteTimeout,
		},
		handler: handler,
		logger:  cfg.Logger,
	}
}

func sessionKeyFunc(r *http.Request) string {
	return ctxutil.SessionIDFromContext(r.Context())
}

func requestIDFunc(r *http.Request) string {
	return ctxutil.RequestIDFromContext(r.Context())
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start begins serving HTTP requests. It returns http.ErrServerClosed after
// Shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
