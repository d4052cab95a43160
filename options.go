package auditfront

import "log/slog"

// Option configures an App.
type Option func(*resolvedOptions)

// resolvedOptions holds all overrides after applying options.
// Unexported; callers use the With* functions.
type resolvedOptions struct {
	port        int
	backendURL  string
	simulate    *bool
	logger      *slog.Logger
	version     string
	middlewares []Middleware
}

// WithPort overrides the TCP port from config (AUDITFRONT_PORT env var).
func WithPort(port int) Option {
	return func(o *resolvedOptions) { o.port = port }
}

// WithBackendURL points runs at a live analysis backend, overriding
// AUDITFRONT_BACKEND_URL and turning simulation off.
func WithBackendURL(url string) Option {
	return func(o *resolvedOptions) { o.backendURL = url }
}

// WithSimulate forces simulated runs on or off. Applied after WithBackendURL.
func WithSimulate(simulate bool) Option {
	return func(o *resolvedOptions) { o.simulate = &simulate }
}

// WithLogger sets the structured logger for the App.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported by /health, /v1/config and logs.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithMiddleware registers an outermost HTTP middleware.
// The first-registered middleware is outermost (called first by every request).
func WithMiddleware(mw Middleware) Option {
	return func(o *resolvedOptions) { o.middlewares = append(o.middlewares, mw) }
}
