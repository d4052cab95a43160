// Package config loads and validates application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Server settings.
	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	MaxRequestBodyBytes int64 // Maximum request body size in bytes, file upload included.

	// Analysis backend.
	BackendURL    string        // Root URL of the analysis backend; empty means none configured.
	Simulate      bool          // Replay the canned run locally instead of calling the backend.
	SimulateSpeed float64       // Replay speed multiplier; 2 plays the script twice as fast.
	SubmitTimeout time.Duration // Timeout for the run submission call.

	// Browser sessions.
	SessionTTL     time.Duration // Idle sessions (and their runs) are torn down after this.
	SessionKeyPath string        // Path to an Ed25519 private key PEM; empty generates one per process.

	// Rate limiting of run submissions, per session.
	RateLimitRPS   float64
	RateLimitBurst int

	// OTEL settings.
	OTELEndpoint string
	OTELInsecure bool
	ServiceName  string

	// Operational settings.
	LogLevel string
}

// Load reads configuration from environment variables with sensible defaults.
// Every malformed value is reported, not just the first.
func Load() (Config, error) {
	var l loader
	cfg := Config{
		Port:                l.int("AUDITFRONT_PORT", 8080),
		ReadTimeout:         l.duration("AUDITFRONT_READ_TIMEOUT", 30*time.Second),
		WriteTimeout:        l.duration("AUDITFRONT_WRITE_TIMEOUT", 30*time.Second),
		MaxRequestBodyBytes: int64(l.int("AUDITFRONT_MAX_REQUEST_BODY_BYTES", 10*1024*1024)), // 10 MB default
		BackendURL:          envStr("AUDITFRONT_BACKEND_URL", ""),
		SimulateSpeed:       l.float("AUDITFRONT_SIMULATE_SPEED", 1),
		SubmitTimeout:       l.duration("AUDITFRONT_SUBMIT_TIMEOUT", 30*time.Second),
		SessionTTL:          l.duration("AUDITFRONT_SESSION_TTL", 30*time.Minute),
		SessionKeyPath:      envStr("AUDITFRONT_SESSION_KEY_PATH", ""),
		RateLimitRPS:        l.float("AUDITFRONT_RATE_LIMIT_RPS", 0.5),
		RateLimitBurst:      l.int("AUDITFRONT_RATE_LIMIT_BURST", 3),
		OTELEndpoint:        envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTELInsecure:        l.bool("OTEL_EXPORTER_OTLP_INSECURE", false),
		ServiceName:         envStr("OTEL_SERVICE_NAME", "auditfront"),
		LogLevel:            envStr("AUDITFRONT_LOG_LEVEL", "info"),
	}
	// Without a backend there is nothing to talk to, so simulate by default.
	cfg.Simulate = l.bool("AUDITFRONT_SIMULATE", cfg.BackendURL == "")

	if err := errors.Join(l.errs...); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the configuration is internally consistent.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: AUDITFRONT_PORT must be between 1 and 65535")
	}
	if !c.Simulate {
		if c.BackendURL == "" {
			return fmt.Errorf("config: AUDITFRONT_BACKEND_URL is required unless AUDITFRONT_SIMULATE is true")
		}
		u, err := url.Parse(c.BackendURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("config: AUDITFRONT_BACKEND_URL must be an absolute http(s) URL")
		}
	}
	if c.SimulateSpeed <= 0 {
		return fmt.Errorf("config: AUDITFRONT_SIMULATE_SPEED must be positive")
	}
	if c.SubmitTimeout <= 0 {
		return fmt.Errorf("config: AUDITFRONT_SUBMIT_TIMEOUT must be positive")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("config: AUDITFRONT_SESSION_TTL must be positive")
	}
	if c.MaxRequestBodyBytes <= 0 {
		return fmt.Errorf("config: AUDITFRONT_MAX_REQUEST_BODY_BYTES must be positive")
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("config: AUDITFRONT_RATE_LIMIT_RPS and AUDITFRONT_RATE_LIMIT_BURST must not be negative")
	}
	return nil
}

// loader collects parse errors so Load can report them together.
type loader struct {
	errs []error
}

func (l *loader) int(key string, defaultVal int) int {
	v, err := envInt(key, defaultVal)
	l.keep(err)
	return v
}

func (l *loader) float(key string, defaultVal float64) float64 {
	v, err := envFloat(key, defaultVal)
	l.keep(err)
	return v
}

func (l *loader) bool(key string, defaultVal bool) bool {
	v, err := envBool(key, defaultVal)
	l.keep(err)
	return v
}

func (l *loader) duration(key string, defaultVal time.Duration) time.Duration {
	v, err := envDuration(key, defaultVal)
	l.keep(err)
	return v
}

func (l *loader) keep(err error) {
	if err != nil {
		l.errs = append(l.errs, err)
	}
}

func envStr(key, defaultVal string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid integer", key, v)
	}
	return n, nil
}

func envFloat(key string, defaultVal float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid number", key, v)
	}
	return f, nil
}

func envBool(key string, defaultVal bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid boolean", key, v)
	}
	return b, nil
}

func envDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid duration", key, v)
	}
	return d, nil
}
