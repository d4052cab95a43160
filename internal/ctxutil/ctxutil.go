// Package ctxutil provides shared context key accessors.
//
// The server middleware stores per-request values here and the rate limiter
// and handlers read them back without importing server.
package ctxutil

import "context"

type contextKey string

const (
	keySessionID contextKey = "session_id"
	keyRequestID contextKey = "request_id"
)

// WithSessionID returns a new context carrying the browser session id.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keySessionID, id)
}

// SessionIDFromContext extracts the session id, or "" if none was set.
func SessionIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(keySessionID).(string); ok {
		return v
	}
	return ""
}

// WithRequestID returns a new context carrying the request id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keyRequestID, id)
}

// RequestIDFromContext extracts the request id, or "" if none was set.
func RequestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(keyRequestID).(string); ok {
		return v
	}
	return ""
}
