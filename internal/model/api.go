package model

import (
	"fmt"
	"time"
)

// Field length limits for run requests submitted through the web front end.
// These bound what a browser can push through to the analysis backend.
const (
	MaxEntityIDLen = 200
	MaxFreeTextLen = 64 * 1024 // 64 KB
)

// ValidateRunRequest checks per-field length limits on top of RunRequest.Validate.
func ValidateRunRequest(r RunRequest) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if len(r.EntityID) > MaxEntityIDLen {
		return fmt.Errorf("entity_id exceeds maximum length of %d characters", MaxEntityIDLen)
	}
	if len(r.FreeText) > MaxFreeTextLen {
		return fmt.Errorf("free_text exceeds maximum length of %d bytes", MaxFreeTextLen)
	}
	return nil
}

// APIResponse is the standard response envelope for all HTTP API responses.
type APIResponse struct {
	Data any          `json:"data,omitempty"`
	Meta ResponseMeta `json:"meta"`
}

// APIError is the standard error response envelope.
type APIError struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// ResponseMeta contains request metadata included in every response.
type ResponseMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorDetail describes an API error.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorCode constants for standard API error codes.
const (
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeConflict      = "CONFLICT"
	ErrCodeInternalError = "INTERNAL_ERROR"
	ErrCodeRateLimited   = "RATE_LIMITED"
	ErrCodeValidation    = "VALIDATION_FAILED"
	ErrCodeUnavailable   = "UNAVAILABLE"
)

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Executor string `json:"executor"`
	Sessions int    `json:"sessions"`
	Uptime   int64  `json:"uptime_seconds"`
}

// ConfigResponse is returned by GET /v1/config so the UI can label simulated runs.
type ConfigResponse struct {
	Simulated bool   `json:"simulated"`
	Version   string `json:"version"`
}

// SkipRequest is the optional request body for POST /v1/run/skip.
type SkipRequest struct {
	Variant ResultKind `json:"variant,omitempty"`
}
