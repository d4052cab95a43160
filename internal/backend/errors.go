package backend

import (
	"errors"
	"fmt"
)

// SubmissionError means the backend answered the run submission with a
// non-success status. Body is the raw response body.
type SubmissionError struct {
	StatusCode int
	Body       string
}

func (e *SubmissionError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("backend: submission rejected (%d)", e.StatusCode)
	}
	return fmt.Sprintf("backend: submission rejected (%d): %s", e.StatusCode, e.Body)
}

// NetworkError means no response was received at all.
type NetworkError struct {
	Op    string
	Cause error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("backend: %s: network error: %v", e.Op, e.Cause)
}

func (e *NetworkError) Unwrap() error { return e.Cause }

// StreamDecodeError reports one stream message that could not be decoded.
// It is not fatal to the stream.
type StreamDecodeError struct {
	Raw   string
	Cause error
}

func (e *StreamDecodeError) Error() string {
	return fmt.Sprintf("backend: undecodable stream event %q: %v", e.Raw, e.Cause)
}

func (e *StreamDecodeError) Unwrap() error { return e.Cause }

// StreamTransportError means the event stream failed or dropped before a
// terminal event was received.
type StreamTransportError struct {
	StatusCode int // non-zero when the stream request itself was rejected
	Cause      error
}

func (e *StreamTransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("backend: event stream rejected (%d): %v", e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("backend: event stream failed: %v", e.Cause)
}

func (e *StreamTransportError) Unwrap() error { return e.Cause }

// errStreamEnded is the cause recorded when the server closes the stream
// before any terminal event.
var errStreamEnded = errors.New("connection closed before a terminal event")

// IsSubmissionError returns true if err is or wraps a *SubmissionError.
func IsSubmissionError(err error) bool {
	var e *SubmissionError
	return errors.As(err, &e)
}

// IsNetworkError returns true if err is or wraps a *NetworkError.
func IsNetworkError(err error) bool {
	var e *NetworkError
	return errors.As(err, &e)
}

// IsDecodeError returns true if err is or wraps a *StreamDecodeError.
func IsDecodeError(err error) bool {
	var e *StreamDecodeError
	return errors.As(err, &e)
}

// IsTransportError returns true if err is or wraps a *StreamTransportError.
func IsTransportError(err error) bool {
	var e *StreamTransportError
	return errors.As(err, &e)
}
