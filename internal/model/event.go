package model

import "time"

// EventType is the wire discriminator of a stream event.
type EventType string

const (
	EventLog          EventType = "log"
	EventNodeComplete EventType = "node_complete"
	EventComplete     EventType = "complete"
	EventError        EventType = "error"
)

// Event is one decoded message of a run's event stream. The set of
// implementations is closed: LogEvent, NodeCompleteEvent, CompleteEvent and
// ErrorEvent. Dispatch sites switch on the concrete type.
type Event interface {
	Type() EventType
	// Terminal reports whether the event ends the run.
	Terminal() bool
	sealed()
}

// LogEvent appends a line to the visible trace.
type LogEvent struct {
	Entry LogEntry
}

// NodeCompleteEvent reports that one pipeline stage finished.
type NodeCompleteEvent struct {
	Agent    Agent
	Duration time.Duration
}

// CompleteEvent carries the terminal report.
type CompleteEvent struct {
	Result RunResult
}

// ErrorEvent reports a backend-side failure of the run.
type ErrorEvent struct {
	Message string
}

func (LogEvent) Type() EventType          { return EventLog }
func (NodeCompleteEvent) Type() EventType { return EventNodeComplete }
func (CompleteEvent) Type() EventType     { return EventComplete }
func (ErrorEvent) Type() EventType        { return EventError }

func (LogEvent) Terminal() bool          { return false }
func (NodeCompleteEvent) Terminal() bool { return false }
func (CompleteEvent) Terminal() bool     { return true }
func (ErrorEvent) Terminal() bool        { return true }

func (LogEvent) sealed()          {}
func (NodeCompleteEvent) sealed() {}
func (CompleteEvent) sealed()     {}
func (ErrorEvent) sealed()        {}
