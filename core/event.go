package core

import (
	"time"

	"github.com/google/uuid"
)

// EventType classifies a trace event.
type EventType string

const (
	// EventNodeEnter is emitted when a node starts executing.
	EventNodeEnter EventType = "node.enter"
	// EventNodeExit is emitted when a node finishes, successfully or not.
	EventNodeExit EventType = "node.exit"
	// EventRetry is emitted for every failed remote-call attempt.
	EventRetry EventType = "retry.attempt"
	// EventStateWrite is emitted when a node writes its output key.
	EventStateWrite EventType = "state.write"
	// EventToolCall is emitted after a tool invocation.
	EventToolCall EventType = "tool.call"
	// EventModelCall is emitted after a successful model round-trip.
	EventModelCall EventType = "model.call"
	// EventLoopIteration is emitted when a loop starts an iteration.
	EventLoopIteration EventType = "loop.iteration"
	// EventLoopDone is emitted when a loop reaches a terminal status.
	EventLoopDone EventType = "loop.done"
)

// Event is a structured trace record. After emission it should be treated as
// immutable. Fields that do not apply to a given Type are left zero.
type Event struct {
	ID        string            `json:"id"`
	RunID     string            `json:"run_id"`
	Type      EventType         `json:"type"`
	Node      string            `json:"node"`
	Kind      NodeKind          `json:"kind,omitempty"`
	Path      string            `json:"path"`
	Iteration int               `json:"iteration,omitempty"`
	Attempt   int               `json:"attempt,omitempty"`
	Key       string            `json:"key,omitempty"`
	Tool      string            `json:"tool,omitempty"`
	Inputs    map[string]any    `json:"inputs,omitempty"`
	Output    any               `json:"output,omitempty"`
	Status    string            `json:"status,omitempty"`
	Error     string            `json:"error,omitempty"`
	Duration  time.Duration     `json:"duration,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// NewEvent creates an event of type t for the node currently addressed by rc.
func NewEvent(rc *RunContext, t EventType) Event {
	return Event{
		ID:        NewID(),
		RunID:     rc.RunID,
		Type:      t,
		Node:      rc.NodeName(),
		Path:      rc.Path(),
		Iteration: rc.Iteration(),
		Timestamp: time.Now().UTC(),
	}
}

// Failed reports whether the event records an error.
func (e Event) Failed() bool { return e.Error != "" }

// Tracer receives trace events. Implementations must be safe for concurrent
// use; parallel branches emit from several goroutines.
type Tracer interface {
	Emit(ev Event)
}

// TracerFunc adapts a function to the Tracer interface.
type TracerFunc func(ev Event)

// Emit implements Tracer.
func (f TracerFunc) Emit(ev Event) { f(ev) }

// NoOpTracer discards all events.
type NoOpTracer struct{}

// Emit implements Tracer.
func (NoOpTracer) Emit(Event) {}

// NewID generates a new unique identifier for runs, events and tool calls.
func NewID() string {
	return uuid.NewString()
}
