package testutil

import (
	"strings"
	"time"

	"github.com/hupe1980/agentflow/core"
)

// EventBuilder provides a fluent helper for constructing trace events in tests.
// Example:
//
//	ev := NewEventBuilder(core.EventRetry).Path("root/critic").Attempt(2).Status("retrying").Build()
//
// Chain only the parts you need; sensible defaults are applied.
type EventBuilder struct {
	ev core.Event
}

// NewEventBuilder creates a builder for an event of type t in run "run-1".
func NewEventBuilder(t core.EventType) *EventBuilder {
	return &EventBuilder{ev: core.Event{
		ID:        core.NewID(),
		RunID:     "run-1",
		Type:      t,
		Timestamp: time.Now().UTC(),
	}}
}

// Run sets the run id (chainable).
func (b *EventBuilder) Run(id string) *EventBuilder { b.ev.RunID = id; return b }

// Path sets the node path and derives the node name from its last segment (chainable).
func (b *EventBuilder) Path(p string) *EventBuilder {
	b.ev.Path = p
	b.ev.Node = p[strings.LastIndex(p, "/")+1:]
	return b
}

// Kind sets the node kind (chainable).
func (b *EventBuilder) Kind(k core.NodeKind) *EventBuilder { b.ev.Kind = k; return b }

// Iteration sets the loop iteration (chainable).
func (b *EventBuilder) Iteration(i int) *EventBuilder { b.ev.Iteration = i; return b }

// Attempt sets the retry attempt (chainable).
func (b *EventBuilder) Attempt(a int) *EventBuilder { b.ev.Attempt = a; return b }

// Tool sets the tool name (chainable).
func (b *EventBuilder) Tool(name string) *EventBuilder { b.ev.Tool = name; return b }

// Key sets the state key (chainable).
func (b *EventBuilder) Key(k string) *EventBuilder { b.ev.Key = k; return b }

// Output sets the output value (chainable).
func (b *EventBuilder) Output(v any) *EventBuilder { b.ev.Output = v; return b }

// Status sets the status (chainable).
func (b *EventBuilder) Status(s string) *EventBuilder { b.ev.Status = s; return b }

// Error sets the error text (chainable).
func (b *EventBuilder) Error(msg string) *EventBuilder { b.ev.Error = msg; return b }

// Duration sets the duration (chainable).
func (b *EventBuilder) Duration(d time.Duration) *EventBuilder { b.ev.Duration = d; return b }

// Meta adds a metadata entry (chainable).
func (b *EventBuilder) Meta(k, v string) *EventBuilder {
	if b.ev.Metadata == nil {
		b.ev.Metadata = map[string]string{}
	}
	b.ev.Metadata[k] = v
	return b
}

// Build returns the event.
func (b *EventBuilder) Build() core.Event { return b.ev }
