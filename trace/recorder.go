package trace

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/hupe1980/agentflow/core"
)

// Recorder keeps every event in emission order.
type Recorder struct {
	mu     sync.Mutex
	events []core.Event
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder { return &Recorder{} }

// Emit implements core.Tracer.
func (r *Recorder) Emit(ev core.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []core.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.Event(nil), r.events...)
}

// Filter returns the recorded events of the given types.
func (r *Recorder) Filter(types ...core.EventType) []core.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []core.Event
	for _, ev := range r.events {
		for _, t := range types {
			if ev.Type == t {
				out = append(out, ev)
				break
			}
		}
	}
	return out
}

// Len returns the number of recorded events.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// Reset drops all recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// WriteJSON writes the events as JSON lines.
func WriteJSON(w io.Writer, events []core.Event) error {
	enc := json.NewEncoder(w)
	for _, ev := range events {
		if err := enc.Encode(ev); err != nil {
			return fmt.Errorf("encode event %s: %w", ev.ID, err)
		}
	}
	return nil
}

// WriteText writes a human readable, indented rendering of events, one line
// per event, nesting by node path depth.
func WriteText(w io.Writer, events []core.Event) error {
	for _, ev := range events {
		if _, err := io.WriteString(w, FormatEvent(ev)+"\n"); err != nil {
			return err
		}
	}
	return nil
}

// FormatEvent renders a single event on one line.
func FormatEvent(ev core.Event) string {
	var b strings.Builder

	depth := strings.Count(ev.Path, "/")
	b.WriteString(strings.Repeat("  ", depth))
	fmt.Fprintf(&b, "%-14s %s", ev.Type, ev.Path)

	if ev.Iteration > 0 {
		fmt.Fprintf(&b, " iter=%d", ev.Iteration)
	}
	if ev.Attempt > 0 {
		fmt.Fprintf(&b, " attempt=%d", ev.Attempt)
	}
	if ev.Tool != "" {
		fmt.Fprintf(&b, " tool=%s", ev.Tool)
	}
	if ev.Key != "" {
		fmt.Fprintf(&b, " key=%s", ev.Key)
	}
	if ev.Status != "" {
		fmt.Fprintf(&b, " status=%s", ev.Status)
	}
	if ev.Duration > 0 {
		fmt.Fprintf(&b, " duration=%s", ev.Duration)
	}
	if ev.Error != "" {
		fmt.Fprintf(&b, " error=%q", ev.Error)
	}

	return b.String()
}
