package trace

import (
	"sync"

	"github.com/hupe1980/agentflow/core"
)

// Handler reacts to a single event.
type Handler func(ev core.Event)

// Router dispatches events to handlers registered per event type, in
// registration order. Handlers registered with OnAny see every event after
// the type specific ones. A panicking handler is skipped.
//
// Thread Safety:
// Registration and Emit may be called concurrently. Handlers run on the
// emitting goroutine and must be safe for concurrent use when the workflow
// contains parallel composites.
type Router struct {
	mu       sync.RWMutex
	handlers map[core.EventType][]Handler
	any      []Handler
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{handlers: map[core.EventType][]Handler{}}
}

// On registers h for the given event types.
func (r *Router) On(h Handler, types ...core.EventType) *Router {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range types {
		r.handlers[t] = append(r.handlers[t], h)
	}

	return r
}

// OnAny registers h for every event.
func (r *Router) OnAny(h Handler) *Router {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.any = append(r.any, h)

	return r
}

// OnError registers h for every event that records a failure.
func (r *Router) OnError(h Handler) *Router {
	return r.OnAny(func(ev core.Event) {
		if ev.Failed() {
			h(ev)
		}
	})
}

// Emit implements core.Tracer.
func (r *Router) Emit(ev core.Event) {
	r.mu.RLock()
	hs := make([]Handler, 0, len(r.handlers[ev.Type])+len(r.any))
	hs = append(hs, r.handlers[ev.Type]...)
	hs = append(hs, r.any...)
	r.mu.RUnlock()

	for _, h := range hs {
		dispatch(h, ev)
	}
}

func dispatch(h Handler, ev core.Event) {
	defer func() { _ = recover() }()
	h(ev)
}
