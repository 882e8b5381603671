package trace

import (
	"github.com/hupe1980/agentflow/core"
	"github.com/hupe1980/agentflow/logging"
)

// Multi fans an event out to every tracer in order. A panicking tracer does
// not prevent the remaining ones from receiving the event.
func Multi(tracers ...core.Tracer) core.Tracer {
	var live []core.Tracer
	for _, t := range tracers {
		if t != nil {
			live = append(live, t)
		}
	}

	switch len(live) {
	case 0:
		return core.NoOpTracer{}
	case 1:
		return live[0]
	}

	return multi(live)
}

type multi []core.Tracer

func (m multi) Emit(ev core.Event) {
	for _, t := range m {
		emitSafe(t, ev)
	}
}

func emitSafe(t core.Tracer, ev core.Event) {
	defer func() { _ = recover() }()
	t.Emit(ev)
}

// LogSink writes events through a logging.Logger. Failures are logged at
// warn level, everything else at debug.
type LogSink struct {
	logger logging.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger logging.Logger) *LogSink {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &LogSink{logger: logger}
}

// Emit implements core.Tracer.
func (s *LogSink) Emit(ev core.Event) {
	args := []any{"run", ev.RunID, "path", ev.Path}

	if ev.Kind != "" {
		args = append(args, "kind", string(ev.Kind))
	}
	if ev.Iteration > 0 {
		args = append(args, "iteration", ev.Iteration)
	}
	if ev.Attempt > 0 {
		args = append(args, "attempt", ev.Attempt)
	}
	if ev.Tool != "" {
		args = append(args, "tool", ev.Tool)
	}
	if ev.Key != "" {
		args = append(args, "key", ev.Key)
	}
	if ev.Status != "" {
		args = append(args, "status", ev.Status)
	}
	if ev.Duration > 0 {
		args = append(args, "duration_ms", ev.Duration.Milliseconds())
	}

	msg := "trace." + string(ev.Type)

	if ev.Failed() {
		s.logger.Warn(msg, append(args, "error", ev.Error)...)
		return
	}

	s.logger.Debug(msg, args...)
}
