package core

import (
	"context"
	"errors"
	"strings"

	"github.com/hupe1980/agentflow/logging"
	"github.com/hupe1980/agentflow/retry"
)

// RunContext carries the execution scope of one run down the node tree. It
// aggregates:
//   - The ambient cancellation Context
//   - The run identifier and the position of the current node (path, loop iteration)
//   - The retry policy applied to every remote call
//   - The tracer and logger
//   - The model call limiter shared by all nodes of the run
//
// A RunContext is never mutated after construction. Composites derive child
// scopes with WithNode, WithIteration and WithContext.
type RunContext struct {
	Context   context.Context
	RunID     string
	UserInput string
	Retry     *retry.Policy
	Limiter   *ModelLimiter

	tracer    Tracer
	path      []string
	iteration int

	*loggerAdapter
}

// RunContextOptions configures NewRunContext.
type RunContextOptions struct {
	UserInput     string
	Retry         *retry.Policy
	Tracer        Tracer
	Logger        logging.Logger
	MaxModelCalls int
}

// NewRunContext constructs the root scope of a run.
func NewRunContext(ctx context.Context, runID string, optFns ...func(o *RunContextOptions)) *RunContext {
	opts := RunContextOptions{
		Retry:  retry.Default(),
		Tracer: NoOpTracer{},
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if ctx == nil {
		ctx = context.Background()
	}

	if opts.Tracer == nil {
		opts.Tracer = NoOpTracer{}
	}

	return &RunContext{
		Context:       ctx,
		RunID:         runID,
		UserInput:     opts.UserInput,
		Retry:         opts.Retry,
		Limiter:       NewModelLimiter(opts.MaxModelCalls),
		tracer:        opts.Tracer,
		loggerAdapter: newLoggerAdapter(opts.Logger),
	}
}

func (rc *RunContext) clone() *RunContext {
	c := *rc
	c.path = append([]string(nil), rc.path...)
	return &c
}

// WithNode derives the scope for executing the named child node.
func (rc *RunContext) WithNode(name string) *RunContext {
	c := rc.clone()
	c.path = append(c.path, name)
	c.loggerAdapter = rc.loggerAdapter.with("path", c.Path())
	return c
}

// WithIteration derives a scope tagged with a 1-based loop iteration.
func (rc *RunContext) WithIteration(i int) *RunContext {
	c := rc.clone()
	c.iteration = i
	c.loggerAdapter = rc.loggerAdapter.with("iteration", i)
	return c
}

// WithContext derives a scope bound to ctx, e.g. a cancellable child context.
func (rc *RunContext) WithContext(ctx context.Context) *RunContext {
	c := rc.clone()
	c.Context = ctx
	return c
}

// NodeName returns the name of the node currently addressed, or "" at the root.
func (rc *RunContext) NodeName() string {
	if len(rc.path) == 0 {
		return ""
	}
	return rc.path[len(rc.path)-1]
}

// Path returns the slash separated chain of node names from the root.
func (rc *RunContext) Path() string { return strings.Join(rc.path, "/") }

// Iteration returns the innermost loop iteration (1-based) or 0 outside loops.
func (rc *RunContext) Iteration() int { return rc.iteration }

// Done returns a channel closed when the underlying context is cancelled.
func (rc *RunContext) Done() <-chan struct{} { return rc.Context.Done() }

// Err returns the cancellation error (if any) from the underlying context.
func (rc *RunContext) Err() error { return rc.Context.Err() }

// CheckCancelled returns a *CancelledError for the current node once the run
// has been cancelled, nil otherwise.
func (rc *RunContext) CheckCancelled() error {
	if err := rc.Context.Err(); err != nil {
		return NewCancelledError(rc.NodeName(), err)
	}
	return nil
}

// Emit forwards ev to the tracer. A panicking tracer never affects the run.
func (rc *RunContext) Emit(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			rc.LogWarn("trace.sink.panic", "event", string(ev.Type), "node", ev.Node, "panic", r)
		}
	}()

	rc.tracer.Emit(ev)
}

// Tracer returns the run's tracer.
func (rc *RunContext) Tracer() Tracer { return rc.tracer }

// WrapError locates err at the current node. Cancellation and errors already
// located are returned unchanged.
func (rc *RunContext) WrapError(err error) error {
	if err == nil {
		return nil
	}

	var ne *NodeError
	if errors.As(err, &ne) {
		return err
	}

	if IsCancelled(err) {
		var ce *CancelledError
		if errors.As(err, &ce) {
			return err
		}
		return NewCancelledError(rc.NodeName(), err)
	}

	return &NodeError{Node: rc.NodeName(), Path: rc.Path(), Iteration: rc.iteration, Err: err}
}
