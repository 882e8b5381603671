package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/hupe1980/agentflow/core"
	"github.com/hupe1980/agentflow/logging"
	"github.com/hupe1980/agentflow/retry"
	"github.com/hupe1980/agentflow/trace"
)

// ErrRunNotFound is returned by Cancel for unknown or finished runs.
var ErrRunNotFound = errors.New("run not found")

// Options holds dependency + configuration overrides passed to New().
type Options struct {
	// Retry is applied to every model call. Defaults to retry.Default().
	Retry *retry.Policy
	// Tracer receives every trace event in addition to the debug recorder.
	Tracer core.Tracer
	// Logger for runner, agents and tools.
	Logger logging.Logger
	// Debug records the full trace and returns it in Result.Trace.
	Debug bool
	// OutputKey designates the state key reported as Result.Output.
	OutputKey string
	// InitialState seeds the state before the user input is written.
	InitialState map[string]any
	// MaxModelCalls limits the number of model calls per run. 0 = unlimited.
	MaxModelCalls int
	// MaxConcurrentRuns limits concurrently executing runs. 0 = unlimited.
	MaxConcurrentRuns int
}

// Result is the outcome of one run.
type Result struct {
	RunID string
	// State is the session state at the end of the run, also on failure.
	State core.Snapshot
	// Output is the value of Options.OutputKey, nil when unset or absent.
	Output any
	// Exited reports that the root itself signalled core.ExitLoop.
	Exited   bool
	Duration time.Duration
	// Trace holds every event when Options.Debug is set.
	Trace []core.Event
}

// Outcome is delivered once by Start when the run finishes.
type Outcome struct {
	Result *Result
	Err    error
}

// Runner executes a workflow rooted at one node. Public methods are safe for
// concurrent use.
type Runner struct {
	root core.Node
	opts Options
	sem  *semaphore.Weighted

	activeRuns map[string]context.CancelFunc
	mu         sync.RWMutex
}

// New constructs a Runner with optional overrides.
func New(root core.Node, optFns ...func(o *Options)) *Runner {
	opts := Options{
		Retry:  retry.Default(),
		Tracer: core.NoOpTracer{},
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	r := &Runner{
		root:       root,
		opts:       opts,
		activeRuns: make(map[string]context.CancelFunc),
	}

	if opts.MaxConcurrentRuns > 0 {
		r.sem = semaphore.NewWeighted(int64(opts.MaxConcurrentRuns))
	}

	return r
}

// Root returns the root node.
func (r *Runner) Root() core.Node { return r.root }

// Validate checks the topology of the root node.
func (r *Runner) Validate() error {
	return core.Validate(r.root)
}

// Run executes the workflow synchronously. On failure the returned Result
// (if non-nil) still carries the run id, the state reached and the trace.
func (r *Runner) Run(ctx context.Context, input string) (*Result, error) {
	return r.run(ctx, core.NewID(), input)
}

// Start executes the workflow asynchronously and returns the run id, usable
// with Cancel, together with a channel receiving exactly one Outcome.
func (r *Runner) Start(ctx context.Context, input string) (string, <-chan Outcome) {
	runID := core.NewID()
	out := make(chan Outcome, 1)

	ctx, cancel := context.WithCancel(ctx)
	r.register(runID, cancel)

	go func() {
		defer close(out)
		defer cancel()

		res, err := r.run(ctx, runID, input)
		out <- Outcome{Result: res, Err: err}
	}()

	return runID, out
}

// Cancel cancels a running run by ID.
func (r *Runner) Cancel(runID string) error {
	r.mu.RLock()
	cancel, exists := r.activeRuns[runID]
	r.mu.RUnlock()

	if !exists {
		return fmt.Errorf("run %s: %w", runID, ErrRunNotFound)
	}

	cancel()

	r.opts.Logger.Info("runner.run.cancel", "run", runID)

	return nil
}

// ActiveRuns returns the ids of in-flight runs.
func (r *Runner) ActiveRuns() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.activeRuns))
	for id := range r.activeRuns {
		ids = append(ids, id)
	}

	return ids
}

func (r *Runner) register(runID string, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.activeRuns[runID] = cancel
}

func (r *Runner) unregister(runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.activeRuns, runID)
}

func (r *Runner) run(ctx context.Context, runID, input string) (*Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Start registers the parent scope first; replacing it is safe since
	// cancelling the parent also cancels ctx.
	r.register(runID, cancel)
	defer r.unregister(runID)

	if err := r.Validate(); err != nil {
		return nil, err
	}

	if r.sem != nil {
		if err := r.sem.Acquire(ctx, 1); err != nil {
			return nil, core.NewCancelledError(r.root.Name(), err)
		}
		defer r.sem.Release(1)
	}

	state := core.NewStateFrom(r.opts.InitialState)
	state.Set(core.InputKey, input)

	var rec *trace.Recorder
	if r.opts.Debug {
		rec = trace.NewRecorder()
	}

	logger := logging.With(r.opts.Logger, "run", runID)

	rc := core.NewRunContext(ctx, runID, func(o *core.RunContextOptions) {
		o.UserInput = input
		o.Retry = r.opts.Retry
		o.Tracer = trace.Multi(recorderTracer(rec), r.opts.Tracer)
		o.Logger = logger
		o.MaxModelCalls = r.opts.MaxModelCalls
	})

	logger.Info("runner.run.start", "root", r.root.Name(), "kind", string(r.root.Kind()))

	started := time.Now()
	res, err := r.root.Execute(rc.WithNode(r.root.Name()), state)

	result := &Result{
		RunID:    runID,
		State:    state.Snapshot(),
		Exited:   err == nil && res == core.ExitLoop,
		Duration: time.Since(started),
	}

	if rec != nil {
		result.Trace = rec.Events()
	}

	if r.opts.OutputKey != "" {
		result.Output, _ = result.State.Get(r.opts.OutputKey)
	}

	if err != nil {
		if core.IsCancelled(err) {
			logger.Warn("runner.run.cancelled", "duration_ms", result.Duration.Milliseconds())
		} else {
			logger.Error("runner.run.error", "error", err.Error(), "duration_ms", result.Duration.Milliseconds())
		}
		return result, err
	}

	logger.Info("runner.run.complete", "duration_ms", result.Duration.Milliseconds(), "keys", result.State.Len())

	return result, nil
}

// recorderTracer avoids handing a typed nil pointer to trace.Multi.
func recorderTracer(rec *trace.Recorder) core.Tracer {
	if rec == nil {
		return nil
	}
	return rec
}
