// Package agentflow provides a high-level façade over the runner for
// composing model agents into sequential, parallel and loop workflows over a
// shared session state. Most applications interact with this package by:
//  1. Creating an AgentFlow via New() (optionally overriding retry, logging and tracing)
//  2. Registering one or more workflow roots built with the agent package
//  3. Invoking workflows asynchronously (Invoke) or synchronously (InvokeSync)
//
// For a single workflow, Run executes a root directly.
package agentflow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/agentflow/core"
	"github.com/hupe1980/agentflow/logging"
	"github.com/hupe1980/agentflow/retry"
	"github.com/hupe1980/agentflow/runner"
)

// ErrUnknownWorkflow is returned when invoking a name that was never registered.
var ErrUnknownWorkflow = errors.New("unknown workflow")

// Options configures the AgentFlow instance. They apply to every registered
// workflow.
type Options struct {
	// Retry applied to model calls (defaults to retry.Default()).
	Retry *retry.Policy
	// Tracer receives every trace event.
	Tracer core.Tracer
	// Logger (defaults to NoOp logger if nil).
	Logger logging.Logger
	// Debug returns the recorded trace with every result.
	Debug bool
	// MaxConcurrentRuns limits simultaneous runs per workflow. 0 = unlimited.
	MaxConcurrentRuns int
	// MaxModelCalls limits model calls per run. 0 = unlimited.
	MaxModelCalls int
}

// AgentFlow holds registered workflows keyed by root name.
type AgentFlow struct {
	opts    Options
	mu      sync.RWMutex
	runners map[string]*registration
}

type registration struct {
	runner    *runner.Runner
	outputKey string
}

// New creates a new AgentFlow instance with optional overrides.
func New(optFns ...func(o *Options)) *AgentFlow {
	opts := Options{
		Retry:  retry.Default(),
		Tracer: core.NoOpTracer{},
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &AgentFlow{opts: opts, runners: map[string]*registration{}}
}

// Register validates root and makes it invocable under its name. outputKey
// optionally designates the state key reported as the result output; when
// empty and root produces an output key itself, that key is used.
func (f *AgentFlow) Register(root core.Node, outputKey ...string) error {
	if err := core.Validate(root); err != nil {
		return err
	}

	key := ""
	if len(outputKey) > 0 {
		key = outputKey[0]
	} else if p, ok := root.(core.Producer); ok {
		key = p.OutputKey()
	}

	r := runner.New(root, f.runnerOptions(key))

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, dup := f.runners[root.Name()]; dup {
		return fmt.Errorf("workflow %q already registered", root.Name())
	}

	f.runners[root.Name()] = &registration{runner: r, outputKey: key}

	f.opts.Logger.Debug("agentflow.register", "workflow", root.Name(), "output_key", key)

	return nil
}

// Workflows returns the registered workflow names.
func (f *AgentFlow) Workflows() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	names := make([]string, 0, len(f.runners))
	for n := range f.runners {
		names = append(names, n)
	}

	return names
}

// Invoke starts an asynchronous run returning the run id and a channel that
// receives exactly one outcome.
func (f *AgentFlow) Invoke(ctx context.Context, workflow, input string) (string, <-chan runner.Outcome, error) {
	reg, err := f.lookup(workflow)
	if err != nil {
		return "", nil, err
	}

	runID, out := reg.runner.Start(ctx, input)

	return runID, out, nil
}

// InvokeSync runs a workflow to completion.
func (f *AgentFlow) InvokeSync(ctx context.Context, workflow, input string) (*runner.Result, error) {
	reg, err := f.lookup(workflow)
	if err != nil {
		return nil, err
	}

	return reg.runner.Run(ctx, input)
}

// Cancel cancels an in-flight run of any registered workflow.
func (f *AgentFlow) Cancel(runID string) error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for _, reg := range f.runners {
		if err := reg.runner.Cancel(runID); err == nil {
			return nil
		}
	}

	return fmt.Errorf("run %s: %w", runID, runner.ErrRunNotFound)
}

func (f *AgentFlow) lookup(workflow string) (*registration, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	reg, ok := f.runners[workflow]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownWorkflow, workflow)
	}

	return reg, nil
}

func (f *AgentFlow) runnerOptions(outputKey string) func(o *runner.Options) {
	return func(o *runner.Options) {
		o.Retry = f.opts.Retry
		o.Tracer = f.opts.Tracer
		o.Logger = f.opts.Logger
		o.Debug = f.opts.Debug
		o.MaxConcurrentRuns = f.opts.MaxConcurrentRuns
		o.MaxModelCalls = f.opts.MaxModelCalls
		o.OutputKey = outputKey
	}
}

// Run executes root once with a dedicated runner.
func Run(ctx context.Context, root core.Node, input string, optFns ...func(o *runner.Options)) (*runner.Result, error) {
	return runner.New(root, optFns...).Run(ctx, input)
}
