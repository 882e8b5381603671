package agent

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/hupe1980/agentflow/core"
)

// Compile-time interface assertions.
var (
	_ core.Node      = (*ParallelAgent)(nil)
	_ core.Composite = (*ParallelAgent)(nil)
)

// ParallelOption configures a ParallelAgent.
type ParallelOption func(*ParallelAgent)

// WithMaxConcurrency bounds how many children run at once. 0 means unbounded.
func WithMaxConcurrency(n int) ParallelOption {
	return func(p *ParallelAgent) {
		if n >= 0 {
			p.maxConcurrency = n
		}
	}
}

// ParallelAgent runs its children concurrently. Every child works on its own
// fork of the state taken before any child starts; once all children have
// finished their writes are merged back in declaration order.
//
// Semantics:
//   - all children run to completion even when a sibling fails
//   - failures are reported together as a *core.AggregateError in
//     declaration order and nothing is merged
//   - two children writing the same key, or one reading what another wrote,
//     fails with a *core.ConflictError
//   - if any child signals core.ExitLoop the composite does too, after merging
type ParallelAgent struct {
	BaseAgent
	children       []core.Node
	maxConcurrency int
}

// NewParallelAgent creates a parallel composite.
func NewParallelAgent(name string, children []core.Node, opts ...ParallelOption) *ParallelAgent {
	p := &ParallelAgent{
		BaseAgent: NewBaseAgent(name),
		children:  children,
	}

	for _, o := range opts {
		o(p)
	}

	return p
}

// Kind implements core.Node.
func (p *ParallelAgent) Kind() core.NodeKind { return core.KindParallel }

// Children implements core.Composite.
func (p *ParallelAgent) Children() []core.Node { return p.children }

// MaxConcurrency returns the concurrency bound (0 = unbounded).
func (p *ParallelAgent) MaxConcurrency() int { return p.maxConcurrency }

// Execute implements core.Node.
func (p *ParallelAgent) Execute(rc *core.RunContext, state *core.State) (res core.Result, err error) {
	sp := p.begin(rc, core.KindParallel)
	defer func() { sp.end(res, err) }()

	if err := rc.CheckCancelled(); err != nil {
		return core.Completed, err
	}

	n := len(p.children)
	if n == 0 {
		return core.Completed, nil
	}

	ctx, cancel := context.WithCancel(rc.Context)
	defer cancel()

	prc := rc.WithContext(ctx)

	var sem *semaphore.Weighted
	if p.maxConcurrency > 0 {
		sem = semaphore.NewWeighted(int64(p.maxConcurrency))
	}

	branches := make([]*core.State, n)
	for i := range p.children {
		branches[i] = state.Fork()
	}

	results := make([]core.Result, n)
	errs := make([]error, n)

	var wg sync.WaitGroup

	for i, child := range p.children {
		wg.Add(1)

		go func() {
			defer wg.Done()

			crc := prc.WithNode(child.Name())

			if sem != nil {
				if err := sem.Acquire(ctx, 1); err != nil {
					errs[i] = core.NewCancelledError(child.Name(), err)
					return
				}
				defer sem.Release(1)
			}

			if err := crc.CheckCancelled(); err != nil {
				errs[i] = err
				return
			}

			results[i], errs[i] = p.runChild(crc, child, branches[i])
		}()
	}

	wg.Wait()

	if err := rc.CheckCancelled(); err != nil {
		return core.Completed, err
	}

	var failures []error
	for _, e := range errs {
		if e != nil {
			failures = append(failures, e)
		}
	}

	if len(failures) > 0 {
		rc.LogWarn("agent.parallel.failed", "agent", p.Name(), "failed", len(failures), "children", n)
		return core.Completed, &core.AggregateError{Node: p.Name(), Failures: failures}
	}

	names := make([]string, n)
	for i, c := range p.children {
		names[i] = c.Name()
	}

	if err := state.MergeBranches(names, branches); err != nil {
		return core.Completed, rc.WrapError(err)
	}

	for _, r := range results {
		if r == core.ExitLoop {
			return core.ExitLoop, nil
		}
	}

	return core.Completed, nil
}

// runChild executes one child, converting a panic into an error so one
// misbehaving branch cannot take down the run.
func (p *ParallelAgent) runChild(rc *core.RunContext, child core.Node, state *core.State) (res core.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			rc.LogError("agent.parallel.panic", "agent", child.Name(), "panic", r)
			err = rc.WrapError(fmt.Errorf("panic: %v", r))
		}
	}()

	return child.Execute(rc, state)
}
