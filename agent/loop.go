package agent

import (
	"time"

	"github.com/hupe1980/agentflow/core"
)

// DefaultMaxIterations bounds a loop when no limit is configured.
const DefaultMaxIterations = 10

// LoopStatus is the lifecycle state of a loop execution.
type LoopStatus string

const (
	LoopPending     LoopStatus = "PENDING"
	LoopRunning     LoopStatus = "RUNNING"
	LoopDoneExit    LoopStatus = "DONE_EXIT"
	LoopDoneMaxIter LoopStatus = "DONE_MAX_ITER"
	LoopFailed      LoopStatus = "FAILED"
)

// Terminal reports whether the status is final.
func (s LoopStatus) Terminal() bool {
	return s == LoopDoneExit || s == LoopDoneMaxIter || s == LoopFailed
}

// Compile-time interface assertions.
var (
	_ core.Node      = (*LoopAgent)(nil)
	_ core.Composite = (*LoopAgent)(nil)
)

// LoopAgent repeats its body (children run in order, like a SequentialAgent)
// until a child signals core.ExitLoop, the optional predicate holds, or the
// iteration limit is reached. Either way the loop itself completes normally;
// the exit signal never propagates past it.
//
// State persists across iterations, so a body can refine what the previous
// iteration wrote.
type LoopAgent struct {
	BaseAgent
	children  []core.Node
	maxIters  int
	interval  time.Duration
	statusKey string
	until     func(state *core.State) bool
}

// LoopOption configures a LoopAgent.
type LoopOption func(*LoopAgent)

// WithMaxIterations sets the iteration limit. Values below 1 are ignored.
func WithMaxIterations(n int) LoopOption {
	return func(l *LoopAgent) {
		if n > 0 {
			l.maxIters = n
		}
	}
}

// WithInterval waits d between iterations.
func WithInterval(d time.Duration) LoopOption {
	return func(l *LoopAgent) { l.interval = d }
}

// WithStatusKey records the terminal loop status in state under key.
func WithStatusKey(key string) LoopOption {
	return func(l *LoopAgent) { l.statusKey = key }
}

// WithUntil stops the loop once pred holds after an iteration.
func WithUntil(pred func(state *core.State) bool) LoopOption {
	return func(l *LoopAgent) { l.until = pred }
}

// NewLoopAgent constructs a loop around children.
func NewLoopAgent(name string, children []core.Node, opts ...LoopOption) *LoopAgent {
	l := &LoopAgent{
		BaseAgent: NewBaseAgent(name),
		children:  children,
		maxIters:  DefaultMaxIterations,
	}

	for _, o := range opts {
		o(l)
	}

	return l
}

// Kind implements core.Node.
func (l *LoopAgent) Kind() core.NodeKind { return core.KindLoop }

// Children implements core.Composite.
func (l *LoopAgent) Children() []core.Node { return l.children }

// MaxIterations returns the iteration limit.
func (l *LoopAgent) MaxIterations() int { return l.maxIters }

// StatusKey returns the state key the terminal status is written to, if any.
func (l *LoopAgent) StatusKey() string { return l.statusKey }

// Execute implements core.Node.
func (l *LoopAgent) Execute(rc *core.RunContext, state *core.State) (res core.Result, err error) {
	sp := l.begin(rc, core.KindLoop)

	status := LoopPending
	iterations := 0

	defer func() {
		if err != nil {
			status = LoopFailed
		}

		sp.status = string(status)
		sp.output = map[string]any{"status": string(status), "iterations": iterations}

		ev := core.NewEvent(rc, core.EventLoopDone)
		ev.Kind = core.KindLoop
		ev.Iteration = iterations
		ev.Status = string(status)
		if err != nil {
			ev.Error = err.Error()
		}
		rc.Emit(ev)

		sp.end(res, err)
	}()

	for i := 1; i <= l.maxIters; i++ {
		if err := rc.CheckCancelled(); err != nil {
			return core.Completed, err
		}

		status = LoopRunning
		iterations = i

		irc := rc.WithIteration(i)

		ev := core.NewEvent(irc, core.EventLoopIteration)
		ev.Kind = core.KindLoop
		ev.Status = string(status)
		irc.Emit(ev)

		irc.LogDebug("agent.loop.iteration", "agent", l.Name(), "iteration", i, "max", l.maxIters)

		res, err := runSequence(irc, state, l.children)
		if err != nil {
			return core.Completed, err
		}

		if res == core.ExitLoop || (l.until != nil && l.until(state)) {
			status = LoopDoneExit
			break
		}

		if l.interval > 0 && i < l.maxIters {
			if err := l.wait(rc); err != nil {
				return core.Completed, err
			}
		}
	}

	if status != LoopDoneExit {
		status = LoopDoneMaxIter
	}

	if l.statusKey != "" {
		state.Set(l.statusKey, string(status))
	}

	rc.LogInfo("agent.loop.done", "agent", l.Name(), "status", string(status), "iterations", iterations)

	return core.Completed, nil
}

func (l *LoopAgent) wait(rc *core.RunContext) error {
	t := time.NewTimer(l.interval)
	defer t.Stop()

	select {
	case <-rc.Done():
		return rc.CheckCancelled()
	case <-t.C:
		return nil
	}
}
