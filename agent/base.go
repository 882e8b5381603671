package agent

import (
	"errors"
	"time"

	"github.com/hupe1980/agentflow/core"
)

// BaseAgent bundles identity and tracing helpers shared by every node in this
// package. Embed it in concrete implementations and supply Kind and Execute to
// satisfy core.Node.
type BaseAgent struct {
	name        string // Unique name within a run
	description string // Detailed description of the node's purpose
}

// NewBaseAgent constructs a BaseAgent.
func NewBaseAgent(name string) BaseAgent {
	return BaseAgent{name: name}
}

// Name returns the node name.
func (b *BaseAgent) Name() string { return b.name }

// Description returns a detailed description of this node's purpose.
func (b *BaseAgent) Description() string { return b.description }

// span brackets one node execution with node.enter / node.exit trace events.
type span struct {
	rc      *core.RunContext
	kind    core.NodeKind
	started time.Time

	inputs map[string]any
	output any
	status string
}

// begin emits the enter event for the node addressed by rc.
func (b *BaseAgent) begin(rc *core.RunContext, kind core.NodeKind) *span {
	ev := core.NewEvent(rc, core.EventNodeEnter)
	ev.Kind = kind
	rc.Emit(ev)

	rc.LogDebug("agent.run.start", "agent", b.name, "kind", string(kind), "path", rc.Path(), "run", rc.RunID)

	return &span{rc: rc, kind: kind, started: time.Now()}
}

// end emits the exit event. Status defaults to the result name, or to
// "failed" / "cancelled" when err is set.
func (s *span) end(res core.Result, err error) {
	ev := core.NewEvent(s.rc, core.EventNodeExit)
	ev.Kind = s.kind
	ev.Inputs = s.inputs
	ev.Output = s.output
	ev.Duration = time.Since(s.started)
	ev.Status = s.status

	switch {
	case err != nil && core.IsCancelled(err):
		ev.Status = "cancelled"
		ev.Error = err.Error()
	case err != nil:
		ev.Status = "failed"
		ev.Error = err.Error()
	case ev.Status == "":
		ev.Status = res.String()
	}

	s.rc.Emit(ev)

	if err != nil && !core.IsCancelled(err) {
		s.rc.LogError("agent.run.error", "agent", s.rc.NodeName(), "path", s.rc.Path(), "error", err.Error())
		return
	}

	s.rc.LogDebug("agent.run.complete", "agent", s.rc.NodeName(), "status", ev.Status, "duration_ms", ev.Duration.Milliseconds())
}

// runSequence executes a loop body in order against the same state. It stops
// at the first failure (returned unchanged) or at the first exit signal from a
// direct child, which is passed upward.
func runSequence(rc *core.RunContext, state *core.State, children []core.Node) (core.Result, error) {
	for _, child := range children {
		if err := rc.CheckCancelled(); err != nil {
			return core.Completed, err
		}

		res, err := child.Execute(rc.WithNode(child.Name()), state)
		if err != nil {
			return core.Completed, err
		}

		if res == core.ExitLoop {
			return core.ExitLoop, nil
		}
	}

	return core.Completed, nil
}

// FindAgent performs a depth-first search over the subtree rooted at root
// (including itself) returning the first node whose Name matches, or nil.
func FindAgent(root core.Node, name string) core.Node {
	var found core.Node

	core.Walk(root, func(n core.Node) bool {
		if found != nil {
			return false
		}
		if n.Name() == name {
			found = n
			return false
		}
		return true
	})

	return found
}

// errNoModel is returned when a ModelAgent is built without a model.
var errNoModel = errors.New("agent has no model")
