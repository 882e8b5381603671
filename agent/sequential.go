package agent

import "github.com/hupe1980/agentflow/core"

// Compile-time interface assertions.
var (
	_ core.Node      = (*SequentialAgent)(nil)
	_ core.Composite = (*SequentialAgent)(nil)
)

// SequentialAgent runs its children one after another against the same
// state, so later children observe every earlier write. Execution stops at
// the first failure, which is returned unchanged. A child signalling
// core.ExitLoop does not stop the sequence: the remaining children still run
// and the signal is passed upward once the sequence completes.
type SequentialAgent struct {
	BaseAgent
	children []core.Node
}

// NewSequentialAgent creates a sequential composite.
func NewSequentialAgent(name string, children ...core.Node) *SequentialAgent {
	return &SequentialAgent{
		BaseAgent: NewBaseAgent(name),
		children:  children,
	}
}

// Kind implements core.Node.
func (s *SequentialAgent) Kind() core.NodeKind { return core.KindSequential }

// Children implements core.Composite.
func (s *SequentialAgent) Children() []core.Node { return s.children }

// Execute implements core.Node.
func (s *SequentialAgent) Execute(rc *core.RunContext, state *core.State) (res core.Result, err error) {
	sp := s.begin(rc, core.KindSequential)
	defer func() { sp.end(res, err) }()

	exit := false

	for _, child := range s.children {
		if err := rc.CheckCancelled(); err != nil {
			return core.Completed, err
		}

		r, err := child.Execute(rc.WithNode(child.Name()), state)
		if err != nil {
			return core.Completed, err
		}

		if r == core.ExitLoop {
			exit = true
		}
	}

	if exit {
		return core.ExitLoop, nil
	}

	return core.Completed, nil
}
