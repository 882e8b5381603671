package tool

import (
	"github.com/hupe1980/agentflow/core"
)

// ExitLoopName is the reserved name of the exit signal tool.
const ExitLoopName = "exit_loop"

// exitLoopTool requests early termination of the enclosing loop. It produces
// no data for the calling unit's output key.
type exitLoopTool struct{}

// NewExitLoopTool constructs the exit signal tool instance.
func NewExitLoopTool() Tool { return &exitLoopTool{} }

func (t *exitLoopTool) Name() string { return ExitLoopName }

func (t *exitLoopTool) Description() string {
	return "Call this function ONLY when the work is approved and no further refinement is needed, signaling the iterative process should end."
}

func (t *exitLoopTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{"type": "string", "description": "Optional reason for approval"},
		},
	}
}

func (t *exitLoopTool) Call(tc *core.ToolContext, args map[string]any) (any, error) {
	msg, _ := args["message"].(string)
	if msg == "" {
		msg = "Loop exit requested."
	}

	tc.RequestExit()

	return map[string]any{"status": "approved", "message": msg}, nil
}

// IsExitLoop reports whether t is the reserved exit signal tool.
func IsExitLoop(t Tool) bool { return t != nil && t.Name() == ExitLoopName }
