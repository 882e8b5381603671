package core

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/hupe1980/agentflow/logging"
)

// ToolContext provides a constrained surface for tool implementations invoked
// by an agent unit. Tools may read the session state but never write it; the
// only side effect they can request is leaving the enclosing loop.
type ToolContext struct {
	runCtx         *RunContext
	state          *State
	functionCallID string
	exit           *atomic.Bool

	*loggerAdapter
}

// NewToolContext constructs a tool context bound to the calling node's scope,
// the state it executes against and a unique functionCallID.
func NewToolContext(runCtx *RunContext, state *State, functionCallID string) *ToolContext {
	return &ToolContext{
		runCtx:         runCtx,
		state:          state,
		functionCallID: functionCallID,
		exit:           &atomic.Bool{},
		loggerAdapter:  newLoggerAdapter(runCtx.Logger()),
	}
}

// Context returns the context associated with the tool invocation.
func (tc *ToolContext) Context() context.Context { return tc.runCtx.Context }

// RunID returns the run ID associated with the tool invocation.
func (tc *ToolContext) RunID() string { return tc.runCtx.RunID }

// Logger returns the logger associated with the tool invocation.
func (tc *ToolContext) Logger() logging.Logger { return tc.loggerAdapter.Logger() }

// FunctionCallID returns the function call ID associated with the tool invocation.
func (tc *ToolContext) FunctionCallID() string { return tc.functionCallID }

// AgentName returns the name of the agent unit that issued the call.
func (tc *ToolContext) AgentName() string { return tc.runCtx.NodeName() }

// GetState reads a state key visible to the calling agent.
func (tc *ToolContext) GetState(k string) (any, bool) {
	if tc.state == nil {
		return nil, false
	}
	return tc.state.Lookup(k)
}

// RequestExit asks the enclosing loop to stop after the current iteration.
func (tc *ToolContext) RequestExit() {
	if !tc.exit.Swap(true) {
		tc.LogInfo("tool.exit.request", "agent", tc.AgentName(), "function_call_id", tc.functionCallID)
	}
}

// ExitRequested reports whether RequestExit was called.
func (tc *ToolContext) ExitRequested() bool { return tc.exit.Load() }

// Validate performs a structural sanity check of the context.
func (tc *ToolContext) Validate() error {
	if tc.runCtx == nil || tc.functionCallID == "" {
		return fmt.Errorf("invalid ToolContext")
	}

	return nil
}

// InternalRunContext returns the calling node's run scope. Tools that execute
// nested nodes use it to inherit cancellation, tracing and the retry policy.
func (tc *ToolContext) InternalRunContext() *RunContext { return tc.runCtx }

// InternalState returns the state the calling node executes against.
func (tc *ToolContext) InternalState() *State { return tc.state }
