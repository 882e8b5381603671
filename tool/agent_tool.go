package tool

import (
	"fmt"

	"github.com/hupe1980/agentflow/core"
)

// AgentTool exposes a node (usually an agent unit) as a tool, letting a
// coordinating model delegate a sub-task. The node runs against a private
// fork of the caller's state with the request seeded under core.InputKey;
// none of its writes reach the session state. The value of the node's output
// key is returned as the tool result.
type AgentTool struct {
	node        core.Node
	description string
	outputKey   string
}

// AgentToolOptions configures NewAgentTool.
type AgentToolOptions struct {
	// Description shown to the model. Defaults to a generic delegation text.
	Description string
	// OutputKey read after the node ran. Defaults to the node's own output
	// key, or the last output key written in its subtree.
	OutputKey string
}

// NewAgentTool wraps node as a tool named after it.
func NewAgentTool(node core.Node, optFns ...func(o *AgentToolOptions)) *AgentTool {
	opts := AgentToolOptions{
		Description: fmt.Sprintf("Delegate a request to the %s agent and return its answer.", node.Name()),
	}

	if d, ok := node.(interface{ Description() string }); ok && d.Description() != "" {
		opts.Description = d.Description()
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.OutputKey == "" {
		if p, ok := node.(core.Producer); ok {
			opts.OutputKey = p.OutputKey()
		} else if keys := core.OutputKeys(node); len(keys) > 0 {
			opts.OutputKey = keys[len(keys)-1]
		}
	}

	return &AgentTool{node: node, description: opts.Description, outputKey: opts.OutputKey}
}

// Name returns the wrapped node's name.
func (t *AgentTool) Name() string { return t.node.Name() }

// Description returns the delegation description.
func (t *AgentTool) Description() string { return t.description }

// Parameters returns the JSON schema for tool parameters.
func (t *AgentTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"request": map[string]any{"type": "string", "description": "The request for the agent"},
		},
		"required": []string{"request"},
	}
}

// Call runs the wrapped node and returns its output value.
func (t *AgentTool) Call(tc *core.ToolContext, args map[string]any) (any, error) {
	request, _ := args["request"].(string)

	parent := tc.InternalState()
	if parent == nil {
		parent = core.NewState()
	}

	state := parent.Fork()
	state.Set(core.InputKey, request)
	defer parent.AdoptReads(state)

	rc := tc.InternalRunContext().WithNode(t.node.Name())

	tc.LogDebug("tool.agent.start", "agent", t.node.Name(), "fc_id", tc.FunctionCallID())

	if _, err := t.node.Execute(rc, state); err != nil {
		return nil, err
	}

	if t.outputKey == "" {
		return nil, nil
	}

	v, ok := state.Lookup(t.outputKey)
	if !ok {
		return nil, NewToolError(t.Name(), fmt.Sprintf("agent produced no value for %q", t.outputKey), CodeNoOutput)
	}

	return v, nil
}
