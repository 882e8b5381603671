package tool

import (
	"fmt"
	"slices"

	"github.com/hupe1980/agentflow/core"
)

// StateReaderTool lets a model inspect session state on demand instead of
// having every value rendered into its instruction. Access can be limited to
// an allow-list of keys. The tool never writes state.
type StateReaderTool struct {
	name        string
	description string
	allowed     []string
}

// NewStateReaderTool creates a state inspection tool. With no keys, every
// key is readable.
//
// Operations:
//   - get_state: return the value stored under key
//   - list_keys: return the readable keys currently defined
func NewStateReaderTool(keys ...string) *StateReaderTool {
	return &StateReaderTool{
		name: "read_state",
		description: "Reads the shared session state. " +
			"Supports operations: get_state (requires key), list_keys.",
		allowed: slices.Clone(keys),
	}
}

// Name returns the tool identifier.
func (t *StateReaderTool) Name() string {
	return t.name
}

// Description returns the tool description.
func (t *StateReaderTool) Description() string {
	return t.description
}

// Parameters returns the JSON schema for tool parameters.
func (t *StateReaderTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"operation": map[string]any{
				"type":        "string",
				"enum":        []any{"get_state", "list_keys"},
				"description": "The state operation to perform",
			},
			"key": map[string]any{
				"type":        "string",
				"description": "State key for get_state",
			},
		},
		"required": []string{"operation"},
	}
}

// Call implements the Tool interface with structured arguments.
func (t *StateReaderTool) Call(toolCtx *core.ToolContext, args map[string]any) (any, error) {
	operation, ok := args["operation"].(string)
	if !ok {
		return nil, fmt.Errorf("operation parameter is required")
	}

	switch operation {
	case "get_state":
		return t.handleGetState(args, toolCtx)
	case "list_keys":
		return t.handleListKeys(toolCtx)
	default:
		return nil, fmt.Errorf("unknown operation: %s", operation)
	}
}

func (t *StateReaderTool) readable(key string) bool {
	return len(t.allowed) == 0 || slices.Contains(t.allowed, key)
}

// handleGetState retrieves a value from session state.
func (t *StateReaderTool) handleGetState(args map[string]any, toolCtx *core.ToolContext) (any, error) {
	key, ok := args["key"].(string)
	if !ok || key == "" {
		return nil, fmt.Errorf("key parameter is required for get_state operation")
	}

	if !t.readable(key) {
		return nil, NewToolError(t.name, fmt.Sprintf("key %q is not readable", key), CodeForbidden)
	}

	value, exists := toolCtx.GetState(key)

	return map[string]any{
		"key":    key,
		"exists": exists,
		"value":  value,
	}, nil
}

// handleListKeys lists the readable keys currently defined.
func (t *StateReaderTool) handleListKeys(toolCtx *core.ToolContext) (any, error) {
	state := toolCtx.InternalState()
	if state == nil {
		return map[string]any{"keys": []string{}, "count": 0}, nil
	}

	keys := []string{}
	for _, k := range state.Keys() {
		if t.readable(k) {
			keys = append(keys, k)
		}
	}

	return map[string]any{
		"keys":  keys,
		"count": len(keys),
	}, nil
}
