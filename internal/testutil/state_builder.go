package testutil

import "github.com/hupe1980/agentflow/core"

// StateBuilder helps construct session states with fluent chaining for tests.
// Keys are inserted in call order.
// Example:
//
//	state := NewStateBuilder().Input("write a story").Set("topic", "cats").Build()
type StateBuilder struct {
	keys   []string
	values map[string]any
}

// NewStateBuilder creates an empty builder.
func NewStateBuilder() *StateBuilder {
	return &StateBuilder{values: map[string]any{}}
}

// Set adds a key (chainable).
func (b *StateBuilder) Set(k string, v any) *StateBuilder {
	if _, ok := b.values[k]; !ok {
		b.keys = append(b.keys, k)
	}
	b.values[k] = v
	return b
}

// Input sets core.InputKey (chainable).
func (b *StateBuilder) Input(text string) *StateBuilder { return b.Set(core.InputKey, text) }

// Build returns a new state.
func (b *StateBuilder) Build() *core.State {
	s := core.NewState()
	for _, k := range b.keys {
		s.Set(k, b.values[k])
	}
	return s
}
