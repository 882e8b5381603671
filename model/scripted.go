package model

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Step produces the response for one Generate call of a ScriptedModel.
type Step func(ctx context.Context, req Request) (*Response, error)

// Reply returns a step answering with final text.
func Reply(text string) Step {
	return func(context.Context, Request) (*Response, error) {
		return &Response{Text: text, FinishReason: "stop"}, nil
	}
}

// CallTool returns a step requesting a single tool invocation.
func CallTool(name string, args map[string]any) Step {
	return func(context.Context, Request) (*Response, error) {
		raw, err := json.Marshal(args)
		if err != nil {
			return nil, err
		}
		return &Response{
			ToolCalls: []ToolCall{{
				ID:       fmt.Sprintf("call_%s", name),
				Type:     "function",
				Function: ToolCallFunction{Name: name, Arguments: raw},
			}},
			FinishReason: "tool_calls",
		}, nil
	}
}

// Fail returns a step failing with err.
func Fail(err error) Step {
	return func(context.Context, Request) (*Response, error) { return nil, err }
}

// ScriptedModel is a deterministic in-memory Model for tests and examples.
// Each Generate call consumes the next step; once the script is exhausted the
// fallback (if any) answers every further call. It is safe for concurrent use.
type ScriptedModel struct {
	info     Info
	mu       sync.Mutex
	steps    []Step
	fallback Step
	requests []Request
}

// NewScriptedModel constructs a ScriptedModel with basic tool support enabled.
func NewScriptedModel(name string, steps ...Step) *ScriptedModel {
	return &ScriptedModel{
		info: Info{
			Name:          name,
			Provider:      "scripted",
			SupportsTools: true,
		},
		steps: steps,
	}
}

// NewFuncModel constructs a ScriptedModel answering every call with fn.
func NewFuncModel(name string, fn Step) *ScriptedModel {
	m := NewScriptedModel(name)
	m.fallback = fn
	return m
}

// WithFallback sets the step used once the script is exhausted.
func (m *ScriptedModel) WithFallback(s Step) *ScriptedModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = s
	return m
}

// Generate implements Model.
func (m *ScriptedModel) Generate(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.requests = append(m.requests, req)
	var step Step
	if len(m.steps) > 0 {
		step, m.steps = m.steps[0], m.steps[1:]
	} else {
		step = m.fallback
	}
	m.mu.Unlock()

	if step == nil {
		return nil, fmt.Errorf("scripted model %s: script exhausted", m.info.Name)
	}

	return step(ctx, req)
}

// Calls returns the number of Generate calls made so far.
func (m *ScriptedModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Requests returns a copy of every request received.
func (m *ScriptedModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.requests...)
}

// Info implements Model interface.
func (m *ScriptedModel) Info() Info { return m.info }
