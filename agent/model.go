package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/agentflow/core"
	"github.com/hupe1980/agentflow/internal/util"
	"github.com/hupe1980/agentflow/model"
	"github.com/hupe1980/agentflow/retry"
	"github.com/hupe1980/agentflow/tool"
)

// DefaultMaxToolRounds bounds the model/tool round-trips of one invocation.
const DefaultMaxToolRounds = 8

// defaultPrompt is sent when neither the state nor the run carries user input.
const defaultPrompt = "Proceed with your instructions."

// Compile-time interface assertions.
var (
	_ core.Node     = (*ModelAgent)(nil)
	_ core.Producer = (*ModelAgent)(nil)
)

// ModelAgentOptions defines configuration parameters for creating a ModelAgent.
type ModelAgentOptions struct {
	// Instruction is the template rendered against session state before each
	// invocation. Placeholders {key} are required, {key?} optional.
	Instruction Instruction

	// Description is a human-readable description of the agent's purpose,
	// also offered to a coordinating model when the agent is wrapped as a tool.
	Description string

	// OutputKey is the session state key the final answer is written to.
	OutputKey string

	// InputKey is the state key whose value is sent as the user message.
	// Defaults to core.InputKey.
	InputKey string

	// Tools made available to the model during this agent's invocation.
	Tools []tool.Tool

	// MaxToolRounds caps model/tool round-trips. Defaults to DefaultMaxToolRounds.
	MaxToolRounds int

	// OutputJSON requests a JSON response and stores the decoded value.
	OutputJSON bool

	// Temperature overrides the model default when set.
	Temperature *float64

	// MaxTokens caps the response length. 0 keeps the model default.
	MaxTokens int
}

// ModelAgent is the leaf node of a workflow: it renders its instruction
// against session state, drives the model (dispatching requested tools until
// a final answer arrives) and writes that answer under its output key.
//
// A tool that requests a loop exit (see tool.NewExitLoopTool) ends the
// invocation immediately with core.ExitLoop; no output is written then.
type ModelAgent struct {
	BaseAgent

	llm           model.Model
	instruction   Instruction
	outputKey     string
	inputKey      string
	tools         map[string]tool.Tool
	toolOrder     []string
	maxToolRounds int
	config        model.GenerateConfig
}

// NewModelAgent creates a new ModelAgent driving llm.
func NewModelAgent(name string, llm model.Model, optFns ...func(o *ModelAgentOptions)) (*ModelAgent, error) {
	if llm == nil {
		return nil, fmt.Errorf("%s: %w", name, errNoModel)
	}

	opts := ModelAgentOptions{
		InputKey:      core.InputKey,
		MaxToolRounds: DefaultMaxToolRounds,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.MaxToolRounds < 0 {
		return nil, fmt.Errorf("%s: negative max tool rounds %d", name, opts.MaxToolRounds)
	}

	a := &ModelAgent{
		BaseAgent:     BaseAgent{name: name, description: opts.Description},
		llm:           llm,
		instruction:   opts.Instruction,
		outputKey:     opts.OutputKey,
		inputKey:      opts.InputKey,
		tools:         make(map[string]tool.Tool, len(opts.Tools)),
		maxToolRounds: opts.MaxToolRounds,
		config: model.GenerateConfig{
			Temperature: opts.Temperature,
			MaxTokens:   opts.MaxTokens,
			JSON:        opts.OutputJSON,
		},
	}

	for _, t := range opts.Tools {
		if t == nil {
			continue
		}
		if _, dup := a.tools[t.Name()]; dup {
			return nil, fmt.Errorf("%s: duplicate tool %q", name, t.Name())
		}
		a.tools[t.Name()] = t
		a.toolOrder = append(a.toolOrder, t.Name())
	}

	return a, nil
}

// MustModelAgent is like NewModelAgent but panics on error. Intended for
// static workflow definitions.
func MustModelAgent(name string, llm model.Model, optFns ...func(o *ModelAgentOptions)) *ModelAgent {
	a, err := NewModelAgent(name, llm, optFns...)
	if err != nil {
		panic(err)
	}
	return a
}

// Kind implements core.Node.
func (a *ModelAgent) Kind() core.NodeKind { return core.KindAgent }

// OutputKey implements core.Producer.
func (a *ModelAgent) OutputKey() string { return a.outputKey }

// Model returns the underlying model.
func (a *ModelAgent) Model() model.Model { return a.llm }

// Instruction returns the agent's instruction.
func (a *ModelAgent) Instruction() Instruction { return a.instruction }

// Tools returns the registered tools in registration order.
func (a *ModelAgent) Tools() []tool.Tool {
	out := make([]tool.Tool, len(a.toolOrder))
	for i, n := range a.toolOrder {
		out[i] = a.tools[n]
	}
	return out
}

// Execute implements core.Node.
func (a *ModelAgent) Execute(rc *core.RunContext, state *core.State) (res core.Result, err error) {
	sp := a.begin(rc, core.KindAgent)
	defer func() { sp.end(res, err) }()

	if err := rc.CheckCancelled(); err != nil {
		return core.Completed, err
	}

	instruction, err := a.instruction.Resolve(rc, state)
	if err != nil {
		return core.Completed, rc.WrapError(err)
	}

	sp.inputs = a.inputs(state, instruction)

	req := model.Request{
		Instructions: instruction,
		Messages:     []model.Message{model.UserMessage(a.userText(rc, state))},
		Tools:        tool.Definitions(a.Tools()),
		Config:       a.config,
	}

	var final *model.Response

	for round := 0; ; round++ {
		if err := rc.CheckCancelled(); err != nil {
			return core.Completed, err
		}

		resp, err := a.generate(rc, req)
		if err != nil {
			return core.Completed, rc.WrapError(err)
		}

		if !resp.HasToolCalls() {
			final = resp
			break
		}

		if round >= a.maxToolRounds {
			return core.Completed, rc.WrapError(fmt.Errorf("%w: more than %d round-trips", core.ErrToolLoopExceeded, a.maxToolRounds))
		}

		results, exit, err := a.dispatch(rc, state, resp.ToolCalls)
		if err != nil {
			return core.Completed, rc.WrapError(err)
		}

		if exit {
			sp.status = "exit_loop"
			rc.LogInfo("agent.exit_loop", "agent", a.Name(), "path", rc.Path(), "iteration", rc.Iteration())
			return core.ExitLoop, nil
		}

		req.Messages = append(req.Messages,
			model.Message{Role: model.RoleAssistant, Text: resp.Text, ToolCalls: resp.ToolCalls},
			model.Message{Role: model.RoleTool, ToolResults: results},
		)
	}

	value, err := a.decode(final.Text)
	if err != nil {
		return core.Completed, rc.WrapError(err)
	}

	sp.output = value

	if a.outputKey != "" {
		state.Set(a.outputKey, value)

		ev := core.NewEvent(rc, core.EventStateWrite)
		ev.Kind = core.KindAgent
		ev.Key = a.outputKey
		ev.Output = value
		rc.Emit(ev)
	}

	return core.Completed, nil
}

// generate performs one logical model call, retried per the run's policy.
func (a *ModelAgent) generate(rc *core.RunContext, req model.Request) (*model.Response, error) {
	if err := rc.Limiter.Increment(); err != nil {
		return nil, err
	}

	started := time.Now()

	resp, err := retry.Do(rc.Context, rc.Retry, func(ctx context.Context) (*model.Response, error) {
		return a.llm.Generate(ctx, req)
	}, func(at retry.Attempt) {
		ev := core.NewEvent(rc, core.EventRetry)
		ev.Kind = core.KindAgent
		ev.Attempt = at.Number
		ev.Error = at.Err.Error()
		ev.Duration = at.Delay
		ev.Status = "giving_up"
		if at.Retry {
			ev.Status = "retrying"
		}
		rc.Emit(ev)

		rc.LogWarn("agent.model.retry", "agent", a.Name(), "attempt", at.Number, "retry", at.Retry, "delay_ms", at.Delay.Milliseconds(), "error", at.Err.Error())
	})
	if err != nil {
		if core.IsCancelled(err) {
			return nil, err
		}
		return nil, fmt.Errorf("model %s: %w", a.llm.Info().Name, err)
	}

	if resp == nil {
		resp = &model.Response{}
	}

	ev := core.NewEvent(rc, core.EventModelCall)
	ev.Kind = core.KindAgent
	ev.Duration = time.Since(started)
	ev.Status = resp.FinishReason
	ev.Metadata = map[string]string{
		"model":      a.llm.Info().Name,
		"tool_calls": fmt.Sprint(len(resp.ToolCalls)),
	}
	if resp.Usage != nil {
		ev.Metadata["prompt_tokens"] = fmt.Sprint(resp.Usage.PromptTokens)
		ev.Metadata["completion_tokens"] = fmt.Sprint(resp.Usage.CompletionTokens)
	}
	rc.Emit(ev)

	return resp, nil
}

// dispatch executes tool calls in the order the model issued them. Tool
// failures are reported back to the model; only cancellation aborts.
func (a *ModelAgent) dispatch(rc *core.RunContext, state *core.State, calls []model.ToolCall) ([]model.ToolResult, bool, error) {
	results := make([]model.ToolResult, 0, len(calls))
	exit := false

	for _, call := range calls {
		if err := rc.CheckCancelled(); err != nil {
			return nil, false, err
		}

		callID := call.ID
		if callID == "" {
			callID = core.NewID()
		}

		name := call.Function.Name
		started := time.Now()

		var (
			args   map[string]any
			output any
			err    error
		)

		t, ok := a.tools[name]
		if !ok {
			err = fmt.Errorf("tool %q not found", name)
		} else if args, err = parseArguments(call.Function.Arguments); err == nil {
			tc := core.NewToolContext(rc, state, callID)
			output, err = t.Call(tc, args)
			if tc.ExitRequested() {
				exit = true
			}
		}

		if err != nil && core.IsCancelled(err) {
			return nil, false, err
		}

		ev := core.NewEvent(rc, core.EventToolCall)
		ev.Kind = core.KindAgent
		ev.Tool = name
		ev.Inputs = args
		ev.Output = output
		ev.Duration = time.Since(started)
		ev.Metadata = map[string]string{"call_id": callID}

		result := model.ToolResult{CallID: callID, Name: name}
		if err != nil {
			ev.Error = err.Error()
			result.Content = err.Error()
			result.IsError = true
			rc.LogWarn("agent.tool.error", "agent", a.Name(), "tool", name, "error", err.Error())
		} else {
			result.Content = encodeToolOutput(output)
		}

		rc.Emit(ev)

		results = append(results, result)
	}

	return results, exit, nil
}

// userText returns the message the model is asked to act on.
func (a *ModelAgent) userText(rc *core.RunContext, state *core.State) string {
	if v, ok := state.Lookup(a.inputKey); ok {
		if s := util.FormatValue(v); s != "" {
			return s
		}
	}

	if rc.UserInput != "" {
		return rc.UserInput
	}

	return defaultPrompt
}

// inputs collects the referenced state values for tracing.
func (a *ModelAgent) inputs(state *core.State, instruction string) map[string]any {
	in := map[string]any{"instruction": instruction}

	for _, p := range a.instruction.Placeholders() {
		if v, ok := state.Lookup(p.Key); ok {
			in[p.Key] = v
		}
	}

	return in
}

// decode converts the final answer into the value stored in state.
func (a *ModelAgent) decode(text string) (any, error) {
	if !a.config.JSON {
		return text, nil
	}

	var v any
	if err := json.Unmarshal([]byte(stripCodeFence(text)), &v); err != nil {
		return nil, fmt.Errorf("decode JSON output: %w", err)
	}

	return v, nil
}

func parseArguments(raw json.RawMessage) (map[string]any, error) {
	args := map[string]any{}

	if len(strings.TrimSpace(string(raw))) == 0 {
		return args, nil
	}

	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("invalid tool arguments: %w", err)
	}

	if args == nil {
		args = map[string]any{}
	}

	return args, nil
}

func encodeToolOutput(v any) string {
	switch o := v.(type) {
	case nil:
		return ""
	case string:
		return o
	case error:
		return o.Error()
	}

	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}

	return string(b)
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}

	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}
