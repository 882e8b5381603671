package config

import (
	"fmt"

	"github.com/hupe1980/agentflow/agent"
	"github.com/hupe1980/agentflow/core"
	"github.com/hupe1980/agentflow/model"
	"github.com/hupe1980/agentflow/tool"
)

// BuildDeps supplies the runtime collaborators a pipeline spec refers to.
type BuildDeps struct {
	// Model is used by agents without an explicit model reference.
	Model model.Model
	// Models resolves NodeSpec.Model references.
	Models map[string]model.Model
	// Tools resolves NodeSpec.Tools entries beyond the built-in
	// "exit_loop" and "read_state".
	Tools map[string]tool.Tool
}

// Build constructs the node tree described by spec and validates its topology.
func Build(spec NodeSpec, deps BuildDeps) (core.Node, error) {
	root, err := buildNode(spec, deps)
	if err != nil {
		return nil, err
	}

	if err := core.Validate(root); err != nil {
		return nil, err
	}

	return root, nil
}

func buildNode(spec NodeSpec, deps BuildDeps) (core.Node, error) {
	switch spec.Type {
	case TypeAgent:
		return buildAgent(spec, deps)
	case TypeSequential, TypeParallel, TypeLoop:
	default:
		return nil, fmt.Errorf("%w: node %q: unknown type %q", ErrInvalidConfig, spec.Name, spec.Type)
	}

	children := make([]core.Node, 0, len(spec.Children))
	for _, c := range spec.Children {
		child, err := buildNode(c, deps)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}

	switch spec.Type {
	case TypeSequential:
		return agent.NewSequentialAgent(spec.Name, children...), nil
	case TypeParallel:
		return agent.NewParallelAgent(spec.Name, children, agent.WithMaxConcurrency(spec.MaxConcurrency)), nil
	default:
		opts := []agent.LoopOption{agent.WithMaxIterations(spec.MaxIterations)}
		if spec.Interval > 0 {
			opts = append(opts, agent.WithInterval(spec.Interval))
		}
		if spec.StatusKey != "" {
			opts = append(opts, agent.WithStatusKey(spec.StatusKey))
		}
		return agent.NewLoopAgent(spec.Name, children, opts...), nil
	}
}

func buildAgent(spec NodeSpec, deps BuildDeps) (core.Node, error) {
	llm := deps.Model
	if spec.Model != "" {
		m, ok := deps.Models[spec.Model]
		if !ok {
			return nil, fmt.Errorf("%w: agent %q: unknown model %q", ErrInvalidConfig, spec.Name, spec.Model)
		}
		llm = m
	}

	if llm == nil {
		return nil, fmt.Errorf("%w: agent %q: no model available", ErrInvalidConfig, spec.Name)
	}

	tools := make([]tool.Tool, 0, len(spec.Tools)+len(spec.Delegates))

	for _, name := range spec.Tools {
		t, err := resolveTool(name, deps)
		if err != nil {
			return nil, fmt.Errorf("agent %q: %w", spec.Name, err)
		}
		tools = append(tools, t)
	}

	for _, d := range spec.Delegates {
		node, err := buildNode(d, deps)
		if err != nil {
			return nil, err
		}
		tools = append(tools, tool.NewAgentTool(node))
	}

	return agent.NewModelAgent(spec.Name, llm, func(o *agent.ModelAgentOptions) {
		o.Description = spec.Description
		o.Instruction = agent.NewInstructionFromText(spec.Instruction)
		o.OutputKey = spec.OutputKey
		if spec.InputKey != "" {
			o.InputKey = spec.InputKey
		}
		o.Tools = tools
		if spec.MaxToolRounds > 0 {
			o.MaxToolRounds = spec.MaxToolRounds
		}
		o.OutputJSON = spec.OutputJSON
		o.Temperature = spec.Temperature
	})
}

func resolveTool(name string, deps BuildDeps) (tool.Tool, error) {
	switch name {
	case tool.ExitLoopName:
		return tool.NewExitLoopTool(), nil
	case "read_state":
		return tool.NewStateReaderTool(), nil
	}

	if t, ok := deps.Tools[name]; ok {
		return t, nil
	}

	return nil, fmt.Errorf("%w: unknown tool %q", ErrInvalidConfig, name)
}
