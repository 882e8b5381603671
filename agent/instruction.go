package agent

import (
	"github.com/hupe1980/agentflow/core"
	"github.com/hupe1980/agentflow/internal/util"
)

// Provider supplies dynamic instruction text at runtime.
// Implementations can derive instructions from session state, environment, etc.
type Provider interface {
	Instruction(rc *core.RunContext, state *core.State) (string, error)
}

// Func is a functional adapter to allow ordinary functions to be used as Providers.
type Func func(rc *core.RunContext, state *core.State) (string, error)

// Instruction implements Provider.
func (f Func) Instruction(rc *core.RunContext, state *core.State) (string, error) {
	return f(rc, state)
}

// Instruction represents either a static instruction template or a dynamic
// provider. Templates reference state keys as {key}; {key?} marks a key as
// optional (rendered empty when absent). Provider output is used verbatim.
type Instruction struct {
	text     string
	provider Provider
}

// NewInstructionFromText creates an Instruction from a static template.
func NewInstructionFromText(text string) Instruction { return Instruction{text: text} }

// NewInstructionFromProvider creates an Instruction from a dynamic provider.
func NewInstructionFromProvider(p Provider) Instruction { return Instruction{provider: p} }

// NewInstructionFromFunc creates an Instruction from a function.
func NewInstructionFromFunc(f func(rc *core.RunContext, state *core.State) (string, error)) Instruction {
	return Instruction{provider: Func(f)}
}

// IsStatic returns true if the instruction is backed by a static template.
func (i Instruction) IsStatic() bool { return i.provider == nil }

// Placeholders returns the state keys a static template references.
func (i Instruction) Placeholders() []util.Placeholder {
	if !i.IsStatic() {
		return nil
	}
	return util.Placeholders(i.text)
}

// Resolve returns the instruction text. Static templates are rendered against
// state; any required key that is absent yields a *core.MissingDependencyError
// naming the node addressed by rc.
func (i Instruction) Resolve(rc *core.RunContext, state *core.State) (string, error) {
	if i.provider != nil {
		return i.provider.Instruction(rc, state)
	}

	text, missing := util.RenderTemplate(i.text, state.Lookup)
	if len(missing) > 0 {
		return "", &core.MissingDependencyError{Node: rc.NodeName(), Keys: missing}
	}

	return text, nil
}
