package testutil

import "github.com/hupe1980/agentflow/core"

// FuncNode is a leaf node running an arbitrary body.
type FuncNode struct {
	NodeName string
	Key      string
	Fn       func(rc *core.RunContext, state *core.State) (core.Result, error)
}

// NewFuncNode creates a FuncNode declaring key as its output key.
func NewFuncNode(name, key string, fn func(rc *core.RunContext, state *core.State) (core.Result, error)) *FuncNode {
	return &FuncNode{NodeName: name, Key: key, Fn: fn}
}

// Name implements core.Node.
func (n *FuncNode) Name() string { return n.NodeName }

// Kind implements core.Node.
func (n *FuncNode) Kind() core.NodeKind { return core.KindAgent }

// OutputKey implements core.Producer.
func (n *FuncNode) OutputKey() string { return n.Key }

// Execute implements core.Node.
func (n *FuncNode) Execute(rc *core.RunContext, state *core.State) (core.Result, error) {
	return n.Fn(rc, state)
}

// Writer returns a node writing value under key.
func Writer(name, key string, value any) *FuncNode {
	return NewFuncNode(name, key, func(_ *core.RunContext, s *core.State) (core.Result, error) {
		s.Set(key, value)
		return core.Completed, nil
	})
}

// Failing returns a node failing with err, located at the node.
func Failing(name string, err error) *FuncNode {
	return NewFuncNode(name, name, func(rc *core.RunContext, _ *core.State) (core.Result, error) {
		return core.Completed, rc.WrapError(err)
	})
}

// Exit returns a node signalling core.ExitLoop.
func Exit(name string) *FuncNode {
	return NewFuncNode(name, name, func(*core.RunContext, *core.State) (core.Result, error) {
		return core.ExitLoop, nil
	})
}

// Blocking returns a node that closes started once running and then waits
// for cancellation.
func Blocking(name string, started chan<- struct{}) *FuncNode {
	return NewFuncNode(name, name, func(rc *core.RunContext, _ *core.State) (core.Result, error) {
		close(started)
		<-rc.Done()
		return core.Completed, rc.CheckCancelled()
	})
}
