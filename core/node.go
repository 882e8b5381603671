package core

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// NodeKind tags the variant of a node.
type NodeKind string

const (
	// KindAgent is an atomic model-backed unit.
	KindAgent NodeKind = "agent"
	// KindSequential runs children one after another.
	KindSequential NodeKind = "sequential"
	// KindParallel runs children concurrently.
	KindParallel NodeKind = "parallel"
	// KindLoop repeats a sequential body.
	KindLoop NodeKind = "loop"
)

// Result is the non-error outcome of a node execution.
type Result int

const (
	// Completed is an ordinary completion; the state holds the node's writes.
	Completed Result = iota
	// ExitLoop asks the nearest enclosing loop to stop after this iteration.
	ExitLoop
)

// String returns the result name.
func (r Result) String() string {
	switch r {
	case Completed:
		return "completed"
	case ExitLoop:
		return "exit_loop"
	default:
		return "unknown"
	}
}

// Node is the schedulable unit every agent and composite implements.
//
// Implementations must:
//   - Check rc for cancellation before starting work
//   - Only mutate state through the State API
//   - Keep their topology (children, keys) fixed after construction
type Node interface {
	Name() string
	Kind() NodeKind
	Execute(rc *RunContext, state *State) (Result, error)
}

// Composite is implemented by nodes that schedule children.
type Composite interface {
	Node
	Children() []Node
}

// Producer is implemented by nodes that write a single output key.
type Producer interface {
	Node
	OutputKey() string
}

// Walk visits n and all of its descendants depth-first, stopping early when
// fn returns false for a node (its subtree is skipped).
func Walk(n Node, fn func(n Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	if c, ok := n.(Composite); ok {
		for _, child := range c.Children() {
			Walk(child, fn)
		}
	}
}

// OutputKeys returns the distinct output keys written anywhere in n's subtree.
func OutputKeys(n Node) []string {
	seen := map[string]bool{}
	var keys []string
	Walk(n, func(x Node) bool {
		if p, ok := x.(Producer); ok && p.OutputKey() != "" && !seen[p.OutputKey()] {
			seen[p.OutputKey()] = true
			keys = append(keys, p.OutputKey())
		}
		return true
	})
	return keys
}

// Validate checks a topology before it runs: node names are unique, producers
// declare an output key, and siblings of every parallel composite write
// disjoint keys. All problems are reported together.
func Validate(root Node) error {
	if root == nil {
		return fmt.Errorf("%w: nil root", ErrInvalidTopology)
	}

	var problems []string
	names := map[string]int{}

	Walk(root, func(n Node) bool {
		names[n.Name()]++
		if n.Name() == "" {
			problems = append(problems, fmt.Sprintf("%s node without a name", n.Kind()))
		}
		if p, ok := n.(Producer); ok && p.OutputKey() == "" {
			problems = append(problems, fmt.Sprintf("agent %s has no output key", n.Name()))
		}
		if c, ok := n.(Composite); ok && n.Kind() == KindParallel {
			owner := map[string]string{}
			for _, child := range c.Children() {
				for _, k := range OutputKeys(child) {
					if prev, dup := owner[k]; dup {
						problems = append(problems, fmt.Sprintf(
							"parallel %s: children %s and %s both write %q", n.Name(), prev, child.Name(), k))
						continue
					}
					owner[k] = child.Name()
				}
			}
		}
		return true
	})

	for _, name := range slices.Sorted(maps.Keys(names)) {
		if count := names[name]; count > 1 && name != "" {
			problems = append(problems, fmt.Sprintf("node name %q used %d times", name, count))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidTopology, strings.Join(problems, "; "))
	}

	return nil
}
