package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hupe1980/agentflow/retry"
)

var (
	// ErrMissingKey is returned by State.Get when a key has never been written.
	ErrMissingKey = errors.New("state key not found")

	// ErrMissingDependency signals that a node referenced a state key that was
	// absent when it started. It is a topology error and is never retried.
	ErrMissingDependency = errors.New("missing dependency")

	// ErrRetryExhausted aliases retry.ErrExhausted so callers only need core.
	ErrRetryExhausted = retry.ErrExhausted

	// ErrToolLoopExceeded is returned when model/tool round-trips exceed the
	// agent's bound.
	ErrToolLoopExceeded = errors.New("tool loop exceeded")

	// ErrAggregateFailure matches an AggregateError from a parallel fan-in.
	ErrAggregateFailure = errors.New("parallel children failed")

	// ErrCancelled matches cooperative cancellation observed by a node.
	ErrCancelled = errors.New("cancelled")

	// ErrStateConflict matches concurrent siblings touching the same key.
	ErrStateConflict = errors.New("conflicting parallel state access")

	// ErrInvalidTopology is returned by Validate for malformed node trees.
	ErrInvalidTopology = errors.New("invalid topology")

	// ErrModelCallLimit is returned once a run exceeds its model call budget.
	ErrModelCallLimit = errors.New("model call limit exceeded")
)

// MissingKeyError reports a read of an undefined state key.
type MissingKeyError struct {
	Key string
}

func (e *MissingKeyError) Error() string { return fmt.Sprintf("state key %q not found", e.Key) }

// Is reports whether target is ErrMissingKey.
func (e *MissingKeyError) Is(target error) bool { return target == ErrMissingKey }

// MissingDependencyError names the node and the absent keys it required.
type MissingDependencyError struct {
	Node string
	Keys []string
}

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("node %s: missing dependency: state key(s) %s not set", e.Node, strings.Join(e.Keys, ", "))
}

// Is reports whether target is ErrMissingDependency.
func (e *MissingDependencyError) Is(target error) bool { return target == ErrMissingDependency }

// CancelledError records where cancellation was observed. It matches both
// ErrCancelled and the underlying context error.
type CancelledError struct {
	Node  string
	Cause error
}

// NewCancelledError wraps the context's error for node. A nil cause defaults
// to context.Canceled.
func NewCancelledError(node string, cause error) *CancelledError {
	if cause == nil {
		cause = context.Canceled
	}
	return &CancelledError{Node: node, Cause: cause}
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("node %s: cancelled: %v", e.Node, e.Cause)
}

// Is reports whether target is ErrCancelled.
func (e *CancelledError) Is(target error) bool { return target == ErrCancelled }

// Unwrap returns the context error.
func (e *CancelledError) Unwrap() error { return e.Cause }

// IsCancelled reports whether err stems from cancellation (either an explicit
// CancelledError or a bare context error).
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// NodeError locates a failure inside the node tree.
type NodeError struct {
	Node      string
	Path      string
	Iteration int // innermost loop iteration (1-based), 0 when not inside a loop
	Err       error
}

func (e *NodeError) Error() string {
	if e.Iteration > 0 {
		return fmt.Sprintf("node %s (%s, iteration %d): %v", e.Node, e.Path, e.Iteration, e.Err)
	}
	return fmt.Sprintf("node %s (%s): %v", e.Node, e.Path, e.Err)
}

// Unwrap returns the underlying cause.
func (e *NodeError) Unwrap() error { return e.Err }

// AggregateError lists every failed child of a parallel composite in
// declaration order.
type AggregateError struct {
	Node     string
	Failures []error
}

func (e *AggregateError) Error() string {
	msgs := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		msgs[i] = f.Error()
	}
	return fmt.Sprintf("parallel %s: %d child(ren) failed: [%s]", e.Node, len(e.Failures), strings.Join(msgs, "; "))
}

// Is reports whether target is ErrAggregateFailure.
func (e *AggregateError) Is(target error) bool { return target == ErrAggregateFailure }

// Unwrap exposes the individual failures to errors.Is / errors.As.
func (e *AggregateError) Unwrap() []error { return e.Failures }

// ConflictError reports a key written by more than one parallel sibling, or
// written by one sibling and read by another.
type ConflictError struct {
	Key     string
	Writers []string
	Readers []string
}

func (e *ConflictError) Error() string {
	if len(e.Readers) > 0 {
		return fmt.Sprintf("state key %q written by %s and read by %s concurrently",
			e.Key, strings.Join(e.Writers, ", "), strings.Join(e.Readers, ", "))
	}
	return fmt.Sprintf("state key %q written concurrently by %s", e.Key, strings.Join(e.Writers, ", "))
}

// Is reports whether target is ErrStateConflict.
func (e *ConflictError) Is(target error) bool { return target == ErrStateConflict }
