package core

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentflow/retry"
)

func TestCancelledError_MatchesSentinelAndCause(t *testing.T) {
	err := NewCancelledError("critic", context.DeadlineExceeded)

	assert.ErrorIs(t, err, ErrCancelled)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, IsCancelled(err))
	assert.Contains(t, err.Error(), "critic")

	assert.ErrorIs(t, NewCancelledError("x", nil), context.Canceled)
}

func TestIsCancelled_BareContextErrors(t *testing.T) {
	assert.True(t, IsCancelled(fmt.Errorf("call: %w", context.Canceled)))
	assert.False(t, IsCancelled(errors.New("boom")))
	assert.False(t, IsCancelled(nil))
}

func TestAggregateError_UnwrapsEveryFailure(t *testing.T) {
	exhausted := &retry.ExhaustedError{Attempts: 5, Last: errors.New("503")}
	missing := &MissingDependencyError{Node: "b", Keys: []string{"x"}}

	err := &AggregateError{Node: "fan", Failures: []error{
		&NodeError{Node: "a", Path: "fan/a", Err: exhausted},
		&NodeError{Node: "b", Path: "fan/b", Err: missing},
	}}

	assert.ErrorIs(t, err, ErrAggregateFailure)
	assert.ErrorIs(t, err, ErrRetryExhausted)
	assert.ErrorIs(t, err, ErrMissingDependency)
	assert.Contains(t, err.Error(), "2 child(ren) failed")

	var md *MissingDependencyError
	require.ErrorAs(t, err, &md)
	assert.Equal(t, []string{"x"}, md.Keys)
}

func TestNodeError_MessageCarriesLocation(t *testing.T) {
	err := &NodeError{Node: "refiner", Path: "pipeline/refine/refiner", Iteration: 2, Err: ErrToolLoopExceeded}

	assert.ErrorIs(t, err, ErrToolLoopExceeded)
	assert.Equal(t, "node refiner (pipeline/refine/refiner, iteration 2): tool loop exceeded", err.Error())

	noLoop := &NodeError{Node: "writer", Path: "pipeline/writer", Err: ErrToolLoopExceeded}
	assert.Equal(t, "node writer (pipeline/writer): tool loop exceeded", noLoop.Error())
}

func TestConflictError_Messages(t *testing.T) {
	w := &ConflictError{Key: "k", Writers: []string{"a", "b"}}
	assert.Equal(t, `state key "k" written concurrently by a, b`, w.Error())

	r := &ConflictError{Key: "k", Writers: []string{"a"}, Readers: []string{"b"}}
	assert.Equal(t, `state key "k" written by a and read by b concurrently`, r.Error())
}
