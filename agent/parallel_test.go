package agent

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentflow/core"
)

func TestNewParallelAgent(t *testing.T) {
	a := writer("a", "x", 1)
	b := writer("b", "y", 2)

	agent := NewParallelAgent("par", []core.Node{a, b}, WithMaxConcurrency(1))

	assert.Equal(t, "par", agent.Name())
	assert.Equal(t, core.KindParallel, agent.Kind())
	assert.Len(t, agent.Children(), 2)
	assert.Equal(t, 1, agent.MaxConcurrency())
}

func TestParallelAgent_MergesInDeclarationOrder(t *testing.T) {
	bDone := make(chan struct{})

	a := &funcNode{name: "a", key: "x", fn: func(rc *core.RunContext, s *core.State) (core.Result, error) {
		<-bDone
		v, err := s.Get("seed")
		if err != nil {
			return core.Completed, err
		}
		s.Set("x", v.(string)+"-a")
		return core.Completed, nil
	}}

	b := &funcNode{name: "b", key: "y", fn: func(rc *core.RunContext, s *core.State) (core.Result, error) {
		defer close(bDone)
		assert.Equal(t, "par/b", rc.Path())
		s.Set("y", "b")
		return core.Completed, nil
	}}

	state := core.NewStateFrom(map[string]any{"seed": "s"})

	res, err := NewParallelAgent("par", []core.Node{a, b}).Execute(newRC(t, nil, "par", nil), state)
	require.NoError(t, err)
	assert.Equal(t, core.Completed, res)

	assert.Equal(t, []string{"seed", "x", "y"}, state.Keys())
	assert.Equal(t, map[string]any{"seed": "s", "x": "s-a", "y": "b"}, state.Snapshot().Map())
}

func TestParallelAgent_ChildrenDoNotSeeSiblingWrites(t *testing.T) {
	var sawSibling atomic.Bool

	a := writer("a", "x", 1)
	b := &funcNode{name: "b", key: "y", fn: func(_ *core.RunContext, s *core.State) (core.Result, error) {
		time.Sleep(5 * time.Millisecond)
		if len(s.Keys()) > 0 {
			sawSibling.Store(true)
		}
		s.Set("y", 2)
		return core.Completed, nil
	}}

	state := core.NewState()
	_, err := NewParallelAgent("par", []core.Node{a, b}).Execute(newRC(t, nil, "par", nil), state)
	require.NoError(t, err)
	assert.False(t, sawSibling.Load())
	assert.Equal(t, 2, state.Len())
}

func TestParallelAgent_WriteConflict(t *testing.T) {
	state := core.NewState()

	_, err := NewParallelAgent("par", []core.Node{
		writer("a", "same", 1),
		writer("b", "same", 2),
	}).Execute(newRC(t, nil, "par", nil), state)

	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrStateConflict)

	var ce *core.ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "same", ce.Key)
	assert.Equal(t, []string{"a", "b"}, ce.Writers)

	var ne *core.NodeError
	require.ErrorAs(t, err, &ne)
	assert.Equal(t, "par", ne.Node)

	assert.False(t, state.Has("same"))
}

func TestParallelAgent_ReadWriteConflict(t *testing.T) {
	reader := &funcNode{name: "b", key: "y", fn: func(_ *core.RunContext, s *core.State) (core.Result, error) {
		_, _ = s.Lookup("x")
		s.Set("y", 1)
		return core.Completed, nil
	}}

	state := core.NewState()
	_, err := NewParallelAgent("par", []core.Node{writer("a", "x", 1), reader}).Execute(newRC(t, nil, "par", nil), state)

	var ce *core.ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, []string{"b"}, ce.Readers)
	assert.Zero(t, state.Len())
}

func TestParallelAgent_AggregatesFailures(t *testing.T) {
	errA := errors.New("a failed")
	errC := errors.New("c failed")

	var ran atomic.Int32

	fail := func(name string, err error) *funcNode {
		return &funcNode{name: name, fn: func(*core.RunContext, *core.State) (core.Result, error) {
			time.Sleep(time.Millisecond)
			ran.Add(1)
			return core.Completed, err
		}}
	}

	ok := &funcNode{name: "b", key: "y", fn: func(_ *core.RunContext, s *core.State) (core.Result, error) {
		ran.Add(1)
		s.Set("y", 1)
		return core.Completed, nil
	}}

	rec := &recorder{}
	state := core.NewState()

	_, err := NewParallelAgent("par", []core.Node{fail("a", errA), ok, fail("c", errC)}).
		Execute(newRC(t, nil, "par", rec), state)

	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrAggregateFailure)
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errC)

	var ae *core.AggregateError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "par", ae.Node)
	assert.Equal(t, []error{errA, errC}, ae.Failures)

	assert.EqualValues(t, 3, ran.Load())
	assert.False(t, state.Has("y"))

	exits := rec.ofType(core.EventNodeExit)
	require.Len(t, exits, 1)
	assert.Equal(t, "failed", exits[0].Status)
}

func TestParallelAgent_CancelledBeforeFanOut(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := NewMockNode("a")
	b := NewMockNode("b")

	_, err := NewParallelAgent("par", []core.Node{a, b}).Execute(newRC(t, ctx, "par", nil), core.NewState())

	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrCancelled)

	var ce *core.CancelledError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "par", ce.Node)

	a.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything)
	b.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything)
}

func TestParallelAgent_CancellationReachesChildren(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})

	blocking := &funcNode{name: "slow", fn: func(rc *core.RunContext, _ *core.State) (core.Result, error) {
		close(started)
		<-rc.Done()
		return core.Completed, rc.CheckCancelled()
	}}

	go func() {
		<-started
		cancel()
	}()

	state := core.NewState()
	_, err := NewParallelAgent("par", []core.Node{blocking, writer("fast", "x", 1)}).
		Execute(newRC(t, ctx, "par", nil), state)

	assert.True(t, core.IsCancelled(err))
	assert.False(t, state.Has("x"))
}

func TestParallelAgent_MaxConcurrency(t *testing.T) {
	var active, peak atomic.Int32

	children := make([]core.Node, 6)
	for i := range children {
		children[i] = &funcNode{name: string(rune('a' + i)), fn: func(*core.RunContext, *core.State) (core.Result, error) {
			n := active.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			active.Add(-1)
			return core.Completed, nil
		}}
	}

	_, err := NewParallelAgent("par", children, WithMaxConcurrency(2)).Execute(newRC(t, nil, "par", nil), core.NewState())
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.GreaterOrEqual(t, peak.Load(), int32(1))
}

func TestParallelAgent_RecoversPanics(t *testing.T) {
	bad := &funcNode{name: "bad", fn: func(*core.RunContext, *core.State) (core.Result, error) {
		panic("kaboom")
	}}

	_, err := NewParallelAgent("par", []core.Node{bad, writer("good", "x", 1)}).
		Execute(newRC(t, nil, "par", nil), core.NewState())

	var ae *core.AggregateError
	require.ErrorAs(t, err, &ae)
	require.Len(t, ae.Failures, 1)
	assert.Contains(t, ae.Failures[0].Error(), "kaboom")

	var ne *core.NodeError
	require.ErrorAs(t, ae.Failures[0], &ne)
	assert.Equal(t, "bad", ne.Node)
}

func TestParallelAgent_PropagatesExitLoopAfterMerge(t *testing.T) {
	exit := &funcNode{name: "exit", fn: func(*core.RunContext, *core.State) (core.Result, error) {
		return core.ExitLoop, nil
	}}

	state := core.NewState()
	res, err := NewParallelAgent("par", []core.Node{exit, writer("w", "x", 1)}).
		Execute(newRC(t, nil, "par", nil), state)

	require.NoError(t, err)
	assert.Equal(t, core.ExitLoop, res)
	assert.True(t, state.Has("x"))
}
