package testutil

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentflow/core"
)

func TestEventBuilder(t *testing.T) {
	ev := NewEventBuilder(core.EventToolCall).
		Run("r").
		Path("root/loop/critic").
		Kind(core.KindAgent).
		Iteration(2).
		Tool("exit_loop").
		Duration(time.Second).
		Meta("call_id", "c1").
		Build()

	assert.Equal(t, "r", ev.RunID)
	assert.Equal(t, "critic", ev.Node)
	assert.Equal(t, 2, ev.Iteration)
	assert.Equal(t, "c1", ev.Metadata["call_id"])
	assert.NotEmpty(t, ev.ID)

	root := NewEventBuilder(core.EventNodeEnter).Path("root").Build()
	assert.Equal(t, "root", root.Node)
}

func TestStateBuilder(t *testing.T) {
	s := NewStateBuilder().Set("b", 1).Input("hi").Set("b", 2).Build()
	assert.Equal(t, []string{"b", core.InputKey}, s.Keys())

	v, err := s.Get("b")
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestNodes(t *testing.T) {
	rc := core.NewRunContext(context.Background(), "r").WithNode("n")
	state := core.NewState()

	res, err := Writer("w", "k", "v").Execute(rc, state)
	require.NoError(t, err)
	assert.Equal(t, core.Completed, res)
	assert.True(t, state.Has("k"))

	res, err = Exit("x").Execute(rc, state)
	require.NoError(t, err)
	assert.Equal(t, core.ExitLoop, res)

	boom := errors.New("boom")
	_, err = Failing("f", boom).Execute(rc, state)
	assert.ErrorIs(t, err, boom)

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	go func() {
		<-started
		cancel()
	}()
	_, err = Blocking("b", started).Execute(core.NewRunContext(ctx, "r").WithNode("b"), state)
	assert.True(t, core.IsCancelled(err))
}
