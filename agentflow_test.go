package agentflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentflow/agent"
	"github.com/hupe1980/agentflow/core"
	"github.com/hupe1980/agentflow/internal/testutil"
	"github.com/hupe1980/agentflow/model"
	"github.com/hupe1980/agentflow/runner"
	"github.com/hupe1980/agentflow/trace"
)

func TestAgentFlow_InvokeSync(t *testing.T) {
	rec := trace.NewRecorder()
	f := New(func(o *Options) { o.Tracer = rec })

	writer := agent.MustModelAgent("writer", model.NewScriptedModel("m", model.Reply("hello")), func(o *agent.ModelAgentOptions) {
		o.Instruction = agent.NewInstructionFromText("Greet {user_input}.")
		o.OutputKey = "greeting"
	})

	require.NoError(t, f.Register(writer))
	assert.Equal(t, []string{"writer"}, f.Workflows())

	res, err := f.InvokeSync(context.Background(), "writer", "world")
	require.NoError(t, err)
	assert.Equal(t, "hello", res.Output)
	assert.NotEmpty(t, rec.Filter(core.EventModelCall))
}

func TestAgentFlow_Register(t *testing.T) {
	f := New()

	root := agent.NewSequentialAgent("pipeline", testutil.Writer("a", "x", 1))
	require.NoError(t, f.Register(root, "x"))

	err := f.Register(root)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")

	dup := agent.NewSequentialAgent("dup", testutil.Writer("a", "x", 1), testutil.Writer("a", "y", 2))
	assert.ErrorIs(t, f.Register(dup), core.ErrInvalidTopology)

	res, err := f.InvokeSync(context.Background(), "pipeline", "")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Output)
}

func TestAgentFlow_UnknownWorkflow(t *testing.T) {
	f := New()

	_, err := f.InvokeSync(context.Background(), "missing", "")
	assert.ErrorIs(t, err, ErrUnknownWorkflow)

	_, _, err = f.Invoke(context.Background(), "missing", "")
	assert.ErrorIs(t, err, ErrUnknownWorkflow)
}

func TestAgentFlow_InvokeAndCancel(t *testing.T) {
	f := New()

	started := make(chan struct{})
	require.NoError(t, f.Register(testutil.Blocking("slow", started)))

	runID, out, err := f.Invoke(context.Background(), "slow", "")
	require.NoError(t, err)

	<-started
	require.NoError(t, f.Cancel(runID))

	outcome := <-out
	assert.ErrorIs(t, outcome.Err, core.ErrCancelled)
	assert.Equal(t, runID, outcome.Result.RunID)

	assert.ErrorIs(t, f.Cancel("unknown"), runner.ErrRunNotFound)
}

func TestRun(t *testing.T) {
	root := agent.NewSequentialAgent("root", testutil.Writer("w", "out", "done"))

	res, err := Run(context.Background(), root, "", func(o *runner.Options) { o.OutputKey = "out" })
	require.NoError(t, err)
	assert.Equal(t, "done", res.Output)
}
