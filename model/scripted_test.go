package model

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScriptedModel_ConsumesStepsInOrder(t *testing.T) {
	m := NewScriptedModel("critic",
		CallTool("exit_loop", map[string]any{"reason": "good"}),
		Reply("done"),
	)

	first, err := m.Generate(context.Background(), Request{Messages: []Message{UserMessage("review")}})
	require.NoError(t, err)
	require.True(t, first.HasToolCalls())
	assert.Equal(t, "exit_loop", first.ToolCalls[0].Function.Name)
	assert.JSONEq(t, `{"reason":"good"}`, string(first.ToolCalls[0].Function.Arguments))

	second, err := m.Generate(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "done", second.Text)
	assert.False(t, second.HasToolCalls())

	_, err = m.Generate(context.Background(), Request{})
	assert.ErrorContains(t, err, "script exhausted")

	assert.Equal(t, 3, m.Calls())
	assert.Equal(t, "review", m.Requests()[0].LastUserText())
}

func TestScriptedModel_Fallback(t *testing.T) {
	boom := errors.New("boom")
	m := NewScriptedModel("m", Fail(boom)).WithFallback(Reply("again"))

	_, err := m.Generate(context.Background(), Request{})
	assert.ErrorIs(t, err, boom)

	for range 3 {
		resp, err := m.Generate(context.Background(), Request{})
		require.NoError(t, err)
		assert.Equal(t, "again", resp.Text)
	}
}

func TestScriptedModel_HonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := NewFuncModel("m", Reply("x"))
	_, err := m.Generate(ctx, Request{})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, m.Calls())
}

func TestStatusError(t *testing.T) {
	cause := errors.New("unavailable")
	err := error(&StatusError{Provider: "gemini", Code: 503, Err: cause})

	var sc interface{ StatusCode() int }
	require.ErrorAs(t, err, &sc)
	assert.Equal(t, 503, sc.StatusCode())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "gemini api error (status 503): unavailable", err.Error())
}

func TestJoinText(t *testing.T) {
	assert.Equal(t, "a\nb", JoinText("a", "", "b"))
	assert.Equal(t, "", JoinText())
}
