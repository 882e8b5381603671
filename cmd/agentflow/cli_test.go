package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentflow/config"
	"github.com/hupe1980/agentflow/core"
	"github.com/hupe1980/agentflow/model"
)

const scriptedYAML = `
model:
  provider: scripted
  responses:
    - "Once upon a time."
    - "tool:exit_loop"
models:
  - id: echo
    provider: scripted
runner:
  output_key: story
logging:
  level: error
pipeline:
  name: story
  type: sequential
  children:
    - name: writer
      type: agent
      instruction: "Write about {topic}."
      output_key: story
    - name: refine
      type: loop
      max_iterations: 2
      status_key: refine_status
      children:
        - name: critic
          type: agent
          instruction: "Critique {story}."
          output_key: criticism
          tools: [exit_loop]
`

func parse(t *testing.T, yaml string) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(yaml))
	require.NoError(t, err)
	return cfg
}

func TestRunPipeline(t *testing.T) {
	cfg := parse(t, scriptedYAML)

	var out bytes.Buffer
	err := runPipeline(context.Background(), cfg, "go", runFlags{sets: []string{"topic=owls"}}, &out)
	require.NoError(t, err)

	assert.Equal(t, "Once upon a time.\n", out.String())
}

func TestRunPipeline_TraceJSON(t *testing.T) {
	cfg := parse(t, scriptedYAML)

	var out bytes.Buffer
	err := runPipeline(context.Background(), cfg, "go", runFlags{sets: []string{"topic=owls"}, traceFormat: "json", raw: true}, &out)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Greater(t, len(lines), 1)
	assert.Equal(t, "Once upon a time.", lines[len(lines)-1])

	var events []core.Event
	for _, line := range lines[:len(lines)-1] {
		var ev core.Event
		require.NoError(t, json.Unmarshal([]byte(line), &ev))
		events = append(events, ev)
	}
	assert.Equal(t, core.EventNodeEnter, events[0].Type)
	assert.Equal(t, "story", events[0].Node)
}

func TestRunPipeline_MissingDependency(t *testing.T) {
	cfg := parse(t, scriptedYAML)

	err := runPipeline(context.Background(), cfg, "go", runFlags{}, &bytes.Buffer{})
	assert.ErrorIs(t, err, core.ErrMissingDependency)
}

func TestRunPipeline_RedisTrace(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	cfg := parse(t, scriptedYAML)
	cfg.Trace.Redis = &config.RedisConfig{Addr: mr.Addr(), Stream: "cli:trace"}

	err = runPipeline(context.Background(), cfg, "go", runFlags{sets: []string{"topic=owls"}}, &bytes.Buffer{})
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	n, err := client.XLen(context.Background(), "cli:trace").Result()
	require.NoError(t, err)
	assert.Positive(t, n)
}

func TestParseSets(t *testing.T) {
	m, err := parseSets([]string{"a=1", "b=x=y"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": "1", "b": "x=y"}, m)

	_, err = parseSets([]string{"novalue"})
	assert.Error(t, err)
}

func TestNewScripted(t *testing.T) {
	m := newScripted(config.ModelConfig{Responses: []string{"hi", "tool:lookup"}})
	ctx := context.Background()

	r, err := m.Generate(ctx, model.Request{})
	require.NoError(t, err)
	assert.Equal(t, "hi", r.Text)

	r, err = m.Generate(ctx, model.Request{})
	require.NoError(t, err)
	require.True(t, r.HasToolCalls())
	assert.Equal(t, "lookup", r.ToolCalls[0].Function.Name)

	r, err = m.Generate(ctx, model.Request{Instructions: "echo me"})
	require.NoError(t, err)
	assert.Equal(t, "echo me", r.Text)
}

func TestValidateCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agentflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(scriptedYAML), 0o600))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"validate", "--config", path})
	t.Cleanup(func() { rootCmd.SetArgs(nil); rootCmd.SetOut(nil) })

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), `pipeline "story" is valid (4 nodes)`)
}

func TestValidatePipeline_Duplicate(t *testing.T) {
	cfg := parse(t, `
pipeline:
  name: p
  type: parallel
  children:
    - {name: a, type: agent, output_key: x}
    - {name: a, type: agent, output_key: y}
`)

	_, err := validatePipeline(cfg)
	assert.ErrorIs(t, err, core.ErrInvalidTopology)
}

func TestProgressRouter(t *testing.T) {
	var buf bytes.Buffer
	r := progressRouter(&buf)

	r.Emit(core.Event{Type: core.EventLoopIteration, Node: "refine", Iteration: 2})
	r.Emit(core.Event{Type: core.EventNodeExit, Path: "story/writer", Status: "completed", Duration: 1500 * time.Microsecond})
	r.Emit(core.Event{Type: core.EventStateWrite, Path: "story/writer"})

	assert.Equal(t, "loop refine iteration 2\n  completed story/writer (2ms)\n", buf.String())
}
