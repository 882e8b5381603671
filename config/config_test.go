package config

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentflow/agent"
	"github.com/hupe1980/agentflow/core"
	"github.com/hupe1980/agentflow/model"
	"github.com/hupe1980/agentflow/retry"
	"github.com/hupe1980/agentflow/runner"
	"github.com/hupe1980/agentflow/tool"
)

const storyYAML = `
model:
  provider: scripted
models:
  - id: critic
    provider: scripted
retry:
  max_attempts: 3
  base_delay: 10ms
  multiplier: 2
  retryable_status: [503]
runner:
  debug: true
  output_key: current_story
  max_model_calls: 20
logging:
  level: debug
  format: json
pipeline:
  name: story
  type: sequential
  children:
    - name: writer
      type: agent
      instruction: "Write a story about {topic}."
      output_key: current_story
    - name: refine
      type: loop
      max_iterations: 3
      status_key: refine_status
      children:
        - name: critic
          type: agent
          model: critic
          instruction: "Critique: {current_story}"
          output_key: criticism
          tools: [exit_loop]
        - name: reviser
          type: agent
          instruction: "Revise {current_story} using {criticism}."
          output_key: current_story
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(storyYAML))
	require.NoError(t, err)

	assert.Equal(t, ProviderScripted, cfg.Model.Provider)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 10*time.Millisecond, cfg.Retry.BaseDelay)
	assert.Equal(t, []int{503}, cfg.Retry.RetryableStatus)
	assert.True(t, cfg.Runner.Debug)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.True(t, cfg.HasPipeline())
	require.Len(t, cfg.Pipeline.Children, 2)
	assert.Equal(t, TypeLoop, cfg.Pipeline.Children[1].Type)

	critic, ok := cfg.ModelByID("critic")
	require.True(t, ok)
	assert.Equal(t, ProviderScripted, critic.Provider)
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)

	assert.Equal(t, ProviderGemini, cfg.Model.Provider)
	assert.Equal(t, retry.DefaultConfig.MaxAttempts, cfg.Retry.MaxAttempts)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.False(t, cfg.HasPipeline())
}

func TestParse_RejectsUnknownFields(t *testing.T) {
	_, err := Parse([]byte("modle:\n  provider: gemini\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "modle")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown provider", "model: {provider: ollama, name: x}", `unknown provider "ollama"`},
		{"missing model name", "model: {provider: openai}", "name is required"},
		{"bad level", "logging: {level: loud}", "unknown log level"},
		{"bad format", "logging: {format: xml}", `unknown format "xml"`},
		{"redis without addr", "trace: {redis: {stream: s}}", "addr is required"},
		{"unknown node type", "pipeline: {name: p, type: graph}", `unknown type "graph"`},
		{"empty composite", "pipeline: {name: p, type: sequential}", "needs children"},
		{"agent without output", "pipeline: {name: a, type: agent}", "output_key is required"},
		{"unknown model ref", "pipeline: {name: a, type: agent, output_key: o, model: nope}", `unknown model "nope"`},
		{"duplicate model id", "models: [{id: a, provider: scripted}, {id: a, provider: scripted}]", `duplicate id "a"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agentflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(storyYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "story", cfg.Pipeline.Name)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestModelConfig_APIKey(t *testing.T) {
	t.Setenv("AGENTFLOW_TEST_KEY", "secret")

	assert.Equal(t, "secret", ModelConfig{APIKeyEnv: "AGENTFLOW_TEST_KEY"}.APIKey())
	assert.Empty(t, ModelConfig{}.APIKey())
}

func TestConfig_Logger(t *testing.T) {
	cfg, err := Parse([]byte("logging: {level: warn, format: json}"))
	require.NoError(t, err)

	var buf bytes.Buffer
	l := cfg.Logger(&buf)
	l.Info("hidden")
	l.Warn("shown", "k", "v")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
}

func TestBuild(t *testing.T) {
	cfg, err := Parse([]byte(storyYAML))
	require.NoError(t, err)

	writer := model.NewScriptedModel("writer-model",
		model.Reply("draft"),
		model.Reply("revised"),
	)
	critic := model.NewScriptedModel("critic-model",
		model.Reply("add a dragon"),
		model.CallTool(tool.ExitLoopName, nil),
	)

	root, err := Build(cfg.Pipeline, BuildDeps{
		Model:  writer,
		Models: map[string]model.Model{"critic": critic},
	})
	require.NoError(t, err)

	loop, ok := agent.FindAgent(root, "refine").(*agent.LoopAgent)
	require.True(t, ok)
	assert.Equal(t, 3, loop.MaxIterations())
	assert.Equal(t, "refine_status", loop.StatusKey())

	r := runner.New(root, func(o *runner.Options) {
		o.Retry = cfg.RetryPolicy()
		o.OutputKey = cfg.Runner.OutputKey
		o.InitialState = map[string]any{"topic": "a lighthouse"}
	})

	res, err := r.Run(context.Background(), "go")
	require.NoError(t, err)
	assert.Equal(t, "revised", res.Output)

	status, _ := res.State.Get("refine_status")
	assert.Equal(t, string(agent.LoopDoneExit), status)
	assert.Equal(t, 2, writer.Calls())
	assert.Equal(t, 2, critic.Calls())
}

func TestBuild_ToolsAndDelegates(t *testing.T) {
	spec := NodeSpec{
		Name:      "lead",
		Type:      TypeAgent,
		OutputKey: "answer",
		Tools:     []string{"read_state", "lookup"},
		Delegates: []NodeSpec{{
			Name:        "researcher",
			Type:        TypeAgent,
			Description: "Finds facts.",
			OutputKey:   "facts",
		}},
	}

	lookup := tool.NewFunctionTool("lookup", "Looks things up.", nil,
		func(*core.ToolContext, map[string]any) (any, error) { return "ok", nil })

	node, err := Build(spec, BuildDeps{
		Model: model.NewScriptedModel("m"),
		Tools: map[string]tool.Tool{"lookup": lookup},
	})
	require.NoError(t, err)

	ma, ok := node.(*agent.ModelAgent)
	require.True(t, ok)

	var names []string
	for _, tl := range ma.Tools() {
		names = append(names, tl.Name())
	}
	assert.Equal(t, []string{"read_state", "lookup", "researcher"}, names)
}

func TestBuild_Errors(t *testing.T) {
	_, err := Build(NodeSpec{Name: "a", Type: TypeAgent, OutputKey: "o"}, BuildDeps{})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = Build(NodeSpec{Name: "a", Type: TypeAgent, OutputKey: "o", Tools: []string{"nope"}},
		BuildDeps{Model: model.NewScriptedModel("m")})
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), `unknown tool "nope"`)

	dup := NodeSpec{Name: "p", Type: TypeSequential, Children: []NodeSpec{
		{Name: "a", Type: TypeAgent, OutputKey: "x"},
		{Name: "a", Type: TypeAgent, OutputKey: "y"},
	}}
	_, err = Build(dup, BuildDeps{Model: model.NewScriptedModel("m")})
	assert.ErrorIs(t, err, core.ErrInvalidTopology)
}
