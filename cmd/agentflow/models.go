package main

import (
	"context"
	"fmt"
	"strings"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/hupe1980/agentflow/config"
	"github.com/hupe1980/agentflow/model"
	"github.com/hupe1980/agentflow/model/anthropic"
	"github.com/hupe1980/agentflow/model/gemini"
	"github.com/hupe1980/agentflow/model/openai"
)

// toolPrefix marks a scripted response that requests a tool call instead of
// answering, e.g. "tool:exit_loop".
const toolPrefix = "tool:"

func newModel(ctx context.Context, mc config.ModelConfig) (model.Model, error) {
	switch mc.Provider {
	case config.ProviderOpenAI:
		return openai.NewModel(func(o *openai.Options) {
			o.Model = mc.Name
			o.APIKey = mc.APIKey()
			if mc.Temperature != nil {
				o.Temperature = *mc.Temperature
			}
			if mc.MaxTokens > 0 {
				o.MaxCompletionTokens = int64(mc.MaxTokens)
			}
		}), nil
	case config.ProviderAnthropic:
		return anthropic.NewModel(func(o *anthropic.Options) {
			o.Model = anthropicsdk.Model(mc.Name)
			o.APIKey = mc.APIKey()
			if mc.Temperature != nil {
				o.Temperature = *mc.Temperature
			}
			if mc.MaxTokens > 0 {
				o.MaxTokens = int64(mc.MaxTokens)
			}
		}), nil
	case config.ProviderGemini:
		return gemini.NewModel(ctx, func(o *gemini.Options) {
			o.Model = mc.Name
			o.APIKey = mc.APIKey()
			if mc.Temperature != nil {
				o.Temperature = float32(*mc.Temperature)
			}
			if mc.MaxTokens > 0 {
				o.MaxOutputTokens = int32(mc.MaxTokens)
			}
		})
	case config.ProviderScripted:
		return newScripted(mc), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", mc.Provider)
	}
}

// newScripted answers with the configured responses in order and then echoes
// the rendered instruction, which makes pipelines runnable offline.
func newScripted(mc config.ModelConfig) *model.ScriptedModel {
	name := mc.Name
	if name == "" {
		name = "scripted"
	}

	steps := make([]model.Step, 0, len(mc.Responses))
	for _, r := range mc.Responses {
		if t, ok := strings.CutPrefix(r, toolPrefix); ok {
			steps = append(steps, model.CallTool(t, nil))
			continue
		}
		steps = append(steps, model.Reply(r))
	}

	return model.NewScriptedModel(name, steps...).WithFallback(func(_ context.Context, req model.Request) (*model.Response, error) {
		return &model.Response{Text: req.Instructions, FinishReason: "stop"}, nil
	})
}

func buildDeps(ctx context.Context, cfg *config.Config) (config.BuildDeps, error) {
	def, err := newModel(ctx, cfg.Model)
	if err != nil {
		return config.BuildDeps{}, fmt.Errorf("model: %w", err)
	}

	deps := config.BuildDeps{Model: def, Models: map[string]model.Model{}}

	for _, mc := range cfg.Models {
		m, err := newModel(ctx, mc)
		if err != nil {
			return config.BuildDeps{}, fmt.Errorf("model %s: %w", mc.ID, err)
		}
		deps.Models[mc.ID] = m
	}

	return deps, nil
}
