// Package gemini provides an implementation of model.Model on top of the
// Google GenAI SDK (Gemini API backend) with function calling.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/hupe1980/agentflow/model"
)

// DefaultModel is the model used when Options.Model is empty.
const DefaultModel = "gemini-2.5-flash"

// localCallIDPrefix marks call ids generated here for calls Gemini left
// without one. They are dropped again before being sent back.
const localCallIDPrefix = "gemini-call-"

// Options configure the Gemini model adapter.
type Options struct {
	Model           string
	Temperature     float32
	MaxOutputTokens int32
	APIKey          string // defaults to GOOGLE_API_KEY
}

// Model wraps genai's Models.GenerateContent behind model.Model.
type Model struct {
	client *genai.Client
	opts   Options
}

func defaultOptions() Options {
	return Options{
		Model:           DefaultModel,
		Temperature:     0.7,
		MaxOutputTokens: 4096,
	}
}

// NewModel creates a Gemini API client and wraps it.
func NewModel(ctx context.Context, optFns ...func(o *Options)) (*Model, error) {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.APIKey == "" {
		opts.APIKey = os.Getenv("GOOGLE_API_KEY")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Model{client: client, opts: opts}, nil
}

// NewModelFromClient wraps an existing client.
func NewModelFromClient(client *genai.Client, optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model{client: client, opts: opts}
}

// Generate performs one GenerateContent round-trip.
func (m *Model) Generate(ctx context.Context, req model.Request) (*model.Response, error) {
	contents, err := convertMessages(req.Messages)
	if err != nil {
		return nil, err
	}

	result, err := m.client.Models.GenerateContent(ctx, m.opts.Model, contents, m.buildConfig(req))
	if err != nil {
		return nil, mapError(err)
	}

	if result == nil {
		return nil, fmt.Errorf("gemini: empty response")
	}

	out := &model.Response{
		ID:           result.ResponseID,
		Text:         result.Text(),
		FinishReason: finishReason(result),
	}

	if u := result.UsageMetadata; u != nil {
		out.Usage = &model.TokenUsage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}

	for _, call := range result.FunctionCalls() {
		args, err := json.Marshal(call.Args)
		if err != nil {
			return nil, fmt.Errorf("gemini: encode args of %s: %w", call.Name, err)
		}

		// Gemini may omit call ids; each call still needs its own.
		id := call.ID
		if id == "" {
			id = localCallIDPrefix + uuid.NewString()
		}

		out.ToolCalls = append(out.ToolCalls, model.ToolCall{
			ID:       id,
			Type:     "function",
			Function: model.ToolCallFunction{Name: call.Name, Arguments: args},
		})
	}

	return out, nil
}

func (m *Model) buildConfig(req model.Request) *genai.GenerateContentConfig {
	temperature := m.opts.Temperature
	if req.Config.Temperature != nil {
		temperature = float32(*req.Config.Temperature)
	}

	maxTokens := m.opts.MaxOutputTokens
	if req.Config.MaxTokens > 0 {
		maxTokens = int32(req.Config.MaxTokens) //nolint:gosec // bounded by provider limits
	}

	config := &genai.GenerateContentConfig{
		Temperature:     &temperature,
		MaxOutputTokens: maxTokens,
	}

	if req.Instructions != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.Instructions}},
		}
	}

	if req.Config.JSON && len(req.Tools) == 0 {
		config.ResponseMIMEType = "application/json"
	}

	if len(req.Tools) > 0 {
		config.Tools = []*genai.Tool{{FunctionDeclarations: convertTools(req.Tools)}}
	}

	return config
}

// convertMessages converts the normalized conversation to Gemini contents.
// Gemini uses the "model" role for assistant turns.
func convertMessages(msgs []model.Message) ([]*genai.Content, error) {
	if len(msgs) == 0 {
		return nil, fmt.Errorf("gemini: message list cannot be empty")
	}

	var contents []*genai.Content

	for _, msg := range msgs {
		var (
			role  = "user"
			parts []*genai.Part
		)

		switch msg.Role {
		case model.RoleAssistant:
			role = "model"
			if msg.Text != "" {
				parts = append(parts, &genai.Part{Text: msg.Text})
			}
			for _, tc := range msg.ToolCalls {
				args := map[string]any{}
				if len(tc.Function.Arguments) > 0 {
					if err := json.Unmarshal(tc.Function.Arguments, &args); err != nil {
						return nil, fmt.Errorf("gemini: decode args of %s: %w", tc.Function.Name, err)
					}
				}
				parts = append(parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{ID: wireCallID(tc.ID), Name: tc.Function.Name, Args: args},
				})
			}
		case model.RoleTool:
			for _, r := range msg.ToolResults {
				parts = append(parts, &genai.Part{
					FunctionResponse: &genai.FunctionResponse{
						ID:   wireCallID(r.CallID),
						Name: r.Name,
						Response: map[string]any{
							"content":  r.Content,
							"is_error": r.IsError,
						},
					},
				})
			}
		default:
			if msg.Text != "" {
				parts = append(parts, &genai.Part{Text: msg.Text})
			}
		}

		if len(parts) > 0 {
			contents = append(contents, &genai.Content{Role: role, Parts: parts})
		}
	}

	return contents, nil
}

func convertTools(defs []model.ToolDefinition) []*genai.FunctionDeclaration {
	declarations := make([]*genai.FunctionDeclaration, len(defs))

	for i, def := range defs {
		params := def.Function.Parameters
		if params == nil {
			params = map[string]any{"type": "object"}
		}

		declarations[i] = &genai.FunctionDeclaration{
			Name:        def.Function.Name,
			Description: def.Function.Description,
			Parameters:  convertSchema(params),
		}
	}

	return declarations
}

// convertSchema recursively converts a JSON schema map to a Gemini schema.
func convertSchema(s map[string]any) *genai.Schema {
	schema := &genai.Schema{}

	if d, ok := s["description"].(string); ok {
		schema.Description = d
	}

	t, _ := s["type"].(string)
	switch t {
	case "string":
		schema.Type = genai.TypeString
	case "number":
		schema.Type = genai.TypeNumber
	case "integer":
		schema.Type = genai.TypeInteger
	case "boolean":
		schema.Type = genai.TypeBoolean
	case "array":
		schema.Type = genai.TypeArray
		if items, ok := s["items"].(map[string]any); ok {
			schema.Items = convertSchema(items)
		}
	case "object":
		schema.Type = genai.TypeObject
		if props, ok := s["properties"].(map[string]any); ok {
			schema.Properties = make(map[string]*genai.Schema, len(props))
			for name, p := range props {
				if pm, ok := p.(map[string]any); ok {
					schema.Properties[name] = convertSchema(pm)
				}
			}
		}
		schema.Required = stringList(s["required"])
	default:
		schema.Type = genai.TypeString
	}

	schema.Enum = stringList(s["enum"])

	return schema
}

func stringList(v any) []string {
	switch l := v.(type) {
	case []string:
		return l
	case []any:
		out := make([]string, 0, len(l))
		for _, x := range l {
			out = append(out, fmt.Sprint(x))
		}
		return out
	default:
		return nil
	}
}

func finishReason(result *genai.GenerateContentResponse) string {
	if len(result.Candidates) == 0 || result.Candidates[0].FinishReason == "" {
		return "stop"
	}
	return string(result.Candidates[0].FinishReason)
}

func mapError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &model.StatusError{Provider: "gemini", Code: apiErr.Code, Err: err}
	}

	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return &model.StatusError{Provider: "gemini", Code: apiErrPtr.Code, Err: err}
	}

	return fmt.Errorf("gemini api error: %w", err)
}

// Info returns metadata describing this Gemini model implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:          m.opts.Model,
		Provider:      "gemini",
		SupportsTools: true,
	}
}

func wireCallID(id string) string {
	if strings.HasPrefix(id, localCallIDPrefix) {
		return ""
	}
	return id
}
