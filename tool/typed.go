package tool

import (
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/hupe1980/agentflow/core"
	"github.com/hupe1980/agentflow/internal/util"
)

// NewTypedTool exposes fn as a tool whose arguments are decoded into T. The
// parameter schema is derived from T's fields (json tags, description and enum
// tags) and model supplied arguments are validated against it before decoding.
//
// Example:
//
//	type searchArgs struct {
//	  Query string `json:"query" description:"search terms"`
//	}
//
//	search := NewTypedTool("web_search", "Search the web", func(tc *core.ToolContext, in searchArgs) (any, error) {
//	  return backend.Search(tc.Context(), in.Query)
//	})
func NewTypedTool[T any](name, description string, fn func(toolCtx *core.ToolContext, in T) (any, error)) *FunctionTool {
	var zero T

	return NewFunctionTool(name, description, util.CreateSchema(zero), func(tc *core.ToolContext, args map[string]any) (any, error) {
		in, err := DecodeArgs[T](args)
		if err != nil {
			return nil, &ToolError{
				Tool:    name,
				Message: err.Error(),
				Code:    CodeValidation,
				Cause:   err,
			}
		}
		return fn(tc, in)
	})
}

// DecodeArgs decodes model supplied arguments into T using json field names.
// Numbers arrive as float64 from JSON and are converted to integer fields.
func DecodeArgs[T any](args map[string]any) (T, error) {
	var out T

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &out,
		TagName:          "json",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return out, err
	}

	if err := dec.Decode(args); err != nil {
		return out, fmt.Errorf("decode arguments: %w", err)
	}

	return out, nil
}
