// Package model defines the provider-agnostic abstractions for invoking
// generative models from agent units.
//
// Core goals:
//   - A single blocking Generate call per round-trip of the tool-use protocol
//   - Normalize tool / function call representation (ToolDefinition, ToolCall, ToolResult)
//   - Surface remote status codes (StatusError) so the retry policy can classify them
//   - Facilitate deterministic testing (ScriptedModel)
//
// Providers live in the subpackages gemini, openai and anthropic.
package model
