package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func lookupIn(m map[string]any) func(string) (any, bool) {
	return func(k string) (any, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestPlaceholders(t *testing.T) {
	got := Placeholders(`Refine {draft} using {critique?}. Again: {draft}. Notes {critique}. JSON: {"a": 1}`)

	assert.Equal(t, []Placeholder{
		{Key: "draft"},
		{Key: "critique", Optional: false},
	}, got)

	assert.Empty(t, Placeholders("no placeholders here"))
}

func TestRenderTemplate(t *testing.T) {
	out, missing := RenderTemplate("Story: {draft}\nFeedback: {critique?}", lookupIn(map[string]any{"draft": "Once"}))

	assert.Empty(t, missing)
	assert.Equal(t, "Story: Once\nFeedback: ", out)
}

func TestRenderTemplate_ReportsAllMissing(t *testing.T) {
	out, missing := RenderTemplate("{a} {b} {c?} {d}", lookupIn(map[string]any{"b": 1}))

	assert.Equal(t, []string{"a", "d"}, missing)
	assert.Empty(t, out)
}

func TestRenderTemplate_LeavesNonIdentifierBraces(t *testing.T) {
	out, missing := RenderTemplate(`Reply as {"status": "ok"} for {topic}`, lookupIn(map[string]any{"topic": "go"}))

	assert.Empty(t, missing)
	assert.Equal(t, `Reply as {"status": "ok"} for go`, out)
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "", FormatValue(nil))
	assert.Equal(t, "text", FormatValue("text"))
	assert.Equal(t, "42", FormatValue(42))
	assert.Equal(t, `{"score":0.5}`, FormatValue(map[string]any{"score": 0.5}))
	assert.Equal(t, `["a","b"]`, FormatValue([]any{"a", "b"}))
}
