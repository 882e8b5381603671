package util

import (
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// placeholderPattern matches {key} and {key?}. Braces around anything that is
// not an identifier (e.g. JSON examples inside an instruction) are left alone.
var placeholderPattern = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_.:-]*)(\?)?\}`)

// Placeholder is a state key referenced by an instruction template.
type Placeholder struct {
	Key      string
	Optional bool
}

// Placeholders returns the distinct keys referenced by text in order of first
// appearance. A key referenced both ways counts as required.
func Placeholders(text string) []Placeholder {
	var out []Placeholder
	for _, m := range placeholderPattern.FindAllStringSubmatch(text, -1) {
		key, optional := m[1], m[2] == "?"

		i := slices.IndexFunc(out, func(p Placeholder) bool { return p.Key == key })
		if i >= 0 {
			out[i].Optional = out[i].Optional && optional
			continue
		}

		out = append(out, Placeholder{Key: key, Optional: optional})
	}
	return out
}

// MissingKeys returns the required placeholders of text that lookup cannot
// resolve.
func MissingKeys(text string, lookup func(key string) (any, bool)) []string {
	var missing []string
	for _, p := range Placeholders(text) {
		if p.Optional {
			continue
		}
		if _, ok := lookup(p.Key); !ok {
			missing = append(missing, p.Key)
		}
	}
	return missing
}

// RenderTemplate substitutes every placeholder of text with the value lookup
// returns for it. Optional placeholders without a value render as the empty
// string; missing required keys are reported together and nothing is rendered.
func RenderTemplate(text string, lookup func(key string) (any, bool)) (string, []string) {
	if !strings.Contains(text, "{") { // fast path: no placeholders
		return text, nil
	}

	if missing := MissingKeys(text, lookup); len(missing) > 0 {
		return "", missing
	}

	return placeholderPattern.ReplaceAllStringFunc(text, func(m string) string {
		sub := placeholderPattern.FindStringSubmatch(m)

		v, ok := lookup(sub[1])
		if !ok {
			return ""
		}

		return FormatValue(v)
	}), nil
}

// FormatValue renders a state value as prompt text. Strings pass through,
// structured values are encoded as JSON.
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case fmt.Stringer:
		return t.String()
	case map[string]any, []any:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	default:
		return fmt.Sprint(t)
	}
}
