package mindmoney

import (
	"encoding/json"
	"regexp"
	"strings"
)

var fencePattern = regexp.MustCompile("```(?:json|JSON)?")

// ParseJSON extracts a JSON object from model output. Markdown code fences
// and text around the outermost braces are ignored. Malformed or non-object
// input yields an empty map, never nil.
func ParseJSON(text string) map[string]any {
	cleaned := strings.TrimSpace(fencePattern.ReplaceAllString(text, ""))
	if start, end := strings.Index(cleaned, "{"), strings.LastIndex(cleaned, "}"); start >= 0 && end > start {
		cleaned = cleaned[start : end+1]
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(cleaned), &out); err != nil || out == nil {
		return map[string]any{}
	}
	return out
}

// decodeInto re-encodes a parsed object into a typed value.
func decodeInto(data map[string]any, v any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

// intValue reads a numeric field that a model may have emitted as a number
// or a numeric string.
func intValue(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	case string:
		var f float64
		if err := json.Unmarshal([]byte(strings.TrimSpace(n)), &f); err == nil {
			return int(f), true
		}
	}
	return 0, false
}

// nested returns data[key] as an object, or nil.
func nested(data map[string]any, key string) map[string]any {
	m, _ := data[key].(map[string]any)
	return m
}
