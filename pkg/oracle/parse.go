package oracle

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// removeCodeBlocks removes code fences (```json ... ```) from a response.
func removeCodeBlocks(response string) string {
	response = strings.ReplaceAll(response, "```json", "")
	response = strings.ReplaceAll(response, "```JSON", "")
	response = strings.ReplaceAll(response, "```", "")
	return strings.TrimSpace(response)
}

// extractJSON returns the outermost JSON object or array embedded in a
// model response, tolerating code fences and surrounding prose.
func extractJSON(response string) (string, bool) {
	response = removeCodeBlocks(response)

	start := strings.IndexAny(response, "{[")
	if start < 0 {
		return "", false
	}
	closing := "}"
	if response[start] == '[' {
		closing = "]"
	}
	end := strings.LastIndex(response, closing)
	if end <= start {
		return "", false
	}
	return response[start : end+1], true
}

// decodeLoose extracts and decodes the JSON payload of a response into v.
func decodeLoose(response string, v interface{}) error {
	payload, ok := extractJSON(response)
	if !ok {
		return fmt.Errorf("%w: no JSON found", ErrMalformed)
	}
	if err := json.Unmarshal([]byte(payload), v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

// objectList returns the list of objects in a response that is either a
// bare array or an object holding the array under one of keys.
func objectList(response string, keys ...string) ([]map[string]interface{}, error) {
	var raw interface{}
	if err := decodeLoose(response, &raw); err != nil {
		return nil, err
	}

	var items []interface{}
	switch v := raw.(type) {
	case []interface{}:
		items = v
	case map[string]interface{}:
		for _, key := range keys {
			if list, ok := v[key].([]interface{}); ok {
				items = list
				break
			}
		}
		if items == nil {
			// A single object is a list of one.
			items = []interface{}{v}
		}
	}

	out := make([]map[string]interface{}, 0, len(items))
	for _, item := range items {
		if obj, ok := item.(map[string]interface{}); ok {
			out = append(out, obj)
		}
	}
	return out, nil
}

// toFloat converts a loosely typed JSON number.
func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// firstString returns the first non-empty string field among keys.
func firstString(obj map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		if s, ok := obj[key].(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
		}
	}
	return ""
}

// firstFloat returns the first numeric field among keys.
func firstFloat(obj map[string]interface{}, keys ...string) (float64, bool) {
	for _, key := range keys {
		if f, ok := toFloat(obj[key]); ok {
			return f, true
		}
	}
	return 0, false
}

// stringList accepts a JSON array of strings or a single comma separated
// string.
func stringList(v interface{}) []string {
	var out []string
	switch list := v.(type) {
	case []interface{}:
		for _, item := range list {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
	case string:
		for _, part := range strings.Split(list, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
