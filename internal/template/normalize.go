package template

import "encoding/json"

// Normalize unwraps the common envelope shapes produced by external
// services before a value lands in memory:
//
//   - {"value": v}        -> Normalize(v)
//   - {"anyKey": v}       -> Normalize(v) when it is the only key
//   - [v]                 -> Normalize(v)
//
// Primitives pass through. Anything still composite after unwrapping is
// stringified as compact JSON.
func Normalize(v any) any {
	return normalize(v, 0)
}

// normalize bounds unwrapping depth to keep pathological self-nested
// payloads from recursing forever.
func normalize(v any, depth int) any {
	if depth > 16 {
		return stringifyComposite(v)
	}
	switch val := v.(type) {
	case map[string]any:
		if inner, ok := val["value"]; ok {
			return normalize(inner, depth+1)
		}
		if len(val) == 1 {
			for _, inner := range val {
				return normalize(inner, depth+1)
			}
		}
		return stringifyComposite(val)
	case []any:
		if len(val) == 1 {
			return normalize(val[0], depth+1)
		}
		if len(val) == 0 {
			return nil
		}
		return stringifyComposite(val)
	default:
		return v
	}
}

func stringifyComposite(v any) any {
	switch v.(type) {
	case map[string]any, []any:
		data, err := json.Marshal(v)
		if err != nil {
			return v
		}
		return string(data)
	default:
		return v
	}
}
