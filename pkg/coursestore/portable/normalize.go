package portable

import "github.com/tendant/coursestore/pkg/coursestore"

// NormalizeFields canonicalizes a decoded field bag so values compare equal
// regardless of which codec produced them. All numbers become float64 (the
// JSON decoding form the document backends produce), map keys become strings,
// and nested containers are normalized recursively.
func NormalizeFields(fields map[string]any) coursestore.FieldMap {
	if fields == nil {
		return coursestore.FieldMap{}
	}
	out := make(coursestore.FieldMap, len(fields))
	for k, v := range fields {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case int:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case uint64:
		return float64(t)
	case float32:
		return float64(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalizeValue(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = normalizeValue(e)
		}
		return out
	case map[any]any:
		// Older YAML decoders produce interface-keyed maps.
		out := make(map[string]any, len(t))
		for k, e := range t {
			if ks, ok := k.(string); ok {
				out[ks] = normalizeValue(e)
			}
		}
		return out
	default:
		return v
	}
}
