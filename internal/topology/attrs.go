package topology

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Entry attributes are stored as JSON, which has a single number type.
// They are held in memory in the form they decode back to, so an entry
// reads the same before and after a restart:
//   - integral numbers that fit an int are int
//   - every other number is float64
//   - maps are map[string]any and lists are []any

// normaliseAttrs returns a normalised deep copy of attrs.
func normaliseAttrs(attrs map[string]any) Attributes {
	out := make(Attributes, len(attrs))
	for k, v := range attrs {
		out[k] = normaliseValue(v)
	}
	return out
}

func normaliseValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return map[string]any(normaliseAttrs(val))
	case []any:
		cpy := make([]any, len(val))
		for i, elem := range val {
			cpy[i] = normaliseValue(elem)
		}
		return cpy
	case int64:
		if val >= math.MinInt && val <= math.MaxInt {
			return int(val)
		}
		return float64(val)
	case uint64:
		if val <= math.MaxInt {
			return int(val)
		}
		return float64(val)
	case float64:
		if val == math.Trunc(val) && val >= float64(math.MinInt) && val < -float64(math.MinInt) {
			return int(val)
		}
		return val
	default:
		return v
	}
}

// decodeAttrs decodes the JSON form of entry attributes.
func decodeAttrs(data []byte) (Attributes, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	out := make(Attributes, len(raw))
	for k, v := range raw {
		decoded, err := fromJSON(v)
		if err != nil {
			return nil, fmt.Errorf("attr %q: %w", k, err)
		}
		out[k] = decoded
	}
	return out, nil
}

func fromJSON(v any) (any, error) {
	switch val := v.(type) {
	case json.Number:
		if i, err := strconv.Atoi(val.String()); err == nil {
			return i, nil
		}
		return val.Float64()
	case map[string]any:
		for k, elem := range val {
			decoded, err := fromJSON(elem)
			if err != nil {
				return nil, err
			}
			val[k] = decoded
		}
		return val, nil
	case []any:
		for i, elem := range val {
			decoded, err := fromJSON(elem)
			if err != nil {
				return nil, err
			}
			val[i] = decoded
		}
		return val, nil
	default:
		return v, nil
	}
}
