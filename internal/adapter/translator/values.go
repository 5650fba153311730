package translator

import (
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/thushan/flowgate/internal/core/domain"
)

func parseVector(v gjson.Result) ([]float64, error) {
	if !v.IsArray() {
		return nil, fmt.Errorf("%w: embedding must be an array of numbers", domain.ErrMalformedPayload)
	}
	items := v.Array()
	vec := make([]float64, 0, len(items))
	for _, n := range items {
		if n.Type != gjson.Number {
			return nil, fmt.Errorf("%w: embedding holds a non numeric value %s", domain.ErrMalformedPayload, n.Raw)
		}
		vec = append(vec, n.Float())
	}
	return vec, nil
}

// parseStringOrList reads a field that is either "text" or ["a", "b"].
func parseStringOrList(v gjson.Result) (domain.OneOrMany[string], error) {
	switch {
	case !v.Exists():
		return domain.OneOrMany[string]{}, fmt.Errorf("%w: input is required", domain.ErrMalformedPayload)
	case v.Type == gjson.String:
		return domain.Single(v.Str), nil
	case v.IsArray():
		items := v.Array()
		out := make([]string, 0, len(items))
		for _, s := range items {
			if s.Type != gjson.String {
				return domain.OneOrMany[string]{}, fmt.Errorf("%w: input list must hold strings", domain.ErrMalformedPayload)
			}
			out = append(out, s.Str)
		}
		return domain.Many(out), nil
	default:
		return domain.OneOrMany[string]{}, fmt.Errorf("%w: input must be a string or a list of strings", domain.ErrMalformedPayload)
	}
}

func stopList(v gjson.Result) []string {
	switch {
	case v.Type == gjson.String:
		return []string{v.Str}
	case v.IsArray():
		var out []string
		for _, s := range v.Array() {
			out = append(out, s.String())
		}
		return out
	default:
		return nil
	}
}

// lossyField returns the first path holding a value the other dialect has
// no field for. Requests carrying one are refused instead of being sent on
// without it; fields that only tune the server, like keep_alive, are not
// listed by callers and are dropped.
func lossyField(d gjson.Result, paths ...string) string {
	for _, p := range paths {
		if hasValue(d.Get(p)) {
			return p
		}
	}
	return ""
}

func hasValue(v gjson.Result) bool {
	switch {
	case !v.Exists(), v.Type == gjson.Null:
		return false
	case v.IsArray():
		return len(v.Array()) > 0
	case v.IsObject():
		return len(v.Map()) > 0
	case v.Type == gjson.String:
		return v.Str != ""
	}
	return true
}

func untranslatable(field string) error {
	return fmt.Errorf("%w: %s cannot be carried across dialects", domain.ErrUnsupportedOperation, field)
}
