package index

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrInvalidValue = errors.New("invalid field value")
)

// Values flattens a row field into its individual values. Slices contribute
// one value per element; nil contributes nothing.
func Values(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		out := make([]any, 0, len(t))
		for _, item := range t {
			if item != nil {
				out = append(out, item)
			}
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	case []float64:
		out := make([]any, len(t))
		for i, f := range t {
			out[i] = f
		}
		return out
	default:
		return []any{v}
	}
}

// Numeric converts a single value to float64. Numeric strings are accepted so
// values decoded from query text and from JSON compare alike.
func Numeric(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint32:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not numeric", ErrInvalidValue, n)
		}
		return f, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not numeric", ErrInvalidValue, n)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("%w: %T is not numeric", ErrInvalidValue, v)
	}
}

// NumericValues is Numeric over every element of a field.
func NumericValues(v any) ([]float64, error) {
	vals := Values(v)
	out := make([]float64, 0, len(vals))
	for _, item := range vals {
		f, err := Numeric(item)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

// Text renders a scalar as the string analyzers and keyword fields see.
func Text(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(v)
	}
}

// TextValues is Text over every element of a field.
func TextValues(v any) []string {
	vals := Values(v)
	out := make([]string, len(vals))
	for i, item := range vals {
		out[i] = Text(item)
	}
	return out
}
