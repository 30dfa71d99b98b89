package schema

import (
	"fmt"
	"time"
)

// Values is an insertion-ordered column -> value map produced by coercion.
// Values are nil, int (0/1 for booleans), time.Time or string.
type Values struct {
	keys []string
	vals map[string]any
}

// NewValues creates an empty value map
func NewValues() *Values {
	return &Values{vals: make(map[string]any)}
}

// Set stores a value, keeping the position of an existing key
func (v *Values) Set(key string, val any) {
	if _, ok := v.vals[key]; !ok {
		v.keys = append(v.keys, key)
	}
	v.vals[key] = val
}

// Get returns the value for key
func (v *Values) Get(key string) (any, bool) {
	val, ok := v.vals[key]
	return val, ok
}

// Has reports whether key is present
func (v *Values) Has(key string) bool {
	_, ok := v.vals[key]
	return ok
}

// Keys returns keys in insertion order
func (v *Values) Keys() []string {
	out := make([]string, len(v.keys))
	copy(out, v.keys)
	return out
}

// Len returns the number of keys
func (v *Values) Len() int {
	return len(v.keys)
}

// Args returns values in key order, ready to bind as statement parameters
func (v *Values) Args() []any {
	out := make([]any, len(v.keys))
	for i, k := range v.keys {
		out[i] = v.vals[k]
	}
	return out
}

// Strings renders every value as text for document substitution; nil becomes "".
func (v *Values) Strings() map[string]string {
	out := make(map[string]string, len(v.keys))
	for _, k := range v.keys {
		out[k] = FormatValue(v.vals[k])
	}
	return out
}

// FormatValue renders a database or coerced value as display text
func FormatValue(val any) string {
	switch x := val.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case bool:
		if x {
			return "1"
		}
		return "0"
	case time.Time:
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 && x.Nanosecond() == 0 {
			return x.Format(DateLayout)
		}
		return x.Format("2006-01-02 15:04:05")
	default:
		return fmt.Sprint(x)
	}
}
