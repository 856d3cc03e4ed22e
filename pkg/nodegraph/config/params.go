package config

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// Params holds the parameters of one node in a graph definition, such as
// the factor of math.scale or the separator of text.format.
//
// Lookups never fail: each getter returns its default when the key is
// missing or holds a value of the wrong shape. Use Require to reject a
// definition that omits mandatory parameters.
type Params struct {
	data map[string]any
}

// NewParams wraps a decoded parameter map. A nil map yields empty Params.
func NewParams(data map[string]any) Params {
	if data == nil {
		data = make(map[string]any)
	}
	return Params{data: data}
}

// String returns the string parameter for key.
func (p Params) String(key, def string) string {
	if s, ok := p.data[key].(string); ok {
		return s
	}
	return def
}

// Bool returns the boolean parameter for key.
func (p Params) Bool(key string, def bool) bool {
	if b, ok := p.data[key].(bool); ok {
		return b
	}
	return def
}

// Int returns the integer parameter for key. Whole floats (as produced by
// encoding/json) are accepted; fractional ones yield def.
func (p Params) Int(key string, def int64) int64 {
	if i, ok := toInt(p.data[key]); ok {
		return i
	}
	return def
}

// Float returns the float parameter for key. Integers are widened.
func (p Params) Float(key string, def float64) float64 {
	switch v := p.data[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return def
}

// Duration returns the duration parameter for key.
//
// Strings are parsed with time.ParseDuration ("250ms", "1h30m"); bare
// numbers are seconds.
func (p Params) Duration(key string, def time.Duration) time.Duration {
	switch v := p.data[key].(type) {
	case string:
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	case time.Duration:
		return v
	case float64:
		return time.Duration(v * float64(time.Second))
	case int:
		return time.Duration(v) * time.Second
	case int64:
		return time.Duration(v) * time.Second
	}
	return def
}

// Strings returns a list-of-strings parameter. A list containing any
// non-string element yields def.
func (p Params) Strings(key string, def []string) []string {
	switch v := p.data[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return def
			}
			out = append(out, s)
		}
		return out
	}
	return def
}

// Any returns the raw parameter for key.
func (p Params) Any(key string, def any) any {
	if v, ok := p.data[key]; ok {
		return v
	}
	return def
}

// Has reports whether key is present.
func (p Params) Has(key string) bool {
	_, ok := p.data[key]
	return ok
}

// Keys returns the parameter names, sorted.
func (p Params) Keys() []string {
	keys := make([]string, 0, len(p.data))
	for k := range p.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Require fails when any of the given keys is missing.
func (p Params) Require(keys ...string) error {
	var missing []string
	for _, k := range keys {
		if !p.Has(k) {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing parameter(s): %s", strings.Join(missing, ", "))
	}
	return nil
}

// Raw returns the underlying map. It must not be modified.
func (p Params) Raw() map[string]any {
	return p.data
}

func toInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case uint64:
		if n <= math.MaxInt64 {
			return int64(n), true
		}
	case float64:
		if n == math.Trunc(n) && math.Abs(n) < 1<<53 {
			return int64(n), true
		}
	}
	return 0, false
}
