// Package params implements the host's key/value parameter lists.
//
// A List is what a voice definition (or a request override) hands to the
// synthesis layer: keys such as "-md" or "-labelstring" mapped to scalar or
// list values. Lookups never fail; each getter takes the default to use when
// the key is absent or its value cannot be coerced.
package params

import (
	"log/slog"
	"maps"
	"sort"

	"github.com/spf13/cast"
)

// List is an unordered set of named parameters.
type List map[string]any

// Has reports whether key is present with a non-nil value.
func (l List) Has(key string) bool {
	v, ok := l[key]
	return ok && v != nil
}

// String returns the value of key as a string, or def when absent.
func (l List) String(key, def string) string {
	if !l.Has(key) {
		return def
	}
	s, err := cast.ToStringE(l[key])
	if err != nil {
		slog.Warn("parameter is not a string, using default", "key", key, "default", def)
		return def
	}
	return s
}

// Float returns the value of key as a float64, or def when absent.
// Numeric strings are accepted.
func (l List) Float(key string, def float64) float64 {
	if !l.Has(key) {
		return def
	}
	f, err := cast.ToFloat64E(l[key])
	if err != nil {
		slog.Warn("parameter is not a number, using default", "key", key, "default", def)
		return def
	}
	return f
}

// Bool returns the value of key as a bool, or def when absent.
func (l List) Bool(key string, def bool) bool {
	if !l.Has(key) {
		return def
	}
	b, err := cast.ToBoolE(l[key])
	if err != nil {
		slog.Warn("parameter is not a boolean, using default", "key", key, "default", def)
		return def
	}
	return b
}

// Strings returns the value of key as a list of strings. The second result is
// false when the key is absent. A scalar value is returned as a one-element list.
func (l List) Strings(key string) ([]string, bool) {
	if !l.Has(key) {
		return nil, false
	}
	switch v := l[key].(type) {
	case string:
		return []string{v}, true
	case []string:
		return v, true
	}
	ss, err := cast.ToStringSliceE(l[key])
	if err != nil {
		slog.Warn("parameter is not a string list", "key", key)
		return nil, false
	}
	return ss, true
}

// Merge returns a new List holding l overlaid with each override in order.
// Nil overrides are skipped.
func (l List) Merge(overrides ...List) List {
	out := make(List, len(l))
	maps.Copy(out, l)
	for _, o := range overrides {
		maps.Copy(out, o)
	}
	return out
}

// Keys returns the parameter names in sorted order.
func (l List) Keys() []string {
	keys := make([]string, 0, len(l))
	for k := range l {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
