// Package redact removes sensitive keys from report data before it is
// rendered or leaves the process.
//
// Redact is a pure function: the input is never modified, and the result
// shares no mutable maps or slices with it.
package redact

import (
	"reflect"
	"slices"
	"strings"
)

// DefaultUnsafeKeys are always removed, whatever the caller configures.
var DefaultUnsafeKeys = []string{
	"password",
	"password_confirmation",
	"new_password",
	"new_password_confirmation",
	"old_password",
	"email_address",
	"email",
	"authenticity_token",
	"utf8",
	"attributes!",
}

// Policy is the set of key names removed at every depth. Matching is exact
// and case-sensitive.
type Policy struct {
	keys map[string]struct{}
}

// NewPolicy returns DefaultUnsafeKeys plus extra. Blank entries in extra
// are ignored and duplicates collapse.
func NewPolicy(extra ...string) Policy {
	keys := make(map[string]struct{}, len(DefaultUnsafeKeys)+len(extra))
	for _, k := range DefaultUnsafeKeys {
		keys[k] = struct{}{}
	}
	for _, k := range extra {
		if strings.TrimSpace(k) == "" {
			continue
		}
		keys[k] = struct{}{}
	}
	return Policy{keys: keys}
}

// Unsafe reports whether key is removed by p.
func (p Policy) Unsafe(key string) bool {
	_, ok := p.keys[key]
	return ok
}

// Keys returns the unsafe keys in sorted order.
func (p Policy) Keys() []string {
	out := make([]string, 0, len(p.keys))
	for k := range p.keys {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// Redact returns a copy of m without unsafe keys and without blank values.
//
// Mappings are walked recursively, including mappings held inside slices.
// A pair whose key is unsafe is dropped whatever its value is. Blank
// values (nil, whitespace-only strings, empty maps and slices) are dropped
// after their children have been processed, so a map emptied by redaction
// disappears in the same pass. Any other value is kept as is; making it
// printable is the renderer's job.
func Redact(m map[string]any, p Policy) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return redactMap(m, p)
}

func redactMap(m map[string]any, p Policy) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if p.Unsafe(k) {
			continue
		}
		v = redactValue(v, p)
		if IsBlank(v) {
			continue
		}
		out[k] = v
	}
	return out
}

func redactValue(v any, p Policy) any {
	switch t := v.(type) {
	case nil:
		return nil
	case map[string]any:
		return redactMap(t, p)
	case map[string]string:
		conv := make(map[string]any, len(t))
		for k, s := range t {
			conv[k] = s
		}
		return redactMap(conv, p)
	case map[string][]string:
		conv := make(map[string]any, len(t))
		for k, s := range t {
			conv[k] = collapse(s)
		}
		return redactMap(conv, p)
	case []any:
		return redactSlice(t, p)
	case []map[string]any:
		out := make([]any, 0, len(t))
		for _, e := range t {
			if r := redactMap(e, p); len(r) > 0 {
				out = append(out, r)
			}
		}
		return out
	case []string:
		return slices.Clone(t)
	case string, bool, int, int64, float64:
		return t
	}
	return redactReflect(v, p)
}

func redactSlice(s []any, p Policy) []any {
	out := make([]any, 0, len(s))
	for _, e := range s {
		switch e.(type) {
		case map[string]any, map[string]string, map[string][]string, []any, []map[string]any:
			e = redactValue(e, p)
			if IsBlank(e) {
				continue
			}
		}
		out = append(out, e)
	}
	return out
}

// redactReflect handles string-keyed maps and slices of other element
// types, so a map[string]int or a []map[string]string is still walked.
func redactReflect(v any, p Policy) any {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return v
		}
		conv := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			conv[iter.Key().String()] = iter.Value().Interface()
		}
		return redactMap(conv, p)
	case reflect.Slice:
		if rv.Type().Elem().Kind() != reflect.Map {
			return v
		}
		conv := make([]any, rv.Len())
		for i := range rv.Len() {
			conv[i] = redactReflect(rv.Index(i).Interface(), p)
		}
		return redactSlice(conv, p)
	}
	return v
}

// collapse turns a single-valued form field into a plain string.
func collapse(values []string) any {
	if len(values) == 1 {
		return values[0]
	}
	out := make([]any, len(values))
	for i, s := range values {
		out[i] = s
	}
	return out
}

// IsBlank reports whether v carries no information worth rendering.
// false and 0 are not blank.
func IsBlank(v any) bool {
	if v == nil {
		return true
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t) == ""
	case map[string]any:
		return len(t) == 0
	case []any:
		return len(t) == 0
	case []string:
		return len(t) == 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
