package report

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"math"
	"reflect"
	"slices"
	"strings"
	"time"
)

// Plain returns a detached copy of m holding only JSON data: strings,
// numbers, bools, time.Time, nil, map[string]any and []any, plus the
// string-only containers []string, map[string]string and map[string][]string
// (form values and headers keep their shape). Readers are
// read, errors and Stringers are stringified, containers are copied, and
// anything else that does not survive encoding becomes UnsupportedValue.
// The result shares nothing with the caller's values.
func Plain(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = plainValue(v)
	}
	return out
}

func plainValue(v any) (out any) {
	defer func() {
		if r := recover(); r != nil {
			out = UnsupportedValue
		}
	}()

	switch t := v.(type) {
	case nil, string, bool, time.Time,
		int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return t
	case float32:
		return plainFloat(float64(t), t)
	case float64:
		return plainFloat(t, t)
	case []byte:
		return string(t)
	case time.Duration:
		return t.String()
	case error:
		return t.Error()
	case io.ReadSeeker:
		s, ok := readRaw(t)
		if !ok {
			return UnsupportedValue
		}
		return s
	case fmt.Stringer:
		return t.String()
	case map[string]any:
		return Plain(t)
	case []string:
		return slices.Clone(t)
	case map[string]string:
		return maps.Clone(t)
	case map[string][]string:
		cp := make(map[string][]string, len(t))
		for k, vs := range t {
			cp[k] = slices.Clone(vs)
		}
		return cp
	case []any:
		cp := make([]any, len(t))
		for i, e := range t {
			cp[i] = plainValue(e)
		}
		return cp
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Func, reflect.Chan, reflect.UnsafePointer, reflect.Complex64, reflect.Complex128:
		return UnsupportedValue
	case reflect.Bool:
		return rv.Bool()
	case reflect.String:
		return rv.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint()
	case reflect.Float32, reflect.Float64:
		return plainFloat(rv.Float(), rv.Float())
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return plainValue(rv.Elem().Interface())
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return viaJSON(v)
		}
		if rv.IsNil() {
			return nil
		}
		m := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[iter.Key().String()] = plainValue(iter.Value().Interface())
		}
		return m
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return nil
		}
		s := make([]any, rv.Len())
		for i := range s {
			s[i] = plainValue(rv.Index(i).Interface())
		}
		return s
	}
	return viaJSON(v)
}

// plainFloat keeps finite floats; NaN and the infinities have no JSON form.
func plainFloat(f float64, orig any) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Sprint(orig)
	}
	return orig
}

// viaJSON copies structs and other composite values through encoding/json.
func viaJSON(v any) any {
	b, err := json.Marshal(v)
	if err != nil {
		return UnsupportedValue
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return UnsupportedValue
	}
	return out
}

// readRaw rewinds r, reads up to maxBodyBytes and rewinds it again.
func readRaw(r io.ReadSeeker) (string, bool) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return "", false
	}
	b, err := io.ReadAll(io.LimitReader(r, maxBodyBytes))
	_, _ = r.Seek(0, io.SeekStart)
	if err != nil {
		return "", false
	}
	return strings.ToValidUTF8(string(b), "�"), true
}
