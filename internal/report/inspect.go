package report

import (
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"strconv"
	"time"
)

// UnsupportedValue replaces any value that cannot be stringified.
const UnsupportedValue = "[unsupported value]"

// maxBodyBytes caps how much of a reader-valued field is rendered.
const maxBodyBytes = 64 << 10

// Inspect renders v for display. Strings are quoted, readers are rewound
// and read, containers become JSON. It never panics: a value whose
// String/Error/MarshalJSON panics or fails renders as UnsupportedValue.
// The placeholder itself is rendered unquoted so a value replaced by Plain
// reads the same as one replaced here.
func Inspect(v any) (out string) {
	defer func() {
		if r := recover(); r != nil {
			out = UnsupportedValue
		}
	}()

	switch t := v.(type) {
	case nil:
		return "nil"
	case string:
		if t == UnsupportedValue {
			return t
		}
		return strconv.Quote(t)
	case []byte:
		return strconv.Quote(string(t))
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return fmt.Sprint(t)
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case time.Duration:
		return t.String()
	case error:
		return strconv.Quote(t.Error())
	case io.ReadSeeker:
		return readBody(t)
	case fmt.Stringer:
		return strconv.Quote(t.String())
	}

	switch reflect.ValueOf(v).Kind() {
	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return UnsupportedValue
	}

	b, err := json.Marshal(v)
	if err != nil {
		return UnsupportedValue
	}
	return string(b)
}

// readBody renders a reader's content as a quoted string.
func readBody(r io.ReadSeeker) string {
	s, ok := readRaw(r)
	if !ok {
		return UnsupportedValue
	}
	return strconv.Quote(s)
}
