package collector

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// Optional capabilities an error may expose. None is required; a plain
// errors.New value produces a context with an empty backtrace.
type (
	backtracer interface{ Backtrace() []string }
	callerser  interface{ Callers() []uintptr }
	classNamer interface{ ErrorClass() string }
	fielder    interface{ Fields() map[string]any }
)

// maxFrames bounds captured stacks.
const maxFrames = 64

// PanicError carries a recovered panic value and the stack at the point of
// recovery.
type PanicError struct {
	Value any
	stack []string
}

// NewPanicError wraps v. skip is the number of additional frames to drop
// above the caller (0 keeps the caller's own frame).
func NewPanicError(v any, skip int) *PanicError {
	return &PanicError{Value: v, stack: CaptureBacktrace(skip + 1)}
}

func (e *PanicError) Error() string {
	if err, ok := e.Value.(error); ok {
		return err.Error()
	}
	return fmt.Sprint(e.Value)
}

// Unwrap exposes the panic value when it is itself an error.
func (e *PanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}

// Backtrace returns the recovered stack.
func (e *PanicError) Backtrace() []string { return e.stack }

// ErrorClass names the panic value's type, prefixed so reports distinguish
// panics from returned errors.
func (e *PanicError) ErrorClass() string {
	return "panic(" + typeName(e.Value) + ")"
}

// tracedError attaches a stack to an error that has none.
type tracedError struct {
	err   error
	stack []string
}

// WithStack returns err annotated with the caller's stack. Errors that
// already carry a backtrace are returned unchanged.
func WithStack(err error) error {
	if err == nil {
		return nil
	}
	var bt backtracer
	if errors.As(err, &bt) {
		return err
	}
	return &tracedError{err: err, stack: CaptureBacktrace(1)}
}

func (e *tracedError) Error() string       { return e.err.Error() }
func (e *tracedError) Unwrap() error       { return e.err }
func (e *tracedError) Backtrace() []string { return e.stack }
func (e *tracedError) ErrorClass() string  { return errorClass(e.err) }

// CaptureBacktrace formats the current goroutine's stack as
// "file:line function" lines. skip=0 starts at the caller.
func CaptureBacktrace(skip int) []string {
	pcs := make([]uintptr, maxFrames)
	n := runtime.Callers(skip+2, pcs)
	return formatFrames(pcs[:n])
}

func formatFrames(pcs []uintptr) []string {
	if len(pcs) == 0 {
		return nil
	}
	frames := runtime.CallersFrames(pcs)
	out := make([]string, 0, len(pcs))
	for {
		f, more := frames.Next()
		if f.Function != "" || f.File != "" {
			out = append(out, fmt.Sprintf("%s:%d %s", f.File, f.Line, f.Function))
		}
		if !more {
			break
		}
	}
	return out
}

// errorClass reports the most specific class name available.
func errorClass(err error) string {
	if err == nil {
		return "<nil>"
	}
	if cn, ok := err.(classNamer); ok {
		if name := cn.ErrorClass(); name != "" {
			return name
		}
	}
	return typeName(err)
}

func typeName(v any) string {
	if v == nil {
		return "<nil>"
	}
	return strings.TrimLeft(fmt.Sprintf("%T", v), "*")
}

// errorMessage guards Error(); a nil pointer receiver can panic.
func errorMessage(err error) (msg string) {
	if err == nil {
		return ""
	}
	defer func() {
		if r := recover(); r != nil {
			msg = fmt.Sprintf("<Error() panicked: %v>", r)
		}
	}()
	return err.Error()
}

// backtraceOf returns the first backtrace found along err's chain.
func backtraceOf(err error) []string {
	if err == nil {
		return nil
	}
	var bt backtracer
	if errors.As(err, &bt) {
		return append([]string(nil), bt.Backtrace()...)
	}
	var cs callerser
	if errors.As(err, &cs) {
		return formatFrames(cs.Callers())
	}
	return nil
}

// causeOf describes what err wraps, if anything. Joined errors are listed
// one per line.
func causeOf(err error) *string {
	err = peel(err)
	if err == nil {
		return nil
	}
	var parts []string
	switch u := err.(type) {
	case interface{ Unwrap() []error }:
		for _, e := range u.Unwrap() {
			if e != nil {
				parts = append(parts, errorMessage(e))
			}
		}
	case interface{ Unwrap() error }:
		if inner := u.Unwrap(); inner != nil {
			parts = append(parts, errorMessage(inner))
		}
	}
	if len(parts) == 0 {
		return nil
	}
	s := strings.Join(parts, "\n")
	return &s
}

// peel strips wrappers added by this package, which carry a stack but no
// cause of their own.
func peel(err error) error {
	for {
		switch w := err.(type) {
		case *tracedError:
			err = w.err
			continue
		case *PanicError:
			if inner, ok := w.Value.(error); ok {
				err = inner
				continue
			}
		}
		return err
	}
}

// fieldsOf merges Fields() from every error in the chain, outermost first
// wins.
func fieldsOf(err error) map[string]any {
	out := map[string]any{}
	for e := err; e != nil; e = errors.Unwrap(e) {
		if f, ok := e.(fielder); ok {
			for k, v := range f.Fields() {
				if _, taken := out[k]; !taken {
					out[k] = v
				}
			}
		}
	}
	return out
}
