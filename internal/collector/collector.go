// Package collector turns an error and the request it happened on into a
// types.ExceptionContext.
//
// Collection never fails. Every section is produced by its own extractor
// and an extractor that panics contributes nothing; the rest of the context
// is still returned.
package collector

import (
	"fmt"
	"maps"
	"net/http"
	"os"
	"path/filepath"
	"runtime"

	"tasknotifier/internal/types"
)

// Options carries what the caller knows about the failure besides the
// error itself.
type Options struct {
	// Request is the in-flight request, if the error happened while
	// serving one.
	Request *http.Request

	// Data is merged into the report's data section, over any data
	// attached to the request context with WithData.
	Data map[string]any

	// Overrides replace whole top-level report sections by name.
	Overrides map[string]any
}

// Collector gathers exception contexts.
type Collector struct {
	clock    types.Clock
	hostname func() (string, error)
	pid      int
	logger   types.Logger
}

// Option configures a Collector.
type Option func(*Collector)

// WithClock overrides the time source.
func WithClock(c types.Clock) Option {
	return func(col *Collector) { col.clock = c }
}

// WithHostname overrides hostname lookup.
func WithHostname(fn func() (string, error)) Option {
	return func(col *Collector) { col.hostname = fn }
}

// New creates a Collector. A nil logger discards extractor warnings.
func New(logger types.Logger, opts ...Option) *Collector {
	if logger == nil {
		logger = types.NopLogger{}
	}
	c := &Collector{
		clock:    types.RealClock{},
		hostname: os.Hostname,
		pid:      os.Getpid(),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Collect builds the context for err. err may be nil.
func (c *Collector) Collect(err error, opts Options) *types.ExceptionContext {
	ec := &types.ExceptionContext{
		ProcessID: c.pid,
		Timestamp: c.clock.Now(),
	}

	c.guard("exception", func() {
		ec.ErrorClass = errorClass(err)
		ec.Message = errorMessage(err)
	})
	c.guard("backtrace", func() { ec.Backtrace = backtraceOf(err) })
	c.guard("cause", func() { ec.Cause = causeOf(err) })
	c.guard("fields", func() { ec.Fields = fieldsOf(err) })
	c.guard("server", func() {
		host, herr := c.hostname()
		if herr != nil {
			panic(herr)
		}
		ec.Server = host
	})
	c.guard("system", func() { ec.System = systemInfo() })

	var ctxData map[string]any
	if r := opts.Request; r != nil {
		c.guard("request", func() {
			ec.Request = &types.RequestSnapshot{
				URL:        requestURL(r),
				HTTPMethod: r.Method,
				RemoteIP:   clientIP(r),
				UserAgent:  r.UserAgent(),
				Referrer:   r.Referer(),
			}
		})
		c.guard("parameters", func() { ec.Parameters = parameters(r) })
		c.guard("cookies", func() { ec.Cookies = cookies(r) })
		c.guard("headers", func() { ec.Headers = headers(r) })
		c.guard("session", func() { ec.Session = maps.Clone(sessionFromContext(r.Context())) })
		c.guard("data", func() { ctxData = dataFromContext(r.Context()) })
	}

	extra := make(map[string]any, len(ctxData)+len(opts.Data))
	maps.Copy(extra, ctxData)
	maps.Copy(extra, opts.Data)
	ec.Extra = extra
	ec.Overrides = maps.Clone(opts.Overrides)

	return ec
}

// guard runs one extractor, converting a panic into a warning.
func (c *Collector) guard(section string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("context extractor failed",
				"section", section,
				"error", fmt.Sprint(r),
				"code", string(types.ErrCodeCollectExtractor),
			)
		}
	}()
	fn()
}

func systemInfo() map[string]any {
	info := map[string]any{
		"go_version":    runtime.Version(),
		"os":            runtime.GOOS,
		"arch":          runtime.GOARCH,
		"num_goroutine": runtime.NumGoroutine(),
		"num_cpu":       runtime.NumCPU(),
	}
	if exe, err := os.Executable(); err == nil {
		info["executable"] = filepath.Base(exe)
	}
	if wd, err := os.Getwd(); err == nil {
		info["working_dir"] = wd
	}
	return info
}
