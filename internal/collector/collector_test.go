package collector

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tasknotifier/internal/types"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

// recordingLogger captures warn lines for assertions.
type recordingLogger struct {
	mu    sync.Mutex
	warns []string
}

func (l *recordingLogger) Info(string, ...any)  {}
func (l *recordingLogger) Error(string, ...any) {}
func (l *recordingLogger) Warn(msg string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, fmt.Sprint(append([]any{msg}, args...)...))
}
func (l *recordingLogger) With(...any) types.Logger { return l }

var testNow = time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)

func newTestCollector(logger types.Logger) *Collector {
	return New(logger,
		WithClock(fixedClock{testNow}),
		WithHostname(func() (string, error) { return "web-1", nil }),
	)
}

type fieldsError struct{ order string }

func (e *fieldsError) Error() string { return "payment declined" }
func (e *fieldsError) Fields() map[string]any {
	return map[string]any{"order_id": e.order}
}

type panickyFields struct{}

func (panickyFields) Error() string          { return "bad fields" }
func (panickyFields) Fields() map[string]any { panic("fields exploded") }

type classy struct{}

func (classy) Error() string      { return "x" }
func (classy) ErrorClass() string { return "BillingError" }

func TestCollectPlainErrorWithoutRequest(t *testing.T) {
	ec := newTestCollector(nil).Collect(errors.New("boom"), Options{})

	assert.Equal(t, "errors.errorString", ec.ErrorClass)
	assert.Equal(t, "boom", ec.Message)
	assert.Empty(t, ec.Backtrace)
	assert.Nil(t, ec.Cause)
	assert.Nil(t, ec.Request)
	assert.Empty(t, ec.Parameters)
	assert.Equal(t, "web-1", ec.Server)
	assert.Equal(t, testNow, ec.Timestamp)
	assert.NotZero(t, ec.ProcessID)
	assert.Contains(t, ec.System, "go_version")
}

func TestCollectNilError(t *testing.T) {
	ec := newTestCollector(nil).Collect(nil, Options{})

	assert.Equal(t, "<nil>", ec.ErrorClass)
	assert.Empty(t, ec.Message)
	assert.Empty(t, ec.Backtrace)
}

func TestCollectCauseAndClass(t *testing.T) {
	inner := errors.New("connection refused")
	ec := newTestCollector(nil).Collect(fmt.Errorf("charge card: %w", inner), Options{})

	assert.Equal(t, "fmt.wrapError", ec.ErrorClass)
	require.NotNil(t, ec.Cause)
	assert.Equal(t, "connection refused", *ec.Cause)

	joined := errors.Join(errors.New("a"), errors.New("b"))
	ec = newTestCollector(nil).Collect(joined, Options{})
	require.NotNil(t, ec.Cause)
	assert.Equal(t, "a\nb", *ec.Cause)

	ec = newTestCollector(nil).Collect(classy{}, Options{})
	assert.Equal(t, "BillingError", ec.ErrorClass)
}

func TestCollectFieldsFromChain(t *testing.T) {
	err := fmt.Errorf("checkout: %w", &fieldsError{order: "ord_9"})
	ec := newTestCollector(nil).Collect(err, Options{})

	assert.Equal(t, "ord_9", ec.Fields["order_id"])
}

func TestCollectWithStack(t *testing.T) {
	err := WithStack(errors.New("boom"))
	ec := newTestCollector(nil).Collect(err, Options{})

	require.NotEmpty(t, ec.Backtrace)
	assert.Contains(t, ec.Backtrace[0], "TestCollectWithStack")
	assert.Equal(t, "errors.errorString", ec.ErrorClass)
	assert.Nil(t, ec.Cause, "the stack wrapper is not a cause")
	assert.Same(t, err, WithStack(err), "already traced errors are not wrapped twice")
}

func TestCollectPanicError(t *testing.T) {
	var pe *PanicError
	func() {
		defer func() { pe = NewPanicError(recover(), 0) }()
		panic("index out of range")
	}()

	ec := newTestCollector(nil).Collect(pe, Options{})
	assert.Equal(t, "panic(string)", ec.ErrorClass)
	assert.Equal(t, "index out of range", ec.Message)
	assert.NotEmpty(t, ec.Backtrace)
	assert.Nil(t, ec.Cause)

	wrapped := NewPanicError(fmt.Errorf("outer: %w", errors.New("inner")), 0)
	ec = newTestCollector(nil).Collect(wrapped, Options{})
	require.NotNil(t, ec.Cause)
	assert.Equal(t, "inner", *ec.Cause)
}

func TestCollectExtractorFailureDegrades(t *testing.T) {
	logger := &recordingLogger{}
	col := New(logger,
		WithClock(fixedClock{testNow}),
		WithHostname(func() (string, error) { return "", errors.New("no hostname") }),
	)

	ec := col.Collect(panickyFields{}, Options{})

	assert.Equal(t, "bad fields", ec.Message)
	assert.Empty(t, ec.Fields)
	assert.Empty(t, ec.Server)
	require.Len(t, logger.warns, 2)
	assert.Contains(t, strings.Join(logger.warns, "\n"), "fields exploded")
}

func TestCollectRequest(t *testing.T) {
	var ec *types.ExceptionContext
	col := newTestCollector(nil)

	r := chi.NewRouter()
	r.Post("/orders/{orderID}", func(w http.ResponseWriter, req *http.Request) {
		require.NoError(t, req.ParseForm())
		req = req.WithContext(WithSession(req.Context(), map[string]any{"user_id": 7}))
		req = req.WithContext(WithData(req.Context(), map[string]any{"tenant": "acme", "note": "from-ctx"}))
		ec = col.Collect(errors.New("boom"), Options{
			Request:   req,
			Data:      map[string]any{"note": "ok"},
			Overrides: map[string]any{"custom": "x"},
		})
	})

	req := httptest.NewRequest(http.MethodPost, "http://shop.test/orders/42?debug=1&tag=a&tag=b",
		strings.NewReader("qty=3&password=hunter2"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", "curl/8.0")
	req.Header.Set("Referer", "https://shop.test/cart")
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	req.Header.Set("Authorization", "Bearer nope")
	req.AddCookie(&http.Cookie{Name: "sid", Value: "abc"})

	r.ServeHTTP(httptest.NewRecorder(), req)
	require.NotNil(t, ec)

	require.NotNil(t, ec.Request)
	assert.Equal(t, "http://shop.test/orders/42?debug=1&tag=a&tag=b", ec.Request.URL)
	assert.Equal(t, http.MethodPost, ec.Request.HTTPMethod)
	assert.Equal(t, "203.0.113.9", ec.Request.RemoteIP)
	assert.Equal(t, "curl/8.0", ec.Request.UserAgent)
	assert.Equal(t, "https://shop.test/cart", ec.Request.Referrer)

	assert.Equal(t, "42", ec.Parameters["orderID"])
	assert.Equal(t, "1", ec.Parameters["debug"])
	assert.Equal(t, []any{"a", "b"}, ec.Parameters["tag"])
	assert.Equal(t, "3", ec.Parameters["qty"])
	assert.Equal(t, "hunter2", ec.Parameters["password"], "redaction happens later")

	assert.Equal(t, map[string]any{"sid": "abc"}, ec.Cookies)
	assert.Equal(t, map[string]any{"user_id": 7}, ec.Session)
	assert.NotContains(t, ec.Headers, "Authorization")
	assert.NotContains(t, ec.Headers, "Cookie")
	assert.Equal(t, "curl/8.0", ec.Headers["User-Agent"])

	assert.Equal(t, map[string]any{"tenant": "acme", "note": "ok"}, ec.Extra, "caller data wins over context data")
	assert.Equal(t, map[string]any{"custom": "x"}, ec.Overrides)
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"socket", nil, "198.51.100.4:5555", "198.51.100.4"},
		{"real ip", map[string]string{"X-Real-IP": "192.0.2.1"}, "10.0.0.1:1", "192.0.2.1"},
		{"forwarded", map[string]string{"X-Forwarded-For": "192.0.2.2, 10.0.0.1", "X-Real-IP": "192.0.2.1"}, "10.0.0.1:1", "192.0.2.2"},
		{"no port", nil, "unix", "unix"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, clientIP(r))
		})
	}
}

func TestRequestURLScheme(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/path?q=1", nil)
	r.Host = "api.test"
	assert.Equal(t, "http://api.test/path?q=1", requestURL(r))

	r.Header.Set("X-Forwarded-Proto", "https, http")
	assert.Equal(t, "https://api.test/path?q=1", requestURL(r))
}

func TestWithDataMerges(t *testing.T) {
	ctx := WithData(t.Context(), map[string]any{"a": 1, "b": 1})
	ctx = WithData(ctx, map[string]any{"b": 2})

	assert.Equal(t, map[string]any{"a": 1, "b": 2}, dataFromContext(ctx))
}

func TestCollectDoesNotAliasOptions(t *testing.T) {
	data := map[string]any{"k": "v"}
	ec := newTestCollector(nil).Collect(errors.New("x"), Options{Data: data})

	data["k"] = "changed"
	assert.Equal(t, "v", ec.Extra["k"])
}
