package core

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"tasknotifier/internal/config"
	"tasknotifier/internal/notifier"
)

// fakeNotifier records what the HTTP layer reports.
type fakeNotifier struct {
	mu       sync.Mutex
	errs     []error
	panics   []any
	opts     []notifier.Options
	closed   bool
	closeErr error
}

func (f *fakeNotifier) Notify(err error, opts notifier.Options) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs = append(f.errs, err)
	f.opts = append(f.opts, opts)
}

func (f *fakeNotifier) NotifyPanic(v any, opts notifier.Options) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.panics = append(f.panics, v)
	f.opts = append(f.opts, opts)
}

func (f *fakeNotifier) Close(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return f.closeErr
}

func newTestServer(t *testing.T) (*Server, *fakeNotifier) {
	t.Helper()
	n := &fakeNotifier{}
	srv, err := NewServer(&config.Config{}, n, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return srv, n
}

func bufferLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewJSONHandler(&buf, nil)), &buf
}
