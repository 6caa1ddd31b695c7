package notifier

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"tasknotifier/internal/config"
	"tasknotifier/internal/external"
	"tasknotifier/internal/types"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

var testTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func quietSlog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newStub() *external.StubTaskTracker {
	return external.NewStubTaskTracker(quietSlog())
}

// activeConfig returns an inline-mode config that writes archives to a
// per-test temp dir.
func activeConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Environment: "local",
		Tracker: config.TrackerConfig{
			APIKey:    "key",
			Workspace: "ws-1",
		},
		Task: config.TaskConfig{NamePrefix: "[TaskNotifier]"},
		Archive: config.ArchiveConfig{
			TempDir: t.TempDir(),
			Format:  types.ArchiveZip,
		},
		Dispatch: config.DispatchConfig{
			Mode:       types.DispatchInline,
			Workers:    2,
			QueueSize:  8,
			RateBurst:  10,
			JobTimeout: 10 * time.Second,
		},
	}
}

func dirEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read %s: %v", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

type recordingMetrics struct {
	mu       sync.Mutex
	outcomes []types.DeliveryOutcome
	parts    []int
}

func (r *recordingMetrics) RecordDelivery(_ context.Context, _ types.DispatchMode, o types.DeliveryOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
}
func (r *recordingMetrics) RecordDropped(context.Context, string)                            {}
func (r *recordingMetrics) RecordLatency(context.Context, types.DispatchMode, time.Duration) {}
func (r *recordingMetrics) RecordQueueLag(context.Context, time.Duration)                    {}
func (r *recordingMetrics) RecordArchiveParts(_ context.Context, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.parts = append(r.parts, n)
}

func (r *recordingMetrics) Outcomes() []types.DeliveryOutcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.DeliveryOutcome(nil), r.outcomes...)
}

type recordingPublisher struct {
	mu        sync.Mutex
	incidents []types.Incident
	err       error
}

func (p *recordingPublisher) Publish(_ context.Context, inc types.Incident) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.incidents = append(p.incidents, inc)
	return nil
}

type recordingStore struct {
	mu   sync.Mutex
	keys map[string][]byte
}

func (s *recordingStore) PutArchive(_ context.Context, key, path, _ string) error {
	body, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keys == nil {
		s.keys = map[string][]byte{}
	}
	s.keys[key] = body
	return nil
}

// bufferLogger writes "level msg" lines to buf.
type bufferLogger struct {
	mu  sync.Mutex
	buf *bytes.Buffer
}

func (l *bufferLogger) write(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buf.WriteString(level + " " + msg + "\n")
}

func (l *bufferLogger) Info(msg string, _ ...any)  { l.write("info", msg) }
func (l *bufferLogger) Error(msg string, _ ...any) { l.write("error", msg) }
func (l *bufferLogger) Warn(msg string, _ ...any)  { l.write("warn", msg) }
func (l *bufferLogger) With(...any) types.Logger   { return l }

// capturingSQS records message bodies sent through an IncidentPublisher.
type capturingSQS struct {
	mu     sync.Mutex
	bodies []string
}

func (c *capturingSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bodies = append(c.bodies, *in.MessageBody)
	return &sqs.SendMessageOutput{}, nil
}

func (c *capturingSQS) Bodies() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.bodies...)
}
