package core

import (
	"context"
	"sync"
	"time"

	"tasknotifier/internal/types"
)

// mockLogger records log entries.
type mockLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

type logEntry struct {
	level string
	msg   string
	args  []any
}

func (m *mockLogger) log(level, msg string, args []any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, logEntry{level: level, msg: msg, args: args})
}

func (m *mockLogger) Info(msg string, args ...any)  { m.log("info", msg, args) }
func (m *mockLogger) Error(msg string, args ...any) { m.log("error", msg, args) }
func (m *mockLogger) Warn(msg string, args ...any)  { m.log("warn", msg, args) }
func (m *mockLogger) With(...any) types.Logger      { return m }

func (m *mockLogger) count(level, msg string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.entries {
		if e.level == level && e.msg == msg {
			n++
		}
	}
	return n
}

// recordingMetrics counts DispatchMetrics calls.
type recordingMetrics struct {
	mu         sync.Mutex
	dropped    map[string]int
	deliveries map[types.DeliveryOutcome]int
	lags       int
	parts      []int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		dropped:    map[string]int{},
		deliveries: map[types.DeliveryOutcome]int{},
	}
}

func (r *recordingMetrics) RecordDelivery(_ context.Context, _ types.DispatchMode, o types.DeliveryOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliveries[o]++
}

func (r *recordingMetrics) RecordDropped(_ context.Context, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropped[reason]++
}

func (r *recordingMetrics) RecordLatency(context.Context, types.DispatchMode, time.Duration) {}

func (r *recordingMetrics) RecordQueueLag(context.Context, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lags++
}

func (r *recordingMetrics) RecordArchiveParts(_ context.Context, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.parts = append(r.parts, n)
}

func (r *recordingMetrics) droppedFor(reason string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped[reason]
}
