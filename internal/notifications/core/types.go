// Package core provides the delivery infrastructure shared by the in-process
// notifier and the queue worker: a bounded, rate-limited dispatcher, the
// SQS incident publisher, requeue backoff, and delivery metrics.
package core

import (
	"context"
	"time"

	"tasknotifier/internal/types"
)

// Job is one unit of background work. The context carries the per-job
// timeout and is cancelled when the dispatcher is abandoned on shutdown.
type Job func(ctx context.Context) error

// DispatchMetrics records delivery observability data. Implementations must
// not block for long and must swallow their own errors.
type DispatchMetrics interface {
	// RecordDelivery counts one terminal outcome for an incident.
	RecordDelivery(ctx context.Context, mode types.DispatchMode, outcome types.DeliveryOutcome)

	// RecordDropped counts an incident that never ran. reason is a short
	// machine-readable code (queue_full, rate_limited, closed).
	RecordDropped(ctx context.Context, reason string)

	// RecordLatency records how long one delivery took end to end.
	RecordLatency(ctx context.Context, mode types.DispatchMode, d time.Duration)

	// RecordQueueLag records the time between submission and execution.
	RecordQueueLag(ctx context.Context, lag time.Duration)

	// RecordArchiveParts records how many parts one report was split into.
	RecordArchiveParts(ctx context.Context, parts int)
}

// NoopMetrics discards everything. Used when metrics are disabled.
type NoopMetrics struct{}

func (NoopMetrics) RecordDelivery(context.Context, types.DispatchMode, types.DeliveryOutcome) {}
func (NoopMetrics) RecordDropped(context.Context, string)                                     {}
func (NoopMetrics) RecordLatency(context.Context, types.DispatchMode, time.Duration)          {}
func (NoopMetrics) RecordQueueLag(context.Context, time.Duration)                             {}
func (NoopMetrics) RecordArchiveParts(context.Context, int)                                   {}

// RetryPolicy defines the exponential backoff used when a queued incident
// is re-published after a retryable failure.
type RetryPolicy struct {
	MaxAttempts   int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// RequeuePolicy keeps every delay within the SQS DelaySeconds limit.
var RequeuePolicy = RetryPolicy{
	MaxAttempts:   3,
	BaseDelay:     30 * time.Second,
	MaxDelay:      15 * time.Minute,
	BackoffFactor: 4.0,
}

// CalculateNextRetry computes the delay before the next retry attempt:
// delay = min(BaseDelay * BackoffFactor^attempt, MaxDelay).
func CalculateNextRetry(policy RetryPolicy, attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := float64(policy.BaseDelay)
	for i := 0; i < attempt; i++ {
		delay *= policy.BackoffFactor
		if delay > float64(policy.MaxDelay) {
			return policy.MaxDelay
		}
	}
	return min(time.Duration(delay), policy.MaxDelay)
}

// ShouldRequeue reports whether an incident that already went through
// retryCount re-publishes may be tried again.
func ShouldRequeue(policy RetryPolicy, retryCount int) bool {
	return retryCount < policy.MaxAttempts
}
