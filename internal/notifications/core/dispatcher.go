package core

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"tasknotifier/internal/types"
)

// Drop reasons reported through DispatchMetrics.RecordDropped.
const (
	DropQueueFull   = "queue_full"
	DropRateLimited = "rate_limited"
	DropClosed      = "closed"
)

// DispatcherConfig holds the parameters needed to construct a Dispatcher.
type DispatcherConfig struct {
	Workers   int
	QueueSize int

	// RateLimit is jobs per second accepted by Submit. Zero disables the limit.
	RateLimit float64
	RateBurst int

	// JobTimeout bounds a single job. Zero means no per-job deadline.
	JobTimeout time.Duration

	Mode    types.DispatchMode
	Metrics DispatchMetrics
	Logger  types.Logger
}

type queuedJob struct {
	name     string
	run      Job
	enqueued time.Time
}

// Dispatcher runs jobs on a fixed pool of workers fed by a bounded queue.
// Submit never blocks: a job that cannot be queued is dropped.
type Dispatcher struct {
	cfg     DispatcherConfig
	queue   chan queuedJob
	limiter *rate.Limiter
	metrics DispatchMetrics
	logger  types.Logger
	now     func() time.Time

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewDispatcher creates a Dispatcher and starts its workers.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	if cfg.Mode == "" {
		cfg.Mode = types.DispatchInline
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = types.NopLogger{}
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := max(cfg.RateBurst, 1)

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		cfg:     cfg,
		queue:   make(chan queuedJob, cfg.QueueSize),
		limiter: rate.NewLimiter(limit, burst),
		metrics: metrics,
		logger:  logger.With("component", "dispatcher"),
		now:     time.Now,
		baseCtx: ctx,
		cancel:  cancel,
	}

	d.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go d.worker(i)
	}
	return d
}

// Submit queues job for execution. It returns an AppError with code
// dispatch_closed, dispatch_rate_limited or dispatch_queue_full when the
// job is dropped.
func (d *Dispatcher) Submit(name string, job Job) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.metrics.RecordDropped(context.Background(), DropClosed)
		return types.NewAppError(types.ErrCodeDispatchClosed, "dispatcher is shut down", nil)
	}
	if !d.limiter.Allow() {
		d.metrics.RecordDropped(context.Background(), DropRateLimited)
		return types.NewAppError(types.ErrCodeDispatchRateLimited, "dispatch rate exceeded", nil)
	}

	select {
	case d.queue <- queuedJob{name: name, run: job, enqueued: d.now()}:
		return nil
	default:
		d.metrics.RecordDropped(context.Background(), DropQueueFull)
		return types.NewAppErrorWithDetails(types.ErrCodeDispatchQueueFull, "dispatch queue is full", nil,
			map[string]any{"queue_size": d.cfg.QueueSize})
	}
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()
	for qj := range d.queue {
		d.metrics.RecordQueueLag(d.baseCtx, d.now().Sub(qj.enqueued))
		if err := d.run(qj); err != nil {
			d.logger.Warn("job failed",
				"job", qj.name,
				"worker", id,
				"error", err.Error(),
				"code", string(types.CodeOf(err)),
			)
		}
	}
}

func (d *Dispatcher) run(qj queuedJob) (err error) {
	ctx := d.baseCtx
	if d.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.JobTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("job panicked",
				"job", qj.name,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
			err = types.NewAppError(types.ErrCodeInternalUnexpected, fmt.Sprintf("job %s panicked", qj.name), nil)
		}
	}()
	return qj.run(ctx)
}

// Shutdown stops intake and waits for queued jobs to finish. If ctx expires
// first, running jobs are cancelled and ctx.Err() is returned; workers exit
// once their current job returns.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}
