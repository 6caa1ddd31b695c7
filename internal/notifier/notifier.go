// Package notifier reports errors from a running service as tasks in a
// remote tracker.
//
// A Notifier collects the error's context on the calling goroutine, redacts
// it, and hands the incident to a bounded dispatcher. Rendering, archiving
// and every network call happen on the dispatcher's workers. Nothing the
// notifier does is allowed to fail the caller: errors are logged and
// dropped.
package notifier

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/google/uuid"

	"tasknotifier/internal/collector"
	"tasknotifier/internal/config"
	"tasknotifier/internal/external"
	"tasknotifier/internal/notifications/core"
	"tasknotifier/internal/redact"
	"tasknotifier/internal/report"
	"tasknotifier/internal/types"
)

// Options describe one notification.
type Options struct {
	collector.Options

	// TaskName and TaskNotes override the configured task fields for this
	// notification only.
	TaskName  string
	TaskNotes string
}

// Publisher hands incidents to the out-of-process worker in queue mode.
type Publisher interface {
	Publish(ctx context.Context, inc types.Incident) error
}

// Deps are the collaborators a Notifier needs besides its configuration.
type Deps struct {
	Tracker   external.TaskTracker
	Archives  external.ArchiveStore // optional
	Publisher Publisher             // required in queue mode
	Metrics   core.DispatchMetrics
	Logger    types.Logger
	Clock     types.Clock

	// CollectorOptions are passed to collector.New.
	CollectorOptions []collector.Option
}

// Notifier is safe for concurrent use.
type Notifier struct {
	active     bool
	mode       types.DispatchMode
	collector  *collector.Collector
	policy     redact.Policy
	pipeline   *Pipeline
	publisher  Publisher
	dispatcher *core.Dispatcher
	metrics    core.DispatchMetrics
	logger     types.Logger
	newID      func() string
}

// New builds a Notifier from cfg. Without a tracker API key and workspace
// the Notifier is inactive: it starts no workers and every Notify is a
// no-op. Configuration that is present but unusable is an error.
func New(cfg *config.Config, deps Deps) (*Notifier, error) {
	logger := deps.Logger
	if logger == nil {
		logger = types.NopLogger{}
	}
	logger = logger.With("component", "notifier")

	if cfg == nil || !cfg.Tracker.Active() {
		logger.Info("notifier inactive: tracker api key or workspace not configured")
		return &Notifier{logger: logger}, nil
	}

	metrics := deps.Metrics
	if metrics == nil {
		metrics = core.NoopMetrics{}
	}
	clock := deps.Clock
	if clock == nil {
		clock = types.RealClock{}
	}

	n := &Notifier{
		active:    true,
		mode:      cfg.Dispatch.Mode,
		collector: collector.New(logger, append([]collector.Option{collector.WithClock(clock)}, deps.CollectorOptions...)...),
		policy:    redact.NewPolicy(cfg.Report.UnsafeOptions...),
		publisher: deps.Publisher,
		metrics:   metrics,
		logger:    logger,
		newID:     uuid.NewString,
	}

	switch n.mode {
	case types.DispatchQueue:
		if deps.Publisher == nil {
			return nil, types.NewAppError(types.ErrCodeConfigInvalid, "queue dispatch requires an incident publisher", nil)
		}
	default:
		n.mode = types.DispatchInline
		if deps.Tracker == nil {
			return nil, types.NewAppError(types.ErrCodeConfigInvalid, "inline dispatch requires a task tracker", nil)
		}
		pipeline, err := BuildPipeline(cfg, deps.Tracker, deps.Archives, metrics, logger, clock)
		if err != nil {
			return nil, err
		}
		n.pipeline = pipeline
	}

	n.dispatcher = core.NewDispatcher(core.DispatcherConfig{
		Workers:    cfg.Dispatch.Workers,
		QueueSize:  cfg.Dispatch.QueueSize,
		RateLimit:  cfg.Dispatch.RateLimit,
		RateBurst:  cfg.Dispatch.RateBurst,
		JobTimeout: cfg.Dispatch.JobTimeout,
		Mode:       n.mode,
		Metrics:    metrics,
		Logger:     logger,
	})

	logger.Info("notifier active", "mode", string(n.mode), "workers", cfg.Dispatch.Workers)
	return n, nil
}

// BuildPipeline wires a Pipeline from cfg. The queue worker uses it directly.
func BuildPipeline(
	cfg *config.Config,
	tracker external.TaskTracker,
	archives external.ArchiveStore,
	metrics core.DispatchMetrics,
	logger types.Logger,
	clock types.Clock,
) (*Pipeline, error) {
	renderer, err := report.NewRenderer(report.RendererConfig{Clock: clock, Logger: logger})
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to load bundled templates", err)
	}
	if path := strings.TrimSpace(cfg.Report.TemplatePath); path != "" && !isTemplateFile(path) {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeConfigTemplateMissing,
			"report template does not exist", nil, map[string]any{"path": path})
	}

	archiver := report.NewArchiver(report.ArchiverConfig{
		TempDir:         cfg.Archive.TempDir,
		MaxSegmentBytes: cfg.Archive.MaxSegmentBytes,
		KeepSource:      cfg.Archive.KeepSource,
		Format:          cfg.Archive.Format,
		Logger:          logger,
	})

	return NewPipeline(PipelineConfig{
		Workspace:    cfg.Tracker.Workspace,
		Task:         cfg.Task,
		TemplatePath: cfg.Report.TemplatePath,
		Mode:         cfg.Dispatch.Mode,
		Tracker:      tracker,
		Archives:     archives,
		Renderer:     renderer,
		Archiver:     archiver,
		Metrics:      metrics,
		Logger:       logger,
		Clock:        clock,
	}), nil
}

// Active reports whether the notifier will deliver anything.
func (n *Notifier) Active() bool {
	return n != nil && n.active
}

// Notify reports err. It returns once the incident is queued or dropped.
func (n *Notifier) Notify(err error, opts Options) {
	if !n.Active() {
		return
	}
	defer n.recoverInternal()

	ec := n.collector.Collect(err, opts.Options)
	inc := types.Incident{
		ID:         n.newID(),
		ErrorClass: ec.ErrorClass,
		Message:    ec.Message,
		OccurredAt: ec.Timestamp,
		TaskName:   opts.TaskName,
		TaskNotes:  opts.TaskNotes,
		Params:     redact.Redact(report.Plain(ec.Map()), n.policy),
	}
	if opts.Request != nil {
		inc.TraceID = types.GetRequestID(opts.Request.Context())
	}

	if serr := n.dispatcher.Submit("incident "+inc.ID, n.job(inc)); serr != nil {
		n.logger.Warn("incident dropped",
			"incident_id", inc.ID,
			"error_class", inc.ErrorClass,
			"code", string(types.CodeOf(serr)),
		)
	}
}

// NotifyPanic reports a recovered panic value. Call it from the deferred
// function that recovered.
func (n *Notifier) NotifyPanic(v any, opts Options) {
	if !n.Active() {
		return
	}
	n.Notify(collector.NewPanicError(v, 1), opts)
}

func (n *Notifier) job(inc types.Incident) core.Job {
	if n.mode == types.DispatchQueue {
		return func(ctx context.Context) error {
			if err := n.publisher.Publish(ctx, inc); err != nil {
				n.metrics.RecordDelivery(ctx, n.mode, types.OutcomeFailed)
				return err
			}
			n.metrics.RecordDelivery(ctx, n.mode, types.OutcomeQueued)
			return nil
		}
	}
	return func(ctx context.Context) error {
		return n.pipeline.Deliver(ctx, inc)
	}
}

// Close stops accepting incidents and waits for queued ones until ctx ends.
func (n *Notifier) Close(ctx context.Context) error {
	if !n.Active() {
		return nil
	}
	return n.dispatcher.Shutdown(ctx)
}

func (n *Notifier) recoverInternal() {
	if r := recover(); r != nil {
		n.logger.Error("notifier panicked",
			"panic", fmt.Sprint(r),
			"stack", string(debug.Stack()),
		)
	}
}
