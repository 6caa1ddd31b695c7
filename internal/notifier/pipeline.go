package notifier

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"tasknotifier/internal/config"
	"tasknotifier/internal/external"
	"tasknotifier/internal/notifications/core"
	"tasknotifier/internal/report"
	"tasknotifier/internal/types"
)

// attachConcurrency bounds parallel uploads for one incident.
const attachConcurrency = 2

// PipelineConfig holds the parameters needed to construct a Pipeline.
type PipelineConfig struct {
	Workspace    string
	Task         config.TaskConfig
	TemplatePath string
	Mode         types.DispatchMode

	Tracker  external.TaskTracker
	Archives external.ArchiveStore // optional
	Renderer *report.Renderer
	Archiver *report.Archiver

	Metrics core.DispatchMetrics
	Logger  types.Logger
	Clock   types.Clock
}

// Pipeline turns one incident into a task with the report attached.
type Pipeline struct {
	cfg     PipelineConfig
	metrics core.DispatchMetrics
	logger  types.Logger
	clock   types.Clock
}

// NewPipeline creates a Pipeline.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	p := &Pipeline{cfg: cfg, metrics: cfg.Metrics, logger: cfg.Logger, clock: cfg.Clock}
	if p.metrics == nil {
		p.metrics = core.NoopMetrics{}
	}
	if p.logger == nil {
		p.logger = types.NopLogger{}
	}
	if p.clock == nil {
		p.clock = types.RealClock{}
	}
	if p.cfg.Mode == "" {
		p.cfg.Mode = types.DispatchInline
	}
	return p
}

// Deliver renders the report, creates the task and attaches the archive.
//
// An error is returned only when no task was created. Once the task exists
// the incident counts as handled: archive and upload failures are logged and
// recorded as a partial delivery. Temp files are removed on every path.
func (p *Pipeline) Deliver(ctx context.Context, inc types.Incident) (err error) {
	start := p.clock.Now()
	ctx = types.WithRequestID(ctx, inc.TraceID)
	log := p.logger.With("incident_id", inc.ID, "trace_id", inc.TraceID)
	ctx = types.WithLogger(ctx, log)

	outcome := types.OutcomeFailed
	defer func() {
		p.metrics.RecordDelivery(ctx, p.cfg.Mode, outcome)
		p.metrics.RecordLatency(ctx, p.cfg.Mode, p.clock.Now().Sub(start))
	}()

	rep, err := p.cfg.Renderer.Render(inc.Params, p.cfg.TemplatePath)
	if err != nil {
		log.Error("failed to render report", "error", err.Error(), "code", string(types.CodeOf(err)))
		return err
	}

	notes, err := p.notes(inc)
	if err != nil {
		log.Error("failed to render task notes", "error", err.Error(), "code", string(types.CodeOf(err)))
		return err
	}

	task, err := p.cfg.Tracker.CreateTask(ctx, p.taskRequest(inc, notes))
	if err != nil {
		log.Error("failed to create task", "error", err.Error(), "code", string(types.CodeOf(err)))
		return err
	}
	log = log.With("task_gid", task.GID)
	ctx = types.WithLogger(ctx, log)

	arc, err := p.cfg.Archiver.Archive(ctx, rep)
	if err != nil {
		outcome = types.OutcomePartial
		log.Warn("task created without report", "error", err.Error(), "code", string(types.CodeOf(err)))
		return nil
	}
	defer func() {
		if cerr := arc.Cleanup(); cerr != nil {
			log.Warn("failed to clean up archive", "error", cerr.Error())
		}
	}()
	p.metrics.RecordArchiveParts(ctx, len(arc.Parts))

	if failed := p.attach(ctx, log, inc, task, arc); failed > 0 {
		outcome = types.OutcomePartial
		log.Warn("some archive parts were not attached", "failed", failed, "parts", len(arc.Parts))
		return nil
	}

	outcome = types.OutcomeDelivered
	log.Info("incident delivered", "parts", len(arc.Parts), "size", arc.Size)
	return nil
}

// attach uploads every part, mirrors it to the archive store when one is
// configured, and deletes it. It returns the number of failed uploads.
func (p *Pipeline) attach(ctx context.Context, log types.Logger, inc types.Incident, task *types.Task, arc *report.Archive) int {
	var failed atomic.Int32
	var g errgroup.Group
	g.SetLimit(attachConcurrency)

	for _, part := range arc.Parts {
		g.Go(func() error {
			defer func() {
				if err := arc.Remove(part); err != nil {
					log.Warn("failed to remove archive part", "part", filepath.Base(part), "error", err.Error())
				}
			}()

			if err := p.cfg.Tracker.AttachFile(ctx, task.GID, part, arc.MIME); err != nil {
				failed.Add(1)
				log.Warn("failed to attach archive part",
					"part", filepath.Base(part),
					"error", err.Error(),
					"code", string(types.CodeOf(err)),
				)
			}

			if p.cfg.Archives != nil {
				key := path.Join(inc.ID, filepath.Base(part))
				if err := p.cfg.Archives.PutArchive(ctx, key, part, arc.MIME); err != nil {
					log.Warn("failed to mirror archive part", "key", key, "error", err.Error())
				}
			}
			return nil
		})
	}
	_ = g.Wait()
	return int(failed.Load())
}

// taskName prefers the per-incident override, then the configured name.
func (p *Pipeline) taskName(inc types.Incident) string {
	if name := strings.TrimSpace(inc.TaskName); name != "" {
		return name
	}
	if name := strings.TrimSpace(p.cfg.Task.Name); name != "" {
		return name
	}
	return strings.TrimSpace(p.cfg.Task.NamePrefix + " " + inc.Message)
}

// notes treats a value naming an existing file as a template to render.
// Any other non-blank value is used literally; blank falls back to the
// bundled notes template.
func (p *Pipeline) notes(inc types.Incident) (string, error) {
	notes := inc.TaskNotes
	if strings.TrimSpace(notes) == "" {
		notes = p.cfg.Task.Notes
	}
	if strings.TrimSpace(notes) == "" {
		return p.cfg.Renderer.RenderNotes(inc.Params)
	}
	if isTemplateFile(notes) {
		rep, err := p.cfg.Renderer.RenderFile(notes, inc.Params)
		if err != nil {
			return "", err
		}
		return string(rep.Body), nil
	}
	return notes, nil
}

func isTemplateFile(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}

func (p *Pipeline) taskRequest(inc types.Incident, notes string) types.TaskRequest {
	t := p.cfg.Task
	return types.TaskRequest{
		Workspace:      p.cfg.Workspace,
		Name:           p.taskName(inc),
		Notes:          notes,
		Assignee:       t.Assignee,
		AssigneeStatus: t.AssigneeStatus,
		DueAt:          t.DueAt,
		DueOn:          t.DueOn,
		Hearted:        t.Hearted,
		Hearts:         t.Hearts,
		Projects:       t.Projects,
		Followers:      t.Followers,
		Memberships:    t.Memberships,
		Tags:           t.Tags,
	}
}
