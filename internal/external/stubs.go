package external

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"tasknotifier/internal/types"
)

// StubAttachment is one AttachFile call seen by the stub.
type StubAttachment struct {
	TaskID string
	Name   string
	MIME   string
	Body   []byte
}

// StubTaskTracker implements TaskTracker in memory. It logs every call and
// hands out sequential task ids. Used in local mode and in tests.
type StubTaskTracker struct {
	logger *slog.Logger

	mu          sync.Mutex
	tasks       []types.TaskRequest
	attachments []StubAttachment

	// CreateErr and AttachErr, when set, are returned instead of succeeding.
	CreateErr error
	AttachErr error
}

// NewStubTaskTracker creates a new StubTaskTracker.
func NewStubTaskTracker(logger *slog.Logger) *StubTaskTracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &StubTaskTracker{logger: logger}
}

func (s *StubTaskTracker) CreateTask(ctx context.Context, req types.TaskRequest) (*types.Task, error) {
	s.logger.InfoContext(ctx, "stub: CreateTask called",
		"workspace", req.Workspace,
		"name", req.Name,
	)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.CreateErr != nil {
		return nil, s.CreateErr
	}
	s.tasks = append(s.tasks, req)
	return &types.Task{GID: fmt.Sprintf("stub-%d", len(s.tasks)), Name: req.Name}, nil
}

// AttachFile reads the file so tests can inspect what would have been
// uploaded after the caller deletes it.
func (s *StubTaskTracker) AttachFile(ctx context.Context, taskID, path, mime string) error {
	s.logger.InfoContext(ctx, "stub: AttachFile called",
		"task_gid", taskID,
		"path", path,
	)
	body, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.AttachErr != nil {
		return s.AttachErr
	}
	s.attachments = append(s.attachments, StubAttachment{TaskID: taskID, Name: path, MIME: mime, Body: body})
	return nil
}

// Tasks returns the create requests seen so far.
func (s *StubTaskTracker) Tasks() []types.TaskRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.TaskRequest(nil), s.tasks...)
}

// Attachments returns the uploads seen so far.
func (s *StubTaskTracker) Attachments() []StubAttachment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]StubAttachment(nil), s.attachments...)
}

var _ TaskTracker = (*StubTaskTracker)(nil)
