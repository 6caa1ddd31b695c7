package external

import (
	"context"

	"tasknotifier/internal/types"
)

// TaskTracker files incidents as tasks in the remote project-management
// service.
type TaskTracker interface {
	// CreateTask creates a task and returns the created resource.
	CreateTask(ctx context.Context, req types.TaskRequest) (*types.Task, error)

	// AttachFile uploads the file at path to an existing task.
	AttachFile(ctx context.Context, taskID, path, mime string) error
}

// ArchiveStore keeps a copy of report archives outside the tracker.
type ArchiveStore interface {
	// PutArchive uploads the file at path under key.
	PutArchive(ctx context.Context, key, path, mime string) error
}
