package types

import "time"

// Incident is the unit of work handed to the dispatcher and, in queue
// mode, serialized onto SQS for the notifier worker. Params holds the
// already-redacted report namespace; an Incident never carries raw
// request data. JSON tags use snake_case.
type Incident struct {
	ID         string    `json:"id"`
	ErrorClass string    `json:"error_class"`
	Message    string    `json:"message"`
	OccurredAt time.Time `json:"occurred_at"`

	// Per-notification task overrides. Empty means use the configured value.
	TaskName  string `json:"task_name,omitempty"`
	TaskNotes string `json:"task_notes,omitempty"`

	// RetryCount is incremented each time the incident is re-published.
	RetryCount int `json:"retry_count"`

	// Observability
	TraceID string `json:"trace_id,omitempty"`

	Params map[string]any `json:"params"`
}
