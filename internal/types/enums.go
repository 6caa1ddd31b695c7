package types

// DispatchMode selects where incidents are delivered from.
type DispatchMode string

const (
	// DispatchInline delivers from the in-process worker pool.
	DispatchInline DispatchMode = "inline"
	// DispatchQueue publishes incidents to SQS for the notifier worker.
	DispatchQueue DispatchMode = "queue"
)

// ArchiveFormat selects the container produced for a rendered report.
type ArchiveFormat string

const (
	ArchiveZip  ArchiveFormat = "zip"
	ArchiveZstd ArchiveFormat = "zstd"
)

// DeliveryOutcome is the terminal state of one incident.
type DeliveryOutcome string

const (
	OutcomeDelivered DeliveryOutcome = "delivered"
	OutcomePartial   DeliveryOutcome = "partial" // task created, attachments missing
	OutcomeFailed    DeliveryOutcome = "failed"
	OutcomeQueued    DeliveryOutcome = "queued"
	OutcomeDropped   DeliveryOutcome = "dropped"
)

// MIME types used for attachments.
const (
	MIMEZip  = "application/zip"
	MIMEZstd = "application/zstd"
)
