// Package config defines the configuration for the task notifier.
// Configuration is loaded once at process initialization and is immutable
// thereafter.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// A missing tracker API key or workspace is NOT an error: the notifier
// treats itself as inactive. Malformed values (bad durations, an explicit
// template path that does not exist, queue mode without a queue) are.
package config

import (
	"strings"
	"time"

	"tasknotifier/internal/types"
)

// SecretString is an alias for types.SecretString.
type SecretString = types.SecretString

// Config is the top-level configuration struct.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" default:"local" validate:"oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"tasknotifier"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Tracker       TrackerConfig
	Task          TaskConfig
	Report        ReportConfig
	Archive       ArchiveConfig
	Dispatch      DispatchConfig
	AWS           AWSConfig
	Observability ObservabilityConfig
	Server        ServerConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// TrackerConfig holds the remote task-tracker credentials and transport tuning.
type TrackerConfig struct {
	APIKey    SecretString `envconfig:"TRACKER_API_KEY"`
	Workspace string       `envconfig:"TRACKER_WORKSPACE"`
	BaseURL   string       `envconfig:"TRACKER_BASE_URL" default:"https://app.asana.com/api/1.0" validate:"required,url"`
	UserAgent string       `envconfig:"TRACKER_USER_AGENT" default:"TaskNotifier/1.0"`

	// Short connect, long inactivity.
	ConnectTimeout    time.Duration `envconfig:"TRACKER_CONNECT_TIMEOUT" default:"5s" validate:"gt=0"`
	InactivityTimeout time.Duration `envconfig:"TRACKER_INACTIVITY_TIMEOUT" default:"120s" validate:"gt=0"`
	MaxRedirects      int           `envconfig:"TRACKER_MAX_REDIRECTS" default:"5" validate:"gte=0"`
	MaxRetries        int           `envconfig:"TRACKER_MAX_RETRIES" default:"2" validate:"gte=0"`

	// UseStub routes all tracker calls to the in-memory stub (local runs).
	UseStub bool `envconfig:"TRACKER_USE_STUB" default:"false"`
}

// Active reports whether both the API key and the workspace are present.
func (c TrackerConfig) Active() bool {
	return !c.APIKey.IsBlank() && strings.TrimSpace(c.Workspace) != ""
}

// TaskConfig holds the fields copied onto every created task.
type TaskConfig struct {
	Name           string   `envconfig:"TASK_NAME"`
	Notes          string   `envconfig:"TASK_NOTES"`
	Assignee       string   `envconfig:"TRACKER_ASSIGNEE"`
	AssigneeStatus string   `envconfig:"TRACKER_ASSIGNEE_STATUS" validate:"omitempty,oneof=inbox today upcoming later"`
	DueAt          string   `envconfig:"TRACKER_DUE_AT" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	DueOn          string   `envconfig:"TRACKER_DUE_ON" validate:"omitempty,datetime=2006-01-02"`
	Hearted        bool     `envconfig:"TRACKER_HEARTED" default:"false"`
	Hearts         []string `envconfig:"TRACKER_HEARTS"`
	Projects       []string `envconfig:"TRACKER_PROJECTS"`
	Followers      []string `envconfig:"TRACKER_FOLLOWERS"`
	Memberships    []string `envconfig:"TRACKER_MEMBERSHIPS"`
	Tags           []string `envconfig:"TRACKER_TAGS"`
	NamePrefix     string   `envconfig:"TASK_NAME_PREFIX" default:"[TaskNotifier]"`
}

// ReportConfig controls report rendering and redaction.
type ReportConfig struct {
	TemplatePath  string   `envconfig:"REPORT_TEMPLATE_PATH"`
	UnsafeOptions []string `envconfig:"UNSAFE_OPTIONS"`
}

// ArchiveConfig controls how rendered reports are materialized.
type ArchiveConfig struct {
	MaxSegmentBytes int64               `envconfig:"ARCHIVE_MAX_SEGMENT_BYTES" default:"104857600" validate:"gte=0"`
	TempDir         string              `envconfig:"ARCHIVE_TEMP_DIR"`
	KeepSource      bool                `envconfig:"ARCHIVE_KEEP_SOURCE" default:"false"`
	Format          types.ArchiveFormat `envconfig:"ARCHIVE_FORMAT" default:"zip" validate:"oneof=zip zstd"`
}

// DispatchConfig bounds the background delivery pool.
type DispatchConfig struct {
	Mode       types.DispatchMode `envconfig:"DISPATCH_MODE" default:"inline" validate:"oneof=inline queue"`
	Workers    int                `envconfig:"DISPATCH_WORKERS" default:"4" validate:"gte=1,lte=64"`
	QueueSize  int                `envconfig:"DISPATCH_QUEUE_SIZE" default:"64" validate:"gte=1"`
	RateLimit  float64            `envconfig:"DISPATCH_RATE_LIMIT" default:"5" validate:"gte=0"`
	RateBurst  int                `envconfig:"DISPATCH_RATE_BURST" default:"10" validate:"gte=1"`
	JobTimeout time.Duration      `envconfig:"DISPATCH_JOB_TIMEOUT" default:"2m" validate:"gt=0"`

	// IncidentQueueURL is required in queue mode.
	IncidentQueueURL string `envconfig:"SQS_INCIDENTS" validate:"required_if=Mode queue,omitempty,url"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// ArchiveBucket mirrors report archives to S3 when set.
	ArchiveBucket string `envconfig:"ARCHIVE_BUCKET"`
	ArchivePrefix string `envconfig:"ARCHIVE_PREFIX" default:"reports"`

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"TaskNotifier"`
	EnableMetrics   bool   `envconfig:"ENABLE_METRICS" default:"false"`
}

// ServerConfig is used by the demo HTTP server only.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	RequestTimeout  time.Duration `envconfig:"REQUEST_TIMEOUT" default:"29s"`
}

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrSSMResolution indicates a failure when fetching secrets from AWS SSM.
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
	// ErrTemplateMissing indicates an explicit template path that does not exist.
	ErrTemplateMissing ConfigErrorType = "TEMPLATE_MISSING"
)
