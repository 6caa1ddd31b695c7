// Package main is the entrypoint for the Notifier Worker Lambda function.
//
// In queue mode the in-process notifier only publishes redacted incidents to
// SQS. This worker consumes them and runs the delivery pipeline: render the
// report, create the task, archive and attach.
//
// Handler flow, per SQS message:
//  1. Unmarshal the Incident. A malformed body is logged and acknowledged.
//  2. Deliver through the pipeline.
//  3. A retryable failure (tracker unavailable or rate limited) re-publishes
//     the incident with backoff until RequeuePolicy is exhausted. A failed
//     re-publish is reported as a batch item failure so SQS redelivers it.
//  4. Any other failure is logged and acknowledged.
package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"tasknotifier/internal/config"
	"tasknotifier/internal/external"
	"tasknotifier/internal/notifications/core"
	"tasknotifier/internal/notifier"
	"tasknotifier/internal/types"
)

// slogAdapter wraps *slog.Logger to implement types.Logger; slog's With
// returns *slog.Logger rather than types.Logger.
type slogAdapter struct {
	logger *slog.Logger
}

func (a *slogAdapter) Info(msg string, args ...any)  { a.logger.Info(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.logger.Error(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.logger.Warn(msg, args...) }
func (a *slogAdapter) With(args ...any) types.Logger {
	return &slogAdapter{logger: a.logger.With(args...)}
}

var _ types.Logger = (*slogAdapter)(nil)

// Deliverer runs the delivery pipeline for one incident.
type Deliverer interface {
	Deliver(ctx context.Context, inc types.Incident) error
}

// Republisher puts an incident back on the queue with a delay.
type Republisher interface {
	Republish(ctx context.Context, inc types.Incident, delay time.Duration) error
}

// Handler holds the dependencies for the worker Lambda handler.
type Handler struct {
	pipeline  Deliverer
	publisher Republisher
	metrics   core.DispatchMetrics
	policy    core.RetryPolicy
	logger    types.Logger
	now       func() time.Time
}

// Handle processes an SQS batch. Messages are independent; only those that
// could be neither delivered nor re-queued are returned as failures.
func (h *Handler) Handle(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	response := events.SQSEventResponse{}

	for _, record := range sqsEvent.Records {
		if err := h.processMessage(ctx, record); err != nil {
			h.logger.Error("failed to process SQS message",
				"message_id", record.MessageId,
				"error", err.Error(),
			)
			response.BatchItemFailures = append(response.BatchItemFailures,
				events.SQSBatchItemFailure{ItemIdentifier: record.MessageId},
			)
		}
	}

	return response, nil
}

func (h *Handler) processMessage(ctx context.Context, record events.SQSMessage) error {
	var inc types.Incident
	if err := json.Unmarshal([]byte(record.Body), &inc); err != nil {
		h.logger.Error("failed to unmarshal incident",
			"message_id", record.MessageId,
			"error", err.Error(),
		)
		return nil
	}

	logger := h.logger.With(
		"incident_id", inc.ID,
		"error_class", inc.ErrorClass,
		"retry_count", inc.RetryCount,
		"trace_id", inc.TraceID,
	)

	if sent, ok := record.Attributes["SentTimestamp"]; ok {
		if ms, err := strconv.ParseInt(sent, 10, 64); err == nil {
			h.metrics.RecordQueueLag(ctx, h.now().Sub(time.UnixMilli(ms)))
		}
	}

	err := h.pipeline.Deliver(ctx, inc)
	if err == nil {
		return nil
	}

	code := types.CodeOf(err)
	if !code.Retryable() {
		logger.Error("incident not deliverable", "error", err.Error(), "code", string(code))
		return nil
	}
	if !core.ShouldRequeue(h.policy, inc.RetryCount) {
		logger.Error("incident dropped after retries", "error", err.Error(), "code", string(code))
		h.metrics.RecordDropped(ctx, "retries_exhausted")
		return nil
	}

	delay := core.CalculateNextRetry(h.policy, inc.RetryCount)
	if perr := h.publisher.Republish(ctx, inc, delay); perr != nil {
		return perr
	}
	logger.Warn("incident re-queued", "delay", delay.String(), "code", string(code))
	return nil
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	logger.Info("Notifier Worker Lambda initializing (cold start)")
	typedLogger := &slogAdapter{logger: logger}

	cfg, err := config.LoadConfig(config.NewSSMProvider(os.Getenv("AWS_REGION")))
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if !cfg.Tracker.Active() {
		logger.Error("Tracker API key and workspace are required by the worker")
		os.Exit(1)
	}
	cfg.Dispatch.Mode = types.DispatchQueue

	ctx := context.Background()
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		logger.Error("Failed to load AWS SDK config", "error", err)
		os.Exit(1)
	}

	sqsClient := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}
	})
	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
			o.UsePathStyle = true
		}
	})

	var metrics core.DispatchMetrics = core.NoopMetrics{}
	if cfg.Observability.EnableMetrics {
		metrics = core.NewCloudWatchDispatchMetrics(cloudwatch.NewFromConfig(awsCfg), cfg.Observability.MetricNamespace, typedLogger)
	}

	registry, err := external.NewClientRegistry(cfg, logger, external.WithS3Client(s3Client))
	if err != nil {
		logger.Error("Failed to build client registry", "error", err)
		os.Exit(1)
	}

	pipeline, err := notifier.BuildPipeline(cfg, registry.Tracker, registry.Archives, metrics, typedLogger, types.RealClock{})
	if err != nil {
		logger.Error("Failed to build delivery pipeline", "error", err)
		os.Exit(1)
	}

	handler := &Handler{
		pipeline:  pipeline,
		publisher: core.NewIncidentPublisher(sqsClient, cfg.Dispatch.IncidentQueueURL, typedLogger),
		metrics:   metrics,
		policy:    core.RequeuePolicy,
		logger:    typedLogger,
		now:       time.Now,
	}

	logger.Info("Notifier Worker Lambda initialized",
		"incident_queue", cfg.Dispatch.IncidentQueueURL,
		"archive_bucket", cfg.AWS.ArchiveBucket,
		"metrics_enabled", cfg.Observability.EnableMetrics,
		"version", cfg.Build.Version,
	)

	lambda.Start(handler.Handle)
}
