package core

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"tasknotifier/internal/types"
)

// maxDelaySeconds is the SQS DelaySeconds ceiling.
const maxDelaySeconds = 900

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// IncidentPublisher puts incidents on the SQS queue consumed by the
// notifier worker.
type IncidentPublisher struct {
	client   SQSSender
	queueURL string
	logger   types.Logger
}

// NewIncidentPublisher creates a publisher targeting queueURL.
func NewIncidentPublisher(client SQSSender, queueURL string, logger types.Logger) *IncidentPublisher {
	if logger == nil {
		logger = types.NopLogger{}
	}
	return &IncidentPublisher{client: client, queueURL: queueURL, logger: logger}
}

// Publish sends a fresh incident with no delay.
func (p *IncidentPublisher) Publish(ctx context.Context, inc types.Incident) error {
	return p.send(ctx, inc, 0)
}

// Republish increments the incident's RetryCount before serializing it and
// sends it with delay, clamped to the SQS maximum of 900 seconds.
func (p *IncidentPublisher) Republish(ctx context.Context, inc types.Incident, delay time.Duration) error {
	inc.RetryCount++
	return p.send(ctx, inc, delay)
}

func (p *IncidentPublisher) send(ctx context.Context, inc types.Incident, delay time.Duration) error {
	body, err := json.Marshal(inc)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "incident publisher: failed to marshal incident", err)
	}

	delaySec := min(max(int32(delay.Seconds()), 0), maxDelaySeconds)

	_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:     aws.String(p.queueURL),
		MessageBody:  aws.String(string(body)),
		DelaySeconds: delaySec,
	})
	if err != nil {
		return types.NewAppError(types.ErrCodeUpstreamQueue,
			fmt.Sprintf("incident publisher: failed to send message to %s", p.queueURL), err)
	}

	p.logger.Info("incident published",
		"incident_id", inc.ID,
		"error_class", inc.ErrorClass,
		"retry_count", inc.RetryCount,
		"delay_seconds", delaySec,
		"trace_id", inc.TraceID,
	)
	return nil
}
