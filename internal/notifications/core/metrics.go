package core

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"tasknotifier/internal/types"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchDispatchMetrics implements DispatchMetrics on CloudWatch.
//
// Metrics emitted:
//   - IncidentDelivery: Dims {Mode, Result}
//   - IncidentDropped: Dims {Reason}
//   - IncidentDeliveryLatency: Dims {Mode}
//   - IncidentQueueLag: no dims
//   - ArchiveParts: no dims
type CloudWatchDispatchMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    types.Logger
}

var _ DispatchMetrics = (*CloudWatchDispatchMetrics)(nil)

// NewCloudWatchDispatchMetrics publishes to namespace, or to
// types.MetricNamespace when namespace is empty.
func NewCloudWatchDispatchMetrics(client CloudWatchClient, namespace string, logger types.Logger) *CloudWatchDispatchMetrics {
	if namespace == "" {
		namespace = types.MetricNamespace
	}
	if logger == nil {
		logger = types.NopLogger{}
	}
	return &CloudWatchDispatchMetrics{client: client, namespace: namespace, logger: logger}
}

func (m *CloudWatchDispatchMetrics) RecordDelivery(ctx context.Context, mode types.DispatchMode, outcome types.DeliveryOutcome) {
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricIncidentDelivery),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: []cwtypes.Dimension{
			{Name: aws.String(types.DimMode), Value: aws.String(string(mode))},
			{Name: aws.String(types.DimResult), Value: aws.String(string(outcome))},
		},
	})
}

func (m *CloudWatchDispatchMetrics) RecordDropped(ctx context.Context, reason string) {
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricIncidentDropped),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: []cwtypes.Dimension{
			{Name: aws.String(types.DimReason), Value: aws.String(reason)},
		},
	})
}

// RecordLatency is recorded in milliseconds for CloudWatch precision.
func (m *CloudWatchDispatchMetrics) RecordLatency(ctx context.Context, mode types.DispatchMode, d time.Duration) {
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricDeliveryLatency),
		Value:      aws.Float64(float64(d.Milliseconds())),
		Unit:       cwtypes.StandardUnitMilliseconds,
		Dimensions: []cwtypes.Dimension{
			{Name: aws.String(types.DimMode), Value: aws.String(string(mode))},
		},
	})
}

func (m *CloudWatchDispatchMetrics) RecordQueueLag(ctx context.Context, lag time.Duration) {
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricQueueLag),
		Value:      aws.Float64(float64(lag.Milliseconds())),
		Unit:       cwtypes.StandardUnitMilliseconds,
	})
}

func (m *CloudWatchDispatchMetrics) RecordArchiveParts(ctx context.Context, parts int) {
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricArchiveParts),
		Value:      aws.Float64(float64(parts)),
		Unit:       cwtypes.StandardUnitCount,
	})
}

func (m *CloudWatchDispatchMetrics) put(ctx context.Context, datum cwtypes.MetricDatum) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{datum},
	}
	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to record metric",
			"error", err.Error(),
			"metric", aws.ToString(datum.MetricName),
		)
	}
}
