package types

// Telemetry metric names for CloudWatch.
// All components MUST use these constants.
const (
	// Metric Names
	MetricIncidentDelivery = "IncidentDelivery"
	MetricIncidentDropped  = "IncidentDropped"
	MetricDeliveryLatency  = "IncidentDeliveryLatency"
	MetricQueueLag         = "IncidentQueueLag"
	MetricArchiveParts     = "ArchiveParts"

	// Dimension Keys
	DimResult = "Result"
	DimReason = "Reason"
	DimMode   = "Mode"

	// Metric Namespace
	MetricNamespace = "TaskNotifier"
)
