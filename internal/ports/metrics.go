package ports

// Metric names shared by the forwarder, the broker client and the stats command.
const (
	MetricPublished       = "canary_forwarder_published_total"
	MetricPublishFailures = "canary_forwarder_publish_failures_total"
	MetricPublishNacks    = "canary_forwarder_publish_nacks_total"
	MetricTagErrors       = "canary_forwarder_tag_errors_total"
	MetricCycleErrors     = "canary_forwarder_cycle_errors_total"
	MetricTagsLoaded      = "canary_forwarder_tags_loaded"
	MetricBrokerConnected = "canary_forwarder_broker_connected"
	MetricCycleDuration   = "canary_forwarder_cycle_duration_seconds"
)
