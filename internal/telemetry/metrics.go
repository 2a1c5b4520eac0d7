package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/askanna-io/askanna-core"
)

// Metrics holds the OpenTelemetry metric instruments.
type Metrics struct {
	// Run lifecycle metrics
	RunsCreatedTotal   metric.Int64Counter
	RunsCompletedTotal metric.Int64Counter
	RunsFailedTotal    metric.Int64Counter
	RunDuration        metric.Float64Histogram

	// Scheduler metrics
	SchedulerTicksTotal  metric.Int64Counter
	SchedulesFiredTotal  metric.Int64Counter
	SchedulesMissedTotal metric.Int64Counter
	ScheduleTickDuration metric.Float64Histogram

	// File store metrics
	UploadPartsTotal  metric.Int64Counter
	UploadBytesTotal  metric.Int64Counter
	UploadsCompleted  metric.Int64Counter
	UploadsConflicted metric.Int64Counter

	// Log queue metrics
	LogLinesAppendedTotal metric.Int64Counter
	LogFlushesTotal       metric.Int64Counter

	// Notification metrics
	MailsSentTotal   metric.Int64Counter
	MailsFailedTotal metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it lazily.
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates and registers all metric instruments.
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	m.RunsCreatedTotal, _ = meter.Int64Counter(
		"askanna.runs.created.total",
		metric.WithDescription("Total number of runs created"),
		metric.WithUnit("{run}"),
	)
	m.RunsCompletedTotal, _ = meter.Int64Counter(
		"askanna.runs.completed.total",
		metric.WithDescription("Total number of runs that reached COMPLETED"),
		metric.WithUnit("{run}"),
	)
	m.RunsFailedTotal, _ = meter.Int64Counter(
		"askanna.runs.failed.total",
		metric.WithDescription("Total number of runs that reached FAILED"),
		metric.WithUnit("{run}"),
	)
	m.RunDuration, _ = meter.Float64Histogram(
		"askanna.runs.duration",
		metric.WithDescription("Wall clock duration of finished runs"),
		metric.WithUnit("s"),
	)

	m.SchedulerTicksTotal, _ = meter.Int64Counter(
		"askanna.scheduler.ticks.total",
		metric.WithDescription("Total number of scheduler ticks"),
		metric.WithUnit("{tick}"),
	)
	m.SchedulesFiredTotal, _ = meter.Int64Counter(
		"askanna.scheduler.fired.total",
		metric.WithDescription("Total number of schedules fired"),
		metric.WithUnit("{schedule}"),
	)
	m.SchedulesMissedTotal, _ = meter.Int64Counter(
		"askanna.scheduler.missed.total",
		metric.WithDescription("Total number of schedule fires skipped past the grace window"),
		metric.WithUnit("{schedule}"),
	)
	m.ScheduleTickDuration, _ = meter.Float64Histogram(
		"askanna.scheduler.tick.duration",
		metric.WithDescription("Duration of scheduler ticks"),
		metric.WithUnit("ms"),
	)

	m.UploadPartsTotal, _ = meter.Int64Counter(
		"askanna.uploads.parts.total",
		metric.WithDescription("Total number of uploaded file parts"),
		metric.WithUnit("{part}"),
	)
	m.UploadBytesTotal, _ = meter.Int64Counter(
		"askanna.uploads.bytes.total",
		metric.WithDescription("Total bytes accepted through the chunked upload protocol"),
		metric.WithUnit("By"),
	)
	m.UploadsCompleted, _ = meter.Int64Counter(
		"askanna.uploads.completed.total",
		metric.WithDescription("Total number of completed uploads"),
		metric.WithUnit("{upload}"),
	)
	m.UploadsConflicted, _ = meter.Int64Counter(
		"askanna.uploads.conflicted.total",
		metric.WithDescription("Total number of uploads rejected on integrity mismatch"),
		metric.WithUnit("{upload}"),
	)

	m.LogLinesAppendedTotal, _ = meter.Int64Counter(
		"askanna.logs.lines.total",
		metric.WithDescription("Total number of log lines appended to run queues"),
		metric.WithUnit("{line}"),
	)
	m.LogFlushesTotal, _ = meter.Int64Counter(
		"askanna.logs.flushes.total",
		metric.WithDescription("Total number of log queue flushes to the file store"),
		metric.WithUnit("{flush}"),
	)

	m.MailsSentTotal, _ = meter.Int64Counter(
		"askanna.notifications.mails.sent.total",
		metric.WithDescription("Total number of notification mails sent"),
		metric.WithUnit("{mail}"),
	)
	m.MailsFailedTotal, _ = meter.Int64Counter(
		"askanna.notifications.mails.failed.total",
		metric.WithDescription("Total number of notification mails that failed to send"),
		metric.WithUnit("{mail}"),
	)

	return m
}
