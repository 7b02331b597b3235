// Package worker provides OpenTelemetry metrics integration for image job
// processing. Histograms capture job latency; counters track outcomes and
// pipeline throughput per worker instance.
package worker

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names following OpenTelemetry semantic conventions.
const (
	JobDurationHistogramName  = "worker_job_duration_seconds"
	JobCounterName            = "worker_jobs_total"
	JobRetryCounterName       = "worker_job_retries_total"
	ImagesAnalyzedCounterName = "worker_images_analyzed_total"
	EmbeddingsCounterName     = "worker_embeddings_created_total"
	VectorsStoredCounterName  = "worker_vectors_stored_total"
	DownloadBytesCounterName  = "worker_download_bytes_total"
)

// Common attribute keys for consistent labeling.
const (
	AttrJobResult    = "job_result"    // completed, failed
	AttrFailureStage = "failure_stage" // pipeline stage that raised the error
	AttrRetryAttempt = "retry_attempt" // 1, 2, 3, etc.
	AttrWorkerID     = "worker_id"     // worker instance identifier
)

// JobMetrics provides OpenTelemetry-based metrics collection for image job
// processing. A nil *JobMetrics is valid and records nothing.
type JobMetrics struct {
	// Histogram for timing measurements
	jobDuration metric.Float64Histogram

	// Counters for event counting
	jobsTotal         metric.Int64Counter
	retriesTotal      metric.Int64Counter
	imagesAnalyzed    metric.Int64Counter
	embeddingsCreated metric.Int64Counter
	vectorsStored     metric.Int64Counter
	downloadBytes     metric.Int64Counter

	// Worker identification for consistent labeling
	workerID string
}

// NewJobMetrics creates a new OpenTelemetry metrics collector for image job
// processing.
func NewJobMetrics(workerID string) (*JobMetrics, error) {
	meter := otel.Meter("gameadvisor/worker", metric.WithInstrumentationVersion("1.0.0"))

	// jobLatencyBuckets defines bucket boundaries for full-job latencies.
	// An image job spans a download, three vision calls and the embedding
	// requests, so typical durations run from seconds to a few minutes.
	jobLatencyBuckets := []float64{
		0.5,   // 500ms
		1.0,   // 1s
		2.5,   // 2.5s
		5.0,   // 5s
		10.0,  // 10s
		20.0,  // 20s
		30.0,  // 30s
		60.0,  // 1min
		120.0, // 2min
		300.0, // 5min
		600.0, // 10min
	}

	jobDuration, err := meter.Float64Histogram(
		JobDurationHistogramName,
		metric.WithDescription("Duration of image processing jobs in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(jobLatencyBuckets...),
	)
	if err != nil {
		return nil, err
	}

	jobsTotal, err := meter.Int64Counter(
		JobCounterName,
		metric.WithDescription("Total number of image jobs processed"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	retriesTotal, err := meter.Int64Counter(
		JobRetryCounterName,
		metric.WithDescription("Total number of job-level retries enqueued"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	imagesAnalyzed, err := meter.Int64Counter(
		ImagesAnalyzedCounterName,
		metric.WithDescription("Total number of images analyzed by the vision model"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	embeddingsCreated, err := meter.Int64Counter(
		EmbeddingsCounterName,
		metric.WithDescription("Total number of content pair embeddings created"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	vectorsStored, err := meter.Int64Counter(
		VectorsStoredCounterName,
		metric.WithDescription("Total number of vector rows stored"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	downloadBytes, err := meter.Int64Counter(
		DownloadBytesCounterName,
		metric.WithDescription("Total bytes downloaded from object storage"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	return &JobMetrics{
		jobDuration:       jobDuration,
		jobsTotal:         jobsTotal,
		retriesTotal:      retriesTotal,
		imagesAnalyzed:    imagesAnalyzed,
		embeddingsCreated: embeddingsCreated,
		vectorsStored:     vectorsStored,
		downloadBytes:     downloadBytes,
		workerID:          workerID,
	}, nil
}

// RecordJobCompleted records a successfully processed job with timing
// information.
func (m *JobMetrics) RecordJobCompleted(ctx context.Context, duration time.Duration) {
	if m == nil {
		return
	}
	attributes := []attribute.KeyValue{
		attribute.String(AttrJobResult, "completed"),
		attribute.String(AttrWorkerID, m.workerID),
	}

	m.jobDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attributes...))
	m.jobsTotal.Add(ctx, 1, metric.WithAttributes(attributes...))
}

// RecordJobFailed records a failed processing attempt with the pipeline
// stage it failed in.
func (m *JobMetrics) RecordJobFailed(ctx context.Context, duration time.Duration, stage string) {
	if m == nil {
		return
	}
	attributes := []attribute.KeyValue{
		attribute.String(AttrJobResult, "failed"),
		attribute.String(AttrFailureStage, stage),
		attribute.String(AttrWorkerID, m.workerID),
	}

	m.jobDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attributes...))
	m.jobsTotal.Add(ctx, 1, metric.WithAttributes(attributes...))
}

// RecordJobRetried records a job re-enqueued for another attempt.
func (m *JobMetrics) RecordJobRetried(ctx context.Context, retryAttempt int) {
	if m == nil {
		return
	}
	attributes := []attribute.KeyValue{
		attribute.Int(AttrRetryAttempt, retryAttempt),
		attribute.String(AttrWorkerID, m.workerID),
	}

	m.retriesTotal.Add(ctx, 1, metric.WithAttributes(attributes...))
}

// RecordImageAnalyzed records one completed vision model analysis.
func (m *JobMetrics) RecordImageAnalyzed(ctx context.Context) {
	if m == nil {
		return
	}
	m.imagesAnalyzed.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrWorkerID, m.workerID),
	))
}

// RecordEmbeddingsCreated records how many pair embeddings a job produced.
func (m *JobMetrics) RecordEmbeddingsCreated(ctx context.Context, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.embeddingsCreated.Add(ctx, int64(count), metric.WithAttributes(
		attribute.String(AttrWorkerID, m.workerID),
	))
}

// RecordVectorStored records one persisted vector row.
func (m *JobMetrics) RecordVectorStored(ctx context.Context) {
	if m == nil {
		return
	}
	m.vectorsStored.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrWorkerID, m.workerID),
	))
}

// RecordDownloadedBytes records bytes fetched from object storage.
func (m *JobMetrics) RecordDownloadedBytes(ctx context.Context, size int64) {
	if m == nil || size <= 0 {
		return
	}
	m.downloadBytes.Add(ctx, size, metric.WithAttributes(
		attribute.String(AttrWorkerID, m.workerID),
	))
}
