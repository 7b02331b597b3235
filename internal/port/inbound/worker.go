package inbound

import (
	"context"
	"time"

	"github.com/shini559/Gaming-advisor-sub000/internal/domain/messaging"
)

// WorkerService owns the consumer fleet of one worker process and
// aggregates their health and metrics.
type WorkerService interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Health() WorkerServiceHealthStatus
	GetMetrics() WorkerServiceMetrics
	AddConsumer(consumer Consumer) error
}

// Consumer pulls jobs from the queue and hands them to a processor.
type Consumer interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Health() ConsumerHealthStatus
	GetStats() ConsumerStats
	ID() string
}

// JobProcessor defines the interface for processing one queued image job.
type JobProcessor interface {
	ProcessJob(ctx context.Context, job *messaging.ProcessingJob) error
	GetHealthStatus() JobProcessorHealthStatus
	GetMetrics() JobProcessorMetrics
}

// ReconciliationService re-enqueues uploaded images whose processing job
// was lost before it reached the queue.
type ReconciliationService interface {
	// Run sweeps periodically until the context is cancelled.
	Run(ctx context.Context)

	// Sweep performs one reconciliation pass and returns the number of
	// re-enqueued images.
	Sweep(ctx context.Context) (int, error)
}

// WorkerServiceHealthStatus is the aggregate health across consumers
// and the shared job processor.
type WorkerServiceHealthStatus struct {
	IsRunning             bool                     `json:"is_running"`
	TotalConsumers        int                      `json:"total_consumers"`
	HealthyConsumers      int                      `json:"healthy_consumers"`
	UnhealthyConsumers    int                      `json:"unhealthy_consumers"`
	ConsumerHealthDetails []ConsumerHealthStatus   `json:"consumer_health_details"`
	JobProcessorHealth    JobProcessorHealthStatus `json:"job_processor_health"`
	LastHealthCheck       time.Time                `json:"last_health_check"`
	ServiceUptime         time.Duration            `json:"service_uptime"`
	LastError             string                   `json:"last_error,omitempty"`
}

// WorkerServiceMetrics sums job counters across all consumers.
type WorkerServiceMetrics struct {
	TotalJobsProcessed  int64               `json:"total_jobs_processed"`
	TotalJobsFailed     int64               `json:"total_jobs_failed"`
	ConsumerMetrics     []ConsumerStats     `json:"consumer_metrics"`
	JobProcessorMetrics JobProcessorMetrics `json:"job_processor_metrics"`
	ServiceStartTime    time.Time           `json:"service_start_time"`
}

// ConsumerHealthStatus reports one consumer's liveness and error
// history. EmptyPollStreak counts consecutive polls without a job.
type ConsumerHealthStatus struct {
	IsRunning       bool      `json:"is_running"`
	IsConnected     bool      `json:"is_connected"`
	LastJobTime     time.Time `json:"last_job_time"`
	JobsHandled     int64     `json:"jobs_handled"`
	ErrorCount      int64     `json:"error_count"`
	LastError       string    `json:"last_error,omitempty"`
	EmptyPollStreak int64     `json:"empty_poll_streak"`
}

// ConsumerStats are the running counters of one consumer.
type ConsumerStats struct {
	JobsReceived       int64         `json:"jobs_received"`
	JobsProcessed      int64         `json:"jobs_processed"`
	JobsFailed         int64         `json:"jobs_failed"`
	EmptyPolls         int64         `json:"empty_polls"`
	AverageProcessTime time.Duration `json:"average_process_time"`
	LastProcessTime    time.Duration `json:"last_process_time"`
	ActiveSince        time.Time     `json:"active_since"`
}

// JobProcessorHealthStatus reports the processor's readiness and the
// jobs currently in flight.
type JobProcessorHealthStatus struct {
	IsReady        bool          `json:"is_ready"`
	ActiveJobs     int           `json:"active_jobs"`
	CompletedJobs  int64         `json:"completed_jobs"`
	FailedJobs     int64         `json:"failed_jobs"`
	AverageJobTime time.Duration `json:"average_job_time"`
	LastJobTime    time.Time     `json:"last_job_time"`
	LastError      string        `json:"last_error,omitempty"`
}

// JobProcessorMetrics count per-stage processing outcomes, including
// the analysis, embedding, and storage steps of each image job.
type JobProcessorMetrics struct {
	TotalJobsProcessed    int64         `json:"total_jobs_processed"`
	TotalJobsFailed       int64         `json:"total_jobs_failed"`
	TotalJobsRetried      int64         `json:"total_jobs_retried"`
	AverageProcessingTime time.Duration `json:"average_processing_time"`
	ImagesAnalyzed        int64         `json:"images_analyzed"`
	EmbeddingsCreated     int64         `json:"embeddings_created"`
	VectorsStored         int64         `json:"vectors_stored"`
	BytesDownloaded       int64         `json:"bytes_downloaded"`
}
