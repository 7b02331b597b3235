package outbound

import (
	"context"

	"github.com/shini559/Gaming-advisor-sub000/internal/domain/messaging"
	"github.com/shini559/Gaming-advisor-sub000/internal/domain/valueobject"
)

// JobQueue defines the outbound port for the durable processing queue.
// Enqueued jobs survive process restarts; a job is only removed from the
// queue by a consuming worker.
type JobQueue interface {
	// Enqueue pushes a job, records its payload and initial queued
	// status, and returns the job ID.
	Enqueue(ctx context.Context, job *messaging.ProcessingJob) (string, error)

	// Dequeue blocks up to the configured timeout for the next job.
	// Returns (nil, nil) when the timeout elapses with no job available,
	// and also when a popped job has an expired or unreadable payload,
	// so the consuming loop just continues.
	Dequeue(ctx context.Context) (*messaging.ProcessingJob, error)

	// MarkProcessing records that a worker picked the job up.
	MarkProcessing(ctx context.Context, jobID string) error

	// MarkCompleted records that the job finished successfully.
	MarkCompleted(ctx context.Context, jobID string) error

	// MarkFailed records the failure and its message. Error records are
	// kept alongside status records so failures stay inspectable.
	MarkFailed(ctx context.Context, jobID string, errorMessage string) error

	// Retry re-enqueues a failed job under the same job ID with its
	// retry counter advanced. Returns false without error when the
	// retry budget is exhausted.
	Retry(ctx context.Context, job *messaging.ProcessingJob) (bool, error)

	// GetStatus returns the recorded status for a job ID. Returns an
	// empty status when the record is unknown or has expired.
	GetStatus(ctx context.Context, jobID string) (valueobject.JobStatus, error)

	// QueueLength returns the number of jobs waiting in the queue.
	QueueLength(ctx context.Context) (int64, error)

	// Ping verifies connectivity with the queue backend.
	Ping(ctx context.Context) error

	// Close releases the queue connection.
	Close() error
}
