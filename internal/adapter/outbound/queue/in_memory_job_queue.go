package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shini559/Gaming-advisor-sub000/internal/domain/messaging"
	"github.com/shini559/Gaming-advisor-sub000/internal/domain/valueobject"
)

// defaultInMemoryCapacity bounds the in-memory queue the way Redis memory
// bounds the production queue.
const defaultInMemoryCapacity = 1024

// defaultInMemoryDequeueTimeout keeps empty-queue waits short enough for
// test loops.
const defaultInMemoryDequeueTimeout = 100 * time.Millisecond

// InMemoryJobQueue is a process-local implementation of the job queue,
// designed primarily for testing and development use cases. It mirrors
// the Redis queue's record model: job IDs wait in a FIFO channel while
// payload, status, and error records live in per-job maps.
type InMemoryJobQueue struct {
	dequeueTimeout time.Duration

	mu       sync.Mutex
	jobs     chan string
	payloads map[string][]byte
	statuses map[string]valueobject.JobStatus
	failures map[string]string
	closed   bool
}

// NewInMemoryJobQueue creates an empty in-memory queue. A non-positive
// dequeueTimeout falls back to a short default suited to tests.
func NewInMemoryJobQueue(dequeueTimeout time.Duration) *InMemoryJobQueue {
	if dequeueTimeout <= 0 {
		dequeueTimeout = defaultInMemoryDequeueTimeout
	}
	return &InMemoryJobQueue{
		dequeueTimeout: dequeueTimeout,
		jobs:           make(chan string, defaultInMemoryCapacity),
		payloads:       make(map[string][]byte),
		statuses:       make(map[string]valueobject.JobStatus),
		failures:       make(map[string]string),
	}
}

// Enqueue records the job payload and a queued status, then pushes the
// job ID onto the queue.
func (q *InMemoryJobQueue) Enqueue(_ context.Context, job *messaging.ProcessingJob) (string, error) {
	if job == nil {
		return "", errors.New("job cannot be nil")
	}
	if err := job.Validate(); err != nil {
		return "", fmt.Errorf("refusing to enqueue invalid job: %w", err)
	}

	payload, err := job.Marshal()
	if err != nil {
		return "", err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return "", errors.New("queue is closed")
	}

	select {
	case q.jobs <- job.JobID:
	default:
		return "", fmt.Errorf("queue capacity %d exceeded", cap(q.jobs))
	}

	q.payloads[job.JobID] = payload
	q.statuses[job.JobID] = valueobject.JobStatusQueued

	return job.JobID, nil
}

// Dequeue waits up to the configured timeout for the next job. Returns
// (nil, nil) on timeout, on a missing payload, and on an unreadable
// payload, matching the Redis queue's behavior.
func (q *InMemoryJobQueue) Dequeue(ctx context.Context) (*messaging.ProcessingJob, error) {
	timer := time.NewTimer(q.dequeueTimeout)
	defer timer.Stop()

	var jobID string
	select {
	case jobID = <-q.jobs:
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	q.mu.Lock()
	payload, found := q.payloads[jobID]
	q.mu.Unlock()

	if !found {
		return nil, nil
	}

	job, err := messaging.UnmarshalProcessingJob(payload)
	if err != nil {
		q.mu.Lock()
		q.failures[jobID] = err.Error()
		q.statuses[jobID] = valueobject.JobStatusFailed
		q.mu.Unlock()
		return nil, nil
	}

	return job, nil
}

// MarkProcessing records that a worker picked the job up.
func (q *InMemoryJobQueue) MarkProcessing(_ context.Context, jobID string) error {
	return q.setStatus(jobID, valueobject.JobStatusProcessing)
}

// MarkCompleted records that the job finished successfully.
func (q *InMemoryJobQueue) MarkCompleted(_ context.Context, jobID string) error {
	return q.setStatus(jobID, valueobject.JobStatusCompleted)
}

// MarkFailed records the failure message and the failed status.
func (q *InMemoryJobQueue) MarkFailed(_ context.Context, jobID string, errorMessage string) error {
	if jobID == "" {
		return errors.New("job ID is required")
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.failures[jobID] = errorMessage
	q.statuses[jobID] = valueobject.JobStatusFailed
	return nil
}

// Retry re-enqueues the job under the same job ID with its retry counter
// advanced. Returns false without error when the retry budget is
// exhausted.
func (q *InMemoryJobQueue) Retry(_ context.Context, job *messaging.ProcessingJob) (bool, error) {
	if job == nil {
		return false, errors.New("job cannot be nil")
	}
	if !job.CanRetry() {
		return false, nil
	}
	if err := job.AdvanceRetry(); err != nil {
		return false, err
	}

	payload, err := job.Marshal()
	if err != nil {
		return false, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false, errors.New("queue is closed")
	}

	select {
	case q.jobs <- job.JobID:
	default:
		return false, fmt.Errorf("queue capacity %d exceeded", cap(q.jobs))
	}

	q.payloads[job.JobID] = payload
	q.statuses[job.JobID] = valueobject.JobStatusRetrying

	return true, nil
}

// GetStatus returns the recorded status for a job ID, or an empty status
// when no record exists.
func (q *InMemoryJobQueue) GetStatus(_ context.Context, jobID string) (valueobject.JobStatus, error) {
	if jobID == "" {
		return "", errors.New("job ID is required")
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	return q.statuses[jobID], nil
}

// QueueLength returns the number of jobs waiting in the queue.
func (q *InMemoryJobQueue) QueueLength(_ context.Context) (int64, error) {
	return int64(len(q.jobs)), nil
}

// Ping reports whether the queue is still open.
func (q *InMemoryJobQueue) Ping(_ context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return errors.New("queue is closed")
	}
	return nil
}

// Close stops the queue from accepting further jobs.
func (q *InMemoryJobQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	return nil
}

// RecordedError returns the failure message recorded for a job ID, if
// any. It exists for assertions in tests.
func (q *InMemoryJobQueue) RecordedError(jobID string) (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	message, found := q.failures[jobID]
	return message, found
}

func (q *InMemoryJobQueue) setStatus(jobID string, status valueobject.JobStatus) error {
	if jobID == "" {
		return errors.New("job ID is required")
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.statuses[jobID] = status
	return nil
}
