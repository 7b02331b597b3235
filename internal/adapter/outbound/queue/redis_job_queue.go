// Package queue provides job queue implementations for image processing.
// The Redis-backed queue is the production implementation; the in-memory
// queue serves tests and local development.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shini559/Gaming-advisor-sub000/internal/application/common/slogger"
	"github.com/shini559/Gaming-advisor-sub000/internal/config"
	"github.com/shini559/Gaming-advisor-sub000/internal/domain/messaging"
	"github.com/shini559/Gaming-advisor-sub000/internal/domain/valueobject"
)

// Key prefixes for per-job records. Every record is written with the job
// TTL so records of abandoned jobs expire on their own instead of
// accumulating.
const (
	jobDataKeyPrefix   = "job_data:"
	jobStatusKeyPrefix = "job_status:"
	jobErrorKeyPrefix  = "job_error:"
)

// Defaults applied when the corresponding config values are unset. They
// match the documented queue contract.
const (
	defaultQueueName      = "image_processing_queue"
	defaultDequeueTimeout = 30 * time.Second
	defaultJobTTL         = 24 * time.Hour
)

// Client connection timeouts. The read timeout only bounds non-blocking
// commands; the client derives the deadline for BRPOP from the command's
// own block timeout.
const (
	redisDialTimeout  = 10 * time.Second
	redisReadTimeout  = 30 * time.Second
	redisWriteTimeout = 30 * time.Second
)

// RedisJobQueue is the durable queue backing image processing. Jobs wait
// as IDs on a Redis list while the payload, status, and error records
// live in separate TTL'd keys per job. A job leaves the list only when a
// worker pops it, so queued work survives process restarts.
type RedisJobQueue struct {
	config config.RedisConfig
	client *redis.Client
}

// NewRedisJobQueue creates a queue over the configured Redis instance.
// The client connects lazily on first use, so construction succeeds even
// while Redis is unreachable; use Ping to verify connectivity.
func NewRedisJobQueue(cfg config.RedisConfig) *RedisJobQueue {
	if cfg.QueueName == "" {
		cfg.QueueName = defaultQueueName
	}
	if cfg.DequeueTimeout <= 0 {
		cfg.DequeueTimeout = defaultDequeueTimeout
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = defaultJobTTL
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  redisDialTimeout,
		ReadTimeout:  redisReadTimeout,
		WriteTimeout: redisWriteTimeout,
	})

	return &RedisJobQueue{
		config: cfg,
		client: client,
	}
}

// Enqueue records the job payload and a queued status, then pushes the
// job ID onto the queue. Returns the job ID on success.
func (q *RedisJobQueue) Enqueue(ctx context.Context, job *messaging.ProcessingJob) (string, error) {
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

	if err := q.client.Set(ctx, jobDataKey(job.JobID), payload, q.config.JobTTL).Err(); err != nil {
		return "", fmt.Errorf("failed to store payload for job %s: %w", job.JobID, err)
	}
	if err := q.setStatus(ctx, job.JobID, valueobject.JobStatusQueued); err != nil {
		return "", err
	}
	if err := q.client.LPush(ctx, q.config.QueueName, job.JobID).Err(); err != nil {
		return "", fmt.Errorf("failed to push job %s onto %s: %w", job.JobID, q.config.QueueName, err)
	}

	slogger.Info(ctx, "Enqueued processing job", slogger.Fields{
		"job_id":   job.JobID,
		"image_id": job.ImageID.String(),
		"queue":    q.config.QueueName,
	})

	return job.JobID, nil
}

// Dequeue blocks up to the configured timeout for the next job ID, then
// loads and parses its payload. Returns (nil, nil) when the timeout
// elapses, when the payload has expired, or when the payload is
// unreadable; the unreadable case also records the failure so the poison
// payload does not circulate.
func (q *RedisJobQueue) Dequeue(ctx context.Context) (*messaging.ProcessingJob, error) {
	result, err := q.client.BRPop(ctx, q.config.DequeueTimeout, q.config.QueueName).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to pop from %s: %w", q.config.QueueName, err)
	}

	// BRPOP returns [queue name, value].
	jobID := result[1]

	payload, err := q.client.Get(ctx, jobDataKey(jobID)).Result()
	if errors.Is(err, redis.Nil) {
		slogger.Warn(ctx, "Dropping job with expired payload", slogger.Fields{
			"job_id": jobID,
		})
		return nil, nil
	}
	if err != nil {
		// The ID already left the list, so a read failure here loses
		// the job. Log it so the loss is traceable.
		slogger.Error(ctx, "Failed to load payload for popped job", slogger.Fields{
			"job_id": jobID,
			"error":  err.Error(),
		})
		return nil, fmt.Errorf("failed to load payload for job %s: %w", jobID, err)
	}

	job, err := messaging.UnmarshalProcessingJob([]byte(payload))
	if err != nil {
		slogger.Error(ctx, "Dropping unreadable job payload", slogger.Fields{
			"job_id": jobID,
			"error":  err.Error(),
		})
		if markErr := q.MarkFailed(ctx, jobID, err.Error()); markErr != nil {
			slogger.Error(ctx, "Failed to record unreadable payload failure", slogger.Fields{
				"job_id": jobID,
				"error":  markErr.Error(),
			})
		}
		return nil, nil
	}

	return job, nil
}

// MarkProcessing records that a worker picked the job up.
func (q *RedisJobQueue) MarkProcessing(ctx context.Context, jobID string) error {
	return q.setStatus(ctx, jobID, valueobject.JobStatusProcessing)
}

// MarkCompleted records that the job finished successfully.
func (q *RedisJobQueue) MarkCompleted(ctx context.Context, jobID string) error {
	return q.setStatus(ctx, jobID, valueobject.JobStatusCompleted)
}

// MarkFailed records the failure message and then the failed status. The
// error record is written first so an observed failed status always has
// its message available.
func (q *RedisJobQueue) MarkFailed(ctx context.Context, jobID string, errorMessage string) error {
	if jobID == "" {
		return errors.New("job ID is required")
	}

	if err := q.client.Set(ctx, jobErrorKey(jobID), errorMessage, q.config.JobTTL).Err(); err != nil {
		return fmt.Errorf("failed to record error for job %s: %w", jobID, err)
	}

	return q.setStatus(ctx, jobID, valueobject.JobStatusFailed)
}

// Retry re-enqueues the job under the same job ID with its retry counter
// advanced, so status and error records stay correlated across attempts.
// Returns false without error when the retry budget is exhausted.
func (q *RedisJobQueue) Retry(ctx context.Context, job *messaging.ProcessingJob) (bool, error) {
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

	if err := q.client.Set(ctx, jobDataKey(job.JobID), payload, q.config.JobTTL).Err(); err != nil {
		return false, fmt.Errorf("failed to store retry payload for job %s: %w", job.JobID, err)
	}
	if err := q.setStatus(ctx, job.JobID, valueobject.JobStatusRetrying); err != nil {
		return false, err
	}
	if err := q.client.LPush(ctx, q.config.QueueName, job.JobID).Err(); err != nil {
		return false, fmt.Errorf("failed to push retry of job %s onto %s: %w", job.JobID, q.config.QueueName, err)
	}

	slogger.Info(ctx, "Re-enqueued failed job", slogger.Fields{
		"job_id":      job.JobID,
		"retry_count": job.RetryCount,
		"max_retries": job.MaxRetries,
	})

	return true, nil
}

// GetStatus returns the recorded status for a job ID. Returns an empty
// status without error when the record is unknown or has expired.
func (q *RedisJobQueue) GetStatus(ctx context.Context, jobID string) (valueobject.JobStatus, error) {
	if jobID == "" {
		return "", errors.New("job ID is required")
	}

	value, err := q.client.Get(ctx, jobStatusKey(jobID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read status for job %s: %w", jobID, err)
	}

	status, err := valueobject.NewJobStatus(value)
	if err != nil {
		return "", fmt.Errorf("job %s has unrecognized status record: %w", jobID, err)
	}

	return status, nil
}

// QueueLength returns the number of jobs waiting in the queue.
func (q *RedisJobQueue) QueueLength(ctx context.Context) (int64, error) {
	length, err := q.client.LLen(ctx, q.config.QueueName).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read length of %s: %w", q.config.QueueName, err)
	}
	return length, nil
}

// Ping verifies connectivity with Redis.
func (q *RedisJobQueue) Ping(ctx context.Context) error {
	if err := q.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Close releases the client connection pool.
func (q *RedisJobQueue) Close() error {
	return q.client.Close()
}

func (q *RedisJobQueue) setStatus(ctx context.Context, jobID string, status valueobject.JobStatus) error {
	if jobID == "" {
		return errors.New("job ID is required")
	}
	if err := q.client.Set(ctx, jobStatusKey(jobID), status.String(), q.config.JobTTL).Err(); err != nil {
		return fmt.Errorf("failed to set status %s for job %s: %w", status, jobID, err)
	}
	return nil
}

func jobDataKey(jobID string) string {
	return jobDataKeyPrefix + jobID
}

func jobStatusKey(jobID string) string {
	return jobStatusKeyPrefix + jobID
}

func jobErrorKey(jobID string) string {
	return jobErrorKeyPrefix + jobID
}
