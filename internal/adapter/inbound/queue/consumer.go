package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shini559/Gaming-advisor-sub000/internal/application/common/slogger"
	"github.com/shini559/Gaming-advisor-sub000/internal/domain/messaging"
	"github.com/shini559/Gaming-advisor-sub000/internal/port/inbound"
	"github.com/shini559/Gaming-advisor-sub000/internal/port/outbound"
)

const (
	// defaultPollInterval is the pause after a failed dequeue before the
	// next attempt.
	defaultPollInterval = time.Second

	// defaultDrainTimeout bounds how long Stop waits for in-flight jobs.
	defaultDrainTimeout = 30 * time.Second
)

// ConsumerConfig holds configuration for the queue consumer.
type ConsumerConfig struct {
	// WorkerID identifies this consumer in logs and health reports.
	WorkerID string

	// Concurrency is the number of goroutines pulling jobs off the queue.
	Concurrency int

	// PollInterval is the backoff after a dequeue error. Empty polls need
	// no extra pause because the queue blocks internally.
	PollInterval time.Duration

	// DrainTimeout is how long Stop waits for in-flight jobs to finish.
	DrainTimeout time.Duration
}

// Consumer pulls image processing jobs off the job queue and hands them
// to the job processor. It implements inbound.Consumer.
type Consumer struct {
	config    ConsumerConfig
	jobQueue  outbound.JobQueue
	processor inbound.JobProcessor

	running bool
	cancel  context.CancelFunc
	workers sync.WaitGroup
	mu      sync.RWMutex
	stats   inbound.ConsumerStats
	health  inbound.ConsumerHealthStatus
}

// NewConsumer creates a queue consumer after validating its configuration
// and dependencies.
func NewConsumer(
	config ConsumerConfig,
	jobQueue outbound.JobQueue,
	processor inbound.JobProcessor,
) (*Consumer, error) {
	if err := validateConsumerConfig(config); err != nil {
		return nil, fmt.Errorf("invalid consumer configuration: %w", err)
	}
	if jobQueue == nil {
		return nil, errors.New("job queue cannot be nil")
	}
	if processor == nil {
		return nil, errors.New("job processor cannot be nil")
	}

	if config.PollInterval <= 0 {
		config.PollInterval = defaultPollInterval
	}
	if config.DrainTimeout <= 0 {
		config.DrainTimeout = defaultDrainTimeout
	}

	return &Consumer{
		config:    config,
		jobQueue:  jobQueue,
		processor: processor,
		stats: inbound.ConsumerStats{
			ActiveSince: time.Now(),
		},
	}, nil
}

// validateConsumerConfig validates consumer configuration.
func validateConsumerConfig(config ConsumerConfig) error {
	if config.WorkerID == "" {
		return errors.New("worker id cannot be empty")
	}
	if config.Concurrency <= 0 {
		return errors.New("concurrency must be positive")
	}
	return nil
}

// Start launches the consume loops. The consumer's lifetime is governed
// by Stop, not by ctx, which only scopes startup work.
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("consumer %s already running", c.config.WorkerID)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	c.running = true
	c.health.IsRunning = true
	c.stats.ActiveSince = time.Now()

	connected := c.jobQueue.Ping(ctx) == nil
	c.health.IsConnected = connected
	c.mu.Unlock()

	if !connected {
		slogger.Warn(ctx, "Job queue unreachable at consumer start, loops will keep retrying", slogger.Fields{
			"worker_id": c.config.WorkerID,
		})
	}

	for i := 0; i < c.config.Concurrency; i++ {
		c.workers.Add(1)
		go c.run(runCtx)
	}

	slogger.Info(ctx, "Queue consumer started", slogger.Fields{
		"worker_id":   c.config.WorkerID,
		"concurrency": c.config.Concurrency,
	})
	return nil
}

// Stop cancels the consume loops and waits for in-flight jobs to finish,
// bounded by the drain timeout. Stopping a stopped consumer is a no-op.
func (c *Consumer) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	c.health.IsRunning = false
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	cancel()

	done := make(chan struct{})
	go func() {
		c.workers.Wait()
		close(done)
	}()

	timer := time.NewTimer(c.config.DrainTimeout)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		return fmt.Errorf("consumer %s still has jobs in flight after %s",
			c.config.WorkerID, c.config.DrainTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}

	c.mu.Lock()
	c.health.IsConnected = false
	c.mu.Unlock()

	slogger.Info(ctx, "Queue consumer stopped", slogger.Fields{
		"worker_id": c.config.WorkerID,
	})
	return nil
}

// Health returns the current health status of the consumer.
func (c *Consumer) Health() inbound.ConsumerHealthStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.health
}

// GetStats returns consumer statistics.
func (c *Consumer) GetStats() inbound.ConsumerStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

// ID returns the consumer's worker ID.
func (c *Consumer) ID() string {
	return c.config.WorkerID
}

// run is one consume loop. It blocks in Dequeue, so cancellation is
// observed either there or between jobs.
func (c *Consumer) run(ctx context.Context) {
	defer c.workers.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := c.jobQueue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.recordDequeueError(err)
			slogger.Warn(ctx, "Dequeue failed, backing off", slogger.Fields{
				"worker_id": c.config.WorkerID,
				"error":     err.Error(),
			})
			select {
			case <-time.After(c.config.PollInterval):
			case <-ctx.Done():
				return
			}
			continue
		}

		if job == nil {
			c.recordEmptyPoll()
			continue
		}

		c.handleJob(ctx, job)
	}
}

// handleJob runs one job through the processor and records the outcome.
// The processor owns the per-job timeout and detaches the job from ctx,
// so an in-flight job survives consumer shutdown.
func (c *Consumer) handleJob(ctx context.Context, job *messaging.ProcessingJob) {
	slogger.Debug(ctx, "Dequeued job", slogger.Fields{
		"worker_id": c.config.WorkerID,
		"job_id":    job.JobID,
	})

	start := time.Now()
	err := c.processor.ProcessJob(ctx, job)
	c.recordJobOutcome(err, time.Since(start))
}

// recordEmptyPoll notes a dequeue that timed out with no job available.
func (c *Consumer) recordEmptyPoll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.EmptyPolls++
	c.health.EmptyPollStreak++
	c.health.IsConnected = true
}

// recordDequeueError notes a failed dequeue attempt.
func (c *Consumer) recordDequeueError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.health.ErrorCount++
	c.health.LastError = err.Error()
	c.health.IsConnected = false
}

// recordJobOutcome updates statistics after a job attempt.
func (c *Consumer) recordJobOutcome(err error, processTime time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.JobsReceived++
	c.health.EmptyPollStreak = 0
	c.health.IsConnected = true
	c.health.LastJobTime = time.Now()

	if err != nil {
		c.stats.JobsFailed++
		c.health.ErrorCount++
		c.health.LastError = err.Error()
	} else {
		c.stats.JobsProcessed++
		c.health.JobsHandled++
	}

	if c.stats.AverageProcessTime == 0 {
		c.stats.AverageProcessTime = processTime
	} else {
		c.stats.AverageProcessTime = (c.stats.AverageProcessTime*9 + processTime) / 10
	}
	c.stats.LastProcessTime = processTime
}
