package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shini559/Gaming-advisor-sub000/internal/application/common/slogger"
	"github.com/shini559/Gaming-advisor-sub000/internal/port/inbound"
)

// defaultShutdownTimeout bounds Stop when no timeout is configured.
const defaultShutdownTimeout = 30 * time.Second

// WorkerServiceConfig holds configuration for the worker service.
type WorkerServiceConfig struct {
	// ShutdownTimeout bounds how long Stop waits for all consumers to
	// drain their in-flight jobs.
	ShutdownTimeout time.Duration
}

// DefaultWorkerService owns the lifecycle of the registered queue
// consumers and aggregates their health and metrics together with the
// job processor's.
type DefaultWorkerService struct {
	config       WorkerServiceConfig
	consumers    map[string]inbound.Consumer
	jobProcessor inbound.JobProcessor
	running      bool
	startTime    time.Time
	mu           sync.RWMutex
}

// NewDefaultWorkerService creates a worker service. Consumers are
// registered with AddConsumer before Start.
func NewDefaultWorkerService(
	serviceConfig WorkerServiceConfig,
	jobProcessor inbound.JobProcessor,
) inbound.WorkerService {
	if serviceConfig.ShutdownTimeout <= 0 {
		serviceConfig.ShutdownTimeout = defaultShutdownTimeout
	}
	return &DefaultWorkerService{
		config:       serviceConfig,
		jobProcessor: jobProcessor,
		consumers:    make(map[string]inbound.Consumer),
		startTime:    time.Now(),
	}
}

// Start launches every registered consumer. A consumer that fails to
// start rolls back the ones already started.
func (w *DefaultWorkerService) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return errors.New("worker service already running")
	}
	if len(w.consumers) == 0 {
		return errors.New("no consumers registered")
	}

	started := make([]inbound.Consumer, 0, len(w.consumers))
	for id, consumer := range w.consumers {
		if err := consumer.Start(ctx); err != nil {
			for _, s := range started {
				if stopErr := s.Stop(ctx); stopErr != nil {
					slogger.Warn(ctx, "Failed to stop consumer during startup rollback", slogger.Fields{
						"consumer_id": s.ID(),
						"error":       stopErr.Error(),
					})
				}
			}
			return fmt.Errorf("failed to start consumer %s: %w", id, err)
		}
		started = append(started, consumer)
	}

	w.running = true
	w.startTime = time.Now()

	slogger.Info(ctx, "Worker service started", slogger.Fields{
		"consumers": len(w.consumers),
	})
	return nil
}

// Stop shuts down every consumer, bounded by the shutdown timeout.
// Stopping a stopped service is a no-op. Consumers are stopped outside
// the service lock so health queries keep answering during the drain.
func (w *DefaultWorkerService) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	consumers := make([]inbound.Consumer, 0, len(w.consumers))
	for _, consumer := range w.consumers {
		consumers = append(consumers, consumer)
	}
	w.mu.Unlock()

	stopCtx, cancel := context.WithTimeout(ctx, w.config.ShutdownTimeout)
	defer cancel()

	var errs []error
	for _, consumer := range consumers {
		if err := consumer.Stop(stopCtx); err != nil {
			errs = append(errs, fmt.Errorf("consumer %s: %w", consumer.ID(), err))
		}
	}

	slogger.Info(ctx, "Worker service stopped", slogger.Fields{
		"consumers": len(consumers),
		"errors":    len(errs),
	})
	return errors.Join(errs...)
}

// Health returns the aggregated health of the service, its consumers,
// and the job processor.
func (w *DefaultWorkerService) Health() inbound.WorkerServiceHealthStatus {
	w.mu.RLock()
	defer w.mu.RUnlock()

	health := inbound.WorkerServiceHealthStatus{
		IsRunning:       w.running,
		TotalConsumers:  len(w.consumers),
		LastHealthCheck: time.Now(),
	}
	if w.running {
		health.ServiceUptime = time.Since(w.startTime)
	}

	healthy := 0
	details := make([]inbound.ConsumerHealthStatus, 0, len(w.consumers))
	for _, consumer := range w.consumers {
		consumerHealth := consumer.Health()
		details = append(details, consumerHealth)
		if consumerHealth.IsRunning && consumerHealth.IsConnected {
			healthy++
		}
	}
	health.HealthyConsumers = healthy
	health.UnhealthyConsumers = health.TotalConsumers - healthy
	health.ConsumerHealthDetails = details

	if w.jobProcessor != nil {
		health.JobProcessorHealth = w.jobProcessor.GetHealthStatus()
	}

	return health
}

// GetMetrics returns aggregated metrics across all consumers and the
// job processor. Totals are computed fresh on every call.
func (w *DefaultWorkerService) GetMetrics() inbound.WorkerServiceMetrics {
	w.mu.RLock()
	defer w.mu.RUnlock()

	metrics := inbound.WorkerServiceMetrics{
		ServiceStartTime: w.startTime,
		ConsumerMetrics:  make([]inbound.ConsumerStats, 0, len(w.consumers)),
	}

	for _, consumer := range w.consumers {
		stats := consumer.GetStats()
		metrics.ConsumerMetrics = append(metrics.ConsumerMetrics, stats)
		metrics.TotalJobsProcessed += stats.JobsProcessed
		metrics.TotalJobsFailed += stats.JobsFailed
	}

	if w.jobProcessor != nil {
		metrics.JobProcessorMetrics = w.jobProcessor.GetMetrics()
	}

	return metrics
}

// AddConsumer registers a consumer. Registration is only allowed while
// the service is stopped.
func (w *DefaultWorkerService) AddConsumer(consumer inbound.Consumer) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if consumer == nil {
		return errors.New("consumer cannot be nil")
	}
	if w.running {
		return errors.New("cannot add consumer while service is running")
	}

	id := consumer.ID()
	if id == "" {
		id = fmt.Sprintf("consumer-%d", len(w.consumers))
	}
	if _, exists := w.consumers[id]; exists {
		return fmt.Errorf("consumer %s already registered", id)
	}

	w.consumers[id] = consumer
	return nil
}
