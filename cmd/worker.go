// Package cmd provides command-line interface functionality for the gameadvisor application.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	inqueue "github.com/shini559/Gaming-advisor-sub000/internal/adapter/inbound/queue"
	"github.com/shini559/Gaming-advisor-sub000/internal/adapter/outbound/gcs"
	"github.com/shini559/Gaming-advisor-sub000/internal/adapter/outbound/messaging"
	"github.com/shini559/Gaming-advisor-sub000/internal/adapter/outbound/openai"
	"github.com/shini559/Gaming-advisor-sub000/internal/adapter/outbound/queue"
	"github.com/shini559/Gaming-advisor-sub000/internal/adapter/outbound/repository"
	"github.com/shini559/Gaming-advisor-sub000/internal/application/common/logging"
	"github.com/shini559/Gaming-advisor-sub000/internal/application/common/slogger"
	"github.com/shini559/Gaming-advisor-sub000/internal/application/dto"
	"github.com/shini559/Gaming-advisor-sub000/internal/application/service"
	"github.com/shini559/Gaming-advisor-sub000/internal/application/worker"
	"github.com/shini559/Gaming-advisor-sub000/internal/config"
	"github.com/shini559/Gaming-advisor-sub000/internal/port/inbound"
	"github.com/shini559/Gaming-advisor-sub000/internal/port/outbound"
	"github.com/shini559/Gaming-advisor-sub000/internal/version"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

const (
	defaultHost = "localhost"

	// shutdownTimeout bounds the graceful drain after SIGINT/SIGTERM.
	shutdownTimeout = 30 * time.Second
)

// newWorkerCmd creates and returns the worker command.
func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Start the background worker service",
		Long: `Start the background worker service that processes image jobs from the Redis queue.

The worker service:
- Consumes image processing jobs with configurable concurrency
- Downloads images from object storage and runs OCR, description, and label extraction
- Generates embeddings and stores them for similarity search
- Updates batch progress and publishes lifecycle events over NATS
- Periodically re-enqueues images whose jobs were lost

Configuration is loaded from config files and environment variables.`,
		Run: func(_ *cobra.Command, _ []string) {
			runWorkerService()
		},
	}
}

// workerRuntime bundles the assembled worker with the pieces the
// orchestrator manages directly: the startup health gate, the
// reconciliation loop, and the NATS connection to tear down on exit.
type workerRuntime struct {
	workerService inbound.WorkerService
	healthService inbound.HealthService
	reconciler    inbound.ReconciliationService
	publisher     *messaging.NATSBatchEventPublisher
	imageStore    *gcs.ImageStore
}

func (r *workerRuntime) cleanup() {
	if r.publisher != nil {
		if err := r.publisher.Disconnect(); err != nil {
			slogger.WarnNoCtx("Failed to disconnect NATS publisher", slogger.Fields{"error": err.Error()})
		}
	}
	if r.imageStore != nil {
		if err := r.imageStore.Close(); err != nil {
			slogger.WarnNoCtx("Failed to close image store", slogger.Fields{"error": err.Error()})
		}
	}
}

// runWorkerService starts and runs the worker service.
func runWorkerService() {
	cfg := GetConfig()
	configureLogging(cfg)

	slogger.InfoNoCtx("Starting worker service", slogger.Fields{
		"concurrency": cfg.Worker.Concurrency,
		"queue":       cfg.Redis.QueueName,
		"version":     version.GetVersion().Version,
	})

	dbPool, err := setupDatabaseConnection(cfg)
	if err != nil {
		slogger.ErrorNoCtx("Failed to create database connection pool", slogger.Fields{"error": err.Error()})
		return
	}
	defer dbPool.Close()

	jobQueue := queue.NewRedisJobQueue(cfg.Redis)
	defer func() {
		if closeErr := jobQueue.Close(); closeErr != nil {
			slogger.WarnNoCtx("Failed to close job queue", slogger.Fields{"error": closeErr.Error()})
		}
	}()

	runtime, err := buildWorkerRuntime(cfg, dbPool, jobQueue)
	if err != nil {
		slogger.ErrorNoCtx("Failed to assemble worker service", slogger.Fields{"error": err.Error()})
		return
	}
	defer runtime.cleanup()

	if !startupHealthGate(runtime.healthService) {
		return
	}

	if err := startWorkerService(runtime.workerService); err != nil {
		slogger.ErrorNoCtx("Failed to start worker service", slogger.Fields{"error": err.Error()})
		return
	}

	reconcileCtx, stopReconciler := context.WithCancel(context.Background())
	go runtime.reconciler.Run(reconcileCtx)

	waitForShutdownAndStop(runtime.workerService, stopReconciler)
}

// configureLogging replaces the default logger with one built from the
// app section, so --log-level and --log-format take effect everywhere.
func configureLogging(cfg *config.Config) {
	logger, err := logging.NewApplicationLogger(logging.Config{
		Level:  cfg.App.LogLevel,
		Format: cfg.App.LogFormat,
		Output: "stdout",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid logging configuration, using defaults: %v\n", err)
		return
	}
	slogger.SetGlobalLogger(logger)
}

// setupDatabaseConnection initializes the database connection with defaults.
func setupDatabaseConnection(cfg *config.Config) (*pgxpool.Pool, error) {
	dbConfig := repository.DatabaseConfig{
		Host:           cfg.Database.Host,
		Port:           cfg.Database.Port,
		Database:       cfg.Database.Name,
		Username:       cfg.Database.User,
		Password:       cfg.Database.Password,
		Schema:         "gameadvisor",
		MaxConnections: cfg.Database.MaxConnections,
		SSLMode:        cfg.Database.SSLMode,
	}

	// Set defaults if not configured
	if dbConfig.Host == "" {
		dbConfig.Host = defaultHost
	}
	if dbConfig.Port == 0 {
		dbConfig.Port = 5432
	}
	if dbConfig.MaxConnections == 0 {
		dbConfig.MaxConnections = 10
	}
	if dbConfig.SSLMode == "" {
		dbConfig.SSLMode = "disable"
	}

	return repository.NewDatabaseConnection(dbConfig)
}

// buildWorkerRuntime creates the worker service with all dependencies.
func buildWorkerRuntime(cfg *config.Config, dbPool *pgxpool.Pool, jobQueue outbound.JobQueue) (*workerRuntime, error) {
	// Create repository implementations
	batchRepository := repository.NewPostgreSQLImageBatchRepository(dbPool)
	imageRepository := repository.NewPostgreSQLGameImageRepository(dbPool)
	vectorRepository := repository.NewPostgreSQLGameVectorRepository(dbPool)
	databaseHealth := repository.NewDatabaseHealthChecker(dbPool)

	// Create object storage client
	imageStore, err := gcs.NewImageStore(context.Background(), cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to create image store: %w", err)
	}

	// Create AI processing client
	analysisClient := openai.NewClient(cfg.OpenAI)

	// Connect the NATS event publisher. Events are an optional integration:
	// when NATS is down the worker still processes jobs, it just stays quiet.
	publisher, publisherHealth, natsPublisher := connectEventPublisher(cfg)

	workerID := workerIdentity()

	jobMetrics, err := worker.NewJobMetrics(workerID)
	if err != nil {
		slogger.WarnNoCtx("Failed to create job metrics, continuing without them", slogger.Fields{
			"error": err.Error(),
		})
		jobMetrics = nil
	}

	// Create job processor
	jobProcessor := worker.NewImageJobProcessor(
		worker.JobProcessorConfig{
			MaxConcurrentJobs: cfg.Worker.Concurrency,
			JobTimeout:        cfg.Worker.JobTimeout,
		},
		imageRepository,
		batchRepository,
		vectorRepository,
		imageStore,
		analysisClient,
		jobQueue,
		publisher,
		jobMetrics,
	)

	// Create consumer
	consumer, err := inqueue.NewConsumer(inqueue.ConsumerConfig{
		WorkerID:    workerID,
		Concurrency: cfg.Worker.Concurrency,
	}, jobQueue, jobProcessor)
	if err != nil {
		return nil, fmt.Errorf("failed to create queue consumer: %w", err)
	}

	// Create worker service
	workerService := service.NewDefaultWorkerService(service.WorkerServiceConfig{
		ShutdownTimeout: shutdownTimeout,
	}, jobProcessor)

	if err := workerService.AddConsumer(consumer); err != nil {
		return nil, fmt.Errorf("failed to register consumer: %w", err)
	}

	healthService := service.NewHealthService(
		version.GetVersion().Version,
		databaseHealth,
		jobQueue,
		publisherHealth,
		analysisClient,
	)

	reconciler := service.NewImageReconciliationService(service.ImageReconciliationConfig{
		Interval:       cfg.Worker.ReconcileInterval,
		StaleThreshold: cfg.Worker.StaleThreshold,
		SweepSize:      cfg.Worker.ReconcileSweepSize,
		MaxJobRetries:  cfg.Worker.MaxJobRetries,
	}, imageRepository, jobQueue)

	return &workerRuntime{
		workerService: workerService,
		healthService: healthService,
		reconciler:    reconciler,
		publisher:     natsPublisher,
		imageStore:    imageStore,
	}, nil
}

// connectEventPublisher builds and connects the NATS publisher. On any
// failure the returned interfaces are nil so downstream code skips
// publishing instead of calling through a dead connection.
func connectEventPublisher(cfg *config.Config) (outbound.BatchEventPublisher, outbound.EventPublisherHealth, *messaging.NATSBatchEventPublisher) {
	natsPublisher, err := messaging.NewNATSBatchEventPublisher(cfg.NATS)
	if err != nil {
		slogger.WarnNoCtx("Invalid NATS configuration, batch events disabled", slogger.Fields{
			"error": err.Error(),
		})
		return nil, nil, nil
	}

	if err := natsPublisher.Connect(); err != nil {
		slogger.WarnNoCtx("NATS unavailable, batch events disabled", slogger.Fields{
			"url":   cfg.NATS.URL,
			"error": err.Error(),
		})
		return nil, nil, nil
	}

	if err := natsPublisher.EnsureStream(); err != nil {
		slogger.WarnNoCtx("Failed to ensure NATS stream", slogger.Fields{"error": err.Error()})
	}

	return natsPublisher, natsPublisher, natsPublisher
}

// workerIdentity names this worker instance in logs, metrics, and health
// reports.
func workerIdentity() string {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		return fmt.Sprintf("worker-%d", os.Getpid())
	}
	return hostname
}

// startupHealthGate runs one readiness check before consuming jobs.
// Postgres or Redis down means the worker cannot make progress, so it
// refuses to start. Degraded optional dependencies only log.
func startupHealthGate(healthService inbound.HealthService) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	health, err := healthService.GetHealth(ctx)
	if err != nil {
		slogger.ErrorNoCtx("Startup health check failed", slogger.Fields{"error": err.Error()})
		return false
	}

	for name, dep := range health.Dependencies {
		if dep.Status != dto.DependencyStatusHealthy {
			slogger.WarnNoCtx("Dependency unhealthy at startup", slogger.Fields{
				"dependency": name,
				"message":    dep.Message,
			})
		}
	}

	if health.Status == dto.HealthStatusUnhealthy {
		slogger.ErrorNoCtx("Required dependencies unavailable, refusing to start", nil)
		return false
	}

	return true
}

// startWorkerService starts the worker service.
func startWorkerService(workerService inbound.WorkerService) error {
	ctx := context.Background()
	if err := workerService.Start(ctx); err != nil {
		return err
	}

	slogger.InfoNoCtx("Worker service started successfully", nil)
	return nil
}

// waitForShutdownAndStop waits for shutdown signal and stops the service gracefully.
func waitForShutdownAndStop(workerService inbound.WorkerService, stopReconciler context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	slogger.InfoNoCtx("Received shutdown signal, initiating graceful shutdown", slogger.Fields{
		"signal": sig.String(),
	})

	stopReconciler()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := workerService.Stop(shutdownCtx); err != nil {
		slogger.ErrorNoCtx("Error during worker service shutdown", slogger.Fields{"error": err.Error()})
	} else {
		slogger.InfoNoCtx("Worker service shutdown completed successfully", nil)
	}
}

func init() { //nolint:gochecknoinits // Standard Cobra CLI pattern for command registration
	rootCmd.AddCommand(newWorkerCmd())
}
