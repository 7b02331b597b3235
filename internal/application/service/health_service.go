package service

import (
	"context"
	"time"

	"github.com/shini559/Gaming-advisor-sub000/internal/application/common/slogger"
	"github.com/shini559/Gaming-advisor-sub000/internal/application/dto"
	"github.com/shini559/Gaming-advisor-sub000/internal/port/inbound"
	"github.com/shini559/Gaming-advisor-sub000/internal/port/outbound"
)

// healthCheckTimeout caps each individual dependency probe.
const healthCheckTimeout = 5 * time.Second

// Dependency names used as keys in the health response.
const (
	dependencyPostgres = "postgres"
	dependencyRedis    = "redis"
	dependencyNATS     = "nats"
	dependencyOpenAI   = "openai"
)

// DatabaseHealthChecker reports database connectivity.
type DatabaseHealthChecker interface {
	IsHealthy(ctx context.Context) bool
}

// DefaultHealthService probes every external dependency of the worker.
// Postgres and Redis are required: either one down makes the service
// unhealthy. NATS and the AI endpoint only degrade it, since processing
// can partially proceed without them.
type DefaultHealthService struct {
	version         string
	database        DatabaseHealthChecker
	jobQueue        outbound.JobQueue
	publisherHealth outbound.EventPublisherHealth
	analysis        outbound.ImageAnalysisService
}

// NewHealthService creates a new health service. Optional dependencies may
// be nil; their entries are omitted from the report.
func NewHealthService(
	version string,
	database DatabaseHealthChecker,
	jobQueue outbound.JobQueue,
	publisherHealth outbound.EventPublisherHealth,
	analysis outbound.ImageAnalysisService,
) inbound.HealthService {
	return &DefaultHealthService{
		version:         version,
		database:        database,
		jobQueue:        jobQueue,
		publisherHealth: publisherHealth,
		analysis:        analysis,
	}
}

// GetHealth probes all dependencies and aggregates their status. Probe
// failures are reported in the response, never as an error.
func (s *DefaultHealthService) GetHealth(ctx context.Context) (*dto.HealthResponse, error) {
	dependencies := make(map[string]dto.DependencyStatus)
	requiredDown := false
	optionalDown := false

	if s.database != nil {
		status := s.checkDatabase(ctx)
		dependencies[dependencyPostgres] = status
		if status.Status != dto.DependencyStatusHealthy {
			requiredDown = true
		}
	}

	if s.jobQueue != nil {
		status := s.checkJobQueue(ctx)
		dependencies[dependencyRedis] = status
		if status.Status != dto.DependencyStatusHealthy {
			requiredDown = true
		}
	}

	if s.publisherHealth != nil {
		status := s.checkPublisher()
		dependencies[dependencyNATS] = status
		if status.Status != dto.DependencyStatusHealthy {
			optionalDown = true
		}
	}

	if s.analysis != nil {
		status := s.checkAnalysis(ctx)
		dependencies[dependencyOpenAI] = status
		if status.Status != dto.DependencyStatusHealthy {
			optionalDown = true
		}
	}

	overall := dto.HealthStatusHealthy
	switch {
	case requiredDown:
		overall = dto.HealthStatusUnhealthy
	case optionalDown:
		overall = dto.HealthStatusDegraded
	}

	if overall != dto.HealthStatusHealthy {
		slogger.Warn(ctx, "Health check found degraded dependencies", slogger.Fields{
			"status": string(overall),
		})
	}

	return &dto.HealthResponse{
		Status:       overall,
		Timestamp:    time.Now().UTC(),
		Version:      s.version,
		Dependencies: dependencies,
	}, nil
}

func (s *DefaultHealthService) checkDatabase(ctx context.Context) dto.DependencyStatus {
	probeCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	if !s.database.IsHealthy(probeCtx) {
		return dto.DependencyStatus{
			Status:  dto.DependencyStatusUnhealthy,
			Message: "database unreachable",
		}
	}
	return dto.DependencyStatus{Status: dto.DependencyStatusHealthy}
}

func (s *DefaultHealthService) checkJobQueue(ctx context.Context) dto.DependencyStatus {
	probeCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	if err := s.jobQueue.Ping(probeCtx); err != nil {
		return dto.DependencyStatus{
			Status:  dto.DependencyStatusUnhealthy,
			Message: err.Error(),
		}
	}
	return dto.DependencyStatus{Status: dto.DependencyStatusHealthy}
}

func (s *DefaultHealthService) checkPublisher() dto.DependencyStatus {
	health := s.publisherHealth.GetConnectionHealth()
	if !health.Connected {
		message := health.LastError
		if message == "" {
			message = "not connected"
		}
		return dto.DependencyStatus{
			Status:  dto.DependencyStatusUnhealthy,
			Message: message,
		}
	}
	return dto.DependencyStatus{Status: dto.DependencyStatusHealthy}
}

func (s *DefaultHealthService) checkAnalysis(ctx context.Context) dto.DependencyStatus {
	probeCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	if err := s.analysis.TestConnection(probeCtx); err != nil {
		return dto.DependencyStatus{
			Status:  dto.DependencyStatusUnhealthy,
			Message: err.Error(),
		}
	}
	return dto.DependencyStatus{Status: dto.DependencyStatusHealthy}
}
