// Package inbound defines the inbound ports (interfaces) for the application layer.
// These ports represent the entry points into the application's core business logic.
package inbound

import (
	"context"

	"github.com/shini559/Gaming-advisor-sub000/internal/application/dto"

	"github.com/google/uuid"
)

// BatchCreationService defines the inbound port for creating image batches.
type BatchCreationService interface {
	CreateBatch(ctx context.Context, request dto.CreateBatchRequest) (*dto.CreateBatchResponse, error)
}

// BatchStatusService defines the inbound port for batch progress queries.
type BatchStatusService interface {
	GetBatchStatus(ctx context.Context, batchID uuid.UUID) (*dto.BatchStatusResponse, error)
}

// BatchRetryService defines the inbound port for batch-level retries.
type BatchRetryService interface {
	RetryBatch(ctx context.Context, batchID uuid.UUID) (*dto.RetryBatchResponse, error)
}

// VectorSearchService defines the inbound port for similarity search over
// a game's extracted content.
type VectorSearchService interface {
	Search(ctx context.Context, request dto.VectorSearchRequest) (*dto.VectorSearchResponse, error)
}

// HealthService defines the inbound port for health check operations.
type HealthService interface {
	GetHealth(ctx context.Context) (*dto.HealthResponse, error)
}
