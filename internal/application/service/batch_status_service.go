package service

import (
	"context"
	"fmt"

	"github.com/shini559/Gaming-advisor-sub000/internal/application/common"
	"github.com/shini559/Gaming-advisor-sub000/internal/application/dto"
	"github.com/shini559/Gaming-advisor-sub000/internal/domain/entity"
	domainerrors "github.com/shini559/Gaming-advisor-sub000/internal/domain/errors/domain"
	"github.com/shini559/Gaming-advisor-sub000/internal/domain/valueobject"
	"github.com/shini559/Gaming-advisor-sub000/internal/port/inbound"
	"github.com/shini559/Gaming-advisor-sub000/internal/port/outbound"

	"github.com/google/uuid"
)

// DefaultBatchStatusService answers batch progress queries. It reads one
// batch snapshot and derives the counters, ratios and the human-readable
// progress line that polling clients display.
type DefaultBatchStatusService struct {
	batchRepo outbound.ImageBatchRepository
}

// NewBatchStatusService creates a new batch status service.
func NewBatchStatusService(batchRepo outbound.ImageBatchRepository) inbound.BatchStatusService {
	return &DefaultBatchStatusService{batchRepo: batchRepo}
}

// GetBatchStatus returns the current progress of a batch.
func (s *DefaultBatchStatusService) GetBatchStatus(
	ctx context.Context,
	batchID uuid.UUID,
) (*dto.BatchStatusResponse, error) {
	if batchID == uuid.Nil {
		return nil, fmt.Errorf("%w: batch ID is required", domainerrors.ErrInvalidInput)
	}

	batch, err := s.batchRepo.FindByID(ctx, batchID)
	if err != nil {
		return nil, common.WrapServiceError(common.OpRetrieveBatch, err)
	}
	if batch == nil {
		return nil, domainerrors.ErrBatchNotFound
	}

	return &dto.BatchStatusResponse{
		BatchID:              batch.ID(),
		GameID:               batch.GameID(),
		Status:               batch.Status().String(),
		TotalImages:          batch.TotalImages(),
		ProcessedImages:      batch.ProcessedImages(),
		FailedImages:         batch.FailedImages(),
		PendingImages:        batch.PendingImages(),
		ProgressRatio:        batch.ProgressRatio(),
		FailedRatio:          batch.FailedRatio(),
		CompletionPercentage: batch.CompletionPercentage(),
		FailurePercentage:    batch.FailurePercentage(),
		CanRetry:             batch.CanRetry(),
		RetryCount:           batch.RetryCount(),
		MaxRetries:           batch.MaxRetries(),
		ProgressMessage:      progressMessage(batch),
		CreatedAt:            batch.CreatedAt(),
		ProcessingStartedAt:  batch.ProcessingStartedAt(),
		CompletedAt:          batch.CompletedAt(),
	}, nil
}

// progressMessage renders the progress line for one batch status.
func progressMessage(batch *entity.ImageBatch) string {
	switch batch.Status() {
	case valueobject.BatchStatusPending:
		return fmt.Sprintf("Waiting - %d images to process", batch.TotalImages())
	case valueobject.BatchStatusProcessing:
		return fmt.Sprintf("Processing - %s images processed", batch.ProgressRatio())
	case valueobject.BatchStatusRetrying:
		return fmt.Sprintf("Retrying - %s images processed, %s failed (attempt %d/%d)",
			batch.ProgressRatio(), batch.FailedRatio(), batch.RetryCount(), batch.MaxRetries())
	case valueobject.BatchStatusCompleted:
		return fmt.Sprintf("Completed - %s images processed successfully", batch.ProgressRatio())
	case valueobject.BatchStatusPartiallyCompleted:
		return fmt.Sprintf("Partially completed - %s images processed, %s permanently failed",
			batch.ProgressRatio(), batch.FailedRatio())
	case valueobject.BatchStatusFailed:
		return fmt.Sprintf("Failed - %s images failed after %d attempts",
			batch.FailedRatio(), batch.RetryCount()+1)
	default:
		return batch.Status().String()
	}
}
