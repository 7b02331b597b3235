package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shini559/Gaming-advisor-sub000/internal/application/common"
	"github.com/shini559/Gaming-advisor-sub000/internal/application/common/slogger"
	"github.com/shini559/Gaming-advisor-sub000/internal/application/dto"
	"github.com/shini559/Gaming-advisor-sub000/internal/domain/entity"
	domainerrors "github.com/shini559/Gaming-advisor-sub000/internal/domain/errors/domain"
	"github.com/shini559/Gaming-advisor-sub000/internal/domain/messaging"
	"github.com/shini559/Gaming-advisor-sub000/internal/domain/valueobject"
	"github.com/shini559/Gaming-advisor-sub000/internal/port/inbound"
	"github.com/shini559/Gaming-advisor-sub000/internal/port/outbound"

	"github.com/google/uuid"
)

// DefaultBatchRetryService starts a new attempt for the failed images of a
// batch. Successfully processed images keep their results; each failed
// image gets a fresh job with a full job-level retry budget.
type DefaultBatchRetryService struct {
	maxJobRetries int
	batchRepo     outbound.ImageBatchRepository
	imageRepo     outbound.GameImageRepository
	jobQueue      outbound.JobQueue
	publisher     outbound.BatchEventPublisher
}

// NewBatchRetryService creates a new batch retry service. The publisher
// may be nil; retries succeed without lifecycle events.
func NewBatchRetryService(
	maxJobRetries int,
	batchRepo outbound.ImageBatchRepository,
	imageRepo outbound.GameImageRepository,
	jobQueue outbound.JobQueue,
	publisher outbound.BatchEventPublisher,
) inbound.BatchRetryService {
	if maxJobRetries <= 0 {
		maxJobRetries = defaultMaxJobRetries
	}
	return &DefaultBatchRetryService{
		maxJobRetries: maxJobRetries,
		batchRepo:     batchRepo,
		imageRepo:     imageRepo,
		jobQueue:      jobQueue,
		publisher:     publisher,
	}
}

// RetryBatch starts a batch-level retry: the batch moves to retrying with
// its failed counter reset, and every currently failed image is flagged
// retrying and re-enqueued under a fresh job. Images are requeued
// independently; one failing image does not abort the others.
func (s *DefaultBatchRetryService) RetryBatch(
	ctx context.Context,
	batchID uuid.UUID,
) (*dto.RetryBatchResponse, error) {
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
	if !batch.CanRetry() {
		return nil, fmt.Errorf("%w: %d failed images, %d of %d retries used",
			domainerrors.ErrBatchNotRetryable, batch.FailedImages(), batch.RetryCount(), batch.MaxRetries())
	}

	failedImages, err := s.imageRepo.FindByBatchIDAndStatus(ctx, batchID, valueobject.ImageStatusFailed)
	if err != nil {
		return nil, common.WrapServiceError(common.OpRetrieveImage, err)
	}
	if len(failedImages) == 0 {
		// Counter and image rows disagree; refuse to start an attempt
		// that would have no work to requeue.
		return nil, fmt.Errorf("%w: no failed images found for batch",
			domainerrors.ErrBatchNotRetryable)
	}

	if err := batch.StartRetry(); err != nil {
		return nil, common.WrapServiceError(common.OpRetryBatch, err)
	}
	if err := s.batchRepo.Update(ctx, batch); err != nil {
		return nil, common.WrapServiceError(common.OpRetryBatch, err)
	}

	slogger.Info(ctx, "Retrying image batch", slogger.Fields{
		"batch_id":      batchID.String(),
		"failed_images": len(failedImages),
		"attempt":       batch.RetryCount(),
		"max_retries":   batch.MaxRetries(),
	})

	jobIDs := s.requeueImages(ctx, batch, failedImages)

	s.publishRetrying(ctx, batch)

	slogger.Info(ctx, "Image batch retry started", slogger.Fields{
		"batch_id": batchID.String(),
		"requeued": len(jobIDs),
	})

	return &dto.RetryBatchResponse{
		BatchID:        batchID,
		Status:         batch.Status().String(),
		RetryCount:     batch.RetryCount(),
		MaxRetries:     batch.MaxRetries(),
		RequeuedImages: len(jobIDs),
		JobIDs:         jobIDs,
		Message: fmt.Sprintf("requeued %d of %d failed images (attempt %d/%d)",
			len(jobIDs), len(failedImages), batch.RetryCount(), batch.MaxRetries()),
	}, nil
}

// requeueImages flags each failed image as retrying and enqueues a fresh
// job for it. The job is enqueued before the image row is rewritten: if
// the enqueue fails the row keeps its failed state, and if the rewrite
// fails the worker still recovers the image from its failed state when the
// job arrives.
func (s *DefaultBatchRetryService) requeueImages(
	ctx context.Context,
	batch *entity.ImageBatch,
	failedImages []*entity.GameImage,
) []string {
	batchID := batch.ID()
	jobIDs := make([]string, 0, len(failedImages))

	for _, image := range failedImages {
		if err := image.MarkRetrying(); err != nil {
			slogger.Warn(ctx, "Failed to flag image for retry", slogger.Fields{
				"batch_id": batchID.String(),
				"image_id": image.ID().String(),
				"error":    err.Error(),
			})
			continue
		}

		job := messaging.NewProcessingJob(
			image.ID(),
			batch.GameID(),
			&batchID,
			image.FilePath(),
			image.OriginalFilename(),
			s.maxJobRetries,
		)

		jobID, err := s.jobQueue.Enqueue(ctx, job)
		if err != nil {
			slogger.Warn(ctx, "Failed to enqueue retry job", slogger.Fields{
				"batch_id": batchID.String(),
				"image_id": image.ID().String(),
				"error":    err.Error(),
			})
			continue
		}

		if err := s.imageRepo.Update(ctx, image); err != nil {
			slogger.Warn(ctx, "Failed to persist retrying image state", slogger.Fields{
				"batch_id": batchID.String(),
				"image_id": image.ID().String(),
				"error":    err.Error(),
			})
		}

		jobIDs = append(jobIDs, jobID)
	}

	return jobIDs
}

// publishRetrying emits the retrying lifecycle event. Publishing is
// best-effort; the retry has already started.
func (s *DefaultBatchRetryService) publishRetrying(ctx context.Context, batch *entity.ImageBatch) {
	if s.publisher == nil {
		return
	}

	event := outbound.BatchEvent{
		Type:            outbound.BatchEventRetrying,
		BatchID:         batch.ID(),
		GameID:          batch.GameID(),
		Status:          batch.Status().String(),
		TotalImages:     batch.TotalImages(),
		ProcessedImages: batch.ProcessedImages(),
		FailedImages:    batch.FailedImages(),
		OccurredAt:      time.Now().UTC(),
	}
	if err := s.publisher.PublishBatchEvent(ctx, event); err != nil {
		slogger.Warn(ctx, "Failed to publish batch retrying event", slogger.Fields{
			"batch_id": batch.ID().String(),
			"error":    err.Error(),
		})
	}
}
