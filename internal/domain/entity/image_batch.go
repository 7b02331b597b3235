package entity

import (
	"fmt"
	"time"

	"github.com/shini559/Gaming-advisor-sub000/internal/domain/valueobject"

	"github.com/google/uuid"
)

// ImageBatch tracks the processing progress of one user-submitted group of
// images. After creation the batch row is mutated exclusively by the
// worker's progress-update step; once a terminal status is reached the
// counters are frozen.
type ImageBatch struct {
	id                  uuid.UUID
	gameID              uuid.UUID
	totalImages         int
	processedImages     int
	failedImages        int
	status              valueobject.BatchStatus
	retryCount          int
	maxRetries          int
	createdAt           time.Time
	processingStartedAt *time.Time
	completedAt         *time.Time
}

// NewImageBatch creates a new ImageBatch entity in pending state.
func NewImageBatch(gameID uuid.UUID, totalImages, maxRetries int) (*ImageBatch, error) {
	if gameID == uuid.Nil {
		return nil, NewDomainError("game ID cannot be nil", "INVALID_ARGUMENT")
	}
	if totalImages <= 0 {
		return nil, NewDomainError("batch must contain at least one image", "INVALID_ARGUMENT")
	}
	if maxRetries < 0 {
		return nil, NewDomainError("max retries cannot be negative", "INVALID_ARGUMENT")
	}

	return &ImageBatch{
		id:          uuid.New(),
		gameID:      gameID,
		totalImages: totalImages,
		status:      valueobject.BatchStatusPending,
		maxRetries:  maxRetries,
		createdAt:   time.Now(),
	}, nil
}

// RestoreImageBatch creates an ImageBatch entity from stored data.
func RestoreImageBatch(
	id uuid.UUID,
	gameID uuid.UUID,
	totalImages int,
	processedImages int,
	failedImages int,
	status valueobject.BatchStatus,
	retryCount int,
	maxRetries int,
	createdAt time.Time,
	processingStartedAt *time.Time,
	completedAt *time.Time,
) *ImageBatch {
	return &ImageBatch{
		id:                  id,
		gameID:              gameID,
		totalImages:         totalImages,
		processedImages:     processedImages,
		failedImages:        failedImages,
		status:              status,
		retryCount:          retryCount,
		maxRetries:          maxRetries,
		createdAt:           createdAt,
		processingStartedAt: processingStartedAt,
		completedAt:         completedAt,
	}
}

// ID returns the batch ID.
func (b *ImageBatch) ID() uuid.UUID {
	return b.id
}

// GameID returns the owning game ID.
func (b *ImageBatch) GameID() uuid.UUID {
	return b.gameID
}

// TotalImages returns the number of images tracked by the batch.
func (b *ImageBatch) TotalImages() int {
	return b.totalImages
}

// ProcessedImages returns the number of successfully processed images.
func (b *ImageBatch) ProcessedImages() int {
	return b.processedImages
}

// FailedImages returns the number of failed images in the current attempt.
func (b *ImageBatch) FailedImages() int {
	return b.failedImages
}

// Status returns the current batch status.
func (b *ImageBatch) Status() valueobject.BatchStatus {
	return b.status
}

// RetryCount returns how many batch-level retries have been started.
func (b *ImageBatch) RetryCount() int {
	return b.retryCount
}

// MaxRetries returns the batch-level retry budget.
func (b *ImageBatch) MaxRetries() int {
	return b.maxRetries
}

// CreatedAt returns the creation timestamp.
func (b *ImageBatch) CreatedAt() time.Time {
	return b.createdAt
}

// ProcessingStartedAt returns when the first outcome was recorded.
func (b *ImageBatch) ProcessingStartedAt() *time.Time {
	return b.processingStartedAt
}

// CompletedAt returns when the batch reached a terminal status.
func (b *ImageBatch) CompletedAt() *time.Time {
	return b.completedAt
}

// IsTerminal returns true if the batch is in a terminal state.
func (b *ImageBatch) IsTerminal() bool {
	return b.status.IsTerminal()
}

// PendingImages returns the number of images without an outcome yet.
func (b *ImageBatch) PendingImages() int {
	return b.totalImages - b.processedImages - b.failedImages
}

// ProgressRatio returns the "processed/total" progress string shown to
// polling callers.
func (b *ImageBatch) ProgressRatio() string {
	return fmt.Sprintf("%d/%d", b.processedImages, b.totalImages)
}

// FailedRatio returns the "failed/total" string shown to polling callers.
func (b *ImageBatch) FailedRatio() string {
	return fmt.Sprintf("%d/%d", b.failedImages, b.totalImages)
}

// CompletionPercentage returns the share of successfully processed images.
func (b *ImageBatch) CompletionPercentage() float64 {
	if b.totalImages == 0 {
		return 0
	}
	return float64(b.processedImages) / float64(b.totalImages) * 100
}

// FailurePercentage returns the share of failed images.
func (b *ImageBatch) FailurePercentage() float64 {
	if b.totalImages == 0 {
		return 0
	}
	return float64(b.failedImages) / float64(b.totalImages) * 100
}

// CanRetry reports whether a batch-level retry may be started: there must
// be failed images and remaining retry budget.
func (b *ImageBatch) CanRetry() bool {
	return b.failedImages > 0 && b.retryCount < b.maxRetries
}

// RecordSuccess counts one successfully processed image and re-evaluates
// completion.
func (b *ImageBatch) RecordSuccess() error {
	if err := b.beginOutcome(); err != nil {
		return err
	}
	b.processedImages++
	b.evaluateCompletion()
	return nil
}

// RecordFailure counts one failed image and re-evaluates completion.
func (b *ImageBatch) RecordFailure() error {
	if err := b.beginOutcome(); err != nil {
		return err
	}
	b.failedImages++
	b.evaluateCompletion()
	return nil
}

// beginOutcome guards counter mutation and moves the batch into processing
// on the first outcome of an attempt.
func (b *ImageBatch) beginOutcome() error {
	if b.status.IsTerminal() {
		return NewDomainError("cannot record outcome on terminal batch", "BATCH_TERMINAL")
	}
	if b.processedImages+b.failedImages >= b.totalImages {
		return NewDomainError("batch counters already account for every image", "COUNTER_OVERFLOW")
	}

	if b.status != valueobject.BatchStatusProcessing {
		if !b.status.CanTransitionTo(valueobject.BatchStatusProcessing) {
			return NewInvalidTransitionError("batch", b.status.String(), valueobject.BatchStatusProcessing.String())
		}
		b.status = valueobject.BatchStatusProcessing
		if b.processingStartedAt == nil {
			now := time.Now()
			b.processingStartedAt = &now
		}
	}
	return nil
}

// evaluateCompletion applies the terminal-state rules once every image has
// an outcome. A batch with failures and remaining retry budget stays
// non-terminal, awaiting an explicit retry call.
func (b *ImageBatch) evaluateCompletion() {
	if b.processedImages+b.failedImages != b.totalImages {
		return
	}

	switch {
	case b.failedImages == 0:
		b.finish(valueobject.BatchStatusCompleted)
	case b.CanRetry():
		// Not terminal yet: failed images can still be retried.
	case b.processedImages > 0:
		b.finish(valueobject.BatchStatusPartiallyCompleted)
	default:
		b.finish(valueobject.BatchStatusFailed)
	}
}

// finish moves the batch into a terminal status, stamping completedAt.
func (b *ImageBatch) finish(target valueobject.BatchStatus) {
	if !b.status.CanTransitionTo(target) {
		return
	}
	now := time.Now()
	b.status = target
	b.completedAt = &now
}

// StartRetry begins a new batch-level retry attempt: the failed counter is
// reset so the re-enqueued images can be counted again, the retry budget is
// consumed, and the batch enters retrying. Successfully processed images
// keep their count.
func (b *ImageBatch) StartRetry() error {
	if !b.CanRetry() {
		return NewDomainError("batch has no failed images or no retries left", "RETRY_NOT_ALLOWED")
	}
	if !b.status.CanTransitionTo(valueobject.BatchStatusRetrying) {
		return NewInvalidTransitionError("batch", b.status.String(), valueobject.BatchStatusRetrying.String())
	}

	b.retryCount++
	b.failedImages = 0
	b.status = valueobject.BatchStatusRetrying
	return nil
}

// ExcludeImage removes one image from the batch total. Used at creation
// time when a file fails to upload or persist and is dropped from the
// batch before any job exists for it.
func (b *ImageBatch) ExcludeImage() error {
	if b.status != valueobject.BatchStatusPending {
		return NewDomainError("images can only be excluded from a pending batch", "BATCH_NOT_PENDING")
	}
	if b.totalImages <= 0 {
		return NewDomainError("batch has no images to exclude", "COUNTER_OVERFLOW")
	}
	b.totalImages--
	return nil
}

// Equal compares two ImageBatch entities by identity.
func (b *ImageBatch) Equal(other *ImageBatch) bool {
	if other == nil {
		return false
	}
	return b.id == other.id
}
