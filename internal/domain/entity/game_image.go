package entity

import (
	"time"

	"github.com/shini559/Gaming-advisor-sub000/internal/domain/valueobject"

	"github.com/google/uuid"
)

// GameImage represents one uploaded rulebook image and its processing
// lifecycle. The stored file lives in object storage under FilePath; the
// extraction results live in the vector store, keyed back to this image.
type GameImage struct {
	id                    uuid.UUID
	gameID                uuid.UUID
	batchID               uuid.UUID
	filePath              string
	blobURL               string
	originalFilename      string
	fileSize              int64
	uploadedBy            *uuid.UUID
	status                valueobject.ImageStatus
	processingError       string
	retryCount            int
	createdAt             time.Time
	processingStartedAt   *time.Time
	processingCompletedAt *time.Time
}

// NewGameImage creates a new GameImage entity in uploaded state.
func NewGameImage(
	gameID uuid.UUID,
	batchID uuid.UUID,
	filePath string,
	blobURL string,
	originalFilename string,
	fileSize int64,
	uploadedBy *uuid.UUID,
) (*GameImage, error) {
	if gameID == uuid.Nil {
		return nil, NewDomainError("game ID cannot be nil", "INVALID_ARGUMENT")
	}
	if batchID == uuid.Nil {
		return nil, NewDomainError("batch ID cannot be nil", "INVALID_ARGUMENT")
	}
	if filePath == "" {
		return nil, NewDomainError("file path cannot be empty", "INVALID_ARGUMENT")
	}
	if fileSize < 0 {
		return nil, NewDomainError("file size cannot be negative", "INVALID_ARGUMENT")
	}

	return &GameImage{
		id:               uuid.New(),
		gameID:           gameID,
		batchID:          batchID,
		filePath:         filePath,
		blobURL:          blobURL,
		originalFilename: originalFilename,
		fileSize:         fileSize,
		uploadedBy:       uploadedBy,
		status:           valueobject.ImageStatusUploaded,
		createdAt:        time.Now(),
	}, nil
}

// RestoreGameImage creates a GameImage entity from stored data.
func RestoreGameImage(
	id uuid.UUID,
	gameID uuid.UUID,
	batchID uuid.UUID,
	filePath string,
	blobURL string,
	originalFilename string,
	fileSize int64,
	uploadedBy *uuid.UUID,
	status valueobject.ImageStatus,
	processingError string,
	retryCount int,
	createdAt time.Time,
	processingStartedAt *time.Time,
	processingCompletedAt *time.Time,
) *GameImage {
	return &GameImage{
		id:                    id,
		gameID:                gameID,
		batchID:               batchID,
		filePath:              filePath,
		blobURL:               blobURL,
		originalFilename:      originalFilename,
		fileSize:              fileSize,
		uploadedBy:            uploadedBy,
		status:                status,
		processingError:       processingError,
		retryCount:            retryCount,
		createdAt:             createdAt,
		processingStartedAt:   processingStartedAt,
		processingCompletedAt: processingCompletedAt,
	}
}

// ID returns the image ID.
func (g *GameImage) ID() uuid.UUID {
	return g.id
}

// GameID returns the owning game ID.
func (g *GameImage) GameID() uuid.UUID {
	return g.gameID
}

// BatchID returns the batch this image belongs to.
func (g *GameImage) BatchID() uuid.UUID {
	return g.batchID
}

// FilePath returns the object storage path of the stored file.
func (g *GameImage) FilePath() string {
	return g.filePath
}

// BlobURL returns the public URL of the stored file.
func (g *GameImage) BlobURL() string {
	return g.blobURL
}

// OriginalFilename returns the filename the client uploaded.
func (g *GameImage) OriginalFilename() string {
	return g.originalFilename
}

// FileSize returns the stored file size in bytes.
func (g *GameImage) FileSize() int64 {
	return g.fileSize
}

// UploadedBy returns the uploading user, if known.
func (g *GameImage) UploadedBy() *uuid.UUID {
	return g.uploadedBy
}

// Status returns the current processing status.
func (g *GameImage) Status() valueobject.ImageStatus {
	return g.status
}

// ProcessingError returns the last failure message, empty when none.
func (g *GameImage) ProcessingError() string {
	return g.processingError
}

// RetryCount returns how many times this image has been retried.
func (g *GameImage) RetryCount() int {
	return g.retryCount
}

// CreatedAt returns the creation timestamp.
func (g *GameImage) CreatedAt() time.Time {
	return g.createdAt
}

// ProcessingStartedAt returns when a worker first picked the image up.
func (g *GameImage) ProcessingStartedAt() *time.Time {
	return g.processingStartedAt
}

// ProcessingCompletedAt returns when processing succeeded.
func (g *GameImage) ProcessingCompletedAt() *time.Time {
	return g.processingCompletedAt
}

// StartProcessing marks the image as picked up by a worker.
func (g *GameImage) StartProcessing() error {
	if !g.status.CanTransitionTo(valueobject.ImageStatusProcessing) {
		return NewInvalidTransitionError("image", g.status.String(), valueobject.ImageStatusProcessing.String())
	}
	g.status = valueobject.ImageStatusProcessing
	if g.processingStartedAt == nil {
		now := time.Now()
		g.processingStartedAt = &now
	}
	return nil
}

// CompleteProcessing marks the image as successfully processed.
func (g *GameImage) CompleteProcessing() error {
	if !g.status.CanTransitionTo(valueobject.ImageStatusCompleted) {
		return NewInvalidTransitionError("image", g.status.String(), valueobject.ImageStatusCompleted.String())
	}
	now := time.Now()
	g.status = valueobject.ImageStatusCompleted
	g.processingCompletedAt = &now
	g.processingError = ""
	return nil
}

// FailProcessing marks the image as failed with the given message.
func (g *GameImage) FailProcessing(message string) error {
	if !g.status.CanTransitionTo(valueobject.ImageStatusFailed) {
		return NewInvalidTransitionError("image", g.status.String(), valueobject.ImageStatusFailed.String())
	}
	g.status = valueobject.ImageStatusFailed
	g.processingError = message
	return nil
}

// MarkRetrying flags a failed image for another attempt, consuming one
// image-level retry. The previous attempt's error is superseded by the
// pending one, so it is cleared here. The image moves back to processing
// once a worker dequeues its new job.
func (g *GameImage) MarkRetrying() error {
	if !g.status.CanTransitionTo(valueobject.ImageStatusRetrying) {
		return NewInvalidTransitionError("image", g.status.String(), valueobject.ImageStatusRetrying.String())
	}
	g.status = valueobject.ImageStatusRetrying
	g.processingError = ""
	g.retryCount++
	return nil
}

// Equal compares two GameImage entities by identity.
func (g *GameImage) Equal(other *GameImage) bool {
	if other == nil {
		return false
	}
	return g.id == other.id
}
