package dto

import (
	"time"

	"github.com/google/uuid"
)

// BatchImageUpload carries one file of a batch creation request. Data is
// the raw file content as received from the client.
type BatchImageUpload struct {
	Filename    string
	ContentType string
	Data        []byte
	PageNumber  *int
}

// CreateBatchRequest represents the request to create a new image batch.
type CreateBatchRequest struct {
	GameID     uuid.UUID
	UploadedBy *uuid.UUID
	Images     []BatchImageUpload
}

// ImageUploadResult reports the per-file outcome of batch creation.
// Rejected files are excluded from the batch instead of failing it.
type ImageUploadResult struct {
	ImageID  *uuid.UUID `json:"image_id,omitempty"`
	Filename string     `json:"filename"`
	JobID    string     `json:"job_id,omitempty"`
	Accepted bool       `json:"accepted"`
	Error    string     `json:"error,omitempty"`
}

// CreateBatchResponse represents the response after creating a batch.
type CreateBatchResponse struct {
	BatchID        uuid.UUID           `json:"batch_id"`
	GameID         uuid.UUID           `json:"game_id"`
	TotalImages    int                 `json:"total_images"`
	UploadedImages int                 `json:"uploaded_images"`
	RejectedImages int                 `json:"rejected_images"`
	Status         string              `json:"status"`
	Message        string              `json:"message"`
	JobIDs         []string            `json:"job_ids"`
	Results        []ImageUploadResult `json:"results"`
	CreatedAt      time.Time           `json:"created_at"`
}

// BatchStatusResponse represents the detailed progress of a batch.
type BatchStatusResponse struct {
	BatchID              uuid.UUID  `json:"batch_id"`
	GameID               uuid.UUID  `json:"game_id"`
	Status               string     `json:"status"`
	TotalImages          int        `json:"total_images"`
	ProcessedImages      int        `json:"processed_images"`
	FailedImages         int        `json:"failed_images"`
	PendingImages        int        `json:"pending_images"`
	ProgressRatio        string     `json:"progress_ratio"`
	FailedRatio          string     `json:"failed_ratio"`
	CompletionPercentage float64    `json:"completion_percentage"`
	FailurePercentage    float64    `json:"failure_percentage"`
	CanRetry             bool       `json:"can_retry"`
	RetryCount           int        `json:"retry_count"`
	MaxRetries           int        `json:"max_retries"`
	ProgressMessage      string     `json:"progress_message"`
	CreatedAt            time.Time  `json:"created_at"`
	ProcessingStartedAt  *time.Time `json:"processing_started_at,omitempty"`
	CompletedAt          *time.Time `json:"completed_at,omitempty"`
}

// RetryBatchResponse represents the response after starting a batch retry.
type RetryBatchResponse struct {
	BatchID        uuid.UUID `json:"batch_id"`
	Status         string    `json:"status"`
	RetryCount     int       `json:"retry_count"`
	MaxRetries     int       `json:"max_retries"`
	RequeuedImages int       `json:"requeued_images"`
	JobIDs         []string  `json:"job_ids"`
	Message        string    `json:"message"`
}
