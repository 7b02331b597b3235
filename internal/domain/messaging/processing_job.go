// Package messaging provides the domain types for jobs exchanged over the
// processing queue. Payloads are versioned JSON: every producer stamps the
// schema version it wrote so consumers can reject payloads they do not
// understand instead of misreading them.
package messaging

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// Schema versions for queue payloads.
const (
	// CurrentSchemaVersion is stamped on every job this codebase enqueues.
	CurrentSchemaVersion = 1
)

// Well-known metadata keys. Metadata is free-form, but keys listed here
// are understood by the worker.
const (
	// MetadataPageNumber carries the 1-based rulebook page number of the
	// image, when the uploader provided one.
	MetadataPageNumber = "page_number"
)

// Validation limits.
const (
	maxJobIDLength = 255
	maxRetryLimit  = 100
)

// Error messages for validation.
const (
	errorSchemaVersionMissing = "schema_version is missing or zero"
	errorSchemaVersionAhead   = "schema_version is newer than this consumer supports"
	errorJobIDRequired        = "job_id is required"
	errorJobIDTooLong         = "job_id too long"
	errorJobIDMalformed       = "job_id does not match job_{image_id}_{timestamp}"
	errorImageIDNil           = "image_id cannot be nil"
	errorGameIDNil            = "game_id cannot be nil"
	errorBatchIDNil           = "batch_id cannot be nil when present"
	errorBlobPathRequired     = "blob_path is required"
	errorFilenameRequired     = "filename is required"
	errorRetryCountNegative   = "retry_count cannot be negative"
	errorMaxRetriesNegative   = "max_retries cannot be negative"
	errorMaxRetriesExceeds    = "max_retries exceeds maximum allowed"
	errorRetryCountExceeds    = "retry_count cannot exceed max_retries"
)

// jobIDRegex matches job_{image_id}_{epoch_seconds}.
var jobIDRegex = regexp.MustCompile(`^job_[a-f0-9-]{36}_\d+$`)

// ProcessingJob is the payload pushed to the processing queue for each
// image. It is self-contained: a worker can process the image from the
// payload alone, without re-reading the batch first. BatchID is nil for
// images uploaded outside a batch.
type ProcessingJob struct {
	SchemaVersion int               `json:"schema_version"`
	JobID         string            `json:"job_id"`
	ImageID       uuid.UUID         `json:"image_id"`
	GameID        uuid.UUID         `json:"game_id"`
	BatchID       *uuid.UUID        `json:"batch_id,omitempty"`
	BlobPath      string            `json:"blob_path"`
	Filename      string            `json:"filename"`
	RetryCount    int               `json:"retry_count"`
	MaxRetries    int               `json:"max_retries"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	RetriedAt     *time.Time        `json:"retried_at,omitempty"`
}

// NewProcessingJob creates a first-attempt job for an image. The job ID
// embeds the image ID and the enqueue time.
func NewProcessingJob(
	imageID, gameID uuid.UUID,
	batchID *uuid.UUID,
	blobPath, filename string,
	maxRetries int,
) *ProcessingJob {
	now := time.Now().UTC()
	return &ProcessingJob{
		SchemaVersion: CurrentSchemaVersion,
		JobID:         fmt.Sprintf("job_%s_%d", imageID, now.Unix()),
		ImageID:       imageID,
		GameID:        gameID,
		BatchID:       batchID,
		BlobPath:      blobPath,
		Filename:      filename,
		RetryCount:    0,
		MaxRetries:    maxRetries,
		Metadata:      map[string]string{},
		CreatedAt:     now,
	}
}

// Validate validates the job payload against all business rules.
// Returns the first validation error encountered, or nil if the payload
// is safe to process.
func (j *ProcessingJob) Validate() error {
	if err := j.validateSchemaVersion(); err != nil {
		return err
	}

	if err := j.validateIdentity(); err != nil {
		return err
	}

	return j.validateRetryFields()
}

func (j *ProcessingJob) validateSchemaVersion() error {
	if j.SchemaVersion == 0 {
		return errors.New(errorSchemaVersionMissing)
	}

	if j.SchemaVersion > CurrentSchemaVersion {
		return errors.New(errorSchemaVersionAhead)
	}

	return nil
}

func (j *ProcessingJob) validateIdentity() error {
	if j.JobID == "" {
		return errors.New(errorJobIDRequired)
	}

	if len(j.JobID) > maxJobIDLength {
		return errors.New(errorJobIDTooLong)
	}

	if !jobIDRegex.MatchString(j.JobID) {
		return errors.New(errorJobIDMalformed)
	}

	if j.ImageID == uuid.Nil {
		return errors.New(errorImageIDNil)
	}

	if j.GameID == uuid.Nil {
		return errors.New(errorGameIDNil)
	}

	if j.BatchID != nil && *j.BatchID == uuid.Nil {
		return errors.New(errorBatchIDNil)
	}

	if j.BlobPath == "" {
		return errors.New(errorBlobPathRequired)
	}

	if j.Filename == "" {
		return errors.New(errorFilenameRequired)
	}

	return nil
}

func (j *ProcessingJob) validateRetryFields() error {
	if j.RetryCount < 0 {
		return errors.New(errorRetryCountNegative)
	}

	if j.MaxRetries < 0 {
		return errors.New(errorMaxRetriesNegative)
	}

	if j.MaxRetries > maxRetryLimit {
		return errors.New(errorMaxRetriesExceeds)
	}

	if j.RetryCount > j.MaxRetries {
		return errors.New(errorRetryCountExceeds)
	}

	return nil
}

// CanRetry reports whether the job still has retry budget left.
func (j *ProcessingJob) CanRetry() bool {
	return j.RetryCount < j.MaxRetries
}

// AdvanceRetry consumes one retry attempt in place. The job keeps its ID so
// status and error records stay correlated across attempts. Returns an
// error when the retry budget is exhausted.
func (j *ProcessingJob) AdvanceRetry() error {
	if !j.CanRetry() {
		return fmt.Errorf("job %s has no retries left (%d/%d)", j.JobID, j.RetryCount, j.MaxRetries)
	}

	now := time.Now().UTC()
	j.RetryCount++
	j.RetriedAt = &now
	return nil
}

// Marshal serializes the job for the queue.
func (j *ProcessingJob) Marshal() ([]byte, error) {
	data, err := json.Marshal(j)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal processing job: %w", err)
	}
	return data, nil
}

// UnmarshalProcessingJob parses and validates a queue payload. Payloads
// that fail validation are rejected here so the worker never acts on a
// half-read job.
func UnmarshalProcessingJob(data []byte) (*ProcessingJob, error) {
	var job ProcessingJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal processing job: %w", err)
	}

	if err := job.Validate(); err != nil {
		return nil, fmt.Errorf("invalid processing job: %w", err)
	}

	return &job, nil
}
