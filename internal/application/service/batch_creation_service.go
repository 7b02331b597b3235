package service

import (
	"context"
	"fmt"
	"mime"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/shini559/Gaming-advisor-sub000/internal/application/common"
	"github.com/shini559/Gaming-advisor-sub000/internal/application/common/slogger"
	"github.com/shini559/Gaming-advisor-sub000/internal/application/dto"
	"github.com/shini559/Gaming-advisor-sub000/internal/domain/entity"
	domainerrors "github.com/shini559/Gaming-advisor-sub000/internal/domain/errors/domain"
	"github.com/shini559/Gaming-advisor-sub000/internal/domain/messaging"
	"github.com/shini559/Gaming-advisor-sub000/internal/port/inbound"
	"github.com/shini559/Gaming-advisor-sub000/internal/port/outbound"

	"github.com/google/uuid"
)

const (
	defaultMaxFileSize     = int64(10 << 20)
	defaultMaxBatchRetries = 3
	defaultMaxJobRetries   = 3
)

// defaultAllowedContentTypes lists the image types accepted when the
// configuration does not narrow them.
var defaultAllowedContentTypes = []string{"image/jpeg", "image/jpg", "image/png"}

// BatchCreationConfig holds the tunables for batch creation.
type BatchCreationConfig struct {
	// MaxFileSize caps one uploaded file, in bytes.
	MaxFileSize int64
	// AllowedContentTypes lists the MIME types accepted for upload.
	AllowedContentTypes []string
	// MaxBatchRetries is the batch-level retry budget stamped on new
	// batches.
	MaxBatchRetries int
	// MaxJobRetries is the per-job retry budget stamped on enqueued jobs.
	MaxJobRetries int
}

// DefaultBatchCreationService creates image batches: it stores each file,
// persists its GameImage record, and enqueues one processing job per
// stored image. A failing file is excluded from the batch instead of
// failing the whole request.
type DefaultBatchCreationService struct {
	config       BatchCreationConfig
	batchRepo    outbound.ImageBatchRepository
	imageRepo    outbound.GameImageRepository
	storage      outbound.ObjectStorage
	jobQueue     outbound.JobQueue
	publisher    outbound.BatchEventPublisher
	allowedTypes map[string]bool
}

// acceptedUpload tracks one stored file between the upload loop and the
// enqueue pass.
type acceptedUpload struct {
	image       *entity.GameImage
	pageNumber  int
	resultIndex int
}

// NewBatchCreationService creates a new batch creation service. The
// publisher may be nil; creation succeeds without lifecycle events.
func NewBatchCreationService(
	config BatchCreationConfig,
	batchRepo outbound.ImageBatchRepository,
	imageRepo outbound.GameImageRepository,
	storage outbound.ObjectStorage,
	jobQueue outbound.JobQueue,
	publisher outbound.BatchEventPublisher,
) inbound.BatchCreationService {
	if config.MaxFileSize <= 0 {
		config.MaxFileSize = defaultMaxFileSize
	}
	if config.MaxBatchRetries <= 0 {
		config.MaxBatchRetries = defaultMaxBatchRetries
	}
	if config.MaxJobRetries <= 0 {
		config.MaxJobRetries = defaultMaxJobRetries
	}
	if len(config.AllowedContentTypes) == 0 {
		config.AllowedContentTypes = defaultAllowedContentTypes
	}

	allowedTypes := make(map[string]bool, len(config.AllowedContentTypes))
	for _, contentType := range config.AllowedContentTypes {
		allowedTypes[strings.ToLower(contentType)] = true
	}

	return &DefaultBatchCreationService{
		config:       config,
		batchRepo:    batchRepo,
		imageRepo:    imageRepo,
		storage:      storage,
		jobQueue:     jobQueue,
		publisher:    publisher,
		allowedTypes: allowedTypes,
	}
}

// CreateBatch creates a PENDING batch and uploads its images. Files are
// handled independently: a failing file is excluded and reported in the
// per-file results. Jobs are enqueued only after every surviving file is
// stored and persisted, so a worker can never dequeue a job whose image
// record does not exist yet. When no file survives, the batch is deleted
// and the call fails.
func (s *DefaultBatchCreationService) CreateBatch(
	ctx context.Context,
	request dto.CreateBatchRequest,
) (*dto.CreateBatchResponse, error) {
	if request.GameID == uuid.Nil {
		return nil, fmt.Errorf("%w: game ID is required", domainerrors.ErrInvalidInput)
	}
	if len(request.Images) == 0 {
		return nil, fmt.Errorf("%w: batch must contain at least one image", domainerrors.ErrInvalidInput)
	}

	batch, err := entity.NewImageBatch(request.GameID, len(request.Images), s.config.MaxBatchRetries)
	if err != nil {
		return nil, common.WrapServiceError(common.OpCreateBatch, err)
	}
	if err := s.batchRepo.Save(ctx, batch); err != nil {
		return nil, common.WrapServiceError(common.OpCreateBatch, err)
	}

	slogger.Info(ctx, "Creating image batch", slogger.Fields{
		"batch_id": batch.ID().String(),
		"game_id":  request.GameID.String(),
		"images":   len(request.Images),
	})

	results := make([]dto.ImageUploadResult, 0, len(request.Images))
	accepted := make([]acceptedUpload, 0, len(request.Images))

	for i, upload := range request.Images {
		result := dto.ImageUploadResult{Filename: upload.Filename}

		image, uploadErr := s.storeImage(ctx, batch, request, upload)
		if uploadErr != nil {
			result.Error = uploadErr.Error()
			s.excludeFailedUpload(ctx, batch, upload.Filename, uploadErr)
			results = append(results, result)
			continue
		}

		imageID := image.ID()
		result.ImageID = &imageID
		result.Accepted = true
		results = append(results, result)
		accepted = append(accepted, acceptedUpload{
			image:       image,
			pageNumber:  resolvePageNumber(upload.PageNumber, i),
			resultIndex: len(results) - 1,
		})
	}

	if batch.TotalImages() == 0 || len(accepted) == 0 {
		if deleteErr := s.batchRepo.Delete(ctx, batch.ID()); deleteErr != nil {
			slogger.Warn(ctx, "Failed to delete batch after all uploads failed", slogger.Fields{
				"batch_id": batch.ID().String(),
				"error":    deleteErr.Error(),
			})
		}
		return nil, common.WrapServiceError(common.OpCreateBatch, domainerrors.ErrAllUploadsFailed)
	}

	// Exclusions shrank the batch; persist the final count.
	if len(accepted) < len(request.Images) {
		if err := s.batchRepo.Update(ctx, batch); err != nil {
			return nil, common.WrapServiceError(common.OpUpdateBatch, err)
		}
	}

	jobIDs := s.enqueueJobs(ctx, batch, request.GameID, accepted, results)

	s.publishCreated(ctx, batch)

	slogger.Info(ctx, "Image batch created", slogger.Fields{
		"batch_id": batch.ID().String(),
		"uploaded": len(accepted),
		"rejected": len(request.Images) - len(accepted),
		"jobs":     len(jobIDs),
	})

	return &dto.CreateBatchResponse{
		BatchID:        batch.ID(),
		GameID:         batch.GameID(),
		TotalImages:    batch.TotalImages(),
		UploadedImages: len(accepted),
		RejectedImages: len(request.Images) - len(accepted),
		Status:         batch.Status().String(),
		Message:        fmt.Sprintf("accepted %d of %d images", len(accepted), len(request.Images)),
		JobIDs:         jobIDs,
		Results:        results,
		CreatedAt:      batch.CreatedAt(),
	}, nil
}

// storeImage validates one file, writes it to object storage and persists
// its GameImage record. The stored blob is removed again when persistence
// fails, so storage never holds files without a matching record.
func (s *DefaultBatchCreationService) storeImage(
	ctx context.Context,
	batch *entity.ImageBatch,
	request dto.CreateBatchRequest,
	upload dto.BatchImageUpload,
) (*entity.GameImage, error) {
	contentType, err := s.validateUpload(upload)
	if err != nil {
		return nil, err
	}

	blobPath := buildBlobPath(request.GameID, upload.Filename)
	blobURL, err := s.storage.Upload(ctx, blobPath, contentType, upload.Data)
	if err != nil {
		return nil, common.WrapServiceError(common.OpUploadImage, err)
	}

	image, err := entity.NewGameImage(
		request.GameID,
		batch.ID(),
		blobPath,
		blobURL,
		upload.Filename,
		int64(len(upload.Data)),
		request.UploadedBy,
	)
	if err != nil {
		s.deleteBlob(ctx, blobPath)
		return nil, err
	}

	if err := s.imageRepo.Save(ctx, image); err != nil {
		s.deleteBlob(ctx, blobPath)
		return nil, common.WrapServiceError(common.OpSaveImage, err)
	}

	return image, nil
}

// validateUpload checks one file against the configured limits and
// returns the content type to store it under.
func (s *DefaultBatchCreationService) validateUpload(upload dto.BatchImageUpload) (string, error) {
	if strings.TrimSpace(upload.Filename) == "" {
		return "", fmt.Errorf("%w: filename is required", domainerrors.ErrInvalidInput)
	}
	if len(upload.Data) == 0 {
		return "", fmt.Errorf("%w: file is empty", domainerrors.ErrInvalidInput)
	}
	if int64(len(upload.Data)) > s.config.MaxFileSize {
		return "", fmt.Errorf("%w: file size %d exceeds maximum %d bytes",
			domainerrors.ErrInvalidInput, len(upload.Data), s.config.MaxFileSize)
	}

	contentType := strings.ToLower(strings.TrimSpace(upload.ContentType))
	if contentType == "" {
		contentType = mime.TypeByExtension(strings.ToLower(path.Ext(upload.Filename)))
	}
	if !s.allowedTypes[contentType] {
		return "", fmt.Errorf("%w: content type %q is not allowed", domainerrors.ErrInvalidInput, contentType)
	}

	return contentType, nil
}

// excludeFailedUpload removes one failed file from the batch count.
func (s *DefaultBatchCreationService) excludeFailedUpload(
	ctx context.Context,
	batch *entity.ImageBatch,
	filename string,
	cause error,
) {
	slogger.Warn(ctx, "Excluding image from batch", slogger.Fields{
		"batch_id": batch.ID().String(),
		"filename": filename,
		"error":    cause.Error(),
	})
	if err := batch.ExcludeImage(); err != nil {
		slogger.Warn(ctx, "Failed to exclude image from batch", slogger.Fields{
			"batch_id": batch.ID().String(),
			"error":    err.Error(),
		})
	}
}

// enqueueJobs pushes one processing job per stored image. An enqueue
// failure leaves that image in uploaded state; the reconciliation sweep
// re-enqueues it later.
func (s *DefaultBatchCreationService) enqueueJobs(
	ctx context.Context,
	batch *entity.ImageBatch,
	gameID uuid.UUID,
	accepted []acceptedUpload,
	results []dto.ImageUploadResult,
) []string {
	batchID := batch.ID()
	jobIDs := make([]string, 0, len(accepted))

	for _, entry := range accepted {
		job := messaging.NewProcessingJob(
			entry.image.ID(),
			gameID,
			&batchID,
			entry.image.FilePath(),
			entry.image.OriginalFilename(),
			s.config.MaxJobRetries,
		)
		job.Metadata[messaging.MetadataPageNumber] = strconv.Itoa(entry.pageNumber)

		jobID, err := s.jobQueue.Enqueue(ctx, job)
		if err != nil {
			slogger.Warn(ctx, "Failed to enqueue processing job, image left for reconciliation", slogger.Fields{
				"batch_id": batchID.String(),
				"image_id": entry.image.ID().String(),
				"error":    err.Error(),
			})
			continue
		}

		jobIDs = append(jobIDs, jobID)
		results[entry.resultIndex].JobID = jobID
	}

	return jobIDs
}

// publishCreated emits the created lifecycle event. Publishing is
// best-effort; batch creation has already succeeded.
func (s *DefaultBatchCreationService) publishCreated(ctx context.Context, batch *entity.ImageBatch) {
	if s.publisher == nil {
		return
	}

	event := outbound.BatchEvent{
		Type:            outbound.BatchEventCreated,
		BatchID:         batch.ID(),
		GameID:          batch.GameID(),
		Status:          batch.Status().String(),
		TotalImages:     batch.TotalImages(),
		ProcessedImages: batch.ProcessedImages(),
		FailedImages:    batch.FailedImages(),
		OccurredAt:      time.Now().UTC(),
	}
	if err := s.publisher.PublishBatchEvent(ctx, event); err != nil {
		slogger.Warn(ctx, "Failed to publish batch created event", slogger.Fields{
			"batch_id": batch.ID().String(),
			"error":    err.Error(),
		})
	}
}

// deleteBlob removes a stored file after a failed persistence step.
func (s *DefaultBatchCreationService) deleteBlob(ctx context.Context, blobPath string) {
	if err := s.storage.Delete(ctx, blobPath); err != nil {
		slogger.Warn(ctx, "Failed to delete orphaned blob", slogger.Fields{
			"blob_path": blobPath,
			"error":     err.Error(),
		})
	}
}

// buildBlobPath places a file under its game with a fresh unique name.
// The original filename is kept as a suffix for operator readability.
func buildBlobPath(gameID uuid.UUID, filename string) string {
	return fmt.Sprintf("games/%s/images/%s_%s", gameID, uuid.New(), sanitizeFilename(filename))
}

// sanitizeFilename strips any directory components from a client-supplied
// filename before it is used in an object name.
func sanitizeFilename(filename string) string {
	cleaned := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if cleaned == "." || cleaned == "/" || cleaned == "" {
		return "image"
	}
	return cleaned
}

// resolvePageNumber picks the page number stamped on a job: the
// client-supplied value when present, the file's position in the upload
// order otherwise.
func resolvePageNumber(requested *int, index int) int {
	if requested != nil && *requested > 0 {
		return *requested
	}
	return index + 1
}
