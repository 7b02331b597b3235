package worker

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shini559/Gaming-advisor-sub000/internal/application/common/slogger"
	"github.com/shini559/Gaming-advisor-sub000/internal/domain/entity"
	"github.com/shini559/Gaming-advisor-sub000/internal/domain/messaging"
	"github.com/shini559/Gaming-advisor-sub000/internal/domain/valueobject"
	"github.com/shini559/Gaming-advisor-sub000/internal/port/inbound"
	"github.com/shini559/Gaming-advisor-sub000/internal/port/outbound"

	"github.com/google/uuid"
)

const (
	jobStatusFailed    = "failed"
	jobStatusRunning   = "running"
	jobStatusCompleted = "completed"
)

// Pipeline stages, recorded on the job execution and attached to failure
// metrics so a stuck stage is visible without log digging.
const (
	stageLoadImage     = "load_image"
	stageDownload      = "download"
	stageAnalysis      = "analysis"
	stageEmbedding     = "embedding"
	stagePersistVector = "persist_vector"
	stageCompleteImage = "complete_image"
)

const (
	defaultJobTimeout = 5 * time.Minute

	// bookkeepingTimeout bounds the status, progress and retry writes that
	// run after the job body. They use their own deadline because the job
	// context may already be expired by the time they run.
	bookkeepingTimeout = 30 * time.Second
)

var (
	errImageNotFound         = errors.New("image record not found")
	errImageAlreadyProcessed = errors.New("image already processed")
)

// JobProcessorConfig holds configuration for the job processor.
type JobProcessorConfig struct {
	MaxConcurrentJobs int
	JobTimeout        time.Duration
}

// JobExecution tracks the execution of a single job.
type JobExecution struct {
	JobID     string
	ImageID   uuid.UUID
	StartTime time.Time
	Status    string
	Progress  *JobProgress
	mu        sync.RWMutex
}

// JobProgress tracks job processing progress.
type JobProgress struct {
	BytesDownloaded   int64
	PairsExtracted    int64
	EmbeddingsCreated int64
	Stage             string
}

// ImageJobProcessor runs the full processing pipeline for one queued
// image: download the stored file, extract content with the vision model,
// embed whatever was extracted, persist the vector row and record the
// outcome on the image and its batch.
type ImageJobProcessor struct {
	config       JobProcessorConfig
	imageRepo    outbound.GameImageRepository
	batchRepo    outbound.ImageBatchRepository
	vectorRepo   outbound.VectorStorageRepository
	storage      outbound.ObjectStorage
	analysis     outbound.ImageAnalysisService
	jobQueue     outbound.JobQueue
	publisher    outbound.BatchEventPublisher
	jobMetrics   *JobMetrics
	activeJobs   map[string]*JobExecution
	jobsMu       sync.RWMutex
	semaphore    chan struct{}
	metrics      inbound.JobProcessorMetrics
	healthStatus inbound.JobProcessorHealthStatus
}

// NewImageJobProcessor creates a new image job processor.
func NewImageJobProcessor(
	config JobProcessorConfig,
	imageRepo outbound.GameImageRepository,
	batchRepo outbound.ImageBatchRepository,
	vectorRepo outbound.VectorStorageRepository,
	storage outbound.ObjectStorage,
	analysis outbound.ImageAnalysisService,
	jobQueue outbound.JobQueue,
	publisher outbound.BatchEventPublisher,
	jobMetrics *JobMetrics,
) inbound.JobProcessor {
	if config.MaxConcurrentJobs <= 0 {
		config.MaxConcurrentJobs = 1
	}
	if config.JobTimeout <= 0 {
		config.JobTimeout = defaultJobTimeout
	}

	processor := &ImageJobProcessor{
		config:     config,
		imageRepo:  imageRepo,
		batchRepo:  batchRepo,
		vectorRepo: vectorRepo,
		storage:    storage,
		analysis:   analysis,
		jobQueue:   jobQueue,
		publisher:  publisher,
		jobMetrics: jobMetrics,
		activeJobs: make(map[string]*JobExecution),
		semaphore:  make(chan struct{}, config.MaxConcurrentJobs),
	}
	processor.healthStatus.IsReady = true

	return processor
}

// ProcessJob processes one queued image job end to end. It returns an
// error when the attempt failed; re-enqueueing for another attempt has
// already happened by then if the job had retry budget left.
func (p *ImageJobProcessor) ProcessJob(ctx context.Context, job *messaging.ProcessingJob) error {
	if job == nil {
		return errors.New("job cannot be nil")
	}
	if err := job.Validate(); err != nil {
		return fmt.Errorf("invalid job payload: %w", err)
	}

	// Acquire semaphore for concurrency control
	p.semaphore <- struct{}{}
	defer func() {
		<-p.semaphore
	}()

	// A dequeued job runs to completion or failure even while the consumer
	// loop is shutting down; only the per-job timeout bounds it.
	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.config.JobTimeout)
	defer cancel()

	execution := &JobExecution{
		JobID:     job.JobID,
		ImageID:   job.ImageID,
		StartTime: time.Now(),
		Status:    jobStatusRunning,
		Progress:  &JobProgress{},
	}

	p.jobsMu.Lock()
	p.activeJobs[job.JobID] = execution
	p.healthStatus.ActiveJobs = len(p.activeJobs)
	p.jobsMu.Unlock()

	if err := p.jobQueue.MarkProcessing(jobCtx, job.JobID); err != nil {
		slogger.Warn(jobCtx, "Failed to record processing status for job", slogger.Fields{
			"job_id": job.JobID,
			"error":  err.Error(),
		})
	}

	err := p.runPipeline(jobCtx, job, execution)
	duration := time.Since(execution.StartTime)

	if errors.Is(err, errImageAlreadyProcessed) {
		p.dropDuplicateJob(ctx, job)
		p.updateJobStatus(job.JobID, jobStatusCompleted)
		return nil
	}

	if err != nil {
		p.handleFailure(ctx, job, err)
		p.updateJobStatus(job.JobID, jobStatusFailed)
		p.recordFailure(ctx, duration, p.currentStage(execution), err)
		return err
	}

	p.finishJob(ctx, job)
	p.updateJobStatus(job.JobID, jobStatusCompleted)
	p.recordSuccess(ctx, duration)

	slogger.Info(ctx, "Job completed successfully", slogger.Fields{
		"job_id":      job.JobID,
		"image_id":    job.ImageID.String(),
		"duration_ms": duration.Milliseconds(),
	})
	return nil
}

// GetHealthStatus returns the current health status.
func (p *ImageJobProcessor) GetHealthStatus() inbound.JobProcessorHealthStatus {
	p.jobsMu.RLock()
	defer p.jobsMu.RUnlock()

	status := p.healthStatus
	status.ActiveJobs = len(p.activeJobs)
	status.CompletedJobs = atomic.LoadInt64(&p.metrics.TotalJobsProcessed)
	status.FailedJobs = atomic.LoadInt64(&p.metrics.TotalJobsFailed)
	status.AverageJobTime = p.metrics.AverageProcessingTime
	return status
}

// GetMetrics returns job processing metrics.
func (p *ImageJobProcessor) GetMetrics() inbound.JobProcessorMetrics {
	p.jobsMu.RLock()
	averageTime := p.metrics.AverageProcessingTime
	p.jobsMu.RUnlock()

	return inbound.JobProcessorMetrics{
		TotalJobsProcessed:    atomic.LoadInt64(&p.metrics.TotalJobsProcessed),
		TotalJobsFailed:       atomic.LoadInt64(&p.metrics.TotalJobsFailed),
		TotalJobsRetried:      atomic.LoadInt64(&p.metrics.TotalJobsRetried),
		AverageProcessingTime: averageTime,
		ImagesAnalyzed:        atomic.LoadInt64(&p.metrics.ImagesAnalyzed),
		EmbeddingsCreated:     atomic.LoadInt64(&p.metrics.EmbeddingsCreated),
		VectorsStored:         atomic.LoadInt64(&p.metrics.VectorsStored),
		BytesDownloaded:       atomic.LoadInt64(&p.metrics.BytesDownloaded),
	}
}

// runPipeline executes the processing stages for one job.
func (p *ImageJobProcessor) runPipeline(
	ctx context.Context,
	job *messaging.ProcessingJob,
	execution *JobExecution,
) error {
	p.setStage(execution, stageLoadImage)
	image, err := p.loadImage(ctx, job)
	if err != nil {
		return err
	}

	if err := p.startImage(ctx, image); err != nil {
		return err
	}

	p.setStage(execution, stageDownload)
	data, err := p.downloadImage(ctx, job, execution)
	if err != nil {
		return err
	}

	p.setStage(execution, stageAnalysis)
	analysis, err := p.analyzeImage(ctx, job, data)
	if err != nil {
		return err
	}

	p.setStage(execution, stageEmbedding)
	vector, err := p.buildVector(ctx, job, analysis, execution)
	if err != nil {
		return err
	}

	if vector != nil {
		p.setStage(execution, stagePersistVector)
		if err := p.storeVector(ctx, job, vector); err != nil {
			return err
		}
	}

	p.setStage(execution, stageCompleteImage)
	return p.completeImage(ctx, image)
}

// loadImage fetches the image record the job refers to.
func (p *ImageJobProcessor) loadImage(ctx context.Context, job *messaging.ProcessingJob) (*entity.GameImage, error) {
	image, err := p.imageRepo.FindByID(ctx, job.ImageID)
	if err != nil {
		return nil, fmt.Errorf("failed to load image %s: %w", job.ImageID, err)
	}
	if image == nil {
		return nil, fmt.Errorf("%w: %s", errImageNotFound, job.ImageID)
	}
	if image.Status() == valueobject.ImageStatusCompleted {
		return nil, fmt.Errorf("%w: %s", errImageAlreadyProcessed, job.ImageID)
	}
	return image, nil
}

// startImage persists the transition into processing.
func (p *ImageJobProcessor) startImage(ctx context.Context, image *entity.GameImage) error {
	if err := image.StartProcessing(); err != nil {
		return fmt.Errorf("image %s cannot start processing: %w", image.ID(), err)
	}
	if err := p.imageRepo.Update(ctx, image); err != nil {
		return fmt.Errorf("failed to persist processing status for image %s: %w", image.ID(), err)
	}
	return nil
}

// downloadImage fetches the stored file bytes from object storage.
func (p *ImageJobProcessor) downloadImage(
	ctx context.Context,
	job *messaging.ProcessingJob,
	execution *JobExecution,
) ([]byte, error) {
	data, err := p.storage.Download(ctx, job.BlobPath)
	if err != nil {
		return nil, fmt.Errorf("failed to download image from %s: %w", job.BlobPath, err)
	}

	size := int64(len(data))
	if execution.Progress != nil {
		atomic.AddInt64(&execution.Progress.BytesDownloaded, size)
	}
	atomic.AddInt64(&p.metrics.BytesDownloaded, size)
	p.jobMetrics.RecordDownloadedBytes(ctx, size)

	slogger.Debug(ctx, "Image downloaded", slogger.Fields{
		"job_id":    job.JobID,
		"blob_path": job.BlobPath,
		"bytes":     size,
	})
	return data, nil
}

// analyzeImage runs the vision model over the downloaded bytes.
func (p *ImageJobProcessor) analyzeImage(
	ctx context.Context,
	job *messaging.ProcessingJob,
	data []byte,
) (*outbound.ImageAnalysis, error) {
	contentType := mime.TypeByExtension(filepath.Ext(job.Filename))

	analysis, err := p.analysis.AnalyzeImage(ctx, data, contentType)
	if err != nil {
		return nil, fmt.Errorf("failed to analyze image %s: %w", job.ImageID, err)
	}

	atomic.AddInt64(&p.metrics.ImagesAnalyzed, 1)
	p.jobMetrics.RecordImageAnalyzed(ctx)

	slogger.Info(ctx, "Image analysis completed", slogger.Fields{
		"job_id":            job.JobID,
		"ocr_chars":         len(analysis.OCRText),
		"description_chars": len(analysis.Description),
		"labels":            len(analysis.Labels),
	})
	return analysis, nil
}

// pairText is one extraction method's content awaiting its embedding.
type pairText struct {
	method  string
	content string
}

// buildVector embeds every non-empty extraction result and assembles the
// vector row. Returns (nil, nil) when the image yielded no content at all,
// which is a valid outcome, not a failure.
func (p *ImageJobProcessor) buildVector(
	ctx context.Context,
	job *messaging.ProcessingJob,
	analysis *outbound.ImageAnalysis,
	execution *JobExecution,
) (*entity.GameVector, error) {
	pairs := make([]pairText, 0, 3)
	if analysis.OCRText != "" {
		pairs = append(pairs, pairText{method: "ocr", content: analysis.OCRText})
	}
	if analysis.Description != "" {
		pairs = append(pairs, pairText{method: "description", content: analysis.Description})
	}
	if labels := strings.Join(analysis.Labels, ", "); labels != "" {
		pairs = append(pairs, pairText{method: "labels", content: labels})
	}

	if len(pairs) == 0 {
		slogger.Info(ctx, "Image yielded no extractable content, skipping vector storage", slogger.Fields{
			"job_id":   job.JobID,
			"image_id": job.ImageID.String(),
		})
		return nil, nil
	}
	if execution.Progress != nil {
		atomic.AddInt64(&execution.Progress.PairsExtracted, int64(len(pairs)))
	}

	embeddings, err := p.embedPairs(ctx, job, pairs)
	if err != nil {
		return nil, err
	}

	var (
		ocrContent, descriptionContent, labelsContent       string
		ocrEmbedding, descriptionEmbedding, labelsEmbedding []float32
	)
	embedded := 0
	for i, pair := range pairs {
		if len(embeddings[i]) == 0 {
			// The pair lost its embedding; storing the content alone
			// would make the row unrankable for this method.
			continue
		}
		embedded++
		switch pair.method {
		case "ocr":
			ocrContent, ocrEmbedding = pair.content, embeddings[i]
		case "description":
			descriptionContent, descriptionEmbedding = pair.content, embeddings[i]
		case "labels":
			labelsContent, labelsEmbedding = pair.content, embeddings[i]
		}
	}

	vector, err := entity.NewGameVector(
		job.GameID,
		job.ImageID,
		ocrContent, ocrEmbedding,
		descriptionContent, descriptionEmbedding,
		labelsContent, labelsEmbedding,
		pageNumberFromMetadata(job.Metadata),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to assemble vector for image %s: %w", job.ImageID, err)
	}

	if execution.Progress != nil {
		atomic.AddInt64(&execution.Progress.EmbeddingsCreated, int64(embedded))
	}
	atomic.AddInt64(&p.metrics.EmbeddingsCreated, int64(embedded))
	p.jobMetrics.RecordEmbeddingsCreated(ctx, embedded)

	return vector, nil
}

// embedPairs embeds all pair contents in one batch request, falling back
// to per-pair requests when the batch fails. A pair whose embedding cannot
// be generated is dropped; the job only fails when every pair is lost.
func (p *ImageJobProcessor) embedPairs(
	ctx context.Context,
	job *messaging.ProcessingJob,
	pairs []pairText,
) ([][]float32, error) {
	texts := make([]string, len(pairs))
	for i, pair := range pairs {
		texts[i] = pair.content
	}

	embeddings, err := p.analysis.GenerateBatchEmbeddings(ctx, texts)
	if err == nil {
		return embeddings, nil
	}

	slogger.Warn(ctx, "Batch embedding failed, embedding pairs individually", slogger.Fields{
		"job_id": job.JobID,
		"pairs":  len(pairs),
		"error":  err.Error(),
	})

	embeddings = make([][]float32, len(pairs))
	succeeded := 0
	for i, pair := range pairs {
		vec, embedErr := p.analysis.GenerateEmbedding(ctx, pair.content)
		if embedErr != nil {
			slogger.Warn(ctx, "Dropping content pair without embedding", slogger.Fields{
				"job_id": job.JobID,
				"method": pair.method,
				"error":  embedErr.Error(),
			})
			continue
		}
		embeddings[i] = vec
		succeeded++
	}

	if succeeded == 0 {
		return nil, fmt.Errorf("failed to embed extracted content for image %s: %w", job.ImageID, err)
	}
	return embeddings, nil
}

// storeVector replaces any previous rows for the image with the new one.
func (p *ImageJobProcessor) storeVector(
	ctx context.Context,
	job *messaging.ProcessingJob,
	vector *entity.GameVector,
) error {
	if err := p.vectorRepo.DeleteByImageID(ctx, job.ImageID); err != nil {
		return fmt.Errorf("failed to clear previous vectors for image %s: %w", job.ImageID, err)
	}
	if err := p.vectorRepo.SaveVector(ctx, vector); err != nil {
		return fmt.Errorf("failed to store vector for image %s: %w", job.ImageID, err)
	}

	atomic.AddInt64(&p.metrics.VectorsStored, 1)
	p.jobMetrics.RecordVectorStored(ctx)
	return nil
}

// completeImage persists the successful outcome on the image.
func (p *ImageJobProcessor) completeImage(ctx context.Context, image *entity.GameImage) error {
	if err := image.CompleteProcessing(); err != nil {
		return fmt.Errorf("image %s cannot complete: %w", image.ID(), err)
	}
	if err := p.imageRepo.Update(ctx, image); err != nil {
		return fmt.Errorf("failed to persist completion for image %s: %w", image.ID(), err)
	}
	return nil
}

// finishJob runs the success-side bookkeeping: queue status and batch
// progress.
func (p *ImageJobProcessor) finishJob(ctx context.Context, job *messaging.ProcessingJob) {
	bookCtx, cancel := p.bookkeepingContext(ctx)
	defer cancel()

	if err := p.jobQueue.MarkCompleted(bookCtx, job.JobID); err != nil {
		slogger.Warn(bookCtx, "Failed to record completed status for job", slogger.Fields{
			"job_id": job.JobID,
			"error":  err.Error(),
		})
	}

	if job.BatchID != nil {
		p.applyBatchProgress(bookCtx, job, true)
	}
}

// handleFailure runs the failure-side bookkeeping for one attempt: record
// the error, mark the image, requeue the job when budget remains, and
// count the failure against the batch only once the job is out of retries.
func (p *ImageJobProcessor) handleFailure(ctx context.Context, job *messaging.ProcessingJob, procErr error) {
	bookCtx, cancel := p.bookkeepingContext(ctx)
	defer cancel()

	slogger.Error(bookCtx, "Job processing failed", slogger.Fields{
		"job_id":      job.JobID,
		"image_id":    job.ImageID.String(),
		"retry_count": job.RetryCount,
		"error":       procErr.Error(),
	})

	if err := p.jobQueue.MarkFailed(bookCtx, job.JobID, procErr.Error()); err != nil {
		slogger.Warn(bookCtx, "Failed to record failure status for job", slogger.Fields{
			"job_id": job.JobID,
			"error":  err.Error(),
		})
	}

	// A job whose image row vanished cannot heal through retries and has
	// no outcome slot in any batch; drop it here.
	if errors.Is(procErr, errImageNotFound) {
		slogger.Warn(bookCtx, "Dropping job for missing image", slogger.Fields{
			"job_id":   job.JobID,
			"image_id": job.ImageID.String(),
		})
		return
	}

	image := p.markImageFailed(bookCtx, job, procErr)

	requeued, err := p.jobQueue.Retry(bookCtx, job)
	if err != nil {
		slogger.Error(bookCtx, "Failed to requeue job for retry", slogger.Fields{
			"job_id": job.JobID,
			"error":  err.Error(),
		})
	}

	if requeued {
		atomic.AddInt64(&p.metrics.TotalJobsRetried, 1)
		p.jobMetrics.RecordJobRetried(bookCtx, job.RetryCount)
		p.markImageRetrying(bookCtx, image)
		slogger.Info(bookCtx, "Job requeued for retry", slogger.Fields{
			"job_id":      job.JobID,
			"retry_count": job.RetryCount,
			"max_retries": job.MaxRetries,
		})
		return
	}

	// Out of retries: this image's outcome is final for the current batch
	// attempt.
	if job.BatchID != nil {
		p.applyBatchProgress(bookCtx, job, false)
	}
}

// markImageFailed persists the failure on the image record. Returns the
// image when it could be loaded, nil otherwise.
func (p *ImageJobProcessor) markImageFailed(
	ctx context.Context,
	job *messaging.ProcessingJob,
	procErr error,
) *entity.GameImage {
	image, err := p.imageRepo.FindByID(ctx, job.ImageID)
	if err != nil || image == nil {
		slogger.Warn(ctx, "Cannot record failure on image", slogger.Fields{
			"job_id":   job.JobID,
			"image_id": job.ImageID.String(),
		})
		return nil
	}

	if err := image.FailProcessing(procErr.Error()); err != nil {
		slogger.Warn(ctx, "Image failure transition rejected", slogger.Fields{
			"image_id": image.ID().String(),
			"status":   image.Status().String(),
			"error":    err.Error(),
		})
		return image
	}
	if err := p.imageRepo.Update(ctx, image); err != nil {
		slogger.Error(ctx, "Failed to persist failure status for image", slogger.Fields{
			"image_id": image.ID().String(),
			"error":    err.Error(),
		})
	}
	return image
}

// markImageRetrying flags a failed image for its next attempt.
func (p *ImageJobProcessor) markImageRetrying(ctx context.Context, image *entity.GameImage) {
	if image == nil || image.Status() != valueobject.ImageStatusFailed {
		return
	}
	if err := image.MarkRetrying(); err != nil {
		slogger.Warn(ctx, "Image retry transition rejected", slogger.Fields{
			"image_id": image.ID().String(),
			"error":    err.Error(),
		})
		return
	}
	if err := p.imageRepo.Update(ctx, image); err != nil {
		slogger.Warn(ctx, "Failed to persist retrying status for image", slogger.Fields{
			"image_id": image.ID().String(),
			"error":    err.Error(),
		})
	}
}

// applyBatchProgress records one image outcome on the batch and publishes
// the matching lifecycle events.
func (p *ImageJobProcessor) applyBatchProgress(ctx context.Context, job *messaging.ProcessingJob, success bool) {
	batch, statusChanged, err := p.batchRepo.ApplyProgress(ctx, *job.BatchID, success)
	if err != nil {
		slogger.Error(ctx, "Failed to record batch progress", slogger.Fields{
			"job_id":   job.JobID,
			"batch_id": job.BatchID.String(),
			"success":  success,
			"error":    err.Error(),
		})
		return
	}

	imageID := job.ImageID
	p.publishEvent(ctx, outbound.BatchEvent{
		Type:            outbound.BatchEventProgress,
		BatchID:         batch.ID(),
		GameID:          batch.GameID(),
		ImageID:         &imageID,
		Status:          batch.Status().String(),
		TotalImages:     batch.TotalImages(),
		ProcessedImages: batch.ProcessedImages(),
		FailedImages:    batch.FailedImages(),
		OccurredAt:      time.Now().UTC(),
	})

	if statusChanged && batch.IsTerminal() {
		p.publishEvent(ctx, outbound.BatchEvent{
			Type:            outbound.BatchEventCompleted,
			BatchID:         batch.ID(),
			GameID:          batch.GameID(),
			Status:          batch.Status().String(),
			TotalImages:     batch.TotalImages(),
			ProcessedImages: batch.ProcessedImages(),
			FailedImages:    batch.FailedImages(),
			OccurredAt:      time.Now().UTC(),
		})
	}
}

// publishEvent publishes one batch event, logging instead of failing the
// job when the publisher is unavailable.
func (p *ImageJobProcessor) publishEvent(ctx context.Context, event outbound.BatchEvent) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.PublishBatchEvent(ctx, event); err != nil {
		slogger.Warn(ctx, "Failed to publish batch event", slogger.Fields{
			"event_type": string(event.Type),
			"batch_id":   event.BatchID.String(),
			"error":      err.Error(),
		})
	}
}

// dropDuplicateJob acknowledges a job whose image was already processed,
// without touching image or batch state.
func (p *ImageJobProcessor) dropDuplicateJob(ctx context.Context, job *messaging.ProcessingJob) {
	bookCtx, cancel := p.bookkeepingContext(ctx)
	defer cancel()

	slogger.Info(bookCtx, "Image already processed, dropping duplicate job", slogger.Fields{
		"job_id":   job.JobID,
		"image_id": job.ImageID.String(),
	})
	if err := p.jobQueue.MarkCompleted(bookCtx, job.JobID); err != nil {
		slogger.Warn(bookCtx, "Failed to record completed status for job", slogger.Fields{
			"job_id": job.JobID,
			"error":  err.Error(),
		})
	}
}

// bookkeepingContext derives the context used for post-job writes.
func (p *ImageJobProcessor) bookkeepingContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), bookkeepingTimeout)
}

// setStage records the stage a job execution is entering.
func (p *ImageJobProcessor) setStage(execution *JobExecution, stage string) {
	if execution.Progress == nil {
		return
	}
	execution.mu.Lock()
	execution.Progress.Stage = stage
	execution.mu.Unlock()
}

// currentStage reads the stage a job execution last entered.
func (p *ImageJobProcessor) currentStage(execution *JobExecution) string {
	if execution.Progress == nil {
		return ""
	}
	execution.mu.RLock()
	defer execution.mu.RUnlock()
	return execution.Progress.Stage
}

// recordSuccess updates processor counters after a successful job.
func (p *ImageJobProcessor) recordSuccess(ctx context.Context, duration time.Duration) {
	atomic.AddInt64(&p.metrics.TotalJobsProcessed, 1)
	p.jobMetrics.RecordJobCompleted(ctx, duration)

	p.jobsMu.Lock()
	p.updateAverageLocked(duration)
	p.healthStatus.LastJobTime = time.Now()
	p.jobsMu.Unlock()
}

// recordFailure updates processor counters after a failed attempt.
func (p *ImageJobProcessor) recordFailure(ctx context.Context, duration time.Duration, stage string, err error) {
	atomic.AddInt64(&p.metrics.TotalJobsFailed, 1)
	p.jobMetrics.RecordJobFailed(ctx, duration, stage)

	p.jobsMu.Lock()
	p.updateAverageLocked(duration)
	p.healthStatus.LastJobTime = time.Now()
	p.healthStatus.LastError = err.Error()
	p.jobsMu.Unlock()
}

// updateAverageLocked folds one duration into the running average. Callers
// must hold jobsMu.
func (p *ImageJobProcessor) updateAverageLocked(duration time.Duration) {
	if p.metrics.AverageProcessingTime == 0 {
		p.metrics.AverageProcessingTime = duration
		return
	}
	p.metrics.AverageProcessingTime = (p.metrics.AverageProcessingTime*9 + duration) / 10
}

// updateJobStatus safely updates the job status.
func (p *ImageJobProcessor) updateJobStatus(jobID string, status string) {
	p.jobsMu.RLock()
	execution, exists := p.activeJobs[jobID]
	p.jobsMu.RUnlock()

	if exists {
		execution.mu.Lock()
		execution.Status = status
		execution.mu.Unlock()
	}

	if status != jobStatusRunning {
		p.jobsMu.Lock()
		delete(p.activeJobs, jobID)
		p.healthStatus.ActiveJobs = len(p.activeJobs)
		p.jobsMu.Unlock()
	}
}

// pageNumberFromMetadata parses the optional page number a job carries.
func pageNumberFromMetadata(metadata map[string]string) *int {
	raw, ok := metadata[messaging.MetadataPageNumber]
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return nil
	}
	return &n
}
