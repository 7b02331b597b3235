package service

import (
	"context"
	"time"

	"github.com/shini559/Gaming-advisor-sub000/internal/application/common"
	"github.com/shini559/Gaming-advisor-sub000/internal/application/common/slogger"
	"github.com/shini559/Gaming-advisor-sub000/internal/domain/messaging"
	"github.com/shini559/Gaming-advisor-sub000/internal/port/inbound"
	"github.com/shini559/Gaming-advisor-sub000/internal/port/outbound"
)

const (
	defaultReconcileInterval = 10 * time.Minute
	defaultStaleThreshold    = 15 * time.Minute
	defaultSweepSize         = 100
)

// ImageReconciliationConfig holds the tunables for the reconciliation
// sweep.
type ImageReconciliationConfig struct {
	// Interval is the pause between two sweeps.
	Interval time.Duration
	// StaleThreshold is how long an image may sit in uploaded state
	// before the sweep considers its job lost.
	StaleThreshold time.Duration
	// SweepSize caps how many images one sweep re-enqueues.
	SweepSize int
	// MaxJobRetries is the retry budget stamped on re-enqueued jobs.
	MaxJobRetries int
}

// DefaultImageReconciliationService re-enqueues images that were persisted
// but never got a processing job, typically because the queue was down
// during batch creation. Re-enqueueing is idempotent: a reprocessed image
// replaces its own vector rows.
type DefaultImageReconciliationService struct {
	config    ImageReconciliationConfig
	imageRepo outbound.GameImageRepository
	jobQueue  outbound.JobQueue
}

// NewImageReconciliationService creates a new reconciliation service.
func NewImageReconciliationService(
	config ImageReconciliationConfig,
	imageRepo outbound.GameImageRepository,
	jobQueue outbound.JobQueue,
) inbound.ReconciliationService {
	if config.Interval <= 0 {
		config.Interval = defaultReconcileInterval
	}
	if config.StaleThreshold <= 0 {
		config.StaleThreshold = defaultStaleThreshold
	}
	if config.SweepSize <= 0 {
		config.SweepSize = defaultSweepSize
	}
	if config.MaxJobRetries <= 0 {
		config.MaxJobRetries = defaultMaxJobRetries
	}
	return &DefaultImageReconciliationService{
		config:    config,
		imageRepo: imageRepo,
		jobQueue:  jobQueue,
	}
}

// Run sweeps on the configured interval until the context is cancelled.
func (s *DefaultImageReconciliationService) Run(ctx context.Context) {
	slogger.Info(ctx, "Image reconciliation started", slogger.Fields{
		"interval":        s.config.Interval.String(),
		"stale_threshold": s.config.StaleThreshold.String(),
	})

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slogger.Info(ctx, "Image reconciliation stopped", nil)
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				slogger.Error(ctx, "Reconciliation sweep failed", slogger.Fields{
					"error": err.Error(),
				})
			}
		}
	}
}

// Sweep finds uploaded images older than the stale threshold and enqueues
// a fresh job for each. Images are handled independently; one enqueue
// failure does not stop the sweep.
func (s *DefaultImageReconciliationService) Sweep(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-s.config.StaleThreshold)

	images, err := s.imageRepo.FindStaleUploaded(ctx, cutoff, s.config.SweepSize)
	if err != nil {
		return 0, common.WrapServiceError(common.OpReconcileImages, err)
	}
	if len(images) == 0 {
		return 0, nil
	}

	requeued := 0
	for _, image := range images {
		batchID := image.BatchID()
		job := messaging.NewProcessingJob(
			image.ID(),
			image.GameID(),
			&batchID,
			image.FilePath(),
			image.OriginalFilename(),
			s.config.MaxJobRetries,
		)

		if _, err := s.jobQueue.Enqueue(ctx, job); err != nil {
			slogger.Warn(ctx, "Failed to re-enqueue stale image", slogger.Fields{
				"image_id": image.ID().String(),
				"batch_id": batchID.String(),
				"error":    err.Error(),
			})
			continue
		}
		requeued++
	}

	slogger.Info(ctx, "Reconciliation sweep completed", slogger.Fields{
		"stale":    len(images),
		"requeued": requeued,
	})
	return requeued, nil
}
