package outbound

import (
	"context"
	"time"

	"github.com/shini559/Gaming-advisor-sub000/internal/domain/entity"
	"github.com/shini559/Gaming-advisor-sub000/internal/domain/valueobject"

	"github.com/google/uuid"
)

// ImageBatchRepository defines the outbound port for batch persistence.
type ImageBatchRepository interface {
	Save(ctx context.Context, batch *entity.ImageBatch) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.ImageBatch, error)
	// FindByIDForUpdate loads the batch row under a row lock so a
	// fetch-modify-persist cycle cannot interleave with another worker.
	// Must run inside a transaction.
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*entity.ImageBatch, error)
	FindByGameID(ctx context.Context, gameID uuid.UUID, filters BatchFilters) ([]*entity.ImageBatch, int, error)
	Update(ctx context.Context, batch *entity.ImageBatch) error
	// ApplyProgress records one image outcome for the batch inside a
	// row-locked transaction and returns the refreshed batch plus
	// whether its status changed, so the caller can publish lifecycle
	// events after commit.
	ApplyProgress(ctx context.Context, batchID uuid.UUID, success bool) (*entity.ImageBatch, bool, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// GameImageRepository defines the outbound port for image persistence.
type GameImageRepository interface {
	Save(ctx context.Context, image *entity.GameImage) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.GameImage, error)
	FindByBatchID(ctx context.Context, batchID uuid.UUID) ([]*entity.GameImage, error)
	FindByBatchIDAndStatus(
		ctx context.Context,
		batchID uuid.UUID,
		status valueobject.ImageStatus,
	) ([]*entity.GameImage, error)
	// FindStaleUploaded returns images still in uploaded state whose
	// batch is not terminal and that were created before the cutoff.
	// Used by the reconciliation sweep to re-enqueue lost jobs.
	FindStaleUploaded(ctx context.Context, cutoff time.Time, limit int) ([]*entity.GameImage, error)
	Update(ctx context.Context, image *entity.GameImage) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// BatchFilters represents filters for batch queries.
type BatchFilters struct {
	Status *valueobject.BatchStatus
	Limit  int
	Offset int
}
