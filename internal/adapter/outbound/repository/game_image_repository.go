package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/shini559/Gaming-advisor-sub000/internal/domain/entity"
	"github.com/shini559/Gaming-advisor-sub000/internal/domain/valueobject"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const gameImageColumns = `id, game_id, batch_id, file_path, blob_url, original_filename,
			   file_size, uploaded_by, status, processing_error, retry_count,
			   created_at, processing_started_at, processing_completed_at`

// PostgreSQLGameImageRepository implements the GameImageRepository interface.
type PostgreSQLGameImageRepository struct {
	pool *pgxpool.Pool
}

// NewPostgreSQLGameImageRepository creates a new PostgreSQL game image repository.
func NewPostgreSQLGameImageRepository(pool *pgxpool.Pool) *PostgreSQLGameImageRepository {
	return &PostgreSQLGameImageRepository{
		pool: pool,
	}
}

// Save saves a game image to the database.
func (r *PostgreSQLGameImageRepository) Save(ctx context.Context, image *entity.GameImage) error {
	if image == nil {
		return ErrInvalidArgument
	}

	query := `
		INSERT INTO gameadvisor.game_images (
			id, game_id, batch_id, file_path, blob_url, original_filename,
			file_size, uploaded_by, status, processing_error, retry_count,
			created_at, processing_started_at, processing_completed_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
		)`

	qi := GetQueryInterface(ctx, r.pool)
	_, err := qi.Exec(ctx, query,
		image.ID(),
		image.GameID(),
		image.BatchID(),
		image.FilePath(),
		image.BlobURL(),
		image.OriginalFilename(),
		image.FileSize(),
		image.UploadedBy(),
		image.Status().String(),
		image.ProcessingError(),
		image.RetryCount(),
		image.CreatedAt(),
		image.ProcessingStartedAt(),
		image.ProcessingCompletedAt(),
	)
	if err != nil {
		return WrapError(err, "save game image")
	}

	return nil
}

// FindByID finds a game image by its ID. Returns nil without error when no
// image exists.
func (r *PostgreSQLGameImageRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.GameImage, error) {
	if id == uuid.Nil {
		return nil, ErrInvalidArgument
	}

	query := `
		SELECT ` + gameImageColumns + `
		FROM gameadvisor.game_images
		WHERE id = $1`

	qi := GetQueryInterface(ctx, r.pool)
	row := qi.QueryRow(ctx, query, id)

	image, err := r.scanGameImageRow(row)
	if err != nil {
		if IsNotFoundError(err) {
			return nil, nil
		}
		return nil, WrapError(err, "find game image by ID")
	}

	return image, nil
}

// FindByBatchID finds all images belonging to a batch, oldest first.
func (r *PostgreSQLGameImageRepository) FindByBatchID(
	ctx context.Context,
	batchID uuid.UUID,
) ([]*entity.GameImage, error) {
	if batchID == uuid.Nil {
		return nil, ErrInvalidArgument
	}

	query := `
		SELECT ` + gameImageColumns + `
		FROM gameadvisor.game_images
		WHERE batch_id = $1
		ORDER BY created_at ASC`

	return r.queryGameImages(ctx, "find game images by batch", query, batchID)
}

// FindByBatchIDAndStatus finds images in a batch with a given status,
// oldest first.
func (r *PostgreSQLGameImageRepository) FindByBatchIDAndStatus(
	ctx context.Context,
	batchID uuid.UUID,
	status valueobject.ImageStatus,
) ([]*entity.GameImage, error) {
	if batchID == uuid.Nil {
		return nil, ErrInvalidArgument
	}

	query := `
		SELECT ` + gameImageColumns + `
		FROM gameadvisor.game_images
		WHERE batch_id = $1 AND status = $2
		ORDER BY created_at ASC`

	return r.queryGameImages(ctx, "find game images by batch and status", query, batchID, status.String())
}

// FindStaleUploaded returns images still in uploaded state whose batch is
// not terminal and that were created before the cutoff. These are images
// whose queue job was lost, so the reconciliation sweep re-enqueues them.
func (r *PostgreSQLGameImageRepository) FindStaleUploaded(
	ctx context.Context,
	cutoff time.Time,
	limit int,
) ([]*entity.GameImage, error) {
	if limit <= 0 {
		return nil, ErrInvalidArgument
	}

	query := `
		SELECT i.id, i.game_id, i.batch_id, i.file_path, i.blob_url, i.original_filename,
			   i.file_size, i.uploaded_by, i.status, i.processing_error, i.retry_count,
			   i.created_at, i.processing_started_at, i.processing_completed_at
		FROM gameadvisor.game_images i
		JOIN gameadvisor.image_batches b ON i.batch_id = b.id
		WHERE i.status = 'uploaded'
		  AND i.created_at < $1
		  AND b.status NOT IN ('completed', 'failed', 'partially_completed')
		ORDER BY i.created_at ASC
		LIMIT $2`

	return r.queryGameImages(ctx, "find stale uploaded images", query, cutoff, limit)
}

// queryGameImages executes a multi-row image query and hydrates the entities.
func (r *PostgreSQLGameImageRepository) queryGameImages(
	ctx context.Context,
	operation string,
	query string,
	args ...interface{},
) ([]*entity.GameImage, error) {
	qi := GetQueryInterface(ctx, r.pool)
	rows, err := qi.Query(ctx, query, args...)
	if err != nil {
		return nil, WrapError(err, operation)
	}
	defer rows.Close()

	var images []*entity.GameImage
	for rows.Next() {
		image, scanErr := r.scanGameImageRow(rows)
		if scanErr != nil {
			return nil, WrapError(scanErr, operation)
		}
		images = append(images, image)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, WrapError(rowsErr, operation)
	}

	return images, nil
}

// Update updates a game image in the database.
func (r *PostgreSQLGameImageRepository) Update(ctx context.Context, image *entity.GameImage) error {
	if image == nil {
		return ErrInvalidArgument
	}

	query := `
		UPDATE gameadvisor.game_images
		SET file_path = $2, blob_url = $3, original_filename = $4, file_size = $5,
			status = $6, processing_error = $7, retry_count = $8,
			processing_started_at = $9, processing_completed_at = $10
		WHERE id = $1`

	qi := GetQueryInterface(ctx, r.pool)
	result, err := qi.Exec(ctx, query,
		image.ID(),
		image.FilePath(),
		image.BlobURL(),
		image.OriginalFilename(),
		image.FileSize(),
		image.Status().String(),
		image.ProcessingError(),
		image.RetryCount(),
		image.ProcessingStartedAt(),
		image.ProcessingCompletedAt(),
	)
	if err != nil {
		return WrapError(err, "update game image")
	}

	if result.RowsAffected() == 0 {
		return WrapError(ErrNotFound, "update game image")
	}

	return nil
}

// Delete removes a game image. Vector rows produced from the image are
// removed by the cascading foreign key.
func (r *PostgreSQLGameImageRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return ErrInvalidArgument
	}

	query := `DELETE FROM gameadvisor.game_images WHERE id = $1`

	qi := GetQueryInterface(ctx, r.pool)
	result, err := qi.Exec(ctx, query, id)
	if err != nil {
		return WrapError(err, "delete game image")
	}

	if result.RowsAffected() == 0 {
		return WrapError(ErrNotFound, "delete game image")
	}

	return nil
}

// scanGameImageRow hydrates one GameImage entity from a row.
func (r *PostgreSQLGameImageRepository) scanGameImageRow(row pgx.Row) (*entity.GameImage, error) {
	var id, gameID, batchID uuid.UUID
	var filePath, blobURL, originalFilename, statusStr, processingError string
	var fileSize int64
	var uploadedBy *uuid.UUID
	var retryCount int
	var createdAt time.Time
	var processingStartedAt, processingCompletedAt *time.Time

	err := row.Scan(
		&id, &gameID, &batchID, &filePath, &blobURL, &originalFilename,
		&fileSize, &uploadedBy, &statusStr, &processingError, &retryCount,
		&createdAt, &processingStartedAt, &processingCompletedAt,
	)
	if err != nil {
		return nil, err
	}

	status, err := valueobject.NewImageStatus(statusStr)
	if err != nil {
		return nil, fmt.Errorf("invalid image status: %w", err)
	}

	return entity.RestoreGameImage(
		id,
		gameID,
		batchID,
		filePath,
		blobURL,
		originalFilename,
		fileSize,
		uploadedBy,
		status,
		processingError,
		retryCount,
		createdAt,
		processingStartedAt,
		processingCompletedAt,
	), nil
}
