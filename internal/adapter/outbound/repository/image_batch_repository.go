package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shini559/Gaming-advisor-sub000/internal/domain/entity"
	"github.com/shini559/Gaming-advisor-sub000/internal/domain/valueobject"
	"github.com/shini559/Gaming-advisor-sub000/internal/port/outbound"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const imageBatchColumns = `id, game_id, total_images, processed_images, failed_images,
			   status, retry_count, max_retries, created_at, processing_started_at, completed_at`

// PostgreSQLImageBatchRepository implements the ImageBatchRepository interface.
//
// Progress Counter Consistency:
// The processed_images and failed_images counters are only ever advanced
// through ApplyProgress, which re-reads the row under FOR UPDATE inside a
// transaction before applying the outcome. Plain Update calls persist
// whatever state the caller already holds and are reserved for flows that
// own the batch exclusively (creation, retry kickoff).
type PostgreSQLImageBatchRepository struct {
	pool      *pgxpool.Pool
	txManager *TransactionManager
}

// NewPostgreSQLImageBatchRepository creates a new PostgreSQL image batch repository.
func NewPostgreSQLImageBatchRepository(pool *pgxpool.Pool) *PostgreSQLImageBatchRepository {
	return &PostgreSQLImageBatchRepository{
		pool:      pool,
		txManager: NewTransactionManager(pool),
	}
}

// Save saves an image batch to the database.
func (r *PostgreSQLImageBatchRepository) Save(ctx context.Context, batch *entity.ImageBatch) error {
	if batch == nil {
		return ErrInvalidArgument
	}

	query := `
		INSERT INTO gameadvisor.image_batches (
			id, game_id, total_images, processed_images, failed_images,
			status, retry_count, max_retries, created_at, processing_started_at, completed_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
		)`

	qi := GetQueryInterface(ctx, r.pool)
	_, err := qi.Exec(ctx, query,
		batch.ID(),
		batch.GameID(),
		batch.TotalImages(),
		batch.ProcessedImages(),
		batch.FailedImages(),
		batch.Status().String(),
		batch.RetryCount(),
		batch.MaxRetries(),
		batch.CreatedAt(),
		batch.ProcessingStartedAt(),
		batch.CompletedAt(),
	)
	if err != nil {
		return WrapError(err, "save image batch")
	}

	return nil
}

// FindByID finds an image batch by its ID. Returns nil without error when
// no batch exists.
func (r *PostgreSQLImageBatchRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.ImageBatch, error) {
	if id == uuid.Nil {
		return nil, ErrInvalidArgument
	}

	query := `
		SELECT ` + imageBatchColumns + `
		FROM gameadvisor.image_batches
		WHERE id = $1`

	return r.queryImageBatch(ctx, query, id)
}

// FindByIDForUpdate finds an image batch by its ID with a row lock, so a
// fetch-modify-persist cycle cannot interleave with another worker. Must
// run inside a transaction started by the TransactionManager.
func (r *PostgreSQLImageBatchRepository) FindByIDForUpdate(
	ctx context.Context,
	id uuid.UUID,
) (*entity.ImageBatch, error) {
	if id == uuid.Nil {
		return nil, ErrInvalidArgument
	}

	query := `
		SELECT ` + imageBatchColumns + `
		FROM gameadvisor.image_batches
		WHERE id = $1
		FOR UPDATE`

	return r.queryImageBatch(ctx, query, id)
}

// queryImageBatch executes a single-row batch query and hydrates the entity.
func (r *PostgreSQLImageBatchRepository) queryImageBatch(
	ctx context.Context,
	query string,
	args ...interface{},
) (*entity.ImageBatch, error) {
	qi := GetQueryInterface(ctx, r.pool)
	row := qi.QueryRow(ctx, query, args...)

	var id, gameID uuid.UUID
	var totalImages, processedImages, failedImages, retryCount, maxRetries int
	var statusStr string
	var createdAt time.Time
	var processingStartedAt, completedAt *time.Time

	err := row.Scan(
		&id, &gameID, &totalImages, &processedImages, &failedImages,
		&statusStr, &retryCount, &maxRetries, &createdAt, &processingStartedAt, &completedAt,
	)
	if err != nil {
		if IsNotFoundError(err) {
			return nil, nil
		}
		return nil, WrapError(err, "find image batch")
	}

	return r.scanImageBatchFromTime(
		id, gameID, totalImages, processedImages, failedImages,
		statusStr, retryCount, maxRetries, createdAt, processingStartedAt, completedAt,
	)
}

func (r *PostgreSQLImageBatchRepository) validateFilters(filters outbound.BatchFilters) error {
	if filters.Limit < 0 {
		return ErrInvalidArgument
	}
	if filters.Offset < 0 {
		return ErrInvalidArgument
	}
	return nil
}

func (r *PostgreSQLImageBatchRepository) buildWhereClause(filters outbound.BatchFilters) (string, []interface{}) {
	var whereConditions []string
	args := []interface{}{}
	argIndex := 2

	if filters.Status != nil {
		whereConditions = append(whereConditions, fmt.Sprintf("status = $%d", argIndex))
		args = append(args, filters.Status.String())
	}

	whereClause := ""
	if len(whereConditions) > 0 {
		whereClause = " AND " + strings.Join(whereConditions, " AND ")
	}

	return whereClause, args
}

func (r *PostgreSQLImageBatchRepository) getPaginationParams(filters outbound.BatchFilters) (int, int) {
	limit := 50
	if filters.Limit > 0 {
		limit = filters.Limit
	}

	offset := 0
	if filters.Offset > 0 {
		offset = filters.Offset
	}

	return limit, offset
}

// FindByGameID finds batches belonging to a game with filters, newest first.
func (r *PostgreSQLImageBatchRepository) FindByGameID(
	ctx context.Context,
	gameID uuid.UUID,
	filters outbound.BatchFilters,
) ([]*entity.ImageBatch, int, error) {
	if gameID == uuid.Nil {
		return nil, 0, ErrInvalidArgument
	}
	if err := r.validateFilters(filters); err != nil {
		return nil, 0, err
	}

	baseQuery := `FROM gameadvisor.image_batches WHERE game_id = $1`
	whereClause, extraArgs := r.buildWhereClause(filters)
	args := append([]interface{}{gameID}, extraArgs...)
	orderBy := "ORDER BY created_at DESC"
	limit, offset := r.getPaginationParams(filters)

	qi := GetQueryInterface(ctx, r.pool)

	totalCount, rows, err := pagedQuery{
		selectColumns: "SELECT " + imageBatchColumns,
		baseQuery:     baseQuery,
		whereClause:   whereClause,
		orderBy:       orderBy,
		args:          args,
		limit:         limit,
		offset:        offset,
	}.run(ctx, qi)
	if err != nil {
		return nil, 0, err
	}

	// If offset is beyond total count or no rows, return empty results
	if rows == nil {
		return []*entity.ImageBatch{}, totalCount, nil
	}
	defer rows.Close()

	var batches []*entity.ImageBatch
	for rows.Next() {
		var id, rowGameID uuid.UUID
		var totalImages, processedImages, failedImages, retryCount, maxRetries int
		var statusStr string
		var createdAt time.Time
		var processingStartedAt, completedAt *time.Time

		scanErr := rows.Scan(
			&id, &rowGameID, &totalImages, &processedImages, &failedImages,
			&statusStr, &retryCount, &maxRetries, &createdAt, &processingStartedAt, &completedAt,
		)
		if scanErr != nil {
			return nil, 0, WrapError(scanErr, "scan image batch row")
		}

		batch, scanBatchErr := r.scanImageBatchFromTime(
			id, rowGameID, totalImages, processedImages, failedImages,
			statusStr, retryCount, maxRetries, createdAt, processingStartedAt, completedAt,
		)
		if scanBatchErr != nil {
			return nil, 0, scanBatchErr
		}

		batches = append(batches, batch)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, 0, WrapError(rowsErr, "iterate image batch rows")
	}

	return batches, totalCount, nil
}

// Update updates an image batch in the database.
func (r *PostgreSQLImageBatchRepository) Update(ctx context.Context, batch *entity.ImageBatch) error {
	if batch == nil {
		return ErrInvalidArgument
	}

	query := `
		UPDATE gameadvisor.image_batches
		SET total_images = $2, processed_images = $3, failed_images = $4,
			status = $5, retry_count = $6, max_retries = $7,
			processing_started_at = $8, completed_at = $9
		WHERE id = $1`

	qi := GetQueryInterface(ctx, r.pool)
	result, err := qi.Exec(ctx, query,
		batch.ID(),
		batch.TotalImages(),
		batch.ProcessedImages(),
		batch.FailedImages(),
		batch.Status().String(),
		batch.RetryCount(),
		batch.MaxRetries(),
		batch.ProcessingStartedAt(),
		batch.CompletedAt(),
	)
	if err != nil {
		return WrapError(err, "update image batch")
	}

	if result.RowsAffected() == 0 {
		return WrapError(ErrNotFound, "update image batch")
	}

	return nil
}

// ApplyProgress records one image outcome for the batch. The row is
// re-read under FOR UPDATE inside a retrying transaction, the outcome is
// applied through the entity rules, and the refreshed batch is persisted.
// Returns the refreshed batch and whether its status changed, so the
// caller can publish lifecycle events after commit.
func (r *PostgreSQLImageBatchRepository) ApplyProgress(
	ctx context.Context,
	batchID uuid.UUID,
	success bool,
) (*entity.ImageBatch, bool, error) {
	if batchID == uuid.Nil {
		return nil, false, ErrInvalidArgument
	}

	var updated *entity.ImageBatch
	var statusChanged bool

	err := r.txManager.WithTransactionRetry(ctx, 3, func(txCtx context.Context) error {
		batch, findErr := r.FindByIDForUpdate(txCtx, batchID)
		if findErr != nil {
			return findErr
		}
		if batch == nil {
			return WrapError(ErrNotFound, "apply batch progress")
		}

		statusBefore := batch.Status()

		var outcomeErr error
		if success {
			outcomeErr = batch.RecordSuccess()
		} else {
			outcomeErr = batch.RecordFailure()
		}
		if outcomeErr != nil {
			return outcomeErr
		}

		if updateErr := r.Update(txCtx, batch); updateErr != nil {
			return updateErr
		}

		updated = batch
		statusChanged = statusBefore != batch.Status()
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	return updated, statusChanged, nil
}

// Delete removes an image batch. Images that still reference the batch are
// removed by the cascading foreign key.
func (r *PostgreSQLImageBatchRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return ErrInvalidArgument
	}

	query := `DELETE FROM gameadvisor.image_batches WHERE id = $1`

	qi := GetQueryInterface(ctx, r.pool)
	result, err := qi.Exec(ctx, query, id)
	if err != nil {
		return WrapError(err, "delete image batch")
	}

	if result.RowsAffected() == 0 {
		return WrapError(ErrNotFound, "delete image batch")
	}

	return nil
}

// scanImageBatchFromTime converts a database row to an ImageBatch entity
// when timestamps are already parsed.
func (r *PostgreSQLImageBatchRepository) scanImageBatchFromTime(
	id, gameID uuid.UUID,
	totalImages, processedImages, failedImages int,
	statusStr string,
	retryCount, maxRetries int,
	createdAt time.Time,
	processingStartedAt, completedAt *time.Time,
) (*entity.ImageBatch, error) {
	status, err := valueobject.NewBatchStatus(statusStr)
	if err != nil {
		return nil, fmt.Errorf("invalid batch status: %w", err)
	}

	return entity.RestoreImageBatch(
		id,
		gameID,
		totalImages,
		processedImages,
		failedImages,
		status,
		retryCount,
		maxRetries,
		createdAt,
		processingStartedAt,
		completedAt,
	), nil
}
