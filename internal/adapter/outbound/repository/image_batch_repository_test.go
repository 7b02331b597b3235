package repository

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shini559/Gaming-advisor-sub000/internal/domain/entity"
	"github.com/shini559/Gaming-advisor-sub000/internal/domain/valueobject"
	"github.com/shini559/Gaming-advisor-sub000/internal/port/outbound"

	"github.com/google/uuid"
)

// TestImageBatchRepository_ArgumentGuards verifies invalid arguments are
// rejected before any query is issued.
func TestImageBatchRepository_ArgumentGuards(t *testing.T) {
	repo := NewPostgreSQLImageBatchRepository(nil)
	ctx := context.Background()

	if err := repo.Save(ctx, nil); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Save(nil) error = %v, want ErrInvalidArgument", err)
	}
	if err := repo.Update(ctx, nil); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Update(nil) error = %v, want ErrInvalidArgument", err)
	}
	if _, err := repo.FindByID(ctx, uuid.Nil); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("FindByID(Nil) error = %v, want ErrInvalidArgument", err)
	}
	if _, err := repo.FindByIDForUpdate(ctx, uuid.Nil); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("FindByIDForUpdate(Nil) error = %v, want ErrInvalidArgument", err)
	}
	if err := repo.Delete(ctx, uuid.Nil); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Delete(Nil) error = %v, want ErrInvalidArgument", err)
	}
	if _, _, err := repo.ApplyProgress(ctx, uuid.Nil, true); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("ApplyProgress(Nil) error = %v, want ErrInvalidArgument", err)
	}
	if _, _, err := repo.FindByGameID(ctx, uuid.Nil, outbound.BatchFilters{}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("FindByGameID(Nil) error = %v, want ErrInvalidArgument", err)
	}
	if _, _, err := repo.FindByGameID(ctx, uuid.New(), outbound.BatchFilters{Limit: -1}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("FindByGameID(negative limit) error = %v, want ErrInvalidArgument", err)
	}
	if _, _, err := repo.FindByGameID(ctx, uuid.New(), outbound.BatchFilters{Offset: -1}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("FindByGameID(negative offset) error = %v, want ErrInvalidArgument", err)
	}
}

// TestImageBatchRepository_StatementSemantics asserts the parts of the SQL
// that carry behavior: the row lock on the locked read and the table each
// statement targets.
func TestImageBatchRepository_StatementSemantics(t *testing.T) {
	repo := NewPostgreSQLImageBatchRepository(nil)

	t.Run("Save inserts into image_batches", func(t *testing.T) {
		tx := newRecordingTx()
		batch := createTestBatch(t, 3)

		if err := repo.Save(recordingContext(tx), batch); err != nil {
			t.Fatalf("Save failed: %v", err)
		}

		query := tx.lastQuery()
		if !strings.Contains(query, "INSERT INTO gameadvisor.image_batches") {
			t.Errorf("Save query missing target table: %s", query)
		}
		if got := len(tx.lastArgs()); got != 11 {
			t.Errorf("Save bound %d arguments, want 11", got)
		}
	})

	t.Run("FindByIDForUpdate locks the row", func(t *testing.T) {
		tx := newRecordingTx()

		batch, err := repo.FindByIDForUpdate(recordingContext(tx), uuid.New())
		if err != nil {
			t.Fatalf("FindByIDForUpdate failed: %v", err)
		}
		if batch != nil {
			t.Error("Expected nil batch for missing row")
		}

		query := tx.lastQuery()
		if !strings.Contains(query, "FOR UPDATE") {
			t.Errorf("Locked read missing FOR UPDATE clause: %s", query)
		}
	})

	t.Run("FindByID does not lock", func(t *testing.T) {
		tx := newRecordingTx()

		if _, err := repo.FindByID(recordingContext(tx), uuid.New()); err != nil {
			t.Fatalf("FindByID failed: %v", err)
		}

		if strings.Contains(tx.lastQuery(), "FOR UPDATE") {
			t.Errorf("Plain read must not lock: %s", tx.lastQuery())
		}
	})

	t.Run("Update reports missing rows", func(t *testing.T) {
		tx := newRecordingTx()
		tx.execTag = "UPDATE 0"
		batch := createTestBatch(t, 3)

		err := repo.Update(recordingContext(tx), batch)
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Update on missing row error = %v, want ErrNotFound", err)
		}
	})

	t.Run("Delete reports missing rows", func(t *testing.T) {
		tx := newRecordingTx()
		tx.execTag = "DELETE 0"

		err := repo.Delete(recordingContext(tx), uuid.New())
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Delete on missing row error = %v, want ErrNotFound", err)
		}
	})

	t.Run("FindByGameID filters by status", func(t *testing.T) {
		tx := newRecordingTx()
		tx.rowScan = func(dest ...any) error {
			if count, ok := dest[0].(*int); ok {
				*count = 0
			}
			return nil
		}
		status := valueobject.BatchStatusProcessing

		batches, total, err := repo.FindByGameID(recordingContext(tx), uuid.New(), outbound.BatchFilters{
			Status: &status,
			Limit:  10,
		})
		if err != nil {
			t.Fatalf("FindByGameID failed: %v", err)
		}
		if total != 0 || len(batches) != 0 {
			t.Errorf("Expected empty result, got %d batches, total %d", len(batches), total)
		}

		countQuery := tx.lastQuery()
		if !strings.Contains(countQuery, "game_id = $1") {
			t.Errorf("Count query missing game filter: %s", countQuery)
		}
		if !strings.Contains(countQuery, "status = $2") {
			t.Errorf("Count query missing status filter: %s", countQuery)
		}
	})
}

// TestImageBatchRepository_SaveAndFind round-trips a batch through the
// database.
func TestImageBatchRepository_SaveAndFind(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	defer cleanupTestData(t, pool)

	repo := NewPostgreSQLImageBatchRepository(pool)
	ctx := context.Background()

	batch := createTestBatch(t, 5)
	if err := repo.Save(ctx, batch); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	found, err := repo.FindByID(ctx, batch.ID())
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if found == nil {
		t.Fatal("Expected batch, got nil")
	}

	if found.ID() != batch.ID() {
		t.Errorf("ID = %v, want %v", found.ID(), batch.ID())
	}
	if found.GameID() != batch.GameID() {
		t.Errorf("GameID = %v, want %v", found.GameID(), batch.GameID())
	}
	if found.TotalImages() != 5 {
		t.Errorf("TotalImages = %d, want 5", found.TotalImages())
	}
	if found.Status() != valueobject.BatchStatusPending {
		t.Errorf("Status = %v, want pending", found.Status())
	}
	if found.ProcessingStartedAt() != nil {
		t.Error("ProcessingStartedAt should be nil for a pending batch")
	}
}

// TestImageBatchRepository_FindByID_NotFound verifies the nil-without-error
// convention for missing batches.
func TestImageBatchRepository_FindByID_NotFound(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	repo := NewPostgreSQLImageBatchRepository(pool)

	found, err := repo.FindByID(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if found != nil {
		t.Errorf("Expected nil for missing batch, got %v", found.ID())
	}
}

// TestImageBatchRepository_FindByGameID verifies game scoping, status
// filtering and pagination.
func TestImageBatchRepository_FindByGameID(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	defer cleanupTestData(t, pool)

	repo := NewPostgreSQLImageBatchRepository(pool)
	ctx := context.Background()

	gameID := uuid.New()
	first, err := entity.NewImageBatch(gameID, 2, 3)
	if err != nil {
		t.Fatalf("Failed to create batch: %v", err)
	}
	second, err := entity.NewImageBatch(gameID, 4, 3)
	if err != nil {
		t.Fatalf("Failed to create batch: %v", err)
	}
	other := createTestBatch(t, 1)

	for _, b := range []*entity.ImageBatch{first, second, other} {
		if saveErr := repo.Save(ctx, b); saveErr != nil {
			t.Fatalf("Save failed: %v", saveErr)
		}
	}

	batches, total, err := repo.FindByGameID(ctx, gameID, outbound.BatchFilters{Limit: 10})
	if err != nil {
		t.Fatalf("FindByGameID failed: %v", err)
	}
	if total != 2 {
		t.Errorf("Total = %d, want 2", total)
	}
	if len(batches) != 2 {
		t.Fatalf("Got %d batches, want 2", len(batches))
	}
	for _, b := range batches {
		if b.GameID() != gameID {
			t.Errorf("Batch %v belongs to game %v, want %v", b.ID(), b.GameID(), gameID)
		}
	}

	pending := valueobject.BatchStatusPending
	filtered, total, err := repo.FindByGameID(ctx, gameID, outbound.BatchFilters{Status: &pending, Limit: 10})
	if err != nil {
		t.Fatalf("FindByGameID with status failed: %v", err)
	}
	if total != 2 || len(filtered) != 2 {
		t.Errorf("Pending filter: got %d batches, total %d, want 2/2", len(filtered), total)
	}

	processing := valueobject.BatchStatusProcessing
	filtered, total, err = repo.FindByGameID(ctx, gameID, outbound.BatchFilters{Status: &processing, Limit: 10})
	if err != nil {
		t.Fatalf("FindByGameID with status failed: %v", err)
	}
	if total != 0 || len(filtered) != 0 {
		t.Errorf("Processing filter: got %d batches, total %d, want 0/0", len(filtered), total)
	}

	page, total, err := repo.FindByGameID(ctx, gameID, outbound.BatchFilters{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("FindByGameID with pagination failed: %v", err)
	}
	if total != 2 {
		t.Errorf("Paginated total = %d, want 2", total)
	}
	if len(page) != 1 {
		t.Errorf("Paginated page size = %d, want 1", len(page))
	}

	empty, total, err := repo.FindByGameID(ctx, gameID, outbound.BatchFilters{Limit: 10, Offset: 50})
	if err != nil {
		t.Fatalf("FindByGameID beyond total failed: %v", err)
	}
	if total != 2 || len(empty) != 0 {
		t.Errorf("Offset beyond total: got %d batches, total %d, want 0/2", len(empty), total)
	}
}

// TestImageBatchRepository_ApplyProgress drives a two-image batch through
// both outcomes and verifies counters, status transitions and the changed
// flag.
func TestImageBatchRepository_ApplyProgress(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	defer cleanupTestData(t, pool)

	repo := NewPostgreSQLImageBatchRepository(pool)
	ctx := context.Background()

	batch := createTestBatch(t, 2)
	if err := repo.Save(ctx, batch); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// First outcome moves the batch from pending to processing.
	updated, changed, err := repo.ApplyProgress(ctx, batch.ID(), true)
	if err != nil {
		t.Fatalf("ApplyProgress failed: %v", err)
	}
	if !changed {
		t.Error("First outcome should change batch status")
	}
	if updated.Status() != valueobject.BatchStatusProcessing {
		t.Errorf("Status = %v, want processing", updated.Status())
	}
	if updated.ProcessedImages() != 1 || updated.FailedImages() != 0 {
		t.Errorf("Counters = %d/%d, want 1/0", updated.ProcessedImages(), updated.FailedImages())
	}
	if updated.ProcessingStartedAt() == nil {
		t.Error("ProcessingStartedAt should be set once processing starts")
	}

	// Second outcome finishes the batch. One success and one failure is a
	// partial completion.
	updated, changed, err = repo.ApplyProgress(ctx, batch.ID(), false)
	if err != nil {
		t.Fatalf("ApplyProgress failed: %v", err)
	}
	if !changed {
		t.Error("Final outcome should change batch status")
	}
	if updated.Status() != valueobject.BatchStatusPartiallyCompleted {
		t.Errorf("Status = %v, want partially_completed", updated.Status())
	}
	if updated.ProcessedImages() != 1 || updated.FailedImages() != 1 {
		t.Errorf("Counters = %d/%d, want 1/1", updated.ProcessedImages(), updated.FailedImages())
	}
	if updated.CompletedAt() == nil {
		t.Error("CompletedAt should be set on a finished batch")
	}

	// The batch is terminal now. Further outcomes must be rejected.
	if _, _, err = repo.ApplyProgress(ctx, batch.ID(), true); err == nil {
		t.Error("ApplyProgress on terminal batch should fail")
	}

	// The persisted row matches the returned entity.
	found, err := repo.FindByID(ctx, batch.ID())
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if found.Status() != valueobject.BatchStatusPartiallyCompleted {
		t.Errorf("Persisted status = %v, want partially_completed", found.Status())
	}
}

// TestImageBatchRepository_ApplyProgress_IntermediateOutcomes verifies the
// changed flag stays false while the batch remains in processing.
func TestImageBatchRepository_ApplyProgress_IntermediateOutcomes(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	defer cleanupTestData(t, pool)

	repo := NewPostgreSQLImageBatchRepository(pool)
	ctx := context.Background()

	batch := createTestBatch(t, 3)
	if err := repo.Save(ctx, batch); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if _, changed, err := repo.ApplyProgress(ctx, batch.ID(), true); err != nil || !changed {
		t.Fatalf("First outcome: changed=%v err=%v, want changed=true", changed, err)
	}
	if _, changed, err := repo.ApplyProgress(ctx, batch.ID(), true); err != nil || changed {
		t.Fatalf("Middle outcome: changed=%v err=%v, want changed=false", changed, err)
	}

	updated, changed, err := repo.ApplyProgress(ctx, batch.ID(), true)
	if err != nil {
		t.Fatalf("Final outcome failed: %v", err)
	}
	if !changed {
		t.Error("Final outcome should change batch status")
	}
	if updated.Status() != valueobject.BatchStatusCompleted {
		t.Errorf("Status = %v, want completed", updated.Status())
	}
}

// TestImageBatchRepository_ApplyProgress_MissingBatch verifies the not
// found classification for unknown batches.
func TestImageBatchRepository_ApplyProgress_MissingBatch(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	repo := NewPostgreSQLImageBatchRepository(pool)

	_, _, err := repo.ApplyProgress(context.Background(), uuid.New(), true)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("ApplyProgress on missing batch error = %v, want ErrNotFound", err)
	}
}

// TestImageBatchRepository_Delete verifies batch deletion cascades to its
// images.
func TestImageBatchRepository_Delete(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	defer cleanupTestData(t, pool)

	batchRepo := NewPostgreSQLImageBatchRepository(pool)
	imageRepo := NewPostgreSQLGameImageRepository(pool)
	ctx := context.Background()

	batch, image := saveBatchAndImage(t, ctx, pool)

	if err := batchRepo.Delete(ctx, batch.ID()); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	found, err := batchRepo.FindByID(ctx, batch.ID())
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if found != nil {
		t.Error("Batch should be gone after delete")
	}

	orphan, err := imageRepo.FindByID(ctx, image.ID())
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if orphan != nil {
		t.Error("Images should cascade away with their batch")
	}

	if err := batchRepo.Delete(ctx, batch.ID()); !errors.Is(err, ErrNotFound) {
		t.Errorf("Second delete error = %v, want ErrNotFound", err)
	}
}

// TestImageBatchRepository_Update round-trips a retry transition.
func TestImageBatchRepository_Update(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	defer cleanupTestData(t, pool)

	repo := NewPostgreSQLImageBatchRepository(pool)
	ctx := context.Background()

	batch := createTestBatch(t, 1)
	if err := repo.Save(ctx, batch); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// Fail the single image, then start a retry.
	updated, _, err := repo.ApplyProgress(ctx, batch.ID(), false)
	if err != nil {
		t.Fatalf("ApplyProgress failed: %v", err)
	}
	if updated.Status() != valueobject.BatchStatusFailed {
		t.Fatalf("Status = %v, want failed", updated.Status())
	}

	if err = updated.StartRetry(); err != nil {
		t.Fatalf("StartRetry failed: %v", err)
	}
	if err = repo.Update(ctx, updated); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	found, err := repo.FindByID(ctx, batch.ID())
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if found.Status() != valueobject.BatchStatusRetrying {
		t.Errorf("Status = %v, want retrying", found.Status())
	}
	if found.RetryCount() != 1 {
		t.Errorf("RetryCount = %d, want 1", found.RetryCount())
	}
	if found.FailedImages() != 0 {
		t.Errorf("FailedImages = %d, want 0 after retry reset", found.FailedImages())
	}
}
