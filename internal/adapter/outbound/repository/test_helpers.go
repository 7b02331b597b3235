package repository

import (
	"context"
	"testing"
	"time"

	"github.com/shini559/Gaming-advisor-sub000/internal/domain/entity"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// setupTestDB creates a test database connection, skipping the test when
// no database is reachable.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	config := DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		Database: "gameadvisor",
		Username: "dev",
		Password: "dev",
		Schema:   "gameadvisor",
	}
	pool, err := NewDatabaseConnection(config)
	if err != nil {
		t.Skipf("Skipping: test database not available: %v", err)
	}
	return pool
}

// cleanupTestData removes test data from the database in dependency order.
func cleanupTestData(t *testing.T, pool *pgxpool.Pool) {
	ctx := context.Background()
	queries := []string{
		"DELETE FROM gameadvisor.game_vectors WHERE 1=1",
		"DELETE FROM gameadvisor.game_images WHERE 1=1",
		"DELETE FROM gameadvisor.image_batches WHERE 1=1",
	}
	for _, query := range queries {
		_, err := pool.Exec(ctx, query)
		if err != nil {
			t.Logf("Warning: Failed to clean up with query %s: %v", query, err)
		}
	}
}

// createTestBatch creates a test batch entity for a fresh game.
func createTestBatch(t *testing.T, totalImages int) *entity.ImageBatch {
	batch, err := entity.NewImageBatch(uuid.New(), totalImages, 3)
	if err != nil {
		t.Fatalf("Failed to create test batch: %v", err)
	}
	return batch
}

// createTestImage creates a test image entity belonging to the batch.
func createTestImage(t *testing.T, batch *entity.ImageBatch) *entity.GameImage {
	uniqueID := uuid.New().String()
	image, err := entity.NewGameImage(
		batch.GameID(),
		batch.ID(),
		"games/"+batch.GameID().String()+"/images/"+uniqueID+".png",
		"https://storage.googleapis.com/test-bucket/"+uniqueID+".png",
		"rulebook-page.png",
		2048,
		nil,
	)
	if err != nil {
		t.Fatalf("Failed to create test image: %v", err)
	}
	return image
}

// createTestVector creates a test vector entity for the image with all
// three pairs populated.
func createTestVector(t *testing.T, image *entity.GameImage) *entity.GameVector {
	page := 4
	vector, err := entity.NewGameVector(
		image.GameID(),
		image.ID(),
		"Players take turns drawing cards.",
		testEmbedding(0.1),
		"A rulebook page showing the turn order diagram.",
		testEmbedding(0.2),
		`["rulebook","diagram","cards"]`,
		testEmbedding(0.3),
		&page,
	)
	if err != nil {
		t.Fatalf("Failed to create test vector: %v", err)
	}
	return vector
}

// testEmbedding builds a deterministic embedding whose first component
// dominates, so cosine ranking in tests is predictable.
func testEmbedding(seed float32) []float32 {
	embedding := make([]float32, 1536)
	embedding[0] = 1.0
	embedding[1] = seed
	return embedding
}

// saveBatchAndImage persists a batch with one image and returns both.
func saveBatchAndImage(
	t *testing.T,
	ctx context.Context,
	pool *pgxpool.Pool,
) (*entity.ImageBatch, *entity.GameImage) {
	batchRepo := NewPostgreSQLImageBatchRepository(pool)
	imageRepo := NewPostgreSQLGameImageRepository(pool)

	batch := createTestBatch(t, 1)
	if err := batchRepo.Save(ctx, batch); err != nil {
		t.Fatalf("Failed to save test batch: %v", err)
	}

	image := createTestImage(t, batch)
	if err := imageRepo.Save(ctx, image); err != nil {
		t.Fatalf("Failed to save test image: %v", err)
	}

	return batch, image
}

// backdateImage moves a stored image's created_at into the past.
func backdateImage(t *testing.T, pool *pgxpool.Pool, imageID uuid.UUID, age time.Duration) {
	_, err := pool.Exec(
		context.Background(),
		"UPDATE gameadvisor.game_images SET created_at = $1 WHERE id = $2",
		time.Now().Add(-age), imageID,
	)
	if err != nil {
		t.Fatalf("Failed to backdate test image: %v", err)
	}
}
