package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/shini559/Gaming-advisor-sub000/internal/domain/entity"
	"github.com/shini559/Gaming-advisor-sub000/internal/port/outbound"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

const gameVectorColumns = `id, game_id, image_id, ocr_content, ocr_embedding,
			   description_content, description_embedding, labels_content, labels_embedding,
			   page_number, created_at`

// defaultSearchLimit bounds searches that do not specify a limit.
const defaultSearchLimit = 10

// PostgreSQLGameVectorRepository implements the VectorStorageRepository
// interface on pgvector columns.
//
// Pair Storage:
// Each extraction pair occupies a content column and an embedding column.
// An absent pair is stored as NULL in both columns, never as an empty
// string or zero vector, so similarity searches can skip rows missing the
// ranked pair with a plain IS NOT NULL filter.
type PostgreSQLGameVectorRepository struct {
	pool *pgxpool.Pool
}

// NewPostgreSQLGameVectorRepository creates a new PostgreSQL game vector repository.
func NewPostgreSQLGameVectorRepository(pool *pgxpool.Pool) *PostgreSQLGameVectorRepository {
	return &PostgreSQLGameVectorRepository{
		pool: pool,
	}
}

// SaveVector persists one extraction result row. Absent pairs are stored
// as NULL columns.
func (r *PostgreSQLGameVectorRepository) SaveVector(ctx context.Context, vector *entity.GameVector) error {
	if vector == nil {
		return ErrInvalidArgument
	}

	query := `
		INSERT INTO gameadvisor.game_vectors (
			id, game_id, image_id, ocr_content, ocr_embedding,
			description_content, description_embedding, labels_content, labels_embedding,
			page_number, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
		)`

	ocrContent, ocrEmbedding := pairParams(vector.OCRContent(), vector.OCREmbedding())
	descContent, descEmbedding := pairParams(vector.DescriptionContent(), vector.DescriptionEmbedding())
	labelsContent, labelsEmbedding := pairParams(vector.LabelsContent(), vector.LabelsEmbedding())

	qi := GetQueryInterface(ctx, r.pool)
	_, err := qi.Exec(ctx, query,
		vector.ID(),
		vector.GameID(),
		vector.ImageID(),
		ocrContent,
		ocrEmbedding,
		descContent,
		descEmbedding,
		labelsContent,
		labelsEmbedding,
		vector.PageNumber(),
		vector.CreatedAt(),
	)
	if err != nil {
		return WrapError(err, "save game vector")
	}

	return nil
}

// pairParams converts one extraction pair to query parameters, mapping an
// absent pair to NULL in both columns.
func pairParams(content string, embedding []float32) (interface{}, interface{}) {
	if content == "" || len(embedding) == 0 {
		return nil, nil
	}
	return content, pgvector.NewVector(embedding)
}

// DeleteByImageID removes all vector rows produced from an image. Deleting
// an image with no rows is not an error: a retried image may never have
// completed extraction.
func (r *PostgreSQLGameVectorRepository) DeleteByImageID(ctx context.Context, imageID uuid.UUID) error {
	if imageID == uuid.Nil {
		return ErrInvalidArgument
	}

	query := `DELETE FROM gameadvisor.game_vectors WHERE image_id = $1`

	qi := GetQueryInterface(ctx, r.pool)
	_, err := qi.Exec(ctx, query, imageID)
	if err != nil {
		return WrapError(err, "delete game vectors by image")
	}

	return nil
}

// FindByImageID returns the vector rows produced from an image.
func (r *PostgreSQLGameVectorRepository) FindByImageID(
	ctx context.Context,
	imageID uuid.UUID,
) ([]*entity.GameVector, error) {
	if imageID == uuid.Nil {
		return nil, ErrInvalidArgument
	}

	query := `
		SELECT ` + gameVectorColumns + `
		FROM gameadvisor.game_vectors
		WHERE image_id = $1
		ORDER BY created_at ASC`

	qi := GetQueryInterface(ctx, r.pool)
	rows, err := qi.Query(ctx, query, imageID)
	if err != nil {
		return nil, WrapError(err, "find game vectors by image")
	}
	defer rows.Close()

	var vectors []*entity.GameVector
	for rows.Next() {
		vector, scanErr := r.scanGameVectorRow(rows, false)
		if scanErr != nil {
			return nil, WrapError(scanErr, "find game vectors by image")
		}
		vectors = append(vectors, vector)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, WrapError(rowsErr, "iterate game vector rows")
	}

	return vectors, nil
}

// SearchSimilar ranks one game's rows against the query embedding using
// the pair selected by options.Method. Rows missing that pair are skipped
// via the IS NOT NULL filter. Score is cosine similarity, 1 - distance,
// and rows below the threshold are excluded. Results come back best match
// first; each row carries its score and all populated content pairs.
func (r *PostgreSQLGameVectorRepository) SearchSimilar(
	ctx context.Context,
	queryEmbedding []float32,
	options outbound.VectorSearchOptions,
) ([]*entity.GameVector, error) {
	if len(queryEmbedding) == 0 {
		return nil, ErrInvalidArgument
	}
	if options.GameID == uuid.Nil {
		return nil, ErrInvalidArgument
	}
	if options.Limit < 0 || options.SimilarityThreshold < 0 || options.SimilarityThreshold > 1 {
		return nil, ErrInvalidArgument
	}

	// The embedding column comes from the closed SearchMethod enum, never
	// from user input, so interpolating it is safe.
	column := options.Method.EmbeddingColumn()
	if column == "" {
		return nil, ErrInvalidArgument
	}

	limit := options.Limit
	if limit == 0 {
		limit = defaultSearchLimit
	}

	query := fmt.Sprintf(`
		SELECT `+gameVectorColumns+`,
			   1 - (%s <=> $1) AS score
		FROM gameadvisor.game_vectors
		WHERE game_id = $2
		  AND %s IS NOT NULL
		  AND 1 - (%s <=> $1) >= $3
		ORDER BY %s <=> $1
		LIMIT $4`, column, column, column, column)

	qi := GetQueryInterface(ctx, r.pool)
	rows, err := qi.Query(ctx, query,
		pgvector.NewVector(queryEmbedding),
		options.GameID,
		options.SimilarityThreshold,
		limit,
	)
	if err != nil {
		return nil, WrapError(err, "search similar game vectors")
	}
	defer rows.Close()

	var vectors []*entity.GameVector
	for rows.Next() {
		vector, scanErr := r.scanGameVectorRow(rows, true)
		if scanErr != nil {
			return nil, WrapError(scanErr, "search similar game vectors")
		}
		vectors = append(vectors, vector)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, WrapError(rowsErr, "iterate game vector rows")
	}

	return vectors, nil
}

// scanGameVectorRow hydrates one GameVector entity from a row, attaching
// the similarity score when the query ranked it.
func (r *PostgreSQLGameVectorRepository) scanGameVectorRow(row pgx.Row, withScore bool) (*entity.GameVector, error) {
	var id, gameID, imageID uuid.UUID
	var ocrContent, descContent, labelsContent *string
	var ocrEmbedding, descEmbedding, labelsEmbedding *pgvector.Vector
	var pageNumber *int
	var createdAt time.Time
	var score float64

	dest := []interface{}{
		&id, &gameID, &imageID, &ocrContent, &ocrEmbedding,
		&descContent, &descEmbedding, &labelsContent, &labelsEmbedding,
		&pageNumber, &createdAt,
	}
	if withScore {
		dest = append(dest, &score)
	}

	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	vector := entity.RestoreGameVector(
		id,
		gameID,
		imageID,
		stringValue(ocrContent),
		vectorValue(ocrEmbedding),
		stringValue(descContent),
		vectorValue(descEmbedding),
		stringValue(labelsContent),
		vectorValue(labelsEmbedding),
		pageNumber,
		createdAt,
	)
	if withScore {
		vector.SetSimilarityScore(score)
	}

	return vector, nil
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func vectorValue(v *pgvector.Vector) []float32 {
	if v == nil {
		return nil
	}
	return v.Slice()
}
