// Package outbound defines the outbound ports (interfaces) for external dependencies.
package outbound

import (
	"context"

	"github.com/shini559/Gaming-advisor-sub000/internal/domain/entity"
	"github.com/shini559/Gaming-advisor-sub000/internal/domain/valueobject"

	"github.com/google/uuid"
)

// VectorStorageRepository defines the outbound port for extraction result
// persistence and similarity search. Writes and searches are fully
// decoupled: rows are written with whatever pairs extraction produced,
// and any populated pair can later drive a search.
type VectorStorageRepository interface {
	// SaveVector persists one extraction result row.
	SaveVector(ctx context.Context, vector *entity.GameVector) error

	// DeleteByImageID removes all rows produced from an image. Called
	// before re-processing so a retried image never duplicates rows.
	DeleteByImageID(ctx context.Context, imageID uuid.UUID) error

	// FindByImageID returns the rows produced from an image.
	FindByImageID(ctx context.Context, imageID uuid.UUID) ([]*entity.GameVector, error)

	// SearchSimilar ranks one game's rows against the query embedding
	// using the pair selected by options.Method. Rows missing that pair
	// are skipped. Each returned row carries its similarity score and
	// all populated content pairs.
	SearchSimilar(
		ctx context.Context,
		queryEmbedding []float32,
		options VectorSearchOptions,
	) ([]*entity.GameVector, error)
}

// VectorSearchOptions narrows a similarity search.
type VectorSearchOptions struct {
	GameID              uuid.UUID
	Method              valueobject.SearchMethod
	Limit               int
	SimilarityThreshold float64
}
