package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shini559/Gaming-advisor-sub000/internal/application/common"
	"github.com/shini559/Gaming-advisor-sub000/internal/application/common/slogger"
	"github.com/shini559/Gaming-advisor-sub000/internal/application/dto"
	"github.com/shini559/Gaming-advisor-sub000/internal/domain/entity"
	domainerrors "github.com/shini559/Gaming-advisor-sub000/internal/domain/errors/domain"
	"github.com/shini559/Gaming-advisor-sub000/internal/domain/valueobject"
	"github.com/shini559/Gaming-advisor-sub000/internal/port/inbound"
	"github.com/shini559/Gaming-advisor-sub000/internal/port/outbound"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// DefaultVectorSearchService ranks a game's extracted content against a
// query. The request's method picks the embedding pair used for ranking;
// every match returns all populated content pairs, so callers can read a
// different pair than the one that ranked the row.
type DefaultVectorSearchService struct {
	defaultMethod valueobject.SearchMethod
	vectorRepo    outbound.VectorStorageRepository
	imageRepo     outbound.GameImageRepository
	storage       outbound.ObjectStorage
	analysis      outbound.ImageAnalysisService

	// embedGroup collapses concurrent embedding calls for the same query
	// text into one model request.
	embedGroup singleflight.Group
}

// NewVectorSearchService creates a new vector search service. An empty
// defaultMethod falls back to OCR ranking.
func NewVectorSearchService(
	defaultMethod valueobject.SearchMethod,
	vectorRepo outbound.VectorStorageRepository,
	imageRepo outbound.GameImageRepository,
	storage outbound.ObjectStorage,
	analysis outbound.ImageAnalysisService,
) inbound.VectorSearchService {
	if defaultMethod == "" {
		defaultMethod = valueobject.SearchMethodOCR
	}
	return &DefaultVectorSearchService{
		defaultMethod: defaultMethod,
		vectorRepo:    vectorRepo,
		imageRepo:     imageRepo,
		storage:       storage,
		analysis:      analysis,
	}
}

// Search embeds the query and returns the game's best matching rows.
func (s *DefaultVectorSearchService) Search(
	ctx context.Context,
	request dto.VectorSearchRequest,
) (*dto.VectorSearchResponse, error) {
	if strings.TrimSpace(request.Query) == "" {
		return nil, domainerrors.ErrEmptySearchQuery
	}
	if err := request.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", domainerrors.ErrInvalidInput, err.Error())
	}

	method, err := s.resolveMethod(request.Method)
	if err != nil {
		return nil, err
	}

	slogger.Info(ctx, "Performing vector search", slogger.Fields{
		"game_id": request.GameID.String(),
		"method":  method.String(),
		"limit":   request.Limit,
	})

	embedding, err := s.embedQuery(ctx, request.Query)
	if err != nil {
		return nil, common.WrapServiceError(common.OpGenerateEmbedding, err)
	}

	vectors, err := s.vectorRepo.SearchSimilar(ctx, embedding, outbound.VectorSearchOptions{
		GameID:              request.GameID,
		Method:              method,
		Limit:               request.Limit,
		SimilarityThreshold: request.SimilarityThreshold,
	})
	if err != nil {
		return nil, common.WrapServiceError(common.OpSearchVectors, err)
	}

	results := make([]dto.VectorSearchResult, 0, len(vectors))
	for _, vector := range vectors {
		result := buildSearchResult(vector)
		if request.IncludeImages {
			result.ImageURL = s.resolveImageURL(ctx, vector.ImageID())
		}
		results = append(results, result)
	}

	slogger.Info(ctx, "Vector search completed", slogger.Fields{
		"game_id": request.GameID.String(),
		"method":  method.String(),
		"results": len(results),
	})

	return &dto.VectorSearchResponse{
		Query:   request.Query,
		Method:  method.String(),
		Results: results,
		Total:   len(results),
	}, nil
}

// resolveMethod validates the requested ranking method against the closed
// set of supported methods before any model or database call is made.
func (s *DefaultVectorSearchService) resolveMethod(requested string) (valueobject.SearchMethod, error) {
	requested = strings.TrimSpace(requested)
	if requested == "" {
		return s.defaultMethod, nil
	}

	method, err := valueobject.NewSearchMethod(requested)
	if err != nil {
		return "", fmt.Errorf("%w: %q", domainerrors.ErrInvalidSearchMethod, requested)
	}
	return method, nil
}

// embedQuery generates the query embedding, coalescing concurrent calls
// for identical query text.
func (s *DefaultVectorSearchService) embedQuery(ctx context.Context, query string) ([]float32, error) {
	result, err, _ := s.embedGroup.Do(query, func() (interface{}, error) {
		return s.analysis.GenerateEmbedding(ctx, query)
	})
	if err != nil {
		return nil, err
	}
	return result.([]float32), nil
}

// buildSearchResult maps one matched row into its response form. The
// embeddings stay behind the repository; only content and score leave.
func buildSearchResult(vector *entity.GameVector) dto.VectorSearchResult {
	var score float64
	if s := vector.SimilarityScore(); s != nil {
		score = *s
	}

	return dto.VectorSearchResult{
		VectorID:        vector.ID(),
		GameID:          vector.GameID(),
		ImageID:         vector.ImageID(),
		SimilarityScore: score,
		PageNumber:      vector.PageNumber(),
		Content: dto.SearchResultContent{
			OCR:         vector.OCRContent(),
			Description: vector.DescriptionContent(),
			Labels:      vector.LabelsContent(),
		},
	}
}

// resolveImageURL looks up the source image and signs a retrieval URL for
// it. Resolution is best-effort; a match without a URL is still a match.
func (s *DefaultVectorSearchService) resolveImageURL(ctx context.Context, imageID uuid.UUID) string {
	image, err := s.imageRepo.FindByID(ctx, imageID)
	if err != nil {
		slogger.Warn(ctx, "Failed to load image for search result", slogger.Fields{
			"image_id": imageID.String(),
			"error":    err.Error(),
		})
		return ""
	}
	if image == nil {
		return ""
	}

	url, err := s.storage.SignedURL(image.FilePath())
	if err != nil {
		slogger.Warn(ctx, "Failed to sign image URL for search result", slogger.Fields{
			"image_id": imageID.String(),
			"error":    err.Error(),
		})
		return ""
	}
	return url
}
