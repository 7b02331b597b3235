package dto

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

// Search-related constants.
const (
	// DefaultSearchLimit is the default number of search results to return.
	DefaultSearchLimit = 3

	// MaxSearchLimit is the maximum number of search results that can be returned.
	MaxSearchLimit = 50

	// DefaultSimilarityThreshold is the default minimum similarity score.
	DefaultSimilarityThreshold = 0.7

	// snippetFieldLength caps each field's contribution to a snippet.
	snippetFieldLength = 100

	// snippetTotalLength caps the combined snippet length.
	snippetTotalLength = 200
)

// VectorSearchRequest represents a similarity search over one game's
// extracted content. Method selects the embedding pair used for ranking;
// when empty, the service falls back to its configured default.
type VectorSearchRequest struct {
	GameID              uuid.UUID `json:"game_id"`
	Query               string    `json:"query"`
	Method              string    `json:"method,omitempty"`
	Limit               int       `json:"limit"`
	SimilarityThreshold float64   `json:"similarity_threshold"`
	IncludeImages       bool      `json:"include_images"`
}

// NewVectorSearchRequest builds a search request with default limit,
// threshold and image inclusion.
func NewVectorSearchRequest(gameID uuid.UUID, query string) VectorSearchRequest {
	return VectorSearchRequest{
		GameID:              gameID,
		Query:               query,
		Limit:               DefaultSearchLimit,
		SimilarityThreshold: DefaultSimilarityThreshold,
		IncludeImages:       true,
	}
}

// Validate checks the request parameters. Method validity is enforced
// separately, against the closed set of supported ranking methods.
func (r VectorSearchRequest) Validate() error {
	if r.GameID == uuid.Nil {
		return errors.New("game_id is required")
	}

	if strings.TrimSpace(r.Query) == "" {
		return errors.New("query cannot be empty")
	}

	if r.Limit <= 0 {
		return errors.New("limit must be positive")
	}

	if r.Limit > MaxSearchLimit {
		return errors.New("limit exceeds maximum allowed")
	}

	if r.SimilarityThreshold < 0.0 || r.SimilarityThreshold > 1.0 {
		return errors.New("similarity_threshold must be between 0.0 and 1.0")
	}

	return nil
}

// SearchResultContent carries every populated content pair of a matched
// row. Empty fields mean the pair was never extracted for that image.
type SearchResultContent struct {
	OCR         string `json:"ocr,omitempty"`
	Description string `json:"description,omitempty"`
	Labels      string `json:"labels,omitempty"`
}

// VectorSearchResult represents one ranked match.
type VectorSearchResult struct {
	VectorID        uuid.UUID           `json:"vector_id"`
	GameID          uuid.UUID           `json:"game_id"`
	ImageID         uuid.UUID           `json:"image_id"`
	SimilarityScore float64             `json:"similarity_score"`
	ImageURL        string              `json:"image_url,omitempty"`
	PageNumber      *int                `json:"page_number,omitempty"`
	Content         SearchResultContent `json:"content"`
}

// HasImage returns true when the match resolved to a retrievable image.
func (r VectorSearchResult) HasImage() bool {
	return r.ImageID != uuid.Nil && r.ImageURL != ""
}

// IsRelevant returns true when the match clears the given score threshold.
func (r VectorSearchResult) IsRelevant(threshold float64) bool {
	return r.SimilarityScore >= threshold
}

// PopulatedPairs lists the names of the content pairs this match carries,
// so consumers can pick a payload independent of the ranking method.
func (c SearchResultContent) PopulatedPairs() []string {
	var pairs []string
	for _, field := range c.fields() {
		if field.value != "" {
			pairs = append(pairs, field.name)
		}
	}
	return pairs
}

func (c SearchResultContent) fields() []struct{ name, value string } {
	return []struct{ name, value string }{
		{"ocr", c.OCR},
		{"description", c.Description},
		{"labels", c.Labels},
	}
}

// ContentSnippet returns a short preview combining all populated pairs,
// for logs and compact client views.
func (r VectorSearchResult) ContentSnippet() string {
	var parts []string
	for _, field := range r.Content.fields() {
		if field.value == "" {
			continue
		}
		value := field.value
		if len(value) > snippetFieldLength {
			value = value[:snippetFieldLength]
		}
		parts = append(parts, field.name+": "+value)
	}

	combined := strings.Join(parts, " | ")
	if len(combined) > snippetTotalLength {
		return combined[:snippetTotalLength] + "..."
	}
	return combined
}

// VectorSearchResponse represents the full response of a search.
type VectorSearchResponse struct {
	Query   string               `json:"query"`
	Method  string               `json:"method"`
	Results []VectorSearchResult `json:"results"`
	Total   int                  `json:"total"`
}
