package entity

import (
	"time"

	"github.com/google/uuid"
)

// GameVector holds the extraction results for one processed image: up to
// three content/embedding pairs (OCR text, visual description, labels).
// A pair is either fully populated or fully absent. At least one pair must
// be present for the row to be worth storing.
type GameVector struct {
	id                   uuid.UUID
	gameID               uuid.UUID
	imageID              uuid.UUID
	ocrContent           string
	ocrEmbedding         []float32
	descriptionContent   string
	descriptionEmbedding []float32
	labelsContent        string
	labelsEmbedding      []float32
	pageNumber           *int
	createdAt            time.Time

	// similarityScore is transient: populated only on rows hydrated from
	// a ranked search, never persisted.
	similarityScore *float64
}

// NewGameVector creates a new GameVector entity from extraction results.
// Each pair must be populated together or omitted together.
func NewGameVector(
	gameID uuid.UUID,
	imageID uuid.UUID,
	ocrContent string,
	ocrEmbedding []float32,
	descriptionContent string,
	descriptionEmbedding []float32,
	labelsContent string,
	labelsEmbedding []float32,
	pageNumber *int,
) (*GameVector, error) {
	if gameID == uuid.Nil {
		return nil, NewDomainError("game ID cannot be nil", "INVALID_ARGUMENT")
	}
	if imageID == uuid.Nil {
		return nil, NewDomainError("image ID cannot be nil", "INVALID_ARGUMENT")
	}
	if err := validatePair("ocr", ocrContent, ocrEmbedding); err != nil {
		return nil, err
	}
	if err := validatePair("description", descriptionContent, descriptionEmbedding); err != nil {
		return nil, err
	}
	if err := validatePair("labels", labelsContent, labelsEmbedding); err != nil {
		return nil, err
	}

	v := &GameVector{
		id:                   uuid.New(),
		gameID:               gameID,
		imageID:              imageID,
		ocrContent:           ocrContent,
		ocrEmbedding:         ocrEmbedding,
		descriptionContent:   descriptionContent,
		descriptionEmbedding: descriptionEmbedding,
		labelsContent:        labelsContent,
		labelsEmbedding:      labelsEmbedding,
		pageNumber:           pageNumber,
		createdAt:            time.Now(),
	}
	if !v.HasAnyPair() {
		return nil, NewDomainError("vector must carry at least one content pair", "EMPTY_VECTOR")
	}
	return v, nil
}

// validatePair rejects half-populated pairs: content without an embedding
// cannot be ranked, an embedding without content cannot be returned.
func validatePair(name, content string, embedding []float32) error {
	if content != "" && len(embedding) == 0 {
		return NewDomainError(name+" content is missing its embedding", "INCOMPLETE_PAIR")
	}
	if content == "" && len(embedding) > 0 {
		return NewDomainError(name+" embedding is missing its content", "INCOMPLETE_PAIR")
	}
	return nil
}

// RestoreGameVector creates a GameVector entity from stored data.
func RestoreGameVector(
	id uuid.UUID,
	gameID uuid.UUID,
	imageID uuid.UUID,
	ocrContent string,
	ocrEmbedding []float32,
	descriptionContent string,
	descriptionEmbedding []float32,
	labelsContent string,
	labelsEmbedding []float32,
	pageNumber *int,
	createdAt time.Time,
) *GameVector {
	return &GameVector{
		id:                   id,
		gameID:               gameID,
		imageID:              imageID,
		ocrContent:           ocrContent,
		ocrEmbedding:         ocrEmbedding,
		descriptionContent:   descriptionContent,
		descriptionEmbedding: descriptionEmbedding,
		labelsContent:        labelsContent,
		labelsEmbedding:      labelsEmbedding,
		pageNumber:           pageNumber,
		createdAt:            createdAt,
	}
}

// ID returns the vector row ID.
func (v *GameVector) ID() uuid.UUID {
	return v.id
}

// GameID returns the owning game ID.
func (v *GameVector) GameID() uuid.UUID {
	return v.gameID
}

// ImageID returns the source image ID.
func (v *GameVector) ImageID() uuid.UUID {
	return v.imageID
}

// OCRContent returns the extracted text content.
func (v *GameVector) OCRContent() string {
	return v.ocrContent
}

// OCREmbedding returns the embedding of the extracted text.
func (v *GameVector) OCREmbedding() []float32 {
	return v.ocrEmbedding
}

// DescriptionContent returns the visual description content.
func (v *GameVector) DescriptionContent() string {
	return v.descriptionContent
}

// DescriptionEmbedding returns the embedding of the visual description.
func (v *GameVector) DescriptionEmbedding() []float32 {
	return v.descriptionEmbedding
}

// LabelsContent returns the detected labels as one comma separated string.
func (v *GameVector) LabelsContent() string {
	return v.labelsContent
}

// LabelsEmbedding returns the embedding of the labels text.
func (v *GameVector) LabelsEmbedding() []float32 {
	return v.labelsEmbedding
}

// PageNumber returns the rulebook page this image shows, if known.
func (v *GameVector) PageNumber() *int {
	return v.pageNumber
}

// CreatedAt returns the creation timestamp.
func (v *GameVector) CreatedAt() time.Time {
	return v.createdAt
}

// HasOCR returns true if the OCR pair is populated.
func (v *GameVector) HasOCR() bool {
	return v.ocrContent != "" && len(v.ocrEmbedding) > 0
}

// HasDescription returns true if the description pair is populated.
func (v *GameVector) HasDescription() bool {
	return v.descriptionContent != "" && len(v.descriptionEmbedding) > 0
}

// HasLabels returns true if the labels pair is populated.
func (v *GameVector) HasLabels() bool {
	return v.labelsContent != "" && len(v.labelsEmbedding) > 0
}

// HasAnyPair returns true if at least one content pair is populated.
func (v *GameVector) HasAnyPair() bool {
	return v.HasOCR() || v.HasDescription() || v.HasLabels()
}

// SimilarityScore returns the ranking score of a searched row, nil on rows
// not produced by a search.
func (v *GameVector) SimilarityScore() *float64 {
	return v.similarityScore
}

// SetSimilarityScore attaches the ranking score computed by a search,
// clamped to [0, 1]. Cosine arithmetic can drift a fraction outside the
// range for identical or opposite vectors.
func (v *GameVector) SetSimilarityScore(score float64) {
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	v.similarityScore = &score
}

// Equal compares two GameVector entities by identity.
func (v *GameVector) Equal(other *GameVector) bool {
	if other == nil {
		return false
	}
	return v.id == other.id
}
