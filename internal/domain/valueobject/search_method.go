package valueobject

import "fmt"

// SearchMethod selects which embedding pair drives similarity ranking in a
// vector search. The method decides ranking only: a matched row always
// returns the full set of populated pairs, regardless of which pair
// produced the match.
type SearchMethod string

// Search method constants, one per extraction pair.
const (
	SearchMethodOCR         SearchMethod = "ocr"
	SearchMethodDescription SearchMethod = "description"
	SearchMethodLabels      SearchMethod = "labels"
)

// validSearchMethods contains all valid search methods.
var validSearchMethods = map[SearchMethod]bool{
	SearchMethodOCR:         true,
	SearchMethodDescription: true,
	SearchMethodLabels:      true,
}

// NewSearchMethod creates a new SearchMethod with validation. Unsupported
// selectors are rejected here, before any query is issued.
func NewSearchMethod(method string) (SearchMethod, error) {
	m := SearchMethod(method)
	if !validSearchMethods[m] {
		return "", fmt.Errorf("invalid search method: %s", method)
	}
	return m, nil
}

// String returns the string representation of the method.
func (m SearchMethod) String() string {
	return string(m)
}

// EmbeddingColumn returns the storage column holding the embedding this
// method ranks by.
func (m SearchMethod) EmbeddingColumn() string {
	switch m {
	case SearchMethodOCR:
		return "ocr_embedding"
	case SearchMethodDescription:
		return "description_embedding"
	case SearchMethodLabels:
		return "labels_embedding"
	default:
		return ""
	}
}

// ContentColumn returns the storage column holding the extracted content
// paired with this method's embedding.
func (m SearchMethod) ContentColumn() string {
	switch m {
	case SearchMethodOCR:
		return "ocr_content"
	case SearchMethodDescription:
		return "description_content"
	case SearchMethodLabels:
		return "labels_content"
	default:
		return ""
	}
}

// AllSearchMethods returns all valid search methods.
func AllSearchMethods() []SearchMethod {
	return []SearchMethod{SearchMethodOCR, SearchMethodDescription, SearchMethodLabels}
}
