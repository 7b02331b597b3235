package valueobject

import "fmt"

// ImageStatus represents the processing status of a single game image.
type ImageStatus string

// Image status constants.
const (
	ImageStatusUploaded   ImageStatus = "uploaded"
	ImageStatusProcessing ImageStatus = "processing"
	ImageStatusCompleted  ImageStatus = "completed"
	ImageStatusFailed     ImageStatus = "failed"
	ImageStatusRetrying   ImageStatus = "retrying"
)

// validImageStatuses contains all valid image statuses.
var validImageStatuses = map[ImageStatus]bool{
	ImageStatusUploaded:   true,
	ImageStatusProcessing: true,
	ImageStatusCompleted:  true,
	ImageStatusFailed:     true,
	ImageStatusRetrying:   true,
}

// NewImageStatus creates a new ImageStatus with validation.
func NewImageStatus(status string) (ImageStatus, error) {
	s := ImageStatus(status)
	if !validImageStatuses[s] {
		return "", fmt.Errorf("invalid image status: %s", status)
	}
	return s, nil
}

// String returns the string representation of the status.
func (s ImageStatus) String() string {
	return string(s)
}

// HasOutcome returns true once the image has a final result for the
// current processing attempt. A failed image may still be re-queued by a
// job-level or batch-level retry.
func (s ImageStatus) HasOutcome() bool {
	return s == ImageStatusCompleted || s == ImageStatusFailed
}

// CanTransitionTo returns true if the status can transition to the target status.
func (s ImageStatus) CanTransitionTo(target ImageStatus) bool {
	transitions := map[ImageStatus][]ImageStatus{
		ImageStatusUploaded: {
			ImageStatusProcessing,
		},
		ImageStatusProcessing: {
			ImageStatusCompleted,
			ImageStatusFailed,
		},
		// A failed image is re-entrant: a job-level retry picks it up
		// again directly, a batch-level retry flags it first.
		ImageStatusFailed: {
			ImageStatusProcessing,
			ImageStatusRetrying,
		},
		ImageStatusRetrying: {
			ImageStatusProcessing,
		},
		ImageStatusCompleted: {},
	}

	validTransitions, exists := transitions[s]
	if !exists {
		return false
	}

	for _, validTarget := range validTransitions {
		if target == validTarget {
			return true
		}
	}
	return false
}

// AllImageStatuses returns all valid image statuses.
func AllImageStatuses() []ImageStatus {
	statuses := make([]ImageStatus, 0, len(validImageStatuses))
	for status := range validImageStatuses {
		statuses = append(statuses, status)
	}
	return statuses
}
