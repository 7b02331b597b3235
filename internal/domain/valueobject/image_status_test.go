package valueobject

import (
	"testing"
)

func TestNewImageStatus_ValidStatuses(t *testing.T) {
	validStatuses := []struct {
		input    string
		expected ImageStatus
	}{
		{"uploaded", ImageStatusUploaded},
		{"processing", ImageStatusProcessing},
		{"completed", ImageStatusCompleted},
		{"failed", ImageStatusFailed},
		{"retrying", ImageStatusRetrying},
	}

	for _, tc := range validStatuses {
		t.Run(tc.input, func(t *testing.T) {
			status, err := NewImageStatus(tc.input)
			if err != nil {
				t.Fatalf("Expected no error for valid status %s, got: %v", tc.input, err)
			}

			if status != tc.expected {
				t.Errorf("Expected status %s, got %s", tc.expected, status)
			}
		})
	}
}

func TestNewImageStatus_InvalidStatuses(t *testing.T) {
	invalidStatuses := []string{
		"invalid",
		"UPLOADED", // case sensitive
		"Failed",   // case sensitive
		"",         // empty string
		"pending",  // batch status, not an image status
		"queued",   // job status, not an image status
		"new",      // not a valid image status
	}

	for _, status := range invalidStatuses {
		t.Run(status, func(t *testing.T) {
			_, err := NewImageStatus(status)
			if err == nil {
				t.Fatalf("Expected error for invalid status %s, got none", status)
			}

			expectedError := "invalid image status: " + status
			if err.Error() != expectedError {
				t.Errorf("Expected error '%s', got '%v'", expectedError, err)
			}
		})
	}
}

func TestImageStatus_HasOutcome(t *testing.T) {
	testCases := []struct {
		status     ImageStatus
		hasOutcome bool
	}{
		{ImageStatusUploaded, false},
		{ImageStatusProcessing, false},
		{ImageStatusCompleted, true},
		{ImageStatusFailed, true},
		{ImageStatusRetrying, false},
	}

	for _, tc := range testCases {
		t.Run(tc.status.String(), func(t *testing.T) {
			result := tc.status.HasOutcome()
			if result != tc.hasOutcome {
				t.Errorf("Expected HasOutcome() %v for %s, got %v", tc.hasOutcome, tc.status, result)
			}
		})
	}
}

func TestImageStatus_CanTransitionTo(t *testing.T) {
	testCases := []struct {
		name    string
		from    ImageStatus
		to      ImageStatus
		allowed bool
	}{
		{"uploaded to processing", ImageStatusUploaded, ImageStatusProcessing, true},
		{"uploaded to completed", ImageStatusUploaded, ImageStatusCompleted, false},
		{"uploaded to failed", ImageStatusUploaded, ImageStatusFailed, false},
		{"processing to completed", ImageStatusProcessing, ImageStatusCompleted, true},
		{"processing to failed", ImageStatusProcessing, ImageStatusFailed, true},
		{"processing to uploaded", ImageStatusProcessing, ImageStatusUploaded, false},
		{"failed to processing", ImageStatusFailed, ImageStatusProcessing, true},
		{"failed to retrying", ImageStatusFailed, ImageStatusRetrying, true},
		{"failed to completed", ImageStatusFailed, ImageStatusCompleted, false},
		{"retrying to processing", ImageStatusRetrying, ImageStatusProcessing, true},
		{"retrying to failed", ImageStatusRetrying, ImageStatusFailed, false},
		{"completed is terminal", ImageStatusCompleted, ImageStatusProcessing, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result := tc.from.CanTransitionTo(tc.to)
			if result != tc.allowed {
				t.Errorf("Expected CanTransitionTo(%s -> %s) to be %v, got %v", tc.from, tc.to, tc.allowed, result)
			}
		})
	}
}

func TestAllImageStatuses(t *testing.T) {
	statuses := AllImageStatuses()

	if len(statuses) != 5 {
		t.Errorf("Expected 5 image statuses, got %d", len(statuses))
	}

	seen := make(map[ImageStatus]bool)
	for _, status := range statuses {
		seen[status] = true
	}

	expected := []ImageStatus{
		ImageStatusUploaded,
		ImageStatusProcessing,
		ImageStatusCompleted,
		ImageStatusFailed,
		ImageStatusRetrying,
	}
	for _, status := range expected {
		if !seen[status] {
			t.Errorf("Expected AllImageStatuses to contain %s", status)
		}
	}
}
