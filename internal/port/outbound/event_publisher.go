package outbound

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// BatchEventType identifies a batch lifecycle event.
type BatchEventType string

// Batch lifecycle event types.
const (
	BatchEventCreated   BatchEventType = "created"
	BatchEventProgress  BatchEventType = "progress"
	BatchEventRetrying  BatchEventType = "retrying"
	BatchEventCompleted BatchEventType = "completed"
)

// BatchEvent notifies downstream consumers about a change to a batch.
// Completed events fire on every terminal status, including failed and
// partially completed batches.
type BatchEvent struct {
	Type            BatchEventType `json:"type"`
	BatchID         uuid.UUID      `json:"batch_id"`
	GameID          uuid.UUID      `json:"game_id"`
	ImageID         *uuid.UUID     `json:"image_id,omitempty"`
	Status          string         `json:"status"`
	TotalImages     int            `json:"total_images"`
	ProcessedImages int            `json:"processed_images"`
	FailedImages    int            `json:"failed_images"`
	OccurredAt      time.Time      `json:"occurred_at"`
}

// BatchEventPublisher defines the outbound port for publishing batch
// lifecycle events.
type BatchEventPublisher interface {
	PublishBatchEvent(ctx context.Context, event BatchEvent) error
}

// EventPublisherHealth defines health monitoring capabilities for event publishers.
type EventPublisherHealth interface {
	GetConnectionHealth() EventPublisherHealthStatus
	GetEventMetrics() EventPublisherMetrics
}

// EventPublisherHealthStatus represents the health status of an event publisher.
type EventPublisherHealthStatus struct {
	Connected        bool   `json:"connected"`
	LastError        string `json:"last_error,omitempty"`
	Uptime           string `json:"uptime"`
	Reconnects       int    `json:"reconnects"`
	JetStreamEnabled bool   `json:"jetstream_enabled"`
}

// EventPublisherMetrics represents event publishing metrics.
type EventPublisherMetrics struct {
	PublishedCount int64  `json:"published_count"`
	FailedCount    int64  `json:"failed_count"`
	AverageLatency string `json:"average_latency"`
}
