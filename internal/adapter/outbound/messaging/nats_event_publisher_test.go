package messaging

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/shini559/Gaming-advisor-sub000/internal/config"
	"github.com/shini559/Gaming-advisor-sub000/internal/port/outbound"
)

var (
	_ outbound.BatchEventPublisher  = (*NATSBatchEventPublisher)(nil)
	_ outbound.EventPublisherHealth = (*NATSBatchEventPublisher)(nil)
)

func testNATSConfig() config.NATSConfig {
	return config.NATSConfig{
		URL:           "nats://localhost:4222",
		MaxReconnects: 3,
		ReconnectWait: time.Second,
	}
}

func testBatchEvent() outbound.BatchEvent {
	return outbound.BatchEvent{
		Type:            outbound.BatchEventCreated,
		BatchID:         uuid.New(),
		GameID:          uuid.New(),
		Status:          "pending",
		TotalImages:     4,
		ProcessedImages: 0,
		FailedImages:    0,
	}
}

// setupConnectedPublisher connects to the local test NATS server and
// ensures the stream exists. Tests are skipped when no server is
// reachable.
func setupConnectedPublisher(t *testing.T) *NATSBatchEventPublisher {
	t.Helper()

	publisher, err := NewNATSBatchEventPublisher(testNATSConfig())
	if err != nil {
		t.Fatalf("NewNATSBatchEventPublisher failed: %v", err)
	}

	if err := publisher.Connect(); err != nil {
		t.Skipf("Skipping: test NATS server not available: %v", err)
	}
	t.Cleanup(func() {
		_ = publisher.Disconnect()
	})

	if err := publisher.EnsureStream(); err != nil {
		t.Fatalf("EnsureStream failed: %v", err)
	}

	return publisher
}

func TestNewNATSBatchEventPublisher_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.NATSConfig)
	}{
		{"empty URL", func(c *config.NATSConfig) { c.URL = "" }},
		{"invalid scheme", func(c *config.NATSConfig) { c.URL = "http://localhost:4222" }},
		{"negative max reconnects", func(c *config.NATSConfig) { c.MaxReconnects = -1 }},
		{"negative reconnect wait", func(c *config.NATSConfig) { c.ReconnectWait = -time.Second }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testNATSConfig()
			tt.mutate(&cfg)

			if _, err := NewNATSBatchEventPublisher(cfg); err == nil {
				t.Error("expected validation error")
			}
		})
	}

	if _, err := NewNATSBatchEventPublisher(testNATSConfig()); err != nil {
		t.Errorf("expected valid config to pass, got %v", err)
	}
}

func TestPublishBatchEvent_Validation(t *testing.T) {
	publisher, err := NewNATSBatchEventPublisher(testNATSConfig())
	if err != nil {
		t.Fatalf("NewNATSBatchEventPublisher failed: %v", err)
	}
	ctx := context.Background()

	event := testBatchEvent()
	event.Type = ""
	if err := publisher.PublishBatchEvent(ctx, event); err == nil {
		t.Error("expected error for empty event type")
	}

	event = testBatchEvent()
	event.BatchID = uuid.Nil
	if err := publisher.PublishBatchEvent(ctx, event); err == nil {
		t.Error("expected error for nil batch ID")
	}

	event = testBatchEvent()
	event.GameID = uuid.Nil
	if err := publisher.PublishBatchEvent(ctx, event); err == nil {
		t.Error("expected error for nil game ID")
	}
}

func TestPublishBatchEvent_NotConnected(t *testing.T) {
	publisher, err := NewNATSBatchEventPublisher(testNATSConfig())
	if err != nil {
		t.Fatalf("NewNATSBatchEventPublisher failed: %v", err)
	}

	if err := publisher.PublishBatchEvent(context.Background(), testBatchEvent()); err == nil {
		t.Error("expected error when publishing before Connect")
	}

	metrics := publisher.GetEventMetrics()
	if metrics.FailedCount != 1 {
		t.Errorf("expected failed count 1, got %d", metrics.FailedCount)
	}
	if metrics.PublishedCount != 0 {
		t.Errorf("expected published count 0, got %d", metrics.PublishedCount)
	}
}

func TestPublishBatchEvent_CancelledContext(t *testing.T) {
	publisher, err := NewNATSBatchEventPublisher(testNATSConfig())
	if err != nil {
		t.Fatalf("NewNATSBatchEventPublisher failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := publisher.PublishBatchEvent(ctx, testBatchEvent()); err == nil {
		t.Error("expected context error")
	}
}

func TestGetConnectionHealth_InitialState(t *testing.T) {
	publisher, err := NewNATSBatchEventPublisher(testNATSConfig())
	if err != nil {
		t.Fatalf("NewNATSBatchEventPublisher failed: %v", err)
	}

	health := publisher.GetConnectionHealth()
	if health.Connected {
		t.Error("expected disconnected initial state")
	}
	if health.JetStreamEnabled {
		t.Error("expected JetStream disabled before Connect")
	}
	if health.Uptime != "0s" {
		t.Errorf("expected zero uptime, got %s", health.Uptime)
	}
	if health.Reconnects != 0 {
		t.Errorf("expected zero reconnects, got %d", health.Reconnects)
	}
}

func TestNATSBatchEventPublisher_PublishRoundtrip(t *testing.T) {
	publisher := setupConnectedPublisher(t)
	ctx := context.Background()

	// EnsureStream is idempotent.
	if err := publisher.EnsureStream(); err != nil {
		t.Fatalf("second EnsureStream failed: %v", err)
	}

	subject := batchEventSubjectPrefix + string(outbound.BatchEventCompleted)
	sub, err := publisher.js.SubscribeSync(subject, nats.DeliverNew())
	if err != nil {
		t.Fatalf("SubscribeSync failed: %v", err)
	}
	defer func() {
		_ = sub.Unsubscribe()
	}()

	event := testBatchEvent()
	event.Type = outbound.BatchEventCompleted
	event.Status = "completed"
	event.ProcessedImages = 4

	if err := publisher.PublishBatchEvent(ctx, event); err != nil {
		t.Fatalf("PublishBatchEvent failed: %v", err)
	}

	msg, err := sub.NextMsg(5 * time.Second)
	if err != nil {
		t.Fatalf("expected event on %s: %v", subject, err)
	}

	var received outbound.BatchEvent
	if err := json.Unmarshal(msg.Data, &received); err != nil {
		t.Fatalf("failed to decode event: %v", err)
	}
	if received.BatchID != event.BatchID {
		t.Errorf("expected batch %s, got %s", event.BatchID, received.BatchID)
	}
	if received.Type != outbound.BatchEventCompleted {
		t.Errorf("expected completed event, got %s", received.Type)
	}
	if received.ProcessedImages != 4 {
		t.Errorf("expected 4 processed images, got %d", received.ProcessedImages)
	}
	if received.OccurredAt.IsZero() {
		t.Error("expected occurred_at to be stamped")
	}

	metrics := publisher.GetEventMetrics()
	if metrics.PublishedCount == 0 {
		t.Error("expected published count to increase")
	}

	health := publisher.GetConnectionHealth()
	if !health.Connected {
		t.Error("expected connected health after publish")
	}
	if !health.JetStreamEnabled {
		t.Error("expected JetStream enabled after Connect")
	}
}
