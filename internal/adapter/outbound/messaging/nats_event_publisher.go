// Package messaging publishes batch lifecycle events over NATS
// JetStream so downstream consumers can react to batch progress without
// polling the database.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/shini559/Gaming-advisor-sub000/internal/config"
	"github.com/shini559/Gaming-advisor-sub000/internal/port/outbound"
)

const (
	// NATS connection timeout.
	natsConnectionTimeoutSeconds = 5

	// Events expire from the stream after one day.
	streamMaxAgeHours = 24

	// streamName holds every batch lifecycle event.
	streamName = "GAMEADVISOR"

	// batchEventSubjectPrefix is completed by the event type, giving
	// subjects like batch.event.created.
	batchEventSubjectPrefix = "batch.event."
)

// connectionHealth tracks the NATS connection state.
type connectionHealth struct {
	connected bool
	lastError error
}

// eventMetrics tracks publishing outcomes.
type eventMetrics struct {
	publishedCount int64
	failedCount    int64
	averageLatency time.Duration
}

// NATSBatchEventPublisher publishes batch lifecycle events to a
// JetStream stream. Events are broadcast, not work items: consumers keep
// their own cursors, so the stream retains by age instead of acking away
// consumed messages.
type NATSBatchEventPublisher struct {
	config config.NATSConfig
	conn   *nats.Conn
	js     nats.JetStreamContext

	mutex          sync.RWMutex
	health         connectionHealth
	metrics        eventMetrics
	connectedAt    time.Time
	reconnectCount int
}

// NewNATSBatchEventPublisher creates a publisher for the configured NATS
// server. Connect must be called before publishing.
func NewNATSBatchEventPublisher(cfg config.NATSConfig) (*NATSBatchEventPublisher, error) {
	if cfg.URL == "" {
		return nil, errors.New("NATS URL cannot be empty")
	}
	if !strings.HasPrefix(cfg.URL, "nats://") {
		return nil, errors.New("invalid NATS URL scheme")
	}
	if cfg.MaxReconnects < 0 {
		return nil, errors.New("max reconnects cannot be negative")
	}
	if cfg.ReconnectWait < 0 {
		return nil, errors.New("reconnect wait cannot be negative")
	}

	return &NATSBatchEventPublisher{
		config: cfg,
	}, nil
}

// Connect establishes the connection and the JetStream context.
func (p *NATSBatchEventPublisher) Connect() error {
	opts := []nats.Option{
		nats.MaxReconnects(p.config.MaxReconnects),
		nats.ReconnectWait(p.config.ReconnectWait),
		nats.Timeout(natsConnectionTimeoutSeconds * time.Second),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			p.mutex.Lock()
			p.reconnectCount++
			p.mutex.Unlock()
			p.updateConnectionHealth(true, nil)
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, _ error) {
			p.updateConnectionHealth(false, errors.New("connection lost"))
		}),
	}

	conn, err := nats.Connect(p.config.URL, opts...)
	if err != nil {
		p.updateConnectionHealth(false, err)
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		p.updateConnectionHealth(false, err)
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	p.conn = conn
	p.js = js
	p.updateConnectionHealth(true, nil)
	return nil
}

// Disconnect closes the NATS connection.
func (p *NATSBatchEventPublisher) Disconnect() error {
	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
		p.js = nil
	}
	p.updateConnectionHealth(false, nil)
	return nil
}

// EnsureStream creates the event stream if it doesn't exist.
func (p *NATSBatchEventPublisher) EnsureStream() error {
	if p.js == nil {
		return errors.New("not connected to NATS server")
	}

	streamConfig := &nats.StreamConfig{
		Name:      streamName,
		Subjects:  []string{batchEventSubjectPrefix + ">"},
		Storage:   nats.FileStorage,
		Retention: nats.LimitsPolicy,
		MaxAge:    streamMaxAgeHours * time.Hour,
		Replicas:  1,
	}

	if _, err := p.js.AddStream(streamConfig); err != nil {
		// AddStream fails when the stream already exists with a
		// different config; an existing stream is fine.
		if _, infoErr := p.js.StreamInfo(streamName); infoErr == nil {
			return nil
		}
		return fmt.Errorf("failed to create stream: %w", err)
	}

	return nil
}

// PublishBatchEvent publishes one lifecycle event under the subject of
// its event type.
func (p *NATSBatchEventPublisher) PublishBatchEvent(ctx context.Context, event outbound.BatchEvent) error {
	start := time.Now()

	select {
	case <-ctx.Done():
		p.updateMetrics(false, time.Since(start))
		return ctx.Err()
	default:
	}

	if err := validateEvent(event); err != nil {
		return err
	}

	if p.js == nil {
		p.updateMetrics(false, time.Since(start))
		return errors.New("not connected to NATS server")
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.updateMetrics(false, time.Since(start))
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	subject := batchEventSubjectPrefix + string(event.Type)
	if _, err := p.js.PublishAsync(subject, data, nats.Context(ctx)); err != nil {
		p.updateMetrics(false, time.Since(start))
		return fmt.Errorf("failed to publish event to %s: %w", subject, err)
	}

	p.updateMetrics(true, time.Since(start))
	return nil
}

// GetConnectionHealth returns the current connection health status.
func (p *NATSBatchEventPublisher) GetConnectionHealth() outbound.EventPublisherHealthStatus {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	status := outbound.EventPublisherHealthStatus{
		Connected:        p.health.connected,
		JetStreamEnabled: p.js != nil,
		Reconnects:       p.reconnectCount,
	}

	if p.health.connected {
		status.Uptime = time.Since(p.connectedAt).String()
	} else {
		status.Uptime = "0s"
	}

	if p.health.lastError != nil {
		status.LastError = p.health.lastError.Error()
	}

	return status
}

// GetEventMetrics returns current publishing metrics.
func (p *NATSBatchEventPublisher) GetEventMetrics() outbound.EventPublisherMetrics {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	return outbound.EventPublisherMetrics{
		PublishedCount: p.metrics.publishedCount,
		FailedCount:    p.metrics.failedCount,
		AverageLatency: p.metrics.averageLatency.String(),
	}
}

func validateEvent(event outbound.BatchEvent) error {
	if event.Type == "" {
		return errors.New("event type cannot be empty")
	}
	if event.BatchID == uuid.Nil {
		return errors.New("batch ID cannot be nil")
	}
	if event.GameID == uuid.Nil {
		return errors.New("game ID cannot be nil")
	}
	return nil
}

func (p *NATSBatchEventPublisher) updateConnectionHealth(connected bool, err error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.health.connected = connected
	if err != nil {
		p.health.lastError = err
	}

	if connected && p.connectedAt.IsZero() {
		p.connectedAt = time.Now()
	}
}

func (p *NATSBatchEventPublisher) updateMetrics(success bool, latency time.Duration) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if success {
		p.metrics.publishedCount++

		// Exponential moving average with alpha = 0.1.
		if p.metrics.averageLatency == 0 {
			p.metrics.averageLatency = latency
		} else {
			p.metrics.averageLatency = time.Duration(
				0.9*float64(p.metrics.averageLatency) + 0.1*float64(latency),
			)
		}
	} else {
		p.metrics.failedCount++
	}
}
