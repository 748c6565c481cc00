// Package nats publishes classification events to JetStream so downstream
// consumers (alerting, accounting exports) see wallet activity as it is
// classified, without polling the API.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/soltrace/soltrace/service/metrics"
)

// Publisher is the interface for publishing classification events.
type Publisher interface {
	// PublishClassification publishes one event to the subject
	// "classified.{wallet_address}".
	PublishClassification(ctx context.Context, event *ClassificationEvent) error

	// PublishClassificationBatch publishes a batch, continuing past
	// per-event failures.
	PublishClassificationBatch(ctx context.Context, events []*ClassificationEvent) error

	// Close closes the connection to NATS.
	Close() error
}

// JetStreamPublisher publishes classification events to NATS JetStream.
type JetStreamPublisher struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	logger  *slog.Logger
	metrics *metrics.Metrics
}

const (
	// StreamName is the JetStream stream for classification events.
	StreamName = "CLASSIFICATIONS"

	// StreamSubjects is the subject pattern the stream captures.
	StreamSubjects = "classified.*"

	// StreamRetention is how long events are retained.
	StreamRetention = 30 * 24 * time.Hour
)

// NewPublisher connects to NATS and ensures the stream exists. m may be
// nil to disable publish metrics.
func NewPublisher(natsURL string, m *metrics.Metrics, logger *slog.Logger) (*JetStreamPublisher, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("soltrace-publisher"),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(1*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	publisher := &JetStreamPublisher{
		nc:      nc,
		js:      js,
		logger:  logger,
		metrics: m,
	}

	if err := publisher.ensureStream(); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream exists: %w", err)
	}

	logger.Info("NATS publisher initialized",
		"url", natsURL,
		"stream", StreamName,
	)
	return publisher, nil
}

// ensureStream creates the JetStream stream if it doesn't exist.
func (p *JetStreamPublisher) ensureStream() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stream, err := p.js.Stream(ctx, StreamName)
	if err == nil {
		info, err := stream.Info(ctx)
		if err == nil {
			p.logger.Debug("JetStream stream already exists",
				"stream", StreamName,
				"messages", info.State.Msgs,
			)
		}
		return nil
	}

	p.logger.Info("creating JetStream stream", "stream", StreamName)

	streamConfig := jetstream.StreamConfig{
		Name:        StreamName,
		Description: "Classified transaction events from tracked wallets",
		Subjects:    []string{StreamSubjects},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      StreamRetention,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
	}
	if _, err := p.js.CreateStream(ctx, streamConfig); err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	p.logger.Info("JetStream stream created", "stream", StreamName)
	return nil
}

// PublishClassification publishes a single classification event.
func (p *JetStreamPublisher) PublishClassification(ctx context.Context, event *ClassificationEvent) error {
	subject := fmt.Sprintf("classified.%s", event.WalletAddress)

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal classification event: %w", err)
	}

	start := time.Now()
	if _, err := p.js.Publish(ctx, subject, data); err != nil {
		if p.metrics != nil {
			p.metrics.RecordNATSPublish(subject, "error", time.Since(start).Seconds())
		}
		return fmt.Errorf("failed to publish classification: %w", err)
	}
	if p.metrics != nil {
		p.metrics.RecordNATSPublish(subject, "success", time.Since(start).Seconds())
	}

	p.logger.DebugContext(ctx, "published classification event",
		"subject", subject,
		"signature", event.Signature,
		"type", event.TxType,
	)
	return nil
}

// PublishClassificationBatch publishes a batch of events. A failed event
// is logged and skipped so one bad event does not drop the rest.
func (p *JetStreamPublisher) PublishClassificationBatch(ctx context.Context, events []*ClassificationEvent) error {
	if len(events) == 0 {
		return nil
	}

	for _, event := range events {
		if err := p.PublishClassification(ctx, event); err != nil {
			p.logger.ErrorContext(ctx, "failed to publish classification in batch",
				"signature", event.Signature,
				"wallet", event.WalletAddress,
				"error", err,
			)
			continue
		}
	}

	p.logger.DebugContext(ctx, "published classification batch", "count", len(events))
	return nil
}

// Close closes the connection to NATS.
func (p *JetStreamPublisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
		p.logger.Info("NATS publisher closed")
	}
	return nil
}
