// Package kafka ingests collector telemetry from a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"fleetwatch/internal/logging"
	"fleetwatch/internal/models"
)

// ErrInvalidEvent marks messages that cannot become an Event.
var ErrInvalidEvent = errors.New("invalid event")

type Config struct {
	Broker  string
	Topic   string
	GroupID string
}

// Reader is the part of *kafka.Reader the consumer uses.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Ingester accepts raw events.
type Ingester interface {
	Ingest(ctx context.Context, e models.Event) models.Event
}

type Consumer struct {
	reader   Reader
	ingester Ingester
	logger   *logging.Logger
}

// NewConsumer creates a consumer group reader for cfg.Topic.
func NewConsumer(cfg Config, ingester Ingester, logger *logging.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     []string{cfg.Broker},
		Topic:       cfg.Topic,
		GroupID:     cfg.GroupID,
		StartOffset: kafka.FirstOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     time.Second,
	})
	return NewConsumerWithReader(r, ingester, logger)
}

func NewConsumerWithReader(r Reader, ingester Ingester, logger *logging.Logger) *Consumer {
	return &Consumer{reader: r, ingester: ingester, logger: logger}
}

// Run reads messages until ctx is cancelled. Invalid messages are logged and
// committed so they are not redelivered.
func (c *Consumer) Run(ctx context.Context) {
	c.logger.Info("Kafka consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("Kafka consumer stopped")
				return
			}
			c.logger.Errorf("Read message failed: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		e, err := DecodeEvent(msg.Value)
		if err != nil {
			c.logger.Errorf("Dropping message at offset %d: %v", msg.Offset, err)
		} else {
			c.ingester.Ingest(ctx, e)
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Errorf("Commit failed at offset %d: %v", msg.Offset, err)
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

// DecodeEvent parses a JSON event. Source and type are required; a missing
// severity means NORMAL and a missing timestamp means now.
func DecodeEvent(data []byte) (models.Event, error) {
	var e models.Event
	if err := json.Unmarshal(data, &e); err != nil {
		return models.Event{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if e.Source == "" || e.Type == "" {
		return models.Event{}, fmt.Errorf("%w: source and type are required", ErrInvalidEvent)
	}
	if e.Severity == "" {
		e.Severity = models.SeverityNormal
	}
	if !e.Severity.Valid() {
		return models.Event{}, fmt.Errorf("%w: unknown severity %q", ErrInvalidEvent, e.Severity)
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.Data == nil {
		e.Data = models.EventData{}
	}
	return e, nil
}
