// Package deadletter preserves permanently failed crawl messages: the sink
// records them, the store supports operator inspection and replay.
package deadletter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.mongodb.org/mongo-driver/mongo"

	"newswire/internal/config"
	"newswire/internal/constants"
	"newswire/internal/logger"
	"newswire/pkg/models"
)

// Sink writes each dead letter to the DLQ topic and the mongo collection.
// Both writes are attempted; an error from either is returned but callers
// treat the sink as best-effort.
type Sink struct {
	writer     *kafka.Writer
	topic      string
	collection *mongo.Collection
	logger     logger.Logger
}

func NewSink(cfg config.KafkaConfig, db *mongo.Database, log logger.Logger) *Sink {
	s := &Sink{
		topic:  cfg.DeadLetterTopic,
		logger: log,
	}
	if cfg.DeadLetterTopic != "" && len(cfg.Brokers) > 0 {
		s.writer = &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: constants.KafkaBatchTimeout,
			WriteTimeout: constants.KafkaWriteTimeout,
			Async:        false,
		}
	}
	if db != nil {
		s.collection = db.Collection(constants.DeadLetterCollection)
	}
	return s
}

func (s *Sink) Write(ctx context.Context, msg models.CrawlMessage, retryCount int, firstAttemptAt time.Time, reason string) error {
	now := time.Now()
	record := models.DeadLetterRecord{
		ID:              uuid.New().String(),
		OriginalMessage: msg,
		Error:           reason,
		RetryCount:      retryCount,
		FirstAttemptAt:  firstAttemptAt,
		LastAttemptAt:   now,
		CreatedAt:       now,
	}

	var firstErr error

	if s.collection != nil {
		if _, err := s.collection.InsertOne(ctx, record); err != nil {
			firstErr = fmt.Errorf("failed to insert dead letter record: %w", err)
			s.logger.ErrorwCtx(ctx, "Failed to persist dead letter record",
				"error", err,
				"item_url", msg.ItemURL,
			)
		}
	}

	if s.writer != nil {
		body, err := json.Marshal(record)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to marshal dead letter record: %w", err)
			}
		} else if err := s.writer.WriteMessages(ctx, kafka.Message{
			Topic: s.topic,
			Key:   []byte(msg.ItemURL),
			Value: body,
			Time:  now,
		}); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to publish dead letter: %w", err)
			}
			s.logger.ErrorwCtx(ctx, "Failed to publish dead letter to topic",
				"error", err,
				"topic", s.topic,
				"item_url", msg.ItemURL,
			)
		}
	}

	if firstErr == nil {
		s.logger.InfowCtx(ctx, "Message dead-lettered",
			"item_url", msg.ItemURL,
			"retry_count", retryCount,
			"reason", reason,
		)
	}
	return firstErr
}

func (s *Sink) Close() error {
	if s.writer != nil {
		return s.writer.Close()
	}
	return nil
}
