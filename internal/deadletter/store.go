package deadletter

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"newswire/internal/broker"
	"newswire/internal/constants"
	"newswire/internal/logger"
	"newswire/pkg/errors"
	"newswire/pkg/models"
)

// Store reads dead letter records for the operator surface and replays them
// back onto the crawl queue.
type Store struct {
	collection *mongo.Collection
	queue      broker.Enqueuer
	logger     logger.Logger
}

func NewStore(db *mongo.Database, queue broker.Enqueuer, log logger.Logger) *Store {
	return &Store{
		collection: db.Collection(constants.DeadLetterCollection),
		queue:      queue,
		logger:     log,
	}
}

// List returns records newest first.
func (s *Store) List(ctx context.Context, limit, offset int) ([]models.DeadLetterRecord, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit)).
		SetSkip(int64(offset))

	cursor, err := s.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list dead letters: %w", err)
	}
	defer cursor.Close(ctx)

	records := []models.DeadLetterRecord{}
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode dead letters: %w", err)
	}
	return records, nil
}

func (s *Store) Get(ctx context.Context, id string) (*models.DeadLetterRecord, error) {
	var record models.DeadLetterRecord
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&record)
	if err == mongo.ErrNoDocuments {
		return nil, errors.ErrNotFound.WithDetail("id", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dead letter: %w", err)
	}
	return &record, nil
}

// Replay re-enqueues the original message with a fresh retry budget and
// deletes the record. The record is only removed once the enqueue succeeded.
func (s *Store) Replay(ctx context.Context, id string) (*models.DeadLetterRecord, error) {
	record, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.queue.Enqueue(ctx, record.OriginalMessage); err != nil {
		return nil, fmt.Errorf("failed to re-enqueue dead letter: %w", err)
	}

	if _, err := s.collection.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		s.logger.WarnwCtx(ctx, "Replayed dead letter but failed to delete record",
			"error", err,
			"id", id,
		)
	}

	s.logger.InfowCtx(ctx, "Dead letter replayed",
		"id", id,
		"item_url", record.OriginalMessage.ItemURL,
	)
	return record, nil
}
