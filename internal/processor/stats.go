package processor

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"newswire/internal/constants"
	"newswire/pkg/models"
)

// MongoStatsRecorder persists per-batch stats for the /stats endpoint.
type MongoStatsRecorder struct {
	collection *mongo.Collection
}

func NewMongoStatsRecorder(db *mongo.Database) *MongoStatsRecorder {
	return &MongoStatsRecorder{
		collection: db.Collection(constants.CrawlStatsCollection),
	}
}

func (r *MongoStatsRecorder) Record(ctx context.Context, stats models.BatchStats) error {
	if _, err := r.collection.InsertOne(ctx, stats); err != nil {
		return fmt.Errorf("failed to record batch stats: %w", err)
	}
	return nil
}

// Latest returns the most recent batch, or nil when nothing ran yet.
func (r *MongoStatsRecorder) Latest(ctx context.Context) (*models.BatchStats, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "completed_at", Value: -1}})

	var stats models.BatchStats
	err := r.collection.FindOne(ctx, bson.M{}, opts).Decode(&stats)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest batch stats: %w", err)
	}
	return &stats, nil
}
