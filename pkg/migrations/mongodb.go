package migrations

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"newswire/internal/constants"
)

// EnsureMongoCollections creates the indexes backing the dead-letter store
// and the persisted batch stats. Safe to call on every boot.
func EnsureMongoCollections(ctx context.Context, db *mongo.Database) error {
	deadLetters := db.Collection(constants.DeadLetterCollection)

	dlqIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_dead_letters_created_at"),
		},
		{
			Keys:    bson.D{{Key: "original_message.itemUrl", Value: 1}},
			Options: options.Index().SetName("idx_dead_letters_item_url"),
		},
		{
			Keys:    bson.D{{Key: "original_message.sourceId", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_dead_letters_source_created"),
		},
	}

	if _, err := deadLetters.Indexes().CreateMany(ctx, dlqIndexes); err != nil {
		if !strings.Contains(err.Error(), "already exists") {
			return fmt.Errorf("failed to create dead letter indexes: %w", err)
		}
	}

	stats := db.Collection(constants.CrawlStatsCollection)

	statsIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "completed_at", Value: -1}},
			Options: options.Index().SetName("idx_crawl_stats_completed_at"),
		},
	}

	if _, err := stats.Indexes().CreateMany(ctx, statsIndexes); err != nil {
		if !strings.Contains(err.Error(), "already exists") {
			return fmt.Errorf("failed to create crawl stats indexes: %w", err)
		}
	}

	return nil
}
