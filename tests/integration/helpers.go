package integration

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"newswire/internal/logger"
	"newswire/pkg/models"
)

const (
	containerStartupTimeout = 60
)

func createTestLogger() logger.Logger {
	return logger.NopLogger()
}

func createTestMessage(itemURL, title string) models.CrawlMessage {
	return models.CrawlMessage{
		SourceID:       "src-1",
		SourceURL:      "https://example.com/feed.xml",
		SourceName:     "Example Feed",
		SourceType:     models.SourceTypeArticle,
		SourceCategory: "tech",
		SourceLanguage: "en",
		ItemURL:        itemURL,
		ItemTitle:      title,
		ItemPubDate:    time.Now().UTC().Truncate(time.Millisecond),
		NeedCrawl:      true,
		Timestamp:      time.Now().UTC().Truncate(time.Millisecond),
	}
}

func insertTestSource(t *testing.T, db *sql.DB, url, name, sourceType string, lastCrawledAt *time.Time) string {
	t.Helper()

	var id string
	err := db.QueryRowContext(context.Background(), `
		INSERT INTO sources (url, name, type, category, language, is_active, need_crawl, last_crawled_at)
		VALUES ($1, $2, $3, 'tech', 'en', true, true, $4)
		RETURNING id
	`, url, name, sourceType, lastCrawledAt).Scan(&id)
	if err != nil {
		t.Fatalf("failed to insert test source: %v", err)
	}
	return id
}

func insertTestContent(t *testing.T, db *sql.DB, url string) {
	t.Helper()

	if _, err := db.ExecContext(context.Background(), `
		INSERT INTO contents (url, title) VALUES ($1, 'stored')
	`, url); err != nil {
		t.Fatalf("failed to insert test content: %v", err)
	}
}
