// Package store holds the pipeline's persistence collaborators: the source
// registry and content store in postgres, with a redis cache in front of the
// dedup check.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"newswire/pkg/models"
)

type SourceRepository interface {
	Due(ctx context.Context, types []string, interval time.Duration, limit int) ([]models.Source, error)
	GetByURL(ctx context.Context, url string) (*models.Source, error)
	MarkCrawled(ctx context.Context, sourceID string, at time.Time) error
	IncrementErrorCount(ctx context.Context, sourceID string) error
}

type PostgresSourceRepository struct {
	db *sql.DB
}

func NewSourceRepository(db *sql.DB) *PostgresSourceRepository {
	return &PostgresSourceRepository{db: db}
}

const sourceColumns = `id, url, name, type, category, language, is_active, need_crawl, last_crawled_at, error_count, created_at, updated_at`

// Due returns active sources of the given types whose last crawl is older
// than the tier interval, never-crawled sources first.
func (r *PostgresSourceRepository) Due(ctx context.Context, types []string, interval time.Duration, limit int) ([]models.Source, error) {
	query := `
		SELECT ` + sourceColumns + `
		FROM sources
		WHERE is_active = true
		  AND type = ANY($1)
		  AND (last_crawled_at IS NULL OR last_crawled_at <= $2)
		ORDER BY last_crawled_at ASC NULLS FIRST
		LIMIT $3
	`

	cutoff := time.Now().Add(-interval)
	rows, err := r.db.QueryContext(ctx, query, pq.Array(types), cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query due sources: %w", err)
	}
	defer rows.Close()

	var sources []models.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return sources, nil
}

func (r *PostgresSourceRepository) GetByURL(ctx context.Context, url string) (*models.Source, error) {
	query := `SELECT ` + sourceColumns + ` FROM sources WHERE url = $1`

	row := r.db.QueryRowContext(ctx, query, url)
	src, err := scanSource(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &src, nil
}

// MarkCrawled is consumer-side bookkeeping: it runs only after a successful
// ingest, so a failed sweep leaves the source due for the next one.
func (r *PostgresSourceRepository) MarkCrawled(ctx context.Context, sourceID string, at time.Time) error {
	query := `
		UPDATE sources
		SET last_crawled_at = $2, error_count = 0, updated_at = now()
		WHERE id = $1
	`

	if _, err := r.db.ExecContext(ctx, query, sourceID, at); err != nil {
		return fmt.Errorf("failed to mark source crawled: %w", err)
	}
	return nil
}

func (r *PostgresSourceRepository) IncrementErrorCount(ctx context.Context, sourceID string) error {
	query := `
		UPDATE sources
		SET error_count = error_count + 1, updated_at = now()
		WHERE id = $1
	`

	if _, err := r.db.ExecContext(ctx, query, sourceID); err != nil {
		return fmt.Errorf("failed to increment source error count: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSource(row rowScanner) (models.Source, error) {
	var src models.Source
	err := row.Scan(
		&src.ID,
		&src.URL,
		&src.Name,
		&src.Type,
		&src.Category,
		&src.Language,
		&src.IsActive,
		&src.NeedCrawl,
		&src.LastCrawledAt,
		&src.ErrorCount,
		&src.CreatedAt,
		&src.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return src, err
	}
	if err != nil {
		return src, fmt.Errorf("failed to scan source: %w", err)
	}
	return src, nil
}
