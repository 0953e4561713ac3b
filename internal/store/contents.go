package store

import (
	"context"
	"database/sql"
	"fmt"
)

// ContentStore answers the authoritative dedup question: has this URL
// already been ingested.
type ContentStore interface {
	ExistsByURL(ctx context.Context, url string) (bool, error)
}

type PostgresContentStore struct {
	db *sql.DB
}

func NewContentStore(db *sql.DB) *PostgresContentStore {
	return &PostgresContentStore{db: db}
}

func (s *PostgresContentStore) ExistsByURL(ctx context.Context, url string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM contents WHERE url = $1)`, url,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check content existence: %w", err)
	}
	return exists, nil
}
