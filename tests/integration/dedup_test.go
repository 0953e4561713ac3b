package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newswire/internal/config"
	"newswire/internal/constants"
	"newswire/internal/store"
)

func TestCachedDedupRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	infra := SetupTestInfraWithOptions(t, true, false, true)
	ctx := context.Background()

	dedup := store.NewCachedDedup(
		store.NewRedisCache(infra.RedisClient),
		store.NewContentStore(infra.PostgresDB),
		config.DedupConfig{CacheTTL: time.Minute},
		createTestLogger(),
	)

	url := "https://example.com/articles/fresh"

	seen, err := dedup.Seen(ctx, url)
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, dedup.MarkSeen(ctx, url))

	seen, err = dedup.Seen(ctx, url)
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestCachedDedupBackfillsCacheFromStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	infra := SetupTestInfraWithOptions(t, true, false, true)
	ctx := context.Background()

	dedup := store.NewCachedDedup(
		store.NewRedisCache(infra.RedisClient),
		store.NewContentStore(infra.PostgresDB),
		config.DedupConfig{CacheTTL: time.Minute},
		createTestLogger(),
	)

	// Content stored by an earlier run; the cache knows nothing about it.
	url := "https://example.com/articles/stored"
	insertTestContent(t, infra.PostgresDB, url)

	seen, err := dedup.Seen(ctx, url)
	require.NoError(t, err)
	assert.True(t, seen)

	// The store hit backfills the cache.
	exists, err := infra.RedisClient.Exists(ctx, constants.DedupKeyPrefix+url).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), exists)
}

func TestCachedDedupSeenIsReadOnly(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	infra := SetupTestInfraWithOptions(t, true, false, true)
	ctx := context.Background()

	dedup := store.NewCachedDedup(
		store.NewRedisCache(infra.RedisClient),
		store.NewContentStore(infra.PostgresDB),
		config.DedupConfig{CacheTTL: time.Minute},
		createTestLogger(),
	)

	url := "https://example.com/articles/unseen"

	// Checking twice must not mark the URL; only MarkSeen does.
	for i := 0; i < 2; i++ {
		seen, err := dedup.Seen(ctx, url)
		require.NoError(t, err)
		assert.False(t, seen)
	}
}
