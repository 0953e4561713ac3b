package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newswire/internal/broker"
	"newswire/internal/config"
	"newswire/internal/deadletter"
	"newswire/internal/processor"
	"newswire/pkg/errors"
	"newswire/pkg/models"
)

func TestDeadLetterSinkAndStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	infra := SetupTestInfraWithOptions(t, false, true, false)
	ctx := context.Background()
	log := createTestLogger()

	sink := deadletter.NewSink(config.KafkaConfig{}, infra.MongoDB, log)
	queue := broker.NewMemoryQueue(10, nil)
	dlStore := deadletter.NewStore(infra.MongoDB, queue, log)

	msg := createTestMessage("https://example.com/articles/doomed", "Doomed Item")
	firstAttempt := time.Now().UTC().Add(-30 * time.Minute).Truncate(time.Millisecond)

	require.NoError(t, sink.Write(ctx, msg, 5, firstAttempt, "max_retries_exceeded: analysis failed"))

	records, err := dlStore.List(ctx, 50, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)

	record := records[0]
	assert.Equal(t, msg.ItemURL, record.OriginalMessage.ItemURL)
	assert.Equal(t, 5, record.RetryCount)
	assert.Equal(t, "max_retries_exceeded: analysis failed", record.Error)
	assert.WithinDuration(t, firstAttempt, record.FirstAttemptAt, time.Second)

	got, err := dlStore.Get(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, record.ID, got.ID)
}

func TestDeadLetterReplayReEnqueuesAndDeletes(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	infra := SetupTestInfraWithOptions(t, false, true, false)
	ctx := context.Background()
	log := createTestLogger()

	sink := deadletter.NewSink(config.KafkaConfig{}, infra.MongoDB, log)
	queue := broker.NewMemoryQueue(10, nil)
	dlStore := deadletter.NewStore(infra.MongoDB, queue, log)

	msg := createTestMessage("https://example.com/articles/replayed", "Replayed Item")
	require.NoError(t, sink.Write(ctx, msg, 5, time.Now().UTC(), "max_retries_exceeded: ingest rejected"))

	records, err := dlStore.List(ctx, 50, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)

	replayed, err := dlStore.Replay(ctx, records[0].ID)
	require.NoError(t, err)
	assert.Equal(t, msg.ItemURL, replayed.OriginalMessage.ItemURL)

	// The original message is back on the queue with a fresh retry budget.
	assert.Equal(t, 1, queue.Len())

	records, err = dlStore.List(ctx, 50, 0)
	require.NoError(t, err)
	assert.Empty(t, records)

	_, err = dlStore.Get(ctx, replayed.ID)
	assert.True(t, errors.IsNotFound(err))
}

func TestMongoStatsRecorder(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	infra := SetupTestInfraWithOptions(t, false, true, false)
	ctx := context.Background()

	recorder := processor.NewMongoStatsRecorder(infra.MongoDB)

	latest, err := recorder.Latest(ctx)
	require.NoError(t, err)
	assert.Nil(t, latest)

	older := models.BatchStats{
		Processed:   3,
		Succeeded:   2,
		Duplicates:  1,
		CompletedAt: time.Now().UTC().Add(-time.Minute).Truncate(time.Millisecond),
	}
	newer := models.BatchStats{
		Processed:    4,
		Succeeded:    3,
		DeadLettered: 1,
		CompletedAt:  time.Now().UTC().Truncate(time.Millisecond),
	}

	require.NoError(t, recorder.Record(ctx, older))
	require.NoError(t, recorder.Record(ctx, newer))

	latest, err = recorder.Latest(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, 4, latest.Processed)
	assert.Equal(t, 1, latest.DeadLettered)
}
