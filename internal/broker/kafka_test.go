package broker

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newswire/internal/config"
	"newswire/internal/logger"
	"newswire/pkg/models"
)

type fakeCommitter struct {
	mu        sync.Mutex
	committed []kafka.Message
}

func (c *fakeCommitter) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.committed = append(c.committed, msgs...)
	return nil
}

func (c *fakeCommitter) offsets() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]int64, len(c.committed))
	for i, m := range c.committed {
		out[i] = m.Offset
	}
	return out
}

type failingPublisher struct{}

func (failingPublisher) WriteMessages(context.Context, ...kafka.Message) error {
	return assert.AnError
}

type nopPublisher struct{}

func (nopPublisher) WriteMessages(context.Context, ...kafka.Message) error {
	return nil
}

func newTestKafkaQueue(committer messageCommitter, publisher messagePublisher, sink DeadLetterSink) *KafkaQueue {
	return &KafkaQueue{
		cfg:         config.KafkaConfig{CrawlTopic: "crawl.items"},
		committer:   committer,
		publisher:   publisher,
		sink:        sink,
		logger:      logger.NopLogger(),
		serviceName: "consumer-test",
	}
}

func rawMessage(t *testing.T, offset int64, msg models.CrawlMessage) kafka.Message {
	t.Helper()
	body, err := json.Marshal(msg)
	require.NoError(t, err)
	return kafka.Message{Offset: offset, Value: body}
}

// A malformed payload must ride the ordered outcome application as a dead
// letter, not get committed ahead of the batch: group commits are partition
// high-watermarks, so an early commit at a later offset would swallow every
// earlier message left uncommitted.
func TestHandleBatchMalformedNotCommittedWhenEarlierMessageAborts(t *testing.T) {
	committer := &fakeCommitter{}
	sink := &recordingSink{}
	q := newTestKafkaQueue(committer, failingPublisher{}, sink)

	raw := []kafka.Message{
		rawMessage(t, 10, models.CrawlMessage{ItemURL: "https://example.com/a", ItemTitle: "A"}),
		{Offset: 11, Value: []byte("{not json")},
	}

	q.handleBatch(context.Background(), raw, func(_ context.Context, batch []Delivery) []Outcome {
		require.Len(t, batch, 1)
		return []Outcome{Retry(0)}
	})

	// The republish of offset 10 failed, so nothing past it may be committed;
	// with offset 11 uncommitted, offset 10 stays redeliverable.
	assert.Empty(t, committer.offsets())
	assert.Empty(t, sink.all())
}

func TestHandleBatchMalformedDeadLetteredInPrefixOrder(t *testing.T) {
	committer := &fakeCommitter{}
	sink := &recordingSink{}
	q := newTestKafkaQueue(committer, nopPublisher{}, sink)

	raw := []kafka.Message{
		{Offset: 20, Value: []byte("garbage")},
		rawMessage(t, 21, models.CrawlMessage{ItemURL: "https://example.com/b", ItemTitle: "B"}),
	}

	var handled []string
	q.handleBatch(context.Background(), raw, func(_ context.Context, batch []Delivery) []Outcome {
		outcomes := make([]Outcome, len(batch))
		for i, d := range batch {
			handled = append(handled, d.Message.ItemURL)
			outcomes[i] = Ack()
		}
		return outcomes
	})

	// The handler only sees the decodable delivery.
	assert.Equal(t, []string{"https://example.com/b"}, handled)

	// The poison message lands in the sink with its raw payload preserved.
	records := sink.all()
	require.Len(t, records, 1)
	assert.True(t, strings.HasPrefix(records[0].reason, ReasonMalformedPayload+": "))
	assert.Equal(t, "garbage", records[0].msg.ItemContent)

	assert.Equal(t, []int64{20, 21}, committer.offsets())
}

func TestHandleBatchAllMalformed(t *testing.T) {
	committer := &fakeCommitter{}
	sink := &recordingSink{}
	q := newTestKafkaQueue(committer, nopPublisher{}, sink)

	raw := []kafka.Message{
		{Offset: 30, Value: []byte("x")},
		{Offset: 31, Value: []byte("y")},
	}

	q.handleBatch(context.Background(), raw, func(_ context.Context, batch []Delivery) []Outcome {
		t.Fatal("handler must not run for an all-malformed batch")
		return nil
	})

	assert.Len(t, sink.all(), 2)
	assert.Equal(t, []int64{30, 31}, committer.offsets())
}
