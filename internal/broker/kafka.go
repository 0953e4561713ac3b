package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"newswire/internal/config"
	"newswire/internal/constants"
	"newswire/internal/logger"
	"newswire/pkg/logging"
	"newswire/pkg/metrics"
	"newswire/pkg/models"
	"newswire/pkg/tracing"
)

// Retry bookkeeping headers. A republished message carries its incremented
// retry count, the earliest time it may be processed again, and the timestamp
// of its first attempt.
const (
	HeaderRetryCount     = "x-retry-count"
	HeaderNotBefore      = "x-not-before"
	HeaderFirstAttemptAt = "x-first-attempt-at"
)

// ReasonMalformedPayload marks a message whose body could not be decoded.
// Such messages go to the sink with the raw payload as content so operators
// can inspect them.
const ReasonMalformedPayload = "malformed_payload"

// messageCommitter and messagePublisher are the two reader/writer operations
// the outcome application depends on.
type messageCommitter interface {
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

type messagePublisher interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type KafkaQueue struct {
	cfg         config.KafkaConfig
	writer      *kafka.Writer
	reader      *kafka.Reader
	committer   messageCommitter
	publisher   messagePublisher
	sink        DeadLetterSink
	logger      logger.Logger
	serviceName string
	wg          sync.WaitGroup
}

func NewKafkaQueue(cfg config.KafkaConfig, sink DeadLetterSink, log logger.Logger) *KafkaQueue {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: constants.KafkaBatchTimeout,
		WriteTimeout: constants.KafkaWriteTimeout,
		Async:        false,

		AllowAutoTopicCreation: true,
	}
	return &KafkaQueue{
		cfg:         cfg,
		writer:      w,
		publisher:   w,
		sink:        sink,
		logger:      log,
		serviceName: "unknown",
	}
}

func (q *KafkaQueue) SetServiceName(name string) {
	q.serviceName = name
}

// Enqueue publishes one crawl message, keyed by item URL so retries of the
// same item land on the same partition.
func (q *KafkaQueue) Enqueue(ctx context.Context, msg models.CrawlMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal crawl message: %w", err)
	}

	headers := tracing.InjectTraceContext(ctx, nil)

	start := time.Now()
	err = q.writer.WriteMessages(ctx, kafka.Message{
		Topic:   q.cfg.CrawlTopic,
		Key:     []byte(msg.ItemURL),
		Value:   body,
		Headers: headers,
		Time:    time.Now(),
	})
	metrics.ObserveKafkaWriteDuration(q.serviceName, q.cfg.CrawlTopic, time.Since(start))
	if err != nil {
		return fmt.Errorf("failed to write kafka message: %w", err)
	}

	metrics.IncKafkaMessagesWritten(q.serviceName, q.cfg.CrawlTopic)
	return nil
}

// Consume reads batches from the crawl topic, delivers them to the handler
// and applies the returned outcomes. It blocks until ctx is canceled.
func (q *KafkaQueue) Consume(ctx context.Context, handler BatchHandler) error {
	q.logger.Infow("Creating Kafka reader",
		"topic", q.cfg.CrawlTopic,
		"brokers", q.cfg.Brokers,
		"group_id", q.cfg.GroupID,
		"service_name", q.serviceName,
	)

	q.reader = kafka.NewReader(kafka.ReaderConfig{
		Brokers:  q.cfg.Brokers,
		GroupID:  q.cfg.GroupID,
		Topic:    q.cfg.CrawlTopic,
		MinBytes: 10e3,
		MaxBytes: 10e6,
	})
	q.committer = q.reader

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		consumeCtx := logging.WithServiceName(ctx, q.serviceName)
		q.logger.InfowCtx(consumeCtx, "Started consuming",
			"topic", q.cfg.CrawlTopic,
		)

		for {
			raw, err := q.fetchBatch(ctx)
			if err != nil {
				if ctx.Err() != nil {
					q.logger.InfowCtx(consumeCtx, "Stopped consuming",
						"topic", q.cfg.CrawlTopic,
						"reason", "context canceled",
					)
					return
				}
				q.logger.ErrorwCtx(consumeCtx, "Error fetching kafka messages",
					"error", err,
					"topic", q.cfg.CrawlTopic,
				)
				time.Sleep(time.Second)
				continue
			}
			if len(raw) == 0 {
				continue
			}

			q.handleBatch(consumeCtx, raw, handler)
		}
	}()

	<-ctx.Done()
	return ctx.Err()
}

// fetchBatch blocks for the first message, then keeps reading until the
// batch is full or BatchMaxWait has passed.
func (q *KafkaQueue) fetchBatch(ctx context.Context) ([]kafka.Message, error) {
	first, err := q.reader.FetchMessage(ctx)
	if err != nil {
		return nil, err
	}
	batch := []kafka.Message{first}

	batchSize := q.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = constants.DefaultBatchSize
	}
	maxWait := q.cfg.BatchMaxWait
	if maxWait <= 0 {
		maxWait = constants.DefaultBatchMaxWait
	}

	waitCtx, cancel := context.WithTimeout(ctx, maxWait)
	defer cancel()

	for len(batch) < batchSize {
		m, err := q.reader.FetchMessage(waitCtx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			break
		}
		batch = append(batch, m)
	}
	return batch, nil
}

// batchEntry pairs a raw message with its decoded delivery. A malformed
// payload gets a pre-decided dead-letter outcome instead of an inline commit:
// group commits are partition high-watermarks, so committing it early would
// implicitly commit every earlier offset and break the contiguous-prefix
// discipline below.
type batchEntry struct {
	raw      kafka.Message
	delivery Delivery
	outcome  Outcome
	decided  bool
}

func (q *KafkaQueue) handleBatch(ctx context.Context, raw []kafka.Message, handler BatchHandler) {
	entries := make([]batchEntry, 0, len(raw))
	pending := 0
	var holdUntil time.Time

	for _, m := range raw {
		metrics.IncKafkaMessagesRead(q.serviceName, q.cfg.CrawlTopic)

		d, err := deliveryFromMessage(m)
		if err != nil {
			q.logger.ErrorwCtx(ctx, "Failed to unmarshal message, dead-lettering",
				"error", err,
				"topic", q.cfg.CrawlTopic,
			)
			entries = append(entries, batchEntry{
				raw: m,
				delivery: Delivery{
					Message:        models.CrawlMessage{ItemContent: string(m.Value)},
					FirstAttemptAt: m.Time,
				},
				outcome: DeadLetter(ReasonMalformedPayload, err),
				decided: true,
			})
			continue
		}

		if nb := notBeforeOf(m); nb.After(holdUntil) {
			holdUntil = nb
		}
		entries = append(entries, batchEntry{raw: m, delivery: d})
		pending++
	}

	if len(entries) == 0 {
		return
	}

	// Retried messages carry a not-before deadline; hold the batch until the
	// latest one is due.
	if wait := time.Until(holdUntil); wait > 0 {
		q.logger.InfowCtx(ctx, "Holding batch until retry deadline",
			"wait", wait,
			"batch_size", len(entries),
		)
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}

	batchCtx, span := tracing.StartSpanFromKafkaMessage(ctx, "queue.consume_batch", raw[0].Headers)
	defer span.End()

	if pending > 0 {
		deliveries := make([]Delivery, 0, pending)
		for _, e := range entries {
			if !e.decided {
				deliveries = append(deliveries, e.delivery)
			}
		}

		outcomes, ok := q.dispatch(batchCtx, deliveries, handler)
		if !ok {
			// Handler panicked; leave the batch uncommitted for redelivery.
			return
		}
		if len(outcomes) != len(deliveries) {
			q.logger.ErrorwCtx(batchCtx, "Handler returned mismatched outcomes, leaving batch uncommitted",
				"deliveries", len(deliveries),
				"outcomes", len(outcomes),
			)
			return
		}

		next := 0
		for i := range entries {
			if !entries[i].decided {
				entries[i].outcome = outcomes[next]
				next++
			}
		}
	}

	committed := 0
	for i, e := range entries {
		d := e.delivery
		out := e.outcome
		msgCtx := logging.WithItemURL(batchCtx, d.Message.ItemURL)

		switch out.Kind {
		case OutcomeAck:
			metrics.ConsumerMessagesTotal.WithLabelValues("ack").Inc()

		case OutcomeRetry:
			if err := q.republish(msgCtx, d, out.Delay); err != nil {
				q.logger.ErrorwCtx(msgCtx, "Failed to republish for retry, leaving message uncommitted",
					"error", err,
					"retry_count", d.RetryCount,
				)
				q.commitEntries(msgCtx, entries[:committed])
				return
			}
			metrics.ConsumerMessagesTotal.WithLabelValues("retry").Inc()
			metrics.RetryAttemptsTotal.WithLabelValues(q.serviceName, q.cfg.CrawlTopic).Inc()
			q.logger.WarnwCtx(msgCtx, "Message scheduled for retry",
				"retry_count", d.RetryCount+1,
				"delay", out.Delay,
			)

		case OutcomeDeadLetter:
			if err := q.sink.Write(msgCtx, d.Message, d.RetryCount, d.FirstAttemptAt, out.Error()); err != nil {
				// The sink is best-effort: losing the record beats blocking
				// the partition.
				q.logger.ErrorwCtx(msgCtx, "Failed to write dead letter, committing anyway",
					"error", err,
					"reason", out.Reason,
				)
			}
			metrics.ConsumerMessagesTotal.WithLabelValues("dead_letter").Inc()
			metrics.DLQMessagesTotal.WithLabelValues(q.serviceName, q.cfg.CrawlTopic, out.Reason).Inc()

		default:
			q.logger.ErrorwCtx(msgCtx, "Unknown outcome, leaving message uncommitted",
				"outcome", string(out.Kind),
			)
			q.commitEntries(msgCtx, entries[:committed])
			return
		}
		committed = i + 1
	}

	q.commitEntries(batchCtx, entries[:committed])
}

func (q *KafkaQueue) dispatch(ctx context.Context, batch []Delivery, handler BatchHandler) (outcomes []Outcome, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.ErrorwCtx(ctx, "Panic recovered during batch processing",
				"panic", fmt.Sprintf("%v", r),
				"batch_size", len(batch),
			)
			ok = false
		}
	}()
	return handler(ctx, batch), true
}

// republish puts the message back on the crawl topic with an incremented
// retry count and a not-before deadline.
func (q *KafkaQueue) republish(ctx context.Context, d Delivery, delay time.Duration) error {
	body, err := json.Marshal(d.Message)
	if err != nil {
		return fmt.Errorf("failed to marshal crawl message: %w", err)
	}

	now := time.Now()
	headers := tracing.InjectTraceContext(ctx, nil)
	headers = append(headers,
		kafka.Header{Key: HeaderRetryCount, Value: []byte(strconv.Itoa(d.RetryCount + 1))},
		kafka.Header{Key: HeaderNotBefore, Value: []byte(now.Add(delay).Format(time.RFC3339Nano))},
		kafka.Header{Key: HeaderFirstAttemptAt, Value: []byte(d.FirstAttemptAt.Format(time.RFC3339Nano))},
	)

	err = q.publisher.WriteMessages(ctx, kafka.Message{
		Topic:   q.cfg.CrawlTopic,
		Key:     []byte(d.Message.ItemURL),
		Value:   body,
		Headers: headers,
		Time:    now,
	})
	if err != nil {
		return fmt.Errorf("failed to republish kafka message: %w", err)
	}

	metrics.IncKafkaMessagesWritten(q.serviceName, q.cfg.CrawlTopic)
	return nil
}

func (q *KafkaQueue) commitEntries(ctx context.Context, entries []batchEntry) {
	if len(entries) == 0 {
		return
	}
	msgs := make([]kafka.Message, len(entries))
	for i, e := range entries {
		msgs[i] = e.raw
	}
	if err := q.committer.CommitMessages(ctx, msgs...); err != nil {
		q.logger.ErrorwCtx(ctx, "Failed to commit messages",
			"error", err,
			"count", len(msgs),
		)
	}
}

func (q *KafkaQueue) Close() error {
	var err error
	if q.reader != nil {
		err = q.reader.Close()
	}
	if closeErr := q.writer.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	q.wg.Wait()
	return err
}

func deliveryFromMessage(m kafka.Message) (Delivery, error) {
	var msg models.CrawlMessage
	if err := json.Unmarshal(m.Value, &msg); err != nil {
		return Delivery{}, err
	}

	d := Delivery{Message: msg, FirstAttemptAt: m.Time}
	for _, h := range m.Headers {
		switch h.Key {
		case HeaderRetryCount:
			// A corrupt or negative count would wreck the backoff math
			// downstream; treat it as a first attempt.
			if n, err := strconv.Atoi(string(h.Value)); err == nil && n >= 0 {
				d.RetryCount = n
			}
		case HeaderFirstAttemptAt:
			if t, err := time.Parse(time.RFC3339Nano, string(h.Value)); err == nil {
				d.FirstAttemptAt = t
			}
		}
	}
	if d.FirstAttemptAt.IsZero() {
		d.FirstAttemptAt = time.Now()
	}
	return d, nil
}

func notBeforeOf(m kafka.Message) time.Time {
	for _, h := range m.Headers {
		if h.Key == HeaderNotBefore {
			if t, err := time.Parse(time.RFC3339Nano, string(h.Value)); err == nil {
				return t
			}
		}
	}
	return time.Time{}
}
