package broker

import (
	"context"
	"sync"
	"time"

	"newswire/pkg/models"
)

// MemoryQueue is an in-process Queue used by tests and local development.
// Retried deliveries are requeued with an incremented retry count; the delay
// is recorded but not waited on.
type MemoryQueue struct {
	mu          sync.Mutex
	cond        *sync.Cond
	pending     []Delivery
	closed      bool
	sink        DeadLetterSink
	batchSize   int
	RetryDelays []time.Duration
}

func NewMemoryQueue(batchSize int, sink DeadLetterSink) *MemoryQueue {
	q := &MemoryQueue{sink: sink, batchSize: batchSize}
	if q.batchSize <= 0 {
		q.batchSize = 1
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *MemoryQueue) SetServiceName(string) {}

func (q *MemoryQueue) Enqueue(_ context.Context, msg models.CrawlMessage) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, Delivery{Message: msg, FirstAttemptAt: time.Now()})
	q.cond.Broadcast()
	return nil
}

func (q *MemoryQueue) Consume(ctx context.Context, handler BatchHandler) error {
	go func() {
		<-ctx.Done()
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	}()

	for {
		batch := q.take(ctx)
		if batch == nil {
			return ctx.Err()
		}

		outcomes := handler(ctx, batch)
		if len(outcomes) != len(batch) {
			continue
		}

		for i, d := range batch {
			out := outcomes[i]
			switch out.Kind {
			case OutcomeRetry:
				q.mu.Lock()
				q.RetryDelays = append(q.RetryDelays, out.Delay)
				q.pending = append(q.pending, Delivery{
					Message:        d.Message,
					RetryCount:     d.RetryCount + 1,
					FirstAttemptAt: d.FirstAttemptAt,
				})
				q.cond.Broadcast()
				q.mu.Unlock()
			case OutcomeDeadLetter:
				if q.sink != nil {
					_ = q.sink.Write(ctx, d.Message, d.RetryCount, d.FirstAttemptAt, out.Error())
				}
			}
		}
	}
}

func (q *MemoryQueue) take(ctx context.Context) []Delivery {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.pending) == 0 {
		if ctx.Err() != nil || q.closed {
			return nil
		}
		q.cond.Wait()
	}

	n := q.batchSize
	if n > len(q.pending) {
		n = len(q.pending)
	}
	batch := make([]Delivery, n)
	copy(batch, q.pending[:n])
	q.pending = q.pending[n:]
	return batch
}

// Len reports the number of pending deliveries.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
	return nil
}
