package broker

import (
	"context"
	"fmt"
	"time"

	"newswire/pkg/models"
)

// Delivery is one message pulled off the queue together with its retry
// bookkeeping. RetryCount and FirstAttemptAt travel in message headers so
// redelivered messages keep their history.
type Delivery struct {
	Message        models.CrawlMessage
	RetryCount     int
	FirstAttemptAt time.Time
}

// OutcomeKind classifies what the handler decided for a delivery.
type OutcomeKind string

const (
	OutcomeAck        OutcomeKind = "ack"
	OutcomeRetry      OutcomeKind = "retry"
	OutcomeDeadLetter OutcomeKind = "dead_letter"
)

// Outcome is the handler's verdict for a single delivery. The queue applies
// it: ack commits, retry republishes with an incremented retry count and a
// not-before deadline, dead-letter hands the message to the sink and commits.
type Outcome struct {
	Kind   OutcomeKind
	Delay  time.Duration
	Reason string
	Cause  string
}

func Ack() Outcome {
	return Outcome{Kind: OutcomeAck}
}

func Retry(delay time.Duration) Outcome {
	return Outcome{Kind: OutcomeRetry, Delay: delay}
}

// DeadLetter marks a message terminally failed. Reason is a short stable
// code (it becomes a metric label); cause carries the underlying error text
// into the dead letter record.
func DeadLetter(reason string, cause error) Outcome {
	o := Outcome{Kind: OutcomeDeadLetter, Reason: reason}
	if cause != nil {
		o.Cause = cause.Error()
	}
	return o
}

// Error is the full failure description stored with the record.
func (o Outcome) Error() string {
	if o.Cause == "" {
		return o.Reason
	}
	return o.Reason + ": " + o.Cause
}

func (o Outcome) String() string {
	switch o.Kind {
	case OutcomeRetry:
		return fmt.Sprintf("retry(%s)", o.Delay)
	case OutcomeDeadLetter:
		return fmt.Sprintf("dead_letter(%s)", o.Reason)
	default:
		return string(o.Kind)
	}
}

// BatchHandler processes a batch of deliveries and returns one outcome per
// delivery, index-aligned with the input slice.
type BatchHandler func(ctx context.Context, batch []Delivery) []Outcome

// Enqueuer is the producer side of the queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, msg models.CrawlMessage) error
	Close() error
}

// Queue is the full queue: producers enqueue crawl messages, the consumer
// side delivers them in batches and applies the handler's outcomes.
type Queue interface {
	Enqueuer
	Consume(ctx context.Context, handler BatchHandler) error
	SetServiceName(name string)
}

// DeadLetterSink receives messages that exhausted their retries or failed
// validation. A sink error must not block the pipeline; the queue logs it
// and commits the message anyway.
type DeadLetterSink interface {
	Write(ctx context.Context, msg models.CrawlMessage, retryCount int, firstAttemptAt time.Time, reason string) error
}
