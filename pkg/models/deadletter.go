package models

import "time"

// DeadLetterRecord preserves a permanently failed message with its failure
// context for operator inspection and replay. Records are append-only and
// created exactly once per message that exhausts its retry budget.
type DeadLetterRecord struct {
	ID              string       `json:"id" bson:"_id"`
	OriginalMessage CrawlMessage `json:"originalMessage" bson:"original_message"`
	Error           string       `json:"error" bson:"error"`
	RetryCount      int          `json:"retryCount" bson:"retry_count"`
	FirstAttemptAt  time.Time    `json:"firstAttemptAt" bson:"first_attempt_at"`
	LastAttemptAt   time.Time    `json:"lastAttemptAt" bson:"last_attempt_at"`
	CreatedAt       time.Time    `json:"createdAt" bson:"created_at"`
}

// BatchStats aggregates one consumer batch: every message reaches exactly one
// terminal-or-retried disposition and is counted once in Processed.
type BatchStats struct {
	Processed    int           `json:"processed" bson:"processed"`
	Succeeded    int           `json:"succeeded" bson:"succeeded"`
	Duplicates   int           `json:"duplicates" bson:"duplicates"`
	Retried      int           `json:"retried" bson:"retried"`
	DeadLettered int           `json:"deadLettered" bson:"dead_lettered"`
	Failed       int           `json:"failed" bson:"failed"`
	Duration     time.Duration `json:"duration" bson:"duration"`
	CompletedAt  time.Time     `json:"completedAt" bson:"completed_at"`
}
