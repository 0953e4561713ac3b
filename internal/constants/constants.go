package constants

import "time"

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
)

const (
	DefaultCrawlTopic      = "crawl_items"
	DefaultDeadLetterTopic = "crawl_dead_letters"
	DefaultConsumerGroup   = "crawl-consumer"
)

// Consumer batch shape: up to DefaultBatchSize deliveries per batch, at most
// DefaultMaxConcurrency fetch/analyze/ingest pipelines in flight at once.
const (
	DefaultBatchSize      = 10
	DefaultBatchMaxWait   = 5 * time.Second
	DefaultMaxConcurrency = 5
)

// Message retry budget: delay doubles from DefaultRetryBaseDelay on every
// attempt (60s, 120s, 240s, 480s, 960s), dead-letter after the fifth failure.
const (
	DefaultMaxRetries     = 5
	DefaultRetryBaseDelay = 60 * time.Second
)

const (
	DefaultFetchAttempts = 3
	DefaultFetchInterval = 2 * time.Second
	DefaultFetchTimeout  = 20 * time.Second
)

const (
	DefaultAnalyzerTimeout = 30 * time.Second
	DefaultIngestTimeout   = 15 * time.Second
)

// Scheduler sweep shape.
const (
	DefaultSourceBatchSize   = 20
	DefaultMaxItemsPerSource = 10
	DefaultItemRetention     = 72 * time.Hour
)

const (
	DedupKeyPrefix       = "dedup:url:"
	DefaultDedupTTL      = 24 * time.Hour
	DefaultMongoDBName   = "newswire"
	DeadLetterCollection = "dead_letters"
	CrawlStatsCollection = "crawl_stats"
)

const (
	DefaultHTTPTimeout = 10 * time.Second
	ShutdownTimeout    = 5 * time.Second
	DefaultListLimit   = 100
	MaxListLimit       = 1000
)

const (
	ContentFormatHTML = "html"
	ContentFormatText = "text"
)

const (
	AuthHeader       = "Authorization"
	AuthBearerPrefix = "Bearer "
)
