package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	SchedulerSweepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_sweeps_total",
			Help: "Total number of scheduler sweeps per priority tier (count)",
		},
		[]string{"tier"},
	)

	SchedulerSourcesProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_sources_processed_total",
			Help: "Total number of sources processed by scheduler sweeps (count)",
		},
		[]string{"tier", "status"},
	)

	SchedulerItemsEnqueuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_items_enqueued_total",
			Help: "Total number of crawl messages enqueued (count)",
		},
		[]string{"tier"},
	)

	SchedulerSweepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scheduler_sweep_duration_ms",
			Help:    "Duration of one scheduler sweep in milliseconds",
			Buckets: []float64{100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
		},
		[]string{"tier"},
	)

	ConsumerMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consumer_messages_total",
			Help: "Total number of crawl messages processed, by disposition (count)",
		},
		[]string{"disposition"},
	)

	ConsumerBatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "consumer_batch_duration_ms",
			Help:    "Duration of one consumer batch in milliseconds",
			Buckets: []float64{100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
		},
	)

	ConsumerStageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "consumer_stage_duration_ms",
			Help:    "Duration of one pipeline stage (fetch, analyze, ingest) in milliseconds",
			Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		},
		[]string{"stage", "status"},
	)

	DedupChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dedup_checks_total",
			Help: "Total number of dedup checks, by outcome and layer (count)",
		},
		[]string{"outcome", "layer"},
	)

	FetchFallbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fetch_fallbacks_total",
			Help: "Total number of times feed-supplied content substituted a failed fetch (count)",
		},
	)

	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Total number of message retries scheduled (count)",
		},
		[]string{"service", "topic"},
	)

	DLQMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlq_messages_total",
			Help: "Total number of messages dead-lettered (count)",
		},
		[]string{"service", "topic", "reason"},
	)

	KafkaMessagesReadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_read_total",
			Help: "Total number of messages read from Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	KafkaMessagesWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_written_total",
			Help: "Total number of messages written to Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	KafkaWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_write_duration_ms",
			Help:    "Duration of writing messages to Kafka in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"service", "topic"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failures through circuit breaker (count)",
		},
		[]string{"name"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_requests_total",
			Help: "Total number of requests checked against rate limit (count)",
		},
		[]string{"status"},
	)

	FallbackUsageTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fallback_usage_total",
			Help: "Total number of times fallback strategies were used (count)",
		},
		[]string{"service", "strategy", "reason"},
	)
)

func RegisterSchedulerMetrics() {
	prometheus.MustRegister(SchedulerSweepsTotal)
	prometheus.MustRegister(SchedulerSourcesProcessedTotal)
	prometheus.MustRegister(SchedulerItemsEnqueuedTotal)
	prometheus.MustRegister(SchedulerSweepDuration)
}

func RegisterConsumerMetrics() {
	prometheus.MustRegister(ConsumerMessagesTotal)
	prometheus.MustRegister(ConsumerBatchDuration)
	prometheus.MustRegister(ConsumerStageDuration)
	prometheus.MustRegister(DedupChecksTotal)
	prometheus.MustRegister(FetchFallbacksTotal)
	prometheus.MustRegister(FallbackUsageTotal)
}

func RegisterBrokerMetrics() {
	prometheus.MustRegister(RetryAttemptsTotal)
	prometheus.MustRegister(DLQMessagesTotal)
	prometheus.MustRegister(KafkaMessagesReadTotal)
	prometheus.MustRegister(KafkaMessagesWrittenTotal)
	prometheus.MustRegister(KafkaWriteDuration)
}

func RegisterCircuitBreakerMetrics() {
	prometheus.MustRegister(CircuitBreakerState)
	prometheus.MustRegister(CircuitBreakerRequests)
	prometheus.MustRegister(CircuitBreakerFailures)
}

func RegisterRateLimitMetrics() {
	prometheus.MustRegister(RateLimitRequestsTotal)
}

func ObserveSweepDuration(tier string, duration time.Duration) {
	SchedulerSweepDuration.WithLabelValues(tier).Observe(float64(duration.Milliseconds()))
}

func ObserveBatchDuration(duration time.Duration) {
	ConsumerBatchDuration.Observe(float64(duration.Milliseconds()))
}

func ObserveStageDuration(stage, status string, duration time.Duration) {
	ConsumerStageDuration.WithLabelValues(stage, status).Observe(float64(duration.Milliseconds()))
}

func IncKafkaMessagesRead(service, topic string) {
	KafkaMessagesReadTotal.WithLabelValues(service, topic).Inc()
}

func IncKafkaMessagesWritten(service, topic string) {
	KafkaMessagesWrittenTotal.WithLabelValues(service, topic).Inc()
}

func ObserveKafkaWriteDuration(service, topic string, duration time.Duration) {
	KafkaWriteDuration.WithLabelValues(service, topic).Observe(float64(duration.Milliseconds()))
}
