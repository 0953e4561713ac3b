package config

import (
	"time"
)

type Config struct {
	Server         ServerConfig
	Database       DatabaseConfig
	Broker         BrokerConfig
	Logging        LoggingConfig
	Scheduler      SchedulerConfig
	Consumer       ConsumerConfig
	Fetcher        FetcherConfig
	Analyzer       AnalyzerConfig
	Ingest         IngestConfig
	Dedup          DedupConfig
	Auth           AuthConfig
	CircuitBreaker CircuitBreakerConfig
	RateLimit      RateLimitConfig
	Tracing        TracingConfig
}

type ServerConfig struct {
	Port                int           `mapstructure:"port"`
	ReadTimeoutSeconds  time.Duration `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds time.Duration `mapstructure:"write_timeout_seconds"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig
	Redis         RedisConfig
	MongoDB       MongoDBConfig
	RunMigrations bool   `mapstructure:"run_migrations"`
	MigrationsDir string `mapstructure:"migrations_dir"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type MongoDBConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type BrokerConfig struct {
	Type  string      `mapstructure:"type"`
	Kafka KafkaConfig `mapstructure:"kafka"`
}

type KafkaConfig struct {
	Brokers         []string      `mapstructure:"brokers"`
	GroupID         string        `mapstructure:"group_id"`
	CrawlTopic      string        `mapstructure:"crawl_topic"`
	DeadLetterTopic string        `mapstructure:"dead_letter_topic"`
	BatchSize       int           `mapstructure:"batch_size"`
	BatchMaxWait    time.Duration `mapstructure:"batch_max_wait"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SchedulerConfig shapes the per-tier source sweeps. Cron expressions default
// to hourly / every 3h / every 6h when left empty; intervals default to the
// tier's built-in cadence.
type SchedulerConfig struct {
	SourceBatchSize   int            `mapstructure:"source_batch_size"`
	MaxItemsPerSource int            `mapstructure:"max_items_per_source"`
	ItemRetention     time.Duration  `mapstructure:"item_retention"`
	ItemFilter        string         `mapstructure:"item_filter"`
	Tiers             map[string]TierConfig `mapstructure:"tiers"`
}

type TierConfig struct {
	Schedule string        `mapstructure:"schedule"`
	Interval time.Duration `mapstructure:"interval"`
}

// ConsumerConfig shapes the batch processor and its retry budget.
type ConsumerConfig struct {
	MaxConcurrency int           `mapstructure:"max_concurrency"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay"`
}

type FetcherConfig struct {
	MaxAttempts   int           `mapstructure:"max_attempts"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
	Timeout       time.Duration `mapstructure:"timeout"`
	UserAgent     string        `mapstructure:"user_agent"`
}

type AnalyzerConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type IngestConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type DedupConfig struct {
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
	OnCacheError string        `mapstructure:"on_cache_error"`
}

// AuthConfig carries the shared secret guarding the control surface and
// outbound collaborator calls. The env var indirection keeps the secret out
// of config files.
type AuthConfig struct {
	Secret    string `mapstructure:"secret"`
	SecretEnv string `mapstructure:"secret_env"`
}

type CircuitBreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
	MinRequests  uint32        `mapstructure:"min_requests"`
}

type RateLimitConfig struct {
	Enabled         bool    `mapstructure:"enabled"`
	RPS             float64 `mapstructure:"rps"`
	Burst           int     `mapstructure:"burst"`
	CleanupInterval int     `mapstructure:"cleanup_interval"`
	MaxAge          int     `mapstructure:"max_age"`
}

type TracingConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ServiceName string        `mapstructure:"service_name"`
	OTLP        OTLPConfig    `mapstructure:"otlp"`
	Sampler     SamplerConfig `mapstructure:"sampler"`
}

type OTLPConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}

type SamplerConfig struct {
	Type  string  `mapstructure:"type"`
	Param float64 `mapstructure:"param"`
}

func Load(configFile string) (*Config, error) {
	return LoadConfig(configFile)
}
