package config

import (
	"fmt"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func ValidateStatic(cfg *Config) error {
	var errors []error

	if err := validateServer(cfg.Server); err != nil {
		errors = append(errors, err)
	}

	if err := validateBroker(cfg.Broker); err != nil {
		errors = append(errors, err)
	}

	if err := validateDatabase(cfg.Database); err != nil {
		errors = append(errors, err)
	}

	if err := validateScheduler(cfg.Scheduler); err != nil {
		errors = append(errors, err)
	}

	if err := validateConsumer(cfg.Consumer); err != nil {
		errors = append(errors, err)
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errors)
	}

	return nil
}

func validateServer(cfg ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.ReadTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.read_timeout_seconds",
			Message: "read timeout must be positive",
		}
	}

	if cfg.WriteTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.write_timeout_seconds",
			Message: "write timeout must be positive",
		}
	}

	return nil
}

func validateBroker(cfg BrokerConfig) error {
	if cfg.Type == "" {
		return &ValidationError{
			Field:   "broker.type",
			Message: "broker type is required",
		}
	}

	switch cfg.Type {
	case "kafka":
		return validateKafka(cfg.Kafka)
	default:
		return &ValidationError{
			Field:   "broker.type",
			Message: fmt.Sprintf("unknown broker type: %s (supported: kafka)", cfg.Type),
		}
	}
}

func validateKafka(cfg KafkaConfig) error {
	if len(cfg.Brokers) == 0 {
		return &ValidationError{
			Field:   "broker.kafka.brokers",
			Message: "at least one Kafka broker is required",
		}
	}

	for i, broker := range cfg.Brokers {
		if broker == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("broker.kafka.brokers[%d]", i),
				Message: "broker address cannot be empty",
			}
		}
	}

	if cfg.GroupID == "" {
		return &ValidationError{
			Field:   "broker.kafka.group_id",
			Message: "Kafka consumer group ID is required",
		}
	}

	if cfg.BatchSize < 0 {
		return &ValidationError{
			Field:   "broker.kafka.batch_size",
			Message: "batch_size must be non-negative",
		}
	}

	if cfg.BatchMaxWait < 0 {
		return &ValidationError{
			Field:   "broker.kafka.batch_max_wait",
			Message: "batch_max_wait must be non-negative",
		}
	}

	return nil
}

func validateDatabase(cfg DatabaseConfig) error {
	if cfg.Postgres.Host != "" || cfg.Postgres.Port > 0 {
		if err := validatePostgres(cfg.Postgres); err != nil {
			return err
		}
	}

	if cfg.Redis.Host != "" || cfg.Redis.Port > 0 {
		if err := validateRedis(cfg.Redis); err != nil {
			return err
		}
	}

	return nil
}

func validatePostgres(cfg PostgresConfig) error {
	if cfg.Host == "" {
		return &ValidationError{
			Field:   "database.postgres.host",
			Message: "PostgreSQL host is required",
		}
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "database.postgres.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.DBName == "" {
		return &ValidationError{
			Field:   "database.postgres.dbname",
			Message: "PostgreSQL database name is required",
		}
	}

	return nil
}

func validateRedis(cfg RedisConfig) error {
	if cfg.Host == "" {
		return &ValidationError{
			Field:   "database.redis.host",
			Message: "Redis host is required",
		}
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "database.redis.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	return nil
}

func validateScheduler(cfg SchedulerConfig) error {
	if cfg.SourceBatchSize < 0 {
		return &ValidationError{
			Field:   "scheduler.source_batch_size",
			Message: "source_batch_size must be non-negative",
		}
	}

	if cfg.MaxItemsPerSource < 0 {
		return &ValidationError{
			Field:   "scheduler.max_items_per_source",
			Message: "max_items_per_source must be non-negative",
		}
	}

	if cfg.ItemRetention < 0 {
		return &ValidationError{
			Field:   "scheduler.item_retention",
			Message: "item_retention must be non-negative",
		}
	}

	for tier, tc := range cfg.Tiers {
		switch tier {
		case "high", "medium", "low":
		default:
			return &ValidationError{
				Field:   fmt.Sprintf("scheduler.tiers.%s", tier),
				Message: "tier must be one of high, medium, low",
			}
		}
		if tc.Interval < 0 {
			return &ValidationError{
				Field:   fmt.Sprintf("scheduler.tiers.%s.interval", tier),
				Message: "interval must be non-negative",
			}
		}
	}

	return nil
}

func validateConsumer(cfg ConsumerConfig) error {
	if cfg.MaxConcurrency < 0 {
		return &ValidationError{
			Field:   "consumer.max_concurrency",
			Message: "max_concurrency must be non-negative",
		}
	}

	if cfg.MaxRetries < 0 {
		return &ValidationError{
			Field:   "consumer.max_retries",
			Message: "max_retries must be non-negative",
		}
	}

	if cfg.RetryBaseDelay < 0 {
		return &ValidationError{
			Field:   "consumer.retry_base_delay",
			Message: "retry_base_delay must be non-negative",
		}
	}

	return nil
}
