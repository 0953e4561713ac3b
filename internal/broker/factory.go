package broker

import (
	"fmt"

	"newswire/internal/config"
	"newswire/internal/logger"
)

func NewQueue(cfg config.BrokerConfig, sink DeadLetterSink, log logger.Logger) (Queue, error) {
	switch cfg.Type {
	case "kafka":
		return NewKafkaQueue(cfg.Kafka, sink, log), nil
	default:
		return nil, fmt.Errorf("unknown broker type: %s", cfg.Type)
	}
}
