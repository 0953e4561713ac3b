package bootstrap

import (
	"context"
	"fmt"

	"newswire/internal/broker"
	"newswire/internal/config"
	"newswire/internal/logger"
)

type Base struct {
	Config *config.Config
	Logger logger.Logger
	Queue  broker.Queue
}

func NewBase(cfg *config.Config, log logger.Logger) *Base {
	return &Base{
		Config: cfg,
		Logger: log,
	}
}

// InitQueue builds the crawl queue. The dead-letter sink may be nil for
// services that only enqueue.
func (b *Base) InitQueue(serviceName string, sink broker.DeadLetterSink) error {
	queue, err := broker.NewQueue(b.Config.Broker, sink, b.Logger)
	if err != nil {
		return fmt.Errorf("failed to create queue: %w", err)
	}

	if serviceName != "" {
		queue.SetServiceName(serviceName)
	}

	b.Queue = queue
	return nil
}

func (b *Base) ShutdownQueue() []error {
	var errs []error

	if b.Queue != nil {
		if err := b.Queue.Close(); err != nil {
			errs = append(errs, fmt.Errorf("queue close error: %w", err))
		}
	}

	return errs
}

func (b *Base) Shutdown(ctx context.Context, additionalShutdown func(ctx context.Context) []error) error {
	b.Logger.Info("Shutting down application...")

	var errs []error

	errs = append(errs, b.ShutdownQueue()...)

	if additionalShutdown != nil {
		errs = append(errs, additionalShutdown(ctx)...)
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}

	b.Logger.Info("Application exited successfully")
	return nil
}
