package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/sync/errgroup"

	_ "github.com/lib/pq" // PostgreSQL driver

	"newswire/internal/analyzer"
	"newswire/internal/config"
	"newswire/internal/constants"
	"newswire/internal/deadletter"
	"newswire/internal/fetcher"
	"newswire/internal/ingest"
	"newswire/internal/logger"
	"newswire/internal/processor"
	"newswire/internal/secrets"
	"newswire/internal/store"
	"newswire/pkg/bootstrap"
	"newswire/pkg/health"
	"newswire/pkg/metrics"
	"newswire/pkg/migrations"
	"newswire/pkg/tracing"
)

type App struct {
	*bootstrap.Base
	dbConnector    *bootstrap.DatabaseConnector
	db             *sql.DB
	redis          *redis.Client
	mongoClient    *mongo.Client
	sink           *deadletter.Sink
	processor      *processor.Processor
	stats          *processor.MongoStatsRecorder
	server         *http.Server
	tracerProvider *tracing.TracerProvider
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName("consumer-service")
	}
	return &App{
		Base:        bootstrap.NewBase(cfg, log),
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	if err := a.initDatabases(ctx); err != nil {
		return fmt.Errorf("failed to initialize databases: %w", err)
	}

	mongoDB := a.mongoClient.Database(a.mongoDBName())
	if err := migrations.EnsureMongoCollections(ctx, mongoDB); err != nil {
		return fmt.Errorf("failed to ensure mongo collections: %w", err)
	}
	a.sink = deadletter.NewSink(a.Config.Broker.Kafka, mongoDB, a.Logger)

	if err := a.InitQueue("consumer-service", a.sink); err != nil {
		return fmt.Errorf("failed to initialize queue: %w", err)
	}

	if err := a.initProcessor(mongoDB); err != nil {
		return fmt.Errorf("failed to initialize processor: %w", err)
	}

	tp, err := tracing.Init(a.Config.Tracing, "consumer-service")
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	metrics.RegisterConsumerMetrics()
	metrics.RegisterBrokerMetrics()
	if a.Config.CircuitBreaker.Enabled {
		metrics.RegisterCircuitBreakerMetrics()
	}

	if err := a.initHTTPServer(); err != nil {
		return fmt.Errorf("failed to initialize HTTP server: %w", err)
	}

	return nil
}

func (a *App) initDatabases(ctx context.Context) error {
	db, err := a.dbConnector.InitPostgreSQL(ctx)
	if err != nil {
		return err
	}
	if db == nil {
		return fmt.Errorf("PostgreSQL is required for content deduplication")
	}
	a.db = db

	if err := a.dbConnector.RunMigrations(db); err != nil {
		return err
	}

	rdb, err := a.dbConnector.InitRedis(ctx)
	if err != nil {
		return err
	}
	a.redis = rdb

	if a.Config.Database.MongoDB.URI == "" {
		return fmt.Errorf("MongoDB is required for dead letters and batch stats")
	}
	mongoClient, err := a.dbConnector.InitMongoDB(ctx)
	if err != nil {
		return err
	}
	a.mongoClient = mongoClient

	return nil
}

func (a *App) initProcessor(mongoDB *mongo.Database) error {
	secretProvider := secrets.FromConfig(a.Config.Auth)

	cache := store.NewRedisCache(a.redis)
	contents := store.NewContentStore(a.db)
	dedup := store.NewCachedDedup(cache, contents, a.Config.Dedup, a.Logger)

	contentFetcher := fetcher.New(a.Config.Fetcher, a.Logger)
	contentAnalyzer := analyzer.NewClient(a.Config.Analyzer, a.Config.CircuitBreaker, a.Logger)
	ingester := ingest.NewClient(a.Config.Ingest, secretProvider, a.Logger)

	sources := store.NewSourceRepository(a.db)
	a.stats = processor.NewMongoStatsRecorder(mongoDB)

	a.processor = processor.New(
		a.Config.Consumer,
		dedup,
		contentFetcher,
		contentAnalyzer,
		ingester,
		sources,
		a.stats,
		a.Logger,
	)
	return nil
}

func (a *App) initHTTPServer() error {
	mux := http.NewServeMux()

	secretProvider := secrets.FromConfig(a.Config.Auth)

	healthRegistry := health.NewCheckerRegistry()
	healthRegistry.Register(health.NewPostgreSQLChecker(a.db))
	healthRegistry.Register(health.NewRedisChecker(a.redis))
	healthRegistry.Register(health.NewMongoDBChecker(a.mongoClient))
	healthRegistry.Register(health.NewQueueChecker(a.Config.Broker.Kafka.Brokers, a.crawlTopic()))
	healthRegistry.Register(health.NewSecretChecker(secretProvider.CrawlerSecret))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		h := healthRegistry.Check(r.Context())
		statusCode := http.StatusOK
		if h.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		fmt.Fprintf(w, `{"status":"%s","timestamp":"%s"}`, h.Status, h.Timestamp.Format(time.RFC3339))
	})

	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		latest, err := a.stats.Latest(r.Context())
		if err != nil {
			http.Error(w, `{"error":"failed to load stats"}`, http.StatusInternalServerError)
			return
		}
		if latest == nil {
			http.Error(w, `{"error":"no batches processed yet"}`, http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(latest)
	})

	mux.Handle("/metrics", promhttp.Handler())

	a.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler: mux,
	}

	return nil
}

func (a *App) mongoDBName() string {
	if a.Config.Database.MongoDB.Database != "" {
		return a.Config.Database.MongoDB.Database
	}
	return constants.DefaultMongoDBName
}

func (a *App) crawlTopic() string {
	if a.Config.Broker.Kafka.CrawlTopic != "" {
		return a.Config.Broker.Kafka.CrawlTopic
	}
	return constants.DefaultCrawlTopic
}

func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.InfowCtx(ctx, "HTTP server starting", "port", a.Config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return a.Queue.Consume(gCtx, a.processor.ProcessBatch)
	})

	runErr := g.Wait()
	if err := a.Shutdown(context.Background()); err != nil {
		a.Logger.Errorw("Shutdown error", "error", err)
	}
	return runErr
}

func (a *App) Shutdown(ctx context.Context) error {
	a.Logger.InfowCtx(ctx, "Shutting down consumer service")

	additionalShutdown := func(ctx context.Context) []error {
		var errs []error

		if a.server != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer cancel()
			if err := a.server.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("HTTP server shutdown error: %w", err))
			}
		}

		if a.sink != nil {
			if err := a.sink.Close(); err != nil {
				errs = append(errs, fmt.Errorf("dead-letter sink close error: %w", err))
			}
		}

		if a.tracerProvider != nil {
			if err := a.tracerProvider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
			}
		}

		errs = append(errs, a.dbConnector.ShutdownDatabases(ctx, a.redis, a.db, a.mongoClient)...)

		return errs
	}

	return a.Base.Shutdown(ctx, additionalShutdown)
}
