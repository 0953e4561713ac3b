package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.mongodb.org/mongo-driver/mongo"

	_ "github.com/lib/pq" // PostgreSQL driver

	"newswire/internal/config"
	"newswire/internal/constants"
	"newswire/internal/deadletter"
	"newswire/internal/feed"
	"newswire/internal/logger"
	"newswire/internal/scheduler"
	"newswire/internal/secrets"
	"newswire/internal/store"
	"newswire/pkg/bootstrap"
	"newswire/pkg/health"
	"newswire/pkg/metrics"
	"newswire/pkg/middleware"
	"newswire/pkg/ratelimit"
	"newswire/pkg/tracing"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

type App struct {
	*bootstrap.Base
	dbConnector    *bootstrap.DatabaseConnector
	db             *sql.DB
	mongoClient    *mongo.Client
	secretProvider secrets.Provider
	service        *scheduler.Service
	runner         *scheduler.Runner
	deadLetters    *deadletter.Store
	server         *http.Server
	router         *gin.Engine
	tracerProvider *tracing.TracerProvider
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName("producer-service")
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

	if err := a.InitQueue("producer-service", nil); err != nil {
		return fmt.Errorf("failed to initialize queue: %w", err)
	}

	if err := a.initService(); err != nil {
		return fmt.Errorf("failed to initialize service: %w", err)
	}

	tp, err := tracing.Init(a.Config.Tracing, "producer-service")
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	metrics.RegisterSchedulerMetrics()
	metrics.RegisterBrokerMetrics()
	if a.Config.RateLimit.Enabled {
		metrics.RegisterRateLimitMetrics()
	}

	if err := a.initRouter(); err != nil {
		return fmt.Errorf("failed to initialize router: %w", err)
	}

	a.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler: a.router,
	}

	return nil
}

func (a *App) initDatabases(ctx context.Context) error {
	db, err := a.dbConnector.InitPostgreSQL(ctx)
	if err != nil {
		return err
	}
	if db == nil {
		return fmt.Errorf("PostgreSQL is required for the source registry")
	}
	a.db = db

	if err := a.dbConnector.RunMigrations(db); err != nil {
		return err
	}

	if a.Config.Database.MongoDB.URI != "" {
		mongoClient, err := a.dbConnector.InitMongoDB(ctx)
		if err != nil {
			a.Logger.WarnwCtx(ctx, "MongoDB connection failed, dead-letter endpoints disabled", "error", err)
		} else {
			a.mongoClient = mongoClient
		}
	}

	return nil
}

func (a *App) initService() error {
	a.secretProvider = secrets.FromConfig(a.Config.Auth)

	parserTimeout := a.Config.Fetcher.Timeout
	if parserTimeout <= 0 {
		parserTimeout = constants.DefaultFetchTimeout
	}
	parser := feed.NewParser(a.Config.Fetcher.UserAgent, parserTimeout)

	retention := a.Config.Scheduler.ItemRetention
	if retention == 0 {
		retention = constants.DefaultItemRetention
	}
	filter, err := feed.NewFilter(retention, a.Config.Scheduler.MaxItemsPerSource, a.Config.Scheduler.ItemFilter, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to build item filter: %w", err)
	}

	sources := store.NewSourceRepository(a.db)
	a.service = scheduler.NewService(a.Config.Scheduler, sources, parser, filter, a.Queue, a.Logger)
	a.runner = scheduler.NewRunner(a.Config.Scheduler, a.service, a.Logger)

	if a.mongoClient != nil {
		dbName := a.Config.Database.MongoDB.Database
		if dbName == "" {
			dbName = constants.DefaultMongoDBName
		}
		a.deadLetters = deadletter.NewStore(a.mongoClient.Database(dbName), a.Queue, a.Logger)
	}

	return nil
}

func (a *App) initRouter() error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	if a.Config.Tracing.Enabled {
		router.Use(tracing.GinMiddleware("producer-service"))
	}

	router.Use(middleware.RecoveryMiddleware(a.Logger))
	router.Use(middleware.LoggerMiddleware(a.Logger))
	router.Use(middleware.RequestIDMiddleware())

	if a.Config.RateLimit.Enabled {
		rateLimitConfig := ratelimit.RateLimitConfig{
			RPS:             a.Config.RateLimit.RPS,
			Burst:           a.Config.RateLimit.Burst,
			CleanupInterval: time.Duration(a.Config.RateLimit.CleanupInterval) * time.Second,
			MaxAge:          time.Duration(a.Config.RateLimit.MaxAge) * time.Second,
		}
		router.Use(ratelimit.RateLimitMiddleware(rateLimitConfig))
		a.Logger.Infow("Rate limiting enabled", "rps", rateLimitConfig.RPS, "burst", rateLimitConfig.Burst)
	}

	handler := scheduler.NewHandler(a.service, a.deadLetters, a.Logger)
	handler.RegisterRoutes(router, middleware.SharedSecretAuth(a.secretProvider.CrawlerSecret))

	healthRegistry := health.NewCheckerRegistry()
	healthRegistry.Register(health.NewPostgreSQLChecker(a.db))
	healthRegistry.Register(health.NewQueueChecker(a.Config.Broker.Kafka.Brokers, a.crawlTopic()))
	healthRegistry.Register(health.NewSecretChecker(a.secretProvider.CrawlerSecret))
	if a.mongoClient != nil {
		healthRegistry.Register(health.NewMongoDBChecker(a.mongoClient))
	}

	router.GET("/health", func(c *gin.Context) {
		h := healthRegistry.Check(c.Request.Context())
		statusCode := http.StatusOK
		if h.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		c.JSON(statusCode, h)
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	a.router = router
	return nil
}

func (a *App) crawlTopic() string {
	if a.Config.Broker.Kafka.CrawlTopic != "" {
		return a.Config.Broker.Kafka.CrawlTopic
	}
	return constants.DefaultCrawlTopic
}

func (a *App) Run(ctx context.Context) error {
	if err := a.runner.Start(ctx); err != nil {
		return fmt.Errorf("failed to start tier schedules: %w", err)
	}

	errChan := make(chan error, 1)
	go func() {
		a.Logger.InfowCtx(ctx, "Server listening", "port", a.Config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		return a.Shutdown(ctx)
	case err := <-errChan:
		return err
	}
}

func (a *App) Shutdown(ctx context.Context) error {
	a.Logger.InfowCtx(ctx, "Shutting down producer service")

	additionalShutdown := func(ctx context.Context) []error {
		var errs []error

		if a.runner != nil {
			a.runner.Stop()
		}

		if a.server != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer cancel()
			if err := a.server.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("server shutdown error: %w", err))
			}
		}

		if a.tracerProvider != nil {
			if err := a.tracerProvider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
			}
		}

		errs = append(errs, a.dbConnector.ShutdownDatabases(ctx, nil, a.db, a.mongoClient)...)

		return errs
	}

	return a.Base.Shutdown(ctx, additionalShutdown)
}
