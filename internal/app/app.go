// Package app provides the application lifecycle management for the content
// pipeline service: dependency wiring, startup and graceful shutdown.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/horuscamacho/noticias-pachuca-sub006/internal/api"
	"github.com/horuscamacho/noticias-pachuca-sub006/internal/config"
	"github.com/horuscamacho/noticias-pachuca-sub006/internal/database"
	"github.com/horuscamacho/noticias-pachuca-sub006/internal/events"
	"github.com/horuscamacho/noticias-pachuca-sub006/internal/integration"
	"github.com/horuscamacho/noticias-pachuca-sub006/internal/logger"
	"github.com/horuscamacho/noticias-pachuca-sub006/internal/metrics"
	"github.com/horuscamacho/noticias-pachuca-sub006/internal/orchestrator"
	"github.com/horuscamacho/noticias-pachuca-sub006/internal/queue"
	redisclient "github.com/horuscamacho/noticias-pachuca-sub006/internal/redis"
	"github.com/horuscamacho/noticias-pachuca-sub006/internal/scheduler"
	"github.com/horuscamacho/noticias-pachuca-sub006/internal/worker"
)

const (
	// DefaultShutdownTimeout is the default timeout for graceful shutdown
	DefaultShutdownTimeout = 30 * time.Second
	topologySetupTimeout   = 10 * time.Second
)

// App holds the pipeline service and all its dependencies.
type App struct {
	config       *config.Config
	logger       logger.Logger
	db           *sqlx.DB
	redisClient  redis.UniversalClient
	registry     *prometheus.Registry
	dispatcher   *queue.Dispatcher
	orchestrator *orchestrator.Orchestrator
	scheduler    *scheduler.Scheduler
	pool         *worker.Pool
	httpServer   *http.Server
	version      string
}

// Options contains configuration for creating a new App
type Options struct {
	ConfigPath string
	Version    string
	// EnableWorker starts the queue consumers and the scheduler.
	EnableWorker bool
	// EnableAPI starts the HTTP server.
	EnableAPI bool
}

// New creates a new App instance with all dependencies initialized
func New(opts Options) (*App, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	appLogger, err := logger.NewLogger(cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	appLogger = appLogger.With(
		logger.String("service", "content-pipeline"),
		logger.String("version", opts.Version),
	)

	db, err := database.NewPostgresConnection(database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		_ = appLogger.Sync()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		_ = db.Close()
		_ = appLogger.Sync()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	registry := prometheus.NewRegistry()
	tracker := metrics.NewTracker(registry)

	jobs := database.NewJobRepository(db)
	outlets := database.NewOutletRepository(db)
	contents := database.NewContentRepository(db)
	targets := database.NewTargetRepository(db)
	posts := database.NewPostRepository(db)

	dispatcher := queue.NewDispatcher(jobs, redisClient, tracker, appLogger)
	topologyCtx, cancel := context.WithTimeout(context.Background(), topologySetupTimeout)
	defer cancel()
	if err := dispatcher.SetupTopology(topologyCtx); err != nil {
		_ = db.Close()
		_ = redisClient.Close()
		_ = appLogger.Sync()
		return nil, fmt.Errorf("setup queue topology: %w", err)
	}

	eventPub := events.NewPublisher(redisClient, appLogger)
	orch := orchestrator.New(outlets, contents, targets, posts, jobs, dispatcher, eventPub, appLogger)
	sched := scheduler.New(outlets, orch, tracker, appLogger, scheduler.Config{
		ExtractionTick: cfg.Scheduler.ExtractionTick,
		GenerationTick: cfg.Scheduler.GenerationTick,
		PublishingTick: cfg.Scheduler.PublishingTick,
		CycleTimeout:   cfg.Scheduler.CycleTimeout,
	})

	a := &App{
		config:       cfg,
		logger:       appLogger,
		db:           db,
		redisClient:  redisClient,
		registry:     registry,
		dispatcher:   dispatcher,
		orchestrator: orch,
		scheduler:    sched,
		version:      opts.Version,
	}

	if opts.EnableWorker {
		if err := cfg.Services.ValidateForWorker(); err != nil {
			_ = a.Close()
			return nil, err
		}

		clientCfg := integration.ClientConfig{
			ExtractorURL: cfg.Services.ExtractorURL,
			GeneratorURL: cfg.Services.GeneratorURL,
			PublisherURL: cfg.Services.PublisherURL,
			Timeout:      cfg.Services.Timeout,
		}
		fetcher := integration.NewHTTPFetcher(clientCfg, appLogger)
		generator := integration.NewHTTPGenerator(clientCfg)
		publisher := integration.NewHTTPPublisher(clientCfg)

		procRegistry, err := worker.NewRegistry(
			worker.NewURLDiscoveryProcessor(fetcher, outlets, contents, dispatcher, appLogger),
			worker.NewContentExtractionProcessor(fetcher, outlets, contents, appLogger),
			worker.NewGenerationProcessor(generator, contents, appLogger),
			worker.NewPublishProcessor(publisher, contents, targets, posts, tracker, appLogger),
			worker.NewEngagementProcessor(publisher, posts, appLogger),
		)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("build processor registry: %w", err)
		}

		a.pool = worker.NewPool(jobs, redisClient, dispatcher, procRegistry,
			eventPub, tracker, appLogger, cfg.Worker.ConsumerPrefix)
	}

	if opts.EnableAPI {
		router := api.NewRouter(db, redisClient, jobs, dispatcher, orch, sched, registry, cfg, appLogger)
		a.httpServer = &http.Server{
			Addr:         cfg.Server.Address,
			Handler:      router.SetupRoutes(),
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		}
	}

	return a, nil
}

// Run starts the application and blocks until shutdown
func (a *App) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := a.orchestrator.Start(runCtx); err != nil {
		return err
	}
	if a.pool != nil {
		a.pool.Start(runCtx)
		a.scheduler.Start()
	}

	serverErr := make(chan error, 1)
	if a.httpServer != nil {
		go func() {
			a.logger.Info("http server listening", logger.String("address", a.httpServer.Addr))
			if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				serverErr <- err
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigChan:
		a.logger.Info("shutting down gracefully", logger.String("signal", sig.String()))
	case err := <-serverErr:
		a.logger.Error("http server failed", logger.Error(err))
		runErr = err
	case <-ctx.Done():
		a.logger.Info("context cancelled, shutting down")
	}

	a.shutdown(cancel)
	return runErr
}

// shutdown stops components in reverse dependency order: no new cycles, then
// no new jobs consumed, then the HTTP surface.
func (a *App) shutdown(cancel context.CancelFunc) {
	if a.pool != nil {
		a.scheduler.Stop()
		a.pool.Stop()
	}
	a.orchestrator.Stop()
	cancel()

	if a.httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
		defer shutdownCancel()
		if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("http server shutdown error", logger.Error(err))
		} else {
			a.logger.Info("http server stopped")
		}
	}
	a.logger.Info("service stopped")
}

// Close cleans up resources
func (a *App) Close() error {
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("failed to close redis client", logger.Error(err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close database", logger.Error(err))
		}
	}
	return a.logger.Sync()
}

// Logger returns the application logger
func (a *App) Logger() logger.Logger {
	return a.logger
}
