// Package api exposes the operational HTTP surface: health, metrics, queue
// management and the pipeline control endpoints.
package api

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/horuscamacho/noticias-pachuca-sub006/internal/config"
	"github.com/horuscamacho/noticias-pachuca-sub006/internal/database"
	"github.com/horuscamacho/noticias-pachuca-sub006/internal/logger"
	"github.com/horuscamacho/noticias-pachuca-sub006/internal/orchestrator"
	"github.com/horuscamacho/noticias-pachuca-sub006/internal/queue"
	"github.com/horuscamacho/noticias-pachuca-sub006/internal/scheduler"
)

const (
	healthStatusHealthy  = "healthy"
	healthStatusDegraded = "degraded"
	healthCheckTimeout   = 2 * time.Second
	serviceVersion       = "1.0.0"
	serviceName          = "content-pipeline"
)

// Router holds the API dependencies
type Router struct {
	db           *sqlx.DB
	redisClient  redis.UniversalClient
	jobs         *database.JobRepository
	dispatcher   *queue.Dispatcher
	orchestrator *orchestrator.Orchestrator
	scheduler    *scheduler.Scheduler
	registry     *prometheus.Registry
	cfg          *config.Config
	logger       logger.Logger
}

// NewRouter creates a new API router
func NewRouter(
	db *sqlx.DB,
	redisClient redis.UniversalClient,
	jobs *database.JobRepository,
	dispatcher *queue.Dispatcher,
	orch *orchestrator.Orchestrator,
	sched *scheduler.Scheduler,
	registry *prometheus.Registry,
	cfg *config.Config,
	log logger.Logger,
) *Router {
	return &Router{
		db:           db,
		redisClient:  redisClient,
		jobs:         jobs,
		dispatcher:   dispatcher,
		orchestrator: orch,
		scheduler:    sched,
		registry:     registry,
		cfg:          cfg,
		logger:       log,
	}
}

// SetupRoutes builds the gin engine with all routes attached.
func (r *Router) SetupRoutes() *gin.Engine {
	if !r.cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(r.requestLogger())

	// Health and metrics (public)
	router.GET("/health", r.healthCheck)
	router.GET("/health/detailed", r.detailedHealth)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})))

	v1 := router.Group("/api/v1")

	jobs := v1.Group("/jobs")
	jobs.POST("", r.enqueueJob)
	jobs.POST("/retry-failed", r.retryFailed)
	jobs.GET("/:id", r.getJob)

	queueGroup := v1.Group("/queue")
	queueGroup.GET("/stats", r.queueStats)
	queueGroup.GET("/health", r.queueHealth)
	queueGroup.DELETE("/lanes/:lane", r.clearLane)

	outlets := v1.Group("/outlets")
	outlets.POST("/:id/pause", r.pauseOutlet)
	outlets.POST("/:id/resume", r.resumeOutlet)
	outlets.POST("/:id/force-schedule", r.forceSchedule)

	v1.GET("/system/status", r.systemStatus)

	return router
}

// requestLogger logs each request with method, path, status and latency.
func (r *Router) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		r.logger.Debug("http request",
			logger.String("method", c.Request.Method),
			logger.String("path", c.Request.URL.Path),
			logger.Int("status", c.Writer.Status()),
			logger.Duration("latency", time.Since(start)))
	}
}

// healthCheck returns the basic liveness view.
func (r *Router) healthCheck(c *gin.Context) {
	c.JSON(200, gin.H{
		"status":  healthStatusHealthy,
		"service": serviceName,
		"version": serviceVersion,
	})
}

// detailedHealth checks the database and broker connections.
func (r *Router) detailedHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	health := gin.H{
		"status":  healthStatusHealthy,
		"service": serviceName,
		"version": serviceVersion,
	}

	dbConnected := true
	if err := r.db.PingContext(ctx); err != nil {
		dbConnected = false
		health["status"] = healthStatusDegraded
	}
	health["database"] = gin.H{"connected": dbConnected}

	redisConnected := true
	if err := r.redisClient.Ping(ctx).Err(); err != nil {
		redisConnected = false
		health["status"] = healthStatusDegraded
	}
	health["redis"] = gin.H{"connected": redisConnected}

	if queueHealth, err := r.dispatcher.GetHealth(ctx); err == nil {
		health["queue"] = queueHealth
		if !queueHealth.Healthy {
			health["status"] = healthStatusDegraded
		}
	}

	c.JSON(200, health)
}
