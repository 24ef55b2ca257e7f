package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/horuscamacho/noticias-pachuca-sub006/internal/domain"
	"github.com/horuscamacho/noticias-pachuca-sub006/internal/logger"
	"github.com/horuscamacho/noticias-pachuca-sub006/internal/queue"
)

// enqueueJobRequest is the body of POST /api/v1/jobs.
type enqueueJobRequest struct {
	Type         domain.JobType `json:"type" binding:"required"`
	OutletID     string         `json:"outlet_id" binding:"required"`
	Payload      map[string]any `json:"payload"`
	Priority     int            `json:"priority"`
	DelaySeconds int            `json:"delay_seconds"`
	MaxRetries   int            `json:"max_retries"`
	BatchID      string         `json:"batch_id"`
}

// enqueueJob handles POST /api/v1/jobs
func (r *Router) enqueueJob(c *gin.Context) {
	var req enqueueJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job, err := r.dispatcher.Enqueue(c.Request.Context(), req.Type, req.OutletID, req.Payload,
		queue.EnqueueOptions{
			Priority:   req.Priority,
			Delay:      time.Duration(req.DelaySeconds) * time.Second,
			MaxRetries: req.MaxRetries,
			BatchID:    req.BatchID,
		})
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if job != nil {
			// Row created but broker handoff failed; recovery redispatches it.
			c.JSON(http.StatusAccepted, gin.H{"job": job, "warning": "job created, dispatch deferred"})
			return
		}
		r.logger.Error("failed to enqueue job", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enqueue job"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"job": job})
}

// getJob handles GET /api/v1/jobs/:id
func (r *Router) getJob(c *gin.Context) {
	job, err := r.jobs.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		r.logger.Error("failed to load job", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load job"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"job": job})
}

// retryFailedRequest is the body of POST /api/v1/jobs/retry-failed.
type retryFailedRequest struct {
	MaxAgeHours      int        `json:"max_age_hours"`
	MaxRetriesPerJob int        `json:"max_retries_per_job"`
	Lane             queue.Lane `json:"lane"`
	Limit            int        `json:"limit"`
}

// retryFailed handles POST /api/v1/jobs/retry-failed
func (r *Router) retryFailed(c *gin.Context) {
	// An empty body is fine; everything defaults.
	var req retryFailedRequest
	_ = c.ShouldBindJSON(&req)

	result, err := r.dispatcher.RetryFailed(c.Request.Context(), queue.RetryFailedOptions{
		MaxAgeHours:      req.MaxAgeHours,
		MaxRetriesPerJob: req.MaxRetriesPerJob,
		Lane:             req.Lane,
		Limit:            req.Limit,
	})
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		r.logger.Error("retry sweep failed", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "retry sweep failed"})
		return
	}
	c.JSON(http.StatusOK, result)
}

// queueStats handles GET /api/v1/queue/stats
func (r *Router) queueStats(c *gin.Context) {
	stats, err := r.dispatcher.GetStats(c.Request.Context())
	if err != nil {
		r.logger.Error("failed to get queue stats", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get queue stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// queueHealth handles GET /api/v1/queue/health
func (r *Router) queueHealth(c *gin.Context) {
	health, err := r.dispatcher.GetHealth(c.Request.Context())
	if err != nil {
		r.logger.Error("failed to get queue health", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get queue health"})
		return
	}

	status := http.StatusOK
	if !health.Healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, health)
}

// clearLane handles DELETE /api/v1/queue/lanes/:lane
func (r *Router) clearLane(c *gin.Context) {
	lane := queue.Lane(c.Param("lane"))
	cancelled, err := r.dispatcher.ClearLane(c.Request.Context(), lane)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		r.logger.Error("failed to clear lane", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to clear lane"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"lane": lane, "jobs_cancelled": cancelled})
}

// pauseOutlet handles POST /api/v1/outlets/:id/pause
func (r *Router) pauseOutlet(c *gin.Context) {
	if err := r.orchestrator.PauseOutlet(c.Request.Context(), c.Param("id")); err != nil {
		r.outletError(c, err, "failed to pause outlet")
		return
	}
	c.JSON(http.StatusOK, gin.H{"outlet_id": c.Param("id"), "is_active": false})
}

// resumeOutlet handles POST /api/v1/outlets/:id/resume
func (r *Router) resumeOutlet(c *gin.Context) {
	if err := r.orchestrator.ResumeOutlet(c.Request.Context(), c.Param("id")); err != nil {
		r.outletError(c, err, "failed to resume outlet")
		return
	}
	c.JSON(http.StatusOK, gin.H{"outlet_id": c.Param("id"), "is_active": true})
}

// forceSchedule handles POST /api/v1/outlets/:id/force-schedule
func (r *Router) forceSchedule(c *gin.Context) {
	results, err := r.scheduler.ForceSchedule(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "outlet not found"})
			return
		}
		if errors.Is(err, domain.ErrValidation) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "cycles": results})
			return
		}
		r.logger.Error("force schedule failed", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "force schedule failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cycles": results})
}

// systemStatus handles GET /api/v1/system/status
func (r *Router) systemStatus(c *gin.Context) {
	status, err := r.orchestrator.GetSystemStatus(c.Request.Context())
	if err != nil {
		r.logger.Error("failed to get system status", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get system status"})
		return
	}
	c.JSON(http.StatusOK, status)
}

func (r *Router) outletError(c *gin.Context, err error, msg string) {
	if errors.Is(err, domain.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "outlet not found"})
		return
	}
	r.logger.Error(msg, logger.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
}
