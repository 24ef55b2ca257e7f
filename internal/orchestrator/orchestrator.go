// Package orchestrator coordinates the pipeline stages for each outlet: it
// runs the per-stage cycles that fan work out as jobs, and owns the
// pause/resume and status surface.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/horuscamacho/noticias-pachuca-sub006/internal/database"
	"github.com/horuscamacho/noticias-pachuca-sub006/internal/domain"
	"github.com/horuscamacho/noticias-pachuca-sub006/internal/events"
	"github.com/horuscamacho/noticias-pachuca-sub006/internal/logger"
	"github.com/horuscamacho/noticias-pachuca-sub006/internal/queue"
)

const (
	// extractionBatchSize bounds the pending items re-enqueued per cycle on
	// top of the discovery job.
	extractionBatchSize = 50
	// generationBatchSize bounds generation fan-out per cycle.
	generationBatchSize = 50
	// publishingBatchCap bounds publish fan-out per target per cycle even
	// when quota would allow more.
	publishingBatchCap = 10

	statusWindow = 24 * time.Hour
)

// CycleResult summarizes one stage cycle for an outlet.
type CycleResult struct {
	OutletID    string        `json:"outlet_id"`
	Stage       domain.Stage  `json:"stage"`
	JobsCreated int           `json:"jobs_created"`
	Duration    time.Duration `json:"duration"`
	Success     bool          `json:"success"`
	BatchID     string        `json:"batch_id,omitempty"`
}

// CycleOptions tunes one cycle run.
type CycleOptions struct {
	// Priority is carried onto every job the cycle enqueues. Lower is more
	// urgent.
	Priority int
	// BatchID groups the cycle's jobs; generated when empty.
	BatchID string
}

// Orchestrator drives the pipeline cycles.
type Orchestrator struct {
	outlets    *database.OutletRepository
	contents   *database.ContentRepository
	targets    *database.TargetRepository
	posts      *database.PostRepository
	jobs       *database.JobRepository
	dispatcher *queue.Dispatcher
	events     *events.Publisher
	logger     logger.Logger

	mu      sync.Mutex
	running bool
	since   time.Time
}

// New creates the orchestrator.
func New(
	outlets *database.OutletRepository,
	contents *database.ContentRepository,
	targets *database.TargetRepository,
	posts *database.PostRepository,
	jobs *database.JobRepository,
	dispatcher *queue.Dispatcher,
	eventPub *events.Publisher,
	log logger.Logger,
) *Orchestrator {
	return &Orchestrator{
		outlets:    outlets,
		contents:   contents,
		targets:    targets,
		posts:      posts,
		jobs:       jobs,
		dispatcher: dispatcher,
		events:     eventPub,
		logger:     log,
	}
}

// Start marks the orchestrator running. Idempotent.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return nil
	}

	outlets, err := o.outlets.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("load active outlets: %w", err)
	}
	o.running = true
	o.since = time.Now().UTC()
	o.logger.Info("orchestrator started", logger.Int("active_outlets", len(outlets)))
	return nil
}

// Stop marks the orchestrator stopped. In-flight jobs are unaffected; only
// new cycles stop running.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.running {
		return
	}
	o.running = false
	o.logger.Info("orchestrator stopped")
}

// IsRunning reports whether cycles may run.
func (o *Orchestrator) IsRunning() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// PauseOutlet disables an outlet. Its cycles stop scheduling new jobs;
// in-flight jobs finish normally.
func (o *Orchestrator) PauseOutlet(ctx context.Context, outletID string) error {
	if err := o.outlets.SetActive(ctx, outletID, false); err != nil {
		return err
	}
	o.events.PublishOutlet(ctx, events.OutletPaused, outletID)
	o.logger.Info("outlet paused", logger.String("outlet_id", outletID))
	return nil
}

// ResumeOutlet re-enables an outlet. The next scheduler pass picks it up;
// stages resume from their stored last-run timestamps.
func (o *Orchestrator) ResumeOutlet(ctx context.Context, outletID string) error {
	if err := o.outlets.SetActive(ctx, outletID, true); err != nil {
		return err
	}
	o.events.PublishOutlet(ctx, events.OutletResumed, outletID)
	o.logger.Info("outlet resumed", logger.String("outlet_id", outletID))
	return nil
}

// RunExtractionCycle enqueues one discovery job plus extraction jobs for any
// items still pending from earlier passes. The outlet's last-run stamp moves
// only after the jobs are enqueued, so a failed cycle is retried by the next
// scheduler pass instead of being silently skipped.
func (o *Orchestrator) RunExtractionCycle(ctx context.Context, outletID string, opts CycleOptions) (*CycleResult, error) {
	start := time.Now().UTC()
	result := &CycleResult{OutletID: outletID, Stage: domain.StageExtraction, BatchID: o.batchID(opts)}

	outlet, err := o.loadActiveOutlet(ctx, outletID)
	if err != nil {
		return o.finish(result, start, err)
	}

	enqueueOpts := queue.EnqueueOptions{Priority: opts.Priority, BatchID: result.BatchID}
	if _, err := o.dispatcher.Enqueue(ctx, domain.JobTypeExtractURLs, outlet.ID, nil, enqueueOpts); err != nil {
		return o.finish(result, start, fmt.Errorf("enqueue discovery: %w", err))
	}
	result.JobsCreated++

	pending, err := o.contents.ListPendingExtraction(ctx, outlet.ID, extractionBatchSize)
	if err != nil {
		return o.finish(result, start, err)
	}
	for i := range pending {
		item := &pending[i]
		itemOpts := enqueueOpts
		itemOpts.RelatedEntityID = item.ID
		if _, err := o.dispatcher.Enqueue(ctx, domain.JobTypeExtractContent, outlet.ID,
			map[string]string{"content_id": item.ID, "url": item.URL}, itemOpts); err != nil {
			return o.finish(result, start, fmt.Errorf("enqueue extraction for %s: %w", item.ID, err))
		}
		result.JobsCreated++
	}

	if err := o.outlets.UpdateLastRun(ctx, outlet.ID, domain.StageExtraction, start); err != nil {
		return o.finish(result, start, err)
	}
	return o.finish(result, start, nil)
}

// RunGenerationCycle enqueues generation jobs for extracted items that have
// no rendition for the outlet's default template yet.
func (o *Orchestrator) RunGenerationCycle(ctx context.Context, outletID string, opts CycleOptions) (*CycleResult, error) {
	start := time.Now().UTC()
	result := &CycleResult{OutletID: outletID, Stage: domain.StageGeneration, BatchID: o.batchID(opts)}

	outlet, err := o.loadActiveOutlet(ctx, outletID)
	if err != nil {
		return o.finish(result, start, err)
	}

	eligible, err := o.contents.ListExtractedNotGenerated(ctx, outlet.ID, outlet.DefaultTemplateID, generationBatchSize)
	if err != nil {
		return o.finish(result, start, err)
	}
	for i := range eligible {
		item := &eligible[i]
		enqueueOpts := queue.EnqueueOptions{
			Priority:        opts.Priority,
			BatchID:         result.BatchID,
			RelatedEntityID: item.ID,
		}
		payload := map[string]string{
			"original_content_id": item.ID,
			"template_id":         outlet.DefaultTemplateID,
		}
		if _, err := o.dispatcher.Enqueue(ctx, domain.JobTypeGenerateContent, outlet.ID, payload, enqueueOpts); err != nil {
			return o.finish(result, start, fmt.Errorf("enqueue generation for %s: %w", item.ID, err))
		}
		result.JobsCreated++
	}

	if err := o.outlets.UpdateLastRun(ctx, outlet.ID, domain.StageGeneration, start); err != nil {
		return o.finish(result, start, err)
	}
	return o.finish(result, start, nil)
}

// RunPublishingCycle enqueues publish jobs per active target, bounded by the
// target's remaining daily quota, plus one engagement sync job for the
// outlet. Quota here only sizes the fan-out; the publish processor's slot
// reservation is the enforcement point.
func (o *Orchestrator) RunPublishingCycle(ctx context.Context, outletID string, opts CycleOptions) (*CycleResult, error) {
	start := time.Now().UTC()
	result := &CycleResult{OutletID: outletID, Stage: domain.StagePublishing, BatchID: o.batchID(opts)}

	outlet, err := o.loadActiveOutlet(ctx, outletID)
	if err != nil {
		return o.finish(result, start, err)
	}

	targets, err := o.targets.ListActiveByOutlet(ctx, outlet.ID)
	if err != nil {
		return o.finish(result, start, err)
	}

	for i := range targets {
		target := &targets[i]
		if target.NeedsCounterReset(start) {
			reset, resetErr := o.targets.ResetDailyCounterIfDue(ctx, target.ID, start, domain.NextResetBoundary(start))
			if resetErr != nil {
				return o.finish(result, start, resetErr)
			}
			if reset {
				target.PostsPublishedToday = 0
				target.DailyCounterResetAt = domain.NextResetBoundary(start)
			}
		}

		batch := target.RemainingToday(start)
		if batch > publishingBatchCap {
			batch = publishingBatchCap
		}
		if batch == 0 {
			o.logger.Debug("target quota exhausted, skipping",
				logger.String("target_id", target.ID),
				logger.Int("daily_limit", target.DailyPostLimit))
			continue
		}

		eligible, listErr := o.contents.ListGeneratedNotPublished(ctx, outlet.ID, target.ID, batch)
		if listErr != nil {
			return o.finish(result, start, listErr)
		}
		for j := range eligible {
			generation := &eligible[j]
			enqueueOpts := queue.EnqueueOptions{
				Priority:        opts.Priority,
				BatchID:         result.BatchID,
				RelatedEntityID: generation.ID,
			}
			payload := map[string]string{
				"generated_content_id": generation.ID,
				"target_id":            target.ID,
			}
			if _, err := o.dispatcher.Enqueue(ctx, domain.JobTypePublish, outlet.ID, payload, enqueueOpts); err != nil {
				return o.finish(result, start, fmt.Errorf("enqueue publish for %s: %w", generation.ID, err))
			}
			result.JobsCreated++
		}
	}

	enqueueOpts := queue.EnqueueOptions{Priority: opts.Priority, BatchID: result.BatchID}
	if _, err := o.dispatcher.Enqueue(ctx, domain.JobTypeSyncEngagement, outlet.ID, nil, enqueueOpts); err != nil {
		return o.finish(result, start, fmt.Errorf("enqueue engagement sync: %w", err))
	}
	result.JobsCreated++

	if err := o.outlets.UpdateLastRun(ctx, outlet.ID, domain.StagePublishing, start); err != nil {
		return o.finish(result, start, err)
	}
	return o.finish(result, start, nil)
}

// SystemStatus is the aggregate health and progress view.
type SystemStatus struct {
	Running          bool                       `json:"running"`
	Since            *time.Time                 `json:"since,omitempty"`
	Outlets          OutletCounts               `json:"outlets"`
	Jobs             map[domain.JobStatus]int64 `json:"jobs"`
	Queue            *queue.Health              `json:"queue"`
	PostsLast24Hours int64                      `json:"posts_last_24h"`
}

// OutletCounts is the outlet breakdown for the status view.
type OutletCounts struct {
	Active   int64 `json:"active"`
	Inactive int64 `json:"inactive"`
}

// GetSystemStatus assembles the status view.
func (o *Orchestrator) GetSystemStatus(ctx context.Context) (*SystemStatus, error) {
	status := &SystemStatus{Running: o.IsRunning()}

	o.mu.Lock()
	if o.running {
		since := o.since
		status.Since = &since
	}
	o.mu.Unlock()

	active, inactive, err := o.outlets.CountByActive(ctx)
	if err != nil {
		return nil, err
	}
	status.Outlets = OutletCounts{Active: active, Inactive: inactive}

	status.Jobs, err = o.jobs.CountsByStatus(ctx)
	if err != nil {
		return nil, err
	}

	status.Queue, err = o.dispatcher.GetHealth(ctx)
	if err != nil {
		return nil, err
	}

	status.PostsLast24Hours, err = o.posts.CountPublishedSince(ctx, time.Now().UTC().Add(-statusWindow))
	if err != nil {
		return nil, err
	}
	return status, nil
}

func (o *Orchestrator) loadActiveOutlet(ctx context.Context, outletID string) (*domain.OutletConfig, error) {
	outlet, err := o.outlets.GetByID(ctx, outletID)
	if err != nil {
		return nil, err
	}
	if !outlet.IsActive {
		return nil, fmt.Errorf("%w: outlet %s is paused", domain.ErrValidation, outletID)
	}
	return outlet, nil
}

func (o *Orchestrator) batchID(opts CycleOptions) string {
	if opts.BatchID != "" {
		return opts.BatchID
	}
	return uuid.NewString()
}

func (o *Orchestrator) finish(result *CycleResult, start time.Time, err error) (*CycleResult, error) {
	result.Duration = time.Since(start)
	result.Success = err == nil
	if err != nil {
		o.logger.Error("cycle failed",
			logger.String("outlet_id", result.OutletID),
			logger.String("stage", string(result.Stage)),
			logger.Int("jobs_created", result.JobsCreated),
			logger.Error(err))
		return result, err
	}
	o.logger.Info("cycle finished",
		logger.String("outlet_id", result.OutletID),
		logger.String("stage", string(result.Stage)),
		logger.Int("jobs_created", result.JobsCreated),
		logger.Duration("took", result.Duration))
	return result, nil
}
