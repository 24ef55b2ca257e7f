// Package scheduler ticks the pipeline stages. Each tick checks which active
// outlets are due for a stage from their stored frequency and last-run
// timestamps; due-ness survives restarts because it is always recomputed, and
// missed windows collapse into a single catch-up run.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/horuscamacho/noticias-pachuca-sub006/internal/database"
	"github.com/horuscamacho/noticias-pachuca-sub006/internal/domain"
	"github.com/horuscamacho/noticias-pachuca-sub006/internal/logger"
	"github.com/horuscamacho/noticias-pachuca-sub006/internal/metrics"
	"github.com/horuscamacho/noticias-pachuca-sub006/internal/orchestrator"
)

const (
	defaultTick         = time.Minute
	defaultCycleTimeout = 5 * time.Minute

	// defaultCyclePriority is carried on scheduler-created jobs; forced runs
	// jump the line with forcedCyclePriority.
	defaultCyclePriority = 5
	forcedCyclePriority  = 0
)

// CycleRunner is the orchestrator surface the scheduler drives.
type CycleRunner interface {
	RunExtractionCycle(ctx context.Context, outletID string, opts orchestrator.CycleOptions) (*orchestrator.CycleResult, error)
	RunGenerationCycle(ctx context.Context, outletID string, opts orchestrator.CycleOptions) (*orchestrator.CycleResult, error)
	RunPublishingCycle(ctx context.Context, outletID string, opts orchestrator.CycleOptions) (*orchestrator.CycleResult, error)
}

// Config tunes the scheduler ticks.
type Config struct {
	ExtractionTick time.Duration
	GenerationTick time.Duration
	PublishingTick time.Duration
	CycleTimeout   time.Duration
}

// Scheduler owns the cron ticks that fire the stage cycles.
type Scheduler struct {
	outlets *database.OutletRepository
	runner  CycleRunner
	metrics *metrics.Tracker
	logger  logger.Logger
	cfg     Config
	cron    *cron.Cron
}

// New creates the scheduler, applying defaults for unset ticks.
func New(outlets *database.OutletRepository, runner CycleRunner, tracker *metrics.Tracker, log logger.Logger, cfg Config) *Scheduler {
	if cfg.ExtractionTick <= 0 {
		cfg.ExtractionTick = defaultTick
	}
	if cfg.GenerationTick <= 0 {
		cfg.GenerationTick = defaultTick
	}
	if cfg.PublishingTick <= 0 {
		cfg.PublishingTick = defaultTick
	}
	if cfg.CycleTimeout <= 0 {
		cfg.CycleTimeout = defaultCycleTimeout
	}
	return &Scheduler{
		outlets: outlets,
		runner:  runner,
		metrics: tracker,
		logger:  log,
		cfg:     cfg,
	}
}

// Start launches the stage ticks. Idempotent.
func (s *Scheduler) Start() {
	if s.cron != nil {
		return
	}

	s.cron = cron.New(cron.WithChain(
		cron.Recover(cronLogger{s.logger}),
		cron.SkipIfStillRunning(cronLogger{s.logger}),
	))
	s.cron.Schedule(cron.Every(s.cfg.ExtractionTick), cron.FuncJob(func() {
		s.runStage(domain.StageExtraction)
	}))
	s.cron.Schedule(cron.Every(s.cfg.GenerationTick), cron.FuncJob(func() {
		s.runStage(domain.StageGeneration)
	}))
	s.cron.Schedule(cron.Every(s.cfg.PublishingTick), cron.FuncJob(func() {
		s.runStage(domain.StagePublishing)
	}))
	s.cron.Start()

	s.logger.Info("scheduler started",
		logger.Duration("extraction_tick", s.cfg.ExtractionTick),
		logger.Duration("generation_tick", s.cfg.GenerationTick),
		logger.Duration("publishing_tick", s.cfg.PublishingTick))
}

// Stop halts the ticks and waits for a running pass to finish.
func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.cron = nil
	s.logger.Info("scheduler stopped")
}

// runStage runs one scheduling pass: every active outlet due for the stage
// gets its cycle. One outlet failing never blocks the rest.
func (s *Scheduler) runStage(stage domain.Stage) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.CycleTimeout)
	defer cancel()

	outlets, err := s.outlets.ListActive(ctx)
	if err != nil {
		s.logger.Error("scheduling pass failed to list outlets",
			logger.String("stage", string(stage)),
			logger.Error(err))
		return
	}

	now := time.Now().UTC()
	opts := orchestrator.CycleOptions{Priority: defaultCyclePriority}
	for i := range outlets {
		outlet := &outlets[i]
		if !outlet.IsDue(stage, now) {
			continue
		}
		if _, err := s.runCycle(ctx, stage, outlet.ID, opts); err != nil {
			s.metrics.CycleRun(string(stage), "error")
			continue
		}
		s.metrics.CycleRun(string(stage), "success")
	}
}

// ForceSchedule runs all three cycles for one outlet immediately, bypassing
// the due checks, with jobs enqueued at maximum priority.
func (s *Scheduler) ForceSchedule(ctx context.Context, outletID string) ([]*orchestrator.CycleResult, error) {
	opts := orchestrator.CycleOptions{Priority: forcedCyclePriority}

	var results []*orchestrator.CycleResult
	for _, stage := range domain.Stages() {
		result, err := s.runCycle(ctx, stage, outletID, opts)
		if result != nil {
			results = append(results, result)
		}
		if err != nil {
			return results, err
		}
	}
	s.logger.Info("forced schedule finished", logger.String("outlet_id", outletID))
	return results, nil
}

func (s *Scheduler) runCycle(ctx context.Context, stage domain.Stage, outletID string, opts orchestrator.CycleOptions) (*orchestrator.CycleResult, error) {
	switch stage {
	case domain.StageExtraction:
		return s.runner.RunExtractionCycle(ctx, outletID, opts)
	case domain.StageGeneration:
		return s.runner.RunGenerationCycle(ctx, outletID, opts)
	default:
		return s.runner.RunPublishingCycle(ctx, outletID, opts)
	}
}

// cronLogger adapts the service logger to cron's logging interface.
type cronLogger struct {
	log logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.log.Debug(msg, logger.Any("details", keysAndValues))
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.log.Error(msg, logger.Error(err), logger.Any("details", keysAndValues))
}
