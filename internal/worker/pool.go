package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/horuscamacho/noticias-pachuca-sub006/internal/database"
	"github.com/horuscamacho/noticias-pachuca-sub006/internal/domain"
	"github.com/horuscamacho/noticias-pachuca-sub006/internal/events"
	"github.com/horuscamacho/noticias-pachuca-sub006/internal/logger"
	"github.com/horuscamacho/noticias-pachuca-sub006/internal/metrics"
	"github.com/horuscamacho/noticias-pachuca-sub006/internal/queue"
)

const (
	consumeBlock      = 5 * time.Second
	promoteInterval   = time.Second
	promoteBatchSize  = 100
	recoveryInterval  = time.Minute
	staleProcessing   = 5 * time.Minute
	stalePendingAge   = 2 * time.Minute
	stalePendingBatch = 100
)

// Pool consumes the lane streams and drives jobs through their lifecycle.
// Each lane runs its policy's worth of consumer goroutines, one promoter that
// moves due delayed jobs back onto the stream, and the pool as a whole runs
// one recovery sweep for jobs orphaned by a crashed worker.
type Pool struct {
	jobs       *database.JobRepository
	rdb        redis.UniversalClient
	dispatcher *queue.Dispatcher
	registry   Registry
	events     *events.Publisher
	metrics    *metrics.Tracker
	logger     logger.Logger
	tracer     trace.Tracer

	consumerPrefix string

	stopChan chan struct{}
	wg       sync.WaitGroup
	started  bool
	mu       sync.Mutex
}

// NewPool creates the worker pool. The registry must cover every job type.
func NewPool(
	jobs *database.JobRepository,
	rdb redis.UniversalClient,
	dispatcher *queue.Dispatcher,
	registry Registry,
	eventPub *events.Publisher,
	tracker *metrics.Tracker,
	log logger.Logger,
	consumerPrefix string,
) *Pool {
	if consumerPrefix == "" {
		consumerPrefix = "worker"
	}
	return &Pool{
		jobs:           jobs,
		rdb:            rdb,
		dispatcher:     dispatcher,
		registry:       registry,
		events:         eventPub,
		metrics:        tracker,
		logger:         log,
		tracer:         otel.Tracer("pipeline-worker"),
		consumerPrefix: consumerPrefix,
		stopChan:       make(chan struct{}),
	}
}

// Start launches the consumer, promoter and recovery goroutines.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	for _, lane := range queue.Lanes() {
		policy := queue.PolicyFor(lane)
		for i := 0; i < policy.Concurrency; i++ {
			consumer := fmt.Sprintf("%s-%s-%d", p.consumerPrefix, lane, i)
			p.wg.Add(1)
			go p.consume(ctx, lane, consumer)
		}

		p.wg.Add(1)
		go p.promote(ctx, lane)
	}

	p.wg.Add(1)
	go p.recover(ctx)

	p.logger.Info("worker pool started",
		logger.Int("lanes", len(queue.Lanes())))
}

// Stop gracefully stops the pool, waiting for in-flight jobs to finish.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()

	close(p.stopChan)
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

// IsRunning reports whether the pool has been started.
func (p *Pool) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started
}

func (p *Pool) consume(ctx context.Context, lane queue.Lane, consumer string) {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopChan:
			return
		case <-ctx.Done():
			return
		default:
		}

		streams, err := p.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    queue.ConsumerGroup,
			Consumer: consumer,
			Streams:  []string{lane.StreamKey(), ">"},
			Count:    1,
			Block:    consumeBlock,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Error("stream read failed",
				logger.String("lane", string(lane)),
				logger.Error(err))
			select {
			case <-time.After(time.Second):
			case <-p.stopChan:
				return
			}
			continue
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				if jobID, ok := queue.MessageJobID(msg.Values); ok {
					p.execute(ctx, lane, jobID)
				}
				// Always ack: job state lives in the database and retries go
				// through the delayed set, never through redelivery.
				if ackErr := p.rdb.XAck(ctx, lane.StreamKey(), queue.ConsumerGroup, msg.ID).Err(); ackErr != nil {
					p.logger.Warn("failed to ack message",
						logger.String("lane", string(lane)),
						logger.String("message_id", msg.ID),
						logger.Error(ackErr))
				}
			}
		}
	}
}

func (p *Pool) execute(ctx context.Context, lane queue.Lane, jobID string) {
	job, err := p.jobs.GetByID(ctx, jobID)
	if err != nil {
		p.logger.Error("failed to load job",
			logger.String("job_id", jobID),
			logger.Error(err))
		return
	}
	if job.Status != domain.JobStatusPending && job.Status != domain.JobStatusRetrying {
		p.logger.Debug("skipping job not awaiting work",
			logger.String("job_id", job.ID),
			logger.String("status", string(job.Status)))
		return
	}

	now := time.Now().UTC()
	started, err := domain.StartJob(*job, now)
	if err != nil {
		p.logger.Error("cannot start job",
			logger.String("job_id", job.ID),
			logger.Error(err))
		return
	}
	if err := p.jobs.Update(ctx, &started, job.Status); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			// Another consumer claimed the job first.
			return
		}
		p.logger.Error("failed to claim job",
			logger.String("job_id", job.ID),
			logger.Error(err))
		return
	}
	p.events.Publish(ctx, events.JobStarted, &started)

	spanCtx, span := p.tracer.Start(ctx, "job.process",
		trace.WithAttributes(
			attribute.String("job.id", started.ID),
			attribute.String("job.type", string(started.Type)),
			attribute.String("job.lane", string(lane)),
			attribute.Int("job.retry_count", started.RetryCount),
		))
	defer span.End()

	policy := queue.PolicyFor(lane)
	procCtx, cancel := context.WithTimeout(spanCtx, policy.JobTimeout)
	result, procErr := p.registry[started.Type].Process(procCtx, &started)
	cancel()

	finished := time.Now().UTC()
	elapsed := finished.Sub(now).Seconds()

	if procErr == nil {
		span.SetStatus(codes.Ok, "")
		completed, transErr := domain.CompleteJob(started, result, finished)
		if transErr != nil {
			p.logger.Error("cannot complete job",
				logger.String("job_id", started.ID),
				logger.Error(transErr))
			return
		}
		if err := p.jobs.Update(ctx, &completed, domain.JobStatusProcessing); err != nil {
			p.logger.Error("failed to persist completed job",
				logger.String("job_id", completed.ID),
				logger.Error(err))
			return
		}
		p.metrics.JobCompleted(string(lane), elapsed)
		p.events.Publish(ctx, events.JobCompleted, &completed)
		p.logger.Debug("job completed",
			logger.String("job_id", completed.ID),
			logger.String("type", string(completed.Type)),
			logger.Duration("took", finished.Sub(now)))
		return
	}

	span.RecordError(procErr)
	span.SetStatus(codes.Error, procErr.Error())
	p.handleFailure(ctx, lane, started, procErr, finished, elapsed)
}

// handleFailure records the failed attempt and either schedules a backoff
// retry or leaves the job failed for the manual retry sweep.
func (p *Pool) handleFailure(ctx context.Context, lane queue.Lane, job domain.Job, procErr error, now time.Time, elapsed float64) {
	kind := domain.ClassifyFailure(procErr)
	p.metrics.JobFailed(string(lane), string(kind), elapsed)
	p.logger.Warn("job failed",
		logger.String("job_id", job.ID),
		logger.String("type", string(job.Type)),
		logger.String("kind", string(kind)),
		logger.Int("retry_count", job.RetryCount),
		logger.Error(procErr))

	failed, err := domain.FailJob(job, procErr.Error(), now)
	if err != nil {
		p.logger.Error("cannot fail job",
			logger.String("job_id", job.ID),
			logger.Error(err))
		return
	}
	if err := p.jobs.Update(ctx, &failed, domain.JobStatusProcessing); err != nil {
		p.logger.Error("failed to persist failed job",
			logger.String("job_id", failed.ID),
			logger.Error(err))
		return
	}

	if !domain.Retryable(procErr) || failed.RetryCount >= failed.MaxRetries {
		p.events.Publish(ctx, events.JobFailed, &failed)
		return
	}

	delay := queue.RetryDelay(lane, failed.RetryCount+1)
	retrying, err := domain.ScheduleJobRetry(failed, delay, now)
	if err != nil {
		p.events.Publish(ctx, events.JobFailed, &failed)
		return
	}
	if err := p.jobs.Update(ctx, &retrying, domain.JobStatusFailed); err != nil {
		p.logger.Error("failed to persist retrying job",
			logger.String("job_id", retrying.ID),
			logger.Error(err))
		return
	}
	if err := p.dispatcher.DelayDispatch(ctx, &retrying, *retrying.NextRetryAt); err != nil {
		// Row says retrying with a due time; the promoter cannot see it, but
		// the recovery sweep will once it goes stale. Log and move on.
		p.logger.Error("failed to park retry in delayed set",
			logger.String("job_id", retrying.ID),
			logger.Error(err))
	}
	p.metrics.JobRetried(string(lane))
	p.events.Publish(ctx, events.JobRetrying, &retrying)
	p.logger.Info("job retry scheduled",
		logger.String("job_id", retrying.ID),
		logger.String("type", string(retrying.Type)),
		logger.Int("attempt", retrying.RetryCount),
		logger.Duration("delay", delay))
}

// promote moves due members of the lane's delayed set back onto the stream.
func (p *Pool) promote(ctx context.Context, lane queue.Lane) {
	defer p.wg.Done()

	ticker := time.NewTicker(promoteInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.promoteOnce(ctx, lane)
		case <-p.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (p *Pool) promoteOnce(ctx context.Context, lane queue.Lane) {
	now := time.Now().UTC()
	due, err := p.rdb.ZRangeByScore(ctx, lane.DelayedKey(), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   fmt.Sprintf("%d", now.UnixMilli()),
		Count: promoteBatchSize,
	}).Result()
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Error("failed to read delayed set",
				logger.String("lane", string(lane)),
				logger.Error(err))
		}
		return
	}

	for _, jobID := range due {
		// Remove first: a member removed by a racing promoter is promoted
		// exactly once.
		removed, remErr := p.rdb.ZRem(ctx, lane.DelayedKey(), jobID).Result()
		if remErr != nil || removed == 0 {
			continue
		}
		if dispErr := p.dispatcher.DispatchTo(ctx, lane, jobID); dispErr != nil {
			p.logger.Error("failed to promote delayed job",
				logger.String("job_id", jobID),
				logger.Error(dispErr))
		}
	}
}

// recover periodically redispatches jobs orphaned by crashed workers or lost
// broker handoffs.
func (p *Pool) recover(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(recoveryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.recoverOnce(ctx)
		case <-p.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (p *Pool) recoverOnce(ctx context.Context) {
	stale, err := p.jobs.ResetStaleProcessing(ctx, staleProcessing)
	if err != nil {
		p.logger.Error("stale processing sweep failed", logger.Error(err))
	} else if len(stale) > 0 {
		p.logger.Warn("recovered stale processing jobs", logger.Int("count", len(stale)))
		p.redispatch(ctx, stale)
	}

	orphaned, err := p.jobs.ReclaimStalePending(ctx, stalePendingAge, stalePendingBatch)
	if err != nil {
		p.logger.Error("stale pending sweep failed", logger.Error(err))
	} else if len(orphaned) > 0 {
		p.logger.Info("redispatching stale pending jobs", logger.Int("count", len(orphaned)))
		p.redispatch(ctx, orphaned)
	}
}

func (p *Pool) redispatch(ctx context.Context, jobs []database.StaleJob) {
	for _, j := range jobs {
		if err := p.dispatcher.DispatchTo(ctx, queue.LaneFor(j.Type), j.ID); err != nil {
			p.logger.Error("failed to redispatch job",
				logger.String("job_id", j.ID),
				logger.Error(err))
		}
	}
}
