package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/horuscamacho/noticias-pachuca-sub006/internal/database"
	"github.com/horuscamacho/noticias-pachuca-sub006/internal/domain"
	"github.com/horuscamacho/noticias-pachuca-sub006/internal/logger"
	"github.com/horuscamacho/noticias-pachuca-sub006/internal/metrics"
)

const (
	// retryBatchCap bounds one RetryFailed sweep.
	retryBatchCap = 50

	defaultRetryMaxAge       = 24 * time.Hour
	defaultRetryMaxPerJob    = 3
	failureRateThreshold     = 0.5
	brokerOpTimeout          = 5 * time.Second
	messageJobIDField        = "job_id"
	messageEnqueuedAtField   = "enqueued_at"
	minSamplesForFailureRate = 5
)

// Dispatcher creates durable job records and hands them to the broker lane
// matching their stage. The row is written first so a job stays observable
// and retryable even when the broker handoff fails.
type Dispatcher struct {
	jobs    *database.JobRepository
	rdb     redis.UniversalClient
	logger  logger.Logger
	metrics *metrics.Tracker
}

// NewDispatcher creates a new dispatcher.
func NewDispatcher(jobs *database.JobRepository, rdb redis.UniversalClient, tracker *metrics.Tracker, log logger.Logger) *Dispatcher {
	return &Dispatcher{
		jobs:    jobs,
		rdb:     rdb,
		logger:  log,
		metrics: tracker,
	}
}

// SetupTopology declares the consumer group on every lane stream. Idempotent.
func (d *Dispatcher) SetupTopology(ctx context.Context) error {
	for _, lane := range Lanes() {
		err := d.rdb.XGroupCreateMkStream(ctx, lane.StreamKey(), ConsumerGroup, "$").Err()
		if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
			return fmt.Errorf("create group for lane %s: %w", lane, err)
		}
	}
	return nil
}

// EnqueueOptions tunes one enqueue call.
type EnqueueOptions struct {
	Priority        int
	Delay           time.Duration
	MaxRetries      int // 0 uses the lane policy
	RelatedEntityID string
	BatchID         string
}

// Enqueue creates the job record and dispatches it on its lane. On broker
// failure the created job is returned along with the error; the stale-job
// sweep redispatches it later.
func (d *Dispatcher) Enqueue(ctx context.Context, jobType domain.JobType, outletID string, payload any, opts EnqueueOptions) (*domain.Job, error) {
	var raw json.RawMessage
	if payload != nil {
		var err error
		raw, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: marshal payload: %v", domain.ErrValidation, err)
		}
	}

	now := time.Now().UTC()
	job, err := domain.NewJob(jobType, outletID, raw, now)
	if err != nil {
		return nil, err
	}
	job.Priority = opts.Priority
	if opts.MaxRetries > 0 {
		job.MaxRetries = opts.MaxRetries
	} else {
		job.MaxRetries = PolicyFor(LaneFor(jobType)).MaxRetries
	}
	if opts.RelatedEntityID != "" {
		job.RelatedEntityID = &opts.RelatedEntityID
	}
	if opts.BatchID != "" {
		job.BatchID = &opts.BatchID
	}
	if opts.Delay > 0 {
		job.ScheduledAt = now.Add(opts.Delay)
	}

	if err = d.jobs.Create(ctx, &job); err != nil {
		return nil, err
	}
	d.metrics.JobEnqueued(string(LaneFor(jobType)))

	if opts.Delay > 0 {
		err = d.DelayDispatch(ctx, &job, job.ScheduledAt)
	} else {
		err = d.Dispatch(ctx, &job)
	}
	if err != nil {
		// Job row exists and stays pending; recovery will redispatch.
		d.logger.Warn("broker handoff failed, job left pending",
			logger.String("job_id", job.ID),
			logger.String("type", string(jobType)),
			logger.Error(err))
		return &job, err
	}

	d.logger.Debug("job enqueued",
		logger.String("job_id", job.ID),
		logger.String("type", string(jobType)),
		logger.String("outlet_id", outletID),
		logger.Int("priority", opts.Priority),
		logger.Duration("delay", opts.Delay))
	return &job, nil
}

// Dispatch appends a job to its lane stream for immediate consumption.
func (d *Dispatcher) Dispatch(ctx context.Context, job *domain.Job) error {
	return d.DispatchTo(ctx, LaneFor(job.Type), job.ID)
}

// DispatchTo appends a job ID to a lane stream. Used directly by the worker
// when promoting delayed jobs and redispatching recovered ones.
func (d *Dispatcher) DispatchTo(ctx context.Context, lane Lane, jobID string) error {
	opCtx, cancel := context.WithTimeout(ctx, brokerOpTimeout)
	defer cancel()

	err := d.rdb.XAdd(opCtx, &redis.XAddArgs{
		Stream: lane.StreamKey(),
		Values: map[string]any{
			messageJobIDField:      jobID,
			messageEnqueuedAtField: time.Now().UTC().Format(time.RFC3339Nano),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("dispatch to lane %s: %w", lane, err)
	}
	return nil
}

// MessageJobID extracts the job ID from a lane stream message.
func MessageJobID(values map[string]any) (string, bool) {
	raw, ok := values[messageJobIDField]
	if !ok {
		return "", false
	}
	id, ok := raw.(string)
	return id, ok && id != ""
}

// DelayDispatch parks a job in its lane's delayed set until due. The worker
// promotes due members back onto the stream.
func (d *Dispatcher) DelayDispatch(ctx context.Context, job *domain.Job, due time.Time) error {
	opCtx, cancel := context.WithTimeout(ctx, brokerOpTimeout)
	defer cancel()

	lane := LaneFor(job.Type)
	err := d.rdb.ZAdd(opCtx, lane.DelayedKey(), redis.Z{
		Score:  float64(due.UnixMilli()),
		Member: job.ID,
	}).Err()
	if err != nil {
		return fmt.Errorf("delay dispatch to lane %s: %w", lane, err)
	}
	return nil
}

// LaneStats holds the per-lane job counts.
type LaneStats struct {
	Active    int64 `json:"active"`
	Waiting   int64 `json:"waiting"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Delayed   int64 `json:"delayed"`
	Total     int64 `json:"total"`
}

// Stats holds the per-lane counts plus a combined total.
type Stats struct {
	Lanes map[Lane]LaneStats `json:"lanes"`
	Total LaneStats          `json:"total"`
}

// GetStats aggregates job counts by lane from the job store.
func (d *Dispatcher) GetStats(ctx context.Context) (*Stats, error) {
	counts, err := d.jobs.StatusCounts(ctx)
	if err != nil {
		return nil, err
	}

	stats := &Stats{Lanes: make(map[Lane]LaneStats, len(Lanes()))}
	for _, lane := range Lanes() {
		stats.Lanes[lane] = LaneStats{}
	}
	for _, row := range counts {
		lane := LaneFor(row.Type)
		ls := stats.Lanes[lane]
		switch row.Status {
		case domain.JobStatusProcessing:
			ls.Active += row.Count
		case domain.JobStatusPending:
			ls.Waiting += row.Count
		case domain.JobStatusCompleted:
			ls.Completed += row.Count
		case domain.JobStatusFailed:
			ls.Failed += row.Count
		case domain.JobStatusRetrying:
			ls.Delayed += row.Count
		case domain.JobStatusCancelled:
			// cancelled jobs count toward the total only
		}
		ls.Total += row.Count
		stats.Lanes[lane] = ls

		stats.Total.Total += row.Count
	}
	for _, ls := range stats.Lanes {
		stats.Total.Active += ls.Active
		stats.Total.Waiting += ls.Waiting
		stats.Total.Completed += ls.Completed
		stats.Total.Failed += ls.Failed
		stats.Total.Delayed += ls.Delayed
	}
	return stats, nil
}

// LaneHealth reports one lane's health verdict.
type LaneHealth struct {
	Healthy     bool    `json:"healthy"`
	Reason      string  `json:"reason,omitempty"`
	Active      int64   `json:"active"`
	FailureRate float64 `json:"failure_rate"`
}

// Health reports the dispatcher's health across lanes.
type Health struct {
	Healthy bool                `json:"healthy"`
	Lanes   map[Lane]LaneHealth `json:"lanes"`
}

// GetHealth flags a lane unhealthy when its active jobs exceed the policy
// ceiling or its failure rate crosses the threshold.
func (d *Dispatcher) GetHealth(ctx context.Context) (*Health, error) {
	stats, err := d.GetStats(ctx)
	if err != nil {
		return nil, err
	}

	health := &Health{Healthy: true, Lanes: make(map[Lane]LaneHealth, len(stats.Lanes))}
	for lane, ls := range stats.Lanes {
		lh := LaneHealth{Healthy: true, Active: ls.Active}
		finished := ls.Completed + ls.Failed
		if finished >= minSamplesForFailureRate {
			lh.FailureRate = float64(ls.Failed) / float64(finished)
		}

		if ceiling := PolicyFor(lane).ActiveCeiling; ls.Active > ceiling {
			lh.Healthy = false
			lh.Reason = fmt.Sprintf("active jobs %d exceed ceiling %d", ls.Active, ceiling)
		} else if lh.FailureRate > failureRateThreshold {
			lh.Healthy = false
			lh.Reason = fmt.Sprintf("failure rate %.0f%% exceeds %.0f%%",
				lh.FailureRate*100, failureRateThreshold*100)
		}

		if !lh.Healthy {
			health.Healthy = false
		}
		health.Lanes[lane] = lh
	}
	return health, nil
}

// RetryFailedOptions tunes one bulk retry sweep.
type RetryFailedOptions struct {
	MaxAgeHours      int
	MaxRetriesPerJob int
	Lane             Lane // empty retries every lane
	Limit            int  // capped at retryBatchCap
}

// RetryFailedResult summarizes one bulk retry sweep.
type RetryFailedResult struct {
	Eligible int      `json:"eligible"`
	Retried  int      `json:"retried"`
	JobIDs   []string `json:"job_ids"`
}

// RetryFailed re-enqueues eligible failed jobs as fresh jobs carrying
// isRetry=true and a back-reference to the original, then marks the originals
// retrying. The batch is capped to bound a single sweep.
func (d *Dispatcher) RetryFailed(ctx context.Context, opts RetryFailedOptions) (*RetryFailedResult, error) {
	maxAge := defaultRetryMaxAge
	if opts.MaxAgeHours > 0 {
		maxAge = time.Duration(opts.MaxAgeHours) * time.Hour
	}
	maxPerJob := opts.MaxRetriesPerJob
	if maxPerJob <= 0 {
		maxPerJob = defaultRetryMaxPerJob
	}
	limit := opts.Limit
	if limit <= 0 || limit > retryBatchCap {
		limit = retryBatchCap
	}

	var types []domain.JobType
	if opts.Lane != "" {
		if !opts.Lane.Valid() {
			return nil, fmt.Errorf("%w: unknown lane %q", domain.ErrValidation, opts.Lane)
		}
		types = TypesFor(opts.Lane)
	} else {
		types = domain.JobTypes()
	}

	failed, err := d.jobs.ListFailedForRetry(ctx, maxAge, maxPerJob, types, limit)
	if err != nil {
		return nil, err
	}

	result := &RetryFailedResult{Eligible: len(failed)}
	now := time.Now().UTC()
	for i := range failed {
		original := failed[i]
		fresh := domain.RetryJob(original, now)
		if createErr := d.jobs.Create(ctx, &fresh); createErr != nil {
			d.logger.Error("failed to create retry job",
				logger.String("original_job_id", original.ID),
				logger.Error(createErr))
			continue
		}
		if dispatchErr := d.Dispatch(ctx, &fresh); dispatchErr != nil {
			d.logger.Warn("retry job created but not dispatched",
				logger.String("job_id", fresh.ID),
				logger.Error(dispatchErr))
		}
		if markErr := d.jobs.MarkRetrying(ctx, original.ID, now); markErr != nil &&
			!errors.Is(markErr, domain.ErrNotFound) {
			d.logger.Error("failed to mark original retrying",
				logger.String("job_id", original.ID),
				logger.Error(markErr))
		}
		result.Retried++
		result.JobIDs = append(result.JobIDs, fresh.ID)
	}

	d.logger.Info("retry sweep finished",
		logger.Int("eligible", result.Eligible),
		logger.Int("retried", result.Retried))
	return result, nil
}

// ClearLane drains a lane for operational recovery: the stream and delayed
// set are deleted and every pending or retrying job of the lane is cancelled.
// In-flight jobs are untouched.
func (d *Dispatcher) ClearLane(ctx context.Context, lane Lane) (int64, error) {
	if !lane.Valid() {
		return 0, fmt.Errorf("%w: unknown lane %q", domain.ErrValidation, lane)
	}

	if err := d.rdb.Del(ctx, lane.StreamKey(), lane.DelayedKey()).Err(); err != nil {
		return 0, fmt.Errorf("clear lane %s broker state: %w", lane, err)
	}
	cancelled, err := d.jobs.CancelActiveByTypes(ctx, TypesFor(lane))
	if err != nil {
		return 0, err
	}

	d.logger.Warn("lane cleared",
		logger.String("lane", string(lane)),
		logger.Int64("jobs_cancelled", cancelled))
	return cancelled, nil
}
