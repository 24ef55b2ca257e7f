package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/horuscamacho/noticias-pachuca-sub006/internal/domain"
)

// jobSelectList is the column list for SELECT on jobs (single source for schema changes)
const jobSelectList = `id, type, outlet_id, related_entity_id, batch_id, status, priority,
		payload, result, error_message, retry_history, retry_count, max_retries,
		is_retry, original_job_id, next_retry_at, scheduled_at, started_at,
		completed_at, processing_ms, created_at, updated_at`

// JobRepository manages the durable job store in PostgreSQL. Jobs are never
// deleted; terminal rows are retained for audit and history.
type JobRepository struct {
	db *sqlx.DB
}

// NewJobRepository creates a new repository.
func NewJobRepository(db *sqlx.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a new job row. The row exists before the broker handoff so
// the job stays observable even when the enqueue to the broker fails.
func (r *JobRepository) Create(ctx context.Context, j *domain.Job) error {
	query := `
		INSERT INTO jobs (` + jobSelectList + `)
		VALUES (:id, :type, :outlet_id, :related_entity_id, :batch_id, :status, :priority,
			:payload, :result, :error_message, :retry_history, :retry_count, :max_retries,
			:is_retry, :original_job_id, :next_retry_at, :scheduled_at, :started_at,
			:completed_at, :processing_ms, :created_at, :updated_at)`

	if _, err := r.db.NamedExecContext(ctx, query, j); err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

// GetByID retrieves a single job.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	var j domain.Job
	err := r.db.GetContext(ctx, &j, `SELECT `+jobSelectList+` FROM jobs WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &j, nil
}

// Update persists a transitioned job conditionally on its previous status.
// Zero rows affected means another worker transitioned the job first; the
// caller must treat the job as no longer owned.
func (r *JobRepository) Update(ctx context.Context, j *domain.Job, expected domain.JobStatus) error {
	query := `
		UPDATE jobs
		SET status = $2, result = $3, error_message = $4, retry_history = $5,
		    retry_count = $6, next_retry_at = $7, started_at = $8,
		    completed_at = $9, processing_ms = $10, updated_at = $11
		WHERE id = $1 AND status = $12`

	result, err := r.db.ExecContext(ctx, query,
		j.ID, j.Status, j.Result, j.ErrorMessage, j.RetryHistory,
		j.RetryCount, j.NextRetryAt, j.StartedAt,
		j.CompletedAt, j.ProcessingMS, j.UpdatedAt, expected,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: job %s no longer %s", domain.ErrConflict, j.ID, expected)
	}
	return nil
}

// MarkRetrying moves a failed job to retrying after a manual retry sweep
// created its replacement.
func (r *JobRepository) MarkRetrying(ctx context.Context, id string, now time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE jobs SET status = 'retrying', updated_at = $2 WHERE id = $1 AND status = 'failed'`,
		id, now)
	if err != nil {
		return fmt.Errorf("mark retrying: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get affected rows: %w", err)
	}
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListFailedForRetry returns failed jobs eligible for the bulk retry sweep.
func (r *JobRepository) ListFailedForRetry(
	ctx context.Context,
	maxAge time.Duration,
	maxRetriesPerJob int,
	types []domain.JobType,
	limit int,
) ([]domain.Job, error) {
	typeNames := make([]string, 0, len(types))
	for _, t := range types {
		typeNames = append(typeNames, string(t))
	}

	query := `
		SELECT ` + jobSelectList + `
		FROM jobs
		WHERE status = 'failed'
		  AND updated_at >= NOW() - $1::interval
		  AND retry_count < $2
		  AND type = ANY($3)
		ORDER BY updated_at ASC
		LIMIT $4`

	var jobs []domain.Job
	err := r.db.SelectContext(ctx, &jobs, query,
		maxAge.String(), maxRetriesPerJob, pq.Array(typeNames), limit)
	if err != nil {
		return nil, fmt.Errorf("list failed for retry: %w", err)
	}
	return jobs, nil
}

// TypeStatusCount is one row of the per-type status aggregation.
type TypeStatusCount struct {
	Type   domain.JobType   `db:"type"`
	Status domain.JobStatus `db:"status"`
	Count  int64            `db:"count"`
}

// StatusCounts aggregates job counts by type and status for queue stats.
func (r *JobRepository) StatusCounts(ctx context.Context) ([]TypeStatusCount, error) {
	var counts []TypeStatusCount
	err := r.db.SelectContext(ctx, &counts,
		`SELECT type, status, COUNT(*) AS count FROM jobs GROUP BY type, status`)
	if err != nil {
		return nil, fmt.Errorf("status counts: %w", err)
	}
	return counts, nil
}

// StaleJob identifies a job reset by the recovery sweep.
type StaleJob struct {
	ID   string         `db:"id"`
	Type domain.JobType `db:"type"`
}

// ResetStaleProcessing resets jobs stuck in processing past olderThan back to
// pending. This recovers jobs claimed by a worker that crashed mid-flight.
func (r *JobRepository) ResetStaleProcessing(ctx context.Context, olderThan time.Duration) ([]StaleJob, error) {
	query := `
		UPDATE jobs
		SET status = 'pending', started_at = NULL, updated_at = NOW()
		WHERE status = 'processing'
		  AND updated_at < NOW() - $1::interval
		RETURNING id, type`

	var stale []StaleJob
	if err := r.db.SelectContext(ctx, &stale, query, olderThan.String()); err != nil {
		return nil, fmt.Errorf("reset stale processing: %w", err)
	}
	return stale, nil
}

// ReclaimStalePending returns pending jobs whose broker handoff apparently
// never happened (no worker touched them past olderThan) so they can be
// redispatched. Touches updated_at so one job is not reclaimed by every
// sweep.
func (r *JobRepository) ReclaimStalePending(ctx context.Context, olderThan time.Duration, limit int) ([]StaleJob, error) {
	query := `
		UPDATE jobs
		SET updated_at = NOW()
		WHERE id IN (
			SELECT id FROM jobs
			WHERE status = 'pending'
			  AND scheduled_at <= NOW()
			  AND updated_at < NOW() - $1::interval
			ORDER BY updated_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, type`

	var stale []StaleJob
	if err := r.db.SelectContext(ctx, &stale, query, olderThan.String(), limit); err != nil {
		return nil, fmt.Errorf("reclaim stale pending: %w", err)
	}
	return stale, nil
}

// CancelActiveByTypes cancels every pending or retrying job of the given
// types. Used by lane clearing for operational recovery.
func (r *JobRepository) CancelActiveByTypes(ctx context.Context, types []domain.JobType) (int64, error) {
	typeNames := make([]string, 0, len(types))
	for _, t := range types {
		typeNames = append(typeNames, string(t))
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE jobs
		SET status = 'cancelled', completed_at = NOW(), updated_at = NOW()
		WHERE status IN ('pending', 'retrying') AND type = ANY($1)`,
		pq.Array(typeNames))
	if err != nil {
		return 0, fmt.Errorf("cancel active by types: %w", err)
	}
	return result.RowsAffected()
}

// CountsByStatus aggregates job counts by status for the system status view.
func (r *JobRepository) CountsByStatus(ctx context.Context) (map[domain.JobStatus]int64, error) {
	rows, err := r.db.QueryxContext(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("counts by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.JobStatus]int64)
	for rows.Next() {
		var status domain.JobStatus
		var count int64
		if scanErr := rows.Scan(&status, &count); scanErr != nil {
			return nil, fmt.Errorf("scan status count: %w", scanErr)
		}
		counts[status] = count
	}
	return counts, rows.Err()
}
