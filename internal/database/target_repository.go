package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/horuscamacho/noticias-pachuca-sub006/internal/domain"
)

const targetSelectList = `id, outlet_id, name, platform, account_ref, is_active,
		daily_post_limit, posts_published_today, daily_counter_reset_at,
		created_at, updated_at`

// TargetRepository manages publishing targets and their daily quota counters.
type TargetRepository struct {
	db *sqlx.DB
}

// NewTargetRepository creates a new repository.
func NewTargetRepository(db *sqlx.DB) *TargetRepository {
	return &TargetRepository{db: db}
}

// GetByID retrieves one publishing target.
func (r *TargetRepository) GetByID(ctx context.Context, id string) (*domain.PublishingTarget, error) {
	var t domain.PublishingTarget
	err := r.db.GetContext(ctx, &t,
		`SELECT `+targetSelectList+` FROM publishing_targets WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get target: %w", err)
	}
	return &t, nil
}

// ListActiveByOutlet returns the active targets for one outlet.
func (r *TargetRepository) ListActiveByOutlet(ctx context.Context, outletID string) ([]domain.PublishingTarget, error) {
	var targets []domain.PublishingTarget
	err := r.db.SelectContext(ctx, &targets,
		`SELECT `+targetSelectList+` FROM publishing_targets
		 WHERE outlet_id = $1 AND is_active ORDER BY name`, outletID)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	return targets, nil
}

// ResetDailyCounterIfDue zeroes the daily counter when the stored reset
// boundary is in the past, advancing the boundary to nextReset. Returns
// whether a reset happened. Conditional on the boundary so two concurrent
// publish attempts cannot both reset.
func (r *TargetRepository) ResetDailyCounterIfDue(ctx context.Context, id string, now, nextReset time.Time) (bool, error) {
	query := `
		UPDATE publishing_targets
		SET posts_published_today = 0, daily_counter_reset_at = $3, updated_at = $2
		WHERE id = $1 AND daily_counter_reset_at <= $2`

	result, err := r.db.ExecContext(ctx, query, id, now, nextReset)
	if err != nil {
		return false, fmt.Errorf("reset daily counter: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get affected rows: %w", err)
	}
	return rows > 0, nil
}

// ReserveDailySlot atomically claims one unit of daily quota. The conditional
// increment is the single enforcement point: two concurrent publish attempts
// racing for the last slot cannot both pass. Returns ErrQuotaExceeded when no
// slot remains.
func (r *TargetRepository) ReserveDailySlot(ctx context.Context, id string) error {
	query := `
		UPDATE publishing_targets
		SET posts_published_today = posts_published_today + 1, updated_at = NOW()
		WHERE id = $1 AND is_active
		  AND posts_published_today < daily_post_limit`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("reserve daily slot: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get affected rows: %w", err)
	}
	if rows == 0 {
		return domain.ErrQuotaExceeded
	}
	return nil
}

// ReleaseDailySlot returns a reserved slot after a failed publish call so the
// counter only retains increments for successful publishes.
func (r *TargetRepository) ReleaseDailySlot(ctx context.Context, id string) error {
	query := `
		UPDATE publishing_targets
		SET posts_published_today = GREATEST(posts_published_today - 1, 0), updated_at = NOW()
		WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("release daily slot: %w", err)
	}
	return nil
}
