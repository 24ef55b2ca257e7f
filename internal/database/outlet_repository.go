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

const outletSelectList = `id, name, base_url, is_active, default_template_id,
		extraction_frequency_minutes, generation_frequency_minutes,
		publishing_frequency_minutes, last_extraction_run, last_generation_run,
		last_publishing_run, created_at, updated_at`

// OutletRepository manages outlet configurations.
type OutletRepository struct {
	db *sqlx.DB
}

// NewOutletRepository creates a new repository.
func NewOutletRepository(db *sqlx.DB) *OutletRepository {
	return &OutletRepository{db: db}
}

// GetByID retrieves one outlet.
func (r *OutletRepository) GetByID(ctx context.Context, id string) (*domain.OutletConfig, error) {
	var o domain.OutletConfig
	err := r.db.GetContext(ctx, &o, `SELECT `+outletSelectList+` FROM outlets WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get outlet: %w", err)
	}
	return &o, nil
}

// ListActive returns every active outlet, the scheduler's working set.
func (r *OutletRepository) ListActive(ctx context.Context) ([]domain.OutletConfig, error) {
	var outlets []domain.OutletConfig
	err := r.db.SelectContext(ctx, &outlets,
		`SELECT `+outletSelectList+` FROM outlets WHERE is_active ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list active outlets: %w", err)
	}
	return outlets, nil
}

// SetActive enables or disables an outlet (pause/resume).
func (r *OutletRepository) SetActive(ctx context.Context, id string, active bool) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE outlets SET is_active = $2, updated_at = NOW() WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("set outlet active: %w", err)
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

// UpdateLastRun stamps the last scheduling pass for a stage. Called only
// after the cycle's jobs were enqueued successfully, never before.
func (r *OutletRepository) UpdateLastRun(ctx context.Context, id string, stage domain.Stage, at time.Time) error {
	var column string
	switch stage {
	case domain.StageExtraction:
		column = "last_extraction_run"
	case domain.StageGeneration:
		column = "last_generation_run"
	case domain.StagePublishing:
		column = "last_publishing_run"
	default:
		return fmt.Errorf("%w: unknown stage %q", domain.ErrValidation, stage)
	}

	query := fmt.Sprintf(`UPDATE outlets SET %s = $2, updated_at = NOW() WHERE id = $1`, column)
	result, err := r.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("update last run: %w", err)
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

// CountByActive returns (active, inactive) outlet counts for status views.
func (r *OutletRepository) CountByActive(ctx context.Context) (active, inactive int64, err error) {
	err = r.db.QueryRowxContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE is_active),
			COUNT(*) FILTER (WHERE NOT is_active)
		FROM outlets`).Scan(&active, &inactive)
	if err != nil {
		return 0, 0, fmt.Errorf("count outlets: %w", err)
	}
	return active, inactive, nil
}
