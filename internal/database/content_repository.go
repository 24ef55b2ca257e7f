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

const contentSelectList = `id, outlet_id, url, title, body, author, category, image_urls,
		published_at, status, error_message, extracted_at, created_at, updated_at`

const generationSelectList = `id, original_content_id, template_id, outlet_id, content,
		quality_score, model, prompt_tokens, completion_tokens, cost_usd, created_at`

// ContentRepository manages content items and their generated renditions.
type ContentRepository struct {
	db *sqlx.DB
}

// NewContentRepository creates a new repository.
func NewContentRepository(db *sqlx.DB) *ContentRepository {
	return &ContentRepository{db: db}
}

// CreateDiscovered records a newly discovered article URL. The (outlet, url)
// pair is unique; rediscovering a known URL is a no-op and returns
// created=false so extraction fan-out only targets new items.
func (r *ContentRepository) CreateDiscovered(ctx context.Context, item *domain.ContentItem) (bool, error) {
	query := `
		INSERT INTO content_items (id, outlet_id, url, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (outlet_id, url) DO NOTHING`

	result, err := r.db.ExecContext(ctx, query,
		item.ID, item.OutletID, item.URL, item.Status, item.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("create discovered content: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get affected rows: %w", err)
	}
	return rows > 0, nil
}

// GetByID retrieves one content item.
func (r *ContentRepository) GetByID(ctx context.Context, id string) (*domain.ContentItem, error) {
	query := `SELECT ` + contentSelectList + ` FROM content_items WHERE id = $1`

	row := r.db.QueryRowxContext(ctx, query, id)
	item, err := scanContentItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get content item: %w", err)
	}
	return item, nil
}

// ListPendingExtraction returns items discovered but not yet extracted.
func (r *ContentRepository) ListPendingExtraction(ctx context.Context, outletID string, limit int) ([]domain.ContentItem, error) {
	query := `
		SELECT ` + contentSelectList + `
		FROM content_items
		WHERE outlet_id = $1 AND status = 'pending'
		ORDER BY created_at ASC
		LIMIT $2`

	rows, err := r.db.QueryxContext(ctx, query, outletID, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending extraction: %w", err)
	}
	defer rows.Close()

	return scanContentItems(rows)
}

// MarkExtracted stores the scraped content and flips the item to extracted.
// Safe under retry: a second extraction of the same item just rewrites the
// same fields.
func (r *ContentRepository) MarkExtracted(ctx context.Context, item *domain.ContentItem, now time.Time) error {
	query := `
		UPDATE content_items
		SET title = $2, body = $3, author = $4, category = $5, image_urls = $6,
		    published_at = $7, status = 'extracted', error_message = NULL,
		    extracted_at = $8, updated_at = $8
		WHERE id = $1`

	return execExpectOneRow(ctx, r.db, "mark extracted", query,
		item.ID, item.Title, item.Body, item.Author, item.Category,
		pq.Array(item.ImageURLs), item.PublishedAt, now)
}

// MarkFailed records an extraction failure. The row is kept, not deleted, so
// failure history stays queryable.
func (r *ContentRepository) MarkFailed(ctx context.Context, id, errorMsg string, now time.Time) error {
	query := `
		UPDATE content_items
		SET status = 'failed', error_message = $2, updated_at = $3
		WHERE id = $1`
	return execExpectOneRow(ctx, r.db, "mark content failed", query, id, errorMsg, now)
}

// MarkGenerated flips an extracted item to generated once a rendition exists.
func (r *ContentRepository) MarkGenerated(ctx context.Context, id string, now time.Time) error {
	query := `
		UPDATE content_items
		SET status = 'generated', updated_at = $2
		WHERE id = $1 AND status = 'extracted'`

	// Zero rows is fine here: a retried generation job may find the item
	// already flipped.
	if _, err := r.db.ExecContext(ctx, query, id, now); err != nil {
		return fmt.Errorf("mark content generated: %w", err)
	}
	return nil
}

// FindGeneration looks up a generation by its idempotency key.
func (r *ContentRepository) FindGeneration(ctx context.Context, originalContentID, templateID string) (*domain.GeneratedContent, error) {
	var g domain.GeneratedContent
	err := r.db.GetContext(ctx, &g,
		`SELECT `+generationSelectList+` FROM generated_contents
		 WHERE original_content_id = $1 AND template_id = $2`,
		originalContentID, templateID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find generation: %w", err)
	}
	return &g, nil
}

// GetGenerationByID retrieves one generated rendition.
func (r *ContentRepository) GetGenerationByID(ctx context.Context, id string) (*domain.GeneratedContent, error) {
	var g domain.GeneratedContent
	err := r.db.GetContext(ctx, &g,
		`SELECT `+generationSelectList+` FROM generated_contents WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get generation: %w", err)
	}
	return &g, nil
}

// CreateGeneration persists one rendition. The unique
// (original_content_id, template_id) key makes concurrent duplicate
// generations impossible; the loser gets ErrAlreadyExists.
func (r *ContentRepository) CreateGeneration(ctx context.Context, g *domain.GeneratedContent) error {
	query := `
		INSERT INTO generated_contents (` + generationSelectList + `)
		VALUES (:id, :original_content_id, :template_id, :outlet_id, :content,
			:quality_score, :model, :prompt_tokens, :completion_tokens, :cost_usd, :created_at)
		ON CONFLICT (original_content_id, template_id) DO NOTHING`

	result, err := r.db.NamedExecContext(ctx, query, g)
	if err != nil {
		return fmt.Errorf("create generation: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: generation for (%s, %s)", domain.ErrAlreadyExists,
			g.OriginalContentID, g.TemplateID)
	}
	return nil
}

// UpdateGeneration overwrites a rendition's generated fields in place. Used
// by explicit retries, which regenerate instead of short-circuiting; the row
// keeps its identity so downstream posts stay linked.
func (r *ContentRepository) UpdateGeneration(ctx context.Context, g *domain.GeneratedContent) error {
	query := `
		UPDATE generated_contents
		SET content = :content, quality_score = :quality_score, model = :model,
		    prompt_tokens = :prompt_tokens, completion_tokens = :completion_tokens,
		    cost_usd = :cost_usd
		WHERE id = :id`

	result, err := r.db.NamedExecContext(ctx, query, g)
	if err != nil {
		return fmt.Errorf("update generation: %w", err)
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

// ListExtractedNotGenerated returns extracted items that have no rendition
// for the given template yet, the generation cycle's eligible set.
func (r *ContentRepository) ListExtractedNotGenerated(ctx context.Context, outletID, templateID string, limit int) ([]domain.ContentItem, error) {
	query := `
		SELECT ` + contentSelectList + `
		FROM content_items c
		WHERE c.outlet_id = $1 AND c.status = 'extracted'
		  AND NOT EXISTS (
			SELECT 1 FROM generated_contents g
			WHERE g.original_content_id = c.id AND g.template_id = $2
		  )
		ORDER BY c.extracted_at ASC
		LIMIT $3`

	rows, err := r.db.QueryxContext(ctx, query, outletID, templateID, limit)
	if err != nil {
		return nil, fmt.Errorf("list extracted not generated: %w", err)
	}
	defer rows.Close()

	return scanContentItems(rows)
}

// ListGeneratedNotPublished returns renditions that have no published post on
// the given target yet, the publishing cycle's eligible set.
func (r *ContentRepository) ListGeneratedNotPublished(ctx context.Context, outletID, targetID string, limit int) ([]domain.GeneratedContent, error) {
	query := `
		SELECT g.id, g.original_content_id, g.template_id, g.outlet_id, g.content,
		       g.quality_score, g.model, g.prompt_tokens, g.completion_tokens,
		       g.cost_usd, g.created_at
		FROM generated_contents g
		WHERE g.outlet_id = $1
		  AND NOT EXISTS (
			SELECT 1 FROM posts p
			WHERE p.generated_content_id = g.id
			  AND p.target_id = $2
			  AND p.status = 'published'
		  )
		ORDER BY g.created_at ASC
		LIMIT $3`

	var generations []domain.GeneratedContent
	if err := r.db.SelectContext(ctx, &generations, query, outletID, targetID, limit); err != nil {
		return nil, fmt.Errorf("list generated not published: %w", err)
	}
	return generations, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContentItem(row rowScanner) (*domain.ContentItem, error) {
	var item domain.ContentItem
	var images pq.StringArray

	err := row.Scan(
		&item.ID, &item.OutletID, &item.URL, &item.Title, &item.Body,
		&item.Author, &item.Category, &images, &item.PublishedAt,
		&item.Status, &item.ErrorMessage, &item.ExtractedAt,
		&item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	item.ImageURLs = images
	return &item, nil
}

func scanContentItems(rows *sqlx.Rows) ([]domain.ContentItem, error) {
	var items []domain.ContentItem
	for rows.Next() {
		item, err := scanContentItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan content item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// execExpectOneRow runs an exec and returns domain.ErrNotFound when no row
// was affected.
func execExpectOneRow(ctx context.Context, db *sqlx.DB, op, query string, args ...any) error {
	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: get affected rows: %w", op, err)
	}
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}
