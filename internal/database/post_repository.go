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

const postSelectList = `id, generated_content_id, target_id, outlet_id, status, text,
		media_urls, platform_post_id, platform_post_url, attempts,
		likes, comments, shares, reach, engagement_rate, engagement_updated,
		published_at, created_at, updated_at`

// PostRepository manages publication attempts. The unique
// (generated_content_id, target_id) key backs the publish idempotency guard.
type PostRepository struct {
	db *sqlx.DB
}

// NewPostRepository creates a new repository.
func NewPostRepository(db *sqlx.DB) *PostRepository {
	return &PostRepository{db: db}
}

// Create inserts a draft post. A concurrent create for the same
// (generated content, target) pair loses with ErrAlreadyExists.
func (r *PostRepository) Create(ctx context.Context, p *domain.Post) error {
	query := `
		INSERT INTO posts (id, generated_content_id, target_id, outlet_id, status,
			text, media_urls, attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		ON CONFLICT (generated_content_id, target_id) DO NOTHING`

	result, err := r.db.ExecContext(ctx, query,
		p.ID, p.GeneratedContentID, p.TargetID, p.OutletID, p.Status,
		p.Text, pq.Array(p.MediaURLs), p.Attempts, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("create post: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: post for (%s, %s)", domain.ErrAlreadyExists,
			p.GeneratedContentID, p.TargetID)
	}
	return nil
}

// GetByPair looks a post up by its idempotency key.
func (r *PostRepository) GetByPair(ctx context.Context, generatedContentID, targetID string) (*domain.Post, error) {
	query := `SELECT ` + postSelectList + ` FROM posts
		WHERE generated_content_id = $1 AND target_id = $2`

	row := r.db.QueryRowxContext(ctx, query, generatedContentID, targetID)
	post, err := scanPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get post by pair: %w", err)
	}
	return post, nil
}

// MarkPublishing claims a post for an in-flight platform call. Conditional on
// a non-published status so a duplicate publish job cannot claim a post that
// already went out.
func (r *PostRepository) MarkPublishing(ctx context.Context, id string, now time.Time) error {
	query := `
		UPDATE posts
		SET status = 'publishing', updated_at = $2
		WHERE id = $1 AND status IN ('draft', 'scheduled', 'failed')`

	result, err := r.db.ExecContext(ctx, query, id, now)
	if err != nil {
		return fmt.Errorf("mark post publishing: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: post %s not claimable", domain.ErrConflict, id)
	}
	return nil
}

// MarkPublished records a successful platform call. Conditional on the
// current status so the transition happens at most once.
func (r *PostRepository) MarkPublished(ctx context.Context, id, platformPostID, platformPostURL string, now time.Time) error {
	query := `
		UPDATE posts
		SET status = 'published', platform_post_id = $2, platform_post_url = $3,
		    published_at = $4, updated_at = $4
		WHERE id = $1 AND status != 'published'`

	result, err := r.db.ExecContext(ctx, query, id, platformPostID, platformPostURL, now)
	if err != nil {
		return fmt.Errorf("mark post published: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: post %s already published", domain.ErrConflict, id)
	}
	return nil
}

// MarkFailed records a failed platform call, appending to the attempt log.
func (r *PostRepository) MarkFailed(ctx context.Context, id string, attempt domain.PublishAttempt, now time.Time) error {
	attemptJSON, err := domain.PublishAttempts{attempt}.Value()
	if err != nil {
		return fmt.Errorf("marshal attempt: %w", err)
	}

	query := `
		UPDATE posts
		SET status = 'failed',
		    attempts = attempts || $2::jsonb,
		    updated_at = $3
		WHERE id = $1 AND status != 'published'`

	return execExpectOneRow(ctx, r.db, "mark post failed", query, id, attemptJSON, now)
}

// ListStaleEngagement returns published posts inside the recency window whose
// engagement snapshot is older than staleAfter (or missing).
func (r *PostRepository) ListStaleEngagement(ctx context.Context, window, staleAfter time.Duration, limit int) ([]domain.Post, error) {
	query := `
		SELECT ` + postSelectList + `
		FROM posts
		WHERE status = 'published'
		  AND published_at >= NOW() - $1::interval
		  AND (engagement_updated IS NULL OR engagement_updated < NOW() - $2::interval)
		ORDER BY engagement_updated ASC NULLS FIRST
		LIMIT $3`

	rows, err := r.db.QueryxContext(ctx, query, window.String(), staleAfter.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("list stale engagement: %w", err)
	}
	defer rows.Close()

	var posts []domain.Post
	for rows.Next() {
		post, scanErr := scanPost(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan post: %w", scanErr)
		}
		posts = append(posts, *post)
	}
	return posts, rows.Err()
}

// UpdateEngagement refreshes a post's engagement snapshot and derived rate.
func (r *PostRepository) UpdateEngagement(ctx context.Context, id string, e domain.Engagement, rate float64, now time.Time) error {
	query := `
		UPDATE posts
		SET likes = $2, comments = $3, shares = $4, reach = $5,
		    engagement_rate = $6, engagement_updated = $7, updated_at = $7
		WHERE id = $1`

	return execExpectOneRow(ctx, r.db, "update engagement", query,
		id, e.Likes, e.Comments, e.Shares, e.Reach, rate, now)
}

// CountPublishedSince counts publishes after a cutoff, used by status views.
func (r *PostRepository) CountPublishedSince(ctx context.Context, cutoff time.Time) (int64, error) {
	var count int64
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM posts WHERE status = 'published' AND published_at >= $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("count published: %w", err)
	}
	return count, nil
}

func scanPost(row rowScanner) (*domain.Post, error) {
	var p domain.Post
	var media pq.StringArray

	err := row.Scan(
		&p.ID, &p.GeneratedContentID, &p.TargetID, &p.OutletID, &p.Status, &p.Text,
		&media, &p.PlatformPostID, &p.PlatformPostURL, &p.Attempts,
		&p.Engagement.Likes, &p.Engagement.Comments, &p.Engagement.Shares,
		&p.Engagement.Reach, &p.EngagementRate, &p.Engagement.LastUpdated,
		&p.PublishedAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.MediaURLs = media
	return &p, nil
}
