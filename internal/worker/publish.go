package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/horuscamacho/noticias-pachuca-sub006/internal/database"
	"github.com/horuscamacho/noticias-pachuca-sub006/internal/domain"
	"github.com/horuscamacho/noticias-pachuca-sub006/internal/integration"
	"github.com/horuscamacho/noticias-pachuca-sub006/internal/logger"
	"github.com/horuscamacho/noticias-pachuca-sub006/internal/metrics"
	"github.com/horuscamacho/noticias-pachuca-sub006/internal/publishing"
)

// maxPostMedia bounds how many images one post carries to the platform.
const maxPostMedia = 3

// PublishProcessor handles publish jobs. Order of operations is load-bearing:
// the quota slot is reserved before the platform call and released if the call
// fails, so the daily counter only retains successful publishes yet can never
// overshoot the limit under concurrency.
type PublishProcessor struct {
	publisher integration.SocialPublisher
	contents  *database.ContentRepository
	targets   *database.TargetRepository
	posts     *database.PostRepository
	metrics   *metrics.Tracker
	logger    logger.Logger
}

// NewPublishProcessor creates the publish processor.
func NewPublishProcessor(
	publisher integration.SocialPublisher,
	contents *database.ContentRepository,
	targets *database.TargetRepository,
	posts *database.PostRepository,
	tracker *metrics.Tracker,
	log logger.Logger,
) *PublishProcessor {
	return &PublishProcessor{
		publisher: publisher,
		contents:  contents,
		targets:   targets,
		posts:     posts,
		metrics:   tracker,
		logger:    log,
	}
}

// Type implements Processor.
func (p *PublishProcessor) Type() domain.JobType { return domain.JobTypePublish }

// Process implements Processor.
func (p *PublishProcessor) Process(ctx context.Context, job *domain.Job) (json.RawMessage, error) {
	var payload PublishJobPayload
	if err := decodePayload(job, &payload); err != nil {
		return nil, err
	}

	post, err := p.loadOrCreatePost(ctx, job, payload)
	if err != nil {
		return nil, err
	}
	if post.Status == domain.PostStatusPublished {
		return json.Marshal(map[string]any{
			"skipped": "already published",
			"post_id": post.ID,
		})
	}

	now := time.Now().UTC()
	target, err := p.targets.GetByID(ctx, payload.TargetID)
	if err != nil {
		return nil, fmt.Errorf("load target %s: %w", payload.TargetID, err)
	}
	if target.NeedsCounterReset(now) {
		reset, resetErr := p.targets.ResetDailyCounterIfDue(ctx, target.ID, now, domain.NextResetBoundary(now))
		if resetErr != nil {
			return nil, fmt.Errorf("reset daily counter: %w", resetErr)
		}
		if reset {
			target.PostsPublishedToday = 0
			target.DailyCounterResetAt = domain.NextResetBoundary(now)
		}
	}
	if !target.CanPublishToday(now) {
		p.metrics.QuotaRejected()
		return nil, fmt.Errorf("%w: target %s at %d/%d",
			domain.ErrQuotaExceeded, target.ID, target.PostsPublishedToday, target.DailyPostLimit)
	}

	if err := p.posts.MarkPublishing(ctx, post.ID, now); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			// Another worker holds or finished this post.
			current, getErr := p.posts.GetByPair(ctx, payload.GeneratedContentID, payload.TargetID)
			if getErr == nil && current.Status == domain.PostStatusPublished {
				return json.Marshal(map[string]any{
					"skipped": "published concurrently",
					"post_id": current.ID,
				})
			}
		}
		return nil, fmt.Errorf("claim post %s: %w", post.ID, err)
	}

	// Reserve the slot before the platform call; release it on failure.
	if err := p.targets.ReserveDailySlot(ctx, target.ID); err != nil {
		if errors.Is(err, domain.ErrQuotaExceeded) {
			p.metrics.QuotaRejected()
			p.recordFailure(ctx, post, "daily quota exhausted", now)
		}
		return nil, fmt.Errorf("reserve slot on target %s: %w", target.ID, err)
	}

	result, err := p.publisher.Publish(ctx, integration.PublishPayload{
		AccountRef: target.AccountRef,
		Text:       post.Text,
		MediaURLs:  post.MediaURLs,
	})
	if err != nil {
		if releaseErr := p.targets.ReleaseDailySlot(ctx, target.ID); releaseErr != nil {
			p.logger.Error("failed to release quota slot",
				logger.String("target_id", target.ID),
				logger.Error(releaseErr))
		}
		p.recordFailure(ctx, post, err.Error(), time.Now().UTC())
		return nil, fmt.Errorf("publish post %s: %w", post.ID, err)
	}

	now = time.Now().UTC()
	if err := p.posts.MarkPublished(ctx, post.ID, result.PlatformPostID, result.PlatformPostURL, now); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			// Lost a race to a duplicate that already published; give the
			// reserved slot back so the counter stays truthful.
			if releaseErr := p.targets.ReleaseDailySlot(ctx, target.ID); releaseErr != nil {
				p.logger.Error("failed to release quota slot after conflict",
					logger.String("target_id", target.ID),
					logger.Error(releaseErr))
			}
			return json.Marshal(map[string]any{"skipped": "published concurrently", "post_id": post.ID})
		}
		// The platform call went out; surfacing the bookkeeping error would
		// retry the publish and double-post.
		p.logger.Error("post published but not recorded",
			logger.String("post_id", post.ID),
			logger.String("platform_post_id", result.PlatformPostID),
			logger.Error(err))
	}

	p.metrics.PostPublished()
	p.logger.Info("post published",
		logger.String("post_id", post.ID),
		logger.String("target_id", target.ID),
		logger.String("platform_post_id", result.PlatformPostID))

	return json.Marshal(map[string]any{
		"post_id":           post.ID,
		"platform_post_id":  result.PlatformPostID,
		"platform_post_url": result.PlatformPostURL,
	})
}

// loadOrCreatePost returns the post row for the job's pair, composing and
// inserting the draft on first contact.
func (p *PublishProcessor) loadOrCreatePost(ctx context.Context, job *domain.Job, payload PublishJobPayload) (*domain.Post, error) {
	post, err := p.posts.GetByPair(ctx, payload.GeneratedContentID, payload.TargetID)
	if err == nil {
		return post, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("load post: %w", err)
	}

	generation, err := p.contents.GetGenerationByID(ctx, payload.GeneratedContentID)
	if err != nil {
		return nil, fmt.Errorf("load generation %s: %w", payload.GeneratedContentID, err)
	}
	item, err := p.contents.GetByID(ctx, generation.OriginalContentID)
	if err != nil {
		return nil, fmt.Errorf("load source content %s: %w", generation.OriginalContentID, err)
	}

	optimized := publishing.Optimize(generation.Content, item.Category, contentKeywords(item.Title))
	media := item.ImageURLs
	if len(media) > maxPostMedia {
		media = media[:maxPostMedia]
	}

	now := time.Now().UTC()
	draft, err := domain.NewPost(payload.GeneratedContentID, payload.TargetID,
		job.OutletID, composePostText(optimized), media, now)
	if err != nil {
		return nil, err
	}
	if err := p.posts.Create(ctx, &draft); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			return p.posts.GetByPair(ctx, payload.GeneratedContentID, payload.TargetID)
		}
		return nil, fmt.Errorf("create draft post: %w", err)
	}
	return &draft, nil
}

// composePostText assembles the final platform copy from the optimizer output.
func composePostText(c publishing.OptimizedContent) string {
	parts := []string{c.Text}
	if len(c.Emojis) > 0 {
		parts = append(parts, strings.Join(c.Emojis, " "))
	}
	if len(c.Hashtags) > 0 {
		parts = append(parts, strings.Join(c.Hashtags, " "))
	}
	return strings.Join(parts, "\n\n")
}

func (p *PublishProcessor) recordFailure(ctx context.Context, post *domain.Post, cause string, now time.Time) {
	attempt := domain.PublishAttempt{
		Attempt:     len(post.Attempts) + 1,
		Error:       cause,
		AttemptedAt: now,
	}
	if err := p.posts.MarkFailed(ctx, post.ID, attempt, now); err != nil {
		p.logger.Error("failed to record publish failure",
			logger.String("post_id", post.ID),
			logger.Error(err))
	}
}
