package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/horuscamacho/noticias-pachuca-sub006/internal/database"
	"github.com/horuscamacho/noticias-pachuca-sub006/internal/domain"
	"github.com/horuscamacho/noticias-pachuca-sub006/internal/integration"
	"github.com/horuscamacho/noticias-pachuca-sub006/internal/logger"
)

const (
	// engagementWindow bounds the sync to recently published posts; older
	// posts stop accruing meaningful engagement.
	engagementWindow = 7 * 24 * time.Hour
	// engagementStaleAfter is the minimum age of a snapshot before refresh.
	engagementStaleAfter = time.Hour
	// engagementBatchSize bounds one sync job.
	engagementBatchSize = 20
)

// EngagementProcessor handles sync_engagement jobs: it refreshes platform
// metrics for a bounded batch of recently published posts with stale
// snapshots. A single post failing to refresh never fails the batch.
type EngagementProcessor struct {
	publisher integration.SocialPublisher
	posts     *database.PostRepository
	logger    logger.Logger
}

// NewEngagementProcessor creates the sync_engagement processor.
func NewEngagementProcessor(
	publisher integration.SocialPublisher,
	posts *database.PostRepository,
	log logger.Logger,
) *EngagementProcessor {
	return &EngagementProcessor{publisher: publisher, posts: posts, logger: log}
}

// Type implements Processor.
func (p *EngagementProcessor) Type() domain.JobType { return domain.JobTypeSyncEngagement }

// Process implements Processor.
func (p *EngagementProcessor) Process(ctx context.Context, job *domain.Job) (json.RawMessage, error) {
	stale, err := p.posts.ListStaleEngagement(ctx, engagementWindow, engagementStaleAfter, engagementBatchSize)
	if err != nil {
		return nil, fmt.Errorf("list stale engagement: %w", err)
	}

	var updated, failed int
	for i := range stale {
		post := &stale[i]
		if post.PlatformPostID == nil {
			continue
		}

		snapshot, fetchErr := p.publisher.FetchEngagement(ctx, *post.PlatformPostID)
		if fetchErr != nil {
			failed++
			p.logger.Warn("failed to fetch engagement",
				logger.String("post_id", post.ID),
				logger.String("platform_post_id", *post.PlatformPostID),
				logger.Error(fetchErr))
			continue
		}

		now := time.Now().UTC()
		e := domain.Engagement{
			Likes:       snapshot.Likes,
			Comments:    snapshot.Comments,
			Shares:      snapshot.Shares,
			Reach:       snapshot.Reach,
			LastUpdated: &now,
		}
		if updateErr := p.posts.UpdateEngagement(ctx, post.ID, e, e.Rate(), now); updateErr != nil {
			failed++
			p.logger.Error("failed to store engagement",
				logger.String("post_id", post.ID),
				logger.Error(updateErr))
			continue
		}
		updated++
	}

	p.logger.Info("engagement sync finished",
		logger.String("outlet_id", job.OutletID),
		logger.Int("candidates", len(stale)),
		logger.Int("updated", updated),
		logger.Int("failed", failed))

	return json.Marshal(map[string]any{
		"candidates": len(stale),
		"updated":    updated,
		"failed":     failed,
	})
}
