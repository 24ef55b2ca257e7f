package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/horuscamacho/noticias-pachuca-sub006/internal/database"
	"github.com/horuscamacho/noticias-pachuca-sub006/internal/domain"
	"github.com/horuscamacho/noticias-pachuca-sub006/internal/integration"
	"github.com/horuscamacho/noticias-pachuca-sub006/internal/logger"
	"github.com/horuscamacho/noticias-pachuca-sub006/internal/queue"
)

// URLDiscoveryProcessor handles extract_urls jobs: it lists the outlet's
// current article URLs, records the new ones and chains one extract_content
// job per new item. Known URLs are skipped via the (outlet, url) uniqueness
// guard, so rediscovery never fans out duplicate work.
type URLDiscoveryProcessor struct {
	fetcher    integration.ContentFetcher
	outlets    *database.OutletRepository
	contents   *database.ContentRepository
	dispatcher *queue.Dispatcher
	logger     logger.Logger
}

// NewURLDiscoveryProcessor creates the extract_urls processor.
func NewURLDiscoveryProcessor(
	fetcher integration.ContentFetcher,
	outlets *database.OutletRepository,
	contents *database.ContentRepository,
	dispatcher *queue.Dispatcher,
	log logger.Logger,
) *URLDiscoveryProcessor {
	return &URLDiscoveryProcessor{
		fetcher:    fetcher,
		outlets:    outlets,
		contents:   contents,
		dispatcher: dispatcher,
		logger:     log,
	}
}

// Type implements Processor.
func (p *URLDiscoveryProcessor) Type() domain.JobType { return domain.JobTypeExtractURLs }

// Process implements Processor.
func (p *URLDiscoveryProcessor) Process(ctx context.Context, job *domain.Job) (json.RawMessage, error) {
	outlet, err := p.outlets.GetByID(ctx, job.OutletID)
	if err != nil {
		return nil, fmt.Errorf("load outlet %s: %w", job.OutletID, err)
	}
	if !outlet.IsActive {
		// The outlet was paused after this job was enqueued. In-flight jobs
		// finish; they just stop producing new work.
		return json.Marshal(map[string]any{"skipped": "outlet paused"})
	}

	urls, err := p.fetcher.ExtractURLs(ctx, outlet)
	if err != nil {
		return nil, fmt.Errorf("extract urls for %s: %w", outlet.Name, err)
	}

	now := time.Now().UTC()
	var newItems, chained int
	for _, url := range urls {
		item := domain.ContentItem{
			ID:        uuid.NewString(),
			OutletID:  outlet.ID,
			URL:       url,
			Status:    domain.ContentStatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		created, createErr := p.contents.CreateDiscovered(ctx, &item)
		if createErr != nil {
			return nil, fmt.Errorf("record discovered url: %w", createErr)
		}
		if !created {
			continue
		}
		newItems++

		opts := queue.EnqueueOptions{
			Priority:        job.Priority,
			RelatedEntityID: item.ID,
		}
		if job.BatchID != nil {
			opts.BatchID = *job.BatchID
		}
		_, enqErr := p.dispatcher.Enqueue(ctx, domain.JobTypeExtractContent, outlet.ID,
			ExtractContentPayload{ContentID: item.ID, URL: item.URL}, opts)
		if enqErr != nil {
			// The item row exists; the next extraction cycle picks it up as
			// pending. Chain failures never fail the discovery job.
			p.logger.Warn("failed to chain extraction job",
				logger.String("content_id", item.ID),
				logger.Error(enqErr))
			continue
		}
		chained++
	}

	p.logger.Info("url discovery finished",
		logger.String("outlet_id", outlet.ID),
		logger.Int("listed", len(urls)),
		logger.Int("new", newItems),
		logger.Int("chained", chained))

	return json.Marshal(map[string]any{
		"listed":  len(urls),
		"new":     newItems,
		"chained": chained,
	})
}

// ContentExtractionProcessor handles extract_content jobs: it scrapes one
// article URL and stores the result on the content item.
type ContentExtractionProcessor struct {
	fetcher  integration.ContentFetcher
	outlets  *database.OutletRepository
	contents *database.ContentRepository
	logger   logger.Logger
}

// NewContentExtractionProcessor creates the extract_content processor.
func NewContentExtractionProcessor(
	fetcher integration.ContentFetcher,
	outlets *database.OutletRepository,
	contents *database.ContentRepository,
	log logger.Logger,
) *ContentExtractionProcessor {
	return &ContentExtractionProcessor{
		fetcher:  fetcher,
		outlets:  outlets,
		contents: contents,
		logger:   log,
	}
}

// Type implements Processor.
func (p *ContentExtractionProcessor) Type() domain.JobType { return domain.JobTypeExtractContent }

// Process implements Processor.
func (p *ContentExtractionProcessor) Process(ctx context.Context, job *domain.Job) (json.RawMessage, error) {
	var payload ExtractContentPayload
	if err := decodePayload(job, &payload); err != nil {
		return nil, err
	}

	item, err := p.contents.GetByID(ctx, payload.ContentID)
	if err != nil {
		return nil, fmt.Errorf("load content item %s: %w", payload.ContentID, err)
	}
	if item.Status == domain.ContentStatusExtracted || item.Status == domain.ContentStatusGenerated {
		// Duplicate delivery or manual retry of work that already finished.
		return json.Marshal(map[string]any{"skipped": "already extracted", "content_id": item.ID})
	}

	outlet, err := p.outlets.GetByID(ctx, item.OutletID)
	if err != nil {
		return nil, fmt.Errorf("load outlet %s: %w", item.OutletID, err)
	}

	extracted, err := p.fetcher.ExtractContent(ctx, item.URL, outlet)
	if err != nil {
		now := time.Now().UTC()
		if markErr := p.contents.MarkFailed(ctx, item.ID, err.Error(), now); markErr != nil {
			p.logger.Error("failed to record extraction failure",
				logger.String("content_id", item.ID),
				logger.Error(markErr))
		}
		return nil, fmt.Errorf("extract %s: %w", item.URL, err)
	}

	item.Title = extracted.Title
	item.Body = extracted.Body
	item.Author = extracted.Author
	item.Category = extracted.Category
	item.ImageURLs = extracted.ImageURLs
	item.PublishedAt = extracted.PublishedAt

	now := time.Now().UTC()
	if err := p.contents.MarkExtracted(ctx, item, now); err != nil {
		return nil, fmt.Errorf("store extracted content: %w", err)
	}

	p.logger.Debug("content extracted",
		logger.String("content_id", item.ID),
		logger.String("url", item.URL),
		logger.Int("body_len", len(item.Body)))

	return json.Marshal(map[string]any{
		"content_id": item.ID,
		"title":      item.Title,
		"body_len":   len(item.Body),
		"images":     len(item.ImageURLs),
	})
}
