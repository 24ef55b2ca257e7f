package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/horuscamacho/noticias-pachuca-sub006/internal/database"
	"github.com/horuscamacho/noticias-pachuca-sub006/internal/domain"
	"github.com/horuscamacho/noticias-pachuca-sub006/internal/integration"
	"github.com/horuscamacho/noticias-pachuca-sub006/internal/logger"
)

// promptTemplate is one named generation recipe.
type promptTemplate struct {
	SystemPrompt string
	UserFormat   string
	MaxTokens    int
	Temperature  float64
}

// promptTemplates are the known generation recipes, keyed by template ID.
// Outlets reference these via defaultTemplateID.
var promptTemplates = map[string]promptTemplate{
	"rewrite-news": {
		SystemPrompt: "Eres un editor de noticias. Reescribe el artículo con tus propias " +
			"palabras, conservando los hechos, en un tono informativo y neutral.",
		UserFormat:  "Título: %s\n\nArtículo:\n%s",
		MaxTokens:   1200,
		Temperature: 0.7,
	},
	"social-summary": {
		SystemPrompt: "Eres un community manager. Resume el artículo en un texto breve y " +
			"atractivo para redes sociales, sin inventar datos.",
		UserFormat:  "Título: %s\n\nArtículo:\n%s",
		MaxTokens:   400,
		Temperature: 0.8,
	},
	"breaking-brief": {
		SystemPrompt: "Eres un redactor de última hora. Escribe una nota corta y urgente " +
			"con los hechos esenciales del artículo.",
		UserFormat:  "Título: %s\n\nArtículo:\n%s",
		MaxTokens:   600,
		Temperature: 0.5,
	},
}

const (
	maxContentKeywords = 5
	minKeywordLength   = 5
)

// GenerationProcessor handles generate_content jobs: it prompts the AI
// provider with the extracted article and persists exactly one rendition per
// (content, template) pair. The uniqueness guard on the store makes the
// duplicate-delivery race safe; the lookup here only avoids paying for a
// second provider call. A job flagged as an explicit retry skips the guard
// and replaces the stored rendition in place.
type GenerationProcessor struct {
	generator integration.AIGenerator
	contents  *database.ContentRepository
	logger    logger.Logger
}

// NewGenerationProcessor creates the generate_content processor.
func NewGenerationProcessor(
	generator integration.AIGenerator,
	contents *database.ContentRepository,
	log logger.Logger,
) *GenerationProcessor {
	return &GenerationProcessor{generator: generator, contents: contents, logger: log}
}

// Type implements Processor.
func (p *GenerationProcessor) Type() domain.JobType { return domain.JobTypeGenerateContent }

// Process implements Processor.
func (p *GenerationProcessor) Process(ctx context.Context, job *domain.Job) (json.RawMessage, error) {
	var payload GeneratePayload
	if err := decodePayload(job, &payload); err != nil {
		return nil, err
	}

	existing, err := p.contents.FindGeneration(ctx, payload.OriginalContentID, payload.TemplateID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("check existing generation: %w", err)
	}
	if existing != nil && !job.IsRetry {
		return json.Marshal(map[string]any{
			"skipped":       "already generated",
			"generation_id": existing.ID,
		})
	}

	tmpl, ok := promptTemplates[payload.TemplateID]
	if !ok {
		return nil, fmt.Errorf("%w: unknown template %q", domain.ErrValidation, payload.TemplateID)
	}

	item, err := p.contents.GetByID(ctx, payload.OriginalContentID)
	if err != nil {
		return nil, fmt.Errorf("load content item %s: %w", payload.OriginalContentID, err)
	}
	if item.Status != domain.ContentStatusExtracted && item.Status != domain.ContentStatusGenerated {
		return nil, fmt.Errorf("%w: content %s is %s, not extracted",
			domain.ErrValidation, item.ID, item.Status)
	}

	result, err := p.generator.Generate(ctx, integration.GenerationRequest{
		SystemPrompt: tmpl.SystemPrompt,
		UserPrompt:   fmt.Sprintf(tmpl.UserFormat, item.Title, item.Body),
		MaxTokens:    tmpl.MaxTokens,
		Temperature:  tmpl.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("generate for content %s: %w", item.ID, err)
	}

	keywords := contentKeywords(item.Title)
	now := time.Now().UTC()
	generation := domain.GeneratedContent{
		ID:                uuid.NewString(),
		OriginalContentID: item.ID,
		TemplateID:        payload.TemplateID,
		OutletID:          item.OutletID,
		Content:           result.Content,
		QualityScore:      domain.ScoreQuality(item.Body, result.Content, keywords),
		Model:             result.Model,
		PromptTokens:      result.Usage.PromptTokens,
		CompletionTokens:  result.Usage.CompletionTokens,
		CostUSD:           integration.Cost(result.Model, result.Usage),
		CreatedAt:         now,
	}

	if existing != nil {
		// Explicit retry: the rendition keeps its identity so downstream
		// posts stay linked; only the generated fields are replaced.
		generation.ID = existing.ID
		generation.CreatedAt = existing.CreatedAt
		if err := p.contents.UpdateGeneration(ctx, &generation); err != nil {
			return nil, fmt.Errorf("replace generation: %w", err)
		}
	} else if err := p.contents.CreateGeneration(ctx, &generation); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			// A concurrent job won the insert race. Its rendition stands;
			// the provider call here is sunk cost, not an error.
			p.logger.Warn("concurrent generation won, discarding duplicate",
				logger.String("content_id", item.ID),
				logger.String("template_id", payload.TemplateID))
			return json.Marshal(map[string]any{"skipped": "concurrent duplicate"})
		}
		return nil, fmt.Errorf("persist generation: %w", err)
	}
	if err := p.contents.MarkGenerated(ctx, item.ID, now); err != nil {
		return nil, fmt.Errorf("flip content to generated: %w", err)
	}

	p.logger.Info("content generated",
		logger.String("content_id", item.ID),
		logger.String("generation_id", generation.ID),
		logger.String("model", generation.Model),
		logger.Float64("quality_score", generation.QualityScore),
		logger.Float64("cost_usd", generation.CostUSD))

	return json.Marshal(map[string]any{
		"generation_id": generation.ID,
		"quality_score": generation.QualityScore,
		"model":         generation.Model,
		"cost_usd":      generation.CostUSD,
		"total_tokens":  generation.PromptTokens + generation.CompletionTokens,
	})
}

// contentKeywords derives scoring keywords from the article title: the first
// few long-enough words, punctuation stripped.
func contentKeywords(title string) []string {
	var keywords []string
	for _, word := range strings.Fields(title) {
		word = strings.Trim(word, ".,;:¡!¿?\"'()")
		if len(word) < minKeywordLength {
			continue
		}
		keywords = append(keywords, word)
		if len(keywords) == maxContentKeywords {
			break
		}
	}
	return keywords
}
