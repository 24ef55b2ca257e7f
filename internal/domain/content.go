package domain

import (
	"strings"
	"time"
)

// ContentStatus represents the extraction state of a content item.
type ContentStatus string

const (
	ContentStatusPending   ContentStatus = "pending"
	ContentStatusExtracted ContentStatus = "extracted"
	ContentStatusGenerated ContentStatus = "generated"
	ContentStatusFailed    ContentStatus = "failed"
)

// ContentItem is one discovered article. Failed extractions keep their row so
// history remains queryable; items are never deleted by the pipeline.
type ContentItem struct {
	ID           string        `db:"id"            json:"id"`
	OutletID     string        `db:"outlet_id"     json:"outlet_id"`
	URL          string        `db:"url"           json:"url"`
	Title        string        `db:"title"         json:"title"`
	Body         string        `db:"body"          json:"body"`
	Author       string        `db:"author"        json:"author"`
	Category     string        `db:"category"      json:"category"`
	ImageURLs    []string      `db:"-"             json:"image_urls"`
	PublishedAt  *time.Time    `db:"published_at"  json:"published_at,omitempty"`
	Status       ContentStatus `db:"status"        json:"status"`
	ErrorMessage *string       `db:"error_message" json:"error_message,omitempty"`
	ExtractedAt  *time.Time    `db:"extracted_at"  json:"extracted_at,omitempty"`
	CreatedAt    time.Time     `db:"created_at"    json:"created_at"`
	UpdatedAt    time.Time     `db:"updated_at"    json:"updated_at"`
}

// GeneratedContent is one AI-edited rendition of a content item. The
// (OriginalContentID, TemplateID) pair is the generation idempotency key.
type GeneratedContent struct {
	ID                string    `db:"id"                  json:"id"`
	OriginalContentID string    `db:"original_content_id" json:"original_content_id"`
	TemplateID        string    `db:"template_id"         json:"template_id"`
	OutletID          string    `db:"outlet_id"           json:"outlet_id"`
	Content           string    `db:"content"             json:"content"`
	QualityScore      float64   `db:"quality_score"       json:"quality_score"`
	Model             string    `db:"model"               json:"model"`
	PromptTokens      int       `db:"prompt_tokens"       json:"prompt_tokens"`
	CompletionTokens  int       `db:"completion_tokens"   json:"completion_tokens"`
	CostUSD           float64   `db:"cost_usd"            json:"cost_usd"`
	CreatedAt         time.Time `db:"created_at"          json:"created_at"`
}

// Quality scoring weights. The score rewards output in a readable length
// band and keyword coverage, and penalizes near-verbatim copies of the
// source.
const (
	qualityLengthMin    = 280
	qualityLengthMax    = 2400
	qualityLengthWeight = 0.4
	keywordWeight       = 0.3
	originalityWeight   = 0.3
	similarityShingle   = 4
)

// ScoreQuality heuristically rates generated copy against its source on a
// 0..1 scale. It is a pure function; the generation processor persists the
// score alongside the content.
func ScoreQuality(source, generated string, keywords []string) float64 {
	var score float64

	n := len(generated)
	switch {
	case n >= qualityLengthMin && n <= qualityLengthMax:
		score += qualityLengthWeight
	case n > 0:
		score += qualityLengthWeight / 2
	}

	if len(keywords) > 0 {
		lower := strings.ToLower(generated)
		hits := 0
		for _, kw := range keywords {
			if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
				hits++
			}
		}
		score += keywordWeight * float64(hits) / float64(len(keywords))
	} else {
		score += keywordWeight
	}

	score += originalityWeight * (1 - shingleSimilarity(source, generated))

	if score > 1 {
		score = 1
	}
	return score
}

// shingleSimilarity returns the fraction of the generated text's word
// 4-grams that also appear verbatim in the source.
func shingleSimilarity(source, generated string) float64 {
	srcWords := strings.Fields(strings.ToLower(source))
	genWords := strings.Fields(strings.ToLower(generated))
	if len(genWords) < similarityShingle || len(srcWords) < similarityShingle {
		return 0
	}

	srcShingles := make(map[string]struct{})
	for i := 0; i+similarityShingle <= len(srcWords); i++ {
		srcShingles[strings.Join(srcWords[i:i+similarityShingle], " ")] = struct{}{}
	}

	total := len(genWords) - similarityShingle + 1
	matched := 0
	for i := 0; i+similarityShingle <= len(genWords); i++ {
		if _, ok := srcShingles[strings.Join(genWords[i:i+similarityShingle], " ")]; ok {
			matched++
		}
	}
	return float64(matched) / float64(total)
}
