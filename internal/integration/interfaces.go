// Package integration defines the contracts for external collaborators the
// pipeline depends on: content scraping, AI generation and the social
// platform. Concrete clients live outside this repository; the pipeline only
// programs against these interfaces.
package integration

import (
	"context"
	"time"

	"github.com/horuscamacho/noticias-pachuca-sub006/internal/domain"
)

// ExtractedContent is the scraped representation of one article.
type ExtractedContent struct {
	Title       string     `json:"title"`
	Body        string     `json:"body"`
	Author      string     `json:"author"`
	Category    string     `json:"category"`
	ImageURLs   []string   `json:"image_urls"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

// ContentFetcher discovers article URLs and extracts their content.
// Implementations fail with *FetchError.
type ContentFetcher interface {
	// ExtractURLs returns the article URLs currently listed on the outlet.
	ExtractURLs(ctx context.Context, outlet *domain.OutletConfig) ([]string, error)

	// ExtractContent scrapes one article URL.
	ExtractContent(ctx context.Context, url string, outlet *domain.OutletConfig) (*ExtractedContent, error)
}

// GenerationRequest is one prompt pair sent to the AI provider.
type GenerationRequest struct {
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
	Temperature  float64
}

// Usage is the provider-reported token accounting for one generation.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// GenerationResult is the provider output for one generation call.
type GenerationResult struct {
	Content      string `json:"content"`
	Model        string `json:"model"`
	Usage        Usage  `json:"usage"`
	FinishReason string `json:"finish_reason"`
}

// AIGenerator produces edited/social-ready copy from prompts.
// Implementations fail with *ProviderError.
type AIGenerator interface {
	Generate(ctx context.Context, req GenerationRequest) (*GenerationResult, error)
}

// PublishPayload is the platform-ready content for one post.
type PublishPayload struct {
	AccountRef string   `json:"account_ref"`
	Text       string   `json:"text"`
	MediaURLs  []string `json:"media_urls,omitempty"`
}

// PublishResult identifies the post created on the platform.
type PublishResult struct {
	PlatformPostID  string `json:"platform_post_id"`
	PlatformPostURL string `json:"platform_post_url"`
}

// EngagementMetrics is one platform metrics snapshot for a post.
type EngagementMetrics struct {
	Likes    int64 `json:"likes"`
	Comments int64 `json:"comments"`
	Shares   int64 `json:"shares"`
	Reach    int64 `json:"reach"`
}

// SocialPublisher publishes posts and reads their engagement.
// Implementations fail with *PublishError.
type SocialPublisher interface {
	Publish(ctx context.Context, payload PublishPayload) (*PublishResult, error)
	FetchEngagement(ctx context.Context, platformPostID string) (*EngagementMetrics, error)
}
