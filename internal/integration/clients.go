package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/horuscamacho/noticias-pachuca-sub006/internal/domain"
	"github.com/horuscamacho/noticias-pachuca-sub006/internal/logger"
)

const (
	defaultClientTimeout = 30 * time.Second
	maxErrorBodyBytes    = 2048
)

// ClientConfig points the pipeline at its sibling services.
type ClientConfig struct {
	ExtractorURL string        `yaml:"extractor_url"`
	GeneratorURL string        `yaml:"generator_url"`
	PublisherURL string        `yaml:"publisher_url"`
	Timeout      time.Duration `yaml:"timeout"`
}

// HTTPFetcher is a ContentFetcher backed by the extractor service.
type HTTPFetcher struct {
	url    string
	client *http.Client
	logger logger.Logger
}

// NewHTTPFetcher creates the extractor service client.
func NewHTTPFetcher(cfg ClientConfig, log logger.Logger) *HTTPFetcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultClientTimeout
	}
	return &HTTPFetcher{
		url:    cfg.ExtractorURL,
		client: &http.Client{Timeout: timeout},
		logger: log,
	}
}

// ExtractURLs implements ContentFetcher.
func (f *HTTPFetcher) ExtractURLs(ctx context.Context, outlet *domain.OutletConfig) ([]string, error) {
	var out struct {
		URLs []string `json:"urls"`
	}
	err := postJSON(ctx, f.client, f.url+"/api/v1/extract/urls",
		map[string]string{"base_url": outlet.BaseURL}, &out)
	if err != nil {
		return nil, &FetchError{URL: outlet.BaseURL, Timeout: isTimeout(err), Err: err}
	}
	f.logger.Debug("listed outlet urls",
		logger.String("outlet_id", outlet.ID),
		logger.Int("count", len(out.URLs)))
	return out.URLs, nil
}

// ExtractContent implements ContentFetcher.
func (f *HTTPFetcher) ExtractContent(ctx context.Context, url string, outlet *domain.OutletConfig) (*ExtractedContent, error) {
	var out ExtractedContent
	err := postJSON(ctx, f.client, f.url+"/api/v1/extract/content",
		map[string]string{"url": url, "base_url": outlet.BaseURL}, &out)
	if err != nil {
		return nil, &FetchError{URL: url, Timeout: isTimeout(err), Err: err}
	}
	return &out, nil
}

// HTTPGenerator is an AIGenerator backed by the generation service.
type HTTPGenerator struct {
	url    string
	client *http.Client
}

// NewHTTPGenerator creates the generation service client.
func NewHTTPGenerator(cfg ClientConfig) *HTTPGenerator {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultClientTimeout
	}
	return &HTTPGenerator{
		url:    cfg.GeneratorURL,
		client: &http.Client{Timeout: timeout},
	}
}

// Generate implements AIGenerator.
func (g *HTTPGenerator) Generate(ctx context.Context, req GenerationRequest) (*GenerationResult, error) {
	body := map[string]any{
		"system_prompt": req.SystemPrompt,
		"user_prompt":   req.UserPrompt,
		"max_tokens":    req.MaxTokens,
		"temperature":   req.Temperature,
	}

	var out GenerationResult
	if err := postJSON(ctx, g.client, g.url+"/api/v1/generate", body, &out); err != nil {
		var httpErr *httpStatusError
		if errors.As(err, &httpErr) {
			return nil, &ProviderError{Provider: "generation-service", StatusCode: httpErr.status, Err: err}
		}
		return nil, &ProviderError{Provider: "generation-service", Err: err}
	}
	return &out, nil
}

// HTTPPublisher is a SocialPublisher backed by the platform bridge service.
type HTTPPublisher struct {
	url    string
	client *http.Client
}

// NewHTTPPublisher creates the platform bridge client.
func NewHTTPPublisher(cfg ClientConfig) *HTTPPublisher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultClientTimeout
	}
	return &HTTPPublisher{
		url:    cfg.PublisherURL,
		client: &http.Client{Timeout: timeout},
	}
}

// Publish implements SocialPublisher.
func (p *HTTPPublisher) Publish(ctx context.Context, payload PublishPayload) (*PublishResult, error) {
	var out PublishResult
	if err := postJSON(ctx, p.client, p.url+"/api/v1/posts", payload, &out); err != nil {
		var httpErr *httpStatusError
		if errors.As(err, &httpErr) {
			return nil, &PublishError{HTTPStatus: httpErr.status, Body: httpErr.body}
		}
		return nil, &PublishError{Body: err.Error()}
	}
	return &out, nil
}

// FetchEngagement implements SocialPublisher.
func (p *HTTPPublisher) FetchEngagement(ctx context.Context, platformPostID string) (*EngagementMetrics, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/api/v1/posts/%s/engagement", p.url, platformPostID), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &PublishError{Body: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, &PublishError{HTTPStatus: resp.StatusCode, Body: string(body)}
	}

	var out EngagementMetrics
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode engagement response: %w", err)
	}
	return &out, nil
}

// httpStatusError carries a non-2xx response through the generic helper.
type httpStatusError struct {
	status int
	body   string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.status, e.body)
}

func postJSON(ctx context.Context, client *http.Client, url string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return &httpStatusError{status: resp.StatusCode, body: string(body)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func isTimeout(err error) bool {
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}
