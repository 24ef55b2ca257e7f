package integration

import (
	"fmt"
	"net/http"
)

// FetchError is returned by ContentFetcher implementations.
type FetchError struct {
	URL     string
	Timeout bool
	Err     error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Transient reports whether the fetch is worth retrying. Timeouts and
// network-level failures are; a page that parses to nothing is not, but that
// case is reported as a nil result, not a FetchError.
func (e *FetchError) Transient() bool { return true }

// ProviderError is returned by AIGenerator implementations.
type ProviderError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s (status %d): %v", e.Provider, e.StatusCode, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Transient reports whether the provider call is worth retrying: rate limits
// and server-side failures are, client errors (bad prompt, auth) are not.
func (e *ProviderError) Transient() bool {
	if e.StatusCode == 0 || e.StatusCode == http.StatusTooManyRequests {
		return true
	}
	return e.StatusCode >= http.StatusInternalServerError
}

// PublishError is returned by SocialPublisher implementations.
type PublishError struct {
	HTTPStatus int
	Body       string
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("platform publish failed (status %d): %s", e.HTTPStatus, e.Body)
}

// Transient reports whether the publish call is worth retrying. 4xx responses
// other than rate limiting indicate a payload problem and are terminal.
func (e *PublishError) Transient() bool {
	if e.HTTPStatus == 0 || e.HTTPStatus == http.StatusTooManyRequests {
		return true
	}
	return e.HTTPStatus >= http.StatusInternalServerError
}
