package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PostStatus represents the state of one attempted publication.
type PostStatus string

const (
	PostStatusDraft      PostStatus = "draft"
	PostStatusScheduled  PostStatus = "scheduled"
	PostStatusPublishing PostStatus = "publishing"
	PostStatusPublished  PostStatus = "published"
	PostStatusFailed     PostStatus = "failed"
	PostStatusCancelled  PostStatus = "cancelled"
)

// PublishAttempt is one entry in a post's attempt log.
type PublishAttempt struct {
	Attempt     int       `json:"attempt"`
	Error       string    `json:"error,omitempty"`
	AttemptedAt time.Time `json:"attempted_at"`
}

// PublishAttempts is the ordered attempt log, stored as JSONB.
type PublishAttempts []PublishAttempt

// Value implements driver.Valuer for JSONB storage.
func (a PublishAttempts) Value() (driver.Value, error) {
	if a == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(a)
}

// Scan implements sql.Scanner for JSONB storage.
func (a *PublishAttempts) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*a = nil
		return nil
	case []byte:
		return json.Unmarshal(v, a)
	case string:
		return json.Unmarshal([]byte(v), a)
	default:
		return fmt.Errorf("publish attempts: unsupported type %T", src)
	}
}

// Engagement is a snapshot of platform metrics for a published post.
type Engagement struct {
	Likes       int64      `db:"likes"              json:"likes"`
	Comments    int64      `db:"comments"           json:"comments"`
	Shares      int64      `db:"shares"             json:"shares"`
	Reach       int64      `db:"reach"              json:"reach"`
	LastUpdated *time.Time `db:"engagement_updated" json:"last_updated,omitempty"`
}

// Rate returns (likes+comments+shares)/reach, or 0 when reach is unknown.
func (e Engagement) Rate() float64 {
	if e.Reach <= 0 {
		return 0
	}
	return float64(e.Likes+e.Comments+e.Shares) / float64(e.Reach)
}

// Stale reports whether the snapshot is older than maxAge.
func (e Engagement) Stale(now time.Time, maxAge time.Duration) bool {
	if e.LastUpdated == nil {
		return true
	}
	return now.Sub(*e.LastUpdated) > maxAge
}

// Post is one attempted publication of a generated content item to a target.
// The (GeneratedContentID, TargetID) pair is unique and backs the publish
// idempotency guard.
type Post struct {
	ID                 string          `db:"id"                   json:"id"`
	GeneratedContentID string          `db:"generated_content_id" json:"generated_content_id"`
	TargetID           string          `db:"target_id"            json:"target_id"`
	OutletID           string          `db:"outlet_id"            json:"outlet_id"`
	Status             PostStatus      `db:"status"               json:"status"`
	Text               string          `db:"text"                 json:"text"`
	MediaURLs          []string        `db:"-"                    json:"media_urls,omitempty"`
	PlatformPostID     *string         `db:"platform_post_id"     json:"platform_post_id,omitempty"`
	PlatformPostURL    *string         `db:"platform_post_url"    json:"platform_post_url,omitempty"`
	Attempts           PublishAttempts `db:"attempts"             json:"attempts,omitempty"`
	Engagement         Engagement      `db:"-"                    json:"engagement"`
	EngagementRate     float64         `db:"engagement_rate"      json:"engagement_rate"`
	PublishedAt        *time.Time      `db:"published_at"         json:"published_at,omitempty"`
	CreatedAt          time.Time       `db:"created_at"           json:"created_at"`
	UpdatedAt          time.Time       `db:"updated_at"           json:"updated_at"`
}

// NewPost creates a draft post for one (generated content, target) pair.
func NewPost(generatedContentID, targetID, outletID, text string, mediaURLs []string, now time.Time) (Post, error) {
	if generatedContentID == "" {
		return Post{}, fmt.Errorf("%w: generated_content_id is required", ErrValidation)
	}
	if targetID == "" {
		return Post{}, fmt.Errorf("%w: target_id is required", ErrValidation)
	}
	return Post{
		ID:                 uuid.NewString(),
		GeneratedContentID: generatedContentID,
		TargetID:           targetID,
		OutletID:           outletID,
		Status:             PostStatusDraft,
		Text:               text,
		MediaURLs:          mediaURLs,
		CreatedAt:          now,
		UpdatedAt:          now,
	}, nil
}
