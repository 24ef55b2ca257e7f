package domain

import "time"

// PublishingTarget is one destination account/page on the social platform.
// postsPublishedToday only counts successful publishes and is zeroed when the
// current time crosses dailyCounterResetAt.
type PublishingTarget struct {
	ID                  string    `db:"id"                     json:"id"`
	OutletID            string    `db:"outlet_id"              json:"outlet_id"`
	Name                string    `db:"name"                   json:"name"`
	Platform            string    `db:"platform"               json:"platform"`
	AccountRef          string    `db:"account_ref"            json:"account_ref"`
	IsActive            bool      `db:"is_active"              json:"is_active"`
	DailyPostLimit      int       `db:"daily_post_limit"       json:"daily_post_limit"`
	PostsPublishedToday int       `db:"posts_published_today"  json:"posts_published_today"`
	DailyCounterResetAt time.Time `db:"daily_counter_reset_at" json:"daily_counter_reset_at"`
	CreatedAt           time.Time `db:"created_at"             json:"created_at"`
	UpdatedAt           time.Time `db:"updated_at"             json:"updated_at"`
}

// NeedsCounterReset reports whether the stored reset boundary is in the past.
// The counter is zeroed lazily on the next quota check that observes this.
func (t *PublishingTarget) NeedsCounterReset(now time.Time) bool {
	return !now.Before(t.DailyCounterResetAt)
}

// CanPublishToday reports whether the target has remaining daily quota.
func (t *PublishingTarget) CanPublishToday(now time.Time) bool {
	if !t.IsActive {
		return false
	}
	if t.NeedsCounterReset(now) {
		return t.DailyPostLimit > 0
	}
	return t.PostsPublishedToday < t.DailyPostLimit
}

// RemainingToday returns how many more posts the target may publish before
// the next counter reset.
func (t *PublishingTarget) RemainingToday(now time.Time) int {
	if !t.IsActive {
		return 0
	}
	if t.NeedsCounterReset(now) {
		return t.DailyPostLimit
	}
	remaining := t.DailyPostLimit - t.PostsPublishedToday
	if remaining < 0 {
		return 0
	}
	return remaining
}

// NextResetBoundary returns the reset timestamp that should replace the
// current one once it has been crossed: the next midnight UTC after now.
func NextResetBoundary(now time.Time) time.Time {
	y, m, d := now.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
}
