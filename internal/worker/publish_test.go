package worker

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/horuscamacho/noticias-pachuca-sub006/internal/database"
	"github.com/horuscamacho/noticias-pachuca-sub006/internal/domain"
	"github.com/horuscamacho/noticias-pachuca-sub006/internal/integration"
	"github.com/horuscamacho/noticias-pachuca-sub006/internal/logger"
	"github.com/horuscamacho/noticias-pachuca-sub006/internal/metrics"
)

type fakePublisher struct {
	calls  int
	result *integration.PublishResult
	err    error
}

func (f *fakePublisher) Publish(_ context.Context, _ integration.PublishPayload) (*integration.PublishResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakePublisher) FetchEngagement(_ context.Context, _ string) (*integration.EngagementMetrics, error) {
	return nil, errors.New("not implemented")
}

func postColumns() []string {
	return []string{
		"id", "generated_content_id", "target_id", "outlet_id", "status", "text",
		"media_urls", "platform_post_id", "platform_post_url", "attempts",
		"likes", "comments", "shares", "reach", "engagement_rate", "engagement_updated",
		"published_at", "created_at", "updated_at",
	}
}

func postRow(status string, publishedAt driver.Value) []driver.Value {
	now := time.Now().UTC()
	return []driver.Value{
		"post-1", "gen-1", "target-1", "outlet-1", status, "texto del post",
		"{}", nil, nil, []byte("[]"),
		int64(0), int64(0), int64(0), int64(0), 0.0, nil,
		publishedAt, now, now,
	}
}

func targetRows(published, limit int, resetAt time.Time) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{
		"id", "outlet_id", "name", "platform", "account_ref", "is_active",
		"daily_post_limit", "posts_published_today", "daily_counter_reset_at",
		"created_at", "updated_at",
	}).AddRow("target-1", "outlet-1", "FB Principal", "facebook", "acct-1", true,
		limit, published, resetAt, now, now)
}

func newPublishProcessor(t *testing.T, pub *fakePublisher) (*PublishProcessor, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newMockDB(t)
	return NewPublishProcessor(pub,
		database.NewContentRepository(db),
		database.NewTargetRepository(db),
		database.NewPostRepository(db),
		metrics.NewTracker(prometheus.NewRegistry()),
		logger.NewNopLogger()), mock
}

func publishJob(t *testing.T) *domain.Job {
	t.Helper()
	payload, _ := json.Marshal(PublishJobPayload{GeneratedContentID: "gen-1", TargetID: "target-1"})
	job, err := domain.NewJob(domain.JobTypePublish, "outlet-1", payload, time.Now().UTC())
	if err != nil {
		t.Fatalf("NewJob() error = %v", err)
	}
	return &job
}

func TestPublishProcessorSkipsPublishedPost(t *testing.T) {
	pub := &fakePublisher{}
	proc, mock := newPublishProcessor(t, pub)

	published := time.Now().UTC().Add(-time.Hour)
	mock.ExpectQuery("SELECT (.+) FROM posts").
		WithArgs("gen-1", "target-1").
		WillReturnRows(sqlmock.NewRows(postColumns()).AddRow(postRow("published", published)...))

	result, err := proc.Process(context.Background(), publishJob(t))
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(result, &out); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if out["skipped"] != "already published" {
		t.Errorf("result = %v, want skip", out)
	}
	if pub.calls != 0 {
		t.Errorf("platform calls = %d, want 0", pub.calls)
	}
}

func TestPublishProcessorQuotaExhaustedIsTerminal(t *testing.T) {
	pub := &fakePublisher{}
	proc, mock := newPublishProcessor(t, pub)

	tomorrow := time.Now().UTC().Add(24 * time.Hour)
	mock.ExpectQuery("SELECT (.+) FROM posts").
		WillReturnRows(sqlmock.NewRows(postColumns()).AddRow(postRow("draft", nil)...))
	mock.ExpectQuery("SELECT (.+) FROM publishing_targets").
		WithArgs("target-1").
		WillReturnRows(targetRows(5, 5, tomorrow))

	_, err := proc.Process(context.Background(), publishJob(t))
	if !errors.Is(err, domain.ErrQuotaExceeded) {
		t.Fatalf("Process() error = %v, want quota exceeded", err)
	}
	if domain.Retryable(err) {
		t.Error("quota exhaustion must not be retried")
	}
	if pub.calls != 0 {
		t.Errorf("platform calls = %d, want 0", pub.calls)
	}
}

func TestPublishProcessorHappyPath(t *testing.T) {
	pub := &fakePublisher{result: &integration.PublishResult{
		PlatformPostID:  "fb-123",
		PlatformPostURL: "https://facebook.com/fb-123",
	}}
	proc, mock := newPublishProcessor(t, pub)

	tomorrow := time.Now().UTC().Add(24 * time.Hour)
	mock.ExpectQuery("SELECT (.+) FROM posts").
		WillReturnRows(sqlmock.NewRows(postColumns()).AddRow(postRow("draft", nil)...))
	mock.ExpectQuery("SELECT (.+) FROM publishing_targets").
		WillReturnRows(targetRows(2, 5, tomorrow))
	mock.ExpectExec("UPDATE posts").
		WillReturnResult(sqlmock.NewResult(0, 1)) // claim
	mock.ExpectExec("UPDATE publishing_targets").
		WillReturnResult(sqlmock.NewResult(0, 1)) // reserve slot
	mock.ExpectExec("UPDATE posts").
		WillReturnResult(sqlmock.NewResult(0, 1)) // mark published

	result, err := proc.Process(context.Background(), publishJob(t))
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(result, &out); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if out["platform_post_id"] != "fb-123" {
		t.Errorf("result = %v", out)
	}
	if pub.calls != 1 {
		t.Errorf("platform calls = %d, want 1", pub.calls)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPublishProcessorReleasesSlotOnPlatformFailure(t *testing.T) {
	pub := &fakePublisher{err: &integration.PublishError{HTTPStatus: 503, Body: "unavailable"}}
	proc, mock := newPublishProcessor(t, pub)

	tomorrow := time.Now().UTC().Add(24 * time.Hour)
	mock.ExpectQuery("SELECT (.+) FROM posts").
		WillReturnRows(sqlmock.NewRows(postColumns()).AddRow(postRow("draft", nil)...))
	mock.ExpectQuery("SELECT (.+) FROM publishing_targets").
		WillReturnRows(targetRows(2, 5, tomorrow))
	mock.ExpectExec("UPDATE posts").
		WillReturnResult(sqlmock.NewResult(0, 1)) // claim
	mock.ExpectExec("UPDATE publishing_targets").
		WillReturnResult(sqlmock.NewResult(0, 1)) // reserve slot
	mock.ExpectExec("UPDATE publishing_targets").
		WillReturnResult(sqlmock.NewResult(0, 1)) // release slot
	mock.ExpectExec("UPDATE posts").
		WillReturnResult(sqlmock.NewResult(0, 1)) // record failure

	_, err := proc.Process(context.Background(), publishJob(t))
	if err == nil {
		t.Fatal("Process() expected platform error")
	}
	if !domain.Retryable(err) {
		t.Error("5xx platform failure must stay retryable")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPublishProcessorConcurrentClaimLost(t *testing.T) {
	pub := &fakePublisher{}
	proc, mock := newPublishProcessor(t, pub)

	tomorrow := time.Now().UTC().Add(24 * time.Hour)
	published := time.Now().UTC()
	mock.ExpectQuery("SELECT (.+) FROM posts").
		WillReturnRows(sqlmock.NewRows(postColumns()).AddRow(postRow("draft", nil)...))
	mock.ExpectQuery("SELECT (.+) FROM publishing_targets").
		WillReturnRows(targetRows(2, 5, tomorrow))
	mock.ExpectExec("UPDATE posts").
		WillReturnResult(sqlmock.NewResult(0, 0)) // claim lost
	mock.ExpectQuery("SELECT (.+) FROM posts").
		WillReturnRows(sqlmock.NewRows(postColumns()).AddRow(postRow("published", published)...))

	result, err := proc.Process(context.Background(), publishJob(t))
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(result, &out); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if out["skipped"] != "published concurrently" {
		t.Errorf("result = %v, want concurrent skip", out)
	}
	if pub.calls != 0 {
		t.Errorf("platform calls = %d, want 0", pub.calls)
	}
}
