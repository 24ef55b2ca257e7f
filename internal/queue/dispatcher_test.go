package queue

import (
	"context"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"github.com/horuscamacho/noticias-pachuca-sub006/internal/database"
	"github.com/horuscamacho/noticias-pachuca-sub006/internal/domain"
	"github.com/horuscamacho/noticias-pachuca-sub006/internal/logger"
	"github.com/horuscamacho/noticias-pachuca-sub006/internal/metrics"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, sqlmock.Sqlmock, *miniredis.Miniredis) {
	t.Helper()

	rawDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { rawDB.Close() })
	db := sqlx.NewDb(rawDB, "sqlmock")

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})

	jobs := database.NewJobRepository(db)
	tracker := metrics.NewTracker(prometheus.NewRegistry())
	return NewDispatcher(jobs, rdb, tracker, logger.NewNopLogger()), mock, mr
}

func TestSetupTopologyIdempotent(t *testing.T) {
	d, _, mr := newTestDispatcher(t)
	ctx := context.Background()

	if err := d.SetupTopology(ctx); err != nil {
		t.Fatalf("SetupTopology() error = %v", err)
	}
	if err := d.SetupTopology(ctx); err != nil {
		t.Fatalf("SetupTopology() second call error = %v", err)
	}
	for _, lane := range Lanes() {
		if !mr.Exists(lane.StreamKey()) {
			t.Errorf("stream %s not created", lane.StreamKey())
		}
	}
}

func TestEnqueueWritesRowAndStreams(t *testing.T) {
	d, mock, mr := newTestDispatcher(t)
	ctx := context.Background()

	mock.ExpectExec("INSERT INTO jobs").
		WillReturnResult(sqlmock.NewResult(0, 1))

	job, err := d.Enqueue(ctx, domain.JobTypeExtractURLs, "outlet-1", nil, EnqueueOptions{Priority: 2})
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if job.Status != domain.JobStatusPending {
		t.Errorf("status = %s, want pending", job.Status)
	}
	if job.MaxRetries != PolicyFor(LaneExtraction).MaxRetries {
		t.Errorf("max retries = %d, want lane default", job.MaxRetries)
	}

	msgs, err := mr.Stream(LaneExtraction.StreamKey())
	if err != nil {
		t.Fatalf("read stream: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("stream has %d messages, want 1", len(msgs))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestEnqueueWithDelayParksInDelayedSet(t *testing.T) {
	d, mock, mr := newTestDispatcher(t)
	ctx := context.Background()

	mock.ExpectExec("INSERT INTO jobs").
		WillReturnResult(sqlmock.NewResult(0, 1))

	job, err := d.Enqueue(ctx, domain.JobTypePublish, "outlet-1", nil,
		EnqueueOptions{Delay: time.Minute})
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	members, err := mr.ZMembers(LanePublishing.DelayedKey())
	if err != nil {
		t.Fatalf("read delayed set: %v", err)
	}
	if len(members) != 1 || members[0] != job.ID {
		t.Errorf("delayed members = %v, want [%s]", members, job.ID)
	}
	if mr.Exists(LanePublishing.StreamKey()) {
		t.Error("delayed job must not hit the stream directly")
	}
}

func TestEnqueueBrokerFailureLeavesRowPending(t *testing.T) {
	d, mock, mr := newTestDispatcher(t)
	ctx := context.Background()

	mock.ExpectExec("INSERT INTO jobs").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mr.Close()

	job, err := d.Enqueue(ctx, domain.JobTypeGenerateContent, "outlet-1", nil, EnqueueOptions{})
	if err == nil {
		t.Fatal("Enqueue() expected broker error")
	}
	if job == nil {
		t.Fatal("job row was created, Enqueue must return it for recovery")
	}
	if job.Status != domain.JobStatusPending {
		t.Errorf("status = %s, want pending", job.Status)
	}
}

func TestMessageJobID(t *testing.T) {
	if id, ok := MessageJobID(map[string]any{"job_id": "j1"}); !ok || id != "j1" {
		t.Errorf("MessageJobID = %q, %v", id, ok)
	}
	if _, ok := MessageJobID(map[string]any{"other": "x"}); ok {
		t.Error("missing field must not resolve")
	}
	if _, ok := MessageJobID(map[string]any{"job_id": ""}); ok {
		t.Error("empty job id must not resolve")
	}
}

func jobColumns() []string {
	return []string{
		"id", "type", "outlet_id", "related_entity_id", "batch_id", "status",
		"priority", "payload", "result", "error_message", "retry_history",
		"retry_count", "max_retries", "is_retry", "original_job_id",
		"next_retry_at", "scheduled_at", "started_at", "completed_at",
		"processing_ms", "created_at", "updated_at",
	}
}

func failedJobRow(id string, now time.Time) []driver.Value {
	return []driver.Value{
		id, "extract_content", "outlet-1", nil, nil, "failed",
		0, []byte(`{"url":"https://example.mx/nota"}`), nil, "fetch timed out",
		[]byte("[]"), 1, 3, false, nil,
		nil, now, now, nil, nil, now, now,
	}
}

func TestRetryFailedSweepCreatesFreshJobs(t *testing.T) {
	d, mock, mr := newTestDispatcher(t)
	ctx := context.Background()
	now := time.Now()

	mock.ExpectQuery("SELECT (.+) FROM jobs").
		WillReturnRows(sqlmock.NewRows(jobColumns()).
			AddRow(failedJobRow("job-1", now)...).
			AddRow(failedJobRow("job-2", now)...))

	// Per eligible job: insert the fresh job, then mark the original retrying.
	for i := 0; i < 2; i++ {
		mock.ExpectExec("INSERT INTO jobs").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE jobs").WillReturnResult(sqlmock.NewResult(0, 1))
	}

	result, err := d.RetryFailed(ctx, RetryFailedOptions{Lane: LaneExtraction})
	if err != nil {
		t.Fatalf("RetryFailed() error = %v", err)
	}
	if result.Eligible != 2 || result.Retried != 2 {
		t.Fatalf("eligible = %d, retried = %d, want 2 and 2", result.Eligible, result.Retried)
	}
	for _, id := range result.JobIDs {
		if id == "job-1" || id == "job-2" {
			t.Errorf("sweep must dispatch fresh jobs, got original id %s", id)
		}
	}

	msgs, err := mr.Stream(LaneExtraction.StreamKey())
	if err != nil {
		t.Fatalf("read stream: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("stream has %d messages, want 2", len(msgs))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestRetryFailedCapsBatch(t *testing.T) {
	d, mock, _ := newTestDispatcher(t)

	mock.ExpectQuery("SELECT (.+) FROM jobs").
		WithArgs("24h0m0s", defaultRetryMaxPerJob, sqlmock.AnyArg(), retryBatchCap).
		WillReturnRows(sqlmock.NewRows(jobColumns()))

	result, err := d.RetryFailed(context.Background(), RetryFailedOptions{Limit: 500})
	if err != nil {
		t.Fatalf("RetryFailed() error = %v", err)
	}
	if result.Eligible != 0 || result.Retried != 0 {
		t.Errorf("eligible = %d, retried = %d, want 0 and 0", result.Eligible, result.Retried)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestRetryFailedRejectsUnknownLane(t *testing.T) {
	d, _, _ := newTestDispatcher(t)

	if _, err := d.RetryFailed(context.Background(), RetryFailedOptions{Lane: Lane("bogus")}); err == nil {
		t.Fatal("RetryFailed() expected validation error")
	}
}

func TestClearLane(t *testing.T) {
	d, mock, mr := newTestDispatcher(t)
	ctx := context.Background()

	mr.XAdd(LaneExtraction.StreamKey(), "*", []string{"job_id", "j1"})
	mr.ZAdd(LaneExtraction.DelayedKey(), 1, "j2")

	mock.ExpectExec("UPDATE jobs").
		WillReturnResult(sqlmock.NewResult(0, 3))

	cancelled, err := d.ClearLane(ctx, LaneExtraction)
	if err != nil {
		t.Fatalf("ClearLane() error = %v", err)
	}
	if cancelled != 3 {
		t.Errorf("cancelled = %d, want 3", cancelled)
	}
	if mr.Exists(LaneExtraction.StreamKey()) || mr.Exists(LaneExtraction.DelayedKey()) {
		t.Error("broker keys must be deleted")
	}
}

func TestClearLaneRejectsUnknownLane(t *testing.T) {
	d, _, _ := newTestDispatcher(t)

	if _, err := d.ClearLane(context.Background(), Lane("bogus")); err == nil {
		t.Fatal("ClearLane() expected validation error")
	}
}
