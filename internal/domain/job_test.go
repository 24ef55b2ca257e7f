package domain_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/horuscamacho/noticias-pachuca-sub006/internal/domain"
)

func TestNewJob_Validation(t *testing.T) {
	now := time.Now()

	testCases := []struct {
		name     string
		jobType  domain.JobType
		outletID string
		wantErr  bool
	}{
		{name: "valid extract_urls job", jobType: domain.JobTypeExtractURLs, outletID: "outlet-1"},
		{name: "valid publish job", jobType: domain.JobTypePublish, outletID: "outlet-1"},
		{name: "unknown type rejected", jobType: "resize_images", outletID: "outlet-1", wantErr: true},
		{name: "missing outlet rejected", jobType: domain.JobTypePublish, outletID: "", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			job, err := domain.NewJob(tc.jobType, tc.outletID, nil, now)
			if (err != nil) != tc.wantErr {
				t.Fatalf("NewJob() error = %v, wantErr %v", err, tc.wantErr)
			}
			if tc.wantErr {
				if !errors.Is(err, domain.ErrValidation) {
					t.Errorf("error = %v, want ErrValidation", err)
				}
				return
			}
			if job.Status != domain.JobStatusPending {
				t.Errorf("Status = %s, want pending", job.Status)
			}
			if job.ID == "" {
				t.Error("ID is empty")
			}
			if job.MaxRetries <= 0 {
				t.Error("MaxRetries not defaulted")
			}
		})
	}
}

func TestJobStatus_CanTransitionTo(t *testing.T) {
	testCases := []struct {
		from, to domain.JobStatus
		want     bool
	}{
		{domain.JobStatusPending, domain.JobStatusProcessing, true},
		{domain.JobStatusPending, domain.JobStatusCancelled, true},
		{domain.JobStatusPending, domain.JobStatusCompleted, false},
		{domain.JobStatusProcessing, domain.JobStatusCompleted, true},
		{domain.JobStatusProcessing, domain.JobStatusFailed, true},
		{domain.JobStatusProcessing, domain.JobStatusPending, false},
		{domain.JobStatusFailed, domain.JobStatusRetrying, true},
		{domain.JobStatusFailed, domain.JobStatusProcessing, false},
		{domain.JobStatusRetrying, domain.JobStatusProcessing, true},
		{domain.JobStatusCompleted, domain.JobStatusFailed, false},
		{domain.JobStatusCancelled, domain.JobStatusProcessing, false},
	}

	for _, tc := range testCases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.want {
			t.Errorf("%s -> %s = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestJobLifecycle_CompletedPath(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	job, err := domain.NewJob(domain.JobTypeGenerateContent, "outlet-1", json.RawMessage(`{"content_id":"c1"}`), now)
	if err != nil {
		t.Fatalf("NewJob() error = %v", err)
	}

	started, err := domain.StartJob(job, now.Add(time.Second))
	if err != nil {
		t.Fatalf("StartJob() error = %v", err)
	}
	if started.StartedAt == nil {
		t.Fatal("StartedAt not set")
	}

	done, err := domain.CompleteJob(started, json.RawMessage(`{"ok":true}`), now.Add(3*time.Second))
	if err != nil {
		t.Fatalf("CompleteJob() error = %v", err)
	}
	if done.Status != domain.JobStatusCompleted {
		t.Errorf("Status = %s, want completed", done.Status)
	}
	if done.ProcessingMS == nil || *done.ProcessingMS != 2000 {
		t.Errorf("ProcessingMS = %v, want 2000", done.ProcessingMS)
	}
	if !done.Status.Terminal() {
		t.Error("completed should be terminal")
	}
}

func TestJobLifecycle_RetryLoop(t *testing.T) {
	now := time.Now()
	job, _ := domain.NewJob(domain.JobTypeGenerateContent, "outlet-1", nil, now)
	job.MaxRetries = 2

	for attempt := 0; attempt < 2; attempt++ {
		started, err := domain.StartJob(job, now)
		if err != nil {
			t.Fatalf("attempt %d: StartJob() error = %v", attempt, err)
		}
		failed, err := domain.FailJob(started, "provider timeout", now)
		if err != nil {
			t.Fatalf("attempt %d: FailJob() error = %v", attempt, err)
		}
		job, err = domain.ScheduleJobRetry(failed, 10*time.Second, now)
		if err != nil {
			t.Fatalf("attempt %d: ScheduleJobRetry() error = %v", attempt, err)
		}
	}

	if job.RetryCount != 2 {
		t.Errorf("RetryCount = %d, want 2", job.RetryCount)
	}
	if len(job.RetryHistory) != 2 {
		t.Errorf("RetryHistory length = %d, want 2", len(job.RetryHistory))
	}
	if job.RetryHistory[0].Attempt != 1 || job.RetryHistory[1].Attempt != 2 {
		t.Errorf("attempts not strictly ordered: %+v", job.RetryHistory)
	}

	// Third failure must exhaust
	started, _ := domain.StartJob(job, now)
	failed, _ := domain.FailJob(started, "provider timeout", now)
	_, err := domain.ScheduleJobRetry(failed, 10*time.Second, now)
	if !errors.Is(err, domain.ErrRetryExhausted) {
		t.Fatalf("error = %v, want ErrRetryExhausted", err)
	}
	if failed.RetryCount > failed.MaxRetries {
		t.Errorf("RetryCount %d exceeds MaxRetries %d", failed.RetryCount, failed.MaxRetries)
	}
}

func TestCancelJob(t *testing.T) {
	now := time.Now()
	job, _ := domain.NewJob(domain.JobTypeExtractContent, "outlet-1", nil, now)

	cancelled, err := domain.CancelJob(job, now)
	if err != nil {
		t.Fatalf("CancelJob() error = %v", err)
	}
	if cancelled.Status != domain.JobStatusCancelled {
		t.Errorf("Status = %s, want cancelled", cancelled.Status)
	}

	if _, err = domain.CancelJob(cancelled, now); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("cancelling twice: error = %v, want ErrInvalidTransition", err)
	}
}

func TestRetryJob(t *testing.T) {
	now := time.Now()
	original, _ := domain.NewJob(domain.JobTypePublish, "outlet-1", json.RawMessage(`{"post":"p1"}`), now)
	original.Status = domain.JobStatusFailed
	original.RetryCount = 2

	fresh := domain.RetryJob(original, now)

	if !fresh.IsRetry {
		t.Error("IsRetry = false, want true")
	}
	if fresh.OriginalJobID == nil || *fresh.OriginalJobID != original.ID {
		t.Errorf("OriginalJobID = %v, want %s", fresh.OriginalJobID, original.ID)
	}
	if fresh.ID == original.ID {
		t.Error("retry job must have a fresh ID")
	}
	if fresh.Status != domain.JobStatusPending {
		t.Errorf("Status = %s, want pending", fresh.Status)
	}
	if fresh.RetryCount != 0 {
		t.Errorf("RetryCount = %d, want 0", fresh.RetryCount)
	}
}

func TestJobType_Stage(t *testing.T) {
	testCases := []struct {
		jobType domain.JobType
		want    domain.Stage
	}{
		{domain.JobTypeExtractURLs, domain.StageExtraction},
		{domain.JobTypeExtractContent, domain.StageExtraction},
		{domain.JobTypeGenerateContent, domain.StageGeneration},
		{domain.JobTypePublish, domain.StagePublishing},
		{domain.JobTypeSyncEngagement, domain.StagePublishing},
	}
	for _, tc := range testCases {
		if got := tc.jobType.Stage(); got != tc.want {
			t.Errorf("%s.Stage() = %s, want %s", tc.jobType, got, tc.want)
		}
	}
}
