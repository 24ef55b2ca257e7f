package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobType identifies the unit of work a job performs.
type JobType string

const (
	JobTypeExtractURLs     JobType = "extract_urls"
	JobTypeExtractContent  JobType = "extract_content"
	JobTypeGenerateContent JobType = "generate_content"
	JobTypePublish         JobType = "publish"
	JobTypeSyncEngagement  JobType = "sync_engagement"
)

// JobTypes lists every known job type. Adding a type here without registering
// a processor for it fails at worker construction, not at dispatch time.
func JobTypes() []JobType {
	return []JobType{
		JobTypeExtractURLs,
		JobTypeExtractContent,
		JobTypeGenerateContent,
		JobTypePublish,
		JobTypeSyncEngagement,
	}
}

// Valid reports whether t is a known job type.
func (t JobType) Valid() bool {
	switch t {
	case JobTypeExtractURLs, JobTypeExtractContent, JobTypeGenerateContent,
		JobTypePublish, JobTypeSyncEngagement:
		return true
	default:
		return false
	}
}

// Stage identifies a pipeline phase. Each stage owns one queue lane.
type Stage string

const (
	StageExtraction Stage = "extraction"
	StageGeneration Stage = "generation"
	StagePublishing Stage = "publishing"
)

// Stages lists the pipeline stages in execution order.
func Stages() []Stage {
	return []Stage{StageExtraction, StageGeneration, StagePublishing}
}

// Stage returns the pipeline stage a job type belongs to.
func (t JobType) Stage() Stage {
	switch t {
	case JobTypeExtractURLs, JobTypeExtractContent:
		return StageExtraction
	case JobTypeGenerateContent:
		return StageGeneration
	default:
		return StagePublishing
	}
}

// JobStatus represents the state of a job in its lifecycle.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
	JobStatusRetrying   JobStatus = "retrying"
)

// jobTransitions is the closed transition table:
// pending -> processing -> {completed | failed}; failed -> retrying ->
// processing; any non-terminal state -> cancelled.
var jobTransitions = map[JobStatus][]JobStatus{
	JobStatusPending:    {JobStatusProcessing, JobStatusCancelled},
	JobStatusProcessing: {JobStatusCompleted, JobStatusFailed, JobStatusCancelled},
	JobStatusFailed:     {JobStatusRetrying, JobStatusCancelled},
	JobStatusRetrying:   {JobStatusProcessing, JobStatusCancelled},
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	for _, allowed := range jobTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusCancelled
}

// RetryAttempt is one entry in a job's retry history.
type RetryAttempt struct {
	Attempt    int       `json:"attempt"`
	Error      string    `json:"error"`
	FailedAt   time.Time `json:"failed_at"`
	DurationMS int64     `json:"duration_ms"`
}

// Job is one attempted unit of pipeline work. Jobs are created by the
// scheduler, the orchestrator or the retry endpoint, mutated only through the
// transition functions below plus a conditional persistence call, and never
// deleted.
type Job struct {
	ID              string          `db:"id"                json:"id"`
	Type            JobType         `db:"type"              json:"type"`
	OutletID        string          `db:"outlet_id"         json:"outlet_id"`
	RelatedEntityID *string         `db:"related_entity_id" json:"related_entity_id,omitempty"`
	BatchID         *string         `db:"batch_id"          json:"batch_id,omitempty"`
	Status          JobStatus       `db:"status"            json:"status"`
	Priority        int             `db:"priority"          json:"priority"`
	Payload         json.RawMessage `db:"payload"           json:"payload,omitempty"`
	Result          json.RawMessage `db:"result"            json:"result,omitempty"`
	ErrorMessage    *string         `db:"error_message"     json:"error_message,omitempty"`
	RetryHistory    RetryHistory    `db:"retry_history"     json:"retry_history,omitempty"`
	RetryCount      int             `db:"retry_count"       json:"retry_count"`
	MaxRetries      int             `db:"max_retries"       json:"max_retries"`
	IsRetry         bool            `db:"is_retry"          json:"is_retry"`
	OriginalJobID   *string         `db:"original_job_id"   json:"original_job_id,omitempty"`
	NextRetryAt     *time.Time      `db:"next_retry_at"     json:"next_retry_at,omitempty"`
	ScheduledAt     time.Time       `db:"scheduled_at"      json:"scheduled_at"`
	StartedAt       *time.Time      `db:"started_at"        json:"started_at,omitempty"`
	CompletedAt     *time.Time      `db:"completed_at"      json:"completed_at,omitempty"`
	ProcessingMS    *int64          `db:"processing_ms"     json:"processing_ms,omitempty"`
	CreatedAt       time.Time       `db:"created_at"        json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at"        json:"updated_at"`
}

// RetryHistory is the ordered list of failed attempts, stored as JSONB.
type RetryHistory []RetryAttempt

// Value implements driver.Valuer for JSONB storage.
func (h RetryHistory) Value() (driver.Value, error) {
	if h == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(h)
}

// Scan implements sql.Scanner for JSONB storage.
func (h *RetryHistory) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*h = nil
		return nil
	case []byte:
		return json.Unmarshal(v, h)
	case string:
		return json.Unmarshal([]byte(v), h)
	default:
		return fmt.Errorf("retry history: unsupported type %T", src)
	}
}

const defaultJobMaxRetries = 3

// NewJob creates a pending job with validation.
func NewJob(jobType JobType, outletID string, payload json.RawMessage, now time.Time) (Job, error) {
	if !jobType.Valid() {
		return Job{}, fmt.Errorf("%w: unknown job type %q", ErrValidation, jobType)
	}
	if outletID == "" {
		return Job{}, fmt.Errorf("%w: outlet_id is required", ErrValidation)
	}
	return Job{
		ID:          uuid.NewString(),
		Type:        jobType,
		OutletID:    outletID,
		Status:      JobStatusPending,
		Payload:     payload,
		MaxRetries:  defaultJobMaxRetries,
		ScheduledAt: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// StartJob transitions a job to processing and stamps startedAt.
// The returned job is a modified copy; the caller persists it with a
// conditional update keyed on the previous status.
func StartJob(j Job, now time.Time) (Job, error) {
	if !j.Status.CanTransitionTo(JobStatusProcessing) {
		return j, fmt.Errorf("%w: %s -> processing", ErrInvalidTransition, j.Status)
	}
	j.Status = JobStatusProcessing
	j.StartedAt = &now
	j.UpdatedAt = now
	return j, nil
}

// CompleteJob transitions a processing job to completed, recording the result
// and the processing duration.
func CompleteJob(j Job, result json.RawMessage, now time.Time) (Job, error) {
	if !j.Status.CanTransitionTo(JobStatusCompleted) {
		return j, fmt.Errorf("%w: %s -> completed", ErrInvalidTransition, j.Status)
	}
	j.Status = JobStatusCompleted
	j.Result = result
	j.CompletedAt = &now
	if j.StartedAt != nil {
		ms := now.Sub(*j.StartedAt).Milliseconds()
		j.ProcessingMS = &ms
	}
	j.UpdatedAt = now
	return j, nil
}

// FailJob transitions a processing job to failed and appends the failure to
// the retry history with its timestamp and attempt duration.
func FailJob(j Job, cause string, now time.Time) (Job, error) {
	if !j.Status.CanTransitionTo(JobStatusFailed) {
		return j, fmt.Errorf("%w: %s -> failed", ErrInvalidTransition, j.Status)
	}
	j.Status = JobStatusFailed
	j.ErrorMessage = &cause

	var durationMS int64
	if j.StartedAt != nil {
		durationMS = now.Sub(*j.StartedAt).Milliseconds()
	}
	j.RetryHistory = append(j.RetryHistory, RetryAttempt{
		Attempt:    j.RetryCount + 1,
		Error:      cause,
		FailedAt:   now,
		DurationMS: durationMS,
	})
	j.UpdatedAt = now
	return j, nil
}

// ScheduleJobRetry transitions a failed job to retrying, incrementing
// retryCount and stamping nextRetryAt. Fails with ErrRetryExhausted once
// retryCount reaches maxRetries; retryCount therefore never exceeds it.
func ScheduleJobRetry(j Job, delay time.Duration, now time.Time) (Job, error) {
	if !j.Status.CanTransitionTo(JobStatusRetrying) {
		return j, fmt.Errorf("%w: %s -> retrying", ErrInvalidTransition, j.Status)
	}
	if j.RetryCount >= j.MaxRetries {
		return j, fmt.Errorf("%w: %d of %d attempts used", ErrRetryExhausted, j.RetryCount, j.MaxRetries)
	}
	j.Status = JobStatusRetrying
	j.RetryCount++
	next := now.Add(delay)
	j.NextRetryAt = &next
	j.UpdatedAt = now
	return j, nil
}

// CancelJob transitions any non-terminal job to cancelled. Cancellation only
// prevents future dispatch; it does not interrupt in-flight work.
func CancelJob(j Job, now time.Time) (Job, error) {
	if !j.Status.CanTransitionTo(JobStatusCancelled) {
		return j, fmt.Errorf("%w: %s -> cancelled", ErrInvalidTransition, j.Status)
	}
	j.Status = JobStatusCancelled
	j.CompletedAt = &now
	j.UpdatedAt = now
	return j, nil
}

// RetryJob derives a fresh job from a failed original for the manual retry
// sweep. The new job carries isRetry=true and a back-reference instead of
// mutating the original's history in place.
func RetryJob(original Job, now time.Time) Job {
	id := original.ID
	return Job{
		ID:              uuid.NewString(),
		Type:            original.Type,
		OutletID:        original.OutletID,
		RelatedEntityID: original.RelatedEntityID,
		BatchID:         original.BatchID,
		Status:          JobStatusPending,
		Priority:        original.Priority,
		Payload:         original.Payload,
		MaxRetries:      original.MaxRetries,
		IsRetry:         true,
		OriginalJobID:   &id,
		ScheduledAt:     now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}
