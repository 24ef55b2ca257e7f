// Package events provides the typed event channel for pipeline observers.
// Every terminal job transition and publish is announced on a Redis stream;
// consumers (notifications, dashboards) subscribe instead of hooking into the
// write path.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/horuscamacho/noticias-pachuca-sub006/internal/domain"
	"github.com/horuscamacho/noticias-pachuca-sub006/internal/logger"
)

// StreamName is the Redis stream carrying pipeline events.
const StreamName = "pipeline:events"

// maxStreamLength bounds the event stream; older entries are trimmed.
const maxStreamLength = 10000

// EventType identifies one pipeline event.
type EventType string

const (
	JobStarted    EventType = "JOB_STARTED"
	JobCompleted  EventType = "JOB_COMPLETED"
	JobFailed     EventType = "JOB_FAILED"
	JobRetrying   EventType = "JOB_RETRYING"
	JobCancelled  EventType = "JOB_CANCELLED"
	PostPublished EventType = "POST_PUBLISHED"
	OutletPaused  EventType = "OUTLET_PAUSED"
	OutletResumed EventType = "OUTLET_RESUMED"
)

// Event is the envelope for all pipeline events.
type Event struct {
	EventID   uuid.UUID       `json:"event_id"`
	EventType EventType       `json:"event_type"`
	OutletID  string          `json:"outlet_id,omitempty"`
	JobID     string          `json:"job_id,omitempty"`
	JobType   domain.JobType  `json:"job_type,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Publisher appends events to the stream. Publishing is best-effort: a lost
// event never fails the job transition it announces.
type Publisher struct {
	rdb    redis.UniversalClient
	logger logger.Logger
}

// NewPublisher creates an event publisher.
func NewPublisher(rdb redis.UniversalClient, log logger.Logger) *Publisher {
	return &Publisher{rdb: rdb, logger: log}
}

// Publish appends one event to the stream.
func (p *Publisher) Publish(ctx context.Context, eventType EventType, job *domain.Job) {
	evt := Event{
		EventID:   uuid.New(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
	}
	if job != nil {
		evt.OutletID = job.OutletID
		evt.JobID = job.ID
		evt.JobType = job.Type
	}
	p.append(ctx, evt)
}

// PublishOutlet appends one outlet lifecycle event.
func (p *Publisher) PublishOutlet(ctx context.Context, eventType EventType, outletID string) {
	p.append(ctx, Event{
		EventID:   uuid.New(),
		EventType: eventType,
		OutletID:  outletID,
		Timestamp: time.Now().UTC(),
	})
}

func (p *Publisher) append(ctx context.Context, evt Event) {
	body, err := json.Marshal(evt)
	if err != nil {
		p.logger.Error("failed to marshal event", logger.Error(err))
		return
	}
	err = p.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamName,
		MaxLen: maxStreamLength,
		Approx: true,
		Values: map[string]any{"event": body},
	}).Err()
	if err != nil {
		p.logger.Warn("failed to publish event",
			logger.String("event_type", string(evt.EventType)),
			logger.Error(err))
	}
}
