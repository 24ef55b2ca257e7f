// Package queue implements the three-lane job dispatcher: a durable job row
// in PostgreSQL plus a handoff to a Redis Stream per pipeline stage.
package queue

import (
	"time"

	"github.com/horuscamacho/noticias-pachuca-sub006/internal/domain"
)

// Lane is the logical queue grouping all jobs of one pipeline stage.
type Lane string

const (
	LaneExtraction Lane = "extraction"
	LaneGeneration Lane = "generation"
	LanePublishing Lane = "publishing"
)

// Lanes lists every lane.
func Lanes() []Lane {
	return []Lane{LaneExtraction, LaneGeneration, LanePublishing}
}

// Valid reports whether l names a known lane.
func (l Lane) Valid() bool {
	return l == LaneExtraction || l == LaneGeneration || l == LanePublishing
}

// StreamKey returns the Redis stream carrying this lane's jobs.
func (l Lane) StreamKey() string {
	return "pipeline:lane:" + string(l)
}

// DelayedKey returns the Redis sorted set holding this lane's delayed jobs,
// scored by their due time.
func (l Lane) DelayedKey() string {
	return "pipeline:delayed:" + string(l)
}

// ConsumerGroup is the stream consumer group for pipeline workers.
const ConsumerGroup = "pipeline-workers"

// LaneFor maps a job type to its lane.
func LaneFor(t domain.JobType) Lane {
	switch t.Stage() {
	case domain.StageExtraction:
		return LaneExtraction
	case domain.StageGeneration:
		return LaneGeneration
	default:
		return LanePublishing
	}
}

// TypesFor returns the job types dispatched on a lane.
func TypesFor(lane Lane) []domain.JobType {
	types := make([]domain.JobType, 0, 2)
	for _, t := range domain.JobTypes() {
		if LaneFor(t) == lane {
			types = append(types, t)
		}
	}
	return types
}

// Policy holds the retry and concurrency discipline for one lane.
type Policy struct {
	// BaseDelay seeds the exponential backoff: extraction retries quickly,
	// generation slower (AI calls are costly), publishing slowest (platform
	// rate limits).
	BaseDelay time.Duration
	// MaxRetries bounds the failed -> retrying loop per job.
	MaxRetries int
	// Concurrency is the worker parallelism for the lane.
	Concurrency int
	// JobTimeout bounds one processing attempt.
	JobTimeout time.Duration
	// ActiveCeiling is the processing-job count above which the lane is
	// reported unhealthy.
	ActiveCeiling int64
}

// PolicyFor returns the dispatch policy for a lane.
func PolicyFor(lane Lane) Policy {
	switch lane {
	case LaneExtraction:
		return Policy{
			BaseDelay:     5 * time.Second,
			MaxRetries:    3,
			Concurrency:   4,
			JobTimeout:    30 * time.Second,
			ActiveCeiling: 100,
		}
	case LaneGeneration:
		return Policy{
			BaseDelay:     10 * time.Second,
			MaxRetries:    3,
			Concurrency:   2,
			JobTimeout:    60 * time.Second,
			ActiveCeiling: 50,
		}
	default:
		return Policy{
			BaseDelay:     30 * time.Second,
			MaxRetries:    2,
			Concurrency:   2,
			JobTimeout:    45 * time.Second,
			ActiveCeiling: 25,
		}
	}
}
