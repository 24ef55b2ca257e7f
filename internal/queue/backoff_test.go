package queue

import (
	"testing"
	"time"
)

func TestRetryDelayDoublesPerAttempt(t *testing.T) {
	tests := []struct {
		lane    Lane
		attempt int
		want    time.Duration
	}{
		{LaneExtraction, 1, 5 * time.Second},
		{LaneExtraction, 2, 10 * time.Second},
		{LaneExtraction, 3, 20 * time.Second},
		{LaneGeneration, 1, 10 * time.Second},
		{LaneGeneration, 2, 20 * time.Second},
		{LanePublishing, 1, 30 * time.Second},
		{LanePublishing, 2, time.Minute},
	}
	for _, tt := range tests {
		if got := RetryDelay(tt.lane, tt.attempt); got != tt.want {
			t.Errorf("RetryDelay(%s, %d) = %v, want %v", tt.lane, tt.attempt, got, tt.want)
		}
	}
}

func TestRetryDelayCapped(t *testing.T) {
	if got := RetryDelay(LanePublishing, 20); got != maxRetryDelay {
		t.Errorf("RetryDelay(publishing, 20) = %v, want cap %v", got, maxRetryDelay)
	}
}

func TestRetryDelayNormalizesAttempt(t *testing.T) {
	if got := RetryDelay(LaneExtraction, 0); got != 5*time.Second {
		t.Errorf("RetryDelay(extraction, 0) = %v, want base delay", got)
	}
	if got := RetryDelay(LaneExtraction, -3); got != 5*time.Second {
		t.Errorf("RetryDelay(extraction, -3) = %v, want base delay", got)
	}
}

func TestLaneForCoversEveryJobType(t *testing.T) {
	want := map[string]Lane{
		"extract_urls":     LaneExtraction,
		"extract_content":  LaneExtraction,
		"generate_content": LaneGeneration,
		"publish":          LanePublishing,
		"sync_engagement":  LanePublishing,
	}
	for _, lane := range Lanes() {
		for _, jt := range TypesFor(lane) {
			if want[string(jt)] != lane {
				t.Errorf("job type %s mapped to lane %s, want %s", jt, lane, want[string(jt)])
			}
			delete(want, string(jt))
		}
	}
	if len(want) != 0 {
		t.Errorf("job types not mapped to any lane: %v", want)
	}
}
