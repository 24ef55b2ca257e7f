package domain_test

import (
	"testing"
	"time"

	"github.com/horuscamacho/noticias-pachuca-sub006/internal/domain"
)

func timePtr(t time.Time) *time.Time { return &t }

func TestOutletConfig_NextRun(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	outlet := domain.OutletConfig{
		IsActive:                   true,
		ExtractionFrequencyMinutes: 60,
		GenerationFrequencyMinutes: 30,
		PublishingFrequencyMinutes: 120,
		LastExtractionRun:          timePtr(now.Add(-90 * time.Minute)),
		LastGenerationRun:          timePtr(now.Add(-10 * time.Minute)),
	}

	if got := outlet.NextRun(domain.StageExtraction); !got.Equal(now.Add(-30 * time.Minute)) {
		t.Errorf("extraction NextRun = %v, want lastRun+60m", got)
	}
	if got := outlet.NextRun(domain.StageGeneration); !got.Equal(now.Add(20 * time.Minute)) {
		t.Errorf("generation NextRun = %v, want lastRun+30m", got)
	}
	// Never run: zero time, due immediately
	if got := outlet.NextRun(domain.StagePublishing); !got.IsZero() {
		t.Errorf("publishing NextRun = %v, want zero time", got)
	}
}

func TestOutletConfig_IsDue(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	testCases := []struct {
		name   string
		outlet domain.OutletConfig
		stage  domain.Stage
		want   bool
	}{
		{
			name: "overdue extraction is due",
			outlet: domain.OutletConfig{
				IsActive:                   true,
				ExtractionFrequencyMinutes: 60,
				LastExtractionRun:          timePtr(now.Add(-90 * time.Minute)),
			},
			stage: domain.StageExtraction,
			want:  true,
		},
		{
			name: "recent extraction not due",
			outlet: domain.OutletConfig{
				IsActive:                   true,
				ExtractionFrequencyMinutes: 60,
				LastExtractionRun:          timePtr(now.Add(-30 * time.Minute)),
			},
			stage: domain.StageExtraction,
			want:  false,
		},
		{
			name: "exactly at boundary is due",
			outlet: domain.OutletConfig{
				IsActive:                   true,
				GenerationFrequencyMinutes: 30,
				LastGenerationRun:          timePtr(now.Add(-30 * time.Minute)),
			},
			stage: domain.StageGeneration,
			want:  true,
		},
		{
			name: "never run is due immediately",
			outlet: domain.OutletConfig{
				IsActive:                   true,
				PublishingFrequencyMinutes: 120,
			},
			stage: domain.StagePublishing,
			want:  true,
		},
		{
			name: "inactive outlet never due",
			outlet: domain.OutletConfig{
				IsActive:                   false,
				ExtractionFrequencyMinutes: 60,
			},
			stage: domain.StageExtraction,
			want:  false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.outlet.IsDue(tc.stage, now); got != tc.want {
				t.Errorf("IsDue(%s) = %v, want %v", tc.stage, got, tc.want)
			}
		})
	}
}
