package domain

import "time"

// OutletConfig is one monitored news website. The per-stage frequencies and
// last-run timestamps are the only scheduling state; due-ness is always
// recomputed from them so schedules survive restarts.
type OutletConfig struct {
	ID                         string     `db:"id"                           json:"id"`
	Name                       string     `db:"name"                         json:"name"`
	BaseURL                    string     `db:"base_url"                     json:"base_url"`
	IsActive                   bool       `db:"is_active"                    json:"is_active"`
	DefaultTemplateID          string     `db:"default_template_id"          json:"default_template_id"`
	ExtractionFrequencyMinutes int        `db:"extraction_frequency_minutes" json:"extraction_frequency_minutes"`
	GenerationFrequencyMinutes int        `db:"generation_frequency_minutes" json:"generation_frequency_minutes"`
	PublishingFrequencyMinutes int        `db:"publishing_frequency_minutes" json:"publishing_frequency_minutes"`
	LastExtractionRun          *time.Time `db:"last_extraction_run"          json:"last_extraction_run,omitempty"`
	LastGenerationRun          *time.Time `db:"last_generation_run"          json:"last_generation_run,omitempty"`
	LastPublishingRun          *time.Time `db:"last_publishing_run"          json:"last_publishing_run,omitempty"`
	CreatedAt                  time.Time  `db:"created_at"                   json:"created_at"`
	UpdatedAt                  time.Time  `db:"updated_at"                   json:"updated_at"`
}

// Frequency returns the configured interval between runs of a stage.
func (o *OutletConfig) Frequency(stage Stage) time.Duration {
	switch stage {
	case StageExtraction:
		return time.Duration(o.ExtractionFrequencyMinutes) * time.Minute
	case StageGeneration:
		return time.Duration(o.GenerationFrequencyMinutes) * time.Minute
	default:
		return time.Duration(o.PublishingFrequencyMinutes) * time.Minute
	}
}

// LastRun returns the last completed scheduling pass for a stage, or nil if
// the stage has never run.
func (o *OutletConfig) LastRun(stage Stage) *time.Time {
	switch stage {
	case StageExtraction:
		return o.LastExtractionRun
	case StageGeneration:
		return o.LastGenerationRun
	default:
		return o.LastPublishingRun
	}
}

// NextRun returns lastRun + frequency for a stage. An outlet that has never
// run a stage is due immediately, signalled by the zero time.
func (o *OutletConfig) NextRun(stage Stage) time.Time {
	last := o.LastRun(stage)
	if last == nil {
		return time.Time{}
	}
	return last.Add(o.Frequency(stage))
}

// IsDue reports whether a stage should run now for this outlet.
func (o *OutletConfig) IsDue(stage Stage, now time.Time) bool {
	if !o.IsActive {
		return false
	}
	return !now.Before(o.NextRun(stage))
}
