// Package worker consumes the lane streams and runs the stage processors.
// One Pool serves all three lanes; each lane gets its policy's worth of
// consumer goroutines plus a promoter for its delayed set.
package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/horuscamacho/noticias-pachuca-sub006/internal/domain"
)

// Processor executes one job type. Implementations must be idempotent: a
// redelivered or retried job may reach Process again after partial work.
type Processor interface {
	Type() domain.JobType
	Process(ctx context.Context, job *domain.Job) (json.RawMessage, error)
}

// ExtractContentPayload is the payload of an extract_content job.
type ExtractContentPayload struct {
	ContentID string `json:"content_id"`
	URL       string `json:"url"`
}

// GeneratePayload is the payload of a generate_content job.
type GeneratePayload struct {
	OriginalContentID string `json:"original_content_id"`
	TemplateID        string `json:"template_id"`
}

// PublishJobPayload is the payload of a publish job.
type PublishJobPayload struct {
	GeneratedContentID string `json:"generated_content_id"`
	TargetID           string `json:"target_id"`
}

// Registry maps each job type to its processor. Construction fails when a
// known job type has no processor, so a missing registration surfaces at
// startup instead of at dispatch time.
type Registry map[domain.JobType]Processor

// NewRegistry builds a registry from processors and validates completeness.
func NewRegistry(processors ...Processor) (Registry, error) {
	reg := make(Registry, len(processors))
	for _, p := range processors {
		if _, dup := reg[p.Type()]; dup {
			return nil, fmt.Errorf("duplicate processor for job type %q", p.Type())
		}
		reg[p.Type()] = p
	}
	for _, t := range domain.JobTypes() {
		if _, ok := reg[t]; !ok {
			return nil, fmt.Errorf("no processor registered for job type %q", t)
		}
	}
	return reg, nil
}

func decodePayload(job *domain.Job, dst any) error {
	if len(job.Payload) == 0 {
		return fmt.Errorf("%w: job %s has no payload", domain.ErrValidation, job.ID)
	}
	if err := json.Unmarshal(job.Payload, dst); err != nil {
		return fmt.Errorf("%w: decode payload for job %s: %v", domain.ErrValidation, job.ID, err)
	}
	return nil
}
