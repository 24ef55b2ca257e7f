package worker

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/horuscamacho/noticias-pachuca-sub006/internal/domain"
	"github.com/horuscamacho/noticias-pachuca-sub006/internal/publishing"
)

type stubProcessor struct {
	jobType domain.JobType
}

func (s *stubProcessor) Type() domain.JobType { return s.jobType }
func (s *stubProcessor) Process(_ context.Context, _ *domain.Job) (json.RawMessage, error) {
	return nil, nil
}

func TestNewRegistryRequiresAllTypes(t *testing.T) {
	var processors []Processor
	for _, jt := range domain.JobTypes() {
		processors = append(processors, &stubProcessor{jobType: jt})
	}

	reg, err := NewRegistry(processors...)
	if err != nil {
		t.Fatalf("complete registry rejected: %v", err)
	}
	if len(reg) != len(domain.JobTypes()) {
		t.Fatalf("registry size = %d, want %d", len(reg), len(domain.JobTypes()))
	}

	if _, err := NewRegistry(processors[:len(processors)-1]...); err == nil {
		t.Fatal("incomplete registry accepted")
	}

	dup := append(processors, &stubProcessor{jobType: domain.JobTypePublish})
	if _, err := NewRegistry(dup...); err == nil {
		t.Fatal("duplicate registration accepted")
	}
}

func TestDecodePayload(t *testing.T) {
	job := &domain.Job{ID: "j1", Payload: json.RawMessage(`{"content_id":"c1","url":"https://example.mx/a"}`)}

	var payload ExtractContentPayload
	if err := decodePayload(job, &payload); err != nil {
		t.Fatalf("decodePayload() error = %v", err)
	}
	if payload.ContentID != "c1" || payload.URL != "https://example.mx/a" {
		t.Fatalf("decoded payload = %+v", payload)
	}

	empty := &domain.Job{ID: "j2"}
	err := decodePayload(empty, &payload)
	if !strings.Contains(err.Error(), "no payload") {
		t.Fatalf("empty payload error = %v", err)
	}

	garbage := &domain.Job{ID: "j3", Payload: json.RawMessage(`{`)}
	if err := decodePayload(garbage, &payload); err == nil {
		t.Fatal("garbage payload accepted")
	}
}

func TestContentKeywords(t *testing.T) {
	title := "Tuzos ganan el clásico hidalguense: ¡afición celebra en la plaza!"
	keywords := contentKeywords(title)

	if len(keywords) == 0 {
		t.Fatal("no keywords derived")
	}
	if len(keywords) > maxContentKeywords {
		t.Fatalf("derived %d keywords, cap is %d", len(keywords), maxContentKeywords)
	}
	for _, kw := range keywords {
		if len(kw) < minKeywordLength {
			t.Errorf("keyword %q shorter than %d", kw, minKeywordLength)
		}
		if strings.ContainsAny(kw, "¡!¿?.,:") {
			t.Errorf("keyword %q keeps punctuation", kw)
		}
	}
}

func TestComposePostText(t *testing.T) {
	text := composePostText(publishing.OptimizedContent{
		Text:     "Los Tuzos ganaron el clásico.",
		Emojis:   []string{"⚽", "🏆"},
		Hashtags: []string{"#Deportes", "#Pachuca"},
	})

	for _, want := range []string{"Los Tuzos ganaron", "⚽ 🏆", "#Deportes #Pachuca"} {
		if !strings.Contains(text, want) {
			t.Errorf("composed text missing %q:\n%s", want, text)
		}
	}

	bare := composePostText(publishing.OptimizedContent{Text: "Solo texto."})
	if bare != "Solo texto." {
		t.Errorf("bare compose = %q", bare)
	}
}
