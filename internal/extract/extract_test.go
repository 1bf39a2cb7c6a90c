package extract

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/resume-matcher/internal/logger"
	"github.com/spigell/resume-matcher/internal/records"
)

type stubGenerator struct {
	response string
	err      error
	prompts  []string
}

func (s *stubGenerator) Generate(_ context.Context, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	return s.response, s.err
}

func (s *stubGenerator) Provider() string { return "stub" }
func (s *stubGenerator) Model() string    { return "stub-1" }

func TestLLMExtract(t *testing.T) {
	core, observed := observer.New(zapcore.DebugLevel)
	gen := &stubGenerator{response: `{"name": "Jane", "email": "jane@example.com", "skills": ["go"]}`}

	l := NewLLM(gen, zap.New(core))
	f, err := l.Extract(context.Background(), records.KindCandidate, "Jane Doe, Go developer")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if f.Email != "jane@example.com" {
		t.Fatalf("unexpected fields: %+v", f)
	}

	if len(gen.prompts) != 1 || !strings.Contains(gen.prompts[0], "Jane Doe, Go developer") {
		t.Fatalf("prompt must embed the document text: %v", gen.prompts)
	}
	if !strings.Contains(gen.prompts[0], "resume") {
		t.Fatalf("candidate prompt must use the resume template")
	}

	entries := observed.FilterMessage("extraction request").All()
	if len(entries) != 1 {
		t.Fatalf("expected one request log, got %d", len(entries))
	}
	if entries[0].ContextMap()[logger.FieldProvider] != "stub" {
		t.Fatalf("expected provider field on logs, got %v", entries[0].ContextMap())
	}
}

func TestLLMExtractPositionUsesMapping(t *testing.T) {
	gen := &stubGenerator{response: `{"required_skills_with_scores": []}`}
	l := NewLLM(gen, nil, WithTechMapping(`[{"Technology": "Golang", "Categories": ["Backend"]}]`))

	if _, err := l.Extract(context.Background(), records.KindPosition, "We hire Go engineers"); err != nil {
		t.Fatalf("extract: %v", err)
	}
	if !strings.Contains(gen.prompts[0], `"Technology": "Golang"`) {
		t.Fatalf("position prompt must include the mapping: %s", gen.prompts[0])
	}
	if strings.Contains(gen.prompts[0], "{{") {
		t.Fatalf("unrendered placeholder left in prompt")
	}
}

func TestLLMExtractFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		gen  *stubGenerator
	}{
		{name: "empty text", text: "   ", gen: &stubGenerator{response: `{}`}},
		{name: "generator error", text: "doc", gen: &stubGenerator{err: errors.New("quota")}},
		{name: "malformed response", text: "doc", gen: &stubGenerator{response: "I cannot help"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewLLM(tt.gen, nil).Extract(context.Background(), records.KindCandidate, tt.text)
			if !errors.Is(err, records.ErrExtraction) {
				t.Fatalf("expected extraction error, got %v", err)
			}
		})
	}
}

func TestBuildPromptWithoutMapping(t *testing.T) {
	prompt := BuildPrompt(records.KindPosition, "  text  ", "")
	if !strings.Contains(prompt, noMapping) {
		t.Fatalf("expected placeholder for missing mapping")
	}
	if !strings.HasSuffix(strings.TrimSpace(prompt), "text") {
		t.Fatalf("expected trimmed text at the end of prompt")
	}
}

func TestLLMCacheVersion(t *testing.T) {
	t.Parallel()

	plain := NewLLM(&stubGenerator{}, nil)
	java := NewLLM(&stubGenerator{}, nil, WithTechMapping("Java: Backend"))
	golang := NewLLM(&stubGenerator{}, nil, WithTechMapping("Go: Backend"))

	var _ Versioned = plain

	if v := plain.CacheVersion(records.KindPosition); v != PromptVersion {
		t.Fatalf("without a mapping the version is the prompt version, got %q", v)
	}
	if java.CacheVersion(records.KindCandidate) != PromptVersion {
		t.Fatalf("resume prompts carry no mapping, got %q", java.CacheVersion(records.KindCandidate))
	}
	if java.CacheVersion(records.KindPosition) == golang.CacheVersion(records.KindPosition) {
		t.Fatalf("different mappings must yield different versions")
	}
	if java.CacheVersion(records.KindPosition) != NewLLM(&stubGenerator{}, nil, WithTechMapping("Java: Backend")).CacheVersion(records.KindPosition) {
		t.Fatalf("equal mappings must yield equal versions")
	}
}
