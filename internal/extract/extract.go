// Package extract turns document text into structured fields with a language model.
package extract

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/spigell/resume-matcher/internal/logger"
	"github.com/spigell/resume-matcher/internal/records"
	"github.com/spigell/resume-matcher/internal/utils"
)

// Extractor returns the raw structured fields of one document.
type Extractor interface {
	Extract(ctx context.Context, kind records.Kind, text string) (*Fields, error)
}

// Generator sends a prompt to a model and returns its text answer.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Provider() string
	Model() string
}

// Versioned is implemented by extractors whose output depends on more than the
// document text. Equal versions for a kind mean equal prompts for equal text.
type Versioned interface {
	CacheVersion(kind records.Kind) string
}

const defaultMaxLogLength = 200

// LLM is an Extractor backed by a Generator.
type LLM struct {
	generator   Generator
	logger      *zap.Logger
	techMapping string
	maxLogLen   int
}

type Option func(*LLM)

// WithTechMapping adds a technology/category mapping to position prompts.
func WithTechMapping(mapping string) Option {
	return func(l *LLM) { l.techMapping = mapping }
}

func WithMaxLogLength(n int) Option {
	return func(l *LLM) {
		if n > 0 {
			l.maxLogLen = n
		}
	}
}

func NewLLM(generator Generator, log *zap.Logger, opts ...Option) *LLM {
	l := &LLM{
		generator: generator,
		maxLogLen: defaultMaxLogLength,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = logger.WithCommonFields(log, generator.Provider(), generator.Model())
	return l
}

// Extract fails with records.ErrExtraction for empty text, generator errors and
// responses that are not a JSON object.
func (l *LLM) Extract(ctx context.Context, kind records.Kind, text string) (*Fields, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: document text is empty", records.ErrExtraction)
	}

	prompt := BuildPrompt(kind, text, l.techMapping)

	l.logger.Debug("extraction request",
		zap.String("kind", string(kind)),
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, l.maxLogLen)),
	)

	raw, err := l.generator.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", records.ErrExtraction, err)
	}

	l.logger.Debug("extraction response",
		zap.String("kind", string(kind)),
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, l.maxLogLen)),
	)

	fields, err := ParseFields(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", records.ErrExtraction, err)
	}
	return fields, nil
}

// CacheVersion is PromptVersion, extended for positions by a digest of the
// technology mapping embedded in their prompt.
func (l *LLM) CacheVersion(kind records.Kind) string {
	if kind != records.KindPosition || l.techMapping == "" {
		return PromptVersion
	}
	sum := sha256.Sum256([]byte(l.techMapping))
	return PromptVersion + "+" + hex.EncodeToString(sum[:8])
}
