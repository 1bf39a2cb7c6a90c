// Package openai implements extract.Generator for OpenAI and Azure OpenAI
// deployments through langchaingo.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	lcopenai "github.com/tmc/langchaingo/llms/openai"
)

const (
	ProviderOpenAI = "openai"
	ProviderAzure  = "azure"

	defaultModel      = "gpt-4o-mini"
	defaultAPIVersion = "2024-06-01"
)

type Config struct {
	APIKey string
	// Model is the deployment name when Azure is set.
	Model   string
	BaseURL string
	// Azure switches to the Azure OpenAI API; BaseURL must be the resource endpoint.
	Azure      bool
	APIVersion string
}

type Generator struct {
	llm      llms.Model
	model    string
	provider string
}

func New(cfg Config) (*Generator, error) {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, errors.New("openai api key is required")
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		if cfg.Azure {
			return nil, errors.New("azure deployment name is required")
		}
		model = defaultModel
	}

	opts := []lcopenai.Option{
		lcopenai.WithToken(key),
		lcopenai.WithModel(model),
		lcopenai.WithResponseFormat(lcopenai.ResponseFormatJSON),
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, lcopenai.WithBaseURL(base))
	}

	provider := ProviderOpenAI
	if cfg.Azure {
		if strings.TrimSpace(cfg.BaseURL) == "" {
			return nil, errors.New("azure endpoint is required")
		}
		version := strings.TrimSpace(cfg.APIVersion)
		if version == "" {
			version = defaultAPIVersion
		}
		opts = append(opts, lcopenai.WithAPIType(lcopenai.APITypeAzure), lcopenai.WithAPIVersion(version))
		provider = ProviderAzure
	}

	llm, err := lcopenai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create %s client: %w", provider, err)
	}

	return &Generator{llm: llm, model: model, provider: provider}, nil
}

func (g *Generator) Provider() string { return g.provider }

func (g *Generator) Model() string { return g.model }

func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", errors.New("prompt must not be empty")
	}

	out, err := llms.GenerateFromSinglePrompt(ctx, g.llm, prompt, llms.WithTemperature(0))
	if err != nil {
		return "", fmt.Errorf("%s completion: %w", g.provider, err)
	}

	out = strings.TrimSpace(out)
	if out == "" {
		return "", fmt.Errorf("%s returned empty response", g.provider)
	}
	return out, nil
}
