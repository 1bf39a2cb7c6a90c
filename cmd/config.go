package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/spigell/resume-matcher/internal/ingest"
	"github.com/spigell/resume-matcher/internal/scoring"
)

type Config struct {
	Store     *StoreConfig     `mapstructure:"store"`
	Extractor *ExtractorConfig `mapstructure:"extractor"`
	Ingest    *IngestConfig    `mapstructure:"ingest"`
	Cache     *CacheConfig     `mapstructure:"cache"`
	Scoring   *ScoringConfig   `mapstructure:"scoring"`
	Serve     *ServeConfig     `mapstructure:"serve"`
}

type StoreConfig struct {
	Driver   string `mapstructure:"driver"`
	URI      string `mapstructure:"uri" json:"-"`
	URIFile  string `mapstructure:"uri-file"`
	Database string `mapstructure:"database"`
}

type ExtractorConfig struct {
	Provider        string        `mapstructure:"provider"`
	Timeout         time.Duration `mapstructure:"timeout"`
	TechMappingFile string        `mapstructure:"tech-mapping-file"`
	MaxLogLength    int           `mapstructure:"max-log-length"`
	Gemini          *GeminiConfig `mapstructure:"gemini"`
	Azure           *AzureConfig  `mapstructure:"azure"`
	OpenAI          *OpenAIConfig `mapstructure:"openai"`
}

type GeminiConfig struct {
	APIKey     string `mapstructure:"api-key" json:"-"`
	APIKeyFile string `mapstructure:"api-key-file"`
	Model      string `mapstructure:"model"`
	MaxRetries int    `mapstructure:"max-retries"`
}

type AzureConfig struct {
	Endpoint   string `mapstructure:"endpoint"`
	Deployment string `mapstructure:"deployment"`
	APIVersion string `mapstructure:"api-version"`
	APIKey     string `mapstructure:"api-key" json:"-"`
	APIKeyFile string `mapstructure:"api-key-file"`
}

type OpenAIConfig struct {
	APIKey     string `mapstructure:"api-key" json:"-"`
	APIKeyFile string `mapstructure:"api-key-file"`
	Model      string `mapstructure:"model"`
	BaseURL    string `mapstructure:"base-url"`
}

type IngestConfig struct {
	ingest.Config `mapstructure:",squash"`
	ResumesDir    string   `mapstructure:"resumes-dir"`
	PositionsDir  string   `mapstructure:"positions-dir"`
	Extensions    []string `mapstructure:"extensions"`
}

type CacheConfig struct {
	RedisURL     string        `mapstructure:"redis-url" json:"-"`
	RedisURLFile string        `mapstructure:"redis-url-file"`
	TTL          time.Duration `mapstructure:"ttl"`
}

type ScoringConfig struct {
	Threshold            float64         `mapstructure:"threshold"`
	Weights              scoring.Weights `mapstructure:"weights"`
	UnspecifiedLocations []string        `mapstructure:"unspecified-locations"`
}

type ServeConfig struct {
	Addr        string   `mapstructure:"addr"`
	IngestCron  string   `mapstructure:"ingest-cron"`
	CORSOrigins []string `mapstructure:"cors-origins"`
}

// setDefaults registers every key so that environment overrides are picked up
// by Unmarshal even when no config file mentions them.
func setDefaults(v *viper.Viper) {
	rules := scoring.DefaultRules()
	ing := ingest.DefaultConfig()

	defaults := map[string]any{
		"store.driver":   "mongo",
		"store.uri":      "mongodb://localhost:27017",
		"store.uri-file": "",
		"store.database": "job_matcher_db",

		"extractor.provider":            "azure",
		"extractor.timeout":             2 * time.Minute,
		"extractor.tech-mapping-file":   "",
		"extractor.max-log-length":      2000,
		"extractor.gemini.api-key":      "",
		"extractor.gemini.api-key-file": "",
		"extractor.gemini.model":        "gemini-2.5-flash",
		"extractor.gemini.max-retries":  3,
		"extractor.azure.endpoint":      "",
		"extractor.azure.deployment":    "",
		"extractor.azure.api-version":   "2024-06-01",
		"extractor.azure.api-key":       "",
		"extractor.azure.api-key-file":  "",
		"extractor.openai.api-key":      "",
		"extractor.openai.api-key-file": "",
		"extractor.openai.model":        "gpt-4o-mini",
		"extractor.openai.base-url":     "",

		"ingest.max-concurrency": ing.MaxConcurrency,
		"ingest.rate-limit":      ing.RateLimit,
		"ingest.rate-window":     ing.RateWindow,
		"ingest.resumes-dir":     "data/input/resumes",
		"ingest.positions-dir":   "data/input/jd",
		"ingest.extensions":      []string{".pdf"},

		"cache.redis-url":      "",
		"cache.redis-url-file": "",
		"cache.ttl":            7 * 24 * time.Hour,

		"scoring.threshold":             rules.ApprovalThreshold,
		"scoring.weights.primary":       rules.Weights.Primary,
		"scoring.weights.secondary":     rules.Weights.Secondary,
		"scoring.weights.experience":    rules.Weights.Experience,
		"scoring.weights.location":      rules.Weights.Location,
		"scoring.weights.education":     rules.Weights.Education,
		"scoring.unspecified-locations": rules.UnspecifiedLocations,

		"serve.addr":         ":8080",
		"serve.ingest-cron":  "",
		"serve.cors-origins": []string{},
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

func (c *Config) validate() error {
	if c == nil || c.Store == nil || c.Extractor == nil || c.Ingest == nil || c.Cache == nil || c.Scoring == nil || c.Serve == nil {
		return fmt.Errorf("incomplete configuration")
	}
	switch strings.ToLower(strings.TrimSpace(c.Store.Driver)) {
	case "memory", "mongo", "postgres":
	default:
		return fmt.Errorf("unsupported store driver %q (want memory, mongo or postgres)", c.Store.Driver)
	}
	if err := c.rules().Validate(); err != nil {
		return fmt.Errorf("scoring: %w", err)
	}
	return nil
}

func (c *Config) rules() scoring.Rules {
	rules := scoring.DefaultRules()
	rules.Weights = c.Scoring.Weights
	rules.ApprovalThreshold = c.Scoring.Threshold
	rules.UnspecifiedLocations = c.Scoring.UnspecifiedLocations
	return rules
}

func (c *Config) ingestConfig() ingest.Config {
	cfg := c.Ingest.Config
	if cfg.ExtractTimeout == 0 {
		cfg.ExtractTimeout = c.Extractor.Timeout
	}
	return cfg
}
