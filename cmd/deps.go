package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/resume-matcher/internal/cache"
	"github.com/spigell/resume-matcher/internal/extract"
	"github.com/spigell/resume-matcher/internal/extract/gemini"
	"github.com/spigell/resume-matcher/internal/extract/openai"
	"github.com/spigell/resume-matcher/internal/ingest"
	"github.com/spigell/resume-matcher/internal/logger"
	"github.com/spigell/resume-matcher/internal/scoring"
	"github.com/spigell/resume-matcher/internal/secrets"
	"github.com/spigell/resume-matcher/internal/store"
	"github.com/spigell/resume-matcher/internal/store/mongo"
	"github.com/spigell/resume-matcher/internal/store/postgres"
)

// deps holds everything a command needs. close releases what was opened.
type deps struct {
	config *Config
	logger *zap.Logger
	store  store.Store
	cache  cache.Cache
}

func mustSetup(ctx context.Context) *deps {
	d, err := setup(ctx)
	if err != nil {
		log.Fatal(err)
	}
	return d
}

func setup(ctx context.Context) (*deps, error) {
	l, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		return nil, fmt.Errorf("creating a logger: %w", err)
	}

	config, err := getConfig()
	if err != nil {
		return nil, fmt.Errorf("getting a config: %w", err)
	}

	l.Info("starting the "+app, zap.String("version", buildVersion()))
	l.Debug("configuration", zap.Any("config", config))

	s, err := openStore(ctx, config.Store, l)
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", config.Store.Driver, err)
	}
	return &deps{config: config, logger: l, store: s}, nil
}

func (d *deps) close() {
	ctx := context.Background()
	if d.cache != nil {
		if err := d.cache.Close(); err != nil {
			d.logger.Warn("closing cache", zap.Error(err))
		}
	}
	if err := d.store.Close(ctx); err != nil {
		d.logger.Warn("closing store", zap.Error(err))
	}
	_ = d.logger.Sync()
}

func openStore(ctx context.Context, cfg *StoreConfig, log *zap.Logger) (store.Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "memory" {
		log.Warn("using in-memory store, records are lost on exit")
		return store.NewMemory(), nil
	}

	uri, err := secrets.Load(secrets.Source{
		Name:  driver + " connection string",
		Value: cfg.URI,
		File:  cfg.URIFile,
	})
	if err != nil {
		return nil, err
	}

	switch driver {
	case "mongo":
		return mongo.Open(ctx, uri, cfg.Database, log)
	case "postgres":
		return postgres.Open(ctx, uri, log)
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}
}

func newGenerator(ctx context.Context, cfg *ExtractorConfig, log *zap.Logger) (extract.Generator, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	switch provider {
	case gemini.Provider:
		if cfg.Gemini == nil {
			return nil, errors.New("extractor.gemini configuration is required")
		}
		key, err := secrets.Load(secrets.Source{
			Name:  "gemini api key",
			Value: cfg.Gemini.APIKey,
			Env:   "GEMINI_API_KEY",
			File:  cfg.Gemini.APIKeyFile,
		})
		if err != nil {
			return nil, fmt.Errorf("%w (set extractor.gemini.api-key-file or GEMINI_API_KEY)", err)
		}
		genLogger := log.With(zap.Int("ai_retry_attempts", cfg.Gemini.MaxRetries))
		return gemini.New(ctx, key, cfg.Gemini.Model, cfg.Gemini.MaxRetries, genLogger)

	case openai.ProviderAzure:
		if cfg.Azure == nil {
			return nil, errors.New("extractor.azure configuration is required")
		}
		key, err := secrets.Load(secrets.Source{
			Name:  "azure openai api key",
			Value: cfg.Azure.APIKey,
			Env:   "AZURE_OPENAI_API_KEY",
			File:  cfg.Azure.APIKeyFile,
		})
		if err != nil {
			return nil, fmt.Errorf("%w (set extractor.azure.api-key-file or AZURE_OPENAI_API_KEY)", err)
		}
		return openai.New(openai.Config{
			APIKey:     key,
			Model:      cfg.Azure.Deployment,
			BaseURL:    cfg.Azure.Endpoint,
			Azure:      true,
			APIVersion: cfg.Azure.APIVersion,
		})

	case openai.ProviderOpenAI:
		if cfg.OpenAI == nil {
			return nil, errors.New("extractor.openai configuration is required")
		}
		key, err := secrets.Load(secrets.Source{
			Name:  "openai api key",
			Value: cfg.OpenAI.APIKey,
			Env:   "OPENAI_API_KEY",
			File:  cfg.OpenAI.APIKeyFile,
		})
		if err != nil {
			return nil, fmt.Errorf("%w (set extractor.openai.api-key-file or OPENAI_API_KEY)", err)
		}
		return openai.New(openai.Config{APIKey: key, Model: cfg.OpenAI.Model, BaseURL: cfg.OpenAI.BaseURL})

	default:
		return nil, fmt.Errorf("unsupported extractor provider: %s", cfg.Provider)
	}
}

func (d *deps) newExtractor(ctx context.Context) (extract.Extractor, error) {
	cfg := d.config.Extractor
	gen, err := newGenerator(ctx, cfg, d.logger)
	if err != nil {
		return nil, fmt.Errorf("building extractor: %w", err)
	}

	opts := []extract.Option{extract.WithMaxLogLength(cfg.MaxLogLength)}
	if cfg.TechMappingFile != "" {
		data, err := os.ReadFile(cfg.TechMappingFile)
		if err != nil {
			return nil, fmt.Errorf("reading tech mapping: %w", err)
		}
		opts = append(opts, extract.WithTechMapping(string(data)))
	}

	return extract.NewLLM(gen, logger.WithCommonFields(d.logger, gen.Provider(), gen.Model()), opts...), nil
}

func (d *deps) newCache(ctx context.Context) (cache.Cache, error) {
	url, err := secrets.Optional(secrets.Source{
		Name:  "redis url",
		Value: d.config.Cache.RedisURL,
		File:  d.config.Cache.RedisURLFile,
	})
	if err != nil {
		return nil, err
	}
	if url == "" {
		return cache.NewMemory(d.config.Cache.TTL), nil
	}
	return cache.NewRedis(ctx, url, d.config.Cache.TTL)
}

func (d *deps) newIngestor(ctx context.Context) (*ingest.Ingestor, error) {
	extractor, err := d.newExtractor(ctx)
	if err != nil {
		return nil, err
	}
	c, err := d.newCache(ctx)
	if err != nil {
		return nil, fmt.Errorf("building cache: %w", err)
	}
	d.cache = c
	return ingest.New(d.store, extractor, d.config.ingestConfig(), d.logger, ingest.WithCache(c))
}

func (d *deps) newEngine() (*scoring.Engine, error) {
	return scoring.NewEngine(d.store, d.config.rules(), d.logger)
}
