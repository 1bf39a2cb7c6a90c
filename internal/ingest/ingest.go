// Package ingest extracts documents into candidate and position records with a
// bounded number of concurrent extractions and a shared call-rate budget.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spigell/resume-matcher/internal/cache"
	"github.com/spigell/resume-matcher/internal/document"
	"github.com/spigell/resume-matcher/internal/extract"
	"github.com/spigell/resume-matcher/internal/logger"
	"github.com/spigell/resume-matcher/internal/ratelimit"
	"github.com/spigell/resume-matcher/internal/records"
)

const (
	DefaultMaxConcurrency = 20
	DefaultRateLimit      = 100
	DefaultRateWindow     = time.Minute
)

// ErrStoreUnavailable is returned by Run when the record store fails its
// connectivity check before any document is processed.
var ErrStoreUnavailable = errors.New("record store unavailable")

// Store is the part of the record store ingestion writes to.
type Store interface {
	Ping(ctx context.Context) error
	UpsertCandidate(ctx context.Context, c records.Candidate) error
	UpsertPosition(ctx context.Context, p records.Position) error
}

// Gate admits one extraction call per Wait.
type Gate interface {
	Wait(ctx context.Context) error
}

type Config struct {
	MaxConcurrency int           `mapstructure:"max-concurrency"`
	RateLimit      int           `mapstructure:"rate-limit"`
	RateWindow     time.Duration `mapstructure:"rate-window"`
	// ExtractTimeout bounds one extraction call, 0 means no bound.
	ExtractTimeout time.Duration `mapstructure:"extract-timeout"`
}

func DefaultConfig() Config {
	return Config{
		MaxConcurrency: DefaultMaxConcurrency,
		RateLimit:      DefaultRateLimit,
		RateWindow:     DefaultRateWindow,
	}
}

type Ingestor struct {
	store     Store
	extractor extract.Extractor
	reader    document.Reader
	gate      Gate
	cache     cache.Cache
	logger    *zap.Logger

	maxConcurrency int
	extractTimeout time.Duration

	newID func() string
	now   func() time.Time
}

type Option func(*Ingestor)

// WithCache consults c before spending call budget.
func WithCache(c cache.Cache) Option {
	return func(i *Ingestor) { i.cache = c }
}

func WithReader(r document.Reader) Option {
	return func(i *Ingestor) { i.reader = r }
}

// WithGate replaces the limiter built from Config.
func WithGate(g Gate) Option {
	return func(i *Ingestor) { i.gate = g }
}

func WithIDGenerator(f func() string) Option {
	return func(i *Ingestor) { i.newID = f }
}

func New(store Store, extractor extract.Extractor, cfg Config, log *zap.Logger, opts ...Option) (*Ingestor, error) {
	if store == nil {
		return nil, errors.New("record store is required")
	}
	if extractor == nil {
		return nil, errors.New("extractor is required")
	}
	if cfg.MaxConcurrency <= 0 {
		return nil, fmt.Errorf("max concurrency must be positive, got %d", cfg.MaxConcurrency)
	}

	i := &Ingestor{
		store:          store,
		extractor:      extractor,
		reader:         document.DocconvReader{},
		logger:         logger.WithFields(log, zap.String("component", "ingest")),
		maxConcurrency: cfg.MaxConcurrency,
		extractTimeout: cfg.ExtractTimeout,
		newID:          uuid.NewString,
		now:            func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(i)
	}

	if i.gate == nil {
		window, err := ratelimit.NewWindow(cfg.RateLimit, cfg.RateWindow)
		if err != nil {
			return nil, err
		}
		i.gate = window
	}
	return i, nil
}

// Run ingests docs as records of kind. Per-document failures never fail the
// batch; they are reported in the Report. Run returns an error only when the
// store is unreachable up front or ctx was cancelled, in which case the
// partial report is returned along with ctx.Err(). Documents already being
// extracted when ctx is cancelled run to completion.
func (i *Ingestor) Run(ctx context.Context, kind records.Kind, docs []document.Document) (*Report, error) {
	if kind != records.KindCandidate && kind != records.KindPosition {
		return nil, fmt.Errorf("%w: unknown kind %q", records.ErrValidation, kind)
	}
	if err := i.store.Ping(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	report := &Report{
		Kind:      kind,
		Policy:    records.PolicyFor(kind),
		Outcomes:  make([]Outcome, len(docs)),
		StartedAt: i.now(),
	}
	for idx, doc := range docs {
		report.Outcomes[idx] = Outcome{Document: doc.Path, Status: StatusNotStarted}
	}

	i.logger.Info("starting ingestion",
		zap.String(logger.FieldKind, string(kind)),
		zap.Int("documents", len(docs)),
		zap.Int("max_concurrency", i.maxConcurrency),
	)

	var g errgroup.Group
	g.SetLimit(i.maxConcurrency)
	for idx, doc := range docs {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			report.Outcomes[idx] = i.process(ctx, kind, doc)
			return nil
		})
	}
	_ = g.Wait()

	report.FinishedAt = i.now()
	report.tally()

	i.logger.Info("ingestion finished",
		zap.String(logger.FieldKind, string(kind)),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
		zap.Int("not_started", report.NotStarted),
		zap.Duration("took", report.FinishedAt.Sub(report.StartedAt)),
	)

	return report, ctx.Err()
}

func (i *Ingestor) process(ctx context.Context, kind records.Kind, doc document.Document) Outcome {
	out := Outcome{Document: doc.Path, Status: StatusNotStarted}
	log := logger.WithFields(i.logger, logger.DocumentFields(string(kind), doc.Path)...)

	if ctx.Err() != nil {
		return out
	}

	text, err := i.reader.Read(ctx, doc)
	if err != nil {
		if ctx.Err() != nil {
			return out
		}
		return out.fail(log, fmt.Errorf("%w: read document: %w", records.ErrExtraction, err))
	}
	if strings.TrimSpace(text) == "" {
		return out.fail(log, fmt.Errorf("%w: document text is empty", records.ErrExtraction))
	}

	fields, cached, err := i.extract(ctx, kind, text, log)
	if err != nil {
		if errors.Is(err, errNotStarted) {
			return out
		}
		return out.fail(log, err)
	}
	out.Cached = cached

	// From here on the document is in flight and is finished even if ctx ends.
	work := context.WithoutCancel(ctx)

	switch kind {
	case records.KindCandidate:
		c, err := buildCandidate(fields, i.newID(), doc, i.now())
		if err != nil {
			return out.reject(log, err)
		}
		out.RecordID = c.CandidateID
		err = i.store.UpsertCandidate(work, c)
		if errors.Is(err, records.ErrDuplicateKey) {
			return out.skip(log, "duplicate email "+c.Email, err)
		}
		if err != nil {
			return out.fail(log, fmt.Errorf("store candidate: %w", err))
		}
	case records.KindPosition:
		p, err := buildPosition(fields, doc, i.now())
		if err != nil {
			return out.reject(log, err)
		}
		out.RecordID = p.JobID
		if err := i.store.UpsertPosition(work, p); err != nil {
			return out.fail(log, fmt.Errorf("store position: %w", err))
		}
	}

	out.Status = StatusSucceeded
	log.Info("document ingested", zap.String("record_id", out.RecordID), zap.Bool("cached", out.Cached))
	return out
}

var errNotStarted = errors.New("cancelled before extraction started")

func (i *Ingestor) cacheKey(kind records.Kind, text string) string {
	version := extract.PromptVersion
	if v, ok := i.extractor.(extract.Versioned); ok {
		version = v.CacheVersion(kind)
	}
	return cache.Key(string(kind), version, text)
}

// extract returns cached fields when present; otherwise it waits for the rate
// gate and calls the extractor.
func (i *Ingestor) extract(ctx context.Context, kind records.Kind, text string, log *zap.Logger) (*extract.Fields, bool, error) {
	key := i.cacheKey(kind, text)

	if i.cache != nil {
		raw, ok, err := i.cache.Get(ctx, key)
		if err != nil {
			log.Warn("extraction cache lookup failed", zap.Error(err))
		}
		if ok {
			var fields extract.Fields
			if err := json.Unmarshal(raw, &fields); err == nil {
				return &fields, true, nil
			}
			log.Warn("ignoring unreadable cache entry")
		}
	}

	if err := i.gate.Wait(ctx); err != nil {
		return nil, false, errNotStarted
	}

	work := context.WithoutCancel(ctx)
	if i.extractTimeout > 0 {
		var cancel context.CancelFunc
		work, cancel = context.WithTimeout(work, i.extractTimeout)
		defer cancel()
	}

	started := time.Now()
	fields, err := i.extractor.Extract(work, kind, text)
	if err != nil {
		if !errors.Is(err, records.ErrExtraction) {
			err = fmt.Errorf("%w: %w", records.ErrExtraction, err)
		}
		return nil, false, err
	}
	log.Debug("extraction done", zap.Duration("took", time.Since(started)))

	if i.cache != nil {
		if raw, err := json.Marshal(fields); err == nil {
			if err := i.cache.Set(work, key, raw); err != nil {
				log.Warn("extraction cache store failed", zap.Error(err))
			}
		}
	}
	return fields, false, nil
}
