// Package schedule periodically re-ingests the configured document folders.
package schedule

import (
	"context"
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/spigell/resume-matcher/internal/document"
	"github.com/spigell/resume-matcher/internal/ingest"
	"github.com/spigell/resume-matcher/internal/logger"
	"github.com/spigell/resume-matcher/internal/records"
)

type Ingester interface {
	Run(ctx context.Context, kind records.Kind, docs []document.Document) (*ingest.Report, error)
}

// Source is a folder whose documents are ingested as kind.
type Source struct {
	Kind records.Kind
	Dir  string
}

type Scheduler struct {
	cron       *cron.Cron
	spec       string
	ingester   Ingester
	sources    []Source
	extensions []string
	logger     *zap.Logger
}

func New(spec string, ingester Ingester, sources []Source, extensions []string, log *zap.Logger) (*Scheduler, error) {
	if ingester == nil {
		return nil, errors.New("ingester is required")
	}
	if len(sources) == 0 {
		return nil, errors.New("at least one source folder is required")
	}

	l := logger.WithFields(log, zap.String("component", "schedule"), zap.String("spec", spec))
	cl := cronLogger{l}
	return &Scheduler{
		cron:       cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		spec:       spec,
		ingester:   ingester,
		sources:    sources,
		extensions: extensions,
		logger:     l,
	}, nil
}

// Start registers the job and starts ticking. A run still in progress when
// the next tick fires makes that tick a no-op.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.spec, func() { s.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("schedule %q: %w", s.spec, err)
	}
	s.cron.Start()
	s.logger.Info("scheduler started")
	return nil
}

// Stop stops ticking and waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// RunOnce ingests every source in order. A failing source is logged and the
// remaining sources still run.
func (s *Scheduler) RunOnce(ctx context.Context) {
	s.logger.Info("ingestion cycle started")
	for _, src := range s.sources {
		if ctx.Err() != nil {
			return
		}
		log := logger.WithFields(s.logger, zap.String(logger.FieldKind, string(src.Kind)), zap.String("dir", src.Dir))

		docs, err := document.Discover(src.Dir, s.extensions)
		if err != nil {
			log.Error("discover documents", zap.Error(err))
			continue
		}
		if len(docs) == 0 {
			log.Info("no documents found")
			continue
		}

		report, err := s.ingester.Run(ctx, src.Kind, docs)
		if err != nil {
			log.Error("ingestion run failed", zap.Error(err))
			continue
		}
		log.Info("source ingested",
			zap.Int("succeeded", report.Succeeded),
			zap.Int("skipped", report.Skipped),
			zap.Int("failed", report.Failed),
		)
	}
	s.logger.Info("ingestion cycle complete")
}

// cronLogger routes cron's own messages through zap.
type cronLogger struct {
	l *zap.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug(msg, zap.Any("details", keysAndValues))
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error(msg, zap.Error(err), zap.Any("details", keysAndValues))
}
