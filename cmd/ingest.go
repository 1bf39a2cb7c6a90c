package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/resume-matcher/internal/document"
	"github.com/spigell/resume-matcher/internal/records"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Extract documents into the record store",
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	for _, sub := range []struct {
		use   string
		kind  records.Kind
		short string
	}{
		{"candidates [file...]", records.KindCandidate, "Ingest resumes (default: ingest.resumes-dir)"},
		{"positions [file...]", records.KindPosition, "Ingest job descriptions (default: ingest.positions-dir)"},
	} {
		ingestCmd.AddCommand(&cobra.Command{
			Use:   sub.use,
			Short: sub.short,
			Run: func(_ *cobra.Command, args []string) {
				runIngest(sub.kind, args)
			},
		})
	}
}

func runIngest(kind records.Kind, paths []string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d := mustSetup(ctx)
	defer d.close()

	ingestor, err := d.newIngestor(ctx)
	if err != nil {
		d.logger.Fatal("building ingestor", zap.Error(err))
	}

	docs := document.FromPaths(paths...)
	if len(docs) == 0 {
		dir := d.config.Ingest.ResumesDir
		if kind == records.KindPosition {
			dir = d.config.Ingest.PositionsDir
		}
		docs, err = document.Discover(dir, d.config.Ingest.Extensions)
		if err != nil {
			d.logger.Fatal("discovering documents", zap.Error(err))
		}
	}

	if len(docs) == 0 {
		d.logger.Info("exiting", zap.String("reason", "no documents found"))
		return
	}

	report, err := ingestor.Run(ctx, kind, docs)
	if err != nil && report == nil {
		d.logger.Fatal("ingestion failed", zap.Error(err))
	}
	if errors.Is(err, context.Canceled) {
		d.logger.Warn("ingestion interrupted", zap.Int("not_started", report.NotStarted))
	}

	for _, o := range report.Failures() {
		d.logger.Warn("document not ingested", zap.String("document", o.Document), zap.String("reason", o.Reason))
	}
	printJSON(report)
}
