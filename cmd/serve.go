package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/resume-matcher/internal/api"
	"github.com/spigell/resume-matcher/internal/records"
	"github.com/spigell/resume-matcher/internal/schedule"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API and optionally re-ingest on a schedule",
	Run: func(_ *cobra.Command, _ []string) {
		serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d := mustSetup(ctx)
	defer d.close()

	ingestor, err := d.newIngestor(ctx)
	if err != nil {
		d.logger.Fatal("building ingestor", zap.Error(err))
	}
	engine, err := d.newEngine()
	if err != nil {
		d.logger.Fatal("building scoring engine", zap.Error(err))
	}

	if spec := d.config.Serve.IngestCron; spec != "" {
		sched, err := schedule.New(spec, ingestor, []schedule.Source{
			{Kind: records.KindPosition, Dir: d.config.Ingest.PositionsDir},
			{Kind: records.KindCandidate, Dir: d.config.Ingest.ResumesDir},
		}, d.config.Ingest.Extensions, d.logger)
		if err != nil {
			d.logger.Fatal("building scheduler", zap.Error(err))
		}
		if err := sched.Start(ctx); err != nil {
			d.logger.Fatal("starting scheduler", zap.Error(err))
		}
		defer sched.Stop()
	}

	if !viper.GetBool("debug") {
		gin.SetMode(gin.ReleaseMode)
	}
	server := api.New(d.store, ingestor, engine, d.logger,
		api.WithCORSOrigins(d.config.Serve.CORSOrigins...),
		api.WithIngestRoot(records.KindCandidate, d.config.Ingest.ResumesDir),
		api.WithIngestRoot(records.KindPosition, d.config.Ingest.PositionsDir),
	)
	if err := server.Serve(ctx, d.config.Serve.Addr); err != nil {
		d.logger.Error("server stopped", zap.Error(err))
	}
}
