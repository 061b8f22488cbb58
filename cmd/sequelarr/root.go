package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/amaumene/sequelarr/internal/api"
	"github.com/amaumene/sequelarr/internal/config"
	"github.com/amaumene/sequelarr/internal/controllers"
	"github.com/amaumene/sequelarr/internal/models"
	"github.com/amaumene/sequelarr/internal/notify"
	"github.com/amaumene/sequelarr/internal/observability"
	"github.com/amaumene/sequelarr/internal/scheduler"
	"github.com/amaumene/sequelarr/internal/services/mailer"
	"github.com/amaumene/sequelarr/internal/services/tmdb"
	"github.com/amaumene/sequelarr/internal/titles"
	"github.com/amaumene/sequelarr/internal/utils"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "sequelarr",
		Short:         "Sequel detection and notification service for media consumption history",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newSweepCmd(), newBackfillCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server and the scheduled pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run a single dispatch sweep and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := bootstrap()
			if err != nil {
				return err
			}
			defer app.close()

			result, err := app.dispatchCtrl.Sweep(cmd.Context())
			if err != nil {
				return fmt.Errorf("dispatch sweep failed: %w", err)
			}
			app.logger.Info().
				Int("dispatched", result.Dispatched).
				Int("suppressed", result.Suppressed).
				Int("skipped", result.Skipped).
				Int("failed", result.Failed).
				Msg("Dispatch sweep completed")
			return nil
		},
	}
}

func newBackfillCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Enrich catalog entries missing provider metadata and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := bootstrap()
			if err != nil {
				return err
			}
			defer app.close()

			if limit <= 0 {
				limit = app.cfg.BackfillBatchSize
			}
			enriched, err := app.ingestCtrl.BackfillMetadata(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("metadata backfill failed: %w", err)
			}
			app.logger.Info().Int("enriched", enriched).Msg("Metadata backfill completed")
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum catalog entries to enrich (default: BACKFILL_BATCH_SIZE)")
	return cmd
}

// app holds the wired dependency graph shared by all commands
type app struct {
	cfg             *config.Config
	logger          zerolog.Logger
	db              *models.Database
	tokens          *notify.TokenIssuer
	ingestCtrl      *controllers.IngestController
	dispatchCtrl    *controllers.DispatchController
	shutdownTracing func(context.Context) error
}

func (a *app) close() {
	if a.shutdownTracing != nil {
		_ = a.shutdownTracing(context.Background())
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}

func bootstrap() (*app, error) {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	// 2. Setup logger
	logger := utils.NewLogger(cfg.LogLevel)
	logger.Info().Str("config_dir", filepath.Dir(cfg.DatabaseFile)).Msg("Configuration loaded")

	// 3. Tracing
	shutdownTracing, err := observability.SetupTracing(cfg.TracingEnabled)
	if err != nil {
		return nil, fmt.Errorf("failed to setup tracing: %w", err)
	}

	// 4. Initialize database
	db, err := models.NewDatabase(cfg.DatabaseFile)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	logger.Info().Msg("Database initialized")

	// 5. Initialize services
	tmdbClient, err := tmdb.NewClient(cfg, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize TMDB client: %w", err)
	}
	logger.Info().Msg("TMDB client initialized")

	parser := titles.NewParser()

	// Provider allowance: TMDBRateLimit requests per TMDBRateWindow,
	// with bursts up to the full window allowance.
	limiter := rate.NewLimiter(
		rate.Limit(float64(cfg.TMDBRateLimit)/cfg.TMDBRateWindow.Seconds()),
		cfg.TMDBRateLimit,
	)
	enricher := tmdb.NewEnricher(tmdbClient, parser, limiter, tmdb.Options{
		CacheTTL:   cfg.EnrichCacheTTL,
		Timeout:    cfg.EnrichTimeout,
		MaxRetries: cfg.EnrichMaxRetries,
	}, logger)

	var sender mailer.Sender
	if cfg.SMTPHost != "" {
		sender = mailer.NewSMTPSender(cfg, logger)
		logger.Info().Str("smtp_host", cfg.SMTPHost).Msg("Email sender initialized")
	} else {
		logger.Info().Msg("SMTP_HOST not set, email delivery disabled")
	}

	tokens, err := notify.NewTokenIssuer(cfg.UnsubscribeSecret, cfg.TokenMaxAge)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize token issuer: %w", err)
	}

	// 6. Initialize controllers
	detectCtrl := controllers.NewDetectionController(db, parser, logger)
	monitorCtrl := controllers.NewMonitorController(db, logger)
	ingestCtrl := controllers.NewIngestController(db, parser, enricher, detectCtrl, monitorCtrl, logger)
	dispatchCtrl := controllers.NewDispatchController(db, tokens, sender, cfg.PublicURL, logger)
	logger.Info().Msg("Controllers initialized")

	return &app{
		cfg:             cfg,
		logger:          logger,
		db:              db,
		tokens:          tokens,
		ingestCtrl:      ingestCtrl,
		dispatchCtrl:    dispatchCtrl,
		shutdownTracing: shutdownTracing,
	}, nil
}

func runServe() error {
	app, err := bootstrap()
	if err != nil {
		return err
	}
	defer app.close()

	logger := app.logger
	logger.Info().Msg("Starting Sequelarr")

	// Scheduler: periodic dispatch sweeps and nightly backfill
	sched := scheduler.NewScheduler(
		app.dispatchCtrl,
		app.ingestCtrl,
		app.cfg.SweepIntervalMinutes,
		app.cfg.BackfillBatchSize,
		logger,
	)
	if err := sched.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer sched.Stop()

	// HTTP server
	server := api.NewServer(app.cfg, app.db, app.tokens, app.ingestCtrl, app.dispatchCtrl, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serverErrChan := make(chan error, 1)
	go func() {
		if err := server.Start(ctx); err != nil {
			serverErrChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info().Msg("Sequelarr is running")

	select {
	case err := <-serverErrChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
		if err := server.Shutdown(); err != nil {
			logger.Error().Err(err).Msg("Error during server shutdown")
		}
	}

	logger.Info().Msg("Sequelarr stopped")
	return nil
}
