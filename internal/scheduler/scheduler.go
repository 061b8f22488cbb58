package scheduler

import (
	"context"
	"fmt"

	"github.com/amaumene/sequelarr/internal/controllers"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Scheduler manages scheduled tasks
type Scheduler struct {
	cron              *cron.Cron
	dispatchCtrl      *controllers.DispatchController
	ingestCtrl        *controllers.IngestController
	sweepIntervalMins int
	backfillBatchSize int
	logger            zerolog.Logger
}

// NewScheduler creates a new scheduler
func NewScheduler(
	dispatchCtrl *controllers.DispatchController,
	ingestCtrl *controllers.IngestController,
	sweepIntervalMins int,
	backfillBatchSize int,
	logger zerolog.Logger,
) *Scheduler {
	return &Scheduler{
		cron:              cron.New(),
		dispatchCtrl:      dispatchCtrl,
		ingestCtrl:        ingestCtrl,
		sweepIntervalMins: sweepIntervalMins,
		backfillBatchSize: backfillBatchSize,
		logger:            logger,
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() error {
	s.logger.Info().Msg("Starting scheduler")

	// Dispatch sweep: deliver or suppress pending monitoring entries
	_, err := s.cron.AddFunc(fmt.Sprintf("@every %dm", s.sweepIntervalMins), func() {
		s.runSweep()
	})
	if err != nil {
		return fmt.Errorf("failed to add sweep job: %w", err)
	}

	// Nightly: backfill provider metadata for catalog entries missing it
	_, err = s.cron.AddFunc("0 3 * * *", func() {
		s.runBackfill()
	})
	if err != nil {
		return fmt.Errorf("failed to add backfill job: %w", err)
	}

	s.cron.Start()
	s.logger.Info().Msg("Scheduler started")

	// Run an initial sweep immediately so entries recorded while the
	// service was down do not wait a full interval.
	go s.runSweep()

	return nil
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.logger.Info().Msg("Stopping scheduler")
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// runSweep executes the dispatch sweep job
func (s *Scheduler) runSweep() {
	s.logger.Info().Msg("Running scheduled dispatch sweep")
	ctx := context.Background()

	result, err := s.dispatchCtrl.Sweep(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Dispatch sweep failed")
		return
	}

	s.logger.Info().
		Int("dispatched", result.Dispatched).
		Int("suppressed", result.Suppressed).
		Int("skipped", result.Skipped).
		Int("failed", result.Failed).
		Msg("Dispatch sweep completed")
}

// runBackfill executes the metadata backfill job
func (s *Scheduler) runBackfill() {
	s.logger.Info().Msg("Running scheduled metadata backfill")
	ctx := context.Background()

	enriched, err := s.ingestCtrl.BackfillMetadata(ctx, s.backfillBatchSize)
	if err != nil {
		s.logger.Error().Err(err).Msg("Metadata backfill failed")
		return
	}

	s.logger.Info().Int("enriched", enriched).Msg("Metadata backfill completed")
}
