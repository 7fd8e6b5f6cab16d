package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"example.com/vidstream/services/engagement/config"
	"example.com/vidstream/services/engagement/internal/metrics"
	"example.com/vidstream/services/engagement/internal/repositories"
	"example.com/vidstream/services/engagement/internal/tracing"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the background worker",
	Long:  `Start the background worker that trims oversized watch histories and removes orphaned reactions`,
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return err
	}

	// Configure logging
	if cfg.Environment == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	// Set up signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// Create an error group to manage goroutines
	g, ctx := errgroup.WithContext(ctx)

	// Initialize database connections
	db, readOnlyDB, err := initDatabases(cfg)
	if err != nil {
		return err
	}

	// Initialize tracer
	tracer, err := tracing.NewTracer(cfg.Tracing)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
	}
	defer tracer.Close()

	// Initialize metrics
	metricsCollector := metrics.NewMetrics()

	// Initialize repositories
	reactionRepo := repositories.NewReactionRepository(db, readOnlyDB)
	historyRepo := repositories.NewWatchHistoryRepository(db, readOnlyDB)

	// Run the maintenance jobs on a schedule. The insert path keeps the
	// history cap on its own; these sweeps are the fallback for cap changes
	// and for hard-deleted targets.
	g.Go(func() error {
		log.Info().Msg("Starting maintenance scheduler")

		scheduler, err := gocron.NewScheduler()
		if err != nil {
			return err
		}

		// Trim any watch history that grew past the cap
		_, err = scheduler.NewJob(
			gocron.DurationJob(15*time.Minute),
			gocron.NewTask(func() {
				txn := tracer.StartTransaction("trim-watch-histories")
				defer tracer.EndTransaction(txn)

				trimmed, err := historyRepo.TrimAllToCap(ctx, cfg.History.MaxEntries)
				if err != nil {
					tracer.RecordError(txn, err)
					log.Error().Err(err).Msg("Failed to trim watch histories")
					return
				}
				if trimmed > 0 {
					metricsCollector.IncrementCounterBy("histories_trimmed", trimmed)
					log.Info().Int64("owners_trimmed", trimmed).Msg("Trimmed oversized watch histories")
				}
			}),
		)
		if err != nil {
			return err
		}

		// Remove reactions whose target was hard-deleted
		_, err = scheduler.NewJob(
			gocron.DurationJob(1*time.Hour),
			gocron.NewTask(func() {
				txn := tracer.StartTransaction("delete-orphaned-reactions")
				defer tracer.EndTransaction(txn)

				removed, err := reactionRepo.DeleteOrphaned(ctx)
				if err != nil {
					tracer.RecordError(txn, err)
					log.Error().Err(err).Msg("Failed to delete orphaned reactions")
					return
				}
				if removed > 0 {
					metricsCollector.IncrementCounterBy("orphaned_reactions_deleted", removed)
					log.Info().Int64("reactions_removed", removed).Msg("Deleted orphaned reactions")
				}
			}),
		)
		if err != nil {
			return err
		}

		// Start the scheduler
		scheduler.Start()

		// Wait for context cancellation
		<-ctx.Done()

		// Shutdown the scheduler
		return scheduler.Shutdown()
	})

	// Wait for any goroutine to exit
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Worker error")
		return err
	}

	log.Info().Msg("Worker shutting down gracefully")
	return nil
}
