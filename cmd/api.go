package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"example.com/vidstream/services/engagement/config"
	"example.com/vidstream/services/engagement/internal/api"
	"example.com/vidstream/services/engagement/internal/cache"
	"example.com/vidstream/services/engagement/internal/eventbus"
	"example.com/vidstream/services/engagement/internal/metrics"
	"example.com/vidstream/services/engagement/internal/models"
	"example.com/vidstream/services/engagement/internal/realtime"
	"example.com/vidstream/services/engagement/internal/repositories"
	"example.com/vidstream/services/engagement/internal/services"
	"example.com/vidstream/services/engagement/internal/tracing"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the API server",
	Long:  `Start the HTTP API server serving reactions, watch history and the realtime websocket gateway`,
	RunE:  runAPI,
}

func init() {
	rootCmd.AddCommand(apiCmd)
}

func runAPI(cmd *cobra.Command, args []string) error {
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

	// Initialize database connections
	db, readOnlyDB, err := initDatabases(cfg)
	if err != nil {
		return err
	}

	// Initialize cache
	redisCache, err := cache.NewRedisCache(cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Redis cache, continuing without caching")
	}

	// Initialize tracer
	tracer, err := tracing.NewTracer(cfg.Tracing)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
	}

	// Initialize metrics
	metricsCollector := metrics.NewMetrics()
	metricsCollector.SetHealth("database", true)

	// Initialize the in-process event bus
	bus := eventbus.New(cfg.Events.BufferSize)
	defer func() {
		if err := bus.Close(); err != nil {
			log.Error().Err(err).Msg("Event bus shutdown error")
		}
	}()

	// Initialize the realtime hub and bridge it to the bus
	hub := realtime.NewHub(cfg.Realtime.QueueDepth, cfg.Realtime.SendTimeout, metricsCollector)
	forwarder := realtime.NewForwarder(hub, bus)
	if err := forwarder.Start(ctx); err != nil {
		return errors.Wrap(err, "failed to start realtime forwarder")
	}
	defer forwarder.Stop()

	// Initialize repositories
	reactionRepo := repositories.NewReactionRepository(db, readOnlyDB)
	historyRepo := repositories.NewWatchHistoryRepository(db, readOnlyDB)
	entityRepo := repositories.NewEntityRepository(readOnlyDB)

	// Initialize services
	reactionService := services.NewReactionService(reactionRepo, entityRepo, redisCache, bus, metricsCollector, tracer)
	historyService := services.NewWatchHistoryService(historyRepo, entityRepo, redisCache, bus, metricsCollector, tracer, cfg.History.MaxEntries)

	// Initialize and start the server
	server := api.NewServer(cfg, reactionService, historyService, hub, metricsCollector, tracer)

	// Start the server in a goroutine
	go func() {
		if err := server.Start(); err != nil {
			log.Error().Err(err).Msg("Server error")
		}
	}()

	// Wait for termination signal
	<-ctx.Done()

	// Shutdown the server, then disconnect realtime clients
	if err := server.Shutdown(context.Background()); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}
	hub.Shutdown()

	log.Info().Msg("Shutting down API server")
	return nil
}

func initDatabases(cfg config.Config) (*gorm.DB, *gorm.DB, error) {
	// Initialize write database. TranslateError turns driver duplicate-key
	// errors into gorm.ErrDuplicatedKey, which the toggle path relies on.
	db, err := gorm.Open(postgres.Open(cfg.DB.DSN), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to connect to write database")
	}

	// Initialize read-only database
	readOnlyDB, err := gorm.Open(postgres.Open(cfg.DB.ReadOnlyDSN), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to connect to read-only database")
	}

	// Auto-migrate only the write database
	if err := models.SetupModels(db); err != nil {
		return nil, nil, errors.Wrap(err, "failed to run migrations")
	}

	// Configure connection pools for both databases
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to get underlying write DB connection")
	}
	sqlDB.SetMaxIdleConns(cfg.DB.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.DB.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.DB.ConnMaxLifetime)

	readSqlDB, err := readOnlyDB.DB()
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to get underlying read-only DB connection")
	}

	// Higher limits for read operations
	readSqlDB.SetMaxIdleConns(cfg.DB.MaxIdleConns * 2)
	readSqlDB.SetMaxOpenConns(cfg.DB.MaxOpenConns * 2)
	readSqlDB.SetConnMaxLifetime(cfg.DB.ConnMaxLifetime)

	return db, readOnlyDB, nil
}
