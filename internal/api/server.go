package api

import (
	"context"
	"net/http"
	"time"

	"example.com/vidstream/services/engagement/config"
	"example.com/vidstream/services/engagement/internal/api/handlers"
	"example.com/vidstream/services/engagement/internal/api/middleware"
	"example.com/vidstream/services/engagement/internal/metrics"
	"example.com/vidstream/services/engagement/internal/realtime"
	"example.com/vidstream/services/engagement/internal/services"
	"example.com/vidstream/services/engagement/internal/tracing"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Server represents the HTTP server
type Server struct {
	config          config.Config
	router          *gin.Engine
	httpServer      *http.Server
	reactionService *services.ReactionService
	historyService  *services.WatchHistoryService
	hub             *realtime.Hub
	metrics         *metrics.Metrics
	tracer          tracing.Tracer
}

// NewServer creates a new HTTP server
func NewServer(
	cfg config.Config,
	reactionService *services.ReactionService,
	historyService *services.WatchHistoryService,
	hub *realtime.Hub,
	metricsCollector *metrics.Metrics,
	tracer tracing.Tracer,
) *Server {
	server := &Server{
		config:          cfg,
		reactionService: reactionService,
		historyService:  historyService,
		hub:             hub,
		metrics:         metricsCollector,
		tracer:          tracer,
	}

	router := server.setupRouter()
	server.router = router

	httpServer := &http.Server{
		Addr:              cfg.ServerAddress,
		Handler:           router,
		ReadHeaderTimeout: cfg.ServerTimeout,
	}
	server.httpServer = httpServer

	return server
}

// setupRouter configures the HTTP router
func (s *Server) setupRouter() *gin.Engine {
	if s.config.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger())

	auth := middleware.NewAuth(s.config.Auth.JWTSecret)

	// Register handlers
	reactionHandler := handlers.NewReactionHandler(s.reactionService, auth, s.tracer)
	reactionHandler.RegisterRoutes(router)

	historyHandler := handlers.NewWatchHistoryHandler(s.historyService, auth, s.tracer)
	historyHandler.RegisterRoutes(router)

	realtimeHandler := handlers.NewRealtimeHandler(s.hub, auth)
	realtimeHandler.RegisterRoutes(router)

	if s.config.MetricsEnabled {
		metricsHandler := handlers.NewMetricsHandler(s.metrics, s.tracer)
		metricsHandler.RegisterRoutes(router)
	} else {
		router.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})
	}

	return router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	log.Info().Str("address", s.config.ServerAddress).Msg("Starting HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "HTTP server error")
	}

	return nil
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down HTTP server")

	// Create a timeout context for shutdown
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "HTTP server shutdown error")
	}

	log.Info().Msg("HTTP server shut down successfully")
	return nil
}
