package handlers

import (
	"net/http"
	"strconv"

	"example.com/vidstream/services/engagement/internal/api/middleware"
	"example.com/vidstream/services/engagement/internal/services"
	"example.com/vidstream/services/engagement/internal/tracing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// WatchHistoryHandler handles watch-history HTTP requests
type WatchHistoryHandler struct {
	historyService *services.WatchHistoryService
	auth           *middleware.Auth
	tracer         tracing.Tracer
}

// NewWatchHistoryHandler creates a new watch-history handler
func NewWatchHistoryHandler(historyService *services.WatchHistoryService, auth *middleware.Auth, tracer tracing.Tracer) *WatchHistoryHandler {
	return &WatchHistoryHandler{
		historyService: historyService,
		auth:           auth,
		tracer:         tracer,
	}
}

// HandleRecordWatch records that the caller watched a video.
func (h *WatchHistoryHandler) HandleRecordWatch(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-record-watch")
	defer h.tracer.EndTransaction(txn)

	ownerID, ok := middleware.ActorID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	videoID, err := uuid.Parse(c.Param("videoId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed video id"})
		return
	}

	entry, err := h.historyService.RecordWatch(c, ownerID, videoID)
	if err != nil {
		h.tracer.RecordError(txn, err)
		writeServiceError(c, err, "Failed to record watch")
		return
	}

	c.JSON(http.StatusCreated, entry)
}

// HandleListHistory returns a page of the caller's history, newest first.
func (h *WatchHistoryHandler) HandleListHistory(c *gin.Context) {
	ownerID, ok := middleware.ActorID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	result, err := h.historyService.List(c, ownerID, page, pageSize)
	if err != nil {
		writeServiceError(c, err, "Failed to list watch history")
		return
	}

	c.JSON(http.StatusOK, result)
}

// HandleDeleteEntry removes one video from the caller's history.
func (h *WatchHistoryHandler) HandleDeleteEntry(c *gin.Context) {
	ownerID, ok := middleware.ActorID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	videoID, err := uuid.Parse(c.Param("videoId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed video id"})
		return
	}

	if err := h.historyService.DeleteOne(c, ownerID, videoID); err != nil {
		writeServiceError(c, err, "Failed to delete watch-history entry")
		return
	}

	c.Status(http.StatusNoContent)
}

// HandleClearHistory wipes the caller's entire history.
func (h *WatchHistoryHandler) HandleClearHistory(c *gin.Context) {
	ownerID, ok := middleware.ActorID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	if err := h.historyService.DeleteAll(c, ownerID); err != nil {
		writeServiceError(c, err, "Failed to clear watch history")
		return
	}

	c.Status(http.StatusNoContent)
}

// RegisterRoutes registers the handler's routes
func (h *WatchHistoryHandler) RegisterRoutes(router *gin.Engine) {
	history := router.Group("/watch-history", h.auth.Require())
	history.POST("/:videoId", h.HandleRecordWatch)
	history.GET("", h.HandleListHistory)
	history.DELETE("/:videoId", h.HandleDeleteEntry)
	history.DELETE("", h.HandleClearHistory)
}
