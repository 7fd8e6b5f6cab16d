package handlers

import (
	"net/http"

	"example.com/vidstream/services/engagement/internal/api/middleware"
	"example.com/vidstream/services/engagement/internal/models"
	"example.com/vidstream/services/engagement/internal/services"
	"example.com/vidstream/services/engagement/internal/tracing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ReactionHandler handles reaction-related HTTP requests
type ReactionHandler struct {
	reactionService *services.ReactionService
	auth            *middleware.Auth
	tracer          tracing.Tracer
}

// NewReactionHandler creates a new reaction handler
func NewReactionHandler(reactionService *services.ReactionService, auth *middleware.Auth, tracer tracing.Tracer) *ReactionHandler {
	return &ReactionHandler{
		reactionService: reactionService,
		auth:            auth,
		tracer:          tracer,
	}
}

// ToggleResponse reports the resulting state of a toggle request.
type ToggleResponse struct {
	State    string    `json:"state"`
	TargetID uuid.UUID `json:"target_id"`
}

// HandleToggleVideoReaction toggles a like or disLike on a video. The kind
// comes from the query string so the endpoint covers both stances.
func (h *ReactionHandler) HandleToggleVideoReaction(c *gin.Context) {
	kind := models.ReactionKind(c.Query("kind"))
	h.toggle(c, models.TargetVideo, c.Param("videoId"), kind)
}

// HandleToggleCommentReaction toggles a like on a comment.
func (h *ReactionHandler) HandleToggleCommentReaction(c *gin.Context) {
	h.toggle(c, models.TargetComment, c.Param("commentId"), models.ReactionLike)
}

// HandleToggleSubscription toggles a subscription to a channel.
func (h *ReactionHandler) HandleToggleSubscription(c *gin.Context) {
	h.toggle(c, models.TargetChannel, c.Param("channelId"), models.ReactionSubscribe)
}

func (h *ReactionHandler) toggle(c *gin.Context, targetKind models.TargetKind, rawTargetID string, kind models.ReactionKind) {
	txn := h.tracer.StartTransaction("api-toggle-reaction")
	defer h.tracer.EndTransaction(txn)

	actorID, ok := middleware.ActorID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	targetID, err := uuid.Parse(rawTargetID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed target id"})
		return
	}

	outcome, err := h.reactionService.Toggle(c, actorID, targetKind, targetID, kind)
	if err != nil {
		h.tracer.RecordError(txn, err)
		writeServiceError(c, err, "Failed to toggle reaction")
		return
	}

	c.JSON(http.StatusOK, ToggleResponse{
		State:    string(outcome),
		TargetID: targetID,
	})
}

// HandleGetVideoReactions returns the aggregate for a video.
func (h *ReactionHandler) HandleGetVideoReactions(c *gin.Context) {
	h.aggregate(c, models.TargetVideo, c.Param("videoId"))
}

// HandleGetCommentReactions returns the aggregate for a comment.
func (h *ReactionHandler) HandleGetCommentReactions(c *gin.Context) {
	h.aggregate(c, models.TargetComment, c.Param("commentId"))
}

// HandleGetSubscription returns the aggregate for a channel.
func (h *ReactionHandler) HandleGetSubscription(c *gin.Context) {
	h.aggregate(c, models.TargetChannel, c.Param("channelId"))
}

func (h *ReactionHandler) aggregate(c *gin.Context, targetKind models.TargetKind, rawTargetID string) {
	targetID, err := uuid.Parse(rawTargetID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed target id"})
		return
	}

	// Anonymous viewers get counts with viewer_reacted always false
	viewerID, _ := middleware.ActorID(c)

	aggregates, err := h.reactionService.AggregateFor(c, targetKind, targetID, viewerID)
	if err != nil {
		writeServiceError(c, err, "Failed to aggregate reactions")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"target_id": targetID,
		"reactions": aggregates,
	})
}

// writeServiceError maps domain errors onto HTTP statuses.
func writeServiceError(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrInvalidArgument):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		log.Error().Err(err).Msg(msg)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// RegisterRoutes registers the handler's routes
func (h *ReactionHandler) RegisterRoutes(router *gin.Engine) {
	router.POST("/reactions/video/:videoId", h.auth.Require(), h.HandleToggleVideoReaction)
	router.POST("/reactions/comment/:commentId", h.auth.Require(), h.HandleToggleCommentReaction)
	router.POST("/subscriptions/:channelId", h.auth.Require(), h.HandleToggleSubscription)

	router.GET("/reactions/video/:videoId", h.auth.Optional(), h.HandleGetVideoReactions)
	router.GET("/reactions/comment/:commentId", h.auth.Optional(), h.HandleGetCommentReactions)
	router.GET("/subscriptions/:channelId", h.auth.Optional(), h.HandleGetSubscription)
}
