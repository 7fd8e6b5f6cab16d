package handlers

import (
	"net/http"

	"example.com/vidstream/services/engagement/internal/api/middleware"
	"example.com/vidstream/services/engagement/internal/realtime"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// RealtimeHandler upgrades HTTP requests to websocket connections on the hub.
type RealtimeHandler struct {
	hub      *realtime.Hub
	auth     *middleware.Auth
	upgrader websocket.Upgrader
}

// NewRealtimeHandler creates a new realtime handler
func NewRealtimeHandler(hub *realtime.Hub, auth *middleware.Auth) *RealtimeHandler {
	return &RealtimeHandler{
		hub:  hub,
		auth: auth,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Cross-origin browsers are expected; the token, not the
			// origin, is what authenticates a connection.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// HandleConnect upgrades the request and starts the client's pumps. Anonymous
// connections are allowed; they receive notifications like anyone else.
func (h *RealtimeHandler) HandleConnect(c *gin.Context) {
	actorID, _ := middleware.ActorID(c)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}

	client := realtime.NewClient(h.hub, conn, actorID)
	client.Start()
}

// RegisterRoutes registers the handler's routes
func (h *RealtimeHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/realtime", h.auth.Optional(), h.HandleConnect)
}
