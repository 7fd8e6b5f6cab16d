package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const actorContextKey = "actorID"

// Auth validates bearer tokens and exposes the actor identity to handlers.
type Auth struct {
	secret []byte
}

// NewAuth creates auth middleware using an HMAC signing secret.
func NewAuth(jwtSecret string) *Auth {
	return &Auth{secret: []byte(jwtSecret)}
}

// Require rejects requests without a valid bearer token.
func (a *Auth) Require() gin.HandlerFunc {
	return func(c *gin.Context) {
		actorID, ok := a.actorFromRequest(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		c.Set(actorContextKey, actorID)
		c.Next()
	}
}

// Optional resolves the actor when a valid token is present, but lets
// anonymous requests through. Read endpoints use this so aggregates work
// without a session.
func (a *Auth) Optional() gin.HandlerFunc {
	return func(c *gin.Context) {
		if actorID, ok := a.actorFromRequest(c); ok {
			c.Set(actorContextKey, actorID)
		}
		c.Next()
	}
}

func (a *Auth) actorFromRequest(c *gin.Context) (uuid.UUID, bool) {
	header := c.GetHeader("Authorization")
	tokenString, found := strings.CutPrefix(header, "Bearer ")
	if !found || tokenString == "" {
		// Websocket clients cannot set headers from the browser, so the
		// token may arrive as a query parameter instead.
		tokenString = c.Query("token")
	}
	if tokenString == "" {
		return uuid.Nil, false
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return a.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		log.Debug().Err(err).Msg("Rejected bearer token")
		return uuid.Nil, false
	}

	subject, err := token.Claims.GetSubject()
	if err != nil {
		return uuid.Nil, false
	}
	actorID, err := uuid.Parse(subject)
	if err != nil {
		return uuid.Nil, false
	}
	return actorID, true
}

// ActorID returns the authenticated actor from the request context, or
// uuid.Nil and false for anonymous requests.
func ActorID(c *gin.Context) (uuid.UUID, bool) {
	v, exists := c.Get(actorContextKey)
	if !exists {
		return uuid.Nil, false
	}
	actorID, ok := v.(uuid.UUID)
	return actorID, ok
}
