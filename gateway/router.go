package gateway

import (
	"live-hub/auth"
	"live-hub/contract"
	"live-hub/domain"
	"live-hub/errors"
	"live-hub/services"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// NewRouter wires the websocket endpoint, the media grant endpoint and the health check.
func NewRouter(handler *Handler, verifier contract.IdentityVerifier, service services.IRoomService,
	stats contract.StatsProvider, mode string) *gin.Engine {
	if mode == gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	if mode == gin.DebugMode {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "ok",
			"rooms":       len(stats.RoomStats()),
			"connections": stats.ConnectionCount(),
		})
	})

	authenticated := r.Group("/", auth.Middleware(verifier))
	authenticated.GET("/ws", handler.ServeWS)
	authenticated.POST("/api/rooms/:key/media-token", mediaToken(service))
	return r
}

type mediaTokenResponse struct {
	Token     string    `json:"token"`
	Room      string    `json:"room"`
	ExpiresAt time.Time `json:"expires_at"`
}

func mediaToken(service services.IRoomService) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, _ := auth.IdentityFrom(c)
		key, err := domain.ParseRoomKey(c.Param("key"))
		if err != nil {
			abortWith(c, err)
			return
		}
		token, expiresAt, err := service.MediaToken(c.Request.Context(), identity, key)
		if err != nil {
			abortWith(c, err)
			return
		}
		c.JSON(http.StatusOK, mediaTokenResponse{Token: token, Room: key.String(), ExpiresAt: expiresAt})
	}
}

func abortWith(c *gin.Context, err error) {
	reason := errors.ReasonCode(err)
	c.AbortWithStatusJSON(statusOf(reason), gin.H{"reason": reason})
}

func statusOf(reason string) int {
	switch reason {
	case errors.ReasonUnauthorized:
		return http.StatusForbidden
	case errors.ReasonRoomNotFound:
		return http.StatusNotFound
	case errors.ReasonInvalidEvent:
		return http.StatusBadRequest
	case errors.ReasonOverload:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
