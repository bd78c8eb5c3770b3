// Package http wires the REST and websocket surfaces onto one gin engine.
package http

import (
	"context"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/iftarcode/sfu-server/internal/adapters/ws"
	"github.com/iftarcode/sfu-server/internal/config"
)

func genClientToken() string {
	return uuid.NewString()
}

// ClientTokenMiddleware pins an anonymous identity to each browser via
// the "ct" cookie. The token doubles as the peer id on the websocket.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, api *API, wsCtl *ws.Controller) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("IftarSessions", store))
	r.Use(ClientTokenMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	g := r.Group("/api")

	g.GET("/ws", func(c *gin.Context) {
		wsCtl.HandleSession(ctx, c)
	})

	g.POST("/rooms", api.createRoom)
	g.GET("/rooms", api.listRooms)
	g.GET("/rooms/:code", api.getRoom)
	g.DELETE("/rooms/:code", api.deleteRoom)
	g.POST("/rooms/:code/join", api.joinRoom)
	g.GET("/rooms/:code/participants", api.listParticipants)

	g.GET("/rooms/:code/messages", api.listMessages)
	g.POST("/rooms/:code/messages", api.postMessage)

	g.GET("/rooms/:code/signal", api.pollSignals)
	g.POST("/rooms/:code/signal", api.postSignal)

	g.GET("/turn", api.turnCredentials)

	return r
}
