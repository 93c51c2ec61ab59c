package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Mirage/internal/adapters/sse"
	"github.com/dkeye/Mirage/internal/adapters/ws"
	"github.com/dkeye/Mirage/internal/app/hub"
	"github.com/dkeye/Mirage/internal/app/orch"
	"github.com/dkeye/Mirage/internal/app/relay"
	"github.com/dkeye/Mirage/internal/config"
)

func genClientToken() string {
	return uuid.NewString()
}

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

func SetupRouter(
	ctx context.Context,
	cfg *config.Config,
	h *hub.Hub,
	o *orch.Orchestrator,
	r *relay.Relay,
) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	e := gin.New()
	if cfg.Mode == "debug" {
		e.Use(gin.Logger())
	}
	e.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	e.Use(sessions.Sessions("MirageSessions", store))
	e.Use(ClientTokenMiddleware())

	e.Static("/static", cfg.StaticPath)
	e.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	wsCtl := ws.NewController(h, o)
	sseCtl := sse.NewController(h)

	api := e.Group("/api")

	api.GET("/ws", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("ct", c.GetString("client_token")).Msg("ws endpoint hit")
		wsCtl.HandleStream(ctx, c)
	})

	api.GET("/events", func(c *gin.Context) {
		sseCtl.HandleStream(c)
	})

	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Read-only status surface; no side effects.
	api.GET("/status", func(c *gin.Context) {
		state, active := o.State()
		streamID, startedAt := o.Snapshot()
		resp := gin.H{
			"state":       string(state),
			"active":      active,
			"live":        r.IsLive(),
			"subscribers": h.Count(),
			"frame_count": r.FrameCount(),
		}
		if streamID != "" {
			resp["stream_id"] = streamID
		}
		if !startedAt.IsZero() {
			resp["uptime_seconds"] = time.Since(startedAt).Seconds()
		}
		c.JSON(http.StatusOK, resp)
	})

	return e
}
