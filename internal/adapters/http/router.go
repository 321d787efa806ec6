package http

import (
	"context"

	"github.com/dkeye/Duet/internal/adapters/signal"
	"github.com/dkeye/Duet/internal/app/orch"
	"github.com/dkeye/Duet/internal/config"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator, ctl *signal.SignalWSController) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("DuetSessions", store))

	if cfg.StaticPath != "" {
		r.Static("/static", cfg.StaticPath)
		r.GET("/", func(c *gin.Context) {
			c.File(cfg.StaticPath + "/index.html")
		})
	}

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	ident := Identity{JWTSecret: []byte(cfg.JWTSecret), AllowQuery: cfg.AllowQueryIdentity}
	h := &MessageHandler{Orch: o}

	api := r.Group("/api")

	api.GET("/ws/signal", func(c *gin.Context) {
		uid, _ := ident.Resolve(c)
		log.Debug().Str("module", "adapters.http").Str("uid", string(uid)).Msg("ws signal endpoint hit")
		ctl.HandleSignal(ctx, c, uid)
	})

	authed := api.Group("", RequireIdentity(ident))
	authed.GET("/presence", h.Presence)

	msgs := authed.Group("/messages")
	msgs.GET("/users", h.Users)
	msgs.GET("/:id", h.Conversation)
	msgs.POST("/send/:id", h.Send)
	msgs.DELETE("/delete-for-me/:messageId", h.DeleteForMe)
	msgs.DELETE("/delete-for-everyone/:messageId", h.DeleteForEveryone)

	return r
}
