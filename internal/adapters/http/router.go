// Package http wires the REST surface: anonymous session issuance,
// file upload/download, static assets and the websocket entry point.
package http

import (
	"context"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/natlachat/natla/internal/adapters/signal"
	"github.com/natlachat/natla/internal/app"
	"github.com/natlachat/natla/internal/app/orch"
	"github.com/natlachat/natla/internal/config"
	"github.com/natlachat/natla/internal/store"
)

func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator, st *store.Store, limiter *app.FixedWindowLimiter) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	cookieStore := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("NatlaSessions", cookieStore))

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})

	auth := &AuthHandler{Store: st, Limiter: limiter, Limit: cfg.SessionLimit}
	r.POST("/auth/session", auth.CreateSession)

	files := &FileHandler{
		Store:       st,
		Limiter:     limiter,
		UploadLimit: cfg.UploadLimit,
		Dir:         cfg.UploadDir,
		MaxBytes:    cfg.UploadMaxMB << 20,
	}
	r.POST("/upload", files.Upload)
	r.GET("/download/:fileId", files.Download)

	ws := &signal.Controller{
		Orch:       o,
		Validator:  st,
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
	}
	r.GET("/api/ws/signal", func(c *gin.Context) {
		ws.HandleSignal(ctx, c)
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")
	return r
}
