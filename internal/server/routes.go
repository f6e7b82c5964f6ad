package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/xpanvictor/voxbridge/internal/config"
	"github.com/xpanvictor/voxbridge/internal/handlers/websocket"
	"github.com/xpanvictor/voxbridge/pkg/Logger"
)

type Dependencies struct {
	Logger    *Logger.Logger
	Configs   *config.Settings
	WSHandler *websocket.WebSocketHandler
}

func NewServerDependencies(
	logger *Logger.Logger,
	cfg *config.Settings,
	wsHandler *websocket.WebSocketHandler,
) Dependencies {
	return Dependencies{
		Logger:    logger,
		Configs:   cfg,
		WSHandler: wsHandler,
	}
}

func InitializeRoutes(cfg *config.Settings, r *gin.Engine, dep Dependencies) {
	r.GET("/health", func(ctx *gin.Context) { ctx.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/stats", dep.WSHandler.HandleStats)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	dep.WSHandler.RegisterRoutes(r)

	// The browser client is served from the static dir; / is the app page.
	r.StaticFile("/", cfg.Server.StaticDir+"/index.html")
	r.Static("/static", cfg.Server.StaticDir)
}
