package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/xpanvictor/voxbridge/internal/app"
	"github.com/xpanvictor/voxbridge/internal/config"
	"github.com/xpanvictor/voxbridge/internal/server"
	"github.com/xpanvictor/voxbridge/pkg/Logger"
)

// This is the main entry point for the relay server.
// Loads in all system components
// Exposes the WebSocket endpoint and the browser client
func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	// fetch cfg
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	// load global logger
	logger := Logger.New(cfg.Debug)
	logger.Info("Logger initialized")

	ctx := context.Background()
	application, err := app.NewApp(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to wire application: %v", err)
	}
	defer application.Close()

	// compose router
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	server.InitializeRoutes(cfg, router, application.ServerDeps)

	// listen with graceful exit
	srv := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: router.Handler(),
	}
	go func() {
		logger.Infof("Listening on %s", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Server exiting %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// 5 secs then cancel
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Shutdown err %v", err)
	}
	logger.Info("Shutdown system")
}
