package app

import (
	"context"
	"fmt"
	"os"

	"github.com/xpanvictor/voxbridge/internal/config"
	"github.com/xpanvictor/voxbridge/internal/handlers/websocket"
	"github.com/xpanvictor/voxbridge/internal/live"
	"github.com/xpanvictor/voxbridge/internal/metrics"
	"github.com/xpanvictor/voxbridge/internal/server"
	"github.com/xpanvictor/voxbridge/internal/transcription"
	"github.com/xpanvictor/voxbridge/pkg/Logger"
)

// App represents the application with all its dependencies
type App struct {
	Config     *config.Settings
	Logger     *Logger.Logger
	Connector  live.Connector
	Recognizer transcription.Recognizer
	Metrics    *metrics.Metrics
	WSHandler  *websocket.WebSocketHandler
	ServerDeps server.Dependencies

	googleRecognizer *transcription.GoogleRecognizer
}

// NewApp creates a new application instance with all dependencies properly wired
func NewApp(ctx context.Context, cfg *config.Settings, logger *Logger.Logger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.setupDependencies(ctx); err != nil {
		return nil, err
	}

	return app, nil
}

// setupDependencies initializes all application dependencies
func (a *App) setupDependencies(ctx context.Context) error {
	apiKey := os.Getenv("GOOGLE_GENAI_API_KEY")
	if apiKey == "" {
		return fmt.Errorf("GOOGLE_GENAI_API_KEY is not set")
	}

	connector, err := live.NewGeminiConnector(ctx, live.GeminiConfig{
		APIKey:          apiKey,
		Model:           a.Config.Live.Model,
		InputSampleRate: a.Config.Audio.InputSampleRate,
	}, a.Logger.Named("live"))
	if err != nil {
		return fmt.Errorf("failed to set up live connector: %w", err)
	}
	a.Connector = connector

	if a.Config.Transcription.Enabled {
		recognizer, err := transcription.NewGoogleRecognizer(ctx, transcription.GoogleConfig{
			Language:         a.Config.Transcription.Language,
			SampleRate:       a.Config.Audio.InputSampleRate,
			StreamChunkBytes: a.Config.Transcription.StreamChunkBytes,
		}, a.Logger.Named("transcription"))
		if err != nil {
			return fmt.Errorf("failed to set up speech recognizer: %w", err)
		}
		a.googleRecognizer = recognizer
		a.Recognizer = recognizer
	} else {
		a.Logger.Info("Secondary transcription disabled")
	}

	a.Metrics = metrics.New()

	a.WSHandler = websocket.NewWebSocketHandler(
		a.Logger.Named("ws"),
		a.Config,
		a.Connector,
		a.Recognizer,
		a.Metrics,
	)

	a.ServerDeps = server.NewServerDependencies(a.Logger, a.Config, a.WSHandler)
	return nil
}

// Close releases held clients.
func (a *App) Close() error {
	var firstErr error
	if err := a.WSHandler.Close(); err != nil {
		firstErr = err
	}
	if a.googleRecognizer != nil {
		if err := a.googleRecognizer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
