package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/xpanvictor/voxbridge/internal/config"
	"github.com/xpanvictor/voxbridge/internal/live"
	"github.com/xpanvictor/voxbridge/internal/metrics"
	"github.com/xpanvictor/voxbridge/internal/relay"
	"github.com/xpanvictor/voxbridge/internal/transcription"
	"github.com/xpanvictor/voxbridge/pkg/Logger"
)

// WebSocketHandler owns the /ws endpoint. Each accepted connection gets its
// own relay wired to the shared upstream connector and secondary recognizer.
type WebSocketHandler struct {
	logger            *Logger.Logger
	settings          *config.Settings
	connector         live.Connector
	recognizer        transcription.Recognizer
	metrics           *metrics.Metrics
	connectionManager *ConnectionManager
	upgrader          websocket.Upgrader
}

// NewWebSocketHandler creates a new WebSocket handler. recognizer may be nil
// when secondary transcription is disabled.
func NewWebSocketHandler(
	logger *Logger.Logger,
	settings *config.Settings,
	connector live.Connector,
	recognizer transcription.Recognizer,
	m *metrics.Metrics,
) *WebSocketHandler {
	return &WebSocketHandler{
		logger:            logger,
		settings:          settings,
		connector:         connector,
		recognizer:        recognizer,
		metrics:           m,
		connectionManager: NewConnectionManager(logger),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// TODO: Implement proper origin checking for production
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes registers WebSocket routes.
func (h *WebSocketHandler) RegisterRoutes(router gin.IRouter) {
	router.GET("/ws", h.HandleWebSocket)
	router.GET("/ws/stats", h.HandleStats)
}

// HandleWebSocket upgrades the connection and runs the read loop until the
// client disconnects.
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Errorf("WebSocket upgrade failed: %v", err)
		return
	}

	session := NewSession(conn)
	if !h.connectionManager.Claim(session) {
		session.SendStatus(relay.StatusError, "Another client is already connected.")
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "single client only"),
			time.Now().Add(time.Second),
		)
		conn.Close()
		return
	}
	defer h.connectionManager.Release(session)
	defer session.Close()

	h.logger.Infof("Client connected (session %s)", session.ID)

	r := relay.New(
		relay.Config{
			QueueSize:        h.settings.Audio.ChunkQueueSize,
			TurnBufferBytes:  h.settings.Audio.TurnBufferBytes,
			SecondaryTimeout: time.Duration(h.settings.Transcription.TimeoutSeconds) * time.Second,
		},
		h.connector,
		h.recognizer,
		session,
		h.metrics,
		h.logger,
	)
	// Disconnect tears the live session down without a stop ack; the
	// client is gone.
	defer r.Stop(false)

	h.handleConnection(session, r)
}

// handleConnection is the per-connection read loop.
func (h *WebSocketHandler) handleConnection(session *Session, r *relay.Relay) {
	for {
		messageType, data, err := session.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Errorf("WebSocket read error: %v", err)
			} else {
				h.logger.Infof("Client disconnected (session %s)", session.ID)
			}
			return
		}

		session.UpdateLastActive()

		switch messageType {
		case websocket.TextMessage:
			h.handleCommand(session, r, data)
		case websocket.BinaryMessage:
			r.HandleAudioChunk(data)
		}
	}
}

// handleCommand parses and executes a control frame. A malformed or unknown
// command warns the client but keeps the connection open.
func (h *WebSocketHandler) handleCommand(session *Session, r *relay.Relay, data []byte) {
	var cmd ClientCommand
	if err := json.Unmarshal(data, &cmd); err != nil {
		h.logger.Errorf("Failed to unmarshal client command: %v", err)
		session.SendStatus(relay.StatusWarning, "Malformed command payload.")
		return
	}

	switch cmd.Command {
	case CommandStartSession:
		if err := r.Start(context.Background()); err != nil {
			h.logger.Errorf("Failed to start live session: %v", err)
		}
	case CommandStopSession:
		r.Stop(true)
	default:
		h.logger.Warnf("Unknown command: %q", cmd.Command)
		session.SendStatus(relay.StatusWarning, fmt.Sprintf("Unknown command: %s", cmd.Command))
	}
}

// HandleStats provides connection statistics.
func (h *WebSocketHandler) HandleStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"data":   h.connectionManager.GetStats(),
	})
}

// Close shuts down the WebSocket handler.
func (h *WebSocketHandler) Close() error {
	return h.connectionManager.Close()
}
