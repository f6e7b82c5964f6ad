package websocket

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/xpanvictor/voxbridge/internal/relay"
)

// Session wraps one client connection. All outbound writes go through the
// session's mutex since the relay goroutines and the read loop's own replies
// share the connection. Session implements relay.EventSink.
type Session struct {
	ID          uuid.UUID
	Conn        *websocket.Conn
	ConnectedAt time.Time

	mutex      sync.Mutex
	lastActive time.Time
	active     bool
}

// NewSession creates a session for an upgraded connection.
func NewSession(conn *websocket.Conn) *Session {
	return &Session{
		ID:          uuid.New(),
		Conn:        conn,
		ConnectedAt: time.Now(),
		lastActive:  time.Now(),
		active:      true,
	}
}

// SendStatus sends a lifecycle notice as a JSON text frame.
func (s *Session) SendStatus(status, message string) error {
	return s.writeJSON(StatusMessage{Status: status, Message: message})
}

// SendTranscript sends a transcript event as a JSON text frame.
func (s *Session) SendTranscript(ev relay.TranscriptEvent) error {
	return s.writeJSON(ev)
}

// SendAudioFrame sends model audio as a binary frame.
func (s *Session) SendAudioFrame(pcm []byte) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.active {
		return fmt.Errorf("session %s not active", s.ID)
	}
	return s.Conn.WriteMessage(websocket.BinaryMessage, pcm)
}

func (s *Session) writeJSON(v interface{}) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.active {
		return fmt.Errorf("session %s not active", s.ID)
	}
	return s.Conn.WriteJSON(v)
}

// UpdateLastActive refreshes the activity timestamp.
func (s *Session) UpdateLastActive() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.lastActive = time.Now()
}

// LastActive returns the time of the session's last inbound message.
func (s *Session) LastActive() time.Time {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.lastActive
}

// Close marks the session inactive and closes the underlying connection.
func (s *Session) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.active {
		return nil
	}
	s.active = false
	return s.Conn.Close()
}
