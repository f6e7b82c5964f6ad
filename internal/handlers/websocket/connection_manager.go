package websocket

import (
	"sync"

	"github.com/xpanvictor/voxbridge/pkg/Logger"
)

// ConnectionManager enforces the single-client policy: the service relays for
// exactly one browser at a time, so a second connection is refused rather
// than multiplexed.
type ConnectionManager struct {
	logger  *Logger.Logger
	mutex   sync.Mutex
	current *Session
}

// NewConnectionManager creates a new connection manager.
func NewConnectionManager(logger *Logger.Logger) *ConnectionManager {
	return &ConnectionManager{logger: logger}
}

// Claim registers the session as the active client. Returns false when
// another client already holds the slot.
func (cm *ConnectionManager) Claim(session *Session) bool {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	if cm.current != nil {
		cm.logger.Warnf("Refusing session %s: session %s is already connected",
			session.ID, cm.current.ID)
		return false
	}
	cm.current = session
	cm.logger.Infof("Registered session %s", session.ID)
	return true
}

// Release frees the slot if the session still holds it.
func (cm *ConnectionManager) Release(session *Session) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	if cm.current == session {
		cm.logger.Infof("Unregistered session %s", session.ID)
		cm.current = nil
	}
}

// Active returns the currently connected session, or nil.
func (cm *ConnectionManager) Active() *Session {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	return cm.current
}

// GetStats returns connection statistics.
func (cm *ConnectionManager) GetStats() map[string]interface{} {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	stats := map[string]interface{}{
		"connected": cm.current != nil,
	}
	if cm.current != nil {
		stats["session_id"] = cm.current.ID.String()
		stats["connected_at"] = cm.current.ConnectedAt
		stats["last_active"] = cm.current.LastActive()
	}
	return stats
}

// Close drops the active session, if any.
func (cm *ConnectionManager) Close() error {
	cm.mutex.Lock()
	session := cm.current
	cm.current = nil
	cm.mutex.Unlock()

	if session != nil {
		return session.Close()
	}
	return nil
}
