package websocket

// Client commands arrive as JSON text frames; audio arrives as binary frames.
const (
	CommandStartSession = "start_session"
	CommandStopSession  = "stop_session"
)

// ClientCommand is the envelope for control messages from the browser.
type ClientCommand struct {
	Command string `json:"command"`
}

// StatusMessage is the envelope for session lifecycle notices to the browser.
type StatusMessage struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}
