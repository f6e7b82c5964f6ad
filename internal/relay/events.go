package relay

// Status levels for server status messages.
const (
	StatusInfo    = "info"
	StatusWarning = "warning"
	StatusError   = "error"
)

// Transcript event types sent to the client.
const (
	EventUserTranscript       = "user_transcript"
	EventModelTranscript      = "model_transcript"
	EventCustomUserTranscript = "custom_user_transcript"
	EventUserTurnStart        = "user_turn_start"
	EventError                = "error"
)

// TranscriptEvent is one tagged unit of text for the client's transcript pane.
type TranscriptEvent struct {
	Type        string `json:"type"`
	Data        string `json:"data,omitempty"`
	IsFinalPart bool   `json:"is_final_part,omitempty"`
	TurnID      string `json:"turn_id,omitempty"`
}

// EventSink receives everything the relay produces for one client connection.
// Implementations must be safe for concurrent use; the relay writes from its
// receiving loop and from dispatch goroutines.
type EventSink interface {
	SendStatus(status, message string) error
	SendTranscript(ev TranscriptEvent) error
	SendAudioFrame(pcm []byte) error
}
