// Package live wraps the bidirectional Gemini Live session behind a small
// interface so the relay can be driven by a fake upstream in tests.
package live

import "context"

// ServerEvent is one unit of upstream output, already flattened for the relay.
// A single event may carry audio and transcript fragments at the same time.
type ServerEvent struct {
	// Audio is model voice output, 16-bit LE PCM at the output sample rate.
	Audio []byte
	// UserText is an interim transcription fragment of the user's speech.
	UserText string
	// UserFinal marks the user's current utterance as complete.
	UserFinal bool
	// ModelText is a fragment of the model's output transcription.
	ModelText string
	// TurnComplete marks the end of the model's response turn.
	TurnComplete bool
	// GoAway signals the upstream is about to close the connection.
	GoAway bool
}

// Session is one open live conversation with the upstream model.
type Session interface {
	// SendAudio forwards one raw PCM chunk upstream.
	SendAudio(pcm []byte) error
	// Receive blocks until the next upstream event. It returns an error when
	// the session ends or breaks; there is no in-band close sentinel.
	Receive() (ServerEvent, error)
	Close() error
}

// Connector opens live sessions. One relay holds one connector and opens at
// most one session at a time through it.
type Connector interface {
	Connect(ctx context.Context) (Session, error)
}
