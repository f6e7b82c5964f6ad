package relay

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/looplab/fsm"
	"github.com/xpanvictor/voxbridge/pkg/audio"
)

// Turn states per connection:
//
//	idle -> user_speaking -> awaiting_model -> idle
const (
	stateIdle          = "idle"
	stateUserSpeaking  = "user_speaking"
	stateAwaitingModel = "awaiting_model"
)

const (
	eventUserSpeech = "user_speech"
	eventUserFinal  = "user_final"
	eventModelDone  = "model_done"
)

// turnDispatchFunc receives a finalized turn's id and its audio snapshot.
type turnDispatchFunc func(turnID string, pcm []byte)

// turnTracker correlates user utterances with model responses. The forwarding
// loop appends audio through it, the receiving loop drives the transitions;
// the internal lock is the explicit hand-off between the two.
type turnTracker struct {
	mu       sync.Mutex
	machine  *fsm.FSM
	turnID   string
	buf      *audio.TurnBuffer
	dispatch turnDispatchFunc
}

func newTurnTracker(bufferBytes int, dispatch turnDispatchFunc) *turnTracker {
	return &turnTracker{
		machine: fsm.NewFSM(
			stateIdle,
			fsm.Events{
				{Name: eventUserSpeech, Src: []string{stateIdle}, Dst: stateUserSpeaking},
				{Name: eventUserFinal, Src: []string{stateUserSpeaking}, Dst: stateAwaitingModel},
				{Name: eventModelDone, Src: []string{stateAwaitingModel}, Dst: stateIdle},
			},
			fsm.Callbacks{},
		),
		buf:      audio.NewTurnBuffer(bufferBytes),
		dispatch: dispatch,
	}
}

// AppendAudio records a forwarded chunk into the current turn's buffer. Chunks
// arriving outside a user turn are not retained.
func (t *turnTracker) AppendAudio(pcm []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.machine.Is(stateUserSpeaking) {
		return
	}
	t.buf.Append(pcm)
}

// OnUserFragment handles one interim user transcript fragment. The first
// non-empty fragment opens a new turn; the final flag hands the buffered audio
// to the dispatcher. Returns the turn id the fragment belongs to and whether
// this fragment opened the turn.
func (t *turnTracker) OnUserFragment(text string, final bool) (turnID string, started bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if text != "" && t.machine.Is(stateIdle) {
		t.turnID = uuid.New().String()
		t.buf.Reset()
		t.machine.Event(context.Background(), eventUserSpeech)
		started = true
	}
	if final {
		t.finalize()
	}
	return t.turnID, started
}

// OnModelFragment returns the turn id a model transcript fragment belongs to.
// Model speech while the user turn is still open implies the vendor skipped
// the final flag, so the turn is finalized here.
func (t *turnTracker) OnModelFragment() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.finalize()
	return t.turnID
}

// OnTurnComplete releases the current turn id once the model's response for it
// has completed. Returns the released id, or "" when no turn was open.
func (t *turnTracker) OnTurnComplete() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.finalize()
	if !t.machine.Is(stateAwaitingModel) {
		return ""
	}
	id := t.turnID
	t.turnID = ""
	t.machine.Event(context.Background(), eventModelDone)
	return id
}

// finalize moves user_speaking to awaiting_model, snapshotting the buffered
// audio for the dispatcher. The snapshot carries the id by value so a slow
// transcription can never observe the next turn's state. Caller holds t.mu.
func (t *turnTracker) finalize() {
	if !t.machine.Is(stateUserSpeaking) {
		return
	}
	pcm := t.buf.Take()
	id := t.turnID
	t.machine.Event(context.Background(), eventUserFinal)
	if t.dispatch != nil {
		t.dispatch(id, pcm)
	}
}

// Reset discards any buffered audio and the open turn, for session teardown.
func (t *turnTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.buf.Reset()
	t.turnID = ""
	t.machine.SetState(stateIdle)
}

func (t *turnTracker) State() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.machine.Current()
}
