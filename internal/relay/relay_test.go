package relay

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xpanvictor/voxbridge/internal/live"
	"github.com/xpanvictor/voxbridge/pkg/Logger"
)

type fakeSession struct {
	mu        sync.Mutex
	sent      [][]byte
	events    chan live.ServerEvent
	closed    chan struct{}
	closeOnce sync.Once
	closeErr  error
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		events: make(chan live.ServerEvent, 64),
		closed: make(chan struct{}),
	}
}

func (s *fakeSession) SendAudio(pcm []byte) error {
	select {
	case <-s.closed:
		return errors.New("session closed")
	default:
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, append([]byte(nil), pcm...))
	return nil
}

func (s *fakeSession) Receive() (live.ServerEvent, error) {
	select {
	case ev, ok := <-s.events:
		if !ok {
			return live.ServerEvent{}, errors.New("upstream gone")
		}
		return ev, nil
	case <-s.closed:
		return live.ServerEvent{}, errors.New("session closed")
	}
}

func (s *fakeSession) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return s.closeErr
}

func (s *fakeSession) sentChunks() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.sent))
	copy(out, s.sent)
	return out
}

func (s *fakeSession) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

type fakeConnector struct {
	mu       sync.Mutex
	sessions []*fakeSession
	err      error
}

func (c *fakeConnector) Connect(ctx context.Context) (live.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	s := newFakeSession()
	c.sessions = append(c.sessions, s)
	return s, nil
}

func (c *fakeConnector) connectCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

func (c *fakeConnector) lastSession() *fakeSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sessions) == 0 {
		return nil
	}
	return c.sessions[len(c.sessions)-1]
}

type statusMsg struct {
	status  string
	message string
}

type fakeSink struct {
	mu          sync.Mutex
	statuses    []statusMsg
	transcripts []TranscriptEvent
	audio       [][]byte
}

func (s *fakeSink) SendStatus(status, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, statusMsg{status, message})
	return nil
}

func (s *fakeSink) SendTranscript(ev TranscriptEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcripts = append(s.transcripts, ev)
	return nil
}

func (s *fakeSink) SendAudioFrame(pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audio = append(s.audio, append([]byte(nil), pcm...))
	return nil
}

func (s *fakeSink) statusCount(status, message string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, m := range s.statuses {
		if m.status == status && m.message == message {
			count++
		}
	}
	return count
}

func (s *fakeSink) transcriptsOfType(eventType string) []TranscriptEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []TranscriptEvent
	for _, ev := range s.transcripts {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

type recordingRecognizer struct {
	mu    sync.Mutex
	audio []byte
	text  string
	delay time.Duration
}

func (r *recordingRecognizer) Recognize(ctx context.Context, pcm []byte) (string, error) {
	r.mu.Lock()
	r.audio = append([]byte(nil), pcm...)
	r.mu.Unlock()
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	return r.text, nil
}

func testConfig() Config {
	return Config{
		QueueSize:        64,
		TurnBufferBytes:  64 * 1024,
		SecondaryTimeout: time.Second,
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestStartTwiceKeepsSingleUpstreamSession(t *testing.T) {
	connector := &fakeConnector{}
	sink := &fakeSink{}
	r := New(testConfig(), connector, nil, sink, nil, Logger.New(true))
	defer r.Stop(false)

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("first start failed: %v", err)
	}
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("second start should be non-fatal, got: %v", err)
	}

	if got := connector.connectCount(); got != 1 {
		t.Errorf("Expected exactly one upstream session, got %d", got)
	}
	if got := sink.statusCount(StatusInfo, "Session already active."); got != 1 {
		t.Errorf("Expected one already-active notice, got %d", got)
	}
}

func TestAudioChunksForwardedInOrder(t *testing.T) {
	connector := &fakeConnector{}
	sink := &fakeSink{}
	r := New(testConfig(), connector, nil, sink, nil, Logger.New(true))
	defer r.Stop(false)

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	chunks := make([][]byte, 10)
	for i := range chunks {
		chunks[i] = []byte{byte(i), byte(i + 1), byte(i + 2)}
		r.HandleAudioChunk(chunks[i])
	}

	session := connector.lastSession()
	waitFor(t, "all chunks forwarded", func() bool {
		return len(session.sentChunks()) == len(chunks)
	})

	sent := session.sentChunks()
	for i, chunk := range chunks {
		if !bytes.Equal(sent[i], chunk) {
			t.Errorf("Chunk %d out of order or corrupted: expected %v, got %v", i, chunk, sent[i])
		}
	}
}

func TestAudioChunkWithoutSessionWarns(t *testing.T) {
	connector := &fakeConnector{}
	sink := &fakeSink{}
	r := New(testConfig(), connector, nil, sink, nil, Logger.New(true))

	r.HandleAudioChunk([]byte{1, 2, 3})

	if got := sink.statusCount(StatusWarning, "Session not active. Cannot process audio."); got != 1 {
		t.Errorf("Expected one not-active warning, got %d", got)
	}
	if connector.connectCount() != 0 {
		t.Error("No upstream session should have been opened")
	}
}

func TestStopWhenIdleAcknowledgesCleanly(t *testing.T) {
	connector := &fakeConnector{}
	sink := &fakeSink{}
	r := New(testConfig(), connector, nil, sink, nil, Logger.New(true))

	r.Stop(true)

	if got := sink.statusCount(StatusInfo, "Live session stopped."); got != 1 {
		t.Errorf("Expected one stopped ack, got %d", got)
	}
	if got := len(sink.transcriptsOfType(EventError)); got != 0 {
		t.Errorf("Expected no error events, got %d", got)
	}
}

func TestStopClosesUpstreamSession(t *testing.T) {
	connector := &fakeConnector{}
	sink := &fakeSink{}
	r := New(testConfig(), connector, nil, sink, nil, Logger.New(true))

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	r.Stop(true)

	if !connector.lastSession().isClosed() {
		t.Error("Upstream session should be closed after stop")
	}
	if r.Active() {
		t.Error("Relay should be inactive after stop")
	}
	if got := sink.statusCount(StatusInfo, "Live session stopped."); got != 1 {
		t.Errorf("Expected one stopped ack, got %d", got)
	}
}

func TestTurnLifecycleKeepsStableTurnID(t *testing.T) {
	connector := &fakeConnector{}
	sink := &fakeSink{}
	rec := &recordingRecognizer{text: "hello"}
	r := New(testConfig(), connector, rec, sink, nil, Logger.New(true))
	defer r.Stop(false)

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	session := connector.lastSession()

	session.events <- live.ServerEvent{UserText: "he"}
	waitFor(t, "turn open", func() bool { return r.TurnState() == "user_speaking" })
	r.HandleAudioChunk([]byte{1, 2, 3, 4})
	waitFor(t, "chunk forwarded", func() bool { return len(session.sentChunks()) == 1 })

	session.events <- live.ServerEvent{UserText: "hello", UserFinal: true}
	session.events <- live.ServerEvent{ModelText: "hi there", Audio: []byte{1, 2}}
	session.events <- live.ServerEvent{TurnComplete: true}

	waitFor(t, "model transcript relayed", func() bool {
		return len(sink.transcriptsOfType(EventModelTranscript)) == 1
	})

	starts := sink.transcriptsOfType(EventUserTurnStart)
	if len(starts) != 1 {
		t.Fatalf("Expected one turn start, got %d", len(starts))
	}
	turnID := starts[0].TurnID
	if turnID == "" {
		t.Fatal("Turn start must carry a turn id")
	}

	userFrags := sink.transcriptsOfType(EventUserTranscript)
	if len(userFrags) != 2 {
		t.Fatalf("Expected two user fragments, got %d", len(userFrags))
	}
	for i, frag := range userFrags {
		if frag.TurnID != turnID {
			t.Errorf("Fragment %d has turn id %s, expected %s", i, frag.TurnID, turnID)
		}
	}
	if userFrags[0].IsFinalPart {
		t.Error("First fragment should not be final")
	}
	if !userFrags[1].IsFinalPart {
		t.Error("Second fragment should be final")
	}

	model := sink.transcriptsOfType(EventModelTranscript)
	if model[0].TurnID != turnID {
		t.Errorf("Model transcript tagged %s, expected %s", model[0].TurnID, turnID)
	}

	waitFor(t, "secondary transcript delivered", func() bool {
		return len(sink.transcriptsOfType(EventCustomUserTranscript)) == 1
	})
	secondary := sink.transcriptsOfType(EventCustomUserTranscript)
	if secondary[0].TurnID != turnID {
		t.Errorf("Secondary transcript tagged %s, expected %s", secondary[0].TurnID, turnID)
	}
	if secondary[0].Data != "hello" {
		t.Errorf("Unexpected secondary text: %q", secondary[0].Data)
	}

	waitFor(t, "turn released", func() bool { return r.TurnState() == "idle" })
}

func TestLateSecondaryResultStillTagged(t *testing.T) {
	connector := &fakeConnector{}
	sink := &fakeSink{}
	rec := &recordingRecognizer{text: "slow transcript", delay: 100 * time.Millisecond}
	r := New(testConfig(), connector, rec, sink, nil, Logger.New(true))
	defer r.Stop(false)

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	session := connector.lastSession()

	session.events <- live.ServerEvent{UserText: "question"}
	waitFor(t, "turn open", func() bool { return r.TurnState() == "user_speaking" })
	r.HandleAudioChunk([]byte{7, 8})
	waitFor(t, "chunk forwarded", func() bool { return len(session.sentChunks()) == 1 })

	session.events <- live.ServerEvent{UserText: " please", UserFinal: true}
	session.events <- live.ServerEvent{ModelText: "fast answer"}
	session.events <- live.ServerEvent{TurnComplete: true}

	// The turn is released well before the secondary result lands.
	waitFor(t, "turn released", func() bool { return r.TurnState() == "idle" })

	waitFor(t, "late secondary result", func() bool {
		return len(sink.transcriptsOfType(EventCustomUserTranscript)) == 1
	})
	starts := sink.transcriptsOfType(EventUserTurnStart)
	secondary := sink.transcriptsOfType(EventCustomUserTranscript)
	if secondary[0].TurnID != starts[0].TurnID {
		t.Errorf("Late result tagged %s, expected %s", secondary[0].TurnID, starts[0].TurnID)
	}
}

func TestTurnAudioSnapshotHandedToRecognizer(t *testing.T) {
	connector := &fakeConnector{}
	sink := &fakeSink{}
	rec := &recordingRecognizer{text: "ok"}
	r := New(testConfig(), connector, rec, sink, nil, Logger.New(true))
	defer r.Stop(false)

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	session := connector.lastSession()

	// Audio before the turn opens is not part of the turn.
	r.HandleAudioChunk([]byte{0xAA})
	waitFor(t, "pre-turn chunk forwarded", func() bool {
		return len(session.sentChunks()) == 1
	})

	session.events <- live.ServerEvent{UserText: "hi"}
	waitFor(t, "turn open", func() bool { return r.TurnState() == "user_speaking" })

	r.HandleAudioChunk([]byte{1, 2})
	r.HandleAudioChunk([]byte{3, 4})
	waitFor(t, "turn chunks forwarded", func() bool {
		return len(session.sentChunks()) == 3
	})

	session.events <- live.ServerEvent{UserFinal: true}

	waitFor(t, "recognizer called", func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return rec.audio != nil
	})
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if !bytes.Equal(rec.audio, []byte{1, 2, 3, 4}) {
		t.Errorf("Recognizer got %v, expected turn audio only", rec.audio)
	}
}

func TestUpstreamFailureMarksInactive(t *testing.T) {
	connector := &fakeConnector{}
	sink := &fakeSink{}
	r := New(testConfig(), connector, nil, sink, nil, Logger.New(true))

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	// Break the upstream without going through Stop.
	close(connector.lastSession().events)

	waitFor(t, "relay inactive", func() bool { return !r.Active() })

	waitFor(t, "error status delivered", func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		for _, m := range sink.statuses {
			if m.status == StatusError {
				return true
			}
		}
		return false
	})
}

func TestFailureTeardownSurvivesCloseError(t *testing.T) {
	connector := &fakeConnector{}
	sink := &fakeSink{}
	r := New(testConfig(), connector, nil, sink, nil, Logger.New(true))

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	session := connector.lastSession()
	session.mu.Lock()
	session.closeErr = errors.New("already closed upstream")
	session.mu.Unlock()

	close(session.events)

	waitFor(t, "relay inactive", func() bool { return !r.Active() })
	if !session.isClosed() {
		t.Error("Upstream session should be closed despite the close error")
	}
	waitFor(t, "error status delivered", func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		for _, m := range sink.statuses {
			if m.status == StatusError {
				return true
			}
		}
		return false
	})
}

func TestConnectFailureReportsError(t *testing.T) {
	connector := &fakeConnector{err: errors.New("auth rejected")}
	sink := &fakeSink{}
	r := New(testConfig(), connector, nil, sink, nil, Logger.New(true))

	if err := r.Start(context.Background()); err == nil {
		t.Fatal("Expected start to fail")
	}
	if r.Active() {
		t.Error("Relay must not be active after failed connect")
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.statuses) == 0 || sink.statuses[0].status != StatusError {
		t.Error("Expected an error status for the failed connect")
	}
}

func TestModelAudioRelayedToClient(t *testing.T) {
	connector := &fakeConnector{}
	sink := &fakeSink{}
	r := New(testConfig(), connector, nil, sink, nil, Logger.New(true))
	defer r.Stop(false)

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	session := connector.lastSession()

	frame := []byte{10, 20, 30, 40}
	session.events <- live.ServerEvent{Audio: frame}

	waitFor(t, "audio frame relayed", func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return len(sink.audio) == 1
	})
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if !bytes.Equal(sink.audio[0], frame) {
		t.Errorf("Relayed frame %v, expected %v", sink.audio[0], frame)
	}
}
