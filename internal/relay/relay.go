// Package relay bridges one client connection to one upstream live
// conversation session, forwarding inbound audio and streaming responses
// back, with per-turn correlation for the secondary transcript.
package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/xpanvictor/voxbridge/internal/live"
	"github.com/xpanvictor/voxbridge/internal/metrics"
	"github.com/xpanvictor/voxbridge/internal/transcription"
	"github.com/xpanvictor/voxbridge/pkg/Logger"
)

// Config holds relay tunables, normally derived from the app settings.
type Config struct {
	QueueSize        int
	TurnBufferBytes  int
	SecondaryTimeout time.Duration
}

// Relay owns the per-connection session state: the active flag, the inbound
// audio queue and the turn tracker. It is created once per client connection
// and shared by the connection read loop and the relay's own goroutines.
type Relay struct {
	config     Config
	connector  live.Connector
	sink       EventSink
	dispatcher *transcription.Dispatcher // nil when secondary transcription is disabled
	metrics    *metrics.Metrics
	logger     *Logger.Logger
	tracker    *turnTracker

	mu      sync.Mutex
	active  bool
	queue   chan []byte
	stopCh  chan struct{}
	session live.Session
	wg      sync.WaitGroup
}

// New creates a relay for one connection. recognizer may be nil to disable
// the secondary transcription side-channel.
func New(
	config Config,
	connector live.Connector,
	recognizer transcription.Recognizer,
	sink EventSink,
	m *metrics.Metrics,
	logger *Logger.Logger,
) *Relay {
	r := &Relay{
		config:    config,
		connector: connector,
		sink:      sink,
		metrics:   m,
		logger:    logger,
	}
	r.tracker = newTurnTracker(config.TurnBufferBytes, r.dispatchTurn)
	if recognizer != nil {
		r.dispatcher = transcription.NewDispatcher(recognizer, config.SecondaryTimeout, r.deliverSecondary, logger)
	}
	return r
}

// Start opens the upstream session and spawns the two relay loops. A start
// while a session is already active is a non-fatal notice, not an error.
func (r *Relay) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active {
		r.logger.Warn("session already active, ignoring start request")
		r.sink.SendStatus(StatusInfo, "Session already active.")
		return nil
	}

	session, err := r.connector.Connect(ctx)
	if err != nil {
		r.logger.Errorf("failed to open live session: %v", err)
		r.sink.SendStatus(StatusError, fmt.Sprintf("Live session error: %v", err))
		if r.metrics != nil {
			r.metrics.SessionsFailed.Inc()
		}
		return err
	}

	r.session = session
	r.queue = make(chan []byte, r.config.QueueSize)
	r.stopCh = make(chan struct{})
	r.active = true
	r.tracker.Reset()

	r.wg.Add(2)
	go r.sendLoop(session, r.queue, r.stopCh)
	go r.recvLoop(session, r.stopCh)

	if r.metrics != nil {
		r.metrics.SessionsStarted.Inc()
		r.metrics.ActiveSessions.Inc()
	}
	r.logger.Info("live session started")
	r.sink.SendStatus(StatusInfo, "Live session started. Ready for audio.")
	return nil
}

// HandleAudioChunk enqueues one raw PCM chunk for the forwarding loop. With
// no active session it warns the client and drops the chunk.
func (r *Relay) HandleAudioChunk(pcm []byte) {
	r.mu.Lock()
	active, queue := r.active, r.queue
	r.mu.Unlock()

	if !active {
		r.logger.Warn("received audio chunk but session is not active")
		r.sink.SendStatus(StatusWarning, "Session not active. Cannot process audio.")
		return
	}

	select {
	case queue <- pcm:
	default:
		// Delivery is best-effort: a stalled upstream must not wedge the
		// connection read loop.
		r.logger.Warnf("audio queue full, dropping chunk of %d bytes", len(pcm))
	}
}

// Stop tears the session down and acknowledges to the client. Safe to call
// when no session exists.
func (r *Relay) Stop(notify bool) {
	r.mu.Lock()
	if !r.active {
		r.mu.Unlock()
		r.logger.Info("no active session to stop")
		if notify {
			r.sink.SendStatus(StatusInfo, "Live session stopped.")
		}
		return
	}
	r.active = false
	close(r.stopCh)
	session := r.session
	r.session = nil
	r.mu.Unlock()

	if err := session.Close(); err != nil {
		r.logger.Errorf("error closing live session: %v", err)
	}
	r.wg.Wait()
	r.tracker.Reset()

	if r.metrics != nil {
		r.metrics.ActiveSessions.Dec()
	}
	r.logger.Info("live session stopped")
	if notify {
		r.sink.SendStatus(StatusInfo, "Live session stopped.")
	}
}

// Active reports whether an upstream session is currently open.
func (r *Relay) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// TurnState exposes the tracker state for the stats endpoint.
func (r *Relay) TurnState() string {
	return r.tracker.State()
}

// sendLoop drains the inbound audio queue into the upstream session. Chunks
// are forwarded in arrival order; each forwarded chunk is also offered to the
// turn tracker.
func (r *Relay) sendLoop(session live.Session, queue <-chan []byte, stop <-chan struct{}) {
	defer r.wg.Done()

	for {
		select {
		case <-stop:
			return
		case chunk := <-queue:
			r.tracker.AppendAudio(chunk)
			if err := session.SendAudio(chunk); err != nil {
				r.fail(fmt.Errorf("failed to send audio upstream: %w", err))
				return
			}
			if r.metrics != nil {
				r.metrics.ChunksForwarded.Inc()
				r.metrics.BytesForwarded.Add(float64(len(chunk)))
			}
		}
	}
}

// recvLoop drains upstream events into outbound client messages.
func (r *Relay) recvLoop(session live.Session, stop <-chan struct{}) {
	defer r.wg.Done()

	for {
		ev, err := session.Receive()
		if err != nil {
			select {
			case <-stop:
				// Session was closed by Stop; the receive error is expected.
				return
			default:
			}
			r.fail(fmt.Errorf("upstream receive failed: %w", err))
			return
		}
		if ev.GoAway {
			r.fail(errors.New("upstream session is closing"))
			return
		}
		r.handleServerEvent(ev)
	}
}

func (r *Relay) handleServerEvent(ev live.ServerEvent) {
	if len(ev.Audio) > 0 {
		if err := r.sink.SendAudioFrame(ev.Audio); err != nil {
			r.logger.Errorf("failed to send audio frame to client: %v", err)
		} else if r.metrics != nil {
			r.metrics.AudioFramesSent.Inc()
			r.metrics.BytesSent.Add(float64(len(ev.Audio)))
		}
	}

	if ev.UserText != "" || ev.UserFinal {
		turnID, started := r.tracker.OnUserFragment(ev.UserText, ev.UserFinal)
		if started {
			r.emitTranscript(TranscriptEvent{Type: EventUserTurnStart, TurnID: turnID})
		}
		if ev.UserText != "" {
			r.emitTranscript(TranscriptEvent{
				Type:        EventUserTranscript,
				Data:        ev.UserText,
				IsFinalPart: ev.UserFinal,
				TurnID:      turnID,
			})
		}
	}

	if ev.ModelText != "" {
		turnID := r.tracker.OnModelFragment()
		r.emitTranscript(TranscriptEvent{
			Type:   EventModelTranscript,
			Data:   ev.ModelText,
			TurnID: turnID,
		})
	}

	if ev.TurnComplete {
		if turnID := r.tracker.OnTurnComplete(); turnID != "" {
			r.logger.Debugf("turn %s complete", turnID)
		}
	}
}

func (r *Relay) emitTranscript(ev TranscriptEvent) {
	if err := r.sink.SendTranscript(ev); err != nil {
		r.logger.Errorf("failed to send %s event to client: %v", ev.Type, err)
		return
	}
	if r.metrics != nil {
		r.metrics.TranscriptEvents.WithLabelValues(ev.Type).Inc()
	}
}

// dispatchTurn hands one finalized turn's audio snapshot to the secondary
// transcription dispatcher.
func (r *Relay) dispatchTurn(turnID string, pcm []byte) {
	if r.dispatcher == nil {
		return
	}
	if r.metrics != nil {
		r.metrics.SecondaryDispatched.Inc()
	}
	r.dispatcher.Dispatch(turnID, pcm)
}

// deliverSecondary pushes a secondary transcription result to the client.
// Late results after the turn's release (or after disconnect) are delivered
// best-effort; the client orders them by the tag they carry.
func (r *Relay) deliverSecondary(res transcription.Result) {
	if res.Err != nil {
		if r.metrics != nil {
			r.metrics.SecondaryFailed.Inc()
		}
		r.emitTranscript(TranscriptEvent{
			Type:   EventError,
			Data:   "Secondary transcription failed.",
			TurnID: res.TurnID,
		})
		return
	}
	if r.metrics != nil {
		r.metrics.SecondarySucceeded.Inc()
	}
	r.emitTranscript(TranscriptEvent{
		Type:   EventCustomUserTranscript,
		Data:   res.Text,
		TurnID: res.TurnID,
	})
}

// fail marks the session inactive after an unrecoverable loop error and
// reports it to the client. The relay never retries; the user restarts.
func (r *Relay) fail(err error) {
	r.mu.Lock()
	if !r.active {
		r.mu.Unlock()
		return
	}
	r.active = false
	close(r.stopCh)
	session := r.session
	r.session = nil
	r.mu.Unlock()

	r.logger.Errorf("live session failed: %v", err)
	if session != nil {
		if cerr := session.Close(); cerr != nil {
			r.logger.Errorf("error closing live session: %v", cerr)
		}
	}
	r.tracker.Reset()

	if r.metrics != nil {
		r.metrics.SessionsFailed.Inc()
		r.metrics.ActiveSessions.Dec()
	}
	r.sink.SendStatus(StatusError, fmt.Sprintf("Live session error: %v", err))
}
