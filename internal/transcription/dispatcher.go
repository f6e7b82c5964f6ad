package transcription

import (
	"context"
	"sync"
	"time"

	"github.com/xpanvictor/voxbridge/pkg/Logger"
)

// Result is the outcome of one secondary transcription, tagged with the turn
// it belongs to.
type Result struct {
	TurnID string
	Text   string
	Err    error
}

// Dispatcher runs secondary transcriptions off the audio path. Each dispatch
// is fire-and-forget: the caller hands over a snapshot and moves on; the
// result comes back later through the deliver callback, on the dispatch
// goroutine. A slow or failing transcription never blocks the relay.
type Dispatcher struct {
	recognizer Recognizer
	timeout    time.Duration
	deliver    func(Result)
	logger     *Logger.Logger
	wg         sync.WaitGroup
}

func NewDispatcher(recognizer Recognizer, timeout time.Duration, deliver func(Result), logger *Logger.Logger) *Dispatcher {
	return &Dispatcher{
		recognizer: recognizer,
		timeout:    timeout,
		deliver:    deliver,
		logger:     logger,
	}
}

// Dispatch submits one finalized turn's audio. pcm must be a snapshot owned by
// the dispatcher from here on.
func (d *Dispatcher) Dispatch(turnID string, pcm []byte) {
	if len(pcm) == 0 {
		d.logger.Debugf("skipping secondary transcription for turn %s: no audio buffered", turnID)
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		start := time.Now()
		text, err := d.recognizer.Recognize(ctx, pcm)
		if err != nil {
			d.logger.Errorf("secondary transcription failed for turn %s: %v", turnID, err)
			d.deliver(Result{TurnID: turnID, Err: err})
			return
		}
		if text == "" {
			d.logger.Debugf("secondary transcription for turn %s returned no text", turnID)
			return
		}

		d.logger.Infof("secondary transcription for turn %s done in %v: %q", turnID, time.Since(start), text)
		d.deliver(Result{TurnID: turnID, Text: text})
	}()
}

// Wait blocks until all in-flight transcriptions have finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
