// Package audio holds the PCM capture buffer used to retain the audio of the
// user turn currently in progress.
package audio

import (
	"sync"

	"github.com/smallnest/ringbuffer"
)

// TurnBuffer accumulates raw PCM bytes for one user turn. It is bounded: when
// the capacity is reached the oldest audio is discarded so a turn that never
// finalizes cannot grow without limit. Append and Take may be called from
// different goroutines.
type TurnBuffer struct {
	mu       sync.Mutex
	capacity int
	rb       *ringbuffer.RingBuffer
}

func NewTurnBuffer(capacity int) *TurnBuffer {
	return &TurnBuffer{
		capacity: capacity,
		rb:       ringbuffer.New(capacity).SetBlocking(false),
	}
}

// Append adds a PCM chunk to the buffer, evicting the oldest bytes when the
// buffer is full. A chunk larger than the whole buffer keeps only its tail.
func (b *TurnBuffer) Append(pcm []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(pcm) > b.capacity {
		pcm = pcm[len(pcm)-b.capacity:]
	}

	// Make room by dropping from the front.
	scratch := make([]byte, 4096)
	for b.rb.Free() < len(pcm) {
		want := len(pcm) - b.rb.Free()
		if want > len(scratch) {
			want = len(scratch)
		}
		n, err := b.rb.Read(scratch[:want])
		if err != nil || n == 0 {
			b.rb.Reset()
			break
		}
	}

	b.rb.Write(pcm)
}

// Take returns the buffered audio and clears the buffer. The returned slice is
// owned by the caller.
func (b *TurnBuffer) Take() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.rb.Length()
	if n == 0 {
		return nil
	}
	out := make([]byte, n)
	read, err := b.rb.Read(out)
	if err != nil {
		return nil
	}
	return out[:read]
}

// Reset discards any buffered audio.
func (b *TurnBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rb.Reset()
}

func (b *TurnBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rb.Length()
}

func (b *TurnBuffer) Capacity() int {
	return b.capacity
}
