// Package ring provides a capacity-bounded, sample-aligned byte ring used
// by the playback stage and the AEC reference buffer. The underlying byte
// store is github.com/smallnest/ringbuffer; this package layers the
// deadline-aware blocking semantics and drop-on-full semantics the audio
// pipeline needs on top of its non-blocking TryWrite/TryRead, polling with
// a bounded sleep between attempts the same way the teacher's Capturer
// drains its lock-free buffer without busy-spinning.
package ring

import (
	"time"

	"github.com/smallnest/ringbuffer"

	"github.com/agalue/voice-endpoint/internal/assistanterr"
)

// Mode selects push behavior when the ring lacks free space.
type Mode int

const (
	// ModeDrop returns 0 immediately if the payload does not fit.
	// Used by the AEC reference buffer, which must never block the
	// playback worker on a full ring.
	ModeDrop Mode = iota
	// ModeBlock waits (up to an optional deadline) for space to free up.
	// Used by the playback path, which relies on network backpressure.
	ModeBlock
)

// pollInterval bounds how long Push/PopUpTo sleep between polls of the
// underlying buffer. Short enough to keep latency low, long enough to
// avoid burning CPU in a tight spin.
const pollInterval = 200 * time.Microsecond

// sampleSize is the width in bytes of one PCM sample. All pushes must be
// an integer multiple of this so pops never tear a sample across calls.
const sampleSize = 2

// Ring is a bounded byte store for PCM data. The zero value is not ready
// for use; call Open before Push/PopUpTo.
type Ring struct {
	buf      *ringbuffer.RingBuffer
	capacity int
}

// Open initializes the ring with the given byte capacity. Safe to call
// again to resize; any buffered bytes are discarded.
func (r *Ring) Open(capacity int) {
	r.buf = ringbuffer.New(capacity)
	r.capacity = capacity
}

// ready reports whether Open has been called.
func (r *Ring) ready() bool { return r.buf != nil }

// Capacity returns the ring's total byte capacity.
func (r *Ring) Capacity() int { return r.capacity }

// Len returns the number of bytes currently buffered.
func (r *Ring) Len() int {
	if !r.ready() {
		return 0
	}
	return r.capacity - r.buf.Free()
}

// Reset drops all buffered bytes without changing capacity.
func (r *Ring) Reset() {
	if !r.ready() {
		return
	}
	r.buf.Reset()
}

// Push writes data into the ring and returns the number of bytes actually
// enqueued. len(data) must be a multiple of 2 (sampleSize); a violation is
// InvalidArgument. In ModeDrop, insufficient free space yields 0 and
// ErrFull (logged by the caller, not here — this package has no logger).
// In ModeBlock, Push waits up to deadline (zero means wait indefinitely)
// for enough space, returning 0/ErrTimeout if the deadline passes first.
func (r *Ring) Push(data []byte, mode Mode, deadline time.Time) (int, error) {
	if !r.ready() {
		return 0, assistanterr.New("ring.Push", assistanterr.ErrNotReady)
	}
	if len(data) == 0 {
		return 0, nil
	}
	if len(data)%sampleSize != 0 {
		return 0, assistanterr.New("ring.Push", assistanterr.ErrInvalidArgument)
	}

	for {
		// Only ever attempt TryWrite when the whole payload fits, since
		// smallnest/ringbuffer's TryWrite writes a short prefix rather
		// than rejecting outright — a short write here would tear a
		// sample across two Pop calls.
		if r.buf.Free() >= len(data) {
			n, _ := r.buf.TryWrite(data)
			return n, nil
		}

		if mode == ModeDrop {
			return 0, assistanterr.New("ring.Push", assistanterr.ErrFull)
		}

		if !deadline.IsZero() && time.Now().After(deadline) {
			return 0, assistanterr.New("ring.Push", assistanterr.ErrTimeout)
		}
		time.Sleep(pollInterval)
	}
}

// PopUpTo reads up to maxBytes (rounded down to an even number) into dst
// and returns the number of bytes read. maxBytes == 0 returns 0
// immediately. In the absence of buffered data, PopUpTo waits up to
// deadline (zero means wait indefinitely) and returns 0/ErrTimeout if it
// expires first.
func (r *Ring) PopUpTo(dst []byte, maxBytes int, deadline time.Time) (int, error) {
	if !r.ready() {
		return 0, assistanterr.New("ring.PopUpTo", assistanterr.ErrNotReady)
	}
	if maxBytes <= 0 {
		return 0, nil
	}
	want := maxBytes - (maxBytes % sampleSize)
	if want == 0 {
		return 0, nil
	}
	if want > len(dst) {
		want = len(dst) - (len(dst) % sampleSize)
	}

	for {
		avail := r.capacity - r.buf.Free()
		if avail > 0 {
			n := want
			if n > avail {
				n = avail - (avail % sampleSize)
			}
			if n > 0 {
				got, _ := r.buf.TryRead(dst[:n])
				return got, nil
			}
		}

		if !deadline.IsZero() && time.Now().After(deadline) {
			return 0, assistanterr.New("ring.PopUpTo", assistanterr.ErrTimeout)
		}
		time.Sleep(pollInterval)
	}
}
