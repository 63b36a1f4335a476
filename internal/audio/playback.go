package audio

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agalue/voice-endpoint/internal/assistanterr"
	"github.com/agalue/voice-endpoint/internal/ring"
)

// Playback stage constants, fixed per the wire contract.
const (
	// PlaybackSampleRateHz is the fixed playback rate.
	PlaybackSampleRateHz = 24000

	// defaultPlaybackRingBytes is 96 KiB (98,304 B), a little over 2s @
	// 24kHz·16-bit·mono, matching the teacher's generously-sized buffer philosophy.
	defaultPlaybackRingBytes = 96 * 1024

	// defaultPrebufferBytes gates the first I2S write until this many
	// bytes are queued (~500ms @ 24kHz·16-bit·mono).
	defaultPrebufferBytes = 24000

	// popChunkBytes bounds a single worker pop.
	popChunkBytes = 4096

	// streamingPopDeadline and drainingPopDeadline pace the worker's
	// PopUpTo calls while Streaming vs Draining.
	streamingPopDeadline = 100 * time.Millisecond
	drainingPopDeadline  = 10 * time.Millisecond

	// drainGrace bounds how long StreamEnd waits for the worker to drain
	// before forcing cancellation.
	drainGrace = 3 * time.Second
)

// PlaybackStage is the Stopped/Streaming/Draining/Stopped state machine.
type PlaybackStage int

const (
	PlaybackStopped PlaybackStage = iota
	PlaybackStreaming
	PlaybackDraining
)

// I2SWriter is the playback stage's sink for paced PCM output. A real
// device implementation wraps malgo's playback callback; tests substitute
// a canned writer.
type I2SWriter interface {
	// WriteFrame writes pcm (16-bit LE samples) to the device. The write
	// is expected to pace itself to the device clock; the effective
	// deadline is unbounded from the caller's perspective.
	WriteFrame(pcm []byte) error
}

// PlaybackEvents are fired from the playback worker goroutine. Handlers
// must not reenter Player methods synchronously.
type PlaybackEvents struct {
	Started   func()
	Completed func()
	Error     func(err error)

	// ReferenceTap, when set, receives the post-volume PCM for every
	// chunk actually written to the device — the C5->C3 tap that feeds
	// the AEC reference buffer. Nil when AEC is disabled.
	ReferenceTap func(pcm []byte)
}

// Player implements the Playback Stage (C5): a ring-buffered PCM sink with
// a pre-buffer gate, in-place volume scaling, and explicit stream
// lifecycle, built on internal/ring rather than the teacher's raw atomic
// sample array.
type Player struct {
	writer I2SWriter
	events PlaybackEvents

	mu        sync.Mutex
	stage     PlaybackStage
	ring      ring.Ring
	ringBytes int
	prebuf    int
	volume    atomic.Int32 // percent, 0..100

	streamingActive atomic.Bool
	started         atomic.Bool // Started event fired for this stream
	workerDone      chan struct{}
}

// NewPlayer builds a Player. ringBytes and prebufBytes default to the
// spec's 2s ring / 500ms prebuffer when zero.
func NewPlayer(writer I2SWriter, events PlaybackEvents, ringBytes, prebufBytes int) *Player {
	if ringBytes <= 0 {
		ringBytes = defaultPlaybackRingBytes
	}
	if prebufBytes <= 0 {
		prebufBytes = defaultPrebufferBytes
	}
	p := &Player{
		writer:    writer,
		events:    events,
		ringBytes: ringBytes,
		prebuf:    prebufBytes,
	}
	p.volume.Store(100)
	return p
}

// StreamStart transitions Stopped->Streaming, allocating the ring and
// spawning the worker goroutine. Fails if already streaming or draining.
func (p *Player) StreamStart() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stage != PlaybackStopped {
		return assistanterr.New("playback.StreamStart", assistanterr.ErrInvalidArgument)
	}
	if p.writer == nil {
		return assistanterr.New("playback.StreamStart", assistanterr.ErrNotReady)
	}

	p.ring.Open(p.ringBytes)
	p.stage = PlaybackStreaming
	p.streamingActive.Store(true)
	p.started.Store(false)
	p.workerDone = make(chan struct{})

	go p.worker(p.workerDone)
	return nil
}

// StreamWrite blocks (unbounded wait) until buffer is fully enqueued into
// the ring; the network producer is expected to absorb backpressure.
func (p *Player) StreamWrite(buffer []byte) error {
	p.mu.Lock()
	stage := p.stage
	p.mu.Unlock()
	if stage == PlaybackStopped {
		return assistanterr.New("playback.StreamWrite", assistanterr.ErrNotReady)
	}

	// Push only ever enqueues a whole payload, so feed it pieces no larger
	// than the ring itself or a big buffer would wait forever.
	limit := p.ringBytes - p.ringBytes%2
	remaining := buffer
	for len(remaining) > 0 {
		piece := remaining
		if len(piece) > limit {
			piece = piece[:limit]
		}
		n, err := p.ring.Push(piece, ring.ModeBlock, time.Time{})
		if err != nil {
			return assistanterr.Wrap("playback.StreamWrite", assistanterr.ErrFull, err)
		}
		remaining = remaining[n:]
	}
	return nil
}

// StreamEnd clears streaming_active and waits up to drainGrace for the
// worker to drain the ring and exit; past the grace window the ring is
// simply abandoned (forced cancel) and freed.
func (p *Player) StreamEnd() {
	p.mu.Lock()
	if p.stage == PlaybackStopped {
		p.mu.Unlock()
		return
	}
	p.stage = PlaybackDraining
	done := p.workerDone
	p.mu.Unlock()

	p.streamingActive.Store(false)

	if done != nil {
		select {
		case <-done:
		case <-time.After(drainGrace):
			log.Printf("playback: drain grace period elapsed, forcing stop")
		}
	}

	p.mu.Lock()
	p.stage = PlaybackStopped
	p.ring.Reset()
	p.mu.Unlock()
}

// SetVolume sets the output scale as an integer percentage 0..100. Applied
// in-place to each sample as it leaves the ring; v<=100 so no clipping is
// needed.
func (p *Player) SetVolume(v int) error {
	if v < 0 || v > 100 {
		return assistanterr.New("playback.SetVolume", assistanterr.ErrInvalidArgument)
	}
	p.volume.Store(int32(v))
	return nil
}

// Stage reports the current lifecycle stage.
func (p *Player) Stage() PlaybackStage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stage
}

// worker pops from the ring and writes to I2S, gated by the pre-buffer
// threshold, until streaming_active is cleared and the ring drains.
func (p *Player) worker(done chan struct{}) {
	defer close(done)

	buf := make([]byte, popChunkBytes)

	// Pre-buffer gate: don't write until prebuf bytes are queued, or
	// streaming has already been ended (then drain whatever is present).
	for p.ring.Len() < p.prebuf && p.streamingActive.Load() {
		time.Sleep(5 * time.Millisecond)
	}

	for {
		active := p.streamingActive.Load()
		deadline := time.Now().Add(streamingPopDeadline)
		if !active {
			deadline = time.Now().Add(drainingPopDeadline)
		}

		n, err := p.ring.PopUpTo(buf, popChunkBytes, deadline)
		if err != nil || n == 0 {
			if !active && p.ring.Len() == 0 {
				if p.events.Completed != nil {
					p.events.Completed()
				}
				return
			}
			continue
		}

		if !p.started.Swap(true) {
			if p.events.Started != nil {
				p.events.Started()
			}
		}

		applyVolume(buf[:n], int(p.volume.Load()))

		if p.events.ReferenceTap != nil {
			p.events.ReferenceTap(buf[:n])
		}

		if err := p.writer.WriteFrame(buf[:n]); err != nil {
			if p.events.Error != nil {
				p.events.Error(err)
			}
			log.Printf("playback: I2S write error: %v", err)
		}
	}
}

// applyVolume scales each 16-bit sample in-place by v/100 using a 32-bit
// intermediate. No clipping is needed since v<=100 never increases
// magnitude.
func applyVolume(pcm []byte, v int) {
	if v == 100 {
		return
	}
	for i := 0; i+1 < len(pcm); i += 2 {
		s := int16(uint16(pcm[i]) | uint16(pcm[i+1])<<8)
		scaled := int16((int32(s) * int32(v)) / 100)
		pcm[i] = byte(uint16(scaled))
		pcm[i+1] = byte(uint16(scaled) >> 8)
	}
}
