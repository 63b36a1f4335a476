package audio

import (
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// Capture stage constants. 16kHz/100ms chunking per the wire contract this
// pipeline sends over the transport.
const (
	// CaptureSampleRateHz is the fixed capture rate.
	CaptureSampleRateHz = 16000
	// CaptureChunkSamples is one 100ms chunk at CaptureSampleRateHz.
	CaptureChunkSamples = 1600
	// CaptureChunkBytes is CaptureChunkSamples as 16-bit PCM bytes.
	CaptureChunkBytes = CaptureChunkSamples * 2

	// captureGainFactor is applied when gain is enabled.
	captureGainFactor = 10

	// stopGrace bounds how long Stop waits for the capture goroutine to
	// observe the stop signal before returning anyway.
	stopGrace = 50 * time.Millisecond
)

// Sink receives a completed 100ms chunk of 16-bit little-endian PCM, or a
// nil/zero-length chunk as an optional end-of-stream marker.
type Sink func(data []byte)

// I2SReader is the capture stage's source of raw 32-bit frames. A real
// device implementation wraps malgo's capture callback; tests substitute a
// canned reader. ReadFrame returns at most one frame (typically 256
// samples); it may return 0 samples when none are ready, and the capturer
// then simply reads again.
type I2SReader interface {
	// ReadFrame returns up to len(dst) 32-bit samples, returning the count
	// actually read. An error indicates a transient I/O fault; the
	// capturer logs and continues rather than treating it as fatal.
	ReadFrame(dst []int32) (int, error)
}

// Capturer drives an I2SReader, converts each 32-bit frame to 16-bit PCM,
// accumulates samples into 100ms chunks, and invokes a Sink per chunk. It
// is not safe to Start concurrently with itself; re-entrant Start is a
// no-op with a logged warning, matching the teacher's single-producer
// goroutine shape.
type Capturer struct {
	reader    I2SReader
	sink      Sink
	gain      bool
	emitFinal bool

	started atomic.Bool // lifecycle: true between Start and Stop
	paused  atomic.Bool // half-duplex/manual pause, independent of lifecycle

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewCapturer builds a Capturer over reader. gain enables the optional 10x
// saturating gain stage; emitFinal enables the zero-length end-of-stream
// marker on Stop.
func NewCapturer(reader I2SReader, sink Sink, gain, emitFinal bool) *Capturer {
	return &Capturer{
		reader:    reader,
		sink:      sink,
		gain:      gain,
		emitFinal: emitFinal,
		stopChan:  make(chan struct{}),
	}
}

// Start spawns the capture goroutine — conceptually the "Core A, medium
// priority, blocks only on I2S RX" task of the concurrency model. Re-entrant
// calls are a no-op.
func (c *Capturer) Start() {
	if !c.started.CompareAndSwap(false, true) {
		log.Printf("capture: Start called while already running, ignoring")
		return
	}
	c.paused.Store(false)
	c.stopChan = make(chan struct{})
	c.wg.Add(1)
	go c.loop()
}

// loop reads frames, converts, and chunks until Stop is called.
func (c *Capturer) loop() {
	defer c.wg.Done()

	frame := make([]int32, 256)
	chunk := make([]byte, 0, CaptureChunkBytes)

	for {
		select {
		case <-c.stopChan:
			if c.emitFinal && c.sink != nil {
				c.sink(nil)
			}
			return
		default:
		}

		if c.paused.Load() {
			// Paused: avoid spinning while still observing stop promptly.
			select {
			case <-c.stopChan:
				if c.emitFinal && c.sink != nil {
					c.sink(nil)
				}
				return
			case <-time.After(5 * time.Millisecond):
				continue
			}
		}

		n, err := c.reader.ReadFrame(frame)
		if err != nil {
			log.Printf("capture: I2S read error, skipping: %v", err)
			continue
		}
		if n == 0 {
			continue
		}

		for _, s32 := range frame[:n] {
			s16 := convertSample(s32, c.gain)
			chunk = append(chunk, byte(uint16(s16)), byte(uint16(s16)>>8))
			if len(chunk) == CaptureChunkBytes {
				if c.sink != nil {
					c.sink(chunk)
				}
				chunk = make([]byte, 0, CaptureChunkBytes)
			}
		}
	}
}

// convertSample converts one 32-bit sample to 16-bit PCM via an arithmetic
// right shift (signed — Go's >> on a signed int is arithmetic by
// definition), then optionally applies a 10x gain saturating at +/-32767.
func convertSample(s32 int32, gain bool) int16 {
	s16 := int16(s32 >> 14)
	if !gain {
		return s16
	}
	scaled := int32(s16) * captureGainFactor
	if scaled > 32767 {
		return 32767
	}
	if scaled < -32767 {
		return -32767
	}
	return int16(scaled)
}

// Stop signals the capture goroutine to exit and waits up to stopGrace for
// it to do so. Stop is idempotent.
func (c *Capturer) Stop() {
	if !c.started.CompareAndSwap(true, false) {
		return
	}
	close(c.stopChan)

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(stopGrace):
		log.Printf("capture: Stop grace period elapsed before goroutine exited")
	}
}

// Pause suspends chunk emission without tearing down the goroutine
// (half-duplex mute uses the session controller's gate instead; Pause is
// retained for parity with the teacher's lifecycle but is not driven by
// the mute interlock).
func (c *Capturer) Pause() { c.paused.Store(true) }

// Resume reverses Pause.
func (c *Capturer) Resume() { c.paused.Store(false) }
