// Package session implements the Session Controller (C7): the assistant
// state machine, the half-duplex mute interlock that gates capture chunks
// on speech_start/speech_end events from the transport, and — when
// aec_enabled — the routing of capture audio through the AEC reference
// buffer and adaptive filter before it reaches the transport.
package session

import (
	"log"
	"sync"
	"sync/atomic"
)

// State is the assistant state machine of the data model: Idle initially,
// Streaming while capture is active, Error when the transport disconnects
// while Streaming. Playback failures do not change the state.
type State int

const (
	Idle State = iota
	Streaming
	Error
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Streaming:
		return "Streaming"
	case Error:
		return "Error"
	default:
		return "Unknown"
	}
}

// Status is emitted to the UI collaborator on every state change.
type Status struct {
	State          State
	WifiConnected  bool
	ProxyConnected bool
}

// Capture is the subset of *audio.Capturer the controller drives.
type Capture interface {
	Start()
	Stop()
}

// Playback is the subset of *audio.Player the controller drives.
type Playback interface {
	StreamStart() error
	StreamEnd()
}

// Transport is the subset of *transport.Client the controller drives.
type Transport interface {
	SendAudio(data []byte) error
	IsConnected() bool
}

// AECReference is the subset of *aec.ReferenceBuffer the controller pulls
// from when feeding the adaptive filter. Nil unless aec_enabled.
type AECReference interface {
	Get(out []int16) bool
}

// AECProcessor is the subset of *aec.Processor the controller feeds mic
// audio through when aec_enabled. Cleaned output is not returned from
// Process; it arrives asynchronously through the sink the processor was
// constructed with, which the caller wires back to Core.SendCleaned.
type AECProcessor interface {
	ChunkSize() int
	Process(mic, ref []int16)
}

// Core owns the assistant state machine, the transport handle, and both
// stage handles. There is exactly one live Core per process; it holds no
// package-level state so tests can construct independent instances.
type Core struct {
	mu sync.Mutex

	state          State
	wifiConnected  bool
	proxyConnected bool
	sessionID      string

	muted atomic.Bool // mic_muted_for_speech

	capture   Capture
	playback  Playback
	transport Transport

	aecRef  AECReference // nil unless aec_enabled
	aecProc AECProcessor // nil unless aec_enabled
	micBuf  []int16      // AEC chunk accumulator; touched only by CaptureSink's caller goroutine

	onStatus func(Status)
}

// NewCore builds a Core bound to the given stage and transport handles.
// onStatus is invoked (never reentrantly into Core) whenever SetState,
// SetWifiConnected, or the transport state callback changes the visible
// status. aecRef and aecProc are nil unless aec_enabled; when both are
// non-nil, CaptureSink routes mic audio through the adaptive filter
// instead of sending it to the transport directly.
func NewCore(sessionID string, capture Capture, playback Playback, tr Transport, aecRef AECReference, aecProc AECProcessor, onStatus func(Status)) *Core {
	return &Core{
		sessionID: sessionID,
		capture:   capture,
		playback:  playback,
		transport: tr,
		aecRef:    aecRef,
		aecProc:   aecProc,
		onStatus:  onStatus,
	}
}

// SetWifiConnected updates the wifi flag, emitting a status delta only on
// change.
func (c *Core) SetWifiConnected(connected bool) {
	c.mu.Lock()
	changed := c.wifiConnected != connected
	c.wifiConnected = connected
	status := c.statusLocked()
	c.mu.Unlock()

	if changed {
		c.emit(status)
	}
}

// SetState transitions to newState idempotently, emitting a status delta
// only on change.
func (c *Core) SetState(newState State) {
	c.mu.Lock()
	changed := c.state != newState
	c.state = newState
	status := c.statusLocked()
	c.mu.Unlock()

	if changed {
		c.emit(status)
	}
}

// GetStatus returns the current status snapshot.
func (c *Core) GetStatus() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

func (c *Core) statusLocked() Status {
	return Status{
		State:          c.state,
		WifiConnected:  c.wifiConnected,
		ProxyConnected: c.proxyConnected,
	}
}

func (c *Core) emit(status Status) {
	if c.onStatus != nil {
		c.onStatus(status)
	}
}

// RecordStart is the UI ingress event that begins a streaming turn. It
// tears down any stale playback stream, starts a fresh one, transitions
// to Streaming, and starts capture with the controller's own mute-gated
// sink. A no-op unless connected and currently Idle.
func (c *Core) RecordStart() {
	c.mu.Lock()
	connected := c.proxyConnected
	idle := c.state == Idle
	c.mu.Unlock()

	if !connected || !idle {
		return
	}

	c.playback.StreamEnd() // tear down any stale stream; no-op if already stopped
	if err := c.playback.StreamStart(); err != nil {
		log.Printf("session: playback.StreamStart failed: %v", err)
	}

	c.SetState(Streaming)
	c.muted.Store(false)
	c.capture.Start()
}

// RecordStop is the UI ingress event that ends a streaming turn. Capture
// stops; the playback stream is left open so the assistant can finish
// speaking.
func (c *Core) RecordStop() {
	c.mu.Lock()
	streaming := c.state == Streaming
	c.mu.Unlock()

	if !streaming {
		return
	}
	c.SetState(Idle)
	c.capture.Stop()
}

// CaptureSink is passed as the audio.Sink for the capture stage. With AEC
// disabled it drops chunks while muted for speech and otherwise forwards
// non-empty chunks to the transport directly. With AEC enabled (aecProc
// set), capture becomes the AEC feed instead: mic audio is accumulated
// into aecProc.ChunkSize()-sample chunks, paired with a reference chunk
// pulled from aecRef, and run through the adaptive filter; the mute gate
// and transport send happen later, in SendCleaned, once the filter's
// output goroutine delivers a cleaned chunk. The server performs endpoint
// VAD; no local end-of-turn framing is emitted here.
func (c *Core) CaptureSink(data []byte) {
	if len(data) == 0 {
		return
	}
	if c.aecProc == nil {
		c.sendAudio(data)
		return
	}

	c.micBuf = append(c.micBuf, bytesToInt16(data)...)
	chunkLen := c.aecProc.ChunkSize()
	for len(c.micBuf) >= chunkLen {
		mic := c.micBuf[:chunkLen]
		ref := make([]int16, chunkLen)
		if c.aecRef != nil {
			c.aecRef.Get(ref)
		}
		c.aecProc.Process(mic, ref)
		// Reallocate rather than reslice in place: mic above still
		// aliases the old backing array and may be read asynchronously
		// by the processor's feed goroutine.
		c.micBuf = append([]int16(nil), c.micBuf[chunkLen:]...)
	}
}

// SendCleaned is the sink the caller wires an AEC Processor to: it applies
// the same mute gate as the direct capture path and forwards the cleaned
// chunk to the transport. Called from the processor's own output
// goroutine, never from CaptureSink's caller.
func (c *Core) SendCleaned(cleaned []int16) {
	c.sendAudio(int16ToBytes(cleaned))
}

// sendAudio applies the half-duplex mute gate and forwards data to the
// transport, used by both the direct and AEC-routed capture paths.
func (c *Core) sendAudio(data []byte) {
	if c.muted.Load() {
		return
	}
	if err := c.transport.SendAudio(data); err != nil {
		log.Printf("session: capture send failed, dropping chunk: %v", err)
	}
}

func bytesToInt16(b []byte) []int16 {
	n := len(b) / 2
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		out[i] = int16(uint16(b[i*2]) | uint16(b[i*2+1])<<8)
	}
	return out
}

func int16ToBytes(samples []int16) []byte {
	b := make([]byte, len(samples)*2)
	for i, s := range samples {
		b[i*2] = byte(uint16(s))
		b[i*2+1] = byte(uint16(s) >> 8)
	}
	return b
}

// OnSpeechEvent is the transport.OnSpeech callback: it sets the mute gate
// directly from the speaking flag.
func (c *Core) OnSpeechEvent(speaking bool) {
	c.muted.Store(speaking)
}

// OnTransportState is the transport.OnState callback: it updates the
// connected flag and, on disconnect while streaming, moves to Error and
// stops capture.
func (c *Core) OnTransportState(connected bool, closeCode uint16) {
	c.mu.Lock()
	changed := c.proxyConnected != connected
	c.proxyConnected = connected
	wasStreaming := c.state == Streaming
	status := c.statusLocked()
	c.mu.Unlock()

	if changed {
		c.emit(status)
	}

	if !connected && wasStreaming {
		c.SetState(Error) // emits its own status delta
		c.capture.Stop()
	}
}

