package session

import (
	"errors"
	"sync"
	"testing"
)

type fakeCapture struct {
	mu      sync.Mutex
	started int
	stopped int
}

func (f *fakeCapture) Start() {
	f.mu.Lock()
	f.started++
	f.mu.Unlock()
}
func (f *fakeCapture) Stop() {
	f.mu.Lock()
	f.stopped++
	f.mu.Unlock()
}

type fakePlayback struct {
	mu        sync.Mutex
	started   int
	ended     int
	failStart bool
}

func (f *fakePlayback) StreamStart() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started++
	if f.failStart {
		return errFake
	}
	return nil
}
func (f *fakePlayback) StreamEnd() {
	f.mu.Lock()
	f.ended++
	f.mu.Unlock()
}

var errFake = errors.New("fake playback start failure")

type fakeTransport struct {
	mu        sync.Mutex
	sent      [][]byte
	connected bool
}

func (f *fakeTransport) SendAudio(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	f.sent = append(f.sent, cp)
	return nil
}
func (f *fakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func newTestCore() (*Core, *fakeCapture, *fakePlayback, *fakeTransport) {
	cap := &fakeCapture{}
	play := &fakePlayback{}
	tr := &fakeTransport{connected: true}
	core := NewCore("esp32-test", cap, play, tr, nil, nil, nil)
	return core, cap, play, tr
}

type fakeAECReference struct {
	mu  sync.Mutex
	got int
}

func (f *fakeAECReference) Get(out []int16) bool {
	f.mu.Lock()
	f.got++
	f.mu.Unlock()
	for i := range out {
		out[i] = 7
	}
	return true
}

type fakeAECProcessor struct {
	mu        sync.Mutex
	chunkSize int
	processed [][2][]int16
	sink      func(cleaned []int16)
}

func (f *fakeAECProcessor) ChunkSize() int { return f.chunkSize }

func (f *fakeAECProcessor) Process(mic, ref []int16) {
	f.mu.Lock()
	micCopy := append([]int16(nil), mic...)
	refCopy := append([]int16(nil), ref...)
	f.processed = append(f.processed, [2][]int16{micCopy, refCopy})
	f.mu.Unlock()
	if f.sink != nil {
		cleaned := make([]int16, len(mic))
		copy(cleaned, mic)
		f.sink(cleaned)
	}
}

func TestRecordStartRequiresConnectedAndIdle(t *testing.T) {
	core, cap, play, _ := newTestCore()
	core.proxyConnected = true

	core.RecordStart()
	if core.GetStatus().State != Streaming {
		t.Fatalf("state = %v, want Streaming", core.GetStatus().State)
	}
	if cap.started != 1 {
		t.Fatalf("capture started %d times, want 1", cap.started)
	}
	if play.started != 1 {
		t.Fatalf("playback started %d times, want 1", play.started)
	}
}

func TestRecordStartNoOpWhenDisconnected(t *testing.T) {
	core, cap, _, _ := newTestCore()
	core.proxyConnected = false

	core.RecordStart()
	if core.GetStatus().State != Idle {
		t.Fatalf("state = %v, want Idle", core.GetStatus().State)
	}
	if cap.started != 0 {
		t.Fatalf("capture should not have started")
	}
}

func TestRecordStopLeavesPlaybackOpen(t *testing.T) {
	core, cap, play, _ := newTestCore()
	core.proxyConnected = true
	core.RecordStart()
	endedBefore := play.ended // RecordStart's stale-stream teardown calls StreamEnd once

	core.RecordStop()
	if core.GetStatus().State != Idle {
		t.Fatalf("state = %v, want Idle", core.GetStatus().State)
	}
	if cap.stopped != 1 {
		t.Fatalf("capture stopped %d times, want 1", cap.stopped)
	}
	if play.ended != endedBefore {
		t.Fatalf("playback stream should remain open after RecordStop, ended went from %d to %d", endedBefore, play.ended)
	}
}

func TestMuteGateDropsAudioDuringSpeech(t *testing.T) {
	core, _, _, tr := newTestCore()
	core.proxyConnected = true
	core.RecordStart()

	core.OnSpeechEvent(true) // mic_muted_for_speech = true
	core.CaptureSink([]byte{1, 2, 3, 4})

	if len(tr.sent) != 0 {
		t.Fatalf("expected no audio sent while muted, got %d chunks", len(tr.sent))
	}

	core.OnSpeechEvent(false)
	core.CaptureSink([]byte{1, 2, 3, 4})

	if len(tr.sent) != 1 {
		t.Fatalf("expected 1 chunk sent after unmute, got %d", len(tr.sent))
	}
}

func TestCaptureSinkDropsEmptyChunks(t *testing.T) {
	core, _, _, tr := newTestCore()
	core.CaptureSink(nil)
	if len(tr.sent) != 0 {
		t.Fatalf("expected empty chunk to be dropped, got %d sends", len(tr.sent))
	}
}

func TestDisconnectWhileStreamingSetsError(t *testing.T) {
	core, cap, _, _ := newTestCore()
	core.proxyConnected = true
	core.RecordStart()

	core.OnTransportState(false, 1006)

	if core.GetStatus().State != Error {
		t.Fatalf("state = %v, want Error", core.GetStatus().State)
	}
	if cap.stopped != 1 {
		t.Fatalf("capture should have been stopped on disconnect, stopped=%d", cap.stopped)
	}
}

func TestStatusOnlyEmitsOnChange(t *testing.T) {
	var emits int
	core, _, _, _ := newTestCore()
	core.onStatus = func(Status) { emits++ }

	core.SetState(Idle) // already Idle, no change
	if emits != 0 {
		t.Fatalf("expected no emit for a no-op SetState, got %d", emits)
	}

	core.SetState(Streaming)
	if emits != 1 {
		t.Fatalf("expected 1 emit after state change, got %d", emits)
	}
}

func TestOnTransportStateNoDoubleEmitWhenUnchanged(t *testing.T) {
	var emits int
	core, _, _, _ := newTestCore()
	core.proxyConnected = true
	core.onStatus = func(Status) { emits++ }

	core.OnTransportState(true, 0) // already connected, no change
	if emits != 0 {
		t.Fatalf("expected no emit for an unchanged transport state, got %d", emits)
	}

	core.OnTransportState(false, 1006)
	if emits != 1 {
		t.Fatalf("expected 1 emit for the disconnect, got %d", emits)
	}
}

func TestCaptureSinkRoutesThroughAECWhenEnabled(t *testing.T) {
	cap := &fakeCapture{}
	play := &fakePlayback{}
	tr := &fakeTransport{connected: true}
	ref := &fakeAECReference{}
	proc := &fakeAECProcessor{chunkSize: 2}

	core := NewCore("esp32-test", cap, play, tr, ref, proc, nil)
	proc.sink = core.SendCleaned
	core.proxyConnected = true
	core.RecordStart()

	// 4 bytes = 2 int16 samples = exactly one AEC chunk.
	core.CaptureSink([]byte{1, 0, 2, 0})

	if len(proc.processed) != 1 {
		t.Fatalf("expected 1 chunk processed by AEC, got %d", len(proc.processed))
	}
	if ref.got != 1 {
		t.Fatalf("expected reference buffer queried once, got %d", ref.got)
	}
	if len(tr.sent) != 1 {
		t.Fatalf("expected AEC output forwarded to transport, got %d sends", len(tr.sent))
	}
}

func TestCaptureSinkAECOutputStillMuteGated(t *testing.T) {
	cap := &fakeCapture{}
	play := &fakePlayback{}
	tr := &fakeTransport{connected: true}
	ref := &fakeAECReference{}
	proc := &fakeAECProcessor{chunkSize: 2}

	core := NewCore("esp32-test", cap, play, tr, ref, proc, nil)
	proc.sink = core.SendCleaned
	core.proxyConnected = true
	core.RecordStart()
	core.OnSpeechEvent(true)

	core.CaptureSink([]byte{1, 0, 2, 0})

	if len(tr.sent) != 0 {
		t.Fatalf("expected AEC output dropped while muted, got %d sends", len(tr.sent))
	}
}
