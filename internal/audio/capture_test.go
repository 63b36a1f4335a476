package audio

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeReader emits frames from a preloaded queue, then blocks (returning
// 0, nil) once exhausted so the capture goroutine idles instead of
// spinning the test to completion prematurely.
type fakeReader struct {
	mu     sync.Mutex
	frames [][]int32
	failAt int // frame index that returns an error, once; -1 disables
	calls  int
}

func (f *fakeReader) ReadFrame(dst []int32) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failAt == f.calls {
		f.calls++
		return 0, errors.New("injected read error")
	}
	f.calls++

	if len(f.frames) == 0 {
		time.Sleep(time.Millisecond)
		return 0, nil
	}
	frame := f.frames[0]
	f.frames = f.frames[1:]
	n := copy(dst, frame)
	return n, nil
}

func TestConvertSampleArithmeticShift(t *testing.T) {
	cases := []struct {
		in   int32
		gain bool
		want int16
	}{
		{in: 1 << 14, gain: false, want: 1},
		{in: -(1 << 14), gain: false, want: -1},
		{in: 0, gain: false, want: 0},
	}
	for _, c := range cases {
		got := convertSample(c.in, c.gain)
		if got != c.want {
			t.Fatalf("convertSample(%d, %v) = %d, want %d", c.in, c.gain, got, c.want)
		}
	}
}

func TestConvertSampleGainSaturates(t *testing.T) {
	// A sample whose *10 gain would exceed int16 range must clip to
	// +/-32767, never wrap.
	got := convertSample(int32(5000)<<14, true)
	if got != 32767 {
		t.Fatalf("got %d, want 32767", got)
	}
	got = convertSample(int32(-5000)<<14, true)
	if got != -32767 {
		t.Fatalf("got %d, want -32767", got)
	}
}

func TestCapturerEmitsChunkAt1600Samples(t *testing.T) {
	frame := make([]int32, 256)
	reader := &fakeReader{failAt: -1}
	for i := 0; i < 7; i++ { // 7*256 = 1792 > 1600, forces at least one chunk
		reader.frames = append(reader.frames, frame)
	}

	chunks := make(chan []byte, 4)
	c := NewCapturer(reader, func(data []byte) {
		if len(data) > 0 {
			chunks <- data
		}
	}, false, false)

	c.Start()
	defer c.Stop()

	select {
	case chunk := <-chunks:
		if len(chunk) != CaptureChunkBytes {
			t.Fatalf("chunk len = %d, want %d", len(chunk), CaptureChunkBytes)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a chunk")
	}
}

func TestCapturerReEntrantStartIsNoOp(t *testing.T) {
	reader := &fakeReader{failAt: -1}
	c := NewCapturer(reader, func([]byte) {}, false, false)
	c.Start()
	defer c.Stop()
	c.Start() // should log a warning and do nothing, not panic or double-spawn
}

func TestCapturerSurvivesReadError(t *testing.T) {
	reader := &fakeReader{failAt: 0}
	c := NewCapturer(reader, func([]byte) {}, false, false)
	c.Start()
	time.Sleep(20 * time.Millisecond)
	c.Stop() // must return promptly; a read error must not hang Stop
}

func TestCapturerPauseStopsEmission(t *testing.T) {
	frame := make([]int32, 256)
	reader := &fakeReader{failAt: -1}
	for i := 0; i < 20; i++ {
		reader.frames = append(reader.frames, frame)
	}

	var count int
	var mu sync.Mutex
	c := NewCapturer(reader, func(data []byte) {
		if len(data) == 0 {
			return
		}
		mu.Lock()
		count++
		mu.Unlock()
	}, false, false)

	c.Start()
	c.Pause()
	time.Sleep(30 * time.Millisecond)

	mu.Lock()
	got := count
	mu.Unlock()

	c.Stop()

	if got != 0 {
		t.Fatalf("expected no chunks while paused, got %d", got)
	}
}
