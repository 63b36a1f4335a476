package audio

import "testing"

func TestResampleIdentity(t *testing.T) {
	in := []int16{100, -200, 300, -400}
	out := ResampleInPlace(in, 16000, 16000)
	if len(out) != len(in) {
		t.Fatalf("len = %d, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("sample %d = %d, want %d", i, out[i], in[i])
		}
	}
}

func TestResampleOutputLength(t *testing.T) {
	in := make([]int16, 1600) // 100ms @ 16kHz
	out := ResampleInPlace(in, 16000, 24000)
	want := len(in) * 24000 / 16000
	if len(out) != want {
		t.Fatalf("len = %d, want %d", len(out), want)
	}
}

func TestResampleUpsampleMidpoint(t *testing.T) {
	// Two samples at 1x rate, upsample to 2x: expect the interpolated
	// midpoint between them at output index 1, then boundary-hold after.
	in := []int16{0, 1000}
	out := NewResampler(1, 2).Resample(in)
	want := []int16{0, 500, 1000, 1000}
	if len(out) != len(want) {
		t.Fatalf("len = %d, want %d", len(out), len(want))
	}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("out[%d] = %d, want %d", i, out[i], want[i])
		}
	}
}

func TestResampleBoundaryHoldsLastSample(t *testing.T) {
	in := []int16{10, 20, 30}
	out := NewResampler(3, 6).Resample(in)
	if len(out) == 0 {
		t.Fatal("expected non-empty output")
	}
	last := out[len(out)-1]
	if last != 30 {
		t.Fatalf("last output sample = %d, want 30 (boundary hold)", last)
	}
}

func TestResampleEmptyInput(t *testing.T) {
	out := ResampleInPlace(nil, 16000, 24000)
	if len(out) != 0 {
		t.Fatalf("len = %d, want 0", len(out))
	}
}

func TestClip16Saturates(t *testing.T) {
	if clip16(40000) != 32767 {
		t.Fatalf("clip16(40000) = %d, want 32767", clip16(40000))
	}
	if clip16(-40000) != -32768 {
		t.Fatalf("clip16(-40000) = %d, want -32768", clip16(-40000))
	}
}
