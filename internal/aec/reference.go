// Package aec implements the optional acoustic-echo-cancellation path: a
// bounded reference buffer fed from the playback tap, and an adaptive
// filter that cleans the capture signal against it.
package aec

import (
	"time"

	"github.com/agalue/voice-endpoint/internal/audio"
	"github.com/agalue/voice-endpoint/internal/ring"
)

// referenceScratchSamples bounds the per-Feed resample scratch buffer.
const referenceScratchSamples = 4096

// ReferenceBuffer is the AEC reference path's bounded ring: fed from the
// playback tap at 24kHz, resampled to 16kHz to match the capture rate, and
// consumed by the AEC processor. On underrun, Get returns zero-filled
// samples and reports false so the caller knows no real reference was
// available for this chunk.
type ReferenceBuffer struct {
	ring       ring.Ring
	resampler  *audio.Resampler
	fromRate   int
	toRate     int
	windowMs   int
}

// NewReferenceBuffer builds a reference buffer sized to hold windowMs of
// toRate-Hz mono 16-bit PCM (500ms @ 16kHz == 16,000 bytes per spec).
func NewReferenceBuffer(fromRate, toRate, windowMs int) *ReferenceBuffer {
	bytesCapacity := toRate * windowMs / 1000 * 2
	rb := &ReferenceBuffer{
		resampler: audio.NewResampler(fromRate, toRate),
		fromRate:  fromRate,
		toRate:    toRate,
		windowMs:  windowMs,
	}
	rb.ring.Open(bytesCapacity)
	return rb
}

// Feed resamples pcm (fromRate Hz, e.g. 24kHz playback) down to toRate Hz
// and pushes it into the ring, dropping on overflow (the AEC reference is
// best-effort; it must never block the playback worker).
func (r *ReferenceBuffer) Feed(pcm []int16) {
	for start := 0; start < len(pcm); start += referenceScratchSamples {
		end := start + referenceScratchSamples
		if end > len(pcm) {
			end = len(pcm)
		}
		resampled := r.resampler.Resample(pcm[start:end])
		if len(resampled) == 0 {
			continue
		}
		b := int16sToBytes(resampled)
		_, _ = r.ring.Push(b, ring.ModeDrop, time.Time{})
	}
}

// Get fills out with up to len(out) reference samples and reports whether
// real reference data was available. On underrun, out is zero-filled and
// Get returns false.
func (r *ReferenceBuffer) Get(out []int16) bool {
	need := len(out) * 2
	buf := make([]byte, need)
	n, err := r.ring.PopUpTo(buf, need, time.Now())
	if err != nil || n == 0 {
		for i := range out {
			out[i] = 0
		}
		return false
	}
	got := bytesToInt16s(buf[:n])
	copy(out, got)
	for i := len(got); i < len(out); i++ {
		out[i] = 0
	}
	return n == need
}

func int16sToBytes(samples []int16) []byte {
	b := make([]byte, len(samples)*2)
	for i, s := range samples {
		b[i*2] = byte(uint16(s))
		b[i*2+1] = byte(uint16(s) >> 8)
	}
	return b
}

func bytesToInt16s(b []byte) []int16 {
	n := len(b) / 2
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		out[i] = int16(uint16(b[i*2]) | uint16(b[i*2+1])<<8)
	}
	return out
}
