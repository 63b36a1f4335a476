// Package audio implements the capture and playback stages of the audio
// pipeline, plus the linear-interpolation sample-rate converter used by
// the AEC reference path.
package audio

import "math"

// Resampler converts signed 16-bit PCM between two fixed sample rates
// using linear interpolation. This is lightweight and sufficient for
// voice applications where audiophile quality is not required — the same
// tradeoff the teacher made for its float32 resampler, carried over to
// the int16 domain this pipeline operates in.
type Resampler struct {
	fromRate int
	toRate   int
}

// NewResampler creates a resampler converting fromRate Hz to toRate Hz.
func NewResampler(fromRate, toRate int) *Resampler {
	return &Resampler{fromRate: fromRate, toRate: toRate}
}

// Resample converts input (fromRate Hz) to toRate Hz using linear
// interpolation: for output index i, the source position is
// p = i*fromRate/toRate, idx = floor(p), frac = p - idx, and the output
// sample is clip16(s[idx] + frac*(s[idx+1]-s[idx])). At the right
// boundary (idx >= len(input)-1) the last input sample is held flat
// rather than extrapolated. Output length is floor(len(input)*toRate/fromRate).
func (r *Resampler) Resample(input []int16) []int16 {
	if r.fromRate == r.toRate {
		out := make([]int16, len(input))
		copy(out, input)
		return out
	}
	n := len(input)
	if n == 0 {
		return nil
	}

	outLen := n * r.toRate / r.fromRate
	output := make([]int16, outLen)

	for i := 0; i < outLen; i++ {
		p := float64(i) * float64(r.fromRate) / float64(r.toRate)
		idx := int(math.Floor(p))
		frac := p - float64(idx)

		if idx >= n-1 {
			output[i] = input[n-1]
			continue
		}
		s0 := float64(input[idx])
		s1 := float64(input[idx+1])
		output[i] = clip16(s0 + frac*(s1-s0))
	}

	return output
}

// ResampleInPlace is a convenience wrapper for one-shot resampling where
// no Resampler instance needs to be retained across calls.
func ResampleInPlace(input []int16, fromRate, toRate int) []int16 {
	if fromRate == toRate {
		out := make([]int16, len(input))
		copy(out, input)
		return out
	}
	return NewResampler(fromRate, toRate).Resample(input)
}

// clip16 saturates a float64 sample to the int16 range.
func clip16(v float64) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(math.Round(v))
}
