package aec

import (
	"log"
)

// defaultChunkSize is the samples-per-channel the processor operates on.
// Typical hardware AEC libraries in this range (128-512); NLMS converges
// well at 256 for 16kHz voice.
const defaultChunkSize = 256

// outputQueueCapacity bounds the processor's internal cleaned-mic queue.
// Decouples the NLMS compute goroutine from the sink, which may block on
// network I/O; a full queue drops the newly cleaned chunk with a warning
// rather than stalling the fetch side.
const outputQueueCapacity = 10

// nlmsTaps is the adaptive filter length in samples, matched to the
// reference window the ReferenceBuffer supplies.
const nlmsTaps = 256

// nlmsStepSize (mu) controls adaptation speed vs. stability.
const nlmsStepSize = 0.1

// nlmsRegularization avoids division by zero when the reference signal is
// silent.
const nlmsRegularization = 1e-6

// Processor interleaves mic and reference chunks through a normalized
// least-mean-squares adaptive filter, the textbook dependency-free
// acoustic-echo-cancellation algorithm, and emits cleaned mic chunks
// through a bounded queue to decouple compute from a (possibly blocking)
// sink.
type Processor struct {
	chunkSize int
	weights   []float64
	history   []float64 // circular reference history, length nlmsTaps

	sink   func(cleaned []int16)
	feedCh chan [2][]int16 // [mic, ref] pairs
	outCh  chan []int16
	done   chan struct{}
}

// NewProcessor builds a Processor that delivers cleaned mic chunks to
// sink. sink is invoked from a dedicated output goroutine, never from the
// feed goroutine, so a blocking sink cannot stall the adaptive filter.
func NewProcessor(sink func(cleaned []int16)) *Processor {
	p := &Processor{
		chunkSize: defaultChunkSize,
		weights:   make([]float64, nlmsTaps),
		history:   make([]float64, nlmsTaps),
		sink:      sink,
		feedCh:    make(chan [2][]int16, outputQueueCapacity),
		outCh:     make(chan []int16, outputQueueCapacity),
		done:      make(chan struct{}),
	}
	go p.feedLoop()
	go p.outputLoop()
	return p
}

// ChunkSize returns the samples-per-channel this processor expects in
// Process calls.
func (p *Processor) ChunkSize() int { return p.chunkSize }

// Process submits one [mic, ref] chunk pair, each of length ChunkSize(),
// for echo cancellation. Drops (with a warning) if the feed queue is
// full rather than blocking the capture path.
func (p *Processor) Process(mic, ref []int16) {
	select {
	case p.feedCh <- [2][]int16{mic, ref}:
	default:
		log.Printf("aec: feed queue full, dropping chunk")
	}
}

// feedLoop runs the NLMS adaptation and emits cleaned chunks to outCh.
// Conceptually the "near-real-time, same core as capture" task of the
// concurrency model — in Go, simply a dedicated goroutine.
func (p *Processor) feedLoop() {
	for {
		select {
		case <-p.done:
			return
		case pair := <-p.feedCh:
			cleaned := p.filter(pair[0], pair[1])
			select {
			case p.outCh <- cleaned:
			default:
				log.Printf("aec: output queue full, dropping cleaned chunk")
			}
		}
	}
}

// outputLoop calls the user sink outside the adaptive-filter goroutine —
// the "lower priority, may block on network I/O" task of the concurrency
// model.
func (p *Processor) outputLoop() {
	for {
		select {
		case <-p.done:
			return
		case cleaned := <-p.outCh:
			if p.sink != nil {
				p.sink(cleaned)
			}
		}
	}
}

// Close stops both goroutines. Not safe to call Process afterward.
func (p *Processor) Close() {
	close(p.done)
}

// filter runs one NLMS adaptation step per sample: predicts the echo
// component of mic from the reference history, subtracts it, and updates
// the filter weights proportionally to the prediction error.
func (p *Processor) filter(mic, ref []int16) []int16 {
	n := len(mic)
	if len(ref) < n {
		n = len(ref)
	}
	cleaned := make([]int16, len(mic))
	copy(cleaned, mic)

	for i := 0; i < n; i++ {
		copy(p.history[1:], p.history[:len(p.history)-1])
		p.history[0] = float64(ref[i]) / 32768.0

		var predicted, energy float64
		for j, w := range p.weights {
			predicted += w * p.history[j]
			energy += p.history[j] * p.history[j]
		}

		target := float64(mic[i]) / 32768.0
		errSample := target - predicted

		mu := nlmsStepSize / (energy + nlmsRegularization)
		for j := range p.weights {
			p.weights[j] += mu * errSample * p.history[j]
		}

		cleaned[i] = clip16(errSample * 32768.0)
	}
	return cleaned
}

func clip16(v float64) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}
