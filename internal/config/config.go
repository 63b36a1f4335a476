// Package config defines the endpoint's configuration surface. Per the
// wire contract there is no CLI surface and no environment variables —
// configuration is entirely in-process, constructed by the embedding
// application (cmd/assistantd, or a future firmware build system) and
// passed to session.NewCore and its collaborators directly.
package config

import (
	"fmt"
	"time"
)

// Config holds every tunable named in the external interface. All fields
// are required to be sane before use; call Validate after construction.
type Config struct {
	// EndpointURL is the proxy's WebSocket URL. Required.
	EndpointURL string
	// AuthToken is sent as a bearer header when non-empty.
	AuthToken string

	// CaptureSampleRateHz and PlaybackSampleRateHz are fixed by the wire
	// contract; they are fields (rather than constants) only so tests can
	// exercise the resampler at other rates.
	CaptureSampleRateHz  int
	PlaybackSampleRateHz int

	CaptureChunkMs         int
	PlaybackPrebufferMs    int
	PlaybackRingCapacityMs int

	TransportSendTimeout      time.Duration
	TransportKeepalive        time.Duration
	TransportReconnectBackoff time.Duration

	AECEnabled           bool
	AECReferenceWindowMs int

	VolumePercent int
}

// DefaultConfig returns the fixed defaults from the external interface.
// EndpointURL is left empty; callers must set it before Validate.
func DefaultConfig() Config {
	return Config{
		CaptureSampleRateHz:       16000,
		PlaybackSampleRateHz:      24000,
		CaptureChunkMs:            100,
		PlaybackPrebufferMs:       500,
		PlaybackRingCapacityMs:    2000,
		TransportSendTimeout:      5000 * time.Millisecond,
		TransportKeepalive:        10000 * time.Millisecond,
		TransportReconnectBackoff: 10000 * time.Millisecond,
		AECEnabled:                false,
		AECReferenceWindowMs:      500,
		VolumePercent:             100,
	}
}

// Validate checks the invariants required before the pipeline can start.
func (c Config) Validate() error {
	if c.EndpointURL == "" {
		return fmt.Errorf("config: endpoint_url is required")
	}
	if c.CaptureSampleRateHz <= 0 || c.PlaybackSampleRateHz <= 0 {
		return fmt.Errorf("config: sample rates must be positive")
	}
	if c.VolumePercent < 0 || c.VolumePercent > 100 {
		return fmt.Errorf("config: volume_percent must be 0..100, got %d", c.VolumePercent)
	}
	if c.CaptureChunkMs <= 0 {
		return fmt.Errorf("config: capture_chunk_ms must be positive")
	}
	return nil
}

// PlaybackRingBytes converts PlaybackRingCapacityMs into the byte
// capacity the Playback Stage's ring should be opened with.
func (c Config) PlaybackRingBytes() int {
	return c.PlaybackSampleRateHz * c.PlaybackRingCapacityMs / 1000 * 2
}

// PlaybackPrebufferBytes converts PlaybackPrebufferMs into the pre-buffer
// threshold in bytes.
func (c Config) PlaybackPrebufferBytes() int {
	return c.PlaybackSampleRateHz * c.PlaybackPrebufferMs / 1000 * 2
}

// CaptureChunkBytes returns the configured capture chunk size in bytes.
func (c Config) CaptureChunkBytes() int {
	return c.CaptureSampleRateHz * c.CaptureChunkMs / 1000 * 2
}
