// Command assistantd wires together the voice-assistant endpoint's
// capture, playback, transport, and session components and runs until
// terminated.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/agalue/voice-endpoint/internal/aec"
	"github.com/agalue/voice-endpoint/internal/audio"
	"github.com/agalue/voice-endpoint/internal/config"
	"github.com/agalue/voice-endpoint/internal/identity"
	"github.com/agalue/voice-endpoint/internal/session"
	"github.com/agalue/voice-endpoint/internal/transport"
)

// defaultEndpointURL is the proxy endpoint this reference binary connects
// to. A real deployment overrides Config.EndpointURL before starting.
const defaultEndpointURL = "wss://proxy.example.invalid/v1/assistant"

func main() {
	// Configuration is in-process per the external interface contract: no
	// CLI flags, no environment variables. A real deployment sets these
	// fields directly before calling run; defaultEndpointURL is a
	// placeholder for this reference binary.
	cfg := config.DefaultConfig()
	cfg.EndpointURL = defaultEndpointURL
	if err := cfg.Validate(); err != nil {
		log.Fatalf("assistantd: invalid configuration: %v", err)
	}

	log.Println("assistantd starting...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	store, err := identity.OpenBoltStore(filepath.Join(os.TempDir(), "assistantd-identity.db"))
	if err != nil {
		log.Printf("assistantd: identity store unavailable, using ephemeral id: %v", err)
	}
	var kv identity.KVStore
	if store != nil {
		kv = store
		defer store.Close()
	}
	sessionID := identity.Load(kv)
	log.Printf("assistantd: session id %s", sessionID)

	malgoCapture, err := audio.NewMalgoCapture(cfg.CaptureSampleRateHz)
	if err != nil {
		log.Fatalf("assistantd: capture device init failed: %v", err)
	}
	defer malgoCapture.Close()

	malgoPlayback, err := audio.NewMalgoPlayback(cfg.PlaybackSampleRateHz)
	if err != nil {
		log.Fatalf("assistantd: playback device init failed: %v", err)
	}
	defer malgoPlayback.Close()

	// core, capturer, tr, and the AEC processor's sink each need a handle
	// to one of the others before all exist; core is built last and the
	// others forward to it through these indirection closures.
	var core *session.Core

	// aecRef and aecProc stay nil interfaces unless aec_enabled, so
	// Core's "aecProc == nil" check works without a typed-nil gotcha.
	var aecRef session.AECReference
	var aecProc session.AECProcessor
	var referenceTap func(pcm []byte)
	if cfg.AECEnabled {
		ref := aec.NewReferenceBuffer(cfg.PlaybackSampleRateHz, cfg.CaptureSampleRateHz, cfg.AECReferenceWindowMs)
		proc := aec.NewProcessor(func(cleaned []int16) {
			if core != nil {
				core.SendCleaned(cleaned)
			}
		})
		aecRef = ref
		aecProc = proc
		referenceTap = func(pcm []byte) { ref.Feed(bytesToInt16(pcm)) }
	}

	player := audio.NewPlayer(malgoPlayback, audio.PlaybackEvents{
		Started:      func() { log.Println("assistantd: playback started") },
		Completed:    func() { log.Println("assistantd: playback completed") },
		Error:        func(err error) { log.Printf("assistantd: playback error: %v", err) },
		ReferenceTap: referenceTap,
	}, cfg.PlaybackRingBytes(), cfg.PlaybackPrebufferBytes())
	if err := player.SetVolume(cfg.VolumePercent); err != nil {
		log.Fatalf("assistantd: invalid volume: %v", err)
	}

	tr := transport.Init(cfg.EndpointURL, cfg.AuthToken, cfg.TransportSendTimeout, cfg.TransportKeepalive,
		func(data []byte) {
			if err := player.StreamWrite(data); err != nil {
				log.Printf("assistantd: playback write failed: %v", err)
			}
		},
		func(connected bool, closeCode uint16) {
			if core != nil {
				core.OnTransportState(connected, closeCode)
			}
		},
		func(speaking bool) {
			if core != nil {
				core.OnSpeechEvent(speaking)
			}
		},
	)

	capturer := audio.NewCapturer(malgoCapture, func(data []byte) {
		if core != nil {
			core.CaptureSink(data)
		}
	}, false, false)

	core = session.NewCore(sessionID, capturer, player, tr, aecRef, aecProc, func(status session.Status) {
		log.Printf("assistantd: status state=%s wifi=%v proxy=%v", status.State, status.WifiConnected, status.ProxyConnected)
	})

	if err := tr.Connect(ctx); err != nil {
		log.Fatalf("assistantd: initial connect failed: %v", err)
	}
	core.SetWifiConnected(true)
	core.RecordStart()

	<-sigChan
	log.Println("assistantd: shutdown signal received")

	core.RecordStop()
	player.StreamEnd()
	tr.Destroy()

	log.Println("assistantd: stopped")
}

func init() {
	log.SetFlags(log.Ltime)
	log.SetOutput(os.Stdout)
}

// bytesToInt16 converts little-endian 16-bit PCM to samples for the AEC
// reference tap.
func bytesToInt16(b []byte) []int16 {
	n := len(b) / 2
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		out[i] = int16(uint16(b[i*2]) | uint16(b[i*2+1])<<8)
	}
	return out
}
