package audio

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
)

// MalgoCapture adapts a malgo capture device to the I2SReader interface.
// The spec models the source as a 32-bit I²S stream; on a host machine
// there is no I²S peripheral, so malgo's cross-platform capture device
// plays that role, configured for 32-bit samples to match the conversion
// stage's expected input width.
type MalgoCapture struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device

	mu  sync.Mutex
	buf []int32
}

// NewMalgoCapture opens the default capture device at sampleRate with
// 32-bit signed samples, mono.
func NewMalgoCapture(sampleRate int) (*MalgoCapture, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("audio: init capture context: %w", err)
	}

	c := &MalgoCapture{ctx: ctx}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS32
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(sampleRate)
	deviceConfig.PeriodSizeInMilliseconds = 16

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, in []byte, frameCount uint32) {
			c.mu.Lock()
			n := int(frameCount)
			if cap(c.buf) < n {
				c.buf = make([]int32, n)
			}
			c.buf = c.buf[:n]
			for i := 0; i < n; i++ {
				c.buf[i] = int32(binary.LittleEndian.Uint32(in[i*4:]))
			}
			c.mu.Unlock()
		},
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, callbacks)
	if err != nil {
		ctx.Uninit()
		ctx.Free()
		return nil, fmt.Errorf("audio: init capture device: %w", err)
	}
	c.device = device

	if err := device.Start(); err != nil {
		device.Uninit()
		ctx.Uninit()
		ctx.Free()
		return nil, fmt.Errorf("audio: start capture device: %w", err)
	}

	return c, nil
}

// ReadFrame implements I2SReader by returning the samples of the most
// recent device callback, up to len(dst). It returns at once, with 0 when
// nothing new has arrived. Each callback replaces the pending samples, so
// samples a callback produced that were not read before the next callback,
// and samples beyond len(dst), are discarded.
func (c *MalgoCapture) ReadFrame(dst []int32) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := copy(dst, c.buf)
	c.buf = c.buf[:0]
	return n, nil
}

// Close releases the capture device and context.
func (c *MalgoCapture) Close() {
	if c.device != nil {
		c.device.Stop()
		c.device.Uninit()
	}
	if c.ctx != nil {
		_ = c.ctx.Uninit()
		c.ctx.Free()
	}
}

// MalgoPlayback adapts a malgo playback device to the I2SWriter
// interface, playing the role of the spec's I²S TX peripheral.
type MalgoPlayback struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device

	mu  sync.Mutex
	buf []byte
}

// NewMalgoPlayback opens the default playback device at sampleRate with
// 16-bit signed samples, mono.
func NewMalgoPlayback(sampleRate int) (*MalgoPlayback, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("audio: init playback context: %w", err)
	}

	p := &MalgoPlayback{ctx: ctx}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = 1
	deviceConfig.SampleRate = uint32(sampleRate)
	deviceConfig.PeriodSizeInMilliseconds = 20

	callbacks := malgo.DeviceCallbacks{
		Data: func(out, _ []byte, frameCount uint32) {
			p.mu.Lock()
			n := copy(out, p.buf)
			p.buf = p.buf[n:]
			p.mu.Unlock()
			for i := n; i < len(out); i++ {
				out[i] = 0
			}
		},
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, callbacks)
	if err != nil {
		ctx.Uninit()
		ctx.Free()
		return nil, fmt.Errorf("audio: init playback device: %w", err)
	}
	p.device = device

	if err := device.Start(); err != nil {
		device.Uninit()
		ctx.Uninit()
		ctx.Free()
		return nil, fmt.Errorf("audio: start playback device: %w", err)
	}

	return p, nil
}

// WriteFrame implements I2SWriter by appending pcm to the pending output
// buffer the device callback drains from. It returns at once and the
// pending buffer is unbounded, so it does not pace the caller to the
// device clock.
func (p *MalgoPlayback) WriteFrame(pcm []byte) error {
	p.mu.Lock()
	p.buf = append(p.buf, pcm...)
	p.mu.Unlock()
	return nil
}

// Close releases the playback device and context.
func (p *MalgoPlayback) Close() {
	if p.device != nil {
		p.device.Stop()
		p.device.Uninit()
	}
	if p.ctx != nil {
		_ = p.ctx.Uninit()
		p.ctx.Free()
	}
}
