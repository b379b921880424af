// Package audioio owns the physical audio endpoints: microphone capture
// through miniaudio and speaker playback through oto.
package audioio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/gen2brain/malgo"
)

// ErrCaptureUnavailable wraps every way the microphone can fail to
// open: no device, no permission, backend init failure.
var ErrCaptureUnavailable = errors.New("audioio: capture unavailable")

const frameBuffer = 16

// Capture pulls mono float PCM from the default microphone and emits
// fixed-size frames. The device callback accumulates samples and never
// emits a short frame; if the consumer falls behind, whole frames are
// dropped rather than blocking the audio thread.
type Capture struct {
	rateHz    int
	frameSize int
	log       *slog.Logger

	frames chan []float32

	mu      sync.Mutex
	ctx     *malgo.AllocatedContext
	device  *malgo.Device
	pending []float32
	dropped int
	started bool
	stopped bool
}

func NewCapture(rateHz, frameSamples int, log *slog.Logger) *Capture {
	if log == nil {
		log = slog.Default()
	}
	return &Capture{
		rateHz:    rateHz,
		frameSize: frameSamples,
		log:       log,
		frames:    make(chan []float32, frameBuffer),
	}
}

// Start opens the default capture device. It fails fast with a wrapped
// ErrCaptureUnavailable; there is no silent no-op path.
func (c *Capture) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCaptureUnavailable, err)
	}
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return fmt.Errorf("%w: capture already stopped", ErrCaptureUnavailable)
	}
	if c.started {
		c.mu.Unlock()
		return fmt.Errorf("%w: capture already started", ErrCaptureUnavailable)
	}
	c.mu.Unlock()

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{ThreadPriority: malgo.ThreadPriorityRealtime}, nil)
	if err != nil {
		return fmt.Errorf("%w: init context: %v", ErrCaptureUnavailable, err)
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatF32
	cfg.Capture.Channels = 1
	cfg.SampleRate = uint32(c.rateHz)
	cfg.PeriodSizeInMilliseconds = 20
	cfg.Alsa.NoMMap = 1

	callbacks := malgo.DeviceCallbacks{Data: c.onData}
	device, err := malgo.InitDevice(mctx.Context, cfg, callbacks)
	if err != nil {
		_ = mctx.Uninit()
		mctx.Free()
		return fmt.Errorf("%w: open device: %v", ErrCaptureUnavailable, err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		_ = mctx.Uninit()
		mctx.Free()
		return fmt.Errorf("%w: start device: %v", ErrCaptureUnavailable, err)
	}

	c.mu.Lock()
	if c.stopped {
		// Lost a race with Stop; release what was just acquired.
		c.mu.Unlock()
		device.Uninit()
		_ = mctx.Uninit()
		mctx.Free()
		return fmt.Errorf("%w: capture already stopped", ErrCaptureUnavailable)
	}
	c.ctx = mctx
	c.device = device
	c.started = true
	c.mu.Unlock()
	c.log.Debug("capture started", "rate_hz", c.rateHz, "frame_samples", c.frameSize)
	return nil
}

// Frames returns the frame channel. It closes after Stop.
func (c *Capture) Frames() <-chan []float32 {
	return c.frames
}

// Stop releases the device and closes the frame channel. Idempotent and
// safe before Start.
func (c *Capture) Stop() error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	device := c.device
	mctx := c.ctx
	dropped := c.dropped
	c.device = nil
	c.ctx = nil
	c.pending = nil
	c.mu.Unlock()

	if device != nil {
		device.Uninit()
	}
	if mctx != nil {
		_ = mctx.Uninit()
		mctx.Free()
	}
	close(c.frames)
	if dropped > 0 {
		c.log.Warn("capture dropped frames", "count", dropped)
	}
	c.log.Debug("capture stopped")
	return nil
}

// onData runs on the audio thread. It converts the device's f32le bytes
// to samples, slices them into whole frames, and hands them off without
// ever blocking.
func (c *Capture) onData(_, input []byte, frameCount uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	n := int(frameCount)
	if 4*n > len(input) {
		n = len(input) / 4
	}
	for i := 0; i < n; i++ {
		c.pending = append(c.pending, math.Float32frombits(binary.LittleEndian.Uint32(input[4*i:])))
	}
	for len(c.pending) >= c.frameSize {
		frame := make([]float32, c.frameSize)
		copy(frame, c.pending[:c.frameSize])
		c.pending = c.pending[c.frameSize:]
		select {
		case c.frames <- frame:
		default:
			c.dropped++
		}
	}
}
