package audioio

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
)

func captureLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func samplesToBytes(samples []float32) []byte {
	buf := make([]byte, 4*len(samples))
	for i, v := range samples {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

func countingSamples(n int) []float32 {
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = float32(i)
	}
	return samples
}

func TestCapture_OnDataEmitsWholeFrames(t *testing.T) {
	t.Parallel()

	c := NewCapture(16000, 4, captureLogger())

	// Nine samples: two whole frames and one sample left pending.
	samples := countingSamples(9)
	c.onData(nil, samplesToBytes(samples), uint32(len(samples)))

	for f := 0; f < 2; f++ {
		select {
		case frame := <-c.frames:
			if len(frame) != 4 {
				t.Fatalf("frame %d has %d samples, want 4", f, len(frame))
			}
			for i, v := range frame {
				if want := float32(4*f + i); v != want {
					t.Fatalf("frame %d sample %d = %v, want %v", f, i, v, want)
				}
			}
		default:
			t.Fatalf("frame %d not emitted", f)
		}
	}
	select {
	case frame := <-c.frames:
		t.Fatalf("unexpected short frame %v", frame)
	default:
	}

	// The pending sample completes a frame on the next callback.
	c.onData(nil, samplesToBytes([]float32{9, 10, 11}), 3)
	select {
	case frame := <-c.frames:
		if frame[0] != 8 || frame[3] != 11 {
			t.Fatalf("carried frame = %v", frame)
		}
	default:
		t.Fatal("pending samples never completed a frame")
	}
}

func TestCapture_OnDataIgnoresPartialTrailingBytes(t *testing.T) {
	t.Parallel()

	c := NewCapture(16000, 2, captureLogger())

	// Claim more frames than the buffer holds; the extra is ignored.
	data := samplesToBytes([]float32{1, 2})
	c.onData(nil, data, 5)

	select {
	case frame := <-c.frames:
		if len(frame) != 2 || frame[0] != 1 || frame[1] != 2 {
			t.Fatalf("frame = %v", frame)
		}
	default:
		t.Fatal("no frame emitted")
	}
}

func TestCapture_DropsWhenConsumerLagsInsteadOfBlocking(t *testing.T) {
	t.Parallel()

	c := NewCapture(16000, 2, captureLogger())

	// Nineteen frames against a sixteen-frame channel: the callback
	// must return without blocking and count the overflow.
	c.onData(nil, samplesToBytes(countingSamples(2*(frameBuffer+3))), uint32(2*(frameBuffer+3)))

	delivered := 0
	for {
		select {
		case <-c.frames:
			delivered++
			continue
		default:
		}
		break
	}
	if delivered != frameBuffer {
		t.Fatalf("delivered %d frames, want %d", delivered, frameBuffer)
	}
	c.mu.Lock()
	dropped := c.dropped
	c.mu.Unlock()
	if dropped != 3 {
		t.Fatalf("dropped = %d, want 3", dropped)
	}
}

func TestCapture_StopBeforeStart(t *testing.T) {
	t.Parallel()

	c := NewCapture(16000, 4, captureLogger())
	if err := c.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := c.Stop(); err != nil {
		t.Fatalf("second stop: %v", err)
	}
	if _, ok := <-c.Frames(); ok {
		t.Fatal("frames channel still open after Stop")
	}
	if err := c.Start(context.Background()); !errors.Is(err, ErrCaptureUnavailable) {
		t.Fatalf("start after stop = %v, want ErrCaptureUnavailable", err)
	}
}

func TestCapture_StartHonorsCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewCapture(16000, 4, captureLogger())
	if err := c.Start(ctx); !errors.Is(err, ErrCaptureUnavailable) {
		t.Fatalf("start = %v, want ErrCaptureUnavailable", err)
	}
}

func TestCapture_OnDataAfterStopIsInert(t *testing.T) {
	t.Parallel()

	c := NewCapture(16000, 2, captureLogger())
	if err := c.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	// Must not panic or write to the closed channel.
	c.onData(nil, samplesToBytes([]float32{1, 2}), 2)
}
