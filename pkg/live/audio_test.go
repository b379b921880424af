package live

import (
	"math"
	"testing"
	"time"
)

func TestAudioSpec_Duration(t *testing.T) {
	spec := AudioSpec{SampleRateHz: 24000, Channels: 1, BitsPerSample: 16}

	tests := []struct {
		name  string
		bytes int
		want  time.Duration
	}{
		{"one second", 48000, time.Second},
		{"half second", 24000, 500 * time.Millisecond},
		{"one sample", 2, time.Second / 24000},
		{"empty", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := spec.Duration(tt.bytes); got != tt.want {
				t.Fatalf("Duration(%d) = %v, want %v", tt.bytes, got, tt.want)
			}
		})
	}
}

func TestAudioSpec_BytesFor_WholeSamples(t *testing.T) {
	spec := AudioSpec{SampleRateHz: 24000, Channels: 1, BitsPerSample: 16}
	got := spec.BytesFor(time.Second)
	if got != 48000 {
		t.Fatalf("BytesFor(1s) = %d, want 48000", got)
	}
	// 1ms at 24kHz is 24 samples exactly; 100µs is 2.4 samples and must
	// round down to a whole sample boundary.
	if got := spec.BytesFor(100 * time.Microsecond); got != 4 {
		t.Fatalf("BytesFor(100µs) = %d, want 4", got)
	}
}

func TestMeanAbsAmplitude(t *testing.T) {
	tests := []struct {
		name  string
		frame []float32
		want  float64
	}{
		{"empty", nil, 0},
		{"silence", make([]float32, 256), 0},
		{"full scale", []float32{1, -1, 1, -1}, 1},
		{"mixed", []float32{0.5, -0.5, 0, 0}, 0.25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MeanAbsAmplitude(tt.frame)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Fatalf("MeanAbsAmplitude = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRMSAmplitude(t *testing.T) {
	got := RMSAmplitude([]float32{0.5, -0.5, 0.5, -0.5})
	if math.Abs(got-0.5) > 1e-9 {
		t.Fatalf("RMSAmplitude = %v, want 0.5", got)
	}
	if got := RMSAmplitude(nil); got != 0 {
		t.Fatalf("RMSAmplitude(nil) = %v, want 0", got)
	}
}

func TestPeakAmplitude(t *testing.T) {
	// float32 literals carry ~1e-8 of representation error.
	got := PeakAmplitude([]float32{0.1, -0.9, 0.3})
	if math.Abs(got-0.9) > 1e-6 {
		t.Fatalf("PeakAmplitude = %v, want 0.9", got)
	}
	if got := PeakAmplitude(nil); got != 0 {
		t.Fatalf("PeakAmplitude(nil) = %v, want 0", got)
	}
}

func TestRMSEnergyS16LE(t *testing.T) {
	if got := RMSEnergyS16LE(nil); got != 0 {
		t.Fatalf("rms of empty = %v, want 0", got)
	}
	if got := RMSEnergyS16LE(make([]byte, 64)); got != 0 {
		t.Fatalf("rms of silence = %v, want 0", got)
	}

	// A constant half-scale signal: every sample 16384 out of 32768.
	pcm := make([]byte, 32)
	for i := 0; i < len(pcm); i += 2 {
		pcm[i] = 0x00
		pcm[i+1] = 0x40
	}
	got := RMSEnergyS16LE(pcm)
	if math.Abs(got-0.5) > 1e-3 {
		t.Fatalf("rms of half scale = %v, want 0.5", got)
	}
}
