package live

import (
	"math"
	"testing"
)

func meterWith(cfg Config) (*Meter, *[]float64) {
	levels := &[]float64{}
	m := NewMeter(cfg, func(level float64) {
		*levels = append(*levels, level)
	})
	return m, levels
}

func TestMeter_ObserveFrame(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sensitivity = 4.0
	cfg.MaxIntensity = 1.0

	tests := []struct {
		name  string
		frame []float32
		want  float64
	}{
		{"silent frame reports zero", make([]float32, 128), 0},
		{"quiet frame scales by sensitivity", []float32{0.1, -0.1, 0.1, -0.1}, 0.4},
		{"loud frame clamps to max", []float32{1, -1, 1, -1}, 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, levels := meterWith(cfg)
			m.ObserveFrame(tt.frame)
			if len(*levels) != 1 {
				t.Fatalf("got %d reports, want 1", len(*levels))
			}
			if math.Abs((*levels)[0]-tt.want) > 1e-6 {
				t.Fatalf("level = %v, want %v", (*levels)[0], tt.want)
			}
		})
	}
}

func TestMeter_SpeakingPulse(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SpeakingPulse = 0.65
	m, levels := meterWith(cfg)

	m.SetSpeaking(true)
	m.SetSpeaking(false)
	if len(*levels) != 2 {
		t.Fatalf("got %d reports, want 2", len(*levels))
	}
	if (*levels)[0] != 0.65 {
		t.Fatalf("speaking level = %v, want 0.65", (*levels)[0])
	}
	if (*levels)[1] != 0 {
		t.Fatalf("rest level = %v, want 0", (*levels)[1])
	}
}

func TestMeter_ObserveChunkEnvelope(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sensitivity = 1.0
	m, levels := meterWith(cfg)

	// Constant half-scale s16le signal has RMS 0.5.
	pcm := make([]byte, 64)
	for i := 0; i < len(pcm); i += 2 {
		pcm[i+1] = 0x40
	}
	m.ObserveChunk(pcm)
	if len(*levels) != 1 {
		t.Fatalf("got %d reports, want 1", len(*levels))
	}
	if math.Abs((*levels)[0]-0.5) > 1e-3 {
		t.Fatalf("envelope level = %v, want 0.5", (*levels)[0])
	}
}

func TestMeter_NeverNegative(t *testing.T) {
	cfg := DefaultConfig()
	m := NewMeter(cfg, func(level float64) {
		if level < 0 {
			t.Fatalf("negative level %v", level)
		}
	})
	m.ObserveFrame([]float32{-1, -1, -1})
	m.SetSpeaking(false)
	m.ObserveChunk(nil)
}

func TestMeter_NilReportIsSafe(t *testing.T) {
	m := NewMeter(DefaultConfig(), nil)
	m.ObserveFrame([]float32{0.5})
	m.SetSpeaking(true)
}
