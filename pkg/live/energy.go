package live

// Meter converts audio activity into the intensity levels that drive the
// call screen. Outbound frames are measured directly; inbound speech is
// reported either as a fixed pulse or, in envelope mode, as the RMS of
// each decoded chunk. Levels are always within [0, max] and drop to 0 at
// rest.
type Meter struct {
	sensitivity float64
	pulse       float64
	max         float64
	report      func(level float64)
}

func NewMeter(cfg Config, report func(level float64)) *Meter {
	cfg = cfg.withDefaults()
	return &Meter{
		sensitivity: cfg.Sensitivity,
		pulse:       cfg.SpeakingPulse,
		max:         cfg.MaxIntensity,
		report:      report,
	}
}

// ObserveFrame reports the intensity of one outbound microphone frame.
// A silent frame reports exactly 0.
func (m *Meter) ObserveFrame(frame []float32) {
	m.emit(MeanAbsAmplitude(frame) * m.sensitivity)
}

// ObserveChunk reports the envelope of one decoded inbound chunk.
func (m *Meter) ObserveChunk(pcm []byte) {
	m.emit(RMSEnergyS16LE(pcm) * m.sensitivity)
}

// SetSpeaking reports the fixed speaking pulse while inbound audio is
// playing and 0 once it stops.
func (m *Meter) SetSpeaking(speaking bool) {
	if speaking {
		m.emit(m.pulse)
	} else {
		m.emit(0)
	}
}

func (m *Meter) emit(level float64) {
	if level < 0 {
		level = 0
	}
	if level > m.max {
		level = m.max
	}
	if m.report != nil {
		m.report(level)
	}
}
