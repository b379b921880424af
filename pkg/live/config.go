package live

import "time"

// State tracks where a session is in its lifecycle.
type State int

const (
	// StateIdle is the state before Connect is called.
	StateIdle State = iota
	// StateConnecting covers microphone acquisition and the transport
	// handshake.
	StateConnecting
	// StateConnected means audio is flowing in both directions.
	StateConnected
	// StateDisconnected is the normal terminal state.
	StateDisconnected
	// StateFailed is the terminal state after an unrecoverable error.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateDisconnected:
		return "Disconnected"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Config holds the tunable parameters of a session.
type Config struct {
	// CaptureRateHz is the microphone sample rate.
	CaptureRateHz int

	// FrameSamples is the fixed number of samples per outbound frame.
	FrameSamples int

	// PlaybackRateHz is the sample rate of inbound audio chunks.
	PlaybackRateHz int

	// Sensitivity scales the mean absolute amplitude of outbound frames
	// into the reported intensity level.
	Sensitivity float64

	// SpeakingPulse is the fixed intensity reported while inbound audio
	// is playing.
	SpeakingPulse float64

	// MaxIntensity is the ceiling for reported intensity levels.
	MaxIntensity float64

	// TrackEnvelope reports the RMS energy of each decoded inbound chunk
	// instead of the fixed speaking pulse.
	TrackEnvelope bool

	// ReapInterval is how often completed playback handles are retired.
	ReapInterval time.Duration

	// HandshakeTimeout bounds the transport handshake.
	HandshakeTimeout time.Duration
}

// DefaultConfig returns the standard session parameters: 16 kHz mono
// capture in 4096-sample frames, 24 kHz mono playback.
func DefaultConfig() Config {
	return Config{
		CaptureRateHz:    16000,
		FrameSamples:     4096,
		PlaybackRateHz:   24000,
		Sensitivity:      8.0,
		SpeakingPulse:    0.65,
		MaxIntensity:     1.0,
		ReapInterval:     20 * time.Millisecond,
		HandshakeTimeout: 15 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.CaptureRateHz <= 0 {
		c.CaptureRateHz = def.CaptureRateHz
	}
	if c.FrameSamples <= 0 {
		c.FrameSamples = def.FrameSamples
	}
	if c.PlaybackRateHz <= 0 {
		c.PlaybackRateHz = def.PlaybackRateHz
	}
	if c.Sensitivity <= 0 {
		c.Sensitivity = def.Sensitivity
	}
	if c.SpeakingPulse <= 0 {
		c.SpeakingPulse = def.SpeakingPulse
	}
	if c.MaxIntensity <= 0 {
		c.MaxIntensity = def.MaxIntensity
	}
	if c.ReapInterval <= 0 {
		c.ReapInterval = def.ReapInterval
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	return c
}

// FrameDuration returns the wall-clock span of one outbound frame.
func (c Config) FrameDuration() time.Duration {
	if c.CaptureRateHz <= 0 {
		return 0
	}
	return time.Duration(c.FrameSamples) * time.Second / time.Duration(c.CaptureRateHz)
}

// PlaybackSpec returns the PCM shape of decoded inbound chunks.
func (c Config) PlaybackSpec() AudioSpec {
	return AudioSpec{SampleRateHz: c.PlaybackRateHz, Channels: 1, BitsPerSample: 16}
}
