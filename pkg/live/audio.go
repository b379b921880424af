package live

import (
	"math"
	"time"
)

// AudioSpec describes the shape of a PCM stream.
type AudioSpec struct {
	SampleRateHz  int
	Channels      int
	BitsPerSample int
}

// BytesPerSecond returns the byte rate of the stream.
func (s AudioSpec) BytesPerSecond() int {
	return s.SampleRateHz * s.Channels * s.BitsPerSample / 8
}

// Duration returns the play time of byteLen bytes of audio.
func (s AudioSpec) Duration(byteLen int) time.Duration {
	bps := s.BytesPerSecond()
	if bps == 0 {
		return 0
	}
	return time.Duration(byteLen) * time.Second / time.Duration(bps)
}

// BytesFor returns the byte count covering duration d, rounded down to a
// whole sample.
func (s AudioSpec) BytesFor(d time.Duration) int {
	n := int(d * time.Duration(s.BytesPerSecond()) / time.Second)
	sample := s.Channels * s.BitsPerSample / 8
	if sample == 0 {
		return n
	}
	return n - n%sample
}

// MeanAbsAmplitude computes the mean absolute amplitude of a float frame.
// Samples are expected in [-1, 1]; the result is 0 for an empty or silent
// frame.
func MeanAbsAmplitude(frame []float32) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, v := range frame {
		sum += math.Abs(float64(v))
	}
	return sum / float64(len(frame))
}

// RMSAmplitude computes the root-mean-square amplitude of a float frame.
func RMSAmplitude(frame []float32) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, v := range frame {
		f := float64(v)
		sum += f * f
	}
	return math.Sqrt(sum / float64(len(frame)))
}

// PeakAmplitude returns the maximum absolute sample value in a float frame.
func PeakAmplitude(frame []float32) float64 {
	var peak float64
	for _, v := range frame {
		abs := math.Abs(float64(v))
		if abs > peak {
			peak = abs
		}
	}
	return peak
}

// RMSEnergyS16LE computes the root-mean-square energy of 16-bit signed
// little-endian PCM, normalized to [0, 1].
func RMSEnergyS16LE(pcm []byte) float64 {
	samples := len(pcm) / 2
	if samples == 0 {
		return 0
	}

	var sum float64
	for i := 0; i+1 < len(pcm); i += 2 {
		sample := int16(pcm[i]) | int16(pcm[i+1])<<8
		normalized := float64(sample) / 32768.0
		sum += normalized * normalized
	}

	return math.Sqrt(sum / float64(samples))
}
