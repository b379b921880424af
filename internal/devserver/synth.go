package devserver

import (
	"hash/fnv"
	"math"
	"strings"
	"time"

	"github.com/immortal-app/immortal/pkg/live"
)

// replySpec is the wire output format: 24 kHz mono s16le.
var replySpec = live.AudioSpec{SampleRateHz: 24000, Channels: 1, BitsPerSample: 16}

// voiceFrequency maps a voice style string onto a base pitch so that
// different personas sound different on the dev server.
func voiceFrequency(voice string) float64 {
	bases := []float64{196.0, 220.0, 246.9, 261.6, 293.7}
	voice = strings.ToLower(strings.TrimSpace(voice))
	if voice == "" {
		return bases[1]
	}
	h := fnv.New32a()
	h.Write([]byte(voice))
	return bases[int(h.Sum32())%len(bases)]
}

// synthesizeReply renders a short melodic phrase as s16le PCM: an
// arpeggio over the base pitch, with short ramps at note edges so chunk
// boundaries stay click-free however the client schedules them.
func synthesizeReply(baseHz float64, d time.Duration) []byte {
	total := replySpec.BytesFor(d) / 2
	if total <= 0 {
		return nil
	}
	ratios := []float64{1, 1.25, 1.5, 2}
	noteLen := replySpec.SampleRateHz * 320 / 1000
	ramp := replySpec.SampleRateHz * 10 / 1000
	const amplitude = 0.25

	pcm := make([]byte, 2*total)
	for i := 0; i < total; i++ {
		note := (i / noteLen) % len(ratios)
		pos := i % noteLen
		freq := baseHz * ratios[note]

		env := 1.0
		if pos < ramp {
			env = float64(pos) / float64(ramp)
		} else if rem := noteLen - pos; rem < ramp {
			env = float64(rem) / float64(ramp)
		}

		v := amplitude * env * math.Sin(2*math.Pi*freq*float64(pos)/float64(replySpec.SampleRateHz))
		s := int16(v * 32767)
		pcm[2*i] = byte(s)
		pcm[2*i+1] = byte(s >> 8)
	}
	return pcm
}
