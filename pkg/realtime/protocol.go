// Package realtime implements the client side of the live voice wire
// protocol: a websocket carrying JSON messages, with microphone frames
// encoded as base64 f32le and persona speech returned as base64 s16le.
package realtime

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

const (
	TypeSessionStart = "session.start"
	TypeAudioFrame   = "audio.frame"
	TypeSessionEnd   = "session.end"

	TypeSessionReady  = "session.ready"
	TypeAudioChunk    = "audio.chunk"
	TypeInterrupted   = "interrupted"
	TypeSessionClosed = "session.closed"
	TypeError         = "error"
)

const (
	EncodingF32LE = "f32le"
	EncodingS16LE = "s16le"
)

// ErrUnknownMessage marks a server message type this client does not
// understand. Callers skip these.
var ErrUnknownMessage = errors.New("realtime: unknown message type")

// AudioFormat describes the PCM shape on one direction of the wire.
type AudioFormat struct {
	Encoding     string `json:"encoding"`
	SampleRateHz int    `json:"sample_rate_hz"`
	Channels     int    `json:"channels"`
}

// DefaultInputFormat is what the microphone sends: mono float PCM at
// 16 kHz.
func DefaultInputFormat() AudioFormat {
	return AudioFormat{Encoding: EncodingF32LE, SampleRateHz: 16000, Channels: 1}
}

// DefaultOutputFormat is what the persona speaks: mono 16-bit PCM at
// 24 kHz.
func DefaultOutputFormat() AudioFormat {
	return AudioFormat{Encoding: EncodingS16LE, SampleRateHz: 24000, Channels: 1}
}

type ClientInfo struct {
	Name     string `json:"name,omitempty"`
	Version  string `json:"version,omitempty"`
	Platform string `json:"platform,omitempty"`
}

// SessionStart opens a conversation: who the persona is and how audio
// will flow.
type SessionStart struct {
	Type         string      `json:"type"`
	SessionID    string      `json:"session_id,omitempty"`
	Client       ClientInfo  `json:"client,omitempty"`
	Instructions string      `json:"instructions"`
	Voice        string      `json:"voice,omitempty"`
	AudioIn      AudioFormat `json:"audio_in"`
	AudioOut     AudioFormat `json:"audio_out"`
}

type ClientAudioFrame struct {
	Type    string `json:"type"`
	Seq     int64  `json:"seq"`
	DataB64 string `json:"data_b64"`
}

type SessionEnd struct {
	Type   string `json:"type"`
	Reason string `json:"reason,omitempty"`
}

type SessionReady struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
}

type ServerAudioChunk struct {
	Type    string `json:"type"`
	Seq     int64  `json:"seq,omitempty"`
	DataB64 string `json:"data_b64"`
}

type ServerInterrupted struct {
	Type string `json:"type"`
}

type SessionClosed struct {
	Type   string `json:"type"`
	Reason string `json:"reason,omitempty"`
}

// ServerError is the server's in-band error message. It satisfies error
// so it can surface directly through the stream's event channel.
type ServerError struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

func (e *ServerError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Code) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// DecodeClientMessage parses one client frame by its type envelope.
// The dev server and tests use this to act as the remote end. Unknown
// types return ErrUnknownMessage.
func DecodeClientMessage(data []byte) (any, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("invalid client frame: %w", err)
	}
	switch strings.TrimSpace(envelope.Type) {
	case TypeSessionStart:
		var msg SessionStart
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("invalid session.start: %w", err)
		}
		return msg, nil
	case TypeAudioFrame:
		var msg ClientAudioFrame
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("invalid audio.frame: %w", err)
		}
		return msg, nil
	case TypeSessionEnd:
		var msg SessionEnd
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("invalid session.end: %w", err)
		}
		return msg, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, envelope.Type)
	}
}

// DecodeServerMessage parses one server frame by its type envelope.
// Unknown types return ErrUnknownMessage.
func DecodeServerMessage(data []byte) (any, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("invalid server frame: %w", err)
	}
	switch strings.TrimSpace(envelope.Type) {
	case TypeSessionReady:
		var msg SessionReady
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("invalid session.ready: %w", err)
		}
		return msg, nil
	case TypeAudioChunk:
		var msg ServerAudioChunk
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("invalid audio.chunk: %w", err)
		}
		return msg, nil
	case TypeInterrupted:
		var msg ServerInterrupted
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("invalid interrupted: %w", err)
		}
		return msg, nil
	case TypeSessionClosed:
		var msg SessionClosed
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("invalid session.closed: %w", err)
		}
		return msg, nil
	case TypeError:
		var msg ServerError
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("invalid error frame: %w", err)
		}
		return &msg, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, envelope.Type)
	}
}

// EncodeFrameAudio packs float samples as little-endian f32 bytes in
// base64, the outbound wire encoding.
func EncodeFrameAudio(samples []float32) string {
	buf := make([]byte, 4*len(samples))
	for i, v := range samples {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return base64.StdEncoding.EncodeToString(buf)
}

// DecodeFrameAudio unpacks the outbound wire encoding back into float
// samples.
func DecodeFrameAudio(audio string) ([]float32, error) {
	raw, err := base64.StdEncoding.DecodeString(audio)
	if err != nil {
		return nil, fmt.Errorf("decode frame audio: %w", err)
	}
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("decode frame audio: %d bytes is not a whole number of samples", len(raw))
	}
	samples := make([]float32, len(raw)/4)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return samples, nil
}

// EncodeChunkAudio packs s16le PCM in base64, the inbound wire encoding.
func EncodeChunkAudio(pcm []byte) string {
	return base64.StdEncoding.EncodeToString(pcm)
}

// DecodeChunkAudio unpacks one inbound chunk payload into s16le PCM.
func DecodeChunkAudio(audio string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(audio)
	if err != nil {
		return nil, fmt.Errorf("decode chunk audio: %w", err)
	}
	if len(raw)%2 != 0 {
		return nil, fmt.Errorf("decode chunk audio: %d bytes is not a whole number of samples", len(raw))
	}
	return raw, nil
}
