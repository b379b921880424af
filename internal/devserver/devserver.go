// Package devserver is a local stand-in for the realtime endpoint. It
// speaks the same wire protocol, detects when the caller stops talking,
// and answers each turn with a synthesized tone phrase, so the app can
// be developed and demoed without the real service. Any API key is
// accepted.
package devserver

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/immortal-app/immortal/pkg/live"
	"github.com/immortal-app/immortal/pkg/realtime"
)

const maxMessageBytes = 1 << 20

// Config tunes the dev server's turn taking and synthesized speech.
type Config struct {
	// SpeechLevel is the RMS amplitude above which a frame counts as
	// the caller talking.
	SpeechLevel float64

	// SilenceFrames is how many quiet frames after speech end the
	// caller's turn. Frames are 256 ms each at the wire rate.
	SilenceFrames int

	// ReplyDuration is the length of the synthesized reply.
	ReplyDuration time.Duration

	// ChunkDuration is the slice of reply audio carried per message.
	ChunkDuration time.Duration

	// ChunkPace is the delay between chunk sends. Zero streams the
	// whole reply as fast as the socket allows.
	ChunkPace time.Duration

	// HandshakeTimeout bounds the wait for session.start.
	HandshakeTimeout time.Duration
}

// DefaultConfig paces replies roughly like the real service: a turn
// ends after ~half a second of silence and audio arrives slightly
// faster than real time.
func DefaultConfig() Config {
	return Config{
		SpeechLevel:      0.02,
		SilenceFrames:    2,
		ReplyDuration:    1600 * time.Millisecond,
		ChunkDuration:    120 * time.Millisecond,
		ChunkPace:        90 * time.Millisecond,
		HandshakeTimeout: 5 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.SpeechLevel <= 0 {
		c.SpeechLevel = def.SpeechLevel
	}
	if c.SilenceFrames <= 0 {
		c.SilenceFrames = def.SilenceFrames
	}
	if c.ReplyDuration <= 0 {
		c.ReplyDuration = def.ReplyDuration
	}
	if c.ChunkDuration <= 0 {
		c.ChunkDuration = def.ChunkDuration
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	// ChunkPace zero is meaningful: no pacing.
	return c
}

// Server accepts realtime sessions over websocket.
type Server struct {
	cfg      Config
	log      *slog.Logger
	upgrader websocket.Upgrader
}

func New(cfg Config, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		cfg: cfg.withDefaults(),
		log: log,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 10 * time.Second,
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
			CheckOrigin:      func(*http.Request) bool { return true },
		},
	}
}

// Handler routes the realtime endpoint and a health probe.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Get("/v1/realtime", s.serveSession)
	return r
}

func (s *Server) serveSession(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxMessageBytes)

	c := &call{srv: s, conn: conn, log: s.log}
	if !c.handshake() {
		return
	}
	c.run()
}

// call is one connected session. The read loop is the only goroutine
// that touches turn state; a separate speak goroutine streams reply
// chunks, synchronized with the read loop only through writeMu, the
// cancel channel, and the chunk sequence counter.
type call struct {
	srv  *Server
	conn *websocket.Conn
	log  *slog.Logger

	voiceHz float64

	writeMu sync.Mutex
	seq     int64

	// Turn detection, owned by the read loop.
	talking bool
	silent  int

	speakCancel chan struct{}
	speakDone   chan struct{}
}

// handshake expects session.start as the first frame, validates the
// declared audio formats, and acknowledges with session.ready.
func (c *call) handshake() bool {
	cfg := c.srv.cfg
	c.conn.SetReadDeadline(time.Now().Add(cfg.HandshakeTimeout))
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		c.log.Warn("no session.start before deadline", "err", err)
		return false
	}
	msg, err := realtime.DecodeClientMessage(data)
	if err != nil {
		c.reject("bad_request", "first message must be session.start")
		return false
	}
	start, ok := msg.(realtime.SessionStart)
	if !ok {
		c.reject("bad_request", "first message must be session.start")
		return false
	}
	if start.Instructions == "" {
		c.reject("bad_request", "instructions are required")
		return false
	}
	if start.AudioIn != realtime.DefaultInputFormat() {
		c.reject("unsupported", fmt.Sprintf("audio_in must be %s at 16000 Hz mono", realtime.EncodingF32LE))
		return false
	}
	if start.AudioOut != realtime.DefaultOutputFormat() {
		c.reject("unsupported", fmt.Sprintf("audio_out must be %s at 24000 Hz mono", realtime.EncodingS16LE))
		return false
	}

	c.voiceHz = voiceFrequency(start.Voice)
	id := "dev_" + randHex(6)
	c.log = c.log.With("session", id)
	if err := c.writeJSON(realtime.SessionReady{Type: realtime.TypeSessionReady, SessionID: id}); err != nil {
		return false
	}
	c.conn.SetReadDeadline(time.Time{})
	c.log.Info("call connected",
		"client_session", start.SessionID,
		"voice", start.Voice,
		"voice_hz", c.voiceHz,
		"instructions_len", len(start.Instructions))
	return true
}

func (c *call) run() {
	defer func() {
		c.cutReply()
		c.log.Info("call ended")
	}()
	for {
		c.conn.SetReadDeadline(time.Now().Add(90 * time.Second))
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		msg, err := realtime.DecodeClientMessage(data)
		if err != nil {
			if errors.Is(err, realtime.ErrUnknownMessage) {
				c.log.Debug("skipping unknown client message", "err", err)
				continue
			}
			// The dev server is strict: a malformed frame is a client
			// bug worth failing loudly.
			c.reject("bad_request", err.Error())
			return
		}
		switch msg := msg.(type) {
		case realtime.ClientAudioFrame:
			if !c.handleFrame(msg) {
				return
			}
		case realtime.SessionEnd:
			c.writeJSON(realtime.SessionClosed{Type: realtime.TypeSessionClosed, Reason: "client ended the session"})
			c.writeClose(websocket.CloseNormalClosure, "")
			return
		case realtime.SessionStart:
			c.reject("bad_request", "session already started")
			return
		}
	}
}

// handleFrame updates turn state from one microphone frame. Speech
// starting mid-reply is a barge-in: the reply is cut and the client
// told to stop playback. Speech ending starts the next reply.
func (c *call) handleFrame(frame realtime.ClientAudioFrame) bool {
	samples, err := realtime.DecodeFrameAudio(frame.DataB64)
	if err != nil {
		c.reject("bad_request", fmt.Sprintf("frame %d: %v", frame.Seq, err))
		return false
	}
	if live.PeakAmplitude(samples) > 1.0 {
		c.reject("bad_request", fmt.Sprintf("frame %d: samples outside [-1, 1]", frame.Seq))
		return false
	}
	level := live.RMSAmplitude(samples)
	if level >= c.srv.cfg.SpeechLevel {
		c.silent = 0
		if !c.talking {
			c.talking = true
			if c.cutReply() {
				c.log.Debug("barge-in", "frame", frame.Seq)
			}
		}
		return true
	}
	if c.talking {
		c.silent++
		if c.silent >= c.srv.cfg.SilenceFrames {
			c.talking = false
			c.silent = 0
			c.startReply()
		}
	}
	return true
}

func (c *call) startReply() {
	c.cutReply()
	pcm := synthesizeReply(c.voiceHz, c.srv.cfg.ReplyDuration)
	cancel := make(chan struct{})
	done := make(chan struct{})
	c.speakCancel, c.speakDone = cancel, done
	c.log.Debug("replying", "bytes", len(pcm))
	go c.speak(pcm, cancel, done)
}

// cutReply stops an in-flight reply and reports whether one was
// actually cut mid-stream; only then is the client sent interrupted.
// A reply that already finished is left alone.
func (c *call) cutReply() bool {
	if c.speakCancel == nil {
		return false
	}
	finished := false
	select {
	case <-c.speakDone:
		finished = true
	default:
	}
	close(c.speakCancel)
	<-c.speakDone
	c.speakCancel, c.speakDone = nil, nil
	if finished {
		return false
	}
	c.writeJSON(realtime.ServerInterrupted{Type: realtime.TypeInterrupted})
	return true
}

// speak streams one synthesized reply as paced chunks until done or
// canceled.
func (c *call) speak(pcm []byte, cancel <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	cfg := c.srv.cfg
	step := replySpec.BytesFor(cfg.ChunkDuration)
	if step <= 0 {
		step = len(pcm)
	}
	for off := 0; off < len(pcm); off += step {
		select {
		case <-cancel:
			return
		default:
		}
		end := off + step
		if end > len(pcm) {
			end = len(pcm)
		}
		c.writeMu.Lock()
		c.seq++
		err := c.conn.WriteJSON(realtime.ServerAudioChunk{
			Type:    realtime.TypeAudioChunk,
			Seq:     c.seq,
			DataB64: realtime.EncodeChunkAudio(pcm[off:end]),
		})
		c.writeMu.Unlock()
		if err != nil {
			return
		}
		if cfg.ChunkPace > 0 {
			select {
			case <-cancel:
				return
			case <-time.After(cfg.ChunkPace):
			}
		}
	}
}

// reject reports a protocol violation and closes the session, the
// terminal error path of the handshake and read loop.
func (c *call) reject(code, message string) {
	c.writeJSON(realtime.ServerError{Type: realtime.TypeError, Code: code, Message: message})
	c.writeClose(websocket.ClosePolicyViolation, message)
}

func (c *call) writeJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteJSON(v)
}

func (c *call) writeClose(code int, reason string) {
	// Close frames are control frames, capped at 125 payload bytes.
	if len(reason) > 100 {
		reason = reason[:100]
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
}

func randHex(nbytes int) string {
	b := make([]byte, nbytes)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}
