package realtime

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrStreamClosed is returned by SendFrame after Close.
var ErrStreamClosed = errors.New("realtime: stream closed")

const (
	eventBuffer  = 256
	writeTimeout = 10 * time.Second
)

// Event is something the server did on an open stream.
type Event interface {
	isEvent()
}

// AudioChunkEvent carries one chunk of persona speech, still base64.
type AudioChunkEvent struct {
	Audio string
	Seq   int64
}

// InterruptedEvent means the server cut the persona off mid-sentence.
type InterruptedEvent struct{}

// ClosedEvent means the server ended the session cleanly.
type ClosedEvent struct {
	Reason string
}

// ErrorEvent means the stream broke. It is always the last event.
type ErrorEvent struct {
	Err error
}

func (AudioChunkEvent) isEvent()  {}
func (InterruptedEvent) isEvent() {}
func (ClosedEvent) isEvent()      {}
func (ErrorEvent) isEvent()       {}

// Stream is one open session. Events are delivered in server order on a
// single channel that closes once the stream is finished; SendFrame is
// safe from any goroutine and preserves call order.
type Stream struct {
	conn *websocket.Conn
	log  *slog.Logger

	events    chan Event
	closing   chan struct{}
	closeOnce sync.Once

	writeMu sync.Mutex
	seq     int64

	errMu sync.Mutex
	err   error
}

func newStream(conn *websocket.Conn, log *slog.Logger) *Stream {
	s := &Stream{
		conn:    conn,
		log:     log,
		events:  make(chan Event, eventBuffer),
		closing: make(chan struct{}),
	}
	go s.readLoop()
	return s
}

// Events returns the server event channel. It closes when the server
// ends the session, the connection breaks, or Close is called.
func (s *Stream) Events() <-chan Event {
	return s.events
}

// SendFrame ships one microphone frame, fire and forget. Frames go out
// in the order SendFrame is called.
func (s *Stream) SendFrame(samples []float32) error {
	select {
	case <-s.closing:
		return ErrStreamClosed
	default:
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.seq++
	frame := ClientAudioFrame{Type: TypeAudioFrame, Seq: s.seq, DataB64: EncodeFrameAudio(samples)}
	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteJSON(frame)
}

// Close sends session.end and tears the connection down. Safe to call
// more than once; events stop after the first.
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closing)
		s.writeMu.Lock()
		s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		s.conn.WriteJSON(SessionEnd{Type: TypeSessionEnd})
		s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		s.writeMu.Unlock()
		err = s.conn.Close()
	})
	return err
}

// Err reports the terminal stream error, if any, once Events has
// closed. A clean shutdown leaves it nil.
func (s *Stream) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *Stream) setErr(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

// readLoop is the only reader of the connection. It maps wire messages
// onto events and always closes the events channel on the way out.
func (s *Stream) readLoop() {
	defer close(s.events)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.closing:
				return
			default:
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.emit(ClosedEvent{Reason: "connection closed"})
			} else {
				s.setErr(err)
				s.emit(ErrorEvent{Err: err})
			}
			s.conn.Close()
			return
		}
		msg, err := DecodeServerMessage(data)
		if err != nil {
			if errors.Is(err, ErrUnknownMessage) {
				s.log.Debug("skipping unknown server message", "err", err)
			} else {
				s.log.Warn("skipping malformed server message", "err", err)
			}
			continue
		}
		switch msg := msg.(type) {
		case ServerAudioChunk:
			s.emit(AudioChunkEvent{Audio: msg.DataB64, Seq: msg.Seq})
		case ServerInterrupted:
			s.emit(InterruptedEvent{})
		case SessionClosed:
			s.emit(ClosedEvent{Reason: msg.Reason})
			s.conn.Close()
			return
		case *ServerError:
			s.setErr(msg)
			s.emit(ErrorEvent{Err: msg})
			s.conn.Close()
			return
		case SessionReady:
			// A duplicate ready after the handshake carries nothing new.
		}
	}
}

func (s *Stream) emit(ev Event) {
	select {
	case s.events <- ev:
	case <-s.closing:
	}
}
