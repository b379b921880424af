package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/immortal-app/immortal/pkg/realtime"
)

var (
	// ErrSessionClosed is returned once a session has begun tearing down.
	ErrSessionClosed = errors.New("live: session closed")

	// ErrAlreadyConnected is returned by Connect on a session that
	// already left Idle. Sessions are single use.
	ErrAlreadyConnected = errors.New("live: session already connected")

	errNotWired = errors.New("live: session needs a dialer, a capture source, and a sink")
)

// CaptureSource delivers microphone audio as fixed-size frames. Frames
// returns a channel that closes after Stop. Stop must be idempotent and
// safe to call before Start.
type CaptureSource interface {
	Start(ctx context.Context) error
	Frames() <-chan []float32
	Stop() error
}

// Decoder turns one inbound wire payload into playable PCM.
type Decoder interface {
	Decode(audio string) ([]byte, error)
}

type wireDecoder struct{}

func (wireDecoder) Decode(audio string) ([]byte, error) {
	return realtime.DecodeChunkAudio(audio)
}

// Recorder counts session activity. internal/metrics provides the
// prometheus-backed implementation.
type Recorder interface {
	SessionStarted()
	SessionEnded(d time.Duration)
	FrameSent(bytes int)
	ChunkReceived(bytes int)
	ChunkDropped()
	Interrupted()
}

type noopRecorder struct{}

func (noopRecorder) SessionStarted()            {}
func (noopRecorder) SessionEnded(time.Duration) {}
func (noopRecorder) FrameSent(int)              {}
func (noopRecorder) ChunkReceived(int)          {}
func (noopRecorder) ChunkDropped()              {}
func (noopRecorder) Interrupted()               {}

// Options wires a Session to its devices, transport, and observers.
// Dialer, Capture, and Sink are required; everything else defaults.
type Options struct {
	Config  Config
	Dialer  Dialer
	Capture CaptureSource
	Sink    Sink

	// Decoder decodes inbound chunk payloads. Nil means the standard
	// wire decoding.
	Decoder Decoder

	// OnStatus receives "Connecting", "Connected", "Disconnected", or a
	// failure description. Called synchronously; keep it fast and do not
	// block.
	OnStatus func(status string)

	// OnIntensity receives levels in [0, Config.MaxIntensity].
	OnIntensity func(level float64)

	Logger   *slog.Logger
	Recorder Recorder
	Clock    func() time.Time
}

// Session is one live voice conversation with a persona. It owns the
// microphone, the transport, and the playback pipeline for its lifetime,
// and a single dispatch goroutine consumes capture frames, transport
// events, and the playback reap tick. A session connects at most once;
// after Disconnect or a failure it is spent.
type Session struct {
	id           string
	cfg          Config
	instructions string

	dialer  Dialer
	capture CaptureSource
	decoder Decoder
	now     func() time.Time
	log     *slog.Logger
	rec     Recorder

	onStatus    func(string)
	onIntensity func(float64)

	meter *Meter
	sched *Scheduler

	mu         sync.Mutex
	state      State
	transport  Transport
	cancelDial context.CancelFunc
	startedAt  time.Time

	closed     atomic.Bool
	finishOnce sync.Once
	stop       chan struct{}
	done       chan struct{}

	// speaking is owned by the dispatch loop.
	speaking bool
}

// NewSession builds a session around an immutable instruction snapshot.
// Later edits to the persona the instructions came from do not affect a
// running session.
func NewSession(instructions string, opts Options) *Session {
	cfg := opts.Config.withDefaults()
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	rec := opts.Recorder
	if rec == nil {
		rec = noopRecorder{}
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	dec := opts.Decoder
	if dec == nil {
		dec = wireDecoder{}
	}
	s := &Session{
		id:           uuid.NewString(),
		cfg:          cfg,
		instructions: instructions,
		dialer:       opts.Dialer,
		capture:      opts.Capture,
		decoder:      dec,
		now:          now,
		rec:          rec,
		onStatus:     opts.OnStatus,
		onIntensity:  opts.OnIntensity,
		state:        StateIdle,
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
	s.log = log.With("session", s.id)
	s.meter = NewMeter(cfg, s.emitIntensity)
	if opts.Sink != nil {
		s.sched = NewScheduler(cfg.PlaybackSpec(), opts.Sink, now)
	}
	return s
}

// ID is the session's correlation id.
func (s *Session) ID() string { return s.id }

// State reports where the session is in its lifecycle.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed once the session has released everything it owned,
// including the microphone. Wait on it before starting another session.
func (s *Session) Done() <-chan struct{} { return s.done }

// Connect acquires the microphone, performs the transport handshake, and
// starts the dispatch loop. Failures are terminal: the microphone is
// acquired before any network activity, a capture failure fails the
// session without dialing, and a handshake failure fails it with the
// microphone released. There is no retry.
func (s *Session) Connect(ctx context.Context) error {
	if s.dialer == nil || s.capture == nil || s.sched == nil {
		return errNotWired
	}

	s.mu.Lock()
	if s.closed.Load() {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrAlreadyConnected
	}
	s.state = StateConnecting
	s.mu.Unlock()
	s.emitStatus(StateConnecting.String())
	s.log.Info("session connecting")

	if err := s.capture.Start(ctx); err != nil {
		if s.closed.Load() {
			return s.abandonConnect()
		}
		err = fmt.Errorf("microphone unavailable: %w", err)
		s.finish(StateFailed, err.Error())
		return err
	}
	if s.closed.Load() {
		return s.abandonConnect()
	}

	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.HandshakeTimeout)
	s.mu.Lock()
	s.cancelDial = cancel
	s.mu.Unlock()
	tr, err := s.dialer.Dial(dialCtx, s.instructions)
	s.mu.Lock()
	s.cancelDial = nil
	s.mu.Unlock()
	cancel()
	if err != nil {
		if s.closed.Load() {
			return s.abandonConnect()
		}
		err = fmt.Errorf("handshake failed: %w", err)
		s.finish(StateFailed, err.Error())
		return err
	}

	s.mu.Lock()
	if s.closed.Load() {
		s.mu.Unlock()
		tr.Close()
		return s.abandonConnect()
	}
	s.transport = tr
	s.state = StateConnected
	s.startedAt = s.now()
	s.mu.Unlock()

	s.rec.SessionStarted()
	s.emitStatus(StateConnected.String())
	s.log.Info("session connected", "frame_interval", s.cfg.FrameDuration())
	go s.run(tr)
	return nil
}

// abandonConnect finishes a connect attempt that lost a race with
// Disconnect. The capture stop covers the case where the microphone was
// acquired after Disconnect's teardown already ran.
func (s *Session) abandonConnect() error {
	s.capture.Stop()
	s.finish(StateDisconnected, "Disconnected")
	return ErrSessionClosed
}

// Disconnect ends the session from any state. It is idempotent and safe
// to call concurrently, including while Connect is still acquiring the
// microphone or shaking hands; in that case teardown completes on the
// connecting goroutine and Done closes once the microphone is released.
// Exactly one "Disconnected" status is ever emitted.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	if s.closed.Load() {
		s.mu.Unlock()
		return nil
	}
	s.closed.Store(true)
	inFlight := s.state == StateConnecting
	cancel := s.cancelDial
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if !inFlight {
		s.finish(StateDisconnected, "Disconnected")
	}
	return nil
}

// finish is the single terminal path. Whoever gets here first releases
// every resource, emits the final status, and closes done.
func (s *Session) finish(target State, status string) {
	s.finishOnce.Do(func() {
		s.closed.Store(true)
		close(s.stop)

		s.mu.Lock()
		cancel := s.cancelDial
		s.cancelDial = nil
		tr := s.transport
		s.transport = nil
		prev := s.state
		s.state = target
		started := s.startedAt
		s.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		if s.capture != nil {
			if err := s.capture.Stop(); err != nil {
				s.log.Warn("capture stop failed", "err", err)
			}
		}
		if tr != nil {
			if err := tr.Close(); err != nil {
				s.log.Debug("transport close failed", "err", err)
			}
		}
		if s.sched != nil {
			if err := s.sched.Close(); err != nil {
				s.log.Warn("playback close failed", "err", err)
			}
		}
		s.meter.SetSpeaking(false)

		if prev == StateConnected {
			s.rec.SessionEnded(s.now().Sub(started))
		}
		s.log.Info("session finished", "state", target.String())
		s.emitStatus(status)
		close(s.done)
	})
}

// run is the dispatch loop. Everything that mutates playback or emits
// callbacks after connect happens here or on the terminal path.
func (s *Session) run(tr Transport) {
	ticker := time.NewTicker(s.cfg.ReapInterval)
	defer ticker.Stop()
	frames := s.capture.Frames()
	events := tr.Events()
	for {
		select {
		case <-s.stop:
			return
		case frame, ok := <-frames:
			if !ok {
				frames = nil
				continue
			}
			s.handleFrame(tr, frame)
		case ev, ok := <-events:
			if !ok {
				s.finish(StateDisconnected, "Disconnected")
				return
			}
			if s.handleEvent(ev) {
				return
			}
		case <-ticker.C:
			s.reap(s.now())
		}
	}
}

func (s *Session) handleFrame(tr Transport, frame []float32) {
	if s.closed.Load() {
		return
	}
	s.meter.ObserveFrame(frame)
	if err := tr.Send(frame); err != nil {
		s.finish(StateFailed, fmt.Sprintf("connection lost: %v", err))
		return
	}
	s.rec.FrameSent(4 * len(frame))
}

// handleEvent applies one transport event and reports whether it was
// terminal. Events arriving after teardown began are discarded.
func (s *Session) handleEvent(ev TransportEvent) bool {
	if s.closed.Load() {
		return false
	}
	switch ev := ev.(type) {
	case AudioChunk:
		s.handleChunk(ev.Audio)
	case Interrupted:
		cut := s.sched.Interrupt()
		s.rec.Interrupted()
		s.setSpeaking(false)
		s.log.Debug("interrupted", "cut", cut)
	case Closed:
		s.log.Info("remote closed session", "reason", ev.Reason)
		s.finish(StateDisconnected, "Disconnected")
		return true
	case TransportFailure:
		s.finish(StateFailed, fmt.Sprintf("connection lost: %v", ev.Err))
		return true
	}
	return false
}

// handleChunk decodes and schedules one inbound chunk. A payload that
// fails to decode is dropped and the session carries on.
func (s *Session) handleChunk(audio string) {
	pcm, err := s.decoder.Decode(audio)
	if err != nil {
		s.rec.ChunkDropped()
		s.log.Warn("dropping undecodable chunk", "err", err)
		return
	}
	if len(pcm) == 0 {
		return
	}
	h, err := s.sched.Enqueue(pcm)
	if err != nil {
		if errors.Is(err, errSchedulerClosed) {
			return
		}
		s.finish(StateFailed, fmt.Sprintf("speaker unavailable: %v", err))
		return
	}
	s.rec.ChunkReceived(len(pcm))
	s.log.Debug("scheduled chunk", "bytes", len(pcm), "start", h.Start, "end", h.End)
	if s.cfg.TrackEnvelope {
		s.speaking = true
		s.meter.ObserveChunk(pcm)
	} else if !s.speaking {
		s.speaking = true
		s.meter.SetSpeaking(true)
	}
}

func (s *Session) reap(now time.Time) {
	if s.closed.Load() {
		return
	}
	done := s.sched.Reap(now)
	if len(done) == 0 {
		return
	}
	if s.sched.Active() == 0 {
		s.setSpeaking(false)
	}
}

func (s *Session) setSpeaking(speaking bool) {
	if s.speaking == speaking {
		return
	}
	s.speaking = speaking
	s.meter.SetSpeaking(speaking)
}

func (s *Session) emitStatus(status string) {
	if s.onStatus != nil {
		s.onStatus(status)
	}
}

func (s *Session) emitIntensity(level float64) {
	if s.onIntensity != nil {
		s.onIntensity(level)
	}
}
