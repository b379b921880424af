package live

import (
	"context"
	"fmt"
	"sync"

	"github.com/immortal-app/immortal/pkg/realtime"
)

// TransportEvent is something the remote end did: sent audio, barged in,
// closed the stream, or failed.
type TransportEvent interface {
	isTransportEvent()
}

// AudioChunk carries one inbound audio payload, still in its wire
// encoding. The session decodes it before scheduling playback.
type AudioChunk struct {
	Audio string
}

// Interrupted tells the session the remote end cut off its own speech,
// usually because the user started talking.
type Interrupted struct{}

// Closed reports an orderly shutdown initiated by the remote end.
type Closed struct {
	Reason string
}

// TransportFailure reports a broken connection.
type TransportFailure struct {
	Err error
}

func (AudioChunk) isTransportEvent()       {}
func (Interrupted) isTransportEvent()      {}
func (Closed) isTransportEvent()           {}
func (TransportFailure) isTransportEvent() {}

// Transport is an established bidirectional audio stream. Events returns
// a channel that is closed once no further events will arrive.
type Transport interface {
	Send(samples []float32) error
	Events() <-chan TransportEvent
	Close() error
}

// Dialer establishes a Transport for a session carrying the given
// persona instructions. Implementations must honor ctx cancellation
// while dialing.
type Dialer interface {
	Dial(ctx context.Context, instructions string) (Transport, error)
}

// RealtimeDialer adapts a realtime.Client to the Dialer seam. Setup
// supplies everything but the instructions, which come from the session.
type RealtimeDialer struct {
	Client *realtime.Client
	Setup  realtime.Setup
}

func (d RealtimeDialer) Dial(ctx context.Context, instructions string) (Transport, error) {
	setup := d.Setup
	setup.Instructions = instructions
	stream, err := d.Client.Connect(ctx, setup)
	if err != nil {
		return nil, err
	}
	return newRealtimeTransport(stream), nil
}

const transportEventBuffer = 64

// realtimeTransport pumps realtime stream events into the session's
// event union.
type realtimeTransport struct {
	stream    *realtime.Stream
	events    chan TransportEvent
	done      chan struct{}
	closeOnce sync.Once
}

func newRealtimeTransport(stream *realtime.Stream) *realtimeTransport {
	t := &realtimeTransport{
		stream: stream,
		events: make(chan TransportEvent, transportEventBuffer),
		done:   make(chan struct{}),
	}
	go t.pump()
	return t
}

func (t *realtimeTransport) Send(samples []float32) error {
	return t.stream.SendFrame(samples)
}

func (t *realtimeTransport) Events() <-chan TransportEvent {
	return t.events
}

func (t *realtimeTransport) Close() error {
	t.closeOnce.Do(func() { close(t.done) })
	return t.stream.Close()
}

func (t *realtimeTransport) pump() {
	defer close(t.events)
	for ev := range t.stream.Events() {
		var out TransportEvent
		switch ev := ev.(type) {
		case realtime.AudioChunkEvent:
			out = AudioChunk{Audio: ev.Audio}
		case realtime.InterruptedEvent:
			out = Interrupted{}
		case realtime.ClosedEvent:
			out = Closed{Reason: ev.Reason}
		case realtime.ErrorEvent:
			out = TransportFailure{Err: ev.Err}
		default:
			out = TransportFailure{Err: fmt.Errorf("unexpected stream event %T", ev)}
		}
		select {
		case t.events <- out:
		case <-t.done:
			return
		}
	}
}
