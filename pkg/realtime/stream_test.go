package realtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// dialStream connects through a handshake-only server handler and hands
// the test the live stream plus the server side of the conversation.
func dialStream(t *testing.T, handler func(conn *websocket.Conn)) *Stream {
	t.Helper()

	serverURL, closeServer := newRealtimeTestServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		var start SessionStart
		if err := conn.ReadJSON(&start); err != nil {
			return
		}
		if err := conn.WriteJSON(SessionReady{Type: TypeSessionReady}); err != nil {
			return
		}
		handler(conn)
	})
	t.Cleanup(closeServer)

	client := NewClient("key", WithURL(serverURL), WithLogger(discardLogger()))
	stream, err := client.Connect(context.Background(), Setup{Instructions: "x"})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { stream.Close() })
	return stream
}

func collectEvents(t *testing.T, stream *Stream) []Event {
	t.Helper()
	var events []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-stream.Events():
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatalf("events channel never closed; got %d events", len(events))
		}
	}
}

func TestStream_SendFrameCarriesSequence(t *testing.T) {
	t.Parallel()

	framesCh := make(chan ClientAudioFrame, 8)
	stream := dialStream(t, func(conn *websocket.Conn) {
		for i := 0; i < 3; i++ {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			msg, err := DecodeClientMessage(data)
			if err != nil {
				t.Errorf("decode client frame: %v", err)
				return
			}
			frame, ok := msg.(ClientAudioFrame)
			if !ok {
				t.Errorf("got %T, want ClientAudioFrame", msg)
				return
			}
			framesCh <- frame
		}
		_ = conn.WriteJSON(SessionClosed{Type: TypeSessionClosed})
	})

	sent := [][]float32{{0.1}, {0.2, 0.3}, {0.4}}
	for _, samples := range sent {
		if err := stream.SendFrame(samples); err != nil {
			t.Fatalf("send: %v", err)
		}
	}

	collectEvents(t, stream)

	for i, want := range sent {
		frame := <-framesCh
		if frame.Seq != int64(i+1) {
			t.Fatalf("frame %d seq = %d, want %d", i, frame.Seq, i+1)
		}
		samples, err := DecodeFrameAudio(frame.DataB64)
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if len(samples) != len(want) || samples[0] != want[0] {
			t.Fatalf("frame %d samples = %v, want %v", i, samples, want)
		}
	}
}

func TestStream_EventsArriveInServerOrder(t *testing.T) {
	t.Parallel()

	stream := dialStream(t, func(conn *websocket.Conn) {
		_ = conn.WriteJSON(ServerAudioChunk{Type: TypeAudioChunk, Seq: 1, DataB64: "AAA="})
		_ = conn.WriteJSON(ServerInterrupted{Type: TypeInterrupted})
		_ = conn.WriteJSON(ServerAudioChunk{Type: TypeAudioChunk, Seq: 2, DataB64: "AAA="})
		_ = conn.WriteJSON(SessionClosed{Type: TypeSessionClosed, Reason: "done"})
	})

	events := collectEvents(t, stream)
	if len(events) != 4 {
		t.Fatalf("got %d events, want 4: %#v", len(events), events)
	}
	if chunk, ok := events[0].(AudioChunkEvent); !ok || chunk.Seq != 1 {
		t.Fatalf("event 0 = %#v", events[0])
	}
	if _, ok := events[1].(InterruptedEvent); !ok {
		t.Fatalf("event 1 = %#v", events[1])
	}
	if chunk, ok := events[2].(AudioChunkEvent); !ok || chunk.Seq != 2 {
		t.Fatalf("event 2 = %#v", events[2])
	}
	if closed, ok := events[3].(ClosedEvent); !ok || closed.Reason != "done" {
		t.Fatalf("event 3 = %#v", events[3])
	}
	if err := stream.Err(); err != nil {
		t.Fatalf("err = %v, want nil after clean close", err)
	}
}

func TestStream_SkipsUnknownAndMalformedMessages(t *testing.T) {
	t.Parallel()

	stream := dialStream(t, func(conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"transcript.delta","text":"uh"}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":`))
		_ = conn.WriteJSON(ServerAudioChunk{Type: TypeAudioChunk, Seq: 1, DataB64: "AAA="})
		_ = conn.WriteJSON(SessionClosed{Type: TypeSessionClosed})
	})

	events := collectEvents(t, stream)
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2: %#v", len(events), events)
	}
	if _, ok := events[0].(AudioChunkEvent); !ok {
		t.Fatalf("event 0 = %#v", events[0])
	}
}

func TestStream_CloseStopsSending(t *testing.T) {
	t.Parallel()

	stream := dialStream(t, func(conn *websocket.Conn) {
		// Drain until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	if err := stream.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := stream.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if err := stream.SendFrame([]float32{0.5}); !errors.Is(err, ErrStreamClosed) {
		t.Fatalf("send after close = %v, want ErrStreamClosed", err)
	}
	collectEvents(t, stream)
	if err := stream.Err(); err != nil {
		t.Fatalf("err = %v, want nil after local close", err)
	}
}

func TestStream_ServerErrorEndsStream(t *testing.T) {
	t.Parallel()

	stream := dialStream(t, func(conn *websocket.Conn) {
		_ = conn.WriteJSON(ServerError{Type: TypeError, Code: "quota", Message: "out of minutes"})
	})

	events := collectEvents(t, stream)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1: %#v", len(events), events)
	}
	errEvent, ok := events[0].(ErrorEvent)
	if !ok {
		t.Fatalf("event = %#v", events[0])
	}
	var serverErr *ServerError
	if !errors.As(errEvent.Err, &serverErr) || serverErr.Code != "quota" {
		t.Fatalf("event err = %v", errEvent.Err)
	}
	if !errors.As(stream.Err(), &serverErr) {
		t.Fatalf("stream err = %v", stream.Err())
	}
}

func TestStream_AbnormalDropSurfacesError(t *testing.T) {
	t.Parallel()

	stream := dialStream(t, func(conn *websocket.Conn) {
		// Tear the TCP connection down without a close frame.
		conn.UnderlyingConn().Close()
	})

	events := collectEvents(t, stream)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1: %#v", len(events), events)
	}
	if _, ok := events[0].(ErrorEvent); !ok {
		t.Fatalf("event = %#v", events[0])
	}
	if stream.Err() == nil {
		t.Fatal("stream err is nil after abnormal drop")
	}
}
