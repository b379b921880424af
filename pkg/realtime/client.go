package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// DefaultURL is the production realtime endpoint.
const DefaultURL = "wss://api.immortal.app/v1/realtime"

const defaultHandshakeTimeout = 15 * time.Second

// ErrHandshakeFailed covers every way a connection can fail before the
// server acknowledges the session. There is no retry behind it.
var ErrHandshakeFailed = errors.New("realtime: handshake failed")

// Client dials realtime sessions. One client can open any number of
// sessions, one at a time or concurrently.
type Client struct {
	url       string
	apiKey    string
	info      ClientInfo
	handshake time.Duration
	dialer    *websocket.Dialer
	log       *slog.Logger
}

type Option func(*Client)

// WithURL points the client at a non-default endpoint.
func WithURL(url string) Option {
	return func(c *Client) { c.url = url }
}

// WithClientInfo names the calling application in session.start.
func WithClientInfo(name, version string) Option {
	return func(c *Client) {
		c.info = ClientInfo{Name: name, Version: version, Platform: runtime.GOOS}
	}
}

// WithHandshakeTimeout bounds the wait for session.ready.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *Client) { c.handshake = d }
}

// WithDialer substitutes the websocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// WithLogger routes client logs somewhere other than slog.Default.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) { c.log = log }
}

func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		url:       DefaultURL,
		apiKey:    apiKey,
		handshake: defaultHandshakeTimeout,
		dialer:    websocket.DefaultDialer,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Setup describes one session: the persona's instructions, an optional
// voice style, and the audio shapes. Zero-valued formats take the wire
// defaults.
type Setup struct {
	SessionID    string
	Instructions string
	Voice        string
	AudioIn      AudioFormat
	AudioOut     AudioFormat
}

// Connect dials the endpoint, sends session.start, and waits for the
// server's session.ready. Any failure along the way, including an error
// frame or the handshake deadline, returns ErrHandshakeFailed wrapped
// around the cause. The returned stream is live: its read loop is
// already running.
func (c *Client) Connect(ctx context.Context, setup Setup) (*Stream, error) {
	if setup.SessionID == "" {
		setup.SessionID = uuid.NewString()
	}
	if setup.AudioIn == (AudioFormat{}) {
		setup.AudioIn = DefaultInputFormat()
	}
	if setup.AudioOut == (AudioFormat{}) {
		setup.AudioOut = DefaultOutputFormat()
	}

	header := http.Header{}
	if c.apiKey != "" {
		header.Set("Authorization", "Bearer "+c.apiKey)
	}

	conn, resp, err := c.dialer.DialContext(ctx, c.url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w: dial %s: status %d: %v", ErrHandshakeFailed, c.url, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("%w: dial %s: %v", ErrHandshakeFailed, c.url, err)
	}

	start := SessionStart{
		Type:         TypeSessionStart,
		SessionID:    setup.SessionID,
		Client:       c.info,
		Instructions: setup.Instructions,
		Voice:        setup.Voice,
		AudioIn:      setup.AudioIn,
		AudioOut:     setup.AudioOut,
	}
	if err := conn.WriteJSON(start); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: send session.start: %v", ErrHandshakeFailed, err)
	}

	ready, err := c.awaitReady(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	c.log.Debug("realtime session ready",
		"session", setup.SessionID, "server_session", ready.SessionID)
	return newStream(conn, c.log.With("session", setup.SessionID)), nil
}

// awaitReady reads until session.ready or an error frame, under the
// handshake deadline. Anything else the server sends this early is
// skipped.
func (c *Client) awaitReady(ctx context.Context, conn *websocket.Conn) (SessionReady, error) {
	deadline := time.Now().Add(c.handshake)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return SessionReady{}, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return SessionReady{}, fmt.Errorf("%w: awaiting session.ready: %v", ErrHandshakeFailed, err)
		}
		msg, err := DecodeServerMessage(data)
		if err != nil {
			if errors.Is(err, ErrUnknownMessage) {
				continue
			}
			return SessionReady{}, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
		}
		switch msg := msg.(type) {
		case SessionReady:
			if err := conn.SetReadDeadline(time.Time{}); err != nil {
				return SessionReady{}, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
			}
			return msg, nil
		case *ServerError:
			return SessionReady{}, fmt.Errorf("%w: %v", ErrHandshakeFailed, msg)
		case SessionClosed:
			return SessionReady{}, fmt.Errorf("%w: server closed session: %s", ErrHandshakeFailed, msg.Reason)
		default:
			continue
		}
	}
}
