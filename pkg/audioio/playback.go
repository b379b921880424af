package audioio

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

var errPlayerClosed = errors.New("audioio: player closed")

// The process gets exactly one oto context; every Player shares it.
var (
	otoOnce sync.Once
	otoCtx  *oto.Context
	otoErr  error
	otoRate int
)

func playbackContext(sampleRateHz int) (*oto.Context, error) {
	otoOnce.Do(func() {
		op := &oto.NewContextOptions{
			SampleRate:   sampleRateHz,
			ChannelCount: 1,
			Format:       oto.FormatSignedInt16LE,
			BufferSize:   100 * time.Millisecond,
		}
		ctx, ready, err := oto.NewContext(op)
		if err != nil {
			otoErr = fmt.Errorf("audioio: speaker init: %w", err)
			return
		}
		<-ready
		otoCtx = ctx
		otoRate = sampleRateHz
	})
	if otoErr != nil {
		return nil, otoErr
	}
	if sampleRateHz != otoRate {
		return nil, fmt.Errorf("audioio: speaker already initialized at %d Hz", otoRate)
	}
	return otoCtx, nil
}

// pcmBuffer feeds the oto player. Read blocks until audio arrives or
// the buffer closes, so the player idles silently between chunks.
type pcmBuffer struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    []byte
	closed bool
}

func newPCMBuffer() *pcmBuffer {
	b := &pcmBuffer{}
	b.cond = sync.NewCond(&b.mu)
	return b
}

func (b *pcmBuffer) Read(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for len(b.buf) == 0 && !b.closed {
		b.cond.Wait()
	}
	if len(b.buf) == 0 {
		return 0, io.EOF
	}
	n := copy(p, b.buf)
	b.buf = b.buf[n:]
	return n, nil
}

func (b *pcmBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, errPlayerClosed
	}
	b.buf = append(b.buf, p...)
	b.cond.Signal()
	return len(p), nil
}

func (b *pcmBuffer) Flush() {
	b.mu.Lock()
	b.buf = nil
	b.mu.Unlock()
}

func (b *pcmBuffer) Close() {
	b.mu.Lock()
	b.closed = true
	b.cond.Broadcast()
	b.mu.Unlock()
}

// Player streams s16le PCM to the speaker. Appends concatenate
// seamlessly; Flush cuts playback off as fast as the device allows.
type Player struct {
	buf    *pcmBuffer
	player *oto.Player

	closeOnce sync.Once
	closeErr  error
}

func NewPlayer(sampleRateHz int) (*Player, error) {
	ctx, err := playbackContext(sampleRateHz)
	if err != nil {
		return nil, err
	}
	p := &Player{buf: newPCMBuffer()}
	p.player = ctx.NewPlayer(p.buf)
	p.player.Play()
	return p, nil
}

// Append queues PCM directly behind whatever is already playing.
func (p *Player) Append(pcm []byte) error {
	_, err := p.buf.Write(pcm)
	return err
}

// Flush drops queued audio, both ours and the device's, and keeps the
// player running for whatever comes next.
func (p *Player) Flush() {
	p.buf.Flush()
	p.player.Pause()
	p.player.Reset()
	p.player.Play()
}

// Close stops playback and releases the player. Idempotent.
func (p *Player) Close() error {
	p.closeOnce.Do(func() {
		p.buf.Close()
		p.player.Pause()
		p.player.Reset()
		p.closeErr = p.player.Close()
	})
	return p.closeErr
}
