package live

import (
	"errors"
	"sort"
	"sync"
	"time"
)

var errSchedulerClosed = errors.New("live: scheduler closed")

// PlaybackHandle identifies one scheduled chunk of inbound audio and the
// wall-clock window it occupies.
type PlaybackHandle struct {
	ID    uint64
	Start time.Time
	End   time.Time
}

// Sink receives decoded PCM for playback. Flush discards anything
// appended but not yet played.
type Sink interface {
	Append(pcm []byte) error
	Flush()
	Close() error
}

// Scheduler lines inbound chunks up back to back on a wall-clock cursor.
// Chunks arriving faster than real time queue gaplessly; after silence
// the cursor snaps forward so playback starts immediately.
type Scheduler struct {
	spec AudioSpec
	sink Sink
	now  func() time.Time

	mu     sync.Mutex
	cursor time.Time
	active map[uint64]PlaybackHandle
	nextID uint64
	closed bool
}

func NewScheduler(spec AudioSpec, sink Sink, now func() time.Time) *Scheduler {
	if now == nil {
		now = time.Now
	}
	return &Scheduler{
		spec:   spec,
		sink:   sink,
		now:    now,
		active: make(map[uint64]PlaybackHandle),
	}
}

// Enqueue appends one decoded chunk to the sink and records the window
// it will occupy. Empty chunks are ignored and return a zero handle.
func (s *Scheduler) Enqueue(pcm []byte) (PlaybackHandle, error) {
	if len(pcm) == 0 {
		return PlaybackHandle{}, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return PlaybackHandle{}, errSchedulerClosed
	}
	if err := s.sink.Append(pcm); err != nil {
		return PlaybackHandle{}, err
	}
	start := s.now()
	if s.cursor.After(start) {
		start = s.cursor
	}
	end := start.Add(s.spec.Duration(len(pcm)))
	s.nextID++
	h := PlaybackHandle{ID: s.nextID, Start: start, End: end}
	s.active[h.ID] = h
	s.cursor = end
	return h, nil
}

// Interrupt drops everything queued for playback, retires all active
// handles, and resets the cursor so the next chunk plays immediately.
// It reports how many handles were cut short.
func (s *Scheduler) Interrupt() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0
	}
	s.sink.Flush()
	n := len(s.active)
	clear(s.active)
	s.cursor = s.now()
	return n
}

// Reap retires handles whose playback window has passed and returns
// them ordered by end time.
func (s *Scheduler) Reap(now time.Time) []PlaybackHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	var done []PlaybackHandle
	for id, h := range s.active {
		if !h.End.After(now) {
			done = append(done, h)
			delete(s.active, id)
		}
	}
	sort.Slice(done, func(i, j int) bool { return done[i].End.Before(done[j].End) })
	return done
}

// Active reports how many handles are still within their playback
// window.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// Cursor reports where the gapless cursor sits: the end of the last
// scheduled chunk. A chunk enqueued now starts at this time or at the
// current clock time, whichever is later.
func (s *Scheduler) Cursor() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Close flushes pending audio and closes the sink. Further Enqueue
// calls fail.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	clear(s.active)
	return s.sink.Close()
}
