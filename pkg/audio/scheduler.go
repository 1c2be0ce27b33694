package audio

import (
	"log/slog"
	"sync"
	"time"
)

// Route selects where inbound assistant audio is heard.
type Route int

const (
	// RouteAssistant plays assistant speech through the scheduler's sink.
	RouteAssistant Route = iota

	// RouteVideo means the user is listening to the companion video instead;
	// assistant frames are discarded at this layer so the remote service and
	// the context synchronizer are unaffected by the local preference.
	RouteVideo
)

// Sink is the playback backend. Implementations start pcm exactly at the given
// wall-clock time (hardware clock permitting) at the given rate multiplier.
type Sink interface {
	// ScheduleAt queues pcm ([PlaybackRate] mono PCM16) to begin at start.
	ScheduleAt(pcm []byte, start time.Time, speed float64)

	// StopAll immediately stops and discards everything scheduled or playing.
	// Must be idempotent and safe with nothing playing.
	StopAll()
}

// SchedulerOption configures a [Scheduler].
type SchedulerOption func(*Scheduler)

// WithClock overrides the scheduler's time source. Used in tests to make start
// times deterministic.
func WithClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) { s.now = now }
}

// Scheduler lays inbound assistant audio frames onto a monotonic timeline so
// consecutive frames of one turn play back-to-back with no gap or overlap.
//
// It keeps a non-decreasing cursor: each frame starts at
// max(cursor, now) and advances the cursor by the frame's duration divided by
// the speed multiplier. Clamping to "now" self-heals when the scheduler has
// fallen behind. All methods are safe for concurrent use.
type Scheduler struct {
	sink Sink
	now  func() time.Time

	mu        sync.Mutex
	nextStart time.Time
	speed     float64
	route     Route
	speaking  bool

	warnedCorrupt sync.Once
}

// NewScheduler creates a scheduler that delivers audio to sink.
func NewScheduler(sink Sink, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		sink:  sink,
		now:   time.Now,
		speed: 1.0,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Enqueue schedules frame for gapless playback and returns its computed start
// time. ok is false when the frame was discarded: corrupt data, or the route
// is currently [RouteVideo].
func (s *Scheduler) Enqueue(frame Frame) (start time.Time, ok bool) {
	if len(frame.Data) == 0 || len(frame.Data)%2 != 0 {
		s.warnedCorrupt.Do(func() {
			slog.Warn("playback: dropping corrupt frame", "bytes", len(frame.Data))
		})
		return time.Time{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.route == RouteVideo {
		return time.Time{}, false
	}

	now := s.now()
	start = s.nextStart
	if start.Before(now) {
		start = now
	}

	s.sink.ScheduleAt(frame.Data, start, s.speed)

	advance := time.Duration(float64(frame.Duration()) / s.speed)
	s.nextStart = start.Add(advance)
	s.speaking = true
	return start, true
}

// Flush is the barge-in path: it stops all scheduled and playing audio, clears
// the pending queue, resets the timeline cursor, and clears the speaking flag.
// Idempotent and safe to call with nothing playing.
func (s *Scheduler) Flush() {
	s.mu.Lock()
	s.nextStart = time.Time{}
	s.speaking = false
	s.mu.Unlock()

	s.sink.StopAll()
}

// SetSpeed sets the playback rate multiplier. Values outside (0, 4] are
// ignored. The cursor advancement uses the same multiplier, so the schedule
// stays self-consistent at non-1.0 speeds.
func (s *Scheduler) SetSpeed(m float64) {
	if m <= 0 || m > 4 {
		return
	}
	s.mu.Lock()
	s.speed = m
	s.mu.Unlock()
}

// SetRoute switches where assistant audio is heard. Switching to [RouteVideo]
// flushes anything already scheduled.
func (s *Scheduler) SetRoute(r Route) {
	s.mu.Lock()
	prev := s.route
	s.route = r
	s.mu.Unlock()

	if r == RouteVideo && prev != RouteVideo {
		s.Flush()
	}
}

// Route returns the current audio route.
func (s *Scheduler) Route() Route {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.route
}

// Speaking reports whether scheduled assistant audio extends past now.
func (s *Scheduler) Speaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speaking && s.now().Before(s.nextStart)
}
