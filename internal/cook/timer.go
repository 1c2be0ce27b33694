package cook

import (
	"sync"
	"time"
)

// TimerEvent is one countdown notification.
type TimerEvent struct {
	Remaining int
	Finished  bool
}

// Timer drives the 1 Hz countdown for the session's single cooking timer.
// It mutates the timer fields of State and notifies the session layer on
// every tick. The finished event fires exactly once per armed timer.
type Timer struct {
	state    *State
	interval time.Duration
	notify   func(TimerEvent)

	mu   sync.Mutex
	stop chan struct{}
}

// TimerOption configures a Timer.
type TimerOption func(*Timer)

// WithTickInterval overrides the 1 s tick, used in tests.
func WithTickInterval(d time.Duration) TimerOption {
	return func(t *Timer) { t.interval = d }
}

// NewTimer creates a Timer. notify may be nil.
func NewTimer(state *State, notify func(TimerEvent), opts ...TimerOption) *Timer {
	t := &Timer{
		state:    state,
		interval: time.Second,
		notify:   notify,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Start arms the countdown for minutes*60+seconds, floored at one second, and
// begins ticking. Restarting replaces any running countdown.
func (t *Timer) Start(minutes, seconds int) {
	total := minutes*60 + seconds
	if total < 1 {
		total = 1
	}

	t.mu.Lock()
	if t.stop != nil {
		close(t.stop)
	}
	stop := make(chan struct{})
	t.stop = stop
	t.mu.Unlock()

	t.state.startTimer(total)
	go t.run(stop)
}

func (t *Timer) run(stop chan struct{}) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			remaining, finished, active := t.state.tickTimer()
			if t.notify != nil {
				t.notify(TimerEvent{Remaining: remaining, Finished: finished})
			}
			if !active {
				return
			}
		}
	}
}

// Pause holds the countdown. No-op when no timer is armed. It reports whether
// anything changed.
func (t *Timer) Pause() bool { return t.state.pauseTimer() }

// Resume continues a paused countdown. It reports whether anything changed.
func (t *Timer) Resume() bool { return t.state.resumeTimer() }

// Stop discards the countdown without firing the finished signal. It reports
// whether a timer existed.
func (t *Timer) Stop() bool {
	t.mu.Lock()
	if t.stop != nil {
		close(t.stop)
		t.stop = nil
	}
	t.mu.Unlock()
	return t.state.stopTimer()
}
