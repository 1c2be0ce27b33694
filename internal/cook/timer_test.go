package cook

import (
	"sync"
	"testing"
	"time"
)

// tickRecorder collects timer events.
type tickRecorder struct {
	mu     sync.Mutex
	events []TimerEvent
}

func (r *tickRecorder) notify(ev TimerEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *tickRecorder) all() []TimerEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]TimerEvent(nil), r.events...)
}

func (r *tickRecorder) waitFinished(t *testing.T, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		for _, ev := range r.all() {
			if ev.Finished {
				return
			}
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("timer never finished")
}

func TestTimer_CountsDownAndFinishesOnce(t *testing.T) {
	t.Parallel()

	s := NewState(fiveStepRecipe())
	rec := &tickRecorder{}
	tm := NewTimer(s, rec.notify, WithTickInterval(time.Millisecond))

	tm.Start(0, 30)
	if got := s.Snapshot().TimerRemaining; got != 30 {
		t.Fatalf("remaining after start = %d; want 30", got)
	}

	rec.waitFinished(t, time.Second)
	time.Sleep(10 * time.Millisecond) // would expose duplicate finished events

	events := rec.all()
	finished := 0
	prev := 31
	for _, ev := range events {
		if ev.Remaining > prev {
			t.Fatalf("remaining increased: %d after %d", ev.Remaining, prev)
		}
		prev = ev.Remaining
		if ev.Finished {
			finished++
		}
	}
	if finished != 1 {
		t.Errorf("finished events = %d; want exactly 1", finished)
	}
	snap := s.Snapshot()
	if snap.TimerSet || snap.TimerRemaining != 0 || !snap.TimerFinished {
		t.Errorf("final timer state = %+v; want cleared and finished", snap)
	}
}

func TestTimer_FloorsAtOneSecond(t *testing.T) {
	t.Parallel()

	s := NewState(fiveStepRecipe())
	tm := NewTimer(s, nil, WithTickInterval(time.Hour))
	tm.Start(0, 0)
	defer tm.Stop()

	if got := s.Snapshot().TimerRemaining; got != 1 {
		t.Errorf("remaining = %d; want 1 (floored)", got)
	}
}

func TestTimer_PauseHoldsValue(t *testing.T) {
	t.Parallel()

	s := NewState(fiveStepRecipe())
	tm := NewTimer(s, nil, WithTickInterval(time.Millisecond))
	tm.Start(0, 30)
	defer tm.Stop()

	if !tm.Pause() {
		t.Fatal("Pause on a running timer should report a change")
	}
	before := s.Snapshot().TimerRemaining
	time.Sleep(20 * time.Millisecond)
	if after := s.Snapshot().TimerRemaining; after != before {
		t.Errorf("paused timer moved from %d to %d", before, after)
	}

	if !tm.Resume() {
		t.Fatal("Resume on a paused timer should report a change")
	}
	time.Sleep(20 * time.Millisecond)
	if after := s.Snapshot().TimerRemaining; after >= before {
		t.Errorf("resumed timer did not advance below %d", before)
	}
}

func TestTimer_ControlsAreNoOpsWithoutTimer(t *testing.T) {
	t.Parallel()

	s := NewState(fiveStepRecipe())
	tm := NewTimer(s, nil)

	if tm.Pause() || tm.Resume() || tm.Stop() {
		t.Error("timer controls without an armed timer should be no-ops")
	}
}

func TestTimer_StopDoesNotFireFinished(t *testing.T) {
	t.Parallel()

	s := NewState(fiveStepRecipe())
	rec := &tickRecorder{}
	tm := NewTimer(s, rec.notify, WithTickInterval(time.Millisecond))

	tm.Start(5, 0)
	if !tm.Stop() {
		t.Fatal("Stop on an armed timer should report a change")
	}
	time.Sleep(10 * time.Millisecond)

	for _, ev := range rec.all() {
		if ev.Finished {
			t.Fatal("stopped timer must not fire the finished signal")
		}
	}
	if snap := s.Snapshot(); snap.TimerSet || snap.TimerFinished {
		t.Errorf("timer state after stop = %+v; want cleared, not finished", snap)
	}
}

func TestTimer_RestartResetsFinishedFlag(t *testing.T) {
	t.Parallel()

	s := NewState(fiveStepRecipe())
	rec := &tickRecorder{}
	tm := NewTimer(s, rec.notify, WithTickInterval(time.Millisecond))

	tm.Start(0, 1)
	rec.waitFinished(t, time.Second)
	if !s.Snapshot().TimerFinished {
		t.Fatal("expected finished flag set")
	}

	tm.Start(0, 30)
	defer tm.Stop()
	snap := s.Snapshot()
	if snap.TimerFinished {
		t.Error("restart must clear the finished flag")
	}
	if !snap.TimerSet || snap.TimerRemaining != 30 {
		t.Errorf("restarted timer = %+v; want 30 seconds armed", snap)
	}
}
