// Package cook implements the cooking session state machine: the mutable
// CookingState that tracks where the user is in a recipe, the tool dispatcher
// that applies structured invocations from the voice assistant, the countdown
// timer, and the context synchronizer that keeps the assistant's view of the
// session current.
package cook

import (
	"strconv"
	"strings"
	"sync"

	"github.com/mirepoix-app/mirepoix/internal/recipe"
	"github.com/mirepoix-app/mirepoix/pkg/audio"
)

// VideoState is the last playback command issued to the companion video.
type VideoState string

const (
	VideoIdle    VideoState = "idle"
	VideoPlaying VideoState = "playing"
	VideoPaused  VideoState = "paused"
)

// Snapshot is an immutable copy of the session state handed to read-only
// observers (renderer, context synchronizer).
type Snapshot struct {
	RecipeID  string
	Title     string
	Servings  int
	StepIndex int
	StepCount int
	StepText  string

	// StepTimestamp is the current step's video position ("m:ss"), empty when
	// the recipe is not video-linked.
	StepTimestamp string

	TimerSet       bool
	TimerRemaining int
	TimerPaused    bool
	TimerFinished  bool

	Temperature          string
	SuggestedTemperature string

	Route audio.Route
	Video VideoState
}

// State is the single source of truth for one cooking session. Mutators are
// expected to run serially on the session's event loop; the mutex only guards
// Snapshot reads from other goroutines (renderer, level meter polling).
type State struct {
	mu sync.Mutex

	rec       recipe.Recipe
	servings  int
	stepIndex int

	timerSet      bool
	timerRemain   int
	timerPaused   bool
	timerFinished bool

	temperature string
	route       audio.Route
	video       VideoState
}

// NewState seeds session state from a recipe: step zero, no timer, assistant
// audio route.
func NewState(rec recipe.Recipe) *State {
	return &State{
		rec:      rec,
		servings: rec.Servings,
		route:    audio.RouteAssistant,
		video:    VideoIdle,
	}
}

// Snapshot returns a consistent copy of the current state.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	text := ""
	if s.stepIndex < len(s.rec.Steps) {
		text = s.rec.Steps[s.stepIndex]
	}
	ts := ""
	if s.stepIndex < len(s.rec.StepTimestamps) {
		ts = s.rec.StepTimestamps[s.stepIndex]
	}

	return Snapshot{
		RecipeID:             s.rec.ID,
		Title:                s.rec.Title,
		Servings:             s.servings,
		StepIndex:            s.stepIndex,
		StepCount:            len(s.rec.Steps),
		StepText:             text,
		StepTimestamp:        ts,
		TimerSet:             s.timerSet,
		TimerRemaining:       s.timerRemain,
		TimerPaused:          s.timerPaused,
		TimerFinished:        s.timerFinished,
		Temperature:          s.temperature,
		SuggestedTemperature: SuggestTemperature(text),
		Route:                s.route,
		Video:                s.video,
	}
}

// Recipe returns the recipe this session was seeded from.
func (s *State) Recipe() recipe.Recipe {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec
}

// StepIndex returns the current 0-based step index.
func (s *State) StepIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stepIndex
}

// StepCount returns the number of steps in the recipe.
func (s *State) StepCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rec.Steps)
}

// SetStep clamps index into [0, stepCount-1] and applies it. It reports
// whether the step actually changed.
func (s *State) SetStep(index int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	max := len(s.rec.Steps) - 1
	if max < 0 {
		return false
	}
	if index < 0 {
		index = 0
	}
	if index > max {
		index = max
	}
	if index == s.stepIndex {
		return false
	}
	s.stepIndex = index
	return true
}

// ── Timer state ────────────────────────────────────────────────────────────────

// startTimer arms the countdown with total seconds remaining and clears any
// previous finished flag.
func (s *State) startTimer(total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timerSet = true
	s.timerRemain = total
	s.timerPaused = false
	s.timerFinished = false
}

// tickTimer decrements the countdown by one second. It reports the remaining
// seconds, whether the timer just finished, and whether ticking should
// continue. Paused timers hold their value.
func (s *State) tickTimer() (remaining int, finished, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.timerSet {
		return 0, false, false
	}
	if s.timerPaused {
		return s.timerRemain, false, true
	}
	s.timerRemain--
	if s.timerRemain <= 0 {
		s.timerRemain = 0
		s.timerSet = false
		s.timerFinished = true
		return 0, true, false
	}
	return s.timerRemain, false, true
}

// pauseTimer reports whether a running timer was paused.
func (s *State) pauseTimer() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.timerSet || s.timerPaused {
		return false
	}
	s.timerPaused = true
	return true
}

// resumeTimer reports whether a paused timer was resumed.
func (s *State) resumeTimer() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.timerSet || !s.timerPaused {
		return false
	}
	s.timerPaused = false
	return true
}

// stopTimer discards any armed timer without firing the finished signal. It
// reports whether a timer existed.
func (s *State) stopTimer() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.timerSet {
		return false
	}
	s.timerSet = false
	s.timerRemain = 0
	s.timerPaused = false
	return true
}

// ── Other mutators ─────────────────────────────────────────────────────────────

// SetTemperature stores the label verbatim. Free text is accepted; no unit
// normalisation is applied.
func (s *State) SetTemperature(label string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.temperature = label
}

// SetRoute records where assistant audio is being routed.
func (s *State) SetRoute(r audio.Route) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.route = r
}

// SetVideo records the last companion-video playback command.
func (s *State) SetVideo(v VideoState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.video = v
}

// ManualScale adjusts the serving count via the non-voice fallback path.
// Values below 1 are ignored.
func (s *State) ManualScale(servings int) {
	if servings < 1 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.servings = servings
}

// ParseTimestamp converts a "m:ss" or "h:mm:ss" video timestamp (or a plain
// seconds value) to seconds. The second return is false for malformed input.
func ParseTimestamp(ts string) (float64, bool) {
	ts = strings.TrimSpace(ts)
	if ts == "" {
		return 0, false
	}

	parts := strings.Split(ts, ":")
	if len(parts) > 3 {
		return 0, false
	}
	var total float64
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 {
			return 0, false
		}
		total = total*60 + float64(n)
	}
	return total, true
}
