package cook

// Feedback is the best-effort haptics/notification sink. Implementations
// bridge to the platform; nothing in the session depends on them succeeding.
type Feedback interface {
	// Vibrate triggers a named haptic pattern.
	Vibrate(pattern string)

	// PlayTone plays a short local cue ("confirm", "timer").
	PlayTone(kind string)
}

// NopFeedback ignores all cues.
type NopFeedback struct{}

func (NopFeedback) Vibrate(string)  {}
func (NopFeedback) PlayTone(string) {}
