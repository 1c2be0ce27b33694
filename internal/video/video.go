// Package video defines the transport contract for an embedded companion
// video player.
//
// Video is a supplementary channel: every operation is best-effort and
// failures must never disturb the cooking session. Callers are expected to
// swallow returned errors after logging them.
package video

// PlaybackAction is a transport command name.
type PlaybackAction string

const (
	ActionPlay  PlaybackAction = "play"
	ActionPause PlaybackAction = "pause"
	ActionStop  PlaybackAction = "stop"
)

// Transport drives an external video player attached to a video-linked
// recipe. Implementations bridge to whatever embedding the platform provides.
type Transport interface {
	// Seek jumps to an absolute position in seconds.
	Seek(seconds float64) error

	Play() error
	Pause() error
	Stop() error

	// Mute toggles the player's audio.
	Mute(muted bool) error
}

// Nop is a Transport that does nothing. Used when the recipe has no linked
// video.
type Nop struct{}

func (Nop) Seek(float64) error { return nil }
func (Nop) Play() error        { return nil }
func (Nop) Pause() error       { return nil }
func (Nop) Stop() error        { return nil }
func (Nop) Mute(bool) error    { return nil }
