package audio

import "time"

// Standard rates for the voice session pipeline. The remote live model accepts
// 16 kHz mono PCM16 uplink and produces 24 kHz mono PCM16 downlink.
const (
	CaptureRate  = 16000
	PlaybackRate = 24000
)

// Frame is a single frame of PCM16 audio flowing through the pipeline.
// Frames are the atomic unit of audio transport — produced by the conditioner,
// encoded onto the session uplink, and scheduled for playback on the downlink.
// A frame is never mutated after creation; each stage consumes or copies it.
type Frame struct {
	// Data is little-endian signed 16-bit PCM.
	Data []byte

	// SampleRate in Hz (16000 for uplink, 24000 for downlink).
	SampleRate int

	// Channels: always 1 in this pipeline; kept for format validation.
	Channels int

	// Timestamp is a wall-clock hint marking when the frame was captured or
	// received. It is informational only — ordering is positional.
	Timestamp time.Time
}

// Duration returns the play time of the frame at its sample rate.
// Returns zero for malformed frames.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	samples := len(f.Data) / (2 * f.Channels)
	return time.Duration(samples) * time.Second / time.Duration(f.SampleRate)
}
