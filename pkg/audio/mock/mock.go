// Package mock provides scriptable audio fakes for tests: a capture device fed
// from the test goroutine and a playback sink that records every scheduling
// decision.
package mock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// CaptureDevice is an in-memory [audio.CaptureDevice]. Push blocks with
// [CaptureDevice.Push] and finish the stream with [CaptureDevice.Close].
type CaptureDevice struct {
	// Rate is the pretend native sample rate. Defaults to 48000 in [NewCaptureDevice].
	Rate int

	// StartErr, when non-nil, is returned by Start — simulates a denied
	// microphone permission.
	StartErr error

	mu      sync.Mutex
	ch      chan []float32
	started bool
	closed  bool
}

// NewCaptureDevice returns a device with a 48 kHz native rate.
func NewCaptureDevice() *CaptureDevice {
	return &CaptureDevice{Rate: 48000, ch: make(chan []float32, 64)}
}

// Start implements [audio.CaptureDevice].
func (d *CaptureDevice) Start(_ context.Context) (<-chan []float32, error) {
	if d.StartErr != nil {
		return nil, d.StartErr
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, errors.New("mock capture: closed")
	}
	d.started = true
	return d.ch, nil
}

// SampleRate implements [audio.CaptureDevice].
func (d *CaptureDevice) SampleRate() int { return d.Rate }

// Push delivers one raw sample block to the capture stream.
func (d *CaptureDevice) Push(block []float32) {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if !closed {
		d.ch <- block
	}
}

// Close implements [audio.CaptureDevice]. It ends the capture stream.
func (d *CaptureDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.closed {
		d.closed = true
		close(d.ch)
	}
	return nil
}

// ScheduledChunk records one Sink.ScheduleAt call.
type ScheduledChunk struct {
	PCM   []byte
	Start time.Time
	Speed float64
}

// Sink is a recording [audio.Sink].
type Sink struct {
	mu        sync.Mutex
	scheduled []ScheduledChunk
	stops     int
}

// ScheduleAt implements [audio.Sink].
func (s *Sink) ScheduleAt(pcm []byte, start time.Time, speed float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(pcm))
	copy(cp, pcm)
	s.scheduled = append(s.scheduled, ScheduledChunk{PCM: cp, Start: start, Speed: speed})
}

// StopAll implements [audio.Sink].
func (s *Sink) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
	s.scheduled = nil
}

// Scheduled returns a copy of all chunks scheduled since the last StopAll.
func (s *Sink) Scheduled() []ScheduledChunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ScheduledChunk, len(s.scheduled))
	copy(out, s.scheduled)
	return out
}

// Stops returns how many times StopAll was called.
func (s *Sink) Stops() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}
