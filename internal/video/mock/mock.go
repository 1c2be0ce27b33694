// Package mock provides a recording video.Transport for tests.
package mock

import (
	"sync"

	"github.com/mirepoix-app/mirepoix/internal/video"
)

var _ video.Transport = (*Transport)(nil)

// Call records one transport invocation.
type Call struct {
	Op      string
	Seconds float64
	Muted   bool
}

// Transport records every call. Err, when set, is returned from all methods.
type Transport struct {
	mu    sync.Mutex
	calls []Call

	Err error
}

func (t *Transport) record(c Call) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = append(t.calls, c)
	return t.Err
}

func (t *Transport) Seek(seconds float64) error {
	return t.record(Call{Op: "seek", Seconds: seconds})
}

func (t *Transport) Play() error  { return t.record(Call{Op: "play"}) }
func (t *Transport) Pause() error { return t.record(Call{Op: "pause"}) }
func (t *Transport) Stop() error  { return t.record(Call{Op: "stop"}) }

func (t *Transport) Mute(muted bool) error {
	return t.record(Call{Op: "mute", Muted: muted})
}

// Calls returns all recorded calls in order.
func (t *Transport) Calls() []Call {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Call(nil), t.calls...)
}
