// Package mock provides scriptable in-memory implementations of the live
// interfaces for testing.
package mock

import (
	"context"
	"sync"

	"github.com/mirepoix-app/mirepoix/pkg/live"
)

var _ live.Provider = (*Provider)(nil)
var _ live.SessionHandle = (*Session)(nil)

// ContextPush records one SendContext call.
type ContextPush struct {
	Items        []live.ContextItem
	TurnComplete bool
}

// Session is a scriptable live.SessionHandle. Tests feed inbound events with
// Emit and inspect everything the code under test sent.
type Session struct {
	mu          sync.Mutex
	events      chan live.Event
	audio       [][]byte
	contexts    []ContextPush
	toolResults [][]live.ToolResult
	errVal      error
	closed      bool
	ended       bool
}

// NewSession creates a ready Session with a buffered event channel.
func NewSession() *Session {
	return &Session{events: make(chan live.Event, 64)}
}

// Emit delivers one inbound event to the consumer.
func (s *Session) Emit(ev live.Event) {
	s.events <- ev
}

// End simulates the remote side terminating the session: the events channel
// closes and Err reports err.
func (s *Session) End(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.ended = true
	s.errVal = err
	close(s.events)
}

func (s *Session) SendAudio(pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return live.ErrSessionClosed
	}
	cp := make([]byte, len(pcm))
	copy(cp, pcm)
	s.audio = append(s.audio, cp)
	return nil
}

func (s *Session) SendContext(items []live.ContextItem, turnComplete bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return live.ErrSessionClosed
	}
	s.contexts = append(s.contexts, ContextPush{
		Items:        append([]live.ContextItem(nil), items...),
		TurnComplete: turnComplete,
	})
	return nil
}

func (s *Session) SendToolResults(results []live.ToolResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return live.ErrSessionClosed
	}
	s.toolResults = append(s.toolResults, append([]live.ToolResult(nil), results...))
	return nil
}

func (s *Session) Events() <-chan live.Event { return s.events }

func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errVal
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if !s.ended {
		s.ended = true
		close(s.events)
	}
	return nil
}

// SentAudio returns all uplink audio chunks in send order.
func (s *Session) SentAudio() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.audio...)
}

// ContextPushes returns all SendContext calls in order.
func (s *Session) ContextPushes() []ContextPush {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ContextPush(nil), s.contexts...)
}

// ToolResultBatches returns all SendToolResults calls in order.
func (s *Session) ToolResultBatches() [][]live.ToolResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]live.ToolResult(nil), s.toolResults...)
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Provider is a scriptable live.Provider. Each Connect call pops the next
// entry from Errs (nil means success) and, on success, hands out the next
// session from Sessions or a fresh one.
type Provider struct {
	mu       sync.Mutex
	Errs     []error
	Sessions []*Session

	attempts int
	handed   []*Session
	configs  []live.SessionConfig
}

func (p *Provider) Connect(_ context.Context, cfg live.SessionConfig) (live.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	attempt := p.attempts
	p.attempts++
	p.configs = append(p.configs, cfg)

	if attempt < len(p.Errs) && p.Errs[attempt] != nil {
		return nil, p.Errs[attempt]
	}

	var sess *Session
	if n := len(p.handed); n < len(p.Sessions) {
		sess = p.Sessions[n]
	} else {
		sess = NewSession()
	}
	p.handed = append(p.handed, sess)
	return sess, nil
}

// Attempts returns the number of Connect calls so far.
func (p *Provider) Attempts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts
}

// Handed returns the sessions handed out so far.
func (p *Provider) Handed() []*Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Session(nil), p.handed...)
}

// Configs returns the SessionConfig passed to each Connect call.
func (p *Provider) Configs() []live.SessionConfig {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]live.SessionConfig(nil), p.configs...)
}
