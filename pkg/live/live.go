// Package live defines the Provider interface for real-time multimodal
// inference backends.
//
// A live provider wraps a bidirectional voice AI service that accepts raw
// audio input and returns synthesised speech plus structured tool invocations
// in a single, stateful session. The cooking session engine streams microphone
// audio uplink and consumes an ordered event stream downlink.
//
// The central abstraction is SessionHandle: one WebSocket-backed session that
// multiplexes audio, tool-call batches, transcript deltas, and turn markers.
// Sessions are long-lived (minutes) and are rebuilt from scratch on reconnect
// — the remote side keeps no memory across connections, so callers must
// resend configuration and context after every Connect.
//
// All implementations must be safe for concurrent use.
package live

import (
	"context"
	"errors"
)

// ErrSessionClosed is returned by SessionHandle methods after Close.
var ErrSessionClosed = errors.New("live: session closed")

// ToolDefinition declares one callable tool to the remote model.
type ToolDefinition struct {
	// Name is the tool identifier the model uses to invoke it.
	Name string

	// Description tells the model when to call the tool.
	Description string

	// Parameters is a JSON-schema-shaped parameter declaration.
	Parameters map[string]any
}

// ToolInvocation is a single structured request from the remote model asking
// the client to perform a local action. Invocations arrive batched inside one
// [Event]; batch order must be preserved by consumers.
type ToolInvocation struct {
	ID   string
	Name string
	Args map[string]any
}

// ToolResult acknowledges one ToolInvocation. Exactly one result must be sent
// per invocation, including failures.
type ToolResult struct {
	ID       string
	Name     string
	Response map[string]any
}

// ContextItem is a text message injected into the session's rolling context.
type ContextItem struct {
	// Role is the speaker role: "system", "user", or "model".
	Role string

	// Content is the text content.
	Content string
}

// TranscriptSource identifies which side of the conversation a transcript
// delta belongs to.
type TranscriptSource string

const (
	SourceUser      TranscriptSource = "user"
	SourceAssistant TranscriptSource = "assistant"
)

// Transcript is one incremental transcription delta.
type Transcript struct {
	Source TranscriptSource
	Text   string
}

// EventKind discriminates the variants of [Event].
type EventKind int

const (
	// KindAudio carries a chunk of synthesised assistant speech
	// (24 kHz mono PCM16).
	KindAudio EventKind = iota

	// KindToolCalls carries a batch of tool invocations to apply in order.
	KindToolCalls

	// KindTranscript carries an incremental transcription delta.
	KindTranscript

	// KindTurnComplete marks the end of the assistant's current turn.
	KindTurnComplete

	// KindInterrupted signals that the user barged in: all scheduled
	// assistant audio must be cancelled immediately.
	KindInterrupted
)

// Event is one inbound message from the remote service. Exactly the fields
// relevant to Kind are populated. Events are delivered in arrival order on a
// single channel so that audio, tool calls, and markers keep their relative
// ordering.
type Event struct {
	Kind       EventKind
	Audio      []byte
	ToolCalls  []ToolInvocation
	Transcript Transcript
}

// SessionConfig is the per-connection setup sent once after dialing. It is
// rebuilt fresh from current cooking state on every (re)connect.
type SessionConfig struct {
	// Voice selects the synthesised voice, provider-specific.
	Voice string

	// Instructions is the system prompt: recipe title, full step list,
	// per-step timestamps, navigation rules, and language.
	Instructions string

	// Tools is the tool catalog offered to the model for this session.
	Tools []ToolDefinition

	// Language is a BCP-47 hint for speech recognition and synthesis.
	Language string
}

// SessionHandle is an open live session. It is an interface so tests can use
// scriptable in-memory implementations.
//
// The session is the hot path of the voice pipeline — Send methods must
// return quickly and must be safe for concurrent use. Consumers must drain
// Events promptly; a stalled consumer backs up the provider's receive loop.
//
// Callers must call Close when done. After the Events channel closes, Err
// reports whether the session ended cleanly.
type SessionHandle interface {
	// SendAudio delivers one uplink PCM16 chunk (16 kHz mono) to the model.
	SendAudio(pcm []byte) error

	// SendContext injects text context items. turnComplete=false marks the
	// message as non-terminal so it augments, rather than interrupts,
	// in-flight model reasoning — the mode used for step-change context
	// synchronisation.
	SendContext(items []ContextItem, turnComplete bool) error

	// SendToolResults acknowledges a batch of tool invocations.
	SendToolResults(results []ToolResult) error

	// Events returns the ordered inbound event stream. The channel is closed
	// when the session ends for any reason.
	Events() <-chan Event

	// Err returns the error that ended the session, or nil after a clean
	// close. Valid once Events has closed.
	Err() error

	// Close terminates the session and releases resources. Idempotent.
	Close() error
}

// Provider is the abstraction over any real-time multimodal backend.
type Provider interface {
	// Connect dials a new session and performs setup with cfg. The returned
	// handle is ready to accept audio immediately. The caller owns the handle
	// and must Close it.
	Connect(ctx context.Context, cfg SessionConfig) (SessionHandle, error)
}
