package cook

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/mirepoix-app/mirepoix/pkg/live"
)

// ContextSender delivers context items to the remote assistant. The session
// layer implements it and returns an error when no connection is open; the
// synchronizer treats that as a silent skip, because a later reconnect resends
// the full context anyway.
type ContextSender interface {
	SendContext(items []live.ContextItem, turnComplete bool) error
}

// Synchronizer keeps the remote assistant's view of the session current. It
// pushes a non-terminal context message after every committed step change so
// the assistant never reasons about a stale step.
type Synchronizer struct {
	sender ContextSender
	log    *slog.Logger
}

// NewSynchronizer creates a Synchronizer. log may be nil.
func NewSynchronizer(sender ContextSender, log *slog.Logger) *Synchronizer {
	if log == nil {
		log = slog.Default()
	}
	return &Synchronizer{sender: sender, log: log}
}

// StepChanged pushes the current step context. Must be called after the state
// mutation it describes has been committed.
func (s *Synchronizer) StepChanged(snap Snapshot) {
	msg := ContextMessage(snap)
	err := s.sender.SendContext([]live.ContextItem{{Role: "user", Content: msg}}, false)
	if err != nil {
		// Connection not open; the reconnect path resends full context.
		s.log.Debug("context push skipped", "step", snap.StepIndex, "error", err)
		return
	}
	s.log.Debug("context pushed", "step", snap.StepIndex, "of", snap.StepCount)
}

// ContextMessage renders the context text for a snapshot: the 1-based step
// ordinal, total count, instruction text, video timestamp when present, and
// behavioural directives for the assistant.
func ContextMessage(snap Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The user is now on step %d of %d: %q.",
		snap.StepIndex+1, snap.StepCount, snap.StepText)
	if snap.StepTimestamp != "" {
		fmt.Fprintf(&b, " This step starts at %s in the recipe video.", snap.StepTimestamp)
	}
	if snap.TimerSet {
		fmt.Fprintf(&b, " A timer is running with %d seconds remaining.", snap.TimerRemaining)
	}
	b.WriteString(" Guide the user through this step." +
		" If the user says \"next\", call nextStep;" +
		" if they say \"back\", call previousStep;" +
		" if they ask for a specific step, call goToStep.")
	return b.String()
}
