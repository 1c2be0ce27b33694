// Package session implements the cooking session supervisor: the owner of the
// bidirectional live connection and of every pipeline attached to it.
//
// The supervisor drives the connection state machine (Idle, Connecting, Open,
// Closing, Closed), wires microphone capture through the sample conditioner
// into the live session, demultiplexes inbound events to the playback
// scheduler and the tool dispatcher, and recovers from unexpected transport
// closure with bounded exponential backoff. A reconnect rebuilds the session
// configuration from current cooking state and resends full context before
// any audio resumes, because the remote side keeps no memory across
// connections.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mirepoix-app/mirepoix/internal/caption"
	"github.com/mirepoix-app/mirepoix/internal/cook"
	"github.com/mirepoix-app/mirepoix/internal/observe"
	"github.com/mirepoix-app/mirepoix/internal/recipe"
	"github.com/mirepoix-app/mirepoix/internal/video"
	"github.com/mirepoix-app/mirepoix/pkg/audio"
	"github.com/mirepoix-app/mirepoix/pkg/live"
)

// Default reconnection parameters.
const (
	defaultMaxReconnects = 3
	defaultBackoff       = 1 * time.Second
	defaultMaxBackoff    = 30 * time.Second

	transcriptBufferSize = 100
)

// ErrNotOpen is returned when an outbound message is attempted while the
// connection is not open.
var ErrNotOpen = errors.New("session: connection not open")

// ConnectionState is the supervisor's lifecycle state.
type ConnectionState int32

const (
	StateIdle ConnectionState = iota
	StateConnecting
	StateOpen
	StateClosing
	StateClosed
)

func (s ConnectionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}

// Status is the observable snapshot exposed to the UI layer.
type Status struct {
	Connection ConnectionState

	// Reason describes why the session closed. Empty unless Closed.
	Reason string

	Cook cook.Snapshot

	// Speaking reports whether assistant audio is scheduled or playing.
	Speaking bool

	// InputLevel is the most recent microphone RMS level in [0, 1].
	InputLevel float64
}

// Config wires a Supervisor. Provider, Capture, Sink, and Recipe are
// required; everything else has working defaults.
type Config struct {
	Provider live.Provider
	Capture  audio.CaptureDevice
	Sink     audio.Sink
	Recipe   recipe.Recipe

	// Recipes, when set, receives a fire-and-forget MarkPrepared after the
	// session ends.
	Recipes recipe.Provider

	// Video drives the companion player for video-linked recipes.
	Video video.Transport

	// Feedback receives best-effort tone and haptic cues.
	Feedback cook.Feedback

	// Voice and Language configure the assistant's speech.
	Voice    string
	Language string

	// Gate tunes the capture noise gate. Zero values use kitchen defaults.
	Gate audio.GateConfig

	// FrameDuration is the uplink frame size. Defaults to 20 ms.
	FrameDuration time.Duration

	// MaxReconnects bounds reconnect attempts after an unexpected transport
	// closure. Defaults to 3.
	MaxReconnects int

	// ReconnectBackoff is the initial backoff between attempts; it doubles
	// each attempt up to MaxReconnectBackoff. Defaults to 1s / 30s.
	ReconnectBackoff    time.Duration
	MaxReconnectBackoff time.Duration

	Metrics *observe.Metrics
	Log     *slog.Logger
}

// Supervisor owns one cooking session end to end. At most one Supervisor may
// be active per cooking view; starting a new one requires fully stopping the
// previous one first.
type Supervisor struct {
	cfg     Config
	log     *slog.Logger
	metrics *observe.Metrics

	state       *cook.State
	timer       *cook.Timer
	synchro     *cook.Synchronizer
	dispatcher  *cook.Dispatcher
	scheduler   *audio.Scheduler
	conditioner *audio.Conditioner
	captions    *caption.Corrector

	mu          sync.Mutex
	conn        ConnectionState
	reason      string
	handle      live.SessionHandle
	userStopped bool
	termErr     error
	cancel      context.CancelFunc
	done        chan struct{}
	transcripts []live.Transcript
}

// New validates cfg and builds a Supervisor in the Idle state.
func New(cfg Config) (*Supervisor, error) {
	var errs []error
	if cfg.Provider == nil {
		errs = append(errs, errors.New("provider must not be nil"))
	}
	if cfg.Capture == nil {
		errs = append(errs, errors.New("capture device must not be nil"))
	}
	if cfg.Sink == nil {
		errs = append(errs, errors.New("playback sink must not be nil"))
	}
	if err := cfg.Recipe.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("session: config: %w", err)
	}

	if cfg.Video == nil {
		cfg.Video = video.Nop{}
	}
	if cfg.Feedback == nil {
		cfg.Feedback = cook.NopFeedback{}
	}
	if cfg.MaxReconnects <= 0 {
		cfg.MaxReconnects = defaultMaxReconnects
	}
	if cfg.ReconnectBackoff <= 0 {
		cfg.ReconnectBackoff = defaultBackoff
	}
	if cfg.MaxReconnectBackoff <= 0 {
		cfg.MaxReconnectBackoff = defaultMaxBackoff
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}

	s := &Supervisor{
		cfg:     cfg,
		log:     cfg.Log.With("recipe_id", cfg.Recipe.ID),
		metrics: cfg.Metrics,
		conn:    StateIdle,
	}

	s.state = cook.NewState(cfg.Recipe)
	s.timer = cook.NewTimer(s.state, s.onTimerEvent)
	s.scheduler = audio.NewScheduler(cfg.Sink)
	s.synchro = cook.NewSynchronizer(s, s.log)
	s.dispatcher = cook.NewDispatcher(cook.DispatcherDeps{
		State:    s.state,
		Timer:    s.timer,
		Sync:     s.synchro,
		Video:    cfg.Video,
		Router:   s.scheduler,
		Feedback: cfg.Feedback,
		Ack:      s.sendAck,
		Log:      s.log,
	})
	s.captions = caption.NewCorrector(caption.Vocabulary(cfg.Recipe), nil)
	s.conditioner = audio.NewConditioner(audio.ConditionerConfig{
		NativeRate:    cfg.Capture.SampleRate(),
		FrameDuration: cfg.FrameDuration,
		Gate:          cfg.Gate,
	})
	return s, nil
}

// Start opens the session: acquires the microphone, dials the live provider,
// and launches the event loop. Microphone denial and initial dial failure are
// terminal; there is no automatic retry so a denied permission cannot loop.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.conn != StateIdle {
		state := s.conn
		s.mu.Unlock()
		return fmt.Errorf("session: cannot start from state %s", state)
	}
	s.conn = StateConnecting
	s.userStopped = false
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.mu.Unlock()

	samples, err := s.cfg.Capture.Start(runCtx)
	if err != nil {
		cancel()
		s.close("microphone unavailable", fmt.Errorf("session: capture: %w", err))
		return fmt.Errorf("session: capture: %w", err)
	}

	// Dial on runCtx so a concurrent Stop can abort the attempt.
	dialStart := time.Now()
	handle, err := s.cfg.Provider.Connect(runCtx, s.buildConfig())
	if err != nil {
		cancel()
		if s.isUserStopped() {
			s.close("stopped", nil)
			return fmt.Errorf("session: stopped during connect")
		}
		s.close("connection failed", fmt.Errorf("session: connect: %w", err))
		return fmt.Errorf("session: connect: %w", err)
	}
	s.metrics.ConnectDuration.Record(ctx, time.Since(dialStart).Seconds())

	s.mu.Lock()
	if s.userStopped {
		// Stop won the race while the dial was in flight; it has already
		// committed Closed and must stay there.
		s.mu.Unlock()
		cancel()
		_ = handle.Close()
		return fmt.Errorf("session: stopped during connect")
	}
	s.handle = handle
	s.conn = StateOpen
	done := make(chan struct{})
	s.done = done
	s.mu.Unlock()

	s.metrics.ActiveSessions.Add(ctx, 1)
	s.log.Info("session open", "steps", s.state.StepCount())

	frames := s.conditioner.Run(runCtx, samples)
	go s.run(runCtx, frames, done)
	return nil
}

// Stop is the user-initiated shutdown. It halts capture, closes the
// transport, and transitions to Closed without triggering reconnect logic.
// Safe to call from any state, repeatedly.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	if s.conn == StateClosed {
		s.mu.Unlock()
		return nil
	}
	s.userStopped = true
	s.conn = StateClosing
	cancel := s.cancel
	handle := s.handle
	done := s.done
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if handle != nil {
		_ = handle.Close()
	}
	if done != nil {
		<-done
	}

	_ = s.cfg.Capture.Close()
	s.scheduler.Flush()
	s.setClosed("stopped", nil)
	s.markPrepared()
	return nil
}

// Done returns a channel that closes when the event loop exits. Only valid
// after a successful Start; a nil channel is returned before that.
func (s *Supervisor) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Retry reopens a Closed session. It is the "retry" affordance surfaced to
// the user after a terminal error.
func (s *Supervisor) Retry(ctx context.Context) error {
	s.mu.Lock()
	if s.conn != StateClosed {
		state := s.conn
		s.mu.Unlock()
		return fmt.Errorf("session: cannot retry from state %s", state)
	}
	s.conn = StateIdle
	s.reason = ""
	s.termErr = nil
	s.mu.Unlock()
	return s.Start(ctx)
}

// ── Event loop ─────────────────────────────────────────────────────────────────

func (s *Supervisor) run(ctx context.Context, frames <-chan audio.Frame, done chan struct{}) {
	defer close(done)
	defer s.metrics.ActiveSessions.Add(context.WithoutCancel(ctx), -1)

	for {
		handle := s.currentHandle()
		if handle == nil {
			return
		}
		events := handle.Events()

	stream:
		for {
			select {
			case <-ctx.Done():
				return

			case f, ok := <-frames:
				if !ok {
					// Capture ended; playback and tool handling continue.
					frames = nil
					continue
				}
				if s.ConnectionState() != StateOpen {
					continue
				}
				if err := handle.SendAudio(f.Data); err != nil {
					s.log.Debug("uplink send failed", "error", err)
					continue
				}
				s.metrics.FramesCaptured.Add(ctx, 1)

			case ev, ok := <-events:
				if !ok {
					break stream
				}
				s.handleEvent(ctx, ev)
			}
		}

		// The transport dropped. User-initiated stops never reconnect.
		if ctx.Err() != nil || s.isUserStopped() {
			return
		}
		s.log.Warn("transport closed unexpectedly", "error", handle.Err())
		if !s.reconnect(ctx) {
			return
		}
	}
}

func (s *Supervisor) handleEvent(ctx context.Context, ev live.Event) {
	switch ev.Kind {
	case live.KindAudio:
		frame := audio.Frame{
			Data:       ev.Audio,
			SampleRate: audio.PlaybackRate,
			Channels:   1,
			Timestamp:  time.Now(),
		}
		if _, ok := s.scheduler.Enqueue(frame); ok {
			s.metrics.FramesScheduled.Add(ctx, 1)
			return
		}
		reason := "corrupt"
		if s.state.Snapshot().Route == audio.RouteVideo {
			reason = "route"
		}
		s.metrics.RecordFrameDropped(ctx, reason)

	case live.KindToolCalls:
		start := time.Now()
		s.dispatcher.Dispatch(ev.ToolCalls)
		s.metrics.ToolDispatchDuration.Record(ctx, time.Since(start).Seconds())

	case live.KindInterrupted:
		// Barge-in: kill everything scheduled, immediately.
		s.scheduler.Flush()

	case live.KindTurnComplete:
		s.log.Debug("assistant turn complete")

	case live.KindTranscript:
		s.appendTranscript(ev.Transcript)
	}
}

// reconnect attempts to re-establish the session with exponential backoff.
// On success it resends full context before returning, so audio resumes
// against a correctly primed session. It reports whether the session is open
// again; on exhaustion the session is Closed with a terminal error.
func (s *Supervisor) reconnect(ctx context.Context) bool {
	s.setState(StateConnecting)
	backoff := s.cfg.ReconnectBackoff

	for attempt := 1; attempt <= s.cfg.MaxReconnects; attempt++ {
		s.log.Info("attempting reconnection",
			"attempt", attempt,
			"max_attempts", s.cfg.MaxReconnects,
		)

		handle, err := s.cfg.Provider.Connect(ctx, s.buildConfig())
		if err == nil {
			s.metrics.RecordReconnect(ctx, "success")

			s.mu.Lock()
			if s.userStopped {
				// Stop raced the dial; discard the fresh handle and let the
				// terminal state stand.
				s.mu.Unlock()
				_ = handle.Close()
				return false
			}
			old := s.handle
			s.handle = handle
			s.conn = StateOpen
			s.mu.Unlock()
			if old != nil {
				_ = old.Close()
			}

			// The remote side has no memory of the prior connection: resend
			// the current step context before any audio flows.
			s.synchro.StepChanged(s.state.Snapshot())
			s.log.Info("reconnection successful", "attempt", attempt)
			return true
		}

		s.metrics.RecordReconnect(ctx, "failure")
		s.log.Warn("reconnection attempt failed", "attempt", attempt, "error", err)

		if s.isUserStopped() {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > s.cfg.MaxReconnectBackoff {
			backoff = s.cfg.MaxReconnectBackoff
		}
	}

	err := fmt.Errorf("session: reconnect failed after %d attempts", s.cfg.MaxReconnects)
	s.log.Error("reconnection exhausted", "attempts", s.cfg.MaxReconnects)
	s.close("reconnect failed", err)
	return false
}

// ── Outbound helpers ───────────────────────────────────────────────────────────

// SendContext implements cook.ContextSender. Pushes are only attempted while
// the connection is open; callers treat the error as a silent skip.
func (s *Supervisor) SendContext(items []live.ContextItem, turnComplete bool) error {
	s.mu.Lock()
	handle := s.handle
	open := s.conn == StateOpen
	s.mu.Unlock()

	if !open || handle == nil {
		s.metrics.RecordContextPush(context.Background(), "skipped")
		return ErrNotOpen
	}
	if err := handle.SendContext(items, turnComplete); err != nil {
		s.metrics.RecordContextPush(context.Background(), "failed")
		return fmt.Errorf("session: context push: %w", err)
	}
	s.metrics.RecordContextPush(context.Background(), "ok")
	return nil
}

// sendAck delivers one tool acknowledgement on the current session.
func (s *Supervisor) sendAck(result live.ToolResult) error {
	status, _ := result.Response["status"].(string)
	s.metrics.RecordToolCall(context.Background(), result.Name, status)

	s.mu.Lock()
	handle := s.handle
	s.mu.Unlock()
	if handle == nil {
		return ErrNotOpen
	}
	return handle.SendToolResults([]live.ToolResult{result})
}

func (s *Supervisor) onTimerEvent(ev cook.TimerEvent) {
	if !ev.Finished {
		return
	}
	s.metrics.TimersFinished.Add(context.Background(), 1)
	s.cfg.Feedback.PlayTone("timer")
	s.cfg.Feedback.Vibrate("timer")
	s.log.Info("timer finished")
}

// ── UI surface ─────────────────────────────────────────────────────────────────

// Status returns the observable snapshot for rendering.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	conn := s.conn
	reason := s.reason
	s.mu.Unlock()

	return Status{
		Connection: conn,
		Reason:     reason,
		Cook:       s.state.Snapshot(),
		Speaking:   s.scheduler.Speaking(),
		InputLevel: s.conditioner.Level(),
	}
}

// ConnectionState returns the current lifecycle state.
func (s *Supervisor) ConnectionState() ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// Err returns the terminal error that closed the session, if any.
func (s *Supervisor) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.termErr
}

// Transcripts returns the buffered live caption entries, oldest first.
func (s *Supervisor) Transcripts() []live.Transcript {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]live.Transcript(nil), s.transcripts...)
}

// NextStep advances one step via the non-voice UI path.
func (s *Supervisor) NextStep() { s.dispatcher.UserNavigate(s.state.StepIndex() + 1) }

// PreviousStep goes back one step via the non-voice UI path.
func (s *Supervisor) PreviousStep() { s.dispatcher.UserNavigate(s.state.StepIndex() - 1) }

// GoToStep jumps to a step via the non-voice UI path. Out-of-range indices
// are clamped.
func (s *Supervisor) GoToStep(index int) { s.dispatcher.UserNavigate(index) }

// ManualScale adjusts servings via the non-voice fallback path.
func (s *Supervisor) ManualScale(servings int) { s.state.ManualScale(servings) }

// SetPlaybackSpeed adjusts assistant speech speed.
func (s *Supervisor) SetPlaybackSpeed(multiplier float64) { s.scheduler.SetSpeed(multiplier) }

// ── Internals ──────────────────────────────────────────────────────────────────

func (s *Supervisor) buildConfig() live.SessionConfig {
	return live.SessionConfig{
		Voice:        s.cfg.Voice,
		Language:     s.cfg.Language,
		Instructions: buildInstructions(s.cfg.Recipe, s.state.Snapshot(), s.cfg.Language),
		Tools:        cook.ToolCatalog(),
	}
}

func (s *Supervisor) currentHandle() live.SessionHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

func (s *Supervisor) isUserStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userStopped
}

func (s *Supervisor) setState(state ConnectionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn = state
}

func (s *Supervisor) setClosed(reason string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn = StateClosed
	s.reason = reason
	if s.termErr == nil {
		s.termErr = err
	}
}

// close tears down transport resources and records the terminal state.
func (s *Supervisor) close(reason string, err error) {
	s.mu.Lock()
	handle := s.handle
	s.handle = nil
	s.mu.Unlock()

	if handle != nil {
		_ = handle.Close()
	}
	_ = s.cfg.Capture.Close()
	s.scheduler.Flush()
	s.setClosed(reason, err)
}

func (s *Supervisor) appendTranscript(tr live.Transcript) {
	// Speech recognition mangles cooking vocabulary; align user captions
	// against the recipe's terms before display. Assistant captions come from
	// the model's own text and are left alone.
	if tr.Source == live.SourceUser {
		corrected, corrections := s.captions.Correct(tr.Text)
		if len(corrections) > 0 {
			s.log.Debug("caption corrected", "replacements", len(corrections))
			tr.Text = corrected
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcripts = append(s.transcripts, tr)
	if len(s.transcripts) > transcriptBufferSize {
		s.transcripts = s.transcripts[len(s.transcripts)-transcriptBufferSize:]
	}
}

// markPrepared records the cook fire-and-forget after a session ends.
func (s *Supervisor) markPrepared() {
	if s.cfg.Recipes == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.cfg.Recipes.MarkPrepared(ctx, s.cfg.Recipe.ID, time.Now()); err != nil {
			s.log.Warn("mark prepared failed", "error", err)
		}
	}()
}
