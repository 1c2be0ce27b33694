package cook

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/mirepoix-app/mirepoix/internal/video"
	"github.com/mirepoix-app/mirepoix/pkg/audio"
	"github.com/mirepoix-app/mirepoix/pkg/live"
)

// Tool names in the catalog offered to the assistant.
const (
	ToolNextStep         = "nextStep"
	ToolPreviousStep     = "previousStep"
	ToolGoToStep         = "goToStep"
	ToolStartTimer       = "startTimer"
	ToolPauseTimer       = "pauseTimer"
	ToolResumeTimer      = "resumeTimer"
	ToolStopTimer        = "stopTimer"
	ToolSetTemperature   = "setTemperature"
	ToolSetAudioSource   = "setAudioSource"
	ToolSetVideoPlayback = "setVideoPlayback"
	ToolSetVideoMute     = "setVideoMute"
)

// AudioRouter switches where inbound assistant audio is delivered.
type AudioRouter interface {
	SetRoute(r audio.Route)
}

// AckFunc delivers one acknowledgement to the remote assistant.
type AckFunc func(result live.ToolResult) error

// Dispatcher applies tool invocations from the assistant to session state.
// Batches are processed strictly in order on the session's event loop;
// exactly one acknowledgement is emitted per invocation, including malformed
// ones, and a context push precedes the acknowledgement of every committed
// navigation.
type Dispatcher struct {
	state    *State
	timer    *Timer
	sync     *Synchronizer
	video    video.Transport
	router   AudioRouter
	feedback Feedback
	ack      AckFunc
	log      *slog.Logger
}

// DispatcherDeps wires a Dispatcher's collaborators. Video, Router, Feedback
// and Log may be nil.
type DispatcherDeps struct {
	State    *State
	Timer    *Timer
	Sync     *Synchronizer
	Video    video.Transport
	Router   AudioRouter
	Feedback Feedback
	Ack      AckFunc
	Log      *slog.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(deps DispatcherDeps) *Dispatcher {
	if deps.Video == nil {
		deps.Video = video.Nop{}
	}
	if deps.Feedback == nil {
		deps.Feedback = NopFeedback{}
	}
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	return &Dispatcher{
		state:    deps.State,
		timer:    deps.Timer,
		sync:     deps.Sync,
		video:    deps.Video,
		router:   deps.Router,
		feedback: deps.Feedback,
		ack:      deps.Ack,
		log:      deps.Log,
	}
}

// Dispatch applies one invocation batch in array order. A malformed or
// unknown invocation is acknowledged as failed and never stops the remaining
// invocations in the batch.
func (d *Dispatcher) Dispatch(batch []live.ToolInvocation) {
	for _, call := range batch {
		result := d.apply(call)
		if err := d.ack(result); err != nil {
			d.log.Warn("tool acknowledgement failed", "tool", call.Name, "id", call.ID, "error", err)
		}
	}
}

func (d *Dispatcher) apply(call live.ToolInvocation) live.ToolResult {
	response, err := d.invoke(call)
	if err != nil {
		d.log.Warn("tool invocation failed", "tool", call.Name, "id", call.ID, "error", err)
		return live.ToolResult{
			ID:   call.ID,
			Name: call.Name,
			Response: map[string]any{
				"status": "failed",
				"error":  err.Error(),
			},
		}
	}
	if response == nil {
		response = map[string]any{}
	}
	response["status"] = "ok"
	return live.ToolResult{ID: call.ID, Name: call.Name, Response: response}
}

func (d *Dispatcher) invoke(call live.ToolInvocation) (map[string]any, error) {
	switch call.Name {
	case ToolNextStep:
		return d.navigate(d.state.StepIndex() + 1), nil

	case ToolPreviousStep:
		return d.navigate(d.state.StepIndex() - 1), nil

	case ToolGoToStep:
		index, err := intArg(call.Args, "index")
		if err != nil {
			return nil, err
		}
		return d.navigate(index), nil

	case ToolStartTimer:
		minutes, err := optionalIntArg(call.Args, "minutes")
		if err != nil {
			return nil, err
		}
		seconds, err := optionalIntArg(call.Args, "seconds")
		if err != nil {
			return nil, err
		}
		d.timer.Start(minutes, seconds)
		snap := d.state.Snapshot()
		d.feedback.PlayTone("confirm")
		return map[string]any{"remainingSeconds": snap.TimerRemaining}, nil

	case ToolPauseTimer:
		changed := d.timer.Pause()
		return map[string]any{"changed": changed}, nil

	case ToolResumeTimer:
		changed := d.timer.Resume()
		return map[string]any{"changed": changed}, nil

	case ToolStopTimer:
		changed := d.timer.Stop()
		return map[string]any{"changed": changed}, nil

	case ToolSetTemperature:
		label, err := stringArg(call.Args, "label")
		if err != nil {
			return nil, err
		}
		d.state.SetTemperature(label)
		return map[string]any{"temperature": label}, nil

	case ToolSetAudioSource:
		source, err := stringArg(call.Args, "source")
		if err != nil {
			return nil, err
		}
		var route audio.Route
		switch source {
		case "assistant":
			route = audio.RouteAssistant
		case "video":
			route = audio.RouteVideo
		default:
			return nil, fmt.Errorf("cook: unknown audio source %q", source)
		}
		// Local listening preference only; the assistant is not told, so its
		// reasoning is unaffected by where the user routed the sound.
		d.state.SetRoute(route)
		if d.router != nil {
			d.router.SetRoute(route)
		}
		return map[string]any{"source": source}, nil

	case ToolSetVideoPlayback:
		action, err := stringArg(call.Args, "action")
		if err != nil {
			return nil, err
		}
		return d.videoPlayback(action)

	case ToolSetVideoMute:
		muted, err := boolArg(call.Args, "muted")
		if err != nil {
			return nil, err
		}
		if err := d.video.Mute(muted); err != nil {
			d.log.Debug("video mute ignored", "error", err)
		}
		return map[string]any{"muted": muted}, nil

	default:
		return nil, fmt.Errorf("cook: unknown tool %q", call.Name)
	}
}

// UserNavigate applies a navigation that originated from the UI transport
// controls rather than a tool call. Clamping and the context push are
// identical to the voice path; no acknowledgement is produced.
func (d *Dispatcher) UserNavigate(index int) Snapshot {
	d.navigate(index)
	return d.state.Snapshot()
}

// navigate commits a clamped step change, seeks the companion video, and
// pushes context before the acknowledgement is built. Boundary no-ops are
// still acknowledged as ok.
func (d *Dispatcher) navigate(index int) map[string]any {
	changed := d.state.SetStep(index)
	snap := d.state.Snapshot()

	if changed {
		if secs, ok := ParseTimestamp(snap.StepTimestamp); ok {
			if err := d.video.Seek(secs); err != nil {
				d.log.Debug("video seek ignored", "error", err)
			}
		}
		d.sync.StepChanged(snap)
		d.feedback.PlayTone("confirm")
	}

	return map[string]any{
		"currentStep": snap.StepIndex,
		"stepCount":   snap.StepCount,
		"changed":     changed,
	}
}

func (d *Dispatcher) videoPlayback(action string) (map[string]any, error) {
	var err error
	switch action {
	case "play":
		err = d.video.Play()
		d.state.SetVideo(VideoPlaying)
	case "pause":
		err = d.video.Pause()
		d.state.SetVideo(VideoPaused)
	case "stop":
		err = d.video.Stop()
		d.state.SetVideo(VideoIdle)
	default:
		return nil, fmt.Errorf("cook: unknown video action %q", action)
	}
	if err != nil {
		d.log.Debug("video transport ignored", "action", action, "error", err)
	}
	return map[string]any{"action": action}, nil
}

// ── Argument extraction ────────────────────────────────────────────────────────

// intArg reads a required integer argument. JSON numbers arrive as float64.
func intArg(args map[string]any, key string) (int, error) {
	v, ok := args[key]
	if !ok {
		return 0, fmt.Errorf("cook: missing argument %q", key)
	}
	return coerceInt(v, key)
}

// optionalIntArg reads an integer argument, defaulting to zero when absent.
func optionalIntArg(args map[string]any, key string) (int, error) {
	v, ok := args[key]
	if !ok {
		return 0, nil
	}
	return coerceInt(v, key)
}

func coerceInt(v any, key string) (int, error) {
	switch n := v.(type) {
	case float64:
		// JSON numbers are float64; reject anything int(n) would mangle.
		if math.IsNaN(n) || math.IsInf(n, 0) || n != math.Trunc(n) {
			return 0, fmt.Errorf("cook: argument %q must be a whole number, got %v", key, n)
		}
		if n < math.MinInt32 || n > math.MaxInt32 {
			return 0, fmt.Errorf("cook: argument %q is out of range: %v", key, n)
		}
		return int(n), nil
	case int:
		return n, nil
	case int64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("cook: argument %q must be a number, got %T", key, v)
	}
}

func stringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("cook: missing argument %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("cook: argument %q must be a string, got %T", key, v)
	}
	return s, nil
}

func boolArg(args map[string]any, key string) (bool, error) {
	v, ok := args[key]
	if !ok {
		return false, fmt.Errorf("cook: missing argument %q", key)
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("cook: argument %q must be a boolean, got %T", key, v)
	}
	return b, nil
}

// ── Tool catalog ───────────────────────────────────────────────────────────────

// ToolCatalog returns the tool declarations offered to the assistant in every
// session configuration.
func ToolCatalog() []live.ToolDefinition {
	intParam := func(desc string) map[string]any {
		return map[string]any{"type": "integer", "description": desc}
	}
	object := func(props map[string]any, required ...string) map[string]any {
		schema := map[string]any{"type": "object", "properties": props}
		if len(required) > 0 {
			schema["required"] = required
		}
		return schema
	}

	return []live.ToolDefinition{
		{
			Name:        ToolNextStep,
			Description: "Advance to the next recipe step.",
		},
		{
			Name:        ToolPreviousStep,
			Description: "Go back to the previous recipe step.",
		},
		{
			Name:        ToolGoToStep,
			Description: "Jump to a specific recipe step by 0-based index.",
			Parameters: object(map[string]any{
				"index": intParam("0-based step index"),
			}, "index"),
		},
		{
			Name:        ToolStartTimer,
			Description: "Start a cooking countdown timer.",
			Parameters: object(map[string]any{
				"minutes": intParam("whole minutes"),
				"seconds": intParam("additional seconds"),
			}),
		},
		{Name: ToolPauseTimer, Description: "Pause the running timer."},
		{Name: ToolResumeTimer, Description: "Resume a paused timer."},
		{Name: ToolStopTimer, Description: "Stop and clear the timer."},
		{
			Name:        ToolSetTemperature,
			Description: "Record the heat level the user should use for the current step.",
			Parameters: object(map[string]any{
				"label": map[string]any{"type": "string", "description": "free-text heat label, e.g. Medium or 375°F"},
			}, "label"),
		},
		{
			Name:        ToolSetAudioSource,
			Description: "Route sound output to the assistant voice or the recipe video.",
			Parameters: object(map[string]any{
				"source": map[string]any{"type": "string", "enum": []string{"assistant", "video"}},
			}, "source"),
		},
		{
			Name:        ToolSetVideoPlayback,
			Description: "Control the recipe video player.",
			Parameters: object(map[string]any{
				"action": map[string]any{"type": "string", "enum": []string{"play", "pause", "stop"}},
			}, "action"),
		},
		{
			Name:        ToolSetVideoMute,
			Description: "Mute or unmute the recipe video.",
			Parameters: object(map[string]any{
				"muted": map[string]any{"type": "boolean"},
			}, "muted"),
		},
	}
}
