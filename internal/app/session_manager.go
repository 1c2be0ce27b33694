package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mirepoix-app/mirepoix/internal/config"
	"github.com/mirepoix-app/mirepoix/internal/observe"
	"github.com/mirepoix-app/mirepoix/internal/recipe"
	"github.com/mirepoix-app/mirepoix/internal/session"
	"github.com/mirepoix-app/mirepoix/pkg/audio"
	"github.com/mirepoix-app/mirepoix/pkg/live"
)

// SessionInfo holds metadata about the active cooking session.
type SessionInfo struct {
	// SessionID uniquely identifies this cook.
	SessionID string

	// RecipeID and RecipeTitle describe what is being cooked.
	RecipeID    string
	RecipeTitle string

	// StartedAt is when the session was started.
	StartedAt time.Time
}

// SessionManager owns the lifecycle of cooking sessions. At most one session
// is active at a time; starting a new one requires the previous one to have
// reached the Closed state. All exported methods are safe for concurrent use.
type SessionManager struct {
	mu     sync.Mutex
	active *session.Supervisor
	info   SessionInfo

	cfg     *config.Config
	live    live.Provider
	recipes recipe.Provider
	metrics *observe.Metrics
	log     *slog.Logger
}

// SessionManagerConfig holds all dependencies for a [SessionManager].
type SessionManagerConfig struct {
	Config  *config.Config
	Live    live.Provider
	Recipes recipe.Provider
	Metrics *observe.Metrics
	Log     *slog.Logger
}

// NewSessionManager creates a SessionManager with the given dependencies.
func NewSessionManager(cfg SessionManagerConfig) *SessionManager {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &SessionManager{
		cfg:     cfg.Config,
		live:    cfg.Live,
		recipes: cfg.Recipes,
		metrics: cfg.Metrics,
		log:     log,
	}
}

// Start begins a cooking session for the given recipe, wiring capture and
// sink (typically both sides of one client audio bridge) into a new
// supervisor. Returns an error when another session is still active or the
// recipe cannot be loaded.
func (sm *SessionManager) Start(ctx context.Context, recipeID string, capture audio.CaptureDevice, sink audio.Sink) (*session.Supervisor, SessionInfo, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.active != nil && sm.active.ConnectionState() != session.StateClosed {
		return nil, SessionInfo{}, fmt.Errorf("app: session %s is still active", sm.info.SessionID)
	}

	rec, err := sm.recipes.Get(ctx, recipeID)
	if err != nil {
		return nil, SessionInfo{}, fmt.Errorf("app: load recipe: %w", err)
	}

	now := time.Now().UTC()
	info := SessionInfo{
		SessionID:   fmt.Sprintf("cook-%s-%s", sanitizeID(recipeID), now.Format("20060102T150405Z")),
		RecipeID:    rec.ID,
		RecipeTitle: rec.Title,
		StartedAt:   now,
	}

	sup, err := session.New(session.Config{
		Provider: sm.live,
		Capture:  capture,
		Sink:     sink,
		Recipe:   rec,
		Recipes:  sm.recipes,
		Voice:    sm.cfg.Live.Voice,
		Language: sm.cfg.Live.Language,
		Gate: audio.GateConfig{
			Threshold:  sm.cfg.Audio.GateThreshold,
			HangBlocks: sm.cfg.Audio.GateHangBlocks,
		},
		FrameDuration:       time.Duration(sm.cfg.Audio.FrameDurationMS) * time.Millisecond,
		MaxReconnects:       sm.cfg.Session.MaxReconnects,
		ReconnectBackoff:    time.Duration(sm.cfg.Session.ReconnectBackoffMS) * time.Millisecond,
		MaxReconnectBackoff: time.Duration(sm.cfg.Session.MaxReconnectBackoffMS) * time.Millisecond,
		Metrics:             sm.metrics,
		Log:                 sm.log.With("session_id", info.SessionID),
	})
	if err != nil {
		return nil, SessionInfo{}, err
	}

	if err := sup.Start(ctx); err != nil {
		return nil, SessionInfo{}, err
	}

	sm.active = sup
	sm.info = info
	sm.log.Info("cooking session started",
		"session_id", info.SessionID,
		"recipe_id", rec.ID,
		"title", rec.Title,
	)
	return sup, info, nil
}

// Stop terminates the active session. A no-op when nothing is active.
func (sm *SessionManager) Stop() error {
	sm.mu.Lock()
	sup := sm.active
	info := sm.info
	sm.mu.Unlock()

	if sup == nil {
		return nil
	}
	if err := sup.Stop(); err != nil {
		return fmt.Errorf("app: stop session %s: %w", info.SessionID, err)
	}
	sm.log.Info("cooking session stopped", "session_id", info.SessionID)
	return nil
}

// Retry reopens the active session after a terminal close.
func (sm *SessionManager) Retry(ctx context.Context) error {
	sm.mu.Lock()
	sup := sm.active
	sm.mu.Unlock()

	if sup == nil {
		return fmt.Errorf("app: no session to retry")
	}
	return sup.Retry(ctx)
}

// Active returns the current supervisor and its metadata. The boolean is
// false when no session has been started.
func (sm *SessionManager) Active() (*session.Supervisor, SessionInfo, bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.active, sm.info, sm.active != nil
}

// sanitizeID makes a recipe ID safe for use inside a session identifier.
func sanitizeID(id string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(id) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return strings.Trim(b.String(), "-")
}
