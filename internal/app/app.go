// Package app wires all Mirepoix subsystems into a running server.
//
// The App struct owns the full lifecycle: New builds the recipe catalog, the
// live voice provider, the metrics registry, and the HTTP surface; Run serves
// until the context is cancelled; Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithLiveProvider,
// WithRecipeCatalog, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/mirepoix-app/mirepoix/internal/bridge"
	"github.com/mirepoix-app/mirepoix/internal/config"
	"github.com/mirepoix-app/mirepoix/internal/health"
	"github.com/mirepoix-app/mirepoix/internal/observe"
	"github.com/mirepoix-app/mirepoix/internal/recipe"
	"github.com/mirepoix-app/mirepoix/internal/recipe/postgres"
	"github.com/mirepoix-app/mirepoix/internal/recipe/yamlstore"
	"github.com/mirepoix-app/mirepoix/internal/session"
	"github.com/mirepoix-app/mirepoix/pkg/live"
	livegemini "github.com/mirepoix-app/mirepoix/pkg/live/gemini"
	"github.com/mirepoix-app/mirepoix/pkg/provider/embeddings"
	embeddingsollama "github.com/mirepoix-app/mirepoix/pkg/provider/embeddings/ollama"
	embeddingsopenai "github.com/mirepoix-app/mirepoix/pkg/provider/embeddings/openai"
)

// shutdownTimeout bounds how long the HTTP server may take to drain.
const shutdownTimeout = 10 * time.Second

// RecipeCatalog is the full catalog surface the server needs: the session
// provider contract plus listing for the browse endpoint.
type RecipeCatalog interface {
	recipe.Provider
	List(ctx context.Context) ([]recipe.Recipe, error)
}

// App owns all subsystem lifetimes and serves the Mirepoix HTTP API.
type App struct {
	cfg      *config.Config
	log      *slog.Logger
	metrics  *observe.Metrics
	catalog  RecipeCatalog
	live     live.Provider
	sessions *SessionManager
	server   *http.Server

	// closers are called in reverse order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithRecipeCatalog injects a catalog instead of building one from config.
func WithRecipeCatalog(c RecipeCatalog) Option {
	return func(a *App) { a.catalog = c }
}

// WithLiveProvider injects a live voice provider instead of building one from
// config.
func WithLiveProvider(p live.Provider) Option {
	return func(a *App) { a.live = p }
}

// WithMetrics injects a metrics registry. Tests use this with a private meter
// provider to avoid cross-test pollution.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.log = l }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. Initialisation is
// synchronous: the recipe catalog is opened (and its schema migrated for the
// Postgres backend) before New returns.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.log == nil {
		a.log = slog.Default()
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Recipe catalog ─────────────────────────────────────────────────────
	if a.catalog == nil {
		catalog, closer, err := buildCatalog(ctx, cfg)
		if err != nil {
			return nil, err
		}
		a.catalog = catalog
		if closer != nil {
			a.closers = append(a.closers, closer)
		}
	}

	// ── 2. Live voice provider ────────────────────────────────────────────────
	if a.live == nil {
		var liveOpts []livegemini.Option
		if cfg.Live.Model != "" {
			liveOpts = append(liveOpts, livegemini.WithModel(cfg.Live.Model))
		}
		if cfg.Live.BaseURL != "" {
			liveOpts = append(liveOpts, livegemini.WithBaseURL(cfg.Live.BaseURL))
		}
		a.live = livegemini.New(cfg.Live.APIKey, liveOpts...)
	}

	// ── 3. Session manager ────────────────────────────────────────────────────
	a.sessions = NewSessionManager(SessionManagerConfig{
		Config:  cfg,
		Live:    a.live,
		Recipes: a.catalog,
		Metrics: a.metrics,
		Log:     a.log,
	})

	// ── 4. HTTP surface ───────────────────────────────────────────────────────
	a.server = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           a.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// buildCatalog opens the configured recipe backend: pgvector-backed Postgres
// when a DSN is set, otherwise the YAML file catalog.
func buildCatalog(ctx context.Context, cfg *config.Config) (RecipeCatalog, func() error, error) {
	if cfg.Recipes.PostgresDSN == "" {
		store, err := yamlstore.Load(cfg.Recipes.CatalogPath)
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	}

	embedder, err := buildEmbeddings(cfg.Recipes.Embeddings)
	if err != nil {
		return nil, nil, err
	}
	store, err := postgres.NewStore(ctx, cfg.Recipes.PostgresDSN, embedder)
	if err != nil {
		return nil, nil, err
	}
	return store, func() error { store.Close(); return nil }, nil
}

// buildEmbeddings constructs the configured embeddings backend, optionally
// chained with a local Ollama fallback.
func buildEmbeddings(cfg config.EmbeddingsConfig) (embeddings.Provider, error) {
	var primary embeddings.Provider
	var err error
	switch cfg.Name {
	case "ollama":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = embeddingsollama.DefaultBaseURL
		}
		primary, err = embeddingsollama.New(baseURL, cfg.Model)
	default:
		var opts []embeddingsopenai.Option
		if cfg.BaseURL != "" {
			opts = append(opts, embeddingsopenai.WithBaseURL(cfg.BaseURL))
		}
		primary, err = embeddingsopenai.New(cfg.APIKey, cfg.Model, opts...)
	}
	if err != nil {
		return nil, fmt.Errorf("app: embeddings backend %q: %w", cfg.Name, err)
	}

	if cfg.FallbackBaseURL == "" {
		return primary, nil
	}
	secondary, err := embeddingsollama.New(cfg.FallbackBaseURL, cfg.Model,
		embeddingsollama.WithDimensions(primary.Dimensions()))
	if err != nil {
		return nil, fmt.Errorf("app: embeddings fallback: %w", err)
	}
	return embeddings.NewFallback(primary, secondary, nil)
}

// ─── HTTP surface ────────────────────────────────────────────────────────────

// routes builds the server mux: health probes, Prometheus metrics, the recipe
// browse API, session control, and the client audio bridge endpoint.
func (a *App) routes() http.Handler {
	mux := http.NewServeMux()

	h := health.New(health.Checker{
		Name:  "catalog",
		Check: func(ctx context.Context) error { _, err := a.catalog.List(ctx); return err },
	})
	h.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /v1/recipes", a.handleListRecipes)
	mux.HandleFunc("GET /v1/recipes/{id}", a.handleGetRecipe)
	mux.HandleFunc("GET /v1/recipes/{id}/similar", a.handleSimilarRecipes)

	mux.HandleFunc("GET /v1/session", a.handleSessionStatus)
	mux.HandleFunc("GET /v1/session/transcripts", a.handleSessionTranscripts)
	mux.HandleFunc("POST /v1/session/stop", a.handleSessionStop)
	mux.HandleFunc("POST /v1/session/retry", a.handleSessionRetry)
	mux.HandleFunc("POST /v1/session/next", a.handleSessionNav(func(s *session.Supervisor) { s.NextStep() }))
	mux.HandleFunc("POST /v1/session/previous", a.handleSessionNav(func(s *session.Supervisor) { s.PreviousStep() }))
	mux.HandleFunc("POST /v1/session/goto", a.handleSessionGoto)
	mux.HandleFunc("POST /v1/session/scale", a.handleSessionScale)
	mux.HandleFunc("POST /v1/session/speed", a.handleSessionSpeed)

	mux.HandleFunc("GET /v1/session/audio", a.handleSessionAudio)

	return observe.Middleware(a.metrics)(mux)
}

// handleSessionAudio upgrades the client connection to the audio bridge and
// runs a cooking session over it. The handler blocks until the session ends
// or the client disconnects.
func (a *App) handleSessionAudio(w http.ResponseWriter, r *http.Request) {
	br, err := bridge.Accept(w, r, a.log)
	if err != nil {
		a.log.Warn("audio bridge rejected", "err", err)
		return
	}
	defer br.Close()

	sup, info, err := a.sessions.Start(r.Context(), br.RecipeID(), br, br)
	if err != nil {
		a.log.Warn("session start failed", "recipe_id", br.RecipeID(), "err", err)
		return
	}

	select {
	case <-sup.Done():
	case <-r.Context().Done():
		// Client went away; tear the session down rather than letting it
		// narrate to nobody.
		if err := a.sessions.Stop(); err != nil {
			a.log.Warn("session stop after disconnect", "session_id", info.SessionID, "err", err)
		}
	}
}

func (a *App) handleListRecipes(w http.ResponseWriter, r *http.Request) {
	recs, err := a.catalog.List(r.Context())
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"recipes": recs})
}

func (a *App) handleGetRecipe(w http.ResponseWriter, r *http.Request) {
	rec, err := a.catalog.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, recipe.ErrNotFound) {
		a.writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *App) handleSimilarRecipes(w http.ResponseWriter, r *http.Request) {
	limit := 5
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 1 || n > 50 {
			a.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", q))
			return
		}
		limit = n
	}
	recs, err := a.catalog.Similar(r.Context(), r.PathValue("id"), limit)
	if errors.Is(err, recipe.ErrNotFound) {
		a.writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"recipes": recs})
}

// sessionStatus is the JSON shape of GET /v1/session.
type sessionStatus struct {
	SessionID   string  `json:"session_id"`
	RecipeID    string  `json:"recipe_id"`
	RecipeTitle string  `json:"recipe_title"`
	StartedAt   string  `json:"started_at"`
	Connection  string  `json:"connection"`
	Reason      string  `json:"reason,omitempty"`
	StepIndex   int     `json:"step_index"`
	StepCount   int     `json:"step_count"`
	Servings    int     `json:"servings"`
	Temperature string  `json:"temperature,omitempty"`
	Speaking    bool    `json:"speaking"`
	InputLevel  float64 `json:"input_level"`
}

func (a *App) handleSessionStatus(w http.ResponseWriter, _ *http.Request) {
	sup, info, ok := a.sessions.Active()
	if !ok {
		a.writeError(w, http.StatusNotFound, errors.New("no session"))
		return
	}
	st := sup.Status()
	writeJSON(w, http.StatusOK, sessionStatus{
		SessionID:   info.SessionID,
		RecipeID:    info.RecipeID,
		RecipeTitle: info.RecipeTitle,
		StartedAt:   info.StartedAt.Format(time.RFC3339),
		Connection:  st.Connection.String(),
		Reason:      st.Reason,
		StepIndex:   st.Cook.StepIndex,
		StepCount:   st.Cook.StepCount,
		Servings:    st.Cook.Servings,
		Temperature: st.Cook.Temperature,
		Speaking:    st.Speaking,
		InputLevel:  st.InputLevel,
	})
}

func (a *App) handleSessionTranscripts(w http.ResponseWriter, _ *http.Request) {
	sup, _, ok := a.sessions.Active()
	if !ok {
		a.writeError(w, http.StatusNotFound, errors.New("no session"))
		return
	}
	type line struct {
		Source string `json:"source"`
		Text   string `json:"text"`
	}
	trs := sup.Transcripts()
	lines := make([]line, len(trs))
	for i, tr := range trs {
		lines[i] = line{Source: string(tr.Source), Text: tr.Text}
	}
	writeJSON(w, http.StatusOK, map[string]any{"transcripts": lines})
}

func (a *App) handleSessionStop(w http.ResponseWriter, _ *http.Request) {
	if err := a.sessions.Stop(); err != nil {
		a.writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

func (a *App) handleSessionRetry(w http.ResponseWriter, r *http.Request) {
	if err := a.sessions.Retry(r.Context()); err != nil {
		a.writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "open"})
}

// handleSessionNav adapts a manual navigation action into a handler.
func (a *App) handleSessionNav(nav func(*session.Supervisor)) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		sup, _, ok := a.sessions.Active()
		if !ok {
			a.writeError(w, http.StatusNotFound, errors.New("no session"))
			return
		}
		nav(sup)
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func (a *App) handleSessionGoto(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Step int `json:"step"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	a.handleSessionNav(func(s *session.Supervisor) { s.GoToStep(req.Step) })(w, r)
}

func (a *App) handleSessionScale(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Servings int `json:"servings"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Servings < 1 {
		a.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid servings"))
		return
	}
	a.handleSessionNav(func(s *session.Supervisor) { s.ManualScale(req.Servings) })(w, r)
}

func (a *App) handleSessionSpeed(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Multiplier float64 `json:"multiplier"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Multiplier <= 0 {
		a.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid multiplier"))
		return
	}
	a.handleSessionNav(func(s *session.Supervisor) { s.SetPlaybackSpeed(req.Multiplier) })(w, r)
}

func (a *App) writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		a.log.Error("request failed", "status", status, "err", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ─── Lifecycle ───────────────────────────────────────────────────────────────

// Handler exposes the HTTP surface for tests.
func (a *App) Handler() http.Handler { return a.server.Handler }

// Sessions exposes the session manager for embedding hosts that drive
// sessions with local devices instead of the audio bridge.
func (a *App) Sessions() *SessionManager { return a.sessions }

// Run serves HTTP until ctx is cancelled, then drains the server. TLS is used
// when configured.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.log.Info("http server listening",
			"addr", a.cfg.Server.ListenAddr,
			"tls", a.cfg.Server.TLS != nil,
		)
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.server.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = a.server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-ctx.Done()
		drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return a.server.Shutdown(drainCtx)
	})

	return g.Wait()
}

// Shutdown stops the active session and releases all resources. Idempotent.
func (a *App) Shutdown(_ context.Context) error {
	var errs []error
	a.stopOnce.Do(func() {
		if err := a.sessions.Stop(); err != nil {
			errs = append(errs, err)
		}
		for i := len(a.closers) - 1; i >= 0; i-- {
			if err := a.closers[i](); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}
