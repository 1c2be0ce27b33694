package app_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/mirepoix-app/mirepoix/internal/app"
	livemock "github.com/mirepoix-app/mirepoix/pkg/live/mock"
)

func newTestApp(t *testing.T, provider *livemock.Provider, catalog app.RecipeCatalog) *app.App {
	t.Helper()
	if provider == nil {
		provider = &livemock.Provider{}
	}
	a, err := app.New(context.Background(), testConfig(),
		app.WithRecipeCatalog(catalog),
		app.WithLiveProvider(provider),
	)
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	return a
}

func get(t *testing.T, srv *httptest.Server, path string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := srv.Client().Get(srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	var body map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&body)
	return resp, body
}

func post(t *testing.T, srv *httptest.Server, path, body string) *http.Response {
	t.Helper()
	resp, err := srv.Client().Post(srv.URL+path, "application/json", bytes.NewReader([]byte(body)))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	resp.Body.Close()
	return resp
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, nil, newMemCatalog(shakshuka()))
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		resp, _ := get(t, srv, path)
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s = %d", path, resp.StatusCode)
		}
	}
}

func TestRecipeEndpoints(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, nil, newMemCatalog(shakshuka()))
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)

	resp, body := get(t, srv, "/v1/recipes")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list = %d", resp.StatusCode)
	}
	if recs := body["recipes"].([]any); len(recs) != 1 {
		t.Errorf("recipes = %v", recs)
	}

	resp, body = get(t, srv, "/v1/recipes/shakshuka-2")
	if resp.StatusCode != http.StatusOK || body["Title"] != "Shakshuka" {
		t.Errorf("get = %d %v", resp.StatusCode, body)
	}

	resp, _ = get(t, srv, "/v1/recipes/absent")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing recipe = %d", resp.StatusCode)
	}

	resp, _ = get(t, srv, "/v1/recipes/shakshuka-2/similar?limit=3")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("similar = %d", resp.StatusCode)
	}
	resp, _ = get(t, srv, "/v1/recipes/shakshuka-2/similar?limit=oops")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad limit = %d", resp.StatusCode)
	}
}

func TestSessionEndpoints_NoSession(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, nil, newMemCatalog(shakshuka()))
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)

	resp, _ := get(t, srv, "/v1/session")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if resp := post(t, srv, "/v1/session/stop", ""); resp.StatusCode != http.StatusOK {
		t.Errorf("stop = %d", resp.StatusCode)
	}
	if resp := post(t, srv, "/v1/session/retry", ""); resp.StatusCode != http.StatusConflict {
		t.Errorf("retry = %d", resp.StatusCode)
	}
	if resp := post(t, srv, "/v1/session/next", ""); resp.StatusCode != http.StatusNotFound {
		t.Errorf("next = %d", resp.StatusCode)
	}
}

func TestSessionAudio_DrivesSessionOverBridge(t *testing.T) {
	t.Parallel()

	provider := &livemock.Provider{}
	a := newTestApp(t, provider, newMemCatalog(shakshuka()))
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	wsEndpoint := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/session/audio"
	conn, _, err := websocket.Dial(ctx, wsEndpoint, nil)
	if err != nil {
		t.Fatalf("dial bridge: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "test done") })

	hello, _ := json.Marshal(map[string]any{"type": "hello", "recipe_id": "shakshuka-2", "sample_rate": 48000})
	if err := conn.Write(ctx, websocket.MessageText, hello); err != nil {
		t.Fatalf("send hello: %v", err)
	}

	// Wait for the session to come up.
	deadline := time.Now().Add(3 * time.Second)
	var opened bool
	for time.Now().Before(deadline) {
		resp, body := get(t, srv, "/v1/session")
		if resp.StatusCode == http.StatusOK && body["connection"] == "open" {
			opened = true
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if !opened {
		t.Fatal("session never opened")
	}
	if got := provider.Attempts(); got != 1 {
		t.Errorf("connect attempts = %d", got)
	}

	// Manual navigation goes through the running session.
	if resp := post(t, srv, "/v1/session/next", ""); resp.StatusCode != http.StatusOK {
		t.Errorf("next = %d", resp.StatusCode)
	}
	resp, body := get(t, srv, "/v1/session")
	if resp.StatusCode != http.StatusOK || body["step_index"].(float64) != 1 {
		t.Errorf("after next: %v", body)
	}

	// Stop ends the session and releases the bridge handler.
	if resp := post(t, srv, "/v1/session/stop", ""); resp.StatusCode != http.StatusOK {
		t.Errorf("stop = %d", resp.StatusCode)
	}
	resp, body = get(t, srv, "/v1/session")
	if resp.StatusCode != http.StatusOK || body["connection"] != "closed" {
		t.Errorf("after stop: %d %v", resp.StatusCode, body)
	}
}

func TestSessionScaleValidation(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, nil, newMemCatalog(shakshuka()))
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)

	if resp := post(t, srv, "/v1/session/scale", `{"servings":0}`); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("scale 0 = %d", resp.StatusCode)
	}
	if resp := post(t, srv, "/v1/session/speed", `{"multiplier":-1}`); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("speed -1 = %d", resp.StatusCode)
	}
}
