package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidEmbeddingsNames lists the known embeddings backends. Unknown names get
// a warning rather than an error so third-party gateways keep working.
var ValidEmbeddingsNames = []string{"openai", "ollama"}

// ValidLiveProviders lists the known realtime voice backends.
var ValidLiveProviders = []string{"gemini"}

// Load reads the YAML configuration file at path and returns a validated
// [Config].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Unknown YAML keys are rejected, so typos fail loudly at startup.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing every validation failure found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	if cfg.Live.Provider != "" && !slices.Contains(ValidLiveProviders, cfg.Live.Provider) {
		errs = append(errs, fmt.Errorf("live.provider %q is invalid; valid values: %v", cfg.Live.Provider, ValidLiveProviders))
	}
	if cfg.Live.APIKey == "" {
		errs = append(errs, errors.New("live.api_key is required"))
	}

	if cfg.Audio.GateThreshold < 0 || cfg.Audio.GateThreshold > 1 {
		errs = append(errs, fmt.Errorf("audio.gate_threshold %.3f is out of range [0, 1]", cfg.Audio.GateThreshold))
	}
	if cfg.Audio.GateHangBlocks < 0 {
		errs = append(errs, fmt.Errorf("audio.gate_hang_blocks %d must not be negative", cfg.Audio.GateHangBlocks))
	}
	if cfg.Audio.FrameDurationMS != 0 && (cfg.Audio.FrameDurationMS < 10 || cfg.Audio.FrameDurationMS > 100) {
		errs = append(errs, fmt.Errorf("audio.frame_duration_ms %d is out of range [10, 100]", cfg.Audio.FrameDurationMS))
	}

	if cfg.Recipes.PostgresDSN != "" {
		name := cfg.Recipes.Embeddings.Name
		if name == "" {
			errs = append(errs, errors.New("recipes.embeddings.name is required when recipes.postgres_dsn is set"))
		} else if !slices.Contains(ValidEmbeddingsNames, name) {
			slog.Warn("unknown embeddings backend — may be a typo or third-party gateway",
				"name", name,
				"known", ValidEmbeddingsNames,
			)
		}
		if name == "openai" && cfg.Recipes.Embeddings.APIKey == "" {
			errs = append(errs, errors.New("recipes.embeddings.api_key is required for the openai backend"))
		}
	} else if cfg.Recipes.CatalogPath == "" {
		errs = append(errs, errors.New("recipes requires either postgres_dsn or catalog_path"))
	} else {
		slog.Warn("recipes.postgres_dsn is empty; using the file catalog — embedding similarity and cook history persistence will be unavailable")
	}

	if cfg.Session.MaxReconnects < 0 {
		errs = append(errs, fmt.Errorf("session.max_reconnects %d must not be negative", cfg.Session.MaxReconnects))
	}
	if cfg.Session.ReconnectBackoffMS < 0 || cfg.Session.MaxReconnectBackoffMS < 0 {
		errs = append(errs, errors.New("session reconnect backoffs must not be negative"))
	}
	if cfg.Session.MaxReconnectBackoffMS != 0 && cfg.Session.ReconnectBackoffMS > cfg.Session.MaxReconnectBackoffMS {
		errs = append(errs, errors.New("session.reconnect_backoff_ms must not exceed session.max_reconnect_backoff_ms"))
	}

	return errors.Join(errs...)
}
