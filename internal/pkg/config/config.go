// Package config loads orchestrator configuration from config.yaml and
// LOOM_-prefixed environment variables. All options are static: loaded
// once at startup, never mutated by request traffic.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Storage    StorageConfig    `koanf:"storage"`
	Selection  SelectionConfig  `koanf:"selection"`
	Validation ValidationConfig `koanf:"validation"`
	Timeouts   TimeoutConfig    `koanf:"timeouts"`
	Backends   []BackendConfig  `koanf:"backends"`
}

type ServerConfig struct {
	Port int `koanf:"port"`
}

type StorageConfig struct {
	Type   string       `koanf:"type"` // sqlite, memory, none
	SQLite SQLiteConfig `koanf:"sqlite"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

// SelectionConfig tunes the tier ranking policy.
type SelectionConfig struct {
	// PreferCloudOverLocal promotes the cloud tier above local_cpu.
	PreferCloudOverLocal bool `koanf:"prefer_cloud_over_local"`
	// TierOrder is an explicit full ordering and overrides
	// PreferCloudOverLocal when set.
	TierOrder []string `koanf:"tier_order"`
}

// ValidationConfig holds output-integrity thresholds. Zero values fall
// back to the validator's built-in defaults.
type ValidationConfig struct {
	MinTextChars  int      `koanf:"min_text_chars"`
	TextSentinels []string `koanf:"text_sentinels"`
	MinAudioBytes int      `koanf:"min_audio_bytes"`
}

// TimeoutConfig sets per-kind default attempt deadlines as duration
// strings ("20s", "1m30s"). A backend's own timeout takes precedence.
type TimeoutConfig struct {
	Text  string `koanf:"text"`
	Audio string `koanf:"audio"`
}

// ParseText returns the text attempt deadline, zero when unset.
func (t TimeoutConfig) ParseText() (time.Duration, error) { return parseTimeout("timeouts.text", t.Text) }

// ParseAudio returns the audio attempt deadline, zero when unset.
func (t TimeoutConfig) ParseAudio() (time.Duration, error) {
	return parseTimeout("timeouts.audio", t.Audio)
}

func parseTimeout(key, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, nil
}

// BackendConfig declares one registry entry. Type names a registered
// backend factory ("cloud" is built in; device engine factories are
// registered by the embedding application).
type BackendConfig struct {
	ID   string `koanf:"id"`
	Kind string `koanf:"kind"`
	Type string `koanf:"type"`
	Tier string `koanf:"tier"`

	// Timeout overrides the per-kind default deadline for this backend.
	Timeout string `koanf:"timeout"`

	// MaxInvalidRetries bounds same-backend regeneration after an
	// invalid-output rejection.
	MaxInvalidRetries int `koanf:"max_invalid_retries"`

	// Cloud backends only.
	BaseURL string `koanf:"base_url"`
	APIKey  string `koanf:"api_key"`
}

// ParseTimeout returns the per-backend deadline, zero when unset.
func (b BackendConfig) ParseTimeout() (time.Duration, error) {
	return parseTimeout(fmt.Sprintf("backends.%s.timeout", b.ID), b.Timeout)
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

func Load() (*Config, error) {
	return LoadFile("config.yaml")
}

// LoadFile loads configuration from the given yaml file, then overlays
// LOOM_-prefixed environment variables.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		// File not found is OK, env vars and defaults still apply.
		if !os.IsNotExist(err) {
			return nil, err
		}
	}

	if err := k.Load(env.Provider("LOOM_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "LOOM_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	// Default values
	if !k.Exists("server.port") {
		k.Set("server.port", 8080)
	}
	if !k.Exists("storage.type") {
		k.Set("storage.type", "none")
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	// Substitute environment variables in backend API keys
	for i := range cfg.Backends {
		cfg.Backends[i].APIKey = substituteEnvVars(cfg.Backends[i].APIKey)
	}

	return &cfg, nil
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
