package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadFile_Defaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Port = %d, want default 8080", cfg.Server.Port)
	}
	if cfg.Storage.Type != "none" {
		t.Errorf("Storage.Type = %s, want default none", cfg.Storage.Type)
	}
}

func TestLoadFile_FullConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
storage:
  type: sqlite
  sqlite:
    path: /var/lib/storyloom/history.db
selection:
  prefer_cloud_over_local: true
validation:
  min_text_chars: 60
  min_audio_bytes: 2048
  text_sentinels: ["<|", "DEBUG:"]
timeouts:
  text: 20s
  audio: 1m
backends:
  - id: gemma-nano
    kind: text
    type: device-engine
    tier: native_accelerated
    timeout: 8s
    max_invalid_retries: 1
  - id: story-cloud
    kind: text
    type: cloud
    tier: cloud
    base_url: https://api.storyloom.dev
    api_key: ${STORYLOOM_API_KEY}
`)

	os.Setenv("STORYLOOM_API_KEY", "sk-test-123")
	defer os.Unsetenv("STORYLOOM_API_KEY")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Storage.Type != "sqlite" || cfg.Storage.SQLite.Path != "/var/lib/storyloom/history.db" {
		t.Errorf("storage = %+v, not loaded", cfg.Storage)
	}
	if !cfg.Selection.PreferCloudOverLocal {
		t.Error("prefer_cloud_over_local not loaded")
	}
	if cfg.Validation.MinTextChars != 60 || len(cfg.Validation.TextSentinels) != 2 {
		t.Errorf("validation = %+v, not loaded", cfg.Validation)
	}

	textTimeout, err := cfg.Timeouts.ParseText()
	if err != nil || textTimeout != 20*time.Second {
		t.Errorf("ParseText() = (%v, %v), want 20s", textTimeout, err)
	}
	audioTimeout, err := cfg.Timeouts.ParseAudio()
	if err != nil || audioTimeout != time.Minute {
		t.Errorf("ParseAudio() = (%v, %v), want 1m", audioTimeout, err)
	}

	if len(cfg.Backends) != 2 {
		t.Fatalf("backends = %d, want 2", len(cfg.Backends))
	}
	nano := cfg.Backends[0]
	if nano.ID != "gemma-nano" || nano.Tier != "native_accelerated" || nano.MaxInvalidRetries != 1 {
		t.Errorf("first backend = %+v, not loaded", nano)
	}
	if d, err := nano.ParseTimeout(); err != nil || d != 8*time.Second {
		t.Errorf("backend ParseTimeout() = (%v, %v), want 8s", d, err)
	}
	if cfg.Backends[1].APIKey != "sk-test-123" {
		t.Errorf("APIKey = %q, env var not substituted", cfg.Backends[1].APIKey)
	}
}

func TestLoadFile_EnvOverride(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9090\n")

	os.Setenv("LOOM_SERVER__PORT", "7070")
	defer os.Unsetenv("LOOM_SERVER__PORT")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("Port = %d, env override not applied", cfg.Server.Port)
	}
}

func TestParseTimeout_Invalid(t *testing.T) {
	tests := []struct {
		name string
		cfg  TimeoutConfig
	}{
		{"garbage", TimeoutConfig{Text: "soonish"}},
		{"negative", TimeoutConfig{Text: "-5s"}},
		{"zero", TimeoutConfig{Text: "0s"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.cfg.ParseText(); err == nil {
				t.Error("ParseText() accepted invalid duration")
			}
		})
	}
}

func TestSubstituteEnvVars(t *testing.T) {
	os.Setenv("LOOM_TEST_KEY", "value-1")
	defer os.Unsetenv("LOOM_TEST_KEY")

	tests := []struct {
		in, want string
	}{
		{"${LOOM_TEST_KEY}", "value-1"},
		{"prefix-${LOOM_TEST_KEY}", "prefix-value-1"},
		{"plain", "plain"},
		{"${UNSET_VAR_FOR_TEST}", ""},
	}
	for _, tt := range tests {
		if got := substituteEnvVars(tt.in); got != tt.want {
			t.Errorf("substituteEnvVars(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
