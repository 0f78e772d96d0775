package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Audio.SampleRate != 16000 {
		t.Fatalf("expected default sample rate 16000, got %d", cfg.Audio.SampleRate)
	}
	if cfg.Engine.Type != "streaming" {
		t.Fatalf("expected default engine type streaming, got %q", cfg.Engine.Type)
	}
	if cfg.Session.LatencyBudgetMS != 200 {
		t.Fatalf("expected default latency budget 200, got %d", cfg.Session.LatencyBudgetMS)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DICTO_AUDIO_DEVICE_NAME", "USB Microphone")
	t.Setenv("DICTO_AUDIO_FRAME_DURATION_MS", "50")
	t.Setenv("DICTO_ENGINE_TYPE", "offline")
	t.Setenv("DICTO_ENGINE_MODEL_DIR", "/opt/models")
	t.Setenv("DICTO_ENGINE_VAD_MODEL_PATH", "/opt/models/silero_vad.onnx")
	t.Setenv("DICTO_ENGINE_PREFER_QUANTIZED", "false")
	t.Setenv("DICTO_SESSION_AUTO_STOP_ON_ENDPOINT", "true")
	t.Setenv("DICTO_SESSION_AUTO_RESET", "false")
	t.Setenv("DICTO_SESSION_SILENCE_THRESHOLD_SEC", "1.5")
	t.Setenv("DICTO_TRANSCRIPTS_PATH", "./tmp.db")
	t.Setenv("DICTO_TRANSCRIPTS_RETENTION_MODE", "persistent")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Audio.DeviceName != "USB Microphone" {
		t.Fatalf("expected device name override, got %q", cfg.Audio.DeviceName)
	}
	if cfg.Audio.FrameDurationMS != 50 {
		t.Fatalf("expected frame duration override, got %d", cfg.Audio.FrameDurationMS)
	}
	if cfg.Engine.Type != "offline" {
		t.Fatalf("expected engine type override, got %q", cfg.Engine.Type)
	}
	if cfg.Engine.ModelDir != "/opt/models" {
		t.Fatalf("expected model dir override, got %q", cfg.Engine.ModelDir)
	}
	if cfg.Engine.PreferQuantized {
		t.Fatal("expected prefer_quantized override false")
	}
	if !cfg.Session.AutoStopOnEndpoint || cfg.Session.AutoReset {
		t.Fatal("expected session mode overrides")
	}
	if cfg.Session.SilenceThresholdSec != 1.5 {
		t.Fatalf("expected silence threshold override, got %v", cfg.Session.SilenceThresholdSec)
	}
	if cfg.Transcripts.RetentionMode != "persistent" {
		t.Fatalf("expected retention mode override, got %q", cfg.Transcripts.RetentionMode)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dicto.yaml")
	data := []byte(`
audio:
  device_name: "pulse"
  frame_duration_ms: 100
engine:
  type: streaming
  model_dir: ./testmodels
session:
  auto_stop_on_endpoint: true
  auto_reset: false
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Audio.DeviceName != "pulse" {
		t.Fatalf("expected device name from file, got %q", cfg.Audio.DeviceName)
	}
	if !cfg.Session.AutoStopOnEndpoint {
		t.Fatal("expected auto stop from file")
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad engine type", func(c *Config) { c.Engine.Type = "cloud" }},
		{"empty model dir", func(c *Config) { c.Engine.ModelDir = "" }},
		{"zero sample rate", func(c *Config) { c.Audio.SampleRate = 0 }},
		{"prefill beyond frame", func(c *Config) { c.Audio.PrefillMS = 500 }},
		{"conflicting session modes", func(c *Config) {
			c.Session.AutoStopOnEndpoint = true
			c.Session.AutoReset = true
		}},
		{"bad vad threshold", func(c *Config) { c.Engine.VadThreshold = 1.5 }},
		{"bad retention mode", func(c *Config) { c.Transcripts.RetentionMode = "forever" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			if err := validate(cfg); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
