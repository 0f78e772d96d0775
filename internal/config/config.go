package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

// AudioConfig controls microphone capture.
type AudioConfig struct {
	DeviceName      string `yaml:"device_name"`
	SampleRate      int    `yaml:"sample_rate"`
	FrameDurationMS int    `yaml:"frame_duration_ms"`
	PrefillMS       int    `yaml:"prefill_ms"`
	WarmupOnStart   bool   `yaml:"warmup_on_start"`
	DumpDir         string `yaml:"dump_dir"`
}

// EngineConfig selects and parameterizes the recognition engine.
type EngineConfig struct {
	Type            string  `yaml:"type"` // streaming or offline
	ModelDir        string  `yaml:"model_dir"`
	VadModelPath    string  `yaml:"vad_model_path"`
	NumThreads      int     `yaml:"num_threads"`
	PreferQuantized bool    `yaml:"prefer_quantized"`
	Rule1TrailingMS int     `yaml:"rule1_trailing_silence_ms"`
	Rule2TrailingMS int     `yaml:"rule2_trailing_silence_ms"`
	Rule3MinUttMS   int     `yaml:"rule3_min_utterance_ms"`
	VadThreshold    float64 `yaml:"vad_threshold"`
}

// SessionConfig is the endpoint behavior resolved once per recording session.
type SessionConfig struct {
	AutoStopOnEndpoint  bool    `yaml:"auto_stop_on_endpoint"`
	AutoReset           bool    `yaml:"auto_reset"`
	SilenceThresholdSec float64 `yaml:"silence_threshold_sec"`
	LatencyBudgetMS     int     `yaml:"latency_budget_ms"`
}

type TranscriptStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxSessions   int    `yaml:"max_sessions"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type Config struct {
	RuntimeName string                `yaml:"runtime_name"`
	Environment string                `yaml:"environment"`
	HTTP        HTTPConfig            `yaml:"http"`
	Telemetry   TelemetryConfig       `yaml:"telemetry"`
	Bus         BusConfig             `yaml:"bus"`
	Audio       AudioConfig           `yaml:"audio"`
	Engine      EngineConfig          `yaml:"engine"`
	Session     SessionConfig         `yaml:"session"`
	Transcripts TranscriptStoreConfig `yaml:"transcripts"`
}

func Default() Config {
	return Config{
		RuntimeName: "dicto-runtime",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "127.0.0.1",
			Port: 8320,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPInsecure:   true,
			PrometheusBind: ":9321",
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Audio: AudioConfig{
			SampleRate:      16000,
			FrameDurationMS: 100,
			PrefillMS:       20,
			WarmupOnStart:   true,
		},
		Engine: EngineConfig{
			Type:            "streaming",
			ModelDir:        "./models",
			NumThreads:      2,
			PreferQuantized: true,
			Rule1TrailingMS: 2400,
			Rule2TrailingMS: 1200,
			Rule3MinUttMS:   300,
			VadThreshold:    0.5,
		},
		Session: SessionConfig{
			AutoStopOnEndpoint:  false,
			AutoReset:           true,
			SilenceThresholdSec: 0.8,
			LatencyBudgetMS:     200,
		},
		Transcripts: TranscriptStoreConfig{
			Path:          "./data/dicto-transcripts.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxSessions:   10000,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "DICTO_RUNTIME_NAME")
	overrideString(&cfg.Environment, "DICTO_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "DICTO_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "DICTO_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "DICTO_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "DICTO_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "DICTO_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "DICTO_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Embedded, "DICTO_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "DICTO_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "DICTO_BUS_SERVERS")
	overrideInt(&cfg.Bus.ConnectTimeout, "DICTO_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Audio.DeviceName, "DICTO_AUDIO_DEVICE_NAME")
	overrideInt(&cfg.Audio.SampleRate, "DICTO_AUDIO_SAMPLE_RATE")
	overrideInt(&cfg.Audio.FrameDurationMS, "DICTO_AUDIO_FRAME_DURATION_MS")
	overrideInt(&cfg.Audio.PrefillMS, "DICTO_AUDIO_PREFILL_MS")
	overrideBool(&cfg.Audio.WarmupOnStart, "DICTO_AUDIO_WARMUP_ON_START")
	overrideString(&cfg.Audio.DumpDir, "DICTO_AUDIO_DUMP_DIR")
	overrideString(&cfg.Engine.Type, "DICTO_ENGINE_TYPE")
	overrideString(&cfg.Engine.ModelDir, "DICTO_ENGINE_MODEL_DIR")
	overrideString(&cfg.Engine.VadModelPath, "DICTO_ENGINE_VAD_MODEL_PATH")
	overrideInt(&cfg.Engine.NumThreads, "DICTO_ENGINE_NUM_THREADS")
	overrideBool(&cfg.Engine.PreferQuantized, "DICTO_ENGINE_PREFER_QUANTIZED")
	overrideInt(&cfg.Engine.Rule1TrailingMS, "DICTO_ENGINE_RULE1_TRAILING_SILENCE_MS")
	overrideInt(&cfg.Engine.Rule2TrailingMS, "DICTO_ENGINE_RULE2_TRAILING_SILENCE_MS")
	overrideInt(&cfg.Engine.Rule3MinUttMS, "DICTO_ENGINE_RULE3_MIN_UTTERANCE_MS")
	overrideFloat(&cfg.Engine.VadThreshold, "DICTO_ENGINE_VAD_THRESHOLD")
	overrideBool(&cfg.Session.AutoStopOnEndpoint, "DICTO_SESSION_AUTO_STOP_ON_ENDPOINT")
	overrideBool(&cfg.Session.AutoReset, "DICTO_SESSION_AUTO_RESET")
	overrideFloat(&cfg.Session.SilenceThresholdSec, "DICTO_SESSION_SILENCE_THRESHOLD_SEC")
	overrideInt(&cfg.Session.LatencyBudgetMS, "DICTO_SESSION_LATENCY_BUDGET_MS")
	overrideString(&cfg.Transcripts.Path, "DICTO_TRANSCRIPTS_PATH")
	overrideString(&cfg.Transcripts.RetentionMode, "DICTO_TRANSCRIPTS_RETENTION_MODE")
	overrideInt(&cfg.Transcripts.RetentionDays, "DICTO_TRANSCRIPTS_RETENTION_DAYS")
	overrideInt(&cfg.Transcripts.MaxSessions, "DICTO_TRANSCRIPTS_MAX_SESSIONS")
	overrideBool(&cfg.Transcripts.VacuumOnStart, "DICTO_TRANSCRIPTS_VACUUM_ON_START")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else if len(cfg.Bus.Servers) == 0 {
		return errors.New("bus.servers must not be empty when embedded mode is disabled")
	}
	if cfg.Audio.SampleRate <= 0 {
		return errors.New("audio.sample_rate must be positive")
	}
	if cfg.Audio.FrameDurationMS <= 0 {
		return errors.New("audio.frame_duration_ms must be positive")
	}
	if cfg.Audio.PrefillMS < 0 || cfg.Audio.PrefillMS > cfg.Audio.FrameDurationMS {
		return errors.New("audio.prefill_ms must be between 0 and audio.frame_duration_ms")
	}
	switch cfg.Engine.Type {
	case "streaming", "offline":
	default:
		return errors.New("engine.type must be one of streaming|offline")
	}
	if cfg.Engine.ModelDir == "" {
		return errors.New("engine.model_dir must not be empty")
	}
	if cfg.Engine.NumThreads <= 0 {
		return errors.New("engine.num_threads must be >= 1")
	}
	if cfg.Engine.VadThreshold < 0 || cfg.Engine.VadThreshold > 1 {
		return errors.New("engine.vad_threshold must be between 0 and 1")
	}
	if cfg.Session.AutoStopOnEndpoint && cfg.Session.AutoReset {
		return errors.New("session.auto_stop_on_endpoint and session.auto_reset are mutually exclusive")
	}
	if cfg.Session.SilenceThresholdSec <= 0 {
		return errors.New("session.silence_threshold_sec must be positive")
	}
	if cfg.Session.LatencyBudgetMS <= 0 {
		return errors.New("session.latency_budget_ms must be positive")
	}
	if cfg.Transcripts.Path == "" {
		return errors.New("transcripts.path must not be empty")
	}
	switch cfg.Transcripts.RetentionMode {
	case "ephemeral", "session", "persistent":
	default:
		return errors.New("transcripts.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.Transcripts.RetentionDays < 0 {
		return errors.New("transcripts.retention_days must be >= 0")
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	return nil
}
