package asr

import (
	"fmt"
	"log/slog"
	"strings"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"

	"github.com/dictolabs/dicto-core/internal/config"
)

// OfflineVadEngine pairs a single acoustic model with an independent voice
// activity detector. It yields no true partial stream: text appears only when
// the VAD confirms an utterance boundary and the buffered segment is decoded.
type OfflineVadEngine struct {
	log        *slog.Logger
	sampleRate int
	silenceSec float64

	recognizer *sherpa.OfflineRecognizer
	vad        *sherpa.VoiceActivityDetector

	segments        []string
	lastTokens      []string
	lastTimestamps  []float32
	endpointPending bool
}

func NewOfflineVadEngine(sampleRate int, silenceSec float64, log *slog.Logger) *OfflineVadEngine {
	return &OfflineVadEngine{
		log:        log.With(slog.String("component", "offline-vad-engine")),
		sampleRate: sampleRate,
		silenceSec: silenceSec,
	}
}

func (e *OfflineVadEngine) Initialize(cfg config.EngineConfig) error {
	if cfg.NumThreads <= 0 {
		return fmt.Errorf("%w: num_threads must be >= 1", ErrInvalidConfig)
	}
	if cfg.VadModelPath == "" {
		return fmt.Errorf("%w: vad_model_path must be set for the offline engine", ErrInvalidConfig)
	}

	artifacts, err := resolveOfflineArtifacts(cfg.ModelDir, cfg.PreferQuantized, e.log)
	if err != nil {
		return err
	}

	recognizerConfig := sherpa.OfflineRecognizerConfig{
		FeatConfig: sherpa.FeatureConfig{SampleRate: e.sampleRate, FeatureDim: 80},
		ModelConfig: sherpa.OfflineModelConfig{
			Paraformer: sherpa.OfflineParaformerModelConfig{Model: artifacts.Model},
			Tokens:     artifacts.Tokens,
			NumThreads: cfg.NumThreads,
			Provider:   "cpu",
			ModelType:  "paraformer",
		},
		DecodingMethod: "greedy_search",
	}
	recognizer := sherpa.NewOfflineRecognizer(&recognizerConfig)
	if recognizer == nil {
		return fmt.Errorf("%w: offline recognizer from %s", ErrRecognizerCreate, cfg.ModelDir)
	}

	vadConfig := sherpa.VadModelConfig{
		SileroVad: sherpa.SileroVadModelConfig{
			Model:              cfg.VadModelPath,
			Threshold:          float32(cfg.VadThreshold),
			MinSilenceDuration: float32(e.silenceSec),
			MinSpeechDuration:  0.25,
			WindowSize:         512,
		},
		SampleRate: e.sampleRate,
		NumThreads: 1,
	}
	// Hold up to 60s of audio between endpoint confirmations.
	vad := sherpa.NewVoiceActivityDetector(&vadConfig, 60)
	if vad == nil {
		sherpa.DeleteOfflineRecognizer(recognizer)
		return fmt.Errorf("%w: %s", ErrVadInit, cfg.VadModelPath)
	}

	e.recognizer = recognizer
	e.vad = vad
	e.log.Info("offline engine initialized",
		slog.String("model", artifacts.Model),
		slog.String("vad_model", cfg.VadModelPath))
	return nil
}

func (e *OfflineVadEngine) AcceptWaveform(sampleRate int, samples []float32) {
	if e.vad == nil {
		return
	}
	// The VAD copies into its own circular buffer; the caller's frame is not
	// retained.
	e.vad.AcceptWaveform(samples)
}

// Decode drains one VAD-confirmed segment through the offline recognizer.
func (e *OfflineVadEngine) Decode() {
	if e.recognizer == nil || e.vad == nil || e.vad.IsEmpty() {
		return
	}
	segment := e.vad.Front()
	e.vad.Pop()
	if segment == nil || len(segment.Samples) == 0 {
		return
	}

	stream := sherpa.NewOfflineStream(e.recognizer)
	if stream == nil {
		e.log.Warn("offline stream creation failed, dropping segment")
		return
	}
	defer sherpa.DeleteOfflineStream(stream)

	stream.AcceptWaveform(e.sampleRate, segment.Samples)
	e.recognizer.Decode(stream)
	result := stream.GetResult()
	if result == nil {
		return
	}
	if text := strings.TrimSpace(result.Text); text != "" {
		e.segments = append(e.segments, text)
	}
	e.lastTokens = result.Tokens
	e.lastTimestamps = result.Timestamps
	e.endpointPending = true
}

func (e *OfflineVadEngine) IsReady() bool {
	return e.vad != nil && !e.vad.IsEmpty()
}

func (e *OfflineVadEngine) Result() Result {
	return Result{
		Text:       strings.Join(e.segments, " "),
		Tokens:     e.lastTokens,
		Timestamps: e.lastTimestamps,
	}
}

// IsEndpoint reports a confirmed utterance boundary exactly once per
// boundary.
func (e *OfflineVadEngine) IsEndpoint() bool {
	if !e.endpointPending {
		return false
	}
	e.endpointPending = false
	return true
}

func (e *OfflineVadEngine) Reset() {
	e.segments = nil
	e.lastTokens = nil
	e.lastTimestamps = nil
	e.endpointPending = false
	if e.vad != nil {
		e.vad.Reset()
	}
}

// InputFinished flushes whatever audio the VAD is still holding so the final
// drain can decode it.
func (e *OfflineVadEngine) InputFinished() {
	if e.vad == nil {
		return
	}
	e.vad.Flush()
}

func (e *OfflineVadEngine) Dispose() {
	if e.vad != nil {
		sherpa.DeleteVoiceActivityDetector(e.vad)
		e.vad = nil
	}
	if e.recognizer != nil {
		sherpa.DeleteOfflineRecognizer(e.recognizer)
		e.recognizer = nil
	}
}
