package asr

import (
	"fmt"
	"log/slog"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"

	"github.com/dictolabs/dicto-core/internal/config"
)

// StreamingEngine wraps an online transducer recognizer. It produces partial
// results continuously; three endpoint rules (trailing silence before and
// after a decode, minimum utterance length) jointly drive IsEndpoint.
type StreamingEngine struct {
	log        *slog.Logger
	sampleRate int

	recognizer *sherpa.OnlineRecognizer
	stream     *sherpa.OnlineStream
}

func NewStreamingEngine(sampleRate int, log *slog.Logger) *StreamingEngine {
	return &StreamingEngine{
		log:        log.With(slog.String("component", "streaming-engine")),
		sampleRate: sampleRate,
	}
}

func (e *StreamingEngine) Initialize(cfg config.EngineConfig) error {
	if cfg.NumThreads <= 0 {
		return fmt.Errorf("%w: num_threads must be >= 1", ErrInvalidConfig)
	}

	artifacts, err := resolveStreamingArtifacts(cfg.ModelDir, cfg.PreferQuantized, e.log)
	if err != nil {
		return err
	}

	recognizerConfig := sherpa.OnlineRecognizerConfig{
		FeatConfig: sherpa.FeatureConfig{SampleRate: e.sampleRate, FeatureDim: 80},
		ModelConfig: sherpa.OnlineModelConfig{
			Transducer: sherpa.OnlineTransducerModelConfig{
				Encoder: artifacts.Encoder,
				Decoder: artifacts.Decoder,
				Joiner:  artifacts.Joiner,
			},
			Tokens:     artifacts.Tokens,
			NumThreads: cfg.NumThreads,
			Provider:   "cpu",
		},
		DecodingMethod:          "greedy_search",
		MaxActivePaths:          4,
		EnableEndpoint:          1,
		Rule1MinTrailingSilence: float32(cfg.Rule1TrailingMS) / 1000,
		Rule2MinTrailingSilence: float32(cfg.Rule2TrailingMS) / 1000,
		Rule3MinUtteranceLength: float32(cfg.Rule3MinUttMS) / 1000,
	}

	recognizer := sherpa.NewOnlineRecognizer(&recognizerConfig)
	if recognizer == nil {
		return fmt.Errorf("%w: online recognizer from %s", ErrRecognizerCreate, cfg.ModelDir)
	}
	stream := sherpa.NewOnlineStream(recognizer)
	if stream == nil {
		sherpa.DeleteOnlineRecognizer(recognizer)
		return fmt.Errorf("%w: online stream", ErrStreamCreate)
	}

	e.recognizer = recognizer
	e.stream = stream
	e.log.Info("streaming engine initialized",
		slog.String("encoder", artifacts.Encoder),
		slog.Int("num_threads", cfg.NumThreads))
	return nil
}

// AcceptWaveform feeds one frame by reference. The native layer consumes the
// samples synchronously; the slice is not retained.
func (e *StreamingEngine) AcceptWaveform(sampleRate int, samples []float32) {
	if e.stream == nil {
		return
	}
	e.stream.AcceptWaveform(sampleRate, samples)
}

func (e *StreamingEngine) Decode() {
	if e.recognizer == nil {
		return
	}
	e.recognizer.Decode(e.stream)
}

func (e *StreamingEngine) IsReady() bool {
	if e.recognizer == nil {
		return false
	}
	return e.recognizer.IsReady(e.stream)
}

func (e *StreamingEngine) Result() Result {
	if e.recognizer == nil {
		return Result{}
	}
	r := e.recognizer.GetResult(e.stream)
	if r == nil {
		return Result{}
	}
	return Result{Text: r.Text, Tokens: r.Tokens, Timestamps: r.Timestamps}
}

func (e *StreamingEngine) IsEndpoint() bool {
	if e.recognizer == nil {
		return false
	}
	return e.recognizer.IsEndpoint(e.stream)
}

func (e *StreamingEngine) Reset() {
	if e.recognizer == nil {
		return
	}
	e.recognizer.Reset(e.stream)
}

func (e *StreamingEngine) InputFinished() {
	if e.stream == nil {
		return
	}
	e.stream.InputFinished()
}

func (e *StreamingEngine) Dispose() {
	if e.stream != nil {
		sherpa.DeleteOnlineStream(e.stream)
		e.stream = nil
	}
	if e.recognizer != nil {
		sherpa.DeleteOnlineRecognizer(e.recognizer)
		e.recognizer = nil
	}
}
