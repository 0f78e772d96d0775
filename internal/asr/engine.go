package asr

import (
	"errors"

	"github.com/dictolabs/dicto-core/internal/config"
)

// Type identifies an engine variant.
type Type string

const (
	TypeStreaming Type = "streaming"
	TypeOffline   Type = "offline"
)

// Other returns the alternate variant, used for initializer fallback.
func (t Type) Other() Type {
	if t == TypeStreaming {
		return TypeOffline
	}
	return TypeStreaming
}

// Result is the immutable output of one decode cycle. It is superseded by the
// next decode, never mutated in place.
type Result struct {
	Text       string
	Tokens     []string
	Timestamps []float32
}

// Engine is the shared contract across recognition variants. AcceptWaveform
// is zero-copy: the callee must not retain the samples slice past its own
// synchronous execution.
type Engine interface {
	Initialize(cfg config.EngineConfig) error
	AcceptWaveform(sampleRate int, samples []float32)
	Decode()
	IsReady() bool
	Result() Result
	IsEndpoint() bool
	// Reset clears decode state while keeping the loaded model.
	Reset()
	// InputFinished signals end-of-utterance so the final decode can flush.
	InputFinished()
	Dispose()
}

// Engine error taxonomy. Each condition maps to a distinct remediation at the
// consuming layer (redownload the model, fix the config, retry).
var (
	ErrModelNotFound     = errors.New("asr: model directory not found")
	ErrModelFileMissing  = errors.New("asr: required model file missing")
	ErrRecognizerCreate  = errors.New("asr: recognizer creation failed")
	ErrStreamCreate      = errors.New("asr: stream creation failed")
	ErrNotInitialized    = errors.New("asr: engine not initialized")
	ErrVadInit           = errors.New("asr: voice activity detector init failed")
	ErrInvalidConfig     = errors.New("asr: invalid engine config")
	ErrNoEngineAvailable = errors.New("asr: no engine available")
)
