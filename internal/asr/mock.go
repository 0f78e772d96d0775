package asr

import (
	"strings"
	"sync"
	"time"

	"github.com/dictolabs/dicto-core/internal/config"
)

// MockEngine is a scripted engine for pipeline tests: it advances through a
// text script one decode at a time with a deterministic decode latency, and
// exposes counters for the lifecycle calls the pipeline must (and must not)
// make.
type MockEngine struct {
	mu sync.Mutex

	// Script entries are appended to the accumulated text, one per
	// AcceptWaveform, in order. An empty entry produces no text change.
	Script []string
	// DecodeLatency is slept inside Decode to simulate inference cost.
	DecodeLatency time.Duration
	// EndpointAfter, when > 0, raises an endpoint signal after that many
	// accepted frames.
	EndpointAfter int
	// InitErr, when set, is returned by Initialize.
	InitErr error

	scriptIdx int
	accepts   int
	pending   int
	words     []string
	endpoint  bool
	finished  bool

	initialized        bool
	InputFinishedCalls int
	ResetCalls         int
	DisposeCalls       int
}

func NewMockEngine(script ...string) *MockEngine {
	return &MockEngine{Script: script}
}

func (m *MockEngine) Initialize(config.EngineConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.InitErr != nil {
		return m.InitErr
	}
	m.initialized = true
	return nil
}

func (m *MockEngine) AcceptWaveform(_ int, samples []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.initialized || m.finished {
		return
	}
	m.accepts++
	m.pending++
	if m.EndpointAfter > 0 && m.accepts%m.EndpointAfter == 0 {
		m.endpoint = true
	}
}

func (m *MockEngine) Decode() {
	m.mu.Lock()
	if m.pending == 0 {
		m.mu.Unlock()
		return
	}
	m.pending--
	advance := ""
	if m.scriptIdx < len(m.Script) {
		advance = m.Script[m.scriptIdx]
		m.scriptIdx++
	}
	if advance != "" {
		m.words = append(m.words, advance)
	}
	delay := m.DecodeLatency
	m.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
}

func (m *MockEngine) IsReady() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending > 0
}

func (m *MockEngine) Result() Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Result{Text: strings.Join(m.words, " ")}
}

func (m *MockEngine) IsEndpoint() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.endpoint {
		return false
	}
	m.endpoint = false
	return true
}

func (m *MockEngine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ResetCalls++
	m.words = nil
	m.pending = 0
	m.endpoint = false
	m.finished = false
}

func (m *MockEngine) InputFinished() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.InputFinishedCalls++
	m.finished = true
}

func (m *MockEngine) Dispose() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DisposeCalls++
	m.initialized = false
}
