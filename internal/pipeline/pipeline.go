package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dictolabs/dicto-core/internal/asr"
	"github.com/dictolabs/dicto-core/internal/audio"
	"github.com/dictolabs/dicto-core/internal/config"
)

// Pipeline error taxonomy. Each failure mode carries its own remediation:
// fix the audio device, fetch the model files, or inspect the recognizer
// configuration.
var (
	ErrAudioInit        = errors.New("pipeline: audio capture init failed")
	ErrModelNotReady    = errors.New("pipeline: model assets not ready")
	ErrRecognizerFailed = errors.New("pipeline: recognizer init failed")
	ErrNotIdle          = errors.New("pipeline: already running")
	ErrDisposed         = errors.New("pipeline: disposed")
)

const (
	// stopPollBudget bounds how long Stop waits for the capture loop to
	// observe the stop flag before proceeding without it.
	stopPollBudget = 300 * time.Millisecond
	// readBackoff is the pause after a transient read failure, keeping the
	// loop responsive to the stop flag without spinning.
	readBackoff = 10 * time.Millisecond
)

// Source is the capture dependency. audio.Capture satisfies it; tests
// substitute scripted fakes.
type Source interface {
	Warmup(deviceName string) error
	Start(deviceName string) error
	Read(dst []float32) (int, error)
	Buffer() []float32
	Stop() error
	Dispose()
	FellBack() bool
	DeviceName() string
}

// Provider constructs an initialized engine, handling variant fallback.
// asr.Initializer satisfies it.
type Provider interface {
	Initialize(preferred asr.Type) (asr.InitResult, error)
}

// session is the loop-local state of one recording. Fields are written only
// by the capture loop goroutine before done is closed; Stop reads them only
// after observing the close.
type session struct {
	id        string
	engine    asr.Engine
	done      chan struct{}
	startedAt time.Time
	dumper    *audio.Dumper

	finalText       string
	finalized       bool
	endpointEmitted bool
	deviceLost      bool
	selfStop        bool
	panicked        bool
}

// Pipeline couples one capture source with one recognition engine and runs
// the read → accept → decode → emit cycle on a detached goroutine. All
// lifecycle operations are serialized by an internal mutex; event channels
// survive engine swaps.
type Pipeline struct {
	cfg      config.Config
	capture  Source
	provider Provider
	catalog  asr.Catalog
	log      *slog.Logger
	metrics  *pipelineMetrics

	mu         sync.Mutex
	state      atomic.Int32
	stopFlag   atomic.Bool
	engine     asr.Engine
	engineType asr.Type
	sess       *session
	stats      *latencyStats
	lastFinal  string
	disposed   bool

	results   chan ResultEvent
	endpoints chan EndpointEvent
	states    chan StateEvent
}

func New(cfg config.Config, capture Source, provider Provider, catalog asr.Catalog, log *slog.Logger) *Pipeline {
	p := &Pipeline{
		cfg:       cfg,
		capture:   capture,
		provider:  provider,
		catalog:   catalog,
		log:       log.With(slog.String("component", "pipeline")),
		stats:     newLatencyStats(time.Duration(cfg.Session.LatencyBudgetMS) * time.Millisecond),
		results:   make(chan ResultEvent, 64),
		endpoints: make(chan EndpointEvent, 8),
		states:    make(chan StateEvent, 16),
	}
	metrics, err := newPipelineMetrics()
	if err != nil {
		p.log.Warn("pipeline metrics unavailable", slog.String("error", err.Error()))
	} else {
		p.metrics = metrics
	}
	return p
}

// Results streams incremental transcription updates.
func (p *Pipeline) Results() <-chan ResultEvent { return p.results }

// Endpoints streams utterance and session boundary events.
func (p *Pipeline) Endpoints() <-chan EndpointEvent { return p.endpoints }

// States streams lifecycle transitions.
func (p *Pipeline) States() <-chan StateEvent { return p.states }

// State reports the current lifecycle position without blocking.
func (p *Pipeline) State() State { return State(p.state.Load()) }

// EngineType reports the variant actually selected by the last
// initialization, which may differ from the configured preference.
func (p *Pipeline) EngineType() asr.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.engineType
}

// LatencyStats snapshots the per-frame latency distribution of the current
// or just-finished session.
func (p *Pipeline) LatencyStats() LatencySnapshot { return p.stats.snapshot() }

// Warmup pre-opens the capture stream so the first Start avoids paying
// native device initialization cost.
func (p *Pipeline) Warmup() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disposed {
		return ErrDisposed
	}
	return p.capture.Warmup(p.cfg.Audio.DeviceName)
}

// Start transitions idle → initializing → running: verifies model assets,
// initializes the engine (reusing one kept loaded from a previous session),
// starts capture, and launches the detached loop.
func (p *Pipeline) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disposed {
		return ErrDisposed
	}
	if p.State() != StateIdle {
		return fmt.Errorf("%w: state %s", ErrNotIdle, p.State())
	}
	p.setState(StateInitializing, "", "")

	if p.engine == nil {
		preferred := asr.Type(p.cfg.Engine.Type)
		if p.catalog != nil && !p.catalog.EngineReady(preferred) && !p.catalog.EngineReady(preferred.Other()) {
			reason := p.catalog.MissingAsset(preferred)
			p.setState(StateIdle, "", reason)
			return fmt.Errorf("%w: %s", ErrModelNotReady, reason)
		}
		res, err := p.provider.Initialize(preferred)
		if err != nil {
			p.setState(StateIdle, "", err.Error())
			return fmt.Errorf("%w: %v", ErrRecognizerFailed, err)
		}
		p.engine = res.Engine
		p.engineType = res.ActualType
		if res.FallbackOccurred {
			p.log.Warn("engine fallback in effect",
				slog.String("actual", string(res.ActualType)),
				slog.String("reason", res.Reason))
		}
	}

	if err := p.capture.Start(p.cfg.Audio.DeviceName); err != nil {
		p.setState(StateIdle, "", err.Error())
		return fmt.Errorf("%w: %v", ErrAudioInit, err)
	}

	sess := &session{
		id:        uuid.NewString(),
		engine:    p.engine,
		done:      make(chan struct{}),
		startedAt: time.Now(),
	}
	if dir := p.cfg.Audio.DumpDir; dir != "" {
		dumper, err := audio.NewDumper(dir, p.cfg.Audio.SampleRate)
		if err != nil {
			p.log.Warn("audio dump disabled", slog.String("error", err.Error()))
		} else {
			sess.dumper = dumper
		}
	}

	p.stats.reset()
	p.stopFlag.Store(false)
	p.sess = sess
	p.setState(StateRunning, sess.id, "")
	p.log.Info("session started",
		slog.String("session_id", sess.id),
		slog.String("engine", string(p.engineType)),
		slog.String("device", p.capture.DeviceName()))

	go p.run(sess)
	return nil
}

// Stop transitions running → stopping → idle: flags the loop, waits for it
// within a bounded budget, finalizes the engine, and emits the manual-stop
// endpoint event unless the loop already emitted one for this session. It
// returns the session's final text; when already idle it is a no-op that
// returns the previously emitted final text.
func (p *Pipeline) Stop() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopLocked()
}

func (p *Pipeline) stopLocked() (string, error) {
	if p.State() != StateRunning || p.sess == nil {
		return p.lastFinal, nil
	}
	s := p.sess
	p.setState(StateStopping, s.id, "")
	p.stopFlag.Store(true)

	wedged := false
	select {
	case <-s.done:
	case <-time.After(stopPollBudget):
		wedged = true
		p.log.Warn("capture loop did not exit within stop budget",
			slog.String("session_id", s.id),
			slog.Duration("budget", stopPollBudget))
	}

	final := p.lastFinal
	deviceLost, panicked := false, false
	if !wedged {
		deviceLost, panicked = s.deviceLost, s.panicked
		if !s.finalized && !s.panicked {
			finalizeEngine(s.engine, p.log)
		}
		if text := strings.TrimSpace(s.engine.Result().Text); text != "" {
			final = text
		} else if s.finalText != "" {
			final = s.finalText
		}
		if !s.endpointEmitted {
			p.emitEndpoint(EndpointEvent{
				SessionID: s.id,
				FinalText: final,
				Duration:  time.Since(s.startedAt),
				Latency:   p.stats.snapshot(),
			})
		}
		s.engine.Reset()
	}

	if err := p.capture.Stop(); err != nil {
		p.log.Warn("capture stop failed", slog.String("error", err.Error()))
	}
	if s.dumper != nil {
		if err := s.dumper.Close(); err != nil {
			p.log.Warn("audio dump close failed", slog.String("error", err.Error()))
		}
	}

	snap := p.stats.snapshot()
	p.log.Info("session stopped",
		slog.String("session_id", s.id),
		slog.Int("frames", snap.Count),
		slog.Duration("avg_latency", snap.Avg),
		slog.Duration("max_latency", snap.Max),
		slog.Int("over_budget", snap.OverBudget),
		slog.Bool("device_lost", deviceLost))

	p.lastFinal = final
	p.sess = nil
	reason := ""
	if deviceLost {
		reason = "device lost"
	} else if panicked {
		reason = "forced stop after loop panic"
	}
	p.setState(StateIdle, s.id, reason)
	return final, nil
}

// SwapEngine replaces the recognition engine, stopping any in-flight session
// first. Event channels and their consumers are unaffected.
func (p *Pipeline) SwapEngine(preferred asr.Type) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disposed {
		return ErrDisposed
	}
	if p.State() == StateRunning {
		if _, err := p.stopLocked(); err != nil {
			return err
		}
	}
	if p.engine != nil {
		p.engine.Dispose()
		p.engine = nil
		p.engineType = ""
	}
	res, err := p.provider.Initialize(preferred)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRecognizerFailed, err)
	}
	p.engine = res.Engine
	p.engineType = res.ActualType
	p.log.Info("engine swapped",
		slog.String("engine", string(res.ActualType)),
		slog.Bool("fallback", res.FallbackOccurred))
	return nil
}

// Dispose stops any session, releases engine and capture resources, and
// closes the event channels. The pipeline is unusable afterwards.
func (p *Pipeline) Dispose() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disposed {
		return
	}
	if p.State() == StateRunning {
		if _, err := p.stopLocked(); err != nil {
			p.log.Warn("stop during dispose failed", slog.String("error", err.Error()))
		}
	}
	if p.engine != nil {
		p.engine.Dispose()
		p.engine = nil
	}
	p.capture.Dispose()
	p.disposed = true
	p.setState(StateIdle, "", "disposed")
	close(p.results)
	close(p.endpoints)
	close(p.states)
}

// run is the detached capture loop. It owns the engine for the duration of
// the session; no other goroutine touches the engine until done is closed.
func (p *Pipeline) run(s *session) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("capture loop panic, forcing stop",
				slog.String("session_id", s.id),
				slog.Any("panic", r))
			s.panicked = true
			s.selfStop = true
		}
		close(s.done)
		if s.selfStop {
			go func() { _, _ = p.Stop() }()
		}
	}()

	frame := p.capture.Buffer()
	rate := p.cfg.Audio.SampleRate
	lastText := ""
	utterStart := time.Now()

	for {
		if p.stopFlag.Load() {
			return
		}
		t0 := time.Now()
		n, err := p.capture.Read(frame)
		if err != nil {
			if errors.Is(err, audio.ErrDeviceUnavailable) || errors.Is(err, audio.ErrDisposed) {
				p.finalizeDeviceLoss(s, lastText, utterStart)
				s.selfStop = true
				return
			}
			p.log.Warn("transient read failure", slog.String("error", err.Error()))
			time.Sleep(readBackoff)
			continue
		}
		if s.dumper != nil {
			if werr := s.dumper.Write(frame[:n]); werr != nil {
				p.log.Warn("audio dump write failed", slog.String("error", werr.Error()))
				s.dumper = nil
			}
		}

		s.engine.AcceptWaveform(rate, frame[:n])
		for s.engine.IsReady() {
			if p.stopFlag.Load() {
				return
			}
			s.engine.Decode()
		}

		elapsed := time.Since(t0)
		p.stats.record(elapsed)
		p.metrics.recordFrame(elapsed)

		if text := s.engine.Result().Text; text != "" && text != lastText {
			lastText = text
			p.emitResult(ResultEvent{SessionID: s.id, Text: text, Latency: elapsed})
		}

		if s.engine.IsEndpoint() {
			p.metrics.recordEndpoint()
			switch {
			case p.cfg.Session.AutoStopOnEndpoint:
				p.finalizeVadStop(s, utterStart)
				s.selfStop = true
				return
			case p.cfg.Session.AutoReset:
				p.emitEndpoint(EndpointEvent{
					SessionID:    s.id,
					FinalText:    lastText,
					VadTriggered: true,
					Duration:     time.Since(utterStart),
					Latency:      p.stats.snapshot(),
				})
				s.engine.Reset()
				lastText = ""
				utterStart = time.Now()
			default:
				// Accumulate: the endpoint is informational, decoding
				// continues into the same growing transcript.
			}
		}
	}
}

// finalizeVadStop flushes the engine and emits the session-ending endpoint
// event for an automatic stop.
func (p *Pipeline) finalizeVadStop(s *session, utterStart time.Time) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("endpoint finalization panic", slog.Any("panic", r))
			s.panicked = true
		}
	}()
	finalizeEngine(s.engine, p.log)
	s.finalized = true
	s.finalText = strings.TrimSpace(s.engine.Result().Text)
	s.endpointEmitted = true
	p.emitEndpoint(EndpointEvent{
		SessionID:    s.id,
		FinalText:    s.finalText,
		VadTriggered: true,
		Duration:     time.Since(utterStart),
		Latency:      p.stats.snapshot(),
	})
}

// finalizeDeviceLoss salvages whatever the engine has decoded when the
// device disappears mid-session, then emits the flagged endpoint event.
func (p *Pipeline) finalizeDeviceLoss(s *session, lastText string, utterStart time.Time) {
	p.metrics.recordDeviceLoss()
	p.log.Warn("capture device lost, finalizing session", slog.String("session_id", s.id))

	final := lastText
	func() {
		defer func() {
			if r := recover(); r != nil {
				p.log.Error("device loss finalization panic", slog.Any("panic", r))
			}
		}()
		finalizeEngine(s.engine, p.log)
		if text := strings.TrimSpace(s.engine.Result().Text); text != "" {
			final = text
		}
	}()

	s.deviceLost = true
	s.finalized = true
	s.finalText = final
	s.endpointEmitted = true
	p.emitEndpoint(EndpointEvent{
		SessionID:  s.id,
		FinalText:  final,
		DeviceLost: true,
		Duration:   time.Since(utterStart),
		Latency:    p.stats.snapshot(),
	})
}

func finalizeEngine(engine asr.Engine, log *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("engine finalization panic", slog.Any("panic", r))
		}
	}()
	engine.InputFinished()
	for engine.IsReady() {
		engine.Decode()
	}
}

func (p *Pipeline) setState(st State, sessionID, reason string) {
	p.state.Store(int32(st))
	select {
	case p.states <- StateEvent{SessionID: sessionID, State: st, Reason: reason}:
	default:
		p.log.Warn("state channel full, dropping event", slog.String("state", st.String()))
	}
}

func (p *Pipeline) emitResult(ev ResultEvent) {
	p.metrics.recordResult()
	select {
	case p.results <- ev:
	default:
		p.log.Warn("result channel full, dropping event")
	}
}

func (p *Pipeline) emitEndpoint(ev EndpointEvent) {
	select {
	case p.endpoints <- ev:
	default:
		p.log.Warn("endpoint channel full, dropping event")
	}
}
