package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dictolabs/dicto-core/internal/asr"
	"github.com/dictolabs/dicto-core/internal/audio"
	"github.com/dictolabs/dicto-core/internal/bus"
	"github.com/dictolabs/dicto-core/internal/config"
	"github.com/dictolabs/dicto-core/internal/natsserver"
	"github.com/dictolabs/dicto-core/internal/pipeline"
	"github.com/dictolabs/dicto-core/internal/protocol"
	"github.com/dictolabs/dicto-core/internal/transcript"
)

// restartPoll is how often the supervisor checks for an idle pipeline worth
// restarting (after device loss or an endpoint-triggered stop).
const restartPoll = 2 * time.Second

// Runtime owns the daemon lifecycle: telemetry, the event bus, the
// transcript store, the capture pipeline, and the health HTTP surface.
type Runtime struct {
	cfg            config.Config
	logger         *slog.Logger
	httpServer     *http.Server
	telemetryClose func(context.Context) error
	ready          atomic.Bool
	wg             sync.WaitGroup

	pipe     *pipeline.Pipeline
	busConn  *bus.Client
	embedded *natsserver.EmbeddedServer
	store    *transcript.Store
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

// Start brings every component up, runs until ctx is cancelled, then tears
// everything down in reverse order.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.telemetryClose = shutdownTelemetry

	embedded, err := natsserver.Start(r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("start embedded bus: %w", err)
	}
	r.embedded = embedded

	busConn, err := bus.Connect(r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("connect event bus: %w", err)
	}
	r.busConn = busConn

	store, err := transcript.Open(ctx, r.cfg.Transcripts, r.logger)
	if err != nil {
		return fmt.Errorf("open transcript store: %w", err)
	}
	r.store = store

	capture := audio.NewCapture(r.cfg.Audio, audio.NewPortAudioHost(), r.logger)
	catalog := asr.NewDirCatalog(r.cfg.Engine, r.logger)
	initializer := asr.NewInitializer(r.cfg.Engine, catalog, r.engineFactory(), r.logger)
	r.pipe = pipeline.New(r.cfg, capture, initializer, catalog, r.logger)

	if r.cfg.Audio.WarmupOnStart {
		if err := r.pipe.Warmup(); err != nil {
			r.logger.Warn("capture warmup failed", slog.String("error", err.Error()))
		}
	}

	r.wg.Add(2)
	go r.pumpFeeds(ctx)
	go r.supervise(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started", slog.String("addr", addr))

	<-ctx.Done()
	r.logger.Info("runtime stopping")
	r.ready.Store(false)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	r.wg.Wait()

	r.pipe.Dispose()
	if err := r.store.Close(); err != nil {
		r.logger.Error("transcript store close error", slog.String("error", err.Error()))
	}
	r.busConn.Close()
	r.embedded.Shutdown()

	if r.telemetryClose != nil {
		if err := r.telemetryClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

func (r *Runtime) engineFactory() asr.Factory {
	return func(t asr.Type) asr.Engine {
		switch t {
		case asr.TypeOffline:
			return asr.NewOfflineVadEngine(r.cfg.Audio.SampleRate, r.cfg.Session.SilenceThresholdSec, r.logger)
		default:
			return asr.NewStreamingEngine(r.cfg.Audio.SampleRate, r.logger)
		}
	}
}

// supervise keeps a dictation session alive: it starts the first session and
// restarts after any return to idle, which covers both endpoint-triggered
// stops and device loss once the device comes back.
func (r *Runtime) supervise(ctx context.Context) {
	defer r.wg.Done()

	if err := r.pipe.Start(); err != nil {
		r.logger.Error("initial session start failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(restartPoll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if _, err := r.pipe.Stop(); err != nil {
				r.logger.Warn("final stop failed", slog.String("error", err.Error()))
			}
			return
		case <-ticker.C:
			if r.pipe.State() != pipeline.StateIdle {
				continue
			}
			if err := r.pipe.Start(); err != nil {
				r.logger.Warn("session restart failed", slog.String("error", err.Error()))
			}
		}
	}
}

// pumpFeeds fans pipeline events out to the bus subjects and the transcript
// store. Publishing is best-effort; a bus hiccup never stalls recognition.
func (r *Runtime) pumpFeeds(ctx context.Context) {
	defer r.wg.Done()

	var lastEndpoint *pipeline.EndpointEvent

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-r.pipe.Results():
			if !ok {
				return
			}
			msg := protocol.Result{
				SessionID: ev.SessionID,
				Text:      ev.Text,
				LatencyMS: float64(ev.Latency) / float64(time.Millisecond),
				Timestamp: time.Now().UTC(),
			}
			if err := r.busConn.PublishJSON(protocol.SubjectResult, msg); err != nil {
				r.logger.Warn("result publish failed", slog.String("error", err.Error()))
			}

		case ev, ok := <-r.pipe.Endpoints():
			if !ok {
				return
			}
			lastEndpoint = &ev
			msg := protocol.Endpoint{
				SessionID:    ev.SessionID,
				FinalText:    ev.FinalText,
				VadTriggered: ev.VadTriggered,
				DeviceLost:   ev.DeviceLost,
				DurationMS:   float64(ev.Duration) / float64(time.Millisecond),
				Latency:      latencyStats(ev.Latency),
				Timestamp:    time.Now().UTC(),
			}
			if err := r.busConn.PublishJSON(protocol.SubjectEndpoint, msg); err != nil {
				r.logger.Warn("endpoint publish failed", slog.String("error", err.Error()))
			}
			if ev.FinalText != "" {
				err := r.store.AppendUtterance(ctx, transcript.Utterance{
					SessionID:    ev.SessionID,
					Text:         ev.FinalText,
					VadTriggered: ev.VadTriggered,
					DurationMS:   float64(ev.Duration) / float64(time.Millisecond),
				})
				if err != nil {
					r.logger.Warn("utterance persist failed", slog.String("error", err.Error()))
				}
			}

		case ev, ok := <-r.pipe.States():
			if !ok {
				return
			}
			msg := protocol.StateChange{
				SessionID: ev.SessionID,
				State:     ev.State.String(),
				Reason:    ev.Reason,
				Timestamp: time.Now().UTC(),
			}
			if err := r.busConn.PublishJSON(protocol.SubjectState, msg); err != nil {
				r.logger.Warn("state publish failed", slog.String("error", err.Error()))
			}

			switch ev.State {
			case pipeline.StateRunning:
				err := r.store.BeginSession(ctx, ev.SessionID, string(r.pipe.EngineType()), r.cfg.Audio.DeviceName)
				if err != nil {
					r.logger.Warn("session persist failed", slog.String("error", err.Error()))
				}
			case pipeline.StateIdle:
				if lastEndpoint != nil && lastEndpoint.SessionID == ev.SessionID {
					err := r.store.EndSession(ctx, ev.SessionID, lastEndpoint.FinalText, lastEndpoint.DeviceLost)
					if err != nil {
						r.logger.Warn("session close persist failed", slog.String("error", err.Error()))
					}
					lastEndpoint = nil
				}
			}
		}
	}
}

func latencyStats(snap pipeline.LatencySnapshot) protocol.LatencyStats {
	return protocol.LatencyStats{
		Frames:     snap.Count,
		AvgMS:      float64(snap.Avg) / float64(time.Millisecond),
		MaxMS:      float64(snap.Max) / float64(time.Millisecond),
		OverBudget: snap.OverBudget,
		BudgetMS:   float64(snap.Budget) / float64(time.Millisecond),
	}
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() && r.busConn.Healthy() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
