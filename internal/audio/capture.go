package audio

import (
	"fmt"
	"log/slog"

	"github.com/dictolabs/dicto-core/internal/config"
)

// Capture owns one native input stream and one pinned frame buffer. The frame
// buffer is handed to the recognition engine by reference for the duration of
// a single decode step; it is invalid once Dispose has run.
type Capture struct {
	cfg  config.AudioConfig
	host Host
	log  *slog.Logger

	frame []float32 // pinned per-frame sample buffer
	hold  []float32 // pre-fill holding buffer
	holdN int

	stream   Stream
	device   Device
	fellBack bool

	hostReady bool
	started   bool
	disposed  bool
}

// FrameSamples is the pinned buffer capacity for the configured frame
// duration (1600 samples for 100ms at 16kHz).
func FrameSamples(cfg config.AudioConfig) int {
	return cfg.SampleRate * cfg.FrameDurationMS / 1000
}

func NewCapture(cfg config.AudioConfig, host Host, log *slog.Logger) *Capture {
	return &Capture{
		cfg:   cfg,
		host:  host,
		log:   log.With(slog.String("component", "audio-capture")),
		frame: make([]float32, FrameSamples(cfg)),
	}
}

// Buffer returns the pinned frame buffer. The slice is owned by Capture; a
// consumer may read it only between a Read call and the next one.
func (c *Capture) Buffer() []float32 {
	return c.frame
}

// FellBack reports whether the last Start resolved to a device other than the
// requested one.
func (c *Capture) FellBack() bool {
	return c.fellBack
}

// DeviceName returns the name of the device selected by the last Start.
func (c *Capture) DeviceName() string {
	return c.device.Name
}

// Warmup opens and immediately stops the stream so native initialization cost
// is paid before the first Start. Idempotent.
func (c *Capture) Warmup(deviceName string) error {
	if c.disposed {
		return ErrDisposed
	}
	if c.stream != nil {
		return nil
	}
	if err := c.open(deviceName); err != nil {
		return err
	}
	if err := c.stream.Start(); err != nil {
		return err
	}
	if err := c.stream.Stop(); err != nil {
		c.log.Warn("warmup stop failed", slog.String("error", err.Error()))
	}
	c.log.Debug("capture warmed up", slog.String("device", c.device.Name))
	return nil
}

// Start opens (or reuses) the stream for the resolved device and issues a
// short pre-fill read so the caller's first Read returns instantly.
func (c *Capture) Start(deviceName string) error {
	if c.disposed {
		return ErrDisposed
	}
	if c.started {
		return nil
	}
	if c.stream == nil || (deviceName != "" && deviceName != c.device.Name) {
		c.closeStream()
		if err := c.open(deviceName); err != nil {
			return err
		}
	}
	if err := c.stream.Start(); err != nil {
		return err
	}
	c.started = true
	c.holdN = 0

	if prefill := c.cfg.SampleRate * c.cfg.PrefillMS / 1000; prefill > 0 {
		if c.hold == nil || len(c.hold) < prefill {
			c.hold = make([]float32, prefill)
		}
		if err := c.stream.Read(c.hold[:prefill]); err != nil {
			// Pre-fill is an optimization; a failure here surfaces on the
			// first real Read with proper classification.
			c.log.Warn("prefill read failed", slog.String("error", err.Error()))
		} else {
			c.holdN = prefill
		}
	}

	c.log.Info("capture started",
		slog.String("device", c.device.Name),
		slog.Bool("fallback", c.fellBack),
		slog.Int("sample_rate", c.cfg.SampleRate))
	return nil
}

// Read blocks until dst is completely filled, returning len(dst), or -1 with
// a classified error. It never returns a partial positive count.
func (c *Capture) Read(dst []float32) (int, error) {
	if c.disposed {
		return -1, ErrDisposed
	}
	if !c.started {
		return -1, fmt.Errorf("%w: capture not started", ErrReadFailed)
	}

	n := 0
	if c.holdN > 0 {
		n = copy(dst, c.hold[:c.holdN])
		c.holdN -= n
	}
	if n < len(dst) {
		if err := c.stream.Read(dst[n:]); err != nil {
			return -1, err
		}
	}
	return len(dst), nil
}

// Stop halts the stream without releasing native resources, keeping restart
// cheap.
func (c *Capture) Stop() error {
	if c.disposed {
		return ErrDisposed
	}
	if !c.started {
		return nil
	}
	c.started = false
	c.holdN = 0
	if err := c.stream.Stop(); err != nil {
		return fmt.Errorf("stop stream: %w", err)
	}
	return nil
}

// Dispose releases all native resources. Safe to call multiple times.
func (c *Capture) Dispose() {
	if c.disposed {
		return
	}
	c.disposed = true
	c.started = false
	c.closeStream()
	if c.hostReady {
		if err := c.host.Terminate(); err != nil {
			c.log.Warn("host terminate failed", slog.String("error", err.Error()))
		}
		c.hostReady = false
	}
}

func (c *Capture) open(deviceName string) error {
	if !c.hostReady {
		if err := c.host.Initialize(); err != nil {
			return err
		}
		c.hostReady = true
	}

	devices, err := c.host.Devices()
	if err != nil {
		return err
	}
	res, err := resolveDevice(devices, deviceName)
	if err != nil {
		return err
	}
	if res.FellBack {
		c.log.Warn("requested device not found, using fallback",
			slog.String("requested", deviceName),
			slog.String("selected", res.Device.Name))
	}

	granule := c.cfg.SampleRate * c.cfg.PrefillMS / 1000
	if granule <= 0 {
		granule = len(c.frame)
	}
	stream, err := c.host.OpenInputStream(res.Device, c.cfg.SampleRate, granule)
	if err != nil {
		return err
	}

	c.stream = stream
	c.device = res.Device
	c.fellBack = res.FellBack
	return nil
}

func (c *Capture) closeStream() {
	if c.stream == nil {
		return
	}
	if err := c.stream.Close(); err != nil {
		c.log.Warn("stream close failed", slog.String("error", err.Error()))
	}
	c.stream = nil
}
