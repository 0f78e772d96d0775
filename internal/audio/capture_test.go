package audio

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/dictolabs/dicto-core/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testAudioConfig() config.AudioConfig {
	return config.AudioConfig{
		SampleRate:      16000,
		FrameDurationMS: 100,
		PrefillMS:       20,
	}
}

// fakeHost implements Host with a deterministic sample generator.
type fakeHost struct {
	devices    []Device
	stream     *fakeStream
	initCalls  int
	termCalls  int
	openErr    error
	deviceErr  error
	lastOpened Device
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		devices: []Device{{Name: "pulse", MaxInputChannels: 32, IsDefault: true}},
		stream:  &fakeStream{},
	}
}

func (h *fakeHost) Initialize() error { h.initCalls++; return nil }
func (h *fakeHost) Terminate() error  { h.termCalls++; return nil }

func (h *fakeHost) Devices() ([]Device, error) {
	if h.deviceErr != nil {
		return nil, h.deviceErr
	}
	return h.devices, nil
}

func (h *fakeHost) OpenInputStream(dev Device, sampleRate, granule int) (Stream, error) {
	if h.openErr != nil {
		return nil, h.openErr
	}
	h.lastOpened = dev
	return h.stream, nil
}

type fakeStream struct {
	started   bool
	stopped   int
	closed    int
	reads     int
	next      float32
	readErrs  []error // consumed one per Read call; nil means success
	overflows uint64
}

func (s *fakeStream) Start() error { s.started = true; return nil }
func (s *fakeStream) Stop() error  { s.started = false; s.stopped++; return nil }
func (s *fakeStream) Close() error { s.closed++; return nil }

func (s *fakeStream) Read(dst []float32) error {
	s.reads++
	if len(s.readErrs) > 0 {
		err := s.readErrs[0]
		s.readErrs = s.readErrs[1:]
		if err != nil {
			return err
		}
	}
	for i := range dst {
		dst[i] = s.next
		s.next += 1.0 / 32768
	}
	return nil
}

func (s *fakeStream) Overflows() uint64 { return s.overflows }

func TestReadReturnsExactCount(t *testing.T) {
	host := newFakeHost()
	c := NewCapture(testAudioConfig(), host, testLogger())
	if err := c.Start(""); err != nil {
		t.Fatalf("start: %v", err)
	}

	frame := c.Buffer()
	if len(frame) != 1600 {
		t.Fatalf("expected 1600-sample frame buffer, got %d", len(frame))
	}
	n, err := c.Read(frame)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if n != len(frame) {
		t.Fatalf("expected exact fill %d, got %d", len(frame), n)
	}
}

func TestReadAfterPrefillUsesHoldingBuffer(t *testing.T) {
	host := newFakeHost()
	c := NewCapture(testAudioConfig(), host, testLogger())
	if err := c.Start(""); err != nil {
		t.Fatalf("start: %v", err)
	}
	// Start issued exactly one pre-fill read.
	if host.stream.reads != 1 {
		t.Fatalf("expected 1 prefill read at start, got %d", host.stream.reads)
	}

	frame := c.Buffer()
	if _, err := c.Read(frame); err != nil {
		t.Fatalf("read: %v", err)
	}
	// The first samples must be the prefill data, not freshly read ones.
	if frame[0] != 0 {
		t.Fatalf("expected prefill samples first, got %v", frame[0])
	}
}

func TestReadErrorReturnsMinusOne(t *testing.T) {
	host := newFakeHost()
	c := NewCapture(testAudioConfig(), host, testLogger())
	if err := c.Start(""); err != nil {
		t.Fatalf("start: %v", err)
	}
	host.stream.readErrs = []error{ErrDeviceUnavailable}

	n, err := c.Read(c.Buffer())
	if n != -1 {
		t.Fatalf("expected -1 on read failure, got %d", n)
	}
	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("expected device-unavailable classification, got %v", err)
	}
}

func TestReadBeforeStart(t *testing.T) {
	host := newFakeHost()
	c := NewCapture(testAudioConfig(), host, testLogger())
	n, err := c.Read(c.Buffer())
	if n != -1 || !errors.Is(err, ErrReadFailed) {
		t.Fatalf("expected read-failed before start, got n=%d err=%v", n, err)
	}
}

func TestWarmupIsIdempotent(t *testing.T) {
	host := newFakeHost()
	c := NewCapture(testAudioConfig(), host, testLogger())
	if err := c.Warmup(""); err != nil {
		t.Fatalf("warmup: %v", err)
	}
	if err := c.Warmup(""); err != nil {
		t.Fatalf("second warmup: %v", err)
	}
	if host.stream.stopped != 1 {
		t.Fatalf("expected a single warmup start/stop cycle, got %d stops", host.stream.stopped)
	}
	// Warmed stream is reused by Start without reopening.
	if err := c.Start(""); err != nil {
		t.Fatalf("start after warmup: %v", err)
	}
	if host.stream.closed != 0 {
		t.Fatal("start after warmup must not reopen the stream")
	}
}

func TestStartFallbackFlag(t *testing.T) {
	host := newFakeHost()
	c := NewCapture(testAudioConfig(), host, testLogger())
	if err := c.Start("Missing Microphone"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !c.FellBack() {
		t.Fatal("expected fallback flag for unresolved device name")
	}
	if c.DeviceName() != "pulse" {
		t.Fatalf("expected smart default device, got %q", c.DeviceName())
	}
}

func TestStopKeepsStream(t *testing.T) {
	host := newFakeHost()
	c := NewCapture(testAudioConfig(), host, testLogger())
	if err := c.Start(""); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := c.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if host.stream.closed != 0 {
		t.Fatal("stop must not close the native stream")
	}
	if err := c.Start(""); err != nil {
		t.Fatalf("restart: %v", err)
	}
}

func TestDisposeIsIdempotentAndGuards(t *testing.T) {
	host := newFakeHost()
	c := NewCapture(testAudioConfig(), host, testLogger())
	if err := c.Start(""); err != nil {
		t.Fatalf("start: %v", err)
	}
	c.Dispose()
	c.Dispose()
	if host.stream.closed != 1 {
		t.Fatalf("expected one stream close, got %d", host.stream.closed)
	}
	if host.termCalls != 1 {
		t.Fatalf("expected one host terminate, got %d", host.termCalls)
	}
	if err := c.Start(""); !errors.Is(err, ErrDisposed) {
		t.Fatalf("expected ErrDisposed after dispose, got %v", err)
	}
	if n, err := c.Read(c.Buffer()); n != -1 || !errors.Is(err, ErrDisposed) {
		t.Fatalf("expected disposed guard on read, got n=%d err=%v", n, err)
	}
}

func TestNoInputDevices(t *testing.T) {
	host := newFakeHost()
	host.devices = []Device{{Name: "HDMI Output", MaxInputChannels: 0}}
	c := NewCapture(testAudioConfig(), host, testLogger())
	if err := c.Start(""); !errors.Is(err, ErrNoInputDevice) {
		t.Fatalf("expected ErrNoInputDevice, got %v", err)
	}
}
