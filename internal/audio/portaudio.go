package audio

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// PortAudioHost is the production Host backed by the PortAudio C library.
type PortAudioHost struct {
	mu          sync.Mutex
	initialized bool
}

func NewPortAudioHost() *PortAudioHost {
	return &PortAudioHost{}
}

func (h *PortAudioHost) Initialize() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.initialized {
		return nil
	}
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("%w: %v", ErrInitFailed, err)
	}
	h.initialized = true
	return nil
}

func (h *PortAudioHost) Terminate() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.initialized {
		return nil
	}
	h.initialized = false
	if err := portaudio.Terminate(); err != nil {
		return fmt.Errorf("terminate portaudio: %w", err)
	}
	return nil
}

func (h *PortAudioHost) Devices() ([]Device, error) {
	infos, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("%w: enumerate devices: %v", ErrInitFailed, err)
	}
	var def *portaudio.DeviceInfo
	if d, err := portaudio.DefaultInputDevice(); err == nil {
		def = d
	}

	devices := make([]Device, 0, len(infos))
	for _, info := range infos {
		devices = append(devices, Device{
			Name:              info.Name,
			MaxInputChannels:  info.MaxInputChannels,
			DefaultSampleRate: info.DefaultSampleRate,
			IsDefault:         def != nil && info == def,
			handle:            info,
		})
	}
	return devices, nil
}

func (h *PortAudioHost) OpenInputStream(dev Device, sampleRate int, granule int) (Stream, error) {
	info, ok := dev.handle.(*portaudio.DeviceInfo)
	if !ok {
		return nil, fmt.Errorf("%w: device %q has no native handle", ErrStreamOpenFailed, dev.Name)
	}

	s := &paStream{stage: make([]float32, granule)}
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   info,
			Channels: 1,
			Latency:  info.DefaultLowInputLatency,
		},
		SampleRate:      float64(sampleRate),
		FramesPerBuffer: granule,
	}
	stream, err := portaudio.OpenStream(params, s.stage)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", classifyOpen(err), err)
	}
	s.inner = stream
	return s, nil
}

// paStream serializes granule-sized blocking reads from PortAudio into
// caller-sized buffers. The stage slice is the one registered with the native
// stream; leftover samples between calls stay in stage.
type paStream struct {
	inner     *portaudio.Stream
	stage     []float32
	leftover  int
	overflows uint64
}

func (s *paStream) Start() error {
	if err := s.inner.Start(); err != nil {
		return fmt.Errorf("%w: %v", ErrStreamStartFailed, err)
	}
	return nil
}

func (s *paStream) Stop() error {
	return s.inner.Stop()
}

func (s *paStream) Close() error {
	return s.inner.Close()
}

func (s *paStream) Read(dst []float32) error {
	n := 0
	for n < len(dst) {
		if s.leftover > 0 {
			c := copy(dst[n:], s.stage[len(s.stage)-s.leftover:])
			n += c
			s.leftover -= c
			continue
		}
		err := s.inner.Read()
		if err == portaudio.InputOverflowed {
			// Data in stage is still valid, the host just dropped samples
			// between reads.
			s.overflows++
			err = nil
		}
		if err != nil {
			return fmt.Errorf("%w: %v", classifyRead(err), err)
		}
		c := copy(dst[n:], s.stage)
		n += c
		s.leftover = len(s.stage) - c
	}
	return nil
}

func (s *paStream) Overflows() uint64 {
	return s.overflows
}

func classifyOpen(err error) error {
	switch err {
	case portaudio.DeviceUnavailable:
		return ErrDeviceUnavailable
	case portaudio.InvalidDevice, portaudio.HostApiNotFound:
		return ErrNoInputDevice
	default:
		return ErrStreamOpenFailed
	}
}

func classifyRead(err error) error {
	if err == portaudio.DeviceUnavailable {
		return ErrDeviceUnavailable
	}
	if _, ok := err.(portaudio.UnanticipatedHostError); ok {
		return ErrDeviceUnavailable
	}
	return ErrReadFailed
}
