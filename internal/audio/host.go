package audio

// Host abstracts the native audio layer so the capture core can be exercised
// against a fake in tests. The production implementation wraps PortAudio.
type Host interface {
	Initialize() error
	Terminate() error
	Devices() ([]Device, error)
	// OpenInputStream opens a mono input stream on dev. granule is the number
	// of samples delivered per internal blocking read.
	OpenInputStream(dev Device, sampleRate int, granule int) (Stream, error)
}

// Stream is one open native input stream. Read blocks until dst is completely
// filled; internal overflow is absorbed (the data stays valid) and only
// counted.
type Stream interface {
	Start() error
	Stop() error
	Close() error
	Read(dst []float32) error
	Overflows() uint64
}
