package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Dumper writes captured frames to a mono 16-bit WAV file, one file per
// recording session. Used for debugging capture problems offline.
type Dumper struct {
	file *os.File
	enc  *wav.Encoder
	buf  *audio.IntBuffer
}

// NewDumper creates <dir>/capture-<timestamp>.wav. A zero-value dir disables
// dumping at the call site; NewDumper itself requires one.
func NewDumper(dir string, sampleRate int) (*Dumper, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create dump dir: %w", err)
	}
	name := filepath.Join(dir, fmt.Sprintf("capture-%s.wav", time.Now().Format("20060102-150405")))
	file, err := os.Create(name)
	if err != nil {
		return nil, fmt.Errorf("create dump file: %w", err)
	}
	return &Dumper{
		file: file,
		enc:  wav.NewEncoder(file, sampleRate, 16, 1, 1),
		buf: &audio.IntBuffer{
			Format: &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		},
	}, nil
}

// Write appends one frame of float32 samples, converting to 16-bit PCM.
func (d *Dumper) Write(samples []float32) error {
	if cap(d.buf.Data) < len(samples) {
		d.buf.Data = make([]int, len(samples))
	}
	d.buf.Data = d.buf.Data[:len(samples)]
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		d.buf.Data[i] = int(s * 32767)
	}
	if err := d.enc.Write(d.buf); err != nil {
		return fmt.Errorf("write wav frame: %w", err)
	}
	return nil
}

// Close finalizes the WAV header and closes the file.
func (d *Dumper) Close() error {
	if err := d.enc.Close(); err != nil {
		d.file.Close()
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return d.file.Close()
}

// Path returns the file the dumper is writing to.
func (d *Dumper) Path() string {
	return d.file.Name()
}
