package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/dictolabs/dicto-core/internal/asr"
	"github.com/dictolabs/dicto-core/internal/config"
)

// chunkSamples is how many samples are handed to the engine per step, 200ms
// at 16kHz. The VAD segments utterances internally regardless of chunking.
const chunkSamples = 3200

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "dicto.yaml", "Path to configuration file")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: dicto-transcribe [-config dicto.yaml] <file.wav>")
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	text, err := transcribe(cfg, flag.Arg(0), logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "transcribe: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(text)
}

func transcribe(cfg config.Config, path string, logger *slog.Logger) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	decoder := wav.NewDecoder(file)
	decoder.ReadInfo()
	if !decoder.IsValidFile() {
		return "", fmt.Errorf("%s is not a valid WAV file", path)
	}
	if decoder.NumChans != 1 {
		return "", fmt.Errorf("expected mono input, got %d channels", decoder.NumChans)
	}
	if int(decoder.SampleRate) != cfg.Audio.SampleRate {
		return "", fmt.Errorf("expected %d Hz input, got %d Hz", cfg.Audio.SampleRate, decoder.SampleRate)
	}

	engine := asr.NewOfflineVadEngine(cfg.Audio.SampleRate, cfg.Session.SilenceThresholdSec, logger)
	if err := engine.Initialize(cfg.Engine); err != nil {
		return "", err
	}
	defer engine.Dispose()

	scale := float32(int(1) << (decoder.BitDepth - 1))
	buf := &audio.IntBuffer{
		Format: &audio.Format{NumChannels: 1, SampleRate: int(decoder.SampleRate)},
		Data:   make([]int, chunkSamples),
	}
	samples := make([]float32, chunkSamples)

	for {
		n, err := decoder.PCMBuffer(buf)
		if err != nil {
			return "", fmt.Errorf("read pcm: %w", err)
		}
		if n == 0 {
			break
		}
		for i := 0; i < n; i++ {
			samples[i] = float32(buf.Data[i]) / scale
		}
		engine.AcceptWaveform(cfg.Audio.SampleRate, samples[:n])
		for engine.IsReady() {
			engine.Decode()
		}
	}

	engine.InputFinished()
	for engine.IsReady() {
		engine.Decode()
	}
	return engine.Result().Text, nil
}
