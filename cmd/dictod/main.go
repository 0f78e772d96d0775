package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dictolabs/dicto-core/internal/audio"
	"github.com/dictolabs/dicto-core/internal/config"
	"github.com/dictolabs/dicto-core/internal/runtime"
)

var version = "0.1.0-dev"

func main() {
	var (
		configPath  string
		showVersion bool
		listDevices bool
	)

	flag.StringVar(&configPath, "config", "dicto.yaml", "Path to configuration file")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.BoolVar(&listDevices, "list-devices", false, "Print available input devices and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(version)
		return
	}

	if listDevices {
		if err := printDevices(); err != nil {
			fmt.Fprintf(os.Stderr, "list devices: %v\n", err)
			os.Exit(1)
		}
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).
			Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.Telemetry.LogLevel),
	}))

	rt := runtime.New(cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rt.Start(ctx); err != nil {
		logger.Error("runtime exited with error", slog.String("error", err.Error()))
		time.Sleep(1 * time.Second)
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}

func printDevices() error {
	host := audio.NewPortAudioHost()
	if err := host.Initialize(); err != nil {
		return err
	}
	defer host.Terminate()

	devices, err := host.Devices()
	if err != nil {
		return err
	}
	for _, d := range devices {
		marker := " "
		if d.IsDefault {
			marker = "*"
		}
		fmt.Printf("%s %-40s channels=%d rate=%.0f\n", marker, d.Name, d.MaxInputChannels, d.DefaultSampleRate)
	}
	return nil
}

func logLevel(v string) slog.Level {
	switch v {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
