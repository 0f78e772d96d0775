package asr

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// streamingArtifacts are the transducer model files, located by filename
// prefix inside the configured model directory.
type streamingArtifacts struct {
	Encoder string
	Decoder string
	Joiner  string
	Tokens  string
}

// offlineArtifacts are the single-model files for the offline variant.
type offlineArtifacts struct {
	Model  string
	Tokens string
}

func resolveStreamingArtifacts(dir string, preferQuantized bool, log *slog.Logger) (streamingArtifacts, error) {
	entries, err := listModelDir(dir)
	if err != nil {
		return streamingArtifacts{}, err
	}
	encoder, err := pickArtifact(entries, dir, "encoder", preferQuantized, log)
	if err != nil {
		return streamingArtifacts{}, err
	}
	decoder, err := pickArtifact(entries, dir, "decoder", preferQuantized, log)
	if err != nil {
		return streamingArtifacts{}, err
	}
	joiner, err := pickArtifact(entries, dir, "joiner", preferQuantized, log)
	if err != nil {
		return streamingArtifacts{}, err
	}
	tokens, err := pickArtifact(entries, dir, "tokens", false, log)
	if err != nil {
		return streamingArtifacts{}, err
	}
	return streamingArtifacts{Encoder: encoder, Decoder: decoder, Joiner: joiner, Tokens: tokens}, nil
}

func resolveOfflineArtifacts(dir string, preferQuantized bool, log *slog.Logger) (offlineArtifacts, error) {
	entries, err := listModelDir(dir)
	if err != nil {
		return offlineArtifacts{}, err
	}
	model, err := pickArtifact(entries, dir, "model", preferQuantized, log)
	if err != nil {
		return offlineArtifacts{}, err
	}
	tokens, err := pickArtifact(entries, dir, "tokens", false, log)
	if err != nil {
		return offlineArtifacts{}, err
	}
	return offlineArtifacts{Model: model, Tokens: tokens}, nil
}

func listModelDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, dir)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrModelNotFound, dir)
	}
	return names, nil
}

// pickArtifact selects the file with the given prefix. When both quantized
// (int8) and full-precision variants exist the preference wins; a missing
// preferred variant falls back to whichever is present, with a warning.
func pickArtifact(names []string, dir, prefix string, preferQuantized bool, log *slog.Logger) (string, error) {
	var quantized, full string
	for _, name := range names {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		if isQuantized(name) {
			if quantized == "" {
				quantized = name
			}
		} else if full == "" {
			full = name
		}
	}
	if quantized == "" && full == "" {
		return "", fmt.Errorf("%w: no file with prefix %q in %s", ErrModelFileMissing, prefix, dir)
	}

	preferred, alternate := full, quantized
	if preferQuantized {
		preferred, alternate = quantized, full
	}
	if preferred == "" {
		log.Warn("preferred model precision not found, falling back",
			slog.String("prefix", prefix),
			slog.Bool("prefer_quantized", preferQuantized),
			slog.String("using", alternate))
		preferred = alternate
	}
	return filepath.Join(dir, preferred), nil
}

func isQuantized(name string) bool {
	return strings.Contains(name, "int8")
}
