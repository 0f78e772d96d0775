package asr

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("touch %s: %v", name, err)
		}
	}
}

func TestResolveStreamingComplete(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir,
		"encoder-epoch-99.onnx", "decoder-epoch-99.onnx",
		"joiner-epoch-99.onnx", "tokens.txt")

	a, err := resolveStreamingArtifacts(dir, false, quietLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if filepath.Base(a.Encoder) != "encoder-epoch-99.onnx" {
		t.Fatalf("unexpected encoder: %s", a.Encoder)
	}
	if filepath.Base(a.Tokens) != "tokens.txt" {
		t.Fatalf("unexpected tokens: %s", a.Tokens)
	}
}

func TestResolveStreamingMissingDecoder(t *testing.T) {
	// Only an encoder artifact present: must classify as a missing model
	// file, not crash or report the whole model absent.
	dir := t.TempDir()
	touch(t, dir, "encoder-epoch-99.onnx")

	_, err := resolveStreamingArtifacts(dir, false, quietLogger())
	if !errors.Is(err, ErrModelFileMissing) {
		t.Fatalf("expected ErrModelFileMissing, got %v", err)
	}
}

func TestResolveMissingDirectory(t *testing.T) {
	_, err := resolveStreamingArtifacts(filepath.Join(t.TempDir(), "nope"), false, quietLogger())
	if !errors.Is(err, ErrModelNotFound) {
		t.Fatalf("expected ErrModelNotFound, got %v", err)
	}
}

func TestQuantizedPreference(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir,
		"encoder-epoch-99.onnx", "encoder-epoch-99.int8.onnx",
		"decoder-epoch-99.onnx", "decoder-epoch-99.int8.onnx",
		"joiner-epoch-99.onnx", "joiner-epoch-99.int8.onnx",
		"tokens.txt")

	quantized, err := resolveStreamingArtifacts(dir, true, quietLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if filepath.Base(quantized.Encoder) != "encoder-epoch-99.int8.onnx" {
		t.Fatalf("expected int8 encoder, got %s", quantized.Encoder)
	}

	full, err := resolveStreamingArtifacts(dir, false, quietLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if filepath.Base(full.Encoder) != "encoder-epoch-99.onnx" {
		t.Fatalf("expected fp32 encoder, got %s", full.Encoder)
	}
}

func TestQuantizedPreferenceFallsBack(t *testing.T) {
	// Preference says quantized but only fp32 exists: use what is present.
	dir := t.TempDir()
	touch(t, dir, "model.onnx", "tokens.txt")

	a, err := resolveOfflineArtifacts(dir, true, quietLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if filepath.Base(a.Model) != "model.onnx" {
		t.Fatalf("expected fp32 fallback, got %s", a.Model)
	}
}

func TestResolveOfflineMissingTokens(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "model.int8.onnx")

	_, err := resolveOfflineArtifacts(dir, true, quietLogger())
	if !errors.Is(err, ErrModelFileMissing) {
		t.Fatalf("expected ErrModelFileMissing, got %v", err)
	}
}
