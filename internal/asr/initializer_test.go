package asr

import (
	"errors"
	"strings"
	"testing"

	"github.com/dictolabs/dicto-core/internal/config"
)

// fakeCatalog scripts per-variant readiness.
type fakeCatalog struct {
	missing map[Type]string
}

func (c *fakeCatalog) EngineReady(t Type) bool {
	return c.missing[t] == ""
}

func (c *fakeCatalog) MissingAsset(t Type) string {
	return c.missing[t]
}

func mockFactory(engines map[Type]*MockEngine) Factory {
	return func(t Type) Engine {
		return engines[t]
	}
}

func TestInitializePreferredReady(t *testing.T) {
	engines := map[Type]*MockEngine{
		TypeStreaming: NewMockEngine(),
		TypeOffline:   NewMockEngine(),
	}
	init := NewInitializer(config.EngineConfig{}, &fakeCatalog{missing: map[Type]string{}},
		mockFactory(engines), quietLogger())

	res, err := init.Initialize(TypeStreaming)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ActualType != TypeStreaming || res.FallbackOccurred {
		t.Fatalf("expected preferred streaming engine, got %+v", res)
	}
	if res.Engine != engines[TypeStreaming] {
		t.Fatal("expected the streaming engine instance")
	}
}

func TestInitializeFallsBackToAlternate(t *testing.T) {
	engines := map[Type]*MockEngine{
		TypeStreaming: NewMockEngine(),
		TypeOffline:   NewMockEngine(),
	}
	catalog := &fakeCatalog{missing: map[Type]string{
		TypeStreaming: "streaming model (encoder absent)",
	}}
	init := NewInitializer(config.EngineConfig{}, catalog, mockFactory(engines), quietLogger())

	res, err := init.Initialize(TypeStreaming)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ActualType != TypeOffline {
		t.Fatalf("expected fallback to offline, got %s", res.ActualType)
	}
	if !res.FallbackOccurred {
		t.Fatal("expected fallback flag")
	}
	if !strings.Contains(res.Reason, "encoder absent") {
		t.Fatalf("expected reason to name the missing asset, got %q", res.Reason)
	}
}

func TestInitializeNeitherReady(t *testing.T) {
	catalog := &fakeCatalog{missing: map[Type]string{
		TypeStreaming: "streaming model",
		TypeOffline:   "vad model",
	}}
	init := NewInitializer(config.EngineConfig{}, catalog,
		mockFactory(map[Type]*MockEngine{}), quietLogger())

	_, err := init.Initialize(TypeStreaming)
	if !errors.Is(err, ErrNoEngineAvailable) {
		t.Fatalf("expected ErrNoEngineAvailable, got %v", err)
	}
	if !strings.Contains(err.Error(), "streaming") || !strings.Contains(err.Error(), "offline") {
		t.Fatalf("error must list both attempted types, got %v", err)
	}
}

func TestInitializeFailedInitFallsBack(t *testing.T) {
	failing := NewMockEngine()
	failing.InitErr = ErrRecognizerCreate
	engines := map[Type]*MockEngine{
		TypeStreaming: failing,
		TypeOffline:   NewMockEngine(),
	}
	init := NewInitializer(config.EngineConfig{}, &fakeCatalog{missing: map[Type]string{}},
		mockFactory(engines), quietLogger())

	res, err := init.Initialize(TypeStreaming)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ActualType != TypeOffline || !res.FallbackOccurred {
		t.Fatalf("expected offline fallback after init failure, got %+v", res)
	}
	if failing.DisposeCalls != 1 {
		t.Fatalf("failed engine must be disposed, got %d calls", failing.DisposeCalls)
	}
}

func TestDirCatalogMissingAsset(t *testing.T) {
	cfg := config.EngineConfig{ModelDir: t.TempDir(), PreferQuantized: true}
	catalog := NewDirCatalog(cfg, quietLogger())
	if catalog.EngineReady(TypeStreaming) {
		t.Fatal("empty model dir must not be ready")
	}
	if catalog.MissingAsset(TypeStreaming) == "" {
		t.Fatal("expected a missing-asset description")
	}
}
