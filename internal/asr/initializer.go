package asr

import (
	"fmt"
	"log/slog"

	"github.com/dictolabs/dicto-core/internal/config"
)

// Catalog answers whether an engine variant's model assets are present on
// disk. It never downloads anything.
type Catalog interface {
	EngineReady(t Type) bool
	// MissingAsset names the absent asset for a variant that is not ready,
	// for surfacing to the user ("model" vs "vad model").
	MissingAsset(t Type) string
}

// DirCatalog checks readiness by scanning the configured model directory.
type DirCatalog struct {
	cfg config.EngineConfig
	log *slog.Logger
}

func NewDirCatalog(cfg config.EngineConfig, log *slog.Logger) *DirCatalog {
	return &DirCatalog{cfg: cfg, log: log}
}

func (c *DirCatalog) EngineReady(t Type) bool {
	return c.MissingAsset(t) == ""
}

func (c *DirCatalog) MissingAsset(t Type) string {
	quiet := slog.New(slog.DiscardHandler)
	switch t {
	case TypeStreaming:
		if _, err := resolveStreamingArtifacts(c.cfg.ModelDir, c.cfg.PreferQuantized, quiet); err != nil {
			return fmt.Sprintf("streaming model (%v)", err)
		}
	case TypeOffline:
		if _, err := resolveOfflineArtifacts(c.cfg.ModelDir, c.cfg.PreferQuantized, quiet); err != nil {
			return fmt.Sprintf("offline model (%v)", err)
		}
		if c.cfg.VadModelPath == "" {
			return "vad model (no path configured)"
		}
	}
	return ""
}

// Factory constructs an uninitialized engine of the given variant.
type Factory func(t Type) Engine

// InitResult reports which engine was selected and whether a fallback from
// the preferred variant occurred.
type InitResult struct {
	Engine           Engine
	ActualType       Type
	FallbackOccurred bool
	Reason           string
}

// Initializer selects and constructs the preferred engine variant, falling
// back to the alternate when the preferred one's model assets are absent.
type Initializer struct {
	cfg     config.EngineConfig
	catalog Catalog
	factory Factory
	log     *slog.Logger
}

func NewInitializer(cfg config.EngineConfig, catalog Catalog, factory Factory, log *slog.Logger) *Initializer {
	return &Initializer{
		cfg:     cfg,
		catalog: catalog,
		factory: factory,
		log:     log.With(slog.String("component", "engine-initializer")),
	}
}

func (i *Initializer) Initialize(preferred Type) (InitResult, error) {
	var reasons []string
	for _, t := range []Type{preferred, preferred.Other()} {
		if missing := i.catalog.MissingAsset(t); missing != "" {
			reasons = append(reasons, fmt.Sprintf("%s: missing %s", t, missing))
			continue
		}
		engine := i.factory(t)
		if err := engine.Initialize(i.cfg); err != nil {
			engine.Dispose()
			reasons = append(reasons, fmt.Sprintf("%s: %v", t, err))
			continue
		}

		fallback := t != preferred
		reason := ""
		if fallback {
			reason = reasons[0]
			i.log.Warn("preferred engine unavailable, fell back",
				slog.String("preferred", string(preferred)),
				slog.String("actual", string(t)),
				slog.String("reason", reason))
		}
		return InitResult{
			Engine:           engine,
			ActualType:       t,
			FallbackOccurred: fallback,
			Reason:           reason,
		}, nil
	}

	return InitResult{}, fmt.Errorf("%w: tried %s and %s: %v",
		ErrNoEngineAvailable, preferred, preferred.Other(), reasons)
}
