package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// Engine turns encoded image bytes into raw text.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, image []byte) (string, error)
}

// EngineFactory builds an engine from the extractor config.
type EngineFactory func(cfg Config, logger *slog.Logger) (Engine, error)

var (
	enginesMu sync.RWMutex
	engines   = map[string]EngineFactory{
		EngineCLI: func(cfg Config, logger *slog.Logger) (Engine, error) {
			return NewTesseractCLI(cfg, execRunner{logger: logger}, logger), nil
		},
	}
)

// RegisterEngine makes an engine available by name. Optional engines call it from init.
func RegisterEngine(name string, factory EngineFactory) {
	enginesMu.Lock()
	defer enginesMu.Unlock()
	engines[name] = factory
}

func newEngine(cfg Config, logger *slog.Logger) (Engine, error) {
	enginesMu.RLock()
	factory, ok := engines[cfg.Engine]
	names := make([]string, 0, len(engines))
	for n := range engines {
		names = append(names, n)
	}
	enginesMu.RUnlock()

	if !ok {
		sort.Strings(names)
		return nil, fmt.Errorf("ocr engine %q not available (have: %s)", cfg.Engine, strings.Join(names, ", "))
	}
	return factory(cfg, logger)
}
