//go:build gosseract

package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/otiai10/gosseract/v2"
)

func init() {
	RegisterEngine(EngineGosseract, func(cfg Config, logger *slog.Logger) (Engine, error) {
		if cfg.OEM > 0 {
			return nil, fmt.Errorf("engine %s: OEM %d is not supported", EngineGosseract, cfg.OEM)
		}
		return &gosseractEngine{cfg: cfg, clientFactory: gosseract.NewClient}, nil
	})
}

// gosseractEngine runs tesseract in-process through cgo. The client offers no
// engine mode setting, so only PSM is applied.
type gosseractEngine struct {
	cfg           Config
	clientFactory func() *gosseract.Client
}

func (g *gosseractEngine) Name() string { return "tesseract-lib" }

func (g *gosseractEngine) Recognize(ctx context.Context, image []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	// gosseract has no cancellation hook; the client lives in its own goroutine
	// and we stop waiting when ctx ends.
	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		text, err := g.recognize(image)
		done <- result{text, err}
	}()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-done:
		return r.text, r.err
	}
}

func (g *gosseractEngine) recognize(image []byte) (string, error) {
	c := g.clientFactory()
	defer c.Close()

	if g.cfg.TessdataDir != "" {
		c.TessdataPrefix = g.cfg.TessdataDir
	}
	if err := c.SetLanguage(g.cfg.TesseractLang); err != nil {
		return "", fmt.Errorf("set language: %w", err)
	}
	if g.cfg.PSM > 0 {
		if err := c.SetPageSegMode(gosseract.PageSegMode(g.cfg.PSM)); err != nil {
			return "", fmt.Errorf("set psm: %w", err)
		}
	}
	if err := c.SetVariable(gosseract.SettableVariable("user_defined_dpi"), strconv.Itoa(300)); err != nil {
		return "", fmt.Errorf("set dpi: %w", err)
	}
	if err := c.SetImageFromBytes(image); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}
	text, err := c.Text()
	if err != nil {
		return "", fmt.Errorf("recognize text: %w", err)
	}
	return text, nil
}
