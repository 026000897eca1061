package ocr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/joseph-ayodele/docs-analyzer/internal/common"
)

const (
	EngineCLI       = "cli"
	EngineGosseract = "gosseract"
)

// ErrNoText is returned when recognition succeeds but yields only whitespace.
var ErrNoText = errors.New("no text recognized")

type Config struct {
	Engine    string // EngineCLI | EngineGosseract; default EngineCLI
	Tesseract string // binary name or absolute path; if empty -> "tesseract"

	TesseractLang string // default "eng"
	TessdataDir   string

	PSM int // page segmentation mode; 0 uses the engine default
	OEM int // 1 = LSTM; leave 0 to use default. CLI engine only.

	MaxImageBytes int64 // default 32MB
}

func (c Config) withDefaults() Config {
	if c.Engine == "" {
		c.Engine = EngineCLI
	}
	if c.Tesseract == "" {
		c.Tesseract = "tesseract"
	}
	if c.TesseractLang == "" {
		c.TesseractLang = "eng"
	}
	if c.MaxImageBytes <= 0 {
		c.MaxImageBytes = 32 << 20
	}
	return c
}

type ExtractionResult struct {
	Text     string
	Format   string // decoded image format, e.g. "png"
	Method   string // engine name
	Language string
	Duration time.Duration
}

type Extractor struct {
	cfg    Config
	engine Engine
	logger *slog.Logger
}

type Option func(*Extractor)

// WithEngine overrides the engine selected by Config.Engine.
func WithEngine(e Engine) Option {
	return func(x *Extractor) {
		if e != nil {
			x.engine = e
		}
	}
}

func NewExtractor(cfg Config, logger *slog.Logger, opts ...Option) (*Extractor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	x := &Extractor{cfg: cfg.withDefaults(), logger: logger}
	for _, o := range opts {
		o(x)
	}
	if x.engine == nil {
		e, err := newEngine(x.cfg, logger)
		if err != nil {
			return nil, err
		}
		x.engine = e
	}
	return x, nil
}

// Extract validates that data is an image, runs the engine and normalizes the text.
// Undecodable input wraps ErrUnsupportedImage; empty output is ErrNoText.
func (e *Extractor) Extract(ctx context.Context, data []byte) (ExtractionResult, error) {
	start := time.Now()
	res := ExtractionResult{Method: e.engine.Name(), Language: e.cfg.TesseractLang}

	if int64(len(data)) > e.cfg.MaxImageBytes {
		return res, fmt.Errorf("image exceeds %d bytes: %w", e.cfg.MaxImageBytes, ErrUnsupportedImage)
	}
	format, err := DetectFormat(data)
	if err != nil {
		e.logger.Warn("rejecting input before ocr", "bytes", len(data), "error", err)
		return res, err
	}
	res.Format = format
	e.logger.Debug("starting ocr extraction", "format", format, "bytes", len(data), "method", res.Method)

	raw, err := e.engine.Recognize(ctx, data)
	res.Duration = time.Since(start)
	if err != nil {
		return res, fmt.Errorf("%s: %w", res.Method, err)
	}

	res.Text = Normalize(raw)
	if res.Text == "" {
		return res, ErrNoText
	}
	e.logger.Debug("ocr extraction done", "format", format, "chars", len(res.Text), "duration_ms", res.Duration.Milliseconds())
	return res, nil
}

// ExtractReader reads at most MaxImageBytes from r and extracts it.
func (e *Extractor) ExtractReader(ctx context.Context, r io.Reader) (ExtractionResult, error) {
	data, err := io.ReadAll(io.LimitReader(r, e.cfg.MaxImageBytes+1))
	if err != nil {
		return ExtractionResult{Method: e.engine.Name()}, fmt.Errorf("read image: %w", err)
	}
	return e.Extract(ctx, data)
}

// ExtractFile is a convenience for local files.
func (e *Extractor) ExtractFile(ctx context.Context, path string) (ExtractionResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return ExtractionResult{}, err
	}
	defer f.Close()
	return e.ExtractReader(ctx, f)
}

// ConfigFrom copies the OCR section of the application config.
func ConfigFrom(c common.OCRConfig) Config {
	return Config{
		Engine:        c.Engine,
		Tesseract:     c.Tesseract,
		TesseractLang: c.TesseractLang,
		TessdataDir:   c.TessdataDir,
		PSM:           c.PSM,
		OEM:           c.OEM,
	}
}
