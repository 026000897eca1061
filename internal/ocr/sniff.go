package ocr

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrUnsupportedImage is returned for input that no registered decoder accepts.
var ErrUnsupportedImage = errors.New("not a decodable image")

// maxPixels bounds the decoded size; larger images are rejected before OCR.
const maxPixels = 80_000_000

// DetectFormat returns the image format name ("png", "jpeg", ...) of data.
func DetectFormat(data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty input: %w", ErrUnsupportedImage)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%v: %w", err, ErrUnsupportedImage)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return "", fmt.Errorf("empty %s image: %w", format, ErrUnsupportedImage)
	}
	if cfg.Width*cfg.Height > maxPixels {
		return "", fmt.Errorf("%s image too large (%dx%d): %w", format, cfg.Width, cfg.Height, ErrUnsupportedImage)
	}
	return format, nil
}
