// Package ocrtest provides images and engines for OCR tests.
package ocrtest

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os/exec"
	"sync"
	"testing"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// RequireTesseract skips the test when the tesseract binary is not on PATH.
func RequireTesseract(t testing.TB) {
	t.Helper()
	if _, err := exec.LookPath("tesseract"); err != nil {
		t.Skip("tesseract not installed in PATH")
	}
}

// RenderText draws s in black on white and returns a PNG scaled up 4x,
// which is large enough for tesseract to read the 7x13 bitmap font.
func RenderText(t testing.TB, s string) []byte {
	t.Helper()
	face := basicfont.Face7x13
	w := 20 + 7*len(s)
	src := image.NewRGBA(image.Rect(0, 0, w, 33))
	draw.Draw(src, src.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)

	d := &font.Drawer{
		Dst:  src,
		Src:  image.Black,
		Face: face,
		Dot:  fixed.P(10, 22),
	}
	d.DrawString(s)

	dst := image.NewRGBA(image.Rect(0, 0, w*4, 33*4))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// BlankPNG returns a small valid white PNG.
func BlankPNG(t testing.TB) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 8, 8))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// Engine is a scripted OCR engine. Block, when set, is waited on before answering.
type Engine struct {
	Text  string
	Err   error
	Block chan struct{}

	mu    sync.Mutex
	calls int
}

func (e *Engine) Name() string { return "fake" }

func (e *Engine) Recognize(ctx context.Context, _ []byte) (string, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.Block != nil {
		select {
		case <-e.Block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return e.Text, e.Err
}

// Calls reports how many times Recognize ran.
func (e *Engine) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}
