// Package capture grabs screen images for the screenshot command.
package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"

	"golang.org/x/image/draw"
)

// Capturer defines the interface for screen capture backends
type Capturer interface {
	// CaptureScreen captures the whole root window
	CaptureScreen(ctx context.Context) (*image.RGBA, error)

	// CaptureRegion captures a rectangle of the root window, clipped to
	// the screen
	CaptureRegion(ctx context.Context, x, y, width, height int) (*image.RGBA, error)

	// Name returns a human-readable name for this capturer
	Name() string

	// Close releases the display connection
	Close() error
}

// Scale shrinks img proportionally so it is at most maxWidth wide.
// Images already narrow enough, or a non-positive maxWidth, are returned
// unchanged.
func Scale(img image.Image, maxWidth int) image.Image {
	b := img.Bounds()
	if maxWidth <= 0 || b.Dx() <= maxWidth {
		return img
	}

	height := b.Dy() * maxWidth / b.Dx()
	if height < 1 {
		height = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, height))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// EncodePNG scales img to maxWidth and encodes it as PNG
func EncodePNG(img image.Image, maxWidth int) ([]byte, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, Scale(img, maxWidth)); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// clip intersects the requested region with the screen
func clip(x, y, width, height, screenW, screenH int) (image.Rectangle, error) {
	r := image.Rect(x, y, x+width, y+height).Intersect(image.Rect(0, 0, screenW, screenH))
	if r.Empty() {
		return image.Rectangle{}, fmt.Errorf("region %dx%d+%d+%d is outside the %dx%d screen",
			width, height, x, y, screenW, screenH)
	}
	return r, nil
}
