package capture

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertImageData(t *testing.T) {
	// two pixels, BGRX
	data := []byte{
		10, 20, 30, 0,
		40, 50, 60, 0,
	}
	img, err := convertImageData(data, 2, 1, 24)
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{R: 30, G: 20, B: 10, A: 255}, img.RGBAAt(0, 0))
	assert.Equal(t, color.RGBA{R: 60, G: 50, B: 40, A: 255}, img.RGBAAt(1, 0))
}

func TestConvertImageDataShortBuffer(t *testing.T) {
	img, err := convertImageData([]byte{1, 2, 3, 4, 5}, 2, 2, 32)
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{R: 3, G: 2, B: 1, A: 255}, img.RGBAAt(0, 0))
	assert.Equal(t, color.RGBA{}, img.RGBAAt(1, 1))
}

func TestConvertImageDataRejectsDepth(t *testing.T) {
	_, err := convertImageData(nil, 1, 1, 16)
	assert.Error(t, err)
}

func TestScale(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 400, 200))

	scaled := Scale(src, 100)
	assert.Equal(t, image.Rect(0, 0, 100, 50), scaled.Bounds())

	assert.Same(t, src, Scale(src, 0))
	assert.Same(t, src, Scale(src, 800))
}

func TestEncodePNG(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 64, 32))
	src.SetRGBA(0, 0, color.RGBA{R: 255, A: 255})

	data, err := EncodePNG(src, 32)
	require.NoError(t, err)

	decoded, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 32, 16), decoded.Bounds())
}

func TestClip(t *testing.T) {
	r, err := clip(-10, -10, 50, 50, 100, 100)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 40, 40), r)

	r, err = clip(90, 90, 50, 50, 100, 100)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(90, 90, 100, 100), r)

	_, err = clip(200, 200, 10, 10, 100, 100)
	assert.Error(t, err)
}
