package assets

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"site-timelapse/pkg/errs"
)

func encodeJPEG(t *testing.T, w, h int) *bytes.Buffer {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{R: 200, A: 255})
	}
	buf := &bytes.Buffer{}
	require.NoError(t, jpeg.Encode(buf, img, nil))
	return buf
}

func TestNormalizeWritesPNG(t *testing.T) {
	dir := t.TempDir()
	path, err := Normalize(encodeJPEG(t, 40, 20), dir, "logo")
	require.NoError(t, err)

	assert.Equal(t, dir, filepath.Dir(path))
	assert.True(t, strings.HasPrefix(filepath.Base(path), "logo_"))
	assert.Equal(t, ".png", filepath.Ext(path))

	img, err := imaging.Open(path)
	require.NoError(t, err)
	assert.Equal(t, 40, img.Bounds().Dx())
}

func TestNormalizeShrinksLargeImages(t *testing.T) {
	path, err := Normalize(encodeJPEG(t, 4000, 1000), t.TempDir(), "watermark")
	require.NoError(t, err)

	img, err := imaging.Open(path)
	require.NoError(t, err)
	assert.Equal(t, MaxDimension, img.Bounds().Dx())
	assert.Equal(t, 480, img.Bounds().Dy())
}

func TestNormalizeRejectsGarbage(t *testing.T) {
	_, err := Normalize(strings.NewReader("not an image"), t.TempDir(), "logo")
	assert.ErrorIs(t, err, errs.ErrValidation)
}
