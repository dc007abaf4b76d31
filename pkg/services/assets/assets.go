// Package assets stores uploaded overlay images (logos, watermarks) as PNG so
// the encoder gets a predictable input with an alpha channel.
package assets

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	_ "golang.org/x/image/webp" // register WEBP decoder

	"site-timelapse/pkg/errs"
)

// MaxDimension bounds the longest side of a stored overlay.
const MaxDimension = 1920

// Normalize decodes an uploaded JPEG, PNG, GIF or WEBP image and writes it
// to dir as <kind>_<uuid>.png. It returns the written path.
func Normalize(r io.Reader, dir, kind string) (string, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return "", errs.Validation("%s is not a supported image: %v", kind, err)
	}
	b := img.Bounds()
	if b.Dx() > MaxDimension || b.Dy() > MaxDimension {
		img = imaging.Fit(img, MaxDimension, MaxDimension, imaging.Lanczos)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create upload dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_%s.png", kind, uuid.NewString()))
	if err := imaging.Save(img, path); err != nil {
		return "", fmt.Errorf("failed to save %s: %w", kind, err)
	}
	log.Debug().Str("kind", kind).Str("path", path).Int("width", img.Bounds().Dx()).Msg("Stored overlay asset")
	return path, nil
}
