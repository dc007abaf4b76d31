package archive

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"site-timelapse/pkg/errs"
)

// Materializer makes sure frame paths below a local mirror root exist before
// the encoder or packager reads them, fetching missing ones from the store.
type Materializer struct {
	store Store
	root  string
}

func NewMaterializer(store Store, root string) *Materializer {
	return &Materializer{store: store, root: root}
}

// LocalPath returns where the mirror keeps key.
func (m *Materializer) LocalPath(key string) string {
	return filepath.Join(m.root, filepath.FromSlash(key))
}

// Ensure fetches every path that is not on disk yet. In strict mode the first
// failure aborts with ErrArchiveUnavailable; otherwise failures are logged and
// returned as the missing list.
func (m *Materializer) Ensure(ctx context.Context, paths []string, strict bool) ([]string, error) {
	var missing []string
	fetched := 0
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			continue
		}
		err := m.fetch(ctx, p)
		if err == nil {
			fetched++
			continue
		}
		if strict {
			return nil, errs.Unavailable("fetch "+p, err)
		}
		log.Warn().Err(err).Str("path", p).Msg("Frame not available, skipping")
		missing = append(missing, p)
	}
	if fetched > 0 {
		log.Info().Int("fetched", fetched).Int("total", len(paths)).Msg("Materialized frames from archive")
	}
	return missing, nil
}

func (m *Materializer) fetch(ctx context.Context, p string) error {
	rel, err := filepath.Rel(m.root, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%s is outside the media root", p)
	}

	rc, err := m.store.Open(ctx, filepath.ToSlash(rel))
	if err != nil {
		return err
	}
	defer rc.Close()

	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return fmt.Errorf("failed to create frame dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(p), ".fetch-*")
	if err != nil {
		return fmt.Errorf("failed to create temp frame: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, rc); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to download frame: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), p)
}
