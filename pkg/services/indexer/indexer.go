// Package indexer keeps the per-camera side files in step with the archive.
package indexer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"site-timelapse/pkg/archive"
	"site-timelapse/pkg/models"
)

// Refresher rebuilds every side file already present in the index directory.
type Refresher struct {
	index    *archive.Index
	dir      string
	interval time.Duration
}

func NewRefresher(index *archive.Index, dir string, interval time.Duration) *Refresher {
	return &Refresher{index: index, dir: dir, interval: interval}
}

// Cameras returns the cameras with a side file, sorted by prefix.
func (r *Refresher) Cameras() ([]models.Tags, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read index dir: %w", err)
	}
	var cameras []models.Tags
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".") {
			continue
		}
		tags, ok := archive.SideFileTags(filepath.Join(r.dir, name))
		if !ok {
			log.Warn().Str("file", name).Msg("Cannot tell which camera a side file belongs to, skipping")
			continue
		}
		cameras = append(cameras, tags)
	}
	sort.Slice(cameras, func(i, j int) bool { return cameras[i].Prefix() < cameras[j].Prefix() })
	return cameras, nil
}

// RefreshAll rebuilds each side file and returns how many succeeded. A failing
// camera does not stop the others.
func (r *Refresher) RefreshAll(ctx context.Context) (int, error) {
	cameras, err := r.Cameras()
	if err != nil {
		return 0, err
	}
	done := 0
	for _, tags := range cameras {
		if ctx.Err() != nil {
			return done, ctx.Err()
		}
		n, err := r.index.BuildSideFile(ctx, tags)
		if err != nil {
			log.Error().Err(err).Str("camera", tags.String()).Msg("Failed to rebuild side file")
			continue
		}
		log.Debug().Str("camera", tags.String()).Int("frames", n).Msg("Side file rebuilt")
		done++
	}
	return done, nil
}

// Start refreshes once per interval until ctx is done.
func (r *Refresher) Start(ctx context.Context) {
	if r.interval <= 0 {
		log.Info().Msg("Index refresh disabled")
		return
	}
	log.Info().Dur("interval", r.interval).Str("dir", r.dir).Msg("Starting index refresh scheduler")
	go func() {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				start := time.Now()
				n, err := r.RefreshAll(ctx)
				if err != nil {
					log.Error().Err(err).Msg("Index refresh failed")
					continue
				}
				log.Info().Int("cameras", n).Dur("took", time.Since(start)).Msg("✅ Index refresh complete")
			}
		}
	}()
}
