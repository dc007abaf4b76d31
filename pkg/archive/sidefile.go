package archive

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"site-timelapse/pkg/metrics"
	"site-timelapse/pkg/models"
)

// sideFile is the JSON layout written by BuildSideFile.
type sideFile struct {
	Camera    *models.Tags `json:"camera,omitempty"`
	Images    []string     `json:"images"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

// ParseSideFile extracts sorted, unique timestamps from side file content.
// Three layouts are accepted: {"images": [...]}, a bare JSON array, and a
// comma separated list. Entries may be "YYYYMMDDHHMMSS.jpg" or bare
// timestamps; anything else is dropped.
func ParseSideFile(data []byte) []string {
	var entries []string

	var obj struct {
		Images []string `json:"images"`
	}
	var arr []string
	switch {
	case json.Unmarshal(data, &obj) == nil && obj.Images != nil:
		entries = obj.Images
	case json.Unmarshal(data, &arr) == nil:
		entries = arr
	default:
		for _, part := range strings.Split(string(data), ",") {
			entries = append(entries, strings.TrimSpace(part))
		}
	}

	out := make([]string, 0, len(entries))
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if ts, ok := models.TimestampFromName(e); ok {
			out = append(out, ts)
		} else if models.IsTimestamp(e) {
			out = append(out, e)
		}
	}
	sort.Strings(out)
	return dedupe(out)
}

func dedupe(sorted []string) []string {
	if len(sorted) < 2 {
		return sorted
	}
	out := sorted[:1]
	for _, s := range sorted[1:] {
		if s != out[len(out)-1] {
			out = append(out, s)
		}
	}
	return out
}

// WriteSideFile atomically replaces the side file for tags.
func WriteSideFile(dir string, tags models.Tags, timestamps []string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create index dir: %w", err)
	}
	images := make([]string, len(timestamps))
	for i, ts := range timestamps {
		images[i] = ts + ".jpg"
	}
	data, err := json.Marshal(sideFile{Camera: &tags, Images: images, UpdatedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to marshal side file: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".index-*")
	if err != nil {
		return fmt.Errorf("failed to create temp side file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write side file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close side file: %w", err)
	}
	return os.Rename(tmp.Name(), filepath.Join(dir, tags.IndexName()))
}

// SideFileTags returns the camera a side file belongs to. Files written by
// WriteSideFile record it; for other files it is recovered from the name.
func SideFileTags(path string) (models.Tags, bool) {
	if data, err := os.ReadFile(path); err == nil {
		if camera := sideFileCamera(data); camera != nil && camera.Validate() == nil {
			return *camera, true
		}
	}
	return models.TagsFromIndexName(filepath.Base(path))
}

// sideFileCamera returns the recorded camera, or nil for layouts without one.
func sideFileCamera(data []byte) *models.Tags {
	var f sideFile
	if json.Unmarshal(data, &f) != nil {
		return nil
	}
	return f.Camera
}

// IndexCache keeps parsed side files in memory. A filesystem watcher on the
// index directory evicts entries when their file changes; without a watcher
// every lookup reads the file.
type IndexCache struct {
	dir string

	mu      sync.RWMutex
	entries map[string]cacheEntry
	// gen is bumped by every invalidation; a read that raced one is not stored.
	gen uint64

	watcher *fsnotify.Watcher
	done    chan struct{}
}

type cacheEntry struct {
	camera     *models.Tags
	timestamps []string
}

// NewIndexCache starts watching dir. Watch failures are logged and leave the
// cache in read-through mode.
func NewIndexCache(dir string) *IndexCache {
	c := &IndexCache{
		dir:     dir,
		entries: make(map[string]cacheEntry),
		done:    make(chan struct{}),
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Warn().Err(err).Str("dir", dir).Msg("Index dir unavailable, side-file caching disabled")
		return c
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Warn().Err(err).Msg("Could not start index watcher, side-file caching disabled")
		return c
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		log.Warn().Err(err).Str("dir", dir).Msg("Could not watch index dir, side-file caching disabled")
		return c
	}
	c.watcher = watcher
	go c.watch()
	return c
}

// Dir returns the watched directory.
func (c *IndexCache) Dir() string {
	return c.dir
}

func (c *IndexCache) watch() {
	for {
		select {
		case <-c.done:
			return
		case event, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				c.Invalidate(filepath.Base(event.Name))
			}
		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("Index watcher error, clearing cache")
			c.mu.Lock()
			c.entries = make(map[string]cacheEntry)
			c.gen++
			c.mu.Unlock()
		}
	}
}

// Invalidate drops the cached entry for a side file name.
func (c *IndexCache) Invalidate(name string) {
	c.mu.Lock()
	delete(c.entries, name)
	c.gen++
	c.mu.Unlock()
}

// Load returns the timestamps listed for tags. ok is false when no usable side
// file exists; read errors other than absence are logged and treated the same.
// A side file recording a different camera is ignored.
func (c *IndexCache) Load(tags models.Tags) (timestamps []string, ok bool) {
	name := tags.IndexName()

	var gen uint64
	if c.watcher != nil {
		c.mu.RLock()
		cached, hit := c.entries[name]
		gen = c.gen
		c.mu.RUnlock()
		if hit {
			metrics.IndexCacheTotal.WithLabelValues("hit").Inc()
			return cached.usableFor(tags)
		}
	}
	metrics.IndexCacheTotal.WithLabelValues("miss").Inc()

	data, err := os.ReadFile(filepath.Join(c.dir, name))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.Warn().Err(err).Str("file", name).Msg("Failed to read frame index side file")
		}
		return nil, false
	}
	entry := cacheEntry{camera: sideFileCamera(data), timestamps: ParseSideFile(data)}

	if c.watcher != nil {
		c.store(name, entry, gen)
	}
	return entry.usableFor(tags)
}

// store caches entry unless an invalidation happened since gen was read.
func (c *IndexCache) store(name string, entry cacheEntry, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return false
	}
	c.entries[name] = entry
	return true
}

func (e cacheEntry) usableFor(tags models.Tags) ([]string, bool) {
	if e.camera != nil && *e.camera != tags {
		log.Warn().Str("camera", tags.String()).Str("recorded", e.camera.String()).Msg("Side file belongs to another camera, ignoring it")
		return nil, false
	}
	return e.timestamps, len(e.timestamps) > 0
}

// Close stops the watcher.
func (c *IndexCache) Close() error {
	if c.watcher == nil {
		return nil
	}
	close(c.done)
	return c.watcher.Close()
}
