// Package archive answers frame queries over the camera photo archive. Frames
// live in a Store (local directory tree or S3 bucket) under
// "<owner>/<collection>/<device>/<variant>/<YYYYMMDDHHMMSS>.jpg"; an optional
// per-camera side file lists the timestamps so most queries never touch the
// store.
package archive

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"site-timelapse/pkg/metrics"
)

// pageSize matches the S3 ListObjectsV2 maximum so both backends page alike.
const pageSize = 1000

// Store is the storage collaborator holding the frames.
type Store interface {
	// ListPages calls fn with successive pages of keys under prefix in
	// lexicographic order until fn returns false or the listing ends.
	ListPages(ctx context.Context, prefix string, fn func(keys []string) bool) error
	// Open returns the content of key. A missing key yields an error
	// matching fs.ErrNotExist.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)
	// URL returns a URL a browser can fetch key from.
	URL(ctx context.Context, key string) (string, error)
	// Backend names the implementation for logs and metrics.
	Backend() string
}

// LocalStore serves the archive from a directory tree.
type LocalStore struct {
	root string
}

func NewLocalStore(root string) *LocalStore {
	return &LocalStore{root: root}
}

// Root returns the directory the store serves.
func (s *LocalStore) Root() string {
	return s.root
}

func (s *LocalStore) Backend() string {
	return "local"
}

// Path maps a key to a file path below the root. Traversal segments are
// dropped by cleaning the key as an absolute path first.
func (s *LocalStore) Path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(path.Clean("/"+key)))
}

func (s *LocalStore) ListPages(ctx context.Context, prefix string, fn func(keys []string) bool) error {
	start := time.Now()
	defer func() {
		metrics.ArchiveListDuration.WithLabelValues(s.Backend()).Observe(time.Since(start).Seconds())
	}()

	dir := s.Path(prefix)
	page := make([]string, 0, pageSize)
	stop := errors.New("stop")

	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && p == dir {
				return fs.SkipAll
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		page = append(page, filepath.ToSlash(rel))
		if len(page) == pageSize {
			if !fn(page) {
				return stop
			}
			page = make([]string, 0, pageSize)
		}
		return nil
	})
	if errors.Is(err, stop) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(page) > 0 {
		fn(page)
	}
	return nil
}

func (s *LocalStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	return os.Open(s.Path(key))
}

func (s *LocalStore) URL(_ context.Context, key string) (string, error) {
	return "/media/" + strings.TrimPrefix(path.Clean("/"+key), "/"), nil
}

func (s *LocalStore) Exists(_ context.Context, key string) (bool, error) {
	info, err := os.Stat(s.Path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !info.IsDir(), nil
}
