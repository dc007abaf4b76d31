package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"site-timelapse/pkg/errs"
	"site-timelapse/pkg/models"
)

var camera = models.Tags{Owner: "dsv", Collection: "p1", Device: "cam1"}

// writeFrames creates empty large frames under root.
func writeFrames(t *testing.T, root string, tags models.Tags, timestamps ...string) {
	t.Helper()
	dir := filepath.Join(root, tags.Owner, tags.Collection, tags.Device, "large")
	require.NoError(t, os.MkdirAll(dir, 0755))
	for _, ts := range timestamps {
		require.NoError(t, os.WriteFile(filepath.Join(dir, ts+".jpg"), []byte("jpg"), 0644))
	}
}

func timestampsOf(frames []models.Frame) []string {
	out := make([]string, len(frames))
	for i, f := range frames {
		out[i] = f.Timestamp
	}
	return out
}

func newLocalIndex(t *testing.T) (*Index, string) {
	root := t.TempDir()
	return NewIndex(NewLocalStore(root), nil), root
}

func TestResolveListsStoreWhenNoSideFile(t *testing.T) {
	idx, root := newLocalIndex(t)
	writeFrames(t, root, camera, "20240103130000", "20240101090000", "20240108100000")
	// Noise that must be ignored.
	dir := filepath.Join(root, "dsv", "p1", "cam1", "large")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), nil, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "2024.jpg"), nil, 0644))

	frames, err := idx.Resolve(context.Background(), camera, models.VariantLarge)
	require.NoError(t, err)
	assert.Equal(t, []string{"20240101090000", "20240103130000", "20240108100000"}, timestampsOf(frames))
	assert.Equal(t, "dsv/p1/cam1/large/20240101090000.jpg", frames[0].Key())
}

func TestUnknownCameraIsEmpty(t *testing.T) {
	idx, _ := newLocalIndex(t)
	ctx := context.Background()
	ghost := models.Tags{Owner: "nobody", Collection: "x", Device: "y"}

	frames, err := idx.Resolve(ctx, ghost, models.VariantLarge)
	assert.NoError(t, err)
	assert.Empty(t, frames)

	first, err := idx.First(ctx, ghost)
	assert.NoError(t, err)
	assert.Nil(t, first)

	last, err := idx.Last(ctx, ghost)
	assert.NoError(t, err)
	assert.Nil(t, last)

	dates, err := idx.AvailableDates(ctx, ghost)
	assert.NoError(t, err)
	assert.Empty(t, dates)
}

func TestFirstLastAreMinMax(t *testing.T) {
	idx, root := newLocalIndex(t)
	writeFrames(t, root, camera, "20240105120000", "20231231235959", "20240210080000", "20240101000000")

	first, err := idx.First(context.Background(), camera)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, "20231231235959", first.Timestamp)

	last, err := idx.Last(context.Background(), camera)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "20240210080000", last.Timestamp)
}

func TestByDateRange(t *testing.T) {
	idx, root := newLocalIndex(t)
	writeFrames(t, root, camera, "20240101090000", "20240103130000", "20240108100000", "20240107235959")
	ctx := context.Background()

	frames, err := idx.ByDateRange(ctx, camera, models.VariantLarge, "20240101", "20240107")
	require.NoError(t, err)
	assert.Equal(t, []string{"20240101090000", "20240103130000", "20240107235959"}, timestampsOf(frames))

	frames, err = idx.ByDateRange(ctx, camera, models.VariantLarge, "20240109", "20240131")
	require.NoError(t, err)
	assert.Empty(t, frames)

	frames, err = idx.ByDateRange(ctx, camera, models.VariantLarge, "20231201", "20231231")
	require.NoError(t, err)
	assert.Empty(t, frames)

	frames, err = idx.ByDateRange(ctx, camera, models.VariantLarge, "20240108", "20240101")
	require.NoError(t, err)
	assert.Empty(t, frames)
}

func TestNearestToTime(t *testing.T) {
	idx, root := newLocalIndex(t)
	writeFrames(t, root, camera, "20240101080500", "20240101120500", "20240101123000", "20240102120000")
	ctx := context.Background()

	f, err := idx.NearestToTime(ctx, camera, "20240101", "12")
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, "20240101120500", f.Timestamp)

	f, err = idx.NearestToTime(ctx, camera, "20240101", "123000")
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, "20240101123000", f.Timestamp)

	// "8" pads to "08".
	f, err = idx.NearestToTime(ctx, camera, "20240101", "8")
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, "20240101080500", f.Timestamp)

	f, err = idx.NearestToTime(ctx, camera, "20240101", "15")
	require.NoError(t, err)
	assert.Nil(t, f)
}

func TestAvailableDates(t *testing.T) {
	idx, root := newLocalIndex(t)
	writeFrames(t, root, camera, "20240101090000", "20240101100000", "20240103130000")

	dates, err := idx.AvailableDates(context.Background(), camera)
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-01", "2024-01-03"}, dates)
}

func TestSideFileTakesPrecedence(t *testing.T) {
	root := t.TempDir()
	indexDir := t.TempDir()
	writeFrames(t, root, camera, "20240101090000")
	require.NoError(t, os.WriteFile(filepath.Join(indexDir, camera.IndexName()),
		[]byte(`{"images":["20240201120000.jpg","20240105120000.jpg"]}`), 0644))

	cache := NewIndexCache(indexDir)
	defer cache.Close()
	idx := NewIndex(NewLocalStore(root), cache)

	frames, err := idx.Resolve(context.Background(), camera, models.VariantOptimized)
	require.NoError(t, err)
	assert.Equal(t, []string{"20240105120000", "20240201120000"}, timestampsOf(frames))
	assert.Equal(t, models.VariantOptimized, frames[0].Variant)

	first, err := idx.First(context.Background(), camera)
	require.NoError(t, err)
	assert.Equal(t, "20240105120000", first.Timestamp)
}

func TestBuildSideFile(t *testing.T) {
	root := t.TempDir()
	indexDir := t.TempDir()
	writeFrames(t, root, camera, "20240103130000", "20240101090000")

	cache := NewIndexCache(indexDir)
	defer cache.Close()
	idx := NewIndex(NewLocalStore(root), cache)

	n, err := idx.BuildSideFile(context.Background(), camera)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	raw, err := os.ReadFile(filepath.Join(indexDir, camera.IndexName()))
	require.NoError(t, err)
	assert.Equal(t, []string{"20240101090000", "20240103130000"}, ParseSideFile(raw))

	// Frames added after the build are not visible until the next build.
	writeFrames(t, root, camera, "20240109120000")
	last, err := idx.Last(context.Background(), camera)
	require.NoError(t, err)
	assert.Equal(t, "20240103130000", last.Timestamp)
}

func TestDashedCamerasKeepSeparateSideFiles(t *testing.T) {
	root := t.TempDir()
	indexDir := t.TempDir()
	first := models.Tags{Owner: "a-b", Collection: "c", Device: "d"}
	second := models.Tags{Owner: "a", Collection: "b-c", Device: "d"}
	writeFrames(t, root, first, "20240101120000")
	writeFrames(t, root, second, "20250505120000")

	cache := NewIndexCache(indexDir)
	defer cache.Close()
	idx := NewIndex(NewLocalStore(root), cache)

	_, err := idx.BuildSideFile(context.Background(), first)
	require.NoError(t, err)

	frame, err := idx.First(context.Background(), second)
	require.NoError(t, err)
	require.NotNil(t, frame)
	assert.Equal(t, "20250505120000", frame.Timestamp)

	frame, err = idx.First(context.Background(), first)
	require.NoError(t, err)
	assert.Equal(t, "20240101120000", frame.Timestamp)
}

func TestSideFileOfAnotherCameraIsIgnored(t *testing.T) {
	root := t.TempDir()
	indexDir := t.TempDir()
	other := models.Tags{Owner: "dsv", Collection: "p2", Device: "cam9"}
	writeFrames(t, root, camera, "20240101090000")
	// A file under this camera's name that records a different camera.
	require.NoError(t, WriteSideFile(indexDir, other, []string{"20230101120000"}))
	require.NoError(t, os.Rename(filepath.Join(indexDir, other.IndexName()), filepath.Join(indexDir, camera.IndexName())))

	cache := NewIndexCache(indexDir)
	defer cache.Close()
	idx := NewIndex(NewLocalStore(root), cache)

	for i := 0; i < 2; i++ {
		frames, err := idx.Resolve(context.Background(), camera, models.VariantLarge)
		require.NoError(t, err)
		assert.Equal(t, []string{"20240101090000"}, timestampsOf(frames))
	}
}

func TestIndexCacheSkipsStoreAfterInvalidation(t *testing.T) {
	cache := NewIndexCache(t.TempDir())
	defer cache.Close()
	entry := cacheEntry{timestamps: []string{"20240101120000"}}

	cache.mu.RLock()
	gen := cache.gen
	cache.mu.RUnlock()
	cache.Invalidate(camera.IndexName())

	assert.False(t, cache.store(camera.IndexName(), entry, gen))
	cache.mu.RLock()
	_, cached := cache.entries[camera.IndexName()]
	current := cache.gen
	cache.mu.RUnlock()
	assert.False(t, cached)

	assert.True(t, cache.store(camera.IndexName(), entry, current))
}

func TestSideFileTags(t *testing.T) {
	dir := t.TempDir()
	dashed := models.Tags{Owner: "a-b", Collection: "c", Device: "d"}
	require.NoError(t, WriteSideFile(dir, dashed, []string{"20240101120000"}))
	tags, ok := SideFileTags(filepath.Join(dir, dashed.IndexName()))
	assert.True(t, ok)
	assert.Equal(t, dashed, tags)

	// Files without a recorded camera fall back to the name.
	legacy := filepath.Join(dir, "x%2Dy-p1-cam1.json")
	require.NoError(t, os.WriteFile(legacy, []byte(`["20240101120000.jpg"]`), 0644))
	tags, ok = SideFileTags(legacy)
	assert.True(t, ok)
	assert.Equal(t, models.Tags{Owner: "x-y", Collection: "p1", Device: "cam1"}, tags)
}

func TestParseSideFileFormats(t *testing.T) {
	want := []string{"20240101090000", "20240103130000"}

	assert.Equal(t, want, ParseSideFile([]byte(`{"images":["20240103130000.jpg","20240101090000.jpg","20240101090000.jpg"]}`)))
	assert.Equal(t, want, ParseSideFile([]byte(`["20240103130000.jpg","20240101090000"]`)))
	assert.Equal(t, want, ParseSideFile([]byte("20240103130000.jpg, 20240101090000.jpg, thumbs.db")))
	assert.Empty(t, ParseSideFile([]byte(`{"other":1}`)))
	assert.Empty(t, ParseSideFile(nil))
}

// pagedStore serves fixed pages and records how many were read.
type pagedStore struct {
	pages [][]string
	read  int
	err   error
}

func (s *pagedStore) ListPages(_ context.Context, _ string, fn func([]string) bool) error {
	if s.err != nil {
		return s.err
	}
	for _, p := range s.pages {
		s.read++
		if !fn(p) {
			return nil
		}
	}
	return nil
}

func (s *pagedStore) Open(context.Context, string) (io.ReadCloser, error) {
	return nil, errors.New("not implemented")
}

func (s *pagedStore) Exists(context.Context, string) (bool, error) {
	return false, nil
}

func (s *pagedStore) URL(_ context.Context, key string) (string, error) {
	return "https://example.invalid/" + key, nil
}

func (s *pagedStore) Backend() string { return "paged" }

func pageOf(timestamps ...string) []string {
	keys := make([]string, len(timestamps))
	for i, ts := range timestamps {
		keys[i] = fmt.Sprintf("dsv/p1/cam1/large/%s.jpg", ts)
	}
	return keys
}

func TestFirstReadsOnlyFirstPage(t *testing.T) {
	store := &pagedStore{pages: [][]string{
		pageOf("20240101090000", "20240101100000"),
		pageOf("20240102090000"),
		pageOf("20240103090000"),
	}}
	first, err := NewIndex(store, nil).First(context.Background(), camera)
	require.NoError(t, err)
	assert.Equal(t, "20240101090000", first.Timestamp)
	assert.Equal(t, 1, store.read)
}

func TestLastWalksAllPages(t *testing.T) {
	store := &pagedStore{pages: [][]string{
		pageOf("20240101090000"),
		pageOf("20240102090000"),
		pageOf("20240103090000", "20240103100000"),
	}}
	last, err := NewIndex(store, nil).Last(context.Background(), camera)
	require.NoError(t, err)
	assert.Equal(t, "20240103100000", last.Timestamp)
	assert.Equal(t, 3, store.read)
}

func TestListingFailureIsArchiveUnavailable(t *testing.T) {
	store := &pagedStore{err: errors.New("connection refused")}
	idx := NewIndex(store, nil)

	_, err := idx.Resolve(context.Background(), camera, models.VariantLarge)
	assert.ErrorIs(t, err, errs.ErrArchiveUnavailable)
	_, err = idx.First(context.Background(), camera)
	assert.ErrorIs(t, err, errs.ErrArchiveUnavailable)
	_, err = idx.Last(context.Background(), camera)
	assert.ErrorIs(t, err, errs.ErrArchiveUnavailable)
}

func TestLocalStorePaging(t *testing.T) {
	root := t.TempDir()
	var ts []string
	for i := 0; i < pageSize+5; i++ {
		ts = append(ts, fmt.Sprintf("20240101%06d", i))
	}
	writeFrames(t, root, camera, ts...)

	var sizes []int
	err := NewLocalStore(root).ListPages(context.Background(), "dsv/p1/cam1/large/", func(keys []string) bool {
		sizes = append(sizes, len(keys))
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, []int{pageSize, 5}, sizes)
}

func TestLocalStoreURLAndPath(t *testing.T) {
	s := NewLocalStore("/srv/media")
	u, err := s.URL(context.Background(), "dsv/p1/cam1/large/20240101090000.jpg")
	require.NoError(t, err)
	assert.Equal(t, "/media/dsv/p1/cam1/large/20240101090000.jpg", u)
	assert.True(t, strings.HasPrefix(s.Path("../../etc/passwd"), "/srv/media"))
}

func TestMaterializerFetchesMissing(t *testing.T) {
	src := t.TempDir()
	mirror := t.TempDir()
	writeFrames(t, src, camera, "20240101090000")

	m := NewMaterializer(NewLocalStore(src), mirror)
	present := m.LocalPath("dsv/p1/cam1/large/20240101090000.jpg")
	absent := m.LocalPath("dsv/p1/cam1/large/20240102090000.jpg")

	missing, err := m.Ensure(context.Background(), []string{present, absent}, false)
	require.NoError(t, err)
	assert.Equal(t, []string{absent}, missing)
	assert.FileExists(t, present)

	_, err = m.Ensure(context.Background(), []string{absent}, true)
	assert.ErrorIs(t, err, errs.ErrArchiveUnavailable)
}
