package archive

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"site-timelapse/pkg/errs"
	"site-timelapse/pkg/models"
)

func TestImageLinkPrefersOptimized(t *testing.T) {
	idx, root := newLocalIndex(t)
	writeFrames(t, root, camera, "20240101090000", "20240101100000")
	dir := filepath.Join(root, "dsv", "p1", "cam1", "optimized")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "20240101090000.jpg"), []byte("opt"), 0644))
	ctx := context.Background()

	link, err := idx.ImageLink(ctx, camera, "20240101090000")
	require.NoError(t, err)
	assert.Equal(t, models.VariantOptimized, link.Variant)
	assert.Equal(t, "dsv/p1/cam1/optimized/20240101090000.jpg", link.Key)
	assert.Equal(t, "/media/dsv/p1/cam1/optimized/20240101090000.jpg", link.URL)

	link, err = idx.ImageLink(ctx, camera, "20240101100000")
	require.NoError(t, err)
	assert.Equal(t, models.VariantLarge, link.Variant)
	assert.Equal(t, "/media/dsv/p1/cam1/large/20240101100000.jpg", link.URL)

	// The large fallback is not checked.
	link, err = idx.ImageLink(ctx, camera, "20990101000000")
	require.NoError(t, err)
	assert.Equal(t, models.VariantLarge, link.Variant)
}

func TestThumbnailLink(t *testing.T) {
	idx, _ := newLocalIndex(t)

	link, err := idx.ThumbnailLink(context.Background(), camera, "20240101090000")
	require.NoError(t, err)
	assert.Equal(t, models.VariantThumbs, link.Variant)
	assert.Equal(t, "/media/dsv/p1/cam1/thumbs/20240101090000.jpg", link.URL)
}

func TestFrameLookupValidation(t *testing.T) {
	idx, _ := newLocalIndex(t)
	ctx := context.Background()

	_, err := idx.ImageLink(ctx, camera, "2024")
	assert.ErrorIs(t, err, errs.ErrValidation)
	_, err = idx.ThumbnailLink(ctx, models.Tags{Owner: "dsv"}, "20240101090000")
	assert.ErrorIs(t, err, errs.ErrValidation)
	_, err = idx.OpenFrame(ctx, camera, models.VariantLarge, "../../etc/passwd")
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestOpenFrame(t *testing.T) {
	idx, root := newLocalIndex(t)
	writeFrames(t, root, camera, "20240101090000")
	ctx := context.Background()

	rc, err := idx.OpenFrame(ctx, camera, models.VariantLarge, "20240101090000")
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, "jpg", string(body))

	_, err = idx.OpenFrame(ctx, camera, models.VariantLarge, "20240101100000")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestLocalStoreExists(t *testing.T) {
	root := t.TempDir()
	writeFrames(t, root, camera, "20240101090000")
	store := NewLocalStore(root)
	ctx := context.Background()

	ok, err := store.Exists(ctx, "dsv/p1/cam1/large/20240101090000.jpg")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Exists(ctx, "dsv/p1/cam1/large/20240101100000.jpg")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = store.Exists(ctx, "dsv/p1/cam1/large")
	require.NoError(t, err)
	assert.False(t, ok)
}
