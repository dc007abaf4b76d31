package jobs

import (
	"context"
	"database/sql"
	"os"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"site-timelapse/pkg/errs"
	"site-timelapse/pkg/models"
)

func setupTestDB(t *testing.T) *SQLiteStore {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	store, err := NewSQLiteStore(db)
	require.NoError(t, err)
	return store
}

func newJob(kind models.JobKind) *models.Job {
	return &models.Job{
		ID:        models.NewJobID(),
		Kind:      kind,
		Tags:      models.Tags{Owner: "dsv", Collection: "p1", Device: "cam1"},
		DateRange: models.DateRange{Start: "20240101", End: "20240107"},
		HourRange: models.HourRange{Start: "08", End: "18"},
		Status:    models.StatusQueued,
		Requester: models.Requester{ID: "1", Name: "admin"},
	}
}

func exerciseStore(t *testing.T, store Store) {
	ctx := context.Background()

	video := newJob(models.KindVideo)
	video.Video = &models.VideoParams{FrameRate: 25, Resolution: "HD", Contrast: 1, Saturation: 1}
	photo := newJob(models.KindPhoto)
	video2 := newJob(models.KindVideo)

	for _, j := range []*models.Job{video, photo, video2} {
		require.NoError(t, store.Put(ctx, j))
		assert.False(t, j.CreatedAt.IsZero())
	}

	got, err := store.Get(ctx, video.ID)
	require.NoError(t, err)
	assert.Equal(t, video.Tags, got.Tags)
	assert.Equal(t, models.StatusQueued, got.Status)
	require.NotNil(t, got.Video)
	assert.Equal(t, 25, got.Video.FrameRate)

	// Updating keeps insertion order.
	video.Status = models.StatusReady
	video.Progress = 100
	video.ResultPath = "/exports/video.mp4"
	require.NoError(t, store.Put(ctx, video))

	videos, err := store.List(ctx, models.KindVideo)
	require.NoError(t, err)
	require.Len(t, videos, 2)
	assert.Equal(t, video.ID, videos[0].ID)
	assert.Equal(t, models.StatusReady, videos[0].Status)
	assert.Equal(t, 100, videos[0].Progress)
	assert.Equal(t, video2.ID, videos[1].ID)

	all, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	ok, err := store.Delete(ctx, photo.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = store.Delete(ctx, photo.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = store.Get(ctx, photo.ID)
	assert.ErrorIs(t, err, errs.ErrNotFound)

	photos, err := store.List(ctx, models.KindPhoto)
	require.NoError(t, err)
	assert.Empty(t, photos)
}

func TestSQLiteStore(t *testing.T) {
	exerciseStore(t, setupTestDB(t))
}

func TestSQLiteStoreSchemaIsIdempotent(t *testing.T) {
	store := setupTestDB(t)
	_, err := NewSQLiteStore(store.db)
	assert.NoError(t, err)
}

func TestPostgresStore(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	store, err := NewPostgresStore(context.Background(), url)
	require.NoError(t, err)
	defer store.Close()
	_, err = store.db.Exec(context.Background(), "TRUNCATE jobs")
	require.NoError(t, err)

	exerciseStore(t, store)
}
