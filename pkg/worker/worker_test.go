package worker

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"site-timelapse/pkg/errs"
	"site-timelapse/pkg/jobs"
	"site-timelapse/pkg/models"
)

type mockProcessor struct {
	mock.Mock
}

func (m *mockProcessor) Process(ctx context.Context, job *models.Job, report ProgressFunc) (*models.Artifact, error) {
	args := m.Called(ctx, job, report)
	var artifact *models.Artifact
	if a := args.Get(0); a != nil {
		artifact = a.(*models.Artifact)
	}
	return artifact, args.Error(1)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) JobChanged(job *models.Job) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, job.ID+":"+string(job.Status))
}

func setupTestStore(t *testing.T) *jobs.SQLiteStore {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	store, err := jobs.NewSQLiteStore(db)
	require.NoError(t, err)
	return store
}

func newJob(kind models.JobKind) *models.Job {
	return &models.Job{
		ID:   models.NewJobID(),
		Kind: kind,
		Tags: models.Tags{Owner: "dsv", Collection: "p1", Device: "cam1"},
	}
}

func getJob(t *testing.T, store jobs.Store, id string) *models.Job {
	job, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	return job
}

func TestSchedulerRunsJobToReady(t *testing.T) {
	store := setupTestStore(t)
	video := &mockProcessor{}
	pub := &recordingPublisher{}
	s := NewScheduler(store, map[models.JobKind]Processor{models.KindVideo: video}, pub)

	job := newJob(models.KindVideo)
	video.On("Process", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			report := args.Get(2).(ProgressFunc)
			report(40, "Processing batch 1 of 2 (200 images)")
			report(20, "stale update")
			report(80, "Processing batch 2 of 2 (10 images)")
		}).
		Return(&models.Artifact{Path: "/exports/video.mp4", SizeBytes: 2048, DurationSeconds: 8.4}, nil).Once()

	require.NoError(t, s.Enqueue(context.Background(), job))
	s.Wait()

	got := getJob(t, store, job.ID)
	assert.Equal(t, models.StatusReady, got.Status)
	assert.Equal(t, 100, got.Progress)
	assert.Equal(t, "Video generation completed", got.ProgressMessage)
	assert.Equal(t, "/exports/video.mp4", got.ResultPath)
	assert.Equal(t, int64(2048), got.SizeBytes)
	assert.InDelta(t, 8.4, got.DurationSeconds, 0.001)
	assert.False(t, s.Busy())

	assert.Equal(t, []string{
		job.ID + ":queued",
		job.ID + ":starting",
		job.ID + ":processing",
		job.ID + ":ready",
	}, pub.events)
	video.AssertExpectations(t)
}

func TestSchedulerProgressIsMonotonic(t *testing.T) {
	store := setupTestStore(t)
	video := &mockProcessor{}
	s := NewScheduler(store, map[models.JobKind]Processor{models.KindVideo: video}, nil)

	var seen []int
	job := newJob(models.KindVideo)
	video.On("Process", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			j := args.Get(1).(*models.Job)
			report := args.Get(2).(ProgressFunc)
			for _, p := range []int{10, 50, 30, 80, 120} {
				report(p, "step")
				seen = append(seen, j.Progress)
			}
		}).
		Return(&models.Artifact{Path: "out.mp4"}, nil)

	require.NoError(t, s.Enqueue(context.Background(), job))
	s.Wait()
	assert.Equal(t, []int{10, 50, 50, 80, 100}, seen)
}

func TestSchedulerNeverOverlapsJobs(t *testing.T) {
	store := setupTestStore(t)
	video, photo := &mockProcessor{}, &mockProcessor{}
	s := NewScheduler(store, map[models.JobKind]Processor{
		models.KindVideo: video,
		models.KindPhoto: photo,
	}, nil)

	release := make(chan struct{})
	started := make(chan struct{})
	var mu sync.Mutex
	running, maxRunning := 0, 0
	track := func(block bool) func(mock.Arguments) {
		return func(mock.Arguments) {
			mu.Lock()
			running++
			if running > maxRunning {
				maxRunning = running
			}
			mu.Unlock()
			if block {
				close(started)
				<-release
			}
			mu.Lock()
			running--
			mu.Unlock()
		}
	}
	video.On("Process", mock.Anything, mock.Anything, mock.Anything).Run(track(true)).Return(&models.Artifact{Path: "a.mp4"}, nil)
	photo.On("Process", mock.Anything, mock.Anything, mock.Anything).Run(track(false)).Return(&models.Artifact{Path: "b.zip"}, nil)

	a, b := newJob(models.KindVideo), newJob(models.KindPhoto)
	require.NoError(t, s.Enqueue(context.Background(), a))
	<-started
	require.NoError(t, s.Enqueue(context.Background(), b))

	assert.Equal(t, models.StatusQueued, getJob(t, store, b.ID).Status)
	assert.True(t, s.Busy())

	close(release)
	s.Wait()

	assert.Equal(t, models.StatusReady, getJob(t, store, a.ID).Status)
	assert.Equal(t, models.StatusReady, getJob(t, store, b.ID).Status)
	assert.Equal(t, 1, maxRunning)
}

func TestSchedulerVideoBeforePhoto(t *testing.T) {
	store := setupTestStore(t)
	video, photo := &mockProcessor{}, &mockProcessor{}
	s := NewScheduler(store, map[models.JobKind]Processor{
		models.KindVideo: video,
		models.KindPhoto: photo,
	}, nil)

	var mu sync.Mutex
	var order []string
	record := func(args mock.Arguments) {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, args.Get(1).(*models.Job).ID)
	}
	video.On("Process", mock.Anything, mock.Anything, mock.Anything).Run(record).Return(&models.Artifact{Path: "v.mp4"}, nil)
	photo.On("Process", mock.Anything, mock.Anything, mock.Anything).Run(record).Return(&models.Artifact{Path: "p.zip"}, nil)

	// Queue everything before the worker starts.
	ctx := context.Background()
	p1, v1, p2, v2 := newJob(models.KindPhoto), newJob(models.KindVideo), newJob(models.KindPhoto), newJob(models.KindVideo)
	for _, j := range []*models.Job{p1, v1, p2, v2} {
		j.Status = models.StatusQueued
		require.NoError(t, store.Put(ctx, j))
	}
	s.Drain()
	s.Wait()

	assert.Equal(t, []string{v1.ID, v2.ID, p1.ID, p2.ID}, order)
}

func TestSchedulerFailureDoesNotBlockQueue(t *testing.T) {
	store := setupTestStore(t)
	video, photo := &mockProcessor{}, &mockProcessor{}
	s := NewScheduler(store, map[models.JobKind]Processor{
		models.KindVideo: video,
		models.KindPhoto: photo,
	}, nil)

	video.On("Process", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errs.Encode("batch 1", errors.New("exit status 1")))
	photo.On("Process", mock.Anything, mock.Anything, mock.Anything).
		Return(&models.Artifact{Path: "p.zip"}, nil)

	ctx := context.Background()
	v, p := newJob(models.KindVideo), newJob(models.KindPhoto)
	v.Status, p.Status = models.StatusQueued, models.StatusQueued
	require.NoError(t, store.Put(ctx, v))
	require.NoError(t, store.Put(ctx, p))
	s.Drain()
	s.Wait()

	failed := getJob(t, store, v.ID)
	assert.Equal(t, models.StatusFailed, failed.Status)
	assert.Equal(t, "Video generation failed", failed.ProgressMessage)
	assert.Contains(t, failed.Error, "encode failure")
	assert.Equal(t, models.StatusReady, getJob(t, store, p.ID).Status)

	// No retry.
	video.AssertNumberOfCalls(t, "Process", 1)
}

func TestSchedulerUnknownKindFails(t *testing.T) {
	store := setupTestStore(t)
	s := NewScheduler(store, map[models.JobKind]Processor{}, nil)

	job := newJob(models.KindPhoto)
	require.NoError(t, s.Enqueue(context.Background(), job))
	s.Wait()
	assert.Equal(t, models.StatusFailed, getJob(t, store, job.ID).Status)
}

func TestSchedulerRecover(t *testing.T) {
	store := setupTestStore(t)
	photo := &mockProcessor{}
	photo.On("Process", mock.Anything, mock.Anything, mock.Anything).Return(&models.Artifact{Path: "p.zip"}, nil)
	s := NewScheduler(store, map[models.JobKind]Processor{models.KindPhoto: photo}, nil)

	ctx := context.Background()
	stuck, waiting := newJob(models.KindPhoto), newJob(models.KindPhoto)
	stuck.Status = models.StatusProcessing
	stuck.Progress = 40
	waiting.Status = models.StatusQueued
	require.NoError(t, store.Put(ctx, stuck))
	require.NoError(t, store.Put(ctx, waiting))

	require.NoError(t, s.Recover(ctx))
	s.Wait()

	got := getJob(t, store, stuck.ID)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.Equal(t, "interrupted by restart", got.Error)
	assert.Equal(t, models.StatusReady, getJob(t, store, waiting.ID).Status)
	photo.AssertNumberOfCalls(t, "Process", 1)
}

func TestSchedulerDelete(t *testing.T) {
	store := setupTestStore(t)
	s := NewScheduler(store, nil, nil)
	ctx := context.Background()
	dir := t.TempDir()

	done := newJob(models.KindVideo)
	done.Status = models.StatusReady
	done.ListFile = filepath.Join(dir, "image_list_"+done.ID+".txt")
	done.ResultPath = filepath.Join(dir, "video_"+done.ID+".mp4")
	os.WriteFile(done.ListFile, []byte("file '/a.jpg'\n"), 0644)
	os.WriteFile(done.ResultPath, []byte("mp4"), 0644)
	require.NoError(t, store.Put(ctx, done))

	for _, status := range []models.JobStatus{models.StatusQueued, models.StatusStarting, models.StatusProcessing} {
		active := newJob(models.KindPhoto)
		active.Status = status
		require.NoError(t, store.Put(ctx, active))

		ok, err := s.Delete(ctx, active.ID)
		assert.False(t, ok)
		assert.ErrorIs(t, err, errs.ErrJobActive, "status %s", status)
		assert.Equal(t, status, getJob(t, store, active.ID).Status)
	}

	ok, err := s.Delete(ctx, done.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoFileExists(t, done.ListFile)
	assert.NoFileExists(t, done.ResultPath)

	ok, err = s.Delete(ctx, done.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDrainIsIdempotentWhenIdle(t *testing.T) {
	s := NewScheduler(setupTestStore(t), nil, nil)
	s.Drain()
	s.Drain()
	done := make(chan struct{})
	go func() {
		s.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not go idle")
	}
	assert.False(t, s.Busy())
}
