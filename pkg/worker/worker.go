// Package worker runs queued jobs one at a time. Video jobs always go before
// photo jobs; within a kind jobs run in submission order.
package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"site-timelapse/pkg/errs"
	"site-timelapse/pkg/events"
	"site-timelapse/pkg/jobs"
	"site-timelapse/pkg/metrics"
	"site-timelapse/pkg/models"
)

// ProgressFunc records intermediate progress of the running job.
type ProgressFunc func(progress int, message string)

// Processor turns a job into its artifact. It blocks until done.
type Processor interface {
	Process(ctx context.Context, job *models.Job, report ProgressFunc) (*models.Artifact, error)
}

// dispatch order
var kinds = []models.JobKind{models.KindVideo, models.KindPhoto}

type messages struct {
	start, done, failed string
}

var labels = map[models.JobKind]messages{
	models.KindVideo: {"Initializing video generation...", "Video generation completed", "Video generation failed"},
	models.KindPhoto: {"Initializing photo export...", "Photo export completed", "Photo export failed"},
}

type Scheduler struct {
	store      jobs.Store
	processors map[models.JobKind]Processor
	events     events.Publisher

	busy atomic.Bool
	wg   sync.WaitGroup
}

func NewScheduler(store jobs.Store, processors map[models.JobKind]Processor, publisher events.Publisher) *Scheduler {
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &Scheduler{store: store, processors: processors, events: publisher}
}

func (s *Scheduler) save(ctx context.Context, job *models.Job) {
	if err := s.store.Put(ctx, job); err != nil {
		log.Error().Err(err).Str("job", job.ID).Msg("Failed to persist job")
	}
}

func (s *Scheduler) transition(ctx context.Context, job *models.Job, status models.JobStatus, message string) {
	job.Status = status
	job.ProgressMessage = message
	s.save(ctx, job)
	s.events.JobChanged(job)
}

// Enqueue stores job as queued and wakes the worker.
func (s *Scheduler) Enqueue(ctx context.Context, job *models.Job) error {
	if job.ID == "" {
		job.ID = models.NewJobID()
	}
	job.Status = models.StatusQueued
	job.Progress = 0
	job.ProgressMessage = "Waiting in queue..."
	if err := s.store.Put(ctx, job); err != nil {
		return err
	}
	log.Info().Str("job", job.ID).Str("kind", string(job.Kind)).Msg("Job queued")
	s.events.JobChanged(job)
	s.Drain()
	return nil
}

// Drain starts the worker unless it is already running.
func (s *Scheduler) Drain() {
	if !s.busy.CompareAndSwap(false, true) {
		return
	}
	metrics.SchedulerBusy.Set(1)
	s.wg.Add(1)
	go s.loop()
}

// Wait blocks until the worker goes idle.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Busy reports whether a job is being processed.
func (s *Scheduler) Busy() bool {
	return s.busy.Load()
}

func (s *Scheduler) loop() {
	defer s.wg.Done()
	ctx := context.Background()

	for {
		job, err := s.next(ctx)
		if err != nil {
			log.Error().Err(err).Msg("Failed to select next job")
		}
		if job != nil {
			s.run(ctx, job)
			continue
		}

		s.busy.Store(false)
		metrics.SchedulerBusy.Set(0)
		// An Enqueue between next and the release above found the worker busy.
		if err != nil {
			return
		}
		if pending, _ := s.next(ctx); pending == nil || !s.busy.CompareAndSwap(false, true) {
			return
		}
		metrics.SchedulerBusy.Set(1)
	}
}

// next returns the first queued job by kind priority, or nil.
func (s *Scheduler) next(ctx context.Context) (*models.Job, error) {
	var found *models.Job
	for _, kind := range kinds {
		list, err := s.store.List(ctx, kind)
		if err != nil {
			return nil, err
		}
		queued := 0
		for i := range list {
			if list[i].Status != models.StatusQueued {
				continue
			}
			queued++
			if found == nil {
				found = &list[i]
			}
		}
		metrics.JobsQueued.WithLabelValues(string(kind)).Set(float64(queued))
	}
	return found, nil
}

func (s *Scheduler) run(ctx context.Context, job *models.Job) {
	start := time.Now()
	label := labels[job.Kind]
	logger := log.With().Str("job", job.ID).Str("kind", string(job.Kind)).Logger()

	job.Progress = 0
	job.Error = ""
	s.transition(ctx, job, models.StatusStarting, label.start)
	logger.Info().Msg("Job started")

	artifact, err := s.process(ctx, job)
	if err != nil {
		job.Error = err.Error()
		s.transition(ctx, job, models.StatusFailed, label.failed)
		logger.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("Job failed")
	} else {
		job.Progress = 100
		job.ResultPath = artifact.Path
		job.SizeBytes = artifact.SizeBytes
		job.DurationSeconds = artifact.DurationSeconds
		s.transition(ctx, job, models.StatusReady, label.done)
		logger.Info().Str("result", artifact.Path).Dur("elapsed", time.Since(start)).Msg("✅ Job ready")
	}

	metrics.JobsTotal.WithLabelValues(string(job.Kind), string(job.Status)).Inc()
	metrics.JobDuration.WithLabelValues(string(job.Kind)).Observe(time.Since(start).Seconds())
}

func (s *Scheduler) process(ctx context.Context, job *models.Job) (artifact *models.Artifact, err error) {
	proc, ok := s.processors[job.Kind]
	if !ok {
		return nil, fmt.Errorf("no processor for job kind %q", job.Kind)
	}
	defer func() {
		if r := recover(); r != nil {
			artifact, err = nil, fmt.Errorf("processor panic: %v", r)
		}
	}()

	s.transition(ctx, job, models.StatusProcessing, job.ProgressMessage)
	report := func(progress int, message string) {
		if progress < job.Progress {
			progress = job.Progress
		}
		if progress > 100 {
			progress = 100
		}
		job.Progress = progress
		job.ProgressMessage = message
		s.save(ctx, job)
	}

	artifact, err = proc.Process(ctx, job, report)
	if err == nil && artifact == nil {
		err = errors.New("processor returned no artifact")
	}
	return artifact, err
}

// Recover fails jobs left mid-flight by a previous process and drains the
// queue.
func (s *Scheduler) Recover(ctx context.Context) error {
	list, err := s.store.List(ctx, "")
	if err != nil {
		return err
	}
	for i := range list {
		job := &list[i]
		if job.Status != models.StatusStarting && job.Status != models.StatusProcessing {
			continue
		}
		job.Error = "interrupted by restart"
		s.transition(ctx, job, models.StatusFailed, labels[job.Kind].failed)
		log.Warn().Str("job", job.ID).Msg("Marked interrupted job as failed")
	}
	s.Drain()
	return nil
}

// Delete removes a finished job with its list file and artifact. It reports
// false for an unknown id and ErrJobActive while the job can still change.
func (s *Scheduler) Delete(ctx context.Context, id string) (bool, error) {
	job, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if !job.Status.Terminal() {
		return false, fmt.Errorf("%w: job %s is %s", errs.ErrJobActive, id, job.Status)
	}

	ok, err := s.store.Delete(ctx, id)
	if err != nil || !ok {
		return ok, err
	}
	for _, p := range []string{job.ListFile, job.ResultPath} {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", p).Msg("Failed to remove job file")
		}
	}
	log.Info().Str("job", id).Msg("Job deleted")
	return true, nil
}
