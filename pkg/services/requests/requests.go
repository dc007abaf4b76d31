// Package requests turns validated video and photo export requests into
// scheduled jobs.
package requests

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"site-timelapse/pkg/archive"
	"site-timelapse/pkg/errs"
	"site-timelapse/pkg/jobs"
	"site-timelapse/pkg/models"
	"site-timelapse/pkg/sampler"
	"site-timelapse/pkg/services/video"
	"site-timelapse/pkg/util"
	"site-timelapse/pkg/worker"
)

// Selection picks frames of one camera by date and hour.
type Selection struct {
	Tags      models.Tags
	StartDate string
	EndDate   string
	StartHour string
	EndHour   string
}

// VideoOptions are the encoding choices of a video request. LogoPath and
// WatermarkPath point at already normalized uploads.
type VideoOptions struct {
	Duration      float64
	FrameRate     int
	Speed         string
	Resolution    string
	ShowDate      bool
	Caption       string
	LogoPath      string
	WatermarkPath string
	Music         bool
	MusicFile     string
	Contrast      float64
	Brightness    float64
	Saturation    float64
}

// DefaultVideoOptions leaves the picture untouched.
func DefaultVideoOptions() VideoOptions {
	return VideoOptions{Contrast: 1, Saturation: 1, Resolution: "HD"}
}

// Submission is returned to the caller of a submit operation.
// EstimatedDuration is the expected video length in seconds; photo
// submissions leave it zero.
type Submission struct {
	ID                string `json:"id"`
	MatchedFrameCount int    `json:"matchedFrameCount"`
	EstimatedDuration int    `json:"estimatedDuration,omitempty"`
}

// ListFilter narrows List. Zero fields match everything.
type ListFilter struct {
	Kind  models.JobKind
	Owner string
}

// JobView is a job as listed to clients.
type JobView struct {
	models.Job
	DownloadURL string `json:"downloadUrl,omitempty"`
}

type Service struct {
	index        *archive.Index
	sampler      *sampler.Sampler
	materializer *archive.Materializer
	scheduler    *worker.Scheduler
	store        jobs.Store
	exportDir    string
}

func NewService(index *archive.Index, materializer *archive.Materializer, scheduler *worker.Scheduler, store jobs.Store, exportDir string) *Service {
	return &Service{
		index:        index,
		sampler:      sampler.New(index),
		materializer: materializer,
		scheduler:    scheduler,
		store:        store,
		exportDir:    exportDir,
	}
}

type resolved struct {
	tags   models.Tags
	dates  models.DateRange
	hours  models.HourRange
	frames []models.Frame
}

func (s *Service) resolve(ctx context.Context, sel Selection) (*resolved, error) {
	if err := sel.Tags.Validate(); err != nil {
		return nil, err
	}
	dates, err := models.NormalizeDateRange(sel.StartDate, sel.EndDate)
	if err != nil {
		return nil, err
	}
	hours, err := models.NormalizeHourRange(sel.StartHour, sel.EndHour)
	if err != nil {
		return nil, err
	}
	all, err := s.index.ByDateRange(ctx, sel.Tags, models.VariantLarge, dates.Start, dates.End)
	if err != nil {
		return nil, err
	}
	frames := make([]models.Frame, 0, len(all))
	for _, f := range all {
		if h := f.Hour(); h >= hours.Start && h <= hours.End {
			frames = append(frames, f)
		}
	}
	return &resolved{tags: sel.Tags, dates: dates, hours: hours, frames: frames}, nil
}

func (s *Service) jobDir(tags models.Tags) string {
	return filepath.Join(s.exportDir, tags.Owner, tags.Collection, tags.Device)
}

func (s *Service) writeList(id string, tags models.Tags, frames []models.Frame) (string, error) {
	paths := make([]string, len(frames))
	for i, f := range frames {
		paths[i] = s.materializer.LocalPath(f.Key())
	}
	listFile := filepath.Join(s.jobDir(tags), fmt.Sprintf("image_list_%s.txt", id))
	if err := util.WriteListFile(listFile, paths); err != nil {
		return "", err
	}
	return listFile, nil
}

func videoParams(opts VideoOptions, fps int) *models.VideoParams {
	_, class := video.ParseResolution(opts.Resolution)
	color := video.Color{Contrast: opts.Contrast, Brightness: opts.Brightness, Saturation: opts.Saturation}.Clamped()
	params := &models.VideoParams{
		FrameRate:     fps,
		Resolution:    class,
		ShowDate:      opts.ShowDate,
		Caption:       opts.Caption,
		LogoPath:      opts.LogoPath,
		WatermarkPath: opts.WatermarkPath,
		Music:         opts.Music,
		Contrast:      color.Contrast,
		Brightness:    color.Brightness,
		Saturation:    color.Saturation,
	}
	if opts.Music && opts.MusicFile != "" {
		params.MusicFile = filepath.Base(opts.MusicFile)
	}
	return params
}

func (s *Service) enqueue(ctx context.Context, job *models.Job, frames []models.Frame) (*Submission, error) {
	listFile, err := s.writeList(job.ID, job.Tags, frames)
	if err != nil {
		return nil, err
	}
	job.ListFile = listFile
	job.FrameCount = len(frames)
	if err := s.scheduler.Enqueue(ctx, job); err != nil {
		os.Remove(listFile)
		return nil, err
	}
	log.Info().Str("job", job.ID).Str("kind", string(job.Kind)).Str("camera", job.Tags.String()).
		Int("frames", job.FrameCount).Msg("Job submitted")
	return &Submission{ID: job.ID, MatchedFrameCount: job.FrameCount}, nil
}

func (s *Service) enqueueVideo(ctx context.Context, job *models.Job, frames []models.Frame) (*Submission, error) {
	sub, err := s.enqueue(ctx, job, frames)
	if err != nil {
		return nil, err
	}
	sub.EstimatedDuration = video.EstimatedDuration(len(frames), job.Video.FrameRate)
	return sub, nil
}

// SubmitVideo schedules a timelapse of the selected frames. Uploaded assets
// referenced by opts are removed when the request is rejected.
func (s *Service) SubmitVideo(ctx context.Context, sel Selection, opts VideoOptions, requester models.Requester) (sub *Submission, err error) {
	defer func() {
		if err != nil {
			video.RemoveAssets(opts.LogoPath, opts.WatermarkPath)
		}
	}()

	r, err := s.resolve(ctx, sel)
	if err != nil {
		return nil, err
	}
	switch len(r.frames) {
	case 0:
		return nil, errs.NotFound("no pictures found for %s between %s and %s", r.tags, r.dates.Start, r.dates.End)
	case 1:
		return nil, fmt.Errorf("%w: a video needs at least 2 frames, found 1", errs.ErrInsufficientFrames)
	}

	fps := video.FrameRate(len(r.frames), opts.Duration, opts.FrameRate, opts.Speed)
	job := &models.Job{
		ID:        models.NewJobID(),
		Kind:      models.KindVideo,
		Tags:      r.tags,
		DateRange: r.dates,
		HourRange: r.hours,
		Requester: requester,
		Video:     videoParams(opts, fps),
	}
	return s.enqueueVideo(ctx, job, r.frames)
}

// SubmitPhoto schedules a ZIP export of the selected frames.
func (s *Service) SubmitPhoto(ctx context.Context, sel Selection, requester models.Requester) (*Submission, error) {
	r, err := s.resolve(ctx, sel)
	if err != nil {
		return nil, err
	}
	if len(r.frames) == 0 {
		return nil, errs.NotFound("no pictures found for %s between %s and %s", r.tags, r.dates.Start, r.dates.End)
	}
	job := &models.Job{
		ID:        models.NewJobID(),
		Kind:      models.KindPhoto,
		Tags:      r.tags,
		DateRange: r.dates,
		HourRange: r.hours,
		Requester: requester,
	}
	return s.enqueue(ctx, job, r.frames)
}

// SubmitWeeklyVideo schedules a video of the weekly sample of a camera.
func (s *Service) SubmitWeeklyVideo(ctx context.Context, tags models.Tags, opts VideoOptions, requester models.Requester) (sub *Submission, err error) {
	defer func() {
		if err != nil {
			video.RemoveAssets(opts.LogoPath, opts.WatermarkPath)
		}
	}()

	if err := tags.Validate(); err != nil {
		return nil, err
	}
	frames, err := s.sampler.Weekly(ctx, tags)
	if err != nil {
		return nil, err
	}
	fps := video.FrameRate(len(frames), opts.Duration, opts.FrameRate, opts.Speed)
	job := &models.Job{
		ID:        models.NewJobID(),
		Kind:      models.KindVideo,
		Tags:      tags,
		DateRange: models.DateRange{Start: frames[0].Date(), End: frames[len(frames)-1].Date()},
		HourRange: models.HourRange{Start: "12", End: "12"},
		Requester: requester,
		Video:     videoParams(opts, fps),
	}
	return s.enqueueVideo(ctx, job, frames)
}

// List returns the jobs matching f, oldest first.
func (s *Service) List(ctx context.Context, f ListFilter) ([]JobView, error) {
	switch f.Kind {
	case "", models.KindVideo, models.KindPhoto:
	default:
		return nil, errs.Validation("unknown job kind %q", f.Kind)
	}
	list, err := s.store.List(ctx, f.Kind)
	if err != nil {
		return nil, err
	}
	views := make([]JobView, 0, len(list))
	for _, job := range list {
		if f.Owner != "" && job.Tags.Owner != f.Owner {
			continue
		}
		view := JobView{Job: job}
		if job.Status == models.StatusReady {
			view.DownloadURL = DownloadURL(job.ID)
		}
		views = append(views, view)
	}
	return views, nil
}

// DownloadURL is the route serving the artifact of a ready job.
func DownloadURL(id string) string {
	return "/api/jobs/" + id + "/download"
}

// Artifact returns the job and its artifact path when the job is ready.
func (s *Service) Artifact(ctx context.Context, id string) (*models.Job, error) {
	job, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !job.Status.Terminal() {
		return nil, fmt.Errorf("%w: job %s is %s", errs.ErrJobActive, id, job.Status)
	}
	if job.Status != models.StatusReady || job.ResultPath == "" {
		return nil, errs.NotFound("job %s has no artifact", id)
	}
	if !util.FileExists(job.ResultPath) {
		return nil, errs.NotFound("artifact of job %s is gone", id)
	}
	return job, nil
}

// Delete removes a finished job and its files.
func (s *Service) Delete(ctx context.Context, id string) (bool, error) {
	return s.scheduler.Delete(ctx, id)
}
