package video

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"site-timelapse/pkg/archive"
	"site-timelapse/pkg/models"
	"site-timelapse/pkg/util"
	"site-timelapse/pkg/worker"
)

// DefaultFrameRate is used when neither a duration, a frame rate nor a speed
// preset is given.
const DefaultFrameRate = 25

var speedPresets = map[string]int{
	"fast":    30,
	"regular": 15,
	"slow":    5,
}

// FrameRate derives the output rate for n frames. A target duration in
// seconds wins over an explicit rate, which wins over a speed preset.
func FrameRate(n int, durationSec float64, explicit int, speed string) int {
	switch {
	case durationSec > 0 && n > 0:
		return max(1, int(math.Ceil(float64(n)/durationSec)))
	case explicit > 0:
		return explicit
	}
	if fps, ok := speedPresets[strings.ToLower(speed)]; ok {
		return fps
	}
	return DefaultFrameRate
}

// EstimatedDuration returns the length in whole seconds of n frames played at
// fps.
func EstimatedDuration(n, fps int) int {
	if fps < 1 {
		fps = DefaultFrameRate
	}
	return int(math.Round(float64(n) / float64(fps)))
}

// Processor runs video jobs for the scheduler.
type Processor struct {
	encoder      *Encoder
	materializer *archive.Materializer
	musicDir     string
}

func NewProcessor(encoder *Encoder, materializer *archive.Materializer, musicDir string) *Processor {
	return &Processor{encoder: encoder, materializer: materializer, musicDir: musicDir}
}

// OutputPath is where the video of job is written.
func OutputPath(job *models.Job) string {
	return filepath.Join(filepath.Dir(job.ListFile), fmt.Sprintf("video_%s.mp4", job.ID))
}

func (p *Processor) request(job *models.Job, frames []string) Request {
	params := job.Video
	if params == nil {
		params = &models.VideoParams{Contrast: 1, Saturation: 1}
	}
	res, _ := ParseResolution(params.Resolution)
	req := Request{
		ID:            job.ID,
		Frames:        frames,
		OutputPath:    OutputPath(job),
		FrameRate:     params.FrameRate,
		Resolution:    res,
		ShowDate:      params.ShowDate,
		Caption:       params.Caption,
		LogoPath:      params.LogoPath,
		WatermarkPath: params.WatermarkPath,
		Color: Color{
			Contrast:   params.Contrast,
			Brightness: params.Brightness,
			Saturation: params.Saturation,
		},
	}
	if params.Music && params.MusicFile != "" {
		req.MusicPath = filepath.Join(p.musicDir, filepath.Base(params.MusicFile))
	}
	return req
}

func (p *Processor) Process(ctx context.Context, job *models.Job, report worker.ProgressFunc) (*models.Artifact, error) {
	frames, err := util.ReadListFile(job.ListFile)
	if err != nil {
		return nil, err
	}
	if p.materializer != nil {
		// A missing frame would shift the timing of every later one.
		if _, err := p.materializer.Ensure(ctx, frames, true); err != nil {
			return nil, err
		}
	}

	req := p.request(job, frames)
	defer RemoveAssets(req.LogoPath, req.WatermarkPath)

	if err := p.encoder.Encode(ctx, req, report); err != nil {
		return nil, err
	}

	info, err := os.Stat(req.OutputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat video: %w", err)
	}
	artifact := &models.Artifact{Path: req.OutputPath, SizeBytes: info.Size()}
	if d, err := util.ProbeDuration(ctx, req.OutputPath); err != nil {
		log.Warn().Err(err).Str("job", job.ID).Msg("Could not read video duration")
	} else {
		artifact.DurationSeconds = d
	}
	return artifact, nil
}

// RemoveAssets deletes uploaded overlay files; empty paths are ignored.
func RemoveAssets(paths ...string) {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", p).Msg("Failed to remove uploaded asset")
		}
	}
}
