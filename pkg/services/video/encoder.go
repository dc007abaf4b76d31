package video

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"site-timelapse/pkg/config"
	"site-timelapse/pkg/errs"
	"site-timelapse/pkg/metrics"
	"site-timelapse/pkg/models"
	"site-timelapse/pkg/util"
	"site-timelapse/pkg/worker"
)

// DefaultBatchSize is the number of frames encoded per ffmpeg invocation.
const DefaultBatchSize = 200

// Runner executes one ffmpeg invocation. When onProgress is set it is called
// with the encoder's current output position.
type Runner interface {
	Run(ctx context.Context, args []string, onProgress func(outTime time.Duration)) error
}

// FFmpegRunner runs the ffmpeg binary and appends its output to the dated
// ffmpeg log file.
type FFmpegRunner struct {
	Binary string
}

func (r FFmpegRunner) Run(ctx context.Context, args []string, onProgress func(time.Duration)) error {
	binary := r.Binary
	if binary == "" {
		binary = "ffmpeg"
	}
	if onProgress != nil {
		args = append([]string{"-progress", "pipe:1", "-nostats"}, args...)
	}
	cmd := exec.CommandContext(ctx, binary, append([]string{"-hide_banner"}, args...)...)

	logFile, err := os.OpenFile(config.GetFFmpegLogPath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open FFmpeg log file: %w", err)
	}
	defer logFile.Close()
	fmt.Fprintf(logFile, "\n=== %s %s\n", time.Now().Format(time.RFC3339), strings.Join(cmd.Args, " "))
	cmd.Stderr = logFile

	if onProgress == nil {
		cmd.Stdout = logFile
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("ffmpeg execution failed: %w", err)
		}
		return nil
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to attach ffmpeg stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}
	scanProgress(stdout, onProgress)
	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg execution failed: %w", err)
	}
	return nil
}

// scanProgress reads "-progress" key=value lines and reports out_time_us.
func scanProgress(r io.Reader, onProgress func(time.Duration)) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(sc.Text()), "=")
		if !ok || (key != "out_time_us" && key != "out_time_ms") {
			continue
		}
		// Both keys carry microseconds.
		us, err := strconv.ParseInt(value, 10, 64)
		if err != nil || us < 0 {
			continue
		}
		onProgress(time.Duration(us) * time.Microsecond)
	}
}

// Request is one video to encode from already local frames.
type Request struct {
	ID         string
	Frames     []string
	OutputPath string
	FrameRate  int
	Resolution Resolution
	ShowDate   bool
	Caption    string
	LogoPath   string
	// WatermarkPath is overlaid centered at 20% opacity.
	WatermarkPath string
	MusicPath     string
	Color         Color
}

// Encoder encodes frames in fixed size batches, stream-copies the batches
// together and applies a final color and audio pass.
type Encoder struct {
	runner     Runner
	batchSize  int
	keepFailed bool
}

func NewEncoder(runner Runner, batchSize int, keepFailed bool) *Encoder {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Encoder{runner: runner, batchSize: batchSize, keepFailed: keepFailed}
}

// scratch tracks intermediate files for cleanup.
type scratch struct {
	files []string
}

func (s *scratch) add(p string) string {
	s.files = append(s.files, p)
	return p
}

func (s *scratch) remove(paths ...string) {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", p).Msg("Failed to remove scratch file")
		}
	}
}

func (s *scratch) removeAll() {
	s.remove(s.files...)
}

func frameDate(framePath string) string {
	ts, ok := models.TimestampFromName(framePath)
	if !ok {
		return ""
	}
	return models.FormatDate(ts[:8])
}

// Encode produces req.OutputPath. Progress is reported through 0-80 for the
// batches, 80 for concatenation and up to 95 during the final pass.
func (e *Encoder) Encode(ctx context.Context, req Request, report worker.ProgressFunc) error {
	n := len(req.Frames)
	if n < 2 {
		return fmt.Errorf("%w: a video needs at least 2 frames, got %d", errs.ErrInsufficientFrames, n)
	}
	if req.FrameRate < 1 {
		req.FrameRate = DefaultFrameRate
	}
	if report == nil {
		report = func(int, string) {}
	}

	dir := filepath.Dir(req.OutputPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	fps := strconv.Itoa(req.FrameRate)
	sc := &scratch{}
	fail := func(err error) error {
		if !e.keepFailed {
			sc.removeAll()
			sc.remove(req.OutputPath)
		} else {
			log.Warn().Str("job", req.ID).Strs("files", sc.files).Msg("Keeping scratch files of failed encode")
		}
		return err
	}

	batches := (n + e.batchSize - 1) / e.batchSize
	batchVideos := make([]string, 0, batches)
	for i := 0; i < batches; i++ {
		frames := req.Frames[i*e.batchSize : min((i+1)*e.batchSize, n)]
		listPath := sc.add(filepath.Join(dir, fmt.Sprintf("batch_list_%s_%d.txt", req.ID, i)))
		videoPath := sc.add(filepath.Join(dir, fmt.Sprintf("batch_video_%s_%d.mp4", req.ID, i)))

		if err := util.WriteListFile(listPath, frames); err != nil {
			return fail(err)
		}

		args := []string{"-y", "-f", "concat", "-safe", "0", "-r", fps, "-i", listPath}
		opts := BatchOptions{Resolution: req.Resolution, Caption: req.Caption}
		next := 1
		if req.LogoPath != "" {
			args = append(args, "-i", req.LogoPath)
			opts.Inputs.Logo = next
			next++
		}
		if req.WatermarkPath != "" {
			args = append(args, "-i", req.WatermarkPath)
			opts.Inputs.Watermark = next
		}
		if req.ShowDate {
			opts.Dates = make([]string, len(frames))
			for j, f := range frames {
				opts.Dates[j] = frameDate(f)
			}
		}
		args = append(args,
			"-filter_complex", BatchGraph(opts).String(),
			"-map", "["+OutputLabel+"]",
			"-r", fps, "-c:v", "libx264", "-preset", "slow", "-crf", "18", "-pix_fmt", "yuv420p",
			videoPath,
		)

		err := metrics.ObserveStage("batch", func() error { return e.runner.Run(ctx, args, nil) })
		if err != nil {
			return fail(errs.Encode(fmt.Sprintf("batch %d of %d", i+1, batches), err))
		}
		metrics.EncoderBatchesTotal.Inc()
		sc.remove(listPath)
		batchVideos = append(batchVideos, videoPath)
		report((i+1)*80/batches, fmt.Sprintf("Processing batch %d of %d (%d images)", i+1, batches, len(frames)))
	}

	report(80, "Concatenating video segments...")
	concatList := sc.add(filepath.Join(dir, fmt.Sprintf("concat_list_%s.txt", req.ID)))
	noAudio := sc.add(strings.TrimSuffix(req.OutputPath, filepath.Ext(req.OutputPath)) + "_no_audio.mp4")
	if err := util.WriteListFile(concatList, batchVideos); err != nil {
		return fail(err)
	}
	args := []string{"-y", "-f", "concat", "-safe", "0", "-i", concatList, "-c", "copy", noAudio}
	if err := metrics.ObserveStage("concat", func() error { return e.runner.Run(ctx, args, nil) }); err != nil {
		return fail(errs.Encode("concat", err))
	}
	sc.remove(batchVideos...)
	sc.remove(concatList)

	report(80, "Applying visual effects and audio...")
	args = []string{"-y", "-i", noAudio}
	if req.MusicPath != "" {
		args = append(args, "-i", req.MusicPath)
	}
	args = append(args, "-filter_complex", FinalGraph(req.Color).String(), "-map", "["+OutputLabel+"]")
	if req.MusicPath != "" {
		args = append(args, "-map", "1:a", "-shortest")
	}
	args = append(args, "-c:v", "libx264", "-preset", "slow", "-crf", "18", "-pix_fmt", "yuv420p", req.OutputPath)

	expected := time.Duration(float64(n) / float64(req.FrameRate) * float64(time.Second))
	onProgress := func(out time.Duration) {
		report(finalProgress(out, expected), "Finalizing video...")
	}
	if err := metrics.ObserveStage("final", func() error { return e.runner.Run(ctx, args, onProgress) }); err != nil {
		return fail(errs.Encode("final pass", err))
	}
	if util.IsFileEmpty(req.OutputPath) {
		return fail(errs.Encode("final pass", fmt.Errorf("ffmpeg produced an empty %s", filepath.Base(req.OutputPath))))
	}
	sc.remove(noAudio)

	log.Info().Str("job", req.ID).Int("frames", n).Int("batches", batches).Str("output", req.OutputPath).Msg("✅ Video encoded")
	return nil
}

// finalProgress maps the final pass position into 80..95.
func finalProgress(out, expected time.Duration) int {
	if expected <= 0 {
		return 80
	}
	p := 80 + int(float64(out)/float64(expected)*20)
	return max(80, min(p, 95))
}
