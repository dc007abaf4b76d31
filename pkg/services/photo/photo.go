// Package photo packages a job's frame list into a ZIP archive.
package photo

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"

	"site-timelapse/pkg/archive"
	"site-timelapse/pkg/errs"
	"site-timelapse/pkg/metrics"
	"site-timelapse/pkg/models"
	"site-timelapse/pkg/util"
	"site-timelapse/pkg/worker"
)

// ZipMethodZstd is the ZIP method id assigned to Zstandard.
const ZipMethodZstd uint16 = 93

// Compression names accepted by NewPackager.
const (
	CompressionDeflate = "deflate"
	CompressionZstd    = "zstd"
	CompressionStore   = "store"
)

// Packager writes photos_<id>.zip next to the job's list file.
type Packager struct {
	materializer *archive.Materializer
	compression  string
}

func NewPackager(materializer *archive.Materializer, compression string) *Packager {
	switch compression {
	case CompressionZstd, CompressionStore:
	default:
		compression = CompressionDeflate
	}
	return &Packager{materializer: materializer, compression: compression}
}

// OutputPath is where the archive of job is written.
func OutputPath(job *models.Job) string {
	return filepath.Join(filepath.Dir(job.ListFile), fmt.Sprintf("photos_%s.zip", job.ID))
}

func (p *Packager) method() uint16 {
	switch p.compression {
	case CompressionZstd:
		return ZipMethodZstd
	case CompressionStore:
		return zip.Store
	}
	return zip.Deflate
}

func newZipWriter(w io.Writer) *zip.Writer {
	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestCompression)
	})
	zw.RegisterCompressor(ZipMethodZstd, func(out io.Writer) (io.WriteCloser, error) {
		return zstd.NewWriter(out, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	})
	return zw
}

// Package writes every existing frame into the archive at out, named by its
// base name. Missing frames are skipped with a warning. It returns the number
// of entries written.
func (p *Packager) Package(frames []string, out string, report worker.ProgressFunc) (int, error) {
	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		return 0, fmt.Errorf("failed to create output dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(out), ".photos-*.zip")
	if err != nil {
		return 0, fmt.Errorf("failed to create archive: %w", err)
	}
	defer os.Remove(tmp.Name())

	zw := newZipWriter(tmp)
	written := 0
	for i, frame := range frames {
		ok, err := p.add(zw, frame)
		if err != nil {
			tmp.Close()
			return written, err
		}
		if ok {
			written++
			metrics.ArchiveEntriesTotal.WithLabelValues("written").Inc()
		} else {
			metrics.ArchiveEntriesTotal.WithLabelValues("skipped").Inc()
		}
		if report != nil && ((i+1)%50 == 0 || i == len(frames)-1) {
			report((i+1)*99/len(frames), fmt.Sprintf("Adding photos to archive (%d of %d)", i+1, len(frames)))
		}
	}

	if err := zw.Close(); err != nil {
		tmp.Close()
		return written, fmt.Errorf("failed to close ZIP writer: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return written, fmt.Errorf("failed to close archive: %w", err)
	}
	if err := os.Rename(tmp.Name(), out); err != nil {
		return written, fmt.Errorf("failed to move archive into place: %w", err)
	}
	return written, nil
}

func (p *Packager) add(zw *zip.Writer, frame string) (bool, error) {
	f, err := os.Open(frame)
	if err != nil {
		log.Warn().Err(err).Str("path", frame).Msg("File not found, skipping")
		return false, nil
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		log.Warn().Err(err).Str("path", frame).Msg("Cannot stat file, skipping")
		return false, nil
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return false, fmt.Errorf("failed to build ZIP header for %s: %w", frame, err)
	}
	header.Name = filepath.Base(frame)
	header.Method = p.method()

	w, err := zw.CreateHeader(header)
	if err != nil {
		return false, fmt.Errorf("failed to create ZIP entry for %s: %w", frame, err)
	}
	if _, err := io.Copy(w, f); err != nil {
		return false, fmt.Errorf("failed to write %s to ZIP: %w", frame, err)
	}
	return true, nil
}

func (p *Packager) Process(ctx context.Context, job *models.Job, report worker.ProgressFunc) (*models.Artifact, error) {
	frames, err := util.ReadListFile(job.ListFile)
	if err != nil {
		return nil, err
	}
	if p.materializer != nil {
		if _, err := p.materializer.Ensure(ctx, frames, false); err != nil {
			return nil, err
		}
	}

	out := OutputPath(job)
	written, err := p.Package(frames, out, report)
	if err != nil {
		return nil, err
	}
	if written == 0 && len(frames) > 0 {
		os.Remove(out)
		return nil, errs.NotFound("none of the %d listed photos exist", len(frames))
	}

	info, err := os.Stat(out)
	if err != nil {
		return nil, fmt.Errorf("failed to stat archive: %w", err)
	}
	log.Info().Str("job", job.ID).Int("photos", written).Int("skipped", len(frames)-written).
		Int64("bytes", info.Size()).Msg("✅ Photo archive created")
	return &models.Artifact{Path: out, SizeBytes: info.Size()}, nil
}
