package util

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

func FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

func IsFileEmpty(path string) bool {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return true
	}
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Error stating file")
		return true
	}
	return info.Size() == 0
}

// WriteListFile writes one concat-demuxer directive per path:
// file '<absolute path>' with forward slashes.
func WriteListFile(listPath string, paths []string) error {
	if err := os.MkdirAll(filepath.Dir(listPath), 0755); err != nil {
		return fmt.Errorf("failed to create list dir: %w", err)
	}
	f, err := os.Create(listPath)
	if err != nil {
		return fmt.Errorf("failed to create list file: %w", err)
	}
	w := bufio.NewWriter(f)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			f.Close()
			return fmt.Errorf("failed to resolve %s: %w", p, err)
		}
		fmt.Fprintf(w, "file '%s'\n", filepath.ToSlash(abs))
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("failed to write list file: %w", err)
	}
	return f.Close()
}

// ReadListFile returns the paths of a list written by WriteListFile. Lines
// that are not file directives are ignored.
func ReadListFile(listPath string) ([]string, error) {
	f, err := os.Open(listPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open list file: %w", err)
	}
	defer f.Close()

	var paths []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(line, "file '") || !strings.HasSuffix(line, "'") {
			continue
		}
		paths = append(paths, filepath.FromSlash(line[len("file '"):len(line)-1]))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read list file: %w", err)
	}
	return paths, nil
}

// ProbeDuration returns the container duration of a media file in seconds.
var ProbeDuration = func(ctx context.Context, mediaPath string) (float64, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		mediaPath,
	)

	outputBytes, err := cmd.Output()
	output := strings.TrimSpace(string(outputBytes))
	if err != nil {
		return 0, fmt.Errorf("ffprobe command failed for %s: %w. Raw output: %s", mediaPath, err, output)
	}
	if output == "" || output == "N/A" {
		return 0, fmt.Errorf("ffprobe could not determine duration for %s. Raw output: %s", mediaPath, output)
	}

	duration, err := strconv.ParseFloat(output, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration '%s' for %s: %w", output, mediaPath, err)
	}
	return duration, nil
}
