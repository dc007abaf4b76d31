// Package sampler picks preview and slideshow sequences out of a camera's
// frames: one noon frame per week, one near-noon frame per interval inside a
// trailing window, or two single points for a side-by-side comparison.
package sampler

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"site-timelapse/pkg/errs"
	"site-timelapse/pkg/models"
)

// noon is the HHMMSS target for slideshow picks.
const noon = 120000

// FrameSource is the part of the archive index the sampler needs.
type FrameSource interface {
	Resolve(ctx context.Context, tags models.Tags, variant models.Variant) ([]models.Frame, error)
	NearestToTime(ctx context.Context, tags models.Tags, date, timePrefix string) (*models.Frame, error)
}

type Sampler struct {
	src FrameSource
}

func New(src FrameSource) *Sampler {
	return &Sampler{src: src}
}

// byDate groups ascending frames by their YYYYMMDD date, preserving order.
func byDate(frames []models.Frame) map[string][]models.Frame {
	out := make(map[string][]models.Frame)
	for _, f := range frames {
		out[f.Date()] = append(out[f.Date()], f)
	}
	return out
}

func parseDate(d string) time.Time {
	t, _ := time.Parse(models.DateLayout, d)
	return t
}

// Weekly anchors on the first capture date and steps 7 days at a time up to
// the latest capture date, taking the earliest 12:xx frame of each anchor
// date. Weeks without one are skipped. Fewer than two picks is an
// ErrInsufficientFrames.
func (s *Sampler) Weekly(ctx context.Context, tags models.Tags) ([]models.Frame, error) {
	frames, err := s.src.Resolve(ctx, tags, models.VariantLarge)
	if err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("%w: no frames for %s", errs.ErrInsufficientFrames, tags)
	}

	days := byDate(frames)
	end := parseDate(frames[len(frames)-1].Date())
	picked := []models.Frame{}
	for d := parseDate(frames[0].Date()); !d.After(end); d = d.AddDate(0, 0, 7) {
		for _, f := range days[d.Format(models.DateLayout)] {
			if strings.HasPrefix(f.TimeOfDay(), "12") {
				picked = append(picked, f)
				break
			}
		}
	}

	if len(picked) < 2 {
		return nil, fmt.Errorf("%w: weekly sampling of %s found %d noon frame(s)", errs.ErrInsufficientFrames, tags, len(picked))
	}
	return picked, nil
}

// Range names a slideshow window.
type Range string

const (
	Range30Days  Range = "30days"
	RangeQuarter Range = "quarter"
	Range6Months Range = "6months"
	Range1Year   Range = "1year"
)

// ParseRange validates a slideshow range name.
func ParseRange(s string) (Range, error) {
	switch r := Range(s); r {
	case Range30Days, RangeQuarter, Range6Months, Range1Year:
		return r, nil
	}
	return "", errs.Validation("slideshow range %q must be one of 30days, quarter, 6months, 1year", s)
}

// window returns the start of the range ending at end and the step in days.
func (r Range) window(end time.Time) (time.Time, int) {
	// The window is (end-span, end], so 30days covers exactly 30 dates.
	switch r {
	case RangeQuarter:
		return end.AddDate(0, -3, 0).Add(time.Second), 3
	case Range6Months:
		return end.AddDate(0, -6, 0).Add(time.Second), 7
	case Range1Year:
		return end.AddDate(-1, 0, 0).Add(time.Second), 7
	default:
		return end.AddDate(0, 0, -30).Add(time.Second), 1
	}
}

// closestToNoon returns the frame whose HHMMSS is numerically nearest 120000;
// ties go to the earlier frame.
func closestToNoon(day []models.Frame) models.Frame {
	best, bestDiff := day[0], -1
	for _, f := range day {
		v, _ := strconv.Atoi(f.TimeOfDay())
		diff := v - noon
		if diff < 0 {
			diff = -diff
		}
		if bestDiff < 0 || diff < bestDiff {
			best, bestDiff = f, diff
		}
	}
	return best
}

// Slideshow samples the window of r ending on the latest capture date. Each
// interval step takes the day's frame closest to noon and keeps it only when
// it was captured between 10:00 and 14:59.
func (s *Sampler) Slideshow(ctx context.Context, tags models.Tags, r Range) ([]models.Frame, error) {
	frames, err := s.src.Resolve(ctx, tags, models.VariantLarge)
	if err != nil {
		return nil, err
	}
	picked := []models.Frame{}
	if len(frames) == 0 {
		return picked, nil
	}

	first := parseDate(frames[0].Date())
	end := parseDate(frames[len(frames)-1].Date()).Add(24*time.Hour - time.Second)
	start, step := r.window(end)
	if start.Before(first) {
		start = first
	}

	days := byDate(frames)
	for d := start.Truncate(24 * time.Hour); !d.After(end); d = d.AddDate(0, 0, step) {
		day := days[d.Format(models.DateLayout)]
		if len(day) == 0 {
			continue
		}
		f := closestToNoon(day)
		if h, _ := strconv.Atoi(f.Hour()); h >= 10 && h <= 14 {
			picked = append(picked, f)
		}
	}

	sort.Slice(picked, func(i, j int) bool { return picked[i].Timestamp < picked[j].Timestamp })
	return picked, nil
}

// Side is one half of a comparison. Err is an ErrNotFound when nothing
// matched.
type Side struct {
	Date  string
	Time  string
	Frame *models.Frame
	Err   error
}

// Comparison holds both halves; each is resolved independently.
type Comparison struct {
	Before Side
	After  Side
}

// Compare resolves two (date, time prefix) points. Input errors fail the
// whole call before the archive is touched; a missing frame only marks its
// own side.
func (s *Sampler) Compare(ctx context.Context, tags models.Tags, date1, time1, date2, time2 string) (*Comparison, error) {
	var sides [2]Side
	for i, in := range [2][2]string{{date1, time1}, {date2, time2}} {
		d, err := models.NormalizeDate(in[0])
		if err != nil {
			return nil, err
		}
		p, err := models.NormalizeTimePrefix(in[1])
		if err != nil {
			return nil, err
		}
		sides[i] = Side{Date: d, Time: p}
	}

	for i := range sides {
		f, err := s.src.NearestToTime(ctx, tags, sides[i].Date, sides[i].Time)
		if err != nil {
			return nil, err
		}
		if f == nil {
			sides[i].Err = errs.NotFound("no frame on %s at %s", models.FormatDate(sides[i].Date), sides[i].Time)
			continue
		}
		sides[i].Frame = f
	}
	return &Comparison{Before: sides[0], After: sides[1]}, nil
}
