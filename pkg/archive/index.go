package archive

import (
	"context"
	"path"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"site-timelapse/pkg/errs"
	"site-timelapse/pkg/models"
)

// Index resolves frame queries for a camera. It consults the side-file cache
// first and falls back to listing the store.
type Index struct {
	store Store
	cache *IndexCache
}

func NewIndex(store Store, cache *IndexCache) *Index {
	return &Index{store: store, cache: cache}
}

// Store returns the backing storage collaborator.
func (x *Index) Store() Store {
	return x.store
}

func variantPrefix(tags models.Tags, variant models.Variant) string {
	return path.Join(tags.Prefix(), string(variant)) + "/"
}

func framesOf(tags models.Tags, variant models.Variant, timestamps []string) []models.Frame {
	frames := make([]models.Frame, len(timestamps))
	for i, ts := range timestamps {
		frames[i] = models.Frame{Tags: tags, Variant: variant, Timestamp: ts}
	}
	return frames
}

// timestampsFromKeys keeps the keys that name a frame directly below prefix.
func timestampsFromKeys(prefix string, keys []string) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		rest := strings.TrimPrefix(k, prefix)
		if rest == k || strings.Contains(rest, "/") {
			continue
		}
		if ts, ok := models.TimestampFromName(rest); ok {
			out = append(out, ts)
		}
	}
	return out
}

func (x *Index) cached(tags models.Tags) ([]string, bool) {
	if x.cache == nil {
		return nil, false
	}
	return x.cache.Load(tags)
}

// listAll lists every timestamp of a variant from the store.
func (x *Index) listAll(ctx context.Context, tags models.Tags, variant models.Variant) ([]string, error) {
	prefix := variantPrefix(tags, variant)
	var all []string
	err := x.store.ListPages(ctx, prefix, func(keys []string) bool {
		all = append(all, timestampsFromKeys(prefix, keys)...)
		return true
	})
	if err != nil {
		return nil, errs.Unavailable("list "+prefix, err)
	}
	sort.Strings(all)
	return dedupe(all), nil
}

func (x *Index) timestamps(ctx context.Context, tags models.Tags, variant models.Variant) ([]string, error) {
	if ts, ok := x.cached(tags); ok {
		return ts, nil
	}
	log.Debug().Str("camera", tags.Prefix()).Str("variant", string(variant)).Msg("No frame index, listing archive")
	return x.listAll(ctx, tags, variant)
}

// Resolve returns every frame of tags in the given variant, ascending.
func (x *Index) Resolve(ctx context.Context, tags models.Tags, variant models.Variant) ([]models.Frame, error) {
	ts, err := x.timestamps(ctx, tags, variant)
	if err != nil {
		return nil, err
	}
	return framesOf(tags, variant, ts), nil
}

// First returns the earliest large frame, or nil when the camera has none.
// Without a side file only the first listing page is read.
func (x *Index) First(ctx context.Context, tags models.Tags) (*models.Frame, error) {
	if ts, ok := x.cached(tags); ok {
		return &framesOf(tags, models.VariantLarge, ts[:1])[0], nil
	}

	prefix := variantPrefix(tags, models.VariantLarge)
	var first string
	err := x.store.ListPages(ctx, prefix, func(keys []string) bool {
		for _, ts := range timestampsFromKeys(prefix, keys) {
			if first == "" || ts < first {
				first = ts
			}
		}
		return first == ""
	})
	if err != nil {
		return nil, errs.Unavailable("list "+prefix, err)
	}
	if first == "" {
		return nil, nil
	}
	return &models.Frame{Tags: tags, Variant: models.VariantLarge, Timestamp: first}, nil
}

// Last returns the latest large frame, or nil when the camera has none.
// Without a side file the listing is walked to its last page keeping only
// the running maximum.
func (x *Index) Last(ctx context.Context, tags models.Tags) (*models.Frame, error) {
	if ts, ok := x.cached(tags); ok {
		return &framesOf(tags, models.VariantLarge, ts[len(ts)-1:])[0], nil
	}

	prefix := variantPrefix(tags, models.VariantLarge)
	var last string
	err := x.store.ListPages(ctx, prefix, func(keys []string) bool {
		for _, ts := range timestampsFromKeys(prefix, keys) {
			if ts > last {
				last = ts
			}
		}
		return true
	})
	if err != nil {
		return nil, errs.Unavailable("list "+prefix, err)
	}
	if last == "" {
		return nil, nil
	}
	return &models.Frame{Tags: tags, Variant: models.VariantLarge, Timestamp: last}, nil
}

// ByDateRange returns the frames whose YYYYMMDD prefix lies in [date1, date2].
func (x *Index) ByDateRange(ctx context.Context, tags models.Tags, variant models.Variant, date1, date2 string) ([]models.Frame, error) {
	ts, err := x.timestamps(ctx, tags, variant)
	if err != nil {
		return nil, err
	}
	if date1 > date2 {
		return []models.Frame{}, nil
	}
	lo := sort.SearchStrings(ts, date1)
	// ':' sorts right after '9', so this bounds every timestamp of date2.
	hi := sort.SearchStrings(ts, date2+":")
	return framesOf(tags, variant, ts[lo:hi]), nil
}

// NearestToTime returns the first frame of date whose time of day starts with
// timePrefix. A prefix shorter than two digits is left padded with zeros.
func (x *Index) NearestToTime(ctx context.Context, tags models.Tags, date, timePrefix string) (*models.Frame, error) {
	ts, err := x.timestamps(ctx, tags, models.VariantLarge)
	if err != nil {
		return nil, err
	}
	if len(timePrefix) < 2 {
		timePrefix = strings.Repeat("0", 2-len(timePrefix)) + timePrefix
	}
	want := date + timePrefix
	i := sort.SearchStrings(ts, want)
	if i < len(ts) && strings.HasPrefix(ts[i], want) {
		return &models.Frame{Tags: tags, Variant: models.VariantLarge, Timestamp: ts[i]}, nil
	}
	return nil, nil
}

// AvailableDates returns the distinct capture dates as YYYY-MM-DD, ascending.
func (x *Index) AvailableDates(ctx context.Context, tags models.Tags) ([]string, error) {
	ts, err := x.timestamps(ctx, tags, models.VariantLarge)
	if err != nil {
		return nil, err
	}
	dates := []string{}
	for _, t := range ts {
		d := models.FormatDate(t[:8])
		if len(dates) == 0 || dates[len(dates)-1] != d {
			dates = append(dates, d)
		}
	}
	return dates, nil
}

// BuildSideFile lists the large variant of tags and rewrites its side file.
// It returns the number of frames written.
func (x *Index) BuildSideFile(ctx context.Context, tags models.Tags) (int, error) {
	if x.cache == nil {
		return 0, errs.Validation("no index directory configured")
	}
	ts, err := x.listAll(ctx, tags, models.VariantLarge)
	if err != nil {
		return 0, err
	}
	if err := WriteSideFile(x.cache.Dir(), tags, ts); err != nil {
		return 0, err
	}
	x.cache.Invalidate(tags.IndexName())
	return len(ts), nil
}
