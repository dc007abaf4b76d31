package archive

import (
	"context"
	"errors"
	"io"
	"io/fs"

	"site-timelapse/pkg/errs"
	"site-timelapse/pkg/models"
)

// FrameLink is a browser-fetchable location of one frame.
type FrameLink struct {
	URL     string         `json:"url"`
	Key     string         `json:"key"`
	Variant models.Variant `json:"variant"`
}

func frameAt(tags models.Tags, variant models.Variant, ts string) (models.Frame, error) {
	if err := tags.Validate(); err != nil {
		return models.Frame{}, err
	}
	if !models.IsTimestamp(ts) {
		return models.Frame{}, errs.Validation("invalid timestamp %q", ts)
	}
	return models.Frame{Tags: tags, Variant: variant, Timestamp: ts}, nil
}

// ImageLink returns the URL of the frame at ts. The optimized rendition is
// preferred; when it is missing the large one is linked without checking it
// exists.
func (x *Index) ImageLink(ctx context.Context, tags models.Tags, ts string) (*FrameLink, error) {
	frame, err := frameAt(tags, models.VariantOptimized, ts)
	if err != nil {
		return nil, err
	}
	ok, err := x.store.Exists(ctx, frame.Key())
	if err != nil {
		return nil, errs.Unavailable("stat "+frame.Key(), err)
	}
	if !ok {
		frame.Variant = models.VariantLarge
	}
	return x.link(ctx, frame)
}

// ThumbnailLink returns the URL of the thumbnail at ts.
func (x *Index) ThumbnailLink(ctx context.Context, tags models.Tags, ts string) (*FrameLink, error) {
	frame, err := frameAt(tags, models.VariantThumbs, ts)
	if err != nil {
		return nil, err
	}
	return x.link(ctx, frame)
}

func (x *Index) link(ctx context.Context, frame models.Frame) (*FrameLink, error) {
	url, err := x.store.URL(ctx, frame.Key())
	if err != nil {
		return nil, errs.Unavailable("sign "+frame.Key(), err)
	}
	return &FrameLink{URL: url, Key: frame.Key(), Variant: frame.Variant}, nil
}

// OpenFrame opens the frame of variant at ts for streaming.
func (x *Index) OpenFrame(ctx context.Context, tags models.Tags, variant models.Variant, ts string) (io.ReadCloser, error) {
	frame, err := frameAt(tags, variant, ts)
	if err != nil {
		return nil, err
	}
	rc, err := x.store.Open(ctx, frame.Key())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, errs.NotFound("image %s not found", frame.Key())
	}
	if err != nil {
		return nil, errs.Unavailable("open "+frame.Key(), err)
	}
	return rc, nil
}
