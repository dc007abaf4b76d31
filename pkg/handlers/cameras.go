package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"site-timelapse/pkg/archive"
	"site-timelapse/pkg/config"
	"site-timelapse/pkg/errs"
	"site-timelapse/pkg/models"
	"site-timelapse/pkg/sampler"
)

type frameView struct {
	Timestamp string `json:"timestamp"`
	Date      string `json:"date"`
	Time      string `json:"time"`
	Variant   string `json:"variant"`
	URL       string `json:"url"`
}

func (h *Handlers) frameView(ctx context.Context, f models.Frame) (frameView, error) {
	url, err := h.index.Store().URL(ctx, f.Key())
	if err != nil {
		return frameView{}, errs.Unavailable("url "+f.Key(), err)
	}
	return frameView{
		Timestamp: f.Timestamp,
		Date:      models.FormatDate(f.Date()),
		Time:      f.TimeOfDay(),
		Variant:   string(f.Variant),
		URL:       url,
	}, nil
}

func (h *Handlers) frameViews(ctx context.Context, frames []models.Frame) ([]frameView, error) {
	views := make([]frameView, len(frames))
	for i, f := range frames {
		v, err := h.frameView(ctx, f)
		if err != nil {
			return nil, err
		}
		views[i] = v
	}
	return views, nil
}

func (h *Handlers) respondFrames(c *gin.Context, frames []models.Frame, err error) {
	if err != nil {
		respondError(c, err)
		return
	}
	views, err := h.frameViews(c.Request.Context(), frames)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(views), "frames": views})
}

func (h *Handlers) respondFrame(c *gin.Context, f *models.Frame, err error) {
	if err != nil {
		respondError(c, err)
		return
	}
	if f == nil {
		respondError(c, errs.NotFound("camera has no frames"))
		return
	}
	v, err := h.frameView(c.Request.Context(), *f)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

// HandleFirstFrame serves the oldest large frame of a camera.
func (h *Handlers) HandleFirstFrame(c *gin.Context) {
	tags, err := cameraTags(c)
	if err != nil {
		respondError(c, err)
		return
	}
	f, err := h.index.First(c.Request.Context(), tags)
	h.respondFrame(c, f, err)
}

// HandleLastFrame serves the newest large frame of a camera.
func (h *Handlers) HandleLastFrame(c *gin.Context) {
	tags, err := cameraTags(c)
	if err != nil {
		respondError(c, err)
		return
	}
	f, err := h.index.Last(c.Request.Context(), tags)
	h.respondFrame(c, f, err)
}

// HandleFrames lists the frames between ?from= and ?to= of ?variant=.
func (h *Handlers) HandleFrames(c *gin.Context) {
	tags, err := cameraTags(c)
	if err != nil {
		respondError(c, err)
		return
	}
	variant := models.VariantLarge
	if v := c.Query("variant"); v != "" {
		var ok bool
		if variant, ok = models.ParseVariant(v); !ok {
			respondError(c, errs.Validation("unknown variant %q", v))
			return
		}
	}
	dates, err := models.NormalizeDateRange(c.Query("from"), c.Query("to"))
	if err != nil {
		respondError(c, err)
		return
	}
	frames, err := h.index.ByDateRange(c.Request.Context(), tags, variant, dates.Start, dates.End)
	h.respondFrames(c, frames, err)
}

// HandleDates lists the capture dates of a camera.
func (h *Handlers) HandleDates(c *gin.Context) {
	tags, err := cameraTags(c)
	if err != nil {
		respondError(c, err)
		return
	}
	dates, err := h.index.AvailableDates(c.Request.Context(), tags)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dates": dates})
}

func (h *Handlers) HandleWeekly(c *gin.Context) {
	tags, err := cameraTags(c)
	if err != nil {
		respondError(c, err)
		return
	}
	frames, err := h.sampler.Weekly(c.Request.Context(), tags)
	h.respondFrames(c, frames, err)
}

func (h *Handlers) HandleSlideshow(c *gin.Context) {
	tags, err := cameraTags(c)
	if err != nil {
		respondError(c, err)
		return
	}
	r, err := sampler.ParseRange(c.Param("range"))
	if err != nil {
		respondError(c, err)
		return
	}
	frames, err := h.sampler.Slideshow(c.Request.Context(), tags, r)
	h.respondFrames(c, frames, err)
}

type sideView struct {
	Date  string     `json:"date"`
	Time  string     `json:"time"`
	Frame *frameView `json:"frame,omitempty"`
	Error string     `json:"error,omitempty"`
}

func (h *Handlers) sideView(ctx context.Context, s sampler.Side) (sideView, error) {
	v := sideView{Date: models.FormatDate(s.Date), Time: s.Time}
	if s.Err != nil {
		v.Error = s.Err.Error()
		return v, nil
	}
	fv, err := h.frameView(ctx, *s.Frame)
	if err != nil {
		return v, err
	}
	v.Frame = &fv
	return v, nil
}

// HandleCompare resolves ?date1=&time1= and ?date2=&time2=. A side without a
// frame carries an error message instead; the request only fails when both do.
func (h *Handlers) HandleCompare(c *gin.Context) {
	tags, err := cameraTags(c)
	if err != nil {
		respondError(c, err)
		return
	}
	ctx := c.Request.Context()
	cmp, err := h.sampler.Compare(ctx, tags, c.Query("date1"), c.Query("time1"), c.Query("date2"), c.Query("time2"))
	if err != nil {
		respondError(c, err)
		return
	}
	if cmp.Before.Err != nil && cmp.After.Err != nil {
		respondError(c, errs.NotFound("no frames match either side of the comparison"))
		return
	}
	before, err := h.sideView(ctx, cmp.Before)
	if err != nil {
		respondError(c, err)
		return
	}
	after, err := h.sideView(ctx, cmp.After)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"before": before, "after": after})
}

func (h *Handlers) respondLink(c *gin.Context, link *archive.FrameLink, err error) {
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"url":       link.URL,
		"key":       link.Key,
		"variant":   link.Variant,
		"expiresIn": int(config.AppConfig.PresignExpiry().Seconds()),
	})
}

// HandleImage links the frame at :timestamp, optimized when available.
func (h *Handlers) HandleImage(c *gin.Context) {
	tags, err := cameraTags(c)
	if err != nil {
		respondError(c, err)
		return
	}
	link, err := h.index.ImageLink(c.Request.Context(), tags, c.Param("timestamp"))
	h.respondLink(c, link, err)
}

func (h *Handlers) HandleThumbnail(c *gin.Context) {
	tags, err := cameraTags(c)
	if err != nil {
		respondError(c, err)
		return
	}
	link, err := h.index.ThumbnailLink(c.Request.Context(), tags, c.Param("timestamp"))
	h.respondLink(c, link, err)
}

// HandleProxy streams the large frame at :timestamp so pages on other origins
// can draw it on a canvas.
func (h *Handlers) HandleProxy(c *gin.Context) {
	tags, err := cameraTags(c)
	if err != nil {
		respondError(c, err)
		return
	}
	rc, err := h.index.OpenFrame(c.Request.Context(), tags, models.VariantLarge, c.Param("timestamp"))
	if err != nil {
		respondError(c, err)
		return
	}
	defer rc.Close()

	c.DataFromReader(http.StatusOK, -1, "image/jpeg", rc, map[string]string{
		"Access-Control-Allow-Origin":   "*",
		"Access-Control-Allow-Methods":  "GET, OPTIONS",
		"Access-Control-Allow-Headers":  "Content-Type, Authorization",
		"Access-Control-Expose-Headers": "Content-Length, Content-Type",
		"Cross-Origin-Embedder-Policy":  "unsafe-none",
		"Cross-Origin-Resource-Policy":  "cross-origin",
		"Cache-Control":                 "public, max-age=3600",
	})
}
