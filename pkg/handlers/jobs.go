package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"site-timelapse/pkg/auth"
	"site-timelapse/pkg/database"
	"site-timelapse/pkg/errs"
	"site-timelapse/pkg/models"
	"site-timelapse/pkg/services/assets"
	"site-timelapse/pkg/services/requests"
	"site-timelapse/pkg/services/video"
)

type selectionForm struct {
	Owner      string `form:"owner" json:"owner"`
	Collection string `form:"collection" json:"collection"`
	Device     string `form:"device" json:"device"`
	StartDate  string `form:"startDate" json:"startDate"`
	EndDate    string `form:"endDate" json:"endDate"`
	StartHour  string `form:"startHour" json:"startHour"`
	EndHour    string `form:"endHour" json:"endHour"`
}

func (f selectionForm) tags() models.Tags {
	return models.Tags{Owner: f.Owner, Collection: f.Collection, Device: f.Device}
}

func (f selectionForm) selection() requests.Selection {
	return requests.Selection{
		Tags:      f.tags(),
		StartDate: f.StartDate,
		EndDate:   f.EndDate,
		StartHour: f.StartHour,
		EndHour:   f.EndHour,
	}
}

type videoForm struct {
	selectionForm
	Duration   float64  `form:"duration" json:"duration"`
	FrameRate  int      `form:"frameRate" json:"frameRate"`
	Speed      string   `form:"speed" json:"speed"`
	Resolution string   `form:"resolution" json:"resolution"`
	ShowDate   formBool `form:"showDate" json:"showDate"`
	Caption    string   `form:"caption" json:"caption"`
	Music      formBool `form:"music" json:"music"`
	MusicFile  string   `form:"musicFile" json:"musicFile"`
	Contrast   *float64 `form:"contrast" json:"contrast"`
	Brightness *float64 `form:"brightness" json:"brightness"`
	Saturation *float64 `form:"saturation" json:"saturation"`
}

func truthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

// formBool binds checkbox values ("on", "1", "true", "yes") from forms and
// either booleans or such strings from JSON.
type formBool bool

func (b *formBool) UnmarshalParam(param string) error {
	*b = formBool(truthy(param))
	return nil
}

func (b *formBool) UnmarshalJSON(data []byte) error {
	var v bool
	if err := json.Unmarshal(data, &v); err == nil {
		*b = formBool(v)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("expected a boolean, got %s", data)
	}
	*b = formBool(truthy(s))
	return nil
}

func (f videoForm) options() requests.VideoOptions {
	opts := requests.DefaultVideoOptions()
	opts.Duration = f.Duration
	opts.FrameRate = f.FrameRate
	opts.Speed = f.Speed
	if f.Resolution != "" {
		opts.Resolution = f.Resolution
	}
	opts.ShowDate = bool(f.ShowDate)
	opts.Caption = f.Caption
	opts.Music = bool(f.Music)
	opts.MusicFile = f.MusicFile
	if f.Contrast != nil {
		opts.Contrast = *f.Contrast
	}
	if f.Brightness != nil {
		opts.Brightness = *f.Brightness
	}
	if f.Saturation != nil {
		opts.Saturation = *f.Saturation
	}
	return opts
}

// storeUpload normalizes the optional multipart file field into the upload
// directory and returns its path, or "" when the field is absent.
func (h *Handlers) storeUpload(c *gin.Context, field string) (string, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return "", nil
		}
		return "", errs.Validation("invalid %s upload: %v", field, err)
	}
	f, err := fh.Open()
	if err != nil {
		return "", errs.Validation("cannot read %s upload: %v", field, err)
	}
	defer f.Close()
	return assets.Normalize(f, h.uploadDir, field)
}

func (h *Handlers) bindVideo(c *gin.Context) (videoForm, requests.VideoOptions, error) {
	var form videoForm
	if err := c.ShouldBind(&form); err != nil {
		return form, requests.VideoOptions{}, errs.Validation("%v", err)
	}
	opts := form.options()

	var err error
	if opts.LogoPath, err = h.storeUpload(c, "logo"); err != nil {
		return form, opts, err
	}
	if opts.WatermarkPath, err = h.storeUpload(c, "watermark"); err != nil {
		video.RemoveAssets(opts.LogoPath)
		return form, opts, err
	}
	return form, opts, nil
}

// HandleSubmitVideo accepts a form or multipart request with optional logo
// and watermark files.
func (h *Handlers) HandleSubmitVideo(c *gin.Context) {
	form, opts, err := h.bindVideo(c)
	if err != nil {
		respondError(c, err)
		return
	}
	sub, err := h.requests.SubmitVideo(c.Request.Context(), form.selection(), opts, auth.Requester(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, sub)
}

func (h *Handlers) HandleSubmitWeeklyVideo(c *gin.Context) {
	form, opts, err := h.bindVideo(c)
	if err != nil {
		respondError(c, err)
		return
	}
	sub, err := h.requests.SubmitWeeklyVideo(c.Request.Context(), form.tags(), opts, auth.Requester(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, sub)
}

func (h *Handlers) HandleSubmitPhoto(c *gin.Context) {
	var form selectionForm
	if err := c.ShouldBind(&form); err != nil {
		respondError(c, errs.Validation("%v", err))
		return
	}
	sub, err := h.requests.SubmitPhoto(c.Request.Context(), form.selection(), auth.Requester(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, sub)
}

// HandleListJobs lists jobs, optionally filtered by ?kind=video|photo and
// ?owner=.
func (h *Handlers) HandleListJobs(c *gin.Context) {
	list, err := h.requests.List(c.Request.Context(), requests.ListFilter{
		Kind:  models.JobKind(c.Query("kind")),
		Owner: c.Query("owner"),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": list})
}

func (h *Handlers) HandleDeleteJob(c *gin.Context) {
	id := c.Param("id")
	deleted, err := h.requests.Delete(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if !deleted {
		respondError(c, errs.NotFound("job %s not found", id))
		return
	}
	if err := database.DeleteShareLinksForJob(id); err != nil {
		log.Warn().Err(err).Str("job", id).Msg("Failed to remove share links of deleted job")
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (h *Handlers) HandleDownload(c *gin.Context) {
	job, err := h.requests.Artifact(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.FileAttachment(job.ResultPath, filepath.Base(job.ResultPath))
}

// HandleCreateShare creates a link to a ready artifact valid for ?hours=
// (form or query); 0 or absent means unlimited.
func (h *Handlers) HandleCreateShare(c *gin.Context) {
	var form struct {
		Hours int `form:"hours" json:"hours"`
	}
	if err := c.ShouldBind(&form); err != nil || form.Hours < 0 {
		respondError(c, errs.Validation("hours must be a non-negative integer"))
		return
	}
	job, err := h.requests.Artifact(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	token, err := database.CreateShareLink(job.ID, job.ResultPath, time.Duration(form.Hours)*time.Hour)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"token": token, "url": "/share/" + token})
}

// HandleSharedFile serves a shared artifact without authentication.
func (h *Handlers) HandleSharedFile(c *gin.Context) {
	path, err := database.GetSharedFilePath(c.Param("token"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.FileAttachment(path, filepath.Base(path))
}
