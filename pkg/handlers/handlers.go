package handlers

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"site-timelapse/pkg/archive"
	"site-timelapse/pkg/cachedstats"
	"site-timelapse/pkg/config"
	"site-timelapse/pkg/errs"
	"site-timelapse/pkg/models"
	"site-timelapse/pkg/sampler"
	"site-timelapse/pkg/services/requests"
	"site-timelapse/pkg/stats"
)

// Handlers holds the collaborators the HTTP routes talk to.
type Handlers struct {
	index     *archive.Index
	sampler   *sampler.Sampler
	requests  *requests.Service
	stats     *cachedstats.CachedStats
	uploadDir string
}

func New(index *archive.Index, svc *requests.Service, cache *cachedstats.CachedStats, uploadDir string) *Handlers {
	return &Handlers{
		index:     index,
		sampler:   sampler.New(index),
		requests:  svc,
		stats:     cache,
		uploadDir: uploadDir,
	}
}

// respondError writes err with the status of its taxonomy class.
func respondError(c *gin.Context, err error) {
	status := errs.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func cameraTags(c *gin.Context) (models.Tags, error) {
	tags := models.Tags{
		Owner:      c.Param("owner"),
		Collection: c.Param("collection"),
		Device:     c.Param("device"),
	}
	return tags, tags.Validate()
}

func (h *Handlers) HandleSystemStatsJSON(c *gin.Context) {
	c.JSON(http.StatusOK, stats.GetSystemInfo())
}

func (h *Handlers) HandleStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.stats.GetData())
}

// HandleLog returns the encoder log of ?date=YYYY-MM-DD, or the latest one.
func (h *Handlers) HandleLog(c *gin.Context) {
	logFiles, err := filepath.Glob(filepath.Join(config.AppConfig.DataDir, "ffmpeg_log_*.txt"))
	if err != nil {
		respondError(c, err)
		return
	}
	if len(logFiles) == 0 {
		c.JSON(http.StatusOK, gin.H{"message": "No log files found.", "availableDates": []string{}})
		return
	}

	sort.Sort(sort.Reverse(sort.StringSlice(logFiles)))
	logDates := make([]string, len(logFiles))
	for i, file := range logFiles {
		logDates[i] = strings.TrimSuffix(strings.TrimPrefix(filepath.Base(file), "ffmpeg_log_"), ".txt")
	}

	selectedDate := c.Query("date")
	logToShowPath := logFiles[0]
	if selectedDate == "" {
		selectedDate = logDates[0]
	} else {
		if _, err := models.NormalizeDate(selectedDate); err != nil {
			respondError(c, err)
			return
		}
		logToShowPath = filepath.Join(config.AppConfig.DataDir, fmt.Sprintf("ffmpeg_log_%s.txt", selectedDate))
	}

	content, err := os.ReadFile(logToShowPath)
	if err != nil {
		if os.IsNotExist(err) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":          fmt.Sprintf("Log file for date %s not found.", selectedDate),
				"availableDates": logDates,
			})
			return
		}
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"logContent":     string(content),
		"availableDates": logDates,
		"selectedDate":   selectedDate,
	})
}
