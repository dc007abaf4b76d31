package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"site-timelapse/pkg/models"
)

func TestNewJobEvent(t *testing.T) {
	job := &models.Job{
		ID:              "65a1f0c2e4b0a1b2c3d4e5f6",
		Kind:            models.KindVideo,
		Status:          models.StatusReady,
		Progress:        100,
		ProgressMessage: "Video generation completed",
		ResultPath:      "/exports/video_65a1f0c2e4b0a1b2c3d4e5f6.mp4",
	}
	ev := NewJobEvent(job)
	assert.Equal(t, job.ID, ev.JobID)
	assert.Equal(t, models.StatusReady, ev.Status)
	assert.False(t, ev.At.IsZero())

	data, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"status":"ready"`)
	assert.NotContains(t, string(data), `"error"`)
}

func TestNoopPublisher(t *testing.T) {
	var p Publisher = Noop{}
	assert.NotPanics(t, func() { p.JobChanged(&models.Job{ID: "x"}) })
}
