// Package events announces job status transitions to other services.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"site-timelapse/pkg/models"
)

// SubjectPrefix is followed by the job status, e.g. timelapse.jobs.ready.
const SubjectPrefix = "timelapse.jobs."

// JobEvent is the message body published for each transition.
type JobEvent struct {
	JobID      string           `json:"jobId"`
	Kind       models.JobKind   `json:"kind"`
	Status     models.JobStatus `json:"status"`
	Progress   int              `json:"progress"`
	Message    string           `json:"message"`
	ResultPath string           `json:"resultPath,omitempty"`
	Error      string           `json:"error,omitempty"`
	At         time.Time        `json:"at"`
}

func NewJobEvent(job *models.Job) JobEvent {
	return JobEvent{
		JobID:      job.ID,
		Kind:       job.Kind,
		Status:     job.Status,
		Progress:   job.Progress,
		Message:    job.ProgressMessage,
		ResultPath: job.ResultPath,
		Error:      job.Error,
		At:         time.Now().UTC(),
	}
}

// Publisher receives a job after each status change. Implementations must not
// block the scheduler for long and never fail it.
type Publisher interface {
	JobChanged(job *models.Job)
}

// Noop discards events.
type Noop struct{}

func (Noop) JobChanged(*models.Job) {}

// NATSPublisher publishes JobEvents as JSON on core NATS.
type NATSPublisher struct {
	nc *nats.Conn
}

func NewNATSPublisher(url string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url, nats.Name("site-timelapse"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("error connecting to NATS: %w", err)
	}
	log.Info().Str("url", nc.ConnectedUrl()).Msg("✅ Connected to NATS")
	return &NATSPublisher{nc: nc}, nil
}

func (p *NATSPublisher) JobChanged(job *models.Job) {
	data, err := json.Marshal(NewJobEvent(job))
	if err != nil {
		log.Error().Err(err).Str("job", job.ID).Msg("Failed to marshal job event")
		return
	}
	subject := SubjectPrefix + string(job.Status)
	if err := p.nc.Publish(subject, data); err != nil {
		log.Warn().Err(err).Str("subject", subject).Msg("Failed to publish job event")
	}
}

// Close flushes pending messages and closes the connection.
func (p *NATSPublisher) Close() {
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
	}
}
