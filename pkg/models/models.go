package models

import (
	"fmt"
	"path"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// TimestampLayout is the 14-digit capture timestamp used as the frame file name.
const TimestampLayout = "20060102150405"

// DateLayout is the 8-digit date prefix of a timestamp.
const DateLayout = "20060102"

// Variant is the size tier a frame is stored in.
type Variant string

const (
	VariantLarge     Variant = "large"
	VariantOptimized Variant = "optimized"
	VariantThumbs    Variant = "thumbs"
)

// ParseVariant returns the named variant, falling back to large for an empty
// string.
func ParseVariant(s string) (Variant, bool) {
	switch Variant(strings.ToLower(s)) {
	case "", VariantLarge:
		return VariantLarge, true
	case VariantOptimized:
		return VariantOptimized, true
	case VariantThumbs:
		return VariantThumbs, true
	}
	return "", false
}

// Tags identifies one camera in the archive.
type Tags struct {
	Owner      string `json:"owner"`
	Collection string `json:"collection"`
	Device     string `json:"device"`
}

// Prefix returns "<owner>/<collection>/<device>".
func (t Tags) Prefix() string {
	return path.Join(t.Owner, t.Collection, t.Device)
}

var (
	indexNameEscaper   = strings.NewReplacer("%", "%25", "-", "%2D")
	indexNameUnescaper = strings.NewReplacer("%2D", "-", "%2d", "-", "%25", "%")
)

// IndexName returns the FrameIndex side file name for the camera:
// "<owner>-<collection>-<device>.json" with "-" and "%" inside a tag
// percent-escaped, so distinct cameras never share a file.
func (t Tags) IndexName() string {
	return fmt.Sprintf("%s-%s-%s.json",
		indexNameEscaper.Replace(t.Owner),
		indexNameEscaper.Replace(t.Collection),
		indexNameEscaper.Replace(t.Device))
}

// TagsFromIndexName reverses IndexName.
func TagsFromIndexName(name string) (Tags, bool) {
	parts := strings.Split(strings.TrimSuffix(name, ".json"), "-")
	if len(parts) != 3 || !strings.HasSuffix(name, ".json") {
		return Tags{}, false
	}
	tags := Tags{
		Owner:      indexNameUnescaper.Replace(parts[0]),
		Collection: indexNameUnescaper.Replace(parts[1]),
		Device:     indexNameUnescaper.Replace(parts[2]),
	}
	return tags, tags.Validate() == nil
}

func (t Tags) String() string {
	return t.Prefix()
}

// Frame is one archived still image.
type Frame struct {
	Tags      Tags    `json:"tags"`
	Variant   Variant `json:"variant"`
	Timestamp string  `json:"timestamp"`
}

// Key returns the archive key "<owner>/<collection>/<device>/<variant>/<ts>.jpg".
func (f Frame) Key() string {
	return path.Join(f.Tags.Prefix(), string(f.Variant), f.Timestamp+".jpg")
}

// Date returns the YYYYMMDD prefix of the timestamp.
func (f Frame) Date() string {
	return f.Timestamp[:8]
}

// Hour returns the HH part of the timestamp.
func (f Frame) Hour() string {
	return f.Timestamp[8:10]
}

// TimeOfDay returns the HHMMSS part of the timestamp.
func (f Frame) TimeOfDay() string {
	return f.Timestamp[8:]
}

// Time parses the timestamp as UTC.
func (f Frame) Time() (time.Time, error) {
	return time.Parse(TimestampLayout, f.Timestamp)
}

// IsTimestamp reports whether s is a 14-digit timestamp.
func IsTimestamp(s string) bool {
	if len(s) != 14 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// TimestampFromName extracts the timestamp from "YYYYMMDDHHMMSS.jpg" or a key
// ending in that file name.
func TimestampFromName(name string) (string, bool) {
	base := path.Base(name)
	if !strings.HasSuffix(base, ".jpg") {
		return "", false
	}
	ts := strings.TrimSuffix(base, ".jpg")
	return ts, IsTimestamp(ts)
}

// FormatDate turns YYYYMMDD into YYYY-MM-DD.
func FormatDate(date string) string {
	if len(date) != 8 {
		return date
	}
	return date[:4] + "-" + date[4:6] + "-" + date[6:]
}

type JobKind string

const (
	KindVideo JobKind = "video"
	KindPhoto JobKind = "photo"
)

type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusStarting   JobStatus = "starting"
	StatusProcessing JobStatus = "processing"
	StatusReady      JobStatus = "ready"
	StatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further transition can happen.
func (s JobStatus) Terminal() bool {
	return s == StatusReady || s == StatusFailed
}

// DateRange is an inclusive YYYYMMDD range.
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// HourRange is an inclusive HH range.
type HourRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Requester is the authenticated user that submitted a job.
type Requester struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// VideoParams carries the encoding options of a video job.
type VideoParams struct {
	FrameRate     int     `json:"frameRate"`
	Resolution    string  `json:"resolution"`
	ShowDate      bool    `json:"showDate"`
	Caption       string  `json:"caption,omitempty"`
	LogoPath      string  `json:"logoPath,omitempty"`
	WatermarkPath string  `json:"watermarkPath,omitempty"`
	Music         bool    `json:"music"`
	MusicFile     string  `json:"musicFile,omitempty"`
	Contrast      float64 `json:"contrast"`
	Brightness    float64 `json:"brightness"`
	Saturation    float64 `json:"saturation"`
}

// Job is a persisted video or photo export request.
type Job struct {
	ID              string       `json:"id"`
	Kind            JobKind      `json:"kind"`
	Tags            Tags         `json:"tags"`
	DateRange       DateRange    `json:"dateRange"`
	HourRange       HourRange    `json:"hourRange"`
	Status          JobStatus    `json:"status"`
	Progress        int          `json:"progress"`
	ProgressMessage string       `json:"progressMessage"`
	ResultPath      string       `json:"resultPath,omitempty"`
	SizeBytes       int64        `json:"sizeBytes,omitempty"`
	DurationSeconds float64      `json:"durationSeconds,omitempty"`
	Requester       Requester    `json:"requester"`
	CreatedAt       time.Time    `json:"createdAt"`
	UpdatedAt       time.Time    `json:"updatedAt"`
	FrameCount      int          `json:"matchedFrameCount"`
	ListFile        string       `json:"listFile"`
	Error           string       `json:"error,omitempty"`
	Video           *VideoParams `json:"video,omitempty"`
}

// Artifact describes the finished output of a job.
type Artifact struct {
	Path            string
	SizeBytes       int64
	DurationSeconds float64
}

// NewJobID returns a fresh 24 hex character job id.
func NewJobID() string {
	return bson.NewObjectID().Hex()
}

// User represents a user account in the database.
type User struct {
	ID       int64
	Username string
	IsAdmin  bool
}
