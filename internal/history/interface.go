package history

import (
	"context"
	"time"

	"codeberg.org/hydrocam/hydrocam/internal/pipeline"
	"github.com/google/uuid"
)

// Recorder keeps a log of capture runs.
type Recorder interface {
	Record(ctx context.Context, entry *Entry) error
	MarkSaved(ctx context.Context, id uuid.UUID, path string) error
	Recent(ctx context.Context, limit int) ([]Entry, error)
	Close() error
	Enabled() bool
}

// Repository is the storage behind a Recorder.
type Repository interface {
	Insert(ctx context.Context, entry *Entry) error
	MarkSaved(ctx context.Context, id uuid.UUID, path string) (bool, error)
	Recent(ctx context.Context, limit int) ([]Entry, error)
	Close() error
}

// Entry is one recorded capture.
type Entry struct {
	ID          uuid.UUID `json:"id"`
	CapturedAt  time.Time `json:"captured_at"`
	Brightness  float64   `json:"brightness"`
	DurationMS  int64     `json:"duration_ms"`
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidity"`
	SensorError string    `json:"sensor_error,omitempty"`
	Saved       bool      `json:"saved"`
	Path        string    `json:"path,omitempty"`
}

// EntryFromResult builds an unsaved entry for a capture result.
func EntryFromResult(r *pipeline.Result) *Entry {
	e := &Entry{
		ID:          r.ID,
		CapturedAt:  r.CaptureEnd,
		Brightness:  r.Brightness,
		DurationMS:  r.Duration.Milliseconds(),
		Temperature: r.Reading.Temperature,
		Humidity:    r.Reading.Humidity,
	}
	if r.Reading.Err != nil {
		e.SensorError = r.Reading.Err.Error()
	}

	return e
}
