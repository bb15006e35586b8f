package pipeline

import (
	"context"
	"image"
	"io"
	"time"

	"codeberg.org/hydrocam/hydrocam/internal/overlay"
	"codeberg.org/hydrocam/hydrocam/internal/sensor"
	"github.com/google/uuid"
)

// Runner performs one capture run. Implemented by Orchestrator.
type Runner interface {
	RunCapture(ctx context.Context, width, height int) (*Result, error)
}

// ResourceLoader provides overlay resources, loading them on first use.
type ResourceLoader interface {
	EnsureLoaded(ctx context.Context) (*overlay.Resources, error)
}

// SensorReader always yields a reading, degraded on failure.
type SensorReader interface {
	Read(ctx context.Context) sensor.Reading
}

// Encoder turns the composited raster into output bytes. *png.Encoder
// satisfies it.
type Encoder interface {
	Encode(w io.Writer, m image.Image) error
}

// Result is the outcome of a successful run. It must not be modified once
// returned; it is shared between the scheduler and HTTP handlers.
type Result struct {
	ID         uuid.UUID
	Image      []byte // encoded output
	Brightness float64
	Reading    sensor.Reading
	Width      int
	Height     int

	CaptureStart time.Time
	CaptureEnd   time.Time
	Duration     time.Duration
}
