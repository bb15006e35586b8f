// Package pipeline runs one capture: acquire, convert, measure, overlay,
// encode.
package pipeline

import (
	"bytes"
	"context"
	"image/png"
	"time"

	"codeberg.org/hydrocam/hydrocam/internal/camera"
	"codeberg.org/hydrocam/hydrocam/internal/errors"
	"codeberg.org/hydrocam/hydrocam/internal/logger"
	"codeberg.org/hydrocam/hydrocam/internal/overlay"
	"codeberg.org/hydrocam/hydrocam/internal/raster"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Orchestrator wires the capture source, overlay and encoder together.
type Orchestrator struct {
	source     camera.Source
	resources  ResourceLoader
	sensor     SensorReader
	compositor *overlay.Compositor
	encoder    Encoder
	now        func() time.Time
	log        logger.Logger
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithEncoder replaces the default PNG encoder.
func WithEncoder(e Encoder) Option {
	return func(o *Orchestrator) {
		o.encoder = e
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

func New(
	source camera.Source,
	resources ResourceLoader,
	reader SensorReader,
	compositor *overlay.Compositor,
	log logger.Logger,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		source:     source,
		resources:  resources,
		sensor:     reader,
		compositor: compositor,
		encoder:    &png.Encoder{CompressionLevel: png.DefaultCompression},
		now:        time.Now,
		log:        log.With("pipeline"),
	}
	for _, opt := range opts {
		opt(o)
	}

	return o
}

// RunCapture either returns a complete Result or an error; there is no
// partial result. Capture-source, resource, frame and encode failures abort
// the run. Sensor failures only degrade the reading.
func (o *Orchestrator) RunCapture(ctx context.Context, width, height int) (*Result, error) {
	id := uuid.New()
	start := o.now()

	var (
		frame []byte
		res   *overlay.Resources
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		frame, err = o.source.Capture(gctx, width, height)
		return err
	})
	g.Go(func() (err error) {
		res, err = o.resources.EnsureLoaded(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		o.log.ErrorWithCode(err).Str("run_id", id.String()).Msg("Capture run aborted")
		return nil, err
	}

	img, err := raster.FromRGB(frame, width, height)
	if err != nil {
		o.log.ErrorWithCode(err).Str("run_id", id.String()).Msg("Capture run aborted")
		return nil, err
	}

	// Measured before the overlay so it reflects the scene only.
	brightness := raster.AverageBrightness(img)

	reading := o.sensor.Read(ctx)

	if err := o.compositor.Composite(img, res, reading.Temperature, reading.Humidity, o.now()); err != nil {
		o.log.ErrorWithCode(err).Str("run_id", id.String()).Msg("Capture run aborted")
		return nil, err
	}

	var buf bytes.Buffer
	if err := o.encoder.Encode(&buf, img); err != nil {
		err = errors.New().Wrap(errors.ErrEncode, err)
		o.log.ErrorWithCode(err).Str("run_id", id.String()).Msg("Capture run aborted")
		return nil, err
	}

	end := o.now()
	result := &Result{
		ID:           id,
		Image:        buf.Bytes(),
		Brightness:   brightness,
		Reading:      reading,
		Width:        width,
		Height:       height,
		CaptureStart: start,
		CaptureEnd:   end,
		Duration:     end.Sub(start),
	}

	o.log.Debug().
		Str("run_id", id.String()).
		Float64("brightness", brightness).
		Dur("duration", result.Duration).
		Int("bytes", len(result.Image)).
		Bool("sensor_ok", reading.OK()).
		Msg("Capture run complete")

	return result, nil
}
