// Package sensor reads temperature and humidity for the overlay.
package sensor

import (
	"context"

	"codeberg.org/hydrocam/hydrocam/internal/errors"
	"codeberg.org/hydrocam/hydrocam/internal/logger"
)

// Source is a raw sensor driver returning Celsius and relative humidity.
type Source interface {
	ReadRaw(ctx context.Context) (celsius, humidity float64, err error)
}

// Reading is a unit-converted measurement. A failed read yields zero values
// with Err set; a Reading is never omitted.
type Reading struct {
	Temperature float64 // Fahrenheit
	Humidity    float64 // percent
	Err         error
}

// OK reports whether the reading came from a successful sensor read.
func (r Reading) OK() bool {
	return r.Err == nil
}

// CelsiusToFahrenheit converts using F = C*1.8 + 32.
func CelsiusToFahrenheit(c float64) float64 {
	return c*1.8 + 32
}

// Reader turns a Source into readings that always resolve.
type Reader struct {
	source Source
	log    logger.Logger
}

func NewReader(source Source, log logger.Logger) *Reader {
	return &Reader{
		source: source,
		log:    log.With("sensor"),
	}
}

// Read never fails. Sensor errors degrade to a zeroed reading carrying a
// sensor_read_failed error.
func (r *Reader) Read(ctx context.Context) Reading {
	celsius, humidity, err := r.source.ReadRaw(ctx)
	if err != nil {
		if !errors.HasCode(err, errors.ErrSensorRead) {
			err = errors.New().Wrap(errors.ErrSensorRead, err)
		}
		r.log.ErrorWithCode(err).Msg("Could not read from the temperature/humidity sensor")

		return Reading{Err: err}
	}

	reading := Reading{
		Temperature: CelsiusToFahrenheit(celsius),
		Humidity:    humidity,
	}

	r.log.Debug().
		Float64("temperature", reading.Temperature).
		Float64("humidity", reading.Humidity).
		Msg("Sensor read")

	return reading
}
