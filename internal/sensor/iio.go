package sensor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"codeberg.org/hydrocam/hydrocam/internal/errors"
)

const (
	tempFile     = "in_temp_input"
	humidityFile = "in_humidityrelative_input"
	milli        = 1000.0
)

// IIOSource reads a DHT11/DHT22 through the Linux dht11 IIO driver, which
// owns the single-wire protocol timing. Values are exposed in milli-units.
type IIOSource struct {
	// Dir holds the iio:deviceN entries, normally /sys/bus/iio/devices.
	Dir   string
	Model int
	Pin   int
}

func NewIIOSource(dir string, model, pin int) *IIOSource {
	return &IIOSource{Dir: dir, Model: model, Pin: pin}
}

func (s *IIOSource) ReadRaw(ctx context.Context) (float64, float64, error) {
	errFactory := errors.New()

	if err := ctx.Err(); err != nil {
		return 0, 0, errFactory.Wrap(errors.ErrSensorRead, err)
	}

	dev, err := s.device()
	if err != nil {
		return 0, 0, err
	}

	temp, err := readMilli(filepath.Join(dev, tempFile))
	if err != nil {
		return 0, 0, errFactory.Wrap(errors.ErrSensorRead, err)
	}

	humidity, err := readMilli(filepath.Join(dev, humidityFile))
	if err != nil {
		return 0, 0, errFactory.Wrap(errors.ErrSensorRead, err)
	}

	return temp, humidity, nil
}

// device finds the IIO device bound to the configured pin. The driver names
// it "dht11@<pin>"; a lone unqualified "dht11" device is accepted as well.
func (s *IIOSource) device() (string, error) {
	errFactory := errors.New()

	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return "", errFactory.Wrap(errors.ErrSensorRead, err)
	}

	want := fmt.Sprintf("dht11@%d", s.Pin)
	fallback := ""
	for _, e := range entries {
		dir := filepath.Join(s.Dir, e.Name())
		name, err := os.ReadFile(filepath.Join(dir, "name"))
		if err != nil {
			continue
		}

		switch strings.TrimSpace(string(name)) {
		case want:
			return dir, nil
		case "dht11":
			fallback = dir
		}
	}

	if fallback != "" {
		return fallback, nil
	}

	return "", errFactory.WithData(errors.ErrSensorRead, struct {
		Model int
		Pin   int
		Dir   string
	}{
		Model: s.Model,
		Pin:   s.Pin,
		Dir:   s.Dir,
	})
}

func readMilli(path string) (float64, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	v, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil {
		return 0, err
	}

	return float64(v) / milli, nil
}
