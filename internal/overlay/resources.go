package overlay

import (
	"context"
	"image"
	"image/draw"
	"image/png"
	"io/fs"
	"sync"

	"codeberg.org/hydrocam/hydrocam/internal/errors"
	"codeberg.org/hydrocam/hydrocam/internal/logger"
	"golang.org/x/image/font/opentype"
	"golang.org/x/sync/errgroup"
)

// State is the lifecycle of the resource cache.
type State int

const (
	Uninitialized State = iota
	Loading
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Resources are the decoded overlay assets. They are shared read-only by
// every compositing run once loaded.
type Resources struct {
	Temperature *image.NRGBA
	Humidity    *image.NRGBA
	WaterLevel  *image.NRGBA

	// Font is safe for concurrent use; faces derived from it are not.
	Font     *opentype.Font
	FontName string
}

// Cache loads Resources at most once per successful attempt. Concurrent
// callers arriving while a load is in flight wait for its outcome. A failed
// load leaves the cache retryable.
type Cache struct {
	fsys     fs.FS
	settings Settings
	log      logger.Logger

	mu    sync.Mutex
	state State
	res   *Resources
	err   error
	done  chan struct{}
}

// NewCache returns a cache reading assets from fsys.
func NewCache(fsys fs.FS, settings Settings, log logger.Logger) *Cache {
	return &Cache{
		fsys:     fsys,
		settings: settings,
		log:      log.With("overlay"),
	}
}

// State reports the current lifecycle state.
func (c *Cache) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// EnsureLoaded returns the loaded resources, loading them first if needed.
func (c *Cache) EnsureLoaded(ctx context.Context) (*Resources, error) {
	c.mu.Lock()
	switch c.state {
	case Ready:
		res := c.res
		c.mu.Unlock()
		return res, nil

	case Loading:
		done := c.done
		c.mu.Unlock()

		select {
		case <-done:
		case <-ctx.Done():
			return nil, errors.New().Wrap(errors.ErrResourceLoad, ctx.Err())
		}

		c.mu.Lock()
		state, res, err := c.state, c.res, c.err
		c.mu.Unlock()

		if state == Ready {
			return res, nil
		}
		// The load was abandoned by its caller's context, not by the assets.
		if isContextErr(err) && ctx.Err() == nil {
			return c.EnsureLoaded(ctx)
		}
		return nil, err
	}

	c.state = Loading
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	res, err := c.load(ctx)

	c.mu.Lock()
	if err != nil {
		c.state = Failed
		c.err = err
	} else {
		c.state = Ready
		c.res = res
		c.err = nil
	}
	close(done)
	c.mu.Unlock()

	if err != nil {
		c.log.ErrorWithCode(err).Msg("Overlay resources failed to load")
		return nil, err
	}

	c.log.Info().
		Str("font", res.FontName).
		Msg("Overlay resources loaded")

	return res, nil
}

func (c *Cache) load(ctx context.Context) (*Resources, error) {
	res := &Resources{FontName: c.settings.FontName}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		res.Temperature, err = c.loadIcon(gctx, c.settings.TemperatureIcon)
		return err
	})
	g.Go(func() (err error) {
		res.Humidity, err = c.loadIcon(gctx, c.settings.HumidityIcon)
		return err
	})
	g.Go(func() (err error) {
		res.WaterLevel, err = c.loadIcon(gctx, c.settings.WaterLevelIcon)
		return err
	})
	g.Go(func() (err error) {
		res.Font, err = c.loadFont(gctx, c.settings.FontFile)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.New().Wrap(errors.ErrResourceLoad, err)
	}

	return res, nil
}

func (c *Cache) loadIcon(ctx context.Context, name string) (*image.NRGBA, error) {
	errFactory := errors.New()

	if err := ctx.Err(); err != nil {
		return nil, errFactory.Wrap(errors.ErrResourceLoad, err)
	}

	f, err := c.fsys.Open(name)
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrResourceLoad, err)
	}
	defer f.Close()

	src, err := png.Decode(f)
	if err != nil {
		return nil, errFactory.WithData(errors.ErrResourceLoad, struct {
			Path  string
			Error string
		}{
			Path:  name,
			Error: err.Error(),
		})
	}

	b := src.Bounds()
	icon := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(icon, icon.Bounds(), src, b.Min, draw.Src)

	c.log.Debug().
		Str("path", name).
		Int("width", b.Dx()).
		Int("height", b.Dy()).
		Msg("Icon loaded")

	return icon, nil
}

func (c *Cache) loadFont(ctx context.Context, name string) (*opentype.Font, error) {
	errFactory := errors.New()

	if err := ctx.Err(); err != nil {
		return nil, errFactory.Wrap(errors.ErrResourceLoad, err)
	}

	data, err := fs.ReadFile(c.fsys, name)
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrResourceLoad, err)
	}

	f, err := opentype.Parse(data)
	if err != nil {
		return nil, errFactory.WithData(errors.ErrResourceLoad, struct {
			Path  string
			Error string
		}{
			Path:  name,
			Error: err.Error(),
		})
	}

	c.log.Debug().
		Str("path", name).
		Str("name", c.settings.FontName).
		Msg("Font registered")

	return f, nil
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
