package overlay_test

import (
	"context"
	"io/fs"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"codeberg.org/hydrocam/hydrocam/internal/errors"
	"codeberg.org/hydrocam/hydrocam/internal/logger"
	"codeberg.org/hydrocam/hydrocam/internal/overlay"
	"codeberg.org/hydrocam/hydrocam/internal/overlay/overlaytest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureLoadedReadsOnce(t *testing.T) {
	fsys := &overlaytest.CountingFS{FS: overlaytest.NewFS(8)}
	cache := overlay.NewCache(fsys, overlay.DefaultSettings(), logger.Nop())
	assert.Equal(t, overlay.Uninitialized, cache.State())

	first, err := cache.EnsureLoaded(context.Background())
	require.NoError(t, err)
	opens := fsys.Opens()
	assert.Equal(t, 4, opens, "three icons and one font")
	assert.Equal(t, overlay.Ready, cache.State())

	second, err := cache.EnsureLoaded(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, opens, fsys.Opens(), "second call must not touch the filesystem")

	assert.Equal(t, 8, first.Temperature.Bounds().Dx())
	assert.Equal(t, overlay.DefaultFontName, first.FontName)
	assert.NotNil(t, first.Font)
}

func TestEnsureLoadedFailureIsRetryable(t *testing.T) {
	fsys := overlaytest.NewFS(8)
	delete(fsys, overlay.DefaultHumidityIcon)
	cache := overlay.NewCache(fsys, overlay.DefaultSettings(), logger.Nop())

	_, err := cache.EnsureLoaded(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrResourceLoad))
	assert.Equal(t, overlay.Failed, cache.State())

	fsys[overlay.DefaultHumidityIcon] = &fstest.MapFile{Data: overlaytest.SolidPNG(8, overlaytest.HumidityColor)}

	res, err := cache.EnsureLoaded(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, res.Humidity)
	assert.Equal(t, overlay.Ready, cache.State())
}

func TestEnsureLoadedRejectsCorruptAssets(t *testing.T) {
	tests := []string{overlay.DefaultWaterLevelIcon, overlay.DefaultFontFile}

	for _, name := range tests {
		t.Run(name, func(t *testing.T) {
			fsys := overlaytest.NewFS(8)
			fsys[name] = &fstest.MapFile{Data: []byte("not an asset")}
			cache := overlay.NewCache(fsys, overlay.DefaultSettings(), logger.Nop())

			_, err := cache.EnsureLoaded(context.Background())
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, errors.ErrResourceLoad))
		})
	}
}

func TestEnsureLoadedConcurrentCallersConverge(t *testing.T) {
	cache := overlay.NewCache(overlaytest.NewFS(8), overlay.DefaultSettings(), logger.Nop())

	const callers = 8
	results := make([]*overlay.Resources, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := cache.EnsureLoaded(context.Background())
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	for _, res := range results {
		assert.Same(t, results[0], res)
	}
}

func TestEnsureLoadedCanceledContext(t *testing.T) {
	cache := overlay.NewCache(overlaytest.NewFS(8), overlay.DefaultSettings(), logger.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := cache.EnsureLoaded(ctx)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrResourceLoad))
	assert.Equal(t, overlay.Failed, cache.State())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "uninitialized", overlay.Uninitialized.String())
	assert.Equal(t, "loading", overlay.Loading.String())
	assert.Equal(t, "ready", overlay.Ready.String())
	assert.Equal(t, "failed", overlay.Failed.String())
}

// gatedFS holds font reads until release is closed.
type gatedFS struct {
	fs.FS
	reached chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedFS) Open(name string) (fs.File, error) {
	if name == overlay.DefaultFontFile {
		g.once.Do(func() { close(g.reached) })
		<-g.release
	}
	return g.FS.Open(name)
}

func TestEnsureLoadedWaiterSurvivesLoaderCancel(t *testing.T) {
	fsys := &gatedFS{
		FS:      overlaytest.NewFS(8),
		reached: make(chan struct{}),
		release: make(chan struct{}),
	}
	cache := overlay.NewCache(fsys, overlay.DefaultSettings(), logger.Nop())

	loaderCtx, cancelLoader := context.WithCancel(context.Background())
	loaderErr := make(chan error, 1)
	go func() {
		_, err := cache.EnsureLoaded(loaderCtx)
		loaderErr <- err
	}()

	select {
	case <-fsys.reached:
	case <-time.After(2 * time.Second):
		t.Fatal("load never started")
	}
	require.Equal(t, overlay.Loading, cache.State())

	type outcome struct {
		res *overlay.Resources
		err error
	}
	waiter := make(chan outcome, 1)
	go func() {
		res, err := cache.EnsureLoaded(context.Background())
		waiter <- outcome{res, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelLoader()
	close(fsys.release)

	err := <-loaderErr
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrResourceLoad))

	got := <-waiter
	require.NoError(t, got.err, "a waiter with a live context must not inherit the loader's cancellation")
	assert.NotNil(t, got.res.Font)
	assert.Equal(t, overlay.Ready, cache.State())
}
