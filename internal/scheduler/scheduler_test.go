package scheduler

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"codeberg.org/hydrocam/hydrocam/internal/errors"
	"codeberg.org/hydrocam/hydrocam/internal/history"
	"codeberg.org/hydrocam/hydrocam/internal/logger"
	"codeberg.org/hydrocam/hydrocam/internal/pipeline"
	"codeberg.org/hydrocam/hydrocam/internal/publish"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	mu         sync.Mutex
	brightness float64
	err        error
	block      chan struct{}
	calls      atomic.Int32
	clock      func() time.Time
}

func (f *fakeRunner) RunCapture(ctx context.Context, width, height int) (*pipeline.Result, error) {
	f.calls.Add(1)
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}

	now := time.Now()
	if f.clock != nil {
		now = f.clock()
	}
	return &pipeline.Result{
		ID:           uuid.New(),
		Image:        []byte("png"),
		Brightness:   f.brightness,
		Width:        width,
		Height:       height,
		CaptureStart: now,
		CaptureEnd:   now,
	}, nil
}

type fakeArchive struct {
	mu    sync.Mutex
	saved []*pipeline.Result
	err   error
}

func (f *fakeArchive) Save(_ context.Context, r *pipeline.Result) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.saved = append(f.saved, r)
	return "/out/" + r.ID.String() + ".png", nil
}

func (f *fakeArchive) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved)
}

type fakeRecorder struct {
	mu       sync.Mutex
	recorded []uuid.UUID
	saved    map[uuid.UUID]string
}

func (f *fakeRecorder) Record(_ context.Context, e *history.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recorded = append(f.recorded, e.ID)
	return nil
}

func (f *fakeRecorder) MarkSaved(_ context.Context, id uuid.UUID, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saved == nil {
		f.saved = map[uuid.UUID]string{}
	}
	f.saved[id] = path
	return nil
}

func (f *fakeRecorder) Recent(context.Context, int) ([]history.Entry, error) { return nil, nil }
func (f *fakeRecorder) Close() error                                         { return nil }
func (f *fakeRecorder) Enabled() bool                                        { return true }

type fakePublisher struct {
	captures atomic.Int32
	saves    atomic.Int32
}

func (f *fakePublisher) PublishCapture(context.Context, *pipeline.Result) error {
	f.captures.Add(1)
	return stderrors.New("broker down")
}

func (f *fakePublisher) PublishSave(context.Context, *pipeline.Result, string) error {
	f.saves.Add(1)
	return nil
}

func (f *fakePublisher) Close() error { return nil }

var _ publish.Publisher = (*fakePublisher)(nil)

type fixture struct {
	runner    *fakeRunner
	latest    *pipeline.Latest
	archive   *fakeArchive
	recorder  *fakeRecorder
	publisher *fakePublisher
	clock     *manualClock
	sched     *Scheduler
}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func newFixture(t *testing.T, cfg Config, brightness float64) *fixture {
	t.Helper()

	clock := &manualClock{now: time.Date(2024, 5, 1, 12, 10, 0, 0, time.UTC)}
	f := &fixture{
		runner:    &fakeRunner{brightness: brightness, clock: clock.Now},
		latest:    &pipeline.Latest{},
		archive:   &fakeArchive{},
		recorder:  &fakeRecorder{},
		publisher: &fakePublisher{},
		clock:     clock,
	}
	f.sched = New(cfg, f.runner, f.latest, f.archive, f.recorder, f.publisher, logger.Nop(), WithClock(clock.Now))

	return f
}

func defaultConfig() Config {
	return Config{
		Width:             64,
		Height:            48,
		CaptureInterval:   5 * time.Minute,
		SaveInterval:      30 * time.Minute,
		SaveOffset:        5 * time.Second,
		MinimumBrightness: 25,
	}
}

func TestRefreshUpdatesLatest(t *testing.T) {
	f := newFixture(t, defaultConfig(), 80)

	result, err := f.sched.Refresh(context.Background())
	require.NoError(t, err)
	assert.Same(t, result, f.latest.Get())
	assert.Same(t, result, f.sched.Latest())
	assert.Equal(t, 64, result.Width)
	assert.Equal(t, 48, result.Height)

	assert.Equal(t, []uuid.UUID{result.ID}, f.recorder.recorded)
	assert.Equal(t, int32(1), f.publisher.captures.Load(), "publish errors must not fail the capture")
}

func TestCaptureFailureKeepsPrevious(t *testing.T) {
	f := newFixture(t, defaultConfig(), 80)

	first, err := f.sched.Refresh(context.Background())
	require.NoError(t, err)

	f.runner.mu.Lock()
	f.runner.err = errors.New().New(errors.ErrCaptureSource)
	f.runner.mu.Unlock()

	result, err := f.sched.Refresh(context.Background())
	assert.Nil(t, result)
	assert.True(t, errors.HasCode(err, errors.ErrCaptureSource))
	assert.Same(t, first, f.latest.Get())
}

func TestSaveLatestRespectsPolicy(t *testing.T) {
	tests := []struct {
		name       string
		brightness float64
		saved      bool
	}{
		{"below minimum", 24.9, false},
		{"at minimum", 25.0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, defaultConfig(), tt.brightness)

			_, err := f.sched.Refresh(context.Background())
			require.NoError(t, err)

			f.clock.Set(time.Date(2024, 5, 1, 12, 30, 5, 0, time.UTC))
			path, err := f.sched.SaveLatest(context.Background())
			require.NoError(t, err)

			if tt.saved {
				assert.NotEmpty(t, path)
				assert.Equal(t, 1, f.archive.count())
				assert.Equal(t, path, f.recorder.saved[f.latest.Get().ID])
				assert.Equal(t, int32(1), f.publisher.saves.Load())
				assert.Equal(t, time.Date(2024, 5, 1, 13, 0, 0, 0, time.UTC), f.sched.NextSave())
			} else {
				assert.Empty(t, path)
				assert.Zero(t, f.archive.count())
				assert.Equal(t, time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC), f.sched.NextSave())
			}
		})
	}
}

func TestSaveLatestBeforeFirstCapture(t *testing.T) {
	f := newFixture(t, defaultConfig(), 100)
	f.clock.Set(time.Date(2024, 5, 1, 13, 0, 0, 0, time.UTC))

	path, err := f.sched.SaveLatest(context.Background())
	require.NoError(t, err)
	assert.Empty(t, path)
	assert.Zero(t, f.archive.count())
}

func TestSaveLatestArchiveFailure(t *testing.T) {
	f := newFixture(t, defaultConfig(), 100)
	f.archive.err = errors.New().New(errors.ErrPersist)

	_, err := f.sched.Refresh(context.Background())
	require.NoError(t, err)

	f.clock.Set(time.Date(2024, 5, 1, 12, 30, 5, 0, time.UTC))
	_, err = f.sched.SaveLatest(context.Background())
	assert.True(t, errors.HasCode(err, errors.ErrPersist))

	// A failed save leaves the deadline in place so the next trigger retries.
	assert.Equal(t, time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC), f.sched.NextSave())
}

func TestScheduledCaptureSkipsWhileInFlight(t *testing.T) {
	f := newFixture(t, defaultConfig(), 100)
	f.runner.block = make(chan struct{})

	done := make(chan bool)
	go func() {
		done <- f.sched.captureScheduled(context.Background())
	}()

	require.Eventually(t, func() bool {
		return f.runner.calls.Load() == 1
	}, time.Second, time.Millisecond)

	assert.False(t, f.sched.captureScheduled(context.Background()))

	close(f.runner.block)
	assert.True(t, <-done)

	// On-demand captures are never skipped.
	_, err := f.sched.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.runner.calls.Load())
}

func TestUntilNextSaveBoundary(t *testing.T) {
	f := newFixture(t, defaultConfig(), 100)
	assert.Equal(t, 20*time.Minute, f.sched.UntilNextSaveBoundary())
}

func TestRun(t *testing.T) {
	cfg := Config{
		Width:             8,
		Height:            8,
		CaptureInterval:   10 * time.Millisecond,
		SaveInterval:      20 * time.Millisecond,
		MinimumBrightness: 25,
	}

	runner := &fakeRunner{brightness: 100}
	archive := &fakeArchive{}
	sched := New(cfg, runner, &pipeline.Latest{}, archive, &fakeRecorder{}, &fakePublisher{}, logger.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	require.NoError(t, sched.Run(ctx))

	assert.GreaterOrEqual(t, runner.calls.Load(), int32(2))
	assert.GreaterOrEqual(t, archive.count(), 1)
	assert.NotNil(t, sched.Latest())
}

// hangOnceRunner blocks its first call until the context ends.
type hangOnceRunner struct {
	fakeRunner
	hung atomic.Bool
}

func (h *hangOnceRunner) RunCapture(ctx context.Context, width, height int) (*pipeline.Result, error) {
	if h.hung.CompareAndSwap(false, true) {
		h.calls.Add(1)
		<-ctx.Done()
		return nil, errors.New().Wrap(errors.ErrCaptureSource, ctx.Err())
	}
	return h.fakeRunner.RunCapture(ctx, width, height)
}

func TestRunRecoversFromHungCapture(t *testing.T) {
	cfg := Config{
		Width:             8,
		Height:            8,
		CaptureInterval:   20 * time.Millisecond,
		SaveInterval:      time.Hour,
		MinimumBrightness: 25,
	}

	runner := &hangOnceRunner{fakeRunner: fakeRunner{brightness: 100}}
	latest := &pipeline.Latest{}
	sched := New(cfg, runner, latest, &fakeArchive{}, &fakeRecorder{}, &fakePublisher{}, logger.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 400*time.Millisecond)
	defer cancel()

	require.NoError(t, sched.Run(ctx))

	assert.GreaterOrEqual(t, runner.calls.Load(), int32(2))
	assert.NotNil(t, latest.Get(), "a later tick must replace the hung run")
}

func TestScheduledCaptureBoundedByInterval(t *testing.T) {
	cfg := defaultConfig()
	cfg.CaptureInterval = 30 * time.Millisecond

	runner := &hangOnceRunner{}
	sched := New(cfg, runner, &pipeline.Latest{}, &fakeArchive{}, &fakeRecorder{}, &fakePublisher{}, logger.Nop())

	done := make(chan bool, 1)
	go func() {
		done <- sched.captureScheduled(context.Background())
	}()

	select {
	case started := <-done:
		assert.True(t, started)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduled capture was not bounded by the capture interval")
	}

	assert.True(t, sched.captureScheduled(context.Background()), "guard must be released after the timeout")
}
