// Package scheduler drives periodic captures and decides which of them are
// kept.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"codeberg.org/hydrocam/hydrocam/internal/history"
	"codeberg.org/hydrocam/hydrocam/internal/logger"
	"codeberg.org/hydrocam/hydrocam/internal/pipeline"
	"codeberg.org/hydrocam/hydrocam/internal/publish"
)

// Archiver persists a result and returns where it went.
type Archiver interface {
	Save(ctx context.Context, r *pipeline.Result) (string, error)
}

type Config struct {
	Width             int
	Height            int
	CaptureInterval   time.Duration
	SaveInterval      time.Duration
	SaveOffset        time.Duration
	MinimumBrightness float64
}

type Scheduler struct {
	cfg       Config
	runner    pipeline.Runner
	latest    *pipeline.Latest
	policy    *Policy
	archive   Archiver
	history   history.Recorder
	publisher publish.Publisher
	now       func() time.Time
	log       logger.Logger

	inFlight atomic.Bool
	wg       sync.WaitGroup
}

// Option customises a Scheduler.
type Option func(*Scheduler)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

func New(
	cfg Config,
	runner pipeline.Runner,
	latest *pipeline.Latest,
	archive Archiver,
	recorder history.Recorder,
	publisher publish.Publisher,
	log logger.Logger,
	opts ...Option,
) *Scheduler {
	s := &Scheduler{
		cfg:       cfg,
		runner:    runner,
		latest:    latest,
		archive:   archive,
		history:   recorder,
		publisher: publisher,
		now:       time.Now,
		log:       log.With("scheduler"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.policy = NewPolicy(cfg.MinimumBrightness, cfg.SaveInterval, s.now())

	return s
}

// Run performs an initial capture, then fires the capture and save triggers
// until ctx is canceled. It waits for in-flight captures before returning.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info().
		Dur("capture_interval", s.cfg.CaptureInterval).
		Dur("save_interval", s.cfg.SaveInterval).
		Dur("save_offset", s.cfg.SaveOffset).
		Float64("minimum_brightness", s.cfg.MinimumBrightness).
		Time("next_save", s.policy.NextDeadline()).
		Msg("Scheduler started")

	s.spawnCapture(ctx)

	captureTicker := time.NewTicker(s.cfg.CaptureInterval)
	defer captureTicker.Stop()

	saveTimer := time.NewTimer(s.untilSaveTrigger())
	defer saveTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			s.log.Info().Msg("Scheduler stopped")
			return nil

		case <-captureTicker.C:
			s.spawnCapture(ctx)

		case <-saveTimer.C:
			// Errors are logged where they happen; the trigger always re-arms.
			_, _ = s.SaveLatest(ctx)
			saveTimer.Reset(s.untilSaveTrigger())
		}
	}
}

func (s *Scheduler) untilSaveTrigger() time.Duration {
	return UntilNext(s.now(), s.cfg.SaveInterval) + s.cfg.SaveOffset
}

func (s *Scheduler) spawnCapture(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.captureScheduled(ctx)
	}()
}

// captureScheduled runs one scheduled capture unless the previous scheduled
// run is still going. Each run is bounded by the capture interval so a hung
// capture source cannot hold back later ticks. Reports whether a run was
// started.
func (s *Scheduler) captureScheduled(ctx context.Context) bool {
	if !s.inFlight.CompareAndSwap(false, true) {
		s.log.Warn().Msg("Previous capture still running, skipping this tick")
		return false
	}
	defer s.inFlight.Store(false)

	if s.cfg.CaptureInterval > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.CaptureInterval)
		defer cancel()
	}

	_, _ = s.capture(ctx)
	return true
}

// Refresh runs a capture immediately, bypassing the triggers, and updates
// the latest result on success.
func (s *Scheduler) Refresh(ctx context.Context) (*pipeline.Result, error) {
	return s.capture(ctx)
}

func (s *Scheduler) capture(ctx context.Context) (*pipeline.Result, error) {
	result, err := s.runner.RunCapture(ctx, s.cfg.Width, s.cfg.Height)
	if err != nil {
		s.log.ErrorWithCode(err).Msg("Capture failed, keeping previous image")
		return nil, err
	}

	s.latest.Set(result)

	s.log.Info().
		Str("run_id", result.ID.String()).
		Float64("brightness", result.Brightness).
		Dur("duration", result.Duration).
		Msg("Picture taken")

	if err := s.history.Record(ctx, history.EntryFromResult(result)); err != nil {
		s.log.ErrorWithCode(err).Msg("Could not record capture history")
	}
	if err := s.publisher.PublishCapture(ctx, result); err != nil {
		s.log.Warn().Err(err).Msg("Could not publish capture event")
	}

	return result, nil
}

// SaveLatest applies the persistence policy to the latest result. It returns
// the saved path, or "" when the policy declined.
func (s *Scheduler) SaveLatest(ctx context.Context) (string, error) {
	latest := s.latest.Get()
	decision := s.policy.Evaluate(latest, s.now())

	if !decision.Save {
		ev := s.log.Debug().
			Str("reason", string(decision.Reason)).
			Float64("minimum_brightness", s.policy.MinimumBrightness()).
			Time("deadline", decision.Deadline)
		if latest != nil {
			ev = ev.Float64("brightness", latest.Brightness)
		}
		ev.Msg("Not saving latest image")
		return "", nil
	}

	path, err := s.archive.Save(ctx, latest)
	if err != nil {
		return "", err
	}

	next := s.policy.Saved(s.now())
	s.log.Info().
		Str("path", path).
		Float64("brightness", latest.Brightness).
		Time("next_save", next).
		Msg("Latest image saved")

	if err := s.history.MarkSaved(ctx, latest.ID, path); err != nil {
		s.log.ErrorWithCode(err).Msg("Could not mark capture as saved")
	}
	if err := s.publisher.PublishSave(ctx, latest, path); err != nil {
		s.log.Warn().Err(err).Msg("Could not publish save event")
	}

	return path, nil
}

// NextSave returns the earliest time the next save may happen.
func (s *Scheduler) NextSave() time.Time {
	return s.policy.NextDeadline()
}

// UntilNextSaveBoundary returns the time until the next aligned save
// boundary.
func (s *Scheduler) UntilNextSaveBoundary() time.Duration {
	return UntilNext(s.now(), s.cfg.SaveInterval)
}

// Latest returns the most recent successful result, or nil.
func (s *Scheduler) Latest() *pipeline.Result {
	return s.latest.Get()
}
