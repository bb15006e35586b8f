package scheduler

import (
	"sync"
	"time"

	"codeberg.org/hydrocam/hydrocam/internal/pipeline"
)

// Reason explains a save decision.
type Reason string

const (
	ReasonSave           Reason = "save"
	ReasonNoResult       Reason = "no_result"
	ReasonBeforeDeadline Reason = "before_deadline"
	ReasonTooDark        Reason = "too_dark"
)

// Decision is the outcome of evaluating the policy.
type Decision struct {
	Save     bool
	Reason   Reason
	Deadline time.Time
}

// UntilNext returns the time from now to the next wall-clock multiple of
// interval. At an exact boundary it returns a full interval.
func UntilNext(now time.Time, interval time.Duration) time.Duration {
	if interval <= 0 {
		return 0
	}
	return interval - time.Duration(now.UnixNano()%int64(interval))
}

// Policy decides whether the latest result gets persisted. The deadline
// only moves when Saved is called.
type Policy struct {
	minimumBrightness float64
	saveInterval      time.Duration

	mu           sync.Mutex
	nextDeadline time.Time
}

// NewPolicy starts with the deadline at the first aligned boundary after
// now.
func NewPolicy(minimumBrightness float64, saveInterval time.Duration, now time.Time) *Policy {
	return &Policy{
		minimumBrightness: minimumBrightness,
		saveInterval:      saveInterval,
		nextDeadline:      now.Add(UntilNext(now, saveInterval)),
	}
}

func (p *Policy) Evaluate(latest *pipeline.Result, now time.Time) Decision {
	p.mu.Lock()
	deadline := p.nextDeadline
	p.mu.Unlock()

	d := Decision{Deadline: deadline}
	switch {
	case latest == nil:
		d.Reason = ReasonNoResult
	case now.Before(deadline):
		d.Reason = ReasonBeforeDeadline
	case latest.Brightness < p.minimumBrightness:
		d.Reason = ReasonTooDark
	default:
		d.Save = true
		d.Reason = ReasonSave
	}

	return d
}

// Saved advances the deadline to the next aligned boundary after at.
func (p *Policy) Saved(at time.Time) time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()

	next := at.Add(UntilNext(at, p.saveInterval))
	if next.After(p.nextDeadline) {
		p.nextDeadline = next
	}
	return p.nextDeadline
}

// NextDeadline returns the earliest time a save may happen.
func (p *Policy) NextDeadline() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.nextDeadline
}

func (p *Policy) MinimumBrightness() float64 {
	return p.minimumBrightness
}
