// Package scheduler drives frames on a single goroutine. Everything that
// touches surface state runs there: ticks, posted operator input and
// deferred continuations.
package scheduler

import (
	"context"
	"time"

	"grain-surface/debug"
)

// DefaultFPS is the refresh rate while active
const DefaultFPS = 30

// Scheduler is a cooperative frame driver with suspend/resume control.
// Resume, Suspend, RequestOneShot and Active must be called from the loop
// (inside a frame or a posted func); Post and After are safe anywhere.
type Scheduler struct {
	interval time.Duration
	inbox    chan func()
	done     chan struct{}

	ticker  *time.Ticker
	active  bool
	oneShot bool
	frames  uint64
}

// New creates a scheduler ticking at fps. It starts active.
func New(fps int) *Scheduler {
	if fps <= 0 {
		fps = DefaultFPS
	}
	return &Scheduler{
		interval: time.Second / time.Duration(fps),
		inbox:    make(chan func(), 64),
		done:     make(chan struct{}),
		active:   true,
	}
}

// Interval returns the time between ticks
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// Run executes frame on every tick until ctx is cancelled (blocking - run
// in goroutine or as the main loop)
func (s *Scheduler) Run(ctx context.Context, frame func()) {
	s.ticker = time.NewTicker(s.interval)
	defer s.ticker.Stop()
	defer close(s.done)
	if !s.active {
		s.ticker.Stop()
	}

	for {
		if s.oneShot {
			s.oneShot = false
			s.runFrame(frame)
			continue
		}

		var tick <-chan time.Time
		if s.active {
			tick = s.ticker.C
		}

		select {
		case <-ctx.Done():
			return
		case fn := <-s.inbox:
			fn()
		case <-tick:
			s.runFrame(frame)
		}
	}
}

func (s *Scheduler) runFrame(frame func()) {
	s.frames++
	debug.LogEvery(300, "sched", "frame %d active=%v", s.frames, s.active)
	frame()
}

// Post queues fn to run on the loop. It returns false once the loop has
// stopped.
func (s *Scheduler) Post(fn func()) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case <-s.done:
		return false
	case s.inbox <- fn:
		return true
	}
}

// Resume restarts continuous ticking. Missed ticks are not replayed.
func (s *Scheduler) Resume() {
	if s.active {
		return
	}
	s.active = true
	if s.ticker != nil {
		s.ticker.Reset(s.interval)
	}
	debug.Log("sched", "resume")
}

// Suspend stops ticking entirely
func (s *Scheduler) Suspend() {
	if !s.active {
		return
	}
	s.active = false
	if s.ticker != nil {
		s.ticker.Stop()
	}
	debug.Log("sched", "suspend after %d frames", s.frames)
}

// RequestOneShot runs exactly one frame without becoming active. While
// active it is a no-op: the next tick draws anyway.
func (s *Scheduler) RequestOneShot() {
	if s.active {
		return
	}
	s.oneShot = true
}

// Active reports whether continuous ticking is on
func (s *Scheduler) Active() bool {
	return s.active
}

// Frames returns how many frames have run
func (s *Scheduler) Frames() uint64 {
	return s.frames
}

// After runs fn on the loop once d has elapsed. The returned func cancels it
// if it has not run yet; call it from the loop.
func (s *Scheduler) After(d time.Duration, fn func()) (cancel func()) {
	cancelled := false
	t := time.AfterFunc(d, func() {
		s.Post(func() {
			if !cancelled {
				fn()
			}
		})
	})
	return func() {
		cancelled = true
		t.Stop()
	}
}
