package dispatch

import (
	"context"
	"time"

	"github.com/g960059/maptime/internal/clock"
)

// Latest keeps at most one job alive. Starting a job cancels the
// previous one; a superseded result is discarded when it arrives.
// Its methods must be called on the loop goroutine.
type Latest struct {
	Name string

	gen     uint64
	cancel  context.CancelFunc
	running bool
}

func (s *Latest) Start(l *Loop, work func(ctx context.Context) func()) {
	s.Cancel()
	gen := s.gen
	ctx, cancel := context.WithCancel(l.ctx)
	s.cancel = cancel
	s.running = true
	l.Go(func(context.Context) func() {
		next := work(ctx)
		return func() {
			cancel()
			if s.gen != gen {
				l.logger.Debug("discarded superseded result", "job", s.Name)
				return
			}
			s.running = false
			s.cancel = nil
			if next != nil {
				next()
			}
		}
	})
}

// Cancel drops the running job, if any.
func (s *Latest) Cancel() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.gen++
	s.running = false
}

func (s *Latest) Active() bool { return s.running }

// Exhaust ignores new jobs while one is running (first wins).
type Exhaust struct {
	latest Latest
}

func NewExhaust(name string) *Exhaust {
	return &Exhaust{latest: Latest{Name: name}}
}

// Start reports whether work was started.
func (e *Exhaust) Start(l *Loop, work func(ctx context.Context) func()) bool {
	if e.latest.Active() {
		l.logger.Debug("ignored while busy", "job", e.latest.Name)
		return false
	}
	e.latest.Start(l, work)
	return true
}

func (e *Exhaust) Cancel() { e.latest.Cancel() }

func (e *Exhaust) Active() bool { return e.latest.Active() }

// Debouncer runs the last triggered callback once Delay passed without
// a new trigger.
type Debouncer struct {
	Delay time.Duration

	timer clock.Timer
	gen   uint64
}

func (d *Debouncer) Trigger(l *Loop, fn func()) {
	d.Cancel()
	gen := d.gen
	d.timer = l.AfterFunc(d.Delay, func() {
		if d.gen != gen {
			return
		}
		d.timer = nil
		fn()
	})
}

func (d *Debouncer) Cancel() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
}

func (d *Debouncer) Pending() bool { return d.timer != nil }

// Throttler runs the first call immediately and then at most one call
// per Interval. The latest call made during an interval runs when the
// interval ends, so the final value is never lost.
type Throttler struct {
	Interval time.Duration

	timer    clock.Timer
	trailing func()
	gen      uint64
}

func (t *Throttler) Do(l *Loop, fn func()) {
	if t.timer != nil {
		t.trailing = fn
		return
	}
	fn()
	t.arm(l)
}

func (t *Throttler) arm(l *Loop) {
	gen := t.gen
	t.timer = l.AfterFunc(t.Interval, func() {
		if t.gen != gen {
			return
		}
		t.timer = nil
		if next := t.trailing; next != nil {
			t.trailing = nil
			next()
			t.arm(l)
		}
	})
}

func (t *Throttler) Cancel() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.trailing = nil
	t.gen++
}

// Ticker calls fn every Interval on the loop goroutine until stopped.
type Ticker struct {
	Interval time.Duration

	timer   clock.Timer
	gen     uint64
	running bool
}

func (t *Ticker) Start(l *Loop, fn func()) {
	t.Stop()
	t.running = true
	t.arm(l, t.gen, fn)
}

func (t *Ticker) arm(l *Loop, gen uint64, fn func()) {
	t.timer = l.AfterFunc(t.Interval, func() {
		if t.gen != gen {
			return
		}
		fn()
		if t.gen == gen {
			t.arm(l, gen, fn)
		}
	})
}

func (t *Ticker) Stop() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.gen++
	t.running = false
}

func (t *Ticker) Running() bool { return t.running }
