// Package dispatch runs reducers and handlers for actions on a single
// goroutine. Blocking work runs in jobs whose results are posted back
// to the loop, so state is only ever touched by the loop goroutine.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/g960059/maptime/internal/clock"
	"github.com/g960059/maptime/internal/model"
)

const defaultInboxSize = 256

// ErrStopped is returned by Dispatch after the loop has exited.
var ErrStopped = errors.New("dispatch loop stopped")

// Handler reacts to an action after every reducer has applied it. It
// runs on the loop goroutine and may Emit further actions.
type Handler interface {
	Handle(a model.Action)
}

type HandlerFunc func(a model.Action)

func (f HandlerFunc) Handle(a model.Action) { f(a) }

type Loop struct {
	clock     clock.Clock
	logger    *slog.Logger
	reduce    func(model.Action)
	handlers  []Handler
	observers []func(model.Action)

	inbox chan func()
	queue []model.Action

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	pending int
	idle    chan struct{}
}

type Option func(*Loop)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) {
		if logger != nil {
			l.logger = logger
		}
	}
}

func WithClock(c clock.Clock) Option {
	return func(l *Loop) {
		if c != nil {
			l.clock = c
		}
	}
}

// WithInboxSize bounds the number of posted callbacks waiting for the loop.
func WithInboxSize(n int) Option {
	return func(l *Loop) {
		if n > 0 {
			l.inbox = make(chan func(), n)
		}
	}
}

// New builds a loop applying reduce to every action before handlers run.
func New(reduce func(model.Action), opts ...Option) *Loop {
	ctx, cancel := context.WithCancel(context.Background())
	l := &Loop{
		clock:  clock.Real(),
		logger: slog.Default(),
		reduce: reduce,
		inbox:  make(chan func(), defaultInboxSize),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Register adds handlers. It must be called before Run.
func (l *Loop) Register(handlers ...Handler) {
	l.handlers = append(l.handlers, handlers...)
}

// Observe adds a callback that sees every applied action, after the
// handlers. Observers run on the loop goroutine and must not block.
func (l *Loop) Observe(fn func(model.Action)) {
	l.observers = append(l.observers, fn)
}

func (l *Loop) Clock() clock.Clock { return l.clock }

func (l *Loop) Logger() *slog.Logger { return l.logger }

// Run processes posted work until ctx is cancelled. Jobs see a context
// that is cancelled when Run returns.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.done)
	defer l.cancel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-l.inbox:
			fn()
			l.drain()
			l.add(-1)
		}
	}
}

// Dispatch queues a from any goroutine.
func (l *Loop) Dispatch(a model.Action) error {
	return l.Post(func() { l.Emit(a) })
}

// Post runs fn on the loop goroutine.
func (l *Loop) Post(fn func()) error {
	select {
	case <-l.done:
		return ErrStopped
	default:
	}
	l.add(1)
	select {
	case l.inbox <- fn:
		return nil
	case <-l.done:
		l.add(-1)
		return ErrStopped
	}
}

// Emit queues a behind the actions already queued. It must only be
// called on the loop goroutine.
func (l *Loop) Emit(a model.Action) {
	l.queue = append(l.queue, a)
}

func (l *Loop) drain() {
	for len(l.queue) > 0 {
		a := l.queue[0]
		l.queue = l.queue[1:]
		l.reduce(a)
		for _, h := range l.handlers {
			h.Handle(a)
		}
		for _, obs := range l.observers {
			obs(a)
		}
	}
	l.queue = nil
}

// Go runs work on its own goroutine. The returned continuation, if any,
// runs on the loop goroutine.
func (l *Loop) Go(work func(ctx context.Context) func()) {
	l.add(1)
	go func() {
		defer l.add(-1)
		if next := work(l.ctx); next != nil {
			_ = l.Post(next)
		}
	}()
}

// AfterFunc schedules fn on the loop goroutine after d.
func (l *Loop) AfterFunc(d time.Duration, fn func()) clock.Timer {
	return l.clock.AfterFunc(d, func() {
		_ = l.Post(fn)
	})
}

// WaitIdle blocks until no posted callback or job is outstanding.
// Pending timers do not count.
func (l *Loop) WaitIdle(ctx context.Context) error {
	for {
		l.mu.Lock()
		if l.pending == 0 {
			l.mu.Unlock()
			return nil
		}
		if l.idle == nil {
			l.idle = make(chan struct{})
		}
		idle := l.idle
		l.mu.Unlock()
		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		case <-l.done:
			return ErrStopped
		}
	}
}

func (l *Loop) add(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending += n
	if l.pending == 0 && l.idle != nil {
		close(l.idle)
		l.idle = nil
	}
}
