// Package engine wires the timeline components onto one dispatch loop
// and exposes them to the UI: dispatch, snapshots, subscriptions and
// persisted maps.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/g960059/maptime/internal/clock"
	"github.com/g960059/maptime/internal/config"
	"github.com/g960059/maptime/internal/db"
	"github.com/g960059/maptime/internal/dispatch"
	"github.com/g960059/maptime/internal/domain"
	"github.com/g960059/maptime/internal/exclusion"
	"github.com/g960059/maptime/internal/frames"
	"github.com/g960059/maptime/internal/model"
	"github.com/g960059/maptime/internal/playback"
	"github.com/g960059/maptime/internal/snap"
	"github.com/g960059/maptime/internal/state"
	"github.com/g960059/maptime/internal/timeline"
)

// ErrNoMapStore is returned by map operations of an engine built without a store.
var ErrNoMapStore = errors.New("engine has no map store")

type Engine struct {
	cfg    config.Config
	logger *slog.Logger
	store  *state.Store
	loop   *dispatch.Loop
	maps   *db.Store

	// mapID is the loaded map; owned by the loop goroutine.
	mapID   string
	persist dispatch.Latest

	mu      sync.Mutex
	subs    map[int]chan model.Action
	nextSub int
}

type options struct {
	logger   *slog.Logger
	clock    clock.Clock
	resolver domain.Resolver
	maps     *db.Store
}

type Option func(*options)

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithResolver replaces the HTTP domain client.
func WithResolver(r domain.Resolver) Option {
	return func(o *options) { o.resolver = r }
}

// WithMapStore enables LoadMap and settings persistence.
func WithMapStore(s *db.Store) Option {
	return func(o *options) { o.maps = s }
}

func New(cfg config.Config, opts ...Option) *Engine {
	o := options{logger: slog.Default(), clock: clock.Real()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.resolver == nil {
		o.resolver = domain.New().
			WithTimeout(cfg.Service.RequestTimeout).
			WithJSON(cfg.Service.PreferJSON).
			WithLogger(o.logger)
	}

	store := state.New(cfg.Playback, cfg.Timeline)
	loop := dispatch.New(store.Reduce,
		dispatch.WithLogger(o.logger),
		dispatch.WithClock(o.clock),
		dispatch.WithInboxSize(cfg.ActionBuffer),
	)
	e := &Engine{
		cfg:     cfg,
		logger:  o.logger,
		store:   store,
		loop:    loop,
		maps:    o.maps,
		persist: dispatch.Latest{Name: "save-settings"},
		subs:    map[int]chan model.Action{},
	}

	snapper := snap.New(o.resolver, o.logger)
	loop.Register(
		snap.NewHandler(loop, store, snapper, cfg.SnapThrottle),
		playback.NewHandler(loop, store, frames.NewLoader(o.resolver, o.logger), snapper),
		timeline.NewRangeManager(loop, store),
		timeline.NewGuideSync(loop, store, snapper),
		timeline.NewRangeData(loop, store, o.resolver, timeline.RangeDataOptions{
			Debounce:    cfg.RangeDebounce,
			Workers:     cfg.RangeDataWorkers,
			Buckets:     cfg.HistogramBuckets,
			NotifyAfter: cfg.NotificationTimeout,
		}),
		exclusion.NewCoordinator(loop, store, cfg.NotificationTimeout),
		dispatch.HandlerFunc(e.saveSettings),
	)
	loop.Observe(e.publish)
	return e
}

// Run processes actions until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	err := e.loop.Run(ctx)
	e.closeSubscribers()
	return err
}

func (e *Engine) Dispatch(actions ...model.Action) error {
	for _, a := range actions {
		if err := e.loop.Dispatch(a); err != nil {
			return fmt.Errorf("dispatch %s: %w", a.Type(), err)
		}
	}
	return nil
}

// WaitIdle blocks until every queued action and in-flight fetch settled.
func (e *Engine) WaitIdle(ctx context.Context) error {
	return e.loop.WaitIdle(ctx)
}

// Snapshot returns a deep copy of the state taken on the loop goroutine.
func (e *Engine) Snapshot(ctx context.Context) (state.Store, error) {
	out := make(chan state.Store, 1)
	if err := e.loop.Post(func() { out <- e.store.Clone() }); err != nil {
		return state.Store{}, err
	}
	select {
	case s := <-out:
		return s, nil
	case <-ctx.Done():
		return state.Store{}, ctx.Err()
	}
}

// Subscribe streams every applied action. A subscriber that falls more
// than buffer actions behind misses actions. cancel closes the channel.
func (e *Engine) Subscribe(buffer int) (<-chan model.Action, func()) {
	if buffer <= 0 {
		buffer = e.cfg.ActionBuffer
	}
	ch := make(chan model.Action, buffer)
	e.mu.Lock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = ch
	e.mu.Unlock()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			if _, ok := e.subs[id]; ok {
				delete(e.subs, id)
				close(ch)
			}
		})
	}
}

func (e *Engine) publish(a model.Action) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, ch := range e.subs {
		select {
		case ch <- a:
		default:
			e.logger.Debug("subscriber behind, action dropped", "subscriber", id, "action", a.Type())
		}
	}
}

func (e *Engine) closeSubscribers() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, ch := range e.subs {
		delete(e.subs, id)
		close(ch)
	}
}

// SaveMap stores a map configuration.
func (e *Engine) SaveMap(ctx context.Context, cfg model.MapConfig) error {
	if e.maps == nil {
		return ErrNoMapStore
	}
	return e.maps.SaveMapConfig(ctx, cfg)
}

// LoadMap resets the controls and applies the stored map mapID. Later
// settings changes are saved back to it.
func (e *Engine) LoadMap(ctx context.Context, mapID string) error {
	if e.maps == nil {
		return ErrNoMapStore
	}
	cfg, err := e.maps.LoadMapConfig(ctx, mapID)
	if err != nil {
		return fmt.Errorf("load map %s: %w", mapID, err)
	}
	return e.loop.Post(func() {
		e.persist.Cancel()
		e.mapID = mapID
		e.loop.Emit(model.ResetControls{})
		e.loop.Emit(model.MapLoaded{Config: cfg})
	})
}

// saveSettings persists the mutable map settings after they changed.
func (e *Engine) saveSettings(a model.Action) {
	switch a.(type) {
	case model.UpdateTimelineSettings, model.UpdatePlaybackSettings, model.SelectLayer,
		model.SetPlaybackRange, model.CollapseTimeline, model.ExpandTimeline:
	default:
		return
	}
	if e.maps == nil || e.mapID == "" {
		return
	}
	mapID := e.mapID
	settings := db.MapSettings{
		Timeline:      e.store.Timeline.Settings,
		Playback:      e.store.Playback.Settings,
		SelectedLayer: e.store.Timeline.SelectedLayer,
		PlaybackRange: e.store.Playback.PlaybackRange,
	}
	e.persist.Start(e.loop, func(ctx context.Context) func() {
		err := e.maps.SaveMapSettings(ctx, mapID, settings)
		return func() {
			if err != nil && !errors.Is(err, context.Canceled) {
				e.logger.Warn("save map settings failed", "map", mapID, "err", err)
			}
		}
	})
}
