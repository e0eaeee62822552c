// Package playback drives the animation: it loads frame buffers, runs
// the animation clock, prefetches pages and handles manual steps.
package playback

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/g960059/maptime/internal/dispatch"
	"github.com/g960059/maptime/internal/frames"
	"github.com/g960059/maptime/internal/model"
	"github.com/g960059/maptime/internal/snap"
	"github.com/g960059/maptime/internal/state"
)

// DefaultFrameDuration is used when the settings carry no frame duration.
const DefaultFrameDuration = 5 * time.Second

type Handler struct {
	loop    *dispatch.Loop
	store   *state.Store
	loader  *frames.Loader
	snapper *snap.Snapper
	logger  *slog.Logger

	load     *dispatch.Exhaust
	prefetch dispatch.Latest
	ticker   dispatch.Ticker
	step     dispatch.Latest
	metadata dispatch.Latest

	// tiled holds the single-tile mode of layers switched for playback.
	tiled      map[string]bool
	prefetched time.Time
	metaKey    metadataKey
}

func NewHandler(loop *dispatch.Loop, store *state.Store, loader *frames.Loader, snapper *snap.Snapper) *Handler {
	return &Handler{
		loop:     loop,
		store:    store,
		loader:   loader,
		snapper:  snapper,
		logger:   loop.Logger(),
		load:     dispatch.NewExhaust("load-frames"),
		prefetch: dispatch.Latest{Name: "prefetch-frames"},
		step:     dispatch.Latest{Name: "step-move"},
		metadata: dispatch.Latest{Name: "playback-metadata"},
		tiled:    map[string]bool{},
	}
}

func (h *Handler) Handle(a model.Action) {
	switch act := a.(type) {
	case model.Play:
		if h.store.Playback.Status == model.StatusStop {
			h.start()
		}
	case model.SetFrames:
		if h.store.Playback.Status == model.StatusPlay && len(act.Frames) > 0 {
			h.run()
		}
	case model.SetCurrentFrame:
		h.applyFrame(act.Frame)
	case model.Stop:
		h.halt(true)
	case model.ResetControls:
		// Layers are replaced with the next map, nothing to restore.
		h.halt(false)
		h.step.Cancel()
	case model.LocationChanged:
		if h.store.Playback.Status != model.StatusStop || h.load.Active() {
			h.loop.Emit(model.Stop{})
		}
	case model.StepMove:
		h.stepMove(act.Direction)
	}
	h.syncMetadata()
}

func (h *Handler) frameDuration() time.Duration {
	if d := h.store.Playback.Settings.FrameDuration; d > 0 {
		return d
	}
	return DefaultFrameDuration
}

// start loads the first buffer. A second play while loading is ignored.
func (h *Handler) start() {
	if h.load.Active() {
		h.logger.Debug("play ignored while loading frames")
		return
	}
	h.singleTile()
	h.loop.Emit(model.SetLoading{Key: model.LoadingTimeline, Loading: true})
	req := frames.NewRequest(h.store, h.loop.Clock().Now(), false)
	h.logger.Info("loading frames", "mode", req.Mode.String(), "layer", h.store.Timeline.SelectedLayer)
	h.load.Start(h.loop, func(ctx context.Context) func() {
		buffer, err := h.loader.Load(ctx, req)
		return func() {
			switch {
			case err != nil:
				h.loop.Emit(model.SetLoading{Key: model.LoadingTimeline, Loading: false})
				h.fail(err)
			case len(buffer) == 0:
				h.loop.Emit(model.SetLoading{Key: model.LoadingTimeline, Loading: false})
				h.logger.Info("no frames to play")
				h.loop.Emit(model.Stop{})
			default:
				h.loop.Emit(model.SetFrames{Frames: buffer})
				h.loop.Emit(model.SetLoading{Key: model.LoadingTimeline, Loading: false})
			}
		}
	})
}

// run applies the first frame and starts the animation clock.
func (h *Handler) run() {
	h.prefetched = time.Time{}
	h.loop.Emit(model.SetCurrentFrame{Frame: 0})
	h.ticker.Interval = h.frameDuration()
	h.ticker.Start(h.loop, h.tick)
}

// tick advances one frame. Ticks are dropped unless playing.
func (h *Handler) tick() {
	ps := h.store.Playback
	if ps.Status != model.StatusPlay {
		return
	}
	next := ps.CurrentFrame + 1
	if next < len(ps.Frames) {
		h.loop.Emit(model.SetCurrentFrame{Frame: next})
		return
	}
	if h.prefetch.Active() {
		h.logger.Debug("holding last frame until prefetch completes")
		return
	}
	h.loop.Emit(model.Stop{})
}

func (h *Handler) applyFrame(index int) {
	ps := h.store.Playback
	if !state.Animating(ps) || ps.CurrentFrame != index {
		return
	}
	t, ok := state.CurrentFrameTime(ps)
	if !ok {
		return
	}
	h.loop.Emit(model.MoveTime{Time: t})
	if frames.ShouldPrefetch(index) {
		h.prefetchNext()
	}
}

func (h *Handler) prefetchNext() {
	req := frames.NewRequest(h.store, h.loop.Clock().Now(), true)
	if req.From.IsZero() || req.From.Equal(h.prefetched) {
		return
	}
	h.prefetched = req.From
	h.prefetch.Start(h.loop, func(ctx context.Context) func() {
		page, err := h.loader.Load(ctx, req)
		return func() {
			if err != nil {
				h.fail(err)
				return
			}
			if len(page) > 0 {
				h.loop.Emit(model.AppendFrames{Frames: page})
			}
		}
	})
}

// halt cancels every in-flight load and the clock.
func (h *Handler) halt(restore bool) {
	h.load.Cancel()
	h.prefetch.Cancel()
	h.ticker.Stop()
	h.prefetched = time.Time{}
	if h.store.Timeline.Loading[model.LoadingTimeline] {
		h.loop.Emit(model.SetLoading{Key: model.LoadingTimeline, Loading: false})
	}
	if restore {
		ids := make([]string, 0, len(h.tiled))
		for id := range h.tiled {
			ids = append(ids, id)
		}
		slices.Sort(ids)
		for _, id := range ids {
			prior := h.tiled[id]
			h.loop.Emit(model.ChangeLayerProperties{LayerID: id, Properties: model.LayerProperties{SingleTile: &prior}})
		}
	}
	clear(h.tiled)
}

// singleTile switches visible time layers to single-tile rendering for
// the duration of the playback.
func (h *Handler) singleTile() {
	for _, l := range state.TimeLayers(h.store.Layers, h.store.Dimension) {
		if !l.Visible || l.SingleTile {
			continue
		}
		h.tiled[l.ID] = false
		h.loop.Emit(model.ChangeLayerProperties{LayerID: l.ID, Properties: model.LayerProperties{SingleTile: model.BoolPtr(true)}})
	}
}

func (h *Handler) fail(err error) {
	h.logger.Warn("frames load failed", "err", err)
	h.loop.Emit(model.ShowNotification{Notification: model.Notification{
		ID:      uuid.NewString(),
		Level:   model.NotificationError,
		Title:   "playback",
		Message: model.MsgFramesLoadFailed,
	}})
	h.loop.Emit(model.Stop{})
}
