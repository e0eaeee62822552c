package snap

import (
	"context"
	"time"

	"github.com/g960059/maptime/internal/dispatch"
	"github.com/g960059/maptime/internal/model"
	"github.com/g960059/maptime/internal/state"
)

// Handler turns scrub requests into snapped current times. Requests are
// throttled and a newer request discards the result of an older one.
type Handler struct {
	loop     *dispatch.Loop
	store    *state.Store
	snapper  *Snapper
	throttle dispatch.Throttler
	job      dispatch.Latest
}

func NewHandler(loop *dispatch.Loop, store *state.Store, snapper *Snapper, interval time.Duration) *Handler {
	return &Handler{
		loop:     loop,
		store:    store,
		snapper:  snapper,
		throttle: dispatch.Throttler{Interval: interval},
		job:      dispatch.Latest{Name: "select-time"},
	}
}

func (h *Handler) Handle(a model.Action) {
	switch act := a.(type) {
	case model.SelectTime:
		h.throttle.Do(h.loop, func() { h.selectTime(act) })
	case model.ResetControls, model.MapLoaded, model.LocationChanged:
		h.throttle.Cancel()
		h.job.Cancel()
	}
}

func (h *Handler) selectTime(act model.SelectTime) {
	id := act.GroupID
	if id == "" {
		id = h.store.Timeline.SelectedLayer
	}
	req, ok := NewRequest(h.store, id)
	if !ok {
		h.job.Cancel()
		h.loop.Emit(model.SetCurrentTime{Time: act.Time})
		return
	}
	target := act.Time
	h.job.Start(h.loop, func(ctx context.Context) func() {
		snapped := h.snapper.Snap(ctx, req, target)
		return func() {
			h.loop.Emit(model.SetCurrentTime{Time: snapped})
		}
	})
}
