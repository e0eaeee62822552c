package playback

import (
	"context"
	"slices"
	"time"

	"github.com/g960059/maptime/internal/model"
	"github.com/g960059/maptime/internal/snap"
	"github.com/g960059/maptime/internal/state"
)

// stepMove moves the current time one domain value. It is a no-op
// while playing or when no value exists in that direction.
func (h *Handler) stepMove(direction int) {
	s := h.store
	if s.Playback.Status == model.StatusPlay || direction == 0 {
		return
	}
	if direction > 0 {
		direction = 1
	} else {
		direction = -1
	}
	from := s.Dimension.CurrentTime
	if from.IsZero() {
		from = h.loop.Clock().Now()
	}
	if direction > 0 && state.HasNext(s.Playback, s.Dimension) {
		h.moveTo(s.Playback.Metadata.Next)
		return
	}
	if direction < 0 && state.HasPrevious(s.Playback, s.Dimension) {
		h.moveTo(s.Playback.Metadata.Previous)
		return
	}
	guide := s.Timeline.SelectedLayer
	if guide == "" {
		if t, ok := h.fixedStep(from, direction); ok {
			h.moveTo(t)
		}
		return
	}
	req, ok := snap.NewRequest(s, guide)
	if !ok {
		return
	}
	h.step.Start(h.loop, func(ctx context.Context) func() {
		t, ok := h.snapper.Step(ctx, req, from, direction)
		return func() {
			if ok {
				h.moveTo(t)
			}
		}
	})
}

func (h *Handler) fixedStep(from time.Time, direction int) (time.Time, bool) {
	settings := h.store.Playback.Settings
	if !settings.HasFixedStep() {
		return time.Time{}, false
	}
	t, err := model.AddStep(from, direction*settings.TimeStep, settings.StepUnit)
	if err != nil {
		h.logger.Warn("fixed step failed", "err", err)
		return time.Time{}, false
	}
	return t, true
}

// moveTo sets the current time after a step. With an offset the range
// window travels as a whole. While paused the current frame follows
// when t is buffered.
func (h *Handler) moveTo(t time.Time) {
	if h.store.Dimension.OffsetTime.IsZero() {
		h.loop.Emit(model.SetCurrentTime{Time: t})
	} else {
		h.loop.Emit(model.MoveTime{Time: t})
	}
	ps := h.store.Playback
	if ps.Status != model.StatusPause {
		return
	}
	if i := slices.IndexFunc(ps.Frames, t.Equal); i >= 0 && i != ps.CurrentFrame {
		h.loop.Emit(model.SetCurrentFrame{Frame: i})
	}
}

type metadataKey struct {
	at       int64
	layer    string
	snap     model.SnapType
	settings model.PlaybackSettings
	window   model.TimeRange
}

// syncMetadata refreshes the neighbour cache whenever the current time
// or the guide layer changed outside of playback.
func (h *Handler) syncMetadata() {
	s := h.store
	if s.Playback.Status == model.StatusPlay {
		h.metadata.Cancel()
		h.metaKey = metadataKey{}
		return
	}
	cur := s.Dimension.CurrentTime
	if cur.IsZero() {
		return
	}
	key := metadataKey{
		at:       cur.UnixNano(),
		layer:    s.Timeline.SelectedLayer,
		snap:     s.Timeline.Settings.SnapType,
		settings: s.Playback.Settings,
		window:   s.Playback.PlaybackRange,
	}
	if key == h.metaKey {
		return
	}
	h.metaKey = key

	if key.layer == "" {
		h.metadata.Cancel()
		meta := model.PlaybackMetadata{ForTime: cur}
		if next, ok := h.fixedStep(cur, 1); ok {
			meta.Next = next
			meta.Previous, _ = h.fixedStep(cur, -1)
		}
		h.loop.Emit(model.UpdateMetadata{Metadata: meta})
		return
	}
	req, ok := snap.NewRequest(s, key.layer)
	if !ok {
		h.metadata.Cancel()
		return
	}
	h.metadata.Start(h.loop, func(ctx context.Context) func() {
		previous, next, intervals := h.snapper.Neighbours(ctx, req, cur)
		return func() {
			h.loop.Emit(model.UpdateMetadata{Metadata: model.PlaybackMetadata{
				ForTime:          cur,
				Next:             next,
				Previous:         previous,
				TimeIntervalData: intervals,
			}})
		}
	})
}
