// Package timeline keeps the visible range, the offset, the guide layer
// and the per-layer range data consistent with the rest of the state.
package timeline

import (
	"time"

	"github.com/g960059/maptime/internal/dispatch"
	"github.com/g960059/maptime/internal/domain"
	"github.com/g960059/maptime/internal/model"
	"github.com/g960059/maptime/internal/state"
)

const (
	defaultOffset = 24 * time.Hour
	// pointPadding is added on both sides of a range that would be empty.
	pointPadding = 12 * time.Hour
)

// RangeInit is the aligned selection computed from a layer domain.
type RangeInit struct {
	Current time.Time
	Offset  time.Time
	Range   model.TimeRange
}

// InitialRange aligns current time, offset and range to raw. The chosen
// start is the current time, or the first domain value. The chosen end
// is the offset, or the chosen start plus the domain width. The range
// spans both; a zero width range is padded by 12 hours on each side.
func InitialRange(raw string, current, offset time.Time) (RangeInit, bool) {
	start, end, ok := domain.DomainBounds(raw)
	if !ok {
		return RangeInit{}, false
	}
	out := RangeInit{Current: current, Offset: offset}
	if out.Current.IsZero() {
		out.Current = start
	}
	to := out.Offset
	if to.IsZero() || !to.After(out.Current) {
		out.Offset = time.Time{}
		to = out.Current.Add(end.Sub(start))
	}
	out.Range = model.TimeRange{Start: out.Current, End: to}
	if out.Range.Width() == 0 {
		out.Range = model.TimeRange{Start: out.Current.Add(-pointPadding), End: out.Current.Add(pointPadding)}
	}
	return out, true
}

// OffsetFor returns the default offset for a current time in a view of
// the given range: a fifth of its width, or one day.
func OffsetFor(current time.Time, view model.TimeRange) time.Time {
	if w := view.Width(); w > 0 {
		return current.Add(w / 5)
	}
	return current.Add(defaultOffset)
}

// Follow returns view shifted so that the selection is centred, when
// the selection left it. The width is preserved.
func Follow(view model.TimeRange, current, offset time.Time) (model.TimeRange, bool) {
	w := view.Width()
	if w <= 0 || current.IsZero() {
		return view, false
	}
	inside := view.Contains(current) && (offset.IsZero() || view.Contains(offset))
	if inside {
		return view, false
	}
	centre := current
	if !offset.IsZero() {
		centre = current.Add(offset.Sub(current) / 2)
	}
	start := centre.Add(-w / 2)
	return model.TimeRange{Start: start, End: start.Add(w)}, true
}

// RangeManager owns the visible range and the offset.
type RangeManager struct {
	loop  *dispatch.Loop
	store *state.Store
}

func NewRangeManager(loop *dispatch.Loop, store *state.Store) *RangeManager {
	return &RangeManager{loop: loop, store: store}
}

func (m *RangeManager) Handle(a model.Action) {
	switch act := a.(type) {
	case model.EnableOffset:
		m.enableOffset(act.Enabled)
	case model.InitRange:
		m.initRange(act)
	case model.MoveTime, model.SetCurrentTime:
		m.follow()
	}
}

func (m *RangeManager) enableOffset(enabled bool) {
	ds := m.store.Dimension
	if !enabled {
		if !ds.OffsetTime.IsZero() {
			m.loop.Emit(model.SetOffsetTime{})
		}
		return
	}
	if !ds.OffsetTime.IsZero() {
		return
	}
	view := m.store.Timeline.Range
	current := ds.CurrentTime
	if current.IsZero() {
		current = m.loop.Clock().Now().UTC()
		m.loop.Emit(model.SetCurrentTime{Time: current})
		if w := view.Width(); w > 0 {
			start := current.Add(-w / 2)
			m.loop.Emit(model.SetRange{Range: model.TimeRange{Start: start, End: start.Add(w)}})
		}
	}
	m.loop.Emit(model.SetOffsetTime{Time: OffsetFor(current, view)})
}

func (m *RangeManager) initRange(act model.InitRange) {
	raw := act.Domain
	if raw == "" {
		if dim, ok := state.TimeDimension(m.store.Dimension, act.LayerID); ok {
			raw = dim.Domain
		}
	}
	ds := m.store.Dimension
	init, ok := InitialRange(raw, ds.CurrentTime, ds.OffsetTime)
	if !ok {
		m.loop.Logger().Debug("range init skipped", "layer", act.LayerID, "domain", raw)
		return
	}
	if !init.Current.Equal(ds.CurrentTime) {
		m.loop.Emit(model.SetCurrentTime{Time: init.Current})
	}
	if !init.Offset.Equal(ds.OffsetTime) {
		m.loop.Emit(model.SetOffsetTime{Time: init.Offset})
	}
	if !sameRange(init.Range, m.store.Timeline.Range) {
		m.loop.Emit(model.SetRange{Range: init.Range})
	}
}

// follow keeps the selection in view while playing.
func (m *RangeManager) follow() {
	s := m.store
	if s.Playback.Status != model.StatusPlay || !s.Playback.Settings.Following {
		return
	}
	if next, ok := Follow(s.Timeline.Range, s.Dimension.CurrentTime, s.Dimension.OffsetTime); ok {
		m.loop.Emit(model.SetRange{Range: next})
	}
}

func sameRange(a, b model.TimeRange) bool {
	return a.Start.Equal(b.Start) && a.End.Equal(b.End)
}
