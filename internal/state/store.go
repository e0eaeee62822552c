// Package state holds the owned state slices of the engine and the
// reducers that apply actions to them. Every slice is changed only by
// its own reducer; selectors are pure functions over slices.
package state

import (
	"maps"
	"slices"

	"github.com/g960059/maptime/internal/model"
)

type Store struct {
	Playback  model.PlaybackState
	Timeline  model.TimelineState
	Dimension model.DimensionState
	Layers    model.LayersState
	Widgets   model.WidgetsState
}

func New(playback model.PlaybackSettings, timeline model.TimelineSettings) *Store {
	return &Store{
		Playback: model.PlaybackState{
			Status:       model.StatusStop,
			CurrentFrame: -1,
			Settings:     normalizePlaybackSettings(playback),
		},
		Timeline: model.TimelineState{
			RangeData: map[string]model.RangeData{},
			Loading:   map[string]bool{},
			Settings:  normalizeTimelineSettings(timeline),
		},
		Dimension: model.DimensionState{
			Data: map[string]map[string]model.Dimension{},
		},
	}
}

// Reduce applies a to every slice in a fixed order.
func (s *Store) Reduce(a model.Action) {
	reducePlayback(&s.Playback, a)
	reduceTimeline(&s.Timeline, a)
	reduceDimension(&s.Dimension, a)
	reduceLayers(&s.Layers, a)
	reduceWidgets(&s.Widgets, a)
}

// Clone returns a deep copy safe to hand to other goroutines.
func (s *Store) Clone() Store {
	out := *s
	out.Playback.Frames = slices.Clone(s.Playback.Frames)
	out.Timeline.RangeData = make(map[string]model.RangeData, len(s.Timeline.RangeData))
	for id, rd := range s.Timeline.RangeData {
		rd.Domain = slices.Clone(rd.Domain)
		if rd.Histogram != nil {
			h := *rd.Histogram
			h.Values = slices.Clone(h.Values)
			rd.Histogram = &h
		}
		out.Timeline.RangeData[id] = rd
	}
	out.Timeline.Loading = maps.Clone(s.Timeline.Loading)
	out.Dimension.Data = make(map[string]map[string]model.Dimension, len(s.Dimension.Data))
	for name, byLayer := range s.Dimension.Data {
		out.Dimension.Data[name] = maps.Clone(byLayer)
	}
	out.Layers.Layers = slices.Clone(s.Layers.Layers)
	out.Widgets.Widgets = slices.Clone(s.Widgets.Widgets)
	return out
}
