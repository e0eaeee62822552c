package state

import (
	"strings"
	"time"

	"github.com/g960059/maptime/internal/domain"
	"github.com/g960059/maptime/internal/model"
)

func FindLayer(ls model.LayersState, id string) (model.Layer, bool) {
	for _, l := range ls.Layers {
		if l.ID == id {
			return l, true
		}
	}
	return model.Layer{}, false
}

// TimeDimension returns the time dimension descriptor of layerID.
func TimeDimension(ds model.DimensionState, layerID string) (model.Dimension, bool) {
	d, ok := ds.Data[model.TimeDimension][layerID]
	return d, ok
}

// TimeLayers returns the map layers exposing a time dimension, in map order.
func TimeLayers(ls model.LayersState, ds model.DimensionState) []model.Layer {
	var out []model.Layer
	for _, l := range ls.Layers {
		if _, ok := TimeDimension(ds, l.ID); ok {
			out = append(out, l)
		}
	}
	return out
}

// EligibleLayers are the layers that may guide the timeline.
func EligibleLayers(ls model.LayersState, ds model.DimensionState, settings model.TimelineSettings) []model.Layer {
	var out []model.Layer
	for _, l := range TimeLayers(ls, ds) {
		if l.Visible || settings.ShowHiddenLayers {
			out = append(out, l)
		}
	}
	return out
}

func IsEligible(ls model.LayersState, ds model.DimensionState, settings model.TimelineSettings, layerID string) bool {
	for _, l := range EligibleLayers(ls, ds, settings) {
		if l.ID == layerID {
			return true
		}
	}
	return false
}

// ResolveLayer maps a layer id or a group id to a time-enabled layer.
// A group resolves to its first time-enabled member.
func ResolveLayer(ls model.LayersState, ds model.DimensionState, id string) (string, bool) {
	if id == "" {
		return "", false
	}
	if _, ok := TimeDimension(ds, id); ok {
		return id, true
	}
	for _, l := range TimeLayers(ls, ds) {
		if l.Group == id {
			return l.ID, true
		}
	}
	return "", false
}

// TimelineVisible reports whether the timeline is shown: it is not
// collapsed and there is at least one time layer to display.
func TimelineVisible(ts model.TimelineState, ls model.LayersState, ds model.DimensionState) bool {
	return !ts.Settings.Collapsed && len(TimeLayers(ls, ds)) > 0
}

// CurrentFrameTime is the time of the current frame while animating.
func CurrentFrameTime(ps model.PlaybackState) (time.Time, bool) {
	if ps.CurrentFrame < 0 || ps.CurrentFrame >= len(ps.Frames) {
		return time.Time{}, false
	}
	return ps.Frames[ps.CurrentFrame], true
}

// LastFrame is the pagination cursor of the next prefetch.
func LastFrame(ps model.PlaybackState) (time.Time, bool) {
	if len(ps.Frames) == 0 {
		return time.Time{}, false
	}
	return ps.Frames[len(ps.Frames)-1], true
}

// HasNext reports whether a step forward from the current time is
// possible according to the neighbour cache.
func HasNext(ps model.PlaybackState, ds model.DimensionState) bool {
	return metadataFresh(ps, ds) && !ps.Metadata.Next.IsZero()
}

func HasPrevious(ps model.PlaybackState, ds model.DimensionState) bool {
	return metadataFresh(ps, ds) && !ps.Metadata.Previous.IsZero()
}

func metadataFresh(ps model.PlaybackState, ds model.DimensionState) bool {
	return !ps.Metadata.ForTime.IsZero() && ps.Metadata.ForTime.Equal(ds.CurrentTime)
}

// Animating is true while a buffer is being played or paused.
func Animating(ps model.PlaybackState) bool {
	return ps.Status == model.StatusPlay || ps.Status == model.StatusPause
}

// SnapFilter returns the playback range as a time filter for snapping
// and neighbour queries. It only applies while animating.
func SnapFilter(ps model.PlaybackState) string {
	if ps.PlaybackRange.IsZero() || !Animating(ps) {
		return ""
	}
	return domain.FormatInterval(ps.PlaybackRange)
}

// FromEnd reports whether pagination should compare interval ends.
func FromEnd(settings model.TimelineSettings) bool {
	return settings.EndValuesSupport && settings.SnapType == model.SnapEnd
}

// SpatialFilter is the viewport sent with domain queries when the
// timeline is synced with the map.
func SpatialFilter(ts model.TimelineState, ls model.LayersState) *model.Viewport {
	if !ts.Settings.MapSync || ls.Viewport.IsZero() {
		return nil
	}
	vp := ls.Viewport
	return &vp
}

// DomainQuery builds the remote query for the time dimension of layerID.
// It returns false when the layer has no remote source.
func DomainQuery(s *Store, layerID string, opts domain.Options) (domain.Query, bool) {
	dim, ok := TimeDimension(s.Dimension, layerID)
	if !ok {
		return domain.Query{}, false
	}
	src, ok := dim.Source.(model.MultidimSource)
	if !ok || src.URL == "" {
		return domain.Query{}, false
	}
	name := layerID
	if l, ok := FindLayer(s.Layers, layerID); ok && l.Name != "" {
		name = l.Name
	}
	return domain.Query{
		Source:    src,
		Layer:     name,
		Dimension: dim.Name,
		Options:   opts,
		Spatial:   SpatialFilter(s.Timeline, s.Layers),
	}, true
}

// StaticValues returns the in-memory values of layerID when its time
// dimension has no remote source. A domain string listing discrete
// values counts as static; a "start--end" extent does not.
func StaticValues(ds model.DimensionState, layerID string) ([]string, bool) {
	dim, ok := TimeDimension(ds, layerID)
	if !ok {
		return nil, false
	}
	switch src := dim.Source.(type) {
	case model.StaticSource:
		return src.Values, true
	case model.MultidimSource:
		if src.URL != "" {
			return nil, false
		}
	}
	if dim.Domain == "" || strings.Contains(dim.Domain, "--") {
		return nil, false
	}
	return domain.SplitValues(dim.Domain), true
}
