package state

import (
	"github.com/g960059/maptime/internal/model"
)

func reduceTimeline(ts *model.TimelineState, a model.Action) {
	switch act := a.(type) {
	case model.SetRange:
		if act.Range.End.Before(act.Range.Start) {
			return
		}
		ts.Range = act.Range
	case model.SelectLayer:
		// Selecting the guide layer again deselects it.
		if act.LayerID == ts.SelectedLayer {
			ts.SelectedLayer = ""
			return
		}
		ts.SelectedLayer = act.LayerID
	case model.SetLoading:
		if act.Loading {
			ts.Loading[act.Key] = true
			return
		}
		delete(ts.Loading, act.Key)
	case model.SetRangeData:
		ts.RangeData[act.LayerID] = act.Data
	case model.UpdateTimelineSettings:
		ts.Settings = normalizeTimelineSettings(act.Settings)
	case model.CollapseTimeline:
		ts.Settings.Collapsed = true
	case model.ExpandTimeline:
		ts.Settings.Collapsed = false
	case model.RemoveLayer:
		delete(ts.RangeData, act.LayerID)
		delete(ts.Loading, act.LayerID)
	case model.ResetControls:
		ts.Range = model.TimeRange{}
		ts.RangeData = map[string]model.RangeData{}
		ts.Loading = map[string]bool{}
		ts.SelectedLayer = ""
	case model.MapLoaded:
		ts.Settings = normalizeTimelineSettings(act.Config.Timeline)
		ts.SelectedLayer = act.Config.SelectedLayer
	}
}

func normalizeTimelineSettings(s model.TimelineSettings) model.TimelineSettings {
	if s.SnapType != model.SnapEnd {
		s.SnapType = model.SnapStart
	}
	if s.ExpandLimit <= 0 {
		s.ExpandLimit = DefaultExpandLimit
	}
	return s
}

// DefaultExpandLimit is the number of values above which range data is
// shown as a histogram.
const DefaultExpandLimit = 20
