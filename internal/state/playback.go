package state

import (
	"slices"

	"github.com/g960059/maptime/internal/model"
)

// statusTransitions lists the status changes each command causes. A
// missing entry leaves the status unchanged. PLAY from STOP is absent:
// the status only becomes PLAY once a non-empty buffer is applied.
var statusTransitions = map[model.PlaybackStatus]map[model.ActionType]model.PlaybackStatus{
	model.StatusStop: {},
	model.StatusPlay: {
		model.ActionPause: model.StatusPause,
		model.ActionStop:  model.StatusStop,
	},
	model.StatusPause: {
		model.ActionPlay: model.StatusPlay,
		model.ActionStop: model.StatusStop,
	},
}

func nextStatus(current model.PlaybackStatus, action model.ActionType) model.PlaybackStatus {
	if next, ok := statusTransitions[current][action]; ok {
		return next
	}
	return current
}

func reducePlayback(ps *model.PlaybackState, a model.Action) {
	switch act := a.(type) {
	case model.Play, model.Pause:
		ps.Status = nextStatus(ps.Status, a.Type())
	case model.Stop, model.ResetControls:
		ps.Status = model.StatusStop
		ps.CurrentFrame = -1
		ps.Frames = nil
		if _, reset := a.(model.ResetControls); reset {
			ps.PlaybackRange = model.TimeRange{}
			ps.Metadata = model.PlaybackMetadata{}
		}
	case model.SetFrames:
		if len(act.Frames) == 0 {
			ps.Frames = nil
			ps.CurrentFrame = -1
			return
		}
		ps.Frames = slices.Clone(act.Frames)
		ps.CurrentFrame = 0
		ps.Status = model.StatusPlay
	case model.AppendFrames:
		if ps.Status == model.StatusStop || len(ps.Frames) == 0 {
			return
		}
		last := ps.Frames[len(ps.Frames)-1]
		for _, f := range act.Frames {
			if f.After(last) {
				ps.Frames = append(ps.Frames, f)
				last = f
			}
		}
	case model.SetCurrentFrame:
		if ps.Status == model.StatusStop || act.Frame < 0 || act.Frame >= len(ps.Frames) {
			return
		}
		ps.CurrentFrame = act.Frame
	case model.SetPlaybackRange:
		if !act.Range.IsZero() && act.Range.End.Before(act.Range.Start) {
			return
		}
		ps.PlaybackRange = act.Range
	case model.UpdatePlaybackSettings:
		ps.Settings = normalizePlaybackSettings(act.Settings)
	case model.UpdateMetadata:
		ps.Metadata = act.Metadata
	case model.MapLoaded:
		ps.Settings = normalizePlaybackSettings(act.Config.Playback)
		ps.PlaybackRange = act.Config.PlaybackRange
	}
}

func normalizePlaybackSettings(s model.PlaybackSettings) model.PlaybackSettings {
	s.StepUnit = model.NormalizeStepUnit(s.StepUnit)
	return s
}
