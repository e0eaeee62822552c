package timeline

import (
	"context"

	"github.com/g960059/maptime/internal/dispatch"
	"github.com/g960059/maptime/internal/model"
	"github.com/g960059/maptime/internal/snap"
	"github.com/g960059/maptime/internal/state"
)

// GuideSync keeps the selected guide layer eligible. With autoSelect a
// lost guide is replaced by the first eligible layer and the current
// time is snapped to it.
type GuideSync struct {
	loop    *dispatch.Loop
	store   *state.Store
	snapper *snap.Snapper
	resnap  *dispatch.Exhaust
}

func NewGuideSync(loop *dispatch.Loop, store *state.Store, snapper *snap.Snapper) *GuideSync {
	return &GuideSync{
		loop:    loop,
		store:   store,
		snapper: snapper,
		resnap:  dispatch.NewExhaust("guide-resnap"),
	}
}

func (g *GuideSync) Handle(a model.Action) {
	switch act := a.(type) {
	case model.RemoveLayer:
		// The reducer keeps the id until a new guide is chosen.
		if act.LayerID == g.store.Timeline.SelectedLayer && state.Animating(g.store.Playback) {
			g.loop.Emit(model.Stop{})
		}
		g.sync()
	case model.AddLayer, model.ChangeLayerProperties, model.UpdateDimensionData, model.UpdateTimelineSettings:
		g.sync()
	case model.MapLoaded:
		if !g.sync() {
			g.initRange(g.store.Timeline.SelectedLayer)
		}
	case model.SelectLayer:
		if act.LayerID != "" && act.LayerID == g.store.Timeline.SelectedLayer {
			g.initRange(act.LayerID)
		}
	case model.ResetControls:
		g.resnap.Cancel()
	}
}

// sync reports whether a selection change was emitted.
func (g *GuideSync) sync() bool {
	s := g.store
	selected := s.Timeline.SelectedLayer
	if selected != "" && state.IsEligible(s.Layers, s.Dimension, s.Timeline.Settings, selected) {
		return false
	}
	if !s.Timeline.Settings.AutoSelect {
		if selected != "" {
			g.loop.Emit(model.SelectLayer{LayerID: ""})
			return true
		}
		return false
	}
	eligible := state.EligibleLayers(s.Layers, s.Dimension, s.Timeline.Settings)
	if len(eligible) == 0 {
		if selected != "" {
			g.loop.Emit(model.SelectLayer{LayerID: ""})
			return true
		}
		return false
	}
	next := eligible[0].ID
	g.loop.Logger().Debug("guide layer auto selected", "layer", next, "previous", selected)
	g.loop.Emit(model.SelectLayer{LayerID: next})
	g.resnapTo(next)
	return true
}

// initRange aligns the selection to a new guide when none exists yet.
func (g *GuideSync) initRange(layerID string) {
	if layerID == "" {
		return
	}
	if g.store.Dimension.CurrentTime.IsZero() || g.store.Timeline.Range.IsZero() {
		g.loop.Emit(model.InitRange{LayerID: layerID})
	}
}

// resnapTo snaps the current time to layerID. Further triggers are
// ignored while a snap is in flight.
func (g *GuideSync) resnapTo(layerID string) {
	current := g.store.Dimension.CurrentTime
	if current.IsZero() || state.Animating(g.store.Playback) {
		return
	}
	req, ok := snap.NewRequest(g.store, layerID)
	if !ok {
		return
	}
	g.resnap.Start(g.loop, func(ctx context.Context) func() {
		snapped := g.snapper.Snap(ctx, req, current)
		return func() {
			if g.store.Timeline.SelectedLayer != layerID || snapped.Equal(g.store.Dimension.CurrentTime) {
				return
			}
			g.loop.Emit(model.SetCurrentTime{Time: snapped})
		}
	})
}
