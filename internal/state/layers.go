package state

import (
	"github.com/g960059/maptime/internal/model"
)

func reduceLayers(ls *model.LayersState, a model.Action) {
	switch act := a.(type) {
	case model.AddLayer:
		for i, l := range ls.Layers {
			if l.ID == act.Layer.ID {
				ls.Layers[i] = act.Layer
				return
			}
		}
		ls.Layers = append(ls.Layers, act.Layer)
	case model.RemoveLayer:
		out := ls.Layers[:0]
		for _, l := range ls.Layers {
			if l.ID != act.LayerID {
				out = append(out, l)
			}
		}
		ls.Layers = out
	case model.ChangeLayerProperties:
		for i := range ls.Layers {
			if ls.Layers[i].ID != act.LayerID {
				continue
			}
			if act.Properties.Visible != nil {
				ls.Layers[i].Visible = *act.Properties.Visible
			}
			if act.Properties.SingleTile != nil {
				ls.Layers[i].SingleTile = *act.Properties.SingleTile
			}
		}
	case model.ViewportChanged:
		ls.Viewport = act.Viewport
	case model.MapLoaded:
		ls.Layers = append([]model.Layer(nil), act.Config.Layers...)
	}
}

func reduceWidgets(ws *model.WidgetsState, a model.Action) {
	switch act := a.(type) {
	case model.ReplaceWidgets:
		ws.Widgets = append([]model.Widget(nil), act.Widgets...)
	case model.ExpandWidget:
		setCollapsed(ws, act.ID, false)
	case model.CollapseWidget:
		setCollapsed(ws, act.ID, true)
	case model.ToggleCollapseAll:
		// Collapse every floating widget when any is open, otherwise open them all.
		collapse := anyExpanded(ws.Widgets)
		for i := range ws.Widgets {
			if !ws.Widgets[i].Pinned {
				ws.Widgets[i].Collapsed = collapse
			}
		}
	}
}

func setCollapsed(ws *model.WidgetsState, id string, collapsed bool) {
	for i := range ws.Widgets {
		if ws.Widgets[i].ID == id {
			ws.Widgets[i].Collapsed = collapsed
		}
	}
}

func anyExpanded(widgets []model.Widget) bool {
	for _, w := range widgets {
		if !w.Pinned && !w.Collapsed {
			return true
		}
	}
	return false
}
