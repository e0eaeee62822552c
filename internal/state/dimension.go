package state

import (
	"github.com/g960059/maptime/internal/model"
)

func reduceDimension(ds *model.DimensionState, a model.Action) {
	switch act := a.(type) {
	case model.SetCurrentTime:
		if act.Time.IsZero() {
			return
		}
		if !ds.OffsetTime.IsZero() && !act.Time.Before(ds.OffsetTime) {
			return
		}
		ds.CurrentTime = act.Time
	case model.MoveTime:
		if act.Time.IsZero() {
			return
		}
		if !ds.OffsetTime.IsZero() && !ds.CurrentTime.IsZero() {
			ds.OffsetTime = ds.OffsetTime.Add(act.Time.Sub(ds.CurrentTime))
		}
		ds.CurrentTime = act.Time
	case model.SetOffsetTime:
		if act.Time.IsZero() {
			ds.OffsetTime = act.Time
			return
		}
		if ds.CurrentTime.IsZero() || !act.Time.After(ds.CurrentTime) {
			return
		}
		ds.OffsetTime = act.Time
	case model.UpdateDimensionData:
		setDimension(ds, act.LayerID, act.Data)
	case model.AddLayer:
		for _, d := range act.Dimensions {
			setDimension(ds, act.Layer.ID, d)
		}
	case model.RemoveLayer:
		for name, byLayer := range ds.Data {
			delete(byLayer, act.LayerID)
			if len(byLayer) == 0 {
				delete(ds.Data, name)
			}
		}
	case model.MapLoaded:
		ds.Data = map[string]map[string]model.Dimension{}
		for layerID, dims := range act.Config.Dimensions {
			for _, d := range dims {
				setDimension(ds, layerID, d)
			}
		}
	}
}

func setDimension(ds *model.DimensionState, layerID string, d model.Dimension) {
	if layerID == "" || d.Name == "" {
		return
	}
	byLayer, ok := ds.Data[d.Name]
	if !ok {
		byLayer = map[string]model.Dimension{}
		ds.Data[d.Name] = byLayer
	}
	byLayer[layerID] = d
}
