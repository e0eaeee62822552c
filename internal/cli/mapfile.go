package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/g960059/maptime/internal/config"
	"github.com/g960059/maptime/internal/model"
)

// mapFile is the YAML form of a map accepted by "maps import".
// Timeline and playback settings default to the loaded config.
type mapFile struct {
	ID            string                 `yaml:"id"`
	SelectedLayer string                 `yaml:"selected_layer"`
	PlaybackRange string                 `yaml:"playback_range"`
	Timeline      model.TimelineSettings `yaml:"timeline"`
	Playback      model.PlaybackSettings `yaml:"playback"`
	Layers        []mapLayer             `yaml:"layers"`
}

// mapLayer is time-enabled when it has a Domain or Values. Values make
// it static; otherwise its domain is queried from URL, or from the
// configured service.
type mapLayer struct {
	ID         string   `yaml:"id"`
	Name       string   `yaml:"name"`
	Title      string   `yaml:"title"`
	Group      string   `yaml:"group"`
	Hidden     bool     `yaml:"hidden"`
	SingleTile bool     `yaml:"single_tile"`
	Domain     string   `yaml:"domain"`
	Values     []string `yaml:"values"`
	URL        string   `yaml:"url"`
	Version    string   `yaml:"version"`
}

func readMapFile(path string, cfg config.Config) (model.MapConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.MapConfig{}, fmt.Errorf("read map %s: %w", path, err)
	}
	mf := mapFile{ID: cfg.MapID, Timeline: cfg.Timeline, Playback: cfg.Playback}
	if err := yaml.Unmarshal(data, &mf); err != nil {
		return model.MapConfig{}, fmt.Errorf("parse map %s: %w", path, err)
	}
	out, err := mf.config(cfg.Service)
	if err != nil {
		return model.MapConfig{}, fmt.Errorf("map %s: %w", path, err)
	}
	return out, nil
}

func (mf mapFile) config(svc config.ServiceConfig) (model.MapConfig, error) {
	out := model.MapConfig{
		MapID:         mf.ID,
		SelectedLayer: mf.SelectedLayer,
		Timeline:      mf.Timeline,
		Playback:      mf.Playback,
		Dimensions:    map[string][]model.Dimension{},
	}
	if mf.PlaybackRange != "" {
		rg, err := parseRange(mf.PlaybackRange)
		if err != nil {
			return model.MapConfig{}, err
		}
		out.PlaybackRange = rg
	}
	for _, l := range mf.Layers {
		id := l.ID
		if id == "" {
			id = l.Name
		}
		out.Layers = append(out.Layers, model.Layer{
			ID:         id,
			Name:       l.Name,
			Title:      l.Title,
			Group:      l.Group,
			Visible:    !l.Hidden,
			SingleTile: l.SingleTile,
		})
		dim, ok, err := l.dimension(svc)
		if err != nil {
			return model.MapConfig{}, fmt.Errorf("layer %s: %w", id, err)
		}
		if ok {
			out.Dimensions[id] = []model.Dimension{dim}
		}
	}
	return out, nil
}

func (l mapLayer) dimension(svc config.ServiceConfig) (model.Dimension, bool, error) {
	switch {
	case len(l.Values) > 0:
		raw := l.Domain
		if raw == "" {
			raw = strings.Join(l.Values, ",")
		}
		return model.Dimension{
			Name:   model.TimeDimension,
			Domain: raw,
			Source: model.StaticSource{Values: l.Values},
		}, true, nil
	case l.Domain != "":
		url, version := l.URL, l.Version
		if url == "" {
			url = svc.URL
		}
		if version == "" {
			version = svc.Version
		}
		if url == "" {
			return model.Dimension{}, false, errors.New("domain without values needs a service url")
		}
		return model.Dimension{
			Name:   model.TimeDimension,
			Domain: l.Domain,
			Source: model.MultidimSource{URL: url, Version: version},
		}, true, nil
	default:
		return model.Dimension{}, false, nil
	}
}
