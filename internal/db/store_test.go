package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/g960059/maptime/internal/model"
)

func newTestStore(t *testing.T) (*Store, context.Context) {
	t.Helper()
	ctx := context.Background()
	store, err := Open(ctx, filepath.Join(t.TempDir(), "nested", "maps.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	if err := ApplyMigrations(ctx, store.DB()); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return store, ctx
}

func sampleConfig() model.MapConfig {
	start := time.Date(2016, 9, 1, 0, 0, 0, 0, time.UTC)
	return model.MapConfig{
		MapID: "ocean",
		Layers: []model.Layer{
			{ID: "sst", Name: "gs:sst", Title: "Sea surface temperature", Visible: true},
			{ID: "winds", Name: "gs:winds", Group: "meteo", Visible: false, SingleTile: true},
		},
		Dimensions: map[string][]model.Dimension{
			"sst": {{
				Name:   model.TimeDimension,
				Domain: "2016-09-01T00:00:00Z--2017-04-11T00:00:00Z",
				Source: model.MultidimSource{URL: "http://localhost:8080/wmts", Version: "1.1.0"},
			}},
			"winds": {{
				Name:   model.TimeDimension,
				Source: model.StaticSource{Values: []string{"2016-09-01T00:00:00Z/2016-09-01T06:00:00Z"}},
			}},
		},
		Timeline:      model.TimelineSettings{AutoSelect: true, SnapType: model.SnapEnd, EndValuesSupport: true, ExpandLimit: 20},
		SelectedLayer: "sst",
		Playback:      model.PlaybackSettings{TimeStep: 2, StepUnit: model.UnitHours, FrameDuration: 3 * time.Second, Following: true},
		PlaybackRange: model.TimeRange{Start: start, End: start.AddDate(0, 1, 0)},
	}
}

func TestSaveAndLoadMapConfig(t *testing.T) {
	store, ctx := newTestStore(t)
	cfg := sampleConfig()
	if err := store.SaveMapConfig(ctx, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.LoadMapConfig(ctx, "ocean")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got.Layers) != 2 || got.Layers[0] != cfg.Layers[0] || got.Layers[1] != cfg.Layers[1] {
		t.Fatalf("unexpected layers: %+v", got.Layers)
	}
	if got.Timeline != cfg.Timeline || got.Playback != cfg.Playback || got.SelectedLayer != "sst" {
		t.Fatalf("unexpected settings: %+v", got)
	}
	if !got.PlaybackRange.Start.Equal(cfg.PlaybackRange.Start) || !got.PlaybackRange.End.Equal(cfg.PlaybackRange.End) {
		t.Fatalf("unexpected playback range: %+v", got.PlaybackRange)
	}
	src, ok := got.Dimensions["sst"][0].Source.(model.MultidimSource)
	if !ok || src.URL != "http://localhost:8080/wmts" || src.Version != "1.1.0" {
		t.Fatalf("unexpected sst source: %+v", got.Dimensions["sst"])
	}
	if got.Dimensions["sst"][0].Domain != cfg.Dimensions["sst"][0].Domain {
		t.Fatalf("unexpected domain: %+v", got.Dimensions["sst"][0])
	}
	static, ok := got.Dimensions["winds"][0].Source.(model.StaticSource)
	if !ok || len(static.Values) != 1 {
		t.Fatalf("unexpected winds source: %+v", got.Dimensions["winds"])
	}
	if got.UpdatedAt.IsZero() {
		t.Fatalf("expected updated_at to be set")
	}
}

func TestSaveMapConfigReplacesLayers(t *testing.T) {
	store, ctx := newTestStore(t)
	cfg := sampleConfig()
	if err := store.SaveMapConfig(ctx, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}
	cfg.Layers = cfg.Layers[:1]
	delete(cfg.Dimensions, "winds")
	cfg.PlaybackRange = model.TimeRange{}
	if err := store.SaveMapConfig(ctx, cfg); err != nil {
		t.Fatalf("save again: %v", err)
	}
	got, err := store.LoadMapConfig(ctx, "ocean")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got.Layers) != 1 || len(got.Dimensions["winds"]) != 0 {
		t.Fatalf("expected winds layer to be gone: %+v", got)
	}
	if !got.PlaybackRange.IsZero() {
		t.Fatalf("expected range to be cleared, got %+v", got.PlaybackRange)
	}
}

func TestSaveMapConfigValidates(t *testing.T) {
	store, ctx := newTestStore(t)
	cases := []func(*model.MapConfig){
		func(c *model.MapConfig) { c.MapID = " " },
		func(c *model.MapConfig) { c.Layers = append(c.Layers, c.Layers[0]) },
		func(c *model.MapConfig) { c.Dimensions["ghost"] = []model.Dimension{{Name: "time"}} },
		func(c *model.MapConfig) { c.SelectedLayer = "ghost" },
	}
	for i, mutate := range cases {
		cfg := sampleConfig()
		mutate(&cfg)
		if err := store.SaveMapConfig(ctx, cfg); !errors.Is(err, ErrInvalid) {
			t.Fatalf("case %d: expected ErrInvalid, got %v", i, err)
		}
	}
}

func TestSaveMapSettings(t *testing.T) {
	store, ctx := newTestStore(t)
	if err := store.SaveMapSettings(ctx, "ocean", MapSettings{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown map, got %v", err)
	}
	if err := store.SaveMapConfig(ctx, sampleConfig()); err != nil {
		t.Fatalf("save: %v", err)
	}
	settings := MapSettings{
		Timeline:      model.TimelineSettings{Collapsed: true, SnapType: model.SnapStart, MapSync: true, ExpandLimit: 5},
		Playback:      model.PlaybackSettings{TimeStep: 1, StepUnit: model.UnitDays, FrameDuration: time.Second},
		SelectedLayer: "winds",
	}
	if err := store.SaveMapSettings(ctx, "ocean", settings); err != nil {
		t.Fatalf("save settings: %v", err)
	}
	got, err := store.LoadMapConfig(ctx, "ocean")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Timeline != settings.Timeline || got.Playback != settings.Playback || got.SelectedLayer != "winds" {
		t.Fatalf("unexpected settings after update: %+v", got)
	}
	if len(got.Layers) != 2 {
		t.Fatalf("settings update must keep layers, got %+v", got.Layers)
	}
}

func TestListAndDeleteMaps(t *testing.T) {
	store, ctx := newTestStore(t)
	first := sampleConfig()
	first.UpdatedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	second := sampleConfig()
	second.MapID = "land"
	second.UpdatedAt = first.UpdatedAt.Add(time.Hour)
	for _, cfg := range []model.MapConfig{first, second} {
		if err := store.SaveMapConfig(ctx, cfg); err != nil {
			t.Fatalf("save %s: %v", cfg.MapID, err)
		}
	}
	ids, err := store.ListMaps(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ids) != 2 || ids[0] != "land" || ids[1] != "ocean" {
		t.Fatalf("unexpected order: %v", ids)
	}
	if err := store.DeleteMap(ctx, "land"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.DeleteMap(ctx, "land"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
	if _, err := store.LoadMapConfig(ctx, "land"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}
