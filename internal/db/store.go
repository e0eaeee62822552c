package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/g960059/maptime/internal/model"
)

var (
	ErrNotFound = errors.New("not found")
	ErrInvalid  = errors.New("invalid map config")
)

type Store struct {
	db *sql.DB
}

func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := os.Chmod(path, 0o600); err != nil && !errors.Is(err, os.ErrNotExist) {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("chmod db path: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) DB() *sql.DB {
	return s.db
}

// SaveMapConfig replaces the stored configuration of cfg.MapID.
func (s *Store) SaveMapConfig(ctx context.Context, cfg model.MapConfig) error {
	if err := validateMapConfig(cfg); err != nil {
		return err
	}
	if cfg.UpdatedAt.IsZero() {
		cfg.UpdatedAt = time.Now().UTC()
	}
	timelineJSON, playbackJSON, err := encodeSettings(cfg.Timeline, cfg.Playback)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save map: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	start, end := rangeColumns(cfg.PlaybackRange)
	if _, err := tx.ExecContext(ctx, `
INSERT INTO maps(map_id, selected_layer, timeline_json, playback_json, range_start, range_end, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(map_id) DO UPDATE SET
	selected_layer=excluded.selected_layer,
	timeline_json=excluded.timeline_json,
	playback_json=excluded.playback_json,
	range_start=excluded.range_start,
	range_end=excluded.range_end,
	updated_at=excluded.updated_at
`, cfg.MapID, cfg.SelectedLayer, timelineJSON, playbackJSON, start, end, ts(cfg.UpdatedAt)); err != nil {
		return fmt.Errorf("upsert map %s: %w", cfg.MapID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM map_layers WHERE map_id = ?`, cfg.MapID); err != nil {
		return fmt.Errorf("clear layers of %s: %w", cfg.MapID, err)
	}
	for i, layer := range cfg.Layers {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO map_layers(map_id, layer_id, position, name, title, group_id, visible, single_tile)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`, cfg.MapID, layer.ID, i, layer.Name, layer.Title, layer.Group, boolInt(layer.Visible), boolInt(layer.SingleTile)); err != nil {
			return fmt.Errorf("insert layer %s: %w", layer.ID, err)
		}
	}
	layerIDs := make([]string, 0, len(cfg.Dimensions))
	for id := range cfg.Dimensions {
		layerIDs = append(layerIDs, id)
	}
	sort.Strings(layerIDs)
	for _, layerID := range layerIDs {
		for _, dim := range cfg.Dimensions[layerID] {
			sourceType, url, version, values, err := encodeSource(dim.Source)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `
INSERT INTO layer_dimensions(map_id, layer_id, name, domain, source_type, source_url, source_version, static_values_json)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`, cfg.MapID, layerID, dim.Name, dim.Domain, sourceType, url, version, values); err != nil {
				return fmt.Errorf("insert dimension %s/%s: %w", layerID, dim.Name, err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save map: %w", err)
	}
	return nil
}

// MapSettings is the mutable part of a map saved while the user works.
type MapSettings struct {
	Timeline      model.TimelineSettings
	Playback      model.PlaybackSettings
	SelectedLayer string
	PlaybackRange model.TimeRange
}

// SaveMapSettings updates settings of an existing map without touching
// its layers.
func (s *Store) SaveMapSettings(ctx context.Context, mapID string, settings MapSettings) error {
	timelineJSON, playbackJSON, err := encodeSettings(settings.Timeline, settings.Playback)
	if err != nil {
		return err
	}
	start, end := rangeColumns(settings.PlaybackRange)
	res, err := s.db.ExecContext(ctx, `
UPDATE maps SET selected_layer = ?, timeline_json = ?, playback_json = ?, range_start = ?, range_end = ?, updated_at = ?
WHERE map_id = ?
`, settings.SelectedLayer, timelineJSON, playbackJSON, start, end, ts(time.Now().UTC()), mapID)
	if err != nil {
		return fmt.Errorf("update map settings %s: %w", mapID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update map settings rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) LoadMapConfig(ctx context.Context, mapID string) (model.MapConfig, error) {
	cfg := model.MapConfig{MapID: mapID}
	var timelineJSON, playbackJSON, updatedAt string
	var start, end sql.NullString
	err := s.db.QueryRowContext(ctx, `
SELECT selected_layer, timeline_json, playback_json, range_start, range_end, updated_at
FROM maps WHERE map_id = ?
`, mapID).Scan(&cfg.SelectedLayer, &timelineJSON, &playbackJSON, &start, &end, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.MapConfig{}, ErrNotFound
	}
	if err != nil {
		return model.MapConfig{}, fmt.Errorf("load map %s: %w", mapID, err)
	}
	if err := json.Unmarshal([]byte(timelineJSON), &cfg.Timeline); err != nil {
		return model.MapConfig{}, fmt.Errorf("decode timeline settings: %w", err)
	}
	if err := json.Unmarshal([]byte(playbackJSON), &cfg.Playback); err != nil {
		return model.MapConfig{}, fmt.Errorf("decode playback settings: %w", err)
	}
	if cfg.PlaybackRange, err = parseRange(start, end); err != nil {
		return model.MapConfig{}, err
	}
	if cfg.UpdatedAt, err = parseTS(updatedAt); err != nil {
		return model.MapConfig{}, fmt.Errorf("parse updated_at: %w", err)
	}

	if cfg.Layers, err = s.loadLayers(ctx, mapID); err != nil {
		return model.MapConfig{}, err
	}
	if cfg.Dimensions, err = s.loadDimensions(ctx, mapID); err != nil {
		return model.MapConfig{}, err
	}
	return cfg, nil
}

func (s *Store) loadLayers(ctx context.Context, mapID string) ([]model.Layer, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT layer_id, name, title, group_id, visible, single_tile
FROM map_layers WHERE map_id = ? ORDER BY position ASC
`, mapID)
	if err != nil {
		return nil, fmt.Errorf("list layers: %w", err)
	}
	defer rows.Close() //nolint:errcheck
	var out []model.Layer
	for rows.Next() {
		var layer model.Layer
		var visible, singleTile int
		if err := rows.Scan(&layer.ID, &layer.Name, &layer.Title, &layer.Group, &visible, &singleTile); err != nil {
			return nil, fmt.Errorf("scan layer: %w", err)
		}
		layer.Visible = visible != 0
		layer.SingleTile = singleTile != 0
		out = append(out, layer)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate layers: %w", err)
	}
	return out, nil
}

func (s *Store) loadDimensions(ctx context.Context, mapID string) (map[string][]model.Dimension, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT layer_id, name, domain, source_type, source_url, source_version, static_values_json
FROM layer_dimensions WHERE map_id = ? ORDER BY layer_id ASC, name ASC
`, mapID)
	if err != nil {
		return nil, fmt.Errorf("list dimensions: %w", err)
	}
	defer rows.Close() //nolint:errcheck
	out := map[string][]model.Dimension{}
	for rows.Next() {
		var layerID, sourceType, url, version, values string
		var dim model.Dimension
		if err := rows.Scan(&layerID, &dim.Name, &dim.Domain, &sourceType, &url, &version, &values); err != nil {
			return nil, fmt.Errorf("scan dimension: %w", err)
		}
		if dim.Source, err = decodeSource(sourceType, url, version, values); err != nil {
			return nil, err
		}
		out[layerID] = append(out[layerID], dim)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dimensions: %w", err)
	}
	return out, nil
}

// ListMaps returns map ids, most recently updated first.
func (s *Store) ListMaps(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT map_id FROM maps ORDER BY updated_at DESC, map_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list maps: %w", err)
	}
	defer rows.Close() //nolint:errcheck
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan map id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *Store) DeleteMap(ctx context.Context, mapID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM maps WHERE map_id = ?`, mapID)
	if err != nil {
		return fmt.Errorf("delete map %s: %w", mapID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func validateMapConfig(cfg model.MapConfig) error {
	if strings.TrimSpace(cfg.MapID) == "" {
		return fmt.Errorf("%w: map id is required", ErrInvalid)
	}
	seen := make(map[string]struct{}, len(cfg.Layers))
	for _, layer := range cfg.Layers {
		if strings.TrimSpace(layer.ID) == "" {
			return fmt.Errorf("%w: layer id is required", ErrInvalid)
		}
		if _, dup := seen[layer.ID]; dup {
			return fmt.Errorf("%w: duplicate layer %s", ErrInvalid, layer.ID)
		}
		seen[layer.ID] = struct{}{}
	}
	for layerID := range cfg.Dimensions {
		if _, ok := seen[layerID]; !ok {
			return fmt.Errorf("%w: dimensions for unknown layer %s", ErrInvalid, layerID)
		}
	}
	if cfg.SelectedLayer != "" {
		if _, ok := seen[cfg.SelectedLayer]; !ok {
			return fmt.Errorf("%w: selected layer %s is not on the map", ErrInvalid, cfg.SelectedLayer)
		}
	}
	return nil
}

func encodeSettings(timeline model.TimelineSettings, playback model.PlaybackSettings) (string, string, error) {
	t, err := json.Marshal(timeline)
	if err != nil {
		return "", "", fmt.Errorf("encode timeline settings: %w", err)
	}
	p, err := json.Marshal(playback)
	if err != nil {
		return "", "", fmt.Errorf("encode playback settings: %w", err)
	}
	return string(t), string(p), nil
}

func encodeSource(src model.Source) (sourceType, url, version, values string, err error) {
	values = "[]"
	switch v := src.(type) {
	case nil:
		return "", "", "", values, nil
	case model.MultidimSource:
		return v.SourceType(), v.URL, v.Version, values, nil
	case model.StaticSource:
		b, err := json.Marshal(v.Values)
		if err != nil {
			return "", "", "", "", fmt.Errorf("encode static values: %w", err)
		}
		return v.SourceType(), "", "", string(b), nil
	default:
		return "", "", "", "", fmt.Errorf("%w: unsupported source type %s", ErrInvalid, src.SourceType())
	}
}

func decodeSource(sourceType, url, version, values string) (model.Source, error) {
	switch sourceType {
	case "":
		return nil, nil
	case model.MultidimSource{}.SourceType():
		return model.MultidimSource{URL: url, Version: version}, nil
	case model.StaticSource{}.SourceType():
		var out []string
		if err := json.Unmarshal([]byte(values), &out); err != nil {
			return nil, fmt.Errorf("decode static values: %w", err)
		}
		return model.StaticSource{Values: out}, nil
	default:
		return nil, fmt.Errorf("unknown source type %q", sourceType)
	}
}

func rangeColumns(r model.TimeRange) (any, any) {
	if r.IsZero() {
		return nil, nil
	}
	return ts(r.Start), ts(r.End)
}

func parseRange(start, end sql.NullString) (model.TimeRange, error) {
	if !start.Valid || !end.Valid {
		return model.TimeRange{}, nil
	}
	s, err := parseTS(start.String)
	if err != nil {
		return model.TimeRange{}, fmt.Errorf("parse range start: %w", err)
	}
	e, err := parseTS(end.String)
	if err != nil {
		return model.TimeRange{}, fmt.Errorf("parse range end: %w", err)
	}
	return model.TimeRange{Start: s, End: e}, nil
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTS(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
