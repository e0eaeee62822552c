package db

import (
	"context"
	"database/sql"
	"fmt"
)

type Migration struct {
	Version int
	UpSQL   string
	DownSQL string
}

var migrations = []Migration{
	{
		Version: 1,
		UpSQL: `
PRAGMA foreign_keys = ON;

CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY,
	applied_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS maps (
	map_id TEXT PRIMARY KEY,
	selected_layer TEXT NOT NULL DEFAULT '',
	timeline_json TEXT NOT NULL,
	playback_json TEXT NOT NULL,
	range_start TEXT,
	range_end TEXT,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS map_layers (
	map_id TEXT NOT NULL,
	layer_id TEXT NOT NULL,
	position INTEGER NOT NULL,
	name TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	group_id TEXT NOT NULL DEFAULT '',
	visible INTEGER NOT NULL DEFAULT 1,
	single_tile INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY(map_id, layer_id),
	FOREIGN KEY(map_id) REFERENCES maps(map_id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS layer_dimensions (
	map_id TEXT NOT NULL,
	layer_id TEXT NOT NULL,
	name TEXT NOT NULL,
	domain TEXT NOT NULL DEFAULT '',
	source_type TEXT NOT NULL CHECK(source_type IN ('', 'multidim-extension', 'static')),
	source_url TEXT NOT NULL DEFAULT '',
	source_version TEXT NOT NULL DEFAULT '',
	static_values_json TEXT NOT NULL DEFAULT '[]',
	PRIMARY KEY(map_id, layer_id, name),
	FOREIGN KEY(map_id, layer_id) REFERENCES map_layers(map_id, layer_id) ON DELETE CASCADE
);
`,
		DownSQL: `
DROP TABLE IF EXISTS layer_dimensions;
DROP TABLE IF EXISTS map_layers;
DROP TABLE IF EXISTS maps;
DROP TABLE IF EXISTS schema_migrations;
`,
	},
	{
		Version: 2,
		UpSQL: `
CREATE INDEX IF NOT EXISTS idx_map_layers_position ON map_layers(map_id, position);
CREATE INDEX IF NOT EXISTS idx_maps_updated_at ON maps(updated_at DESC);
`,
		DownSQL: `
DROP INDEX IF EXISTS idx_maps_updated_at;
DROP INDEX IF EXISTS idx_map_layers_position;
`,
	},
}

func ApplyMigrations(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations(version INTEGER PRIMARY KEY, applied_at TEXT NOT NULL)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	for _, m := range migrations {
		var exists int
		err := db.QueryRowContext(ctx, `SELECT 1 FROM schema_migrations WHERE version = ?`, m.Version).Scan(&exists)
		if err == nil {
			continue
		}
		if err != sql.ErrNoRows {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx for migration %d: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx, m.UpSQL); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("apply migration %d: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version, applied_at) VALUES (?, datetime('now'))`, m.Version); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}
	return nil
}

// RollbackAll reverts every migration, newest first.
func RollbackAll(ctx context.Context, db *sql.DB) error {
	for i := len(migrations) - 1; i >= 0; i-- {
		m := migrations[i]
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin rollback tx %d: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx, m.DownSQL); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("rollback migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit rollback %d: %w", m.Version, err)
		}
	}
	return nil
}
