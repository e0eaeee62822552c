package db

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

func openTempDB(t *testing.T) (*sql.DB, context.Context) {
	t.Helper()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=foreign_keys(1)")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db, ctx
}

func TestApplyAndRollbackMigrations(t *testing.T) {
	db, ctx := openTempDB(t)
	if err := ApplyMigrations(ctx, db); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	if err := ApplyMigrations(ctx, db); err != nil {
		t.Fatalf("re-apply migrations: %v", err)
	}

	var applied int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&applied); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if applied != len(migrations) {
		t.Fatalf("expected %d applied migrations, got %d", len(migrations), applied)
	}

	mustExist := []string{"maps", "map_layers", "layer_dimensions"}
	for _, table := range mustExist {
		var name string
		if err := db.QueryRowContext(ctx, `SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name); err != nil {
			t.Fatalf("expected table %s to exist: %v", table, err)
		}
	}

	if err := RollbackAll(ctx, db); err != nil {
		t.Fatalf("rollback migrations: %v", err)
	}

	for _, table := range mustExist {
		var count int
		if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&count); err != nil {
			t.Fatalf("count table %s: %v", table, err)
		}
		if count != 0 {
			t.Fatalf("table %s still exists after rollback", table)
		}
	}
}

func TestCoreConstraints(t *testing.T) {
	db, ctx := openTempDB(t)
	if err := ApplyMigrations(ctx, db); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	if _, err := db.ExecContext(ctx, `INSERT INTO maps(map_id, timeline_json, playback_json, updated_at) VALUES ('m1', '{}', '{}', '2026-01-01T00:00:00Z')`); err != nil {
		t.Fatalf("insert map: %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO map_layers(map_id, layer_id, position, name) VALUES ('missing', 'l1', 0, 'l1')`); err == nil {
		t.Fatalf("expected foreign key violation for unknown map")
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO map_layers(map_id, layer_id, position, name) VALUES ('m1', 'l1', 0, 'l1')`); err != nil {
		t.Fatalf("insert layer: %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO layer_dimensions(map_id, layer_id, name, source_type) VALUES ('m1', 'l1', 'time', 'wms')`); err == nil {
		t.Fatalf("expected check violation for unknown source type")
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO layer_dimensions(map_id, layer_id, name, source_type) VALUES ('m1', 'l1', 'time', 'static')`); err != nil {
		t.Fatalf("insert dimension: %v", err)
	}

	if _, err := db.ExecContext(ctx, `DELETE FROM maps WHERE map_id = 'm1'`); err != nil {
		t.Fatalf("delete map: %v", err)
	}
	var count int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM layer_dimensions`).Scan(&count); err != nil {
		t.Fatalf("count dimensions: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected cascade delete of dimensions, got %d rows", count)
	}
}
