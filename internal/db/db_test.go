package db

import (
	"path/filepath"
	"testing"
)

func TestNewDBBootstrapsSchema(t *testing.T) {
	d, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer d.Close()

	for _, table := range []string{"tracker_runs", "pose_estimates"} {
		var name string
		err := d.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		if err != nil {
			t.Fatalf("table %s missing: %v", table, err)
		}
	}
}

func TestMigrateUpDown(t *testing.T) {
	const migrationsDir = "../../migrations"

	d, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer d.Close()

	if err := d.MigrateUp(migrationsDir); err != nil {
		t.Fatalf("migrate up: %v", err)
	}
	version, dirty, err := d.MigrateVersion(migrationsDir)
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if dirty || version == 0 {
		t.Fatalf("unexpected migration state: version=%d dirty=%v", version, dirty)
	}

	// Migrated telemetry table is usable.
	var name string
	if err := d.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name='step_telemetry'`).Scan(&name); err != nil {
		t.Fatalf("step_telemetry missing after migrate up: %v", err)
	}

	// Up again is a no-op.
	if err := d.MigrateUp(migrationsDir); err != nil {
		t.Fatalf("repeat migrate up: %v", err)
	}

	if err := d.MigrateDown(migrationsDir); err != nil {
		t.Fatalf("migrate down: %v", err)
	}
	if err := d.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name='step_telemetry'`).Scan(&name); err == nil {
		t.Fatal("step_telemetry still present after migrate down")
	}
}

func TestNewDBInMemory(t *testing.T) {
	d, err := NewDB(":memory:")
	if err != nil {
		t.Fatalf("open in-memory: %v", err)
	}
	defer d.Close()

	if _, err := d.Exec(`INSERT INTO tracker_runs (
		run_id, tracker_id, backend, transition, bodies,
		evaluation_count, max_sample_count, update_rate, max_kl_divergence, started_nanos
	) VALUES ('run_x', 'trk_x', 'default', 'object', 1, 100, 1000, 1.0, 1.0, 0)`); err != nil {
		t.Fatalf("insert: %v", err)
	}

	var count int
	if err := d.QueryRow(`SELECT COUNT(*) FROM tracker_runs`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 run, got %d", count)
	}
}
