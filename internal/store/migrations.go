package store

import (
	"database/sql"
	"fmt"
	"log"
	"time"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "Analysis runs and spots",
		SQL: `
CREATE TABLE IF NOT EXISTS analysis_runs (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT,
    latitude REAL NOT NULL,
    longitude REAL NOT NULL,
    started_at DATETIME NOT NULL,
    finished_at DATETIME,
    success BOOLEAN NOT NULL DEFAULT FALSE,
    failed_stage TEXT,
    error_message TEXT,
    width INTEGER,
    height INTEGER,
    min_lon REAL,
    min_lat REAL,
    max_lon REAL,
    max_lat REAL,
    shadow_intensity REAL,
    max_score REAL,
    critical_pixels INTEGER,
    high_pixels INTEGER,
    medium_pixels INTEGER,
    low_pixels INTEGER,
    excluded_pixels INTEGER,
    plantable_pct REAL
);

CREATE INDEX IF NOT EXISTS idx_runs_started ON analysis_runs(started_at);
CREATE INDEX IF NOT EXISTS idx_runs_name ON analysis_runs(name);

CREATE TABLE IF NOT EXISTS priority_spots (
    run_id TEXT NOT NULL REFERENCES analysis_runs(id) ON DELETE CASCADE,
    spot_id INTEGER NOT NULL,
    latitude REAL NOT NULL,
    longitude REAL NOT NULL,
    priority_score REAL NOT NULL,
    area_m2 REAL NOT NULL,
    area_pixels INTEGER NOT NULL,
    pixel_x REAL,
    pixel_y REAL,
    preview_url TEXT,
    PRIMARY KEY (run_id, spot_id)
);
`,
	},
	{
		Version:     2,
		Description: "Vision enrichment results",
		SQL: `
CREATE TABLE IF NOT EXISTS vision_results (
    run_id TEXT NOT NULL,
    spot_id INTEGER NOT NULL,
    spot_number INTEGER NOT NULL,
    analyzed_at DATETIME NOT NULL,
    image_available BOOLEAN NOT NULL,
    cached BOOLEAN NOT NULL DEFAULT FALSE,
    tree_count INTEGER,
    record_json TEXT,
    error_message TEXT,
    imagery_ms INTEGER,
    vision_ms INTEGER,
    PRIMARY KEY (run_id, spot_id)
);
`,
	},
	{
		Version:     3,
		Description: "Compressed score surfaces",
		SQL: `
CREATE TABLE IF NOT EXISTS surfaces (
    run_id TEXT NOT NULL,
    name TEXT NOT NULL,
    width INTEGER NOT NULL,
    height INTEGER NOT NULL,
    payload_compressed BLOB NOT NULL,
    payload_hash TEXT NOT NULL,
    created_at DATETIME NOT NULL,
    PRIMARY KEY (run_id, name)
);
`,
	},
}

func (s *Store) Migrate() error {
	if err := s.ensureMigrationsTable(); err != nil {
		return fmt.Errorf("ensure migrations table: %w", err)
	}

	applied, err := s.getAppliedMigrations()
	if err != nil {
		return fmt.Errorf("get applied migrations: %w", err)
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}

		log.Printf("migrations: applying %d - %s", m.Version, m.Description)

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx for migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("execute migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)",
			m.Version, m.Description, time.Now().UTC(),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}

		log.Printf("migrations: completed %d", m.Version)
	}

	return nil
}

func (s *Store) ensureMigrationsTable() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT,
			applied_at DATETIME
		)
	`)
	return err
}

func (s *Store) getAppliedMigrations() (map[int]bool, error) {
	rows, err := s.db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func (s *Store) MigrationVersion() (int, error) {
	var version sql.NullInt64
	err := s.db.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, err
	}
	if !version.Valid {
		return 0, nil
	}
	return int(version.Int64), nil
}
