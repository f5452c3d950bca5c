package sqlite

import (
	"database/sql"
	"fmt"
)

const schemaVersion = 2

func runMigrations(db *sql.DB) error {
	version, err := currentVersion(db)
	if err != nil {
		return err
	}
	if version < 1 {
		if err := migrateV1(db); err != nil {
			return fmt.Errorf("migrate v1: %w", err)
		}
	}
	if version < 2 {
		if err := migrateV2(db); err != nil {
			return fmt.Errorf("migrate v2: %w", err)
		}
	}
	return nil
}

func currentVersion(db *sql.DB) (int, error) {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)`); err != nil {
		return 0, err
	}
	var version int
	err := db.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return version, nil
}

func setVersion(db *sql.DB, version int) error {
	if _, err := db.Exec(`DELETE FROM schema_version`); err != nil {
		return err
	}
	_, err := db.Exec(`INSERT INTO schema_version (version) VALUES (?)`, version)
	return err
}

func migrateV1(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meetings (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			started_at TEXT NOT NULL,
			ended_at TEXT,
			audio_path TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS transcript_segments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			meeting_id TEXT NOT NULL,
			start_time REAL NOT NULL,
			end_time REAL NOT NULL,
			text TEXT NOT NULL,
			speaker TEXT,
			created_at TEXT NOT NULL,
			FOREIGN KEY (meeting_id) REFERENCES meetings(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transcript_meeting
			ON transcript_segments(meeting_id)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return setVersion(db, 1)
}

func migrateV2(db *sql.DB) error {
	stmts := []string{
		`ALTER TABLE transcript_segments ADD COLUMN source_type TEXT`,
		`ALTER TABLE transcript_segments ADD COLUMN source_id INTEGER`,
		`CREATE TABLE IF NOT EXISTS audio_segments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			meeting_id TEXT NOT NULL,
			segment_index INTEGER NOT NULL,
			mic_path TEXT NOT NULL,
			system_path TEXT,
			start_offset_ms INTEGER NOT NULL DEFAULT 0,
			duration_ms INTEGER,
			display_order INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			FOREIGN KEY (meeting_id) REFERENCES meetings(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audio_segments_meeting
			ON audio_segments(meeting_id)`,
		`CREATE TABLE IF NOT EXISTS uploaded_audio (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			meeting_id TEXT NOT NULL,
			file_path TEXT NOT NULL,
			original_filename TEXT NOT NULL,
			duration_ms INTEGER,
			speaker_label TEXT NOT NULL,
			transcription_status TEXT NOT NULL DEFAULT 'pending',
			display_order INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			FOREIGN KEY (meeting_id) REFERENCES meetings(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_uploaded_audio_meeting
			ON uploaded_audio(meeting_id)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return setVersion(db, 2)
}
