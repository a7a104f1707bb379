package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/reverie-app/reverie/internal/config"
	_ "modernc.org/sqlite"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 1

// Init initializes the SQLite database at baseDir/reverie.db.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.reverie.
func Init(baseDir string) (*sql.DB, error) {
	// Create base directory with restricted permissions
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	// Explicit chmod (best-effort, may not work on all platforms)
	_ = os.Chmod(baseDir, 0700)

	// Create audio subdirectory for referenced capture files
	audioDir := filepath.Join(baseDir, "audio")
	if err := os.MkdirAll(audioDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create audio directory: %w", err)
	}
	_ = os.Chmod(audioDir, 0700)

	// Open database with pragmas in connection string (applies to all connections)
	dbPath := filepath.Join(baseDir, "reverie.db")
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Verify WAL mode is active
	if err := verifyWALMode(db); err != nil {
		db.Close()
		return nil, err
	}

	// Run migrations (this creates the file if it doesn't exist)
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	// Set file permissions after file exists (best-effort)
	_ = os.Chmod(dbPath, 0600)

	return db, nil
}

// ConfigurePool applies connection pool settings from config.
// Only sets limits if explicitly configured (non-zero values).
// Call after Init if you need to tune pool behavior for contention.
func ConfigurePool(db *sql.DB, cfg *config.Config) {
	if cfg == nil {
		return
	}
	if cfg.DBMaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	}
	if cfg.DBMaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	}
}

// migrate applies schema migrations based on user_version.
func migrate(db *sql.DB) error {
	version, err := GetUserVersion(db)
	if err != nil {
		return err
	}

	// Migration 0 -> 1: Initial schema (v1)
	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS turns (
		  id                     TEXT PRIMARY KEY,
		  source                 TEXT NOT NULL,
		  context                TEXT NOT NULL,
		  state                  TEXT NOT NULL,
		  title                  TEXT NOT NULL DEFAULT '',
		  recorded_at            INTEGER NOT NULL,
		  ended_at               INTEGER,
		  duration_secs          INTEGER NOT NULL DEFAULT 0,
		  audio_path             TEXT,
		  audio_bytes            INTEGER NOT NULL DEFAULT 0,
		  transcript_raw         TEXT,
		  transcript_redacted    TEXT NOT NULL DEFAULT '',
		  redaction_version      INTEGER NOT NULL DEFAULT 0,
		  redaction_at           INTEGER,
		  redaction_input_hash   INTEGER,
		  transcription_provider TEXT,
		  transcription_locale   TEXT,
		  reflect_provider       TEXT,
		  prompt_version         TEXT,
		  toolchain_version      TEXT,
		  capsule_snapshot_hash  TEXT,
		  processing_started_at  INTEGER,
		  processing_finished_at INTEGER,
		  err_domain             TEXT,
		  err_code               TEXT,
		  err_user_key           TEXT,
		  err_debug              TEXT,
		  created_at             INTEGER NOT NULL,
		  updated_at             INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_turns_recorded
		ON turns(recorded_at DESC);

		CREATE INDEX IF NOT EXISTS idx_turns_state
		ON turns(state, recorded_at DESC);

		CREATE TABLE IF NOT EXISTS redaction_records (
		  id            INTEGER PRIMARY KEY AUTOINCREMENT,
		  turn_id       TEXT NOT NULL,
		  version       INTEGER NOT NULL,
		  applied_at    INTEGER NOT NULL,
		  input_hash    INTEGER NOT NULL,
		  redacted_text TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_redactions_turn
		ON redaction_records(turn_id, version);

		CREATE TABLE IF NOT EXISTS pattern_stats (
		  kind           TEXT NOT NULL,
		  key            TEXT NOT NULL,
		  score          REAL NOT NULL,
		  count          INTEGER NOT NULL,
		  first_seen_at  INTEGER NOT NULL,
		  last_seen_at   INTEGER NOT NULL,
		  half_life_days REAL NOT NULL,
		  PRIMARY KEY (kind, key)
		);

		CREATE TABLE IF NOT EXISTS capsule (
		  id                 TEXT PRIMARY KEY CHECK (id = 'singleton'),
		  version            INTEGER NOT NULL,
		  learning_enabled   INTEGER NOT NULL,
		  updated_at         INTEGER NOT NULL,
		  output_style       TEXT NOT NULL DEFAULT '',
		  no_therapy_framing INTEGER NOT NULL DEFAULT 0,
		  extras_json        TEXT
		);
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if err := SetUserVersion(db, 1); err != nil {
			return err
		}
	}

	// Future migrations go here:
	// if version < 2 { ... }

	return nil
}

// verifyWALMode checks that WAL mode is active (set via connection string).
func verifyWALMode(db *sql.DB) error {
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to verify journal mode: %w", err)
	}
	if journalMode != "wal" {
		return fmt.Errorf("expected WAL mode, got %s", journalMode)
	}
	return nil
}

// GetUserVersion returns the current schema version (user_version pragma).
func GetUserVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get user_version: %w", err)
	}
	return version, nil
}

// SetUserVersion sets the schema version (user_version pragma).
func SetUserVersion(db *sql.DB, version int) error {
	_, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", version))
	if err != nil {
		return fmt.Errorf("failed to set user_version: %w", err)
	}
	return nil
}

// AudioDir returns the audio subdirectory under baseDir.
func AudioDir(baseDir string) string {
	return filepath.Join(baseDir, "audio")
}
