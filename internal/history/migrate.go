package history

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
)

// schemaVersion is the version RunMigrations brings a database to.
const schemaVersion = 2

type migration struct {
	version int
	name    string
	stmts   []string
}

var migrations = []migration{
	{
		version: 1,
		name:    "chain_runs",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS chain_runs (
				id               TEXT PRIMARY KEY,
				input            TEXT NOT NULL,
				steps            TEXT NOT NULL,
				results          TEXT NOT NULL,
				transport_failed INTEGER NOT NULL DEFAULT 0,
				duration_ms      INTEGER NOT NULL DEFAULT 0,
				created_at       INTEGER NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_chain_runs_time ON chain_runs(created_at)`,
		},
	},
	{
		version: 2,
		name:    "step summary columns",
		stmts: []string{
			`ALTER TABLE chain_runs ADD COLUMN step_count INTEGER NOT NULL DEFAULT 0`,
			`ALTER TABLE chain_runs ADD COLUMN failed_step INTEGER NOT NULL DEFAULT -1`,
		},
	},
}

const createVersionTable = `CREATE TABLE IF NOT EXISTS schema_version (
	version     INTEGER PRIMARY KEY,
	description TEXT,
	applied_at  DATETIME DEFAULT CURRENT_TIMESTAMP
)`

// RunMigrations brings db up to schemaVersion. Each migration runs in its own
// transaction. A migration that fails because part of it is already present
// (an earlier interrupted upgrade) is replayed statement by statement,
// skipping what exists.
func RunMigrations(db *sql.DB, logger *slog.Logger) error {
	if _, err := db.Exec(createVersionTable); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}
	current, err := GetSchemaVersion(db)
	if err != nil {
		return fmt.Errorf("query schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		err := applyTx(db, m)
		if err != nil && alreadyApplied(err) {
			logger.Warn("migration partially present, replaying leniently", "version", m.version, "err", err)
			err = applyLenient(db, m, logger)
		}
		if err != nil {
			return err
		}
		logger.Info("schema migrated", "version", m.version, "name", m.name)
	}
	return nil
}

func applyTx(db *sql.DB, m migration) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin migration v%d: %w", m.version, err)
	}
	defer tx.Rollback()

	for _, stmt := range m.stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("migration v%d: %w", m.version, err)
		}
	}
	if err := recordVersion(tx, m); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration v%d: %w", m.version, err)
	}
	return nil
}

func applyLenient(db *sql.DB, m migration, logger *slog.Logger) error {
	for _, stmt := range m.stmts {
		if _, err := db.Exec(stmt); err != nil {
			if alreadyApplied(err) {
				logger.Debug("migration statement already applied", "version", m.version, "stmt", firstLine(stmt))
				continue
			}
			return fmt.Errorf("migration v%d: %w (%s)", m.version, err, firstLine(stmt))
		}
	}
	return recordVersion(db, m)
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func recordVersion(db execer, m migration) error {
	_, err := db.Exec(`INSERT OR REPLACE INTO schema_version (version, description) VALUES (?, ?)`, m.version, m.name)
	if err != nil {
		return fmt.Errorf("record migration v%d: %w", m.version, err)
	}
	return nil
}

func alreadyApplied(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate column") || strings.Contains(msg, "already exists")
}

func firstLine(stmt string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(stmt), "\n")
	return line
}

// GetSchemaVersion returns the highest applied migration, or 0 for a database
// that has never been migrated.
func GetSchemaVersion(db *sql.DB) (int, error) {
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'schema_version'`).Scan(&n); err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	var version int
	err := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&version)
	return version, err
}
