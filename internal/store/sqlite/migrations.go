package sqlite

import (
	"context"
	"fmt"
)

type migration struct {
	version int
	name    string
	up      []string
}

var migrations = []migration{
	{
		version: 1,
		name:    "initial_schema",
		up: []string{
			`CREATE TABLE IF NOT EXISTS sources (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				url TEXT UNIQUE NOT NULL,
				created_at TEXT NOT NULL,
				last_checked_at TEXT,
				last_status TEXT,
				last_error TEXT
			)`,
			`CREATE TABLE IF NOT EXISTS jobs (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				source_id INTEGER NOT NULL REFERENCES sources(id) ON DELETE CASCADE,
				job_key TEXT NOT NULL,
				title TEXT NOT NULL,
				company TEXT,
				location TEXT,
				url TEXT NOT NULL,
				first_seen_at TEXT NOT NULL,
				last_seen_at TEXT NOT NULL,
				is_new INTEGER NOT NULL DEFAULT 1,
				UNIQUE(source_id, job_key)
			)`,
			`CREATE TABLE IF NOT EXISTS job_runs (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				source_id INTEGER NOT NULL REFERENCES sources(id) ON DELETE CASCADE,
				ran_at TEXT NOT NULL,
				new_count INTEGER NOT NULL,
				total_count INTEGER NOT NULL,
				status TEXT NOT NULL,
				error TEXT
			)`,
			`CREATE INDEX IF NOT EXISTS idx_jobs_source_id ON jobs(source_id)`,
			`CREATE INDEX IF NOT EXISTS idx_jobs_is_new ON jobs(is_new)`,
		},
	},
	{
		version: 2,
		name:    "job_exclusions",
		up: []string{
			`CREATE TABLE IF NOT EXISTS job_exclusions (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				source_id INTEGER NOT NULL REFERENCES sources(id) ON DELETE CASCADE,
				job_key TEXT NOT NULL,
				job_url TEXT,
				created_at TEXT NOT NULL,
				UNIQUE(source_id, job_key)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_job_runs_source_id ON job_runs(source_id, ran_at)`,
		},
	},
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TEXT NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	for _, m := range migrations {
		if err := s.runMigration(ctx, m); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", m.version, m.name, err)
		}
	}
	return nil
}

func (s *Store) runMigration(ctx context.Context, m migration) error {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE version = ?", m.version).Scan(&count)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, query := range m.up {
		if _, err := tx.ExecContext(ctx, query); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)",
		m.version, m.name, formatTime(s.now())); err != nil {
		return err
	}
	s.logger.Debug().Int("version", m.version).Str("name", m.name).Msg("migration applied")
	return tx.Commit()
}
