package postgres

import (
	"context"
	"fmt"
)

// schema is applied in order on every start; each statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS sources (
		id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		url TEXT NOT NULL UNIQUE,
		created_at TIMESTAMPTZ NOT NULL,
		last_checked_at TIMESTAMPTZ,
		last_status TEXT,
		last_error TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS jobs (
		id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		source_id BIGINT NOT NULL REFERENCES sources(id) ON DELETE CASCADE,
		job_key TEXT NOT NULL,
		title TEXT NOT NULL,
		company TEXT,
		location TEXT,
		url TEXT NOT NULL,
		first_seen_at TIMESTAMPTZ NOT NULL,
		last_seen_at TIMESTAMPTZ NOT NULL,
		is_new BOOLEAN NOT NULL DEFAULT TRUE,
		UNIQUE (source_id, job_key)
	)`,
	`CREATE TABLE IF NOT EXISTS job_runs (
		id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		source_id BIGINT NOT NULL REFERENCES sources(id) ON DELETE CASCADE,
		ran_at TIMESTAMPTZ NOT NULL,
		new_count INTEGER NOT NULL,
		total_count INTEGER NOT NULL,
		status TEXT NOT NULL,
		error TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS job_exclusions (
		source_id BIGINT NOT NULL REFERENCES sources(id) ON DELETE CASCADE,
		job_key TEXT NOT NULL,
		job_url TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (source_id, job_key)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_source_id ON jobs(source_id)`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_is_new ON jobs(is_new)`,
	`CREATE INDEX IF NOT EXISTS idx_job_runs_source_id ON job_runs(source_id)`,
}

// Migrate creates the tables and indexes that do not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
