// Package sqlite is the default file-backed store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jimezsa/jobwatch/internal/models"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

const (
	timeLayout      = "2006-01-02T15:04:05.000000000Z07:00"
	busyTimeoutMS   = 5000
	defaultRunLimit = 50
)

// Store keeps sources, jobs, runs and exclusions in one SQLite file. The
// pool holds a single connection so writes are serialized.
type Store struct {
	db     *sql.DB
	path   string
	logger zerolog.Logger
	now    func() time.Time
}

// Open creates the database file and its directory when missing and
// applies pending migrations.
func Open(ctx context.Context, path string, logger zerolog.Logger) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{
		db:     db,
		path:   path,
		logger: logger.With().Str("component", "sqlite").Logger(),
		now:    time.Now,
	}
	if err := s.configure(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure database: %w", err)
	}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	s.logger.Debug().Str("path", path).Msg("database ready")
	return s, nil
}

func (s *Store) configure(ctx context.Context) error {
	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeoutMS),
		"PRAGMA foreign_keys = ON",
		"PRAGMA synchronous = NORMAL",
	}
	if s.path != ":memory:" {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}
	for _, pragma := range pragmas {
		if _, err := s.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("%s: %w", pragma, err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Path is the database file the store was opened on.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateSource inserts url unless it is already tracked. The bool reports
// whether a row was created.
func (s *Store) CreateSource(ctx context.Context, url string, at time.Time) (models.Source, bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sources (url, created_at) VALUES (?, ?) ON CONFLICT(url) DO NOTHING`,
		url, formatTime(at))
	if err != nil {
		return models.Source{}, false, fmt.Errorf("insert source: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return models.Source{}, false, fmt.Errorf("insert source: %w", err)
	}

	src, err := scanSource(s.db.QueryRowContext(ctx, sourceSelect+` WHERE url = ?`, url))
	if err != nil {
		return models.Source{}, false, err
	}
	return src, affected == 1, nil
}

func (s *Store) GetSource(ctx context.Context, id int64) (models.Source, error) {
	return scanSource(s.db.QueryRowContext(ctx, sourceSelect+` WHERE id = ?`, id))
}

// ListSources returns sources newest first.
func (s *Store) ListSources(ctx context.Context) ([]models.Source, error) {
	rows, err := s.db.QueryContext(ctx, sourceSelect+` ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	sources := []models.Source{}
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

// DeleteSource removes a source and everything recorded for it.
func (s *Store) DeleteSource(ctx context.Context, id int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, query := range []string{
			`DELETE FROM job_exclusions WHERE source_id = ?`,
			`DELETE FROM jobs WHERE source_id = ?`,
			`DELETE FROM job_runs WHERE source_id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, query, id); err != nil {
				return fmt.Errorf("delete source %d: %w", id, err)
			}
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM sources WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete source %d: %w", id, err)
		}
		return requireRow(res, "source", id)
	})
}

// ApplyObservation prunes, upserts the observed jobs, records the run and
// marks the source ok, all in one transaction.
func (s *Store) ApplyObservation(ctx context.Context, obs models.Observation) (models.ObservationResult, error) {
	var result models.ObservationResult
	at := formatTime(obs.At)

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		result = models.ObservationResult{}

		if obs.Keep != nil {
			pruned, err := pruneJobs(ctx, tx, obs)
			if err != nil {
				return err
			}
			result.Pruned = pruned
		}

		for _, job := range obs.Jobs {
			var excluded int
			err := tx.QueryRowContext(ctx,
				`SELECT COUNT(*) FROM job_exclusions WHERE source_id = ? AND job_key = ?`,
				obs.SourceID, job.Key).Scan(&excluded)
			if err != nil {
				return fmt.Errorf("check exclusion: %w", err)
			}
			if excluded > 0 {
				result.Excluded++
				continue
			}

			c := job.Candidate
			res, err := tx.ExecContext(ctx, `
				INSERT INTO jobs (source_id, job_key, title, company, location, url, first_seen_at, last_seen_at, is_new)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1)
				ON CONFLICT(source_id, job_key) DO NOTHING`,
				obs.SourceID, job.Key, c.Title, nullString(c.Company), nullString(c.Location), c.URL, at, at)
			if err != nil {
				return fmt.Errorf("insert job: %w", err)
			}
			inserted, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("insert job: %w", err)
			}
			if inserted == 1 {
				result.Inserted++
				continue
			}

			if _, err := tx.ExecContext(ctx,
				`UPDATE jobs SET last_seen_at = ? WHERE source_id = ? AND job_key = ?`,
				at, obs.SourceID, job.Key); err != nil {
				return fmt.Errorf("touch job: %w", err)
			}
			result.Touched++
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE sources SET last_checked_at = ?, last_status = ?, last_error = NULL WHERE id = ?`,
			at, string(models.StatusOK), obs.SourceID)
		if err != nil {
			return fmt.Errorf("update source: %w", err)
		}
		if err := requireRow(res, "source", obs.SourceID); err != nil {
			return err
		}

		return insertRun(ctx, tx, models.JobRun{
			SourceID:   obs.SourceID,
			RanAt:      obs.At,
			NewCount:   result.Inserted,
			TotalCount: obs.Total,
			Status:     models.StatusOK,
		})
	})
	if err != nil {
		return models.ObservationResult{}, err
	}
	return result, nil
}

func pruneJobs(ctx context.Context, tx *sql.Tx, obs models.Observation) (int, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id, url FROM jobs WHERE source_id = ?`, obs.SourceID)
	if err != nil {
		return 0, fmt.Errorf("select jobs to prune: %w", err)
	}
	var stale []int64
	for rows.Next() {
		var id int64
		var url string
		if err := rows.Scan(&id, &url); err != nil {
			rows.Close()
			return 0, err
		}
		if !obs.Keep.MatchString(url) {
			stale = append(stale, id)
		}
	}
	if err := rows.Close(); err != nil {
		return 0, err
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, id := range stale {
		if _, err := tx.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id); err != nil {
			return 0, fmt.Errorf("prune job %d: %w", id, err)
		}
	}
	return len(stale), nil
}

// RecordFailure marks the source failed and appends an error run.
func (s *Store) RecordFailure(ctx context.Context, sourceID int64, at time.Time, message string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE sources SET last_checked_at = ?, last_status = ?, last_error = ? WHERE id = ?`,
			formatTime(at), string(models.StatusError), message, sourceID)
		if err != nil {
			return fmt.Errorf("update source: %w", err)
		}
		if err := requireRow(res, "source", sourceID); err != nil {
			return err
		}
		return insertRun(ctx, tx, models.JobRun{
			SourceID: sourceID,
			RanAt:    at,
			Status:   models.StatusError,
			Error:    message,
		})
	})
}

func insertRun(ctx context.Context, tx *sql.Tx, run models.JobRun) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO job_runs (source_id, ran_at, new_count, total_count, status, error) VALUES (?, ?, ?, ?, ?, ?)`,
		run.SourceID, formatTime(run.RanAt), run.NewCount, run.TotalCount, string(run.Status), nullString(run.Error))
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// MarkSeen clears is_new for every job of the source.
func (s *Store) MarkSeen(ctx context.Context, sourceID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE jobs SET is_new = 0 WHERE source_id = ? AND is_new = 1`, sourceID)
	if err != nil {
		return 0, fmt.Errorf("mark seen: %w", err)
	}
	return res.RowsAffected()
}

// ExcludeJob deletes the job and writes its tombstone.
func (s *Store) ExcludeJob(ctx context.Context, jobID int64, at time.Time) (models.JobExclusion, error) {
	var exclusion models.JobExclusion
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `SELECT source_id, job_key, url FROM jobs WHERE id = ?`, jobID).
			Scan(&exclusion.SourceID, &exclusion.JobKey, &exclusion.JobURL)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("job %d: %w", jobID, models.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("load job %d: %w", jobID, err)
		}
		exclusion.CreatedAt = at.UTC()

		if _, err := tx.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, jobID); err != nil {
			return fmt.Errorf("delete job %d: %w", jobID, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO job_exclusions (source_id, job_key, job_url, created_at) VALUES (?, ?, ?, ?)
			ON CONFLICT(source_id, job_key) DO NOTHING`,
			exclusion.SourceID, exclusion.JobKey, exclusion.JobURL, formatTime(at))
		if err != nil {
			return fmt.Errorf("insert exclusion: %w", err)
		}
		return nil
	})
	if err != nil {
		return models.JobExclusion{}, err
	}
	return exclusion, nil
}

// ListJobs returns jobs newest first.
func (s *Store) ListJobs(ctx context.Context, filter models.JobFilter) ([]models.Job, error) {
	query := `SELECT id, source_id, job_key, title, company, location, url, first_seen_at, last_seen_at, is_new FROM jobs WHERE 1 = 1`
	var args []any
	if filter.SourceID > 0 {
		query += ` AND source_id = ?`
		args = append(args, filter.SourceID)
	}
	if filter.NewOnly {
		query += ` AND is_new = 1`
	}
	query += ` ORDER BY first_seen_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	jobs := []models.Job{}
	for rows.Next() {
		var (
			job                 models.Job
			company, location   sql.NullString
			firstSeen, lastSeen string
			isNew               int
		)
		if err := rows.Scan(&job.ID, &job.SourceID, &job.JobKey, &job.Title, &company, &location, &job.URL, &firstSeen, &lastSeen, &isNew); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		job.Company = company.String
		job.Location = location.String
		job.IsNew = isNew == 1
		if job.FirstSeenAt, err = parseTime(firstSeen); err != nil {
			return nil, err
		}
		if job.LastSeenAt, err = parseTime(lastSeen); err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// ListRuns returns the latest runs of a source, newest first.
func (s *Store) ListRuns(ctx context.Context, sourceID int64, limit int) ([]models.JobRun, error) {
	if limit <= 0 {
		limit = defaultRunLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_id, ran_at, new_count, total_count, status, error
		FROM job_runs WHERE source_id = ? ORDER BY ran_at DESC, id DESC LIMIT ?`, sourceID, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := []models.JobRun{}
	for rows.Next() {
		var (
			run     models.JobRun
			ranAt   string
			status  string
			message sql.NullString
		)
		if err := rows.Scan(&run.ID, &run.SourceID, &ranAt, &run.NewCount, &run.TotalCount, &status, &message); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if run.RanAt, err = parseTime(ranAt); err != nil {
			return nil, err
		}
		run.Status = models.SourceStatus(status)
		run.Error = message.String
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

const sourceSelect = `SELECT id, url, created_at, last_checked_at, COALESCE(last_status, 'pending'), last_error FROM sources`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSource(row rowScanner) (models.Source, error) {
	var (
		src         models.Source
		createdAt   string
		lastChecked sql.NullString
		status      string
		lastError   sql.NullString
	)
	err := row.Scan(&src.ID, &src.URL, &createdAt, &lastChecked, &status, &lastError)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Source{}, fmt.Errorf("source: %w", models.ErrNotFound)
	}
	if err != nil {
		return models.Source{}, fmt.Errorf("scan source: %w", err)
	}
	if src.CreatedAt, err = parseTime(createdAt); err != nil {
		return models.Source{}, err
	}
	if lastChecked.Valid {
		checked, err := parseTime(lastChecked.String)
		if err != nil {
			return models.Source{}, err
		}
		src.LastCheckedAt = &checked
	}
	src.LastStatus = models.SourceStatus(status)
	src.LastError = lastError.String
	return src, nil
}

func requireRow(res sql.Result, kind string, id int64) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%s %d: %w", kind, id, models.ErrNotFound)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", value, err)
	}
	return t, nil
}

func nullString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
