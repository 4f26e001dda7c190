// Package postgres stores sources and jobs in a shared Postgres database.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jimezsa/jobwatch/internal/models"
	"github.com/rs/zerolog"
)

const defaultRunLimit = 50

// Config controls the connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// pool is the subset of *pgxpool.Pool the store uses.
type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// querier is implemented by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	pool   pool
	logger zerolog.Logger
}

// NewStore connects to cfg.DSN and applies the schema.
func NewStore(ctx context.Context, cfg Config, logger zerolog.Logger) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = max(cfg.MaxConns, minConns)
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	s := &Store{pool: p, logger: logger.With().Str("component", "postgres").Logger()}
	if err := s.Migrate(ctx); err != nil {
		p.Close()
		return nil, err
	}
	s.logger.Debug().Str("host", poolCfg.ConnConfig.Host).Msg("database ready")
	return s, nil
}

// NewStoreWithPool wraps an existing pool without touching the schema.
func NewStoreWithPool(p pool, logger zerolog.Logger) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: p, logger: logger}, nil
}

func (s *Store) Close() error {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// CreateSource inserts url unless it is already tracked. The bool reports
// whether a row was created.
func (s *Store) CreateSource(ctx context.Context, url string, at time.Time) (models.Source, bool, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO sources (url, created_at) VALUES ($1, $2) ON CONFLICT (url) DO NOTHING`,
		url, at.UTC())
	if err != nil {
		return models.Source{}, false, fmt.Errorf("insert source: %w", err)
	}
	src, err := scanSource(s.pool.QueryRow(ctx, sourceSelect+` WHERE url = $1`, url))
	if err != nil {
		return models.Source{}, false, err
	}
	return src, tag.RowsAffected() == 1, nil
}

func (s *Store) GetSource(ctx context.Context, id int64) (models.Source, error) {
	return scanSource(s.pool.QueryRow(ctx, sourceSelect+` WHERE id = $1`, id))
}

// ListSources returns sources newest first.
func (s *Store) ListSources(ctx context.Context) ([]models.Source, error) {
	rows, err := s.pool.Query(ctx, sourceSelect+` ORDER BY created_at DESC, id DESC`)
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

// DeleteSource removes a source; jobs, runs and exclusions cascade.
func (s *Store) DeleteSource(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sources WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete source %d: %w", id, err)
	}
	return requireRow(tag, "source", id)
}

// ApplyObservation prunes, upserts the observed jobs, records the run and
// marks the source ok, all in one transaction.
func (s *Store) ApplyObservation(ctx context.Context, obs models.Observation) (models.ObservationResult, error) {
	var result models.ObservationResult
	at := obs.At.UTC()

	err := s.withTx(ctx, func(tx pgx.Tx) error {
		if obs.Keep != nil {
			pruned, err := pruneJobs(ctx, tx, obs)
			if err != nil {
				return err
			}
			result.Pruned = pruned
		}

		for _, job := range obs.Jobs {
			var excluded bool
			err := tx.QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM job_exclusions WHERE source_id = $1 AND job_key = $2)`,
				obs.SourceID, job.Key).Scan(&excluded)
			if err != nil {
				return fmt.Errorf("check exclusion: %w", err)
			}
			if excluded {
				result.Excluded++
				continue
			}

			c := job.Candidate
			var inserted bool
			err = tx.QueryRow(ctx, `
				INSERT INTO jobs (source_id, job_key, title, company, location, url, first_seen_at, last_seen_at, is_new)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $7, TRUE)
				ON CONFLICT (source_id, job_key) DO UPDATE SET last_seen_at = EXCLUDED.last_seen_at
				RETURNING (xmax = 0)`,
				obs.SourceID, job.Key, c.Title, nullString(c.Company), nullString(c.Location), c.URL, at).Scan(&inserted)
			if err != nil {
				return fmt.Errorf("upsert job: %w", err)
			}
			if inserted {
				result.Inserted++
			} else {
				result.Touched++
			}
		}

		tag, err := tx.Exec(ctx,
			`UPDATE sources SET last_checked_at = $1, last_status = $2, last_error = NULL WHERE id = $3`,
			at, string(models.StatusOK), obs.SourceID)
		if err != nil {
			return fmt.Errorf("update source: %w", err)
		}
		if err := requireRow(tag, "source", obs.SourceID); err != nil {
			return err
		}

		return insertRun(ctx, tx, models.JobRun{
			SourceID:   obs.SourceID,
			RanAt:      at,
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

func pruneJobs(ctx context.Context, q querier, obs models.Observation) (int, error) {
	rows, err := q.Query(ctx, `SELECT id, url FROM jobs WHERE source_id = $1`, obs.SourceID)
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
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if len(stale) == 0 {
		return 0, nil
	}

	if _, err := q.Exec(ctx, `DELETE FROM jobs WHERE id = ANY($1)`, stale); err != nil {
		return 0, fmt.Errorf("prune jobs: %w", err)
	}
	return len(stale), nil
}

// RecordFailure marks the source failed and appends an error run.
func (s *Store) RecordFailure(ctx context.Context, sourceID int64, at time.Time, message string) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE sources SET last_checked_at = $1, last_status = $2, last_error = $3 WHERE id = $4`,
			at.UTC(), string(models.StatusError), message, sourceID)
		if err != nil {
			return fmt.Errorf("update source: %w", err)
		}
		if err := requireRow(tag, "source", sourceID); err != nil {
			return err
		}
		return insertRun(ctx, tx, models.JobRun{
			SourceID: sourceID,
			RanAt:    at.UTC(),
			Status:   models.StatusError,
			Error:    message,
		})
	})
}

func insertRun(ctx context.Context, q querier, run models.JobRun) error {
	_, err := q.Exec(ctx,
		`INSERT INTO job_runs (source_id, ran_at, new_count, total_count, status, error) VALUES ($1, $2, $3, $4, $5, $6)`,
		run.SourceID, run.RanAt, run.NewCount, run.TotalCount, string(run.Status), nullString(run.Error))
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// MarkSeen clears is_new for every job of the source.
func (s *Store) MarkSeen(ctx context.Context, sourceID int64) (int64, error) {
	tag, err := s.pool.Exec(ctx, `UPDATE jobs SET is_new = FALSE WHERE source_id = $1 AND is_new`, sourceID)
	if err != nil {
		return 0, fmt.Errorf("mark seen: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ExcludeJob deletes the job and writes its tombstone.
func (s *Store) ExcludeJob(ctx context.Context, jobID int64, at time.Time) (models.JobExclusion, error) {
	exclusion := models.JobExclusion{CreatedAt: at.UTC()}
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `DELETE FROM jobs WHERE id = $1 RETURNING source_id, job_key, url`, jobID).
			Scan(&exclusion.SourceID, &exclusion.JobKey, &exclusion.JobURL)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("job %d: %w", jobID, models.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("delete job %d: %w", jobID, err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO job_exclusions (source_id, job_key, job_url, created_at) VALUES ($1, $2, $3, $4)
			ON CONFLICT (source_id, job_key) DO NOTHING`,
			exclusion.SourceID, exclusion.JobKey, exclusion.JobURL, exclusion.CreatedAt)
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
	query := `SELECT id, source_id, job_key, title, COALESCE(company, ''), COALESCE(location, ''), url, first_seen_at, last_seen_at, is_new FROM jobs WHERE TRUE`
	var args []any
	if filter.SourceID > 0 {
		args = append(args, filter.SourceID)
		query += fmt.Sprintf(` AND source_id = $%d`, len(args))
	}
	if filter.NewOnly {
		query += ` AND is_new`
	}
	query += ` ORDER BY first_seen_at DESC, id DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	jobs := []models.Job{}
	for rows.Next() {
		var job models.Job
		if err := rows.Scan(&job.ID, &job.SourceID, &job.JobKey, &job.Title, &job.Company, &job.Location, &job.URL, &job.FirstSeenAt, &job.LastSeenAt, &job.IsNew); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
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
	rows, err := s.pool.Query(ctx, `
		SELECT id, source_id, ran_at, new_count, total_count, status, COALESCE(error, '')
		FROM job_runs WHERE source_id = $1 ORDER BY ran_at DESC, id DESC LIMIT $2`, sourceID, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := []models.JobRun{}
	for rows.Next() {
		var (
			run    models.JobRun
			status string
		)
		if err := rows.Scan(&run.ID, &run.SourceID, &run.RanAt, &run.NewCount, &run.TotalCount, &status, &run.Error); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.Status = models.SourceStatus(status)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *Store) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

const sourceSelect = `SELECT id, url, created_at, last_checked_at, COALESCE(last_status, 'pending'), COALESCE(last_error, '') FROM sources`

func scanSource(row pgx.Row) (models.Source, error) {
	var (
		src         models.Source
		lastChecked *time.Time
		status      string
	)
	err := row.Scan(&src.ID, &src.URL, &src.CreatedAt, &lastChecked, &status, &src.LastError)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Source{}, fmt.Errorf("source: %w", models.ErrNotFound)
	}
	if err != nil {
		return models.Source{}, fmt.Errorf("scan source: %w", err)
	}
	src.CreatedAt = src.CreatedAt.UTC()
	if lastChecked != nil {
		checked := lastChecked.UTC()
		src.LastCheckedAt = &checked
	}
	src.LastStatus = models.SourceStatus(status)
	return src, nil
}

func requireRow(tag pgconn.CommandTag, kind string, id int64) error {
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s %d: %w", kind, id, models.ErrNotFound)
	}
	return nil
}

func nullString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
