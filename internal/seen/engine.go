// Package seen tracks which listings of each source are new, seen or
// excluded across repeated refreshes.
package seen

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jimezsa/jobwatch/internal/models"
	"github.com/jimezsa/jobwatch/internal/network"
	"github.com/jimezsa/jobwatch/internal/scraper"
	"github.com/jimezsa/jobwatch/internal/source"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

const defaultFailure = "parse failed"

var (
	// ErrRefreshInProgress rejects a batch refresh while another one runs.
	ErrRefreshInProgress = errors.New("refresh already in progress")
	ErrNotFound          = models.ErrNotFound
)

// Store persists sources, jobs, runs and exclusions.
type Store interface {
	CreateSource(ctx context.Context, url string, at time.Time) (models.Source, bool, error)
	GetSource(ctx context.Context, id int64) (models.Source, error)
	ListSources(ctx context.Context) ([]models.Source, error)
	DeleteSource(ctx context.Context, id int64) error
	ApplyObservation(ctx context.Context, obs models.Observation) (models.ObservationResult, error)
	RecordFailure(ctx context.Context, sourceID int64, at time.Time, message string) error
	MarkSeen(ctx context.Context, sourceID int64) (int64, error)
	ExcludeJob(ctx context.Context, jobID int64, at time.Time) (models.JobExclusion, error)
	ListJobs(ctx context.Context, filter models.JobFilter) ([]models.Job, error)
	ListRuns(ctx context.Context, sourceID int64, limit int) ([]models.JobRun, error)
	// LockBatch takes the store-wide batch lock without waiting. It fails
	// with models.ErrBatchLocked when the lock is held elsewhere.
	LockBatch(ctx context.Context) (release func() error, err error)
}

// Parser extracts the current listings of a source page.
type Parser interface {
	Parse(ctx context.Context, rawURL string) (source.Result, error)
}

// Recorder observes refresh outcomes.
type Recorder interface {
	ObserveRefresh(outcome models.RunOutcome, elapsed time.Duration)
	ObserveBatch(outcomes []models.RunOutcome, elapsed time.Duration)
}

type Options struct {
	// SourceInterval paces sources within a batch; zero disables pacing.
	SourceInterval time.Duration
	Recorder       Recorder
}

// Engine runs refreshes against a store.
type Engine struct {
	store    Store
	parser   Parser
	inflight *semaphore.Weighted
	limiter  *rate.Limiter
	recorder Recorder
	logger   zerolog.Logger
	now      func() time.Time
}

func NewEngine(store Store, parser Parser, opts Options, logger zerolog.Logger) *Engine {
	var limiter *rate.Limiter
	if opts.SourceInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(opts.SourceInterval), 1)
	}
	return &Engine{
		store:    store,
		parser:   parser,
		inflight: semaphore.NewWeighted(1),
		limiter:  limiter,
		recorder: opts.Recorder,
		logger:   logger.With().Str("component", "refresh").Logger(),
		now:      time.Now,
	}
}

// AddSource registers a career page. Adding a URL twice returns the
// existing source.
func (e *Engine) AddSource(ctx context.Context, rawURL string) (models.Source, error) {
	target, err := network.ParseHTTPURL(rawURL)
	if err != nil {
		return models.Source{}, err
	}
	src, created, err := e.store.CreateSource(ctx, target.String(), e.now().UTC())
	if err != nil {
		return models.Source{}, err
	}
	if created {
		e.logger.Info().Int64("source_id", src.ID).Str("url", src.URL).Msg("source added")
	}
	return src, nil
}

func (e *Engine) ListSources(ctx context.Context) ([]models.Source, error) {
	return e.store.ListSources(ctx)
}

// DeleteSource removes a source with its jobs, runs and exclusions.
func (e *Engine) DeleteSource(ctx context.Context, id int64) error {
	if err := e.store.DeleteSource(ctx, id); err != nil {
		return err
	}
	e.logger.Info().Int64("source_id", id).Msg("source deleted")
	return nil
}

// MarkSeen clears the new flag on every job of a source.
func (e *Engine) MarkSeen(ctx context.Context, sourceID int64) (int64, error) {
	if _, err := e.store.GetSource(ctx, sourceID); err != nil {
		return 0, err
	}
	return e.store.MarkSeen(ctx, sourceID)
}

// ExcludeJob deletes a job and keeps it from being inserted again.
func (e *Engine) ExcludeJob(ctx context.Context, jobID int64) (models.JobExclusion, error) {
	exclusion, err := e.store.ExcludeJob(ctx, jobID, e.now().UTC())
	if err != nil {
		return models.JobExclusion{}, err
	}
	e.logger.Info().Int64("source_id", exclusion.SourceID).Str("job_key", exclusion.JobKey).Msg("job excluded")
	return exclusion, nil
}

func (e *Engine) ListJobs(ctx context.Context, filter models.JobFilter) ([]models.Job, error) {
	return e.store.ListJobs(ctx, filter)
}

func (e *Engine) ListRuns(ctx context.Context, sourceID int64, limit int) ([]models.JobRun, error) {
	if _, err := e.store.GetSource(ctx, sourceID); err != nil {
		return nil, err
	}
	return e.store.ListRuns(ctx, sourceID, limit)
}

// RefreshSource refreshes one source. A failed refresh is recorded before
// its error is returned.
func (e *Engine) RefreshSource(ctx context.Context, id int64) (models.RunOutcome, error) {
	src, err := e.store.GetSource(ctx, id)
	if err != nil {
		return models.RunOutcome{}, err
	}
	return e.refresh(ctx, src)
}

// RefreshAll refreshes every source, newest first, one at a time. It fails
// with ErrRefreshInProgress when another batch is running. Per-source
// failures are reported in the outcomes, not as an error.
func (e *Engine) RefreshAll(ctx context.Context) ([]models.RunOutcome, error) {
	if !e.inflight.TryAcquire(1) {
		return nil, ErrRefreshInProgress
	}
	defer e.inflight.Release(1)

	batch := uuid.NewString()
	logger := e.logger.With().Str("batch", batch).Logger()

	// Other processes sharing the store hold the same lock.
	release, err := e.store.LockBatch(ctx)
	if errors.Is(err, models.ErrBatchLocked) {
		return nil, ErrRefreshInProgress
	}
	if err != nil {
		return nil, fmt.Errorf("lock batch: %w", err)
	}
	defer func() {
		if err := release(); err != nil {
			logger.Warn().Err(err).Msg("release batch lock")
		}
	}()
	start := time.Now()

	sources, err := e.store.ListSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	logger.Info().Int("sources", len(sources)).Msg("batch started")

	outcomes := make([]models.RunOutcome, 0, len(sources))
	for i, src := range sources {
		if i > 0 && e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return outcomes, err
			}
		}
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}
		outcome, _ := e.refresh(ctx, src)
		outcomes = append(outcomes, outcome)
	}

	elapsed := time.Since(start)
	if e.recorder != nil {
		e.recorder.ObserveBatch(outcomes, elapsed)
	}
	logger.Info().Int("sources", len(outcomes)).Dur("elapsed", elapsed).Msg("batch finished")
	return outcomes, nil
}

func (e *Engine) refresh(ctx context.Context, src models.Source) (models.RunOutcome, error) {
	at := e.now().UTC()
	start := time.Now()

	parsed, err := e.parser.Parse(ctx, src.URL)
	if err != nil {
		return e.fail(ctx, src, at, start, err)
	}

	obs := models.Observation{
		SourceID: src.ID,
		At:       at,
		Keep:     scraper.ListingPattern(scraper.HostOf(src.URL)),
		Jobs:     Observe(parsed.Jobs),
		Total:    len(parsed.Jobs),
	}
	result, err := e.store.ApplyObservation(ctx, obs)
	if err != nil {
		return e.fail(ctx, src, at, start, err)
	}

	outcome := models.RunOutcome{
		SourceID:   src.ID,
		URL:        src.URL,
		NewCount:   result.Inserted,
		TotalCount: obs.Total,
		Status:     models.StatusOK,
		Warnings:   parsed.Warnings,
	}
	e.observe(outcome, start)
	e.logger.Info().
		Int64("source_id", src.ID).
		Str("provider", parsed.Provider).
		Int("new", result.Inserted).
		Int("total", obs.Total).
		Int("excluded", result.Excluded).
		Int("pruned", result.Pruned).
		Msg("source refreshed")
	return outcome, nil
}

func (e *Engine) fail(ctx context.Context, src models.Source, at, start time.Time, cause error) (models.RunOutcome, error) {
	message := cause.Error()
	if message == "" {
		message = defaultFailure
	}

	if err := e.store.RecordFailure(context.WithoutCancel(ctx), src.ID, at, message); err != nil {
		e.logger.Error().Int64("source_id", src.ID).Err(err).Msg("record failed run")
		cause = errors.Join(cause, err)
	}

	outcome := models.RunOutcome{
		SourceID: src.ID,
		URL:      src.URL,
		Status:   models.StatusError,
		Error:    message,
	}
	e.observe(outcome, start)
	e.logger.Warn().Int64("source_id", src.ID).Str("url", src.URL).Str("error", message).Msg("refresh failed")
	return outcome, cause
}

func (e *Engine) observe(outcome models.RunOutcome, start time.Time) {
	if e.recorder != nil {
		e.recorder.ObserveRefresh(outcome, time.Since(start))
	}
}
