// Package scheduler triggers a refresh of every source once a day.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jimezsa/jobwatch/internal/models"
	"github.com/jimezsa/jobwatch/internal/seen"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const DefaultHour = 9

// Refresher runs one batch refresh.
type Refresher interface {
	RefreshAll(ctx context.Context) ([]models.RunOutcome, error)
}

type Options struct {
	Hour     int
	Timezone string
	// RunNow starts a batch immediately instead of waiting for the first tick.
	RunNow bool
}

// Scheduler wraps robfig/cron with a single daily entry.
type Scheduler struct {
	cron      *cron.Cron
	spec      string
	refresher Refresher
	runNow    bool
	logger    zerolog.Logger

	// startup tracks the run-now batch, which cron does not own.
	startup sync.WaitGroup
}

// Spec builds the daily cron expression for hour, clamped to 0-23, in the
// given IANA timezone. An empty timezone means local time.
func Spec(hour int, timezone string) string {
	hour = ClampHour(hour)
	spec := fmt.Sprintf("0 %d * * *", hour)
	if tz := strings.TrimSpace(timezone); tz != "" {
		spec = "CRON_TZ=" + tz + " " + spec
	}
	return spec
}

func ClampHour(hour int) int {
	if hour < 0 {
		return 0
	}
	if hour > 23 {
		return 23
	}
	return hour
}

func New(refresher Refresher, opts Options, logger zerolog.Logger) (*Scheduler, error) {
	if refresher == nil {
		return nil, fmt.Errorf("refresher is required")
	}
	if tz := strings.TrimSpace(opts.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return nil, fmt.Errorf("load timezone %q: %w", tz, err)
		}
	}

	logger = logger.With().Str("component", "scheduler").Logger()
	s := &Scheduler{
		cron:      cron.New(cron.WithLogger(cronLogger{logger: logger})),
		spec:      Spec(opts.Hour, opts.Timezone),
		refresher: refresher,
		runNow:    opts.RunNow,
		logger:    logger,
	}
	return s, nil
}

// Run blocks until ctx is cancelled, then waits for running batches, the
// run-now one included, to end.
func (s *Scheduler) Run(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.spec, func() { s.tick(ctx) }); err != nil {
		return fmt.Errorf("add cron entry %q: %w", s.spec, err)
	}
	s.cron.Start()
	s.logger.Info().Str("spec", s.spec).Time("next", s.Next()).Msg("scheduler started")

	if s.runNow {
		s.startup.Add(1)
		go func() {
			defer s.startup.Done()
			s.tick(ctx)
		}()
	}

	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.startup.Wait()
	s.logger.Info().Msg("scheduler stopped")
	return nil
}

// Next returns the next scheduled run, or the zero time before Run.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

func (s *Scheduler) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	outcomes, err := s.refresher.RefreshAll(ctx)
	switch {
	case errors.Is(err, seen.ErrRefreshInProgress):
		s.logger.Warn().Msg("refresh already running, tick skipped")
		return
	case err != nil:
		s.logger.Error().Err(err).Msg("scheduled refresh failed")
		return
	}

	failed, fresh := 0, 0
	for _, outcome := range outcomes {
		if outcome.Status == models.StatusError {
			failed++
		}
		fresh += outcome.NewCount
	}
	s.logger.Info().
		Int("sources", len(outcomes)).
		Int("failed", failed).
		Int("new", fresh).
		Dur("elapsed", time.Since(start)).
		Msg("scheduled refresh finished")
}

// cronLogger routes robfig/cron logs into zerolog; its chatty info lines go
// to debug.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
