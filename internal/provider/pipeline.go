package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jimezsa/jobwatch/internal/network"
	"github.com/rs/zerolog"
)

// HTMLFetcher is the direct acquisition path.
type HTMLFetcher interface {
	FetchHTML(ctx context.Context, rawURL string, headers map[string]string) (network.Page, error)
	FetchJSON(ctx context.Context, rawURL string, headers map[string]string) (any, error)
	MaxBytes() int64
}

// Recorder observes every acquisition attempt.
type Recorder interface {
	ObserveFetch(provider string, err error, elapsed time.Duration)
}

type strategy interface {
	Name() string
	Fetch(ctx context.Context, target string) (Result, error)
}

type direct struct {
	fetcher HTMLFetcher
}

func (d direct) Name() string {
	return NameDirect
}

func (d direct) Fetch(ctx context.Context, target string) (Result, error) {
	page, err := d.fetcher.FetchHTML(ctx, target, nil)
	if err != nil {
		return Result{}, err
	}
	return Result{HTML: page.HTML, Cookies: page.Cookies, FinalURL: page.FinalURL}, nil
}

// Pipeline picks an acquisition order and walks it until one strategy
// returns a page.
type Pipeline struct {
	direct   HTMLFetcher
	zyte     *Zyte
	bee      *ScrapingBee
	recorder Recorder
	logger   zerolog.Logger
	now      func() time.Time
}

// NewPipeline builds a pipeline; zyte, bee and recorder may be nil.
func NewPipeline(fetcher HTMLFetcher, zyte *Zyte, bee *ScrapingBee, recorder Recorder, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		direct:   fetcher,
		zyte:     zyte,
		bee:      bee,
		recorder: recorder,
		logger:   logger.With().Str("component", "pipeline").Logger(),
		now:      time.Now,
	}
}

// Plan lists the strategy names Fetch will try, in order.
func (p *Pipeline) Plan() []string {
	steps := p.plan()
	names := make([]string, len(steps))
	for i, step := range steps {
		names[i] = step.Name()
	}
	return names
}

func (p *Pipeline) plan() []strategy {
	switch {
	case p.zyte.Always():
		return []strategy{p.zyte}
	case p.bee.Always():
		return []strategy{p.bee}
	}

	steps := []strategy{direct{fetcher: p.direct}}
	if p.zyte.Configured() {
		steps = append(steps, p.zyte)
	}
	if p.bee.Configured() {
		steps = append(steps, p.bee)
	}
	return steps
}

// Fetch acquires target. The error of the last strategy tried is returned
// when all of them fail.
func (p *Pipeline) Fetch(ctx context.Context, target string) (Result, error) {
	var lastErr error
	for _, step := range p.plan() {
		start := p.now()
		res, err := step.Fetch(ctx, target)
		elapsed := p.now().Sub(start)
		if p.recorder != nil {
			p.recorder.ObserveFetch(step.Name(), err, elapsed)
		}
		if err == nil {
			res.Provider = step.Name()
			p.logger.Debug().Str("url", target).Str("provider", step.Name()).Dur("elapsed", elapsed).Msg("fetched")
			return res, nil
		}

		p.logger.Warn().Str("url", target).Str("provider", step.Name()).Err(err).Msg("fetch failed")
		lastErr = err
		if terminal(ctx, err) {
			break
		}
	}
	return Result{}, fmt.Errorf("fetch %s: %w", target, lastErr)
}

// FetchJSON performs an auxiliary JSON request on the direct path.
func (p *Pipeline) FetchJSON(ctx context.Context, rawURL string, headers map[string]string) (any, error) {
	return p.direct.FetchJSON(ctx, rawURL, headers)
}

// MaxBytes is the page size cap of the direct path.
func (p *Pipeline) MaxBytes() int64 {
	return p.direct.MaxBytes()
}

// terminal errors would fail the same way on every strategy.
func terminal(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	return errors.Is(err, network.ErrInvalidInput) || errors.Is(err, network.ErrBlockedAddress)
}
