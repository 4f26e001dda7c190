package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/jimezsa/jobwatch/internal/config"
	"github.com/jimezsa/jobwatch/internal/metrics"
	"github.com/jimezsa/jobwatch/internal/network"
	"github.com/jimezsa/jobwatch/internal/provider"
	"github.com/jimezsa/jobwatch/internal/seen"
	"github.com/jimezsa/jobwatch/internal/source"
	"github.com/jimezsa/jobwatch/internal/store/postgres"
	"github.com/jimezsa/jobwatch/internal/store/sqlite"
)

type RuntimeOptions struct {
	// Proxies overrides the configured proxy list (comma separated).
	Proxies string
	// Store opens the configured store and builds the refresh engine.
	Store bool
	// Metrics records fetches and refreshes into a Prometheus registry.
	Metrics bool
}

// Runtime is the wired object graph a command works with.
type Runtime struct {
	Parser  seen.Parser
	Engine  *seen.Engine
	Metrics *metrics.Metrics
	Plan    []string

	closers []io.Closer
}

func (r *Runtime) Close() error {
	var errs []error
	for _, c := range r.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// BuildRuntime wires network, providers, parser and, on request, the store
// and engine from the loaded configuration.
func BuildRuntime(ctx context.Context, c *Context, opts RuntimeOptions) (*Runtime, error) {
	cfg := c.Config
	logger := c.Logger

	proxies, err := config.LoadProxies(opts.Proxies, cfg)
	if err != nil {
		return nil, err
	}
	var rotator *network.Rotator
	if len(proxies) > 0 {
		rotator, err = network.NewRotator(proxies, cfg.ProxyBan())
		if err != nil {
			return nil, err
		}
	}

	pageClient, err := network.NewClient(network.ClientOptions{
		Timeout:   cfg.FetchTimeout(),
		UserAgent: cfg.Fetch.UserAgent,
		Rotator:   rotator,
	})
	if err != nil {
		return nil, fmt.Errorf("build http client: %w", err)
	}
	// Provider APIs are called without the proxy pool.
	apiClient, err := network.NewClient(network.ClientOptions{
		Timeout:   cfg.ZyteTimeout(),
		UserAgent: cfg.Fetch.UserAgent,
	})
	if err != nil {
		return nil, fmt.Errorf("build api client: %w", err)
	}

	guard := network.NewGuard(nil)
	fetcher := network.NewFetcher(pageClient, guard, network.FetchOptions{
		Timeout:             cfg.FetchTimeout(),
		MaxBytes:            cfg.Fetch.MaxBytes,
		MaxRedirects:        cfg.Fetch.MaxRedirects,
		MaxRateLimitRetries: cfg.Fetch.MaxRateLimitRetries,
		UserAgent:           cfg.Fetch.UserAgent,
	}, logger)

	zyte := provider.NewZyte(apiClient, provider.ZyteOptions{
		APIKey:         cfg.Zyte.APIKey,
		APIURL:         cfg.Zyte.APIURL,
		BrowserHTML:    cfg.Zyte.BrowserHTML,
		StructuredData: cfg.Zyte.StructuredData,
		ExtractType:    cfg.Zyte.ExtractType,
		Always:         cfg.Zyte.Always,
		Debug:          cfg.Zyte.Debug,
		Timeout:        cfg.ZyteTimeout(),
		MaxBytes:       cfg.Fetch.MaxBytes,
	}, logger)
	bee := provider.NewScrapingBee(apiClient, provider.ScrapingBeeOptions{
		APIKey:   cfg.ScrapingBee.APIKey,
		APIURL:   cfg.ScrapingBee.APIURL,
		RenderJS: cfg.ScrapingBee.RenderJS,
		Always:   cfg.ScrapingBee.Always,
		MaxBytes: cfg.Fetch.MaxBytes,
	})

	rt := &Runtime{}
	var (
		fetchRecorder   provider.Recorder
		refreshRecorder seen.Recorder
	)
	if opts.Metrics {
		rt.Metrics = metrics.New()
		fetchRecorder = rt.Metrics
		refreshRecorder = rt.Metrics
	}

	pipeline := provider.NewPipeline(fetcher, zyte, bee, fetchRecorder, logger)
	rt.Plan = pipeline.Plan()
	rt.Parser = source.NewParser(pipeline, guard, logger)

	if opts.Store {
		store, err := openStore(ctx, c)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, store)
		rt.Engine = seen.NewEngine(store, rt.Parser, seen.Options{
			SourceInterval: cfg.SourceInterval(),
			Recorder:       refreshRecorder,
		}, logger)
	}
	return rt, nil
}

type closableStore interface {
	seen.Store
	io.Closer
}

func openStore(ctx context.Context, c *Context) (closableStore, error) {
	cfg := c.Config
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		return postgres.NewStore(ctx, postgres.Config{
			DSN:      cfg.Store.DSN,
			MaxConns: cfg.Store.MaxConns,
		}, c.Logger)
	default:
		return sqlite.Open(ctx, cfg.DBPath(c.ConfigDir), c.Logger)
	}
}
