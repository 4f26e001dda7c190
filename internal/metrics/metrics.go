// Package metrics exposes Prometheus collectors for fetches and refreshes.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jimezsa/jobwatch/internal/models"
	"github.com/jimezsa/jobwatch/internal/network"
	"github.com/jimezsa/jobwatch/internal/provider"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Metrics owns a private registry so several instances can coexist in tests.
type Metrics struct {
	registry *prometheus.Registry

	fetchesTotal         *prometheus.CounterVec
	fetchDurationSeconds *prometheus.HistogramVec
	refreshesTotal       *prometheus.CounterVec
	refreshDuration      prometheus.Histogram
	newJobsTotal         prometheus.Counter
	extractedJobs        prometheus.Histogram
	batchDuration        prometheus.Histogram
	lastBatchTimestamp   prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		fetchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobwatch_fetches_total",
				Help: "Fetch attempts, labeled by provider and result.",
			},
			[]string{"provider", "result"},
		),
		fetchDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "jobwatch_fetch_duration_seconds",
				Help:    "Latency of fetch attempts, labeled by provider.",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider"},
		),
		refreshesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobwatch_refreshes_total",
				Help: "Source refreshes, labeled by status.",
			},
			[]string{"status"},
		),
		refreshDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "jobwatch_refresh_duration_seconds",
			Help:    "Duration of one source refresh.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}),
		newJobsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "jobwatch_new_jobs_total",
			Help: "Jobs observed for the first time.",
		}),
		extractedJobs: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "jobwatch_extracted_jobs",
			Help:    "Candidates extracted per successful refresh.",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250},
		}),
		batchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "jobwatch_batch_duration_seconds",
			Help:    "Duration of a refresh over every source.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
		lastBatchTimestamp: factory.NewGauge(prometheus.GaugeOpts{
			Name: "jobwatch_last_batch_timestamp_seconds",
			Help: "Unix time the last batch refresh finished.",
		}),
	}
}

// ObserveFetch records one provider attempt.
func (m *Metrics) ObserveFetch(providerName string, err error, elapsed time.Duration) {
	m.fetchesTotal.WithLabelValues(providerName, FetchResult(err)).Inc()
	m.fetchDurationSeconds.WithLabelValues(providerName).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveRefresh(outcome models.RunOutcome, elapsed time.Duration) {
	m.refreshesTotal.WithLabelValues(string(outcome.Status)).Inc()
	m.refreshDuration.Observe(elapsed.Seconds())
	if outcome.Status == models.StatusOK {
		m.newJobsTotal.Add(float64(outcome.NewCount))
		m.extractedJobs.Observe(float64(outcome.TotalCount))
	}
}

func (m *Metrics) ObserveBatch(_ []models.RunOutcome, elapsed time.Duration) {
	m.batchDuration.Observe(elapsed.Seconds())
	m.lastBatchTimestamp.SetToCurrentTime()
}

// FetchResult classifies a fetch error into a low-cardinality label.
func FetchResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, provider.ErrUnconfigured):
		return "unconfigured"
	case errors.Is(err, network.ErrBlockedAddress):
		return "blocked"
	case errors.Is(err, network.ErrInvalidInput):
		return "invalid"
	case errors.Is(err, network.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, network.ErrUpstreamTooLarge):
		return "too_large"
	case errors.Is(err, network.ErrTooManyRedirects):
		return "redirects"
	case errors.Is(err, network.ErrUpstreamHTTP):
		return "upstream_http"
	case errors.Is(err, provider.ErrProvider):
		return "provider"
	}
	return "error"
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errc := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("metrics listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
