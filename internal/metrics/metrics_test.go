package metrics

import (
	"errors"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jimezsa/jobwatch/internal/models"
	"github.com/jimezsa/jobwatch/internal/network"
	"github.com/jimezsa/jobwatch/internal/provider"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestFetchResult(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, "ok"},
		{"unconfigured", fmt.Errorf("zyte: %w", provider.ErrUnconfigured), "unconfigured"},
		{"blocked", fmt.Errorf("%w: 10.0.0.1", network.ErrBlockedAddress), "blocked"},
		{"timeout", network.ErrTimeout, "timeout"},
		{"http", &network.HTTPError{StatusCode: 500}, "upstream_http"},
		{"provider", &provider.Error{Provider: "zyte", StatusCode: 520}, "provider"},
		{"other", errors.New("boom"), "error"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := FetchResult(tc.err); got != tc.want {
				t.Errorf("FetchResult(%v) = %q; want %q", tc.err, got, tc.want)
			}
		})
	}
}

func TestObserveFetch(t *testing.T) {
	m := New()
	m.ObserveFetch(provider.NameDirect, nil, time.Second)
	m.ObserveFetch(provider.NameDirect, &network.HTTPError{StatusCode: 403}, time.Second)
	m.ObserveFetch(provider.NameZyte, nil, time.Second)

	if got := testutil.ToFloat64(m.fetchesTotal.WithLabelValues(provider.NameDirect, "ok")); got != 1 {
		t.Fatalf("direct ok = %v", got)
	}
	if got := testutil.ToFloat64(m.fetchesTotal.WithLabelValues(provider.NameDirect, "upstream_http")); got != 1 {
		t.Fatalf("direct upstream_http = %v", got)
	}
	if got := testutil.CollectAndCount(m.fetchesTotal); got != 3 {
		t.Fatalf("series = %d, want 3", got)
	}
}

func TestObserveRefresh(t *testing.T) {
	m := New()
	m.ObserveRefresh(models.RunOutcome{Status: models.StatusOK, NewCount: 3, TotalCount: 10}, time.Second)
	m.ObserveRefresh(models.RunOutcome{Status: models.StatusError, Error: "boom"}, time.Second)
	m.ObserveBatch(nil, time.Minute)

	if got := testutil.ToFloat64(m.newJobsTotal); got != 3 {
		t.Fatalf("new jobs = %v", got)
	}
	if got := testutil.ToFloat64(m.refreshesTotal.WithLabelValues("error")); got != 1 {
		t.Fatalf("error refreshes = %v", got)
	}
	if got := testutil.ToFloat64(m.lastBatchTimestamp); got <= 0 {
		t.Fatalf("last batch timestamp not set")
	}
}

func TestHandlerServesRegistry(t *testing.T) {
	m := New()
	m.ObserveFetch(provider.NameScrapingBee, nil, time.Second)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `jobwatch_fetches_total{provider="scrapingbee",result="ok"} 1`) {
		t.Fatalf("metrics output missing fetch counter:\n%s", rec.Body.String())
	}
}
