package seen

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jimezsa/jobwatch/internal/models"
	"github.com/jimezsa/jobwatch/internal/network"
	"github.com/jimezsa/jobwatch/internal/source"
	"github.com/jimezsa/jobwatch/internal/store/sqlite"
	"github.com/rs/zerolog"
)

type parseResult struct {
	jobs []models.JobCandidate
	err  error
}

type fakeParser struct {
	mu      sync.Mutex
	results map[string]parseResult
	calls   []string
	entered chan struct{}
	release chan struct{}
}

func (p *fakeParser) Parse(ctx context.Context, rawURL string) (source.Result, error) {
	p.mu.Lock()
	p.calls = append(p.calls, rawURL)
	res := p.results[rawURL]
	p.mu.Unlock()

	if p.entered != nil {
		p.entered <- struct{}{}
		<-p.release
	}
	if res.err != nil {
		return source.Result{}, res.err
	}
	return source.Result{URL: rawURL, Jobs: res.jobs, Provider: "direct"}, nil
}

func (p *fakeParser) set(url string, jobs []models.JobCandidate, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.results == nil {
		p.results = map[string]parseResult{}
	}
	p.results[url] = parseResult{jobs: jobs, err: err}
}

type fakeRecorder struct {
	mu       sync.Mutex
	outcomes []models.RunOutcome
	batches  int
}

func (r *fakeRecorder) ObserveRefresh(outcome models.RunOutcome, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func (r *fakeRecorder) ObserveBatch([]models.RunOutcome, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches++
}

func newTestEngine(t *testing.T, parser Parser, opts Options) (*Engine, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "app.test.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewEngine(store, parser, opts, zerolog.Nop()), store
}

var designJobs = []models.JobCandidate{
	{Title: "Product Designer", Company: "Acme", URL: "https://x.com/jobs/1?utm=a"},
	{Title: "UX Researcher", Company: "Acme", URL: "https://x.com/jobs/2"},
}

func TestAddSource(t *testing.T) {
	engine, _ := newTestEngine(t, &fakeParser{}, Options{})
	ctx := context.Background()

	if _, err := engine.AddSource(ctx, "ftp://x.com/jobs"); !errors.Is(err, network.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	first, err := engine.AddSource(ctx, " https://x.com/careers ")
	if err != nil {
		t.Fatalf("AddSource() error = %v", err)
	}
	second, err := engine.AddSource(ctx, "https://x.com/careers")
	if err != nil || second.ID != first.ID {
		t.Fatalf("duplicate AddSource() = %+v, %v", second, err)
	}
}

func TestRefreshSourceIsIdempotent(t *testing.T) {
	parser := &fakeParser{}
	rec := &fakeRecorder{}
	engine, _ := newTestEngine(t, parser, Options{Recorder: rec})
	ctx := context.Background()

	src, _ := engine.AddSource(ctx, "https://x.com/careers")
	parser.set(src.URL, designJobs, nil)

	outcome, err := engine.RefreshSource(ctx, src.ID)
	if err != nil {
		t.Fatalf("RefreshSource() error = %v", err)
	}
	if outcome.NewCount != 2 || outcome.TotalCount != 2 || outcome.Status != models.StatusOK {
		t.Fatalf("unexpected first outcome: %+v", outcome)
	}

	tracked := append([]models.JobCandidate(nil), designJobs...)
	tracked[0].URL = "https://x.com/jobs/1?utm=b#apply"
	parser.set(src.URL, tracked, nil)

	outcome, err = engine.RefreshSource(ctx, src.ID)
	if err != nil {
		t.Fatalf("second RefreshSource() error = %v", err)
	}
	if outcome.NewCount != 0 || outcome.TotalCount != 2 {
		t.Fatalf("unexpected second outcome: %+v", outcome)
	}

	jobs, _ := engine.ListJobs(ctx, models.JobFilter{SourceID: src.ID})
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	for _, job := range jobs {
		if !job.IsNew {
			t.Fatalf("re-observation must not clear is_new: %+v", job)
		}
	}
	if len(rec.outcomes) != 2 {
		t.Fatalf("recorder saw %d outcomes", len(rec.outcomes))
	}
}

func TestExcludedJobsStayExcluded(t *testing.T) {
	parser := &fakeParser{}
	engine, _ := newTestEngine(t, parser, Options{})
	ctx := context.Background()

	src, _ := engine.AddSource(ctx, "https://x.com/careers")
	parser.set(src.URL, designJobs, nil)
	engine.RefreshSource(ctx, src.ID)

	jobs, _ := engine.ListJobs(ctx, models.JobFilter{SourceID: src.ID})
	target := jobs[0]
	exclusion, err := engine.ExcludeJob(ctx, target.ID)
	if err != nil {
		t.Fatalf("ExcludeJob() error = %v", err)
	}
	if exclusion.JobKey != target.JobKey {
		t.Fatalf("unexpected exclusion: %+v", exclusion)
	}

	reversed := []models.JobCandidate{designJobs[1], designJobs[0]}
	parser.set(src.URL, reversed, nil)
	for i := 0; i < 2; i++ {
		outcome, err := engine.RefreshSource(ctx, src.ID)
		if err != nil {
			t.Fatalf("RefreshSource() error = %v", err)
		}
		if outcome.NewCount != 0 {
			t.Fatalf("excluded job came back: %+v", outcome)
		}
	}

	jobs, _ = engine.ListJobs(ctx, models.JobFilter{SourceID: src.ID})
	if len(jobs) != 1 || jobs[0].JobKey == target.JobKey {
		t.Fatalf("unexpected jobs: %+v", jobs)
	}
	if _, err := engine.ExcludeJob(ctx, target.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMarkSeenIsScopedToSource(t *testing.T) {
	parser := &fakeParser{}
	engine, _ := newTestEngine(t, parser, Options{})
	ctx := context.Background()

	a, _ := engine.AddSource(ctx, "https://a.com/jobs")
	b, _ := engine.AddSource(ctx, "https://b.com/jobs")
	parser.set(a.URL, designJobs, nil)
	parser.set(b.URL, designJobs, nil)
	engine.RefreshSource(ctx, a.ID)
	engine.RefreshSource(ctx, b.ID)

	cleared, err := engine.MarkSeen(ctx, a.ID)
	if err != nil || cleared != 2 {
		t.Fatalf("MarkSeen() = %d, %v", cleared, err)
	}
	fresh, _ := engine.ListJobs(ctx, models.JobFilter{NewOnly: true})
	if len(fresh) != 2 {
		t.Fatalf("expected 2 new jobs, got %d", len(fresh))
	}
	for _, job := range fresh {
		if job.SourceID != b.ID {
			t.Fatalf("unexpected new job: %+v", job)
		}
	}

	if _, err := engine.MarkSeen(ctx, 999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRefreshFailureRecordsRun(t *testing.T) {
	parser := &fakeParser{}
	engine, store := newTestEngine(t, parser, Options{})
	ctx := context.Background()

	src, _ := engine.AddSource(ctx, "https://x.com/careers")
	parser.set(src.URL, designJobs, nil)
	engine.RefreshSource(ctx, src.ID)

	upstream := &network.HTTPError{StatusCode: 500, URL: src.URL}
	parser.set(src.URL, nil, upstream)
	outcome, err := engine.RefreshSource(ctx, src.ID)
	if !errors.Is(err, network.ErrUpstreamHTTP) {
		t.Fatalf("expected upstream error, got %v", err)
	}
	if outcome.Status != models.StatusError || outcome.NewCount != 0 || outcome.TotalCount != 0 || outcome.Error != upstream.Error() {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}

	got, _ := store.GetSource(ctx, src.ID)
	if got.LastStatus != models.StatusError || got.LastError != upstream.Error() {
		t.Fatalf("unexpected source: %+v", got)
	}
	runs, _ := engine.ListRuns(ctx, src.ID, 10)
	if len(runs) != 2 || runs[0].Status != models.StatusError || runs[0].NewCount != 0 || runs[0].TotalCount != 0 {
		t.Fatalf("unexpected runs: %+v", runs)
	}
	jobs, _ := engine.ListJobs(ctx, models.JobFilter{SourceID: src.ID})
	if len(jobs) != 2 {
		t.Fatalf("failed refresh must leave jobs untouched, got %d", len(jobs))
	}
}

type emptyError struct{}

func (emptyError) Error() string { return "" }

func TestRefreshFailureDefaultMessage(t *testing.T) {
	parser := &fakeParser{}
	engine, _ := newTestEngine(t, parser, Options{})
	ctx := context.Background()

	src, _ := engine.AddSource(ctx, "https://x.com/careers")
	parser.set(src.URL, nil, emptyError{})
	outcome, err := engine.RefreshSource(ctx, src.ID)
	if err == nil || outcome.Error != "parse failed" {
		t.Fatalf("unexpected outcome: %+v, %v", outcome, err)
	}
}

func TestDeleteSourceThenReAdd(t *testing.T) {
	parser := &fakeParser{}
	engine, _ := newTestEngine(t, parser, Options{})
	ctx := context.Background()

	src, _ := engine.AddSource(ctx, "https://x.com/careers")
	parser.set(src.URL, designJobs, nil)
	engine.RefreshSource(ctx, src.ID)
	jobs, _ := engine.ListJobs(ctx, models.JobFilter{SourceID: src.ID})
	engine.ExcludeJob(ctx, jobs[0].ID)

	if err := engine.DeleteSource(ctx, src.ID); err != nil {
		t.Fatalf("DeleteSource() error = %v", err)
	}
	if _, err := engine.RefreshSource(ctx, src.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	again, err := engine.AddSource(ctx, "https://x.com/careers")
	if err != nil {
		t.Fatalf("AddSource() error = %v", err)
	}
	if again.ID == src.ID {
		t.Fatalf("expected a new source id")
	}
	outcome, err := engine.RefreshSource(ctx, again.ID)
	if err != nil || outcome.NewCount != 2 {
		t.Fatalf("re-added source should see all jobs as new: %+v, %v", outcome, err)
	}
}

func TestRefreshAll(t *testing.T) {
	parser := &fakeParser{}
	rec := &fakeRecorder{}
	engine, _ := newTestEngine(t, parser, Options{Recorder: rec, SourceInterval: time.Millisecond})
	ctx := context.Background()

	older, _ := engine.AddSource(ctx, "https://a.com/jobs")
	time.Sleep(2 * time.Millisecond)
	newer, _ := engine.AddSource(ctx, "https://b.com/jobs")
	parser.set(older.URL, designJobs, nil)
	parser.set(newer.URL, nil, errors.New("boom"))

	outcomes, err := engine.RefreshAll(ctx)
	if err != nil {
		t.Fatalf("RefreshAll() error = %v", err)
	}
	if len(outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(outcomes))
	}
	if outcomes[0].SourceID != newer.ID || outcomes[0].Status != models.StatusError || outcomes[0].Error != "boom" {
		t.Fatalf("unexpected first outcome: %+v", outcomes[0])
	}
	if outcomes[1].SourceID != older.ID || outcomes[1].NewCount != 2 {
		t.Fatalf("unexpected second outcome: %+v", outcomes[1])
	}
	if rec.batches != 1 {
		t.Fatalf("batches = %d", rec.batches)
	}
}

func TestRefreshAllRejectsConcurrentBatch(t *testing.T) {
	parser := &fakeParser{entered: make(chan struct{}), release: make(chan struct{})}
	engine, _ := newTestEngine(t, parser, Options{})
	ctx := context.Background()

	src, _ := engine.AddSource(ctx, "https://x.com/careers")
	parser.set(src.URL, designJobs, nil)

	done := make(chan error, 1)
	go func() {
		_, err := engine.RefreshAll(ctx)
		done <- err
	}()
	<-parser.entered

	if _, err := engine.RefreshAll(ctx); !errors.Is(err, ErrRefreshInProgress) {
		t.Fatalf("expected conflict, got %v", err)
	}

	close(parser.release)
	if err := <-done; err != nil {
		t.Fatalf("first batch error = %v", err)
	}

	parser.entered = nil
	if _, err := engine.RefreshAll(ctx); err != nil {
		t.Fatalf("guard should be released, got %v", err)
	}
}

func TestRefreshAllRejectsBatchFromAnotherEngine(t *testing.T) {
	blocked := &fakeParser{entered: make(chan struct{}), release: make(chan struct{})}
	first, store := newTestEngine(t, blocked, Options{})
	ctx := context.Background()

	src, _ := first.AddSource(ctx, "https://x.com/careers")
	blocked.set(src.URL, designJobs, nil)

	other, err := sqlite.Open(ctx, store.Path(), zerolog.Nop())
	if err != nil {
		t.Fatalf("open second store: %v", err)
	}
	defer other.Close()
	idle := &fakeParser{}
	idle.set(src.URL, designJobs, nil)
	second := NewEngine(other, idle, Options{}, zerolog.Nop())

	done := make(chan error, 1)
	go func() {
		_, err := first.RefreshAll(ctx)
		done <- err
	}()
	<-blocked.entered

	if _, err := second.RefreshAll(ctx); !errors.Is(err, ErrRefreshInProgress) {
		t.Fatalf("expected conflict across engines, got %v", err)
	}
	if len(idle.calls) != 0 {
		t.Fatalf("second engine parsed %v while locked out", idle.calls)
	}

	close(blocked.release)
	if err := <-done; err != nil {
		t.Fatalf("first batch error = %v", err)
	}
	if _, err := second.RefreshAll(ctx); err != nil {
		t.Fatalf("lock should be released, got %v", err)
	}
}

func TestImportSources(t *testing.T) {
	engine, _ := newTestEngine(t, &fakeParser{}, Options{})
	ctx := context.Background()
	engine.AddSource(ctx, "https://a.com/jobs")

	added, err := engine.ImportSources(ctx, []string{"https://a.com/jobs", "https://b.com/jobs", "not a url", "https://b.com/jobs"})
	if added != 1 {
		t.Fatalf("added = %d", added)
	}
	if !errors.Is(err, network.ErrInvalidInput) {
		t.Fatalf("expected invalid input error, got %v", err)
	}
	sources, _ := engine.ListSources(ctx)
	if len(sources) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(sources))
	}
}
