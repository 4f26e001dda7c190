package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jimezsa/jobwatch/internal/config"
	"github.com/jimezsa/jobwatch/internal/export"
	"github.com/jimezsa/jobwatch/internal/models"
	"github.com/jimezsa/jobwatch/internal/seen"
	"github.com/jimezsa/jobwatch/internal/source"
	"github.com/jimezsa/jobwatch/internal/store/sqlite"
	"github.com/jimezsa/jobwatch/internal/ui"
	"github.com/rs/zerolog"
)

type stubParser struct {
	jobs     []models.JobCandidate
	warnings []string
	err      error
}

func (p *stubParser) Parse(_ context.Context, rawURL string) (source.Result, error) {
	if p.err != nil {
		return source.Result{}, p.err
	}
	return source.Result{
		URL:      rawURL,
		Adapter:  "generic",
		Provider: "direct",
		Company:  "Acme",
		Jobs:     p.jobs,
		Warnings: p.warnings,
	}, nil
}

type testEnv struct {
	ctx    *Context
	out    *bytes.Buffer
	errOut *bytes.Buffer
}

func newTestEnv(t *testing.T, parser seen.Parser) *testEnv {
	t.Helper()
	dir := t.TempDir()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}

	cfg := config.DefaultConfig()
	cfg.Store.Path = filepath.Join(dir, "app.test.db")

	ctx := &Context{
		Out:        out,
		Err:        errOut,
		UI:         ui.New(out, errOut, ui.ColorNever, true),
		Config:     cfg,
		ConfigDir:  dir,
		Logger:     zerolog.Nop(),
		JSONOutput: true,
		Version:    "test",
		Base:       context.Background(),
	}
	ctx.NewRuntime = func(runCtx context.Context, c *Context, opts RuntimeOptions) (*Runtime, error) {
		rt := &Runtime{Parser: parser, Plan: []string{"direct"}}
		if opts.Store {
			store, err := sqlite.Open(runCtx, c.Config.DBPath(c.ConfigDir), c.Logger)
			if err != nil {
				return nil, err
			}
			rt.closers = append(rt.closers, store)
			rt.Engine = seen.NewEngine(store, parser, seen.Options{}, c.Logger)
		}
		return rt, nil
	}
	return &testEnv{ctx: ctx, out: out, errOut: errOut}
}

func (e *testEnv) decode(t *testing.T, v any) {
	t.Helper()
	if err := json.Unmarshal(e.out.Bytes(), v); err != nil {
		t.Fatalf("decode output %q: %v", e.out.String(), err)
	}
	e.out.Reset()
}

var stubJobs = []models.JobCandidate{
	{Title: "Product Designer", Company: "Acme", URL: "https://x.com/jobs/1"},
	{Title: "UX Researcher", Company: "Acme", URL: "https://x.com/jobs/2"},
}

func TestResolveFormatRespectsGlobalFlags(t *testing.T) {
	ctx := &Context{Out: io.Discard, JSONOutput: true}
	got, err := resolveFormat(ctx, OutputOptions{Format: "csv"}, "jobs.csv")
	if err != nil || got != export.FormatJSON {
		t.Fatalf("resolveFormat() = %q, %v, want %q", got, err, export.FormatJSON)
	}

	ctx = &Context{Out: io.Discard, PlainText: true}
	got, err = resolveFormat(ctx, OutputOptions{}, "")
	if err != nil || got != export.FormatTSV {
		t.Fatalf("resolveFormat() = %q, %v, want %q", got, err, export.FormatTSV)
	}

	ctx = &Context{Out: io.Discard}
	got, err = resolveFormat(ctx, OutputOptions{}, "jobs.out")
	if err != nil || got != export.FormatCSV {
		t.Fatalf("resolveFormat() = %q, %v, want %q", got, err, export.FormatCSV)
	}
	got, err = resolveFormat(ctx, OutputOptions{Format: "md"}, "")
	if err != nil || got != export.FormatMarkdown {
		t.Fatalf("resolveFormat() = %q, %v, want %q", got, err, export.FormatMarkdown)
	}
}

func TestSourcesRefreshAndJobsFlow(t *testing.T) {
	env := newTestEnv(t, &stubParser{jobs: stubJobs})
	ctx := env.ctx

	if err := (&SourcesAddCmd{URL: "https://x.com/careers"}).Run(ctx); err != nil {
		t.Fatalf("sources add: %v", err)
	}
	var added []models.Source
	env.decode(t, &added)
	if len(added) != 1 || added[0].LastStatus != models.StatusPending {
		t.Fatalf("unexpected added source: %+v", added)
	}

	if err := (&RefreshCmd{}).Run(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	var outcomes []models.RunOutcome
	env.decode(t, &outcomes)
	if len(outcomes) != 1 || outcomes[0].NewCount != 2 || outcomes[0].Status != models.StatusOK {
		t.Fatalf("unexpected outcomes: %+v", outcomes)
	}

	if err := (&JobsListCmd{NewOnly: true}).Run(ctx); err != nil {
		t.Fatalf("jobs list: %v", err)
	}
	var jobs []models.Job
	env.decode(t, &jobs)
	if len(jobs) != 2 {
		t.Fatalf("expected 2 new jobs, got %d", len(jobs))
	}

	if err := (&JobsExcludeCmd{ID: jobs[0].ID}).Run(ctx); err != nil {
		t.Fatalf("jobs exclude: %v", err)
	}
	env.out.Reset()
	if err := (&SourcesSeenCmd{ID: added[0].ID}).Run(ctx); err != nil {
		t.Fatalf("sources seen: %v", err)
	}
	env.out.Reset()

	if err := (&JobsListCmd{NewOnly: true}).Run(ctx); err != nil {
		t.Fatalf("jobs list: %v", err)
	}
	env.decode(t, &jobs)
	if len(jobs) != 0 {
		t.Fatalf("expected no new jobs, got %+v", jobs)
	}

	if err := (&SourcesRunsCmd{ID: added[0].ID, Limit: 5}).Run(ctx); err != nil {
		t.Fatalf("sources runs: %v", err)
	}
	var runs []models.JobRun
	env.decode(t, &runs)
	if len(runs) != 1 || runs[0].TotalCount != 2 {
		t.Fatalf("unexpected runs: %+v", runs)
	}
}

func TestRefreshSourceFailureIsReported(t *testing.T) {
	env := newTestEnv(t, &stubParser{err: errors.New("upstream https://x.com/careers returned 500")})
	ctx := env.ctx

	if err := (&SourcesAddCmd{URL: "https://x.com/careers"}).Run(ctx); err != nil {
		t.Fatalf("sources add: %v", err)
	}
	var added []models.Source
	env.decode(t, &added)

	err := (&RefreshCmd{Source: added[0].ID}).Run(ctx)
	if err == nil {
		t.Fatal("expected refresh error")
	}
	var outcomes []models.RunOutcome
	env.decode(t, &outcomes)
	if len(outcomes) != 1 || outcomes[0].Status != models.StatusError || outcomes[0].Error != err.Error() {
		t.Fatalf("unexpected outcomes: %+v (err %v)", outcomes, err)
	}
}

func TestSourcesAddRejectsNonHTTP(t *testing.T) {
	env := newTestEnv(t, &stubParser{})
	if err := (&SourcesAddCmd{URL: "file:///etc/passwd"}).Run(env.ctx); err == nil {
		t.Fatal("expected invalid input error")
	}
}

func TestSourcesImportExport(t *testing.T) {
	env := newTestEnv(t, &stubParser{})
	ctx := env.ctx
	dir := t.TempDir()

	in := filepath.Join(dir, "sources.json")
	if err := os.WriteFile(in, []byte(`["https://a.com/jobs", {"url": "https://b.com/careers"}]`), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	if err := (&SourcesImportCmd{Path: in}).Run(ctx); err != nil {
		t.Fatalf("sources import: %v", err)
	}

	out := filepath.Join(dir, "export.json")
	if err := (&SourcesExportCmd{Path: out}).Run(ctx); err != nil {
		t.Fatalf("sources export: %v", err)
	}
	urls, err := seen.ReadSourceList(out)
	if err != nil {
		t.Fatalf("ReadSourceList() error = %v", err)
	}
	if len(urls) != 2 {
		t.Fatalf("exported %v", urls)
	}
}

func TestParseCommand(t *testing.T) {
	env := newTestEnv(t, &stubParser{jobs: stubJobs, warnings: []string{source.WarnLargePage}})
	if err := (&ParseCmd{URL: "https://x.com/careers"}).Run(env.ctx); err != nil {
		t.Fatalf("parse: %v", err)
	}

	var jobs []models.JobCandidate
	env.decode(t, &jobs)
	if len(jobs) != 2 || jobs[0].Title != "Product Designer" {
		t.Fatalf("unexpected candidates: %+v", jobs)
	}
	stderr := env.errOut.String()
	if !strings.Contains(stderr, source.WarnLargePage) || !strings.Contains(stderr, "summary: jobs=2 adapter=generic provider=direct") {
		t.Fatalf("unexpected stderr %q", stderr)
	}
}

func TestConfigShowMasksSecrets(t *testing.T) {
	env := newTestEnv(t, &stubParser{})
	env.ctx.Config.Zyte.APIKey = "secret-key"
	if err := (&ShowConfigCmd{}).Run(env.ctx); err != nil {
		t.Fatalf("config show: %v", err)
	}
	if strings.Contains(env.out.String(), "secret-key") || !strings.Contains(env.out.String(), "****") {
		t.Fatalf("secrets not masked: %s", env.out.String())
	}
}
