package export

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/jimezsa/jobwatch/internal/models"
)

var seenAt = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func sampleJobs() []models.Job {
	return []models.Job{
		{ID: 2, SourceID: 1, Title: "Product Designer", Company: "Acme", URL: "https://jobs.lever.co/acme/1", FirstSeenAt: seenAt, LastSeenAt: seenAt, IsNew: true},
		{ID: 1, SourceID: 1, Title: "Writer", URL: "https://jobs.lever.co/acme/2", FirstSeenAt: seenAt, LastSeenAt: seenAt},
	}
}

func TestWriteJobsCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJobs(&buf, sampleJobs(), FormatCSV, WriteOptions{}); err != nil {
		t.Fatalf("WriteJobs() error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(lines))
	}
	if lines[0] != "id,source_id,title,company,location,url,first_seen_at,last_seen_at,new" {
		t.Fatalf("unexpected header %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "2,1,Product Designer,Acme,,https://jobs.lever.co/acme/1,2025-03-01T09:00:00Z") {
		t.Fatalf("unexpected row %q", lines[1])
	}
}

func TestWriteJobsJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJobs(&buf, sampleJobs(), FormatJSON, WriteOptions{}); err != nil {
		t.Fatalf("WriteJobs() error = %v", err)
	}
	var decoded []models.Job
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(decoded) != 2 || !decoded[0].IsNew {
		t.Fatalf("unexpected decoded jobs: %+v", decoded)
	}
}

func TestWriteTableShortLinks(t *testing.T) {
	var buf bytes.Buffer
	long := "https://www.example.com/" + strings.Repeat("a", 80)
	jobs := []models.JobCandidate{{Title: "Designer", URL: long}}
	if err := WriteCandidates(&buf, jobs, FormatTable, WriteOptions{Hyperlinks: true, LinkStyle: LinkStyleShort}); err != nil {
		t.Fatalf("WriteCandidates() error = %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "\x1b]8;;"+long) {
		t.Fatalf("expected hyperlink escape, got %q", out)
	}
	if !strings.Contains(out, "example.com/aaa") || !strings.Contains(out, "...") {
		t.Fatalf("expected short label, got %q", out)
	}
	if !strings.Contains(out, "title") || strings.Contains(out, "posted_at") {
		t.Fatalf("unexpected table header: %q", out)
	}
}

func TestWriteSourcesMarkdown(t *testing.T) {
	var buf bytes.Buffer
	sources := []models.Source{
		{ID: 3, URL: "https://x.com/careers", CreatedAt: seenAt, LastStatus: models.StatusError, LastError: "upstream returned 500"},
	}
	if err := WriteSources(&buf, sources, FormatMarkdown, WriteOptions{}); err != nil {
		t.Fatalf("WriteSources() error = %v", err)
	}
	out := buf.String()
	for _, want := range []string{"- **3**", "  Url: [Open](<https://x.com/careers>)", "  Status: error", "  Last error: upstream returned 500"} {
		if !strings.Contains(out, want) {
			t.Fatalf("markdown missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Last checked at") {
		t.Fatalf("empty columns should be skipped:\n%s", out)
	}
}

func TestWriteMarkdownEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteRuns(&buf, nil, FormatMarkdown, WriteOptions{}); err != nil {
		t.Fatalf("WriteRuns() error = %v", err)
	}
	if strings.TrimSpace(buf.String()) != "No results." {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestWriteOutcomesTSV(t *testing.T) {
	var buf bytes.Buffer
	outcomes := []models.RunOutcome{{SourceID: 1, URL: "https://x.com", Status: models.StatusOK, NewCount: 2, TotalCount: 5}}
	if err := WriteOutcomes(&buf, outcomes, FormatTSV, WriteOptions{}); err != nil {
		t.Fatalf("WriteOutcomes() error = %v", err)
	}
	if !strings.Contains(buf.String(), "1\thttps://x.com\tok\t2\t5") {
		t.Fatalf("unexpected tsv %q", buf.String())
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat(""); err != nil || f != FormatTable {
		t.Fatalf("ParseFormat(\"\") = %q, %v", f, err)
	}
	if f, err := ParseFormat("MD"); err != nil || f != FormatMarkdown {
		t.Fatalf("ParseFormat(MD) = %q, %v", f, err)
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Fatal("expected error for xml")
	}
}
