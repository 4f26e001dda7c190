package scraper

import (
	"context"
	"testing"
)

func TestGenericParse_JSONLDJobPosting(t *testing.T) {
	html := `
<html><head>
<script type="application/ld+json">{"@type":"JobPosting","title":"Senior Designer","url":"https://x.com/jobs/42"}</script>
</head><body></body></html>`

	jobs, err := Generic{}.Parse(context.Background(), mustDoc(t, html), "https://x.com/careers", ParseContext{Company: "X"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected 1 job, got %d: %+v", len(jobs), jobs)
	}
	if jobs[0].Title != "Senior Designer" || jobs[0].URL != "https://x.com/jobs/42" || jobs[0].Company != "X" {
		t.Fatalf("unexpected job: %+v", jobs[0])
	}
}

func TestParseJSONLDJobs_GraphItemListAndOrganization(t *testing.T) {
	html := `
<html><head>
<script type="application/ld+json">
{
  "@graph": [
    {
      "@type": ["JobPosting"],
      "title": "Platform Engineer",
      "hiringOrganization": {"name": "Beta"},
      "jobLocation": {"address": {"addressLocality": "Austin"}},
      "url": "/jobs/platform",
      "datePosted": "2024-01-16"
    }
  ]
}
</script>
<script type="application/ld+json">
{
  "@type": "ItemList",
  "itemListElement": [
    {"@type": "ListItem", "item": {"@type": "JobPosting", "title": "UX Writer", "url": "https://example.com/jobs/ux"}},
    {"@type": "ListItem", "position": 2, "title": "Visual Designer", "url": "https://example.com/jobs/visual"}
  ]
}
</script>
<script type="application/ld+json">{broken</script>
</head></html>`

	jobs := parseJSONLDJobs(mustDoc(t, html), "https://example.com/careers", "Acme")
	if len(jobs) != 3 {
		t.Fatalf("expected 3 jobs, got %d: %+v", len(jobs), jobs)
	}
	first := jobs[0]
	if first.Company != "Beta" || first.Location != "Austin" || first.URL != "https://example.com/jobs/platform" || first.PostedAt != "2024-01-16" {
		t.Fatalf("unexpected graph job: %+v", first)
	}
	if jobs[1].Title != "UX Writer" || jobs[1].Company != "Acme" {
		t.Fatalf("unexpected list item job: %+v", jobs[1])
	}
	if jobs[2].Title != "Visual Designer" {
		t.Fatalf("expected job-like fallback, got %+v", jobs[2])
	}
}

func TestParseEmbeddedJobs(t *testing.T) {
	html := `
<html><body>
<script id="__NEXT_DATA__" type="application/json">{"props":{"jobs":[{"title":"UX Researcher","url":"/jobs/ux-1","location":"Berlin","department":"Research"}]}}</script>
<script type="application/json">not json</script>
</body></html>`

	jobs := parseEmbeddedJobs(mustDoc(t, html), "https://acme.com/careers", "Acme")
	if len(jobs) != 1 {
		t.Fatalf("expected 1 job, got %d: %+v", len(jobs), jobs)
	}
	job := jobs[0]
	if job.URL != "https://acme.com/jobs/ux-1" || job.Location != "Berlin" {
		t.Fatalf("unexpected job: %+v", job)
	}
	if len(job.Tags) != 2 || job.Tags[0] != "UX" || job.Tags[1] != "Research" {
		t.Fatalf("unexpected tags: %v", job.Tags)
	}
}

func TestParseDOMJobs(t *testing.T) {
	html := `
<html><body>
<ul>
  <li>
    <h3>Product Designer</h3>
    <a href="/jobs/1">Product Designer</a>
    <span>Remote</span>
    <span>Posted 3 days ago</span>
  </li>
  <li>
    <a href="/about">About our company</a>
  </li>
  <li>
    <a href="/jobs/2">UI</a>
  </li>
</ul>
</body></html>`

	jobs := parseDOMJobs(mustDoc(t, html), "https://acme.com/careers", "Acme")
	if len(jobs) != 1 {
		t.Fatalf("expected 1 job, got %d: %+v", len(jobs), jobs)
	}
	job := jobs[0]
	if job.Title != "Product Designer" || job.URL != "https://acme.com/jobs/1" {
		t.Fatalf("unexpected job: %+v", job)
	}
	if job.Location != "Remote" {
		t.Fatalf("unexpected location: %q", job.Location)
	}
	if job.PostedAt != "3 days ago" {
		t.Fatalf("unexpected posted at: %q", job.PostedAt)
	}
}

func TestExtractLocation(t *testing.T) {
	cases := []struct {
		text string
		want string
	}{
		{"Designer Hybrid team", "Hybrid"},
		{"Office in Austin, TX", "Austin, TX"},
		{"Based in Berlin, Germany", "Berlin, Germany"},
		{"location: anywhere | full time", "anywhere"},
		{"nothing here", ""},
	}
	for _, tc := range cases {
		if got := extractLocation(tc.text); got != tc.want {
			t.Fatalf("extractLocation(%q) = %q, want %q", tc.text, got, tc.want)
		}
	}
}
