package scraper

import (
	"context"
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/jimezsa/jobwatch/internal/jsonwalk"
	"github.com/jimezsa/jobwatch/internal/models"
)

const maxEmbeddedPayloads = 5

// hydrationIDs are element ids frameworks use for server state.
var hydrationIDs = []string{"__NEXT_DATA__", "__NUXT__", "__NUXT_DATA__", "__APOLLO_STATE__", "__INITIAL_STATE__"}

// Generic combines structured data, embedded state and DOM heuristics.
type Generic struct{}

func (Generic) Name() string {
	return SiteGeneric
}

func (Generic) Parse(_ context.Context, doc *goquery.Document, baseURL string, pc ParseContext) ([]models.JobCandidate, error) {
	jobs := newCollector()
	jobs.addAll(parseJSONLDJobs(doc, baseURL, pc.Company))
	jobs.addAll(parseEmbeddedJobs(doc, baseURL, pc.Company))
	jobs.addAll(parseDOMJobs(doc, baseURL, pc.Company))
	return jobs.jobs, nil
}

func parseJSONLDJobs(doc *goquery.Document, baseURL, company string) []models.JobCandidate {
	jobs := newCollector()
	doc.Find("script[type='application/ld+json']").Each(func(_ int, s *goquery.Selection) {
		raw := strings.TrimSpace(s.Text())
		if raw == "" {
			return
		}
		data, err := decodeJSONLD(raw)
		if err != nil {
			return
		}
		jobs.addAll(extractJobsFromJSONLD(data, baseURL, company))
	})
	return jobs.jobs
}

func extractJobsFromJSONLD(data any, baseURL, company string) []models.JobCandidate {
	var jobs []models.JobCandidate

	switch value := data.(type) {
	case []any:
		for _, item := range value {
			jobs = append(jobs, extractJobsFromJSONLD(item, baseURL, company)...)
		}
	case map[string]any:
		if isJobPostingType(value["@type"]) {
			if job, ok := jobFromJobPosting(value, baseURL, company); ok {
				jobs = append(jobs, job)
			}
			return jobs
		}
		if items, ok := value["itemListElement"]; ok {
			jobs = append(jobs, jobsFromItemList(items, baseURL, company)...)
		}
		if graph, ok := value["@graph"]; ok {
			jobs = append(jobs, extractJobsFromJSONLD(graph, baseURL, company)...)
		}
		if main, ok := value["mainEntity"]; ok {
			jobs = append(jobs, extractJobsFromJSONLD(main, baseURL, company)...)
		}
	}

	return jobs
}

// jobsFromItemList unwraps ListItem entries; entries that carry no typed
// posting are searched for job-like objects instead.
func jobsFromItemList(items any, baseURL, company string) []models.JobCandidate {
	list, ok := items.([]any)
	if !ok {
		list = []any{items}
	}

	var jobs []models.JobCandidate
	for _, item := range list {
		found := extractJobsFromJSONLD(item, baseURL, company)
		if obj, ok := item.(map[string]any); ok && len(found) == 0 {
			found = extractJobsFromJSONLD(obj["item"], baseURL, company)
		}
		if len(found) == 0 {
			found = collectJobLike(item, baseURL, company)
		}
		jobs = append(jobs, found...)
	}
	return jobs
}

func isJobPostingType(value any) bool {
	switch v := value.(type) {
	case string:
		return strings.EqualFold(v, "JobPosting") || strings.EqualFold(v, "Job")
	case []any:
		for _, item := range v {
			if isJobPostingType(item) {
				return true
			}
		}
	}
	return false
}

func jobFromJobPosting(value map[string]any, baseURL, company string) (models.JobCandidate, bool) {
	if org := jsonwalk.String(jsonwalk.Map(value, "hiringOrganization"), "name"); org != "" {
		company = cleanText(org)
	}
	return candidateFromObject(value, baseURL, company)
}

func parseEmbeddedJobs(doc *goquery.Document, baseURL, company string) []models.JobCandidate {
	jobs := newCollector()
	for _, payload := range embeddedPayloads(doc) {
		jobs.addAll(collectJobLike(payload, baseURL, company))
	}
	return jobs.jobs
}

// embeddedPayloads decodes up to maxEmbeddedPayloads hydration and inline
// JSON scripts.
func embeddedPayloads(doc *goquery.Document) []any {
	var raws []string
	seen := map[string]struct{}{}
	add := func(raw string) {
		raw = strings.TrimSpace(raw)
		if !strings.HasPrefix(raw, "{") && !strings.HasPrefix(raw, "[") {
			return
		}
		if _, ok := seen[raw]; ok {
			return
		}
		seen[raw] = struct{}{}
		raws = append(raws, raw)
	}

	for _, id := range hydrationIDs {
		doc.Find("#" + id).Each(func(_ int, s *goquery.Selection) {
			add(s.Text())
		})
	}
	doc.Find("script[type='application/json']").Each(func(_ int, s *goquery.Selection) {
		add(s.Text())
	})

	var payloads []any
	for _, raw := range raws {
		if len(payloads) >= maxEmbeddedPayloads {
			break
		}
		var data any
		if err := json.Unmarshal([]byte(raw), &data); err != nil {
			continue
		}
		payloads = append(payloads, data)
	}
	return payloads
}

func parseDOMJobs(doc *goquery.Document, baseURL, company string) []models.JobCandidate {
	jobs := newCollector()
	doc.Find("a[href]").Each(func(_ int, anchor *goquery.Selection) {
		href, _ := anchor.Attr("href")
		text := cleanText(anchor.Text())
		if !isLikelyJobAnchor(text, href) {
			return
		}

		link := absoluteURL(baseURL, href)
		if link == "" {
			return
		}

		block := jobBlock(anchor)
		blockText := cleanText(block.Text())
		if scoreBlock(block, blockText) < 2 {
			return
		}

		title := blockTitle(block)
		if title == "" {
			title = text
		}

		jobs.add(models.JobCandidate{
			Title:    title,
			Company:  company,
			Location: extractLocation(blockText),
			URL:      link,
			PostedAt: extractPostedAt(blockText),
			Tags:     extractTags(blockText),
		})
	})
	return jobs.jobs
}

func isLikelyJobAnchor(text, href string) bool {
	if utf8.RuneCountInString(text) < 4 {
		return false
	}
	return roleKeywords.MatchString(text) || roleKeywords.MatchString(href)
}

// jobBlock climbs to the nearest block ancestor of anchor, or the anchor itself.
func jobBlock(anchor *goquery.Selection) *goquery.Selection {
	block := anchor.Closest("li, article, div, tr, section")
	if block.Length() == 0 {
		return anchor
	}
	return block
}

// scoreBlock rates a candidate block: +2 for role keywords, +1 for a link,
// +1 for a heading.
func scoreBlock(block *goquery.Selection, text string) int {
	score := 0
	if roleKeywords.MatchString(text) {
		score += 2
	}
	if block.Find("a").Length() > 0 {
		score++
	}
	if block.Find("h1, h2, h3").Length() > 0 {
		score++
	}
	return score
}
