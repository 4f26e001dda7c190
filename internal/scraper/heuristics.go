package scraper

import (
	"regexp"
	"strings"

	"github.com/jimezsa/jobwatch/internal/jsonwalk"
	"github.com/jimezsa/jobwatch/internal/models"
)

var (
	roleKeywords = regexp.MustCompile(`(?i)\b(design|designer|ux|ui|product design|visual|graphic|interaction|content design|researcher|creative)\b`)

	workModePattern      = regexp.MustCompile(`(?i)\b(remote|hybrid|on[- ]?site)\b`)
	cityStatePattern     = regexp.MustCompile(`\b[A-Z][a-zA-Z]+,\s?[A-Z]{2}\b`)
	cityCountryPattern   = regexp.MustCompile(`\b[A-Z][a-zA-Z]+,\s?[A-Z][a-zA-Z]+\b`)
	locationLabelPattern = regexp.MustCompile(`(?i)location:\s*([^|]+)`)

	relativeDatePattern = regexp.MustCompile(`(?i)\b(\d+\s?(?:day|week|month)s?\s?ago)\b`)
	absoluteDatePattern = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2}|\d{1,2}/\d{1,2}/\d{2,4}|[A-Z][a-z]{2,8}\s\d{1,2},\s\d{4})\b`)
	postedLabelPattern  = regexp.MustCompile(`(?i)posted\s*:?\s*([^|]+)`)
)

var tagVocabulary = []struct {
	needle string
	tag    string
}{
	{"ux", "UX"},
	{"ui", "UI"},
	{"product", "Product"},
	{"research", "Research"},
	{"visual", "Visual"},
	{"graphic", "Graphic"},
}

var (
	titleKeys    = []string{"title", "name", "position", "jobTitle"}
	linkKeys     = []string{"url", "applyUrl", "apply_url", "link"}
	locationKeys = []string{"location", "jobLocation", "address", "city", "place", "locationName"}
	postedKeys   = []string{"datePosted", "postedAt", "publishedAt", "createdAt"}
)

// extractLocation tries, in order, a work-mode token, "City, ST",
// "City, Country" and a "Location:" label.
func extractLocation(text string) string {
	if m := workModePattern.FindString(text); m != "" {
		return m
	}
	if m := cityStatePattern.FindString(text); m != "" {
		return m
	}
	if m := cityCountryPattern.FindString(text); m != "" {
		return m
	}
	if m := locationLabelPattern.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// extractPostedAt tries a relative age, an absolute date and a "Posted" label.
func extractPostedAt(text string) string {
	if m := relativeDatePattern.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	if m := absoluteDatePattern.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	if m := postedLabelPattern.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

func extractTags(text string) []string {
	lower := strings.ToLower(text)
	var tags []string
	for _, entry := range tagVocabulary {
		if strings.Contains(lower, entry.needle) {
			tags = append(tags, entry.tag)
		}
	}
	return tags
}

// isJobLike reports whether obj carries both a title and a link.
func isJobLike(obj map[string]any) bool {
	return jsonwalk.Has(obj, titleKeys...) && jsonwalk.Has(obj, linkKeys...)
}

// candidateFromObject normalizes a job-like JSON object.
func candidateFromObject(obj map[string]any, baseURL, company string) (models.JobCandidate, bool) {
	title := cleanText(jsonwalk.String(obj, titleKeys...))
	link := absoluteURL(baseURL, jsonwalk.String(obj, linkKeys...))
	if title == "" || link == "" {
		return models.JobCandidate{}, false
	}

	var location string
	for _, key := range locationKeys {
		if location = locationValue(obj[key]); location != "" {
			break
		}
	}

	tagText := strings.Join([]string{
		title,
		jsonwalk.String(obj, "department"),
		jsonwalk.String(obj, "team"),
		jsonwalk.String(obj, "category"),
	}, " ")

	return models.JobCandidate{
		Title:    title,
		Company:  company,
		Location: location,
		URL:      link,
		PostedAt: jsonwalk.String(obj, postedKeys...),
		Tags:     extractTags(tagText),
	}, true
}

// collectJobLike walks data breadth-first and normalizes every job-like
// object it finds.
func collectJobLike(data any, baseURL, company string) []models.JobCandidate {
	jobs := newCollector()
	jsonwalk.Walk(data, func(obj map[string]any) []any {
		if !isJobLike(obj) {
			return nil
		}
		if job, ok := candidateFromObject(obj, baseURL, company); ok {
			jobs.add(job)
		}
		return nil
	})
	return jobs.jobs
}
