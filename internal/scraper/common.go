package scraper

import (
	"encoding/json"
	"errors"
	"html"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/jimezsa/jobwatch/internal/jsonwalk"
	"github.com/jimezsa/jobwatch/internal/models"
)

var errNoNextData = errors.New("no __NEXT_DATA__ payload")

func cleanText(value string) string {
	value = html.UnescapeString(value)
	return strings.Join(strings.Fields(value), " ")
}

// absoluteURL resolves href against base and returns "" unless the result
// is an http(s) URL.
func absoluteURL(base string, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	resolved := ref
	if baseURL, err := url.Parse(base); err == nil {
		resolved = baseURL.ResolveReference(ref)
	}
	switch strings.ToLower(resolved.Scheme) {
	case "http", "https":
	default:
		return ""
	}
	if resolved.Host == "" {
		return ""
	}
	return resolved.String()
}

func originOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

func decodeJSONLD(raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "<!--")
	raw = strings.TrimSuffix(raw, "-->")
	raw = strings.TrimSpace(raw)
	raw = strings.ReplaceAll(raw, "\u2028", "")
	raw = strings.ReplaceAll(raw, "\u2029", "")

	var data any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, err
	}
	return data, nil
}

// nextData decodes the Next.js hydration payload of the page.
func nextData(doc *goquery.Document) (map[string]any, error) {
	raw := strings.TrimSpace(doc.Find("script#__NEXT_DATA__").First().Text())
	if raw == "" {
		return nil, errNoNextData
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, err
	}
	return data, nil
}

// locationValue renders the location shapes found in job payloads.
func locationValue(value any) string {
	switch v := value.(type) {
	case string:
		return cleanText(v)
	case float64:
		return ""
	case []any:
		var parts []string
		seen := map[string]struct{}{}
		for _, item := range v {
			loc := locationValue(item)
			if loc == "" {
				continue
			}
			if _, ok := seen[loc]; ok {
				continue
			}
			seen[loc] = struct{}{}
			parts = append(parts, loc)
		}
		return strings.Join(parts, "; ")
	case map[string]any:
		if loc := jsonwalk.String(v, "addressLocality", "name", "city"); loc != "" {
			return cleanText(loc)
		}
		if address := jsonwalk.Map(v, "address"); address != nil {
			return locationValue(address)
		}
	}
	return ""
}

// cleanTags trims values and drops empties; nil when nothing remains.
func cleanTags(values []string) []string {
	var out []string
	for _, value := range values {
		if value = cleanText(value); value != "" {
			out = append(out, value)
		}
	}
	return out
}

// blockTitle returns the first non-empty h1, h2, h3 or link text in block.
func blockTitle(block *goquery.Selection) string {
	for _, selector := range []string{"h1", "h2", "h3", "a"} {
		if title := cleanText(block.Find(selector).First().Text()); title != "" {
			return title
		}
	}
	return ""
}

func dedupeKey(job models.JobCandidate) string {
	return strings.ToLower(job.Title + "::" + job.URL)
}

// collector accumulates candidates, keeping the first of each title::url.
type collector struct {
	jobs []models.JobCandidate
	seen map[string]struct{}
}

func newCollector() *collector {
	return &collector{seen: map[string]struct{}{}}
}

func (c *collector) add(job models.JobCandidate) bool {
	if job.Title == "" || job.URL == "" {
		return false
	}
	key := dedupeKey(job)
	if _, ok := c.seen[key]; ok {
		return false
	}
	c.seen[key] = struct{}{}
	c.jobs = append(c.jobs, job)
	return true
}

func (c *collector) addAll(jobs []models.JobCandidate) {
	for _, job := range jobs {
		c.add(job)
	}
}
