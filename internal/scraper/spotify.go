package scraper

import (
	"context"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/jimezsa/jobwatch/internal/jsonwalk"
	"github.com/jimezsa/jobwatch/internal/models"
)

const (
	spotifySearchAPI   = "https://api.lifeatspotify.com/wp-json/animal/v1/job/search"
	spotifyJobsBase    = "https://www.lifeatspotify.com/jobs/"
	spotifyDefaultCat  = "design"
	spotifyCategoryKey = "job-categories"
)

var (
	spotifyJobPath  = regexp.MustCompile(`(?i)/jobs/[a-z0-9-]+`)
	spotifyHubPaths = []*regexp.Regexp{
		regexp.MustCompile(`(?i)/jobs/?$`),
		regexp.MustCompile(`(?i)/jobs\?`),
		regexp.MustCompile(`(?i)/jobs#`),
	}
)

// Spotify queries the lifeatspotify search API for the page's category and
// falls back to job links in the page.
type Spotify struct{}

func (Spotify) Name() string {
	return SiteSpotify
}

func (Spotify) Parse(ctx context.Context, doc *goquery.Document, baseURL string, pc ParseContext) ([]models.JobCandidate, error) {
	company := pc.Company
	if company == "" {
		company = "Spotify"
	}

	if pc.Fetcher != nil {
		apiURL := spotifySearchAPI + "?c=" + url.QueryEscape(spotifyCategory(baseURL))
		payload, err := pc.Fetcher.FetchJSON(ctx, apiURL, nil)
		if err == nil {
			if jobs := spotifyJobs(payload, company); len(jobs) > 0 {
				return jobs, nil
			}
		}
	}
	return spotifyAnchors(doc, baseURL, company), nil
}

func spotifyCategory(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil {
		return spotifyDefaultCat
	}
	parts := strings.FieldsFunc(u.Path, func(r rune) bool { return r == '/' })
	for i, part := range parts {
		if part == spotifyCategoryKey && i+1 < len(parts) {
			return parts[i+1]
		}
	}
	return spotifyDefaultCat
}

func spotifyItems(payload any) []any {
	if list, ok := payload.([]any); ok {
		return list
	}
	obj, _ := payload.(map[string]any)
	for _, key := range []string{"result", "jobs", "results", "items", "data"} {
		if list := jsonwalk.Slice(obj, key); list != nil {
			return list
		}
	}
	return nil
}

func spotifyJobs(payload any, company string) []models.JobCandidate {
	jobs := newCollector()
	for _, raw := range spotifyItems(payload) {
		item, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		title := cleanText(jsonwalk.String(item, "text", "position_title", "title", "job_title", "name", "role"))
		link := jsonwalk.String(item, "job_url", "url", "link", "apply_url")
		if link == "" {
			if slug := jsonwalk.String(item, "slug", "id"); slug != "" {
				link = spotifyJobsBase + url.PathEscape(slug)
			}
		}
		link = absoluteURL(spotifyJobsBase, link)
		if title == "" || link == "" {
			continue
		}

		location := cleanText(jsonwalk.String(item, "location", "city", "place", "location_display"))
		if location == "" {
			if locations := jsonwalk.Slice(item, "locations"); len(locations) > 0 {
				first, _ := locations[0].(map[string]any)
				location = cleanText(jsonwalk.String(first, "name", "location"))
			}
		}

		tags := cleanTags(jsonwalk.Names(jsonwalk.Slice(item, "categories")))
		if tags == nil {
			tags = cleanTags(jsonwalk.Names(jsonwalk.Slice(item, "tags")))
		}
		if tags == nil {
			if main := cleanText(jsonwalk.String(jsonwalk.Map(item, "main_category"), "name")); main != "" {
				tags = []string{main}
			}
		}

		jobs.add(models.JobCandidate{
			Title:    title,
			Company:  company,
			Location: location,
			URL:      link,
			PostedAt: jsonwalk.String(item, "date_posted", "published_at"),
			Tags:     tags,
		})
	}
	return jobs.jobs
}

func looksLikeSpotifyJob(link string) bool {
	if link == "" {
		return false
	}
	for _, hub := range spotifyHubPaths {
		if hub.MatchString(link) {
			return false
		}
	}
	return spotifyJobPath.MatchString(link)
}

func spotifyAnchors(doc *goquery.Document, baseURL, company string) []models.JobCandidate {
	jobs := newCollector()
	doc.Find("a[href]").Each(func(_ int, anchor *goquery.Selection) {
		href, _ := anchor.Attr("href")
		link := absoluteURL(baseURL, href)
		if !looksLikeSpotifyJob(link) {
			return
		}
		block := anchor.Closest("li, article, div, section")
		if block.Length() == 0 {
			block = anchor
		}
		title := ""
		for _, selector := range []string{"h1", "h2", "h3"} {
			if title = cleanText(block.Find(selector).First().Text()); title != "" {
				break
			}
		}
		if title == "" {
			title = cleanText(anchor.Text())
		}
		jobs.add(models.JobCandidate{Title: title, Company: company, URL: link})
	})
	return jobs.jobs
}
