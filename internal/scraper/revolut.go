package scraper

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/jimezsa/jobwatch/internal/jsonwalk"
	"github.com/jimezsa/jobwatch/internal/models"
)

var (
	revolutTitleKeys = []string{"title", "name", "positionTitle", "jobTitle", "role"}
	revolutLinkKeys  = []string{"url", "jobUrl", "applyUrl", "apply_url", "link", "permalink"}
	revolutSlugKeys  = []string{"slug", "id", "requisitionId", "uuid"}
)

// Revolut replays the Next.js data route of the careers page and falls back
// to the hydration payload, then to position links.
type Revolut struct{}

func (Revolut) Name() string {
	return SiteRevolut
}

func (Revolut) Parse(ctx context.Context, doc *goquery.Document, baseURL string, pc ParseContext) ([]models.JobCandidate, error) {
	company := pc.Company
	if company == "" {
		company = "Revolut"
	}
	origin := originOf(baseURL)

	data, _ := nextData(doc)
	if buildID := jsonwalk.String(data, "buildId"); buildID != "" && pc.Fetcher != nil {
		route, err := revolutDataRoute(baseURL, buildID, data)
		if err == nil {
			payload, err := pc.Fetcher.FetchJSON(ctx, route, map[string]string{
				"Referer": baseURL,
				"Cookie":  pc.Cookies,
			})
			if err == nil {
				if jobs := revolutJobs(payload, origin, company); len(jobs) > 0 {
					return jobs, nil
				}
			}
		}
	}

	if data != nil {
		if jobs := revolutJobs(data, origin, company); len(jobs) > 0 {
			return jobs, nil
		}
	}
	return revolutAnchors(doc, origin, company), nil
}

// revolutDataRoute builds /_next/data/<build>/<locale path>.json for the page.
func revolutDataRoute(baseURL, buildID string, data map[string]any) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}

	path := strings.TrimSuffix(u.Path, "/")
	localePath := "careers"
	if strings.HasPrefix(path, "/careers") {
		if locale := jsonwalk.String(data, "locale", "defaultLocale"); locale != "" {
			localePath = locale + "/careers"
		}
	} else if parts := strings.FieldsFunc(path, func(r rune) bool { return r == '/' }); len(parts) >= 2 {
		localePath = parts[0] + "/" + parts[1]
	}

	route := fmt.Sprintf("%s://%s/_next/data/%s/%s.json", u.Scheme, u.Host, url.PathEscape(buildID), localePath)
	if u.RawQuery != "" {
		route += "?" + u.RawQuery
	}
	return route, nil
}

func revolutJobs(payload any, origin, company string) []models.JobCandidate {
	jobs := newCollector()
	jsonwalk.Walk(payload, func(obj map[string]any) []any {
		title := cleanText(jsonwalk.String(obj, revolutTitleKeys...))
		if title == "" {
			return nil
		}
		link := jsonwalk.String(obj, revolutLinkKeys...)
		slug := jsonwalk.String(obj, revolutSlugKeys...)
		switch {
		case link != "":
			link = absoluteURL(origin, link)
		case slug != "" && origin != "":
			link = origin + "/careers/" + url.PathEscape(slug)
		}
		if link == "" {
			return nil
		}

		location := cleanText(jsonwalk.String(obj, "location", "location_display", "city", "place", "country"))
		if location == "" {
			if locations := jsonwalk.Slice(obj, "locations"); len(locations) > 0 {
				location = cleanText(jsonwalk.Text(jsonwalk.Path(locations[0], "name")))
			}
		}
		if location == "" {
			location = cleanText(jsonwalk.String(jsonwalk.Map(obj, "office"), "name"))
		}
		if location == "" {
			location = cleanText(jsonwalk.String(obj, "office"))
		}

		tags := cleanTags(jsonwalk.Names(jsonwalk.Slice(obj, "categories")))
		if tags == nil {
			tags = cleanTags(jsonwalk.Names(jsonwalk.Slice(obj, "tags")))
		}

		jobs.add(models.JobCandidate{
			Title:    title,
			Company:  company,
			Location: location,
			URL:      link,
			PostedAt: jsonwalk.String(obj, "datePosted", "postedAt", "published_at", "created_at"),
			Tags:     tags,
		})
		return nil
	})
	return jobs.jobs
}

func revolutAnchors(doc *goquery.Document, origin, company string) []models.JobCandidate {
	jobs := newCollector()
	doc.Find("a[href*='/careers/position/']").Each(func(_ int, anchor *goquery.Selection) {
		href, _ := anchor.Attr("href")
		link := absoluteURL(origin, href)
		if link == "" {
			return
		}
		block := anchor.Closest("li, article, div, section")
		if block.Length() == 0 {
			block = anchor
		}
		title := cleanText(block.Find("h1").First().Text())
		if title == "" {
			title = cleanText(block.Find("h2").First().Text())
		}
		if title == "" {
			title = cleanText(block.Find("h3").First().Text())
		}
		if title == "" {
			title = cleanText(anchor.Text())
		}
		if title == "" {
			return
		}

		blockText := cleanText(block.Text())
		location := workModePattern.FindString(blockText)
		if location == "" {
			location = cityStatePattern.FindString(blockText)
		}
		if location == "" {
			location = cityCountryPattern.FindString(blockText)
		}
		jobs.add(models.JobCandidate{Title: title, Company: company, Location: location, URL: link})
	})
	return jobs.jobs
}
