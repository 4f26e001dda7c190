package scraper

import (
	"context"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/jimezsa/jobwatch/internal/models"
)

var greenhouseJobPath = regexp.MustCompile(`(?i)/jobs/`)

// Greenhouse reads hosted Greenhouse job boards, old and new layouts.
type Greenhouse struct{}

func (Greenhouse) Name() string {
	return SiteGreenhouse
}

func (Greenhouse) Parse(_ context.Context, doc *goquery.Document, baseURL string, pc ParseContext) ([]models.JobCandidate, error) {
	jobs := newCollector()
	doc.Find("a[href]").Each(func(_ int, anchor *goquery.Selection) {
		href, _ := anchor.Attr("href")
		if strings.HasPrefix(strings.TrimSpace(href), "javascript:") {
			return
		}
		link := absoluteURL(baseURL, href)
		if link == "" || !greenhouseJobPath.MatchString(link) {
			return
		}

		block := anchor.Closest(".opening, .job-post, li, article, div, section")
		if block.Length() == 0 {
			block = anchor
		}

		title := cleanText(anchor.Find(".body--medium").First().Text())
		if title == "" {
			title = cleanText(block.Find("h1, h2, h3").First().Text())
		}
		if title == "" {
			title = cleanText(anchor.Text())
		}
		if title == "" || strings.EqualFold(title, "apply") {
			return
		}

		location := cleanText(block.Find(".location, .body__secondary").First().Text())
		jobs.add(models.JobCandidate{
			Title:    title,
			Company:  pc.Company,
			Location: location,
			URL:      link,
		})
	})
	return jobs.jobs, nil
}
