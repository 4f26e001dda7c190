package scraper

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/jimezsa/jobwatch/internal/models"
)

// Lever reads jobs.lever.co posting lists.
type Lever struct{}

func (Lever) Name() string {
	return SiteLever
}

func (Lever) Parse(_ context.Context, doc *goquery.Document, baseURL string, pc ParseContext) ([]models.JobCandidate, error) {
	jobs := newCollector()
	doc.Find("a.posting-title[href]").Each(func(_ int, anchor *goquery.Selection) {
		href, _ := anchor.Attr("href")
		link := absoluteURL(baseURL, href)
		if link == "" {
			return
		}

		title := cleanText(anchor.Find(".posting-title__text").Text())
		if title == "" {
			title = cleanText(anchor.Find("h5").First().Text())
		}
		if title == "" {
			title = cleanText(anchor.Text())
		}
		if title == "" || strings.EqualFold(title, "apply") {
			return
		}

		posting := anchor.Closest(".posting")
		if posting.Length() == 0 {
			posting = anchor
		}
		var categories []string
		posting.Find(".posting-categories span").Each(func(_ int, span *goquery.Selection) {
			if text := cleanText(span.Text()); text != "" {
				categories = append(categories, text)
			}
		})

		job := models.JobCandidate{Title: title, Company: pc.Company, URL: link}
		if n := len(categories); n > 0 {
			job.Location = categories[n-1]
			if n > 1 {
				job.Tags = categories[:n-1]
			}
		}
		jobs.add(job)
	})
	return jobs.jobs, nil
}
