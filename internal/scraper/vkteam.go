package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/PuerkitoBio/goquery"
	"github.com/jimezsa/jobwatch/internal/jsonwalk"
	"github.com/jimezsa/jobwatch/internal/models"
)

// VKTeam projects the vacancies array of team.vk.company's hydration
// payload.
type VKTeam struct{}

func (VKTeam) Name() string {
	return SiteVKTeam
}

func (VKTeam) Parse(_ context.Context, doc *goquery.Document, baseURL string, pc ParseContext) ([]models.JobCandidate, error) {
	data, err := nextData(doc)
	if errors.Is(err, errNoNextData) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrAdapterParse, SiteVKTeam, err)
	}

	props := jsonwalk.Map(jsonwalk.Map(data, "props"), "pageProps")
	vacancies := jsonwalk.Slice(props, "initialVacancies")
	if vacancies == nil {
		vacancies = jsonwalk.Slice(props, "vacancies")
	}

	origin := originOf(baseURL)
	jobs := newCollector()
	for _, raw := range vacancies {
		item, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		title := cleanText(jsonwalk.String(item, "title"))
		id := jsonwalk.String(item, "id")
		if title == "" || id == "" || origin == "" {
			continue
		}

		company := cleanText(jsonwalk.String(jsonwalk.Map(item, "group"), "name"))
		if company == "" {
			company = pc.Company
		}
		jobs.add(models.JobCandidate{
			Title:    title,
			Company:  company,
			Location: cleanText(jsonwalk.String(jsonwalk.Map(item, "town"), "name")),
			URL:      origin + "/vacancy/" + url.PathEscape(id) + "/",
			PostedAt: cleanText(jsonwalk.String(item, "published_at", "created_at")),
			Tags:     cleanTags(jsonwalk.Names(jsonwalk.Slice(item, "tags"))),
		})
	}
	return jobs.jobs, nil
}
