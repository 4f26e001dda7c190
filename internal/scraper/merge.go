package scraper

import (
	"strings"

	"github.com/jimezsa/jobwatch/internal/models"
)

// Merge concatenates candidate lists, keeping the first occurrence of each
// title::url pair. Entries without a title or URL are dropped.
func Merge(lists ...[]models.JobCandidate) []models.JobCandidate {
	jobs := newCollector()
	for _, list := range lists {
		jobs.addAll(list)
	}
	return jobs.jobs
}

// FilterJobs drops candidates that point back at the page itself and, for
// hosts with a listing pattern, anything that is not a listing URL.
func FilterJobs(jobs []models.JobCandidate, pageURL, host string) []models.JobCandidate {
	pattern := ListingPattern(host)
	page := strings.TrimSuffix(pageURL, "/")

	out := make([]models.JobCandidate, 0, len(jobs))
	for _, job := range jobs {
		if job.URL == "" || strings.TrimSuffix(job.URL, "/") == page {
			continue
		}
		if pattern != nil && !pattern.MatchString(job.URL) {
			continue
		}
		out = append(out, job)
	}
	return out
}
