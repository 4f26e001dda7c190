package seen

import (
	"strings"

	"github.com/jimezsa/jobwatch/internal/models"
)

const (
	keySeparator  = "::"
	untitledTitle = "Untitled"
)

// JobKey derives the identity of a candidate within its source: the URL
// without query or fragment, then title, company and location, lowercased.
func JobKey(job models.JobCandidate) string {
	link := job.URL
	if i := strings.IndexByte(link, '#'); i >= 0 {
		link = link[:i]
	}
	if i := strings.IndexByte(link, '?'); i >= 0 {
		link = link[:i]
	}
	return strings.ToLower(strings.Join([]string{link, job.Title, job.Company, job.Location}, keySeparator))
}

// Observe keys candidates for storage. Candidates without a title are
// stored as "Untitled"; the key keeps the original title.
func Observe(jobs []models.JobCandidate) []models.ObservedJob {
	out := make([]models.ObservedJob, 0, len(jobs))
	for _, job := range jobs {
		key := JobKey(job)
		if strings.TrimSpace(job.Title) == "" {
			job.Title = untitledTitle
		}
		out = append(out, models.ObservedJob{Key: key, Candidate: job})
	}
	return out
}
